//go:build integration

package integration

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/docker/go-connections/nat"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/goforj/atmcache/cachetest"
	"github.com/goforj/atmcache/source/dynamosource"
	"github.com/goforj/atmcache/source/natssource"
	"github.com/goforj/atmcache/source/redissource"
	"github.com/goforj/atmcache/source/sqlsource"
)

type containerSpec struct {
	image string
	port  string
	env   map[string]string
	cmd   []string
	wait  wait.Strategy
}

// startContainer runs spec and returns host:port for its exposed port. The
// container is terminated when the test ends.
func startContainer(t *testing.T, ctx context.Context, spec containerSpec) string {
	t.Helper()
	if spec.wait == nil {
		spec.wait = wait.ForListeningPort(nat.Port(spec.port)).WithStartupTimeout(60 * time.Second)
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        spec.image,
			Env:          spec.env,
			Cmd:          spec.cmd,
			ExposedPorts: []string{spec.port},
			WaitingFor:   spec.wait,
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start %s container: %v", spec.image, err)
	}
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(shutdownCtx)
	})
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("%s container host: %v", spec.image, err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(spec.port))
	if err != nil {
		t.Fatalf("%s container port: %v", spec.image, err)
	}
	return net.JoinHostPort(host, mapped.Port())
}

func sourceEnabled(name string) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv("INTEGRATION_SOURCE")))
	if value == "" || value == "all" {
		return true
	}
	for _, part := range strings.Split(value, ",") {
		if strings.TrimSpace(part) == name {
			return true
		}
	}
	return false
}

func retry(timeout, interval time.Duration, fn func() error) error {
	deadline := time.Now().Add(timeout)
	for {
		err := fn()
		if err == nil || time.Now().After(deadline) {
			return err
		}
		time.Sleep(interval)
	}
}

func runSQLContract(t *testing.T, driverName, dsn, placeholder string) {
	t.Helper()
	ctx := context.Background()
	var src *sqlsource.Source
	err := retry(60*time.Second, 500*time.Millisecond, func() error {
		var err error
		src, err = sqlsource.Open(ctx, driverName, dsn, sqlsource.WithEmptyAsNoValue())
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	_, err = src.DB().ExecContext(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR(64) NOT NULL)`)
	require.NoError(t, err)
	_, err = src.DB().ExecContext(ctx, fmt.Sprintf(`INSERT INTO users (id, name) VALUES (%s, 'Ada')`, placeholder), 1)
	require.NoError(t, err)

	cachetest.RunProducerContract(t, cachetest.Options{
		Present: src.Producer(sqlsource.Query{Table: "users", Columns: []string{"name"}, Where: "id = ?", Args: []any{1}}),
		Want:    []byte(`[{"name":"Ada"}]`),
		Absent:  src.Producer(sqlsource.Query{Table: "users", Where: "id = ?", Args: []any{404}}),
	})
}

func TestPostgresSource(t *testing.T) {
	if !sourceEnabled("postgres") {
		t.Skip("postgres source not selected")
	}
	addr := startContainer(t, context.Background(), containerSpec{
		image: "postgres:16-bookworm",
		port:  "5432/tcp",
		env:   map[string]string{"POSTGRES_PASSWORD": "pass", "POSTGRES_USER": "user", "POSTGRES_DB": "app"},
	})
	runSQLContract(t, sqlsource.DriverPostgres, fmt.Sprintf("postgres://user:pass@%s/app?sslmode=disable", addr), "$1")
}

func TestMySQLSource(t *testing.T) {
	if !sourceEnabled("mysql") {
		t.Skip("mysql source not selected")
	}
	addr := startContainer(t, context.Background(), containerSpec{
		image: "mysql:8",
		port:  "3306/tcp",
		env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "pass",
			"MYSQL_DATABASE":      "app",
			"MYSQL_USER":          "user",
			"MYSQL_PASSWORD":      "pass",
		},
		wait: wait.ForAll(
			wait.ForListeningPort("3306/tcp").WithStartupTimeout(90*time.Second),
			wait.ForLog("ready for connections").WithOccurrence(2).WithStartupTimeout(90*time.Second),
		),
	})
	runSQLContract(t, sqlsource.DriverMySQL, fmt.Sprintf("user:pass@tcp(%s)/app", addr), "?")
}

func TestRedisSource(t *testing.T) {
	if !sourceEnabled("redis") {
		t.Skip("redis source not selected")
	}
	ctx := context.Background()
	addr := startContainer(t, ctx, containerSpec{image: "redis:7-bookworm", port: "6379/tcp"})

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(ctx, "itest:present", "value", time.Minute).Err())

	src := redissource.New(client, redissource.WithPrefix("itest"))
	cachetest.RunProducerContract(t, cachetest.Options{
		Present: src.Producer("present"),
		Want:    []byte("value"),
		Absent:  src.Producer("absent"),
	})
}

func TestNATSSource(t *testing.T) {
	if !sourceEnabled("nats") {
		t.Skip("nats source not selected")
	}
	addr := startContainer(t, context.Background(), containerSpec{
		image: "nats:2",
		port:  "4222/tcp",
		cmd:   []string{"-js"},
		wait:  wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
	})

	src, nc, err := natssource.Connect(natssource.ConnectConfig{URL: "nats://" + addr, Bucket: "itest", Create: true})
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	require.NoError(t, src.Publish(nil, "present", []byte("value")))

	cachetest.RunProducerContract(t, cachetest.Options{
		Present: src.Producer("present"),
		Want:    []byte("value"),
		Absent:  src.Producer("absent"),
	})
}

func TestDynamoSource(t *testing.T) {
	if !sourceEnabled("dynamodb") {
		t.Skip("dynamodb source not selected")
	}
	ctx := context.Background()
	addr := startContainer(t, ctx, containerSpec{image: "amazon/dynamodb-local:latest", port: "8000/tcp"})
	endpoint := "http://" + addr

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")),
	)
	require.NoError(t, err)
	awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: endpoint, HostnameImmutable: true}, nil
	})
	client := dynamodb.NewFromConfig(awsCfg)

	err = retry(30*time.Second, 300*time.Millisecond, func() error {
		_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName:            aws.String("users"),
			AttributeDefinitions: []types.AttributeDefinition{{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS}},
			KeySchema:            []types.KeySchemaElement{{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash}},
			BillingMode:          types.BillingModePayPerRequest,
		})
		return err
	})
	require.NoError(t, err)
	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String("users"),
		Item: map[string]types.AttributeValue{
			"id":   &types.AttributeValueMemberS{Value: "1"},
			"name": &types.AttributeValueMemberS{Value: "Ada"},
		},
	})
	require.NoError(t, err)

	src, err := dynamosource.New(ctx, dynamosource.Config{Endpoint: endpoint, Table: "users"})
	require.NoError(t, err)
	cachetest.RunProducerContract(t, cachetest.Options{
		Present: src.Item("1"),
		Want:    []byte(`{"id":"1","name":"Ada"}`),
		Absent:  src.Item("404"),
	})
}
