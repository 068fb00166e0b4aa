// Package dynamosource produces cache values from DynamoDB items. Items are
// encoded as JSON objects, query results as JSON arrays.
package dynamosource

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	logger "github.com/harwoeck/liblog/contract"

	"github.com/goforj/atmcache"
)

// DefaultLimit caps query results when Query.Limit is unset.
const DefaultLimit = 50

// API captures the subset of DynamoDB client methods used by the source.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Config describes the table to read.
type Config struct {
	// Client is used as-is when set. Otherwise one is built from Region and Endpoint.
	Client   API
	Region   string
	Endpoint string
	Table    string
	// KeyAttribute is the partition key name used by Item. Defaults to "id".
	KeyAttribute   string
	ConsistentRead bool
	Logger         logger.Logger
}

// Query selects items by key condition.
type Query struct {
	IndexName    string
	KeyCondition string
	Names        map[string]string
	Values       map[string]types.AttributeValue
	Filter       string
	Limit        int32
	Descending   bool
}

// Source reads items from one table.
type Source struct {
	client         API
	table          string
	keyAttr        string
	consistentRead bool
	log            logger.Logger
}

// New builds a Source. A client pointed at a local endpoint uses static dummy
// credentials, matching DynamoDB Local.
func New(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.Table == "" {
		return nil, errors.New("dynamodb source requires a table")
	}
	if cfg.KeyAttribute == "" {
		cfg.KeyAttribute = "id"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Client == nil {
		client, err := newClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cfg.Client = client
	}
	s := &Source{
		client:         cfg.Client,
		table:          cfg.Table,
		keyAttr:        cfg.KeyAttribute,
		consistentRead: cfg.ConsistentRead,
	}
	if cfg.Logger != nil {
		s.log = cfg.Logger.Named("dynamosource")
	}
	return s, nil
}

func newClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.Endpoint, HostnameImmutable: true}, nil
		})
		awsCfg.EndpointResolverWithOptions = resolver
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

// Item returns a producer reading the item whose key attribute equals key.
// A missing item yields ErrNoValue.
func (s *Source) Item(key string) atmcache.Producer {
	return func(ctx context.Context) ([]byte, error) {
		out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.table),
			Key:            map[string]types.AttributeValue{s.keyAttr: &types.AttributeValueMemberS{Value: key}},
			ConsistentRead: aws.Bool(s.consistentRead),
		})
		if err != nil {
			s.failed(key, err)
			return nil, fmt.Errorf("dynamodb get %q: %w", key, err)
		}
		if len(out.Item) == 0 {
			return nil, atmcache.ErrNoValue
		}
		return json.Marshal(decodeItem(out.Item))
	}
}

// Query returns a producer running q. Results are limited to DefaultLimit
// items unless q.Limit is set. An empty result is cached as an empty array.
func (s *Source) Query(q Query) atmcache.Producer {
	return func(ctx context.Context) ([]byte, error) {
		if q.KeyCondition == "" {
			return nil, errors.New("dynamodb query requires a key condition")
		}
		limit := q.Limit
		if limit <= 0 {
			limit = DefaultLimit
		}
		in := &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			KeyConditionExpression:    aws.String(q.KeyCondition),
			ExpressionAttributeValues: q.Values,
			Limit:                     aws.Int32(limit),
			ScanIndexForward:          aws.Bool(!q.Descending),
			ConsistentRead:            aws.Bool(s.consistentRead && q.IndexName == ""),
		}
		if q.IndexName != "" {
			in.IndexName = aws.String(q.IndexName)
		}
		if len(q.Names) > 0 {
			in.ExpressionAttributeNames = q.Names
		}
		if q.Filter != "" {
			in.FilterExpression = aws.String(q.Filter)
		}
		out, err := s.client.Query(ctx, in)
		if err != nil {
			s.failed(q.KeyCondition, err)
			return nil, fmt.Errorf("dynamodb query: %w", err)
		}
		items := make([]map[string]any, 0, len(out.Items))
		for _, item := range out.Items {
			items = append(items, decodeItem(item))
		}
		return json.Marshal(items)
	}
}

func (s *Source) failed(what string, err error) {
	if s.log == nil {
		return
	}
	s.log.Warn("dynamodb read failed", logger.NewField("table", s.table), logger.NewField("target", what), logger.NewField("error", err))
}

func decodeItem(item map[string]types.AttributeValue) map[string]any {
	out := make(map[string]any, len(item))
	for name, av := range item {
		out[name] = decodeAttribute(av)
	}
	return out
}

// decodeAttribute maps an attribute to its natural JSON form. Binary values
// become base64 strings; numbers keep their exact decimal text.
func decodeAttribute(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return decodeNumber(v.Value)
	case *types.AttributeValueMemberBOOL:
		return v.Value
	case *types.AttributeValueMemberNULL:
		return nil
	case *types.AttributeValueMemberB:
		return base64.StdEncoding.EncodeToString(v.Value)
	case *types.AttributeValueMemberSS:
		return append([]string(nil), v.Value...)
	case *types.AttributeValueMemberNS:
		out := make([]any, 0, len(v.Value))
		for _, n := range v.Value {
			out = append(out, decodeNumber(n))
		}
		return out
	case *types.AttributeValueMemberBS:
		out := make([]string, 0, len(v.Value))
		for _, b := range v.Value {
			out = append(out, base64.StdEncoding.EncodeToString(b))
		}
		return out
	case *types.AttributeValueMemberL:
		out := make([]any, 0, len(v.Value))
		for _, e := range v.Value {
			out = append(out, decodeAttribute(e))
		}
		return out
	case *types.AttributeValueMemberM:
		return decodeItem(v.Value)
	default:
		return nil
	}
}

// decodeNumber keeps the exact decimal text. Numbers outside float64 range
// fall back to strings so encoding never fails.
func decodeNumber(n string) any {
	if _, err := strconv.ParseFloat(n, 64); err != nil {
		return n
	}
	return json.Number(n)
}
