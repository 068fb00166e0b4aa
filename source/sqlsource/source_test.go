package sqlsource

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goforj/atmcache"
	"github.com/goforj/atmcache/cachetest"
)

func newSQLiteSource(t *testing.T, opts ...Option) *Source {
	t.Helper()
	db, err := sql.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (id, name, age) VALUES (1, 'Ada', 36), (2, 'Grace', 45), (3, 'Linus', 21)`)
	require.NoError(t, err)

	src, err := New(db, DriverSQLite, opts...)
	require.NoError(t, err)
	return src
}

func TestProducerEncodesRowsAsJSON(t *testing.T) {
	src := newSQLiteSource(t)
	body, err := src.Producer(Query{
		Table:   "users",
		Columns: []string{"id", "name"},
		Where:   "age > ?",
		Args:    []any{30},
		OrderBy: []Order{Desc("age")},
	})(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":2,"name":"Grace"},{"id":1,"name":"Ada"}]`, string(body))
}

func TestProducerAppliesDefaultLimit(t *testing.T) {
	src := newSQLiteSource(t)
	for i := 10; i < 100; i++ {
		_, err := src.DB().Exec(`INSERT INTO users (id, name, age) VALUES (?, 'user', 1)`, i)
		require.NoError(t, err)
	}
	body, err := src.Producer(Query{Table: "users"})(context.Background())
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(body, &rows))
	assert.Len(t, rows, DefaultLimit)

	body, err = src.Producer(Query{Table: "users", Limit: 2})(context.Background())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &rows))
	assert.Len(t, rows, 2)
}

func TestProducerEmptyResult(t *testing.T) {
	q := Query{Table: "users", Where: "id = ?", Args: []any{404}}

	body, err := newSQLiteSource(t).Producer(q)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))

	body, err = newSQLiteSource(t, WithEmptyAsNoValue()).Producer(q)(context.Background())
	assert.ErrorIs(t, err, atmcache.ErrNoValue)
	assert.Nil(t, body)
}

func TestProducerPreSet(t *testing.T) {
	src := newSQLiteSource(t, WithPreSet(func(_ context.Context, rows []map[string]any) (any, error) {
		names := make([]any, 0, len(rows))
		for _, row := range rows {
			names = append(names, row["name"])
		}
		return map[string]any{"count": len(rows), "names": names}, nil
	}))
	body, err := src.Producer(Query{Table: "users", OrderBy: []Order{Asc("id")}})(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":3,"names":["Ada","Grace","Linus"]}`, string(body))
}

func TestProducerPreSetNilAndError(t *testing.T) {
	q := Query{Table: "users"}
	nilSrc := newSQLiteSource(t, WithPreSet(func(context.Context, []map[string]any) (any, error) { return nil, nil }))
	_, err := nilSrc.Producer(q)(context.Background())
	assert.ErrorIs(t, err, atmcache.ErrNoValue)

	boom := errors.New("boom")
	errSrc := newSQLiteSource(t, WithPreSet(func(context.Context, []map[string]any) (any, error) { return nil, boom }))
	_, err = errSrc.Producer(q)(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestProducerReportsBackendFailures(t *testing.T) {
	var (
		mu     sync.Mutex
		failed []Query
	)
	src := newSQLiteSource(t, WithOnFail(func(q Query, err error) {
		mu.Lock()
		failed = append(failed, q)
		mu.Unlock()
	}))
	c := atmcache.New()

	body, ok, err := src.Fetch(context.Background(), c, Query{Table: "missing_table"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, body)
	assert.Equal(t, 0, c.Len(), "failed queries must not be cached")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failed, 1)
	assert.Equal(t, "missing_table", failed[0].Table)
}

func TestFetchCachesQueryResults(t *testing.T) {
	src := newSQLiteSource(t)
	c := atmcache.New(atmcache.WithDefaultTTL(time.Minute))
	q := Query{Table: "users", Columns: []string{"name"}, Where: "id = ?", Args: []any{1}}

	body, ok, err := src.Fetch(context.Background(), c, q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"name":"Ada"}]`, string(body))

	_, err = src.DB().Exec(`UPDATE users SET name = 'Changed' WHERE id = 1`)
	require.NoError(t, err)

	body, ok, err = src.Fetch(context.Background(), c, q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"name":"Ada"}]`, string(body), "fresh entry must be served from cache")
}

func TestFetchRejectsInvalidQuery(t *testing.T) {
	src := newSQLiteSource(t)
	c := atmcache.New()
	for _, q := range []Query{
		{Table: ""},
		{Table: "users; DROP TABLE users"},
		{Table: "users", Columns: []string{"name, age"}},
		{Table: "users", OrderBy: []Order{Asc("1=1")}},
		{Table: "users", Where: "id = ?"},
	} {
		_, _, err := src.Fetch(context.Background(), c, q)
		assert.Error(t, err, "query %+v", q)
	}
	assert.Equal(t, 0, c.Len())
}

func TestKeyDerivation(t *testing.T) {
	src := newSQLiteSource(t)

	a, err := src.Key(Query{Table: "users", Where: "id = ?", Args: []any{1}})
	require.NoError(t, err)
	b, err := src.Key(Query{Table: "users", Where: "id = ?", Args: []any{1}, Limit: DefaultLimit})
	require.NoError(t, err)
	assert.Equal(t, a, b, "default limit is part of the key")
	assert.Equal(t, `users{"where":"id = ?","args":[1],"limit":50}`, a)

	other, err := src.Key(Query{Table: "users", Where: "id = ?", Args: []any{2}})
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	alt, err := src.Key(Query{Table: "users", AltKey: "user-one"})
	require.NoError(t, err)
	assert.Equal(t, "user-one", alt)
}

func TestQuerySQLDialects(t *testing.T) {
	q := Query{
		Table:   "public.users",
		Columns: []string{"id", "name"},
		Where:   "age > ? AND name <> '?'  AND id < ?",
		Args:    []any{1, 2},
		OrderBy: []Order{Asc("name"), Desc("id")},
		Limit:   5,
	}
	assert.Equal(t,
		"SELECT id, name FROM public.users WHERE age > ? AND name <> '?'  AND id < ? ORDER BY name ASC, id DESC LIMIT 5",
		q.sql(DriverMySQL))
	assert.Equal(t,
		"SELECT id, name FROM public.users WHERE age > $1 AND name <> '?'  AND id < $2 ORDER BY name ASC, id DESC LIMIT 5",
		q.sql(DriverPostgres))
	assert.Equal(t, "SELECT * FROM users LIMIT 50", Query{Table: "users"}.sql(DriverSQLite))
}

func TestOpenValidatesArguments(t *testing.T) {
	_, err := Open(context.Background(), "", "")
	assert.Error(t, err)
	_, err = New(nil, DriverSQLite)
	assert.Error(t, err)

	src, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	assert.NoError(t, src.Close())
}

func TestSQLSourceProducerContract(t *testing.T) {
	src := newSQLiteSource(t, WithEmptyAsNoValue())
	cachetest.RunProducerContract(t, cachetest.Options{
		Present: src.Producer(Query{Table: "users", Columns: []string{"name"}, Where: "id = ?", Args: []any{2}}),
		Want:    []byte(`[{"name":"Grace"}]`),
		Absent:  src.Producer(Query{Table: "users", Where: "id = ?", Args: []any{404}}),
	})
}
