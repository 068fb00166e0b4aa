// Package sqlsource produces cache values from SQL queries. Result sets are
// encoded as JSON arrays of row objects keyed by column name.
package sqlsource

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	logger "github.com/harwoeck/liblog/contract"

	"github.com/goforj/atmcache"
)

// PreSetFunc transforms rows before they are cached. Returning nil stores nothing.
type PreSetFunc func(ctx context.Context, rows []map[string]any) (any, error)

// Source runs Queries against a database.
type Source struct {
	db         *sql.DB
	driverName string
	preSet     PreSetFunc
	onFail     func(q Query, err error)
	emptyMiss  bool
	log        logger.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithPreSet registers a transform applied to every result set before caching.
func WithPreSet(fn PreSetFunc) Option {
	return func(s *Source) { s.preSet = fn }
}

// WithOnFail registers a side channel for backend errors. Failed queries are
// never cached regardless.
func WithOnFail(fn func(q Query, err error)) Option {
	return func(s *Source) { s.onFail = fn }
}

// WithEmptyAsNoValue reports zero-row results as atmcache.ErrNoValue instead
// of caching an empty array.
func WithEmptyAsNoValue() Option {
	return func(s *Source) { s.emptyMiss = true }
}

// WithLogger attaches a structured logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Source) { s.log = log.Named("sqlsource") }
}

// Open connects to dsn with one of the registered drivers and verifies the
// connection.
func Open(ctx context.Context, driverName, dsn string, opts ...Option) (*Source, error) {
	if driverName == "" || dsn == "" {
		return nil, errors.New("sql source requires driver name and dsn")
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, driverName, opts...)
}

// New wraps an existing pool. driverName selects the placeholder dialect.
func New(db *sql.DB, driverName string, opts ...Option) (*Source, error) {
	if db == nil {
		return nil, errors.New("sql source requires a database handle")
	}
	s := &Source{db: db, driverName: driverName}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB returns the underlying pool.
func (s *Source) DB() *sql.DB { return s.db }

// Close closes the underlying pool.
func (s *Source) Close() error { return s.db.Close() }

// Key returns the cache key for q.
func (s *Source) Key(q Query) (string, error) {
	if err := q.validate(); err != nil {
		return "", err
	}
	return q.key()
}

// Producer returns a producer running q. Invalid queries fail on every call.
func (s *Source) Producer(q Query) atmcache.Producer {
	return func(ctx context.Context) ([]byte, error) {
		if err := q.validate(); err != nil {
			return nil, err
		}
		rows, err := s.query(ctx, q)
		if err != nil {
			s.failed(q, err)
			return nil, err
		}
		if len(rows) == 0 && s.emptyMiss {
			return nil, atmcache.ErrNoValue
		}
		var out any = rows
		if s.preSet != nil {
			if out, err = s.preSet(ctx, rows); err != nil {
				return nil, fmt.Errorf("pre-set %s: %w", q.Table, err)
			}
			if out == nil {
				return nil, atmcache.ErrNoValue
			}
		}
		return json.Marshal(out)
	}
}

// Fetch reads q through c, running the query only when c needs a value.
func (s *Source) Fetch(ctx context.Context, c *atmcache.Cache, q Query, opts ...atmcache.FetchOption) ([]byte, bool, error) {
	key, err := s.Key(q)
	if err != nil {
		return nil, false, err
	}
	return c.Fetch(ctx, key, s.Producer(q), opts...)
}

func (s *Source) query(ctx context.Context, q Query) ([]map[string]any, error) {
	stmt := q.sql(s.driverName)
	if s.log != nil {
		s.log.Debug("running query", logger.NewField("table", q.Table), logger.NewField("sql", stmt))
	}
	rows, err := s.db.QueryContext(ctx, stmt, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Table, err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", q.Table, err)
	}
	return out, nil
}

func (s *Source) failed(q Query, err error) {
	if s.log != nil {
		s.log.Warn("query failed", logger.NewField("table", q.Table), logger.NewField("error", err))
	}
	if s.onFail != nil {
		s.onFail(q, err)
	}
}
