package sqlsource

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultLimit caps result sets when a Query leaves Limit unset.
const DefaultLimit = 50

var identPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Query describes a filtered, sorted, limited read of one table.
type Query struct {
	Table   string
	Columns []string
	// Where is a SQL predicate using ? placeholders, bound to Args.
	Where   string
	Args    []any
	OrderBy []Order
	Limit   int
	// AltKey replaces the derived cache key when set.
	AltKey string
}

// Order sorts by a single column.
type Order struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

// Asc sorts column ascending.
func Asc(column string) Order { return Order{Column: column} }

// Desc sorts column descending.
func Desc(column string) Order { return Order{Column: column, Desc: true} }

func (q Query) normalized() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return q
}

func (q Query) validate() error {
	if err := validateIdent(q.Table); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	for _, col := range q.Columns {
		if err := validateIdent(col); err != nil {
			return fmt.Errorf("column: %w", err)
		}
	}
	for _, o := range q.OrderBy {
		if err := validateIdent(o.Column); err != nil {
			return fmt.Errorf("order by: %w", err)
		}
	}
	if n := strings.Count(q.Where, "?"); n != len(q.Args) {
		return fmt.Errorf("where clause has %d placeholders but %d args", n, len(q.Args))
	}
	return nil
}

// key derives the cache key: the table name followed by the JSON encoding of
// everything that shapes the result set.
func (q Query) key() (string, error) {
	q = q.normalized()
	if q.AltKey != "" {
		return q.AltKey, nil
	}
	body, err := json.Marshal(struct {
		Columns []string `json:"columns,omitempty"`
		Where   string   `json:"where,omitempty"`
		Args    []any    `json:"args,omitempty"`
		OrderBy []Order  `json:"order_by,omitempty"`
		Limit   int      `json:"limit"`
	}{q.Columns, q.Where, q.Args, q.OrderBy, q.Limit})
	if err != nil {
		return "", fmt.Errorf("encode query key: %w", err)
	}
	return q.Table + string(body), nil
}

func (q Query) sql(driverName string) string {
	q = q.normalized()
	cols := "*"
	if len(q.Columns) > 0 {
		cols = strings.Join(q.Columns, ", ")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, q.Table)
	if q.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(q.Where)
	}
	if len(q.OrderBy) > 0 {
		parts := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, o.Column+" "+dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	b.WriteString(" LIMIT ")
	b.WriteString(strconv.Itoa(q.Limit))
	if positional(driverName) {
		return rebind(b.String())
	}
	return b.String()
}

// rebind rewrites ? placeholders to $n, skipping quoted literals.
func rebind(query string) string {
	var (
		b     strings.Builder
		n     int
		quote rune
	)
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func validateIdent(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("identifier is required")
	}
	for _, part := range strings.Split(name, ".") {
		if !identPartRE.MatchString(part) {
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	return nil
}
