package database

import (
	"context"
	"database/sql"
	"fmt"
	nurl "net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DB is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// FilterCustomQuery filters all query values starting with `x-`
func FilterCustomQuery(u *nurl.URL) *nurl.URL {
	ux := *u
	vx := make(nurl.Values)
	for k, v := range ux.Query() {
		if len(k) <= 1 || k[0:2] != "x-" {
			vx[k] = v
		}
	}
	ux.RawQuery = vx.Encode()
	return &ux
}

// ApplyCustomQuery copies the x-meta-schema and x-meta-table connection
// string parameters into config unless config already sets them.
func ApplyCustomQuery(u *nurl.URL, config *Config) {
	q := u.Query()
	if config.MetaSchemaName == "" {
		config.MetaSchemaName = q.Get("x-meta-schema")
	}
	if config.MetaTableName == "" {
		config.MetaTableName = q.Get("x-meta-table")
	}
}

// SplitTableName splits schema.table. The schema is empty when name
// has no dot.
func SplitTableName(name string) (schema, table string) {
	if i := strings.LastIndex(name, "."); i > 0 && i < len(name)-1 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// WithTimeout bounds ctx by d when d is positive.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// ConnectWithRetry calls connect until it succeeds, up to retries extra
// times with exponential backoff. Errors wrapped with backoff.Permanent
// stop immediately.
func ConnectWithRetry(ctx context.Context, retries uint, connect func() error) error {
	if retries == 0 {
		return connect()
	}
	b := backoff.WithMaxRetries(backoff.WithContext(backoff.NewExponentialBackOff(), ctx), uint64(retries))
	return backoff.Retry(connect, b)
}

// Permanent marks err as not worth retrying in ConnectWithRetry.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Inserter builds multi row INSERT statements for platforms without a
// native bulk copy protocol.
type Inserter struct {
	// Quote quotes an identifier.
	Quote func(string) string
	// Placeholder returns the bind parameter for the n-th argument, from 1.
	Placeholder func(n int) string
	// MaxParams caps the bind parameters of one statement.
	MaxParams int
}

// Insert inserts rows into table, splitting them over as many statements
// as MaxParams requires.
func (in Inserter) Insert(ctx context.Context, db DB, schema, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 || len(columns) == 0 {
		return nil
	}
	perStmt := len(rows)
	if in.MaxParams > 0 {
		perStmt = in.MaxParams / len(columns)
		if perStmt < 1 {
			return fmt.Errorf("table %s has more columns than bind parameters allowed (%d)", table, in.MaxParams)
		}
	}

	target := in.Quote(table)
	if schema != "" {
		target = in.Quote(schema) + "." + target
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = in.Quote(c)
	}
	prefix := "INSERT INTO " + target + " (" + strings.Join(cols, ", ") + ") VALUES "

	for start := 0; start < len(rows); start += perStmt {
		end := start + perStmt
		if end > len(rows) {
			end = len(rows)
		}
		var b strings.Builder
		b.WriteString(prefix)
		args := make([]any, 0, (end-start)*len(columns))
		for i, row := range rows[start:end] {
			if len(row) != len(columns) {
				return fmt.Errorf("row %d has %d values, expected %d", start+i+1, len(row), len(columns))
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			for j, v := range row {
				if j > 0 {
					b.WriteString(", ")
				}
				args = append(args, v)
				b.WriteString(in.Placeholder(len(args)))
			}
			b.WriteByte(')')
		}
		query := b.String()
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return &Error{OrigErr: err, Err: "bulk insert failed", Query: Excerpt(query)}
		}
	}
	return nil
}

// QuoteDouble quotes an ANSI identifier.
func QuoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuestionMark is the Placeholder of drivers binding with ?.
func QuestionMark(int) string {
	return "?"
}
