package db

import (
	"context"
	"strconv"
	"strings"
)

// Driver names accepted in configuration.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Row is a single-row query result.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row query result. Callers must Close it.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier runs statements against a connection or an open transaction.
// Statements use "?" placeholders on every backend.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

// Conn is a database handle that can open transactions.
type Conn interface {
	Querier
	// WithTx runs fn inside a read-write transaction, committing when fn
	// returns nil and rolling back otherwise.
	WithTx(ctx context.Context, fn func(Querier) error) error
	// WithReadTx runs fn inside a transaction that observes a single
	// consistent snapshot.
	WithReadTx(ctx context.Context, fn func(Querier) error) error
	Driver() string
	Ping(ctx context.Context) error
	Close()
}

// rebind rewrites "?" placeholders to PostgreSQL's "$n" form, leaving quoted
// literals untouched.
func rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var (
		b        strings.Builder
		n        int
		inQuote  bool
		quoteEnd rune
	)
	b.Grow(len(query) + 8)
	for _, r := range query {
		switch {
		case inQuote:
			if r == quoteEnd {
				inQuote = false
			}
		case r == '\'' || r == '"':
			inQuote = true
			quoteEnd = r
		case r == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
