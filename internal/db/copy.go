// Package db holds the Postgres bulk-write helpers the row store is built on.
package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// RowFunc renders row i as values in column order.
type RowFunc func(i int) []any

// CopyFrom streams n rows into table with the COPY protocol. table may be
// schema-qualified ("public.sms_zns_messages"). Rows are rendered as COPY
// consumes them.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, n int, row RowFunc) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, eris.New("db: copy: no columns specified")
	}

	copied, err := pool.CopyFrom(ctx, Identifier(table), columns, rowSource(n, len(columns), row))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", table)
	}
	return copied, nil
}

// rowSource feeds rows 0..n-1 to COPY. A row whose width is not the column
// count aborts the copy.
func rowSource(n, width int, row RowFunc) pgx.CopyFromSource {
	i := 0
	return pgx.CopyFromFunc(func() ([]any, error) {
		if i >= n {
			return nil, nil
		}
		vals := row(i)
		if len(vals) != width {
			return nil, eris.Errorf("db: copy: row %d has %d values, want %d", i, len(vals), width)
		}
		i++
		return vals, nil
	})
}

// Identifier splits an optionally schema-qualified table name.
func Identifier(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}
