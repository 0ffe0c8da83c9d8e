package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name string
	// placeholder renders the n-th (1-based) bind parameter.
	placeholder func(n int) string
	// arrayIn binds an IN list as a single array parameter (= ANY($n)).
	arrayIn bool
	// arg converts a Go value to a driver argument.
	arg func(v any) any
}

var pgDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	arrayIn:     true,
	arg:         derefArg,
}

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	arg:         sqliteArg,
}

// builder accumulates a statement's bind arguments.
type builder struct {
	d    dialect
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, b.d.arg(v))
	return b.d.placeholder(len(b.args))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = quoteIdent(n)
	}
	return strings.Join(q, ", ")
}

// where renders f as a WHERE clause (with leading space) or "".
func (b *builder) where(f Filter) (string, error) {
	if len(f) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(f))
	for _, c := range f {
		p, err := b.cond(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func (b *builder) cond(c Cond) (string, error) {
	if c.Column == "" {
		return "", eris.New("rowstore: filter column is empty")
	}
	col := quoteIdent(c.Column)
	switch c.Op {
	case OpEq:
		if IsNullValue(c.Value) {
			return "1=0", nil
		}
		return col + " = " + b.bind(c.Value), nil
	case OpIsNull:
		return col + " IS NULL", nil
	case OpNotNull:
		return col + " IS NOT NULL", nil
	case OpIn:
		values, ok := c.Value.([]string)
		if !ok {
			return "", eris.Errorf("rowstore: IN on %s needs []string, got %T", c.Column, c.Value)
		}
		if len(values) == 0 {
			return "1=0", nil
		}
		if b.d.arrayIn {
			return col + " = ANY(" + b.bind(values) + ")", nil
		}
		ph := make([]string, len(values))
		for i, v := range values {
			ph[i] = b.bind(v)
		}
		return col + " IN (" + strings.Join(ph, ", ") + ")", nil
	default:
		return "", eris.Errorf("rowstore: unknown filter op %d", c.Op)
	}
}

func buildSelect(d dialect, q Query) (string, []any, error) {
	if q.Table == "" {
		return "", nil, eris.New("rowstore: query table is empty")
	}
	b := &builder{d: d}
	cols := "*"
	if len(q.Columns) > 0 {
		cols = quoteIdents(q.Columns)
	}
	where, err := b.where(q.Filter)
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT " + cols + " FROM " + quoteIdent(q.Table) + where + " ORDER BY " + quoteIdent(q.order())
	if q.Limit > 0 {
		sql += " LIMIT " + b.bind(q.Limit)
	}
	if q.Offset > 0 {
		if q.Limit <= 0 && d.name == "sqlite" {
			sql += " LIMIT -1"
		}
		sql += " OFFSET " + b.bind(q.Offset)
	}
	return sql, b.args, nil
}

func buildCount(d dialect, table string, f Filter) (string, []any, error) {
	b := &builder{d: d}
	where, err := b.where(f)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + quoteIdent(table) + where, b.args, nil
}

func buildDistinct(d dialect, table, column string, f Filter) (string, []any, error) {
	b := &builder{d: d}
	where, err := b.where(f.And(NotNull(column)))
	if err != nil {
		return "", nil, err
	}
	col := quoteIdent(column)
	return "SELECT DISTINCT " + col + " FROM " + quoteIdent(table) + where + " ORDER BY " + col, b.args, nil
}

func buildUpdate(d dialect, table string, ids []string, changes Row, guard Filter) (string, []any, error) {
	if len(changes) == 0 {
		return "", nil, eris.New("rowstore: update has no changes")
	}
	b := &builder{d: d}
	cols := changes.Columns()
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = quoteIdent(c) + " = " + b.bind(changes[c])
	}
	where, err := b.where(Where(In("id", ids)).And(guard...))
	if err != nil {
		return "", nil, err
	}
	return "UPDATE " + quoteIdent(table) + " SET " + strings.Join(sets, ", ") + where, b.args, nil
}

func buildDelete(d dialect, table string, f Filter) (string, []any, error) {
	b := &builder{d: d}
	where, err := b.where(f)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + quoteIdent(table) + where, b.args, nil
}

// unionColumns returns the sorted union of column names across rows.
func unionColumns(rows []Row) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range rows {
		for c := range r {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				cols = append(cols, c)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// rowValues renders rows[i] positionally against cols; missing columns are
// nil.
func rowValues(d dialect, cols []string, rows []Row) func(i int) []any {
	return func(i int) []any {
		vals := make([]any, len(cols))
		for j, c := range cols {
			vals[j] = d.arg(rows[i][c])
		}
		return vals
	}
}

// updateColumns is cols minus the conflict keys and id.
func updateColumns(cols, conflictKeys []string) []string {
	skip := map[string]bool{"id": true}
	for _, k := range conflictKeys {
		skip[k] = true
	}
	out := []string{}
	for _, c := range cols {
		if !skip[c] {
			out = append(out, c)
		}
	}
	return out
}

// derefArg unwraps typed nil pointers so drivers see a plain NULL.
func derefArg(v any) any {
	switch p := v.(type) {
	case *string:
		if p == nil {
			return nil
		}
		return *p
	case *time.Time:
		if p == nil {
			return nil
		}
		return *p
	case *int64:
		if p == nil {
			return nil
		}
		return *p
	}
	return v
}

// sqliteTimeLayout is the text form dates and timestamps are stored in.
// Writes and equality filters both go through it, so comparisons agree.
const sqliteTimeLayout = time.RFC3339Nano

func sqliteArg(v any) any {
	v = derefArg(v)
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return v
}
