// Package store is the narrow row-access contract the pipeline runs on:
// paged fetches, counts, inserts, guarded updates and deletes over named
// tables. Postgres, SQLite and in-memory implementations share the contract.
package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Tables used by the pipeline.
const (
	TableMessages      = "sms_zns_messages"
	TableCustomers     = "customers"
	TableCampaignTypes = "sms_zns_campaign_types"
	TableMonthlyStats  = "sms_monthly_stats_cache"
	TableCampaignStats = "sms_campaign_stats_cache"
)

// DefaultOrder is the pagination order used when a Query names none.
const DefaultOrder = "id"

// Store is the row-store contract. Every method may fail with a transient
// error (resilience.IsTransient) or a validation error
// (resilience.IsValidation); callers decide whether to retry.
type Store interface {
	// Fetch returns one ordered page of rows.
	Fetch(ctx context.Context, q Query) ([]Row, error)
	// Count returns the number of rows matching f.
	Count(ctx context.Context, table string, f Filter) (int64, error)
	// Distinct returns the distinct non-null values of column among rows
	// matching f, in ascending order.
	Distinct(ctx context.Context, table, column string, f Filter) ([]any, error)
	// Insert writes rows and returns the number inserted.
	Insert(ctx context.Context, table string, rows []Row) (int64, error)
	// Update applies changes to rows whose id is in ids and which also match
	// guard. It returns the number of rows changed.
	Update(ctx context.Context, table string, ids []string, changes Row, guard Filter) (int64, error)
	// Delete removes rows matching f. An empty filter deletes every row.
	Delete(ctx context.Context, table string, f Filter) (int64, error)
	// Upsert inserts rows, updating the non-key columns of rows that collide
	// on conflictKeys. The id column is never rewritten.
	Upsert(ctx context.Context, table string, conflictKeys []string, rows []Row) (int64, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Query describes one page read.
type Query struct {
	Table   string
	Columns []string // nil selects every column
	Filter  Filter
	OrderBy string // defaults to DefaultOrder
	Offset  int
	Limit   int
}

func (q Query) order() string {
	if q.OrderBy == "" {
		return DefaultOrder
	}
	return q.OrderBy
}

// Op is a filter operator.
type Op int

const (
	OpEq Op = iota
	OpIsNull
	OpNotNull
	OpIn
)

// Cond is a single predicate on a column.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

// Filter is a conjunction of conditions.
type Filter []Cond

// Eq matches rows where column equals v. A nil v never matches; use IsNull.
func Eq(column string, v any) Cond { return Cond{Column: column, Op: OpEq, Value: v} }

// IsNull matches rows where column is null.
func IsNull(column string) Cond { return Cond{Column: column, Op: OpIsNull} }

// NotNull matches rows where column is not null.
func NotNull(column string) Cond { return Cond{Column: column, Op: OpNotNull} }

// In matches rows where column is one of values. No values matches nothing.
func In(column string, values []string) Cond { return Cond{Column: column, Op: OpIn, Value: values} }

// Where builds a Filter from conditions.
func Where(conds ...Cond) Filter { return Filter(conds) }

// And returns a new filter with conds appended; f is not modified.
func (f Filter) And(conds ...Cond) Filter {
	out := make(Filter, 0, len(f)+len(conds))
	out = append(out, f...)
	return append(out, conds...)
}

// Row is one record keyed by column name.
type Row map[string]any

// Columns returns the sorted column names of r.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// String returns the column as a string; null is "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// StringPtr returns the column as *string; null is nil.
func (r Row) StringPtr(col string) *string {
	if IsNullValue(r[col]) {
		return nil
	}
	s := r.String(col)
	return &s
}

// Int returns the column as int64; null and unparsable values are 0.
func (r Row) Int(col string) int64 {
	switch v := r[col].(type) {
	case int:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float32:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		return n
	default:
		return 0
	}
}

// Float returns the column as float64; null and unparsable values are 0.
func (r Row) Float(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		return f
	default:
		return 0
	}
}

// Time returns the column as a time; null and unparsable values are the
// zero time.
func (r Row) Time(col string) time.Time {
	t, _ := AsTime(r[col])
	return t
}

// TimePtr returns the column as *time.Time; null is nil.
func (r Row) TimePtr(col string) *time.Time {
	t, ok := AsTime(r[col])
	if !ok {
		return nil
	}
	return &t
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// AsTime converts a stored date/timestamp value (time.Time or text) to a
// time.Time. Drivers disagree on how dates come back; this hides that.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	case []byte:
		return AsTime(string(t))
	}
	return time.Time{}, false
}

// IsNullValue reports whether v represents SQL NULL.
func IsNullValue(v any) bool {
	switch p := v.(type) {
	case nil:
		return true
	case *string:
		return p == nil
	case *time.Time:
		return p == nil
	case *int64:
		return p == nil
	}
	return false
}
