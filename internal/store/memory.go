package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// MemoryStore is an in-process Store. Rows are kept per table in insertion
// order; rows inserted without an id get a sequential integer id. It is
// used by tests and by --driver memory dry runs.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]Row
	seq    int64
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Row)}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// Rows returns a copy of every row in table, ordered by id.
func (m *MemoryStore) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, copyRow(r, nil))
	}
	sortRows(out, DefaultOrder)
	return out
}

func (m *MemoryStore) Fetch(ctx context.Context, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Table == "" {
		return nil, eris.New("memory: query table is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	matched, err := m.match(q.Table, q.Filter)
	if err != nil {
		return nil, err
	}
	sortRows(matched, q.order())

	if q.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	out := make([]Row, len(matched))
	for i, r := range matched {
		out[i] = copyRow(r, q.Columns)
	}
	return out, nil
}

func (m *MemoryStore) Count(ctx context.Context, table string, f Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	matched, err := m.match(table, f)
	return int64(len(matched)), err
}

func (m *MemoryStore) Distinct(ctx context.Context, table, column string, f Filter) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	matched, err := m.match(table, f.And(NotNull(column)))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []any
	for _, r := range matched {
		k := valueKey(r[column])
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r[column])
	}
	sort.SliceStable(out, func(i, j int) bool { return compareValues(out[i], out[j]) < 0 })
	return out, nil
}

func (m *MemoryStore) Insert(ctx context.Context, table string, rows []Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], m.newRow(r))
	}
	return int64(len(rows)), nil
}

func (m *MemoryStore) Update(ctx context.Context, table string, ids []string, changes Row, guard Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, eris.New("memory: update has no changes")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	var n int64
	for _, r := range m.tables[table] {
		if !idSet[r.String("id")] {
			continue
		}
		ok, err := matches(r, guard)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		for c, v := range changes {
			r[c] = derefArg(v)
		}
		n++
	}
	return n, nil
}

func (m *MemoryStore) Delete(ctx context.Context, table string, f Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []Row
	var n int64
	for _, r := range m.tables[table] {
		ok, err := matches(r, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.tables[table] = kept
	return n, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, table string, conflictKeys []string, rows []Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(conflictKeys) == 0 {
		return 0, eris.New("memory: upsert: no conflict keys specified")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, in := range rows {
		var existing Row
		for _, r := range m.tables[table] {
			if sameKey(r, in, conflictKeys) {
				existing = r
				break
			}
		}
		if existing == nil {
			m.tables[table] = append(m.tables[table], m.newRow(in))
			n++
			continue
		}
		for _, c := range updateColumns(in.Columns(), conflictKeys) {
			existing[c] = derefArg(in[c])
		}
		n++
	}
	return n, nil
}

func (m *MemoryStore) newRow(in Row) Row {
	r := make(Row, len(in)+1)
	for c, v := range in {
		r[c] = derefArg(v)
	}
	if IsNullValue(r["id"]) {
		m.seq++
		r["id"] = m.seq
	}
	return r
}

func (m *MemoryStore) match(table string, f Filter) ([]Row, error) {
	var out []Row
	for _, r := range m.tables[table] {
		ok, err := matches(r, f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func matches(r Row, f Filter) (bool, error) {
	for _, c := range f {
		v := r[c.Column]
		switch c.Op {
		case OpEq:
			if IsNullValue(v) || IsNullValue(c.Value) || compareValues(v, c.Value) != 0 {
				return false, nil
			}
		case OpIsNull:
			if !IsNullValue(v) {
				return false, nil
			}
		case OpNotNull:
			if IsNullValue(v) {
				return false, nil
			}
		case OpIn:
			values, ok := c.Value.([]string)
			if !ok {
				return false, eris.Errorf("memory: IN on %s needs []string, got %T", c.Column, c.Value)
			}
			found := false
			for _, want := range values {
				if !IsNullValue(v) && r.String(c.Column) == want {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, eris.Errorf("memory: unknown filter op %d", c.Op)
		}
	}
	return true, nil
}

func sameKey(a, b Row, keys []string) bool {
	for _, k := range keys {
		if IsNullValue(a[k]) || IsNullValue(b[k]) || compareValues(a[k], b[k]) != 0 {
			return false
		}
	}
	return true
}

func copyRow(r Row, cols []string) Row {
	if len(cols) == 0 {
		out := make(Row, len(r))
		for c, v := range r {
			out[c] = v
		}
		return out
	}
	out := make(Row, len(cols))
	for _, c := range cols {
		out[c] = r[c]
	}
	return out
}

func sortRows(rows []Row, col string) {
	sort.SliceStable(rows, func(i, j int) bool {
		return compareValues(rows[i][col], rows[j][col]) < 0
	})
}

// compareValues orders nulls first, then numbers, times and strings by
// their natural order. Mixed kinds fall back to their text form.
func compareValues(a, b any) int {
	an, bn := IsNullValue(a), IsNullValue(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if at, ok := AsTime(a); ok {
		if bt, ok := AsTime(b); ok {
			return at.Compare(bt)
		}
	}
	return strings.Compare(valueKey(a), valueKey(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func valueKey(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case string:
		return t
	}
	return fmt.Sprint(v)
}
