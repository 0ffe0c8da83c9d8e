package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "outbound.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// contractStores returns every Store implementation that runs without a
// server.
func contractStores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": newTestSQLite(t),
	}
}

func seedCustomers(t *testing.T, s Store) {
	t.Helper()
	n, err := s.Insert(context.Background(), TableCustomers, []Row{
		{"id": "c1", "phone": "0912345678"},
		{"id": "c2", "phone": "0987654321", "name": "An"},
		{"id": "c3", "phone": "0912345678"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestStoreContract_FetchPagesInIDOrder(t *testing.T) {
	for name, s := range contractStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedCustomers(t, s)

			page, err := s.Fetch(ctx, Query{Table: TableCustomers, Columns: []string{"id", "phone"}, Limit: 2})
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, "c1", page[0].String("id"))
			assert.Equal(t, "c2", page[1].String("id"))

			page, err = s.Fetch(ctx, Query{Table: TableCustomers, Offset: 2, Limit: 2})
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "c3", page[0].String("id"))

			page, err = s.Fetch(ctx, Query{Table: TableCustomers, Offset: 3, Limit: 2})
			require.NoError(t, err)
			assert.Empty(t, page)
		})
	}
}

func TestStoreContract_Filters(t *testing.T) {
	for name, s := range contractStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedCustomers(t, s)

			n, err := s.Count(ctx, TableCustomers, Where(Eq("phone", "0912345678")))
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			n, err = s.Count(ctx, TableCustomers, Where(IsNull("name")))
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			n, err = s.Count(ctx, TableCustomers, Where(NotNull("name")))
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			n, err = s.Count(ctx, TableCustomers, Where(In("id", []string{"c1", "c3", "zz"})))
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			n, err = s.Count(ctx, TableCustomers, Where(In("id", nil)))
			require.NoError(t, err)
			assert.Zero(t, n)

			n, err = s.Count(ctx, TableCustomers, Where(Eq("phone", nil)))
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStoreContract_GuardedUpdate(t *testing.T) {
	for name, s := range contractStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedCustomers(t, s)

			n, err := s.Update(ctx, TableCustomers, []string{"c1", "c2"}, Row{"name": "Binh"}, Where(IsNull("name")))
			require.NoError(t, err)
			assert.Equal(t, int64(1), n, "c2 already has a name and must not change")

			rows, err := s.Fetch(ctx, Query{Table: TableCustomers, Filter: Where(In("id", []string{"c1", "c2"}))})
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "Binh", rows[0].String("name"))
			assert.Equal(t, "An", rows[1].String("name"))

			n, err = s.Update(ctx, TableCustomers, nil, Row{"name": "x"}, nil)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStoreContract_DeleteAndDistinct(t *testing.T) {
	for name, s := range contractStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedCustomers(t, s)

			phones, err := s.Distinct(ctx, TableCustomers, "phone", nil)
			require.NoError(t, err)
			assert.Equal(t, []any{"0912345678", "0987654321"}, phones)

			n, err := s.Delete(ctx, TableCustomers, Where(Eq("id", "c3")))
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			n, err = s.Delete(ctx, TableCustomers, nil)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			total, err := s.Count(ctx, TableCustomers, nil)
			require.NoError(t, err)
			assert.Zero(t, total)
		})
	}
}

func TestStoreContract_UpsertKeepsID(t *testing.T) {
	for name, s := range contractStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Upsert(ctx, TableCampaignTypes, []string{"name"}, []Row{
				{"id": "t1", "name": "birthday", "conversion_intent": "informational"},
			})
			require.NoError(t, err)
			_, err = s.Upsert(ctx, TableCampaignTypes, []string{"name"}, []Row{
				{"id": "t9", "name": "birthday", "conversion_intent": "sales"},
				{"id": "t2", "name": "otp", "conversion_intent": "informational"},
			})
			require.NoError(t, err)

			rows, err := s.Fetch(ctx, Query{Table: TableCampaignTypes})
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "t1", rows[0].String("id"))
			assert.Equal(t, "sales", rows[0].String("conversion_intent"))
			assert.Equal(t, "t2", rows[1].String("id"))
		})
	}
}

func TestStoreContract_DateRoundTrip(t *testing.T) {
	month := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	for name, s := range contractStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Insert(ctx, TableMonthlyStats, []Row{
				{"report_month": month, "channel": "sms", "total_messages": int64(3), "total_cost": 1950.5},
				{"report_month": month.AddDate(0, 1, 0), "channel": "sms", "total_messages": int64(1), "total_cost": 650.0},
			})
			require.NoError(t, err)

			rows, err := s.Fetch(ctx, Query{Table: TableMonthlyStats, Filter: Where(Eq("report_month", month))})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.True(t, month.Equal(rows[0].Time("report_month")))
			assert.Equal(t, int64(3), rows[0].Int("total_messages"))
			assert.InDelta(t, 1950.5, rows[0].Float("total_cost"), 1e-9)

			months, err := s.Distinct(ctx, TableMonthlyStats, "report_month", nil)
			require.NoError(t, err)
			require.Len(t, months, 2)
			first, ok := AsTime(months[0])
			require.True(t, ok)
			assert.True(t, month.Equal(first))
		})
	}
}
