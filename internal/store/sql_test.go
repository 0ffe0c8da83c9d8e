package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name     string
		d        dialect
		q        Query
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "postgres all columns",
			d:        pgDialect,
			q:        Query{Table: "customers", Limit: 10},
			wantSQL:  `SELECT * FROM "customers" ORDER BY "id" LIMIT $1`,
			wantArgs: []any{10},
		},
		{
			name:     "sqlite in list",
			d:        sqliteDialect,
			q:        Query{Table: "customers", Filter: Where(In("id", []string{"a", "b"}))},
			wantSQL:  `SELECT * FROM "customers" WHERE "id" IN (?, ?) ORDER BY "id"`,
			wantArgs: []any{"a", "b"},
		},
		{
			name:     "sqlite offset without limit",
			d:        sqliteDialect,
			q:        Query{Table: "customers", Offset: 5, OrderBy: "phone"},
			wantSQL:  `SELECT * FROM "customers" ORDER BY "phone" LIMIT -1 OFFSET ?`,
			wantArgs: []any{5},
		},
		{
			name:    "empty in list matches nothing",
			d:       pgDialect,
			q:       Query{Table: "customers", Filter: Where(In("id", []string{}))},
			wantSQL: `SELECT * FROM "customers" WHERE 1=0 ORDER BY "id"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := buildSelect(tt.d, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildSelect_Errors(t *testing.T) {
	_, _, err := buildSelect(pgDialect, Query{})
	assert.ErrorContains(t, err, "table is empty")

	_, _, err = buildSelect(pgDialect, Query{Table: "t", Filter: Where(Cond{Column: "id", Op: OpIn, Value: 3})})
	assert.ErrorContains(t, err, "needs []string")

	_, _, err = buildSelect(pgDialect, Query{Table: "t", Filter: Where(Cond{Op: OpEq})})
	assert.ErrorContains(t, err, "column is empty")
}

func TestBuildUpdate_ColumnOrderIsStable(t *testing.T) {
	sql, args, err := buildUpdate(sqliteDialect, "sms_zns_messages", []string{"m1"},
		Row{"voucher_code": "SN001A", "campaign_type_id": "t1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "sms_zns_messages" SET "campaign_type_id" = ?, "voucher_code" = ? WHERE "id" IN (?)`, sql)
	assert.Equal(t, []any{"t1", "SN001A", "m1"}, args)

	_, _, err = buildUpdate(sqliteDialect, "t", []string{"m1"}, Row{}, nil)
	assert.Error(t, err)
}

func TestSQLiteArg_FormatsTimesInUTC(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	got := sqliteArg(time.Date(2025, 2, 1, 7, 0, 0, 0, loc))
	assert.Equal(t, "2025-02-01T00:00:00Z", got)

	var nilStr *string
	assert.Nil(t, sqliteArg(nilStr))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
	assert.Equal(t, `"a", "b"`, quoteIdents([]string{"a", "b"}))
}
