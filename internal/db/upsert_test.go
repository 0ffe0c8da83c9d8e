package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var campaignTypes = UpsertConfig{
	Table:        "sms_zns_campaign_types",
	Columns:      []string{"id", "name", "conversion_intent"},
	ConflictKeys: []string{"name"},
	Preserve:     []string{"id"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, campaignTypes, 0, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_InvalidConfig(t *testing.T) {
	rows := rowsOf([][]any{{"1", "Birthday"}})
	tests := []struct {
		name string
		cfg  UpsertConfig
		want string
	}{
		{"no columns", UpsertConfig{Table: "t", ConflictKeys: []string{"name"}}, "no columns specified"},
		{"no conflict keys", UpsertConfig{Table: "t", Columns: []string{"id", "name"}}, "no conflict keys specified"},
		{"key not a column", UpsertConfig{Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"name"}}, `conflict key "name" is not a column`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BulkUpsert(context.TODO(), nil, tt.cfg, 1, rows)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBulkUpsert_MergesThroughStage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "_stage_sms_zns_campaign_types" (LIKE "sms_zns_campaign_types" INCLUDING DEFAULTS, "_stage_ord" bigserial) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_sms_zns_campaign_types"}, []string{"id", "name", "conversion_intent"}).
		WillReturnResult(2)
	mock.ExpectExec(regexp.QuoteMeta(`SELECT DISTINCT ON ("name") "id", "name", "conversion_intent" FROM "_stage_sms_zns_campaign_types" ORDER BY "name", "_stage_ord" DESC ON CONFLICT ("name") DO UPDATE SET "conversion_intent" = EXCLUDED."conversion_intent"`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{{"1", "Birthday", "sales"}, {"2", "OTP", "informational"}}
	n, err := BulkUpsert(context.Background(), mock, campaignTypes, len(rows), rowsOf(rows))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_NothingToUpdateSkipsConflicts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_customers"}, []string{"id", "phone"}).
		WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("phone"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "customers",
		Columns:      []string{"id", "phone"},
		ConflictKeys: []string{"phone"},
		Preserve:     []string{"id"},
	}, 1, rowsOf([][]any{{"c1", "0912345678"}}))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_MergeErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_sms_zns_campaign_types"}, []string{"id", "name", "conversion_intent"}).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO`).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, campaignTypes, 1, rowsOf([][]any{{"1", "Birthday", "sales"}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge into sms_zns_campaign_types")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertConfig_UpdateColumns(t *testing.T) {
	assert.Equal(t, []string{"conversion_intent"}, campaignTypes.updateColumns())

	cfg := campaignTypes
	cfg.Preserve = nil
	assert.Equal(t, []string{"id", "conversion_intent"}, cfg.updateColumns())
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "phone", "customer_id"`, quoteAndJoin([]string{"id", "phone", "customer_id"}))
}
