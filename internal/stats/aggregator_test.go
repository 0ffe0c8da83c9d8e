package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/model"
	"github.com/matviet/outbound-cli/internal/resilience"
	"github.com/matviet/outbound-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	feb = time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	mar = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
)

type msgOpt func(*model.MessageRecord)

func withCampaign(id string) msgOpt {
	return func(m *model.MessageRecord) { m.CampaignTypeID = &id }
}

func withCustomer(id string) msgOpt {
	return func(m *model.MessageRecord) { m.CustomerID = &id }
}

func withMeasures(mt, success, fail int, price, storedCost float64) msgOpt {
	return func(m *model.MessageRecord) {
		m.TotalMT, m.SuccessCount, m.FailCount = mt, success, fail
		m.UnitPrice, m.TotalCost = price, storedCost
	}
}

func msg(id, phone string, month time.Time, ch model.Channel, opts ...msgOpt) store.Row {
	m := model.MessageRecord{
		ID:           id,
		Phone:        phone,
		Channel:      ch,
		SentAt:       month.Add(24 * time.Hour),
		ReportMonth:  month,
		TotalMT:      1,
		SuccessCount: 1,
		UnitPrice:    650,
		TotalCost:    650,
	}
	for _, o := range opts {
		o(&m)
	}
	return m.Row()
}

func newSeededStore(t *testing.T, messages ...store.Row) *store.MemoryStore {
	t.Helper()
	s := store.NewMemory()
	ctx := context.Background()
	_, err := s.Insert(ctx, store.TableCampaignTypes, []store.Row{
		model.CampaignType{ID: "ct-otp", Name: "OTP", ConversionIntent: model.IntentInformational}.Row(),
		model.CampaignType{ID: "ct-bday", Name: "Birthday", ConversionIntent: model.IntentSales}.Row(),
	})
	require.NoError(t, err)
	if len(messages) > 0 {
		_, err = s.Insert(ctx, store.TableMessages, messages)
		require.NoError(t, err)
	}
	return s
}

func fixture() []store.Row {
	return []store.Row{
		msg("m1", "0912345678", feb, model.ChannelSMS, withCampaign("ct-otp"), withCustomer("c1")),
		msg("m2", "0912345678", feb, model.ChannelSMS, withCampaign("ct-otp"), withCustomer("c1"),
			withMeasures(2, 2, 0, 650, 999)),
		msg("m3", "0987654321", feb, model.ChannelSMS, withMeasures(3, 0, 3, 500, 0)),
		msg("m4", "0987654321", feb, model.ChannelZNS, withCampaign("ct-bday"), withCustomer("c2"),
			withMeasures(1, 1, 0, 300, 300)),
		msg("m5", "0911111111", mar, model.ChannelSMS, withCampaign("ct-bday")),
	}
}

func testConfig(pageSize int) Config {
	return Config{
		PageSize: pageSize,
		Retry: resilience.RetryConfig{
			MaxAttempts: 2,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		},
	}
}

func newAggregator(t *testing.T, s store.Store, pageSize int) *Aggregator {
	t.Helper()
	a, err := New(s, testConfig(pageSize))
	require.NoError(t, err)
	return a
}

func TestRefresh_Monthly(t *testing.T) {
	s := newSeededStore(t, fixture()...)
	a := newAggregator(t, s, 2)

	n, err := a.Refresh(context.Background(), model.GroupingMonthly)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "feb/sms, feb/zns, mar/sms; mar/zns has no messages")

	got, err := ListMonthly(context.Background(), s, "")
	require.NoError(t, err)
	require.Len(t, got, 3)

	febSMS := got[0]
	assert.True(t, febSMS.ReportMonth.Equal(feb))
	assert.Equal(t, model.ChannelSMS, febSMS.Channel)
	assert.Equal(t, int64(3), febSMS.TotalMessages)
	assert.Equal(t, int64(3), febSMS.SuccessfulMessages)
	assert.Equal(t, int64(3), febSMS.FailedMessages)
	assert.Equal(t, int64(2), febSMS.UniqueRecipients)
	assert.Equal(t, int64(1), febSMS.LinkedRecipients)
	assert.InDelta(t, 650.0+1300.0+1500.0, febSMS.TotalCost, 1e-9, "cost is unit_price × total_mt, not the stored value")

	assert.Equal(t, model.ChannelZNS, got[1].Channel)
	assert.Equal(t, int64(1), got[1].TotalMessages)
	assert.True(t, got[2].ReportMonth.Equal(mar))
}

func TestRefresh_Campaign(t *testing.T) {
	s := newSeededStore(t, fixture()...)
	a := newAggregator(t, s, 1000)

	n, err := a.Refresh(context.Background(), model.GroupingCampaign)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := ListCampaigns(context.Background(), s, "")
	require.NoError(t, err)
	require.Len(t, got, 4)

	byKey := make(map[string]model.AggregateStat)
	for _, st := range got {
		byKey[st.CampaignName+"/"+string(st.Channel)] = st
	}

	otp := byKey["OTP/sms"]
	assert.Equal(t, int64(2), otp.TotalMessages)
	assert.Equal(t, int64(1), otp.UniqueRecipients)
	require.NotNil(t, otp.CampaignTypeID)
	assert.Equal(t, "ct-otp", *otp.CampaignTypeID)
	require.NotNil(t, otp.ConversionIntent)
	assert.Equal(t, model.IntentInformational, *otp.ConversionIntent)

	unc := byKey[model.UncategorizedCampaign+"/sms"]
	assert.Equal(t, int64(1), unc.TotalMessages)
	assert.Nil(t, unc.CampaignTypeID)
	assert.Nil(t, unc.ConversionIntent)

	assert.Equal(t, int64(1), byKey["Birthday/sms"].TotalMessages)
	assert.Equal(t, int64(1), byKey["Birthday/zns"].TotalMessages)
	_, ok := byKey[model.UncategorizedCampaign+"/zns"]
	assert.False(t, ok, "empty keys are skipped")

	assert.Equal(t, int64(2), got[0].TotalMessages, "busiest first")
}

func TestRefresh_IdempotentAndReplacesStaleRows(t *testing.T) {
	s := newSeededStore(t, fixture()...)
	_, err := s.Insert(context.Background(), store.TableMonthlyStats, []store.Row{
		model.AggregateStat{Grouping: model.GroupingMonthly, ReportMonth: &mar, Channel: model.ChannelZNS, TotalMessages: 42}.Row(),
	})
	require.NoError(t, err)

	a := newAggregator(t, s, 2)
	ctx := context.Background()

	_, err = a.Refresh(ctx, model.GroupingMonthly)
	require.NoError(t, err)
	first, err := ListMonthly(ctx, s, "")
	require.NoError(t, err)

	_, err = a.Refresh(ctx, model.GroupingMonthly)
	require.NoError(t, err)
	second, err := ListMonthly(ctx, s, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, s.Rows(store.TableMonthlyStats), 3, "stale mar/zns row is gone and nothing is duplicated")
}

func TestRefresh_TracksMessageChanges(t *testing.T) {
	s := newSeededStore(t, fixture()...)
	a := newAggregator(t, s, 10)
	ctx := context.Background()

	_, err := a.Refresh(ctx, model.GroupingMonthly)
	require.NoError(t, err)

	_, err = s.Delete(ctx, store.TableMessages, store.Where(store.Eq("report_month", mar)))
	require.NoError(t, err)

	n, err := a.Refresh(ctx, model.GroupingMonthly)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRefresh_EmptyMessageTable(t *testing.T) {
	s := newSeededStore(t)
	a := newAggregator(t, s, 10)

	written, err := a.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[model.Grouping]int{model.GroupingMonthly: 0, model.GroupingCampaign: 0}, written)
	assert.Empty(t, s.Rows(store.TableCampaignStats))
}

func TestRefreshAll_Concurrent(t *testing.T) {
	s := newSeededStore(t, fixture()...)
	cfg := testConfig(3)
	cfg.Concurrency = 2
	a, err := New(s, cfg)
	require.NoError(t, err)

	written, err := a.RefreshAll(context.Background(), model.GroupingMonthly, model.GroupingCampaign)
	require.NoError(t, err)
	assert.Equal(t, 3, written[model.GroupingMonthly])
	assert.Equal(t, 4, written[model.GroupingCampaign])
}

// failingStore fails every Count with a validation error.
type failingStore struct {
	*store.MemoryStore
}

func (f failingStore) Count(context.Context, string, store.Filter) (int64, error) {
	return 0, resilience.NewValidationError(errors.New("bad filter"), "22P02")
}

func TestRefresh_StoreErrorLeavesCacheIntact(t *testing.T) {
	s := newSeededStore(t, fixture()...)
	_, err := newAggregator(t, s, 10).Refresh(context.Background(), model.GroupingMonthly)
	require.NoError(t, err)

	a := newAggregator(t, failingStore{s}, 10)
	_, err = a.Refresh(context.Background(), model.GroupingMonthly)
	require.Error(t, err)
	assert.True(t, resilience.IsValidation(err))
	assert.Len(t, s.Rows(store.TableMonthlyStats), 3, "aggregates are only cleared once every row is computed")
}

func TestRefresh_UnknownGrouping(t *testing.T) {
	a := newAggregator(t, store.NewMemory(), 10)
	_, err := a.Refresh(context.Background(), model.Grouping("weekly"))
	assert.Error(t, err)
}

func TestNew_RequiresPageSize(t *testing.T) {
	_, err := New(store.NewMemory(), Config{})
	assert.Error(t, err)
}

func TestListMonthly_ChannelFilter(t *testing.T) {
	s := newSeededStore(t, fixture()...)
	_, err := newAggregator(t, s, 10).Refresh(context.Background(), model.GroupingMonthly)
	require.NoError(t, err)

	got, err := ListMonthly(context.Background(), s, model.ChannelZNS)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ChannelZNS, got[0].Channel)
}
