package ingest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matviet/outbound-cli/internal/classify"
	"github.com/matviet/outbound-cli/internal/model"
	"github.com/matviet/outbound-cli/internal/resilience"
	"github.com/matviet/outbound-cli/internal/store"
)

func reclassifyConfig(page, batch int) ReclassifyConfig {
	return ReclassifyConfig{
		FetchPageSize:   page,
		UpdateBatchSize: batch,
		Retry:           resilience.RetryConfig{MaxAttempts: 2, Sleep: noSleep},
	}
}

func storedMessage(id, content string, typeID *string) store.Row {
	return model.MessageRecord{
		ID:             id,
		Phone:          "0912345678",
		Channel:        model.ChannelSMS,
		Content:        content,
		CampaignTypeID: typeID,
		ReportMonth:    febReport,
		SentAt:         febReport,
		TotalMT:        1,
	}.Row()
}

func typeOf(t *testing.T, s *store.MemoryStore) map[string]model.MessageRecord {
	t.Helper()
	out := make(map[string]model.MessageRecord)
	for _, r := range s.Rows(store.TableMessages) {
		m := model.MessageFromRow(r)
		out[m.ID] = m
	}
	return out
}

func TestReclassify_OnlyUnclassified(t *testing.T) {
	s := store.NewMemory()
	tax := seededTaxonomy(t, s)
	warranty := tax.ID(classify.Warranty)

	var rows []store.Row
	for i := 0; i < 7; i++ {
		rows = append(rows, storedMessage(fmt.Sprintf("m%d", i), otpContent, nil))
	}
	rows = append(rows,
		storedMessage("b1", birthdayContent, nil),
		storedMessage("w1", otpContent, warranty),
	)
	_, err := s.Insert(context.Background(), store.TableMessages, rows)
	require.NoError(t, err)

	r, err := NewReclassifier(s, tax, reclassifyConfig(3, 2))
	require.NoError(t, err)
	res, err := r.Run(context.Background(), ReclassifyScope{OnlyUnclassified: true})
	require.NoError(t, err)

	assert.Equal(t, 8, res.Updated)
	assert.Equal(t, 8, res.Scanned, "each unclassified row is read once")
	assert.Equal(t, 7, res.ByCategory[string(classify.OTP)])
	assert.Equal(t, 1, res.ByCategory[string(classify.Birthday)])

	got := typeOf(t, s)
	assert.Equal(t, tax.ID(classify.OTP), got["m3"].CampaignTypeID)
	assert.Equal(t, tax.ID(classify.Birthday), got["b1"].CampaignTypeID)
	require.NotNil(t, got["b1"].VoucherCode)
	assert.Equal(t, "SN001A", *got["b1"].VoucherCode)
	assert.Equal(t, warranty, got["w1"].CampaignTypeID, "classified rows are out of scope")
}

func TestReclassify_AllRowsCorrectsStaleTypes(t *testing.T) {
	s := store.NewMemory()
	tax := seededTaxonomy(t, s)
	otp := tax.ID(classify.OTP)
	voucher := "KEEP01"

	stale := storedMessage("stale", otpContent, tax.ID(classify.Warranty))
	keep := storedMessage("keep", otpContent, otp)
	keep["voucher_code"] = voucher
	_, err := s.Insert(context.Background(), store.TableMessages, []store.Row{stale, keep})
	require.NoError(t, err)

	r, err := NewReclassifier(s, tax, reclassifyConfig(10, 5))
	require.NoError(t, err)
	res, err := r.Run(context.Background(), ReclassifyScope{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Unchanged)
	got := typeOf(t, s)
	assert.Equal(t, otp, got["stale"].CampaignTypeID)
	require.NotNil(t, got["keep"].VoucherCode)
	assert.Equal(t, voucher, *got["keep"].VoucherCode, "a row without an extracted voucher keeps its stored one")
}

func TestReclassify_TerminatesWhenCategoryHasNoType(t *testing.T) {
	s := store.NewMemory()
	// Only OTP exists, so "other" rows keep a null type and stay in the filter.
	tax := classify.NewTaxonomy([]model.CampaignType{
		{ID: "ct-otp", Name: "OTP", ConversionIntent: model.IntentInformational},
	}, nil, nil)

	var rows []store.Row
	for i := 0; i < 5; i++ {
		rows = append(rows, storedMessage(fmt.Sprintf("x%d", i), "xin chao", nil))
	}
	rows = append(rows, storedMessage("o1", otpContent, nil))
	_, err := s.Insert(context.Background(), store.TableMessages, rows)
	require.NoError(t, err)

	r, err := NewReclassifier(s, tax, reclassifyConfig(2, 1))
	require.NoError(t, err)
	res, err := r.Run(context.Background(), ReclassifyScope{OnlyUnclassified: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 5, res.Unchanged)
	assert.Equal(t, "ct-otp", *typeOf(t, s)["o1"].CampaignTypeID)
}

func TestReclassify_ScopeByMonth(t *testing.T) {
	s := store.NewMemory()
	tax := seededTaxonomy(t, s)
	mar := storedMessage("mar", otpContent, nil)
	mar["report_month"] = febReport.AddDate(0, 1, 0)
	_, err := s.Insert(context.Background(), store.TableMessages, []store.Row{
		storedMessage("feb", otpContent, nil), mar,
	})
	require.NoError(t, err)

	r, err := NewReclassifier(s, tax, reclassifyConfig(10, 5))
	require.NoError(t, err)
	month := febReport
	res, err := r.Run(context.Background(), ReclassifyScope{OnlyUnclassified: true, ReportMonth: &month})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Nil(t, typeOf(t, s)["mar"].CampaignTypeID)
}

func TestNewReclassifier_Validates(t *testing.T) {
	tax := classify.NewTaxonomy(nil, nil, nil)
	_, err := NewReclassifier(store.NewMemory(), tax, reclassifyConfig(0, 1))
	assert.Error(t, err)
	_, err = NewReclassifier(store.NewMemory(), tax, reclassifyConfig(10, 10))
	assert.Error(t, err)
}
