package ingest

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/matviet/outbound-cli/internal/classify"
	"github.com/matviet/outbound-cli/internal/fetcher"
	"github.com/matviet/outbound-cli/internal/model"
	"github.com/matviet/outbound-cli/internal/phone"
)

// ErrInvalidPhone marks a row dropped because its phone did not normalize.
var ErrInvalidPhone = eris.New("ingest: invalid phone")

// DefaultContentMaxLen is the content length, in runes, kept per message.
const DefaultContentMaxLen = 5000

// ReportZone is the provider's local time; report timestamps carry no zone.
var ReportZone = time.FixedZone("ICT", 7*60*60)

// sentAtLayouts are tried in order. Provider exports are day-first.
var sentAtLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006 15:04:05",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Transformer turns raw report rows into message records: phone
// normalization, channel, classification and numeric defaults.
type Transformer struct {
	taxonomy      *classify.Taxonomy
	classifier    *classify.Classifier
	contentMaxLen int

	now   func() time.Time
	newID func() string
}

// NewTransformer classifies with the taxonomy's classifier and resolves
// categories to campaign type ids through it. contentMaxLen <= 0 uses
// DefaultContentMaxLen.
func NewTransformer(tax *classify.Taxonomy, contentMaxLen int) *Transformer {
	if contentMaxLen <= 0 {
		contentMaxLen = DefaultContentMaxLen
	}
	return &Transformer{
		taxonomy:      tax,
		classifier:    tax.Classifier(),
		contentMaxLen: contentMaxLen,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Transform builds the record for one row. sourceFile is stored as given;
// see SourceKey. Classification sees the whole content, only the stored copy
// is truncated. A row with an invalid phone returns ErrInvalidPhone and
// should be skipped.
func (t *Transformer) Transform(raw RawRow, sourceFile string, reportMonth time.Time) (model.MessageRecord, error) {
	p, ok := phone.Normalize(raw.Get(FieldPhone))
	if !ok {
		return model.MessageRecord{}, eris.Wrapf(ErrInvalidPhone, "ingest: row %d phone %q", raw.Line, raw.Get(FieldPhone))
	}

	full := raw.Get(FieldContent)
	templateID := cleanID(raw.Get(FieldTemplateID))
	res := t.classifier.Classify(full, templateID)
	content := truncateRunes(full, t.contentMaxLen)

	messageType := raw.Get(FieldMessageType)
	rec := model.MessageRecord{
		ID:             t.newID(),
		MessageID:      model.StringPtr(cleanID(raw.Get(FieldMessageID))),
		MessageType:    messageType,
		Brandname:      raw.Get(FieldBrandname),
		Channel:        model.ChannelFromMessageType(messageType),
		Phone:          p,
		Content:        content,
		TemplateID:     model.StringPtr(templateID),
		CampaignTypeID: t.taxonomy.ID(res.Category),
		VoucherCode:    model.StringPtr(res.VoucherCode),
		Network:        raw.Get(FieldNetwork),
		SentAt:         t.sentAt(raw.Get(FieldSentAt)),
		TotalMT:        parseInt(raw.Get(FieldTotalMT), 1),
		SuccessCount:   parseInt(raw.Get(FieldSuccessCount), 0),
		FailCount:      parseInt(raw.Get(FieldFailCount), 0),
		UnitPrice:      parseFloat(raw.Get(FieldUnitPrice)),
		TotalCost:      parseFloat(raw.Get(FieldTotalCost)),
		ReportMonth:    model.MonthStart(reportMonth),
		SourceFile:     sourceFile,
	}
	return rec, nil
}

// sentAt parses the send time; a missing or unparsable value falls back to
// the processing time.
func (t *Transformer) sentAt(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return t.now().UTC()
	}
	if ts, ok := fetcher.ParseCellTime(s); ok {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, ReportZone).UTC()
	}
	for _, layout := range sentAtLayouts {
		if ts, err := time.ParseInLocation(layout, s, ReportZone); err == nil {
			return ts.UTC()
		}
	}
	return t.now().UTC()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// cleanID trims an identifier cell and drops the ".0" spreadsheets append
// to numbers.
func cleanID(s string) string {
	return strings.TrimSuffix(strings.TrimSpace(s), ".0")
}

// parseInt reads an integer cell ("2", "2.0", "1,000"); empty or
// unparsable cells yield def.
func parseInt(s string, def int) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return def
}

// parseFloat reads a money cell; empty or unparsable cells are 0.
func parseFloat(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
