package ingest

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/matviet/outbound-cli/internal/fetcher"
)

// Report fields.
const (
	FieldSeq          = "stt"
	FieldMessageID    = "message_id"
	FieldMessageType  = "message_type"
	FieldBrandname    = "brandname"
	FieldSentAt       = "sent_at"
	FieldContent      = "content"
	FieldPhone        = "phone"
	FieldNetwork      = "network"
	FieldTotalMT      = "total_mt"
	FieldSuccessCount = "success_count"
	FieldFailCount    = "fail_count"
	FieldUnitPrice    = "unit_price"
	FieldTotalCost    = "total_cost"
	FieldTemplateID   = "template_id"
	FieldCampaignName = "campaign_name"
)

// headerFields maps the provider's column headers to fields. Keys are
// matched after headerKey folding.
var headerFields = map[string]string{
	headerKey("STT"):              FieldSeq,
	headerKey("Mã tin nhắn"):      FieldMessageID,
	headerKey("Loại tin nhắn"):    FieldMessageType,
	headerKey("Brandname"):        FieldBrandname,
	headerKey("Thời gian gửi"):    FieldSentAt,
	headerKey("Nội dung"):         FieldContent,
	headerKey("Số điện thoại"):    FieldPhone,
	headerKey("Mạng"):             FieldNetwork,
	headerKey("Tổng số tin MT"):   FieldTotalMT,
	headerKey("Thành công"):       FieldSuccessCount,
	headerKey("Thất bại"):         FieldFailCount,
	headerKey("ĐƠN GIÁ (VNĐ/MT)"): FieldUnitPrice,
	headerKey("THÀNH TIỀN"):       FieldTotalCost,
	headerKey("Template Id"):      FieldTemplateID,
	headerKey("Tên chiến dịch"):   FieldCampaignName,
}

// headerKey composes, trims, collapses inner whitespace and lower-cases a
// header cell so spreadsheets saved by different tools match.
func headerKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(norm.NFC.String(s)), " "))
}

// RawRow is one data row of a report, keyed by field.
type RawRow struct {
	Line   int // 1-based spreadsheet row
	Fields map[string]string
}

// Get returns a field value, "" when absent.
func (r RawRow) Get(field string) string {
	return r.Fields[field]
}

// ReadReport reads a detail report whose header sits on the 0-based row
// headerRow. Rows whose phone cell does not look like a phone number
// (totals, notes, blank lines) are left out.
func ReadReport(path string, headerRow int) ([]RawRow, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SkipRows: headerRow})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read report")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := make(map[int]string)
	for i, h := range rows[0] {
		if field, ok := headerFields[headerKey(h)]; ok {
			columns[i] = field
		}
	}
	if !hasField(columns, FieldPhone) {
		return nil, eris.Errorf("ingest: %s has no phone column on row %d", path, headerRow+1)
	}

	var out []RawRow
	for i, cells := range rows[1:] {
		raw := RawRow{Line: headerRow + i + 2, Fields: make(map[string]string, len(columns))}
		for idx, field := range columns {
			if idx < len(cells) {
				raw.Fields[field] = cells[idx]
			}
		}
		if !looksLikePhone(raw.Get(FieldPhone)) {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

func hasField(columns map[int]string, field string) bool {
	for _, f := range columns {
		if f == field {
			return true
		}
	}
	return false
}

// looksLikePhone is the coarse row filter: 9 to 12 digits after dropping
// a spreadsheet ".0" suffix. Exact validation happens in phone.Normalize.
func looksLikePhone(s string) bool {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".0")
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 9 && digits <= 12
}
