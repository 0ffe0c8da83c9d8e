package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestReadReport(t *testing.T) {
	dir := t.TempDir()
	totals := make([]string, len(reportHeader))
	totals[0] = "Tổng cộng"
	totals[8] = "3"

	path := writeReport(t, dir, "detail_01-02-2025_28-02-2025.xlsx", [][]string{
		reportRow(1, "SMS Brandname", "14/02/2025 09:30:00", otpContent, "84912345678"),
		reportRow(2, "Zalo ZNS", "15/02/2025 10:00:00", birthdayContent, "987654321.0"),
		reportRow(3, "SMS Brandname", "", "hello", "123"),
		totals,
	})

	rows, err := ReadReport(path, 6)
	require.NoError(t, err)
	require.Len(t, rows, 2, "short phone and totals rows are left out")

	assert.Equal(t, 8, rows[0].Line)
	assert.Equal(t, "84912345678", rows[0].Get(FieldPhone))
	assert.Equal(t, otpContent, rows[0].Get(FieldContent))
	assert.Equal(t, "SMS Brandname", rows[0].Get(FieldMessageType))
	assert.Equal(t, "650", rows[0].Get(FieldUnitPrice))
	assert.Equal(t, "Zalo ZNS", rows[1].Get(FieldMessageType))
	assert.Empty(t, rows[1].Get("missing"))
}

func TestReadReport_HeaderVariants(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	header := sheet.AddRow()
	for _, h := range []string{"  số điện  thoại ", "NỘI DUNG", "Template ID"} {
		header.AddCell().SetString(h)
	}
	data := sheet.AddRow()
	for _, c := range []string{"0912345678", "xin chao", "4411"} {
		data.AddCell().SetString(c)
	}
	path := t.TempDir() + "/detail_01-02-2025_28-02-2025.xlsx"
	require.NoError(t, f.Save(path))

	rows, err := ReadReport(path, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "0912345678", rows[0].Get(FieldPhone))
	assert.Equal(t, "xin chao", rows[0].Get(FieldContent))
	assert.Equal(t, "4411", rows[0].Get(FieldTemplateID))
}

func TestReadReport_NoPhoneColumn(t *testing.T) {
	path := writeReport(t, t.TempDir(), "detail_01-02-2025_28-02-2025.xlsx", nil)

	_, err := ReadReport(path, 0)
	assert.ErrorContains(t, err, "no phone column")
}

func TestLooksLikePhone(t *testing.T) {
	for in, want := range map[string]bool{
		"0912345678":      true,
		"84912345678.0":   true,
		"+84 912 345 678": true,
		"912345678":       true,
		"123":             false,
		"":                false,
		"8491234567890":   false,
	} {
		assert.Equal(t, want, looksLikePhone(in), in)
	}
}
