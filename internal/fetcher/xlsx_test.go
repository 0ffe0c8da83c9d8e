package fetcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	err := f.Save(path)
	require.NoError(t, err)
	return path
}

func TestReadXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Số điện thoại", "Nội dung"},
			{"84912345678", "Ma OTP cua ban la 1234"},
			{" 0987654321 ", "Chuc mung sinh nhat"},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Số điện thoại", "Nội dung"}, rows[0])
	assert.Equal(t, []string{"0987654321", "Chuc mung sinh nhat"}, rows[2], "cells are trimmed")
}

func TestReadXLSX_SkipRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"BÁO CÁO CHI TIẾT"},
			{""},
			{"Header1", "Header2"},
			{"a", "b"},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Header1", "Header2"}, rows[0])
	assert.Equal(t, []string{"a", "b"}, rows[1])
}

func TestReadXLSX_DropsTrailingBlankRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"a", "b"},
			{"", ""},
			{""},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, rows)
}

func TestReadXLSX_DateCells(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	row := sheet.AddRow()
	row.AddCell().SetDateTime(time.Date(2025, time.February, 14, 9, 30, 0, 0, time.UTC))
	row.AddCell().SetInt(650)

	path := filepath.Join(t.TempDir(), "dates.xlsx")
	require.NoError(t, f.Save(path))

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got, ok := ParseCellTime(rows[0][0])
	require.True(t, ok, rows[0][0])
	assert.Equal(t, 2025, got.Year())
	assert.Equal(t, time.February, got.Month())
	assert.Equal(t, 14, got.Day())
	assert.Equal(t, "650", rows[0][1])
}

func TestReadXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"First":  {{"a", "b"}},
		"Second": {{"x", "y"}, {"1", "2"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Second"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"x", "y"}, rows[0])
}

func TestReadXLSX_Errors(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}}})
	garbage := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, os.WriteFile(garbage, []byte("not a spreadsheet"), 0o644))

	tests := []struct {
		name    string
		path    string
		opts    XLSXOptions
		wantMsg string
	}{
		{"missing sheet", path, XLSXOptions{SheetName: "Missing"}, "not found"},
		{"index out of range", path, XLSXOptions{SheetIndex: 5}, "out of range"},
		{"missing file", filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{}, "open file"},
		{"not xlsx", garbage, XLSXOptions{}, "open file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadXLSX(tt.path, tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
