package ingest

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/classify"
	"github.com/matviet/outbound-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const (
	otpContent      = "Ma xac thuc cua ban la 482913. Vui long khong chia se."
	birthdayContent = `[{"Key":"customer_name","Value":"Nguyen Van An"},{"Key":"voucher_code","Value":"SN001A"},{"Key":"expired","Value":"31/03/2025"}]`
)

var reportHeader = []string{
	"STT", "Mã tin nhắn", "Loại tin nhắn", "Brandname", "Thời gian gửi", "Nội dung",
	"Số điện thoại", "Mạng", "Tổng số tin MT", "Thành công", "Thất bại",
	"ĐƠN GIÁ (VNĐ/MT)", "THÀNH TIỀN", "Template Id", "Tên chiến dịch",
}

// reportRow builds a data row in reportHeader order.
func reportRow(seq int, messageType, sentAt, content, phone string) []string {
	return []string{
		strconv.Itoa(seq), "MID" + strconv.Itoa(seq), messageType, "MATVIET", sentAt, content,
		phone, "Viettel", "1", "1", "0", "650", "650", "", "",
	}
}

// writeReport saves a detail report shaped like the provider's: six
// preamble rows, the header on row 7, then data.
func writeReport(t *testing.T, dir, name string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Chi tiet")
	require.NoError(t, err)

	preamble := []string{
		"BÁO CÁO CHI TIẾT TIN NHẮN",
		"Khách hàng: MAT VIET",
		"Từ ngày: 01/02/2025",
		"Đến ngày: 28/02/2025",
		"Kênh: SMS + ZNS",
		"Đơn vị: VNĐ",
	}
	for _, line := range preamble {
		sheet.AddRow().AddCell().SetString(line)
	}
	for _, cells := range append([][]string{reportHeader}, rows...) {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}

	path := filepath.Join(dir, name)
	require.NoError(t, f.Save(path))
	return path
}

// seededTaxonomy seeds the built-in taxonomy into s and loads it back.
func seededTaxonomy(t *testing.T, s store.Store) *classify.Taxonomy {
	t.Helper()
	ctx := context.Background()
	def, err := classify.LoadDefinition("")
	require.NoError(t, err)
	_, err = classify.Seed(ctx, s, def)
	require.NoError(t, err)
	tax, err := classify.LoadTaxonomy(ctx, s, def)
	require.NoError(t, err)
	return tax
}
