// Package ingest turns provider report files into stored message records
// and re-runs classification over records already stored.
package ingest

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNoReportMonth means a report file name carries no date range.
var ErrNoReportMonth = eris.New("ingest: no report date range in file name")

// reportRange matches the DD-MM-YYYY_DD-MM-YYYY period in provider file
// names, e.g. "detail_01-02-2025_28-02-2025.xlsx".
var reportRange = regexp.MustCompile(`(\d{2})-(\d{2})-(\d{4})_(\d{2})-(\d{2})-(\d{4})`)

// ParseReportMonth returns the first day of the month the report period
// starts in. The report month comes from the file, never from message
// timestamps.
func ParseReportMonth(name string) (time.Time, error) {
	m := reportRange.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return time.Time{}, eris.Wrapf(ErrNoReportMonth, "ingest: %s", filepath.Base(name))
	}
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 {
		return time.Time{}, eris.Errorf("ingest: invalid month %q in %s", m[2], filepath.Base(name))
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

// IsDetailReport reports whether name is a per-message detail report: an
// xlsx file that is not a summary sheet or an Excel lock file.
func IsDetailReport(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	if filepath.Ext(base) != ".xlsx" || strings.HasPrefix(base, "~$") {
		return false
	}
	return !strings.Contains(base, "summary") && !strings.Contains(base, "sumary")
}
