package ingest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/fetcher"
	"github.com/matviet/outbound-cli/internal/metrics"
	"github.com/matviet/outbound-cli/internal/model"
	"github.com/matviet/outbound-cli/internal/resilience"
	"github.com/matviet/outbound-cli/internal/store"
)

// Config tunes an Importer.
type Config struct {
	HeaderRow    int    // 0-based row holding the column headers
	BatchSize    int    // rows per insert
	ExtractDir   string // where archives are unpacked; default <dir>/extracted
	ProcessedDir string // when set, fully imported inputs are moved here
	Replace      bool   // delete rows of the same source file before inserting
	Pacer        resilience.Pacer
	Retry        resilience.RetryConfig
}

// FileResult summarizes one imported report.
type FileResult struct {
	File        string                  `json:"file"`
	ReportMonth time.Time               `json:"report_month"`
	Rows        int                     `json:"rows"`
	Imported    int                     `json:"imported"`
	Dropped     int                     `json:"dropped"`
	Replaced    int64                   `json:"replaced,omitempty"`
	DeadLetters []resilience.DeadLetter `json:"dead_letters,omitempty"`
}

// Result summarizes a directory import.
type Result struct {
	Files    []FileResult `json:"files"`
	Skipped  []string     `json:"skipped,omitempty"` // no report month in the name
	Failed   []string     `json:"failed,omitempty"`  // unreadable or unwritable
	Imported int          `json:"imported"`
	Dropped  int          `json:"dropped"`
}

// Importer loads provider reports into the message table.
type Importer struct {
	store       store.Store
	transformer *Transformer
	cfg         Config
	log         *zap.Logger
}

// NewImporter returns an Importer writing through s.
func NewImporter(s store.Store, t *Transformer, cfg Config) (*Importer, error) {
	if cfg.BatchSize <= 0 {
		return nil, eris.New("ingest: batch size must be positive")
	}
	if cfg.HeaderRow < 0 {
		return nil, eris.New("ingest: header row must not be negative")
	}
	if cfg.Pacer == nil {
		cfg.Pacer = resilience.Unpaced()
	}
	return &Importer{
		store:       s,
		transformer: t,
		cfg:         cfg,
		log:         zap.L().With(zap.String("component", "ingest.importer")),
	}, nil
}

// SourceKey is the source_file value stored for a report. Reports unpacked
// from an archive are keyed by the archive stem as well, since SMS and ZNS
// exports for the same range share a file name.
func SourceKey(path, archive string) string {
	name := filepath.Base(path)
	if archive == "" {
		return name
	}
	stem := strings.TrimSuffix(filepath.Base(archive), filepath.Ext(archive))
	return stem + "/" + name
}

// ImportFile imports one detail report. The report month comes from the
// file name; a name without one returns ErrNoReportMonth.
func (im *Importer) ImportFile(ctx context.Context, path string) (FileResult, error) {
	return im.importFile(ctx, path, SourceKey(path, ""))
}

func (im *Importer) importFile(ctx context.Context, path, source string) (FileResult, error) {
	name := filepath.Base(path)
	res := FileResult{File: source}
	log := im.log.With(zap.String("file", source))

	month, err := ParseReportMonth(name)
	if err != nil {
		return res, err
	}
	res.ReportMonth = month

	raws, err := ReadReport(path, im.cfg.HeaderRow)
	if err != nil {
		return res, err
	}
	res.Rows = len(raws)

	records := make([]model.MessageRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := im.transformer.Transform(raw, source, month)
		if errors.Is(err, ErrInvalidPhone) {
			res.Dropped++
			metrics.MessagesDropped.WithLabelValues("invalid_phone").Inc()
			continue
		}
		if err != nil {
			return res, err
		}
		records = append(records, rec)
	}

	// Delete and insert are not one transaction. If the insert fails the old
	// rows stay deleted until the file is imported again.
	if im.cfg.Replace {
		n, err := resilience.DoVal(ctx, im.retry("delete_source_file"), func(ctx context.Context) (int64, error) {
			return im.store.Delete(ctx, store.TableMessages, store.Where(store.Eq("source_file", source)))
		})
		if err != nil {
			return res, eris.Wrapf(err, "ingest: replace rows of %s", source)
		}
		res.Replaced = n
	}

	imported, dead, err := im.insert(ctx, records)
	res.Imported = imported
	res.DeadLetters = dead
	if err != nil {
		return res, err
	}

	log.Info("report imported",
		zap.String("report_month", month.Format("2006-01")),
		zap.Int("rows", res.Rows),
		zap.Int("imported", res.Imported),
		zap.Int("dropped", res.Dropped),
		zap.Int64("replaced", res.Replaced),
		zap.Int("dead_letters", len(res.DeadLetters)),
	)
	return res, nil
}

// insert writes records in batches. A batch that still fails after retries
// is written one row at a time; rows that fail alone become dead letters.
func (im *Importer) insert(ctx context.Context, records []model.MessageRecord) (int, []resilience.DeadLetter, error) {
	imported := 0
	var dead []resilience.DeadLetter
	retry := im.retry("insert_messages")

	for start := 0; start < len(records); start += im.cfg.BatchSize {
		end := min(start+im.cfg.BatchSize, len(records))
		batch := records[start:end]

		if start > 0 {
			if err := im.cfg.Pacer.Wait(ctx); err != nil {
				return imported, dead, eris.Wrap(err, "ingest: batch pacing")
			}
		}

		rows := make([]store.Row, len(batch))
		for i, rec := range batch {
			rows[i] = rec.Row()
		}
		err := resilience.Do(ctx, retry, func(ctx context.Context) error {
			_, err := im.store.Insert(ctx, store.TableMessages, rows)
			return err
		})
		if err == nil {
			imported += len(batch)
			countImported(batch)
			continue
		}
		if ctx.Err() != nil {
			return imported, dead, ctx.Err()
		}

		im.log.Warn("batch insert failed, falling back to per-row inserts",
			zap.Int("rows", len(batch)), zap.Error(err))
		for i, rec := range batch {
			err := resilience.Do(ctx, retry, func(ctx context.Context) error {
				_, err := im.store.Insert(ctx, store.TableMessages, rows[i:i+1])
				return err
			})
			if err != nil {
				dl := resilience.NewDeadLetter("import", store.TableMessages, []string{rec.ID}, err)
				dl.Log(im.log)
				metrics.DeadLetters.WithLabelValues(dl.Operation, dl.ErrorType).Inc()
				dead = append(dead, dl)
				continue
			}
			imported++
			countImported(batch[i : i+1])
		}
	}
	return imported, dead, nil
}

func countImported(records []model.MessageRecord) {
	for _, rec := range records {
		metrics.MessagesImported.WithLabelValues(string(rec.Channel)).Inc()
	}
}

// ImportDir extracts every zip archive directly in dir, then imports every
// detail report found under dir and the extract directory, in path order.
// A file that cannot be imported is recorded in Result.Failed and the run
// continues; only cancellation stops it early.
func (im *Importer) ImportDir(ctx context.Context, dir string) (Result, error) {
	var res Result

	extractDir := im.cfg.ExtractDir
	if extractDir == "" {
		extractDir = filepath.Join(dir, "extracted")
	}

	// origin maps each report to the input that produced it, so inputs can be
	// moved once all their reports are in.
	origin := make(map[string]string)
	unpacked := make(map[string]string)

	archives, err := filepath.Glob(filepath.Join(dir, "*.zip"))
	if err != nil {
		return res, eris.Wrap(err, "ingest: list archives")
	}
	slices.Sort(archives)
	for _, archive := range archives {
		stem := strings.TrimSuffix(filepath.Base(archive), filepath.Ext(archive))
		dest := filepath.Join(extractDir, stem)
		files, err := fetcher.ExtractZIP(archive, dest)
		if err != nil {
			im.log.Error("archive extraction failed", zap.String("archive", archive), zap.Error(err))
			res.Failed = append(res.Failed, filepath.Base(archive))
			continue
		}
		unpacked[archive] = dest
		for _, f := range files {
			origin[f] = archive
		}
	}

	reports, err := findReports(im.cfg.ProcessedDir, dir, extractDir)
	if err != nil {
		return res, err
	}

	failedInputs := make(map[string]bool)
	for _, path := range reports {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		input := path
		archive := ""
		if o, ok := origin[path]; ok {
			input = o
			archive = o
		}

		fr, err := im.importFile(ctx, path, SourceKey(path, archive))
		switch {
		case errors.Is(err, ErrNoReportMonth):
			im.log.Warn("skipping report without a date range", zap.String("file", path))
			res.Skipped = append(res.Skipped, fr.File)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			im.log.Error("report import failed", zap.String("file", path), zap.Error(err))
			res.Failed = append(res.Failed, fr.File)
			failedInputs[input] = true
			continue
		}
		res.Files = append(res.Files, fr)
		res.Imported += fr.Imported
		res.Dropped += fr.Dropped
		if len(fr.DeadLetters) > 0 {
			failedInputs[input] = true
		}
		if _, ok := origin[path]; !ok {
			origin[path] = path
		}
	}

	if im.cfg.ProcessedDir != "" {
		im.moveProcessed(origin, unpacked, failedInputs)
	}

	im.log.Info("import complete",
		zap.Int("files", len(res.Files)),
		zap.Int("imported", res.Imported),
		zap.Int("dropped", res.Dropped),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

// findReports walks the given roots for detail reports, skipping the
// processed directory. Paths are de-duplicated because the extract
// directory usually sits inside dir.
func findReports(processedDir string, roots ...string) ([]string, error) {
	skip := ""
	if processedDir != "" {
		skip = filepath.Clean(processedDir)
	}
	seen := make(map[string]bool)
	var out []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				if skip != "" && filepath.Clean(path) == skip {
					return filepath.SkipDir
				}
				return nil
			}
			if !IsDetailReport(path) {
				return nil
			}
			clean := filepath.Clean(path)
			if !seen[clean] {
				seen[clean] = true
				out = append(out, clean)
			}
			return nil
		})
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: walk %s", root)
		}
	}
	slices.Sort(out)
	return out, nil
}

// moveProcessed moves every input whose reports all imported cleanly and
// removes the extracted copy of each moved archive.
func (im *Importer) moveProcessed(origin, unpacked map[string]string, failed map[string]bool) {
	if err := os.MkdirAll(im.cfg.ProcessedDir, 0o755); err != nil {
		im.log.Error("cannot create processed dir", zap.Error(err))
		return
	}
	moved := make(map[string]bool)
	for _, input := range origin {
		if failed[input] || moved[input] {
			continue
		}
		moved[input] = true
		dest := filepath.Join(im.cfg.ProcessedDir, filepath.Base(input))
		if err := os.Rename(input, dest); err != nil {
			im.log.Warn("cannot move processed input", zap.String("file", input), zap.Error(err))
			continue
		}
		if dir, ok := unpacked[input]; ok {
			if err := os.RemoveAll(dir); err != nil {
				im.log.Warn("cannot remove extracted files", zap.String("dir", dir), zap.Error(err))
			}
		}
	}
}

func (im *Importer) retry(operation string) resilience.RetryConfig {
	return im.cfg.Retry.Observed("ingest", operation)
}
