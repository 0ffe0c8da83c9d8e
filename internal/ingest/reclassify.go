package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/classify"
	"github.com/matviet/outbound-cli/internal/metrics"
	"github.com/matviet/outbound-cli/internal/resilience"
	"github.com/matviet/outbound-cli/internal/store"
)

// ReclassifyConfig tunes a Reclassifier. UpdateBatchSize must stay below
// FetchPageSize.
type ReclassifyConfig struct {
	FetchPageSize   int
	UpdateBatchSize int
	PagePacer       resilience.Pacer
	BatchPacer      resilience.Pacer
	Retry           resilience.RetryConfig
}

// ReclassifyScope selects the rows to revisit. OnlyUnclassified limits the
// run to rows with no campaign type.
type ReclassifyScope struct {
	OnlyUnclassified bool
	ReportMonth      *time.Time
}

func (s ReclassifyScope) filter() store.Filter {
	var f store.Filter
	if s.OnlyUnclassified {
		f = f.And(store.IsNull("campaign_type_id"))
	}
	if s.ReportMonth != nil {
		f = f.And(store.Eq("report_month", *s.ReportMonth))
	}
	return f
}

// ReclassifyResult summarizes a run.
type ReclassifyResult struct {
	Pages       int                     `json:"pages"`
	Scanned     int                     `json:"scanned"`
	Updated     int                     `json:"updated"`
	Unchanged   int                     `json:"unchanged"`
	ByCategory  map[string]int          `json:"by_category"`
	DeadLetters []resilience.DeadLetter `json:"dead_letters,omitempty"`
}

// Reclassifier re-runs the classifier over stored messages and writes back
// campaign_type_id and voucher_code where they changed.
type Reclassifier struct {
	store      store.Store
	taxonomy   *classify.Taxonomy
	classifier *classify.Classifier
	cfg        ReclassifyConfig
	log        *zap.Logger
}

// NewReclassifier returns a Reclassifier. Nil pacers never wait.
func NewReclassifier(s store.Store, tax *classify.Taxonomy, cfg ReclassifyConfig) (*Reclassifier, error) {
	if cfg.FetchPageSize <= 0 || cfg.UpdateBatchSize <= 0 {
		return nil, eris.New("ingest: reclassify page and batch sizes must be positive")
	}
	if cfg.UpdateBatchSize >= cfg.FetchPageSize {
		return nil, eris.Errorf("ingest: reclassify batch size %d must be smaller than page size %d",
			cfg.UpdateBatchSize, cfg.FetchPageSize)
	}
	if cfg.PagePacer == nil {
		cfg.PagePacer = resilience.Unpaced()
	}
	if cfg.BatchPacer == nil {
		cfg.BatchPacer = resilience.Unpaced()
	}
	return &Reclassifier{
		store:      s,
		taxonomy:   tax,
		classifier: tax.Classifier(),
		cfg:        cfg,
		log:        zap.L().With(zap.String("component", "ingest.reclassify")),
	}, nil
}

// change is one pending write: the rows that get the same campaign type
// and voucher.
type change struct {
	typeID  *string
	voucher *string
	ids     []string
}

func (c change) row() store.Row {
	r := store.Row{"campaign_type_id": c.typeID}
	if c.voucher != nil {
		r["voucher_code"] = *c.voucher
	}
	return r
}

// Run pages through the scope and updates every row whose classification
// changed. In OnlyUnclassified mode updated rows leave the filter, so the
// offset only advances past rows that stay unclassified; otherwise it
// advances by the page.
func (r *Reclassifier) Run(ctx context.Context, scope ReclassifyScope) (ReclassifyResult, error) {
	res := ReclassifyResult{ByCategory: make(map[string]int)}
	filter := scope.filter()
	retry := r.retry("fetch_messages")

	offset := 0
	for {
		if res.Pages > 0 {
			if err := r.cfg.PagePacer.Wait(ctx); err != nil {
				return res, eris.Wrap(err, "ingest: page pacing")
			}
		}
		rows, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]store.Row, error) {
			return r.store.Fetch(ctx, store.Query{
				Table:   store.TableMessages,
				Columns: []string{"id", "content", "template_id", "campaign_type_id", "voucher_code"},
				Filter:  filter,
				Offset:  offset,
				Limit:   r.cfg.FetchPageSize,
			})
		})
		if err != nil {
			return res, eris.Wrapf(err, "ingest: fetch messages at offset %d", offset)
		}
		if len(rows) == 0 {
			break
		}
		res.Pages++
		res.Scanned += len(rows)

		changes, unchanged := r.plan(rows, &res)
		res.Unchanged += unchanged

		updated, stay, dead, err := r.apply(ctx, changes, scope.OnlyUnclassified)
		res.Updated += updated
		res.DeadLetters = append(res.DeadLetters, dead...)
		if err != nil {
			return res, err
		}

		if scope.OnlyUnclassified {
			offset += unchanged + stay
		} else {
			offset += len(rows)
		}

		r.log.Info("reclassify page processed",
			zap.Int("page", res.Pages),
			zap.Int("scanned", res.Scanned),
			zap.Int("updated", res.Updated),
			zap.Int("unchanged", res.Unchanged),
		)
	}

	r.log.Info("reclassify complete",
		zap.Bool("only_unclassified", scope.OnlyUnclassified),
		zap.Int("pages", res.Pages),
		zap.Int("updated", res.Updated),
		zap.Int("dead_letters", len(res.DeadLetters)),
	)
	return res, nil
}

// plan classifies a page and groups the rows that need a write.
func (r *Reclassifier) plan(rows []store.Row, res *ReclassifyResult) ([]change, int) {
	var changes []change
	index := make(map[[2]string]int)
	unchanged := 0

	for _, row := range rows {
		result := r.classifier.Classify(row.String("content"), row.String("template_id"))
		typeID := r.taxonomy.ID(result.Category)
		var voucher *string
		if result.VoucherCode != "" {
			v := result.VoucherCode
			voucher = &v
		}

		if sameString(typeID, row.StringPtr("campaign_type_id")) &&
			(voucher == nil || sameString(voucher, row.StringPtr("voucher_code"))) {
			unchanged++
			continue
		}

		res.ByCategory[string(result.Category)]++
		key := [2]string{deref(typeID), deref(voucher)}
		i, ok := index[key]
		if !ok {
			i = len(changes)
			index[key] = i
			changes = append(changes, change{typeID: typeID, voucher: voucher})
		}
		changes[i].ids = append(changes[i].ids, row.String("id"))
	}
	return changes, unchanged
}

// apply writes changes in batches of UpdateBatchSize, falling back to
// per-row writes for a failing batch. stay counts rows that still match
// the unclassified filter afterwards: failed rows and rows whose category
// has no campaign type.
func (r *Reclassifier) apply(ctx context.Context, changes []change, guarded bool) (updated, stay int, dead []resilience.DeadLetter, err error) {
	var guard store.Filter
	if guarded {
		guard = store.Where(store.IsNull("campaign_type_id"))
	}

	for _, c := range changes {
		if c.typeID == nil {
			stay += len(c.ids)
		}
		for start := 0; start < len(c.ids); start += r.cfg.UpdateBatchSize {
			end := min(start+r.cfg.UpdateBatchSize, len(c.ids))
			batch := c.ids[start:end]

			if err := r.cfg.BatchPacer.Wait(ctx); err != nil {
				return updated, stay, dead, eris.Wrap(err, "ingest: batch pacing")
			}
			n, err := r.update(ctx, batch, c, guard)
			if err == nil {
				updated += int(n)
				metrics.RowsReclassified.WithLabelValues(r.category(c)).Add(float64(n))
				continue
			}
			if ctx.Err() != nil {
				return updated, stay, dead, ctx.Err()
			}

			r.log.Warn("batch update failed, falling back to per-row updates",
				zap.Int("rows", len(batch)), zap.Error(err))
			for _, id := range batch {
				n, err := r.update(ctx, []string{id}, c, guard)
				if err != nil {
					if c.typeID != nil {
						stay++
					}
					dl := resilience.NewDeadLetter("reclassify", store.TableMessages, []string{id}, err)
					dl.Log(r.log)
					metrics.DeadLetters.WithLabelValues(dl.Operation, dl.ErrorType).Inc()
					dead = append(dead, dl)
					continue
				}
				updated += int(n)
				metrics.RowsReclassified.WithLabelValues(r.category(c)).Add(float64(n))
			}
		}
	}
	return updated, stay, dead, nil
}

func (r *Reclassifier) update(ctx context.Context, ids []string, c change, guard store.Filter) (int64, error) {
	return resilience.DoVal(ctx, r.retry("update_messages"), func(ctx context.Context) (int64, error) {
		return r.store.Update(ctx, store.TableMessages, ids, c.row(), guard)
	})
}

func (r *Reclassifier) category(c change) string {
	if c.typeID == nil {
		return string(classify.Other)
	}
	if ct, ok := r.taxonomy.ByID(*c.typeID); ok {
		return string(classify.CategoryKey(ct.Name))
	}
	return "unknown"
}

func (r *Reclassifier) retry(operation string) resilience.RetryConfig {
	return r.cfg.Retry.Observed("reclassify", operation)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
