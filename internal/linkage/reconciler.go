package linkage

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/metrics"
	"github.com/matviet/outbound-cli/internal/model"
	"github.com/matviet/outbound-cli/internal/resilience"
	"github.com/matviet/outbound-cli/internal/store"
)

// Config tunes a Reconciler. UpdateBatchSize must stay below FetchPageSize:
// the store accepts smaller writes than reads.
type Config struct {
	FetchPageSize   int
	UpdateBatchSize int
	PagePacer       resilience.Pacer // waited on before every page after the first
	BatchPacer      resilience.Pacer // waited on before every batched update
	Retry           resilience.RetryConfig
}

func (c Config) validate() error {
	if c.FetchPageSize <= 0 || c.UpdateBatchSize <= 0 {
		return eris.New("linkage: page and batch sizes must be positive")
	}
	if c.UpdateBatchSize >= c.FetchPageSize {
		return eris.Errorf("linkage: update batch size %d must be smaller than fetch page size %d",
			c.UpdateBatchSize, c.FetchPageSize)
	}
	return nil
}

// Scope restricts a run to one report month and/or channel. The zero
// Scope covers every unlinked message.
type Scope struct {
	ReportMonth *time.Time
	Channel     model.Channel
}

func (s Scope) filter() store.Filter {
	f := store.Where(store.IsNull("customer_id"))
	if s.ReportMonth != nil {
		f = f.And(store.Eq("report_month", *s.ReportMonth))
	}
	if s.Channel != "" {
		f = f.And(store.Eq("channel", string(s.Channel)))
	}
	return f
}

func (s Scope) fields() []zap.Field {
	fields := []zap.Field{zap.String("channel", string(s.Channel))}
	if s.ReportMonth != nil {
		fields = append(fields, zap.String("report_month", s.ReportMonth.Format("2006-01")))
	}
	return fields
}

// Result summarizes a run.
type Result struct {
	Pages       int                     `json:"pages"`
	Fetched     int                     `json:"fetched"`
	Linked      int                     `json:"linked"`
	Unmatched   int                     `json:"unmatched"`
	DeadLetters []resilience.DeadLetter `json:"dead_letters,omitempty"`
}

func (r *Result) add(o Result) {
	r.Pages += o.Pages
	r.Fetched += o.Fetched
	r.Linked += o.Linked
	r.Unmatched += o.Unmatched
	r.DeadLetters = append(r.DeadLetters, o.DeadLetters...)
}

// Reconciler links unlinked messages to customers by phone.
//
// Each page is fetched with the filter "customer_id IS NULL" and every
// update repeats that filter as a guard, so a row is linked at most once
// even if two runs overlap, and an interrupted run is finished by simply
// running again. Linked rows drop out of the filter, so the page offset only
// advances past rows that stay unlinked.
type Reconciler struct {
	store store.Store
	index *PhoneIndex
	cfg   Config
	log   *zap.Logger
}

// New returns a Reconciler over index. Nil pacers never wait.
func New(s store.Store, index *PhoneIndex, cfg Config) (*Reconciler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if index == nil {
		return nil, eris.New("linkage: phone index is nil")
	}
	if cfg.PagePacer == nil {
		cfg.PagePacer = resilience.Unpaced()
	}
	if cfg.BatchPacer == nil {
		cfg.BatchPacer = resilience.Unpaced()
	}
	return &Reconciler{
		store: s,
		index: index,
		cfg:   cfg,
		log:   zap.L().With(zap.String("component", "linkage.reconciler")),
	}, nil
}

// Reconcile links every linkable message in scope and returns the counts.
// A returned error means a page could not be read after retries; the rows
// linked before it stay linked.
func (r *Reconciler) Reconcile(ctx context.Context, scope Scope) (Result, error) {
	var res Result
	filter := scope.filter()
	log := r.log.With(scope.fields()...)

	retry := r.cfg.Retry.Observed("linkage", "fetch_messages")

	offset := 0
	for {
		if res.Pages > 0 {
			if err := r.cfg.PagePacer.Wait(ctx); err != nil {
				return res, eris.Wrap(err, "linkage: page pacing")
			}
		}

		// A failed read is retried at the same offset; the loop never
		// advances past a page it did not see.
		rows, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]store.Row, error) {
			return r.store.Fetch(ctx, store.Query{
				Table:   store.TableMessages,
				Columns: []string{"id", "phone"},
				Filter:  filter,
				Offset:  offset,
				Limit:   r.cfg.FetchPageSize,
			})
		})
		if err != nil {
			return res, eris.Wrapf(err, "linkage: fetch messages at offset %d", offset)
		}
		if len(rows) == 0 {
			break
		}
		res.Pages++
		res.Fetched += len(rows)

		groups, order, unmatched := r.group(rows)
		res.Unmatched += unmatched

		linked, failed, dead, err := r.apply(ctx, groups, order)
		res.Linked += linked
		res.DeadLetters = append(res.DeadLetters, dead...)
		if err != nil {
			return res, err
		}

		offset += unmatched + failed

		log.Info("linkage page processed",
			zap.Int("page", res.Pages),
			zap.Int("fetched", res.Fetched),
			zap.Int("linked", res.Linked),
			zap.Int("unmatched", res.Unmatched),
		)
	}

	log.Info("linkage complete",
		zap.Int("pages", res.Pages),
		zap.Int("linked", res.Linked),
		zap.Int("unmatched", res.Unmatched),
		zap.Int("dead_letters", len(res.DeadLetters)),
	)
	return res, nil
}

// ReconcileMonths runs Reconcile once per distinct report month in the
// message table, oldest first, restricted to channel when set.
func (r *Reconciler) ReconcileMonths(ctx context.Context, channel model.Channel) (Result, error) {
	values, err := resilience.DoVal(ctx, r.cfg.Retry.Observed("linkage", "distinct_months"), func(ctx context.Context) ([]any, error) {
		return r.store.Distinct(ctx, store.TableMessages, "report_month", nil)
	})
	if err != nil {
		return Result{}, eris.Wrap(err, "linkage: list report months")
	}

	var total Result
	for _, v := range values {
		month, ok := store.AsTime(v)
		if !ok {
			r.log.Warn("skipping unparsable report month", zap.Any("value", v))
			continue
		}
		res, err := r.Reconcile(ctx, Scope{ReportMonth: &month, Channel: channel})
		total.add(res)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// group buckets matched rows by customer. order keeps customers in first-
// seen order so writes are issued deterministically.
func (r *Reconciler) group(rows []store.Row) (map[string][]string, []string, int) {
	groups := make(map[string][]string)
	var order []string
	unmatched := 0
	for _, row := range rows {
		customerID, ok := r.index.Lookup(row.String("phone"))
		if !ok {
			unmatched++
			continue
		}
		if _, seen := groups[customerID]; !seen {
			order = append(order, customerID)
		}
		groups[customerID] = append(groups[customerID], row.String("id"))
	}
	return groups, order, unmatched
}

// apply writes customer_id in batches of UpdateBatchSize. A batch that
// still fails after retries is retried one row at a time; rows that fail
// alone become dead letters. It returns rows linked and rows left unlinked
// by failures.
func (r *Reconciler) apply(ctx context.Context, groups map[string][]string, order []string) (int, int, []resilience.DeadLetter, error) {
	linked, failed := 0, 0
	var dead []resilience.DeadLetter

	for _, customerID := range order {
		ids := groups[customerID]
		for start := 0; start < len(ids); start += r.cfg.UpdateBatchSize {
			end := min(start+r.cfg.UpdateBatchSize, len(ids))
			batch := ids[start:end]

			if err := r.cfg.BatchPacer.Wait(ctx); err != nil {
				return linked, failed, dead, eris.Wrap(err, "linkage: batch pacing")
			}
			n, err := r.link(ctx, batch, customerID)
			if err == nil {
				linked += int(n)
				metrics.RowsLinked.Add(float64(n))
				continue
			}
			if ctx.Err() != nil {
				return linked, failed, dead, ctx.Err()
			}

			r.log.Warn("batch update failed, falling back to per-row updates",
				zap.String("customer_id", customerID),
				zap.Int("rows", len(batch)),
				zap.Error(err),
			)
			for _, id := range batch {
				n, err := r.link(ctx, []string{id}, customerID)
				if err != nil {
					failed++
					dl := resilience.NewDeadLetter("link", store.TableMessages, []string{id}, err)
					dl.Log(r.log)
					metrics.DeadLetters.WithLabelValues(dl.Operation, dl.ErrorType).Inc()
					dead = append(dead, dl)
					continue
				}
				linked += int(n)
				metrics.RowsLinked.Add(float64(n))
			}
		}
	}
	return linked, failed, dead, nil
}

func (r *Reconciler) link(ctx context.Context, ids []string, customerID string) (int64, error) {
	return resilience.DoVal(ctx, r.cfg.Retry.Observed("linkage", "update_messages"), func(ctx context.Context) (int64, error) {
		return r.store.Update(ctx, store.TableMessages, ids,
			store.Row{"customer_id": customerID},
			store.Where(store.IsNull("customer_id")),
		)
	})
}
