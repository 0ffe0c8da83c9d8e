// Package stats rebuilds the cached message rollups that the report API
// serves.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matviet/outbound-cli/internal/metrics"
	"github.com/matviet/outbound-cli/internal/model"
	"github.com/matviet/outbound-cli/internal/resilience"
	"github.com/matviet/outbound-cli/internal/store"
)

// streamColumns are the message columns an aggregate is computed from.
var streamColumns = []string{"id", "phone", "customer_id", "success_count", "fail_count", "unit_price", "total_mt"}

// Config tunes an Aggregator.
type Config struct {
	PageSize    int
	Concurrency int              // grouping families refreshed at once by RefreshAll
	Pacer       resilience.Pacer // waited on before every page after a key's first
	Retry       resilience.RetryConfig
}

// Aggregator rebuilds aggregate families from the message table. A refresh
// never merges: it computes every row of the family, deletes the family
// and inserts the new rows, so running it twice over the same messages
// leaves identical rows.
type Aggregator struct {
	store store.Store
	cfg   Config
	log   *zap.Logger
}

// New returns an Aggregator. A nil pacer never waits; Concurrency below 1
// is treated as 1.
func New(s store.Store, cfg Config) (*Aggregator, error) {
	if cfg.PageSize <= 0 {
		return nil, eris.New("stats: page size must be positive")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Pacer == nil {
		cfg.Pacer = resilience.Unpaced()
	}
	return &Aggregator{
		store: s,
		cfg:   cfg,
		log:   zap.L().With(zap.String("component", "stats.aggregator")),
	}, nil
}

// groupKey is one aggregate row to compute: the key fields already set on
// stat and the message filter that selects its rows.
type groupKey struct {
	stat   model.AggregateStat
	filter store.Filter
}

// Refresh rebuilds the aggregate family g and returns the number of rows
// written. Keys with no messages produce no row.
func (a *Aggregator) Refresh(ctx context.Context, g model.Grouping) (int, error) {
	start := time.Now()
	log := a.log.With(zap.String("grouping", string(g)))

	keys, err := a.keys(ctx, g)
	if err != nil {
		return 0, err
	}

	rows := make([]store.Row, 0, len(keys))
	for _, k := range keys {
		stat, ok, err := a.compute(ctx, k)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		rows = append(rows, stat.Row())
	}

	if err := a.replace(ctx, g, rows); err != nil {
		return 0, err
	}
	metrics.AggregateRowsWritten.WithLabelValues(string(g)).Add(float64(len(rows)))

	log.Info("aggregate family refreshed",
		zap.Int("keys", len(keys)),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return len(rows), nil
}

// RefreshAll refreshes each grouping, up to Concurrency at a time. Families
// live in separate tables and read disjoint keys, so they never race.
func (a *Aggregator) RefreshAll(ctx context.Context, groupings ...model.Grouping) (map[model.Grouping]int, error) {
	if len(groupings) == 0 {
		groupings = model.Groupings
	}

	var mu sync.Mutex
	written := make(map[model.Grouping]int, len(groupings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for _, grouping := range groupings {
		g.Go(func() error {
			n, err := a.Refresh(gctx, grouping)
			if err != nil {
				return eris.Wrapf(err, "stats: refresh %s", grouping)
			}
			mu.Lock()
			written[grouping] = n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return written, err
	}
	return written, nil
}

func (a *Aggregator) keys(ctx context.Context, g model.Grouping) ([]groupKey, error) {
	switch g {
	case model.GroupingMonthly:
		return a.monthlyKeys(ctx)
	case model.GroupingCampaign:
		return a.campaignKeys(ctx)
	}
	return nil, eris.Errorf("stats: unknown grouping %q", g)
}

// monthlyKeys is every distinct report month crossed with every channel.
func (a *Aggregator) monthlyKeys(ctx context.Context) ([]groupKey, error) {
	values, err := resilience.DoVal(ctx, a.retry("distinct_months"), func(ctx context.Context) ([]any, error) {
		return a.store.Distinct(ctx, store.TableMessages, "report_month", nil)
	})
	if err != nil {
		return nil, eris.Wrap(err, "stats: list report months")
	}

	var keys []groupKey
	for _, v := range values {
		month, ok := store.AsTime(v)
		if !ok {
			a.log.Warn("skipping unparsable report month", zap.Any("value", v))
			continue
		}
		for _, ch := range model.Channels {
			keys = append(keys, groupKey{
				stat: model.AggregateStat{
					Grouping:    model.GroupingMonthly,
					ReportMonth: &month,
					Channel:     ch,
				},
				filter: store.Where(
					store.Eq("report_month", month),
					store.Eq("channel", string(ch)),
				),
			})
		}
	}
	return keys, nil
}

// campaignKeys is "Uncategorized" plus every campaign type by name, each
// crossed with every channel.
func (a *Aggregator) campaignKeys(ctx context.Context) ([]groupKey, error) {
	rows, err := resilience.DoVal(ctx, a.retry("fetch_campaign_types"), func(ctx context.Context) ([]store.Row, error) {
		return a.store.Fetch(ctx, store.Query{
			Table:   store.TableCampaignTypes,
			OrderBy: "name",
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "stats: fetch campaign types")
	}

	var keys []groupKey
	for _, ch := range model.Channels {
		keys = append(keys, groupKey{
			stat: model.AggregateStat{
				Grouping:     model.GroupingCampaign,
				CampaignName: model.UncategorizedCampaign,
				Channel:      ch,
			},
			filter: store.Where(
				store.IsNull("campaign_type_id"),
				store.Eq("channel", string(ch)),
			),
		})
	}
	for _, r := range rows {
		ct := model.CampaignTypeFromRow(r)
		for _, ch := range model.Channels {
			id, intent := ct.ID, ct.ConversionIntent
			keys = append(keys, groupKey{
				stat: model.AggregateStat{
					Grouping:         model.GroupingCampaign,
					CampaignName:     ct.Name,
					CampaignTypeID:   &id,
					ConversionIntent: &intent,
					Channel:          ch,
				},
				filter: store.Where(
					store.Eq("campaign_type_id", id),
					store.Eq("channel", string(ch)),
				),
			})
		}
	}
	return keys, nil
}

// compute streams the key's messages in id order and fills in the
// measures. ok is false when the key has no messages.
func (a *Aggregator) compute(ctx context.Context, k groupKey) (model.AggregateStat, bool, error) {
	stat := k.stat

	n, err := resilience.DoVal(ctx, a.retry("count_messages"), func(ctx context.Context) (int64, error) {
		return a.store.Count(ctx, store.TableMessages, k.filter)
	})
	if err != nil {
		return stat, false, eris.Wrap(err, "stats: count messages")
	}
	if n == 0 {
		return stat, false, nil
	}

	acc := newAccumulator()
	retry := a.retry("fetch_messages")
	for offset := 0; ; {
		if offset > 0 {
			if err := a.cfg.Pacer.Wait(ctx); err != nil {
				return stat, false, eris.Wrap(err, "stats: page pacing")
			}
		}
		rows, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]store.Row, error) {
			return a.store.Fetch(ctx, store.Query{
				Table:   store.TableMessages,
				Columns: streamColumns,
				Filter:  k.filter,
				Offset:  offset,
				Limit:   a.cfg.PageSize,
			})
		})
		if err != nil {
			return stat, false, eris.Wrapf(err, "stats: fetch messages at offset %d", offset)
		}
		for _, r := range rows {
			acc.add(model.MessageFromRow(r))
		}
		offset += len(rows)
		if len(rows) < a.cfg.PageSize {
			break
		}
	}

	if acc.messages == 0 {
		return stat, false, nil
	}
	acc.fill(&stat)
	return stat, true, nil
}

// replace swaps the family's rows for rows: delete everything, then insert.
func (a *Aggregator) replace(ctx context.Context, g model.Grouping, rows []store.Row) error {
	table := g.Table()
	deleted, err := resilience.DoVal(ctx, a.retry("delete_aggregates"), func(ctx context.Context) (int64, error) {
		return a.store.Delete(ctx, table, nil)
	})
	if err != nil {
		return eris.Wrapf(err, "stats: clear %s", table)
	}
	a.log.Debug("aggregate family cleared", zap.String("table", table), zap.Int64("rows", deleted))

	if len(rows) == 0 {
		return nil
	}
	err = resilience.Do(ctx, a.retry("insert_aggregates"), func(ctx context.Context) error {
		_, err := a.store.Insert(ctx, table, rows)
		return err
	})
	if err != nil {
		return eris.Wrapf(err, "stats: insert %s", table)
	}
	return nil
}

func (a *Aggregator) retry(operation string) resilience.RetryConfig {
	return a.cfg.Retry.Observed("stats", operation)
}
