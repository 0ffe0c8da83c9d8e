package stats

import (
	"cmp"
	"context"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/matviet/outbound-cli/internal/model"
	"github.com/matviet/outbound-cli/internal/store"
)

// ListMonthly returns the cached monthly rollups, oldest month first, sms
// before zns. An empty channel returns both.
func ListMonthly(ctx context.Context, s store.Store, channel model.Channel) ([]model.AggregateStat, error) {
	stats, err := list(ctx, s, model.GroupingMonthly, channel)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(stats, func(a, b model.AggregateStat) int {
		if c := a.ReportMonth.Compare(*b.ReportMonth); c != 0 {
			return c
		}
		return cmp.Compare(a.Channel, b.Channel)
	})
	return stats, nil
}

// ListCampaigns returns the cached campaign rollups, busiest first.
func ListCampaigns(ctx context.Context, s store.Store, channel model.Channel) ([]model.AggregateStat, error) {
	stats, err := list(ctx, s, model.GroupingCampaign, channel)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(stats, func(a, b model.AggregateStat) int {
		if c := cmp.Compare(b.TotalMessages, a.TotalMessages); c != 0 {
			return c
		}
		if c := cmp.Compare(a.CampaignName, b.CampaignName); c != 0 {
			return c
		}
		return cmp.Compare(a.Channel, b.Channel)
	})
	return stats, nil
}

func list(ctx context.Context, s store.Store, g model.Grouping, channel model.Channel) ([]model.AggregateStat, error) {
	var filter store.Filter
	if channel != "" {
		filter = store.Where(store.Eq("channel", string(channel)))
	}
	rows, err := s.Fetch(ctx, store.Query{Table: g.Table(), Filter: filter})
	if err != nil {
		return nil, eris.Wrapf(err, "stats: list %s", g)
	}
	stats := make([]model.AggregateStat, 0, len(rows))
	for _, r := range rows {
		a := model.AggregateStatFromRow(g, r)
		if g == model.GroupingMonthly && a.ReportMonth == nil {
			continue
		}
		stats = append(stats, a)
	}
	return stats, nil
}
