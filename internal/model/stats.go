package model

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/matviet/outbound-cli/internal/store"
)

// Grouping names an aggregate family.
type Grouping string

const (
	GroupingMonthly  Grouping = "monthly"
	GroupingCampaign Grouping = "campaign"
)

// Groupings lists every family in refresh order.
var Groupings = []Grouping{GroupingMonthly, GroupingCampaign}

// UncategorizedCampaign is the campaign name reported for messages with no
// campaign type.
const UncategorizedCampaign = "Uncategorized"

// ParseGrouping validates a grouping name from flags or query strings.
func ParseGrouping(s string) (Grouping, error) {
	switch g := Grouping(s); g {
	case GroupingMonthly, GroupingCampaign:
		return g, nil
	}
	return "", eris.Errorf("model: unknown grouping %q (want monthly or campaign)", s)
}

// Table is the cache table the grouping's aggregates live in.
func (g Grouping) Table() string {
	if g == GroupingCampaign {
		return store.TableCampaignStats
	}
	return store.TableMonthlyStats
}

// AggregateStat is one derived rollup row. Monthly rows carry ReportMonth;
// campaign rows carry the campaign fields.
type AggregateStat struct {
	Grouping           Grouping          `json:"-"`
	ReportMonth        *time.Time        `json:"report_month,omitempty"`
	CampaignName       string            `json:"campaign_name,omitempty"`
	CampaignTypeID     *string           `json:"campaign_type_id,omitempty"`
	ConversionIntent   *ConversionIntent `json:"conversion_intent,omitempty"`
	Channel            Channel           `json:"channel"`
	TotalMessages      int64             `json:"total_messages"`
	SuccessfulMessages int64             `json:"successful_messages"`
	FailedMessages     int64             `json:"failed_messages"`
	UniqueRecipients   int64             `json:"unique_recipients"`
	LinkedRecipients   int64             `json:"linked_recipients"`
	TotalCost          float64           `json:"total_cost"`
}

func (a AggregateStat) Row() store.Row {
	r := store.Row{
		"channel":             string(a.Channel),
		"total_messages":      a.TotalMessages,
		"successful_messages": a.SuccessfulMessages,
		"failed_messages":     a.FailedMessages,
		"unique_recipients":   a.UniqueRecipients,
		"linked_recipients":   a.LinkedRecipients,
		"total_cost":          a.TotalCost,
	}
	if a.Grouping == GroupingCampaign {
		r["campaign_name"] = a.CampaignName
		r["campaign_type_id"] = a.CampaignTypeID
		var intent any
		if a.ConversionIntent != nil {
			intent = string(*a.ConversionIntent)
		}
		r["conversion_intent"] = intent
		return r
	}
	var month any
	if a.ReportMonth != nil {
		month = *a.ReportMonth
	}
	r["report_month"] = month
	return r
}

func AggregateStatFromRow(g Grouping, r store.Row) AggregateStat {
	a := AggregateStat{
		Grouping:           g,
		Channel:            Channel(r.String("channel")),
		TotalMessages:      r.Int("total_messages"),
		SuccessfulMessages: r.Int("successful_messages"),
		FailedMessages:     r.Int("failed_messages"),
		UniqueRecipients:   r.Int("unique_recipients"),
		LinkedRecipients:   r.Int("linked_recipients"),
		TotalCost:          r.Float("total_cost"),
	}
	if g == GroupingCampaign {
		a.CampaignName = r.String("campaign_name")
		a.CampaignTypeID = r.StringPtr("campaign_type_id")
		if s := r.StringPtr("conversion_intent"); s != nil {
			intent := ConversionIntent(*s)
			a.ConversionIntent = &intent
		}
		return a
	}
	a.ReportMonth = r.TimePtr("report_month")
	return a
}
