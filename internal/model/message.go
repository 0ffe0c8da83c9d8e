package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/matviet/outbound-cli/internal/store"
)

// Channel is the delivery channel of a message.
type Channel string

const (
	ChannelSMS Channel = "sms"
	ChannelZNS Channel = "zns"
)

// Channels lists every channel in reporting order.
var Channels = []Channel{ChannelSMS, ChannelZNS}

// ParseChannel validates a channel filter. The empty string means every
// channel.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case "", ChannelSMS, ChannelZNS:
		return c, nil
	}
	return "", eris.Errorf("model: unknown channel %q (want sms or zns)", s)
}

// ChannelFromMessageType maps the provider's message type column to a
// channel: anything mentioning Zalo is a ZNS notification, the rest is SMS.
func ChannelFromMessageType(messageType string) Channel {
	if strings.Contains(strings.ToLower(messageType), "zalo") {
		return ChannelZNS
	}
	return ChannelSMS
}

// MessageRecord is one outbound SMS or ZNS message event.
type MessageRecord struct {
	ID             string    `json:"id"`
	MessageID      *string   `json:"message_id,omitempty"`
	MessageType    string    `json:"message_type,omitempty"`
	Brandname      string    `json:"brandname,omitempty"`
	Channel        Channel   `json:"channel"`
	Phone          string    `json:"phone"`
	CustomerID     *string   `json:"customer_id,omitempty"`
	Content        string    `json:"content,omitempty"`
	TemplateID     *string   `json:"template_id,omitempty"`
	CampaignTypeID *string   `json:"campaign_type_id,omitempty"`
	VoucherCode    *string   `json:"voucher_code,omitempty"`
	Network        string    `json:"network,omitempty"`
	SentAt         time.Time `json:"sent_at"`
	TotalMT        int       `json:"total_mt"`
	SuccessCount   int       `json:"success_count"`
	FailCount      int       `json:"fail_count"`
	UnitPrice      float64   `json:"unit_price"`
	TotalCost      float64   `json:"total_cost"`
	ReportMonth    time.Time `json:"report_month"`
	SourceFile     string    `json:"source_file,omitempty"`
}

// EffectiveMT is the billed part count; a missing or zero count bills once.
func (m MessageRecord) EffectiveMT() int {
	if m.TotalMT <= 0 {
		return 1
	}
	return m.TotalMT
}

// Cost is unit_price × total_mt. It is the canonical cost; the stored
// TotalCost is whatever the provider report carried.
func (m MessageRecord) Cost() float64 {
	return m.UnitPrice * float64(m.EffectiveMT())
}

// Row converts m to a row-store row.
func (m MessageRecord) Row() store.Row {
	return store.Row{
		"id":               m.ID,
		"message_id":       m.MessageID,
		"message_type":     nullable(m.MessageType),
		"brandname":        nullable(m.Brandname),
		"channel":          string(m.Channel),
		"phone":            m.Phone,
		"customer_id":      m.CustomerID,
		"content":          nullable(m.Content),
		"template_id":      m.TemplateID,
		"campaign_type_id": m.CampaignTypeID,
		"voucher_code":     m.VoucherCode,
		"network":          nullable(m.Network),
		"sent_at":          m.SentAt,
		"total_mt":         m.EffectiveMT(),
		"success_count":    m.SuccessCount,
		"fail_count":       m.FailCount,
		"unit_price":       m.UnitPrice,
		"total_cost":       m.TotalCost,
		"report_month":     m.ReportMonth,
		"source_file":      nullable(m.SourceFile),
	}
}

// MessageFromRow converts a row-store row back to a MessageRecord. Columns
// missing from a partial select are left at their zero value.
func MessageFromRow(r store.Row) MessageRecord {
	return MessageRecord{
		ID:             r.String("id"),
		MessageID:      r.StringPtr("message_id"),
		MessageType:    r.String("message_type"),
		Brandname:      r.String("brandname"),
		Channel:        Channel(r.String("channel")),
		Phone:          r.String("phone"),
		CustomerID:     r.StringPtr("customer_id"),
		Content:        r.String("content"),
		TemplateID:     r.StringPtr("template_id"),
		CampaignTypeID: r.StringPtr("campaign_type_id"),
		VoucherCode:    r.StringPtr("voucher_code"),
		Network:        r.String("network"),
		SentAt:         r.Time("sent_at"),
		TotalMT:        int(r.Int("total_mt")),
		SuccessCount:   int(r.Int("success_count")),
		FailCount:      int(r.Int("fail_count")),
		UnitPrice:      r.Float("unit_price"),
		TotalCost:      r.Float("total_cost"),
		ReportMonth:    r.Time("report_month"),
		SourceFile:     r.String("source_file"),
	}
}

// MonthStart truncates t to the first day of its month in UTC.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
