package model

import "github.com/matviet/outbound-cli/internal/store"

// ConversionIntent says whether a campaign type drives revenue.
type ConversionIntent string

const (
	IntentSales         ConversionIntent = "sales"
	IntentInformational ConversionIntent = "informational"
)

// Valid reports whether i is a known intent.
func (i ConversionIntent) Valid() bool {
	return i == IntentSales || i == IntentInformational
}

// CampaignType is one entry of the campaign taxonomy.
type CampaignType struct {
	ID               string           `json:"id" yaml:"-"`
	Name             string           `json:"name" yaml:"name"`
	ConversionIntent ConversionIntent `json:"conversion_intent" yaml:"conversion_intent"`
}

func (c CampaignType) Row() store.Row {
	return store.Row{
		"id":                c.ID,
		"name":              c.Name,
		"conversion_intent": string(c.ConversionIntent),
	}
}

func CampaignTypeFromRow(r store.Row) CampaignType {
	return CampaignType{
		ID:               r.String("id"),
		Name:             r.String("name"),
		ConversionIntent: ConversionIntent(r.String("conversion_intent")),
	}
}

// Customer is the slice of the external customer entity the pipeline reads.
type Customer struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
}

func CustomerFromRow(r store.Row) Customer {
	return Customer{ID: r.String("id"), Phone: r.String("phone")}
}
