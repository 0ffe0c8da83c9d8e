// Package linkage fills in customer_id on message rows by matching
// normalized phone numbers against the customer set.
package linkage

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/model"
	"github.com/matviet/outbound-cli/internal/phone"
	"github.com/matviet/outbound-cli/internal/resilience"
	"github.com/matviet/outbound-cli/internal/store"
)

// PhoneIndex maps canonical phones to customer ids. When several customers
// share a phone the one read last wins; customers are read in id order, so
// the winner is the customer with the greatest id.
type PhoneIndex struct {
	byPhone map[string]string

	Customers  int // customers read
	Invalid    int // customers whose phone did not normalize
	Duplicates int // phones claimed by more than one customer
}

// NewPhoneIndex indexes customers in the given order.
func NewPhoneIndex(customers []model.Customer) *PhoneIndex {
	ix := &PhoneIndex{byPhone: make(map[string]string, len(customers))}
	for _, c := range customers {
		ix.add(c)
	}
	return ix
}

func (ix *PhoneIndex) add(c model.Customer) {
	ix.Customers++
	p, ok := phone.Normalize(c.Phone)
	if !ok {
		ix.Invalid++
		return
	}
	if prev, exists := ix.byPhone[p]; exists && prev != c.ID {
		ix.Duplicates++
	}
	ix.byPhone[p] = c.ID
}

// Lookup normalizes raw and returns the customer id it maps to.
func (ix *PhoneIndex) Lookup(raw string) (string, bool) {
	p, ok := phone.Normalize(raw)
	if !ok {
		return "", false
	}
	id, ok := ix.byPhone[p]
	return id, ok
}

// Len is the number of distinct indexed phones.
func (ix *PhoneIndex) Len() int { return len(ix.byPhone) }

// BuildIndex reads every customer with a phone in pages of pageSize and
// indexes them. Each page read is retried under retry.
func BuildIndex(ctx context.Context, s store.Store, pageSize int, retry resilience.RetryConfig) (*PhoneIndex, error) {
	if pageSize <= 0 {
		return nil, eris.New("linkage: customer page size must be positive")
	}
	log := zap.L().With(zap.String("component", "linkage.index"))
	retry = retry.Observed("linkage", "fetch_customers")

	ix := &PhoneIndex{byPhone: make(map[string]string)}
	for offset := 0; ; offset += pageSize {
		rows, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]store.Row, error) {
			return s.Fetch(ctx, store.Query{
				Table:   store.TableCustomers,
				Columns: []string{"id", "phone"},
				Filter:  store.Where(store.NotNull("phone")),
				Offset:  offset,
				Limit:   pageSize,
			})
		})
		if err != nil {
			return nil, eris.Wrapf(err, "linkage: fetch customers at offset %d", offset)
		}
		for _, r := range rows {
			ix.add(model.CustomerFromRow(r))
		}
		if len(rows) < pageSize {
			break
		}
	}

	log.Info("customer phone index built",
		zap.Int("customers", ix.Customers),
		zap.Int("phones", ix.Len()),
		zap.Int("duplicates", ix.Duplicates),
		zap.Int("invalid", ix.Invalid),
	)
	return ix, nil
}
