package stats

import "github.com/matviet/outbound-cli/internal/model"

// accumulator folds message rows into aggregate measures.
type accumulator struct {
	messages   int64
	successful int64
	failed     int64
	cost       float64
	phones     map[string]struct{}
	customers  map[string]struct{}
}

func newAccumulator() *accumulator {
	return &accumulator{
		phones:    make(map[string]struct{}),
		customers: make(map[string]struct{}),
	}
}

// add counts one message. Cost is recomputed as unit_price × total_mt; the
// stored total_cost is never read.
func (a *accumulator) add(m model.MessageRecord) {
	a.messages++
	a.successful += int64(m.SuccessCount)
	a.failed += int64(m.FailCount)
	a.cost += m.Cost()
	if m.Phone != "" {
		a.phones[m.Phone] = struct{}{}
	}
	if m.CustomerID != nil && *m.CustomerID != "" {
		a.customers[*m.CustomerID] = struct{}{}
	}
}

func (a *accumulator) fill(s *model.AggregateStat) {
	s.TotalMessages = a.messages
	s.SuccessfulMessages = a.successful
	s.FailedMessages = a.failed
	s.UniqueRecipients = int64(len(a.phones))
	s.LinkedRecipients = int64(len(a.customers))
	s.TotalCost = a.cost
}
