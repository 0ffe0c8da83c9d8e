package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(RowsLinked)
	RowsLinked.Add(3)
	assert.Equal(t, before+3, testutil.ToFloat64(RowsLinked))

	c := MessagesDropped.WithLabelValues("invalid_phone")
	before = testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
