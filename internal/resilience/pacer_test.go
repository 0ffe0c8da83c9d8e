package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPacer_FirstCallImmediate(t *testing.T) {
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// the second call would wait an hour, past the deadline
	assert.Error(t, p.Wait(ctx))
}

func TestUnpaced_NeverWaits(t *testing.T) {
	p := Unpaced()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	require.NoError(t, NewPacer(0).Wait(context.Background()))
}
