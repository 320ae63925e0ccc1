package workerpool

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapBoundsConcurrency(t *testing.T) {
	var current, peak atomic.Int32
	items := make([]int, 16)

	Map(context.Background(), items, 3, func(context.Context, int) (struct{}, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestMapKeepsOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	results := Map(context.Background(), items, 2, func(_ context.Context, i int) (string, error) {
		time.Sleep(time.Duration(i) * time.Millisecond)
		if i == 4 {
			return "", errors.New("four")
		}
		return strconv.Itoa(i * 10), nil
	})

	require.Len(t, results, 5)
	assert.Equal(t, "50", results[0].Value)
	assert.Equal(t, "10", results[1].Value)
	assert.False(t, results[2].OK())
	assert.True(t, results[3].OK())
	assert.Equal(t, "30", results[4].Value)
}

func TestMapCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results := Map(ctx, []int{1, 2}, 0, func(context.Context, int) (int, error) {
		calls.Add(1)
		return 1, nil
	})
	for _, r := range results {
		require.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Zero(t, calls.Load())
}
