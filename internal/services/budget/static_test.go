package budget

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticServiceAllowance(t *testing.T) {
	ctx := context.Background()
	svc := NewStaticService(map[string]float64{
		"alice": 10.0,
		"bob":   0, // unlimited
	})

	t.Run("under budget is allowed", func(t *testing.T) {
		allowed, err := svc.CheckAllowance(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("unknown user is allowed", func(t *testing.T) {
		allowed, err := svc.CheckAllowance(ctx, "carol")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("unlimited user is allowed", func(t *testing.T) {
		require.NoError(t, svc.DeductFunds(ctx, "bob", 1e6))
		allowed, err := svc.CheckAllowance(ctx, "bob")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("exhausted budget is denied", func(t *testing.T) {
		require.NoError(t, svc.DeductFunds(ctx, "alice", 10.0))
		allowed, err := svc.CheckAllowance(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}

func TestStaticServiceRemainingPercentage(t *testing.T) {
	ctx := context.Background()
	svc := NewStaticService(map[string]float64{"alice": 100.0})

	pct, err := svc.RemainingBudgetPercentage(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pct, 1e-12)

	require.NoError(t, svc.DeductFunds(ctx, "alice", 91.0))
	pct, err = svc.RemainingBudgetPercentage(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 0.09, pct, 1e-12)

	// Overspend clamps at zero.
	require.NoError(t, svc.DeductFunds(ctx, "alice", 50.0))
	pct, err = svc.RemainingBudgetPercentage(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, pct)

	// Unknown users always report a full budget.
	pct, err = svc.RemainingBudgetPercentage(ctx, "nobody")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pct, 1e-12)
}

func TestStaticServiceConcurrentDeductions(t *testing.T) {
	ctx := context.Background()
	svc := NewStaticService(map[string]float64{"alice": 1000.0})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = svc.DeductFunds(ctx, "alice", 1.0)
			}
		}()
	}
	wg.Wait()

	pct, err := svc.RemainingBudgetPercentage(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, pct, 1e-12, "100 deductions of 1.0 against 1000")
}
