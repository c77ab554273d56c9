package sale

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashsale/core/internal/redisx/redisxtest"
)

func newCoordinator(t *testing.T, totalStock int, now time.Time) *Coordinator {
	t.Helper()
	pool := redisxtest.NewPool()
	cfg := Config{
		TotalStock: totalStock,
		Window:     Window{Start: now.Add(-time.Hour), End: now.Add(time.Hour)},
	}
	c := New(pool, cfg, nil).WithClock(func() time.Time { return now })
	require.NoError(t, c.Initialize())
	return c
}

func TestAttemptPurchase_Success(t *testing.T) {
	now := time.Now()
	c := newCoordinator(t, 5, now)

	outcome, err := c.AttemptPurchase("Alice ")
	require.NoError(t, err)
	assert.Equal(t, Success, outcome.Result)
	require.NotNil(t, outcome.PurchasedAt)

	st, err := c.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, 4, st.RemainingStock)
}

func TestAttemptPurchase_NormalizesUserID(t *testing.T) {
	now := time.Now()
	c := newCoordinator(t, 5, now)

	_, err := c.AttemptPurchase("  Alice  ")
	require.NoError(t, err)

	outcome, err := c.AttemptPurchase("alice")
	require.NoError(t, err)
	assert.Equal(t, AlreadyPurchased, outcome.Result)
}

func TestAttemptPurchase_EmptyUserID(t *testing.T) {
	now := time.Now()
	c := newCoordinator(t, 5, now)

	outcome, err := c.AttemptPurchase("   ")
	require.NoError(t, err)
	assert.Equal(t, InvalidUserID, outcome.Result)
}

func TestAttemptPurchase_OutOfStock(t *testing.T) {
	now := time.Now()
	c := newCoordinator(t, 1, now)

	outcome, err := c.AttemptPurchase("alice")
	require.NoError(t, err)
	assert.Equal(t, Success, outcome.Result)

	outcome, err = c.AttemptPurchase("bob")
	require.NoError(t, err)
	assert.Equal(t, OutOfStock, outcome.Result)
}

func TestAttemptPurchase_ZeroStockAlwaysOutOfStock(t *testing.T) {
	now := time.Now()
	c := newCoordinator(t, 0, now)

	outcome, err := c.AttemptPurchase("alice")
	require.NoError(t, err)
	assert.Equal(t, OutOfStock, outcome.Result)
}

func TestAttemptPurchase_BeforeWindowStart(t *testing.T) {
	now := time.Now()
	pool := redisxtest.NewPool()
	cfg := Config{
		TotalStock: 5,
		Window:     Window{Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)},
	}
	c := New(pool, cfg, nil).WithClock(func() time.Time { return now })
	require.NoError(t, c.Initialize())

	outcome, err := c.AttemptPurchase("alice")
	require.NoError(t, err)
	assert.Equal(t, SaleNotActive, outcome.Result)
}

func TestAttemptPurchase_AfterWindowEnd(t *testing.T) {
	now := time.Now()
	pool := redisxtest.NewPool()
	cfg := Config{
		TotalStock: 5,
		Window:     Window{Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour)},
	}
	c := New(pool, cfg, nil).WithClock(func() time.Time { return now })
	require.NoError(t, c.Initialize())

	outcome, err := c.AttemptPurchase("alice")
	require.NoError(t, err)
	assert.Equal(t, SaleNotActive, outcome.Result)
}

func TestWindow_BoundsAreInclusive(t *testing.T) {
	start := time.Now()
	end := start.Add(time.Hour)
	w := Window{Start: start, End: end}

	assert.Equal(t, Active, w.State(start))
	assert.Equal(t, Active, w.State(end))
	assert.Equal(t, Upcoming, w.State(start.Add(-time.Nanosecond)))
	assert.Equal(t, Ended, w.State(end.Add(time.Nanosecond)))
}

func TestAttemptPurchase_NoOverselling_Concurrent(t *testing.T) {
	now := time.Now()
	const stock = 50
	const attempts = 500
	c := newCoordinator(t, stock, now)

	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := c.AttemptPurchase(userIDFor(i))
			require.NoError(t, err)
			if outcome.Result == Success {
				successes <- struct{}{}
			}
		}(i)
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	assert.Equal(t, stock, count)

	st, err := c.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, 0, st.RemainingStock)
}

func TestAttemptPurchase_NoDoublePurchase_Concurrent(t *testing.T) {
	now := time.Now()
	c := newCoordinator(t, 1000, now)

	var wg sync.WaitGroup
	results := make(chan Result, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := c.AttemptPurchase("same-user")
			require.NoError(t, err)
			results <- outcome.Result
		}()
	}
	wg.Wait()
	close(results)

	successCount := 0
	for r := range results {
		if r == Success {
			successCount++
		}
	}
	assert.Equal(t, 1, successCount)
}

func TestGetUserStatus(t *testing.T) {
	now := time.Now()
	c := newCoordinator(t, 5, now)

	st, err := c.GetUserStatus("alice")
	require.NoError(t, err)
	assert.False(t, st.HasPurchased)

	_, err = c.AttemptPurchase("alice")
	require.NoError(t, err)

	st, err = c.GetUserStatus(" Alice ")
	require.NoError(t, err)
	assert.True(t, st.HasPurchased)
	require.NotNil(t, st.PurchasedAt)
}

func TestReset_RestoresStockAndClearsLedger(t *testing.T) {
	now := time.Now()
	c := newCoordinator(t, 1, now)

	_, err := c.AttemptPurchase("alice")
	require.NoError(t, err)

	require.NoError(t, c.Reset())

	st, err := c.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, st.RemainingStock)

	us, err := c.GetUserStatus("alice")
	require.NoError(t, err)
	assert.False(t, us.HasPurchased)
}

func userIDFor(i int) string {
	return "user-" + strconv.Itoa(i)
}
