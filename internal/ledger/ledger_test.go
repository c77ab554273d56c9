package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashsale/core/internal/redisx/redisxtest"
)

func TestHasPurchased_AbsentUser(t *testing.T) {
	pool := redisxtest.NewPool()
	l := New(pool)

	lookup, err := l.HasPurchased("alice")
	require.NoError(t, err)
	assert.False(t, lookup.HasPurchased)
}

func TestRecordPurchase_FirstWins(t *testing.T) {
	pool := redisxtest.NewPool()
	l := New(pool)

	res, err := l.RecordPurchase("alice", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "2026-01-01T00:00:00Z", res.PurchasedAt)

	res, err = l.RecordPurchase("alice", "2026-01-01T01:00:00Z")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "2026-01-01T00:00:00Z", res.PurchasedAt)
}

func TestGetPurchaseCount(t *testing.T) {
	pool := redisxtest.NewPool()
	l := New(pool)

	count, err := l.GetPurchaseCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = l.RecordPurchase("alice", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	_, err = l.RecordPurchase("bob", "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	count, err = l.GetPurchaseCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClearPurchases(t *testing.T) {
	pool := redisxtest.NewPool()
	l := New(pool)

	_, err := l.RecordPurchase("alice", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	require.NoError(t, l.ClearPurchases())

	lookup, err := l.HasPurchased("alice")
	require.NoError(t, err)
	assert.False(t, lookup.HasPurchased)
}

func TestGetAllPurchases(t *testing.T) {
	pool := redisxtest.NewPool()
	l := New(pool)

	_, err := l.RecordPurchase("alice", "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	all, err := l.GetAllPurchases()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "2026-01-01T00:00:00Z"}, all)
}
