package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashsale/core/internal/redisx/redisxtest"
)

func TestInitialize_SetsStockOnce(t *testing.T) {
	pool := redisxtest.NewPool()
	m := New(pool)

	require.NoError(t, m.Initialize(50))
	stock, err := m.GetStock()
	require.NoError(t, err)
	assert.Equal(t, 50, stock)

	// Second call is a no-op: must not overwrite the decremented 49 with 999.
	_, err = m.DecrementStock()
	require.NoError(t, err)

	require.NoError(t, m.Initialize(999))
	stock, err = m.GetStock()
	require.NoError(t, err)
	assert.Equal(t, 49, stock)
}

func TestGetStock_AbsentKeyReturnsZero(t *testing.T) {
	pool := redisxtest.NewPool()
	m := New(pool)

	stock, err := m.GetStock()
	require.NoError(t, err)
	assert.Equal(t, 0, stock)
}

func TestDecrementStock_StopsAtZero(t *testing.T) {
	pool := redisxtest.NewPool()
	m := New(pool)
	require.NoError(t, m.Initialize(1))

	res, err := m.DecrementStock()
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Remaining)

	res, err = m.DecrementStock()
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Remaining)
}

func TestDecrementStock_AbsentKey(t *testing.T) {
	pool := redisxtest.NewPool()
	m := New(pool)

	res, err := m.DecrementStock()
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, -1, res.Remaining)
}

func TestResetStock_Unconditional(t *testing.T) {
	pool := redisxtest.NewPool()
	m := New(pool)
	require.NoError(t, m.Initialize(10))
	_, err := m.DecrementStock()
	require.NoError(t, err)

	require.NoError(t, m.ResetStock(20))
	stock, err := m.GetStock()
	require.NoError(t, err)
	assert.Equal(t, 20, stock)
}
