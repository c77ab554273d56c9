// Package inventory owns the flash-sale stock counter in the atomic store.
package inventory

import (
	"fmt"

	"github.com/flashsale/core/internal/redisx"
)

const stockKey = "flash-sale:stock"

// scriptInit sets the stock key to totalStock iff it does not already
// exist. Idempotent across process restarts.
const scriptInit = `
local key = KEYS[1]
local total = tonumber(ARGV[1])
if redis.call('EXISTS', key) == 1 then
	return 0
end
redis.call('SET', key, total)
return 1
`

// scriptDec atomically decrements the stock key, refusing to go below zero.
// Returns {success, remaining}. success=0, remaining=-1 means the key was
// absent; success=0, remaining=0 means the key was present but already at
// zero.
const scriptDec = `
local key = KEYS[1]
local current = redis.call('GET', key)
if current == false then
	return {0, -1}
end
current = tonumber(current)
if current <= 0 then
	return {0, 0}
end
local remaining = redis.call('DECR', key)
return {1, remaining}
`

// Module is the Inventory Module (IM): it owns the stock counter key.
type Module struct {
	pool redisx.Pool
}

// New builds an inventory Module against the given connection pool.
func New(pool redisx.Pool) *Module {
	return &Module{pool: pool}
}

// Initialize sets the counter to totalStock iff it is absent. Safe to call
// repeatedly; the second and later calls are no-ops.
func (m *Module) Initialize(totalStock int) error {
	conn := m.pool.Get()
	defer conn.Close()

	_, err := redisx.Eval(conn, scriptInit, []string{stockKey}, totalStock)
	if err != nil {
		return fmt.Errorf("inventory: initialize: %w", err)
	}
	return nil
}

// GetStock returns the current stock, or 0 if the key is absent.
func (m *Module) GetStock() (int, error) {
	conn := m.pool.Get()
	defer conn.Close()

	reply, err := conn.Do("GET", stockKey)
	if err != nil {
		return 0, fmt.Errorf("inventory: get stock: %w", err)
	}
	if reply == nil {
		return 0, nil
	}
	return toInt(reply)
}

// DecrementResult is the outcome of an administrative decrement.
type DecrementResult struct {
	Success   bool
	Remaining int
}

// DecrementStock atomically decrements the counter if it is present and
// positive. Not used on the purchase hot path — that goes through the
// combined purchase script in package sale. This exists for administrative
// use and tests.
func (m *Module) DecrementStock() (DecrementResult, error) {
	conn := m.pool.Get()
	defer conn.Close()

	reply, err := redisx.Eval(conn, scriptDec, []string{stockKey})
	if err != nil {
		return DecrementResult{}, fmt.Errorf("inventory: decrement: %w", err)
	}

	values, err := toIntSlice(reply)
	if err != nil {
		return DecrementResult{}, fmt.Errorf("inventory: decrement: %w", err)
	}
	if len(values) != 2 {
		return DecrementResult{}, fmt.Errorf("inventory: decrement: unexpected reply length %d", len(values))
	}
	return DecrementResult{Success: values[0] == 1, Remaining: values[1]}, nil
}

// ResetStock unconditionally sets the counter to totalStock.
func (m *Module) ResetStock(totalStock int) error {
	return m.SetStock(totalStock)
}

// SetStock unconditionally writes the counter.
func (m *Module) SetStock(n int) error {
	conn := m.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("SET", stockKey, n); err != nil {
		return fmt.Errorf("inventory: set stock: %w", err)
	}
	return nil
}

func toInt(reply interface{}) (int, error) {
	switch v := reply.(type) {
	case int64:
		return int(v), nil
	case []byte:
		var n int
		_, err := fmt.Sscanf(string(v), "%d", &n)
		return n, err
	case string:
		var n int
		_, err := fmt.Sscanf(v, "%d", &n)
		return n, err
	default:
		return 0, fmt.Errorf("inventory: unexpected reply type %T", reply)
	}
}

func toIntSlice(reply interface{}) ([]int, error) {
	raw, ok := reply.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected reply type %T", reply)
	}
	out := make([]int, len(raw))
	for i, v := range raw {
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
