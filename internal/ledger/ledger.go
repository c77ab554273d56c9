// Package ledger owns the flash-sale purchase ledger in the atomic store: a
// mapping from normalized user id to the ISO-8601 UTC timestamp of their
// successful purchase.
package ledger

import (
	"fmt"

	"github.com/flashsale/core/internal/redisx"
)

const ledgerKey = "flash-sale:purchases"

// Ledger is the Purchase Ledger (PL).
type Ledger struct {
	pool redisx.Pool
}

// New builds a Ledger against the given connection pool.
func New(pool redisx.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Lookup is the result of a ledger query for one user.
type Lookup struct {
	HasPurchased bool
	PurchasedAt  string
}

// HasPurchased looks up a single user id (already normalized by the
// caller). Returns HasPurchased=false, PurchasedAt="" if absent.
func (l *Ledger) HasPurchased(userID string) (Lookup, error) {
	conn := l.pool.Get()
	defer conn.Close()

	reply, err := conn.Do("HGET", ledgerKey, userID)
	if err != nil {
		return Lookup{}, fmt.Errorf("ledger: lookup: %w", err)
	}
	if reply == nil {
		return Lookup{}, nil
	}
	ts, err := toString(reply)
	if err != nil {
		return Lookup{}, fmt.Errorf("ledger: lookup: %w", err)
	}
	return Lookup{HasPurchased: true, PurchasedAt: ts}, nil
}

// RecordResult is the outcome of an insert-if-absent attempt.
type RecordResult struct {
	Success     bool
	PurchasedAt string
}

// RecordPurchase atomically inserts userID -> nowISO iff absent. This is not
// used on the purchase hot path (the combined atomic purchase script in
// package sale supersedes it); it is retained for tests and as a standalone
// first-writer-wins primitive.
func (l *Ledger) RecordPurchase(userID, nowISO string) (RecordResult, error) {
	conn := l.pool.Get()
	defer conn.Close()

	reply, err := conn.Do("HSETNX", ledgerKey, userID, nowISO)
	if err != nil {
		return RecordResult{}, fmt.Errorf("ledger: record: %w", err)
	}
	inserted, err := toInt64(reply)
	if err != nil {
		return RecordResult{}, fmt.Errorf("ledger: record: %w", err)
	}
	if inserted == 1 {
		return RecordResult{Success: true, PurchasedAt: nowISO}, nil
	}

	existing, err := l.HasPurchased(userID)
	if err != nil {
		return RecordResult{}, err
	}
	return RecordResult{Success: false, PurchasedAt: existing.PurchasedAt}, nil
}

// GetAllPurchases returns the full ledger. Admin/debug use only.
func (l *Ledger) GetAllPurchases() (map[string]string, error) {
	conn := l.pool.Get()
	defer conn.Close()

	reply, err := conn.Do("HGETALL", ledgerKey)
	if err != nil {
		return nil, fmt.Errorf("ledger: get all: %w", err)
	}
	raw, ok := reply.([]interface{})
	if !ok {
		return nil, fmt.Errorf("ledger: get all: unexpected reply type %T", reply)
	}

	out := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		k, err := toString(raw[i])
		if err != nil {
			return nil, fmt.Errorf("ledger: get all: %w", err)
		}
		v, err := toString(raw[i+1])
		if err != nil {
			return nil, fmt.Errorf("ledger: get all: %w", err)
		}
		out[k] = v
	}
	return out, nil
}

// GetPurchaseCount returns the number of entries in the ledger.
func (l *Ledger) GetPurchaseCount() (int, error) {
	conn := l.pool.Get()
	defer conn.Close()

	reply, err := conn.Do("HLEN", ledgerKey)
	if err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	n, err := toInt64(reply)
	if err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	return int(n), nil
}

// ClearPurchases empties the ledger. Intended for tests/reset, not the
// production surface.
func (l *Ledger) ClearPurchases() error {
	conn := l.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("DEL", ledgerKey); err != nil {
		return fmt.Errorf("ledger: clear: %w", err)
	}
	return nil
}

func toString(reply interface{}) (string, error) {
	switch v := reply.(type) {
	case []byte:
		return string(v), nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("unexpected reply type %T", reply)
	}
}

func toInt64(reply interface{}) (int64, error) {
	switch v := reply.(type) {
	case int64:
		return v, nil
	case []byte:
		var n int64
		_, err := fmt.Sscanf(string(v), "%d", &n)
		return n, err
	default:
		return 0, fmt.Errorf("unexpected reply type %T", reply)
	}
}
