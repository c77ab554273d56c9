// Package sale implements the Sale Coordinator (SC): the purchase state
// machine, the sale-window gate, and the atomic purchase script that is the
// heart of the core.
package sale

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flashsale/core/internal/inventory"
	"github.com/flashsale/core/internal/ledger"
	"github.com/flashsale/core/internal/redisx"
)

// purchaseScript is the single atomic step for a purchase attempt: lookup,
// branch on duplicate, check stock, branch on exhaustion, decrement,
// insert. Status codes: 0=already_purchased, 1=success, 2=out_of_stock.
const purchaseScript = `
local stock_key = KEYS[1]
local ledger_key = KEYS[2]
local user_id = ARGV[1]
local now_iso = ARGV[2]

local existing = redis.call('HGET', ledger_key, user_id)
if existing then
	return {0, existing}
end

local stock = redis.call('GET', stock_key)
if stock == false then
	return {2, '0'}
end
stock = tonumber(stock)
if stock <= 0 then
	return {2, '0'}
end

local remaining = redis.call('DECR', stock_key)
redis.call('HSET', ledger_key, user_id, now_iso)
return {1, tostring(remaining)}
`

const stockKey = "flash-sale:stock"
const ledgerKey = "flash-sale:purchases"

// Result is the tagged outcome of an AttemptPurchase call.
type Result int

const (
	Success Result = iota
	InvalidUserID
	SaleNotActive
	AlreadyPurchased
	OutOfStock
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case InvalidUserID:
		return "invalid_user_id"
	case SaleNotActive:
		return "sale_not_active"
	case AlreadyPurchased:
		return "already_purchased"
	case OutOfStock:
		return "out_of_stock"
	default:
		return "unknown"
	}
}

// State is the derived sale-window state.
type State string

const (
	Upcoming State = "upcoming"
	Active   State = "active"
	Ended    State = "ended"
)

// Window is the immutable sale open/close bound.
type Window struct {
	Start time.Time
	End   time.Time
}

// State derives upcoming/active/ended from now. Both bounds are inclusive of
// active: now == Start and now == End are both active.
func (w Window) State(now time.Time) State {
	switch {
	case now.Before(w.Start):
		return Upcoming
	case now.After(w.End):
		return Ended
	default:
		return Active
	}
}

// Clock returns the current instant; swappable in tests.
type Clock func() time.Time

// AuditSink receives a non-authoritative copy of every AttemptPurchase
// outcome. Implementations must not block the caller — see package audit.
type AuditSink interface {
	RecordAttempt(userID string, result Result, at time.Time)
}

// PurchaseOutcome is the result of one AttemptPurchase call.
type PurchaseOutcome struct {
	Result      Result
	PurchasedAt *time.Time
	Message     string
}

// Config bundles the Coordinator's immutable sale parameters.
type Config struct {
	TotalStock   int
	Window       Window
	ProductName  string
	ProductPrice float64
}

// Coordinator is the Sale Coordinator (SC).
type Coordinator struct {
	pool  redisx.Pool
	inv   *inventory.Module
	led   *ledger.Ledger
	cfg   Config
	clock Clock
	audit AuditSink
}

// New builds a Coordinator. audit may be nil.
func New(pool redisx.Pool, cfg Config, audit AuditSink) *Coordinator {
	return &Coordinator{
		pool:  pool,
		inv:   inventory.New(pool),
		led:   ledger.New(pool),
		cfg:   cfg,
		clock: time.Now,
		audit: audit,
	}
}

// WithClock overrides the clock, for tests.
func (c *Coordinator) WithClock(clock Clock) *Coordinator {
	c.clock = clock
	return c
}

// Status is the response shape for GetStatus.
type Status struct {
	State          State
	StartsAt       time.Time
	EndsAt         time.Time
	RemainingStock int
	TotalStock     int
	ProductName    string
	ProductPrice   float64
	ServerTime     time.Time
}

// GetStatus reads the stock counter once and derives the window state from
// the clock. Never fails absent an AS outage; on AS outage it returns an
// error the HTTP layer maps to 500.
func (c *Coordinator) GetStatus() (Status, error) {
	now := c.clock()
	remaining, err := c.inv.GetStock()
	if err != nil {
		return Status{}, fmt.Errorf("sale: get status: %w", err)
	}
	return Status{
		State:          c.cfg.Window.State(now),
		StartsAt:       c.cfg.Window.Start,
		EndsAt:         c.cfg.Window.End,
		RemainingStock: remaining,
		TotalStock:     c.cfg.TotalStock,
		ProductName:    c.cfg.ProductName,
		ProductPrice:   c.cfg.ProductPrice,
		ServerTime:     now,
	}, nil
}

// NormalizeUserID trims surrounding whitespace and lower-cases the
// remainder, so "Alice ", " alice", and "ALICE" all identify the same buyer.
func NormalizeUserID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// AttemptPurchase runs the purchase state machine for one caller.
func (c *Coordinator) AttemptPurchase(rawUserID string) (PurchaseOutcome, error) {
	userID := NormalizeUserID(rawUserID)
	now := c.clock()

	if userID == "" {
		return c.finish(rawUserID, InvalidUserID, nil, "user id must not be empty", now)
	}

	switch c.cfg.Window.State(now) {
	case Upcoming:
		return c.finish(userID, SaleNotActive, nil, "the sale has not started yet", now)
	case Ended:
		return c.finish(userID, SaleNotActive, nil, "the sale has ended", now)
	}

	conn := c.pool.Get()
	defer conn.Close()

	reply, err := redisx.Eval(conn, purchaseScript, []string{stockKey, ledgerKey}, userID, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return PurchaseOutcome{}, fmt.Errorf("%w: %v", redisx.ErrUnavailable, err)
	}

	values, ok := reply.([]interface{})
	if !ok || len(values) != 2 {
		return PurchaseOutcome{}, fmt.Errorf("sale: atomic purchase script: unexpected reply %#v", reply)
	}
	code, err := toInt(values[0])
	if err != nil {
		return PurchaseOutcome{}, fmt.Errorf("sale: atomic purchase script: %w", err)
	}
	payload, err := toString(values[1])
	if err != nil {
		return PurchaseOutcome{}, fmt.Errorf("sale: atomic purchase script: %w", err)
	}

	switch code {
	case 0:
		purchasedAt, parseErr := time.Parse(time.RFC3339Nano, payload)
		if parseErr != nil {
			purchasedAt = now
		}
		return c.finish(userID, AlreadyPurchased, &purchasedAt, "you have already purchased this item", now)
	case 1:
		return c.finish(userID, Success, &now, "purchase successful", now)
	case 2:
		return c.finish(userID, OutOfStock, nil, "this item is sold out", now)
	default:
		return PurchaseOutcome{}, fmt.Errorf("sale: atomic purchase script returned unknown status code %d (script/consumer mismatch)", code)
	}
}

func (c *Coordinator) finish(userID string, result Result, purchasedAt *time.Time, message string, now time.Time) (PurchaseOutcome, error) {
	if c.audit != nil {
		c.audit.RecordAttempt(userID, result, now)
	}
	return PurchaseOutcome{Result: result, PurchasedAt: purchasedAt, Message: message}, nil
}

// UserStatus is the response shape for GetUserStatus.
type UserStatus struct {
	HasPurchased bool
	PurchasedAt  *time.Time
}

// GetUserStatus normalizes rawUserID then queries the ledger.
func (c *Coordinator) GetUserStatus(rawUserID string) (UserStatus, error) {
	userID := NormalizeUserID(rawUserID)
	lookup, err := c.led.HasPurchased(userID)
	if err != nil {
		return UserStatus{}, fmt.Errorf("sale: get user status: %w", err)
	}
	if !lookup.HasPurchased {
		return UserStatus{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, lookup.PurchasedAt)
	if err != nil {
		return UserStatus{HasPurchased: true}, nil
	}
	return UserStatus{HasPurchased: true, PurchasedAt: &t}, nil
}

// Initialize idempotently sets the counter to TotalStock iff absent. Run
// once at process startup.
func (c *Coordinator) Initialize() error {
	return c.inv.Initialize(c.cfg.TotalStock)
}

// Reset unconditionally writes the counter to TotalStock and empties the
// ledger. Test-only; not exposed on the production HTTP surface.
func (c *Coordinator) Reset() error {
	if err := c.inv.ResetStock(c.cfg.TotalStock); err != nil {
		return fmt.Errorf("sale: reset: %w", err)
	}
	if err := c.led.ClearPurchases(); err != nil {
		return fmt.Errorf("sale: reset: %w", err)
	}
	return nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case []byte:
		return strconv.Atoi(string(n))
	default:
		return 0, fmt.Errorf("unexpected reply type %T", v)
	}
}

func toString(v interface{}) (string, error) {
	switch s := v.(type) {
	case []byte:
		return string(s), nil
	case string:
		return s, nil
	default:
		return "", fmt.Errorf("unexpected reply type %T", v)
	}
}
