// Package audit provides a non-authoritative Postgres audit trail for
// purchase attempts. It never participates in the purchase invariants: a
// Postgres outage degrades observability only, never correctness.
package audit

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/flashsale/core/internal/logger"
	"github.com/flashsale/core/internal/sale"
)

// Store wraps the audit-trail Postgres connection.
type Store struct {
	db *sql.DB
}

// NewStore opens and pings a Postgres connection.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity, for the /healthz probe.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// CreateSchema creates the audit-trail tables if absent.
func (s *Store) CreateSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sale_runs (
        id SERIAL PRIMARY KEY,
        product_name VARCHAR(255) NOT NULL,
        total_stock INTEGER NOT NULL,
        starts_at TIMESTAMP NOT NULL,
        ends_at TIMESTAMP NOT NULL,
        recorded_at TIMESTAMP NOT NULL DEFAULT NOW()
    );

    CREATE TABLE IF NOT EXISTS purchase_attempts (
        id SERIAL PRIMARY KEY,
        user_id VARCHAR(255) NOT NULL,
        result VARCHAR(30) NOT NULL,
        attempted_at TIMESTAMP NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_purchase_attempts_user ON purchase_attempts(user_id);
    CREATE INDEX IF NOT EXISTS idx_purchase_attempts_result ON purchase_attempts(result);
    `
	_, err := s.db.Exec(schema)
	return err
}

// RecordSaleRun stamps the configuration a process booted with, for
// after-the-fact audit of which window/stock a given run used.
func (s *Store) RecordSaleRun(productName string, totalStock int, startsAt, endsAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sale_runs (product_name, total_stock, starts_at, ends_at) VALUES ($1, $2, $3, $4)`,
		productName, totalStock, startsAt, endsAt,
	)
	return err
}

// attempt is one buffered purchase-attempt record awaiting batch insert.
type attempt struct {
	UserID      string
	Result      string
	AttemptedAt time.Time
}

// Sink buffers purchase-attempt records and flushes them to Postgres in
// batches, never blocking the caller: RecordAttempt drops the record (and
// logs) if the buffer is full, rather than stall the purchase hot path.
type Sink struct {
	store *Store
	ch    chan attempt
}

// NewSink builds a Sink with the given buffer capacity.
func NewSink(store *Store, bufferSize int) *Sink {
	return &Sink{
		store: store,
		ch:    make(chan attempt, bufferSize),
	}
}

// RecordAttempt implements sale.AuditSink.
func (s *Sink) RecordAttempt(userID string, result sale.Result, at time.Time) {
	select {
	case s.ch <- attempt{UserID: userID, Result: result.String(), AttemptedAt: at}:
	default:
		logger.FromContext(context.Background(), "audit_sink").Warn("dropped purchase attempt: buffer full", "user_id", userID)
	}
}

// Run drains the buffer into Postgres in batches of up to 200, flushing
// every second or when the batch fills, whichever first. Returns when ctx is
// cancelled, after flushing whatever remains.
func (s *Sink) Run(ctx context.Context) {
	log := logger.FromContext(ctx, "audit_worker")

	const batchCap = 200
	batch := make([]attempt, 0, batchCap)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.insertBatch(batch); err != nil {
			log.Error("audit | failed to flush purchase attempts", "error", err, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			log.Debug("audit | worker stopped")
			return
		case a := <-s.ch:
			batch = append(batch, a)
			if len(batch) >= batchCap {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *Sink) insertBatch(batch []attempt) error {
	tx, err := s.store.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO purchase_attempts (user_id, result, attempted_at) VALUES ($1, $2, $3)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range batch {
		if _, err := stmt.Exec(a.UserID, a.Result, a.AttemptedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
