// Package journal persists an audit trail of every order placement the
// gateway attempts, including failures. Entries are append-only.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"protrade/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Entry is one recorded placement attempt.
type Entry struct {
	ID            string    `json:"id"`
	BrokerID      string    `json:"brokerId"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	OrderType     string    `json:"orderType"`
	Quantity      string    `json:"quantity"`
	ClientOrderID string    `json:"clientOrderId,omitempty"`
	BrokerOrderID string    `json:"brokerOrderId,omitempty"`
	Status        string    `json:"status,omitempty"`
	ErrorKind     string    `json:"errorKind,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	Order         string    `json:"order"`
	CreatedAt     time.Time `json:"createdAt"`
}

const schema = `
CREATE TABLE IF NOT EXISTS order_journal (
	id              TEXT PRIMARY KEY,
	broker_id       TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	order_type      TEXT NOT NULL,
	quantity        TEXT NOT NULL,
	client_order_id TEXT NOT NULL DEFAULT '',
	broker_order_id TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	error_kind      TEXT NOT NULL DEFAULT '',
	error_message   TEXT NOT NULL DEFAULT '',
	order_json      TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_journal_created_at ON order_journal(created_at);
`

// Journal is a SQLite-backed order journal.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the journal database at dbPath and ensures the
// schema exists. Use ":memory:" for an ephemeral journal.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordOrder appends one placement attempt. The full unified order is
// stored as JSON next to the indexed columns so nothing is lost to the
// schema.
func (j *Journal) RecordOrder(ctx context.Context, order domain.UnifiedOrder, result *domain.OrderResult, callErr error) error {
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshalling order for journal: %w", err)
	}

	var brokerOrderID, status, errorKind, errorMessage string
	if result != nil {
		brokerOrderID = result.BrokerOrderID
		status = string(result.Status)
	}
	if callErr != nil {
		errorKind = string(domain.KindOf(callErr))
		errorMessage = callErr.Error()
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO order_journal
			(id, broker_id, symbol, side, order_type, quantity,
			 client_order_id, broker_order_id, status, error_kind, error_message,
			 order_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		order.BrokerID,
		order.Symbol,
		string(order.Side),
		string(order.Type),
		order.Qty.String(),
		order.ClientOrderID,
		brokerOrderID,
		status,
		errorKind,
		errorMessage,
		string(orderJSON),
		j.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries first, up to limit (default 50).
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, broker_id, symbol, side, order_type, quantity,
		       client_order_id, broker_order_id, status, error_kind, error_message,
		       order_json, created_at
		FROM order_journal
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.BrokerID, &e.Symbol, &e.Side, &e.OrderType, &e.Quantity,
			&e.ClientOrderID, &e.BrokerOrderID, &e.Status, &e.ErrorKind, &e.ErrorMessage,
			&e.Order, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
