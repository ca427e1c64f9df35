package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/0-uddeshya-0/klarbill/internal/document"
	"github.com/0-uddeshya-0/klarbill/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id              TEXT PRIMARY KEY,
	customer_number TEXT NOT NULL,
	invoice_number  TEXT NOT NULL,
	data            TEXT NOT NULL,
	imported_at     DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_invoices_customer ON invoices(customer_number);
CREATE INDEX IF NOT EXISTS idx_invoices_number ON invoices(customer_number, invoice_number);
`

// SQLiteStore persists invoice records in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

var _ InvoiceStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists. The parent directory is created if missing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// WAL mode for concurrent readers during imports
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: dbPath,
		log:  logger.WithComponent("sqlite-store"),
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Put stores or replaces a record. The identity columns are extracted from
// the document so lookups stay index-backed.
func (s *SQLiteStore) Put(ctx context.Context, id string, doc document.Value) error {
	data, err := json.Marshal(doc.Raw())
	if err != nil {
		return fmt.Errorf("marshalling record: %w", err)
	}
	customerNumber, invoiceNumber := identity(doc)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, customer_number, invoice_number, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_number = excluded.customer_number,
			invoice_number = excluded.invoice_number,
			data = excluded.data
	`, id, customerNumber, invoiceNumber, string(data))
	if err != nil {
		return fmt.Errorf("saving record: %w", err)
	}

	s.log.Debug().
		Str("record_id", id).
		Str("customer_number", customerNumber).
		Str("invoice_number", invoiceNumber).
		Msg("Stored invoice record")
	return nil
}

// Lookup returns records matching the given identifiers. Either may be
// empty; both empty matches nothing.
func (s *SQLiteStore) Lookup(ctx context.Context, customerNumber, invoiceNumber string) ([]Record, error) {
	if customerNumber == "" && invoiceNumber == "" {
		return nil, ErrNotFound
	}

	query := `
		SELECT id, customer_number, invoice_number, data
		FROM invoices WHERE 1 = 1`
	var args []any
	if customerNumber != "" {
		query += " AND customer_number = ?"
		args = append(args, customerNumber)
	}
	if invoiceNumber != "" {
		query += " AND invoice_number = ?"
		args = append(args, invoiceNumber)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// AllForCustomer returns every record for a customer in stable id order.
func (s *SQLiteStore) AllForCustomer(ctx context.Context, customerNumber string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_number, invoice_number, data
		FROM invoices WHERE customer_number = ?
		ORDER BY id
	`, customerNumber)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Health pings the database.
func (s *SQLiteStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record //nolint:prealloc // size unknown from query
	for rows.Next() {
		var r Record
		var data string
		if err := rows.Scan(&r.ID, &r.CustomerNumber, &r.InvoiceNumber, &data); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		doc, err := document.Parse([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("parsing record %s: %w", r.ID, err)
		}
		r.Doc = doc
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}
