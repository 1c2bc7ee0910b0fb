package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL lets the tracker write while the API reads
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tx_history (
		hash TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		token_in TEXT,
		token_out TEXT,
		amount_in REAL DEFAULT 0,
		amount_out REAL DEFAULT 0,
		created_at DATETIME NOT NULL,
		resolved_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_tx_history_owner ON tx_history(owner, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_tx_history_status ON tx_history(status);

	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Columns added after the first release
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"tx_history", "block_number", "ALTER TABLE tx_history ADD COLUMN block_number INTEGER DEFAULT 0"},
		{"tx_history", "gas_used", "ALTER TABLE tx_history ADD COLUMN gas_used INTEGER DEFAULT 0"},
	}

	for _, m := range migrations {
		if !s.columnExists(m.table, m.column) {
			if _, err := s.db.Exec(m.ddl); err != nil {
				slog.Warn("migration failed",
					slog.String("table", m.table),
					slog.String("column", m.column),
					slog.String("error", err.Error()))
			}
		}
	}

	return nil
}

// columnExists checks if a column exists in a table.
// Names are validated since they are interpolated into the query.
func (s *SQLiteStorage) columnExists(table, column string) bool {
	if !isValidIdentifier(table) || !isValidIdentifier(column) {
		return false
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = '%s'", table, column)
	var count int
	if err := s.db.QueryRow(query).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// isValidIdentifier checks if a string is a valid SQLite identifier.
// Only allows alphanumeric characters and underscore.
func isValidIdentifier(s string) bool {
	if len(s) == 0 || len(s) > 128 {
		return false
	}
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// AddTransaction inserts a new history record. Re-adding a known hash is a no-op.
func (s *SQLiteStorage) AddTransaction(ctx context.Context, rec *TxRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tx_history (hash, owner, chain_id, kind, status, token_in, token_out, amount_in, amount_out, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, normalize(rec.Hash), normalize(rec.Owner), rec.ChainID, string(rec.Kind), rec.Status.String(),
		nullString(rec.TokenIn), nullString(rec.TokenOut), rec.AmountIn, rec.AmountOut, createdAt.UTC())
	return err
}

// ResolveTransaction writes the final status of a pending record.
func (s *SQLiteStorage) ResolveTransaction(ctx context.Context, hash string, res Resolution) (bool, error) {
	if !res.Status.Resolved() {
		return false, fmt.Errorf("cannot resolve to %s", res.Status)
	}
	resolvedAt := res.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tx_history SET status = ?, resolved_at = ?, block_number = ?, gas_used = ?
		WHERE hash = ? AND status = 'pending'
	`, res.Status.String(), resolvedAt.UTC(), res.BlockNumber, res.GasUsed, normalize(hash))
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const selectRecord = `
	SELECT hash, owner, chain_id, kind, status, token_in, token_out, amount_in, amount_out,
		created_at, resolved_at, COALESCE(block_number, 0), COALESCE(gas_used, 0)
	FROM tx_history`

// GetTransaction retrieves a record by hash, or nil if unknown.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, hash string) (*TxRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+` WHERE hash = ?`, normalize(hash))
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListTransactions returns a page of owner's history, newest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, owner string, limit, offset int) (*PaginatedTxRecords, error) {
	owner = normalize(owner)

	var total int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tx_history WHERE owner = ?", owner).Scan(&total)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, selectRecord+`
		WHERE owner = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []TxRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedTxRecords{
		Transactions: records,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	}, nil
}

// ListPending returns every unresolved record, oldest first.
func (s *SQLiteStorage) ListPending(ctx context.Context) ([]TxRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectRecord+` WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TxRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// ClearHistory deletes owner's records and returns how many were removed.
func (s *SQLiteStorage) ClearHistory(ctx context.Context, owner string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tx_history WHERE owner = ?", normalize(owner))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetPreference returns the stored value and whether it was set.
func (s *SQLiteStorage) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetPreference upserts a preference.
func (s *SQLiteStorage) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	return err
}

// GetPreferenceJSON decodes a JSON preference into v. It reports false when unset.
func GetPreferenceJSON(ctx context.Context, s PreferenceStore, key string, v any) (bool, error) {
	raw, ok, err := s.GetPreference(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to unmarshal preference %s: %w", key, err)
	}
	return true, nil
}

// SetPreferenceJSON stores v as JSON.
func SetPreferenceJSON(ctx context.Context, s PreferenceStore, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal preference %s: %w", key, err)
	}
	return s.SetPreference(ctx, key, string(data))
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*TxRecord, error) {
	var rec TxRecord
	var kind, status string
	var tokenIn, tokenOut sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(&rec.Hash, &rec.Owner, &rec.ChainID, &kind, &status, &tokenIn, &tokenOut,
		&rec.AmountIn, &rec.AmountOut, &rec.CreatedAt, &resolvedAt, &rec.BlockNumber, &rec.GasUsed)
	if err != nil {
		return nil, err
	}

	rec.Kind = TxKind(kind)
	if rec.Status, err = ParseTxStatus(status); err != nil {
		return nil, err
	}
	if tokenIn.Valid {
		rec.TokenIn = tokenIn.String
	}
	if tokenOut.Valid {
		rec.TokenOut = tokenOut.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		rec.ResolvedAt = &t
	}
	return &rec, nil
}

// normalize lowercases hex hashes and addresses so lookups are case-insensitive.
func normalize(v string) string {
	return strings.ToLower(v)
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
