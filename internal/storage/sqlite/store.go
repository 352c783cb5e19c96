// Package sqlite provides a SQLite-backed round store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lotteryledger/internal/models"
	"lotteryledger/internal/services"
	"lotteryledger/internal/storage/sqlite/migrations"
	"lotteryledger/internal/storage/sqlitemigrate"
)

const ownerKey = "owner"

// Store persists the owner and the current round of one ledger.
type Store struct {
	sqlDB *sql.DB
}

var _ services.Store = (*Store)(nil)

// Open opens the database at path and applies the embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Entries are appended and settled by one writer.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Owner(ctx context.Context) (models.Address, bool, error) {
	var value string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM ledger_meta WHERE key = ?`, ownerKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Address{}, false, nil
	}
	if err != nil {
		return models.Address{}, false, fmt.Errorf("query owner: %w", err)
	}
	owner, err := models.ParseAddress(value)
	if err != nil {
		return models.Address{}, false, fmt.Errorf("decode owner %q: %w", value, err)
	}
	return owner, true, nil
}

func (s *Store) SetOwner(ctx context.Context, owner models.Address) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO ledger_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		ownerKey, owner.String(),
	)
	if err != nil {
		return fmt.Errorf("store owner: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entry models.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.Amount == nil {
		return fmt.Errorf("entry amount is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO entries (user_address, name, amount, created_at) VALUES (?, ?, ?, ?)`,
		entry.UserAddress.String(),
		entry.Name,
		entry.Amount.String(),
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (s *Store) Entry(ctx context.Context, index int) (models.Entry, error) {
	if index < 0 {
		return models.Entry{}, services.ErrIndexOutOfRange
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT user_address, name, amount FROM entries ORDER BY id LIMIT 1 OFFSET ?`,
		index,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entry{}, services.ErrIndexOutOfRange
	}
	if err != nil {
		return models.Entry{}, err
	}
	return entry, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func (s *Store) Entries(ctx context.Context) ([]models.Entry, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT user_address, name, amount FROM entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]models.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Settle deletes the round and runs payout in the same transaction, so the
// delete is only committed when payout succeeds.
func (s *Store) Settle(ctx context.Context, payout func(ctx context.Context) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settle: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear entries: %w", err)
	}
	if err := payout(ctx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settle: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.Entry, error) {
	var address, name, amount string
	if err := row.Scan(&address, &name, &amount); err != nil {
		return models.Entry{}, err
	}
	userAddress, err := models.ParseAddress(address)
	if err != nil {
		return models.Entry{}, fmt.Errorf("decode entry address %q: %w", address, err)
	}
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return models.Entry{}, fmt.Errorf("decode entry amount %q", amount)
	}
	return models.Entry{UserAddress: userAddress, Name: name, Amount: value}, nil
}
