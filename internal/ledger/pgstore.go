package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avoronkov/triplog-bot/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and
// pgx.Tx. Accepting it instead of *pgxpool.Pool lets integration tests pass
// a transaction that is rolled back after each test.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore is the Postgres implementation of Store. It keeps the sheet's
// positional model: each data row is an ordered array of text cells, the
// header lives in its own table, and positions are the 1-based rank of the
// row in insertion order. Several sheets share the tables, keyed by name.
type PGStore struct {
	db    db
	sheet string
}

// NewPGStore constructs a Store for the named sheet. In production pass
// *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewPGStore(db db, sheet string) *PGStore {
	return &PGStore{db: db, sheet: sheet}
}

// Header returns the header row, or nil when none has been written.
func (s *PGStore) Header(ctx context.Context) ([]string, error) {
	const q = `SELECT cells FROM ledger_headers WHERE sheet = @sheet`

	var cells []string
	err := s.db.QueryRow(ctx, q, pgx.NamedArgs{"sheet": s.sheet}).Scan(&cells)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger.PGStore.Header: %w", err)
	}
	return cells, nil
}

// WriteHeader creates or overwrites the header row.
func (s *PGStore) WriteHeader(ctx context.Context, cells []string) error {
	const q = `
		INSERT INTO ledger_headers (sheet, cells)
		VALUES (@sheet, @cells)
		ON CONFLICT (sheet) DO UPDATE SET cells = EXCLUDED.cells`

	_, err := s.db.Exec(ctx, q, pgx.NamedArgs{"sheet": s.sheet, "cells": cells})
	if err != nil {
		return fmt.Errorf("ledger.PGStore.WriteHeader: %w", err)
	}
	return nil
}

// Append adds one data row after the current last row.
func (s *PGStore) Append(ctx context.Context, cells []string) error {
	const q = `INSERT INTO ledger_rows (sheet, cells) VALUES (@sheet, @cells)`

	_, err := s.db.Exec(ctx, q, pgx.NamedArgs{"sheet": s.sheet, "cells": cells})
	if err != nil {
		return fmt.Errorf("ledger.PGStore.Append: %w", err)
	}
	return nil
}

// Rows returns all data rows in insertion order.
func (s *PGStore) Rows(ctx context.Context) ([][]string, error) {
	const q = `SELECT cells FROM ledger_rows WHERE sheet = @sheet ORDER BY pos`

	rows, err := s.db.Query(ctx, q, pgx.NamedArgs{"sheet": s.sheet})
	if err != nil {
		return nil, fmt.Errorf("ledger.PGStore.Rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var cells []string
		if err := rows.Scan(&cells); err != nil {
			return nil, fmt.Errorf("ledger.PGStore.Rows: scan: %w", err)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger.PGStore.Rows: rows: %w", err)
	}
	return out, nil
}

// Update overwrites the data row at the given 1-based position.
func (s *PGStore) Update(ctx context.Context, position int, cells []string) error {
	const q = `
		UPDATE ledger_rows SET cells = @cells
		WHERE pos = (
			SELECT pos FROM ledger_rows
			WHERE sheet = @sheet
			ORDER BY pos
			OFFSET @offset LIMIT 1
		)`

	tag, err := s.db.Exec(ctx, q, pgx.NamedArgs{
		"sheet":  s.sheet,
		"cells":  cells,
		"offset": position - 1,
	})
	if err != nil {
		return fmt.Errorf("ledger.PGStore.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger.PGStore.Update: %w", domain.ErrNotFound)
	}
	return nil
}

// compile-time check: PGStore must satisfy Store.
var _ Store = (*PGStore)(nil)
