// Package registry persists the name-to-id mapping of registered users.
// The session machine resolves the engineer display name here at commit
// time; trip input never carries the name itself.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avoronkov/triplog-bot/internal/domain"
)

// Registry defines the user registry operations.
type Registry interface {
	// IsRegistered reports whether the user has completed registration.
	IsRegistered(ctx context.Context, userID int64) (bool, error)

	// Get returns the registration for a user.
	// Returns domain.ErrNotFound for unknown users.
	Get(ctx context.Context, userID int64) (domain.Registration, error)

	// Register stores a new registration and returns it. Re-registering an
	// existing user overwrites the stored name.
	Register(ctx context.Context, userID int64, fullName string) (domain.Registration, error)

	// List returns all registrations, oldest first. Admin listing only.
	List(ctx context.Context) ([]domain.Registration, error)
}

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgRegistry is the Postgres implementation of Registry.
type pgRegistry struct {
	db db
}

// NewPGRegistry constructs a Registry backed by the provided db connection.
func NewPGRegistry(db db) Registry {
	return &pgRegistry{db: db}
}

func (r *pgRegistry) IsRegistered(ctx context.Context, userID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = @user_id)`

	var exists bool
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"user_id": userID}).Scan(&exists); err != nil {
		return false, fmt.Errorf("registry.IsRegistered: %w", err)
	}
	return exists, nil
}

func (r *pgRegistry) Get(ctx context.Context, userID int64) (domain.Registration, error) {
	const q = `SELECT user_id, full_name, created_at FROM users WHERE user_id = @user_id`

	var reg domain.Registration
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"user_id": userID}).
		Scan(&reg.UserID, &reg.FullName, &reg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Registration{}, fmt.Errorf("registry.Get: %w", domain.ErrNotFound)
		}
		return domain.Registration{}, fmt.Errorf("registry.Get: %w", err)
	}
	return reg, nil
}

func (r *pgRegistry) Register(ctx context.Context, userID int64, fullName string) (domain.Registration, error) {
	const q = `
		INSERT INTO users (user_id, full_name, created_at)
		VALUES (@user_id, @full_name, now())
		ON CONFLICT (user_id) DO UPDATE SET full_name = EXCLUDED.full_name
		RETURNING user_id, full_name, created_at`

	var reg domain.Registration
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"user_id":   userID,
		"full_name": strings.TrimSpace(fullName),
	}).Scan(&reg.UserID, &reg.FullName, &reg.CreatedAt)
	if err != nil {
		return domain.Registration{}, fmt.Errorf("registry.Register: %w", err)
	}
	return reg, nil
}

func (r *pgRegistry) List(ctx context.Context) ([]domain.Registration, error) {
	const q = `SELECT user_id, full_name, created_at FROM users ORDER BY created_at, user_id`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("registry.List: %w", err)
	}
	defer rows.Close()

	var regs []domain.Registration
	for rows.Next() {
		var reg domain.Registration
		if err := rows.Scan(&reg.UserID, &reg.FullName, &reg.CreatedAt); err != nil {
			return nil, fmt.Errorf("registry.List: scan: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry.List: rows: %w", err)
	}
	return regs, nil
}
