// Package ledger implements the append/update protocol over the shared trip
// ledger: header maintenance, duplicate-suppressing appends, point lookups
// by row UID, and full-row rewrites for the edit flow.
//
// The ledger itself is a positional row store behind the Store interface.
// No business rules live here beyond the commit protocol — field validation
// happens in domain and session.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/avoronkov/triplog-bot/internal/domain"
	"github.com/avoronkov/triplog-bot/internal/timeutil"
)

// Store is the minimal positional row-store contract the protocol needs.
// Data positions are 1-based and exclude the header. *Positions may shift*
// between calls when other writers append concurrently, which is why point
// updates are always preceded by a FindByUID on the same store.
type Store interface {
	// Header returns the header row, or nil when the sheet is empty.
	Header(ctx context.Context) ([]string, error)

	// WriteHeader creates or overwrites the header row.
	WriteHeader(ctx context.Context, cells []string) error

	// Append adds one data row after the current last row.
	Append(ctx context.Context, cells []string) error

	// Rows returns all data rows in insertion order.
	Rows(ctx context.Context) ([][]string, error)

	// Update overwrites the data row at the given 1-based position.
	// Returns domain.ErrNotFound when the position does not exist.
	Update(ctx context.Context, position int, cells []string) error
}

// Ledger drives the commit protocol for trips and panel measurements.
type Ledger struct {
	trips        Store
	measurements Store
	clock        *timeutil.Clock

	scanRows  int
	dupWindow time.Duration
}

// Option tunes the duplicate-suppression behavior.
type Option func(*Ledger)

// WithDuplicateWindow sets the interval within which two appends from the
// same author collapse into one.
func WithDuplicateWindow(d time.Duration) Option {
	return func(l *Ledger) { l.dupWindow = d }
}

// WithScanRows bounds how many recent rows the duplicate check inspects.
// This is a tunable, not an exhaustive guarantee: under sustained write
// volume a true duplicate can fall outside the window.
func WithScanRows(n int) Option {
	return func(l *Ledger) { l.scanRows = n }
}

// New constructs a Ledger over the trip and measurement stores.
func New(trips, measurements Store, clock *timeutil.Clock, opts ...Option) *Ledger {
	l := &Ledger{
		trips:        trips,
		measurements: measurements,
		clock:        clock,
		scanRows:     10,
		dupWindow:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append commits one trip entry. Before writing it ensures the header row
// and scans the recent rows for a same-author entry created within the
// duplicate window; such an entry makes this append a no-op rejection with
// domain.ErrDuplicate. Store failures surface as domain.ErrStore.
func (l *Ledger) Append(ctx context.Context, e domain.TripEntry) error {
	if err := l.ensureHeader(ctx, l.trips, domain.TripHeaders()); err != nil {
		return fmt.Errorf("ledger.Ledger.Append: %w", err)
	}

	dup, err := l.isDuplicate(ctx, e)
	if err != nil {
		return fmt.Errorf("ledger.Ledger.Append: %w", err)
	}
	if dup {
		return fmt.Errorf("ledger.Ledger.Append: %w", domain.ErrDuplicate)
	}

	if err := l.trips.Append(ctx, e.Row()); err != nil {
		return fmt.Errorf("ledger.Ledger.Append: %w: %v", domain.ErrStore, err)
	}
	return nil
}

// FindByUID locates a trip row by its UID. The author id column must agree
// with authorID as well — a row belonging to someone else is not found even
// when the UID matches, so a guessed UID cannot expose another user's row.
// Returns the 1-based data position alongside the entry.
func (l *Ledger) FindByUID(ctx context.Context, rowUID string, authorID int64) (int, domain.TripEntry, error) {
	rows, err := l.trips.Rows(ctx)
	if err != nil {
		return 0, domain.TripEntry{}, fmt.Errorf("ledger.Ledger.FindByUID: %w: %v", domain.ErrStore, err)
	}

	for i, cells := range rows {
		entry, err := domain.TripFromRow(cells)
		if err != nil {
			continue // malformed row, not ours to repair
		}
		if entry.RowUID == rowUID && entry.AuthorID == authorID {
			return i + 1, entry, nil
		}
	}
	return 0, domain.TripEntry{}, fmt.Errorf("ledger.Ledger.FindByUID: %w", domain.ErrNotFound)
}

// Update rewrites the full row at the given position. There is no
// partial-column update: the caller supplies the complete entry.
func (l *Ledger) Update(ctx context.Context, position int, e domain.TripEntry) error {
	if err := l.trips.Update(ctx, position, e.Row()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("ledger.Ledger.Update: %w", err)
		}
		return fmt.Errorf("ledger.Ledger.Update: %w: %v", domain.ErrStore, err)
	}
	return nil
}

// LastForUser returns the most recent trip row (by storage order) whose
// author matches, or domain.ErrNotFound.
func (l *Ledger) LastForUser(ctx context.Context, authorID int64) (domain.TripEntry, error) {
	rows, err := l.trips.Rows(ctx)
	if err != nil {
		return domain.TripEntry{}, fmt.Errorf("ledger.Ledger.LastForUser: %w: %v", domain.ErrStore, err)
	}

	for i := len(rows) - 1; i >= 0; i-- {
		entry, err := domain.TripFromRow(rows[i])
		if err != nil {
			continue
		}
		if entry.AuthorID == authorID {
			return entry, nil
		}
	}
	return domain.TripEntry{}, fmt.Errorf("ledger.Ledger.LastForUser: %w", domain.ErrNotFound)
}

// ListRecent returns up to limit trip entries, most recent first.
// Malformed rows are skipped rather than failing the whole listing.
func (l *Ledger) ListRecent(ctx context.Context, limit int) ([]domain.TripEntry, error) {
	rows, err := l.trips.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger.Ledger.ListRecent: %w: %v", domain.ErrStore, err)
	}

	entries := make([]domain.TripEntry, 0, limit)
	for i := len(rows) - 1; i >= 0 && len(entries) < limit; i-- {
		entry, err := domain.TripFromRow(rows[i])
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// AppendMeasurement commits one panel measurement. Measurements share the
// header-ensure step but not the duplicate check: the photo flow has no
// retry path that could double-submit within seconds.
func (l *Ledger) AppendMeasurement(ctx context.Context, m domain.Measurement) error {
	if err := l.ensureHeader(ctx, l.measurements, domain.MeasurementHeaders()); err != nil {
		return fmt.Errorf("ledger.Ledger.AppendMeasurement: %w", err)
	}
	if err := l.measurements.Append(ctx, m.Row()); err != nil {
		return fmt.Errorf("ledger.Ledger.AppendMeasurement: %w: %v", domain.ErrStore, err)
	}
	return nil
}

// ensureHeader makes the header row exist and match the canonical column
// order, (re)writing it when absent or mismatched.
func (l *Ledger) ensureHeader(ctx context.Context, s Store, want []string) error {
	got, err := s.Header(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	if slices.Equal(got, want) {
		return nil
	}
	if err := s.WriteHeader(ctx, want); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	return nil
}

// isDuplicate scans the last scanRows rows for a same-author entry whose
// created_at is within dupWindow of the new entry's.
func (l *Ledger) isDuplicate(ctx context.Context, e domain.TripEntry) (bool, error) {
	newCreated, ok := timeutil.ParseUTCString(e.CreatedAt)
	if !ok {
		return false, fmt.Errorf("%w: created_at %q", domain.ErrValidation, e.CreatedAt)
	}

	recent, err := l.ListRecent(ctx, l.scanRows)
	if err != nil {
		return false, err
	}

	for _, row := range recent {
		if row.AuthorID != e.AuthorID {
			continue
		}
		rowCreated, ok := timeutil.ParseUTCString(row.CreatedAt)
		if !ok {
			continue
		}
		diff := newCreated.Sub(rowCreated)
		if diff < 0 {
			diff = -diff
		}
		if diff < l.dupWindow {
			return true, nil
		}
	}
	return false, nil
}
