// Package domain contains the core data types for the trip journal bot.
// This package has zero dependencies on storage or transport and is imported
// by every other internal package (ledger, registry, session, panel).
package domain

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// TripEntry is one completed trip as it is stored in the ledger.
// Date and the two times are fixed-width local-zone text (DD.MM.YYYY, HH:MM);
// CreatedAt is a UTC RFC 3339 timestamp and is the sole basis for the edit
// window and duplicate detection.
//
// DistanceKm is always derived from the odometer pair and never accepted
// from outside — NewTripEntry and FromRow both recompute it.
type TripEntry struct {
	Date          string
	TimeStart     string
	TimeEnd       string
	OdometerStart int
	OdometerEnd   int
	DistanceKm    int
	Engineer      string
	Project       string
	Address       string
	Comment       string
	CreatedAt     string
	AuthorID      int64
	RowUID        string
}

// NewTripEntry validates the odometer pair, computes the distance and stamps
// a fresh row UID. CreatedAt is supplied by the caller (the commit step) so
// the same entry value is used for the row and for the duplicate check.
func NewTripEntry(e TripEntry) (TripEntry, error) {
	if e.OdometerStart < 0 || e.OdometerEnd < 0 {
		return TripEntry{}, fmt.Errorf("%w: odometer values must be non-negative", ErrValidation)
	}
	if e.OdometerEnd < e.OdometerStart {
		return TripEntry{}, fmt.Errorf("%w: end odometer %d is below start odometer %d",
			ErrValidation, e.OdometerEnd, e.OdometerStart)
	}
	e.DistanceKm = e.OdometerEnd - e.OdometerStart
	if e.RowUID == "" {
		e.RowUID = uuid.NewString()
	}
	return e, nil
}

// TripHeaders is the canonical 13-column order of a ledger row.
// The ledger (re)writes this header before any append; FromRow and Row are
// its exact inverse pair.
func TripHeaders() []string {
	return []string{
		"date",
		"time_start",
		"time_end",
		"odometer_start",
		"odometer_end",
		"distance_km",
		"engineer",
		"project",
		"address",
		"comment",
		"created_at",
		"author_id",
		"row_uid",
	}
}

// Row serializes the entry into the 13-column ledger layout.
func (e TripEntry) Row() []string {
	return []string{
		e.Date,
		e.TimeStart,
		e.TimeEnd,
		strconv.Itoa(e.OdometerStart),
		strconv.Itoa(e.OdometerEnd),
		strconv.Itoa(e.DistanceKm),
		e.Engineer,
		e.Project,
		e.Address,
		e.Comment,
		e.CreatedAt,
		strconv.FormatInt(e.AuthorID, 10),
		e.RowUID,
	}
}

// TripFromRow deserializes a ledger row. Missing trailing optional columns
// are tolerated and read as empty strings; the numeric columns (odometers,
// author id) are required and fail deserialization when absent or malformed.
// The distance column is ignored — it is recomputed from the odometer pair.
func TripFromRow(cells []string) (TripEntry, error) {
	padded := make([]string, len(TripHeaders()))
	copy(padded, cells)

	odoStart, err := strconv.Atoi(padded[3])
	if err != nil {
		return TripEntry{}, fmt.Errorf("%w: odometer_start %q", ErrValidation, padded[3])
	}
	odoEnd, err := strconv.Atoi(padded[4])
	if err != nil {
		return TripEntry{}, fmt.Errorf("%w: odometer_end %q", ErrValidation, padded[4])
	}
	authorID, err := strconv.ParseInt(padded[11], 10, 64)
	if err != nil {
		return TripEntry{}, fmt.Errorf("%w: author_id %q", ErrValidation, padded[11])
	}

	return TripEntry{
		Date:          padded[0],
		TimeStart:     padded[1],
		TimeEnd:       padded[2],
		OdometerStart: odoStart,
		OdometerEnd:   odoEnd,
		DistanceKm:    odoEnd - odoStart,
		Engineer:      padded[6],
		Project:       padded[7],
		Address:       padded[8],
		Comment:       padded[9],
		CreatedAt:     padded[10],
		AuthorID:      authorID,
		RowUID:        padded[12],
	}, nil
}
