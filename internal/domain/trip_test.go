package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/triplog-bot/internal/domain"
)

func validEntry() domain.TripEntry {
	return domain.TripEntry{
		Date:          "05.03.2025",
		TimeStart:     "09:00",
		TimeEnd:       "11:05",
		OdometerStart: 55698,
		OdometerEnd:   55700,
		Engineer:      "Иван Петров",
		Project:       "Object-12",
		Address:       "ул. Ленина, 1",
		Comment:       "client visit",
		CreatedAt:     "2025-03-05T08:05:00Z",
		AuthorID:      42,
	}
}

// ---- NewTripEntry ----------------------------------------------------------

func TestNewTripEntry_ComputesDistance(t *testing.T) {
	got, err := domain.NewTripEntry(validEntry())

	require.NoError(t, err)
	assert.Equal(t, 2, got.DistanceKm)
	assert.NotEmpty(t, got.RowUID)
}

func TestNewTripEntry_IgnoresCallerDistance(t *testing.T) {
	e := validEntry()
	e.DistanceKm = 999 // must be recomputed, never trusted

	got, err := domain.NewTripEntry(e)

	require.NoError(t, err)
	assert.Equal(t, 2, got.DistanceKm)
}

func TestNewTripEntry_ZeroDistance(t *testing.T) {
	e := validEntry()
	e.OdometerEnd = e.OdometerStart

	got, err := domain.NewTripEntry(e)

	// Equal readings are a valid zero-kilometer trip.
	require.NoError(t, err)
	assert.Equal(t, 0, got.DistanceKm)
}

func TestNewTripEntry_EndBelowStart(t *testing.T) {
	e := validEntry()
	e.OdometerEnd = e.OdometerStart - 1

	_, err := domain.NewTripEntry(e)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewTripEntry_NegativeOdometer(t *testing.T) {
	e := validEntry()
	e.OdometerStart = -1

	_, err := domain.NewTripEntry(e)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewTripEntry_PreservesExistingUID(t *testing.T) {
	e := validEntry()
	e.RowUID = "keep-me"

	got, err := domain.NewTripEntry(e)

	require.NoError(t, err)
	assert.Equal(t, "keep-me", got.RowUID)
}

// ---- Row / TripFromRow -----------------------------------------------------

func TestTripRow_MatchesHeaderWidth(t *testing.T) {
	e, err := domain.NewTripEntry(validEntry())
	require.NoError(t, err)

	assert.Len(t, e.Row(), len(domain.TripHeaders()))
}

func TestTripFromRow_RoundTrip(t *testing.T) {
	want, err := domain.NewTripEntry(validEntry())
	require.NoError(t, err)

	got, err := domain.TripFromRow(want.Row())

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTripFromRow_ShortRowPadsOptionalColumns(t *testing.T) {
	// A row written before the comment column existed: only the first
	// required columns are present.
	cells := []string{"05.03.2025", "09:00", "11:05", "55698", "55700", "2", "Иван Петров", "", "", "", "", "42"}

	got, err := domain.TripFromRow(cells)

	require.NoError(t, err)
	assert.Equal(t, "", got.Comment)
	assert.Equal(t, "", got.RowUID)
	assert.Equal(t, int64(42), got.AuthorID)
}

func TestTripFromRow_RecomputesDistance(t *testing.T) {
	e, err := domain.NewTripEntry(validEntry())
	require.NoError(t, err)

	cells := e.Row()
	cells[5] = "777" // a corrupted distance column must not survive

	got, err := domain.TripFromRow(cells)

	require.NoError(t, err)
	assert.Equal(t, 2, got.DistanceKm)
}

func TestTripFromRow_MalformedOdometer(t *testing.T) {
	e, _ := domain.NewTripEntry(validEntry())
	cells := e.Row()
	cells[3] = "oops"

	_, err := domain.TripFromRow(cells)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTripFromRow_MissingAuthorID(t *testing.T) {
	cells := []string{"05.03.2025", "09:00", "11:05", "55698", "55700"}

	_, err := domain.TripFromRow(cells)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ---- Measurement -----------------------------------------------------------

func TestNewMeasurement_StampsUID(t *testing.T) {
	m := domain.NewMeasurement(domain.Measurement{OdometerKm: 55698, FuelBars: 6})

	assert.NotEmpty(t, m.RowUID)
}

func TestMeasurementRow_MatchesHeaderWidth(t *testing.T) {
	m := domain.NewMeasurement(domain.Measurement{
		OdometerKm: 55698,
		FuelBars:   6,
		Liters:     37.5,
		Source:     "photo",
		AuthorID:   42,
	})

	row := m.Row()

	require.Len(t, row, len(domain.MeasurementHeaders()))
	assert.Equal(t, "55698", row[0])
	assert.Equal(t, "6", row[1])
	assert.Equal(t, "37.5", row[2])
	assert.Equal(t, "photo", row[3])
}
