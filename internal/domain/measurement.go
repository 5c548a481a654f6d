package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// Measurement is the reduced-field record committed by the panel-reading
// flow: an odometer value and a fuel reading, without the trip fields.
// Source is "photo" when the values came from image recognition and
// "manual" when the user typed them in; PhotoRef is the transport's file
// reference for the original photo, empty for manual entries.
type Measurement struct {
	OdometerKm int
	FuelBars   int
	Liters     float64
	Source     string
	PhotoRef   string
	CreatedAt  string
	AuthorID   int64
	RowUID     string
}

// NewMeasurement stamps a row UID on the measurement.
func NewMeasurement(m Measurement) Measurement {
	if m.RowUID == "" {
		m.RowUID = uuid.NewString()
	}
	return m
}

// MeasurementHeaders is the column order of a measurement row.
func MeasurementHeaders() []string {
	return []string{
		"odometer_km",
		"fuel_bars",
		"liters",
		"source",
		"photo_ref",
		"created_at",
		"author_id",
		"row_uid",
	}
}

// Row serializes the measurement into its ledger layout.
func (m Measurement) Row() []string {
	return []string{
		strconv.Itoa(m.OdometerKm),
		strconv.Itoa(m.FuelBars),
		strconv.FormatFloat(m.Liters, 'f', -1, 64),
		m.Source,
		m.PhotoRef,
		m.CreatedAt,
		strconv.FormatInt(m.AuthorID, 10),
		m.RowUID,
	}
}
