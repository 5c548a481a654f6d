package domain

// PanelReading is what the extraction collaborator produces from an
// instrument panel photo. Nil fields mean the extractor could not find that
// value; Confidence is in [0,1] and is compared against the configured
// threshold to decide whether to warn the user.
type PanelReading struct {
	OdometerKm *int
	FuelBars   *int
	Confidence float64
}
