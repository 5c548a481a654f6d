package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avoronkov/triplog-bot/internal/domain"
)

// HTTPExtractor calls a recognition service over HTTP: the image bytes are
// POSTed as-is and the service answers with the extracted reading.
type HTTPExtractor struct {
	url    string
	client *http.Client
}

// NewHTTPExtractor builds an extractor for the given endpoint URL.
func NewHTTPExtractor(url string) *HTTPExtractor {
	return &HTTPExtractor{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// extractResponse is the service's wire format. Absent fields mean the
// value could not be read off the panel.
type extractResponse struct {
	OdometerKm *int    `json:"odometer_km"`
	FuelBars   *int    `json:"fuel_bars"`
	Confidence float64 `json:"confidence"`
}

// Extract implements Extractor.
func (e *HTTPExtractor) Extract(ctx context.Context, image []byte) (domain.PanelReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(image))
	if err != nil {
		return domain.PanelReading{}, fmt.Errorf("panel.HTTPExtractor.Extract: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return domain.PanelReading{}, fmt.Errorf("panel.HTTPExtractor.Extract: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.PanelReading{}, fmt.Errorf("panel.HTTPExtractor.Extract: status %d", resp.StatusCode)
	}

	var body extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.PanelReading{}, fmt.Errorf("panel.HTTPExtractor.Extract: decode: %w", err)
	}

	return domain.PanelReading{
		OdometerKm: body.OdometerKm,
		FuelBars:   body.FuelBars,
		Confidence: body.Confidence,
	}, nil
}

// compile-time check: HTTPExtractor must satisfy Extractor.
var _ Extractor = (*HTTPExtractor)(nil)
