package inference

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/isdelr/neuroscan-be/internal/models"
)

// HTTPDetector runs the object-detection model through the inference sidecar.
type HTTPDetector struct {
	sidecar
}

// NewHTTPDetector creates a detector backed by the sidecar at url, which loads modelPath.
func NewHTTPDetector(url, modelPath string, timeout time.Duration) *HTTPDetector {
	return &HTTPDetector{sidecar: newSidecar(url, modelPath, timeout)}
}

type detectResponse struct {
	Detections []struct {
		Box        [4]float64 `json:"box"` // x1, y1, x2, y2
		ClassID    int        `json:"class_id"`
		Label      string     `json:"label"`
		Confidence float64    `json:"confidence"`
	} `json:"detections"`
}

// Detect returns every detection the model reports, unfiltered.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	var resp detectResponse
	if err := d.post(ctx, img, nil, &resp); err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	detections := make([]models.Detection, 0, len(resp.Detections))
	for _, det := range resp.Detections {
		detections = append(detections, models.Detection{
			// Coordinates are truncated to whole pixels.
			Box: models.Box{
				X1: int(det.Box[0]),
				Y1: int(det.Box[1]),
				X2: int(det.Box[2]),
				Y2: int(det.Box[3]),
			},
			ClassID:    det.ClassID,
			Label:      det.Label,
			Confidence: det.Confidence,
		})
	}
	return detections, nil
}
