package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"time"

	"github.com/isdelr/neuroscan-be/internal/models"
)

// HTTPSegmenter runs the promptable segmentation model through the inference sidecar.
type HTTPSegmenter struct {
	sidecar
}

// NewHTTPSegmenter creates a segmenter backed by the sidecar at url, which loads modelPath.
func NewHTTPSegmenter(url, modelPath string, timeout time.Duration) *HTTPSegmenter {
	return &HTTPSegmenter{sidecar: newSidecar(url, modelPath, timeout)}
}

type segmentResponse struct {
	Masks []string `json:"masks"` // base64 PNG, one per mask
}

// Segment prompts the model with box and returns the masks it produces.
func (s *HTTPSegmenter) Segment(ctx context.Context, img image.Image, box models.Box) ([]*image.Gray, error) {
	var resp segmentResponse
	if err := s.post(ctx, img, map[string]string{"bbox": box.String()}, &resp); err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}

	masks := make([]*image.Gray, 0, len(resp.Masks))
	for i, encoded := range resp.Masks {
		mask, err := decodeMask(encoded)
		if err != nil {
			return nil, fmt.Errorf("segment: mask %d: %w", i, err)
		}
		masks = append(masks, mask)
	}
	return masks, nil
}

func decodeMask(encoded string) (*image.Gray, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if gray, ok := img.(*image.Gray); ok {
		return gray, nil
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray, nil
}
