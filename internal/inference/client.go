// Package inference adapts the pretrained detection and segmentation models,
// which are served by an inference sidecar over HTTP.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/isdelr/neuroscan-be/internal/models"
)

// Detector localizes regions of interest in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Detection, error)
}

// Segmenter produces pixel masks for the region inside a box prompt.
// Nonzero mask pixels are inside the region.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image, box models.Box) ([]*image.Gray, error)
}

// sidecar posts multipart inference requests to one model endpoint.
type sidecar struct {
	url       string
	modelPath string
	client    *http.Client
}

func newSidecar(url, modelPath string, timeout time.Duration) sidecar {
	return sidecar{
		url:       url,
		modelPath: modelPath,
		client:    &http.Client{Timeout: timeout},
	}
}

// post sends img as the "file" part along with extra form fields and decodes the JSON reply into out.
func (s sidecar) post(ctx context.Context, img image.Image, fields map[string]string, out interface{}) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	if err := writer.WriteField("model", s.modelPath); err != nil {
		return fmt.Errorf("write model field: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return fmt.Errorf("write %s field: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CheckHealth checks the sidecar answers on <url>/health.
func (s sidecar) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.url, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
