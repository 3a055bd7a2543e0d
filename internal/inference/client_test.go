package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/isdelr/neuroscan-be/internal/models"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	return img
}

func TestDetectDecodesDetections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NilError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, r.FormValue("model"), "./model/best.pt")

		file, _, err := r.FormFile("file")
		assert.NilError(t, err)
		img, err := png.Decode(file)
		assert.NilError(t, err)
		assert.Equal(t, img.Bounds().Dx(), 8)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"detections": []map[string]interface{}{
				{"box": []float64{1.7, 2.2, 5.9, 4.1}, "class_id": 1, "label": "glioma", "confidence": 0.87},
			},
		})
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL, "./model/best.pt", 5*time.Second)
	dets, err := d.Detect(context.Background(), testImage())
	assert.NilError(t, err)
	assert.Assert(t, is.Len(dets, 1))
	assert.DeepEqual(t, dets[0], models.Detection{
		Box:        models.Box{X1: 1, Y1: 2, X2: 5, Y2: 4},
		ClassID:    1,
		Label:      "glioma",
		Confidence: 0.87,
	})
}

func TestDetectPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL, "m", time.Second)
	_, err := d.Detect(context.Background(), testImage())
	assert.ErrorContains(t, err, "status 503")
}

func TestSegmentSendsBoxAndDecodesMasks(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 4, 3))
	mask.SetGray(2, 1, color.Gray{Y: 1})
	var buf bytes.Buffer
	assert.NilError(t, png.Encode(&buf, mask))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NilError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, r.FormValue("bbox"), "1,2,5,4")
		assert.Equal(t, r.FormValue("model"), "./model/sam2_l.pt")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"masks": []string{base64.StdEncoding.EncodeToString(buf.Bytes())},
		})
	}))
	defer srv.Close()

	s := NewHTTPSegmenter(srv.URL, "./model/sam2_l.pt", 5*time.Second)
	masks, err := s.Segment(context.Background(), testImage(), models.Box{X1: 1, Y1: 2, X2: 5, Y2: 4})
	assert.NilError(t, err)
	assert.Assert(t, is.Len(masks, 1))
	assert.Equal(t, masks[0].Bounds().Dx(), 4)
	assert.Equal(t, masks[0].GrayAt(2, 1).Y, uint8(1))
	assert.Equal(t, masks[0].GrayAt(0, 0).Y, uint8(0))
}

func TestSegmentRejectsBadMask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"masks":["not-base64!"]}`))
	}))
	defer srv.Close()

	s := NewHTTPSegmenter(srv.URL, "m", time.Second)
	_, err := s.Segment(context.Background(), testImage(), models.Box{})
	assert.ErrorContains(t, err, "mask 0")
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/detect/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.NilError(t, NewHTTPDetector(srv.URL+"/detect", "m", time.Second).CheckHealth(context.Background()))
	assert.ErrorContains(t, NewHTTPDetector(srv.URL+"/other", "m", time.Second).CheckHealth(context.Background()), "unhealthy")
}
