// Package overlay composites detection boxes, labels and segmentation masks
// onto a working copy of a scan.
package overlay

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"

	"github.com/isdelr/neuroscan-be/internal/models"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	xdraw "golang.org/x/image/draw"
)

const (
	lineWidth   = 2
	labelOffset = 10 // baseline distance above the box top

	// Mask blending is dst*maskDstWeight + red*maskSrcWeight, saturated.
	// This brightens the red channel rather than tinting towards red.
	maskDstWeight = 1.0
	maskSrcWeight = 0.5
)

var boxColor = color.RGBA{G: 255, A: 255}

// redBlend maps a red channel value to its value after blending with full red.
var redBlend = blendTable(255)

// ErrTooLarge is returned by Decode when an image exceeds the pixel limit.
var ErrTooLarge = errors.New("image exceeds pixel limit")

// Decode decodes a PNG, JPEG, GIF, BMP or WebP image into an opaque RGBA
// working copy. Alpha is discarded and colour channels are kept as stored.
// Images with more than maxPixels pixels are rejected from their header,
// before any pixel data is allocated; maxPixels <= 0 disables the check.
func Decode(data []byte, maxPixels int64) (*image.RGBA, error) {
	if maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode image header: %w", err)
		}
		if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
			return nil, fmt.Errorf("%w: %dx%d > %d", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
		}
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst, nil
	}

	// Un-premultiplied colour, then alpha forced to 255.
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := dst.PixOffset(x, y)
			dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = c.R, c.G, c.B, 255
		}
	}
	return dst, nil
}

// Clone returns an independent copy of img.
func Clone(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Rect)
	copy(out.Pix, img.Pix)
	return out
}

// Label formats the caption drawn above a detection box.
func Label(det models.Detection) string {
	return fmt.Sprintf("%s (%.2f)", det.Label, det.Confidence)
}

// DrawDetection draws a green box around det and its label above the box.
func DrawDetection(dst *image.RGBA, det models.Detection) {
	drawRect(dst, det.Box)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(boxColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(det.Box.X1, det.Box.Y1-labelOffset),
	}
	d.DrawString(Label(det))
}

// drawRect strokes the box outline inwards, clipped to the image.
func drawRect(dst *image.RGBA, b models.Box) {
	fill := func(r image.Rectangle) {
		draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(boxColor), image.Point{}, draw.Src)
	}
	fill(image.Rect(b.X1, b.Y1, b.X2+1, b.Y1+lineWidth))
	fill(image.Rect(b.X1, b.Y2+1-lineWidth, b.X2+1, b.Y2+1))
	fill(image.Rect(b.X1, b.Y1, b.X1+lineWidth, b.Y2+1))
	fill(image.Rect(b.X2+1-lineWidth, b.Y1, b.X2+1, b.Y2+1))
}

// BlendMask resizes mask to dst and adds a half-weight pure-red layer wherever
// the mask is nonzero. Channels saturate at 255 and ties round to even.
func BlendMask(dst *image.RGBA, mask *image.Gray) {
	bounds := dst.Bounds()
	scaled := mask
	if !mask.Bounds().Size().Eq(bounds.Size()) || mask.Bounds().Min != bounds.Min {
		scaled = image.NewGray(bounds)
		xdraw.NearestNeighbor.Scale(scaled, bounds, mask, mask.Bounds(), xdraw.Src, nil)
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if scaled.GrayAt(x, y).Y == 0 {
				continue
			}
			i := dst.PixOffset(x, y)
			dst.Pix[i] = redBlend[dst.Pix[i]]
		}
	}
}

// blendTable precomputes the saturated blend of every 8-bit value with src.
func blendTable(src uint8) [256]uint8 {
	var table [256]uint8
	for v := 0; v < 256; v++ {
		sum := math.RoundToEven(float64(v)*maskDstWeight + float64(src)*maskSrcWeight)
		table[v] = uint8(math.Min(sum, 255))
	}
	return table
}

// EncodeBase64PNG encodes img as PNG and returns it base64-encoded.
func EncodeBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
