// Package overlay detects visual divergence between a framework-rendered
// frame and the corresponding device screenshot: system overlays
// (permission dialogs, notification shades, IME) show up on the device
// frame but not the framework's engine frame. Pixel comparison itself
// sits on the standard library image package rather than a third-party
// one: the algorithm is specified exactly (banded max-channel-diff,
// bounding-box confidence) and no pack library implements it.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/scenegaze/scenegaze/pkg/types"
)

// Config tunes the comparison band, the per-pixel match threshold, and
// the overlay-present decision threshold.
type Config struct {
	ExcludeTopFraction    float64
	ExcludeBottomFraction float64
	Threshold             float64
	MinDiffPercentage     float64
}

// DefaultConfig matches the reference tuning: ignore the top 5% (status
// bar) and bottom 12% (nav bar), treat channels within 1% of 255 as
// matching, and flag overlay presence above 5% mismatching pixels.
func DefaultConfig() Config {
	return Config{
		ExcludeTopFraction:    0.05,
		ExcludeBottomFraction: 0.12,
		Threshold:             0.01,
		MinDiffPercentage:     0.05,
	}
}

// Detector compares framework and device frames per Config.
type Detector struct {
	cfg Config
}

// NewDetector builds a Detector with the given Config.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

type bbox struct {
	minX, minY, maxX, maxY int
	has                    bool
}

func (b *bbox) include(x, y int) {
	if !b.has {
		b.minX, b.minY, b.maxX, b.maxY = x, y, x, y
		b.has = true
		return
	}
	if x < b.minX {
		b.minX = x
	}
	if x > b.maxX {
		b.maxX = x
	}
	if y < b.minY {
		b.minY = y
	}
	if y > b.maxY {
		b.maxY = y
	}
}

func (b bbox) area() int {
	if !b.has {
		return 0
	}
	return (b.maxX - b.minX + 1) * (b.maxY - b.minY + 1)
}

// Detect implements the §4.7 decode/band/threshold/bbox algorithm.
func (d *Detector) Detect(flutterPNG, devicePNG []byte) types.OverlayResult {
	flutterImg, err1 := png.Decode(bytes.NewReader(flutterPNG))
	deviceImg, err2 := png.Decode(bytes.NewReader(devicePNG))
	if err1 != nil || err2 != nil {
		return types.OverlayResult{
			OverlayPresent: true,
			Confidence:     0.0,
			DiffPercentage: 1.0,
			Reason:         "decode failed",
		}
	}

	fb, db := flutterImg.Bounds(), deviceImg.Bounds()
	if fb.Dx() != db.Dx() || fb.Dy() != db.Dy() {
		return types.OverlayResult{
			OverlayPresent: true,
			Confidence:     0.5,
			DiffPercentage: 1.0,
			Reason:         fmt.Sprintf("dimension mismatch: flutter=%dx%d device=%dx%d", fb.Dx(), fb.Dy(), db.Dx(), db.Dy()),
		}
	}

	width, height := fb.Dx(), fb.Dy()
	yStart := roundFrac(height, d.cfg.ExcludeTopFraction)
	yEnd := height - roundFrac(height, d.cfg.ExcludeBottomFraction)
	if yEnd < yStart {
		yEnd = yStart
	}

	threshold255 := d.cfg.Threshold * 255
	compared := 0
	mismatching := 0
	var region bbox

	for y := yStart; y < yEnd; y++ {
		for x := 0; x < width; x++ {
			fr, fg, fbl, _ := toRGB8(flutterImg.At(fb.Min.X+x, fb.Min.Y+y))
			dr, dg, dbl, _ := toRGB8(deviceImg.At(db.Min.X+x, db.Min.Y+y))

			compared++
			if maxDiff(fr, dr, fg, dg, fbl, dbl) > threshold255 {
				mismatching++
				region.include(x, y)
			}
		}
	}

	if compared == 0 {
		return types.OverlayResult{OverlayPresent: false, Confidence: 1.0, DiffPercentage: 0.0, Reason: "empty comparison band"}
	}

	diffPercentage := float64(mismatching) / float64(compared)
	overlayPresent := diffPercentage > d.cfg.MinDiffPercentage

	var confidence float64
	if mismatching > 0 {
		confidence = float64(mismatching) / float64(region.area())
		if !overlayPresent {
			confidence = 1 - confidence
		}
	} else {
		confidence = 1.0
	}

	result := types.OverlayResult{
		OverlayPresent: overlayPresent,
		Confidence:     confidence,
		DiffPercentage: diffPercentage,
	}
	if mismatching > 0 {
		result.DiffRegions = []types.OverlayRegion{{
			X:      region.minX,
			Y:      region.minY,
			Width:  region.maxX - region.minX + 1,
			Height: region.maxY - region.minY + 1,
		}}
	}
	return result
}

// GenerateDiffImage renders the comparison band: gray at 50% opacity for
// matching pixels, red at full opacity for mismatches, gray at 25%
// opacity for the excluded top/bottom bands.
func (d *Detector) GenerateDiffImage(flutterPNG, devicePNG []byte) ([]byte, error) {
	flutterImg, err := png.Decode(bytes.NewReader(flutterPNG))
	if err != nil {
		return nil, fmt.Errorf("overlay: decode flutter frame: %w", err)
	}
	deviceImg, err := png.Decode(bytes.NewReader(devicePNG))
	if err != nil {
		return nil, fmt.Errorf("overlay: decode device frame: %w", err)
	}

	fb, db := flutterImg.Bounds(), deviceImg.Bounds()
	if fb.Dx() != db.Dx() || fb.Dy() != db.Dy() {
		return nil, fmt.Errorf("overlay: dimension mismatch: flutter=%dx%d device=%dx%d", fb.Dx(), fb.Dy(), db.Dx(), db.Dy())
	}

	width, height := fb.Dx(), fb.Dy()
	yStart := roundFrac(height, d.cfg.ExcludeTopFraction)
	yEnd := height - roundFrac(height, d.cfg.ExcludeBottomFraction)
	threshold255 := d.cfg.Threshold * 255

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fr, fg, fbl, _ := toRGB8(flutterImg.At(fb.Min.X+x, fb.Min.Y+y))
			gray := uint8((uint32(fr) + uint32(fg) + uint32(fbl)) / 3)

			if y < yStart || y >= yEnd {
				out.Set(x, y, color.RGBA{R: gray / 4, G: gray / 4, B: gray / 4, A: 255})
				continue
			}

			dr, dg, dbl, _ := toRGB8(deviceImg.At(db.Min.X+x, db.Min.Y+y))
			if maxDiff(fr, dr, fg, dg, fbl, dbl) > threshold255 {
				out.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				out.Set(x, y, color.RGBA{R: gray / 2, G: gray / 2, B: gray / 2, A: 255})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("overlay: encode diff image: %w", err)
	}
	return buf.Bytes(), nil
}

func toRGB8(c color.Color) (r, g, b, a uint8) {
	rr, gg, bb, aa := c.RGBA()
	return uint8(rr >> 8), uint8(gg >> 8), uint8(bb >> 8), uint8(aa >> 8)
}

func maxDiff(r1, r2, g1, g2, b1, b2 uint8) float64 {
	dr := absInt(int(r1) - int(r2))
	dg := absInt(int(g1) - int(g2))
	db := absInt(int(b1) - int(b2))
	m := dr
	if dg > m {
		m = dg
	}
	if db > m {
		m = db
	}
	return float64(m)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func roundFrac(total int, frac float64) int {
	return int(float64(total)*frac + 0.5)
}
