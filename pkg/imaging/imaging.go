// Package imaging provides the PNG decode/encode, resize, hashing, and
// equality primitives shared by the device and framework cameras. It
// generalizes the teacher's ResizeImage (video_service.go), swapping its
// nearest-neighbour loop for golang.org/x/image/draw as that file's own
// comment recommends.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
)

// Decode parses PNG-encoded bytes into an image.Image.
func Decode(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imaging: decode png: %w", err)
	}
	return img, nil
}

// Encode serializes img as PNG.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("imaging: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Canonicalize letterboxes img onto a canvas of exactly w by h: the
// source is scaled to fit while preserving aspect ratio, centered, and
// padded with black where it doesn't fill the canvas. It never crops.
func Canonicalize(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	sb := img.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 {
		return dst
	}

	scale := float64(w) / float64(sw)
	if alt := float64(h) / float64(sh); alt < scale {
		scale = alt
	}
	scaledW := int(float64(sw) * scale)
	scaledH := int(float64(sh) * scale)
	ox := (w - scaledW) / 2
	oy := (h - scaledH) / 2

	dr := image.Rect(ox, oy, ox+scaledW, oy+scaledH)
	draw.ApproxBiLinear.Scale(dst, dr, img, sb, draw.Over, nil)
	return dst
}

// ResizeBounded scales img down so its longest side is at most maxDim,
// preserving aspect ratio. Images already within bounds are returned
// unchanged.
func ResizeBounded(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	var newW, newH int
	if w >= h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// ContentHash is a deliberately weak, cheap content fingerprint: every
// 100th byte folded into a 31-bit running hash. It is a visual-stability
// pre-filter, not a correctness guarantee — callers must fall back to a
// byte comparison on a hash collision.
func ContentHash(data []byte) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(data); i += 100 {
		h = (h ^ uint32(data[i])) * 16777619
	}
	return h & 0x7fffffff
}

// Equal compares two PNG byte slices. Exact mode (tolerance == 0) is a
// fast byte comparison, valid only when lengths match. Tolerant mode
// decodes both images, requires matching dimensions, and accepts if the
// fraction of differing pixels is at most tolerance.
func Equal(a, b []byte, tolerance float64) (bool, error) {
	if tolerance <= 0 {
		return bytes.Equal(a, b), nil
	}

	imgA, err := Decode(a)
	if err != nil {
		return false, fmt.Errorf("imaging: equal: decode a: %w", err)
	}
	imgB, err := Decode(b)
	if err != nil {
		return false, fmt.Errorf("imaging: equal: decode b: %w", err)
	}

	boundsA, boundsB := imgA.Bounds(), imgB.Bounds()
	if boundsA.Dx() != boundsB.Dx() || boundsA.Dy() != boundsB.Dy() {
		return false, nil
	}

	total := boundsA.Dx() * boundsA.Dy()
	if total == 0 {
		return true, nil
	}

	diffs := 0
	for y := 0; y < boundsA.Dy(); y++ {
		for x := 0; x < boundsA.Dx(); x++ {
			ra, ga, ba, aa := imgA.At(boundsA.Min.X+x, boundsA.Min.Y+y).RGBA()
			rb, gb, bb, ab := imgB.At(boundsB.Min.X+x, boundsB.Min.Y+y).RGBA()
			if ra != rb || ga != gb || ba != bb || aa != ab {
				diffs++
			}
		}
	}

	return float64(diffs)/float64(total) <= tolerance, nil
}
