// compare.go — Per-pixel PNG comparison for visual regression checks.
// The threshold governs per-pixel sensitivity only; an image matches when
// zero pixels differ. Callers wanting a fuzzy image-level match must
// inspect DiffPercentage themselves.
package visual

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// DefaultThreshold is the per-pixel tolerance used when the caller supplies
// none.
const DefaultThreshold = 0.1

// Result reports the outcome of one comparison.
type Result struct {
	Match           bool    `json:"match"`
	DiffPixels      int     `json:"diffPixels"`
	TotalPixels     int     `json:"totalPixels"`
	DiffPercentage  float64 `json:"diffPercentage"`
	DiffImageBase64 string  `json:"diffImageBase64,omitempty"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
}

// Compare decodes two PNGs and compares them pixel by pixel. A pixel
// mismatches when any 8-bit R, G or B channel differs by more than
// threshold*255; alpha is not compared.
// Dimension mismatch short-circuits: diffPixels is -1 and no diff image is
// produced.
func Compare(actual, expected []byte, threshold float64) (Result, error) {
	if threshold < 0 || threshold > 1 {
		threshold = DefaultThreshold
	}

	actualImg, err := png.Decode(bytes.NewReader(actual))
	if err != nil {
		return Result{}, fmt.Errorf("cannot decode actual image: %w", err)
	}
	expectedImg, err := png.Decode(bytes.NewReader(expected))
	if err != nil {
		return Result{}, fmt.Errorf("cannot decode expected image: %w", err)
	}

	eb := expectedImg.Bounds()
	ab := actualImg.Bounds()
	if ab.Dx() != eb.Dx() || ab.Dy() != eb.Dy() {
		return Result{
			Match:          false,
			DiffPixels:     -1,
			TotalPixels:    eb.Dx() * eb.Dy(),
			DiffPercentage: 100,
			Width:          eb.Dx(),
			Height:         eb.Dy(),
		}, nil
	}

	maxDelta := uint32(threshold * 255)
	diff := image.NewRGBA(image.Rect(0, 0, eb.Dx(), eb.Dy()))
	diffPixels := 0

	for y := 0; y < eb.Dy(); y++ {
		for x := 0; x < eb.Dx(); x++ {
			ar, ag, ab8, _ := rgba8(actualImg.At(ab.Min.X+x, ab.Min.Y+y))
			er, eg, eb8, _ := rgba8(expectedImg.At(eb.Min.X+x, eb.Min.Y+y))

			if delta(ar, er) > maxDelta || delta(ag, eg) > maxDelta || delta(ab8, eb8) > maxDelta {
				diffPixels++
				diff.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				// Dimmed grayscale base keeps page structure visible
				// around the highlighted mismatches.
				gray := uint8((ar + ag + ab8) / 6)
				diff.Set(x, y, color.RGBA{R: gray, G: gray, B: gray, A: 255})
			}
		}
	}

	total := eb.Dx() * eb.Dy()
	result := Result{
		Match:       diffPixels == 0,
		DiffPixels:  diffPixels,
		TotalPixels: total,
		Width:       eb.Dx(),
		Height:      eb.Dy(),
	}
	if total > 0 {
		result.DiffPercentage = 100 * float64(diffPixels) / float64(total)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, diff); err != nil {
		return Result{}, fmt.Errorf("cannot encode diff image: %w", err)
	}
	result.DiffImageBase64 = base64.StdEncoding.EncodeToString(buf.Bytes())

	return result, nil
}

// DecodeDiff returns the raw PNG bytes of a base64-encoded diff image.
func DecodeDiff(b64 string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(b64)
}

func rgba8(c color.Color) (r, g, b, a uint32) {
	r16, g16, b16, a16 := c.RGBA()
	return r16 >> 8, g16 >> 8, b16 >> 8, a16 >> 8
}

func delta(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
