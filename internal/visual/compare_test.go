// compare_test.go — Tests for the per-pixel PNG comparator.
package visual

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// encodePNG renders a solid-color image with one optional deviant pixel.
func encodePNG(t *testing.T, w, h int, base color.RGBA, deviant *color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, base)
		}
	}
	if deviant != nil {
		img.Set(0, 0, *deviant)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestIdenticalImagesMatch(t *testing.T) {
	t.Parallel()

	white := color.RGBA{255, 255, 255, 255}
	img := encodePNG(t, 8, 6, white, nil)

	for _, threshold := range []float64{0, 0.1, 0.5, 1} {
		result, err := Compare(img, img, threshold)
		if err != nil {
			t.Fatalf("Compare(t=%v): %v", threshold, err)
		}
		if !result.Match || result.DiffPixels != 0 {
			t.Errorf("t=%v: match=%v diff=%d, want match with 0 diffs", threshold, result.Match, result.DiffPixels)
		}
		if result.TotalPixels != 48 {
			t.Errorf("total = %d, want 48", result.TotalPixels)
		}
	}
}

func TestSinglePixelDifference(t *testing.T) {
	t.Parallel()

	white := color.RGBA{255, 255, 255, 255}
	red := color.RGBA{255, 0, 0, 255}
	expected := encodePNG(t, 10, 10, white, nil)
	actual := encodePNG(t, 10, 10, white, &red)

	result, err := Compare(actual, expected, 0.1)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if result.Match {
		t.Error("mismatching image reported match")
	}
	if result.DiffPixels != 1 {
		t.Errorf("diffPixels = %d, want 1", result.DiffPixels)
	}
	if result.DiffPercentage != 1 {
		t.Errorf("diffPercentage = %v, want 1", result.DiffPercentage)
	}
	if result.DiffImageBase64 == "" {
		t.Error("no diff image produced")
	}

	// The diff image must itself decode as a PNG of matching dimensions.
	raw, err := DecodeDiff(result.DiffImageBase64)
	if err != nil {
		t.Fatalf("DecodeDiff: %v", err)
	}
	diffImg, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("diff image not valid PNG: %v", err)
	}
	if diffImg.Bounds().Dx() != 10 || diffImg.Bounds().Dy() != 10 {
		t.Errorf("diff bounds = %v", diffImg.Bounds())
	}
}

func TestThresholdAbsorbsSmallDeltas(t *testing.T) {
	t.Parallel()

	base := color.RGBA{100, 100, 100, 255}
	nudged := color.RGBA{110, 100, 100, 255}
	expected := encodePNG(t, 4, 4, base, nil)
	actual := encodePNG(t, 4, 4, base, &nudged)

	// Delta of 10 is under 0.1*255 ≈ 25: tolerated.
	loose, err := Compare(actual, expected, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if !loose.Match {
		t.Errorf("delta 10 not absorbed at threshold 0.1: %+v", loose)
	}

	// At threshold 0 the same delta counts as a mismatch.
	strict, err := Compare(actual, expected, 0)
	if err != nil {
		t.Fatal(err)
	}
	if strict.Match || strict.DiffPixels != 1 {
		t.Errorf("delta 10 absorbed at threshold 0: %+v", strict)
	}
}

func TestDimensionMismatch(t *testing.T) {
	t.Parallel()

	white := color.RGBA{255, 255, 255, 255}
	expected := encodePNG(t, 10, 10, white, nil)
	actual := encodePNG(t, 5, 10, white, nil)

	result, err := Compare(actual, expected, 0.1)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if result.Match {
		t.Error("dimension mismatch reported match")
	}
	if result.DiffPixels != -1 {
		t.Errorf("diffPixels = %d, want -1", result.DiffPixels)
	}
	if result.DiffPercentage != 100 {
		t.Errorf("diffPercentage = %v, want 100", result.DiffPercentage)
	}
	if result.TotalPixels != 100 {
		t.Errorf("totalPixels = %d, want expected dims product 100", result.TotalPixels)
	}
	if result.DiffImageBase64 != "" {
		t.Error("diff image produced for dimension mismatch")
	}
}

func TestInvalidPNG(t *testing.T) {
	t.Parallel()

	white := color.RGBA{255, 255, 255, 255}
	valid := encodePNG(t, 2, 2, white, nil)

	if _, err := Compare([]byte("not a png"), valid, 0.1); err == nil {
		t.Error("bad actual accepted")
	}
	if _, err := Compare(valid, []byte("not a png"), 0.1); err == nil {
		t.Error("bad expected accepted")
	}
}

func TestOutOfRangeThresholdFallsBack(t *testing.T) {
	t.Parallel()

	base := color.RGBA{100, 100, 100, 255}
	nudged := color.RGBA{110, 100, 100, 255}
	expected := encodePNG(t, 4, 4, base, nil)
	actual := encodePNG(t, 4, 4, base, &nudged)

	// -1 falls back to the 0.1 default, which absorbs the delta of 10.
	result, err := Compare(actual, expected, -1)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Match {
		t.Errorf("out-of-range threshold did not fall back to default: %+v", result)
	}
}
