package histogram

import (
	"fmt"

	apperrors "imgfidelity/internal/errors"
	"imgfidelity/internal/raster"
)

// Bins is the number of 8-bit intensity levels.
const Bins = 256

// Histogram counts pixels per intensity value.
type Histogram [Bins]int

// Build counts the intensities of a grayscale image.
func Build(gray *raster.Image) (Histogram, error) {
	var h Histogram
	if gray == nil {
		return h, apperrors.NewValueError("no image to count", nil)
	}
	if err := gray.Validate(); err != nil {
		return h, apperrors.NewValueError("malformed image", err)
	}
	if !gray.IsGray() {
		return h, apperrors.NewValueError(fmt.Sprintf("histogram needs a grayscale image, got %d channels", gray.Channels), nil)
	}

	for _, v := range gray.Pix {
		h[v]++
	}
	return h, nil
}

// Total returns the number of counted pixels.
func (h *Histogram) Total() int {
	total := 0
	for _, c := range h {
		total += c
	}
	return total
}

// Max returns the largest bin count.
func (h *Histogram) Max() int {
	m := 0
	for _, c := range h {
		if c > m {
			m = c
		}
	}
	return m
}

// Mode returns the most frequent intensity; ties resolve to the darkest value.
func (h *Histogram) Mode() int {
	mode := 0
	for v, c := range h {
		if c > h[mode] {
			mode = v
		}
	}
	return mode
}

// Buckets folds the 256 bins into n equal ranges. n must divide 256.
func (h *Histogram) Buckets(n int) ([]int, error) {
	if n <= 0 || n > Bins || Bins%n != 0 {
		return nil, apperrors.NewValueError(fmt.Sprintf("bucket count %d must divide %d", n, Bins), nil)
	}
	width := Bins / n
	out := make([]int, n)
	for v, c := range h {
		out[v/width] += c
	}
	return out, nil
}
