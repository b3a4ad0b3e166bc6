package report

import (
	"bytes"
	"fmt"
	"image/color"
	"strings"

	apperrors "imgfidelity/internal/errors"
	"imgfidelity/internal/histogram"
	"imgfidelity/internal/raster"

	"github.com/disintegration/imaging"
)

const (
	// DefaultThumbnailSize matches the preview panes of the desktop tool.
	DefaultThumbnailSize = 250
	// MaxRenderSize bounds either side of a rendered chart or thumbnail.
	MaxRenderSize = 4096
)

var (
	chartBackground = color.NRGBA{255, 255, 255, 255}
	chartBar        = color.NRGBA{31, 119, 180, 255}
	chartGrid       = color.NRGBA{220, 220, 220, 255}
)

// Thumbnail fits img inside a size x size box and returns it PNG-encoded.
func Thumbnail(img *raster.Image, size int) ([]byte, error) {
	if img == nil {
		return nil, apperrors.NewValueError("no image for thumbnail", nil)
	}
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	if size > MaxRenderSize {
		return nil, apperrors.NewValueError(fmt.Sprintf("thumbnail size %d exceeds %d", size, MaxRenderSize), nil)
	}

	thumb := imaging.Fit(img.ToImage(), size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, apperrors.NewEncodeError("encode thumbnail", err)
	}
	return buf.Bytes(), nil
}

// HistogramChart draws the 256 bins as a PNG bar chart.
func HistogramChart(h *histogram.Histogram, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 || width > MaxRenderSize || height > MaxRenderSize {
		return nil, apperrors.NewValueError(fmt.Sprintf("invalid chart size %dx%d (max %d)", width, height, MaxRenderSize), nil)
	}

	canvas := imaging.New(width, height, chartBackground)
	for _, frac := range []float64{0.25, 0.5, 0.75} {
		y := height - 1 - int(frac*float64(height-1))
		for x := 0; x < width; x++ {
			canvas.SetNRGBA(x, y, chartGrid)
		}
	}

	peak := h.Max()
	if peak > 0 {
		for x := 0; x < width; x++ {
			bin := x * histogram.Bins / width
			if h[bin] == 0 {
				continue
			}
			bar := int(float64(h[bin]) / float64(peak) * float64(height-1))
			for y := height - 1; y >= height-1-bar; y-- {
				canvas.SetNRGBA(x, y, chartBar)
			}
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, apperrors.NewEncodeError("encode histogram chart", err)
	}
	return buf.Bytes(), nil
}

// TextHistogram renders the histogram folded into buckets as terminal bars of at most width cells.
func TextHistogram(h *histogram.Histogram, buckets, width int) (string, error) {
	counts, err := h.Buckets(buckets)
	if err != nil {
		return "", err
	}
	if width <= 0 {
		width = 50
	}

	peak := 0
	for _, c := range counts {
		if c > peak {
			peak = c
		}
	}

	span := histogram.Bins / buckets
	var b strings.Builder
	for i, c := range counts {
		n := 0
		if peak > 0 {
			n = c * width / peak
		}
		fmt.Fprintf(&b, "%3d-%3d | %-*s %d\n", i*span, (i+1)*span-1, width, strings.Repeat("#", n), c)
	}
	return b.String(), nil
}
