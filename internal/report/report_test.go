package report

import (
	"bytes"
	"encoding/json"
	"image"
	"math"
	"strings"
	"testing"
	"time"

	"imgfidelity/internal/compressor"
	apperrors "imgfidelity/internal/errors"
	"imgfidelity/internal/histogram"
	"imgfidelity/internal/metrics"
	"imgfidelity/internal/pipeline"
	"imgfidelity/internal/raster"

	"github.com/disintegration/imaging"
)

func TestFormatKB(t *testing.T) {
	testCases := []struct {
		bytes int64
		want  string
	}{
		{0, "0.0000"},
		{1024, "1.0000"},
		{1536, "1.5000"},
		{100, "0.0977"},
	}
	for _, tc := range testCases {
		if got := FormatKB(tc.bytes); got != tc.want {
			t.Errorf("FormatKB(%d) = %q, want %q", tc.bytes, got, tc.want)
		}
	}
}

func TestFormatMetric(t *testing.T) {
	testCases := []struct {
		name string
		v    float64
		want string
	}{
		{"Finite", 32.123456, "32.1235"},
		{"Zero", 0, "0.0000"},
		{"Inf", math.Inf(1), "inf"},
		{"NaN", math.NaN(), "nan"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatMetric(tc.v); got != tc.want {
				t.Errorf("FormatMetric(%v) = %q, want %q", tc.v, got, tc.want)
			}
		})
	}
}

func createResult(t *testing.T) *pipeline.Result {
	t.Helper()
	orig, _ := raster.NewGray(4, 4, make([]uint8, 16))
	orig.ByteSize = 2048
	var h histogram.Histogram
	h[0] = 16
	start := time.Now()
	return &pipeline.Result{
		ID:         "abc",
		SourcePath: "in.png",
		Original:   orig,
		Compressed: &compressor.Artifact{Path: "out.jpg", ByteSize: 512},
		Metrics:    metrics.Metrics{MSE: 0, PSNR: math.Inf(1), SSIM: 1, Entropy: 0},
		Histogram:  h,
		Setting:    compressor.Setting{Quality: 50},
		StartedAt:  start,
		FinishedAt: start.Add(15 * time.Millisecond),
	}
}

func TestNewSummary(t *testing.T) {
	s := NewSummary(createResult(t))

	if s.OriginalSize != "2.0000" || s.CompressedSize != "0.5000" {
		t.Errorf("Unexpected sizes %s / %s", s.OriginalSize, s.CompressedSize)
	}
	if s.PSNR != "inf" {
		t.Errorf("Expected PSNR inf, got %s", s.PSNR)
	}
	if s.SpaceSaved != "75.00" || s.SizeRatio != "0.2500" {
		t.Errorf("Unexpected ratio %s / saved %s", s.SizeRatio, s.SpaceSaved)
	}
	if len(s.Histogram) != histogram.Bins || s.Histogram[0] != 16 {
		t.Error("Histogram not carried into the summary")
	}

	if _, err := json.Marshal(s); err != nil {
		t.Errorf("Summary must be JSON encodable: %v", err)
	}
	text := s.Text()
	for _, want := range []string{"PSNR:", "inf", "2.0000 kb", "Quality:"} {
		if !strings.Contains(text, want) {
			t.Errorf("Text output missing %q:\n%s", want, text)
		}
	}
}

func TestThumbnail(t *testing.T) {
	img, _ := raster.New(500, 250, 3)

	data, err := Thumbnail(img, DefaultThumbnailSize)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	thumb, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Thumbnail is not a valid image: %v", err)
	}
	if got := thumb.Bounds(); got != image.Rect(0, 0, 250, 125) {
		t.Errorf("Expected 250x125 thumbnail, got %v", got)
	}

	if _, err := Thumbnail(nil, 10); err == nil {
		t.Error("Expected error for nil image")
	}
	if _, err := Thumbnail(img, MaxRenderSize+1); !apperrors.IsKind(err, apperrors.KindValue) {
		t.Errorf("Expected value error for oversized thumbnail, got %v", err)
	}
}

func TestHistogramChart(t *testing.T) {
	var h histogram.Histogram
	h[10] = 5
	h[200] = 10

	data, err := HistogramChart(&h, 256, 100)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	chart, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Chart is not a valid image: %v", err)
	}
	if chart.Bounds().Dx() != 256 || chart.Bounds().Dy() != 100 {
		t.Errorf("Unexpected chart size %v", chart.Bounds())
	}

	// The tallest bar reaches the top row.
	_, _, b, _ := chart.At(200, 0).RGBA()
	if b>>8 != uint32(chartBar.B) {
		t.Error("Expected the peak bin to reach the top of the chart")
	}

	for _, size := range [][2]int{{0, 10}, {MaxRenderSize + 1, 10}, {10, 100000}} {
		_, err := HistogramChart(&h, size[0], size[1])
		if !apperrors.IsKind(err, apperrors.KindValue) {
			t.Errorf("Expected value error for %dx%d, got %v", size[0], size[1], err)
		}
	}
}

func TestTextHistogram(t *testing.T) {
	var h histogram.Histogram
	h[0] = 4
	h[255] = 2

	out, err := TextHistogram(&h, 16, 8)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 16 {
		t.Fatalf("Expected 16 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "########") {
		t.Errorf("Expected full bar on first bucket, got %q", lines[0])
	}
	if !strings.Contains(lines[15], "#### ") {
		t.Errorf("Expected half bar on last bucket, got %q", lines[15])
	}

	if _, err := TextHistogram(&h, 7, 8); err == nil {
		t.Error("Expected error for invalid bucket count")
	}
}
