package report

import (
	"fmt"
	"math"
	"strings"

	"imgfidelity/internal/pipeline"
)

// Summary is the display-ready form of an analysis result.
// Numbers are preformatted so +Inf PSNR survives JSON encoding.
type Summary struct {
	ResultID       string `json:"result_id"`
	SourcePath     string `json:"source_path"`
	ArtifactPath   string `json:"artifact_path"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Channels       int    `json:"channels"`
	Quality        int    `json:"quality"`
	OriginalSize   string `json:"original_size_kb"`
	CompressedSize string `json:"compressed_size_kb"`
	SizeRatio      string `json:"size_ratio"`
	SpaceSaved     string `json:"space_saved_percent"`
	MSE            string `json:"mse"`
	PSNR           string `json:"psnr"`
	SSIM           string `json:"ssim"`
	Entropy        string `json:"entropy"`
	DurationMS     int64  `json:"duration_ms"`
	Histogram      []int  `json:"histogram"`
}

// NewSummary formats res for display.
func NewSummary(res *pipeline.Result) Summary {
	s := Summary{
		ResultID:   res.ID,
		SourcePath: res.SourcePath,
		Quality:    res.Setting.Quality,
		MSE:        FormatMetric(res.Metrics.MSE),
		PSNR:       FormatMetric(res.Metrics.PSNR),
		SSIM:       FormatMetric(res.Metrics.SSIM),
		Entropy:    FormatMetric(res.Metrics.Entropy),
		DurationMS: res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
		Histogram:  res.Histogram[:],
	}

	var originalBytes, compressedBytes int64
	if res.Original != nil {
		s.Width, s.Height, s.Channels = res.Original.Width, res.Original.Height, res.Original.Channels
		originalBytes = res.Original.ByteSize
	}
	if res.Compressed != nil {
		s.ArtifactPath = res.Compressed.Path
		compressedBytes = res.Compressed.ByteSize
	}
	s.OriginalSize = FormatKB(originalBytes)
	s.CompressedSize = FormatKB(compressedBytes)
	s.SizeRatio = FormatMetric(res.SizeRatio())
	if originalBytes > 0 {
		s.SpaceSaved = fmt.Sprintf("%.2f", 100*(1-float64(compressedBytes)/float64(originalBytes)))
	} else {
		s.SpaceSaved = "n/a"
	}
	return s
}

// FormatKB renders a byte count as kilobytes (bytes/1024) with four decimals.
func FormatKB(bytes int64) string {
	return fmt.Sprintf("%.4f", float64(bytes)/1024)
}

// FormatMetric renders a score with four decimals. Infinite values become "inf".
func FormatMetric(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	return fmt.Sprintf("%.4f", v)
}

// Text renders the summary as aligned terminal lines.
func (s Summary) Text() string {
	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "%-18s %s\n", label+":", value)
	}

	row("Source", s.SourcePath)
	row("Artifact", s.ArtifactPath)
	row("Dimensions", fmt.Sprintf("%dx%d (%d channels)", s.Width, s.Height, s.Channels))
	row("Quality", fmt.Sprintf("%d", s.Quality))
	row("Original size", s.OriginalSize+" kb")
	row("Compressed size", s.CompressedSize+" kb")
	row("Size ratio", s.SizeRatio)
	row("Space saved", s.SpaceSaved+"%")
	row("PSNR", s.PSNR)
	row("MSE", s.MSE)
	row("SSIM", s.SSIM)
	row("Entropy", s.Entropy)
	row("Result ID", s.ResultID)
	return b.String()
}
