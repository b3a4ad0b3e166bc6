package statistics

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains the counters of one pipeline instance.
type Statistics struct {
	Loads               int64
	LoadFailures        int64
	Compressions        int64
	CompressionFailures int64
	Analyses            int64
	Resets              int64
	BusyRejections      int64
	StaleResults        int64

	BytesRead    int64
	BytesWritten int64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Quality aggregates over completed analyses.
	SSIMSum       float64
	PSNRSum       float64
	PSNRFinite    int64
	LosslessCount int64
	AverageSSIM   float64
	AveragePSNR   float64
	AverageRatio  float64
	ratioSum      float64

	Errors []StatError

	mutex sync.RWMutex

	FormatStats map[string]int64
}

// StatError represents an error that occurred during a pipeline stage.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:   time.Now(),
		FormatStats: make(map[string]int64),
		Errors:      make([]StatError, 0),
	}
}

// IncrementLoads increases the count of successful loads by 1.
func (s *Statistics) IncrementLoads() {
	atomic.AddInt64(&s.Loads, 1)
}

// IncrementLoadFailures increases the count of failed loads by 1.
func (s *Statistics) IncrementLoadFailures() {
	atomic.AddInt64(&s.LoadFailures, 1)
}

// IncrementCompressions increases the count of written artifacts by 1.
func (s *Statistics) IncrementCompressions() {
	atomic.AddInt64(&s.Compressions, 1)
}

// IncrementCompressionFailures increases the count of failed compress runs by 1.
func (s *Statistics) IncrementCompressionFailures() {
	atomic.AddInt64(&s.CompressionFailures, 1)
}

// IncrementResets increases the reset count by 1.
func (s *Statistics) IncrementResets() {
	atomic.AddInt64(&s.Resets, 1)
}

// IncrementBusyRejections increases the count of calls refused while busy by 1.
func (s *Statistics) IncrementBusyRejections() {
	atomic.AddInt64(&s.BusyRejections, 1)
}

// IncrementStaleResults increases the count of results dropped after a reset by 1.
func (s *Statistics) IncrementStaleResults() {
	atomic.AddInt64(&s.StaleResults, 1)
}

// IncrementFormat increases the count for a decoded source format by 1.
func (s *Statistics) IncrementFormat(format string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FormatStats[format]++
}

// AddBytesRead adds the size of a loaded source file.
func (s *Statistics) AddBytesRead(bytes int64) {
	atomic.AddInt64(&s.BytesRead, bytes)
}

// AddBytesWritten adds the size of a written artifact.
func (s *Statistics) AddBytesWritten(bytes int64) {
	atomic.AddInt64(&s.BytesWritten, bytes)
}

// RecordAnalysis folds one completed analysis into the quality aggregates.
// ratio is compressed size over original size.
func (s *Statistics) RecordAnalysis(ssim, psnr, ratio float64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Analyses++
	s.SSIMSum += ssim
	s.ratioSum += ratio
	if math.IsInf(psnr, 1) {
		s.LosslessCount++
	} else {
		s.PSNRSum += psnr
		s.PSNRFinite++
	}
	s.updateAverages()
}

func (s *Statistics) updateAverages() {
	if s.Analyses > 0 {
		s.AverageSSIM = s.SSIMSum / float64(s.Analyses)
		s.AverageRatio = s.ratioSum / float64(s.Analyses)
	}
	if s.PSNRFinite > 0 {
		s.AveragePSNR = s.PSNRSum / float64(s.PSNRFinite)
	}
}

// Finalize records the end time and duration.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	s.updateAverages()
}

// AddError records an error that occurred during a pipeline stage.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Snapshot is a copy of the counters that is safe to serialize.
type Snapshot struct {
	Loads               int64            `json:"loads"`
	LoadFailures        int64            `json:"load_failures"`
	Compressions        int64            `json:"compressions"`
	CompressionFailures int64            `json:"compression_failures"`
	Analyses            int64            `json:"analyses"`
	Resets              int64            `json:"resets"`
	BusyRejections      int64            `json:"busy_rejections"`
	StaleResults        int64            `json:"stale_results"`
	BytesRead           int64            `json:"bytes_read"`
	BytesWritten        int64            `json:"bytes_written"`
	AverageSSIM         float64          `json:"average_ssim"`
	AveragePSNR         float64          `json:"average_psnr"`
	AverageRatio        float64          `json:"average_ratio"`
	LosslessCount       int64            `json:"lossless_count"`
	Errors              int              `json:"errors"`
	Formats             map[string]int64 `json:"formats"`
	Uptime              string           `json:"uptime"`
}

// Snapshot returns a consistent copy of the current counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	formats := make(map[string]int64, len(s.FormatStats))
	for k, v := range s.FormatStats {
		formats[k] = v
	}

	return Snapshot{
		Loads:               atomic.LoadInt64(&s.Loads),
		LoadFailures:        atomic.LoadInt64(&s.LoadFailures),
		Compressions:        atomic.LoadInt64(&s.Compressions),
		CompressionFailures: atomic.LoadInt64(&s.CompressionFailures),
		Analyses:            s.Analyses,
		Resets:              atomic.LoadInt64(&s.Resets),
		BusyRejections:      atomic.LoadInt64(&s.BusyRejections),
		StaleResults:        atomic.LoadInt64(&s.StaleResults),
		BytesRead:           atomic.LoadInt64(&s.BytesRead),
		BytesWritten:        atomic.LoadInt64(&s.BytesWritten),
		AverageSSIM:         s.AverageSSIM,
		AveragePSNR:         s.AveragePSNR,
		AverageRatio:        s.AverageRatio,
		LosslessCount:       s.LosslessCount,
		Errors:              len(s.Errors),
		Formats:             formats,
		Uptime:              time.Since(s.StartTime).Round(time.Second).String(),
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	snap := s.Snapshot()
	duration := s.GetDuration()

	return fmt.Sprintf(`Image Fidelity Statistics Summary:

Loads:
		Succeeded: %d
		Failed: %d
		Bytes Read: %s

Compression:
		Artifacts Written: %d
		Failed: %d
		Bytes Written: %s
		Average Size Ratio: %.4f

Quality:
		Analyses: %d
		Average SSIM: %.4f
		Average PSNR: %.4f dB
		Lossless Results: %d

Pipeline:
		Resets: %d
		Busy Rejections: %d
		Stale Results Dropped: %d
		Errors: %d
		Duration: %v`,
		snap.Loads,
		snap.LoadFailures,
		formatBytes(snap.BytesRead),
		snap.Compressions,
		snap.CompressionFailures,
		formatBytes(snap.BytesWritten),
		snap.AverageRatio,
		snap.Analyses,
		snap.AverageSSIM,
		snap.AveragePSNR,
		snap.LosslessCount,
		snap.Resets,
		snap.BusyRejections,
		snap.StaleResults,
		snap.Errors,
		duration)
}

// GetFormatBreakdown returns a formatted breakdown of loaded source formats.
func (s *Statistics) GetFormatBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FormatStats) == 0 {
		return "No format statistics available"
	}

	formats := make([]string, 0, len(s.FormatStats))
	for f := range s.FormatStats {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	result := "Format Breakdown:\n"
	for _, f := range formats {
		result += fmt.Sprintf("  %s: %d\n", f, s.FormatStats[f])
	}
	return result
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// GetDuration returns the total duration of the run.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}
