package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"imgfidelity/internal/compressor"
	apperrors "imgfidelity/internal/errors"
	"imgfidelity/internal/extractor"
	"imgfidelity/internal/histogram"
	"imgfidelity/internal/logger"
	"imgfidelity/internal/metrics"
	"imgfidelity/internal/raster"
	"imgfidelity/internal/source"
	"imgfidelity/internal/statistics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is the pipeline lifecycle position.
type State int

const (
	StateIdle State = iota
	StateLoaded
	StateCompressed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StateCompressed:
		return "compressed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result is the outcome of one compress-and-analyze run.
type Result struct {
	ID             string
	SourcePath     string
	Original       *raster.Image
	OriginalGray   *raster.Image
	Compressed     *compressor.Artifact
	CompressedGray *raster.Image
	Metrics        metrics.Metrics
	Histogram      histogram.Histogram
	Setting        compressor.Setting
	StartedAt      time.Time
	FinishedAt     time.Time
}

// SizeRatio returns compressed size over original size, or 0 when the original size is unknown.
func (r *Result) SizeRatio() float64 {
	if r.Original == nil || r.Original.ByteSize == 0 || r.Compressed == nil {
		return 0
	}
	return float64(r.Compressed.ByteSize) / float64(r.Original.ByteSize)
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	State    string `json:"state"`
	Busy     bool   `json:"busy"`
	Path     string `json:"path,omitempty"`
	ResultID string `json:"result_id,omitempty"`
}

// metadataCache is implemented by sources that cache image metadata.
type metadataCache interface {
	MetadataCacheStats() (extractor.CacheStats, bool)
	ClearMetadataCache()
}

// Pipeline drives load, compress and analysis for one image at a time.
type Pipeline struct {
	logger     *logrus.Logger
	stats      *statistics.Statistics
	source     source.Source
	compressor compressor.Compressor
	engine     *metrics.Engine
	outputPath string

	eventHook EventHook

	mu           sync.RWMutex
	busy         bool
	generation   uint64
	state        State
	path         string
	original     *raster.Image
	originalGray *raster.Image
	result       *Result
}

// New returns a Pipeline writing artifacts to outputPath.
func New(
	log *logrus.Logger,
	stats *statistics.Statistics,
	src source.Source,
	comp compressor.Compressor,
	engine *metrics.Engine,
	outputPath string,
) *Pipeline {
	return NewWithEventHook(log, stats, src, comp, engine, outputPath, nil)
}

// NewWithEventHook returns a Pipeline that reports every stage to hook.
func NewWithEventHook(
	log *logrus.Logger,
	stats *statistics.Statistics,
	src source.Source,
	comp compressor.Compressor,
	engine *metrics.Engine,
	outputPath string,
	hook EventHook,
) *Pipeline {
	if stats == nil {
		stats = statistics.NewStatistics()
	}
	if engine == nil {
		engine = metrics.NewEngine(metrics.DefaultOptions())
	}
	return &Pipeline{
		logger:     log,
		stats:      stats,
		source:     src,
		compressor: comp,
		engine:     engine,
		outputPath: outputPath,
		eventHook:  hook,
		state:      StateIdle,
	}
}

// Load decodes path and makes it the current original, discarding any previous result.
// On failure the previous state and data are kept.
func (p *Pipeline) Load(ctx context.Context, path string) (*raster.Image, error) {
	gen, err := p.acquire("load", func() error { return nil })
	if err != nil {
		return nil, err
	}
	defer p.release()

	start := time.Now()
	p.emit(Event{Type: EventLoadStarted, Path: path})
	logger.WithFileOperation(p.logger, path, "load").Info("Loading image")

	img, err := p.source.Load(ctx, path)
	if err != nil {
		p.stats.IncrementLoadFailures()
		p.fail("load", path, err)
		return nil, err
	}
	gray := img.Gray()

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		p.stats.IncrementStaleResults()
		logger.WithFileOperation(p.logger, path, "load").Warn("Pipeline was reset during load, discarding image")
		return nil, apperrors.NewInvalidStateError("pipeline was reset during load", nil).WithPath(path)
	}
	p.state = StateLoaded
	p.path = path
	p.original = img
	p.originalGray = gray
	p.result = nil
	p.mu.Unlock()

	p.stats.IncrementLoads()
	p.stats.AddBytesRead(img.ByteSize)
	p.stats.IncrementFormat(img.Format)

	logger.WithFileOperation(p.logger, path, "load").WithFields(logrus.Fields{
		"width":       img.Width,
		"height":      img.Height,
		"channels":    img.Channels,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Image loaded")
	p.emit(Event{Type: EventLoaded, Path: path})

	return img, nil
}

// Compress encodes the loaded original with setting and analyzes the artifact.
// It requires a loaded image. On failure the pipeline returns to the loaded state.
func (p *Pipeline) Compress(ctx context.Context, setting compressor.Setting) (*Result, error) {
	gen, err := p.acquire("compress", func() error {
		if p.state == StateIdle {
			return apperrors.NewInvalidStateError("no image loaded", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer p.release()

	p.mu.RLock()
	path, original, originalGray := p.path, p.original, p.originalGray
	p.mu.RUnlock()

	start := time.Now()
	p.emit(Event{Type: EventCompressStarted, Path: path, Quality: setting.Quality})

	res, err := p.analyze(ctx, path, original, originalGray, setting, start)
	if err != nil {
		p.stats.IncrementCompressionFailures()
		p.mu.Lock()
		if gen == p.generation {
			p.state = StateLoaded
			p.result = nil
		}
		p.mu.Unlock()
		p.fail("compress", path, err)
		return nil, err
	}

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		p.stats.IncrementStaleResults()
		logger.WithResult(p.logger, res.ID).Warn("Pipeline was reset during compression, discarding result")
		return nil, apperrors.NewInvalidStateError("pipeline was reset during compression", nil).WithPath(path)
	}
	p.result = res
	p.state = StateCompressed
	p.mu.Unlock()

	p.stats.RecordAnalysis(res.Metrics.SSIM, res.Metrics.PSNR, res.SizeRatio())

	logger.WithResult(p.logger, res.ID).WithFields(logrus.Fields{
		"file":        path,
		"quality":     setting.Quality,
		"mse":         res.Metrics.MSE,
		"psnr":        res.Metrics.PSNR,
		"ssim":        res.Metrics.SSIM,
		"entropy":     res.Metrics.Entropy,
		"duration_ms": res.FinishedAt.Sub(start).Milliseconds(),
	}).Info("Analysis complete")
	p.emit(Event{Type: EventAnalyzed, Path: path, ResultID: res.ID, Quality: setting.Quality})

	return res, nil
}

func (p *Pipeline) analyze(
	ctx context.Context,
	path string,
	original, originalGray *raster.Image,
	setting compressor.Setting,
	start time.Time,
) (*Result, error) {
	art, err := p.compressor.Compress(ctx, original, setting, p.outputPath)
	if err != nil {
		return nil, err
	}
	p.stats.IncrementCompressions()
	p.stats.AddBytesWritten(art.ByteSize)
	p.emit(Event{Type: EventCompressed, Path: art.Path, Quality: setting.Quality})

	if !art.Decoded.SameSize(original) {
		return nil, apperrors.NewDimensionMismatchError(fmt.Sprintf(
			"artifact is %dx%d, original is %dx%d",
			art.Decoded.Width, art.Decoded.Height, original.Width, original.Height), nil).WithPath(art.Path)
	}
	decodedGray := art.Decoded.Gray()

	var (
		wg      sync.WaitGroup
		m       metrics.Metrics
		h       histogram.Histogram
		mErr    error
		hErr    error
		mStart  = time.Now()
		mFinish time.Time
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		m, mErr = p.engine.Compute(originalGray, decodedGray)
		mFinish = time.Now()
	}()
	go func() {
		defer wg.Done()
		h, hErr = histogram.Build(originalGray)
	}()
	wg.Wait()

	if mErr != nil {
		return nil, mErr
	}
	if hErr != nil {
		return nil, hErr
	}
	logger.WithFileOperation(p.logger, path, "metrics").
		WithField("duration_ms", mFinish.Sub(mStart).Milliseconds()).Debug("Metrics computed")
	p.emit(Event{Type: EventMetrics, Path: path, Quality: setting.Quality})

	return &Result{
		ID:             uuid.NewString(),
		SourcePath:     path,
		Original:       original,
		OriginalGray:   originalGray,
		Compressed:     art,
		CompressedGray: decodedGray,
		Metrics:        m,
		Histogram:      h,
		Setting:        setting,
		StartedAt:      start,
		FinishedAt:     time.Now(),
	}, nil
}

// Run loads path and compresses it with setting.
func (p *Pipeline) Run(ctx context.Context, path string, setting compressor.Setting) (*Result, error) {
	if err := setting.Validate(); err != nil {
		return nil, err
	}
	if _, err := p.Load(ctx, path); err != nil {
		return nil, err
	}
	return p.Compress(ctx, setting)
}

// Reset discards the loaded image and result. An operation still in flight will not publish.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	p.generation++
	p.state = StateIdle
	p.path = ""
	p.original = nil
	p.originalGray = nil
	p.result = nil
	p.mu.Unlock()

	if c, ok := p.source.(metadataCache); ok {
		c.ClearMetadataCache()
	}

	p.stats.IncrementResets()
	logger.WithOperation(p.logger, "reset").Info("Pipeline reset")
	p.emit(Event{Type: EventReset})
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Status returns a snapshot of the pipeline.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Status{State: p.state.String(), Busy: p.busy, Path: p.path}
	if p.result != nil {
		st.ResultID = p.result.ID
	}
	return st
}

// Original returns the loaded image, or nil.
func (p *Pipeline) Original() *raster.Image {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.original
}

// Result returns the latest published result, or nil.
func (p *Pipeline) Result() *Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.result
}

// OriginalHistogram returns the intensity histogram of the loaded image.
func (p *Pipeline) OriginalHistogram() (histogram.Histogram, error) {
	p.mu.RLock()
	gray := p.originalGray
	p.mu.RUnlock()

	if gray == nil {
		return histogram.Histogram{}, apperrors.NewInvalidStateError("no image loaded", nil)
	}
	return histogram.Build(gray)
}

// MetadataCacheStats reports the source's metadata cache. ok is false when the source does not cache.
func (p *Pipeline) MetadataCacheStats() (stats extractor.CacheStats, ok bool) {
	c, ok := p.source.(metadataCache)
	if !ok {
		return extractor.CacheStats{}, false
	}
	return c.MetadataCacheStats()
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() *statistics.Statistics {
	return p.stats
}

// acquire marks the pipeline busy after check passes. check runs under the lock.
func (p *Pipeline) acquire(op string, check func() error) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy {
		p.stats.IncrementBusyRejections()
		return 0, apperrors.NewBusyError(fmt.Sprintf("cannot %s: another operation is in progress", op), nil)
	}
	if err := check(); err != nil {
		return 0, err
	}
	p.busy = true
	return p.generation, nil
}

func (p *Pipeline) release() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

func (p *Pipeline) fail(op, path string, err error) {
	p.stats.AddError(path, op, err.Error())
	logger.WithFileOperation(p.logger, path, op).WithError(err).Error("Pipeline stage failed")
	p.emit(Event{
		Type:      EventFailed,
		Path:      path,
		Error:     err.Error(),
		ErrorKind: string(apperrors.KindOf(err)),
	})
}

func (p *Pipeline) emit(ev Event) {
	if p.eventHook == nil {
		return
	}
	if ev.State == "" {
		ev.State = p.State().String()
	}
	ev.Timestamp = time.Now()
	p.eventHook(ev)
}
