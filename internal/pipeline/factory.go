package pipeline

import (
	"imgfidelity/internal/compressor"
	"imgfidelity/internal/config"
	"imgfidelity/internal/extractor"
	"imgfidelity/internal/metrics"
	"imgfidelity/internal/source"
	"imgfidelity/internal/statistics"

	"github.com/sirupsen/logrus"
)

// NewFromConfig wires a file source, JPEG compressor and metrics engine from cfg.
// stats and hook may be nil.
func NewFromConfig(cfg *config.Config, logger *logrus.Logger, stats *statistics.Statistics, hook EventHook) *Pipeline {
	var fallback extractor.MetadataExtractor
	if cfg.Source.UseExiftool {
		fallback = extractor.NewExiftoolExtractor()
	}

	src := source.NewFileSource(logger, extractor.NewEXIFExtractor(logger, fallback), source.Options{
		AutoOrientation: cfg.Source.AutoOrientation,
		ReadMetadata:    cfg.Source.ReadMetadata,
		AcceptExtension: cfg.IsSupportedExtension,
	})

	engine := metrics.NewEngine(metrics.Options{
		SSIMWindow:     cfg.Metrics.SSIMWindow,
		EntropyEpsilon: cfg.Metrics.EntropyEpsilon,
	})

	return NewWithEventHook(logger, stats, src, compressor.NewJPEGCompressor(logger), engine, cfg.OutputPath(), hook)
}

// DefaultSetting returns the compression setting configured in cfg.
func DefaultSetting(cfg *config.Config) compressor.Setting {
	return compressor.Setting{Quality: cfg.Compression.Quality}
}
