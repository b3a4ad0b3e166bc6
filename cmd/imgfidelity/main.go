package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"imgfidelity/internal/config"
	"imgfidelity/internal/extractor"
	"imgfidelity/internal/logger"
	"imgfidelity/internal/pipeline"
	"imgfidelity/internal/report"
	"imgfidelity/internal/statistics"
	"imgfidelity/internal/web"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	verbose    bool
	quiet      bool
	quality    int
	outputPath string
	jsonOutput bool
	buckets    int
	barWidth   int
	chartPath  string
	port       int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "imgfidelity",
	Short: "Measure what JPEG compression costs an image",
	Long: `imgfidelity loads an image, compresses it to JPEG at a chosen quality and
reports how faithful the result is.

Reported values:
- Original and compressed size in kb
- MSE and PSNR against the original
- SSIM (7x7 window)
- Entropy of the original intensities
- 256-bin intensity histogram`,
	SilenceUsage: true,
}

// analyzeCmd runs the full pipeline on one image.
var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Compress an image and print fidelity metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd, args[0])
	},
}

// histogramCmd prints the intensity histogram of an image.
var histogramCmd = &cobra.Command{
	Use:   "histogram <image>",
	Short: "Print the grayscale intensity histogram of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistogram(args[0])
	},
}

// exifCmd shows the metadata attached to an image.
var exifCmd = &cobra.Command{
	Use:   "exif <image>",
	Short: "Show camera metadata read from an image",
	Long: `Shows the EXIF metadata imgfidelity attaches to loaded images.
This is useful for checking orientation handling.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExif(args[0])
	},
}

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket API",
	Long: `Starts a web server exposing one analysis pipeline.
Clients load an image, compress it and fetch metrics, thumbnails and the
histogram. Pipeline events are pushed on /ws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	analyzeCmd.Flags().IntVarP(&quality, "quality", "q", 50, "JPEG quality (0-100)")
	analyzeCmd.Flags().StringVarP(&outputPath, "output", "o", "", "artifact path (default from config)")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the summary as JSON")

	histogramCmd.Flags().IntVar(&buckets, "buckets", 16, "number of buckets (must divide 256)")
	histogramCmd.Flags().IntVar(&barWidth, "width", 50, "maximum bar width")
	histogramCmd.Flags().StringVar(&chartPath, "png", "", "also write a PNG chart to this path")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(histogramCmd)
	rootCmd.AddCommand(exifCmd)
	rootCmd.AddCommand(serveCmd)
}

// runAnalyze loads, compresses and reports on a single image.
func runAnalyze(cmd *cobra.Command, imagePath string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if outputPath != "" {
		if err := cfg.SetOutputPath(outputPath); err != nil {
			return fmt.Errorf("invalid output path: %w", err)
		}
	}

	setting := pipeline.DefaultSetting(cfg)
	if cmd.Flags().Changed("quality") {
		setting.Quality = quality
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()

	var hook pipeline.EventHook
	var bar *progressbar.ProgressBar
	if !quiet && !jsonOutput {
		bar = newProgressBar()
		hook = func(ev pipeline.Event) {
			bar.Describe(string(ev.Type))
			if ev.Type != pipeline.EventFailed {
				bar.Add(1)
			}
		}
	}

	p := pipeline.NewFromConfig(cfg, log, stats, hook)
	res, err := p.Run(context.Background(), imagePath, setting)
	if bar != nil {
		if err != nil {
			bar.Exit()
		} else {
			bar.Finish()
		}
		fmt.Fprintln(os.Stderr)
	}
	if verbose {
		defer printStatistics(p, stats)
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	summary := report.NewSummary(res)
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	if !quiet {
		summary.Histogram = nil
		fmt.Print(summary.Text())
	}
	return nil
}

// printStatistics writes the run counters to stderr so stdout stays parseable.
func printStatistics(p *pipeline.Pipeline, stats *statistics.Statistics) {
	stats.Finalize()
	fmt.Fprintf(os.Stderr, "\n%s\n\n%s\n%s\n", stats.GetSummary(), stats.GetFormatBreakdown(), stats.GetErrorSummary())
	if cache, ok := p.MetadataCacheStats(); ok {
		fmt.Fprintf(os.Stderr, "Metadata Cache: %d hits, %d misses, %d entries\n", cache.Hits, cache.Misses, cache.Size)
	}
}

// runHistogram prints the intensity distribution of an image.
func runHistogram(imagePath string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	p := pipeline.NewFromConfig(cfg, log, nil, nil)
	img, err := p.Load(context.Background(), imagePath)
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	h, err := p.OriginalHistogram()
	if err != nil {
		return err
	}

	text, err := report.TextHistogram(&h, buckets, barWidth)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%dx%d, mode %d)\n", imagePath, img.Width, img.Height, h.Mode())
	fmt.Print(text)

	if chartPath != "" {
		data, err := report.HistogramChart(&h, 512, 256)
		if err != nil {
			return err
		}
		if err := os.WriteFile(chartPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write chart: %w", err)
		}
		fmt.Printf("Chart written to %s\n", chartPath)
	}
	return nil
}

// runExif prints the metadata attached to an image.
func runExif(imagePath string) error {
	if !fileExists(imagePath) {
		return fmt.Errorf("file does not exist: %s", imagePath)
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	var fallback extractor.MetadataExtractor
	if cfg.Source.UseExiftool {
		fallback = extractor.NewExiftoolExtractor()
	}
	ext := extractor.NewEXIFExtractor(log, fallback)

	md, err := ext.Extract(imagePath)
	if err != nil {
		return fmt.Errorf("metadata extraction failed: %w", err)
	}
	if len(md) == 0 {
		fmt.Println("No metadata found")
		return nil
	}

	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-16s %s\n", k+":", md[k])
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)
	server := web.NewServer(cfg, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("imgfidelity API listening on http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// newProgressBar renders one step per pipeline event of a successful run.
func newProgressBar() *progressbar.ProgressBar {
	return progressbar.NewOptions(6,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    verbose,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
