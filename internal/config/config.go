package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	Compression CompressionConfig `mapstructure:"compression"`
	Source      SourceConfig      `mapstructure:"source"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig contains encoder and artifact settings
type CompressionConfig struct {
	Quality         int    `mapstructure:"quality"`
	OutputDirectory string `mapstructure:"output_directory"`
	OutputFileName  string `mapstructure:"output_file_name"`
}

// SourceConfig contains image loading settings
type SourceConfig struct {
	SupportedExtensions []string `mapstructure:"supported_extensions"`
	AutoOrientation     bool     `mapstructure:"auto_orientation"`
	ReadMetadata        bool     `mapstructure:"read_metadata"`
	UseExiftool         bool     `mapstructure:"use_exiftool"`
}

// MetricsConfig contains metric parameters
type MetricsConfig struct {
	SSIMWindow     int     `mapstructure:"ssim_window"`
	EntropyEpsilon float64 `mapstructure:"entropy_epsilon"`
}

// ServerConfig contains web adapter settings
type ServerConfig struct {
	Port          int `mapstructure:"port"`
	ThumbnailSize int `mapstructure:"thumbnail_size"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Compression: CompressionConfig{
			Quality:         50,
			OutputDirectory: filepath.Join("data", "result-compressed"),
			OutputFileName:  "compressed_image.jpg",
		},
		Source: SourceConfig{
			SupportedExtensions: []string{},
			AutoOrientation:     true,
			ReadMetadata:        true,
			UseExiftool:         false,
		},
		Metrics: MetricsConfig{
			SSIMWindow:     7,
			EntropyEpsilon: 1e-10,
		},
		Server: ServerConfig{
			Port:          8080,
			ThumbnailSize: 250,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "imgfidelity.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// setDefaults registers every key so environment overrides apply without a config file.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("compression.quality", c.Compression.Quality)
	v.SetDefault("compression.output_directory", c.Compression.OutputDirectory)
	v.SetDefault("compression.output_file_name", c.Compression.OutputFileName)
	v.SetDefault("source.supported_extensions", c.Source.SupportedExtensions)
	v.SetDefault("source.auto_orientation", c.Source.AutoOrientation)
	v.SetDefault("source.read_metadata", c.Source.ReadMetadata)
	v.SetDefault("source.use_exiftool", c.Source.UseExiftool)
	v.SetDefault("metrics.ssim_window", c.Metrics.SSIMWindow)
	v.SetDefault("metrics.entropy_epsilon", c.Metrics.EntropyEpsilon)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.thumbnail_size", c.Server.ThumbnailSize)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, config)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.imgfidelity")
		v.AddConfigPath("/etc/imgfidelity")
	}

	// Enable environment variable support
	v.SetEnvPrefix("IMGFIDELITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Compression.Quality < 0 || c.Compression.Quality > 100 {
		return fmt.Errorf("compression.quality must be between 0 and 100, got %d", c.Compression.Quality)
	}
	if c.Compression.OutputDirectory == "" {
		c.Compression.OutputDirectory = filepath.Join("data", "result-compressed")
	}
	c.Compression.OutputDirectory = expandPath(c.Compression.OutputDirectory)
	if c.Compression.OutputFileName == "" {
		c.Compression.OutputFileName = "compressed_image.jpg"
	}
	if strings.ContainsRune(c.Compression.OutputFileName, os.PathSeparator) {
		return fmt.Errorf("compression.output_file_name must be a bare file name: %s", c.Compression.OutputFileName)
	}

	c.Source.SupportedExtensions = normalizeExtensions(c.Source.SupportedExtensions)

	if c.Metrics.SSIMWindow < 1 || c.Metrics.SSIMWindow%2 == 0 {
		return fmt.Errorf("metrics.ssim_window must be odd and >= 1, got %d", c.Metrics.SSIMWindow)
	}
	if c.Metrics.EntropyEpsilon < 0 {
		return fmt.Errorf("metrics.entropy_epsilon must be >= 0, got %v", c.Metrics.EntropyEpsilon)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.ThumbnailSize <= 0 {
		c.Server.ThumbnailSize = 250
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// OutputPath returns the fixed location of the compressed artifact
func (c *Config) OutputPath() string {
	return filepath.Join(c.Compression.OutputDirectory, c.Compression.OutputFileName)
}

// SetOutputPath overrides the artifact location and re-validates the configuration.
func (c *Config) SetOutputPath(path string) error {
	if path == "" || strings.HasSuffix(path, string(os.PathSeparator)) {
		return fmt.Errorf("output path must name a file: %q", path)
	}
	c.Compression.OutputDirectory = filepath.Dir(path)
	c.Compression.OutputFileName = filepath.Base(path)
	return c.Validate()
}

// IsSupportedExtension checks if the extension is an accepted input format.
// An empty list accepts every extension and leaves the decision to content sniffing.
func (c *Config) IsSupportedExtension(ext string) bool {
	if len(c.Source.SupportedExtensions) == 0 {
		return true
	}
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.Source.SupportedExtensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

// Helper functions

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[1:])
		}
	}
	return expanded
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
