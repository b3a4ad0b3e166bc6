package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if cfg.Compression.Quality != 50 {
		t.Errorf("Expected default quality 50, got %d", cfg.Compression.Quality)
	}
	want := filepath.Join("data", "result-compressed", "compressed_image.jpg")
	if cfg.OutputPath() != want {
		t.Errorf("Expected output path %s, got %s", want, cfg.OutputPath())
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"QualityTooHigh", func(c *Config) { c.Compression.Quality = 101 }, true},
		{"QualityNegative", func(c *Config) { c.Compression.Quality = -1 }, true},
		{"EvenWindow", func(c *Config) { c.Metrics.SSIMWindow = 8 }, true},
		{"ZeroWindow", func(c *Config) { c.Metrics.SSIMWindow = 0 }, true},
		{"NegativeEpsilon", func(c *Config) { c.Metrics.EntropyEpsilon = -1 }, true},
		{"BadPort", func(c *Config) { c.Server.Port = 70000 }, true},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "chatty" }, true},
		{"NestedFileName", func(c *Config) { c.Compression.OutputFileName = filepath.Join("a", "b.jpg") }, true},
		{"EmptyFileNameDefaults", func(c *Config) { c.Compression.OutputFileName = "" }, false},
		{"QualityZero", func(c *Config) { c.Compression.Quality = 0 }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestValidate_NormalizesExtensions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source.SupportedExtensions = []string{"PNG", ".JPG"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !cfg.IsSupportedExtension(".png") || !cfg.IsSupportedExtension(".JPG") {
		t.Errorf("Expected normalized extensions, got %v", cfg.Source.SupportedExtensions)
	}
	if cfg.IsSupportedExtension(".raw") {
		t.Error("Unexpected support for .raw")
	}
}

func TestIsSupportedExtension_EmptyListAcceptsAll(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(cfg.Source.SupportedExtensions) != 0 {
		t.Errorf("Expected no default extension filter, got %v", cfg.Source.SupportedExtensions)
	}
	for _, ext := range []string{".image", "", ".PNG"} {
		if !cfg.IsSupportedExtension(ext) {
			t.Errorf("Expected %q to be accepted without a filter", ext)
		}
	}
}

func TestSetOutputPath(t *testing.T) {
	t.Setenv("IMGFIDELITY_TEST_OUT", "/tmp/fidelity")
	cfg := DefaultConfig()
	if err := cfg.SetOutputPath(filepath.Join("$IMGFIDELITY_TEST_OUT", "q40.jpg")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := filepath.Join("/tmp/fidelity", "q40.jpg")
	if cfg.OutputPath() != want {
		t.Errorf("Expected expanded output path %s, got %s", want, cfg.OutputPath())
	}

	for _, bad := range []string{"", "out" + string(os.PathSeparator)} {
		if err := DefaultConfig().SetOutputPath(bad); err == nil {
			t.Errorf("Expected error for output path %q", bad)
		}
	}

	cfg = DefaultConfig()
	cfg.Compression.Quality = 500
	if err := cfg.SetOutputPath("out.jpg"); err == nil {
		t.Error("Expected the override to re-run validation")
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
compression:
  quality: 80
  output_directory: out
metrics:
  ssim_window: 5
server:
  port: 9090
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Compression.Quality != 80 || cfg.Metrics.SSIMWindow != 5 || cfg.Server.Port != 9090 {
		t.Errorf("File values not applied: %+v", cfg)
	}
	if cfg.Compression.OutputFileName != "compressed_image.jpg" {
		t.Errorf("Expected default file name to survive, got %q", cfg.Compression.OutputFileName)
	}
	if cfg.Metrics.EntropyEpsilon != 1e-10 {
		t.Errorf("Expected default epsilon, got %v", cfg.Metrics.EntropyEpsilon)
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("IMGFIDELITY_COMPRESSION_QUALITY", "25")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8081\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Compression.Quality != 25 {
		t.Errorf("Expected env quality 25, got %d", cfg.Compression.Quality)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("compression:\n  quality: 300\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected validation error for quality 300")
	}
}
