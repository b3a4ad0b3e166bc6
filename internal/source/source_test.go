package source

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "imgfidelity/internal/errors"
	"imgfidelity/internal/extractor"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestSource() *FileSource {
	log := quietLogger()
	return NewFileSource(log, extractor.NewEXIFExtractor(log, nil), DefaultOptions())
}

func TestLoad_NotFound(t *testing.T) {
	_, err := newTestSource().Load(context.Background(), filepath.Join(t.TempDir(), "nonexistent.png"))
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("Expected not_found error, got %v", err)
	}
}

func TestLoad_DirectoryIsNotFound(t *testing.T) {
	_, err := newTestSource().Load(context.Background(), t.TempDir())
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("Expected not_found error for a directory, got %v", err)
	}
}

func TestLoad_DecodeErrors(t *testing.T) {
	dir := t.TempDir()
	testCases := []struct {
		name    string
		content []byte
	}{
		{"Empty", nil},
		{"Text", []byte("just some text, definitely not pixels")},
		{"PDF", []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n")},
		{"Truncated PNG", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".bin")
			if err := os.WriteFile(path, tc.content, 0644); err != nil {
				t.Fatalf("Failed to write fixture: %v", err)
			}
			_, err := newTestSource().Load(context.Background(), path)
			if !apperrors.IsKind(err, apperrors.KindDecode) {
				t.Errorf("Expected decode error, got %v", err)
			}
		})
	}
}

func TestLoad_GrayPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gray.png")
	src := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range src.Pix {
		src.Pix[i] = 128
	}
	writeImage(t, path, src, "png")

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat fixture: %v", err)
	}

	img, err := newTestSource().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if img.Width != 100 || img.Height != 100 {
		t.Errorf("Expected 100x100, got %dx%d", img.Width, img.Height)
	}
	if img.Channels != 1 {
		t.Errorf("Expected grayscale image, got %d channels", img.Channels)
	}
	if img.ByteSize != info.Size() {
		t.Errorf("Expected byte size %d, got %d", info.Size(), img.ByteSize)
	}
	if img.Format != "png" {
		t.Errorf("Expected format png, got %q", img.Format)
	}
	if err := img.Validate(); err != nil {
		t.Errorf("Loaded image fails validation: %v", err)
	}
}

func TestLoad_ColorJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "color.jpg")
	src := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			src.Set(x, y, color.RGBA{uint8(x * 6), uint8(y * 8), 90, 255})
		}
	}
	writeImage(t, path, src, "jpeg")

	img, err := newTestSource().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if img.Width != 40 || img.Height != 30 {
		t.Errorf("Expected 40x30, got %dx%d", img.Width, img.Height)
	}
	if img.Channels != 3 {
		t.Errorf("Expected RGB image, got %d channels", img.Channels)
	}
	if img.Format != "jpg" {
		t.Errorf("Expected format jpg, got %q", img.Format)
	}
}

func TestLoad_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestSource().Load(ctx, "whatever.png"); err == nil {
		t.Error("Expected canceled context to fail the load")
	}
}

func writeImage(t *testing.T, path string, img image.Image, format string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()

	switch format {
	case "png":
		err = png.Encode(f, img)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

func TestLoad_ExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.dat")
	writeImage(t, path, image.NewGray(image.Rect(0, 0, 4, 4)), "png")

	log := quietLogger()
	opts := DefaultOptions()
	opts.AcceptExtension = func(ext string) bool {
		ext = strings.ToLower(ext)
		return ext == ".png" || ext == ".jpg"
	}
	src := NewFileSource(log, nil, opts)

	if _, err := src.Load(context.Background(), path); !apperrors.IsKind(err, apperrors.KindDecode) {
		t.Errorf("Expected decode error for filtered extension, got %v", err)
	}

	pngPath := filepath.Join(dir, "image.PNG")
	writeImage(t, pngPath, image.NewGray(image.Rect(0, 0, 4, 4)), "png")
	if _, err := src.Load(context.Background(), pngPath); err != nil {
		t.Errorf("Expected upper-case extension to be accepted, got %v", err)
	}
}

func TestLoad_ContentDecidesWithoutFilter(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"scan.image", "noextension"} {
		path := filepath.Join(dir, name)
		writeImage(t, path, image.NewGray(image.Rect(0, 0, 8, 8)), "png")

		img, err := newTestSource().Load(context.Background(), path)
		if err != nil {
			t.Errorf("%s: expected PNG content to load, got %v", name, err)
			continue
		}
		if img.Format != "png" || img.Width != 8 {
			t.Errorf("%s: unexpected image %s %dx%d", name, img.Format, img.Width, img.Height)
		}
	}
}

func TestMetadataCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cached.png")
	writeImage(t, path, image.NewGray(image.Rect(0, 0, 4, 4)), "png")
	src := newTestSource()

	for i := 0; i < 2; i++ {
		if _, err := src.Load(context.Background(), path); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	stats, ok := src.MetadataCacheStats()
	if !ok {
		t.Fatal("Expected a caching extractor")
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit / 1 miss, got %d / %d", stats.Hits, stats.Misses)
	}

	src.ClearMetadataCache()
	if stats, _ := src.MetadataCacheStats(); stats.TotalQueries != 0 || stats.Size != 0 {
		t.Errorf("Expected empty cache after clear, got %+v", stats)
	}

	if _, ok := NewFileSource(quietLogger(), nil, DefaultOptions()).MetadataCacheStats(); ok {
		t.Error("Expected no cache stats without an extractor")
	}
}
