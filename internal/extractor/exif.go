package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// EXIFExtractor reads metadata from image files using EXIF tags.
type EXIFExtractor struct {
	logger   *logrus.Logger
	fallback MetadataExtractor
	cache    *sync.Map
	stats    CacheStats
	mutex    sync.RWMutex
}

// NewEXIFExtractor returns a new EXIFExtractor. The fallback, when not nil,
// is consulted for files goexif cannot parse.
func NewEXIFExtractor(logger *logrus.Logger, fallback MetadataExtractor) *EXIFExtractor {
	return &EXIFExtractor{
		logger:   logger,
		fallback: fallback,
		cache:    &sync.Map{},
		stats:    CacheStats{},
	}
}

// Extract returns the metadata of an image file. Files without EXIF data
// yield an empty, non-nil Metadata.
func (e *EXIFExtractor) Extract(filePath string) (Metadata, error) {
	if !e.SupportsFile(filePath) {
		return nil, fmt.Errorf("file type not supported by extractor: %s", filePath)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	cache := e.currentCache()
	key := e.getCacheKey(filePath, fileInfo)
	if value, ok := cache.Load(key); ok {
		e.incrementCacheHits()
		return value.(Metadata).Clone(), nil
	}
	e.incrementCacheMisses()

	md, err := e.extractWithGoExif(filePath)
	if err != nil {
		e.logger.Debugf("goexif could not read %s: %v", filePath, err)
		md = Metadata{}
		if e.fallback != nil && e.fallback.SupportsFile(filePath) {
			if fb, fbErr := e.fallback.Extract(filePath); fbErr == nil {
				md = fb
			} else {
				e.logger.Debugf("Fallback extractor failed for %s: %v", filePath, fbErr)
			}
		}
	}

	cache.Store(key, md.Clone())
	return md, nil
}

// SupportsFile reports whether the file is supported by this extractor.
func (e *EXIFExtractor) SupportsFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	supportedExts := []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".webp", ".bmp", ".gif"}

	return slices.Contains(supportedExts, ext)
}

// ClearCache removes all entries from the internal cache and resets statistics.
func (e *EXIFExtractor) ClearCache() {
	e.mutex.Lock()
	e.cache = &sync.Map{}
	e.stats = CacheStats{}
	e.mutex.Unlock()
}

func (e *EXIFExtractor) currentCache() *sync.Map {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.cache
}

// GetCacheStats returns cache statistics for this extractor.
func (e *EXIFExtractor) GetCacheStats() CacheStats {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	stats := e.stats
	if stats.TotalQueries > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalQueries)
	}
	size := 0
	e.cache.Range(func(_, _ any) bool {
		size++
		return true
	})
	stats.Size = size
	return stats
}

// extractWithGoExif reads tags using the rwcarlsen/goexif library.
func (e *EXIFExtractor) extractWithGoExif(filePath string) (Metadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	md := Metadata{KeySource: "exif"}
	stringTags := map[exif.FieldName]string{
		exif.Make:     KeyMake,
		exif.Model:    KeyModel,
		exif.Software: KeySoftware,
	}
	for field, key := range stringTags {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		if val, err := tag.StringVal(); err == nil {
			md[key] = strings.TrimSpace(val)
		}
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if val, err := tag.Int(0); err == nil {
			md[KeyOrientation] = strconv.Itoa(val)
		}
	}

	if tm, err := x.DateTime(); err == nil {
		md[KeyDateTime] = tm.Format("2006-01-02 15:04:05")
	}

	e.logger.Debugf("Extracted %d EXIF tags from %s", len(md)-1, filePath)
	return md, nil
}

// getCacheKey returns a cache key for the given file path and file info.
func (e *EXIFExtractor) getCacheKey(filePath string, fileInfo os.FileInfo) string {
	return fmt.Sprintf("%s:%d:%d", filePath, fileInfo.Size(), fileInfo.ModTime().UnixNano())
}

func (e *EXIFExtractor) incrementCacheHits() {
	e.mutex.Lock()
	e.stats.Hits++
	e.stats.TotalQueries++
	e.mutex.Unlock()
}

func (e *EXIFExtractor) incrementCacheMisses() {
	e.mutex.Lock()
	e.stats.Misses++
	e.stats.TotalQueries++
	e.mutex.Unlock()
}
