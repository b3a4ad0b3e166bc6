package extractor

// MetadataExtractor is the interface for reading descriptive metadata from image files.
type MetadataExtractor interface {
	Extract(filePath string) (Metadata, error)
	SupportsFile(filePath string) bool
}

// CachedMetadataExtractor extends MetadataExtractor with caching capabilities.
type CachedMetadataExtractor interface {
	MetadataExtractor
	ClearCache()
	GetCacheStats() CacheStats
}

// Metadata holds string-valued tags keyed by the Key* constants.
type Metadata map[string]string

// Well-known metadata keys.
const (
	KeyMake        = "make"
	KeyModel       = "model"
	KeySoftware    = "software"
	KeyOrientation = "orientation"
	KeyDateTime    = "datetime"
	KeySource      = "metadata_source"
)

// CacheStats contains statistics about cache performance.
type CacheStats struct {
	Hits         int64
	Misses       int64
	Size         int
	HitRate      float64
	TotalQueries int64
}

// Clone returns an independent copy of the metadata.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
