package compressor

import (
	"context"
	"fmt"
	"math"
	"time"

	apperrors "imgfidelity/internal/errors"
	"imgfidelity/internal/raster"
)

// DefaultQuality is the JPEG quality used when the caller specifies none.
const DefaultQuality = 50

// Setting defines the lossy encoder fidelity.
type Setting struct {
	Quality int `json:"quality"`
}

// DefaultSetting returns the setting used when none is given.
func DefaultSetting() Setting {
	return Setting{Quality: DefaultQuality}
}

// SettingFromRatio converts a normalized quality in [0.0, 1.0] to a Setting.
func SettingFromRatio(ratio float64) (Setting, error) {
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return Setting{}, apperrors.NewValueError(fmt.Sprintf("quality ratio %v outside [0, 1]", ratio), nil)
	}
	return Setting{Quality: int(math.Round(ratio * 100))}, nil
}

// Validate checks that the quality lies in [0, 100].
func (s Setting) Validate() error {
	if s.Quality < 0 || s.Quality > 100 {
		return apperrors.NewValueError(fmt.Sprintf("quality %d outside [0, 100]", s.Quality), nil)
	}
	return nil
}

// Artifact describes the persisted compressed rendition of an image.
type Artifact struct {
	Path       string
	Bytes      []byte
	ByteSize   int64
	Decoded    *raster.Image
	Setting    Setting
	StartedAt  time.Time
	FinishedAt time.Time
}

// Compressor defines the interface for lossy image compression.
type Compressor interface {
	// Compress encodes img, writes the payload to outputPath (replacing any
	// existing file) and returns the artifact decoded back from disk.
	Compress(ctx context.Context, img *raster.Image, setting Setting, outputPath string) (*Artifact, error)
}
