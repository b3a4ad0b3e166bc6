package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	apperrors "imgfidelity/internal/errors"
	"imgfidelity/internal/extractor"
	"imgfidelity/internal/logger"
	"imgfidelity/internal/raster"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/sirupsen/logrus"
)

// headerSize is the number of bytes filetype needs to recognise every format it knows.
const headerSize = 261

// Source loads raster images.
type Source interface {
	Load(ctx context.Context, path string) (*raster.Image, error)
}

// Options controls how files are decoded.
type Options struct {
	// AutoOrientation applies the EXIF orientation tag while decoding.
	AutoOrientation bool
	// ReadMetadata attaches EXIF metadata to the loaded image.
	ReadMetadata bool
	// AcceptExtension filters file names by extension (with dot). Nil accepts all.
	AcceptExtension func(ext string) bool
}

// DefaultOptions returns the default load options.
func DefaultOptions() Options {
	return Options{
		AutoOrientation: true,
		ReadMetadata:    true,
	}
}

// FileSource loads images from the local filesystem.
type FileSource struct {
	logger    *logrus.Logger
	extractor extractor.MetadataExtractor
	options   Options
}

// NewFileSource returns a FileSource. The extractor may be nil.
func NewFileSource(log *logrus.Logger, ext extractor.MetadataExtractor, options Options) *FileSource {
	return &FileSource{
		logger:    log,
		extractor: ext,
		options:   options,
	}
}

// Load reads and decodes the image at path. ByteSize is the file size at load time.
func (s *FileSource) Load(ctx context.Context, path string) (*raster.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewNotFoundError("image not found", err).WithPath(path)
	}
	if !info.Mode().IsRegular() {
		return nil, apperrors.NewNotFoundError("not a regular file", nil).WithPath(path)
	}

	if !s.acceptsExtension(path) {
		return nil, apperrors.NewDecodeError(fmt.Sprintf("unsupported file extension %q", filepath.Ext(path)), nil).WithPath(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewNotFoundError("image not readable", err).WithPath(path)
	}
	defer f.Close()

	kind, sniffErr := sniff(f)
	if sniffErr != nil {
		return nil, sniffErr.WithPath(path)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, apperrors.NewNotFoundError("rewind image", err).WithPath(path)
	}

	var opts []imaging.DecodeOption
	if s.options.AutoOrientation {
		opts = append(opts, imaging.AutoOrientation(true))
	}
	decoded, err := imaging.Decode(f, opts...)
	if err != nil {
		return nil, apperrors.NewDecodeError(fmt.Sprintf("cannot decode %s data", kind.Extension), err).WithPath(path)
	}

	img := raster.FromImage(decoded)
	img.ByteSize = info.Size()
	img.Format = kind.Extension

	if s.options.ReadMetadata && s.extractor != nil && s.extractor.SupportsFile(path) {
		md, err := s.extractor.Extract(path)
		if err != nil {
			logger.WithFile(s.logger, path).WithError(err).Warn("Could not read image metadata")
		} else if len(md) > 0 {
			img.Metadata = md
		}
	}

	s.logger.WithFields(logrus.Fields{
		"file":     path,
		"format":   img.Format,
		"width":    img.Width,
		"height":   img.Height,
		"channels": img.Channels,
		"bytes":    img.ByteSize,
	}).Debug("Image loaded")

	return img, nil
}

// MetadataCacheStats reports metadata cache use. ok is false when the extractor does not cache.
func (s *FileSource) MetadataCacheStats() (stats extractor.CacheStats, ok bool) {
	cached, ok := s.extractor.(extractor.CachedMetadataExtractor)
	if !ok {
		return extractor.CacheStats{}, false
	}
	return cached.GetCacheStats(), true
}

// ClearMetadataCache drops cached metadata so the next load reads tags again.
func (s *FileSource) ClearMetadataCache() {
	if cached, ok := s.extractor.(extractor.CachedMetadataExtractor); ok {
		cached.ClearCache()
	}
}

func (s *FileSource) acceptsExtension(path string) bool {
	if s.options.AcceptExtension == nil {
		return true
	}
	return s.options.AcceptExtension(filepath.Ext(path))
}

// sniff inspects the file header and rejects content that is not a known image type.
func sniff(r io.Reader) (types.Type, *apperrors.AppError) {
	header := make([]byte, headerSize)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return types.Unknown, apperrors.NewNotFoundError("read image header", err)
	}
	header = header[:n]

	if n == 0 {
		return types.Unknown, apperrors.NewDecodeError("empty file", nil)
	}

	kind, _ := filetype.Match(header)
	if kind == types.Unknown {
		return kind, apperrors.NewDecodeError("unrecognized file content", nil)
	}
	if !filetype.IsImage(header) {
		return kind, apperrors.NewDecodeError(fmt.Sprintf("not a raster image (%s)", kind.MIME.Value), nil)
	}
	return kind, nil
}
