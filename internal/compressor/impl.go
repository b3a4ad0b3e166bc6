package compressor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "imgfidelity/internal/errors"
	"imgfidelity/internal/logger"
	"imgfidelity/internal/raster"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// JPEGCompressor is the default implementation of the Compressor interface.
type JPEGCompressor struct {
	log *logrus.Logger
}

// NewJPEGCompressor creates a new JPEGCompressor instance.
func NewJPEGCompressor(log *logrus.Logger) *JPEGCompressor {
	return &JPEGCompressor{log: log}
}

// Compress encodes the image as JPEG, persists it and decodes the written file.
func (c *JPEGCompressor) Compress(ctx context.Context, img *raster.Image, setting Setting, outputPath string) (*Artifact, error) {
	start := time.Now()
	if err := setting.Validate(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, apperrors.NewEncodeError("no image to encode", nil)
	}
	if err := img.Validate(); err != nil {
		return nil, apperrors.NewEncodeError("unsupported pixel layout", err)
	}
	if outputPath == "" {
		return nil, apperrors.NewIOError("output path is empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := encodeJPEG(img, setting.Quality)
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(outputPath, payload); err != nil {
		return nil, err
	}

	decoded, err := readBack(outputPath)
	if err != nil {
		return nil, err
	}

	res := &Artifact{
		Path:       outputPath,
		Bytes:      payload,
		ByteSize:   decoded.ByteSize,
		Decoded:    decoded,
		Setting:    setting,
		StartedAt:  start,
		FinishedAt: time.Now(),
	}

	logger.WithFileOperation(c.log, outputPath, "compress").WithFields(logrus.Fields{
		"quality":         setting.Quality,
		"original_size":   img.ByteSize,
		"compressed_size": res.ByteSize,
		"duration_ms":     res.FinishedAt.Sub(start).Milliseconds(),
	}).Debug("Image compressed")

	return res, nil
}

// encodeJPEG encodes the image with the given quality. Alpha is discarded.
func encodeJPEG(img *raster.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	err := imaging.Encode(&buf, img.WithoutAlpha().ToImage(), imaging.JPEG, imaging.JPEGQuality(quality))
	if err != nil {
		return nil, apperrors.NewEncodeError("jpeg encode failed", err)
	}
	return buf.Bytes(), nil
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewIOError("create output directory", err).WithPath(filepath.Dir(path))
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return apperrors.NewIOError("write tmp file", err).WithPath(tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return apperrors.NewIOError("rename artifact", err).WithPath(path)
	}
	return nil
}

// readBack decodes the persisted artifact so metrics see what a consumer would see.
func readBack(path string) (*raster.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewIOError("read artifact", err).WithPath(path)
	}

	decoded, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDecodeError(fmt.Sprintf("decode artifact (%d bytes)", len(data)), err).WithPath(path)
	}

	out := raster.FromImage(decoded)
	out.ByteSize = int64(len(data))
	out.Format = "jpg"
	return out, nil
}
