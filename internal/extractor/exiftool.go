package extractor

import (
	"fmt"
	"strings"

	"github.com/barasher/go-exiftool"
)

// ExiftoolExtractor reads metadata by shelling out to the exiftool binary.
// It handles formats goexif does not understand, such as PNG text chunks.
type ExiftoolExtractor struct{}

// NewExiftoolExtractor returns a new ExiftoolExtractor.
func NewExiftoolExtractor() *ExiftoolExtractor {
	return &ExiftoolExtractor{}
}

// SupportsFile reports whether the file is supported by this extractor.
func (e *ExiftoolExtractor) SupportsFile(filePath string) bool {
	return filePath != ""
}

// Extract returns the metadata exiftool reports for the file.
func (e *ExiftoolExtractor) Extract(filePath string) (Metadata, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	defer et.Close()

	files := et.ExtractMetadata(filePath)
	if len(files) == 0 {
		return nil, fmt.Errorf("exiftool returned no metadata for %s", filePath)
	}
	if files[0].Err != nil {
		return nil, files[0].Err
	}

	fields := map[string]string{
		"Make":             KeyMake,
		"Model":            KeyModel,
		"Software":         KeySoftware,
		"Orientation":      KeyOrientation,
		"DateTimeOriginal": KeyDateTime,
	}

	md := Metadata{KeySource: "exiftool"}
	for field, key := range fields {
		val, err := files[0].GetString(field)
		if err != nil || strings.TrimSpace(val) == "" {
			continue
		}
		md[key] = strings.TrimSpace(val)
	}
	return md, nil
}
