package raster

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Image is an immutable row-major pixel buffer.
// Channels is 1 for grayscale, 3 for RGB and 4 for RGBA.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
	ByteSize int64
	Format   string
	Metadata map[string]string
}

// New returns a zeroed image of the given shape.
func New(width, height, channels int) (*Image, error) {
	img := &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
	}
	if err := img.validateShape(); err != nil {
		return nil, err
	}
	img.Pix = make([]uint8, width*height*channels)
	return img, nil
}

// NewGray wraps an existing grayscale sample slice.
func NewGray(width, height int, pix []uint8) (*Image, error) {
	img := &Image{
		Width:    width,
		Height:   height,
		Channels: 1,
		Pix:      pix,
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

func (img *Image) validateShape() error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", img.Width, img.Height)
	}
	switch img.Channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("unsupported channel count %d", img.Channels)
	}
	return nil
}

// Validate checks the dimension and buffer-length invariants.
func (img *Image) Validate() error {
	if err := img.validateShape(); err != nil {
		return err
	}
	if want := img.Width * img.Height * img.Channels; len(img.Pix) != want {
		return fmt.Errorf("pixel buffer has %d samples, want %d", len(img.Pix), want)
	}
	if img.ByteSize < 0 {
		return fmt.Errorf("negative byte size %d", img.ByteSize)
	}
	return nil
}

// IsGray reports whether the image is single-channel.
func (img *Image) IsGray() bool {
	return img.Channels == 1
}

// Pixels returns the number of pixels (not samples).
func (img *Image) Pixels() int {
	return img.Width * img.Height
}

// SameSize reports whether both images have identical width and height.
func (img *Image) SameSize(other *Image) bool {
	return other != nil && img.Width == other.Width && img.Height == other.Height
}

// Bounds returns the image rectangle anchored at the origin.
func (img *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, img.Width, img.Height)
}

// FromImage copies a decoded standard library image into a raster Image.
// Gray sources stay single-channel; opaque color sources become RGB and
// translucent ones RGBA.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	if g, ok := src.(*image.Gray); ok {
		pix := make([]uint8, w*h)
		for y := 0; y < h; y++ {
			off := (y+b.Min.Y-g.Rect.Min.Y)*g.Stride + (b.Min.X - g.Rect.Min.X)
			copy(pix[y*w:(y+1)*w], g.Pix[off:off+w])
		}
		return &Image{Width: w, Height: h, Channels: 1, Pix: pix}
	}

	nrgba := imaging.Clone(src)
	opaque := true
	for i := 3; i < len(nrgba.Pix); i += 4 {
		if nrgba.Pix[i] != 0xff {
			opaque = false
			break
		}
	}

	if !opaque {
		return &Image{Width: w, Height: h, Channels: 4, Pix: nrgba.Pix}
	}

	pix := make([]uint8, w*h*3)
	for i, j := 0, 0; i < len(nrgba.Pix); i, j = i+4, j+3 {
		pix[j] = nrgba.Pix[i]
		pix[j+1] = nrgba.Pix[i+1]
		pix[j+2] = nrgba.Pix[i+2]
	}
	return &Image{Width: w, Height: h, Channels: 3, Pix: pix}
}

// ToImage converts the buffer back to a standard library image.
func (img *Image) ToImage() image.Image {
	switch img.Channels {
	case 1:
		g := image.NewGray(img.Bounds())
		copy(g.Pix, img.Pix)
		return g
	case 3:
		out := image.NewNRGBA(img.Bounds())
		for i, j := 0, 0; j < len(img.Pix); i, j = i+4, j+3 {
			out.Pix[i] = img.Pix[j]
			out.Pix[i+1] = img.Pix[j+1]
			out.Pix[i+2] = img.Pix[j+2]
			out.Pix[i+3] = 0xff
		}
		return out
	default:
		out := image.NewNRGBA(img.Bounds())
		copy(out.Pix, img.Pix)
		return out
	}
}

// WithoutAlpha returns an RGB copy of an RGBA image; other layouts are returned unchanged.
func (img *Image) WithoutAlpha() *Image {
	if img.Channels != 4 {
		return img
	}
	pix := make([]uint8, img.Pixels()*3)
	for i, j := 0, 0; i < len(img.Pix); i, j = i+4, j+3 {
		pix[j] = img.Pix[i]
		pix[j+1] = img.Pix[i+1]
		pix[j+2] = img.Pix[i+2]
	}
	out := *img
	out.Channels = 3
	out.Pix = pix
	return &out
}

// Gray returns the single-channel luma rendition of the image using
// Y = 0.299R + 0.587G + 0.114B rounded to the nearest integer.
// A grayscale image is returned as is.
func (img *Image) Gray() *Image {
	if img.Channels == 1 {
		return img
	}

	lum := imaging.Grayscale(img.ToImage())
	pix := make([]uint8, img.Pixels())
	for i := range pix {
		pix[i] = lum.Pix[i*4]
	}

	return &Image{
		Width:    img.Width,
		Height:   img.Height,
		Channels: 1,
		Pix:      pix,
		ByteSize: img.ByteSize,
		Format:   img.Format,
		Metadata: img.Metadata,
	}
}
