package metrics

import (
	"fmt"
	"math"
	"sync"

	apperrors "imgfidelity/internal/errors"
	"imgfidelity/internal/raster"

	"gonum.org/v1/gonum/floats"
)

const (
	// MaxPixelValue is the peak signal of 8-bit samples.
	MaxPixelValue = 255.0
	// DefaultSSIMWindow is the side of the uniform SSIM window.
	DefaultSSIMWindow = 7
	// DefaultEntropyEpsilon keeps log2 finite for zero-valued pixels.
	DefaultEntropyEpsilon = 1e-10
)

// Metrics holds the fidelity scores of one original/decoded pair.
type Metrics struct {
	MSE     float64 `json:"mse"`
	PSNR    float64 `json:"psnr"`
	SSIM    float64 `json:"ssim"`
	Entropy float64 `json:"entropy"`
}

// Options tunes the metric computation.
type Options struct {
	SSIMWindow     int
	EntropyEpsilon float64
}

// DefaultOptions returns the standard metric parameters.
func DefaultOptions() Options {
	return Options{
		SSIMWindow:     DefaultSSIMWindow,
		EntropyEpsilon: DefaultEntropyEpsilon,
	}
}

// Validate checks that the window is a positive odd number and epsilon is non-negative.
func (o Options) Validate() error {
	if o.SSIMWindow < 1 || o.SSIMWindow%2 == 0 {
		return apperrors.NewValueError(fmt.Sprintf("ssim window must be odd and >= 1, got %d", o.SSIMWindow), nil)
	}
	if o.EntropyEpsilon < 0 || math.IsNaN(o.EntropyEpsilon) {
		return apperrors.NewValueError(fmt.Sprintf("entropy epsilon must be >= 0, got %v", o.EntropyEpsilon), nil)
	}
	return nil
}

// Engine computes fidelity metrics with fixed options.
type Engine struct {
	opts Options
}

// NewEngine creates an Engine, falling back to defaults for invalid options.
func NewEngine(opts Options) *Engine {
	if opts.Validate() != nil {
		opts = DefaultOptions()
	}
	return &Engine{opts: opts}
}

// Options returns the parameters in use.
func (e *Engine) Options() Options {
	return e.opts
}

// Compute scores decoded against original using the default options.
func Compute(original, decoded *raster.Image) (Metrics, error) {
	return NewEngine(DefaultOptions()).Compute(original, decoded)
}

// Compute scores decoded against original. Both inputs must be grayscale and the same size.
// MSE, SSIM and entropy run concurrently; PSNR is derived from MSE.
func (e *Engine) Compute(original, decoded *raster.Image) (Metrics, error) {
	if err := checkPair(original, decoded); err != nil {
		return Metrics{}, err
	}

	var (
		wg      sync.WaitGroup
		m       Metrics
		ssimErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		m.MSE = mse(original.Pix, decoded.Pix)
	}()
	go func() {
		defer wg.Done()
		m.SSIM, ssimErr = ssim(original, decoded, e.opts.SSIMWindow)
	}()
	go func() {
		defer wg.Done()
		m.Entropy = entropy(original.Pix, e.opts.EntropyEpsilon)
	}()
	wg.Wait()

	if ssimErr != nil {
		return Metrics{}, ssimErr
	}
	m.PSNR = PSNR(m.MSE)
	return m, nil
}

// MSE returns the mean squared sample difference of two grayscale images.
func MSE(a, b *raster.Image) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	return mse(a.Pix, b.Pix), nil
}

// PSNR converts an MSE into decibels. A zero MSE yields +Inf.
func PSNR(mse float64) float64 {
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(MaxPixelValue*MaxPixelValue/mse)
}

// SSIM returns the mean structural similarity with the given window size.
func SSIM(a, b *raster.Image, window int) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	return ssim(a, b, window)
}

// Entropy returns -sum(p*log2(p+eps)) with p = v/255 over every pixel.
// This is an intensity-weighted score rather than Shannon entropy of the histogram.
func Entropy(img *raster.Image, eps float64) (float64, error) {
	if err := checkGray(img, "image"); err != nil {
		return 0, err
	}
	return entropy(img.Pix, eps), nil
}

func mse(a, b []uint8) float64 {
	diff := make([]float64, len(a))
	for i := range a {
		diff[i] = float64(a[i]) - float64(b[i])
	}
	return floats.Dot(diff, diff) / float64(len(diff))
}

// entropy groups pixels by value so the log is evaluated 256 times at most.
func entropy(pix []uint8, eps float64) float64 {
	var counts, terms [256]float64
	for _, v := range pix {
		counts[v]++
	}
	for v := range terms {
		p := float64(v) / MaxPixelValue
		terms[v] = p * math.Log2(p+eps)
	}
	return -floats.Dot(counts[:], terms[:])
}

func checkGray(img *raster.Image, name string) error {
	if img == nil {
		return apperrors.NewValueError(name+" is missing", nil)
	}
	if err := img.Validate(); err != nil {
		return apperrors.NewValueError(name+" is malformed", err)
	}
	if !img.IsGray() {
		return apperrors.NewValueError(fmt.Sprintf("%s must be grayscale, got %d channels", name, img.Channels), nil)
	}
	return nil
}

func checkPair(a, b *raster.Image) error {
	if err := checkGray(a, "original"); err != nil {
		return err
	}
	if err := checkGray(b, "decoded"); err != nil {
		return err
	}
	if !a.SameSize(b) {
		return apperrors.NewDimensionMismatchError(
			fmt.Sprintf("original is %dx%d, decoded is %dx%d", a.Width, a.Height, b.Width, b.Height), nil)
	}
	return nil
}
