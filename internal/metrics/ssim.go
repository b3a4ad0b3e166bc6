package metrics

import (
	"fmt"
	"runtime"
	"sync"

	apperrors "imgfidelity/internal/errors"
	"imgfidelity/internal/raster"

	"gonum.org/v1/gonum/stat"
)

const (
	ssimK1 = 0.01
	ssimK2 = 0.03
)

// integral holds summed-area tables for the SSIM window moments.
type integral struct {
	stride int

	x, y, xx, yy, xy []float64
}

func newIntegral(a, b *raster.Image) *integral {
	w, h := a.Width, a.Height
	stride := w + 1
	size := stride * (h + 1)
	t := &integral{
		stride: stride,
		x:      make([]float64, size),
		y:      make([]float64, size),
		xx:     make([]float64, size),
		yy:     make([]float64, size),
		xy:     make([]float64, size),
	}

	for r := 0; r < h; r++ {
		var sx, sy, sxx, syy, sxy float64
		for c := 0; c < w; c++ {
			va := float64(a.Pix[r*w+c])
			vb := float64(b.Pix[r*w+c])
			sx += va
			sy += vb
			sxx += va * va
			syy += vb * vb
			sxy += va * vb

			i := (r+1)*stride + c + 1
			up := r*stride + c + 1
			t.x[i] = t.x[up] + sx
			t.y[i] = t.y[up] + sy
			t.xx[i] = t.xx[up] + sxx
			t.yy[i] = t.yy[up] + syy
			t.xy[i] = t.xy[up] + sxy
		}
	}
	return t
}

// box returns the sum of table over the win x win block whose top-left corner is (r, c).
func (t *integral) box(table []float64, r, c, win int) float64 {
	s := t.stride
	return table[(r+win)*s+c+win] - table[r*s+c+win] - table[(r+win)*s+c] + table[r*s+c]
}

// effectiveWindow shrinks the window to the largest odd size that fits the image.
func effectiveWindow(window, width, height int) int {
	win := window
	if width < win {
		win = width
	}
	if height < win {
		win = height
	}
	if win%2 == 0 {
		win--
	}
	return win
}

// ssim averages the structural similarity of every window lying fully inside the image.
// Window moments use the sample covariance like the usual uniform-filter formulation.
func ssim(a, b *raster.Image, window int) (float64, error) {
	if window < 1 || window%2 == 0 {
		return 0, apperrors.NewValueError(fmt.Sprintf("ssim window must be odd and >= 1, got %d", window), nil)
	}

	win := effectiveWindow(window, a.Width, a.Height)
	np := float64(win * win)
	covNorm := 1.0
	if win > 1 {
		covNorm = np / (np - 1)
	}
	c1 := (ssimK1 * MaxPixelValue) * (ssimK1 * MaxPixelValue)
	c2 := (ssimK2 * MaxPixelValue) * (ssimK2 * MaxPixelValue)

	t := newIntegral(a, b)
	rows := a.Height - win + 1
	cols := a.Width - win + 1
	values := make([]float64, rows*cols)

	numWorkers := runtime.NumCPU()
	if rows < numWorkers {
		numWorkers = rows
	}
	rowsPerWorker := (rows + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		startR := i * rowsPerWorker
		endR := startR + rowsPerWorker
		if endR > rows {
			endR = rows
		}
		if startR >= endR {
			break
		}
		wg.Add(1)
		go func(startR, endR int) {
			defer wg.Done()
			for r := startR; r < endR; r++ {
				for c := 0; c < cols; c++ {
					ux := t.box(t.x, r, c, win) / np
					uy := t.box(t.y, r, c, win) / np
					vx := covNorm * (t.box(t.xx, r, c, win)/np - ux*ux)
					vy := covNorm * (t.box(t.yy, r, c, win)/np - uy*uy)
					vxy := covNorm * (t.box(t.xy, r, c, win)/np - ux*uy)

					num := (2*ux*uy + c1) * (2*vxy + c2)
					den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
					values[r*cols+c] = num / den
				}
			}
		}(startR, endR)
	}
	wg.Wait()

	return stat.Mean(values, nil), nil
}
