package imaging

import (
	"image"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const cornerSize = 10

// ContrastOptions controls AutoContrast.
type ContrastOptions struct {
	// LowerPercentile and UpperPercentile (0-100) pick the robust black and
	// white points. 0 and 100 use the plain minimum and maximum.
	LowerPercentile float64
	UpperPercentile float64
	Gamma           float64
	// BackgroundSubtract removes the median of the four 10x10 corners before
	// scaling.
	BackgroundSubtract bool
}

// DefaultContrast returns the preview contrast settings: 0.1/99.9 percentile
// clipping and gamma 0.75 without background subtraction.
func DefaultContrast() ContrastOptions {
	return ContrastOptions{LowerPercentile: 0.1, UpperPercentile: 99.9, Gamma: 0.75}
}

// AutoContrast stretches r into 8-bit grayscale. Values at or below the black
// point map to 0 and values at or above the white point map to 255. A uniform
// raster maps to all zeros.
func AutoContrast(r *Raster, opts ContrastOptions) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	if len(r.Pix) == 0 {
		return out
	}

	var lo, hi float64
	if opts.LowerPercentile > 0 || opts.UpperPercentile < 100 {
		sorted := slices.Clone(r.Pix)
		slices.Sort(sorted)
		lo = stat.Quantile(opts.LowerPercentile/100, stat.LinInterp, sorted, nil)
		hi = stat.Quantile(opts.UpperPercentile/100, stat.LinInterp, sorted, nil)
	} else {
		lo, hi = floats.Min(r.Pix), floats.Max(r.Pix)
	}
	if hi == lo {
		return out
	}

	offset := 0.0
	if opts.BackgroundSubtract {
		// only the white point moves with the background
		offset = cornerMedian(r)
		hi -= offset
	}
	span := hi - lo
	if span == 0 || math.IsNaN(span) {
		return out
	}

	gamma := opts.Gamma
	if gamma <= 0 {
		gamma = 1
	}
	for i, v := range r.Pix {
		n := (v - offset - lo) / span
		switch {
		case n <= 0 || math.IsNaN(n):
			n = 0
		case n >= 1:
			n = 1
		case gamma != 1:
			n = math.Pow(n, gamma)
		}
		out.Pix[i] = uint8(n * 255)
	}
	return out
}

func cornerMedian(r *Raster) float64 {
	h, w := min(cornerSize, r.Height), min(cornerSize, r.Width)
	values := make([]float64, 0, 4*h*w)
	for _, origin := range [][2]int{{0, 0}, {0, r.Height - h}, {r.Width - w, 0}, {r.Width - w, r.Height - h}} {
		for y := origin[1]; y < origin[1]+h; y++ {
			values = append(values, r.Pix[y*r.Width+origin[0]:y*r.Width+origin[0]+w]...)
		}
	}
	slices.Sort(values)
	return stat.Quantile(0.5, stat.LinInterp, values, nil)
}
