package imaging

import "fmt"

// Bin downsamples r by averaging factor x factor blocks. Trailing rows and
// columns that do not fill a whole block are dropped. A factor of 1 returns r.
func Bin(r *Raster, factor int) (*Raster, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("binning factor must be positive, got %d", factor)
	}
	if factor == 1 {
		return r, nil
	}
	outW, outH := r.Width/factor, r.Height/factor
	out, err := NewRaster(outW, outH)
	if err != nil {
		return nil, fmt.Errorf("bin %dx%d by %d: %w", r.Width, r.Height, factor, err)
	}
	area := float64(factor * factor)
	for oy := 0; oy < outH; oy++ {
		for ox := 0; ox < outW; ox++ {
			var sum float64
			for dy := 0; dy < factor; dy++ {
				row := (oy*factor + dy) * r.Width
				for dx := 0; dx < factor; dx++ {
					sum += r.Pix[row+ox*factor+dx]
				}
			}
			out.Pix[oy*outW+ox] = sum / area
		}
	}
	return out, nil
}
