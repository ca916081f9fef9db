package imaging

import "fmt"

// Raster is a row-major 2D intensity array.
type Raster struct {
	Width  int
	Height int
	Pix    []float64
}

// NewRaster allocates a zeroed raster.
func NewRaster(width, height int) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", width, height)
	}
	return &Raster{Width: width, Height: height, Pix: make([]float64, width*height)}, nil
}

// At returns the value at column x, row y.
func (r *Raster) At(x, y int) float64 {
	return r.Pix[y*r.Width+x]
}

// Set stores v at column x, row y.
func (r *Raster) Set(x, y int, v float64) {
	r.Pix[y*r.Width+x] = v
}
