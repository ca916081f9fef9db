package imaging

import (
	"image"
	"image/color"
	"io"

	"golang.org/x/image/tiff"
)

// ReadTIFF decodes the first page of a TIFF file into a raster. Gray images
// keep their sample values; color images are converted to 16-bit luminance.
func ReadTIFF(r io.Reader) (*Raster, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, err
	}
	return FromImage(img)
}

// FromImage converts any image to a raster.
func FromImage(img image.Image) (*Raster, error) {
	bounds := img.Bounds()
	raster, err := NewRaster(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}
	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < raster.Height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+raster.Width]
			for x, v := range row {
				raster.Pix[y*raster.Width+x] = float64(v)
			}
		}
	case *image.Gray16:
		for y := 0; y < raster.Height; y++ {
			for x := 0; x < raster.Width; x++ {
				raster.Pix[y*raster.Width+x] = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < raster.Height; y++ {
			for x := 0; x < raster.Width; x++ {
				g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				raster.Pix[y*raster.Width+x] = float64(g.Y)
			}
		}
	}
	return raster, nil
}
