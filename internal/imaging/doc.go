// Package imaging turns raw microscope images into display-ready previews:
// it reads the first section of MRC stacks and the first page of TIFF files
// into a float raster, block-averages it down, stretches its contrast into
// 8-bit grayscale, and encodes the result.
package imaging
