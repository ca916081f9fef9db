package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
)

// Encoder compresses a grayscale preview.
type Encoder interface {
	Encode(img *image.Gray, quality int) ([]byte, error)
	// Ext is the file extension, including the dot.
	Ext() string
	ContentType() string
}

// NewEncoder returns the encoder for format ("png" or "jpeg").
func NewEncoder(format string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "png":
		return pngEncoder{enc: &png.Encoder{CompressionLevel: png.BestCompression}}, nil
	case "jpeg", "jpg":
		return jpegEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported preview format %q", format)
	}
}

// pngEncoder is lossless; quality only distinguishes cache entries.
type pngEncoder struct {
	enc *png.Encoder
}

func (e pngEncoder) Encode(img *image.Gray, _ int) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (pngEncoder) Ext() string { return ".png" }

func (pngEncoder) ContentType() string { return "image/png" }

type jpegEncoder struct{}

func (jpegEncoder) Encode(img *image.Gray, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (jpegEncoder) Ext() string { return ".jpg" }

func (jpegEncoder) ContentType() string { return "image/jpeg" }
