package imaging

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	mrcHeaderSize  = 1024
	mrcNSymbtOff   = 92
	mrcMachineOff  = 212
	mrcMaxDimCheck = 1 << 16
)

// MRC data modes.
const (
	mrcModeInt8    = 0
	mrcModeInt16   = 1
	mrcModeFloat32 = 2
	mrcModeUint16  = 6
)

// ReadMRC decodes the first section of an MRC file holding size bytes.
func ReadMRC(r io.ReaderAt, size int64) (*Raster, error) {
	header := make([]byte, mrcHeaderSize)
	if _, err := r.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("read mrc header: %w", err)
	}

	order := mrcByteOrder(header)
	nx := int(int32(order.Uint32(header[0:4])))
	ny := int(int32(order.Uint32(header[4:8])))
	mode := int(int32(order.Uint32(header[12:16])))
	nsymbt := int64(int32(order.Uint32(header[mrcNSymbtOff : mrcNSymbtOff+4])))
	if nx <= 0 || ny <= 0 || nx > mrcMaxDimCheck || ny > mrcMaxDimCheck {
		return nil, fmt.Errorf("implausible mrc dimensions %dx%d", nx, ny)
	}
	if nsymbt < 0 {
		return nil, fmt.Errorf("negative extended header size %d", nsymbt)
	}

	var width int
	switch mode {
	case mrcModeInt8:
		width = 1
	case mrcModeInt16, mrcModeUint16:
		width = 2
	case mrcModeFloat32:
		width = 4
	default:
		return nil, fmt.Errorf("unsupported mrc mode %d", mode)
	}

	// The header is untrusted: check the section fits in the file before
	// allocating for it.
	want := int64(nx) * int64(ny) * int64(width)
	if available := size - mrcHeaderSize - nsymbt; want > available {
		return nil, fmt.Errorf("mrc data truncated: header declares %d bytes, file holds %d", want, max(available, 0))
	}
	raw := make([]byte, want)
	if _, err := r.ReadAt(raw, mrcHeaderSize+nsymbt); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("mrc data truncated: want %d bytes", len(raw))
		}
		return nil, fmt.Errorf("read mrc data: %w", err)
	}

	raster, err := NewRaster(nx, ny)
	if err != nil {
		return nil, err
	}
	for i := range raster.Pix {
		switch mode {
		case mrcModeInt8:
			raster.Pix[i] = float64(int8(raw[i]))
		case mrcModeInt16:
			raster.Pix[i] = float64(int16(order.Uint16(raw[i*2:])))
		case mrcModeUint16:
			raster.Pix[i] = float64(order.Uint16(raw[i*2:]))
		case mrcModeFloat32:
			raster.Pix[i] = float64(math.Float32frombits(order.Uint32(raw[i*4:])))
		}
	}
	return raster, nil
}

// mrcByteOrder reads the machine stamp. 0x11 in the first byte marks
// big-endian data; anything else, including files written without a stamp,
// is treated as little-endian.
func mrcByteOrder(header []byte) binary.ByteOrder {
	if header[mrcMachineOff] == 0x11 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
