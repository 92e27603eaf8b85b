// Package decode converts raw framebuffer and cursor data from a
// connection's negotiated pixel format into packed 8-bit-per-channel
// images ready for the display surface.
package decode

import (
	"encoding/binary"

	"vncbridge/internal/rfb"
)

// PixelReader extracts one raw pixel value from the head of a byte
// slice. Selected once per pixel format rather than branching on byte
// width for every pixel.
type PixelReader func(b []byte) uint32

// ReaderFor returns the reader matching the format's byte width.
// Framebuffer bytes are little-endian, matching the byte order the
// connection negotiates.
func ReaderFor(pf rfb.PixelFormat) PixelReader {
	switch pf.BytesPerPixel() {
	case 4:
		return func(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
	case 2:
		return func(b []byte) uint32 { return uint32(binary.LittleEndian.Uint16(b)) }
	default:
		return func(b []byte) uint32 { return uint32(b[0]) }
	}
}

// Channels rescales a raw pixel value to 8-bit red, green and blue.
// Each channel is (v >> shift) * 256 / (max + 1): a fixed-point rescale
// from the source channel width to 8 bits, dividing by max+1 so a field
// equal to max cannot overflow past 255. Integer truncation is
// load-bearing: a 5-bit channel value of 31 maps to 248, not 255, and
// decoded output is compared against exactly that.
func Channels(v uint32, pf rfb.PixelFormat) (r, g, b uint8) {
	r = uint8((v >> pf.RedShift) * 0x100 / (uint32(pf.RedMax) + 1))
	g = uint8((v >> pf.GreenShift) * 0x100 / (uint32(pf.GreenMax) + 1))
	b = uint8((v >> pf.BlueShift) * 0x100 / (uint32(pf.BlueMax) + 1))
	return r, g, b
}
