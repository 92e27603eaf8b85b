package decode

import (
	"image"

	"vncbridge/internal/rfb"
)

// CursorSink receives decoded cursor shapes.
type CursorSink interface {
	SetCursor(hotX, hotY int, img *image.RGBA)
}

// CursorDecoder turns cursor shape notifications into packed ARGB
// cursor images.
type CursorDecoder struct {
	sink   CursorSink
	swapRB bool
}

// NewCursorDecoder returns a decoder registering cursors with sink.
func NewCursorDecoder(sink CursorSink, swapRB bool) *CursorDecoder {
	return &CursorDecoder{sink: sink, swapRB: swapRB}
}

// Cursor decodes a w x h cursor image. color holds raw pixel values in
// the connection's pixel format, bpp bytes each; mask holds one byte
// per pixel where non-zero means fully opaque. Alpha is binary: the
// protocol cannot express partial transparency. Channel values use the
// connection's current pixel format, not a per-cursor format.
//
// The color buffer is only valid for the duration of the call and is
// copied out here; the mask buffer is handed off by the caller and
// dropped when this returns.
func (d *CursorDecoder) Cursor(c rfb.Client, hotX, hotY, w, h, bpp int, color, mask []byte) {
	if w <= 0 || h <= 0 || len(color) < w*h*bpp || len(mask) < w*h {
		return
	}

	pf := c.PixelFormat()
	read := ReaderFor(pf)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	src := 0
	for i := 0; i < w*h; i++ {
		r, g, b := Channels(read(color[src:]), pf)
		if d.swapRB {
			r, b = b, r
		}
		var a uint8
		if mask[i] != 0 {
			a = 0xFF
		}
		img.Pix[i*4+0] = r
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = b
		img.Pix[i*4+3] = a
		src += bpp
	}

	d.sink.SetCursor(hotX, hotY, img)
}
