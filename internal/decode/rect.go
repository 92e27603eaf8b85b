package decode

import (
	"image"

	"vncbridge/internal/rfb"
)

// Surface is the subset of the display the rectangle decoder draws
// into.
type Surface interface {
	Draw(x, y int, img *image.RGBA)
	Copy(srcX, srcY, w, h, dstX, dstY int)
}

// RectangleDecoder turns framebuffer update notifications into draws
// and copies on the display surface.
type RectangleDecoder struct {
	conn    *rfb.Conn
	surface Surface
	swapRB  bool
}

// NewRectangleDecoder returns a decoder drawing into surface. swapRB
// inverts the red and blue channels for servers that report them
// swapped.
func NewRectangleDecoder(conn *rfb.Conn, surface Surface, swapRB bool) *RectangleDecoder {
	return &RectangleDecoder{conn: conn, surface: surface, swapRB: swapRB}
}

// Rectangle decodes the (x, y, w, h) region of the client framebuffer
// into a packed RGBA image and draws it at the rectangle's origin. If
// the preceding update was applied via copy-rect, this notification
// describes the same change and is dropped instead of double-applied.
// Regions reaching outside the framebuffer (possible transiently around
// a resize) are clipped; degenerate rectangles are ignored.
func (d *RectangleDecoder) Rectangle(c rfb.Client, x, y, w, h int) {
	if d.conn.ConsumeCopyRect() {
		return
	}

	fbW, fbH := c.Width(), c.Height()
	x, y, w, h = clip(x, y, w, h, fbW, fbH)
	if w <= 0 || h <= 0 {
		return
	}

	pf := c.PixelFormat()
	read := ReaderFor(pf)
	bpp := pf.BytesPerPixel()
	fb := c.Framebuffer()
	fbStride := bpp * fbW

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for dy := 0; dy < h; dy++ {
		src := (y+dy)*fbStride + x*bpp
		dst := dy * img.Stride
		for dx := 0; dx < w; dx++ {
			r, g, b := Channels(read(fb[src:]), pf)
			if d.swapRB {
				r, b = b, r
			}
			img.Pix[dst+0] = r
			img.Pix[dst+1] = g
			img.Pix[dst+2] = b
			img.Pix[dst+3] = 0xFF
			src += bpp
			dst += 4
		}
	}

	d.surface.Draw(x, y, img)
}

// CopyRect applies a same-surface copy without re-decoding pixels and
// marks the connection so the full-rectangle notification for the same
// change is suppressed.
func (d *RectangleDecoder) CopyRect(c rfb.Client, srcX, srcY, w, h, dstX, dstY int) {
	if w <= 0 || h <= 0 {
		return
	}
	d.surface.Copy(srcX, srcY, w, h, dstX, dstY)
	d.conn.MarkCopyRect()
}

// clip bounds the rectangle to [0, fbW) x [0, fbH).
func clip(x, y, w, h, fbW, fbH int) (int, int, int, int) {
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > fbW {
		w = fbW - x
	}
	if y+h > fbH {
		h = fbH - y
	}
	return x, y, w, h
}
