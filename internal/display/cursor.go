package display

import "image"

// Builtin cursor shapes for sessions where the server renders no
// client-side cursor of its own. Rows use '#' for black, 'o' for white
// and ' ' for transparent.

var pointerRows = []string{
	"o          ",
	"oo         ",
	"o#o        ",
	"o##o       ",
	"o###o      ",
	"o####o     ",
	"o#####o    ",
	"o######o   ",
	"o#######o  ",
	"o########o ",
	"o#####ooooo",
	"o##o##o    ",
	"o#o o##o   ",
	"oo  o##o   ",
	"o    o##o  ",
	"     oooo  ",
}

var dotRows = []string{
	"ooooo",
	"o###o",
	"o###o",
	"o###o",
	"ooooo",
}

// SetPointerCursor installs the standard local pointer cursor, used
// when the remote server is asked not to render its own.
func (d *Display) SetPointerCursor() {
	d.SetCursor(0, 0, renderCursor(pointerRows))
}

// SetDotCursor installs a small dot cursor, used when the cursor is
// rendered remotely but the pointer position should still be visible
// locally.
func (d *Display) SetDotCursor() {
	d.SetCursor(2, 2, renderCursor(dotRows))
}

func renderCursor(rows []string) *image.RGBA {
	h := len(rows)
	w := len(rows[0])
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y, row := range rows {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			switch row[x] {
			case '#':
				img.Pix[i+3] = 0xFF
			case 'o':
				img.Pix[i+0] = 0xFF
				img.Pix[i+1] = 0xFF
				img.Pix[i+2] = 0xFF
				img.Pix[i+3] = 0xFF
			}
		}
	}
	return img
}
