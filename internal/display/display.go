package display

import (
	"image"
	"image/draw"
	"log/slog"
	"sync"
	"time"

	"vncbridge/internal/clipboard"
)

// Display holds the session's display state and fans changes out to
// attached sinks. One mutex covers framebuffer writes (pump goroutine)
// and state duplication for joining sinks (viewer goroutines), so a
// joiner can never observe a torn framebuffer or miss ops between its
// snapshot and its first frame.
type Display struct {
	mu sync.Mutex

	fb     *image.RGBA
	cursor *image.RGBA
	hotX   int
	hotY   int

	clip *clipboard.Clipboard

	journal []Op
	sinks   map[Sink]struct{}

	logger *slog.Logger
}

// New returns an empty display. The clipboard is consulted when
// synchronizing state into a joining sink.
func New(clip *clipboard.Clipboard, logger *slog.Logger) *Display {
	if logger == nil {
		logger = slog.Default()
	}
	return &Display{
		clip:   clip,
		sinks:  make(map[Sink]struct{}),
		logger: logger,
	}
}

// Size returns the current surface dimensions.
func (d *Display) Size() (w, h int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fb == nil {
		return 0, 0
	}
	return d.fb.Bounds().Dx(), d.fb.Bounds().Dy()
}

// Resize reallocates the surface, preserving any overlapping content.
// Must complete before further draws for the new geometry are accepted.
func (d *Display) Resize(w, h int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fb := image.NewRGBA(image.Rect(0, 0, w, h))
	if d.fb != nil {
		draw.Draw(fb, d.fb.Bounds(), d.fb, image.Point{}, draw.Src)
	}
	d.fb = fb
	d.journal = append(d.journal, Op{Kind: OpResize, W: w, H: h})
}

// Draw places img on the surface at (x, y). The image is retained until
// the next flush and must not be mutated by the caller afterwards.
func (d *Display) Draw(x, y int, img *image.RGBA) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fb == nil {
		return
	}

	b := img.Bounds()
	draw.Draw(d.fb, image.Rect(x, y, x+b.Dx(), y+b.Dy()), img, b.Min, draw.Src)
	d.journal = append(d.journal, Op{Kind: OpDraw, X: x, Y: y, Image: img})
}

// Copy moves the w x h region at (srcX, srcY) to (dstX, dstY) within
// the surface. Staged through an intermediate buffer so overlapping
// regions copy correctly.
func (d *Display) Copy(srcX, srcY, w, h, dstX, dstY int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fb == nil {
		return
	}

	tmp := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(tmp, tmp.Bounds(), d.fb, image.Point{X: srcX, Y: srcY}, draw.Src)
	draw.Draw(d.fb, image.Rect(dstX, dstY, dstX+w, dstY+h), tmp, image.Point{}, draw.Src)

	d.journal = append(d.journal, Op{
		Kind: OpCopy,
		SrcX: srcX, SrcY: srcY,
		W: w, H: h,
		X: dstX, Y: dstY,
	})
}

// SetCursor replaces the session cursor image.
func (d *Display) SetCursor(hotX, hotY int, img *image.RGBA) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cursor = img
	d.hotX, d.hotY = hotX, hotY
	d.journal = append(d.journal, Op{Kind: OpCursor, HotX: hotX, HotY: hotY, Image: img})
}

// Clipboard broadcasts clipboard text to all attached sinks
// immediately; clipboard events are not coalesced into frames.
func (d *Display) Clipboard(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.apply(Op{Kind: OpClipboard, Text: text})
}

// Flush delivers all ops journaled since the previous flush, followed
// by an end-of-frame marker, to every attached sink.
func (d *Display) Flush(ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, op := range d.journal {
		d.apply(op)
	}
	d.journal = d.journal[:0]
	d.apply(Op{Kind: OpFrameEnd, Timestamp: ts})
}

// Attach duplicates current display state into sink, then subscribes it
// to subsequent frames. The snapshot and the subscription happen under
// one lock acquisition, so the sink sees every change exactly once.
func (d *Display) Attach(sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fb != nil {
		b := d.fb.Bounds()
		snapshot := image.NewRGBA(b)
		copy(snapshot.Pix, d.fb.Pix)

		if err := sink.Apply(Op{Kind: OpResize, W: b.Dx(), H: b.Dy()}); err != nil {
			return
		}
		if err := sink.Apply(Op{Kind: OpDraw, Image: snapshot}); err != nil {
			return
		}
		if d.cursor != nil {
			if err := sink.Apply(Op{Kind: OpCursor, HotX: d.hotX, HotY: d.hotY, Image: d.cursor}); err != nil {
				return
			}
		}
		if d.clip != nil {
			if _, data := d.clip.Contents(); len(data) > 0 {
				if err := sink.Apply(Op{Kind: OpClipboard, Text: string(data)}); err != nil {
					return
				}
			}
		}
		if err := sink.Apply(Op{Kind: OpFrameEnd, Timestamp: time.Now()}); err != nil {
			return
		}
	}

	d.sinks[sink] = struct{}{}
}

// Detach unsubscribes sink. Safe to call for a sink that was never
// attached or was already dropped.
func (d *Display) Detach(sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sinks, sink)
}

// apply sends op to all sinks, detaching any that fail. Callers hold
// d.mu.
func (d *Display) apply(op Op) {
	for sink := range d.sinks {
		if err := sink.Apply(op); err != nil {
			d.logger.Warn("dropping display sink", "error", err)
			delete(d.sinks, sink)
		}
	}
}
