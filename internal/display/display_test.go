package display

import (
	"errors"
	"image"
	"log/slog"
	"testing"
	"time"

	"vncbridge/internal/clipboard"
)

type recordingSink struct {
	ops []Op
	err error
}

func (s *recordingSink) Apply(op Op) error {
	if s.err != nil {
		return s.err
	}
	s.ops = append(s.ops, op)
	return nil
}

func (s *recordingSink) kinds() []OpKind {
	kinds := make([]OpKind, len(s.ops))
	for i, op := range s.ops {
		kinds[i] = op.Kind
	}
	return kinds
}

func newTestDisplay() (*Display, *clipboard.Clipboard) {
	clip := clipboard.New()
	return New(clip, slog.New(slog.DiscardHandler)), clip
}

func fill(w, h int, val uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = val
	}
	return img
}

func TestFlushDeliversJournalInOrder(t *testing.T) {
	d, _ := newTestDisplay()
	sink := &recordingSink{}
	d.Attach(sink)

	d.Resize(8, 8)
	d.Draw(1, 2, fill(2, 2, 0x80))
	d.Copy(0, 0, 2, 2, 4, 4)
	d.Flush(time.Now())

	want := []OpKind{OpResize, OpDraw, OpCopy, OpFrameEnd}
	got := sink.kinds()
	if len(got) != len(want) {
		t.Fatalf("got ops %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("op %d = %v, want %v", i, got[i], want[i])
		}
	}

	draw := sink.ops[1]
	if draw.X != 1 || draw.Y != 2 || draw.Image == nil {
		t.Errorf("draw op = %+v", draw)
	}
}

func TestFlushClearsJournal(t *testing.T) {
	d, _ := newTestDisplay()
	sink := &recordingSink{}
	d.Attach(sink)

	d.Resize(4, 4)
	d.Flush(time.Now())
	sink.ops = nil

	d.Flush(time.Now())
	if got := sink.kinds(); len(got) != 1 || got[0] != OpFrameEnd {
		t.Errorf("second flush delivered %v, want only a frame end", got)
	}
}

func TestAttachSynchronizesState(t *testing.T) {
	d, clip := newTestDisplay()
	d.Resize(4, 4)
	d.Draw(0, 0, fill(4, 4, 0x11))
	d.SetPointerCursor()
	clip.Reset("text/plain")
	clip.Append([]byte("snapshot"))
	d.Flush(time.Now())

	late := &recordingSink{}
	d.Attach(late)

	want := []OpKind{OpResize, OpDraw, OpCursor, OpClipboard, OpFrameEnd}
	got := late.kinds()
	if len(got) != len(want) {
		t.Fatalf("late joiner got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("op %d = %v, want %v", i, got[i], want[i])
		}
	}

	if late.ops[1].Image.Pix[0] != 0x11 {
		t.Error("snapshot draw does not carry current framebuffer contents")
	}
	if late.ops[3].Text != "snapshot" {
		t.Errorf("clipboard text = %q", late.ops[3].Text)
	}
}

func TestAttachBeforeFirstResizeSubscribesOnly(t *testing.T) {
	d, _ := newTestDisplay()
	sink := &recordingSink{}
	d.Attach(sink)

	if len(sink.ops) != 0 {
		t.Errorf("sink received %v before any framebuffer exists", sink.kinds())
	}

	d.Resize(2, 2)
	d.Flush(time.Now())
	if got := sink.kinds(); len(got) != 2 || got[0] != OpResize {
		t.Errorf("after resize got %v", got)
	}
}

func TestResizePreservesOverlap(t *testing.T) {
	d, _ := newTestDisplay()
	d.Resize(4, 4)
	d.Draw(0, 0, fill(4, 4, 0xAB))

	d.Resize(8, 8)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fb.Pix[d.fb.PixOffset(3, 3)] != 0xAB {
		t.Error("content inside the old bounds was lost")
	}
	if d.fb.Pix[d.fb.PixOffset(7, 7)] != 0 {
		t.Error("new area is not blank")
	}
}

func TestCopyHandlesOverlap(t *testing.T) {
	d, _ := newTestDisplay()
	d.Resize(4, 1)

	img := image.NewRGBA(image.Rect(0, 0, 4, 1))
	for x := 0; x < 4; x++ {
		img.Pix[x*4] = uint8(x + 1)
	}
	d.Draw(0, 0, img)

	// Shift right by one; source and destination overlap.
	d.Copy(0, 0, 3, 1, 1, 0)

	d.mu.Lock()
	defer d.mu.Unlock()
	got := []uint8{
		d.fb.Pix[d.fb.PixOffset(0, 0)],
		d.fb.Pix[d.fb.PixOffset(1, 0)],
		d.fb.Pix[d.fb.PixOffset(2, 0)],
		d.fb.Pix[d.fb.PixOffset(3, 0)],
	}
	want := []uint8{1, 1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row after copy = %v, want %v", got, want)
		}
	}
}

func TestClipboardBroadcastsImmediately(t *testing.T) {
	d, _ := newTestDisplay()
	sink := &recordingSink{}
	d.Attach(sink)

	d.Clipboard("now")
	if got := sink.kinds(); len(got) != 1 || got[0] != OpClipboard {
		t.Fatalf("got %v, want an immediate clipboard op", got)
	}
	if sink.ops[0].Text != "now" {
		t.Errorf("text = %q", sink.ops[0].Text)
	}
}

func TestFailingSinkIsDetached(t *testing.T) {
	d, _ := newTestDisplay()
	good := &recordingSink{}
	bad := &recordingSink{err: errors.New("send failed")}
	d.Attach(good)
	d.Attach(bad)

	d.Resize(2, 2)
	d.Flush(time.Now())
	d.Flush(time.Now())

	// A failing sink must not stall the healthy one.
	if len(good.ops) == 0 {
		t.Fatal("healthy sink received nothing")
	}

	d.mu.Lock()
	_, stillAttached := d.sinks[bad]
	d.mu.Unlock()
	if stillAttached {
		t.Error("failing sink was not detached")
	}
}

func TestBuiltinCursors(t *testing.T) {
	d, _ := newTestDisplay()
	sink := &recordingSink{}
	d.Attach(sink)

	d.SetPointerCursor()
	d.SetDotCursor()
	d.Flush(time.Now())

	var cursors []Op
	for _, op := range sink.ops {
		if op.Kind == OpCursor {
			cursors = append(cursors, op)
		}
	}
	if len(cursors) != 2 {
		t.Fatalf("got %d cursor ops, want 2", len(cursors))
	}

	pointer := cursors[0]
	b := pointer.Image.Bounds()
	if b.Dx() != 11 || b.Dy() != 16 || pointer.HotX != 0 || pointer.HotY != 0 {
		t.Errorf("pointer cursor %dx%d hotspot (%d, %d)", b.Dx(), b.Dy(), pointer.HotX, pointer.HotY)
	}

	dot := cursors[1]
	b = dot.Image.Bounds()
	if b.Dx() != 5 || b.Dy() != 5 || dot.HotX != 2 || dot.HotY != 2 {
		t.Errorf("dot cursor %dx%d hotspot (%d, %d)", b.Dx(), b.Dy(), dot.HotX, dot.HotY)
	}

	// Border pixels are white and opaque, interior black and opaque.
	if px := dot.Image.Pix[:4]; px[0] != 0xFF || px[3] != 0xFF {
		t.Errorf("dot corner = %v, want opaque white", px)
	}
	i := dot.Image.PixOffset(2, 2)
	if px := dot.Image.Pix[i : i+4]; px[0] != 0 || px[3] != 0xFF {
		t.Errorf("dot center = %v, want opaque black", px)
	}
}
