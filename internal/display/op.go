// Package display is the viewer-facing surface of a session: an
// authoritative framebuffer image, the current cursor, and a journal of
// changes since the last flush. The pump's decode callbacks write into
// it; attached sinks (viewer transports) receive one coalesced batch of
// ops per frame, and late joiners are synchronized from current state.
package display

import (
	"image"
	"time"
)

// OpKind discriminates display ops.
type OpKind uint8

const (
	// OpResize changes the surface dimensions to W x H.
	OpResize OpKind = iota + 1
	// OpDraw places Image at (X, Y).
	OpDraw
	// OpCopy copies the W x H region at (SrcX, SrcY) to (X, Y) within
	// the surface.
	OpCopy
	// OpCursor replaces the cursor image, hotspot at (HotX, HotY).
	OpCursor
	// OpClipboard delivers clipboard text.
	OpClipboard
	// OpFrameEnd marks the end of one coalesced frame. Emitted every
	// pump iteration, updates or not, so downstream cadence stays
	// observable even when idle.
	OpFrameEnd
)

// Op is one display change. Which fields are meaningful depends on
// Kind.
type Op struct {
	Kind OpKind

	X, Y       int
	W, H       int
	SrcX, SrcY int
	HotX, HotY int

	Image *image.RGBA
	Text  string

	// Timestamp anchors OpFrameEnd for downstream lag measurement.
	Timestamp time.Time
}

// Sink consumes display ops. Apply is called with the display lock
// held; implementations must hand off quickly and never call back into
// the display. An error detaches the sink.
type Sink interface {
	Apply(op Op) error
}
