// Package rfb defines the boundary to the remote framebuffer protocol
// implementation: the client surface the session drives (wait, process,
// send) and the event hooks the protocol invokes while processing
// server messages. The wire implementation lives in rfb/wire; tests
// substitute an in-memory fake.
package rfb

import "time"

// PixelFormat describes how raw pixel values on a connection map to
// color channels. It is negotiated once at connect time. The server is
// not required to honor the requested format, so the effective format
// must always be read back from the live client, never assumed.
type PixelFormat struct {
	BitsPerPixel uint8
	Depth        uint8
	BigEndian    bool
	TrueColor    bool
	RedMax       uint16
	GreenMax     uint16
	BlueMax      uint16
	RedShift     uint8
	GreenShift   uint8
	BlueShift    uint8
}

// BytesPerPixel returns the per-pixel byte width (1, 2 or 4).
func (pf PixelFormat) BytesPerPixel() int {
	return int(pf.BitsPerPixel) / 8
}

// Handler receives protocol events during message processing. All hooks
// are invoked synchronously on the goroutine calling ProcessMessage,
// with the client handle passed explicitly.
//
// Buffer ownership for HandleCursor is asymmetric and must be honored
// exactly: color remains owned by the protocol implementation and is
// valid only for the duration of the call, while mask is handed off to
// the handler and will not be touched by the implementation afterwards.
type Handler interface {
	// HandleUpdate reports that the sub-rectangle (x, y, w, h) of the
	// client's framebuffer now holds new pixel data.
	HandleUpdate(c Client, x, y, w, h int)

	// HandleCopyRect reports that the (w, h) region at (srcX, srcY) has
	// been copied to (dstX, dstY). The client's framebuffer has already
	// been updated when this is invoked.
	HandleCopyRect(c Client, srcX, srcY, w, h, dstX, dstY int)

	// HandleCursor reports a new cursor shape. color holds w*h raw
	// pixel values of bpp bytes each in the connection's pixel format;
	// mask holds one byte per pixel, non-zero meaning opaque.
	HandleCursor(c Client, hotX, hotY, w, h, bpp int, color, mask []byte)

	// HandleCutText reports clipboard text cut or copied on the server,
	// in the encoding the session was configured with.
	HandleCutText(c Client, data []byte)

	// HandleResize reports that the framebuffer has been (re)allocated
	// at the given size. Invoked once during connect for the initial
	// allocation and again on any server-side resize, always before
	// further updates are delivered.
	HandleResize(c Client, w, h int)

	// Password returns the password to present during authentication.
	Password(c Client) string
}

// Client is one live protocol connection. WaitForReadable and
// ProcessMessage are driven by the session's pump; the Send methods may
// be called from other goroutines, but callers must serialize all
// ProcessMessage and Send calls themselves (see Conn). Hooks registered
// via Config.Handler fire from within ProcessMessage.
type Client interface {
	// WaitForReadable blocks until a server message can be processed
	// without blocking, or the timeout elapses. Input already buffered
	// counts as immediately readable.
	WaitForReadable(timeout time.Duration) (bool, error)

	// ProcessMessage reads and processes exactly one pending server
	// message, invoking handler hooks as side effects.
	ProcessMessage() error

	Width() int
	Height() int
	PixelFormat() PixelFormat

	// Framebuffer exposes the client's decoded framebuffer: Width *
	// Height pixels of PixelFormat().BytesPerPixel() bytes each, row
	// stride Width * BytesPerPixel. Valid to read from handler hooks.
	Framebuffer() []byte

	SendPointerEvent(x, y int, buttonMask uint8) error
	SendKeyEvent(keysym uint32, down bool) error
	SendCutText(data []byte) error

	Close() error
}

// Config carries everything a protocol implementation needs to
// establish a connection.
type Config struct {
	Host string
	Port int

	// RequestedFormat is the pixel format to request during the
	// handshake.
	RequestedFormat PixelFormat

	Handler Handler

	// EnableCursor requests client-side cursor rendering: the server
	// sends cursor shapes instead of drawing the cursor into the
	// framebuffer.
	EnableCursor bool

	// EnableCutText enables delivery of server clipboard changes.
	EnableCutText bool

	ConnectTimeout time.Duration
}

// Dialer establishes one protocol connection per call.
type Dialer func(cfg Config) (Client, error)
