// Package bridge contains the session engine: the connection
// supervisor, the adaptive frame pump that drives the protocol
// connection, and the glue installing decode callbacks between the
// connection and the display.
package bridge

import (
	"fmt"
	"time"

	"vncbridge/internal/rfb"
)

// Settings is the session configuration, referenced by value inside
// the core. Parsing lives with the caller.
type Settings struct {
	Host     string
	Port     int
	Password string

	// ColorDepth is the requested depth in bits per pixel: 8, 16, 24
	// or 32. The server may ignore the request.
	ColorDepth int

	// SwapRedBlue inverts red and blue in decoded output, for servers
	// that report them swapped.
	SwapRedBlue bool

	// ReadOnly drops all viewer input and disables cursor and
	// clipboard handling.
	ReadOnly bool

	// RemoteCursor leaves cursor rendering to the server instead of
	// requesting cursor shape updates.
	RemoteCursor bool

	// ClipboardEncoding names the encoding for clipboard data
	// exchanged with the server. Empty or unrecognized falls back to
	// ISO8859-1.
	ClipboardEncoding string

	// Retries is the number of additional connection attempts after
	// the first fails.
	Retries int
}

// Pacing and limit constants for the frame pump.
const (
	// FrameDuration is the nominal maximum length of one frame.
	FrameDuration = 40 * time.Millisecond

	// FrameTimeout is the per-message wait within a frame. Zero: once
	// the server goes silent the frame is considered finished.
	FrameTimeout = 0 * time.Millisecond

	// FrameStartTimeout bounds the idle wait at the top of each pump
	// iteration. Small enough that a stop signal is observed promptly,
	// large enough not to spin.
	FrameStartTimeout = 1 * time.Second

	// ConnectInterval is the fixed delay between connection attempts.
	ConnectInterval = 1 * time.Second

	// ConnectTimeout bounds each individual connection attempt.
	ConnectTimeout = 10 * time.Second
)

// formatForDepth maps a requested color depth to the pixel format
// requested during the handshake: 8bpp BGR233, 16bpp RGB565 or 32bpp
// RGB888. Anything else gets the 32bpp default.
func formatForDepth(depth int) rfb.PixelFormat {
	pf := rfb.PixelFormat{TrueColor: true}
	switch depth {
	case 8:
		pf.Depth = 8
		pf.BitsPerPixel = 8
		pf.BlueShift = 6
		pf.RedShift = 0
		pf.GreenShift = 3
		pf.BlueMax = 3
		pf.RedMax = 7
		pf.GreenMax = 7

	case 16:
		pf.Depth = 16
		pf.BitsPerPixel = 16
		pf.BlueShift = 0
		pf.RedShift = 11
		pf.GreenShift = 5
		pf.BlueMax = 0x1F
		pf.RedMax = 0x1F
		pf.GreenMax = 0x3F

	default:
		pf.Depth = 24
		pf.BitsPerPixel = 32
		pf.BlueShift = 0
		pf.RedShift = 16
		pf.GreenShift = 8
		pf.BlueMax = 0xFF
		pf.RedMax = 0xFF
		pf.GreenMax = 0xFF
	}
	return pf
}

// Status classifies a fatal session failure.
type Status int

const (
	// StatusUpstreamNotFound: the server could not be reached within
	// the configured retries.
	StatusUpstreamNotFound Status = iota + 1

	// StatusUpstreamError: the connection failed while running. The
	// message stream's framing cannot be trusted afterwards, so no
	// recovery is attempted.
	StatusUpstreamError
)

func (s Status) String() string {
	switch s {
	case StatusUpstreamNotFound:
		return "upstream not found"
	case StatusUpstreamError:
		return "upstream error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// AbortError is the terminal failure a session reports. Aborts are
// final: the pump exits and the session does not reconnect.
type AbortError struct {
	Status Status
	Msg    string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("session aborted (%s): %s", e.Status, e.Msg)
}
