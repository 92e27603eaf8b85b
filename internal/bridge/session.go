package bridge

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"vncbridge/internal/clipboard"
	"vncbridge/internal/decode"
	"vncbridge/internal/display"
	"vncbridge/internal/rfb"
)

// State is the session lifecycle phase.
type State int32

const (
	StateConnecting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SessionConfig wires a session to its collaborators.
type SessionConfig struct {
	Settings  Settings
	Dial      rfb.Dialer
	Display   *display.Display
	Clipboard *clipboard.Clipboard

	// ProcessingLag reports how far behind the viewer pipeline is
	// running. Nil means no lag reporting (treated as zero).
	ProcessingLag func() time.Duration

	// OnAbort is invoked once if the session fails fatally, before Run
	// returns. Nil is allowed.
	OnAbort func(*AbortError)

	// Logger is the session logger. Nil means slog.Default().
	Logger *slog.Logger
}

// Session is one protocol bridge session: a single pump goroutine
// driving the connection, plus entry points that viewer goroutines call
// concurrently to inject input. It implements rfb.Handler.
type Session struct {
	settings Settings
	dial     rfb.Dialer
	display  *display.Display
	clip     *clipboard.Clipboard
	codec    clipboard.Codec
	lag      func() time.Duration
	onAbort  func(*AbortError)
	logger   *slog.Logger

	// conn is published once the supervisor succeeds; viewer input
	// arriving before that is dropped, as is input after teardown.
	conn atomic.Pointer[rfb.Conn]

	// Decoders are installed between Dial returning and the first
	// ProcessMessage call; update hooks cannot fire earlier.
	rects   *decode.RectangleDecoder
	cursors *decode.CursorDecoder

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSession builds a session from its configuration. The clipboard
// encoding is resolved here; a non-standard choice is logged once.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	codec, standard := clipboard.Lookup(cfg.Settings.ClipboardEncoding, logger)
	if !standard {
		logger.Info("using non-standard clipboard encoding", "encoding", codec.Name())
	}

	lag := cfg.ProcessingLag
	if lag == nil {
		lag = func() time.Duration { return 0 }
	}

	return &Session{
		settings: cfg.Settings,
		dial:     cfg.Dial,
		display:  cfg.Display,
		clip:     cfg.Clipboard,
		codec:    codec,
		lag:      lag,
		onAbort:  cfg.OnAbort,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stop requests cooperative teardown. The pump observes the flag once
// per iteration, so teardown latency is bounded by one frame of message
// processing plus the current wait timeout.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Session) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// SendPointer forwards a viewer pointer event to the server. Dropped
// while read-only or not yet connected. Safe for concurrent use.
func (s *Session) SendPointer(x, y int, buttonMask uint8) {
	if s.settings.ReadOnly {
		return
	}
	if conn := s.conn.Load(); conn != nil {
		if err := conn.SendPointerEvent(x, y, buttonMask); err != nil {
			s.logger.Warn("pointer event send failed", "error", err)
		}
	}
}

// SendKey forwards a viewer key event to the server. Dropped while
// read-only or not yet connected. Safe for concurrent use.
func (s *Session) SendKey(keysym uint32, down bool) {
	if s.settings.ReadOnly {
		return
	}
	if conn := s.conn.Load(); conn != nil {
		if err := conn.SendKeyEvent(keysym, down); err != nil {
			s.logger.Warn("key event send failed", "error", err)
		}
	}
}

// SendClipboard forwards viewer clipboard text to the server in the
// session's configured encoding. Safe for concurrent use.
func (s *Session) SendClipboard(text string) {
	if s.settings.ReadOnly {
		return
	}
	conn := s.conn.Load()
	if conn == nil {
		return
	}
	data, err := s.codec.Encode(text)
	if err != nil {
		s.logger.Warn("clipboard encode failed", "encoding", s.codec.Name(), "error", err)
		return
	}
	if err := conn.SendCutText(data); err != nil {
		s.logger.Warn("clipboard send failed", "error", err)
	}
}

// HandleUpdate implements rfb.Handler.
func (s *Session) HandleUpdate(c rfb.Client, x, y, w, h int) {
	s.rects.Rectangle(c, x, y, w, h)
}

// HandleCopyRect implements rfb.Handler.
func (s *Session) HandleCopyRect(c rfb.Client, srcX, srcY, w, h, dstX, dstY int) {
	s.rects.CopyRect(c, srcX, srcY, w, h, dstX, dstY)
}

// HandleCursor implements rfb.Handler.
func (s *Session) HandleCursor(c rfb.Client, hotX, hotY, w, h, bpp int, color, mask []byte) {
	s.cursors.Cursor(c, hotX, hotY, w, h, bpp, color, mask)
}

// HandleCutText implements rfb.Handler: decode server clipboard text,
// replace the session clipboard and broadcast to viewers.
func (s *Session) HandleCutText(c rfb.Client, data []byte) {
	text, err := s.codec.Decode(data)
	if err != nil {
		s.logger.Warn("clipboard decode failed", "encoding", s.codec.Name(), "error", err)
		return
	}
	s.clip.Reset("text/plain")
	s.clip.Append([]byte(text))
	s.display.Clipboard(text)
}

// HandleResize implements rfb.Handler: resize the display before any
// further rectangle decode is accepted.
func (s *Session) HandleResize(c rfb.Client, w, h int) {
	s.display.Resize(w, h)
}

// Password implements rfb.Handler.
func (s *Session) Password(c rfb.Client) string {
	return s.settings.Password
}

func (s *Session) abort(err *AbortError) {
	s.logger.Error("session aborting", "status", err.Status.String(), "reason", err.Msg)
	if s.onAbort != nil {
		s.onAbort(err)
	}
}
