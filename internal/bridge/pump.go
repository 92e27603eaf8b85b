package bridge

import (
	"time"

	"vncbridge/internal/decode"
	"vncbridge/internal/rfb"
)

// Run connects to the server and drives the frame pump until Stop is
// called or the session fails fatally. It blocks for the session's
// lifetime and is the only goroutine touching the receive side of the
// connection. Returns nil on clean shutdown, or the *AbortError the
// session terminated with.
func (s *Session) Run() error {
	s.state.Store(int32(StateConnecting))

	client, err := s.connect()
	if err != nil {
		abort := &AbortError{Status: StatusUpstreamNotFound, Msg: "unable to connect to upstream server"}
		s.logger.Error("connection failed", "host", s.settings.Host, "port", s.settings.Port, "error", err)
		s.abort(abort)
		s.state.Store(int32(StateStopped))
		return abort
	}

	conn := rfb.NewConn(client)
	s.rects = decode.NewRectangleDecoder(conn, s.display, s.settings.SwapRedBlue)
	s.cursors = decode.NewCursorDecoder(s.display, s.settings.SwapRedBlue)
	s.conn.Store(conn)
	defer conn.Close()

	// The initial framebuffer allocation normally sizes the display
	// through HandleResize during the handshake.
	if w, _ := s.display.Size(); w == 0 {
		s.display.Resize(client.Width(), client.Height())
	}

	if !s.settings.ReadOnly {
		if s.settings.RemoteCursor {
			s.display.SetDotCursor()
		} else {
			s.display.SetPointerCursor()
		}
	}

	s.state.Store(int32(StateRunning))
	s.logger.Info("connected",
		"width", client.Width(),
		"height", client.Height(),
		"depth", client.PixelFormat().Depth)

	var abort *AbortError
	lastFrameEnd := time.Now()

	for !s.stopped() {

		// Wait for the start of a frame. Timing out is not an error:
		// an idle server still produces an (empty) frame below.
		ready, err := conn.WaitForReadable(FrameStartTimeout)
		if err != nil {
			abort = &AbortError{Status: StatusUpstreamError, Msg: "connection closed"}
			break
		}

		if ready {
			processingLag := s.lag()
			frameStart := time.Now()

			// Drain server messages until the frame is built.
			for {
				if err := conn.ProcessMessage(); err != nil {
					s.logger.Error("error handling server message", "error", err)
					abort = &AbortError{Status: StatusUpstreamError, Msg: "error handling message from upstream server"}
					break
				}

				now := time.Now()
				frameRemaining := FrameDuration - now.Sub(frameStart)

				// Time the viewer pipeline needs to catch up, anchored
				// at the previous frame's start.
				requiredWait := processingLag - now.Sub(lastFrameEnd)

				if requiredWait > FrameTimeout {
					// Viewers are falling behind: stretch this frame to
					// slow production down.
					ready, err = conn.WaitForReadable(requiredWait)
				} else if frameRemaining > 0 {
					ready, err = conn.WaitForReadable(FrameTimeout)
				} else {
					break
				}
				if err != nil {
					abort = &AbortError{Status: StatusUpstreamError, Msg: "connection closed"}
					break
				}
				if !ready {
					break
				}
			}

			// Anchor at the frame's start, not its end: server-side
			// render time inside the frame is assumed consistent
			// between frames and is excluded from the next frame's
			// required wait.
			lastFrameEnd = frameStart

			if abort != nil {
				break
			}
		}

		// Flush exactly one coalesced frame per iteration, updates or
		// not, so downstream cadence stays observable while idle.
		s.display.Flush(time.Now())
	}

	s.state.Store(int32(StateDraining))
	s.display.Flush(time.Now())
	s.state.Store(int32(StateStopped))

	if abort != nil {
		s.abort(abort)
		return abort
	}

	s.logger.Info("session disconnected")
	return nil
}

// connect is the connection supervisor: attempt, then retry on a fixed
// interval while retries remain. Total attempts = Retries + 1. A stop
// request during the backoff sleep gives up immediately.
func (s *Session) connect() (rfb.Client, error) {
	cfg := rfb.Config{
		Host:            s.settings.Host,
		Port:            s.settings.Port,
		RequestedFormat: formatForDepth(s.settings.ColorDepth),
		Handler:         s,
		EnableCursor:    !s.settings.ReadOnly && !s.settings.RemoteCursor,
		EnableCutText:   !s.settings.ReadOnly,
		ConnectTimeout:  ConnectTimeout,
	}

	client, err := s.dial(cfg)
	remaining := s.settings.Retries
	for err != nil && remaining > 0 {
		s.logger.Info("connect failed, retrying",
			"wait", ConnectInterval, "remaining", remaining, "error", err)

		select {
		case <-s.stop:
			return nil, err
		case <-time.After(ConnectInterval):
		}

		client, err = s.dial(cfg)
		remaining--
	}
	return client, err
}
