// Command vncbridge bridges one remote framebuffer session to WebRTC
// viewers: it maintains the upstream connection, coalesces server
// updates into frames at a bounded rate, and serves a signaling
// endpoint viewers negotiate peer connections through.
package main

import (
	crypto_tls "crypto/tls"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vncbridge/internal/bridge"
	"vncbridge/internal/clipboard"
	"vncbridge/internal/display"
	"vncbridge/internal/rfb/wire"
	tlsutil "vncbridge/internal/tls"
	"vncbridge/internal/viewer"
)

var (
	flagHost     = flag.String("host", "localhost", "Upstream server hostname")
	flagPort     = flag.Int("port", 5900, "Upstream server port")
	flagPassword = flag.String("password", "", "Upstream password (or set VNC_PASSWORD)")
	flagDepth    = flag.Int("color-depth", 32, "Requested color depth in bits (8, 16, 24, 32; other values get 32)")
	flagSwapRB   = flag.Bool("swap-red-blue", false, "Swap red and blue channels (for servers with reversed byte order)")
	flagReadOnly = flag.Bool("read-only", false, "Drop all viewer input")
	flagCursor   = flag.Bool("remote-cursor", false, "Let the server render the cursor into the framebuffer")
	flagClipEnc  = flag.String("clipboard-encoding", "", "Clipboard text encoding (ISO8859-1, UTF-8, UTF-16, CP1252)")
	flagRetries  = flag.Int("retries", 0, "Connection retries after the first failed attempt")

	flagAddr    = flag.String("addr", "127.0.0.1:8080", "Signaling listen address")
	flagToken   = flag.String("token", "", "Bearer token for signaling authentication (required)")
	flagTLS     = flag.Bool("tls", false, "Serve signaling over TLS with a self-signed certificate")
	flagVerbose = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *flagToken == "" {
		logger.Error("--token is required")
		os.Exit(1)
	}

	password := *flagPassword
	if password == "" {
		password = os.Getenv("VNC_PASSWORD")
	}

	var tlsConfig *crypto_tls.Config
	if *flagTLS {
		tc, err := tlsutil.SelfSigned(logger)
		if err != nil {
			logger.Error("self-signed certificate", "error", err)
			os.Exit(1)
		}
		tlsConfig = tc
	}

	clip := clipboard.New()
	disp := display.New(clip, logger)

	// The hub is created after the session but before the session runs,
	// so the lag and abort closures observing it never see it nil while
	// the pump is live.
	var hub *viewer.Hub

	session := bridge.NewSession(bridge.SessionConfig{
		Settings: bridge.Settings{
			Host:              *flagHost,
			Port:              *flagPort,
			Password:          password,
			ColorDepth:        *flagDepth,
			SwapRedBlue:       *flagSwapRB,
			ReadOnly:          *flagReadOnly,
			RemoteCursor:      *flagCursor,
			ClipboardEncoding: *flagClipEnc,
			Retries:           *flagRetries,
		},
		Dial:      wire.Dial,
		Display:   disp,
		Clipboard: clip,
		ProcessingLag: func() time.Duration {
			return hub.ProcessingLag()
		},
		OnAbort: func(err *bridge.AbortError) {
			hub.Abort(err.Status.String(), err.Msg)
		},
		Logger: logger,
	})

	var err error
	hub, err = viewer.NewHub(disp, session, logger)
	if err != nil {
		logger.Error("hub setup", "error", err)
		os.Exit(1)
	}

	srv := viewer.NewServer(viewer.ServerConfig{
		Addr:      *flagAddr,
		Token:     *flagToken,
		TLSConfig: tlsConfig,
	}, hub, logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("signaling server", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		session.Stop()
	}()

	if err := session.Run(); err != nil {
		hub.Close()
		os.Exit(1)
	}
	hub.Close()
}
