package viewer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"vncbridge/internal/display"
)

// InputHandler receives viewer-originated events. Implemented by the
// bridge session; calls arrive on WebRTC goroutines, concurrently with
// the pump.
type InputHandler interface {
	SendPointer(x, y int, buttonMask uint8)
	SendKey(keysym uint32, down bool)
	SendClipboard(text string)
}

// Viewer is one attached peer. It implements display.Sink: ops arrive
// from the pump via the display broadcast and are forwarded over the
// display data channel.
type Viewer struct {
	ID string

	pc     *webrtc.PeerConnection
	codec  *Codec
	hub    *Hub
	logger *slog.Logger

	// displayCh is set when the viewer opens its display channel;
	// Apply is only reachable after that (Attach happens on open).
	displayCh atomic.Pointer[webrtc.DataChannel]

	// lastFrame and lastAck are unix-milli frame timestamps: the newest
	// frame sent to this viewer and the newest one it acknowledged.
	// Their difference is this viewer's processing lag.
	lastFrame atomic.Int64
	lastAck   atomic.Int64
}

func newViewer(id string, hub *Hub) (*Viewer, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	v := &Viewer{
		ID:     id,
		pc:     pc,
		codec:  hub.codec,
		hub:    hub,
		logger: hub.logger.With("viewer", id),
	}

	// Data channels are created by the viewer side.
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		switch dc.Label() {
		case "display":
			dc.OnOpen(func() {
				v.displayCh.Store(dc)
				hub.display.Attach(v)
				v.logger.Info("viewer attached")
			})
		case "input":
			dc.OnMessage(func(msg webrtc.DataChannelMessage) {
				v.handleInput(msg.Data)
			})
		case "clipboard":
			dc.OnMessage(func(msg webrtc.DataChannelMessage) {
				hub.input.SendClipboard(string(msg.Data))
			})
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		v.logger.Debug("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			hub.RemoveViewer(v.ID)
		}
	})

	return v, nil
}

// Apply implements display.Sink. Called with the display lock held, so
// it only encodes and hands the payload to the data channel.
func (v *Viewer) Apply(op display.Op) error {
	dc := v.displayCh.Load()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("display channel not open")
	}

	data, err := v.codec.EncodeOp(op)
	if err != nil {
		return err
	}
	if err := dc.Send(data); err != nil {
		return fmt.Errorf("display send: %w", err)
	}

	if op.Kind == display.OpFrameEnd {
		v.lastFrame.Store(op.Timestamp.UnixMilli())
	}
	return nil
}

// Lag returns how far this viewer's frame processing is behind the
// newest frame sent to it. Zero until the first ack arrives.
func (v *Viewer) Lag() time.Duration {
	ack := v.lastAck.Load()
	if ack == 0 {
		return 0
	}
	lag := v.lastFrame.Load() - ack
	if lag < 0 {
		return 0
	}
	return time.Duration(lag) * time.Millisecond
}

func (v *Viewer) handleInput(data []byte) {
	var ev InputEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	switch ev.Type {
	case "pointer":
		v.hub.input.SendPointer(ev.X, ev.Y, ev.Buttons)
	case "key":
		v.hub.input.SendKey(ev.Keysym, ev.Down)
	case "ack":
		v.lastAck.Store(ev.Timestamp)
	}
}

// sendAbort pushes a terminal abort message, best effort.
func (v *Viewer) sendAbort(status, reason string) {
	dc := v.displayCh.Load()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return
	}
	if data, err := v.codec.EncodeAbort(status, reason); err == nil {
		dc.Send(data)
	}
}

func (v *Viewer) close() {
	v.pc.Close()
}
