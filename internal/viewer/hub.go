package viewer

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"vncbridge/internal/display"
)

// Hub owns the set of attached viewers: signaling-driven creation and
// teardown, the worst-case processing lag the pump throttles on, and
// the fatal-abort broadcast.
type Hub struct {
	display *display.Display
	input   InputHandler
	codec   *Codec
	logger  *slog.Logger

	mu      sync.Mutex
	viewers map[string]*Viewer
	closed  bool
}

// NewHub builds a hub feeding input events to input and serving state
// from disp.
func NewHub(disp *display.Display, input InputHandler, logger *slog.Logger) (*Hub, error) {
	if logger == nil {
		logger = slog.Default()
	}
	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}
	return &Hub{
		display: disp,
		input:   input,
		codec:   codec,
		logger:  logger,
		viewers: make(map[string]*Viewer),
	}, nil
}

// CreateViewer negotiates a new peer from an SDP offer and returns the
// viewer ID and the SDP answer. The viewer attaches to the display once
// it opens its display channel.
func (h *Hub) CreateViewer(offerSDP string) (string, string, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", "", fmt.Errorf("hub is shut down")
	}
	h.mu.Unlock()

	id := uuid.New().String()
	v, err := newViewer(id, h)
	if err != nil {
		return "", "", err
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := v.pc.SetRemoteDescription(offer); err != nil {
		v.close()
		return "", "", fmt.Errorf("set remote description: %w", err)
	}

	answer, err := v.pc.CreateAnswer(nil)
	if err != nil {
		v.close()
		return "", "", fmt.Errorf("create answer: %w", err)
	}
	if err := v.pc.SetLocalDescription(answer); err != nil {
		v.close()
		return "", "", fmt.Errorf("set local description: %w", err)
	}

	// Non-trickle: wait for ICE gathering so the answer is complete.
	<-webrtc.GatheringCompletePromise(v.pc)

	h.mu.Lock()
	h.viewers[id] = v
	h.mu.Unlock()

	h.logger.Info("viewer negotiating", "viewer", id)
	return id, v.pc.LocalDescription().SDP, nil
}

// AddCandidates applies trickled ICE candidate lines to a viewer.
func (h *Hub) AddCandidates(id, body string) error {
	h.mu.Lock()
	v, ok := h.viewers[id]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("no viewer %s", id)
	}

	for _, line := range strings.Split(body, "\r\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "a=candidate:") {
			continue
		}
		c := strings.TrimPrefix(line, "a=")
		if err := v.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: c}); err != nil {
			h.logger.Warn("add ice candidate failed", "viewer", id, "error", err)
		}
	}
	return nil
}

// RemoveViewer detaches and closes one viewer. Safe to call twice.
func (h *Hub) RemoveViewer(id string) {
	h.mu.Lock()
	v, ok := h.viewers[id]
	delete(h.viewers, id)
	h.mu.Unlock()
	if !ok {
		return
	}

	h.display.Detach(v)
	v.close()
	h.logger.Info("viewer removed", "viewer", id)
}

// ProcessingLag reports the worst lag across attached viewers. This is
// what the pump reads at each frame start to decide whether to stretch
// the frame.
func (h *Hub) ProcessingLag() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	var worst time.Duration
	for _, v := range h.viewers {
		if lag := v.Lag(); lag > worst {
			worst = lag
		}
	}
	return worst
}

// Abort broadcasts a fatal session failure to every viewer, then shuts
// the hub down.
func (h *Hub) Abort(status, reason string) {
	h.mu.Lock()
	viewers := make([]*Viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.Unlock()

	for _, v := range viewers {
		v.sendAbort(status, reason)
	}
	h.Close()
}

// Close tears down all viewers and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	viewers := h.viewers
	h.viewers = make(map[string]*Viewer)
	h.mu.Unlock()

	for _, v := range viewers {
		h.display.Detach(v)
		v.close()
	}
}
