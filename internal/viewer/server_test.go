package viewer

import (
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vncbridge/internal/clipboard"
	"vncbridge/internal/display"
)

type nullInput struct{}

func (nullInput) SendPointer(int, int, uint8) {}
func (nullInput) SendKey(uint32, bool)        {}
func (nullInput) SendClipboard(string)        {}

func newTestServer(t *testing.T) (*Server, *Hub) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	disp := display.New(clipboard.New(), logger)
	hub, err := NewHub(disp, nullInput{}, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(hub.Close)
	return NewServer(ServerConfig{Addr: "127.0.0.1:0", Token: "tok"}, hub, logger), hub
}

func TestOfferRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/session", strings.NewReader("v=0"))
	rec := httptest.NewRecorder()
	s.handleOffer(rec, req)
	if rec.Code != 401 {
		t.Errorf("missing token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("POST", "/session", strings.NewReader("v=0"))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.handleOffer(rec, req)
	if rec.Code != 401 {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
}

func TestOfferRejectsBadSDP(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/session", strings.NewReader("not an sdp offer"))
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	s.handleOffer(rec, req)
	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPatchUnknownViewer(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("PATCH", "/session/nope", strings.NewReader("a=candidate:x"))
	req.SetPathValue("id", "nope")
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	s.handlePatch(rec, req)
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHubClosedRefusesViewers(t *testing.T) {
	_, hub := newTestServer(t)
	hub.Close()

	if _, _, err := hub.CreateViewer("v=0"); err == nil {
		t.Error("closed hub accepted a viewer")
	}
}

func TestHubProcessingLagEmpty(t *testing.T) {
	_, hub := newTestServer(t)
	if lag := hub.ProcessingLag(); lag != 0 {
		t.Errorf("lag with no viewers = %v, want 0", lag)
	}
}

func TestViewerLag(t *testing.T) {
	v := &Viewer{}
	if v.Lag() != 0 {
		t.Error("lag before any ack should be zero")
	}

	now := time.Now().UnixMilli()
	v.lastFrame.Store(now)
	v.lastAck.Store(now - 120)
	if lag := v.Lag(); lag != 120*time.Millisecond {
		t.Errorf("lag = %v, want 120ms", lag)
	}

	// Acks ahead of the newest frame clamp to zero.
	v.lastAck.Store(now + 50)
	if lag := v.Lag(); lag != 0 {
		t.Errorf("lag = %v, want 0", lag)
	}
}
