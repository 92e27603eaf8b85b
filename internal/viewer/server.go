package viewer

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ServerConfig holds the signaling server configuration.
type ServerConfig struct {
	Addr  string
	Token string

	// TLSConfig, if set, serves signaling over TLS.
	TLSConfig *tls.Config
}

// Server is the HTTP signaling endpoint viewers use to negotiate their
// peer connection: POST an SDP offer, receive the answer plus a
// Location for trickling candidates and hanging up.
type Server struct {
	cfg    ServerConfig
	hub    *Hub
	logger *slog.Logger
}

// NewServer wires a signaling server to hub.
func NewServer(cfg ServerConfig, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, hub: hub, logger: logger}
}

// ListenAndServe blocks serving signaling requests.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", s.handleOffer)
	mux.HandleFunc("PATCH /session/{id}", s.handlePatch)
	mux.HandleFunc("DELETE /session/{id}", s.handleDelete)
	mux.HandleFunc("OPTIONS /session", s.handleOptions)
	mux.HandleFunc("OPTIONS /session/{id}", s.handleOptions)

	s.logger.Info("signaling server listening", "addr", s.cfg.Addr, "tls", s.cfg.TLSConfig != nil)

	srv := &http.Server{Addr: s.cfg.Addr, Handler: mux, TLSConfig: s.cfg.TLSConfig}
	if s.cfg.TLSConfig != nil {
		return srv.ListenAndServeTLS("", "")
	}
	return srv.ListenAndServe()
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Expose-Headers", "Location")
	w.WriteHeader(204)
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Expose-Headers", "Location")

	if !s.checkAuth(r) {
		http.Error(w, "unauthorized", 401)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", 400)
		return
	}

	id, answer, err := s.hub.CreateViewer(string(body))
	if err != nil {
		s.logger.Warn("viewer create failed", "error", err)
		http.Error(w, "bad SDP offer", 400)
		return
	}

	w.Header().Set("Content-Type", "application/sdp")
	w.Header().Set("Location", fmt.Sprintf("/session/%s", id))
	w.WriteHeader(201)
	w.Write([]byte(answer))
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if !s.checkAuth(r) {
		http.Error(w, "unauthorized", 401)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", 400)
		return
	}

	if err := s.hub.AddCandidates(r.PathValue("id"), string(body)); err != nil {
		http.Error(w, "not found", 404)
		return
	}
	w.WriteHeader(204)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if !s.checkAuth(r) {
		http.Error(w, "unauthorized", 401)
		return
	}

	s.hub.RemoveViewer(r.PathValue("id"))
	w.WriteHeader(200)
}

func (s *Server) checkAuth(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+s.cfg.Token
}
