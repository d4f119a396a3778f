package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
	})

	// Frontend WebSocket endpoint
	r.Get(s.wsPath(), s.handleWebSocket)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})

	return r
}

// wsPath returns the configured WebSocket route.
func (s *Server) wsPath() string {
	if s.wsCfg.Path != "" {
		return s.wsCfg.Path
	}
	return "/ws"
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"device_link": s.link.IsConnected(),
	})
}

// handleStats returns device link statistics and client counts.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.link.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"link": map[string]any{
			"state":         st.State,
			"connected":     st.Connected,
			"requests_tx":   st.RequestsTx,
			"responses_rx":  st.ResponsesRx,
			"frames_rx":     st.FramesRx,
			"reconnects":    st.ReconnectsTotal,
			"errors":        st.ErrorsTotal,
			"last_activity": st.LastActivity.UTC().Format(time.RFC3339),
		},
		"clients": s.hub.ClientCount(),
	})
}
