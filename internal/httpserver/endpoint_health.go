package httpserver

import (
	"net/http"
	"time"

	"github.com/tokligence/tokligence-iosched/internal/health"
)

type healthEndpoint struct {
	server *Server
}

func newHealthEndpoint(server *Server) endpoint {
	return &healthEndpoint{server: server}
}

func (e *healthEndpoint) Name() string { return "health" }

func (e *healthEndpoint) Routes() []endpointRoute {
	return []endpointRoute{
		{Method: http.MethodGet, Path: "/healthz", Handler: http.HandlerFunc(e.server.HandleHealth)},
	}
}

// HandleHealth runs the health checks. Without a checker it only reports
// liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"status": health.StatusHealthy,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	status := s.health.Check(r.Context())
	code := http.StatusOK
	if status.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, status)
}
