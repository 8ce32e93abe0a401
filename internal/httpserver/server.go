package httpserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tokligence/tokligence-iosched/internal/device"
	"github.com/tokligence/tokligence-iosched/internal/health"
	"github.com/tokligence/tokligence-iosched/internal/ledger"
)

// Config wires the admin server to the daemon's components. Only Devices is
// required.
type Config struct {
	Devices *device.Registry
	Health  *health.Checker
	Ledger  ledger.Store
	Metrics http.Handler
	Debug   bool
}

// Server exposes the admin API over the device registry.
type Server struct {
	devices *device.Registry
	health  *health.Checker
	ledger  ledger.Store
	metrics http.Handler
	debug   bool
}

// New builds an admin server.
func New(cfg Config) *Server {
	return &Server{
		devices: cfg.Devices,
		health:  cfg.Health,
		ledger:  cfg.Ledger,
		metrics: cfg.Metrics,
		debug:   cfg.Debug,
	}
}

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	r := s.newBaseRouter()
	s.registerEndpoints(r,
		newHealthEndpoint(s),
		newDevicesEndpoint(s),
		newMetricsEndpoint(s),
	)
	return r
}

func (s *Server) newBaseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.debug {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	return r
}

func (s *Server) registerEndpoints(r chi.Router, endpoints ...endpoint) {
	for _, ep := range endpoints {
		if ep == nil {
			continue
		}
		routes := ep.Routes()
		if len(routes) == 0 {
			continue
		}
		s.debugf("registering endpoint %s", ep.Name())
		for _, route := range routes {
			r.Method(route.Method, route.Path, route.Handler)
		}
	}
}

func (s *Server) debugf(format string, args ...any) {
	if s.debug {
		log.Printf("[DEBUG] httpserver: "+format, args...)
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}
