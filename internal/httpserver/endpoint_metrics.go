package httpserver

import "net/http"

type metricsEndpoint struct {
	server *Server
}

func newMetricsEndpoint(server *Server) endpoint {
	return &metricsEndpoint{server: server}
}

func (e *metricsEndpoint) Name() string { return "metrics" }

func (e *metricsEndpoint) Routes() []endpointRoute {
	if e.server.metrics == nil {
		return nil
	}
	return []endpointRoute{
		{Method: http.MethodGet, Path: "/metrics", Handler: e.server.metrics},
	}
}
