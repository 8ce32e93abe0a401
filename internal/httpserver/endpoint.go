package httpserver

import "net/http"

type endpointRoute struct {
	Method  string
	Path    string
	Handler http.Handler
}

// endpoint groups the routes of one admin feature.
type endpoint interface {
	Name() string
	Routes() []endpointRoute
}
