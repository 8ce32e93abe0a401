package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tokligence/tokligence-iosched/internal/device"
	"github.com/tokligence/tokligence-iosched/internal/scheduler"
)

type devicesEndpoint struct {
	server *Server
}

func newDevicesEndpoint(server *Server) endpoint {
	return &devicesEndpoint{server: server}
}

func (e *devicesEndpoint) Name() string { return "devices" }

func (e *devicesEndpoint) Routes() []endpointRoute {
	s := e.server
	return []endpointRoute{
		{Method: http.MethodGet, Path: "/admin/devices", Handler: http.HandlerFunc(s.handleListDevices)},
		{Method: http.MethodPost, Path: "/admin/devices", Handler: http.HandlerFunc(s.handleActivateDevice)},
		{Method: http.MethodDelete, Path: "/admin/devices/{id}", Handler: http.HandlerFunc(s.handleDeactivateDevice)},
		{Method: http.MethodGet, Path: "/admin/devices/{id}/stats", Handler: http.HandlerFunc(s.handleDeviceStats)},
		{Method: http.MethodGet, Path: "/admin/devices/{id}/history", Handler: http.HandlerFunc(s.handleDeviceHistory)},
		{Method: http.MethodPost, Path: "/admin/devices/{id}/requests", Handler: http.HandlerFunc(s.handleSubmit)},
		{Method: http.MethodPost, Path: "/admin/devices/{id}/dispatch", Handler: http.HandlerFunc(s.handleDispatch)},
		{Method: http.MethodPost, Path: "/admin/devices/{id}/flush", Handler: http.HandlerFunc(s.handleFlush)},
	}
}

type deviceSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Active  bool   `json:"active"`
	Queues  int    `json:"queues"`
	Backlog uint64 `json:"backlog"`
}

type submitRequest struct {
	Class   string `json:"class"`
	Level   int    `json:"level"`
	Sector  uint64 `json:"sector"`
	Sectors uint32 `json:"sectors"`
	Write   bool   `json:"write"`
	Merge   bool   `json:"merge"`
}

type requestView struct {
	ID      string `json:"id"`
	Tag     string `json:"tag"`
	Sector  uint64 `json:"sector"`
	Sectors uint32 `json:"sectors"`
	Write   bool   `json:"write"`
}

func viewOf(req *scheduler.Request) requestView {
	return requestView{
		ID:      req.ID,
		Tag:     req.Tag.String(),
		Sector:  req.Sector,
		Sectors: req.Sectors,
		Write:   req.Write,
	}
}

func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	id := chi.URLParam(r, "id")
	d, ok := s.devices.Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("%w: %s", device.ErrNotFound, id))
		return nil, false
	}
	return d, true
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	snaps := s.devices.Snapshots()
	out := make([]deviceSummary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, deviceSummary{
			ID:      snap.ID,
			Name:    snap.Name,
			Active:  snap.Active,
			Queues:  len(snap.Queues),
			Backlog: snap.TotalBacklog(),
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"devices": out})
}

func (s *Server) handleActivateDevice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	d, err := s.devices.Activate(body.Name)
	switch {
	case errors.Is(err, device.ErrExists):
		s.respondError(w, http.StatusConflict, err)
		return
	case err != nil:
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"id": d.ID, "name": d.Name})
}

// handleDeactivateDevice detaches a device. Pending requests are flushed
// first; tearing down a non-empty scheduler is never exposed over HTTP.
func (s *Server) handleDeactivateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.devices.Deactivate(id, true)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"deactivated": id, "flushed": n})
}

func (s *Server) handleDeviceStats(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, d.Snapshot())
}

func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respondError(w, http.StatusNotImplemented, errors.New("snapshot ledger disabled"))
		return
	}
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	queue := r.URL.Query().Get("queue")
	if queue == "" {
		entries, err := s.ledger.Latest(r.Context(), d.Name)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"device": d.Name, "entries": entries})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.ledger.History(r.Context(), d.Name, queue, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"device": d.Name, "queue": queue, "entries": entries})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if body.Sectors == 0 {
		body.Sectors = 1
	}
	tag := scheduler.Tag{Class: scheduler.ParseClass(body.Class), Level: body.Level}
	req := d.NewRequest(tag, body.Sector, body.Sectors, body.Write)
	q, err := d.Submit(req)
	if err != nil {
		s.respondError(w, http.StatusConflict, err)
		return
	}
	resp := map[string]any{
		"request":     viewOf(req),
		"queue":       d.QueueName(q),
		"queue_index": q,
	}
	if body.Merge {
		absorbed, err := d.Merge(req)
		if err != nil {
			s.respondError(w, http.StatusConflict, err)
			return
		}
		if absorbed != nil {
			resp["merged"] = viewOf(absorbed)
		}
	}
	s.respondJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	count := 1
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid count %q", v))
			return
		}
		count = n
	}
	out := make([]requestView, 0, count)
	for i := 0; i < count; i++ {
		req, ok := d.Dispatch()
		if !ok {
			break
		}
		out = append(out, viewOf(req))
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"dispatched": out})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"flushed": d.Flush()})
}
