// Package httpapi is the collector's HTTP surface: the agent-facing
// ingest endpoints of spec.md §6 and the read-only /ui/api/status*
// projections, grounded on the teacher's internal/alertapi.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/nodalwatch/sentinel/internal/authmw"
	"github.com/nodalwatch/sentinel/internal/monitor"
)

// API holds the dependencies HTTP handlers need.
type API struct {
	logger  log.Logger
	store   monitor.Store
	metrics *monitor.Metrics
}

// New creates an API. store is required; a nil logger is replaced by a
// no-op logger, and metrics may be nil.
func New(logger log.Logger, store monitor.Store, metrics *monitor.Metrics) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if store == nil {
		panic(xerrors.New("store is required"))
	}
	return &API{logger: logger, store: store, metrics: metrics}
}

// RegisterRoutes attaches every endpoint of spec.md §6 to the router.
// adminToken gates the cascading-delete endpoints with authmw.BearerToken;
// an empty adminToken disables them (they 404).
func (a *API) RegisterRoutes(r chi.Router, adminToken string) {
	r.Post("/api/ping", a.handlePing)
	r.Post("/api/set/service/status", a.handleSetServiceStatus)
	r.Post("/api/set/alerts", a.handleSetAlerts)

	r.Get("/ui/api/status", a.handleStatus)
	r.Get("/ui/api/status/server/{id}", a.handleStatus)
	r.Get("/ui/api/status/service/{id}", a.handleStatus)
	r.Get("/ui/api/status/alerts", a.handleAlerts)
	r.Get("/ui/api/status/alerts/server/{id}", a.handleAlerts)
	r.Get("/ui/api/status/alerts/service/{id}", a.handleAlerts)
	r.Get("/ui/api/status/service/{id}/states", a.handleServiceStates)

	if adminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(authmw.BearerToken(adminToken))
			r.Delete("/ui/api/item/server/{id}", a.handleDeleteServer)
			r.Delete("/ui/api/item/service/{id}", a.handleDeleteService)
		})
	}
}

type serverIdentity struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

func (id serverIdentity) spec() monitor.ServerSpec {
	return monitor.ServerSpec{Name: id.Name, Key: id.Key}
}

func peerIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := lastColon(host); i >= 0 {
		return host[:i]
	}
	return host
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

func (a *API) handlePing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Server serverIdentity `json:"server"`
	}
	if !a.decode(w, r, &req) {
		return
	}

	if err := monitor.Ping(r.Context(), a.store, req.Server.spec(), peerIP(r)); err != nil {
		a.writeError(w, r, "ping", err)
		return
	}

	a.observe("ping", "ok")
	a.writeJSON(w, http.StatusOK, map[string]int{"pong": 1})
}

func (a *API) handleSetServiceStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Server   serverIdentity `json:"server"`
		Period   int            `json:"period"`
		Services []struct {
			Name   string `json:"name"`
			State  string `json:"state"`
			Info   string `json:"info"`
			Period *int   `json:"period"`
		} `json:"services"`
	}
	if !a.decode(w, r, &req) {
		return
	}

	reports := make([]monitor.ServiceReport, 0, len(req.Services))
	for _, sv := range req.Services {
		reports = append(reports, monitor.ServiceReport{Name: sv.Name, State: sv.State, Info: sv.Info, Period: sv.Period})
	}

	if err := monitor.IngestServiceStatus(r.Context(), a.store, req.Server.spec(), peerIP(r), req.Period, reports); err != nil {
		a.writeError(w, r, "set_service_status", err)
		return
	}

	a.observe("set_service_status", "ok")
	a.writeJSON(w, http.StatusOK, map[string]int{"ok": 1})
}

func (a *API) handleSetAlerts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Server serverIdentity `json:"server"`
		Alerts []struct {
			Message string `json:"message"`
			Service string `json:"service"`
		} `json:"alerts"`
	}
	if !a.decode(w, r, &req) {
		return
	}

	reports := make([]monitor.AlertReport, 0, len(req.Alerts))
	for _, al := range req.Alerts {
		reports = append(reports, monitor.AlertReport{Message: al.Message, Service: al.Service})
	}

	if err := monitor.IngestAlerts(r.Context(), a.store, req.Server.spec(), peerIP(r), reports); err != nil {
		a.writeError(w, r, "set_alerts", err)
		return
	}

	a.observe("set_alerts", "ok")
	a.writeJSON(w, http.StatusOK, map[string]int{"ok": 1})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if id := chi.URLParam(r, "id"); id != "" {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			a.writeError(w, r, "status", &monitor.ValidationError{Msg: "invalid id"})
			return
		}

		switch {
		case wantsService(r):
			svc, ok, err := a.store.GetService(r.Context(), n)
			if err != nil {
				a.writeError(w, r, "status", err)
				return
			}
			if !ok {
				http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
				return
			}
			a.writeJSON(w, http.StatusOK, svc)
			return
		default:
			srv, ok, err := a.store.GetServer(r.Context(), n)
			if err != nil {
				a.writeError(w, r, "status", err)
				return
			}
			if !ok {
				http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
				return
			}
			a.writeJSON(w, http.StatusOK, srv)
			return
		}
	}

	servers, err := a.store.ListServers(r.Context())
	if err != nil {
		a.writeError(w, r, "status", err)
		return
	}
	services, err := a.store.ListServices(r.Context(), nil)
	if err != nil {
		a.writeError(w, r, "status", err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"servers": servers, "services": services})
}

func (a *API) handleAlerts(w http.ResponseWriter, r *http.Request) {
	var serverID, serviceID *int64
	if id := chi.URLParam(r, "id"); id != "" {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			a.writeError(w, r, "status_alerts", &monitor.ValidationError{Msg: "invalid id"})
			return
		}
		if wantsService(r) {
			serviceID = &n
		} else {
			serverID = &n
		}
	}

	alerts, err := a.store.ListAlerts(r.Context(), serverID, serviceID, sinceParam(r))
	if err != nil {
		a.writeError(w, r, "status_alerts", err)
		return
	}
	a.writeJSON(w, http.StatusOK, alerts)
}

func (a *API) handleServiceStates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		a.writeError(w, r, "service_states", &monitor.ValidationError{Msg: "invalid id"})
		return
	}

	states, err := a.store.ListServiceStates(r.Context(), n, sinceParam(r))
	if err != nil {
		a.writeError(w, r, "service_states", err)
		return
	}
	a.writeJSON(w, http.StatusOK, states)
}

func (a *API) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.writeError(w, r, "delete_server", &monitor.ValidationError{Msg: "invalid id"})
		return
	}
	if err := a.store.DeleteServer(r.Context(), n); err != nil {
		a.writeError(w, r, "delete_server", err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]int{"ok": 1})
}

func (a *API) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.writeError(w, r, "delete_service", &monitor.ValidationError{Msg: "invalid id"})
		return
	}
	if err := a.store.DeleteService(r.Context(), n); err != nil {
		a.writeError(w, r, "delete_service", err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]int{"ok": 1})
}

func wantsService(r *http.Request) bool {
	return containsSegment(r.URL.Path, "/service/")
}

func containsSegment(path, segment string) bool {
	for i := 0; i+len(segment) <= len(path); i++ {
		if path[i:i+len(segment)] == segment {
			return true
		}
	}
	return false
}

func sinceParam(r *http.Request) time.Time {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.writeError(w, r, "decode", &monitor.ValidationError{Msg: "malformed JSON body"})
		return false
	}
	return true
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var valErr *monitor.ValidationError
	var authErr *monitor.AuthError

	switch {
	case errors.As(err, &valErr):
		a.observe(endpoint, "validation_error")
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": valErr.Msg})
	case errors.As(err, &authErr):
		a.observe(endpoint, "auth_error")
		a.writeJSON(w, http.StatusForbidden, map[string]string{"error": authErr.Msg})
	default:
		a.logger.Error(r.Context(), err, "httpapi: internal error", "endpoint", endpoint)
		a.observe(endpoint, "internal_error")
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (a *API) observe(endpoint, outcome string) {
	if a.metrics == nil {
		return
	}
	a.metrics.IngestTotal.WithLabelValues(endpoint, outcome).Inc()
}
