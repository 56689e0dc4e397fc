// Package handlers exposes the REST and WebSocket surface: room and
// tournament lifecycle under /api, the conversion score/progress
// endpoints, and the WS attach points that hand connections to the hub.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"convtrainer/internal/auth"
	"convtrainer/internal/config"
	"convtrainer/internal/progress"
	"convtrainer/internal/registry"
	"convtrainer/internal/store"
	"convtrainer/internal/ws"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cfg      *config.ServerConfig
	registry *registry.Registry
	hub      *ws.Hub
	auth     *auth.Service
	progress *progress.Service
	store    store.Store
	log      *logrus.Entry
}

// New creates a new handler.
func New(cfg *config.ServerConfig, reg *registry.Registry, hub *ws.Hub, authSvc *auth.Service, prog *progress.Service, st store.Store) *Handler {
	return &Handler{
		cfg:      cfg,
		registry: reg,
		hub:      hub,
		auth:     authSvc,
		progress: prog,
		store:    st,
		log:      logrus.WithField("component", "handlers"),
	}
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON parses a request body into dst; the router's size limiter
// has already capped the body.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// okBody is the {ok:true} reply shared by the action endpoints.
var okBody = map[string]bool{"ok": true}
