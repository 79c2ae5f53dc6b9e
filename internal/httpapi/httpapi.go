// Package httpapi is the HTTP surface: it routes
// POST /{apiVersion}/discovery:{resourceType}, decodes the request body,
// and translates a render.Result into an HTTP response. Everything else is
// delegated to the render pipeline.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sovereign/controlplane/internal/render"
)

// Handler owns the render pipeline and exposes the control plane's routes.
type Handler struct {
	pipeline *render.Pipeline
	log      *slog.Logger
}

// NewHandler returns a Handler ready to be mounted with Routes.
func NewHandler(pipeline *render.Pipeline, log *slog.Logger) *Handler {
	return &Handler{pipeline: pipeline, log: log}
}

// Routes returns the ServeMux with the discovery route registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{apiVersion}/{discoverySegment}", h.discover)
	return mux
}

func (h *Handler) discover(w http.ResponseWriter, r *http.Request) {
	apiVersion := r.PathValue("apiVersion")
	segment := r.PathValue("discoverySegment")

	prefix, resourceType, ok := strings.Cut(segment, ":")
	if !ok || prefix != "discovery" {
		http.NotFound(w, r)
		return
	}

	var req render.DiscoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result := h.pipeline.Handle(r.Context(), apiVersion, resourceType, req)

	h.log.Debug("handled discovery request",
		"api_version", apiVersion,
		"resource_type", resourceType,
		"cluster", req.Node.Cluster,
		"status", result.Status,
	)

	if result.ContentType != "" {
		w.Header().Set("Content-Type", result.ContentType)
	}
	w.WriteHeader(result.Status)
	if len(result.Body) > 0 {
		_, _ = w.Write(result.Body)
	}
}
