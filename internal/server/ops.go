package server

import (
	"context"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Health(ctx); err != nil {
		h.logger.Warn("healthz.failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) backlog(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Backlog.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, r, status.Errorf(codes.Internal, "backlog snapshot: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) rules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Rules.ListSuggestionRules(r.Context())
	if err != nil {
		h.writeError(w, r, status.Errorf(codes.Internal, "list rules: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}
