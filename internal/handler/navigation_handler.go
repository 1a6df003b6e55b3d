package handler

import (
	"encoding/json"
	"net/http"

	"github.com/olipack/olipack-go/internal/domain"
	"github.com/olipack/olipack-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Navigation
// ============================================================

type navigationState struct {
	Active domain.Section `json:"active"`
}

func getNavigationHandler(nav *service.Navigator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/navigation")
		defer span.End()

		writeJSON(w, http.StatusOK, navigationState{Active: nav.Active()})
	}
}

type navigationRequest struct {
	Target string `json:"target"`
}

// postNavigationHandler requests a section transition. A denied request
// is not an HTTP error: the response simply carries the unchanged
// active section.
func postNavigationHandler(nav *service.Navigator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/navigation")
		defer span.End()

		var req navigationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		target, ok := domain.ParseSection(req.Target)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown section")
			return
		}

		active := nav.Request(target)
		logger.Debug("navigation request",
			zap.String("target", req.Target),
			zap.String("active", string(active)),
		)
		writeJSON(w, http.StatusOK, navigationState{Active: active})
	}
}

func getMenuHandler(nav *service.Navigator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/navigation/menu")
		defer span.End()

		writeJSON(w, http.StatusOK, map[string][]domain.Section{"sections": nav.Menu()})
	}
}
