package handler

import (
	"encoding/json"
	"net/http"

	"github.com/olipack/olipack-go/internal/domain"
	"github.com/olipack/olipack-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Records — predictions and collection events
// ============================================================

// requireUser rejects the request when no resolved session user exists.
func requireUser(w http.ResponseWriter, sessions *service.SessionService) bool {
	sess := sessions.Current()
	if sess.Resolving || sess.User == nil {
		writeError(w, http.StatusUnauthorized, "no authenticated session")
		return false
	}
	return true
}

func postPredictionHandler(records *service.RecordsService, sessions *service.SessionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/predictions")
		defer span.End()

		if !requireUser(w, sessions) {
			return
		}

		var req domain.Prediction
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Kind == "" {
			writeError(w, http.StatusBadRequest, "kind is required")
			return
		}

		saved := records.SavePrediction(ctx, req)
		logger.Debug("prediction saved", zap.String("id", saved.ID), zap.String("kind", saved.Kind))
		writeJSON(w, http.StatusAccepted, saved)
	}
}

func getPredictionsHandler(records *service.RecordsService, sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/predictions")
		defer span.End()

		if !requireUser(w, sessions) {
			return
		}

		history := records.PredictionHistory(ctx)
		writeJSON(w, http.StatusOK, map[string]any{
			"predictions": history,
			"count":       len(history),
		})
	}
}

func postCollectionHandler(records *service.RecordsService, sessions *service.SessionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/collections")
		defer span.End()

		if !requireUser(w, sessions) {
			return
		}

		var req domain.CollectionEvent
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Region == "" {
			writeError(w, http.StatusBadRequest, "region is required")
			return
		}
		if req.VolumeKG <= 0 {
			writeError(w, http.StatusBadRequest, "volume_kg must be positive")
			return
		}

		saved := records.SaveCollectionEvent(ctx, req)
		logger.Debug("collection event saved", zap.String("id", saved.ID), zap.String("region", saved.Region))
		writeJSON(w, http.StatusAccepted, saved)
	}
}
