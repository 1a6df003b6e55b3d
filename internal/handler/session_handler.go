package handler

import (
	"encoding/json"
	"net/http"

	"github.com/olipack/olipack-go/internal/domain"
	"github.com/olipack/olipack-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Session state
// ============================================================

func getSessionHandler(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/session")
		defer span.End()

		writeJSON(w, http.StatusOK, sessions.Current())
	}
}

// sessionEventRequest mirrors the notifications an identity provider
// pushes: the event kind plus, for SIGNED_IN, the identity payload.
type sessionEventRequest struct {
	Kind     string `json:"kind"`
	Identity *struct {
		ID          string         `json:"id"`
		Email       string         `json:"email"`
		Metadata    map[string]any `json:"metadata"`
		AccessToken string         `json:"accessToken"`
	} `json:"identity"`
}

func postSessionEventHandler(sessions *service.SessionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/session/events")
		defer span.End()

		var req sessionEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		kind := domain.AuthEventKind(req.Kind)
		if kind != domain.AuthSignedIn && kind != domain.AuthSignedOut {
			writeError(w, http.StatusBadRequest, "unknown event kind")
			return
		}

		ev := domain.AuthEvent{Kind: kind}
		if req.Identity != nil {
			ev.Identity = &domain.RemoteIdentity{
				ID:          req.Identity.ID,
				Email:       req.Identity.Email,
				Metadata:    req.Identity.Metadata,
				AccessToken: req.Identity.AccessToken,
			}
		}

		sessions.ApplyAuthEvent(ev)
		logger.Debug("auth event applied", zap.String("kind", req.Kind))
		writeJSON(w, http.StatusOK, sessions.Current())
	}
}
