package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/olipack/olipack-go/internal/domain"
	"github.com/olipack/olipack-go/internal/handler"
	"github.com/olipack/olipack-go/internal/infra/cache"
	"github.com/olipack/olipack-go/internal/infra/localstore"
	"github.com/olipack/olipack-go/internal/infra/observability"
	"github.com/olipack/olipack-go/internal/service"

	"go.uber.org/zap"
)

// newTestRouter wires a fully offline stack over a throwaway state file.
func newTestRouter(t *testing.T) (http.Handler, *service.SessionService) {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	mirror := localstore.NewFileStore(filepath.Join(t.TempDir(), "olipack_state.json"), logger)

	sessions := service.NewSessionService(
		nil, nil, mirror,
		cache.New[*domain.ProfileRecord](5*time.Minute),
		metrics, logger,
	)
	t.Cleanup(sessions.Close)

	nav := service.NewNavigator(sessions, metrics, logger)
	records := service.NewRecordsService(nil, sessions, metrics, logger)

	sessions.Resolve(context.Background())
	return handler.NewRouter(sessions, nav, records, metrics, logger), sessions
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, router http.Handler, email, password string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": email, "password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (%s)", email, rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz_ReflectsResolution(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 after resolution, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestGetSession_EmptyAfterResolve(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var sess domain.Session
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Resolving {
		t.Error("expected resolved session")
	}
	if sess.User != nil {
		t.Errorf("expected no user, got %+v", sess.User)
	}
}

func TestLogin_SeedAccount(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "admin@olipack.ma", "password": "admin",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var user domain.UserProfile
	if err := json.NewDecoder(rec.Body).Decode(&user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user.Role != domain.RoleAdmin {
		t.Errorf("expected ADMIN role, got %q", user.Role)
	}
	if user.Password != "" {
		t.Error("expected password never echoed")
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "admin@olipack.ma", "password": "nope",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/auth/login", map[string]string{"email": "x@y.com"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSignUp_ThenLogin(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/auth/signup", map[string]string{
		"email": "new@olipack.ma", "password": "s3cret", "firstName": "Nora", "role": "COLLECTOR",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	login(t, router, "new@olipack.ma", "s3cret")
}

func TestSignUp_DuplicateEmailConflicts(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/auth/signup", map[string]string{
		"email": "admin@olipack.ma", "password": "whatever",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestLogout_ClearsSession(t *testing.T) {
	router, _ := newTestRouter(t)
	login(t, router, "admin@olipack.ma", "admin")

	rec := do(t, router, http.MethodPost, "/v1/auth/logout", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/v1/session", nil)
	var sess domain.Session
	json.NewDecoder(rec.Body).Decode(&sess)
	if sess.User != nil {
		t.Error("expected empty session after logout")
	}
}

func TestUpdateProfile_RequiresSession(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPut, "/v1/profile", map[string]string{"phone": "0612345678"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestUpdateProfile_Offline(t *testing.T) {
	router, _ := newTestRouter(t)
	login(t, router, "maassra@olipack.ma", "maassra")

	rec := do(t, router, http.MethodPut, "/v1/profile", map[string]string{"phone": "0612345678"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var user domain.UserProfile
	if err := json.NewDecoder(rec.Body).Decode(&user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user.Phone != "0612345678" {
		t.Errorf("expected updated phone, got %q", user.Phone)
	}
}

func TestUpdateProfile_EmptyPatchRejected(t *testing.T) {
	router, _ := newTestRouter(t)
	login(t, router, "maassra@olipack.ma", "maassra")

	rec := do(t, router, http.MethodPut, "/v1/profile", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestNavigation_Lifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	// Unauthenticated: requests stay on home.
	rec := do(t, router, http.MethodPost, "/v1/navigation", map[string]string{"target": "dashboard"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var state struct {
		Active domain.Section `json:"active"`
	}
	json.NewDecoder(rec.Body).Decode(&state)
	if state.Active != domain.SectionHome {
		t.Errorf("expected home without user, got %q", state.Active)
	}

	login(t, router, "admin@olipack.ma", "admin")

	rec = do(t, router, http.MethodPost, "/v1/navigation", map[string]string{"target": "admin_control"})
	json.NewDecoder(rec.Body).Decode(&state)
	if state.Active != domain.SectionAdminControl {
		t.Errorf("expected admin_control accepted, got %q", state.Active)
	}

	rec = do(t, router, http.MethodGet, "/v1/navigation", nil)
	json.NewDecoder(rec.Body).Decode(&state)
	if state.Active != domain.SectionAdminControl {
		t.Errorf("expected admin_control active, got %q", state.Active)
	}
}

func TestNavigation_PolicyDenial(t *testing.T) {
	router, _ := newTestRouter(t)
	login(t, router, "maassra@olipack.ma", "maassra")

	// OIL_MILL cannot see studio: no error, section unchanged.
	rec := do(t, router, http.MethodPost, "/v1/navigation", map[string]string{"target": "studio"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var state struct {
		Active domain.Section `json:"active"`
	}
	json.NewDecoder(rec.Body).Decode(&state)
	if state.Active != domain.SectionHome {
		t.Errorf("expected denial to keep home, got %q", state.Active)
	}
}

func TestNavigation_UnknownSection(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/navigation", map[string]string{"target": "garage"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestNavigationMenu_FilteredByRole(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/navigation/menu", nil)
	var menu struct {
		Sections []domain.Section `json:"sections"`
	}
	json.NewDecoder(rec.Body).Decode(&menu)
	if len(menu.Sections) != 0 {
		t.Errorf("expected empty menu without user, got %v", menu.Sections)
	}

	login(t, router, "maassra@olipack.ma", "maassra")

	rec = do(t, router, http.MethodGet, "/v1/navigation/menu", nil)
	json.NewDecoder(rec.Body).Decode(&menu)
	if len(menu.Sections) != 6 {
		t.Errorf("expected 6 sections for OIL_MILL, got %v", menu.Sections)
	}
	for _, s := range menu.Sections {
		if s == domain.SectionStudio || s == domain.SectionAdminControl {
			t.Errorf("unexpected section %q in OIL_MILL menu", s)
		}
	}
}

func TestSessionEvents_SignedInAndOut(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/session/events", map[string]any{
		"kind": "SIGNED_IN",
		"identity": map[string]any{
			"id":       "ext-1",
			"email":    "tab2@olipack.ma",
			"metadata": map[string]any{"first_name": "Tab", "role": "TECHNICIAN"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var sess domain.Session
	json.NewDecoder(rec.Body).Decode(&sess)
	if sess.User == nil || sess.User.Role != domain.RoleTechnician {
		t.Fatalf("expected TECHNICIAN session from event, got %+v", sess.User)
	}

	rec = do(t, router, http.MethodPost, "/v1/session/events", map[string]any{"kind": "SIGNED_OUT"})
	json.NewDecoder(rec.Body).Decode(&sess)
	if sess.User != nil {
		t.Error("expected empty session after SIGNED_OUT event")
	}
}

func TestSessionEvents_UnknownKindRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/session/events", map[string]string{"kind": "TOKEN_REFRESHED_MAYBE"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestPredictions_RequireSession(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/predictions", map[string]any{"kind": "oil_yield"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestPredictions_OfflineFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	login(t, router, "admin@olipack.ma", "admin")

	rec := do(t, router, http.MethodPost, "/v1/predictions", map[string]any{
		"kind": "oil_yield", "inputs": map[string]any{"hectares": 12}, "result": 42.5,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}

	var p domain.Prediction
	json.NewDecoder(rec.Body).Decode(&p)
	if p.ID == "" {
		t.Error("expected generated prediction id")
	}

	rec = do(t, router, http.MethodGet, "/v1/predictions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCollections_Validation(t *testing.T) {
	router, _ := newTestRouter(t)
	login(t, router, "admin@olipack.ma", "admin")

	rec := do(t, router, http.MethodPost, "/v1/collections", map[string]any{"region": "Meknes"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing volume, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/v1/collections", map[string]any{
		"region": "Meknes", "volume_kg": 120.0,
	})
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestSessionMetricsSnapshot(t *testing.T) {
	router, _ := newTestRouter(t)
	login(t, router, "admin@olipack.ma", "admin")
	do(t, router, http.MethodPost, "/v1/navigation", map[string]string{"target": "dashboard"})

	rec := do(t, router, http.MethodGet, "/v1/metrics/session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var snap observability.SessionSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.NavAccepted < 1 {
		t.Errorf("expected at least one accepted navigation, got %v", snap.NavAccepted)
	}
}
