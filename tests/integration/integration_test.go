package integration_test

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

// stack is the fully wired offline shell for end-to-end tests.
type stack struct {
	router http.Handler
}

func newStack(t *testing.T, statePath string) *stack {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	mirror := localstore.NewFileStore(statePath, logger)

	sessions := service.NewSessionService(
		nil, nil, mirror,
		cache.New[*domain.ProfileRecord](5*time.Minute),
		metrics, logger,
	)
	t.Cleanup(sessions.Close)

	nav := service.NewNavigator(sessions, metrics, logger)
	records := service.NewRecordsService(nil, sessions, metrics, logger)
	sessions.Resolve(context.Background())

	return &stack{
		router: handler.NewRouter(sessions, nav, records, metrics, logger),
	}
}

func (s *stack) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// TestIntegration_OfflineLifecycle walks the complete offline flow:
// sign-up, sign-in, navigation under policy, records, logout.
func TestIntegration_OfflineLifecycle(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "olipack_state.json")
	s := newStack(t, statePath)

	// Fresh process: resolved, no user, menu empty.
	rec := s.do(t, http.MethodGet, "/v1/session", nil)
	var sess domain.Session
	json.NewDecoder(rec.Body).Decode(&sess)
	if sess.Resolving || sess.User != nil {
		t.Fatalf("expected resolved empty session, got %+v", sess)
	}

	// Sign up a collector.
	rec = s.do(t, http.MethodPost, "/v1/auth/signup", map[string]string{
		"email":     "leila@olipack.ma",
		"password":  "harvest2025",
		"firstName": "Leila",
		"lastName":  "Amrani",
		"role":      "COLLECTOR",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Sign in with the new account.
	rec = s.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "leila@olipack.ma", "password": "harvest2025",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var user domain.UserProfile
	json.NewDecoder(rec.Body).Decode(&user)
	if user.Role != domain.RoleCollector {
		t.Fatalf("expected COLLECTOR, got %q", user.Role)
	}

	// Collector navigation: strategy allowed, studio denied.
	rec = s.do(t, http.MethodPost, "/v1/navigation", map[string]string{"target": "strategy"})
	var state struct {
		Active domain.Section `json:"active"`
	}
	json.NewDecoder(rec.Body).Decode(&state)
	if state.Active != domain.SectionStrategy {
		t.Errorf("expected strategy accepted, got %q", state.Active)
	}

	rec = s.do(t, http.MethodPost, "/v1/navigation", map[string]string{"target": "studio"})
	json.NewDecoder(rec.Body).Decode(&state)
	if state.Active != domain.SectionStrategy {
		t.Errorf("expected studio denied, section unchanged, got %q", state.Active)
	}

	// Record a collection run.
	rec = s.do(t, http.MethodPost, "/v1/collections", map[string]any{
		"region": "Meknes", "volume_kg": 340.0,
	})
	if rec.Code != http.StatusAccepted {
		t.Errorf("collection: expected 202, got %d", rec.Code)
	}

	// Logout: session empty, navigation back to home.
	rec = s.do(t, http.MethodPost, "/v1/auth/logout", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/v1/navigation", nil)
	json.NewDecoder(rec.Body).Decode(&state)
	if state.Active != domain.SectionHome {
		t.Errorf("expected home after logout, got %q", state.Active)
	}

	rec = s.do(t, http.MethodGet, "/v1/navigation/menu", nil)
	var menu struct {
		Sections []domain.Section `json:"sections"`
	}
	json.NewDecoder(rec.Body).Decode(&menu)
	if len(menu.Sections) != 0 {
		t.Errorf("expected empty menu after logout, got %v", menu.Sections)
	}
}

// TestIntegration_SessionSurvivesRestart signs in, tears the stack down
// and rebuilds it over the same state file.
func TestIntegration_SessionSurvivesRestart(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "olipack_state.json")

	first := newStack(t, statePath)
	rec := first.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "admin@olipack.ma", "password": "admin",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}

	// The "restarted" process resolves from the persisted mirror.
	second := newStack(t, statePath)
	rec = second.do(t, http.MethodGet, "/v1/session", nil)
	var sess domain.Session
	json.NewDecoder(rec.Body).Decode(&sess)
	if sess.User == nil || sess.User.Email != "admin@olipack.ma" {
		t.Fatalf("expected restored session, got %+v", sess.User)
	}
	if sess.User.Role != domain.RoleAdmin {
		t.Errorf("expected ADMIN role restored, got %q", sess.User.Role)
	}

	// Restored admin can navigate immediately.
	rec = second.do(t, http.MethodPost, "/v1/navigation", map[string]string{"target": "admin_control"})
	var state struct {
		Active domain.Section `json:"active"`
	}
	json.NewDecoder(rec.Body).Decode(&state)
	if state.Active != domain.SectionAdminControl {
		t.Errorf("expected admin_control accepted, got %q", state.Active)
	}
}

// TestIntegration_SeedAccountsAlwaysPresent verifies both built-in
// accounts authenticate on a pristine state file.
func TestIntegration_SeedAccountsAlwaysPresent(t *testing.T) {
	s := newStack(t, filepath.Join(t.TempDir(), "olipack_state.json"))

	cases := []struct {
		email, password string
		role            domain.Role
	}{
		{"admin@olipack.ma", "admin", domain.RoleAdmin},
		{"maassra@olipack.ma", "maassra", domain.RoleOilMill},
	}
	for _, c := range cases {
		rec := s.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
			"email": c.email, "password": c.password,
		})
		if rec.Code != http.StatusOK {
			t.Errorf("login %s: expected 200, got %d", c.email, rec.Code)
			continue
		}
		var user domain.UserProfile
		json.NewDecoder(rec.Body).Decode(&user)
		if user.Role != c.role {
			t.Errorf("login %s: expected role %s, got %s", c.email, c.role, user.Role)
		}
	}
}
