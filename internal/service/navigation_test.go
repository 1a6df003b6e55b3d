package service_test

import (
	"context"
	"testing"

	"github.com/olipack/olipack-go/internal/domain"
	"github.com/olipack/olipack-go/internal/infra/observability"
	"github.com/olipack/olipack-go/internal/service"

	"go.uber.org/zap"
)

// navFixture wires a Navigator over a fully offline session service.
func navFixture(t *testing.T) (*service.SessionService, *service.Navigator) {
	t.Helper()
	sessions := newOfflineService(newMemKV())
	nav := service.NewNavigator(sessions, observability.NewMetrics(), zap.NewNop())
	sessions.Resolve(context.Background())
	return sessions, nav
}

func signInSeed(t *testing.T, sessions *service.SessionService, email, password string) {
	t.Helper()
	if _, err := sessions.SignIn(context.Background(), email, password); err != nil {
		t.Fatalf("sign-in %s: %v", email, err)
	}
}

// signInAs installs a user with an arbitrary role via an external
// auth event, for roles the seed list does not cover.
func signInAs(sessions *service.SessionService, role domain.Role) {
	sessions.ApplyAuthEvent(domain.AuthEvent{
		Kind: domain.AuthSignedIn,
		Identity: &domain.RemoteIdentity{
			ID:       "uid-" + string(role),
			Email:    "user@olipack.ma",
			Metadata: map[string]any{"role": string(role)},
		},
	})
}

func TestNavigator_StartsAtHome(t *testing.T) {
	_, nav := navFixture(t)
	if nav.Active() != domain.SectionHome {
		t.Errorf("expected initial section home, got %q", nav.Active())
	}
}

func TestNavigator_DeniedWhileResolving(t *testing.T) {
	sessions := newOfflineService(newMemKV())
	nav := service.NewNavigator(sessions, observability.NewMetrics(), zap.NewNop())

	// Resolve has not run: the session is still resolving.
	if got := nav.Request(domain.SectionDashboard); got != domain.SectionHome {
		t.Errorf("expected request denied while resolving, got %q", got)
	}
}

func TestNavigator_DeniedWithoutUser(t *testing.T) {
	_, nav := navFixture(t)

	if got := nav.Request(domain.SectionDashboard); got != domain.SectionHome {
		t.Errorf("expected request denied without user, got %q", got)
	}
}

func TestNavigator_PolicyDenialLeavesSectionUnchanged(t *testing.T) {
	sessions, nav := navFixture(t)
	signInAs(sessions, domain.RoleCollector)

	if got := nav.Request(domain.SectionDashboard); got != domain.SectionDashboard {
		t.Fatalf("expected dashboard accepted for COLLECTOR, got %q", got)
	}

	// Studio is not in the COLLECTOR set: deny, keep dashboard.
	if got := nav.Request(domain.SectionStudio); got != domain.SectionDashboard {
		t.Errorf("expected studio denied, section unchanged, got %q", got)
	}
	if nav.Active() != domain.SectionDashboard {
		t.Errorf("expected active section unchanged, got %q", nav.Active())
	}
}

func TestNavigator_AdminSeesEverySection(t *testing.T) {
	sessions, nav := navFixture(t)
	signInSeed(t, sessions, "admin@olipack.ma", "admin")

	for _, section := range domain.AllSections {
		if got := nav.Request(section); got != section {
			t.Errorf("expected %q accepted for ADMIN, got %q", section, got)
		}
	}
}

func TestNavigator_UniversalSectionsForEveryRole(t *testing.T) {
	roles := []domain.Role{domain.RoleAdmin, domain.RoleTechnician, domain.RoleCollector, domain.RoleOilMill}
	for _, role := range roles {
		sessions, nav := navFixture(t)
		signInAs(sessions, role)

		for _, section := range []domain.Section{domain.SectionAtelier, domain.SectionProfile} {
			if got := nav.Request(section); got != section {
				t.Errorf("role %s: expected universal section %q accepted, got %q", role, section, got)
			}
		}
	}
}

func TestNavigator_LogoutResetsToHome(t *testing.T) {
	sessions, nav := navFixture(t)
	signInSeed(t, sessions, "admin@olipack.ma", "admin")

	nav.Request(domain.SectionAdminControl)
	if nav.Active() != domain.SectionAdminControl {
		t.Fatalf("expected admin_control active, got %q", nav.Active())
	}

	sessions.Logout(context.Background())
	if nav.Active() != domain.SectionHome {
		t.Errorf("expected reset to home after logout, got %q", nav.Active())
	}
}

func TestNavigator_ExternalSignOutResetsToHome(t *testing.T) {
	sessions, nav := navFixture(t)
	signInAs(sessions, domain.RoleOilMill)

	nav.Request(domain.SectionAssistant)
	sessions.ApplyAuthEvent(domain.AuthEvent{Kind: domain.AuthSignedOut})

	if nav.Active() != domain.SectionHome {
		t.Errorf("expected reset to home after external sign-out, got %q", nav.Active())
	}
}

func TestNavigator_RoleChangeRevalidatesActiveSection(t *testing.T) {
	sessions, nav := navFixture(t)
	signInAs(sessions, domain.RoleAdmin)

	nav.Request(domain.SectionStudio)

	// Another sign-in with a narrower role: studio is gone.
	signInAs(sessions, domain.RoleCollector)
	if nav.Active() != domain.SectionHome {
		t.Errorf("expected fallback to home for invisible section, got %q", nav.Active())
	}
}

func TestNavigator_MenuMatchesRole(t *testing.T) {
	sessions, nav := navFixture(t)

	if menu := nav.Menu(); len(menu) != 0 {
		t.Errorf("expected empty menu without user, got %v", menu)
	}

	signInAs(sessions, domain.RoleOilMill)
	menu := nav.Menu()
	want := map[domain.Section]bool{
		domain.SectionHome:      true,
		domain.SectionDashboard: true,
		domain.SectionAssistant: true,
		domain.SectionImpact:    true,
		domain.SectionAtelier:   true,
		domain.SectionProfile:   true,
	}
	if len(menu) != len(want) {
		t.Fatalf("expected %d menu entries for OIL_MILL, got %v", len(want), menu)
	}
	for _, section := range menu {
		if !want[section] {
			t.Errorf("unexpected menu entry %q for OIL_MILL", section)
		}
	}
}

func TestNavigator_MenuPreservesOrder(t *testing.T) {
	sessions, nav := navFixture(t)
	signInSeed(t, sessions, "admin@olipack.ma", "admin")

	menu := nav.Menu()
	if len(menu) != len(domain.AllSections) {
		t.Fatalf("expected full menu for ADMIN, got %v", menu)
	}
	for i, section := range domain.AllSections {
		if menu[i] != section {
			t.Errorf("menu[%d]: expected %q, got %q", i, section, menu[i])
		}
	}
}
