package service

import (
	"sync"

	"github.com/olipack/olipack-go/internal/domain"
	"github.com/olipack/olipack-go/internal/infra/observability"
	"github.com/olipack/olipack-go/internal/policy"

	"go.uber.org/zap"
)

// Navigator is the state machine over the active section. It never
// commits a transition the access policy denies, and it resets to Home
// whenever the session loses its user. It runs for the life of the
// process; there is no terminal state, only resets.
type Navigator struct {
	sessions *SessionService
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu     sync.Mutex
	active domain.Section
}

// NewNavigator wires the controller to the session service and hooks
// session transitions: any change of "current user" re-validates the
// active section.
func NewNavigator(sessions *SessionService, metrics *observability.Metrics, logger *zap.Logger) *Navigator {
	n := &Navigator{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		active:   domain.SectionHome,
	}

	sessions.OnChange(func(user *domain.UserProfile) {
		if user == nil {
			n.Reset()
			return
		}
		n.revalidate(user.Role)
	})
	return n
}

// Active returns the currently displayed section.
func (n *Navigator) Active() domain.Section {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// Request attempts a transition to target. The transition commits only
// when the session is resolved, a user is present, and the policy allows
// the target for the user's role. A denied request is a silent no-op;
// the only trace is a debug log and a metric.
func (n *Navigator) Request(target domain.Section) domain.Section {
	sess := n.sessions.Current()
	if sess.Resolving || sess.User == nil {
		n.metrics.IncrNavRequest("denied")
		n.logger.Debug("navigation denied: no resolved session",
			zap.String("target", string(target)),
		)
		return n.Active()
	}

	if !policy.Visible(sess.User.Role, target) {
		n.metrics.IncrNavRequest("denied")
		n.logger.Debug("navigation denied by policy",
			zap.String("role", string(sess.User.Role)),
			zap.String("target", string(target)),
		)
		return n.Active()
	}

	n.mu.Lock()
	n.active = target
	n.mu.Unlock()
	n.metrics.IncrNavRequest("accepted")
	return target
}

// Reset forces the active section back to Home, regardless of policy.
// Invoked whenever the session transitions to "no user".
func (n *Navigator) Reset() {
	n.mu.Lock()
	n.active = domain.SectionHome
	n.mu.Unlock()
}

// revalidate enforces the visibility invariant after a role change: if
// the active section is no longer visible, fall back to Home.
func (n *Navigator) revalidate(role domain.Role) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !policy.Visible(role, n.active) {
		n.logger.Debug("active section no longer visible, resetting",
			zap.String("role", string(role)),
		)
		n.active = domain.SectionHome
	}
}

// Menu returns the sections the current role may see, in menu order.
// An unresolved or empty session sees nothing.
func (n *Navigator) Menu() []domain.Section {
	sess := n.sessions.Current()
	if sess.Resolving || sess.User == nil {
		return []domain.Section{}
	}
	return policy.VisibleSections(sess.User.Role)
}
