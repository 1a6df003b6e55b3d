package domain

// Session is a snapshot of the process-wide authentication state.
// While Resolving is true no navigation decision may be made. Once
// resolved, User is either a fully populated profile or nil.
type Session struct {
	User      *UserProfile `json:"user"`
	Resolving bool         `json:"resolving"`
}

// AuthEventKind names the notifications an identity provider can push
// after startup (e.g. from another tab or a token refresh).
type AuthEventKind string

const (
	AuthSignedIn  AuthEventKind = "SIGNED_IN"
	AuthSignedOut AuthEventKind = "SIGNED_OUT"
)

// AuthEvent is an external auth-state-change notification. Identity is
// only set for SIGNED_IN. Events must be safe to apply idempotently.
type AuthEvent struct {
	Kind     AuthEventKind
	Identity *RemoteIdentity
}
