// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the session and
// navigation logic from concrete implementations, so the remote account
// store and the offline local mirror stay swappable.
package port

import (
	"context"

	"github.com/olipack/olipack-go/internal/domain"
)

// AccountStore is the remote identity + record-storage collaborator.
// A nil AccountStore means the system runs fully offline.
type AccountStore interface {
	// CurrentSession returns the identity of the authenticated session,
	// or nil when none exists. Absence is not an error.
	CurrentSession(ctx context.Context) (*domain.RemoteIdentity, error)

	// SignUp creates credentials with the provider, attaching profile
	// metadata to the identity record.
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.RemoteIdentity, error)

	// SignIn exchanges credentials for an authenticated identity.
	SignIn(ctx context.Context, email, password string) (*domain.RemoteIdentity, error)

	// SignOut terminates the provider-side session.
	SignOut(ctx context.Context) error

	// Profile records, keyed by identity id.
	GetProfile(ctx context.Context, userID string) (*domain.ProfileRecord, error)
	UpsertProfile(ctx context.Context, rec *domain.ProfileRecord) error
	UpdateProfile(ctx context.Context, userID string, updates map[string]any) (*domain.ProfileRecord, error)
	DeleteProfile(ctx context.Context, userID string) error

	// Denormalized event records.
	InsertPrediction(ctx context.Context, p *domain.Prediction) (*domain.Prediction, error)
	PredictionHistory(ctx context.Context) ([]domain.Prediction, error)
	InsertCollectionEvent(ctx context.Context, c *domain.CollectionEvent) (*domain.CollectionEvent, error)
}

// AuthWatcher delivers external auth-state notifications (another tab,
// token refresh). Watch returns a stop function that must be called when
// the session-owning context is torn down.
type AuthWatcher interface {
	Watch(onEvent func(domain.AuthEvent)) (stop func())
}

// KeyValue is the minimal embedded store behind the local session mirror
// and the offline mock-account ledger. Values are JSON blobs; readers must
// tolerate absent or malformed values by treating them as empty.
// Last-write-wins, no locking across processes.
type KeyValue interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Flush()
}
