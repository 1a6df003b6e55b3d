// Package service — SessionService owns the process-wide session state:
// startup resolution, sign-in/sign-up, profile mutations and external
// auth-state notifications. It is the single source of truth for "who is
// the current user".
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/olipack/olipack-go/internal/domain"
	"github.com/olipack/olipack-go/internal/infra/observability"
	"github.com/olipack/olipack-go/internal/infra/resilience"
	"github.com/olipack/olipack-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"
)

var sessionTracer = otel.Tracer("service/session")

const (
	// Mirror and ledger keys in the local key-value store.
	mirrorKey = "olipack_user"
	ledgerKey = "olipack_mock_users"

	bcryptCost = 12
)

// ledgerAccount is a persisted offline sign-up record. The password is
// stored hashed; the profile itself never retains a secret.
type ledgerAccount struct {
	domain.UserProfile
	PasswordHash string `json:"passwordHash"`
}

// SessionService reconciles the remote identity provider (when
// configured) with the offline local fallback. A nil store means fully
// offline. All session-mutating operations are serialized through a
// single-slot bulkhead; the rest of the process only observes snapshots.
type SessionService struct {
	store    port.AccountStore
	watcher  port.AuthWatcher
	mirror   port.KeyValue
	profiles port.Cache[*domain.ProfileRecord]
	gate     *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu        sync.Mutex
	user      *domain.UserProfile
	resolving bool
	onChange  func(*domain.UserProfile)
	stopWatch func()
	group     singleflight.Group
}

// NewSessionService creates the session manager. The watcher (if any) is
// subscribed immediately; call Close to release it.
func NewSessionService(
	store port.AccountStore,
	watcher port.AuthWatcher,
	mirror port.KeyValue,
	profiles port.Cache[*domain.ProfileRecord],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SessionService {
	s := &SessionService{
		store:     store,
		watcher:   watcher,
		mirror:    mirror,
		profiles:  profiles,
		gate:      resilience.NewBulkhead(1),
		metrics:   metrics,
		logger:    logger,
		resolving: true,
	}
	if watcher != nil {
		s.stopWatch = watcher.Watch(s.ApplyAuthEvent)
	}
	return s
}

// Close releases the auth-change subscription so a defunct session is
// never acted upon.
func (s *SessionService) Close() {
	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}
}

// OnChange registers the callback invoked whenever "current user"
// transitions. The callback receives nil when the session becomes empty.
// It runs without the session lock held.
func (s *SessionService) OnChange(fn func(*domain.UserProfile)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Current returns a snapshot of the session state.
func (s *SessionService) Current() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.Session{Resolving: s.resolving}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// ============================================================
// Resolve — startup session resolution
// ============================================================

// Resolve establishes the session at startup: remote session first (when
// configured), then the local mirror, then "no user". It never fails:
// every error is absorbed and the resolving flag is cleared in all
// paths. Concurrent callers share a single resolution.
func (s *SessionService) Resolve(ctx context.Context) domain.Session {
	v, _, _ := s.group.Do("resolve", func() (any, error) {
		return s.resolveOnce(ctx), nil
	})
	return v.(domain.Session)
}

func (s *SessionService) resolveOnce(ctx context.Context) domain.Session {
	ctx, span := sessionTracer.Start(ctx, "SessionService.Resolve")
	defer span.End()

	// Tier 1: an authenticated remote session takes precedence over any
	// local mirror.
	if s.store != nil {
		identity, err := s.store.CurrentSession(ctx)
		switch {
		case err != nil:
			s.metrics.IncrStoreError("session")
			s.logger.Debug("session: remote resolution failed", zap.Error(err))
		case identity != nil:
			user := s.formatUser(ctx, identity)
			s.setUser(&user, true)
			s.metrics.IncrSessionResolution("remote")
			s.logger.Info("session resolved from remote store", zap.String("user_id", user.ID))
			return s.finishResolve()
		}
	}

	// Tier 2: the locally persisted mirror. Malformed or empty data
	// reads as "no user".
	if data, ok := s.mirror.Get(mirrorKey); ok {
		var u domain.UserProfile
		if err := json.Unmarshal(data, &u); err != nil {
			s.logger.Debug("session: malformed mirror, ignoring", zap.Error(err))
		} else if u.Email != "" {
			u.Role = domain.ParseRole(string(u.Role))
			u.JobTitle = u.Role.JobTitle()
			u.Password = ""
			s.setUser(&u, false)
			s.metrics.IncrSessionResolution("mirror")
			s.logger.Info("session resolved from local mirror", zap.String("email", u.Email))
			return s.finishResolve()
		}
	}

	s.metrics.IncrSessionResolution("none")
	s.logger.Info("session resolved with no user")
	return s.finishResolve()
}

// finishResolve clears the resolving gate and snapshots the session.
// The gate must be down before the snapshot is taken so the caller
// never observes a terminated resolution as still in flight.
func (s *SessionService) finishResolve() domain.Session {
	s.mu.Lock()
	s.resolving = false
	s.mu.Unlock()
	return s.Current()
}

// ============================================================
// formatUser — three-tier profile resolution
// ============================================================

// profileResolver attempts to derive profile fields for an identity.
// Resolvers are evaluated in order; the first success wins.
type profileResolver func(ctx context.Context, identity *domain.RemoteIdentity) (*domain.UserProfile, error)

// formatUser maps a remote identity into the canonical profile. It never
// fails: profile table, then embedded identity metadata, then hardcoded
// defaults.
func (s *SessionService) formatUser(ctx context.Context, identity *domain.RemoteIdentity) domain.UserProfile {
	ctx, span := sessionTracer.Start(ctx, "SessionService.formatUser")
	defer span.End()

	user := domain.UserProfile{
		FirstName: "User",
		Role:      domain.RoleOilMill,
	}
	if identity == nil {
		user.JobTitle = user.Role.JobTitle()
		return user
	}
	span.SetAttributes(attribute.String("user.id", identity.ID))

	resolvers := []profileResolver{
		s.resolveFromProfileTable,
		s.resolveFromIdentityMetadata,
	}
	for _, resolve := range resolvers {
		resolved, err := resolve(ctx, identity)
		if err != nil {
			s.logger.Debug("session: profile resolver failed, falling through", zap.Error(err))
			continue
		}
		user = *resolved
		break
	}

	// Boundary normalization: the identity record is authoritative for
	// id and email; role is coerced to the enum; the job title is always
	// recomputed.
	user.ID = identity.ID
	user.Email = identity.Email
	if user.FirstName == "" {
		user.FirstName = "User"
	}
	user.Role = domain.ParseRole(string(user.Role))
	user.JobTitle = user.Role.JobTitle()
	user.Password = ""
	return user
}

// resolveFromProfileTable looks up the denormalized profile record,
// through the TTL cache.
func (s *SessionService) resolveFromProfileTable(ctx context.Context, identity *domain.RemoteIdentity) (*domain.UserProfile, error) {
	if s.store == nil {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: identity.ID}
	}

	rec, ok := s.profiles.Get(identity.ID)
	if !ok {
		var err error
		rec, err = s.store.GetProfile(ctx, identity.ID)
		if err != nil {
			return nil, err
		}
		s.profiles.Set(identity.ID, rec)
	}

	return &domain.UserProfile{
		FirstName:  rec.FirstName,
		LastName:   rec.LastName,
		Role:       domain.Role(rec.Role),
		NationalID: rec.NationalID,
		Phone:      rec.Phone,
	}, nil
}

// resolveFromIdentityMetadata reads the profile hints embedded in the
// identity record, falling back to the claims carried by the access
// token when the record has none.
func (s *SessionService) resolveFromIdentityMetadata(_ context.Context, identity *domain.RemoteIdentity) (*domain.UserProfile, error) {
	meta := identity.Metadata
	if len(meta) == 0 && identity.AccessToken != "" {
		meta = metadataFromToken(identity.AccessToken)
	}
	if len(meta) == 0 {
		return nil, fmt.Errorf("identity %s carries no metadata", identity.ID)
	}

	str := func(key string) string {
		v, _ := meta[key].(string)
		return v
	}
	return &domain.UserProfile{
		FirstName:  str("first_name"),
		LastName:   str("last_name"),
		Role:       domain.Role(str("role")),
		NationalID: str("national_id"),
		Phone:      str("phone"),
	}, nil
}

// metadataFromToken decodes the user_metadata claim of a GoTrue access
// token. The signature is not checked here: the token was already
// accepted by the provider, we only mine it for display fields.
func metadataFromToken(token string) map[string]any {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	meta, _ := claims["user_metadata"].(map[string]any)
	return meta
}

// ============================================================
// SignIn / SignUp
// ============================================================

// SignIn authenticates a user. Offline mode matches the seed list and
// the persisted ledger; online mode delegates to the provider. Either
// path is all-or-nothing: no partial session is ever established.
func (s *SessionService) SignIn(ctx context.Context, email, password string) (*domain.UserProfile, error) {
	ctx, span := sessionTracer.Start(ctx, "SessionService.SignIn")
	defer span.End()

	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()

	if s.store == nil {
		return s.signInOffline(email, password)
	}

	identity, err := s.store.SignIn(ctx, email, password)
	if err != nil {
		s.metrics.IncrAuthAttempt("signin", "failure")
		s.logger.Warn("sign-in rejected by provider", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	user := s.formatUser(ctx, identity)
	s.commitUser(&user)
	s.metrics.IncrAuthAttempt("signin", "success")
	s.logger.Info("user signed in", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return &user, nil
}

func (s *SessionService) signInOffline(email, password string) (*domain.UserProfile, error) {
	for _, seed := range seedAccounts {
		if seed.profile.Email == email && seed.password == password {
			user := seed.profile.WithoutSecret()
			s.commitUser(&user)
			s.metrics.IncrAuthAttempt("signin", "success")
			s.logger.Info("seed user signed in", zap.String("email", email), zap.String("role", string(user.Role)))
			return &user, nil
		}
	}

	for _, acct := range s.loadLedger() {
		if acct.Email != email {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
			break
		}
		user := acct.UserProfile.WithoutSecret()
		s.commitUser(&user)
		s.metrics.IncrAuthAttempt("signin", "success")
		s.logger.Info("ledger user signed in", zap.String("email", email), zap.String("role", string(user.Role)))
		return &user, nil
	}

	s.metrics.IncrAuthAttempt("signin", "failure")
	s.logger.Warn("sign-in failed: no matching account", zap.String("email", email))
	return nil, &domain.ErrInvalidCredentials{}
}

// SignUp creates an account. It does not establish a session; the caller
// signs in afterwards (or a SIGNED_IN notification arrives).
func (s *SessionService) SignUp(ctx context.Context, candidate domain.UserProfile) (*domain.UserProfile, error) {
	ctx, span := sessionTracer.Start(ctx, "SessionService.SignUp")
	defer span.End()

	if candidate.Email == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "email is required"}
	}
	if candidate.Password == "" {
		return nil, &domain.ErrValidation{Field: "password", Message: "password is required"}
	}

	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()

	candidate.Role = domain.ParseRole(string(candidate.Role))
	candidate.JobTitle = candidate.Role.JobTitle()

	if s.store == nil {
		return s.signUpOffline(candidate)
	}

	metadata := map[string]any{
		"first_name": candidate.FirstName,
		"last_name":  candidate.LastName,
		"role":       string(candidate.Role),
	}
	identity, err := s.store.SignUp(ctx, candidate.Email, candidate.Password, metadata)
	if err != nil {
		s.metrics.IncrAuthAttempt("signup", "failure")
		return nil, err
	}

	// Best-effort denormalized profile record; the auth record is the
	// source of truth and this must not unwind the sign-up.
	rec := &domain.ProfileRecord{
		ID:         identity.ID,
		Email:      candidate.Email,
		FirstName:  candidate.FirstName,
		LastName:   candidate.LastName,
		Role:       string(candidate.Role),
		NationalID: candidate.NationalID,
		Phone:      candidate.Phone,
	}
	if err := s.store.UpsertProfile(ctx, rec); err != nil {
		s.metrics.IncrStoreError("profiles")
		s.logger.Warn("profile upsert after sign-up failed", zap.String("user_id", identity.ID), zap.Error(err))
	}

	s.metrics.IncrAuthAttempt("signup", "success")
	s.logger.Info("user signed up", zap.String("user_id", identity.ID))

	created := candidate.WithoutSecret()
	created.ID = identity.ID
	return &created, nil
}

func (s *SessionService) signUpOffline(candidate domain.UserProfile) (*domain.UserProfile, error) {
	ledger := s.loadLedger()

	for _, seed := range seedAccounts {
		if seed.profile.Email == candidate.Email {
			s.metrics.IncrAuthAttempt("signup", "failure")
			return nil, &domain.ErrDuplicateEmail{Email: candidate.Email}
		}
	}
	for _, acct := range ledger {
		if acct.Email == candidate.Email {
			s.metrics.IncrAuthAttempt("signup", "failure")
			return nil, &domain.ErrDuplicateEmail{Email: candidate.Email}
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(candidate.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	created := candidate.WithoutSecret()
	created.ID = "mock-" + uuid.New().String()

	ledger = append(ledger, ledgerAccount{UserProfile: created, PasswordHash: string(hash)})
	if err := s.saveLedger(ledger); err != nil {
		return nil, fmt.Errorf("persist account ledger: %w", err)
	}

	s.metrics.IncrAuthAttempt("signup", "success")
	s.logger.Info("offline user signed up", zap.String("email", created.Email), zap.String("role", string(created.Role)))
	return &created, nil
}

// ============================================================
// Profile mutations
// ============================================================

// UpdateProfile mutates the mutable profile fields only; role and email
// are immutable post-creation.
func (s *SessionService) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.UserProfile, error) {
	ctx, span := sessionTracer.Start(ctx, "SessionService.UpdateProfile")
	defer span.End()

	if patch.IsEmpty() {
		return nil, &domain.ErrValidation{Field: "body", Message: "no fields to update"}
	}

	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()

	if s.store == nil {
		return s.updateProfileOffline(patch)
	}

	updates := map[string]any{}
	if patch.FirstName != "" {
		updates["first_name"] = patch.FirstName
	}
	if patch.LastName != "" {
		updates["last_name"] = patch.LastName
	}
	if patch.NationalID != "" {
		updates["national_id"] = patch.NationalID
	}
	if patch.Phone != "" {
		updates["phone"] = patch.Phone
	}

	rec, err := s.store.UpdateProfile(ctx, userID, updates)
	if err != nil {
		s.metrics.IncrStoreError("profiles")
		return nil, err
	}
	s.profiles.Delete(userID)

	s.mu.Lock()
	if s.user != nil && s.user.ID == userID {
		s.user.FirstName = rec.FirstName
		s.user.LastName = rec.LastName
		s.user.NationalID = rec.NationalID
		s.user.Phone = rec.Phone
		s.writeMirrorLocked()
	}
	updated := s.user
	s.mu.Unlock()

	if updated != nil && updated.ID == userID {
		u := *updated
		return &u, nil
	}
	return &domain.UserProfile{
		ID:         rec.ID,
		Email:      rec.Email,
		FirstName:  rec.FirstName,
		LastName:   rec.LastName,
		Role:       domain.ParseRole(rec.Role),
		NationalID: rec.NationalID,
		Phone:      rec.Phone,
		JobTitle:   domain.ParseRole(rec.Role).JobTitle(),
	}, nil
}

func (s *SessionService) updateProfileOffline(patch domain.ProfilePatch) (*domain.UserProfile, error) {
	data, ok := s.mirror.Get(mirrorKey)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "session", ID: mirrorKey}
	}

	var u domain.UserProfile
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, &domain.ErrNotFound{Resource: "session", ID: mirrorKey}
	}

	if patch.FirstName != "" {
		u.FirstName = patch.FirstName
	}
	if patch.LastName != "" {
		u.LastName = patch.LastName
	}
	if patch.NationalID != "" {
		u.NationalID = patch.NationalID
	}
	if patch.Phone != "" {
		u.Phone = patch.Phone
	}

	s.mu.Lock()
	if s.user != nil && s.user.Email == u.Email {
		*s.user = u
	}
	s.mu.Unlock()

	payload, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	if err := s.mirror.Set(mirrorKey, payload); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteAccount removes the account and signs out. Online, the remote
// profile deletion and sign-out must both succeed before any local state
// is cleared; a remote failure leaves the session untouched.
func (s *SessionService) DeleteAccount(ctx context.Context, userID string) error {
	ctx, span := sessionTracer.Start(ctx, "SessionService.DeleteAccount")
	defer span.End()

	if err := s.gate.Acquire(ctx); err != nil {
		return err
	}
	defer s.gate.Release()

	if s.store != nil {
		if err := s.store.DeleteProfile(ctx, userID); err != nil {
			s.metrics.IncrStoreError("profiles")
			return err
		}
		if err := s.store.SignOut(ctx); err != nil {
			s.metrics.IncrStoreError("auth")
			return err
		}
		s.profiles.Delete(userID)
	}

	if err := s.mirror.Delete(mirrorKey); err != nil {
		s.logger.Warn("mirror delete failed", zap.Error(err))
	}
	s.clearUser()
	s.logger.Info("account deleted", zap.String("user_id", userID))
	return nil
}

// Logout clears the session. The remote sign-out is best-effort: local
// state is cleared regardless.
func (s *SessionService) Logout(ctx context.Context) {
	ctx, span := sessionTracer.Start(ctx, "SessionService.Logout")
	defer span.End()

	// The remote sign-out goes through the bulkhead, but the local
	// session is cleared no matter what: once the caller asked to log
	// out, a gate failure must not leave them signed in.
	if err := s.gate.Acquire(ctx); err != nil {
		s.logger.Warn("skipping remote sign-out", zap.Error(err))
	} else {
		if s.store != nil {
			if err := s.store.SignOut(ctx); err != nil {
				s.metrics.IncrStoreError("auth")
				s.logger.Warn("remote sign-out failed", zap.Error(err))
			}
		}
		s.gate.Release()
	}

	if err := s.mirror.Delete(mirrorKey); err != nil {
		s.logger.Warn("mirror delete failed", zap.Error(err))
	}
	s.clearUser()
	s.logger.Info("user logged out")
}

// ============================================================
// External auth notifications
// ============================================================

// ApplyAuthEvent applies an external auth-state notification. Events are
// idempotent: applying one whose outcome the session already reflects is
// harmless.
func (s *SessionService) ApplyAuthEvent(ev domain.AuthEvent) {
	s.metrics.IncrAuthEvent(ev.Kind)

	switch ev.Kind {
	case domain.AuthSignedIn:
		if ev.Identity == nil {
			s.logger.Debug("ignoring SIGNED_IN event without identity")
			return
		}
		user := s.formatUser(context.Background(), ev.Identity)
		s.commitUser(&user)
		s.logger.Info("external sign-in applied", zap.String("user_id", user.ID))

	case domain.AuthSignedOut:
		if err := s.mirror.Delete(mirrorKey); err != nil {
			s.logger.Warn("mirror delete failed", zap.Error(err))
		}
		s.clearUser()
		s.logger.Info("external sign-out applied")

	default:
		s.logger.Debug("ignoring unknown auth event", zap.String("kind", string(ev.Kind)))
	}
}

// ============================================================
// Internal state helpers
// ============================================================

// commitUser installs a new current user, refreshes the mirror and
// notifies the change listener.
func (s *SessionService) commitUser(user *domain.UserProfile) {
	s.mu.Lock()
	u := user.WithoutSecret()
	s.user = &u
	s.writeMirrorLocked()
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		snapshot := u
		notify(&snapshot)
	}
}

// setUser installs a resolved user without notifying; used during
// startup resolution where navigation has not initialized yet.
func (s *SessionService) setUser(user *domain.UserProfile, refreshMirror bool) {
	s.mu.Lock()
	u := user.WithoutSecret()
	s.user = &u
	if refreshMirror {
		s.writeMirrorLocked()
	}
	s.mu.Unlock()
}

func (s *SessionService) clearUser() {
	s.mu.Lock()
	s.user = nil
	notify := s.onChange
	s.mu.Unlock()

	s.profiles.Flush()
	if notify != nil {
		notify(nil)
	}
}

// writeMirrorLocked persists the current user. The mirror is advisory:
// write failures are logged, never surfaced.
func (s *SessionService) writeMirrorLocked() {
	if s.user == nil {
		return
	}
	payload, err := json.Marshal(s.user)
	if err != nil {
		s.logger.Warn("mirror marshal failed", zap.Error(err))
		return
	}
	if err := s.mirror.Set(mirrorKey, payload); err != nil {
		s.logger.Warn("mirror write failed", zap.Error(err))
	}
}

func (s *SessionService) loadLedger() []ledgerAccount {
	data, ok := s.mirror.Get(ledgerKey)
	if !ok {
		return nil
	}
	var accounts []ledgerAccount
	if err := json.Unmarshal(data, &accounts); err != nil {
		s.logger.Debug("malformed account ledger, treating as empty", zap.Error(err))
		return nil
	}
	return accounts
}

func (s *SessionService) saveLedger(accounts []ledgerAccount) error {
	payload, err := json.Marshal(accounts)
	if err != nil {
		return err
	}
	return s.mirror.Set(ledgerKey, payload)
}
