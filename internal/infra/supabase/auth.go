package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/olipack/olipack-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// GoTrue auth API — sign-up, password grant, sign-out, session
// ============================================================

// gotrueUser maps the identity record GoTrue returns.
type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// gotrueSession maps the token grant response.
type gotrueSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	User         gotrueUser `json:"user"`
}

func (u *gotrueUser) identity(accessToken string) *domain.RemoteIdentity {
	return &domain.RemoteIdentity{
		ID:          u.ID,
		Email:       u.Email,
		Metadata:    u.UserMetadata,
		AccessToken: accessToken,
	}
}

// doAuth executes a request against the GoTrue API.
func (c *Client) doAuth(ctx context.Context, method, path, token string, payload any) ([]byte, error) {
	url := fmt.Sprintf("%s/auth/v1/%s", c.baseURL, path)

	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: auth request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: auth non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		// Provider errors are surfaced verbatim to the caller.
		return nil, fmt.Errorf("auth provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// CurrentSession returns the identity of the provider-side session, or
// nil when no session is held.
func (c *Client) CurrentSession(ctx context.Context) (*domain.RemoteIdentity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CurrentSession")
	defer span.End()

	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	if token == "" {
		return nil, nil
	}

	body, err := c.doAuth(ctx, http.MethodGet, "user", token, nil)
	if err != nil {
		// The access token may simply have expired. One refresh-grant
		// attempt recovers the session before giving up.
		if identity, refreshErr := c.refreshSession(ctx); refreshErr == nil {
			return identity, nil
		}
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	var user gotrueUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if user.ID == "" {
		return nil, nil
	}
	return user.identity(token), nil
}

// refreshSession rotates the session via the refresh-token grant. On
// success both tokens are replaced with the fresh pair.
func (c *Client) refreshSession(ctx context.Context) (*domain.RemoteIdentity, error) {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return nil, fmt.Errorf("no refresh token held")
	}

	payload := map[string]any{"refresh_token": refresh}
	body, err := c.doAuth(ctx, http.MethodPost, "token?grant_type=refresh_token", c.anonKey, payload)
	if err != nil {
		return nil, err
	}

	var sess gotrueSession
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if sess.AccessToken == "" || sess.User.ID == "" {
		return nil, fmt.Errorf("refresh grant returned no session")
	}

	c.setSessionTokens(sess.AccessToken, sess.RefreshToken)
	c.logger.Debug("supabase: session refreshed", zap.String("user_id", sess.User.ID))
	return sess.User.identity(sess.AccessToken), nil
}

// SignUp creates credentials with GoTrue, attaching profile metadata to
// the identity record.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.RemoteIdentity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignUp")
	defer span.End()

	payload := map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	}
	body, err := c.doAuth(ctx, http.MethodPost, "signup", c.anonKey, payload)
	if err != nil {
		return nil, err
	}

	// Depending on confirmation settings GoTrue answers with either a
	// bare user or a full session.
	var sess gotrueSession
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("decode signup response: %w", err)
	}
	if sess.User.ID == "" {
		var user gotrueUser
		if err := json.Unmarshal(body, &user); err != nil {
			return nil, fmt.Errorf("decode signup user: %w", err)
		}
		return user.identity(""), nil
	}
	if sess.AccessToken != "" {
		c.setSessionTokens(sess.AccessToken, sess.RefreshToken)
	}
	return sess.User.identity(sess.AccessToken), nil
}

// SignIn exchanges credentials for a session via the password grant.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.RemoteIdentity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignIn")
	defer span.End()

	payload := map[string]any{"email": email, "password": password}
	body, err := c.doAuth(ctx, http.MethodPost, "token?grant_type=password", c.anonKey, payload)
	if err != nil {
		return nil, err
	}

	var sess gotrueSession
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if sess.AccessToken == "" || sess.User.ID == "" {
		return nil, &domain.ErrInvalidCredentials{}
	}

	c.setSessionTokens(sess.AccessToken, sess.RefreshToken)
	return sess.User.identity(sess.AccessToken), nil
}

// SignOut terminates the provider-side session and drops local tokens.
// Local tokens are cleared even when the remote call fails.
func (c *Client) SignOut(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.SignOut")
	defer span.End()

	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()

	c.setSessionTokens("", "")
	if token == "" {
		return nil
	}

	_, err := c.doAuth(ctx, http.MethodPost, "logout", token, nil)
	return err
}

// ============================================================
// Auth watcher — polls the provider session for external changes
// (sign-out elsewhere, token expiry) and emits auth events.
// ============================================================

// Watch starts a background poll of the provider session. It emits
// SIGNED_IN when a new identity appears and SIGNED_OUT when the session
// vanishes. The returned stop function releases the watcher.
func (c *Client) Watch(onEvent func(domain.AuthEvent)) (stop func()) {
	done := make(chan struct{})

	go func() {
		interval := c.watchInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var lastID string
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			ctx, cancel := context.WithTimeout(context.Background(), interval)
			identity, err := c.CurrentSession(ctx)
			cancel()
			if err != nil {
				c.logger.Debug("supabase: session poll failed", zap.Error(err))
				continue
			}

			switch {
			case identity == nil && lastID != "":
				lastID = ""
				onEvent(domain.AuthEvent{Kind: domain.AuthSignedOut})
			case identity != nil && identity.ID != lastID:
				lastID = identity.ID
				onEvent(domain.AuthEvent{Kind: domain.AuthSignedIn, Identity: identity})
			}
		}
	}()

	return func() { close(done) }
}
