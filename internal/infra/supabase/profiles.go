package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/olipack/olipack-go/internal/domain"
	"github.com/olipack/olipack-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Profile records — profiles table via PostgREST
// ============================================================

// GetProfile fetches the profile record for a user id. A missing row is
// an ErrNotFound so formatUser can fall through to the next resolver.
// Lookups run behind the circuit breaker with retries, like every read
// on the hot session-resolution path — but a definitive empty result is
// an answer, not a failure: it is never retried and never counts
// against the breaker.
func (c *Client) GetProfile(ctx context.Context, userID string) (*domain.ProfileRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var record *domain.ProfileRecord
	var missing *domain.ErrNotFound

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("profiles?id=eq.%s&limit=1", userID)
			body, err := c.doRest(ctx, http.MethodGet, path, nil, "")
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				missing = &domain.ErrNotFound{Resource: "profile", ID: userID}
				return nil
			}

			var rows []domain.ProfileRecord
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("decode profiles: %w", err)
			}
			if len(rows) == 0 {
				missing = &domain.ErrNotFound{Resource: "profile", ID: userID}
				return nil
			}

			record = &rows[0]
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/profiles", Err: err}
	}
	if missing != nil {
		return nil, missing
	}

	return record, nil
}

// UpsertProfile writes the denormalized profile record after sign-up.
// Callers treat failures as non-fatal; the auth record stays the source
// of truth.
func (c *Client) UpsertProfile(ctx context.Context, rec *domain.ProfileRecord) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertProfile")
	defer span.End()

	payload, err := json.Marshal([]*domain.ProfileRecord{rec})
	if err != nil {
		return err
	}

	_, err = c.doRest(ctx, http.MethodPost, "profiles", payload, "resolution=merge-duplicates,return=representation")
	return err
}

// UpdateProfile patches mutable profile fields and re-fetches the row.
func (c *Client) UpdateProfile(ctx context.Context, userID string, updates map[string]any) (*domain.ProfileRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateProfile")
	defer span.End()

	payload, err := json.Marshal(updates)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("profiles?id=eq.%s", userID)
	if _, err := c.doRest(ctx, http.MethodPatch, path, payload, "return=minimal"); err != nil {
		return nil, err
	}

	return c.GetProfile(ctx, userID)
}

// DeleteProfile removes the profile row for a user id.
func (c *Client) DeleteProfile(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteProfile")
	defer span.End()

	path := fmt.Sprintf("profiles?id=eq.%s", userID)
	_, err := c.doRest(ctx, http.MethodDelete, path, nil, "")
	return err
}
