package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/olipack/olipack-go/internal/domain"

	"github.com/google/uuid"
)

// ============================================================
// Event records — predictions and collections tables
// ============================================================

// InsertPrediction writes a prediction record and returns the stored row.
func (c *Client) InsertPrediction(ctx context.Context, p *domain.Prediction) (*domain.Prediction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertPrediction")
	defer span.End()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal([]*domain.Prediction{p})
	if err != nil {
		return nil, err
	}

	body, err := c.doRest(ctx, http.MethodPost, "predictions", payload, "return=representation")
	if err != nil {
		return nil, err
	}

	var rows []domain.Prediction
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		// The write went through; echo the input if the representation
		// cannot be decoded.
		return p, nil
	}
	return &rows[0], nil
}

// PredictionHistory reads past predictions, newest first.
func (c *Client) PredictionHistory(ctx context.Context) ([]domain.Prediction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.PredictionHistory")
	defer span.End()

	body, err := c.doRest(ctx, http.MethodGet, "predictions?order=created_at.desc", nil, "")
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return []domain.Prediction{}, nil
	}

	var rows []domain.Prediction
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	return rows, nil
}

// InsertCollectionEvent writes a collection-event record.
func (c *Client) InsertCollectionEvent(ctx context.Context, evt *domain.CollectionEvent) (*domain.CollectionEvent, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertCollectionEvent")
	defer span.End()

	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal([]*domain.CollectionEvent{evt})
	if err != nil {
		return nil, err
	}

	body, err := c.doRest(ctx, http.MethodPost, "collections", payload, "return=representation")
	if err != nil {
		return nil, err
	}

	var rows []domain.CollectionEvent
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return evt, nil
	}
	return &rows[0], nil
}
