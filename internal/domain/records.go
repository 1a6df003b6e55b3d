package domain

import "time"

// Prediction is a denormalized ML-prediction event written to the remote
// store. Inserts are best-effort; the write never blocks the feature flow.
type Prediction struct {
	ID        string         `json:"id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Kind      string         `json:"kind"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Result    float64        `json:"result"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// CollectionEvent records an olive-byproduct collection run.
type CollectionEvent struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Region      string    `json:"region"`
	VolumeKG    float64   `json:"volume_kg"`
	CollectedAt time.Time `json:"collected_at,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}
