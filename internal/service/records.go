package service

import (
	"context"

	"github.com/olipack/olipack-go/internal/domain"
	"github.com/olipack/olipack-go/internal/infra/observability"
	"github.com/olipack/olipack-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var recordsTracer = otel.Tracer("service/records")

// RecordsService handles the denormalized event records (ML predictions,
// collection runs). Writes are best-effort: a failed insert is logged
// and the input echoed back, never surfaced, since losing an analytics
// row must not break the feature flow. Offline mode stores nothing.
type RecordsService struct {
	store    port.AccountStore
	sessions *SessionService
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewRecordsService creates the records service. A nil store selects
// offline behavior throughout.
func NewRecordsService(store port.AccountStore, sessions *SessionService, metrics *observability.Metrics, logger *zap.Logger) *RecordsService {
	return &RecordsService{
		store:    store,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// stamp fills the record ownership from the current session.
func (s *RecordsService) stamp() string {
	sess := s.sessions.Current()
	if sess.User == nil {
		return ""
	}
	return sess.User.ID
}

// SavePrediction persists a prediction record.
func (s *RecordsService) SavePrediction(ctx context.Context, p domain.Prediction) domain.Prediction {
	ctx, span := recordsTracer.Start(ctx, "RecordsService.SavePrediction")
	defer span.End()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.UserID == "" {
		p.UserID = s.stamp()
	}

	if s.store == nil {
		return p
	}

	stored, err := s.store.InsertPrediction(ctx, &p)
	if err != nil {
		s.metrics.IncrStoreError("predictions")
		s.logger.Warn("prediction insert failed, continuing", zap.Error(err))
		return p
	}
	return *stored
}

// PredictionHistory returns past predictions, newest first. Failures
// read as an empty history.
func (s *RecordsService) PredictionHistory(ctx context.Context) []domain.Prediction {
	ctx, span := recordsTracer.Start(ctx, "RecordsService.PredictionHistory")
	defer span.End()

	if s.store == nil {
		return []domain.Prediction{}
	}

	rows, err := s.store.PredictionHistory(ctx)
	if err != nil {
		s.metrics.IncrStoreError("predictions")
		s.logger.Warn("prediction history read failed", zap.Error(err))
		return []domain.Prediction{}
	}
	return rows
}

// SaveCollectionEvent persists a collection-event record.
func (s *RecordsService) SaveCollectionEvent(ctx context.Context, evt domain.CollectionEvent) domain.CollectionEvent {
	ctx, span := recordsTracer.Start(ctx, "RecordsService.SaveCollectionEvent")
	defer span.End()

	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.UserID == "" {
		evt.UserID = s.stamp()
	}

	if s.store == nil {
		return evt
	}

	stored, err := s.store.InsertCollectionEvent(ctx, &evt)
	if err != nil {
		s.metrics.IncrStoreError("collections")
		s.logger.Warn("collection insert failed, continuing", zap.Error(err))
		return evt
	}
	return *stored
}
