// Package recommendation owns care recommendations. Most recommendations
// are created in reaction to events from the monitoring, case, and
// rehabilitation services.
package recommendation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/curalink/curalink/internal/bus"
	"github.com/curalink/curalink/internal/bus/logging"
	"github.com/curalink/curalink/internal/events"
	"github.com/curalink/curalink/internal/store"
)

// Recommendation statuses. Pending, Approved, and InProgress count as
// active; case closure completes them.
const (
	StatusPending    = "Pending"
	StatusApproved   = "Approved"
	StatusInProgress = "InProgress"
	StatusCompleted  = "Completed"
	StatusRejected   = "Rejected"
)

// Recommendation types used by the event-driven rules.
const (
	TypeLifestyle         = "lifestyle"
	TypeUrgent            = "urgent"
	TypePainManagement    = "pain_management"
	TypeFatigueManagement = "fatigue_management"
)

// Recommendation is one care recommendation tied to a case.
type Recommendation struct {
	ID          string
	CaseID      string
	PatientID   string
	Type        string
	Title       string
	Description string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the recommendation still needs attention.
func (r Recommendation) Active() bool {
	switch r.Status {
	case StatusPending, StatusApproved, StatusInProgress:
		return true
	}
	return false
}

// Repository is the durable store for recommendations.
type Repository interface {
	Save(r Recommendation)
	Find(id string) (Recommendation, error)
	ListByCase(caseID string) []Recommendation
}

type memoryRepository struct {
	recommendations *store.Collection[Recommendation]
}

// NewMemoryRepository returns an in-memory recommendation repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{recommendations: store.NewCollection[Recommendation]()}
}

func (r *memoryRepository) Save(rec Recommendation) { r.recommendations.Put(rec.ID, rec) }

func (r *memoryRepository) Find(id string) (Recommendation, error) {
	return r.recommendations.Get(id)
}

func (r *memoryRepository) ListByCase(caseID string) []Recommendation {
	return r.recommendations.List(func(rec Recommendation) bool { return rec.CaseID == caseID })
}

// Service implements the recommendation operations.
type Service struct {
	repo      Repository
	publisher bus.EventPublisher
	log       logging.ServiceLogger
}

// NewService wires the recommendation service.
func NewService(repo Repository, publisher bus.EventPublisher, log logging.ServiceLogger) *Service {
	return &Service{repo: repo, publisher: publisher, log: log}
}

// CreateRecommendationInput carries the fields for a new recommendation.
type CreateRecommendationInput struct {
	CaseID      string
	PatientID   string
	Type        string
	Title       string
	Description string
}

// CreateRecommendation stores a new recommendation in status Pending and
// publishes recommendation.created.
func (s *Service) CreateRecommendation(ctx context.Context, in CreateRecommendationInput) (Recommendation, error) {
	if in.Title == "" {
		return Recommendation{}, fmt.Errorf("recommendation title is required")
	}

	now := time.Now().UTC()
	rec := Recommendation{
		ID:          uuid.NewString(),
		CaseID:      in.CaseID,
		PatientID:   in.PatientID,
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.repo.Save(rec)

	s.publish(ctx, events.RecommendationCreated{
		Envelope:         events.NewEnvelope(),
		RecommendationID: rec.ID,
		CaseID:           rec.CaseID,
		PatientID:        rec.PatientID,
		Type:             rec.Type,
		Title:            rec.Title,
	})
	return rec, nil
}

// ChangeStatus transitions the recommendation to the given status and
// publishes recommendation.status.changed.
func (s *Service) ChangeStatus(ctx context.Context, recommendationID, newStatus string) (Recommendation, error) {
	switch newStatus {
	case StatusPending, StatusApproved, StatusInProgress, StatusCompleted, StatusRejected:
	default:
		return Recommendation{}, fmt.Errorf("unknown recommendation status %q", newStatus)
	}

	rec, err := s.repo.Find(recommendationID)
	if err != nil {
		return Recommendation{}, fmt.Errorf("changing status of recommendation %s: %w", recommendationID, err)
	}

	oldStatus := rec.Status
	rec.Status = newStatus
	rec.UpdatedAt = time.Now().UTC()
	s.repo.Save(rec)

	s.publish(ctx, events.RecommendationStatusChanged{
		Envelope:         events.NewEnvelope(),
		RecommendationID: rec.ID,
		CaseID:           rec.CaseID,
		OldStatus:        oldStatus,
		NewStatus:        newStatus,
	})
	return rec, nil
}

// GetRecommendation returns the recommendation stored under the given ID.
func (s *Service) GetRecommendation(id string) (Recommendation, error) {
	return s.repo.Find(id)
}

// ListByCase returns every recommendation tied to the given case.
func (s *Service) ListByCase(caseID string) []Recommendation {
	return s.repo.ListByCase(caseID)
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if err := s.publisher.Publish(ctx, evt.Topic(), evt, nil); err != nil {
		s.log.Error("Failed to publish event", err, logging.LogFields{"topic": evt.Topic()})
	}
}
