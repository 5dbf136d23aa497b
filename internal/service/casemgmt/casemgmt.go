// Package casemgmt owns recovery cases. Case status transitions drive
// cascades in the recommendation and rehabilitation services, so every
// transition is announced with its old and new status.
package casemgmt

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

// Case statuses. A closed case is terminal.
const (
	StatusOpen        = "open"
	StatusInTreatment = "in_treatment"
	StatusClosed      = "closed"
)

// Case is one recovery case of a patient.
type Case struct {
	ID          string
	PatientID   string
	Title       string
	Description string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository is the durable store for cases.
type Repository interface {
	Save(c Case)
	Find(id string) (Case, error)
	ListByPatient(patientID string) []Case
}

type memoryRepository struct {
	cases *store.Collection[Case]
}

// NewMemoryRepository returns an in-memory case repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{cases: store.NewCollection[Case]()}
}

func (r *memoryRepository) Save(c Case)                  { r.cases.Put(c.ID, c) }
func (r *memoryRepository) Find(id string) (Case, error) { return r.cases.Get(id) }

func (r *memoryRepository) ListByPatient(patientID string) []Case {
	return r.cases.List(func(c Case) bool { return c.PatientID == patientID })
}

// Service implements the case operations.
type Service struct {
	repo      Repository
	publisher bus.EventPublisher
	log       logging.ServiceLogger
}

// NewService wires the case service.
func NewService(repo Repository, publisher bus.EventPublisher, log logging.ServiceLogger) *Service {
	return &Service{repo: repo, publisher: publisher, log: log}
}

// CreateCaseInput carries the fields for a new case.
type CreateCaseInput struct {
	PatientID   string
	Title       string
	Description string
}

// CreateCase opens a new case in status "open" and publishes case.created.
func (s *Service) CreateCase(ctx context.Context, in CreateCaseInput) (Case, error) {
	if in.PatientID == "" {
		return Case{}, fmt.Errorf("case patient id is required")
	}

	now := time.Now().UTC()
	c := Case{
		ID:          uuid.NewString(),
		PatientID:   in.PatientID,
		Title:       in.Title,
		Description: in.Description,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.repo.Save(c)

	s.publish(ctx, events.CaseCreated{
		Envelope:  events.NewEnvelope(),
		CaseID:    c.ID,
		PatientID: c.PatientID,
		Title:     c.Title,
	})
	return c, nil
}

// ChangeStatus transitions the case to the given status and publishes
// case.status.changed carrying both the old and the new status.
func (s *Service) ChangeStatus(ctx context.Context, caseID, newStatus string) (Case, error) {
	switch newStatus {
	case StatusOpen, StatusInTreatment, StatusClosed:
	default:
		return Case{}, fmt.Errorf("unknown case status %q", newStatus)
	}

	c, err := s.repo.Find(caseID)
	if err != nil {
		return Case{}, fmt.Errorf("changing status of case %s: %w", caseID, err)
	}

	oldStatus := c.Status
	c.Status = newStatus
	c.UpdatedAt = time.Now().UTC()
	s.repo.Save(c)

	s.publish(ctx, events.CaseStatusChanged{
		Envelope:  events.NewEnvelope(),
		CaseID:    c.ID,
		PatientID: c.PatientID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	})
	return c, nil
}

// GetCase returns the case stored under the given ID.
func (s *Service) GetCase(id string) (Case, error) {
	return s.repo.Find(id)
}

// ListCasesByPatient returns every case of the given patient.
func (s *Service) ListCasesByPatient(patientID string) []Case {
	return s.repo.ListByPatient(patientID)
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if err := s.publisher.Publish(ctx, evt.Topic(), evt, nil); err != nil {
		s.log.Error("Failed to publish event", err, logging.LogFields{"topic": evt.Topic()})
	}
}
