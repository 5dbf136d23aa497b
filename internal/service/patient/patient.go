// Package patient owns patient records and announces their lifecycle to the
// rest of the platform through integration events.
package patient

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

// Patient is a person tracked by the platform.
type Patient struct {
	ID          string
	FirstName   string
	LastName    string
	Email       string
	DateOfBirth time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository is the durable store for patient records.
type Repository interface {
	Save(p Patient)
	Find(id string) (Patient, error)
	List() []Patient
}

type memoryRepository struct {
	patients *store.Collection[Patient]
}

// NewMemoryRepository returns an in-memory patient repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{patients: store.NewCollection[Patient]()}
}

func (r *memoryRepository) Save(p Patient)                  { r.patients.Put(p.ID, p) }
func (r *memoryRepository) Find(id string) (Patient, error) { return r.patients.Get(id) }
func (r *memoryRepository) List() []Patient                 { return r.patients.List(nil) }

// Service implements the patient operations.
type Service struct {
	repo      Repository
	publisher bus.EventPublisher
	log       logging.ServiceLogger
}

// NewService wires the patient service.
func NewService(repo Repository, publisher bus.EventPublisher, log logging.ServiceLogger) *Service {
	return &Service{repo: repo, publisher: publisher, log: log}
}

// CreatePatientInput carries the fields for a new patient record.
type CreatePatientInput struct {
	FirstName   string
	LastName    string
	Email       string
	DateOfBirth time.Time
}

// CreatePatient stores a new patient and publishes patient.created. The
// store write is the operation's commit point; a failed publish is logged
// and swallowed, never rolled back.
func (s *Service) CreatePatient(ctx context.Context, in CreatePatientInput) (Patient, error) {
	if in.FirstName == "" || in.LastName == "" {
		return Patient{}, fmt.Errorf("patient name is required")
	}

	now := time.Now().UTC()
	p := Patient{
		ID:          uuid.NewString(),
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		DateOfBirth: in.DateOfBirth,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.repo.Save(p)

	s.publish(ctx, events.PatientCreated{
		Envelope:  events.NewEnvelope(),
		PatientID: p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
	})
	return p, nil
}

// UpdatePatient replaces the mutable fields of an existing patient and
// publishes patient.updated.
func (s *Service) UpdatePatient(ctx context.Context, id string, in CreatePatientInput) (Patient, error) {
	p, err := s.repo.Find(id)
	if err != nil {
		return Patient{}, fmt.Errorf("updating patient %s: %w", id, err)
	}

	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.Email = in.Email
	if !in.DateOfBirth.IsZero() {
		p.DateOfBirth = in.DateOfBirth
	}
	p.UpdatedAt = time.Now().UTC()
	s.repo.Save(p)

	s.publish(ctx, events.PatientUpdated{
		Envelope:  events.NewEnvelope(),
		PatientID: p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
	})
	return p, nil
}

// GetPatient returns the patient stored under the given ID.
func (s *Service) GetPatient(id string) (Patient, error) {
	return s.repo.Find(id)
}

// ListPatients returns every stored patient.
func (s *Service) ListPatients() []Patient {
	return s.repo.List()
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if err := s.publisher.Publish(ctx, evt.Topic(), evt, nil); err != nil {
		s.log.Error("Failed to publish event", err, logging.LogFields{"topic": evt.Topic()})
	}
}
