// Package rehabilitation owns rehabilitation programs and their sessions.
package rehabilitation

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

// Program statuses. Planned and InProgress count as active; case closure
// completes them.
const (
	StatusPlanned    = "Planned"
	StatusInProgress = "InProgress"
	StatusCompleted  = "Completed"
	StatusCancelled  = "Cancelled"
)

// Program is one rehabilitation program tied to a case.
type Program struct {
	ID          string
	CaseID      string
	PatientID   string
	Title       string
	Description string
	Status      string
	StartDate   time.Time
	EndDate     time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the program is still running or planned.
func (p Program) Active() bool {
	return p.Status == StatusPlanned || p.Status == StatusInProgress
}

// Session is one completed rehabilitation session with the patient's
// self-reported pain and fatigue levels.
type Session struct {
	ID           string
	ProgramID    string
	PatientID    string
	PainLevel    int
	FatigueLevel int
	Notes        string
	CompletedAt  time.Time
}

// Repository is the durable store for programs and sessions.
type Repository interface {
	SaveProgram(p Program)
	FindProgram(id string) (Program, error)
	ProgramsByCase(caseID string) []Program
	SaveSession(s Session)
	SessionsByProgram(programID string) []Session
}

type memoryRepository struct {
	programs *store.Collection[Program]
	sessions *store.Collection[Session]
}

// NewMemoryRepository returns an in-memory rehabilitation repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		programs: store.NewCollection[Program](),
		sessions: store.NewCollection[Session](),
	}
}

func (r *memoryRepository) SaveProgram(p Program)                  { r.programs.Put(p.ID, p) }
func (r *memoryRepository) FindProgram(id string) (Program, error) { return r.programs.Get(id) }
func (r *memoryRepository) SaveSession(s Session)                  { r.sessions.Put(s.ID, s) }

func (r *memoryRepository) ProgramsByCase(caseID string) []Program {
	return r.programs.List(func(p Program) bool { return p.CaseID == caseID })
}

func (r *memoryRepository) SessionsByProgram(programID string) []Session {
	return r.sessions.List(func(s Session) bool { return s.ProgramID == programID })
}

// Service implements the rehabilitation operations.
type Service struct {
	repo      Repository
	publisher bus.EventPublisher
	log       logging.ServiceLogger
}

// NewService wires the rehabilitation service.
func NewService(repo Repository, publisher bus.EventPublisher, log logging.ServiceLogger) *Service {
	return &Service{repo: repo, publisher: publisher, log: log}
}

// CreateProgramInput carries the fields for a new program.
type CreateProgramInput struct {
	CaseID      string
	PatientID   string
	Title       string
	Description string
	StartDate   time.Time
	EndDate     time.Time
}

// CreateProgram stores a new program in status Planned and publishes
// rehabilitation.program.created.
func (s *Service) CreateProgram(ctx context.Context, in CreateProgramInput) (Program, error) {
	if in.Title == "" {
		return Program{}, fmt.Errorf("program title is required")
	}

	now := time.Now().UTC()
	p := Program{
		ID:          uuid.NewString(),
		CaseID:      in.CaseID,
		PatientID:   in.PatientID,
		Title:       in.Title,
		Description: in.Description,
		Status:      StatusPlanned,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.repo.SaveProgram(p)

	s.publish(ctx, events.RehabilitationProgramCreated{
		Envelope:  events.NewEnvelope(),
		ProgramID: p.ID,
		CaseID:    p.CaseID,
		PatientID: p.PatientID,
		Title:     p.Title,
	})
	return p, nil
}

// ChangeProgramStatus transitions the program to the given status and
// publishes rehabilitation.program.status.changed.
func (s *Service) ChangeProgramStatus(ctx context.Context, programID, newStatus string) (Program, error) {
	switch newStatus {
	case StatusPlanned, StatusInProgress, StatusCompleted, StatusCancelled:
	default:
		return Program{}, fmt.Errorf("unknown program status %q", newStatus)
	}

	p, err := s.repo.FindProgram(programID)
	if err != nil {
		return Program{}, fmt.Errorf("changing status of program %s: %w", programID, err)
	}

	oldStatus := p.Status
	p.Status = newStatus
	p.UpdatedAt = time.Now().UTC()
	s.repo.SaveProgram(p)

	s.publish(ctx, events.RehabilitationProgramStatusChanged{
		Envelope:  events.NewEnvelope(),
		ProgramID: p.ID,
		CaseID:    p.CaseID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	})
	return p, nil
}

// CompleteSessionInput carries the outcome of one finished session.
type CompleteSessionInput struct {
	ProgramID    string
	PatientID    string
	PainLevel    int
	FatigueLevel int
	Notes        string
}

// CompleteSession records a finished session and publishes
// rehabilitation.session.completed with the self-reported levels.
func (s *Service) CompleteSession(ctx context.Context, in CompleteSessionInput) (Session, error) {
	if in.ProgramID == "" {
		return Session{}, fmt.Errorf("session program id is required")
	}

	sess := Session{
		ID:           uuid.NewString(),
		ProgramID:    in.ProgramID,
		PatientID:    in.PatientID,
		PainLevel:    in.PainLevel,
		FatigueLevel: in.FatigueLevel,
		Notes:        in.Notes,
		CompletedAt:  time.Now().UTC(),
	}
	s.repo.SaveSession(sess)

	s.publish(ctx, events.RehabilitationSessionCompleted{
		Envelope:     events.NewEnvelope(),
		SessionID:    sess.ID,
		ProgramID:    sess.ProgramID,
		PatientID:    sess.PatientID,
		PainLevel:    sess.PainLevel,
		FatigueLevel: sess.FatigueLevel,
	})
	return sess, nil
}

// GetProgram returns the program stored under the given ID.
func (s *Service) GetProgram(id string) (Program, error) {
	return s.repo.FindProgram(id)
}

// ProgramsByCase returns every program tied to the given case.
func (s *Service) ProgramsByCase(caseID string) []Program {
	return s.repo.ProgramsByCase(caseID)
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if err := s.publisher.Publish(ctx, evt.Topic(), evt, nil); err != nil {
		s.log.Error("Failed to publish event", err, logging.LogFields{"topic": evt.Topic()})
	}
}
