// Package notification turns platform events into patient-facing
// notifications. It only consumes; it publishes nothing.
package notification

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

// Notification kinds.
const (
	KindAlert      = "alert"
	KindCaseUpdate = "case_update"
)

// Notification is one message addressed to a patient.
type Notification struct {
	ID        string
	PatientID string
	Kind      string
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}

// Repository is the durable store for notifications.
type Repository interface {
	Save(n Notification)
	ListByPatient(patientID string) []Notification
}

type memoryRepository struct {
	notifications *store.Collection[Notification]
}

// NewMemoryRepository returns an in-memory notification repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{notifications: store.NewCollection[Notification]()}
}

func (r *memoryRepository) Save(n Notification) { r.notifications.Put(n.ID, n) }

func (r *memoryRepository) ListByPatient(patientID string) []Notification {
	return r.notifications.List(func(n Notification) bool { return n.PatientID == patientID })
}

// Service implements the notification operations.
type Service struct {
	repo Repository
	log  logging.ServiceLogger
}

// NewService wires the notification service.
func NewService(repo Repository, log logging.ServiceLogger) *Service {
	return &Service{repo: repo, log: log}
}

// Notify stores a new unread notification for the patient.
func (s *Service) Notify(patientID, kind, title, message string) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		PatientID: patientID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	s.repo.Save(n)
	return n
}

// ListByPatient returns every notification addressed to the patient.
func (s *Service) ListByPatient(patientID string) []Notification {
	return s.repo.ListByPatient(patientID)
}

// RegisterSubscriptions attaches the notification event handlers to the bus
// service.
func RegisterSubscriptions(busSvc *bus.Service, svc *Service) error {
	if err := bus.Subscribe(busSvc, bus.Subscription[*events.AlertCreated, bus.NoOutput]{
		Name:    "notification_alerts",
		Queue:   events.TopicAlertCreated,
		Handler: svc.HandleAlertCreated,
	}); err != nil {
		return err
	}

	return bus.Subscribe(busSvc, bus.Subscription[*events.CaseStatusChanged, bus.NoOutput]{
		Name:    "notification_case_updates",
		Queue:   events.TopicCaseStatusChanged,
		Handler: svc.HandleCaseStatusChanged,
	})
}

// HandleAlertCreated notifies the patient about a raised alert.
func (s *Service) HandleAlertCreated(ctx context.Context, evt bus.EventContext[*events.AlertCreated]) ([]bus.Outgoing[bus.NoOutput], error) {
	s.Notify(evt.Event.PatientID, KindAlert,
		fmt.Sprintf("%s alert: %s", evt.Event.Severity, evt.Event.VitalSign),
		evt.Event.Message)
	return nil, nil
}

// HandleCaseStatusChanged notifies the patient about a case transition.
func (s *Service) HandleCaseStatusChanged(ctx context.Context, evt bus.EventContext[*events.CaseStatusChanged]) ([]bus.Outgoing[bus.NoOutput], error) {
	s.Notify(evt.Event.PatientID, KindCaseUpdate,
		"Your case status changed",
		fmt.Sprintf("Case %s moved from %s to %s.", evt.Event.CaseID, evt.Event.OldStatus, evt.Event.NewStatus))
	return nil, nil
}
