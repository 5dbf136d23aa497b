// Package events defines the integration events exchanged between the
// platform services and their routing keys. Events carry only primitive and
// string-typed fields: entity references cross service boundaries as plain
// string IDs, never as typed objects.
package events

import (
	"time"

	"github.com/curalink/curalink/internal/bus/ids"
)

// Routing keys, one per event, following the "<domain>.<action>" convention.
// Consumers always bind on an exact key; no wildcards are used anywhere in
// the platform.
const (
	TopicPatientCreated              = "patient.created"
	TopicPatientUpdated              = "patient.updated"
	TopicCaseCreated                 = "case.created"
	TopicCaseStatusChanged           = "case.status.changed"
	TopicVitalSignsRecorded          = "monitoring.vitals.recorded"
	TopicAlertCreated                = "monitoring.alert.created"
	TopicRecommendationCreated       = "recommendation.created"
	TopicRecommendationStatusChanged = "recommendation.status.changed"
	TopicProgramCreated              = "rehabilitation.program.created"
	TopicProgramStatusChanged        = "rehabilitation.program.status.changed"
	TopicSessionCompleted            = "rehabilitation.session.completed"
)

// Event is implemented by every integration event in this package: the
// envelope identity plus the routing key the event is published under.
type Event interface {
	EventID() string
	EventOccurredAt() time.Time
	Topic() string
}

// Envelope is the common identity of every integration event: a globally
// unique ID and a UTC creation timestamp, both fixed at construction and
// never mutated afterwards.
type Envelope struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewEnvelope stamps a fresh event identity.
func NewEnvelope() Envelope {
	return Envelope{
		ID:         ids.NewEventID(),
		OccurredAt: time.Now().UTC(),
	}
}

func (e Envelope) EventID() string            { return e.ID }
func (e Envelope) EventOccurredAt() time.Time { return e.OccurredAt }

// PatientCreated is published by the patient service after a patient record
// has been durably created.
type PatientCreated struct {
	Envelope
	PatientID string `json:"patientId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func (PatientCreated) Topic() string { return TopicPatientCreated }

// PatientUpdated is published after a patient record changed.
type PatientUpdated struct {
	Envelope
	PatientID string `json:"patientId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func (PatientUpdated) Topic() string { return TopicPatientUpdated }

// CaseCreated is published by the case service after a recovery case opened.
type CaseCreated struct {
	Envelope
	CaseID    string `json:"caseId"`
	PatientID string `json:"patientId"`
	Title     string `json:"title"`
}

func (CaseCreated) Topic() string { return TopicCaseCreated }

// CaseStatusChanged is published on every case status transition. A
// transition to "closed" cascades into the recommendation and
// rehabilitation services.
type CaseStatusChanged struct {
	Envelope
	CaseID    string `json:"caseId"`
	PatientID string `json:"patientId"`
	OldStatus string `json:"oldStatus"`
	NewStatus string `json:"newStatus"`
}

func (CaseStatusChanged) Topic() string { return TopicCaseStatusChanged }

// VitalSignsRecorded is published by the monitoring service for every new
// vital-sign reading.
type VitalSignsRecorded struct {
	Envelope
	VitalSignsID     string  `json:"vitalSignsId"`
	PatientID        string  `json:"patientId"`
	HeartRate        float64 `json:"heartRate"`
	Temperature      float64 `json:"temperature"`
	RespiratoryRate  float64 `json:"respiratoryRate"`
	OxygenSaturation float64 `json:"oxygenSaturation"`
	PainLevel        float64 `json:"painLevel"`
}

func (VitalSignsRecorded) Topic() string { return TopicVitalSignsRecorded }

// AlertCreated is published when a vital-sign reading breached a configured
// threshold.
type AlertCreated struct {
	Envelope
	AlertID   string `json:"alertId"`
	PatientID string `json:"patientId"`
	VitalSign string `json:"vitalSign"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
}

func (AlertCreated) Topic() string { return TopicAlertCreated }

// RecommendationCreated is published after a recommendation has been stored.
type RecommendationCreated struct {
	Envelope
	RecommendationID string `json:"recommendationId"`
	CaseID           string `json:"caseId"`
	PatientID        string `json:"patientId"`
	Type             string `json:"type"`
	Title            string `json:"title"`
}

func (RecommendationCreated) Topic() string { return TopicRecommendationCreated }

// RecommendationStatusChanged is published on every recommendation status
// transition, including the automatic completions driven by case closure.
type RecommendationStatusChanged struct {
	Envelope
	RecommendationID string `json:"recommendationId"`
	CaseID           string `json:"caseId"`
	OldStatus        string `json:"oldStatus"`
	NewStatus        string `json:"newStatus"`
}

func (RecommendationStatusChanged) Topic() string { return TopicRecommendationStatusChanged }

// RehabilitationProgramCreated is published after a program has been stored.
type RehabilitationProgramCreated struct {
	Envelope
	ProgramID string `json:"programId"`
	CaseID    string `json:"caseId"`
	PatientID string `json:"patientId"`
	Title     string `json:"title"`
}

func (RehabilitationProgramCreated) Topic() string { return TopicProgramCreated }

// RehabilitationProgramStatusChanged is published on every program status
// transition.
type RehabilitationProgramStatusChanged struct {
	Envelope
	ProgramID string `json:"programId"`
	CaseID    string `json:"caseId"`
	OldStatus string `json:"oldStatus"`
	NewStatus string `json:"newStatus"`
}

func (RehabilitationProgramStatusChanged) Topic() string { return TopicProgramStatusChanged }

// RehabilitationSessionCompleted is published when a patient finishes a
// rehabilitation session, carrying the self-reported pain and fatigue
// levels.
type RehabilitationSessionCompleted struct {
	Envelope
	SessionID    string `json:"sessionId"`
	ProgramID    string `json:"programId"`
	PatientID    string `json:"patientId"`
	PainLevel    int    `json:"painLevel"`
	FatigueLevel int    `json:"fatigueLevel"`
}

func (RehabilitationSessionCompleted) Topic() string { return TopicSessionCompleted }
