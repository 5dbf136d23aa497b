// Package monitoring records vital signs, evaluates them against configured
// thresholds, and raises alerts on breaches.
package monitoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curalink/curalink/internal/bus"
	"github.com/curalink/curalink/internal/bus/logging"
	"github.com/curalink/curalink/internal/events"
	"github.com/curalink/curalink/internal/store"
)

// Alert severities, ordered by urgency.
const (
	SeverityLow      = "Low"
	SeverityMedium   = "Medium"
	SeverityHigh     = "High"
	SeverityCritical = "Critical"
)

// Vital-sign names used by thresholds. Matching is case-insensitive.
const (
	VitalHeartRate        = "heartRate"
	VitalTemperature      = "temperature"
	VitalRespiratoryRate  = "respiratoryRate"
	VitalOxygenSaturation = "oxygenSaturation"
	VitalPainLevel        = "painLevel"
)

// ThresholdConfiguration defines the acceptable range for one vital sign,
// either globally or scoped to a single patient.
type ThresholdConfiguration struct {
	ID        string
	PatientID string // empty for global thresholds
	VitalSign string
	MinValue  float64
	MaxValue  float64
	Severity  string
	IsGlobal  bool
	IsActive  bool
	CreatedAt time.Time
}

// VitalSigns is one recorded reading for a patient.
type VitalSigns struct {
	ID               string
	PatientID        string
	HeartRate        float64
	Temperature      float64
	RespiratoryRate  float64
	OxygenSaturation float64
	PainLevel        float64
	RecordedAt       time.Time
}

// Alert records a threshold breach.
type Alert struct {
	ID           string
	PatientID    string
	VitalSignsID string
	VitalSign    string
	Severity     string
	Message      string
	CreatedAt    time.Time
}

// Repository is the durable store for monitoring data.
type Repository interface {
	SaveThreshold(t ThresholdConfiguration)
	ActiveThresholds(patientID string) []ThresholdConfiguration
	ThresholdsByPatient(patientID string) []ThresholdConfiguration
	SaveVitalSigns(v VitalSigns)
	SaveAlert(a Alert)
	AlertsByPatient(patientID string) []Alert
}

type memoryRepository struct {
	thresholds *store.Collection[ThresholdConfiguration]
	vitals     *store.Collection[VitalSigns]
	alerts     *store.Collection[Alert]
}

// NewMemoryRepository returns an in-memory monitoring repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		thresholds: store.NewCollection[ThresholdConfiguration](),
		vitals:     store.NewCollection[VitalSigns](),
		alerts:     store.NewCollection[Alert](),
	}
}

func (r *memoryRepository) SaveThreshold(t ThresholdConfiguration) { r.thresholds.Put(t.ID, t) }
func (r *memoryRepository) SaveVitalSigns(v VitalSigns)            { r.vitals.Put(v.ID, v) }
func (r *memoryRepository) SaveAlert(a Alert)                      { r.alerts.Put(a.ID, a) }

// ActiveThresholds returns the active thresholds that apply to the given
// patient: its own plus the global ones.
func (r *memoryRepository) ActiveThresholds(patientID string) []ThresholdConfiguration {
	return r.thresholds.List(func(t ThresholdConfiguration) bool {
		return t.IsActive && (t.IsGlobal || t.PatientID == patientID)
	})
}

func (r *memoryRepository) ThresholdsByPatient(patientID string) []ThresholdConfiguration {
	return r.thresholds.List(func(t ThresholdConfiguration) bool {
		return t.PatientID == patientID
	})
}

func (r *memoryRepository) AlertsByPatient(patientID string) []Alert {
	return r.alerts.List(func(a Alert) bool { return a.PatientID == patientID })
}

// Service implements the monitoring operations.
type Service struct {
	repo      Repository
	publisher bus.EventPublisher
	log       logging.ServiceLogger
}

// NewService wires the monitoring service.
func NewService(repo Repository, publisher bus.EventPublisher, log logging.ServiceLogger) *Service {
	return &Service{repo: repo, publisher: publisher, log: log}
}

// CreateThresholdInput carries the fields for a new threshold configuration.
type CreateThresholdInput struct {
	PatientID string
	VitalSign string
	MinValue  float64
	MaxValue  float64
	Severity  string
	IsGlobal  bool
}

// CreateThreshold stores a new active threshold configuration.
func (s *Service) CreateThreshold(in CreateThresholdInput) ThresholdConfiguration {
	t := ThresholdConfiguration{
		ID:        uuid.NewString(),
		PatientID: in.PatientID,
		VitalSign: in.VitalSign,
		MinValue:  in.MinValue,
		MaxValue:  in.MaxValue,
		Severity:  in.Severity,
		IsGlobal:  in.IsGlobal,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	s.repo.SaveThreshold(t)
	return t
}

// CreateDefaultThresholds creates the patient-scoped starter thresholds a
// fresh patient record gets: heart rate 60-100, temperature 36.1-37.2,
// respiratory rate 12-20, oxygen saturation 95-100, pain level 0-3.
func (s *Service) CreateDefaultThresholds(patientID string) []ThresholdConfiguration {
	defaults := []CreateThresholdInput{
		{PatientID: patientID, VitalSign: VitalHeartRate, MinValue: 60, MaxValue: 100, Severity: SeverityMedium},
		{PatientID: patientID, VitalSign: VitalTemperature, MinValue: 36.1, MaxValue: 37.2, Severity: SeverityMedium},
		{PatientID: patientID, VitalSign: VitalRespiratoryRate, MinValue: 12, MaxValue: 20, Severity: SeverityMedium},
		{PatientID: patientID, VitalSign: VitalOxygenSaturation, MinValue: 95, MaxValue: 100, Severity: SeverityHigh},
		{PatientID: patientID, VitalSign: VitalPainLevel, MinValue: 0, MaxValue: 3, Severity: SeverityMedium},
	}

	created := make([]ThresholdConfiguration, 0, len(defaults))
	for _, in := range defaults {
		created = append(created, s.CreateThreshold(in))
	}
	return created
}

// RecordVitalSignsInput carries one vital-sign reading.
type RecordVitalSignsInput struct {
	PatientID        string
	HeartRate        float64
	Temperature      float64
	RespiratoryRate  float64
	OxygenSaturation float64
	PainLevel        float64
}

// RecordVitalSigns persists the reading, publishes
// monitoring.vitals.recorded, and evaluates every applicable active
// threshold. Each breach creates an Alert with the threshold's severity and
// publishes monitoring.alert.created.
func (s *Service) RecordVitalSigns(ctx context.Context, in RecordVitalSignsInput) (VitalSigns, error) {
	if in.PatientID == "" {
		return VitalSigns{}, fmt.Errorf("vital signs patient id is required")
	}

	v := VitalSigns{
		ID:               uuid.NewString(),
		PatientID:        in.PatientID,
		HeartRate:        in.HeartRate,
		Temperature:      in.Temperature,
		RespiratoryRate:  in.RespiratoryRate,
		OxygenSaturation: in.OxygenSaturation,
		PainLevel:        in.PainLevel,
		RecordedAt:       time.Now().UTC(),
	}
	s.repo.SaveVitalSigns(v)

	s.publish(ctx, events.VitalSignsRecorded{
		Envelope:         events.NewEnvelope(),
		VitalSignsID:     v.ID,
		PatientID:        v.PatientID,
		HeartRate:        v.HeartRate,
		Temperature:      v.Temperature,
		RespiratoryRate:  v.RespiratoryRate,
		OxygenSaturation: v.OxygenSaturation,
		PainLevel:        v.PainLevel,
	})

	s.evaluateThresholds(ctx, v)
	return v, nil
}

// evaluateThresholds compares the reading against every active threshold
// that is global or scoped to the reading's patient.
func (s *Service) evaluateThresholds(ctx context.Context, v VitalSigns) {
	for _, t := range s.repo.ActiveThresholds(v.PatientID) {
		breached, message := checkThreshold(t, v)
		if !breached {
			continue
		}
		s.createAlert(ctx, v, t, message)
	}
}

// checkThreshold reports whether the reading breaches the threshold. Heart
// rate, temperature, respiratory rate, and oxygen saturation use inclusive
// lower and upper bounds; pain level uses the upper bound only.
func checkThreshold(t ThresholdConfiguration, v VitalSigns) (bool, string) {
	var value float64
	switch {
	case strings.EqualFold(t.VitalSign, VitalHeartRate):
		value = v.HeartRate
	case strings.EqualFold(t.VitalSign, VitalTemperature):
		value = v.Temperature
	case strings.EqualFold(t.VitalSign, VitalRespiratoryRate):
		value = v.RespiratoryRate
	case strings.EqualFold(t.VitalSign, VitalOxygenSaturation):
		value = v.OxygenSaturation
	case strings.EqualFold(t.VitalSign, VitalPainLevel):
		if v.PainLevel > t.MaxValue {
			return true, fmt.Sprintf("%s value %g exceeds the allowed maximum of %g", t.VitalSign, v.PainLevel, t.MaxValue)
		}
		return false, ""
	default:
		return false, ""
	}

	if value < t.MinValue || value > t.MaxValue {
		return true, fmt.Sprintf("%s value %g is outside the allowed range %g-%g", t.VitalSign, value, t.MinValue, t.MaxValue)
	}
	return false, ""
}

func (s *Service) createAlert(ctx context.Context, v VitalSigns, t ThresholdConfiguration, message string) {
	a := Alert{
		ID:           uuid.NewString(),
		PatientID:    v.PatientID,
		VitalSignsID: v.ID,
		VitalSign:    t.VitalSign,
		Severity:     t.Severity,
		Message:      message,
		CreatedAt:    time.Now().UTC(),
	}
	s.repo.SaveAlert(a)

	s.log.Info("Threshold breached, alert created", logging.LogFields{
		"patient_id": a.PatientID,
		"vital_sign": a.VitalSign,
		"severity":   a.Severity,
	})

	s.publish(ctx, events.AlertCreated{
		Envelope:  events.NewEnvelope(),
		AlertID:   a.ID,
		PatientID: a.PatientID,
		VitalSign: a.VitalSign,
		Severity:  a.Severity,
		Message:   a.Message,
	})
}

// AlertsByPatient returns every alert raised for the given patient.
func (s *Service) AlertsByPatient(patientID string) []Alert {
	return s.repo.AlertsByPatient(patientID)
}

// ThresholdsByPatient returns the thresholds scoped to the given patient.
func (s *Service) ThresholdsByPatient(patientID string) []ThresholdConfiguration {
	return s.repo.ThresholdsByPatient(patientID)
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if err := s.publisher.Publish(ctx, evt.Topic(), evt, nil); err != nil {
		s.log.Error("Failed to publish event", err, logging.LogFields{"topic": evt.Topic()})
	}
}
