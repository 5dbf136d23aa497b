package monitoring

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/curalink/curalink/internal/bus"
	"github.com/curalink/curalink/internal/bus/logging"
	"github.com/curalink/curalink/internal/bus/metadata"
	"github.com/curalink/curalink/internal/events"
)

func newTestLogger() logging.ServiceLogger {
	return logging.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type publishedEvent struct {
	topic string
	event bus.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, event bus.Event, md metadata.Metadata) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{topic: topic, event: event})
	return nil
}

func (p *fakePublisher) byTopic(topic string) []bus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []bus.Event
	for _, e := range p.events {
		if e.topic == topic {
			out = append(out, e.event)
		}
	}
	return out
}

func newTestMonitoring() (*Service, *fakePublisher) {
	pub := &fakePublisher{}
	return NewService(NewMemoryRepository(), pub, newTestLogger()), pub
}

func TestHandlePatientCreatedSeedsDefaultThresholds(t *testing.T) {
	svc, _ := newTestMonitoring()
	patientID := uuid.NewString()

	_, err := svc.HandlePatientCreated(context.Background(), bus.EventContext[*events.PatientCreated]{
		Event: &events.PatientCreated{Envelope: events.NewEnvelope(), PatientID: patientID},
	})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	thresholds := svc.ThresholdsByPatient(patientID)
	if len(thresholds) != 5 {
		t.Fatalf("created %d thresholds, want 5", len(thresholds))
	}

	wantBounds := map[string][2]float64{
		VitalHeartRate:        {60, 100},
		VitalTemperature:      {36.1, 37.2},
		VitalRespiratoryRate:  {12, 20},
		VitalOxygenSaturation: {95, 100},
		VitalPainLevel:        {0, 3},
	}
	for _, th := range thresholds {
		bounds, ok := wantBounds[th.VitalSign]
		if !ok {
			t.Fatalf("unexpected threshold for %q", th.VitalSign)
		}
		if th.MinValue != bounds[0] || th.MaxValue != bounds[1] {
			t.Fatalf("%s bounds = %g-%g, want %g-%g", th.VitalSign, th.MinValue, th.MaxValue, bounds[0], bounds[1])
		}
		if th.IsGlobal {
			t.Fatalf("%s threshold should be patient-scoped", th.VitalSign)
		}
		if !th.IsActive {
			t.Fatalf("%s threshold should be active", th.VitalSign)
		}
		delete(wantBounds, th.VitalSign)
	}
}

func TestHandlePatientCreatedInvalidIDIsAcknowledged(t *testing.T) {
	svc, _ := newTestMonitoring()

	_, err := svc.HandlePatientCreated(context.Background(), bus.EventContext[*events.PatientCreated]{
		Event: &events.PatientCreated{Envelope: events.NewEnvelope(), PatientID: "not-a-uuid"},
	})
	if err != nil {
		t.Fatalf("malformed patient id must be acknowledged, got %v", err)
	}

	if got := svc.ThresholdsByPatient("not-a-uuid"); len(got) != 0 {
		t.Fatalf("created %d thresholds for a malformed id", len(got))
	}
}

func TestRecordVitalSignsBreachCreatesAlert(t *testing.T) {
	svc, pub := newTestMonitoring()
	patientID := uuid.NewString()

	svc.CreateThreshold(CreateThresholdInput{
		PatientID: patientID,
		VitalSign: "HeartRate",
		MinValue:  60,
		MaxValue:  100,
		Severity:  SeverityMedium,
	})

	_, err := svc.RecordVitalSigns(context.Background(), RecordVitalSignsInput{
		PatientID:        patientID,
		HeartRate:        45,
		Temperature:      36.6,
		RespiratoryRate:  14,
		OxygenSaturation: 98,
		PainLevel:        1,
	})
	if err != nil {
		t.Fatalf("recording failed: %v", err)
	}

	alerts := svc.AlertsByPatient(patientID)
	if len(alerts) != 1 {
		t.Fatalf("created %d alerts, want 1", len(alerts))
	}
	alert := alerts[0]
	if alert.Severity != SeverityMedium {
		t.Fatalf("alert severity = %q, want %q", alert.Severity, SeverityMedium)
	}
	for _, fragment := range []string{"45", "60", "100"} {
		if !strings.Contains(alert.Message, fragment) {
			t.Fatalf("alert message %q missing %q", alert.Message, fragment)
		}
	}

	if got := pub.byTopic(events.TopicVitalSignsRecorded); len(got) != 1 {
		t.Fatalf("published %d vitals events, want 1", len(got))
	}
	if got := pub.byTopic(events.TopicAlertCreated); len(got) != 1 {
		t.Fatalf("published %d alert events, want 1", len(got))
	}
}

func TestRecordVitalSignsInRangeCreatesNoAlert(t *testing.T) {
	svc, pub := newTestMonitoring()
	patientID := uuid.NewString()

	svc.CreateThreshold(CreateThresholdInput{
		PatientID: patientID,
		VitalSign: "HeartRate",
		MinValue:  60,
		MaxValue:  100,
		Severity:  SeverityMedium,
	})

	if _, err := svc.RecordVitalSigns(context.Background(), RecordVitalSignsInput{
		PatientID: patientID,
		HeartRate: 75,
	}); err != nil {
		t.Fatalf("recording failed: %v", err)
	}

	if alerts := svc.AlertsByPatient(patientID); len(alerts) != 0 {
		t.Fatalf("created %d alerts, want none", len(alerts))
	}
	if got := pub.byTopic(events.TopicAlertCreated); len(got) != 0 {
		t.Fatalf("published %d alert events, want none", len(got))
	}
}

func TestPainLevelUsesUpperBoundOnly(t *testing.T) {
	svc, _ := newTestMonitoring()
	patientID := uuid.NewString()

	svc.CreateThreshold(CreateThresholdInput{
		PatientID: patientID,
		VitalSign: VitalPainLevel,
		MinValue:  2,
		MaxValue:  3,
		Severity:  SeverityHigh,
	})

	// Below the lower bound is fine for pain; only the upper bound counts.
	if _, err := svc.RecordVitalSigns(context.Background(), RecordVitalSignsInput{
		PatientID: patientID,
		PainLevel: 0,
	}); err != nil {
		t.Fatalf("recording failed: %v", err)
	}
	if alerts := svc.AlertsByPatient(patientID); len(alerts) != 0 {
		t.Fatalf("low pain level must not alert, got %d alerts", len(alerts))
	}

	if _, err := svc.RecordVitalSigns(context.Background(), RecordVitalSignsInput{
		PatientID: patientID,
		PainLevel: 5,
	}); err != nil {
		t.Fatalf("recording failed: %v", err)
	}
	if alerts := svc.AlertsByPatient(patientID); len(alerts) != 1 {
		t.Fatalf("high pain level should alert once, got %d alerts", len(alerts))
	}
}

func TestGlobalAndInactiveThresholds(t *testing.T) {
	svc, _ := newTestMonitoring()
	patientID := uuid.NewString()

	svc.CreateThreshold(CreateThresholdInput{
		VitalSign: VitalTemperature,
		MinValue:  36.1,
		MaxValue:  37.2,
		Severity:  SeverityCritical,
		IsGlobal:  true,
	})

	inactive := svc.CreateThreshold(CreateThresholdInput{
		PatientID: patientID,
		VitalSign: VitalHeartRate,
		MinValue:  60,
		MaxValue:  100,
		Severity:  SeverityMedium,
	})
	inactive.IsActive = false
	svc.repo.SaveThreshold(inactive)

	if _, err := svc.RecordVitalSigns(context.Background(), RecordVitalSignsInput{
		PatientID:   patientID,
		HeartRate:   180,
		Temperature: 39.5,
	}); err != nil {
		t.Fatalf("recording failed: %v", err)
	}

	alerts := svc.AlertsByPatient(patientID)
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want only the global temperature breach", len(alerts))
	}
	if alerts[0].VitalSign != VitalTemperature || alerts[0].Severity != SeverityCritical {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}
}

func TestRecordVitalSignsSwallowsPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewService(NewMemoryRepository(), pub, newTestLogger())
	patientID := uuid.NewString()

	v, err := svc.RecordVitalSigns(context.Background(), RecordVitalSignsInput{
		PatientID: patientID,
		HeartRate: 70,
	})
	if err != nil {
		t.Fatalf("publish failure must not fail the write: %v", err)
	}
	if v.ID == "" {
		t.Fatal("reading should have been persisted with an ID")
	}
}
