package recommendation

import (
	"context"
	"errors"
	"io"
	"log/slog"
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

func newTestRecommendation() (*Service, *fakePublisher) {
	pub := &fakePublisher{}
	return NewService(NewMemoryRepository(), pub, newTestLogger()), pub
}

func TestCreateRecommendationStartsPending(t *testing.T) {
	svc, pub := newTestRecommendation()

	rec, err := svc.CreateRecommendation(context.Background(), CreateRecommendationInput{
		CaseID:    uuid.NewString(),
		PatientID: uuid.NewString(),
		Type:      TypeLifestyle,
		Title:     "Daily walks",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if rec.Status != StatusPending {
		t.Fatalf("status = %q, want %q", rec.Status, StatusPending)
	}
	if got := pub.byTopic(events.TopicRecommendationCreated); len(got) != 1 {
		t.Fatalf("published %d created events, want 1", len(got))
	}
}

func TestChangeStatusPublishesTransition(t *testing.T) {
	svc, pub := newTestRecommendation()

	rec, err := svc.CreateRecommendation(context.Background(), CreateRecommendationInput{
		CaseID: "c1", Title: "Stretching",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.ChangeStatus(context.Background(), rec.ID, StatusApproved); err != nil {
		t.Fatalf("change failed: %v", err)
	}

	changed := pub.byTopic(events.TopicRecommendationStatusChanged)
	if len(changed) != 1 {
		t.Fatalf("published %d status events, want 1", len(changed))
	}
	evt := changed[0].(events.RecommendationStatusChanged)
	if evt.OldStatus != StatusPending || evt.NewStatus != StatusApproved {
		t.Fatalf("transition = %s -> %s", evt.OldStatus, evt.NewStatus)
	}

	if _, err := svc.ChangeStatus(context.Background(), rec.ID, "Bogus"); err == nil {
		t.Fatal("unknown status should fail")
	}
	if _, err := svc.ChangeStatus(context.Background(), "missing", StatusApproved); err == nil {
		t.Fatal("missing recommendation should fail")
	}
}

func TestCaseClosureCompletesActiveRecommendations(t *testing.T) {
	svc, pub := newTestRecommendation()
	caseID := uuid.NewString()

	approved, _ := svc.CreateRecommendation(context.Background(), CreateRecommendationInput{CaseID: caseID, Title: "A"})
	if _, err := svc.ChangeStatus(context.Background(), approved.ID, StatusApproved); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	rejected, _ := svc.CreateRecommendation(context.Background(), CreateRecommendationInput{CaseID: caseID, Title: "B"})
	if _, err := svc.ChangeStatus(context.Background(), rejected.ID, StatusRejected); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	otherCase, _ := svc.CreateRecommendation(context.Background(), CreateRecommendationInput{CaseID: "other", Title: "C"})

	_, err := svc.HandleCaseStatusChanged(context.Background(), bus.EventContext[*events.CaseStatusChanged]{
		Event: &events.CaseStatusChanged{
			Envelope:  events.NewEnvelope(),
			CaseID:    caseID,
			OldStatus: "in_treatment",
			NewStatus: "closed",
		},
	})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	got, _ := svc.GetRecommendation(approved.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("approved recommendation status = %q, want Completed", got.Status)
	}

	got, _ = svc.GetRecommendation(rejected.ID)
	if got.Status != StatusRejected {
		t.Fatalf("rejected recommendation must stay untouched, got %q", got.Status)
	}

	got, _ = svc.GetRecommendation(otherCase.ID)
	if got.Status != StatusPending {
		t.Fatalf("other case's recommendation must stay untouched, got %q", got.Status)
	}

	var sawCompletion bool
	for _, e := range pub.byTopic(events.TopicRecommendationStatusChanged) {
		evt := e.(events.RecommendationStatusChanged)
		if evt.RecommendationID == approved.ID && evt.OldStatus == StatusApproved && evt.NewStatus == StatusCompleted {
			sawCompletion = true
		}
	}
	if !sawCompletion {
		t.Fatal("expected an Approved -> Completed status event for the closed case")
	}
}

func TestCaseStatusChangedIgnoresOtherTransitions(t *testing.T) {
	svc, _ := newTestRecommendation()
	caseID := uuid.NewString()
	rec, _ := svc.CreateRecommendation(context.Background(), CreateRecommendationInput{CaseID: caseID, Title: "A"})

	_, err := svc.HandleCaseStatusChanged(context.Background(), bus.EventContext[*events.CaseStatusChanged]{
		Event: &events.CaseStatusChanged{Envelope: events.NewEnvelope(), CaseID: caseID, NewStatus: "in_treatment"},
	})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	got, _ := svc.GetRecommendation(rec.ID)
	if got.Status != StatusPending {
		t.Fatalf("status = %q, want untouched Pending", got.Status)
	}
}

func TestHighHeartRateCreatesRecommendation(t *testing.T) {
	svc, _ := newTestRecommendation()
	patientID := uuid.NewString()

	handle := func(heartRate float64) {
		t.Helper()
		_, err := svc.HandleVitalSignsRecorded(context.Background(), bus.EventContext[*events.VitalSignsRecorded]{
			Event: &events.VitalSignsRecorded{Envelope: events.NewEnvelope(), PatientID: patientID, HeartRate: heartRate},
		})
		if err != nil {
			t.Fatalf("handler failed: %v", err)
		}
	}

	handle(100) // boundary: not above 100
	if recs := svc.repo.ListByCase(""); len(recs) != 0 {
		t.Fatalf("heart rate of exactly 100 must not trigger, got %d recommendations", len(recs))
	}

	handle(120)
	recs := svc.repo.ListByCase("")
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Type != TypeLifestyle {
		t.Fatalf("recommendation type = %q", recs[0].Type)
	}
}

func TestSevereAlertCreatesUrgentRecommendation(t *testing.T) {
	svc, _ := newTestRecommendation()
	patientID := uuid.NewString()

	handle := func(severity string) {
		t.Helper()
		_, err := svc.HandleAlertCreated(context.Background(), bus.EventContext[*events.AlertCreated]{
			Event: &events.AlertCreated{
				Envelope: events.NewEnvelope(), AlertID: uuid.NewString(),
				PatientID: patientID, VitalSign: "heartRate", Severity: severity,
			},
		})
		if err != nil {
			t.Fatalf("handler failed: %v", err)
		}
	}

	handle("Low")
	handle("Medium")
	if recs := svc.repo.ListByCase(""); len(recs) != 0 {
		t.Fatalf("low severities must not trigger, got %d", len(recs))
	}

	handle("High")
	handle("Critical")
	recs := svc.repo.ListByCase("")
	if len(recs) != 2 {
		t.Fatalf("got %d urgent recommendations, want 2", len(recs))
	}
	for _, rec := range recs {
		if rec.Type != TypeUrgent {
			t.Fatalf("recommendation type = %q", rec.Type)
		}
	}
}

func TestSessionOutcomeRulesAreMutuallyExclusive(t *testing.T) {
	tests := []struct {
		name     string
		pain     int
		fatigue  int
		wantType string
	}{
		{"high pain wins over high fatigue", 8, 9, TypePainManagement},
		{"high fatigue alone", 2, 9, TypeFatigueManagement},
		{"neither", 7, 8, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newTestRecommendation()

			_, err := svc.HandleSessionCompleted(context.Background(), bus.EventContext[*events.RehabilitationSessionCompleted]{
				Event: &events.RehabilitationSessionCompleted{
					Envelope: events.NewEnvelope(), SessionID: uuid.NewString(),
					PainLevel: tc.pain, FatigueLevel: tc.fatigue,
				},
			})
			if err != nil {
				t.Fatalf("handler failed: %v", err)
			}

			recs := svc.repo.ListByCase("")
			if tc.wantType == "" {
				if len(recs) != 0 {
					t.Fatalf("got %d recommendations, want none", len(recs))
				}
				return
			}
			if len(recs) != 1 {
				t.Fatalf("got %d recommendations, want 1", len(recs))
			}
			if recs[0].Type != tc.wantType {
				t.Fatalf("type = %q, want %q", recs[0].Type, tc.wantType)
			}
		})
	}
}

func TestCreateRecommendationSwallowsPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewService(NewMemoryRepository(), pub, newTestLogger())

	rec, err := svc.CreateRecommendation(context.Background(), CreateRecommendationInput{Title: "T"})
	if err != nil {
		t.Fatalf("publish failure must not fail the write: %v", err)
	}
	if _, err := svc.GetRecommendation(rec.ID); err != nil {
		t.Fatalf("recommendation not persisted: %v", err)
	}
}
