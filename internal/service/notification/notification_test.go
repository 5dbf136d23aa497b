package notification

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/curalink/curalink/internal/bus"
	"github.com/curalink/curalink/internal/bus/logging"
	"github.com/curalink/curalink/internal/events"
)

func newTestLogger() logging.ServiceLogger {
	return logging.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNotifyStoresUnreadNotification(t *testing.T) {
	svc := NewService(NewMemoryRepository(), newTestLogger())
	patientID := uuid.NewString()

	n := svc.Notify(patientID, KindAlert, "Title", "Message")
	if n.ID == "" {
		t.Fatal("notification id is empty")
	}
	if n.Read {
		t.Fatal("new notification must start unread")
	}

	got := svc.ListByPatient(patientID)
	if len(got) != 1 {
		t.Fatalf("listed %d notifications, want 1", len(got))
	}
	if got[0].Kind != KindAlert || got[0].Title != "Title" || got[0].Message != "Message" {
		t.Fatalf("stored notification = %+v", got[0])
	}
}

func TestListByPatientFilters(t *testing.T) {
	svc := NewService(NewMemoryRepository(), newTestLogger())
	patientID := uuid.NewString()

	svc.Notify(patientID, KindAlert, "A", "a")
	svc.Notify(uuid.NewString(), KindAlert, "B", "b")

	if got := svc.ListByPatient(patientID); len(got) != 1 {
		t.Fatalf("listed %d notifications, want 1", len(got))
	}
}

func TestHandleAlertCreatedNotifiesPatient(t *testing.T) {
	svc := NewService(NewMemoryRepository(), newTestLogger())
	patientID := uuid.NewString()

	evt := bus.EventContext[*events.AlertCreated]{Event: &events.AlertCreated{
		Envelope:  events.NewEnvelope(),
		AlertID:   uuid.NewString(),
		PatientID: patientID,
		VitalSign: "HeartRate",
		Severity:  "High",
		Message:   "HeartRate value 45 is outside the allowed range 60-100",
	}}
	if _, err := svc.HandleAlertCreated(context.Background(), evt); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	got := svc.ListByPatient(patientID)
	if len(got) != 1 {
		t.Fatalf("listed %d notifications, want 1", len(got))
	}
	if got[0].Kind != KindAlert {
		t.Fatalf("kind = %q, want %q", got[0].Kind, KindAlert)
	}
	if !strings.Contains(got[0].Title, "High") || !strings.Contains(got[0].Title, "HeartRate") {
		t.Fatalf("title %q misses severity or vital sign", got[0].Title)
	}
	if got[0].Message != evt.Event.Message {
		t.Fatalf("message = %q", got[0].Message)
	}
}

func TestHandleCaseStatusChangedNotifiesPatient(t *testing.T) {
	svc := NewService(NewMemoryRepository(), newTestLogger())
	patientID := uuid.NewString()
	caseID := uuid.NewString()

	evt := bus.EventContext[*events.CaseStatusChanged]{Event: &events.CaseStatusChanged{
		Envelope:  events.NewEnvelope(),
		CaseID:    caseID,
		PatientID: patientID,
		OldStatus: "open",
		NewStatus: "closed",
	}}
	if _, err := svc.HandleCaseStatusChanged(context.Background(), evt); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	got := svc.ListByPatient(patientID)
	if len(got) != 1 {
		t.Fatalf("listed %d notifications, want 1", len(got))
	}
	if got[0].Kind != KindCaseUpdate {
		t.Fatalf("kind = %q, want %q", got[0].Kind, KindCaseUpdate)
	}
	for _, want := range []string{caseID, "open", "closed"} {
		if !strings.Contains(got[0].Message, want) {
			t.Fatalf("message %q misses %q", got[0].Message, want)
		}
	}
}
