package recommendation

import (
	"context"
	"fmt"

	"github.com/curalink/curalink/internal/bus"
	"github.com/curalink/curalink/internal/bus/logging"
	"github.com/curalink/curalink/internal/events"
)

const caseStatusClosed = "closed"

// Heart-rate, pain, and fatigue levels above these create recommendations.
const (
	highHeartRate    = 100.0
	highPainLevel    = 7
	highFatigueLevel = 8
)

// RegisterSubscriptions attaches the recommendation event handlers to the
// bus service.
func RegisterSubscriptions(busSvc *bus.Service, svc *Service) error {
	if err := bus.Subscribe(busSvc, bus.Subscription[*events.CaseStatusChanged, bus.NoOutput]{
		Name:    "recommendation_case_closure",
		Queue:   events.TopicCaseStatusChanged,
		Handler: svc.HandleCaseStatusChanged,
	}); err != nil {
		return err
	}

	if err := bus.Subscribe(busSvc, bus.Subscription[*events.VitalSignsRecorded, bus.NoOutput]{
		Name:    "recommendation_vitals",
		Queue:   events.TopicVitalSignsRecorded,
		Handler: svc.HandleVitalSignsRecorded,
	}); err != nil {
		return err
	}

	if err := bus.Subscribe(busSvc, bus.Subscription[*events.AlertCreated, bus.NoOutput]{
		Name:    "recommendation_alerts",
		Queue:   events.TopicAlertCreated,
		Handler: svc.HandleAlertCreated,
	}); err != nil {
		return err
	}

	return bus.Subscribe(busSvc, bus.Subscription[*events.RehabilitationSessionCompleted, bus.NoOutput]{
		Name:    "recommendation_sessions",
		Queue:   events.TopicSessionCompleted,
		Handler: svc.HandleSessionCompleted,
	})
}

// HandleCaseStatusChanged completes every active recommendation of a case
// when the case closes. Each transition publishes its own
// recommendation.status.changed event. A failed transition is returned so
// the message is redelivered; completions are idempotent because completed
// recommendations no longer count as active.
func (s *Service) HandleCaseStatusChanged(ctx context.Context, evt bus.EventContext[*events.CaseStatusChanged]) ([]bus.Outgoing[bus.NoOutput], error) {
	if evt.Event.NewStatus != caseStatusClosed {
		return nil, nil
	}

	for _, rec := range s.repo.ListByCase(evt.Event.CaseID) {
		if !rec.Active() {
			continue
		}
		if _, err := s.ChangeStatus(ctx, rec.ID, StatusCompleted); err != nil {
			return nil, fmt.Errorf("completing recommendation %s after case closure: %w", rec.ID, err)
		}
	}
	return nil, nil
}

// HandleVitalSignsRecorded creates a cardio-load recommendation when the
// recorded heart rate is above 100.
func (s *Service) HandleVitalSignsRecorded(ctx context.Context, evt bus.EventContext[*events.VitalSignsRecorded]) ([]bus.Outgoing[bus.NoOutput], error) {
	if evt.Event.HeartRate <= highHeartRate {
		return nil, nil
	}

	_, err := s.CreateRecommendation(ctx, CreateRecommendationInput{
		PatientID:   evt.Event.PatientID,
		Type:        TypeLifestyle,
		Title:       "Reduce cardio intensity",
		Description: fmt.Sprintf("Recorded heart rate %g is above %g. Reduce cardio load and re-measure.", evt.Event.HeartRate, highHeartRate),
	})
	return nil, err
}

// HandleAlertCreated creates an urgent recommendation for High and Critical
// alerts, referencing the originating alert.
func (s *Service) HandleAlertCreated(ctx context.Context, evt bus.EventContext[*events.AlertCreated]) ([]bus.Outgoing[bus.NoOutput], error) {
	severity := evt.Event.Severity
	if severity != "High" && severity != "Critical" {
		return nil, nil
	}

	_, err := s.CreateRecommendation(ctx, CreateRecommendationInput{
		PatientID:   evt.Event.PatientID,
		Type:        TypeUrgent,
		Title:       fmt.Sprintf("Urgent review of %s alert", evt.Event.VitalSign),
		Description: fmt.Sprintf("Alert %s (%s): %s", evt.Event.AlertID, severity, evt.Event.Message),
	})
	return nil, err
}

// HandleSessionCompleted reacts to self-reported session outcomes: pain
// above 7 creates a pain-management recommendation; otherwise fatigue above
// 8 creates a fatigue-management one. The checks are mutually exclusive,
// pain first.
func (s *Service) HandleSessionCompleted(ctx context.Context, evt bus.EventContext[*events.RehabilitationSessionCompleted]) ([]bus.Outgoing[bus.NoOutput], error) {
	switch {
	case evt.Event.PainLevel > highPainLevel:
		_, err := s.CreateRecommendation(ctx, CreateRecommendationInput{
			PatientID:   evt.Event.PatientID,
			Type:        TypePainManagement,
			Title:       "Pain management review",
			Description: fmt.Sprintf("Reported pain level %d after session %s.", evt.Event.PainLevel, evt.Event.SessionID),
		})
		return nil, err
	case evt.Event.FatigueLevel > highFatigueLevel:
		_, err := s.CreateRecommendation(ctx, CreateRecommendationInput{
			PatientID:   evt.Event.PatientID,
			Type:        TypeFatigueManagement,
			Title:       "Fatigue management review",
			Description: fmt.Sprintf("Reported fatigue level %d after session %s.", evt.Event.FatigueLevel, evt.Event.SessionID),
		})
		return nil, err
	}

	s.log.Trace("Session completed without follow-up recommendation", logging.LogFields{
		"session_id": evt.Event.SessionID,
	})
	return nil, nil
}
