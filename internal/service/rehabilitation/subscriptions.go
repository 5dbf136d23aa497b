package rehabilitation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/curalink/curalink/internal/bus"
	"github.com/curalink/curalink/internal/events"
)

const caseStatusClosed = "closed"

// autoProgramDays is the length of a program created in reaction to a
// rehabilitation-type recommendation.
const autoProgramDays = 30

// RegisterSubscriptions attaches the rehabilitation event handlers to the
// bus service.
func RegisterSubscriptions(busSvc *bus.Service, svc *Service) error {
	if err := bus.Subscribe(busSvc, bus.Subscription[*events.CaseStatusChanged, bus.NoOutput]{
		Name:    "rehabilitation_case_closure",
		Queue:   events.TopicCaseStatusChanged,
		Handler: svc.HandleCaseStatusChanged,
	}); err != nil {
		return err
	}

	return bus.Subscribe(busSvc, bus.Subscription[*events.RecommendationCreated, bus.NoOutput]{
		Name:    "rehabilitation_auto_program",
		Queue:   events.TopicRecommendationCreated,
		Handler: svc.HandleRecommendationCreated,
	})
}

// HandleCaseStatusChanged completes every planned or running program of a
// case when the case closes, publishing a status-changed event per program.
func (s *Service) HandleCaseStatusChanged(ctx context.Context, evt bus.EventContext[*events.CaseStatusChanged]) ([]bus.Outgoing[bus.NoOutput], error) {
	if evt.Event.NewStatus != caseStatusClosed {
		return nil, nil
	}

	for _, p := range s.repo.ProgramsByCase(evt.Event.CaseID) {
		if !p.Active() {
			continue
		}
		if _, err := s.ChangeProgramStatus(ctx, p.ID, StatusCompleted); err != nil {
			return nil, fmt.Errorf("completing program %s after case closure: %w", p.ID, err)
		}
	}
	return nil, nil
}

// HandleRecommendationCreated auto-creates a 30-day program starting
// tomorrow when a recommendation's type or title mentions rehabilitation or
// exercise.
func (s *Service) HandleRecommendationCreated(ctx context.Context, evt bus.EventContext[*events.RecommendationCreated]) ([]bus.Outgoing[bus.NoOutput], error) {
	if !wantsProgram(evt.Event.Type) && !wantsProgram(evt.Event.Title) {
		return nil, nil
	}

	start := time.Now().UTC().AddDate(0, 0, 1)
	_, err := s.CreateProgram(ctx, CreateProgramInput{
		CaseID:      evt.Event.CaseID,
		PatientID:   evt.Event.PatientID,
		Title:       fmt.Sprintf("Program for recommendation: %s", evt.Event.Title),
		Description: fmt.Sprintf("Auto-created from recommendation %s.", evt.Event.RecommendationID),
		StartDate:   start,
		EndDate:     start.AddDate(0, 0, autoProgramDays),
	})
	return nil, err
}

func wantsProgram(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "rehabilitation") || strings.Contains(lower, "exercise")
}
