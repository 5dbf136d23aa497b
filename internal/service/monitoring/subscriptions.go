package monitoring

import (
	"context"

	"github.com/google/uuid"

	"github.com/curalink/curalink/internal/bus"
	"github.com/curalink/curalink/internal/bus/logging"
	"github.com/curalink/curalink/internal/events"
)

// RegisterSubscriptions attaches the monitoring event handlers to the bus
// service.
func RegisterSubscriptions(busSvc *bus.Service, svc *Service) error {
	return bus.Subscribe(busSvc, bus.Subscription[*events.PatientCreated, bus.NoOutput]{
		Name:    "monitoring_default_thresholds",
		Queue:   events.TopicPatientCreated,
		Handler: svc.HandlePatientCreated,
	})
}

// HandlePatientCreated seeds the default threshold configurations for a
// freshly created patient. A patient ID that is not a valid UUID is logged
// and acknowledged without creating anything, so one malformed upstream
// event cannot put the queue into a redelivery loop.
func (s *Service) HandlePatientCreated(ctx context.Context, evt bus.EventContext[*events.PatientCreated]) ([]bus.Outgoing[bus.NoOutput], error) {
	if _, err := uuid.Parse(evt.Event.PatientID); err != nil {
		s.log.Error("Ignoring patient.created with invalid patient id", err, logging.LogFields{
			"patient_id": evt.Event.PatientID,
			"event_id":   evt.Event.ID,
		})
		return nil, nil
	}

	created := s.CreateDefaultThresholds(evt.Event.PatientID)
	s.log.Info("Created default thresholds for patient", logging.LogFields{
		"patient_id": evt.Event.PatientID,
		"count":      len(created),
	})
	return nil, nil
}
