package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/curalink/curalink/internal/bus/errs"
	"github.com/curalink/curalink/internal/bus/jsoncodec"
	metadatapkg "github.com/curalink/curalink/internal/bus/metadata"
)

// Event is the contract every integration event satisfies: a globally unique
// identifier and a creation timestamp, both fixed at construction.
type Event interface {
	EventID() string
	EventOccurredAt() time.Time
}

// EventPublisher is the publishing port domain services depend on. The bus
// Service satisfies it; tests substitute capturing fakes.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event Event, md metadatapkg.Metadata) error
}

// NewMessage converts an integration event into a Watermill message. The
// message UUID is the event's own ID and the metadata carries the event
// schema name, content type, and creation timestamp, so brokers and
// consumers can correlate deliveries back to the originating occurrence.
func NewMessage(event Event, md metadatapkg.Metadata) (*message.Message, error) {
	if event == nil {
		return nil, errspkg.ErrEventPayloadRequired
	}

	payload, err := jsoncodec.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := message.NewMessage(event.EventID(), payload)
	msg.Metadata = metadatapkg.ToWatermill(md)
	msg.Metadata[metadatapkg.KeyEventSchema] = fmt.Sprintf("%T", event)
	msg.Metadata[metadatapkg.KeyContentType] = "application/json"
	msg.Metadata[metadatapkg.KeyOccurredAt] = strconv.FormatInt(event.EventOccurredAt().Unix(), 10)
	return msg, nil
}

// Publish marshals the event and publishes it to the provided topic. The
// call is synchronous with respect to the broker accepting the message for
// routing; it says nothing about consumption. Publishing to a topic with no
// bound consumers is not an error.
func Publish(ctx context.Context, publisher message.Publisher, topic string, event Event, md metadatapkg.Metadata) error {
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	msg, err := NewMessage(event, md)
	if err != nil {
		return err
	}

	if ctx != nil {
		msg.SetContext(ctx)
	}

	return publisher.Publish(topic, msg)
}

// Publish emits the event using the Service publisher so domain services can
// publish without touching the Watermill APIs directly.
func (s *Service) Publish(ctx context.Context, topic string, event Event, md metadatapkg.Metadata) error {
	if s == nil {
		return errors.New("bus service is nil")
	}
	return Publish(ctx, s.publisher, topic, event, md)
}
