package bus

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/curalink/curalink/internal/bus/errs"
	"github.com/curalink/curalink/internal/bus/ids"
	"github.com/curalink/curalink/internal/bus/jsoncodec"
	loggingpkg "github.com/curalink/curalink/internal/bus/logging"
	metadatapkg "github.com/curalink/curalink/internal/bus/metadata"
)

// NoOutput is the output type for subscriptions whose handlers never emit
// follow-up events through the router.
type NoOutput struct{}

// Subscription binds one queue (routing key) to a typed event handler.
// T is the consumed event type, O the type of events the handler may emit
// onto the Publish topic.
type Subscription[T any, O any] struct {
	Name    string
	Queue   string // routing key the subscription consumes, e.g. "patient.created"
	Publish string // optional routing key for events returned by the handler
	Handler EventHandler[T, O]
}

// EventContext exposes the incoming event and metadata to a handler.
type EventContext[T any] struct {
	Event    T
	Metadata metadatapkg.Metadata
	Logger   loggingpkg.ServiceLogger
}

// Outgoing is an event emitted by a handler onto the subscription's Publish
// topic.
type Outgoing[O any] struct {
	Event    O
	Metadata metadatapkg.Metadata
}

// EventHandler processes a deserialized event. Return values drive the
// acknowledgement protocol: nil acknowledges, an error requests redelivery,
// and a Discard-wrapped error routes the message to the poison queue.
type EventHandler[T any, O any] func(ctx context.Context, evt EventContext[T]) ([]Outgoing[O], error)

// Subscribe validates the registration, wraps the typed handler with
// deserialization, and attaches it to the service router. It is called once
// per (queue, event type) pair at service startup; a bad registration is a
// programming error surfaced before any message flows.
func Subscribe[T any, O any](svc *Service, cfg Subscription[T, O]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}

	wrapped, err := buildEventHandler(cfg.Handler, svc.Logger)
	if err != nil {
		return err
	}

	return svc.registerHandler(handlerRegistration{
		Name:         cfg.Name,
		ConsumeQueue: cfg.Queue,
		PublishQueue: cfg.Publish,
		Handler:      wrapped,
	})
}

// buildEventHandler converts a typed event handler into a Watermill handler.
// A payload that cannot be deserialized into T is classified unprocessable,
// which the poison middleware turns into a discard rather than a requeue.
func buildEventHandler[T any, O any](handler EventHandler[T, O], logger loggingpkg.ServiceLogger) (message.HandlerFunc, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}

	prototypeFactory, err := eventPrototypeFactory[T]()
	if err != nil {
		return nil, err
	}

	return func(msg *message.Message) ([]*message.Message, error) {
		typed := prototypeFactory()

		if err := jsoncodec.Unmarshal(msg.Payload, typed); err != nil {
			return nil, &UnprocessableEventError{
				payload: string(msg.Payload),
				err:     fmt.Errorf("failed to unmarshal event payload: %w", err),
			}
		}

		evt := EventContext[T]{
			Event:    typed,
			Metadata: metadatapkg.FromWatermill(msg.Metadata),
			Logger:   logger,
		}

		outgoing, err := handler(msg.Context(), evt)
		if err != nil {
			return nil, err
		}

		return convertOutgoing(outgoing, evt.Metadata)
	}, nil
}

func eventPrototypeFactory[T any]() (func() T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return nil, errspkg.ErrEventTypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return nil, errspkg.ErrEventPointerNeeded
	}
	elem := typ.Elem()
	return func() T {
		clone := reflect.New(elem).Interface()
		return clone.(T)
	}, nil
}

func convertOutgoing[O any](outputs []Outgoing[O], fallback metadatapkg.Metadata) ([]*message.Message, error) {
	if len(outputs) == 0 {
		return nil, nil
	}

	result := make([]*message.Message, len(outputs))
	for i, out := range outputs {
		payload, err := jsoncodec.Marshal(out.Event)
		if err != nil {
			return nil, err
		}

		md := out.Metadata
		if md == nil {
			md = fallback
		}
		md = md.Clone()
		md[metadatapkg.KeyEventSchema] = fmt.Sprintf("%T", out.Event)

		uuid := ids.NewEventID()
		if evt, ok := any(out.Event).(Event); ok {
			uuid = evt.EventID()
		}

		msg := message.NewMessage(uuid, payload)
		msg.Metadata = metadatapkg.ToWatermill(md)
		result[i] = msg
	}

	return result, nil
}
