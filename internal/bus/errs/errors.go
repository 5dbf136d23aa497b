package errs

import sterrors "errors"

var (
	ErrServiceRequired           = sterrors.New("curalink: bus service is required")
	ErrHandlerRequired           = sterrors.New("curalink: handler function is required")
	ErrConsumeQueueRequired      = sterrors.New("curalink: consume queue is required")
	ErrHandlerNameRequired       = sterrors.New("curalink: handler name is required")
	ErrEventTypeRequired         = sterrors.New("curalink: event type is required")
	ErrEventPointerNeeded        = sterrors.New("curalink: event type must be a pointer")
	ErrPublisherRequired         = sterrors.New("curalink: publisher is required")
	ErrTopicRequired             = sterrors.New("curalink: topic is required")
	ErrEventPayloadRequired      = sterrors.New("curalink: event payload is required")
	ErrPublishTopicWithoutOutput = sterrors.New("curalink: handler emitted events but has no publish topic")
	ErrNotFound                  = sterrors.New("curalink: entity not found")
)
