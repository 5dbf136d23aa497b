package bus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// UnprocessableEventError marks a delivery that can never succeed: a payload
// that failed deserialization, or one a handler explicitly discarded. The
// poison middleware moves such messages to the poison queue instead of
// requeueing them.
type UnprocessableEventError struct {
	payload string
	err     error
}

func (e *UnprocessableEventError) Error() string {
	return "unprocessable event: " + e.payload + " error: " + e.err.Error()
}

func (e *UnprocessableEventError) Unwrap() error {
	return e.err
}

// Discard wraps an error so the subscription treats the current message as
// poison: it is acknowledged away to the poison queue, never requeued.
// Returning a plain error instead requests redelivery; returning nil
// acknowledges. This makes the retry-vs-discard decision an explicit return
// value of every handler.
func Discard(err error) error {
	if err == nil {
		err = errors.New("discarded")
	}
	return &UnprocessableEventError{err: err}
}

// IsUnprocessable reports whether err classifies the message as poison.
func IsUnprocessable(err error) bool {
	var u *UnprocessableEventError
	return errors.As(err, &u)
}

// HandlerStats tracks per-handler processing counters exposed through
// Service.Handlers.
type HandlerStats struct {
	mu sync.Mutex

	MessagesProcessed   uint64
	MessagesFailed      uint64
	TotalProcessingTime time.Duration
	LastProcessedAt     time.Time
	LastError           string
	Errors              ErrorBreakdown
}

// ErrorBreakdown buckets handler failures by category.
type ErrorBreakdown struct {
	Unprocessable uint64
	Downstream    uint64
	Other         uint64
}

func (h *HandlerStats) record(duration time.Duration, err error, classifier ErrorClassifier) {
	if classifier == nil {
		classifier = defaultErrorClassifier
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.MessagesProcessed++
	if err != nil {
		h.MessagesFailed++
		h.LastError = err.Error()
		switch classifier(err) {
		case ErrorCategoryUnprocessable:
			h.Errors.Unprocessable++
		case ErrorCategoryDownstream:
			h.Errors.Downstream++
		default:
			h.Errors.Other++
		}
	}
	h.TotalProcessingTime += duration
	h.LastProcessedAt = time.Now().UTC()
}

// Snapshot returns a copy of the counters without the lock.
func (h *HandlerStats) Snapshot() HandlerStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HandlerStats{
		MessagesProcessed:   h.MessagesProcessed,
		MessagesFailed:      h.MessagesFailed,
		TotalProcessingTime: h.TotalProcessingTime,
		LastProcessedAt:     h.LastProcessedAt,
		LastError:           h.LastError,
		Errors:              h.Errors,
	}
}

// HandlerInfo describes a registered subscription.
type HandlerInfo struct {
	Name         string
	ConsumeQueue string
	PublishQueue string
	Stats        *HandlerStats
}

// ErrorCategory buckets handler failures for logging and stats.
type ErrorCategory string

const (
	ErrorCategoryNone          ErrorCategory = "none"
	ErrorCategoryUnprocessable ErrorCategory = "unprocessable"
	ErrorCategoryDownstream    ErrorCategory = "downstream"
	ErrorCategoryOther         ErrorCategory = "other"
)

// ErrorClassifier maps a handler error onto an ErrorCategory.
type ErrorClassifier func(error) ErrorCategory

func defaultErrorClassifier(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	if IsUnprocessable(err) {
		return ErrorCategoryUnprocessable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryDownstream
	}
	return ErrorCategoryOther
}
