// Package ids generates the identifiers stamped onto events and messages.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID returns a time-sortable ULID for an event envelope. The same
// value becomes the message UUID on the wire, so consumers can correlate a
// delivery with the event it carries.
func NewEventID() string {
	return newULID()
}

// NewCorrelationID returns a ULID used to tie together every message that
// descends from one inbound delivery.
func NewCorrelationID() string {
	return newULID()
}

func newULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}
