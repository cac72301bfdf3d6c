package upstream

import (
	"errors"
	"fmt"
)

// Sentinel errors for the two upstream statuses with fixed meanings. Their
// messages are what callers see — neither carries credential material.
var (
	// ErrUnauthorized means the REI API rejected the unit's credential.
	ErrUnauthorized = errors.New("rei api rejected credential")

	// ErrAgentNotFound means the REI API has no agent behind the
	// credential. Distinct from a unit missing from our own registry.
	ErrAgentNotFound = errors.New("rei agent not found")

	// ErrTimeout means we stopped waiting for the REI API. The completion
	// may still be running upstream — giving up on the read does not
	// cancel the work on their side.
	ErrTimeout = errors.New("rei api timed out; the operation may still be running upstream")
)

// StatusError is any other non-200 upstream status. The raw body is kept
// so the gateway can pass upstream detail through to its caller.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rei api error (status %d): %s", e.Status, e.Body)
}
