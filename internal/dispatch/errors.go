package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDispatchInFlight rejects a dispatch that would overlap one still
// outstanding from this client.
var ErrDispatchInFlight = errors.New("another dispatch is already in flight")

// TriggerError reports the failure of one trigger call.
type TriggerError struct {
	Event   string
	VideoID string
	Err     error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("trigger %s for %s: %v", e.Event, e.VideoID, e.Err)
}

func (e *TriggerError) Unwrap() error { return e.Err }

// BatchError aggregates the per-target failures of a bulk dispatch. Triggers
// that succeeded before or alongside a failure have already taken effect
// remotely and are not rolled back.
type BatchError struct {
	Event     string
	Attempted int
	Failures  []*TriggerError
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.VideoID)
	}
	return fmt.Sprintf("bulk %s: %d of %d triggers failed (%s)",
		e.Event, len(e.Failures), e.Attempted, strings.Join(ids, ", "))
}
