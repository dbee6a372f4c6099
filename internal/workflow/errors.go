package workflow

import "errors"

var (
	// ErrSkipped means a precondition was not met and the operation declined to run.
	ErrSkipped = errors.New("workflow: preconditions not met")
	// ErrBusy means the same operation is already in flight.
	ErrBusy = errors.New("workflow: operation already in flight")
	// ErrStale means the response arrived after the patient changed and was discarded.
	ErrStale = errors.New("workflow: response discarded after patient change")
	// ErrIncompleteResponse means the backend answered without the data the operation needs.
	ErrIncompleteResponse = errors.New("workflow: incomplete backend response")
)

// Banner messages used when the backend gives no explanation of its own.
const (
	msgIntakeFailed  = "Failed to run intake automation."
	msgSlotsFailed   = "Failed to fetch available slots."
	msgBookFailed    = "Failed to book appointment."
	msgBookedFailed  = "Failed to load booked appointments."
	msgDetailsFailed = "Failed to load appointment details."
)

// Operation outcome labels for metrics.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeSkipped = "skipped"
	outcomeBusy    = "busy"
	outcomeStale   = "stale"
)
