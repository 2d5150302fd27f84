package task

import "time"

// ErrorKind classifies why an execution failed. Content errors are expected
// and recoverable; infrastructure errors are not.
type ErrorKind string

// Execution error kinds.
const (
	// ErrKindInsufficientContent means too few source items were available
	// to produce a meaningful digest. Expected, recoverable.
	ErrKindInsufficientContent ErrorKind = "insufficient_content"

	// ErrKindFetch means the content source failed or denied access.
	ErrKindFetch ErrorKind = "fetch"

	// ErrKindProduce means the digest producer failed.
	ErrKindProduce ErrorKind = "produce"

	// ErrKindTimeout means the fetch or produce step exceeded its deadline.
	ErrKindTimeout ErrorKind = "timeout"

	// ErrKindInternal covers unexpected faults.
	ErrKindInternal ErrorKind = "internal"
)

// DeliveryOutcome records one destination's delivery attempt.
type DeliveryOutcome struct {
	Kind    DestinationKind `json:"kind"`
	Target  string          `json:"target"`
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
}

// ExecutionResult is the outcome of one execution attempt. Created by the
// executor, persisted by the scheduler as append-only history.
type ExecutionResult struct {
	TaskID      string            `json:"task_id"`
	ExecutionID string            `json:"execution_id"`
	Success     bool              `json:"success"`
	ArtifactRef string            `json:"artifact_ref,omitempty"`
	ErrKind     ErrorKind         `json:"err_kind,omitempty"`
	ErrMessage  string            `json:"err_message,omitempty"`
	Deliveries  []DeliveryOutcome `json:"deliveries,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	Duration    time.Duration     `json:"duration"`
}

// DeliveryFailures counts deliveries that did not succeed.
func (r ExecutionResult) DeliveryFailures() int {
	n := 0
	for _, d := range r.Deliveries {
		if !d.Success {
			n++
		}
	}
	return n
}
