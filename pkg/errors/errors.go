// Package errors defines the pipeline's error taxonomy. The consumer engine
// classifies every handler failure as either permanent (the message can never
// succeed and is dead-lettered immediately) or transient (retried with backoff
// before dead-lettering).
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPayload marks a message whose body cannot be decoded.
	// Permanent: retrying a poison message never helps.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrInvalidLead marks a lead that failed validation (missing email or
	// name, bad email format). Permanent.
	ErrInvalidLead = errors.New("invalid lead")

	// ErrStorageUnavailable marks a database failure during the storage
	// stage. Transient: the lead is retried rather than lost.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrBrokerUnavailable marks a failed outbound publish. Transient.
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrLookupFailed marks a best-effort enrichment lookup failure. It is
	// absorbed inside the enrichment stage and never reaches the engine.
	ErrLookupFailed = errors.New("lookup failed")
)

// StageError wraps an error with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// InStage wraps err with stage attribution, preserving the error chain.
func InStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// IsPermanent reports whether err can never succeed on redelivery. Anything
// not explicitly permanent is treated as transient and retried, so an
// unclassified failure errs on the side of not losing the lead.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedPayload) || errors.Is(err, ErrInvalidLead)
}
