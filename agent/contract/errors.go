package contract

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrGenerate           = errors.New("generation failed")
	ErrMemoryUnavailable  = errors.New("memory store unavailable")
	ErrSharedDataConflict = errors.New("shared data rewritten with conflicting content")
	ErrDuplicateRoute     = errors.New("responder already ran for this request")
)

// FailKind classifies generation-service failures. The adapter decodes the
// upstream fault into exactly one kind at its boundary; callers never
// re-inspect raw transport errors.
type FailKind string

const (
	FailTimeout     FailKind = "timeout"
	FailMalformed   FailKind = "malformed"
	FailUnavailable FailKind = "unavailable"
)

// GenerateError is the typed result for a failed generation call.
type GenerateError struct {
	Kind FailKind
	Err  error
}

func (e *GenerateError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generate: %s", e.Kind)
	}
	return fmt.Sprintf("generate: %s: %v", e.Kind, e.Err)
}

func (e *GenerateError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrGenerate
}

func (e *GenerateError) Is(target error) bool {
	return target == ErrGenerate
}

// FailureKind extracts the failure kind from an error chain. Unknown errors
// are reported as unavailable.
func FailureKind(err error) FailKind {
	var ge *GenerateError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return FailUnavailable
}
