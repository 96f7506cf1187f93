package types

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	// ErrInvalidParameters marks a malformed graph, layer or challenge
	// configuration. It is raised before any computation starts.
	ErrInvalidParameters = xerrors.New("invalid parameters")

	// ErrOutOfBounds marks an index outside the addressed structure. Given
	// validated parameters it is a programming error.
	ErrOutOfBounds = xerrors.New("index out of bounds")

	// ErrVerificationFailed marks evidence that did not match its commitment.
	// Verify reports it as a false result, never as an error.
	ErrVerificationFailed = xerrors.New("verification failed")

	// ErrStorageIO marks a failed read or write of the layer store.
	ErrStorageIO = xerrors.New("storage io")

	// ErrParameterMismatch marks public parameters or inputs that differ
	// between the prover and the verifier.
	ErrParameterMismatch = xerrors.New("parameter mismatch")
)

// NewInvalidParameters wraps ErrInvalidParameters with a formatted reason.
func NewInvalidParameters(format string, args ...interface{}) error {
	return xerrors.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidParameters)
}

// NewOutOfBounds wraps ErrOutOfBounds with the offending index and limit.
func NewOutOfBounds(what string, index, limit uint64) error {
	return xerrors.Errorf("%s %d not below %d: %w", what, index, limit, ErrOutOfBounds)
}

// NewVerificationFailed wraps ErrVerificationFailed with a formatted reason.
func NewVerificationFailed(format string, args ...interface{}) error {
	return xerrors.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrVerificationFailed)
}

// NewParameterMismatch wraps ErrParameterMismatch naming the field.
func NewParameterMismatch(field string, ours, theirs interface{}) error {
	return xerrors.Errorf("%s: expected %v, got %v: %w", field, ours, theirs, ErrParameterMismatch)
}

// WrapStorage wraps a store failure with ErrStorageIO, keeping the cause.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("%s: %v: %w", op, err, ErrStorageIO)
}
