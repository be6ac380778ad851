package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoDevices indicates discovery found nothing selectable.
var ErrNoDevices = errors.New("no usable devices found")

// ValidationError indicates a user selection that does not match what
// discovery reported.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ProvisioningError indicates a resource allocation failure. No retry is
// attempted: blindly re-running modprobe or pactl against a half-created
// resource risks leaking it.
type ProvisioningError struct {
	Kind ResourceKind
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s: %v", e.Kind, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// LaunchError indicates the mirror process failed to start.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching mirror process: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ReleaseFailure records one teardown step that failed.
type ReleaseFailure struct {
	Kind   ResourceKind
	Handle string
	Err    error
}

// ReleaseError aggregates teardown failures. Every stack entry gets exactly
// one release attempt; failures are collected, never fatal to the remaining
// entries.
type ReleaseError struct {
	// Attempted is the total number of release actions issued.
	Attempted int
	Failures  []ReleaseFailure
}

func (e *ReleaseError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s %s: %v", f.Kind, f.Handle, f.Err))
	}
	return fmt.Sprintf("teardown incomplete (%d of %d releases failed): %s",
		len(e.Failures), e.Attempted, strings.Join(parts, "; "))
}
