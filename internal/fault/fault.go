// Package fault defines the three failure kinds surfaced by the core.
// Input and policy faults need a changed input and are never retried;
// transport faults may be retried by the user.
package fault

import (
	"errors"
	"fmt"
)

// InputError is a malformed value rejected before any policy is evaluated.
type InputError struct {
	Field  string
	Reason string
	Err    error
}

func (e InputError) Error() string {
	switch {
	case e.Field != "" && e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	case e.Reason != "":
		return e.Reason
	case e.Field != "":
		return fmt.Sprintf("invalid %s", e.Field)
	default:
		return "invalid input"
	}
}

func (e InputError) Unwrap() error { return e.Err }

// PolicyError is a well-formed request that a rule refuses. Measurement
// carries the offending value (distance, seat deficit, current state).
type PolicyError struct {
	Op          string
	Reason      string
	Measurement string
}

func (e PolicyError) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = "rejected"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Measurement != "" {
		msg += " (" + e.Measurement + ")"
	}
	return msg
}

// TransportError is a failed call to a collaborator endpoint.
type TransportError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": transport failure"
	}
}

func (e TransportError) Unwrap() error { return e.Err }

// Policy is implemented by domain rejections that are policy faults
// without being a PolicyError value.
type Policy interface {
	error
	PolicyFault() PolicyError
}

func IsInput(err error) bool {
	var target InputError
	return errors.As(err, &target)
}

func IsPolicy(err error) bool {
	var target PolicyError
	if errors.As(err, &target) {
		return true
	}
	var p Policy
	return errors.As(err, &p)
}

func IsTransport(err error) bool {
	var target TransportError
	return errors.As(err, &target)
}

// IsRetryable reports whether the user may retry the same request.
func IsRetryable(err error) bool {
	return IsTransport(err)
}

// AsPolicy extracts the policy details from err.
func AsPolicy(err error) (PolicyError, bool) {
	var target PolicyError
	if errors.As(err, &target) {
		return target, true
	}
	var p Policy
	if errors.As(err, &p) {
		return p.PolicyFault(), true
	}
	return PolicyError{}, false
}
