package trips

import (
	"fmt"

	"minibus.schoolride.org/internal/fault"
)

const (
	TransitionStart      = "start"
	TransitionComplete   = "complete"
	TransitionCancel     = "cancel"
	TransitionMark       = "mark passenger"
	ReasonPendingRemains = "pending passengers remain"
)

// Rejection is returned for every transition the state machines refuse.
// State is left untouched when a Rejection is returned.
type Rejection struct {
	Transition string
	State      string
	Reason     string
}

func (r *Rejection) Error() string {
	msg := fmt.Sprintf("cannot %s from %s", r.Transition, r.State)
	if r.Reason != "" {
		msg += ": " + r.Reason
	}
	return msg
}

// PolicyFault exposes the rejection as a policy fault.
func (r *Rejection) PolicyFault() fault.PolicyError {
	reason := r.Reason
	if reason == "" {
		reason = fmt.Sprintf("cannot %s", r.Transition)
	}
	return fault.PolicyError{Op: r.Transition, Reason: reason, Measurement: "state " + r.State}
}

func reject(transition, state, reason string) *Rejection {
	return &Rejection{Transition: transition, State: state, Reason: reason}
}
