// Package readiness turns price, allowance and balance signals into the one
// action a user can take next: approve, review the trade, or nothing.
package readiness

import (
	"errors"
	"fmt"

	"cryptoswap/pkg/allowance"
)

// ErrInvalidTransition is returned when an event does not apply to a state
var ErrInvalidTransition = errors.New("invalid transition")

// State is the readiness of the current trade
type State string

const (
	StateIdle          State = "idle"            // No amount entered
	StatePricing       State = "pricing"         // Price request outstanding
	StatePriced        State = "priced"          // Price known, approval still needed
	StateApproving     State = "approving"       // Approval transaction in flight
	StateReadyToReview State = "ready_to_review" // Price known and allowance is fine
	StateFinalized     State = "finalized"       // Handed to the quote/execution stage
)

// EventKind enumerates what can happen to a trade
type EventKind string

const (
	EventInputChanged      EventKind = "input_changed"
	EventInputCleared      EventKind = "input_cleared"
	EventPriceResolved     EventKind = "price_resolved"
	EventPriceFailed       EventKind = "price_failed"
	EventAllowanceUpdated  EventKind = "allowance_updated"
	EventApproveStarted    EventKind = "approve_started"
	EventApprovalConfirmed EventKind = "approval_confirmed"
	EventApprovalFailed    EventKind = "approval_failed"
	EventReview            EventKind = "review"
	EventReset             EventKind = "reset"
)

// Event is an input to Transition
type Event struct {
	Kind EventKind
	// Allowance is the gate verdict carried by price, allowance and approval events
	Allowance allowance.State
	// HasPrice says whether an earlier price is still held after a failed poll
	HasPrice bool
}

// afterPrice is where a trade lands once its allowance verdict is known
func afterPrice(gate allowance.State) State {
	if gate.CanTrade() {
		return StateReadyToReview
	}
	return StatePriced
}

// Transition is the pure state function of the readiness machine
func Transition(s State, e Event) (State, error) {
	if e.Kind == EventReset {
		return StateIdle, nil
	}
	if s == StateFinalized {
		return s, fmt.Errorf("%w: %s after %s", ErrInvalidTransition, e.Kind, s)
	}

	// An approval in flight is only ended by its own outcome
	if s == StateApproving {
		switch e.Kind {
		case EventApprovalConfirmed:
			return afterPrice(e.Allowance), nil
		case EventApprovalFailed:
			return StatePriced, nil
		case EventInputChanged, EventInputCleared, EventPriceResolved, EventPriceFailed, EventAllowanceUpdated:
			return s, nil
		default:
			return s, fmt.Errorf("%w: %s while approving", ErrInvalidTransition, e.Kind)
		}
	}

	switch e.Kind {
	case EventInputChanged:
		return StatePricing, nil

	case EventInputCleared:
		return StateIdle, nil

	case EventPriceResolved:
		if s == StateIdle {
			return s, fmt.Errorf("%w: price without an amount", ErrInvalidTransition)
		}
		return afterPrice(e.Allowance), nil

	case EventPriceFailed:
		if s != StatePricing {
			return s, nil
		}
		if e.HasPrice {
			return afterPrice(e.Allowance), nil
		}
		return StateIdle, nil

	case EventAllowanceUpdated:
		if s == StatePriced || s == StateReadyToReview {
			return afterPrice(e.Allowance), nil
		}
		return s, nil

	case EventApproveStarted:
		if s != StatePriced || e.Allowance != allowance.ApprovalRequired {
			return s, fmt.Errorf("%w: approve from %s with allowance %s", ErrInvalidTransition, s, e.Allowance)
		}
		return StateApproving, nil

	case EventReview:
		if s != StateReadyToReview {
			return s, fmt.Errorf("%w: review from %s", ErrInvalidTransition, s)
		}
		return StateFinalized, nil

	case EventApprovalConfirmed, EventApprovalFailed:
		return s, fmt.Errorf("%w: %s without a pending approval", ErrInvalidTransition, e.Kind)
	}

	return s, fmt.Errorf("%w: unknown event %s", ErrInvalidTransition, e.Kind)
}
