package readiness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"cryptoswap/pkg/allowance"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		event   Event
		want    State
		invalid bool
	}{
		{"amount typed", StateIdle, Event{Kind: EventInputChanged}, StatePricing, false},
		{"amount cleared", StatePriced, Event{Kind: EventInputCleared}, StateIdle, false},
		{"price needs approval", StatePricing, Event{Kind: EventPriceResolved, Allowance: allowance.ApprovalRequired}, StatePriced, false},
		{"price without allowance issue", StatePricing, Event{Kind: EventPriceResolved, Allowance: allowance.NoAllowanceRequired}, StateReadyToReview, false},
		{"price with sufficient allowance", StatePricing, Event{Kind: EventPriceResolved, Allowance: allowance.Sufficient}, StateReadyToReview, false},
		{"price while idle", StateIdle, Event{Kind: EventPriceResolved}, StateIdle, true},
		{"failure with nothing priced", StatePricing, Event{Kind: EventPriceFailed}, StateIdle, false},
		{"failure keeps earlier price", StatePricing, Event{Kind: EventPriceFailed, HasPrice: true, Allowance: allowance.Sufficient}, StateReadyToReview, false},
		{"re-priced needs approval again", StateReadyToReview, Event{Kind: EventPriceResolved, Allowance: allowance.ApprovalRequired}, StatePriced, false},
		{"allowance granted elsewhere", StatePriced, Event{Kind: EventAllowanceUpdated, Allowance: allowance.Sufficient}, StateReadyToReview, false},
		{"approve", StatePriced, Event{Kind: EventApproveStarted, Allowance: allowance.ApprovalRequired}, StateApproving, false},
		{"approve when not required", StatePriced, Event{Kind: EventApproveStarted, Allowance: allowance.Sufficient}, StatePriced, true},
		{"approve before price", StatePricing, Event{Kind: EventApproveStarted, Allowance: allowance.ApprovalRequired}, StatePricing, true},
		{"approval confirmed", StateApproving, Event{Kind: EventApprovalConfirmed, Allowance: allowance.Sufficient}, StateReadyToReview, false},
		{"approval confirmed but still zero", StateApproving, Event{Kind: EventApprovalConfirmed, Allowance: allowance.ApprovalRequired}, StatePriced, false},
		{"approval failed", StateApproving, Event{Kind: EventApprovalFailed}, StatePriced, false},
		{"edit while approving", StateApproving, Event{Kind: EventInputChanged}, StateApproving, false},
		{"review twice while approving", StateApproving, Event{Kind: EventReview}, StateApproving, true},
		{"confirmation without approval", StatePriced, Event{Kind: EventApprovalConfirmed}, StatePriced, true},
		{"review", StateReadyToReview, Event{Kind: EventReview}, StateFinalized, false},
		{"review too early", StatePriced, Event{Kind: EventReview}, StatePriced, true},
		{"finalized is terminal", StateFinalized, Event{Kind: EventInputChanged}, StateFinalized, true},
		{"reset", StateFinalized, Event{Kind: EventReset}, StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.from, tt.event)
			assert.Equal(t, tt.want, got)
			if tt.invalid {
				assert.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecideAction(t *testing.T) {
	ready := Inputs{Connected: true, HasPrice: true, BalanceSufficient: true, Allowance: allowance.Sufficient}

	tests := []struct {
		name    string
		in      func(Inputs) Inputs
		kind    ActionKind
		label   string
		enabled bool
	}{
		{"ready", func(in Inputs) Inputs { return in }, ActionReview, "Review Trade", true},
		{"no wallet", func(in Inputs) Inputs { in.Connected = false; return in }, ActionConnectWallet, "Connect Wallet", true},
		{"approval needed", func(in Inputs) Inputs { in.Allowance = allowance.ApprovalRequired; return in }, ActionApprove, "Approve", true},
		{"approving", func(in Inputs) Inputs {
			in.Allowance = allowance.ApprovalRequired
			in.Approving = true
			return in
		}, ActionApproving, "Approving…", false},
		{"balance wins over approve", func(in Inputs) Inputs {
			in.Allowance = allowance.ApprovalRequired
			in.BalanceSufficient = false
			return in
		}, ActionInsufficientBalance, "Insufficient Balance", false},
		{"no price yet", func(in Inputs) Inputs { in.HasPrice = false; return in }, ActionReview, "Review Trade", false},
		{"native token", func(in Inputs) Inputs { in.Allowance = allowance.NoAllowanceRequired; return in }, ActionReview, "Review Trade", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideAction(tt.in(ready))
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.label, got.Label)
			assert.Equal(t, tt.enabled, got.Enabled)
		})
	}
}
