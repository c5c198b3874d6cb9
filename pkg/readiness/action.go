package readiness

import "cryptoswap/pkg/allowance"

// ActionKind is the single action offered to the user
type ActionKind string

const (
	ActionConnectWallet       ActionKind = "connect_wallet"
	ActionInsufficientBalance ActionKind = "insufficient_balance"
	ActionApprove             ActionKind = "approve"
	ActionApproving           ActionKind = "approving"
	ActionReview              ActionKind = "review"
)

// Action is what the action button shows
type Action struct {
	Kind    ActionKind
	Label   string
	Enabled bool
}

// Inputs are the signals DecideAction composes
type Inputs struct {
	Connected         bool
	HasPrice          bool
	Approving         bool
	BalanceSufficient bool
	Allowance         allowance.State
}

// DecideAction picks the button. Insufficient balance wins over Approve, so a
// user short on funds is never asked to approve first.
func DecideAction(in Inputs) Action {
	switch {
	case !in.Connected:
		return Action{Kind: ActionConnectWallet, Label: "Connect Wallet", Enabled: true}
	case in.Approving:
		return Action{Kind: ActionApproving, Label: "Approving…", Enabled: false}
	case !in.BalanceSufficient:
		return Action{Kind: ActionInsufficientBalance, Label: "Insufficient Balance", Enabled: false}
	case in.Allowance == allowance.ApprovalRequired:
		return Action{Kind: ActionApprove, Label: "Approve", Enabled: true}
	default:
		return Action{Kind: ActionReview, Label: "Review Trade", Enabled: in.HasPrice}
	}
}
