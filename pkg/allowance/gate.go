// Package allowance decides whether an ERC-20 approval is needed before a trade.
package allowance

import (
	"math/big"

	"cryptoswap/pkg/types"
)

// State is the gate's verdict
type State string

const (
	NoAllowanceRequired State = "NO_ALLOWANCE_REQUIRED"
	ApprovalRequired    State = "APPROVAL_REQUIRED"
	Sufficient          State = "SUFFICIENT"
)

// Mode selects how a live allowance is compared
type Mode string

const (
	// ModeNonZero treats any nonzero allowance as sufficient
	ModeNonZero Mode = "nonzero"
	// ModeAmount requires the allowance to cover the sell amount
	ModeAmount Mode = "amount"
)

// Evaluate is the gate. allowance is the live reading (nil when not read yet);
// required is the smallest-unit sell amount, only consulted in ModeAmount.
func Evaluate(snapshot *types.PriceSnapshot, allowance, required *big.Int, mode Mode) State {
	if !snapshot.RequiresAllowance() {
		return NoAllowanceRequired
	}
	if allowance == nil || allowance.Sign() == 0 {
		return ApprovalRequired
	}
	if mode == ModeAmount && required != nil && allowance.Cmp(required) < 0 {
		return ApprovalRequired
	}
	return Sufficient
}

// CanTrade reports whether the state lets a trade proceed
func (s State) CanTrade() bool {
	return s == NoAllowanceRequired || s == Sufficient
}
