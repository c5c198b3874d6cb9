package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"cryptoswap/pkg/allowance"
	"cryptoswap/pkg/chain"
	"cryptoswap/pkg/types"
)

var (
	// ErrNotConnected is returned when an action needs a wallet
	ErrNotConnected = errors.New("wallet not connected")
	// ErrNotReady is returned by Review when the trade cannot be reviewed yet
	ErrNotReady = errors.New("trade is not ready for review")
	// ErrApprovalFailed wraps submission and confirmation failures of an approval
	ErrApprovalFailed = errors.New("approval failed")
	// ErrNoAllowanceTracker is returned by Approve when the session cannot re-read the allowance
	ErrNoAllowanceTracker = errors.New("no allowance tracker")
)

// Wallet is the chain access a session needs
type Wallet interface {
	Address() common.Address
	CanSign() bool
	BalanceOf(ctx context.Context, token string, owner common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
	WaitConfirmed(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// PriceView is what the session needs to know about the latest price poll
type PriceView struct {
	Empty      bool // the edited amount is empty
	Loading    bool
	Fresh      bool // Snapshot belongs to the current inputs
	Snapshot   *types.PriceSnapshot
	SellToken  *types.Token
	SellAmount *big.Int // smallest units, nil when unknown
}

// Session drives one trade from price to review
type Session struct {
	id      string
	wallet  Wallet
	tracker *allowance.Tracker
	mode    allowance.Mode
	logger  *slog.Logger

	mu         sync.Mutex
	state      State
	view       PriceView
	balance    *types.BalanceSnapshot
	balanceGen uint64
	approvalTx common.Hash
	err        error
}

// NewSession creates a session. wallet may be nil when no wallet is connected.
func NewSession(wallet Wallet, tracker *allowance.Tracker, mode allowance.Mode, logger *slog.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:      id,
		wallet:  wallet,
		tracker: tracker,
		mode:    mode,
		logger:  logger.With("session_id", id),
		state:   StateIdle,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the last recoverable error, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) DismissError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// ApprovalTx is the hash of the last approval sent
func (s *Session) ApprovalTx() common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approvalTx
}

// Balance returns the last applied balance reading
func (s *Session) Balance() *types.BalanceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

func (s *Session) connected() bool {
	return s.wallet != nil
}

// Gate evaluates the allowance for the current price
func (s *Session) Gate() allowance.State {
	s.mu.Lock()
	view := s.view
	s.mu.Unlock()
	return s.gate(view)
}

func (s *Session) gate(view PriceView) allowance.State {
	var live *big.Int
	if s.tracker != nil {
		live = s.tracker.Value()
	}
	return allowance.Evaluate(view.Snapshot, live, view.SellAmount, s.mode)
}

// Action is the button for the current state
func (s *Session) Action() Action {
	s.mu.Lock()
	view, state, balance := s.view, s.state, s.balance
	s.mu.Unlock()

	return DecideAction(Inputs{
		Connected:         s.connected(),
		HasPrice:          view.Snapshot != nil && view.Fresh,
		Approving:         state == StateApproving,
		BalanceSufficient: balance.Covers(view.SellAmount),
		Allowance:         s.gate(view),
	})
}

func (s *Session) fire(e Event) {
	next, err := Transition(s.state, e)
	if err != nil {
		s.logger.Debug("ignored event", "state", s.state, "event", e.Kind, "error", err)
		return
	}
	if next != s.state {
		s.logger.Debug("state changed", "from", s.state, "to", next, "event", e.Kind)
	}
	s.state = next
}

// Sync folds the latest price poll into the session and, once a current
// price is known, refreshes the allowance and balance readings.
func (s *Session) Sync(ctx context.Context, view PriceView) error {
	s.mu.Lock()
	s.view = view
	switch {
	case view.Empty:
		s.fire(Event{Kind: EventInputCleared})
	case view.Loading:
		s.fire(Event{Kind: EventInputChanged})
	case !view.Fresh:
		s.fire(Event{Kind: EventInputChanged})
		s.fire(Event{Kind: EventPriceFailed, HasPrice: view.Snapshot != nil, Allowance: s.gate(view)})
	}
	s.mu.Unlock()

	if view.Empty || view.Loading || !view.Fresh {
		return nil
	}

	var errs []error
	if s.connected() && view.SellToken != nil {
		if err := s.refreshBalance(ctx, *view.SellToken); err != nil {
			errs = append(errs, err)
		}
		if view.Snapshot.RequiresAllowance() {
			if err := s.refreshAllowance(ctx, view); err != nil {
				errs = append(errs, err)
			}
		}
	}

	s.mu.Lock()
	if s.state == StateIdle {
		s.fire(Event{Kind: EventInputChanged})
	}
	s.fire(Event{Kind: EventPriceResolved, Allowance: s.gate(view)})
	s.mu.Unlock()

	return errors.Join(errs...)
}

func (s *Session) refreshAllowance(ctx context.Context, view PriceView) error {
	if s.tracker == nil {
		return nil
	}
	s.tracker.SetKey(allowance.Key{
		Token:   common.HexToAddress(view.SellToken.Address),
		Owner:   s.wallet.Address(),
		Spender: common.HexToAddress(view.Snapshot.AllowanceIssue.Spender),
	})
	_, _, err := s.tracker.Refetch(ctx)
	return err
}

func (s *Session) refreshBalance(ctx context.Context, token types.Token) error {
	s.mu.Lock()
	s.balanceGen++
	gen := s.balanceGen
	s.mu.Unlock()

	v, err := s.wallet.BalanceOf(ctx, token.Address, s.wallet.Address())
	if err != nil {
		return fmt.Errorf("failed to read %s balance: %w", token.Symbol, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.balanceGen {
		return nil
	}
	s.balance = &types.BalanceSnapshot{Value: v, Token: token.Address}
	return nil
}

// Approve grants the spender named by the price an unlimited allowance,
// waits for confirmation and re-reads the allowance. Failures return the
// session to Priced with a dismissable error.
func (s *Session) Approve(ctx context.Context) error {
	if !s.connected() || !s.wallet.CanSign() {
		return ErrNotConnected
	}
	if s.tracker == nil {
		return ErrNoAllowanceTracker
	}

	s.mu.Lock()
	view := s.view
	if view.SellToken == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: no sell token", ErrInvalidTransition)
	}
	gate := s.gate(view)
	prev := s.state
	s.fire(Event{Kind: EventApproveStarted, Allowance: gate})
	if s.state != StateApproving {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot approve from %s with allowance %s", ErrInvalidTransition, prev, gate)
	}
	s.err = nil
	s.mu.Unlock()

	token := common.HexToAddress(view.SellToken.Address)
	spender := common.HexToAddress(view.Snapshot.AllowanceIssue.Spender)
	s.logger.Info("approving spender", "token", view.SellToken.Symbol, "spender", spender.Hex())

	hash, err := s.wallet.Approve(ctx, token, spender, chain.MaxAllowance)
	if err != nil {
		return s.approvalFailed(fmt.Errorf("%w: %w", ErrApprovalFailed, err))
	}

	s.mu.Lock()
	s.approvalTx = hash
	s.mu.Unlock()

	if _, err := s.wallet.WaitConfirmed(ctx, hash); err != nil {
		return s.approvalFailed(fmt.Errorf("%w: %s: %w", ErrApprovalFailed, hash.Hex(), err))
	}

	s.tracker.SetKey(allowance.Key{Token: token, Owner: s.wallet.Address(), Spender: spender})
	if _, _, err := s.tracker.Refetch(ctx); err != nil {
		return s.approvalFailed(err)
	}

	s.mu.Lock()
	gate = s.gate(s.view)
	s.fire(Event{Kind: EventApprovalConfirmed, Allowance: gate})
	state := s.state
	s.mu.Unlock()

	s.logger.Info("approval confirmed", "tx_hash", hash.Hex(), "allowance", gate, "state", state)
	return nil
}

func (s *Session) approvalFailed(err error) error {
	s.logger.Error("approval failed", "error", err)
	s.mu.Lock()
	s.fire(Event{Kind: EventApprovalFailed})
	s.err = err
	s.mu.Unlock()
	return err
}

// Review hands the trade to the execution stage
func (s *Session) Review() error {
	action := s.Action()
	if action.Kind != ActionReview || !action.Enabled {
		return fmt.Errorf("%w: %s", ErrNotReady, action.Label)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.fire(Event{Kind: EventReview})
	if s.state != StateFinalized {
		return fmt.Errorf("%w: state is %s", ErrNotReady, prev)
	}
	return nil
}

// Reset returns the session to Idle, e.g. after the trade executed
func (s *Session) Reset() {
	s.mu.Lock()
	s.fire(Event{Kind: EventReset})
	s.view = PriceView{}
	s.err = nil
	s.mu.Unlock()
}
