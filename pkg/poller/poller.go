// Package poller keeps an indicative price in sync with the trade inputs.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cryptoswap/pkg/client"
	"cryptoswap/pkg/types"
	"cryptoswap/pkg/units"
)

// Fetcher requests an indicative price
type Fetcher interface {
	GetPrice(ctx context.Context, params client.PriceParams) (*client.PriceResponse, error)
}

// Resolver maps a user token reference to a catalog entry
type Resolver interface {
	Resolve(ref string) (types.Token, bool)
	Loading() bool
}

// Options configure request parameters and timing
type Options struct {
	ChainID      int64
	FeeRecipient string
	FeeBps       int
	Debounce     time.Duration
}

// State is a copy of the poller's observable state
type State struct {
	Intent    types.TradeIntent
	SellToken *types.Token // nil when the reference does not resolve
	BuyToken  *types.Token
	Taker     string

	Snapshot *types.PriceSnapshot
	Errors   []client.ValidationError
	Loading  bool

	Generation       uint64
	PricedGeneration uint64
}

// Fresh reports whether the snapshot was produced by the current inputs
func (s State) Fresh() bool {
	return s.Snapshot != nil && s.PricedGeneration == s.Generation
}

// Poller issues a price request whenever the trade inputs change. Each change
// bumps a generation and cancels the superseded request; a response is only
// applied when its generation is still current.
type Poller struct {
	fetcher  Fetcher
	resolver Resolver
	opts     Options
	logger   *slog.Logger

	mu        sync.Mutex
	intent    types.TradeIntent
	taker     string
	snapshot  *types.PriceSnapshot
	errors    []client.ValidationError
	loading   bool
	gen       uint64
	pricedGen uint64
	cancel    context.CancelFunc
	timer     *time.Timer
	onUpdate  func(State)
	seq       uint64

	// deliverMu orders OnUpdate calls; delivered is the seq of the last one
	deliverMu sync.Mutex
	delivered uint64

	wg sync.WaitGroup
}

// New creates a poller. Nothing is requested until an input is set.
func New(fetcher Fetcher, resolver Resolver, opts Options, logger *slog.Logger) *Poller {
	return &Poller{
		fetcher:  fetcher,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
		intent:   types.TradeIntent{Direction: types.DirectionSell},
	}
}

// OnUpdate registers fn to be called after state changes. Calls never
// overlap and never go back to an older state than one already delivered,
// so a superseded state may be skipped. fn must not change the inputs.
func (p *Poller) OnUpdate(fn func(State)) {
	p.mu.Lock()
	p.onUpdate = fn
	p.mu.Unlock()
}

func (p *Poller) SetSellToken(ref string) {
	p.change(func() { p.intent.SellToken = ref }, false)
}

func (p *Poller) SetBuyToken(ref string) {
	p.change(func() { p.intent.BuyToken = ref }, false)
}

// SetSellAmount edits the sell side; the buy amount becomes derived
func (p *Poller) SetSellAmount(amount string) {
	p.change(func() {
		p.intent.SellAmount = amount
		p.intent.Direction = types.DirectionSell
	}, true)
}

// SetBuyAmount edits the buy side; the sell amount becomes derived
func (p *Poller) SetBuyAmount(amount string) {
	p.change(func() {
		p.intent.BuyAmount = amount
		p.intent.Direction = types.DirectionBuy
	}, true)
}

// SetTaker sets the wallet address sent with price requests
func (p *Poller) SetTaker(taker string) {
	p.change(func() { p.taker = taker }, false)
}

// SwapSides exchanges tokens and amounts in one step
func (p *Poller) SwapSides() {
	p.change(func() { p.intent = p.intent.Swapped() }, false)
}

// Refresh re-issues the request for the current inputs
func (p *Poller) Refresh() {
	p.change(func() {}, false)
}

// DismissErrors clears surfaced validation errors
func (p *Poller) DismissErrors() {
	p.mu.Lock()
	p.errors = nil
	p.mu.Unlock()
	p.notify()
}

// Wait blocks until no debounced or in-flight request remains
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Close abandons pending work
func (p *Poller) Close() {
	p.mu.Lock()
	p.gen++
	p.stopLocked()
	p.loading = false
	p.mu.Unlock()
}

// State returns a copy of the current state
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Poller) stateLocked() State {
	s := State{
		Intent:           p.intent,
		Taker:            p.taker,
		Snapshot:         p.snapshot,
		Loading:          p.loading,
		Generation:       p.gen,
		PricedGeneration: p.pricedGen,
	}
	if len(p.errors) > 0 {
		s.Errors = append([]client.ValidationError(nil), p.errors...)
	}
	if t, ok := p.resolver.Resolve(p.intent.SellToken); ok {
		s.SellToken = &t
	}
	if t, ok := p.resolver.Resolve(p.intent.BuyToken); ok {
		s.BuyToken = &t
	}
	return s
}

func (p *Poller) notify() {
	p.mu.Lock()
	fn := p.onUpdate
	if fn == nil {
		p.mu.Unlock()
		return
	}
	p.seq++
	seq := p.seq
	s := p.stateLocked()
	p.mu.Unlock()

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	if seq < p.delivered {
		p.logger.Debug("skipping superseded update", "seq", seq, "delivered", p.delivered)
		return
	}
	p.delivered = seq
	fn(s)
}

// stopLocked cancels the in-flight request and any pending debounce
func (p *Poller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.timer != nil {
		if p.timer.Stop() {
			p.wg.Done()
		}
		p.timer = nil
	}
}

// request is everything a single poll needs, captured at issue time
type request struct {
	gen    uint64
	params client.PriceParams
	sell   types.Token
	buy    types.Token
	dir    types.TradeDirection
}

func (p *Poller) change(mutate func(), debounce bool) {
	p.mu.Lock()
	mutate()
	p.gen++
	p.stopLocked()

	req, ok := p.requestLocked()
	p.loading = ok
	if ok {
		if debounce && p.opts.Debounce > 0 {
			p.wg.Add(1)
			p.timer = time.AfterFunc(p.opts.Debounce, func() { p.fire(req) })
		} else {
			p.startLocked(req)
		}
	}
	p.mu.Unlock()

	p.notify()
}

// requestLocked builds the request for the current inputs, or reports that
// none should be made.
func (p *Poller) requestLocked() (request, bool) {
	if p.resolver.Loading() {
		return request{}, false
	}
	sell, ok := p.resolver.Resolve(p.intent.SellToken)
	if !ok {
		return request{}, false
	}
	buy, ok := p.resolver.Resolve(p.intent.BuyToken)
	if !ok {
		return request{}, false
	}

	edited := p.intent.EditedAmount()
	if edited == "" {
		return request{}, false
	}
	decimals := sell.Decimals
	if p.intent.Direction == types.DirectionBuy {
		decimals = buy.Decimals
	}
	raw, err := units.ParseUnits(edited, decimals)
	if err != nil {
		p.logger.Debug("not requesting price", "amount", edited, "error", err)
		return request{}, false
	}

	params := client.PriceParams{
		ChainID:               p.opts.ChainID,
		SellToken:             sell.Address,
		BuyToken:              buy.Address,
		Taker:                 p.taker,
		SwapFeeRecipient:      p.opts.FeeRecipient,
		SwapFeeBps:            p.opts.FeeBps,
		SwapFeeToken:          buy.Address,
		TradeSurplusRecipient: p.opts.FeeRecipient,
	}
	if p.intent.Direction == types.DirectionBuy {
		params.BuyAmount = raw.String()
	} else {
		params.SellAmount = raw.String()
	}

	return request{gen: p.gen, params: params, sell: sell, buy: buy, dir: p.intent.Direction}, true
}

func (p *Poller) fire(req request) {
	defer p.wg.Done()

	p.mu.Lock()
	defer p.mu.Unlock()
	if req.gen != p.gen {
		return
	}
	p.timer = nil
	p.startLocked(req)
}

func (p *Poller) startLocked(req request) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(ctx, cancel, req)
}

func (p *Poller) run(ctx context.Context, cancel context.CancelFunc, req request) {
	defer p.wg.Done()
	defer cancel()

	resp, err := p.fetcher.GetPrice(ctx, req.params)

	p.mu.Lock()
	if req.gen != p.gen {
		p.mu.Unlock()
		p.logger.Debug("discarding stale price", "generation", req.gen)
		return
	}
	p.loading = false
	p.cancel = nil
	p.apply(req, resp, err)
	p.mu.Unlock()

	p.notify()
}

// apply folds a current response into the state. Called with mu held.
func (p *Poller) apply(req request, resp *client.PriceResponse, err error) {
	if err != nil {
		p.logger.Warn("price request failed",
			"sell_token", req.sell.Symbol,
			"buy_token", req.buy.Symbol,
			"error", err,
		)
		return
	}
	if len(resp.ValidationErrors) > 0 {
		p.errors = resp.ValidationErrors
		p.logger.Info("price request rejected", "validation_errors", len(resp.ValidationErrors))
		return
	}

	if req.dir == types.DirectionBuy {
		amount, err := units.FormatUnits(resp.SellAmount, req.sell.Decimals)
		if err != nil {
			p.logger.Warn("unreadable sell amount in price", "value", resp.SellAmount, "error", err)
			return
		}
		p.intent.SellAmount = amount
	} else {
		amount, err := units.FormatUnits(resp.BuyAmount, req.buy.Decimals)
		if err != nil {
			p.logger.Warn("unreadable buy amount in price", "value", resp.BuyAmount, "error", err)
			return
		}
		p.intent.BuyAmount = amount
	}

	p.snapshot = resp.Snapshot()
	p.errors = nil
	p.pricedGen = req.gen
}
