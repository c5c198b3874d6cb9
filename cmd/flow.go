package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"

	"cryptoswap/pkg/allowance"
	"cryptoswap/pkg/chain"
	"cryptoswap/pkg/client"
	"cryptoswap/pkg/poller"
	"cryptoswap/pkg/readiness"
	"cryptoswap/pkg/types"
	"cryptoswap/pkg/units"
)

// trade is one priced trade and the readiness session that tracks it
type trade struct {
	poller  *poller.Poller
	session *readiness.Session
	account *chain.Account
}

// priceTrade feeds intent into a poller, waits for the price and syncs the
// readiness session with it
func (a *app) priceTrade(ctx context.Context, intent *types.TradeIntent, flip, quiet bool) (*trade, error) {
	account, err := a.wallet()
	if err != nil {
		return nil, fmt.Errorf("failed to connect wallet: %w", err)
	}

	p := poller.New(a.api, a.catalog, poller.Options{
		ChainID:      a.cfg.ChainID,
		FeeRecipient: a.cfg.FeeRecipient,
		FeeBps:       a.cfg.AffiliateFeeBps,
		Debounce:     a.cfg.PriceDebounce,
	}, a.logger)
	p.OnUpdate(func(st poller.State) {
		a.logger.Debug("price state",
			"generation", st.Generation,
			"loading", st.Loading,
			"sell_amount", st.Intent.SellAmount,
			"buy_amount", st.Intent.BuyAmount,
		)
	})

	// A nil *chain.Account must not end up inside the Wallet interface
	var wallet readiness.Wallet
	var tracker *allowance.Tracker
	if account != nil {
		wallet = account
		tracker = allowance.NewTracker(account, a.logger)
		p.SetTaker(account.Address().Hex())
	}
	session := readiness.NewSession(wallet, tracker, allowance.Mode(a.cfg.AllowanceCheck), a.logger)

	for _, ref := range []string{intent.SellToken, intent.BuyToken} {
		token, ok := a.catalog.Resolve(ref)
		if !ok {
			return nil, fmt.Errorf("unknown token %s (try: cryptoswap list-tokens)", ref)
		}
		if account != nil && common.IsHexAddress(ref) {
			if err := a.checkDecimals(ctx, account, token); err != nil {
				return nil, err
			}
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !quiet {
		s.Suffix = " Fetching price..."
		s.Start()
	}
	loadIntent(p, intent, flip)

	state := p.State()
	var syncErr error
	if state.Fresh() {
		syncErr = session.Sync(ctx, priceView(state))
	}
	if !quiet {
		s.Stop()
	}

	if len(state.Errors) > 0 {
		reasons := make([]string, 0, len(state.Errors))
		for _, v := range state.Errors {
			reasons = append(reasons, v.String())
		}
		return nil, fmt.Errorf("price request rejected: %s", strings.Join(reasons, "; "))
	}
	if !state.Fresh() {
		return nil, fmt.Errorf("could not get a price for %s to %s (see log file %s)", state.Intent.SellToken, state.Intent.BuyToken, a.cfg.Log.File)
	}
	if syncErr != nil {
		a.logger.Warn("wallet readings incomplete", "error", syncErr)
		if !quiet {
			color.Yellow("Could not read wallet state: %v", syncErr)
		}
	}

	return &trade{poller: p, session: session, account: account}, nil
}

// loadIntent sets the trade inputs on p and waits for the price. With flip
// the intent is priced as entered first, so the derived amount exists when
// the sides are swapped and becomes the new edited amount.
func loadIntent(p *poller.Poller, intent *types.TradeIntent, flip bool) {
	p.SetSellToken(intent.SellToken)
	p.SetBuyToken(intent.BuyToken)
	if intent.Direction == types.DirectionBuy {
		p.SetBuyAmount(intent.BuyAmount)
	} else {
		p.SetSellAmount(intent.SellAmount)
	}
	p.Wait()

	if flip && p.State().Fresh() {
		p.SwapSides()
		p.Wait()
	}
}

// decimalsReader reads decimals() from a token contract
type decimalsReader interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// checkDecimals compares the listed decimals of an address-referenced token
// with the contract. Amounts are scaled with the listed value, so a mismatch
// is fatal; a failed read is only logged.
func (a *app) checkDecimals(ctx context.Context, r decimalsReader, token types.Token) error {
	if !common.IsHexAddress(token.Address) {
		return nil
	}
	onChain, err := r.Decimals(ctx, common.HexToAddress(token.Address))
	if err != nil {
		a.logger.Warn("decimals read failed", "token", token.Address, "error", err)
		return nil
	}
	if int32(onChain) != token.Decimals {
		return fmt.Errorf("token %s reports %d decimals but the token list says %d", token.Address, onChain, token.Decimals)
	}
	return nil
}

// priceView translates poller state for the readiness session
func priceView(s poller.State) readiness.PriceView {
	view := readiness.PriceView{
		Empty:     s.Intent.EditedAmount() == "",
		Loading:   s.Loading,
		Fresh:     s.Fresh(),
		Snapshot:  s.Snapshot,
		SellToken: s.SellToken,
	}
	if s.SellToken != nil {
		if v, err := units.ParseUnits(s.Intent.SellAmount, s.SellToken.Decimals); err == nil {
			view.SellAmount = v
		}
	}
	return view
}

// quoteParams rebuilds the request parameters for a firm quote of the priced trade
func (a *app) quoteParams(s poller.State) (client.PriceParams, error) {
	if s.SellToken == nil || s.BuyToken == nil {
		return client.PriceParams{}, fmt.Errorf("trade tokens are not resolved")
	}
	params := client.PriceParams{
		ChainID:               a.cfg.ChainID,
		SellToken:             s.SellToken.Address,
		BuyToken:              s.BuyToken.Address,
		SwapFeeRecipient:      a.cfg.FeeRecipient,
		SwapFeeBps:            a.cfg.AffiliateFeeBps,
		SwapFeeToken:          s.BuyToken.Address,
		TradeSurplusRecipient: a.cfg.FeeRecipient,
	}

	if s.Intent.Direction == types.DirectionBuy {
		raw, err := units.ParseUnits(s.Intent.BuyAmount, s.BuyToken.Decimals)
		if err != nil {
			return client.PriceParams{}, err
		}
		params.BuyAmount = raw.String()
	} else {
		raw, err := units.ParseUnits(s.Intent.SellAmount, s.SellToken.Decimals)
		if err != nil {
			return client.PriceParams{}, err
		}
		params.SellAmount = raw.String()
	}
	return params, nil
}

func displayPrice(s poller.State, action readiness.Action) {
	snap := s.Snapshot
	sell, buy := s.SellToken, s.BuyToken

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP PRICE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Sell:              %s %s\n", s.Intent.SellAmount, color.YellowString(sell.Symbol))
	fmt.Printf("  Buy:               %s %s\n", s.Intent.BuyAmount, color.YellowString(buy.Symbol))

	if snap.IntegratorFee != "" {
		if fee, err := units.FormatFixed(snap.IntegratorFee, buy.Decimals, 6); err == nil {
			fmt.Printf("  Affiliate Fee:     %s %s\n", fee, buy.Symbol)
		}
	}

	printTax := func(label, bps string) {
		if !units.IsZeroBps(bps) {
			fmt.Printf("  %-18s %s%%\n", label+":", units.FormatTaxBps(bps))
		}
	}
	printTax(buy.Symbol+" Buy Tax", snap.BuyTokenTax.BuyTaxBps)
	printTax(buy.Symbol+" Sell Tax", snap.BuyTokenTax.SellTaxBps)
	printTax(sell.Symbol+" Buy Tax", snap.SellTokenTax.BuyTaxBps)
	printTax(sell.Symbol+" Sell Tax", snap.SellTokenTax.SellTaxBps)

	if snap.RequiresAllowance() {
		fmt.Printf("  Approval Needed:   %s\n", color.MagentaString(snap.AllowanceIssue.Spender))
	}
	if snap.BalanceIssue != nil {
		have, _ := units.FormatUnits(snap.BalanceIssue.Actual, sell.Decimals)
		need, _ := units.FormatUnits(snap.BalanceIssue.Expected, sell.Decimals)
		fmt.Printf("  Balance:           %s\n", color.RedString("%s of %s %s", have, need, sell.Symbol))
	}

	label := action.Label
	if !action.Enabled {
		label = color.HiBlackString(label)
	} else {
		label = color.CyanString(label)
	}
	fmt.Printf("\n  Next:              %s\n", label)

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
