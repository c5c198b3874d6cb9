package types

import (
	"math/big"
	"strings"
)

// NativeTokenAddress is the placeholder address the price API uses for the
// chain's native asset
const NativeTokenAddress = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// Token represents a tradable token on a single chain
type Token struct {
	ChainID  int64  `json:"chainId"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int32  `json:"decimals"`
	LogoURI  string `json:"logoURI"`
}

// Key returns the identifier used for case-insensitive address lookups
func (t Token) Key() string {
	return strings.ToLower(t.Address)
}

// IsNative reports whether the token is the chain's native asset
func (t Token) IsNative() bool {
	return t.Address == "" || strings.EqualFold(t.Address, NativeTokenAddress)
}

// TradeDirection says which amount the user edited
type TradeDirection string

const (
	DirectionSell TradeDirection = "sell" // sellAmount is edited, buyAmount derived
	DirectionBuy  TradeDirection = "buy"  // buyAmount is edited, sellAmount derived
)

// TradeIntent represents what the user wants to trade.
// Tokens are referenced by symbol as typed by the user.
type TradeIntent struct {
	SellToken  string         `json:"sell_token"`
	BuyToken   string         `json:"buy_token"`
	SellAmount string         `json:"sell_amount"`
	BuyAmount  string         `json:"buy_amount"`
	Direction  TradeDirection `json:"trade_direction"`
}

// EditedAmount returns the amount the direction designates as user input
func (i TradeIntent) EditedAmount() string {
	if i.Direction == DirectionBuy {
		return i.BuyAmount
	}
	return i.SellAmount
}

// Swapped returns the intent with sides exchanged. Direction is kept.
func (i TradeIntent) Swapped() TradeIntent {
	return TradeIntent{
		SellToken:  i.BuyToken,
		BuyToken:   i.SellToken,
		SellAmount: i.BuyAmount,
		BuyAmount:  i.SellAmount,
		Direction:  i.Direction,
	}
}

// TokenTax holds transfer-tax rates in basis points
type TokenTax struct {
	BuyTaxBps  string `json:"buyTaxBps"`
	SellTaxBps string `json:"sellTaxBps"`
}

// AllowanceIssue names the spender that needs an approval before trading
type AllowanceIssue struct {
	Spender string `json:"spender"`
	Actual  string `json:"actual,omitempty"`
}

// BalanceIssue is reported when the taker's balance is below the sell amount
type BalanceIssue struct {
	Token    string `json:"token"`
	Actual   string `json:"actual"`
	Expected string `json:"expected"`
}

// PriceSnapshot is the indicative price as last returned by the price endpoint.
// It is replaced wholesale on every successful poll.
type PriceSnapshot struct {
	BuyAmount      string          `json:"buy_amount"`
	SellAmount     string          `json:"sell_amount"`
	IntegratorFee  string          `json:"integrator_fee,omitempty"`
	BuyTokenTax    TokenTax        `json:"buy_token_tax"`
	SellTokenTax   TokenTax        `json:"sell_token_tax"`
	AllowanceIssue *AllowanceIssue `json:"allowance_issue,omitempty"`
	BalanceIssue   *BalanceIssue   `json:"balance_issue,omitempty"`
}

// RequiresAllowance reports whether the trade needs a prior approval
func (p *PriceSnapshot) RequiresAllowance() bool {
	return p != nil && p.AllowanceIssue != nil && p.AllowanceIssue.Spender != ""
}

// BalanceSnapshot is the taker's balance of the sell token
type BalanceSnapshot struct {
	Value *big.Int `json:"value"`
	Token string   `json:"token"`
}

// Covers reports whether the balance covers amount. An unknown balance never does.
func (b *BalanceSnapshot) Covers(amount *big.Int) bool {
	if b == nil || b.Value == nil || amount == nil {
		return false
	}
	return b.Value.Cmp(amount) >= 0
}
