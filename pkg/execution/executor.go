// Package execution fetches a firm quote for a reviewed trade and sends the
// transaction it describes.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"cryptoswap/pkg/chain"
	"cryptoswap/pkg/client"
)

// ErrQuoteRejected is returned when the quote endpoint answers with validation errors
var ErrQuoteRejected = errors.New("quote rejected")

// Quoter fetches a firm quote
type Quoter interface {
	GetQuote(ctx context.Context, params client.PriceParams) (*client.QuoteResponse, error)
}

// Sender signs, sends and confirms transactions
type Sender interface {
	Address() common.Address
	CanSign() bool
	SendTransaction(ctx context.Context, req chain.TxRequest) (common.Hash, error)
	WaitConfirmed(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// Result is a confirmed swap
type Result struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Executor turns a finalized trade into a mined transaction
type Executor struct {
	quoter Quoter
	sender Sender
	logger *slog.Logger
}

func New(quoter Quoter, sender Sender, logger *slog.Logger) *Executor {
	return &Executor{quoter: quoter, sender: sender, logger: logger}
}

// Quote requests a firm quote with the sender as taker
func (e *Executor) Quote(ctx context.Context, params client.PriceParams) (*client.QuoteResponse, error) {
	if !e.sender.CanSign() {
		return nil, chain.ErrNoSigner
	}
	params.Taker = e.sender.Address().Hex()

	quote, err := e.quoter.GetQuote(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(quote.ValidationErrors) > 0 {
		reasons := make([]string, 0, len(quote.ValidationErrors))
		for _, v := range quote.ValidationErrors {
			reasons = append(reasons, v.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrQuoteRejected, strings.Join(reasons, "; "))
	}
	return quote, nil
}

// Execute sends the quote's transaction and waits for it to be mined
func (e *Executor) Execute(ctx context.Context, quote *client.QuoteResponse) (*Result, error) {
	req, err := TxFromQuote(quote.Transaction)
	if err != nil {
		return nil, err
	}

	hash, err := e.sender.SendTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	e.logger.Info("swap transaction sent", "tx_hash", hash.Hex(), "to", req.To.Hex(), "gas", req.Gas)

	receipt, err := e.sender.WaitConfirmed(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("swap %s: %w", hash.Hex(), err)
	}

	res := &Result{TxHash: hash, GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	e.logger.Info("swap confirmed", "tx_hash", hash.Hex(), "block", res.BlockNumber)
	return res, nil
}

// TxFromQuote decodes the transaction fields of a quote
func TxFromQuote(tx client.QuoteTransaction) (chain.TxRequest, error) {
	if !common.IsHexAddress(tx.To) {
		return chain.TxRequest{}, fmt.Errorf("invalid transaction target: %q", tx.To)
	}
	req := chain.TxRequest{To: common.HexToAddress(tx.To)}

	if tx.Data != "" {
		data, err := hexutil.Decode(tx.Data)
		if err != nil {
			return chain.TxRequest{}, fmt.Errorf("invalid transaction data: %w", err)
		}
		req.Data = data
	}

	var err error
	if req.Value, err = parseBig(tx.Value, "value"); err != nil {
		return chain.TxRequest{}, err
	}
	if req.GasPrice, err = parseBig(tx.GasPrice, "gasPrice"); err != nil {
		return chain.TxRequest{}, err
	}
	if tx.Gas != "" {
		if req.Gas, err = strconv.ParseUint(tx.Gas, 10, 64); err != nil {
			return chain.TxRequest{}, fmt.Errorf("invalid gas: %q", tx.Gas)
		}
	}
	return req, nil
}

// parseBig reads a decimal integer; empty means unset
func parseBig(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", field, s)
	}
	return v, nil
}
