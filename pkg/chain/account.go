// Package chain reads and writes ERC-20 state through an Ethereum JSON-RPC node.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"cryptoswap/pkg/types"
)

var (
	// ErrNoSigner is returned by write operations on a read-only account
	ErrNoSigner = errors.New("no private key configured, account is read-only")
	// ErrReverted is returned when a mined transaction has a failed status
	ErrReverted = errors.New("transaction reverted")
)

const (
	defaultApproveGas   = uint64(100000) // Typical ERC20 approve
	defaultPollInterval = 2 * time.Second
)

// Backend is the subset of ethclient.Client the account uses
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
}

// TxRequest describes a transaction to sign and send
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64   // 0 means estimate
	GasPrice *big.Int // nil means let the network suggest
}

// TxInfo summarises a transaction and its receipt
type TxInfo struct {
	Hash        string  `json:"hash"`
	Nonce       uint64  `json:"nonce"`
	To          string  `json:"to"`
	Value       string  `json:"value"`
	GasLimit    uint64  `json:"gas_limit"`
	Pending     bool    `json:"pending"`
	BlockNumber uint64  `json:"block_number,omitempty"`
	GasUsed     uint64  `json:"gas_used,omitempty"`
	Status      *uint64 `json:"status,omitempty"`
}

// Account is the connected wallet: an address, and a key when it can sign
type Account struct {
	backend      Backend
	closer       func()
	chainID      *big.Int
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	pollInterval time.Duration
	logger       *slog.Logger
}

// Dial connects to rpcURL. With a private key the account can sign; with only
// a taker address it is read-only.
func Dial(rpcURL string, chainID int64, privateKeyHex, taker string, logger *slog.Logger) (*Account, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}

	// Connect to the RPC endpoint
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	acc, err := NewAccount(client, chainID, privateKeyHex, taker, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	acc.closer = client.Close
	return acc, nil
}

// NewAccount wraps an existing backend
func NewAccount(backend Backend, chainID int64, privateKeyHex, taker string, logger *slog.Logger) (*Account, error) {
	acc := &Account{
		backend:      backend,
		chainID:      big.NewInt(chainID),
		pollInterval: defaultPollInterval,
		logger:       logger,
	}

	switch {
	case privateKeyHex != "":
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		acc.privateKey = privateKey
		acc.address = crypto.PubkeyToAddress(privateKey.PublicKey)
	case taker != "":
		if !common.IsHexAddress(taker) {
			return nil, fmt.Errorf("invalid taker address: %s", taker)
		}
		acc.address = common.HexToAddress(taker)
	default:
		return nil, fmt.Errorf("either a private key or a taker address is required")
	}

	return acc, nil
}

// SetPollInterval sets how often WaitConfirmed polls for a receipt
func (a *Account) SetPollInterval(d time.Duration) {
	if d > 0 {
		a.pollInterval = d
	}
}

// Address returns the taker address
func (a *Account) Address() common.Address {
	return a.address
}

// CanSign reports whether the account holds a private key
func (a *Account) CanSign() bool {
	return a.privateKey != nil
}

// Allowance reads allowance(owner, spender) on token
func (a *Account) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := PackAllowance(owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance data: %w", err)
	}

	out, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call allowance: %w", err)
	}
	return unpackUint(out, "allowance")
}

// BalanceOf returns owner's balance of token; the native balance for the
// native placeholder address
func (a *Account) BalanceOf(ctx context.Context, token string, owner common.Address) (*big.Int, error) {
	if (types.Token{Address: token}).IsNative() {
		balance, err := a.backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		return balance, nil
	}

	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("invalid token contract address: %s", token)
	}
	tokenAddress := common.HexToAddress(token)

	data, err := parsedERC20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf data: %w", err)
	}

	out, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &tokenAddress, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	return unpackUint(out, "balanceOf")
}

// Decimals reads decimals() on token
func (a *Account) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := parsedERC20.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to call decimals: %w", err)
	}
	values, err := parsedERC20.Unpack("decimals", out)
	if err != nil || len(values) != 1 {
		return 0, fmt.Errorf("failed to unpack decimals: %v", err)
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}
	return d, nil
}

func unpackUint(out []byte, method string) (*big.Int, error) {
	values, err := parsedERC20.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s output length %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output type %T", method, values[0])
	}
	return v, nil
}

// Approve submits approve(spender, amount) on token and returns the tx hash.
// It does not wait for the transaction to be mined.
func (a *Account) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := PackApprove(spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve data: %w", err)
	}

	hash, err := a.SendTransaction(ctx, TxRequest{To: token, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("approve failed: %w", err)
	}

	a.logger.Info("approval submitted",
		"token", token.Hex(),
		"spender", spender.Hex(),
		"tx_hash", hash.Hex())
	return hash, nil
}

// SendTransaction signs and broadcasts req
func (a *Account) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if a.privateKey == nil {
		return common.Hash{}, ErrNoSigner
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := a.backend.PendingNonceAt(ctx, a.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasLimit := req.Gas
	if gasLimit == 0 {
		gasLimit = defaultApproveGas
		msg := ethereum.CallMsg{From: a.address, To: &req.To, Value: value, Data: req.Data}
		if estimated, err := a.backend.EstimateGas(ctx, msg); err == nil {
			gasLimit = estimated * 120 / 100 // Add 20% buffer
		} else {
			a.logger.Warn("gas estimation failed, using default", "error", err, "gas", gasLimit)
		}
	}

	tx, err := a.buildTx(ctx, nonce, req.To, value, gasLimit, req.GasPrice, req.Data)
	if err != nil {
		return common.Hash{}, err
	}

	signedTx, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(a.chainID), a.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := a.backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash(), nil
}

// buildTx uses a dynamic-fee transaction when the chain reports a base fee
// and the caller did not pin a gas price
func (a *Account) buildTx(ctx context.Context, nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) (*ethtypes.Transaction, error) {
	if gasPrice == nil {
		head, err := a.backend.HeaderByNumber(ctx, nil)
		if err == nil && head.BaseFee != nil {
			tip, err := a.backend.SuggestGasTipCap(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to get gas tip: %w", err)
			}
			feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
			return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
				ChainID:   a.chainID,
				Nonce:     nonce,
				GasTipCap: tip,
				GasFeeCap: feeCap,
				Gas:       gasLimit,
				To:        &to,
				Value:     value,
				Data:      data,
			}), nil
		}

		gasPrice, err = a.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
	}

	return ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	}), nil
}

// WaitConfirmed blocks until hash is mined. A reverted receipt is returned
// together with ErrReverted.
func (a *Account) WaitConfirmed(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := a.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
		}

		a.logger.Debug("transaction pending", "tx_hash", hash.Hex())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TransactionInfo retrieves information about a transaction
func (a *Account) TransactionInfo(ctx context.Context, txHash string) (*TxInfo, error) {
	hash := common.HexToHash(txHash)

	tx, isPending, err := a.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	info := &TxInfo{
		Hash:     tx.Hash().Hex(),
		Nonce:    tx.Nonce(),
		Value:    tx.Value().String(),
		GasLimit: tx.Gas(),
		Pending:  isPending,
	}
	if tx.To() != nil {
		info.To = tx.To().Hex()
	}

	if isPending {
		return info, nil
	}

	receipt, err := a.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	info.BlockNumber = receipt.BlockNumber.Uint64()
	info.GasUsed = receipt.GasUsed
	status := receipt.Status
	info.Status = &status

	return info, nil
}

// Close closes the client connection
func (a *Account) Close() {
	if a.closer != nil {
		a.closer()
	}
}
