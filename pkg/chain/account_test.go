package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoswap/pkg/logging"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var (
	testToken   = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	testSpender = common.HexToAddress("0x0000000000001ff3684f28c67538d4d072c22734")
)

type fakeBackend struct {
	mu sync.Mutex

	callResult []byte
	lastCall   ethereum.CallMsg
	balance    *big.Int
	baseFee    *big.Int
	sent       []*ethtypes.Transaction
	receipts   map[common.Hash]*ethtypes.Receipt
	pending    int // receipt lookups answered with NotFound before the receipt shows up
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCall = msg
	return f.callResult, nil
}

func (f *fakeBackend) BalanceAt(ctx context.Context, _ common.Address, _ *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, _ common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, _ *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{Number: big.NewInt(100), BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(20_000_000_000), nil
}

func (f *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, _ ethereum.CallMsg) (uint64, error) {
	return 50000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending > 0 {
		f.pending--
		return nil, ethereum.NotFound
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() == hash {
			_, mined := f.receipts[hash]
			return tx, !mined, nil
		}
	}
	return nil, false, ethereum.NotFound
}

func packUint(t *testing.T, method string, v *big.Int) []byte {
	t.Helper()
	out, err := parsedERC20.Methods[method].Outputs.Pack(v)
	require.NoError(t, err)
	return out
}

func newSigningAccount(t *testing.T, backend *fakeBackend) *Account {
	t.Helper()
	acc, err := NewAccount(backend, 1, "0x"+testKey, "", logging.Discard())
	require.NoError(t, err)
	acc.SetPollInterval(time.Millisecond)
	return acc
}

func TestNewAccount_ReadOnly(t *testing.T) {
	acc, err := NewAccount(&fakeBackend{}, 1, "", "0x000000000000000000000000000000000000dEaD", logging.Discard())
	require.NoError(t, err)
	assert.False(t, acc.CanSign())
	assert.Equal(t, common.HexToAddress("0xdead"), acc.Address())

	_, err = acc.Approve(context.Background(), testToken, testSpender, MaxAllowance)
	assert.True(t, errors.Is(err, ErrNoSigner))
}

func TestNewAccount_Invalid(t *testing.T) {
	_, err := NewAccount(&fakeBackend{}, 1, "", "", logging.Discard())
	assert.Error(t, err)

	_, err = NewAccount(&fakeBackend{}, 1, "", "not-an-address", logging.Discard())
	assert.Error(t, err)

	_, err = NewAccount(&fakeBackend{}, 1, "zz", "", logging.Discard())
	assert.Error(t, err)
}

func TestAllowance(t *testing.T) {
	backend := &fakeBackend{callResult: packUint(t, "allowance", big.NewInt(12345))}
	acc := newSigningAccount(t, backend)

	got, err := acc.Allowance(context.Background(), testToken, acc.Address(), testSpender)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), got.Int64())

	want, err := PackAllowance(acc.Address(), testSpender)
	require.NoError(t, err)
	assert.Equal(t, want, backend.lastCall.Data)
	assert.Equal(t, testToken, *backend.lastCall.To)
}

func TestBalanceOf(t *testing.T) {
	backend := &fakeBackend{
		callResult: packUint(t, "balanceOf", big.NewInt(99)),
		balance:    big.NewInt(5),
	}
	acc := newSigningAccount(t, backend)

	erc20, err := acc.BalanceOf(context.Background(), testToken.Hex(), acc.Address())
	require.NoError(t, err)
	assert.Equal(t, int64(99), erc20.Int64())

	native, err := acc.BalanceOf(context.Background(), "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE", acc.Address())
	require.NoError(t, err)
	assert.Equal(t, int64(5), native.Int64())
}

func TestApprove_DynamicFee(t *testing.T) {
	backend := &fakeBackend{baseFee: big.NewInt(10_000_000_000)}
	acc := newSigningAccount(t, backend)

	hash, err := acc.Approve(context.Background(), testToken, testSpender, MaxAllowance)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint8(ethtypes.DynamicFeeTxType), tx.Type())
	assert.Equal(t, testToken, *tx.To())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(60000), tx.Gas())
	assert.Equal(t, int64(21_000_000_000), tx.GasFeeCap().Int64())

	data, err := PackApprove(testSpender, MaxAllowance)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, tx.Data()))

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(1)), tx)
	require.NoError(t, err)
	assert.Equal(t, acc.Address(), sender)
}

func TestSendTransaction_LegacyWhenNoBaseFee(t *testing.T) {
	backend := &fakeBackend{}
	acc := newSigningAccount(t, backend)

	_, err := acc.SendTransaction(context.Background(), TxRequest{
		To:    testSpender,
		Data:  []byte{0x01},
		Value: big.NewInt(1),
		Gas:   210000,
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, uint8(ethtypes.LegacyTxType), tx.Type())
	assert.Equal(t, uint64(210000), tx.Gas())
	assert.Equal(t, int64(20_000_000_000), tx.GasPrice().Int64())
}

func TestWaitConfirmed(t *testing.T) {
	hash := common.HexToHash("0x01")
	backend := &fakeBackend{
		pending: 2,
		receipts: map[common.Hash]*ethtypes.Receipt{
			hash: {Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)},
		},
	}
	acc := newSigningAccount(t, backend)

	receipt, err := acc.WaitConfirmed(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, int64(10), receipt.BlockNumber.Int64())
}

func TestWaitConfirmed_Reverted(t *testing.T) {
	hash := common.HexToHash("0x02")
	backend := &fakeBackend{
		receipts: map[common.Hash]*ethtypes.Receipt{
			hash: {Status: ethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(10)},
		},
	}
	acc := newSigningAccount(t, backend)

	_, err := acc.WaitConfirmed(context.Background(), hash)
	assert.True(t, errors.Is(err, ErrReverted))
}

func TestWaitConfirmed_ContextCancelled(t *testing.T) {
	acc := newSigningAccount(t, &fakeBackend{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := acc.WaitConfirmed(ctx, common.HexToHash("0x03"))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTransactionInfo(t *testing.T) {
	backend := &fakeBackend{}
	acc := newSigningAccount(t, backend)

	hash, err := acc.SendTransaction(context.Background(), TxRequest{To: testSpender, Gas: 21000})
	require.NoError(t, err)

	info, err := acc.TransactionInfo(context.Background(), hash.Hex())
	require.NoError(t, err)
	assert.True(t, info.Pending)
	assert.Nil(t, info.Status)

	backend.receipts = map[common.Hash]*ethtypes.Receipt{
		hash: {Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(42), GasUsed: 21000},
	}
	info, err = acc.TransactionInfo(context.Background(), hash.Hex())
	require.NoError(t, err)
	assert.False(t, info.Pending)
	assert.Equal(t, uint64(42), info.BlockNumber)
	require.NotNil(t, info.Status)
	assert.Equal(t, ethtypes.ReceiptStatusSuccessful, *info.Status)
}

func TestMaxAllowance(t *testing.T) {
	assert.Equal(t, 256, MaxAllowance.BitLen())
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", MaxAllowance.String())
}
