package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoswap/pkg/client"
	"cryptoswap/pkg/logging"
	"cryptoswap/pkg/types"
)

var (
	weth = types.Token{ChainID: 1, Symbol: "WETH", Decimals: 18, Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"}
	usdc = types.Token{ChainID: 1, Symbol: "USDC", Decimals: 6, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"}
)

type fakeResolver struct {
	loading bool
}

func (r *fakeResolver) Resolve(ref string) (types.Token, bool) {
	for _, t := range []types.Token{weth, usdc} {
		if strings.EqualFold(t.Symbol, ref) {
			return t, true
		}
	}
	return types.Token{}, false
}

func (r *fakeResolver) Loading() bool { return r.loading }

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []client.PriceParams
	respond func(ctx context.Context, params client.PriceParams) (*client.PriceResponse, error)
}

func (f *fakeFetcher) GetPrice(ctx context.Context, params client.PriceParams) (*client.PriceResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()
	return f.respond(ctx, params)
}

func (f *fakeFetcher) Calls() []client.PriceParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.PriceParams(nil), f.calls...)
}

// quoteAt3000 prices WETH at 3000 USDC in either direction
func quoteAt3000(_ context.Context, params client.PriceParams) (*client.PriceResponse, error) {
	resp := &client.PriceResponse{}
	switch {
	case params.SellAmount == "1000000000000000000":
		resp.SellAmount, resp.BuyAmount = params.SellAmount, "3000000000"
	case params.SellAmount == "2000000000000000000":
		resp.SellAmount, resp.BuyAmount = params.SellAmount, "6000000000"
	case params.SellAmount == "3000000000":
		resp.SellAmount, resp.BuyAmount = params.SellAmount, "1000000000000000000"
	case params.BuyAmount == "3000000000":
		resp.SellAmount, resp.BuyAmount = "1000000000000000000", params.BuyAmount
	default:
		return nil, errors.New("unexpected request")
	}
	return resp, nil
}

func newPoller(fetcher Fetcher, resolver Resolver, debounce time.Duration) *Poller {
	return New(fetcher, resolver, Options{
		ChainID:      1,
		FeeRecipient: "0x00000000000000000000000000000000000000fe",
		FeeBps:       100,
		Debounce:     debounce,
	}, logging.Discard())
}

func TestPoller_NoRequestWithoutAmount(t *testing.T) {
	fetcher := &fakeFetcher{respond: quoteAt3000}
	p := newPoller(fetcher, &fakeResolver{}, 0)

	p.SetSellToken("WETH")
	p.SetBuyToken("USDC")
	p.SetSellAmount("")
	p.Wait()

	assert.Empty(t, fetcher.Calls())
	assert.False(t, p.State().Loading)
}

func TestPoller_NoRequestForUnusableInputs(t *testing.T) {
	fetcher := &fakeFetcher{respond: quoteAt3000}
	resolver := &fakeResolver{}
	p := newPoller(fetcher, resolver, 0)

	p.SetSellToken("WETH")
	p.SetBuyToken("NOPE")
	p.SetSellAmount("1")
	p.Wait()
	assert.Empty(t, fetcher.Calls(), "unresolved token")

	p.SetSellAmount("abc")
	p.SetBuyToken("USDC")
	p.Wait()
	assert.Len(t, fetcher.Calls(), 0, "unparsable amount")

	resolver.loading = true
	p.SetSellAmount("1")
	p.Wait()
	assert.Empty(t, fetcher.Calls(), "catalog loading")

	resolver.loading = false
	p.Refresh()
	p.Wait()
	assert.Len(t, fetcher.Calls(), 1)
}

func TestPoller_SellDerivesBuyAmount(t *testing.T) {
	fetcher := &fakeFetcher{respond: quoteAt3000}
	p := newPoller(fetcher, &fakeResolver{}, 0)

	p.SetSellToken("WETH")
	p.SetBuyToken("USDC")
	p.SetSellAmount("1")
	p.Wait()

	s := p.State()
	assert.Equal(t, "3000", s.Intent.BuyAmount)
	assert.Equal(t, "1", s.Intent.SellAmount)
	assert.True(t, s.Fresh())
	assert.False(t, s.Loading)
	require.NotNil(t, s.SellToken)
	assert.Equal(t, "WETH", s.SellToken.Symbol)

	calls := fetcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, weth.Address, calls[0].SellToken)
	assert.Equal(t, usdc.Address, calls[0].BuyToken)
	assert.Equal(t, "1000000000000000000", calls[0].SellAmount)
	assert.Empty(t, calls[0].BuyAmount)
	assert.Equal(t, usdc.Address, calls[0].SwapFeeToken)
	assert.Equal(t, 100, calls[0].SwapFeeBps)
	assert.Equal(t, calls[0].SwapFeeRecipient, calls[0].TradeSurplusRecipient)
}

func TestPoller_BuyDerivesSellAmount(t *testing.T) {
	fetcher := &fakeFetcher{respond: quoteAt3000}
	p := newPoller(fetcher, &fakeResolver{}, 0)

	p.SetSellToken("WETH")
	p.SetBuyToken("USDC")
	p.SetBuyAmount("3000")
	p.Wait()

	s := p.State()
	assert.Equal(t, types.DirectionBuy, s.Intent.Direction)
	assert.Equal(t, "1", s.Intent.SellAmount)

	calls := fetcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "3000000000", calls[0].BuyAmount)
	assert.Empty(t, calls[0].SellAmount)
}

func TestPoller_DiscardsStaleResponse(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{}
	fetcher.respond = func(ctx context.Context, params client.PriceParams) (*client.PriceResponse, error) {
		// The first request ignores cancellation, like a transport without abort
		if params.SellAmount == "1000000000000000000" {
			<-release
		}
		return quoteAt3000(ctx, params)
	}
	p := newPoller(fetcher, &fakeResolver{}, 0)

	p.SetSellToken("WETH")
	p.SetBuyToken("USDC")
	p.SetSellAmount("1")
	p.SetSellAmount("2")

	require.Eventually(t, func() bool {
		return p.State().Intent.BuyAmount == "6000"
	}, time.Second, time.Millisecond)

	close(release)
	p.Wait()

	s := p.State()
	assert.Equal(t, "6000", s.Intent.BuyAmount)
	assert.Equal(t, "2", s.Intent.SellAmount)
	assert.True(t, s.Fresh())
}

func TestPoller_ValidationErrors(t *testing.T) {
	fetcher := &fakeFetcher{respond: quoteAt3000}
	p := newPoller(fetcher, &fakeResolver{}, 0)

	p.SetSellToken("WETH")
	p.SetBuyToken("USDC")
	p.SetSellAmount("1")
	p.Wait()

	fetcher.respond = func(context.Context, client.PriceParams) (*client.PriceResponse, error) {
		return &client.PriceResponse{ValidationErrors: []client.ValidationError{
			{Field: "sellAmount", Code: 1004, Reason: "INSUFFICIENT_ASSET_LIQUIDITY"},
		}}, nil
	}
	p.SetSellAmount("2")
	p.Wait()

	s := p.State()
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "sellAmount", s.Errors[0].Field)
	assert.Equal(t, "2", s.Intent.SellAmount)
	assert.Equal(t, "3000", s.Intent.BuyAmount)
	assert.False(t, s.Fresh())

	p.DismissErrors()
	assert.Empty(t, p.State().Errors)
}

func TestPoller_FailureKeepsState(t *testing.T) {
	fetcher := &fakeFetcher{respond: quoteAt3000}
	p := newPoller(fetcher, &fakeResolver{}, 0)

	p.SetSellToken("WETH")
	p.SetBuyToken("USDC")
	p.SetSellAmount("1")
	p.Wait()
	before := p.State().Snapshot

	fetcher.respond = func(context.Context, client.PriceParams) (*client.PriceResponse, error) {
		return nil, errors.New("connection reset")
	}
	p.SetSellAmount("2")
	p.Wait()

	s := p.State()
	assert.False(t, s.Loading)
	assert.Equal(t, "3000", s.Intent.BuyAmount)
	assert.Same(t, before, s.Snapshot)
	assert.Empty(t, s.Errors)
}

func TestPoller_SwapSides(t *testing.T) {
	fetcher := &fakeFetcher{respond: quoteAt3000}
	p := newPoller(fetcher, &fakeResolver{}, 0)

	p.SetSellToken("WETH")
	p.SetBuyToken("USDC")
	p.SetSellAmount("1")
	p.Wait()

	p.SwapSides()
	p.Wait()

	s := p.State()
	assert.Equal(t, "USDC", s.Intent.SellToken)
	assert.Equal(t, "WETH", s.Intent.BuyToken)
	assert.Equal(t, "3000", s.Intent.SellAmount)
	assert.Equal(t, "1", s.Intent.BuyAmount)
	assert.Equal(t, types.DirectionSell, s.Intent.Direction)

	calls := fetcher.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, usdc.Address, calls[1].SellToken)
	assert.Equal(t, "3000000000", calls[1].SellAmount)
}

func TestPoller_DebouncesAmountEdits(t *testing.T) {
	fetcher := &fakeFetcher{respond: quoteAt3000}
	p := newPoller(fetcher, &fakeResolver{}, 50*time.Millisecond)

	p.SetSellToken("WETH")
	p.SetBuyToken("USDC")
	p.SetSellAmount("1")
	p.SetSellAmount("1.5")
	p.SetSellAmount("2")
	assert.True(t, p.State().Loading)
	p.Wait()

	calls := fetcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "2000000000000000000", calls[0].SellAmount)
	assert.Equal(t, "6000", p.State().Intent.BuyAmount)
}

func TestPoller_OnUpdate(t *testing.T) {
	fetcher := &fakeFetcher{respond: quoteAt3000}
	p := newPoller(fetcher, &fakeResolver{}, 0)

	var mu sync.Mutex
	var last State
	p.OnUpdate(func(s State) {
		mu.Lock()
		last = s
		mu.Unlock()
	})

	p.SetSellToken("WETH")
	p.SetBuyToken("USDC")
	p.SetSellAmount("1")
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "3000", last.Intent.BuyAmount)
}

func TestPoller_OnUpdateNeverEndsStale(t *testing.T) {
	fetcher := &fakeFetcher{respond: quoteAt3000}
	p := newPoller(fetcher, &fakeResolver{}, 0)

	var (
		mu        sync.Mutex
		delivered []State
		once      sync.Once
	)
	slow := make(chan struct{})
	p.OnUpdate(func(s State) {
		if s.Intent.SellAmount == "1" && s.Intent.BuyAmount == "3000" {
			// Hold the first priced delivery while newer inputs arrive
			once.Do(func() {
				close(slow)
				time.Sleep(50 * time.Millisecond)
			})
		}
		mu.Lock()
		delivered = append(delivered, s)
		mu.Unlock()
	})

	p.SetSellToken("WETH")
	p.SetBuyToken("USDC")
	p.SetSellAmount("1")
	<-slow
	p.SetSellAmount("2")
	p.Wait()

	current := p.State()
	require.Equal(t, "6000", current.Intent.BuyAmount)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, delivered)
	last := delivered[len(delivered)-1]
	assert.Equal(t, current.Generation, last.Generation)
	assert.Equal(t, "2", last.Intent.SellAmount)
	assert.Equal(t, "6000", last.Intent.BuyAmount)

	for i := 1; i < len(delivered); i++ {
		assert.GreaterOrEqual(t, delivered[i].Generation, delivered[i-1].Generation)
	}
}
