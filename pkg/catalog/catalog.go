// Package catalog resolves the set of tradable tokens for a chain.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"cryptoswap/pkg/types"
)

// DefaultLimit caps how many remote tokens are merged into the catalog
const DefaultLimit = 30

// PopularTokens is the seed list. It is always present and wins address collisions.
var PopularTokens = []types.Token{
	{
		ChainID:  1,
		Name:     "Wrapped Ether",
		Symbol:   "WETH",
		Decimals: 18,
		Address:  "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		LogoURI:  "https://raw.githubusercontent.com/maticnetwork/polygon-token-assets/main/assets/tokenAssets/weth.svg",
	},
	{
		ChainID:  1,
		Name:     "USD Coin",
		Symbol:   "USDC",
		Decimals: 6,
		Address:  "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		LogoURI:  "https://raw.githubusercontent.com/maticnetwork/polygon-token-assets/main/assets/tokenAssets/usdc.svg",
	},
	{
		ChainID:  1,
		Name:     "Dai Stablecoin",
		Symbol:   "DAI",
		Decimals: 18,
		Address:  "0x6b175474e89094c44da98b954eedeac495271d0f",
		LogoURI:  "https://raw.githubusercontent.com/maticnetwork/polygon-token-assets/main/assets/tokenAssets/dai.svg",
	},
	{
		ChainID:  1,
		Name:     "FLOKI",
		Symbol:   "FLOKI",
		Decimals: 9,
		Address:  "0xcf0c122c6b73ff809c693db761e7baebe62b6a2e",
		LogoURI:  "https://raw.githubusercontent.com/trustwallet/assets/c37119334a24f9933f373c6cc028a5bdbad2ecb4/blockchains/ethereum/assets/0xcf0C122c6b73ff809C693DB761e7BaeBe62b6a2E/logo.png",
	},
}

// tokenList is the JSON shape of a token-list endpoint
type tokenList struct {
	Name   string        `json:"name"`
	Tokens []types.Token `json:"tokens"`
}

// Catalog holds the merged token list for one chain
type Catalog struct {
	httpClient *http.Client
	url        string
	chainID    int64
	limit      int
	logger     *slog.Logger

	mu      sync.RWMutex
	tokens  []types.Token
	loading bool
	err     error
}

// New creates a catalog seeded with the popular tokens of chainID
func New(httpClient *http.Client, url string, chainID int64, limit int, logger *slog.Logger) *Catalog {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Catalog{
		httpClient: httpClient,
		url:        url,
		chainID:    chainID,
		limit:      limit,
		logger:     logger,
		tokens:     seedFor(chainID),
	}
}

func seedFor(chainID int64) []types.Token {
	seed := make([]types.Token, 0, len(PopularTokens))
	for _, t := range PopularTokens {
		if t.ChainID == chainID {
			seed = append(seed, t)
		}
	}
	return seed
}

// Load fetches the remote list and merges it with the seed. A failed fetch
// leaves the seed list in place and is recorded in Err; it is also returned
// so the caller can report it, but the catalog stays usable.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loading = true
	c.err = nil
	c.mu.Unlock()

	fetched, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false

	seed := seedFor(c.chainID)
	if err != nil {
		c.logger.Warn("token list fetch failed, using popular tokens", "url", c.url, "error", err)
		c.err = fmt.Errorf("failed to load additional tokens: %w", err)
		c.tokens = seed
		return c.err
	}

	c.tokens = Merge(seed, fetched)
	c.logger.Debug("token catalog loaded", "chain_id", c.chainID, "tokens", len(c.tokens))
	return nil
}

func (c *Catalog) fetch(ctx context.Context) ([]types.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token list returned status code %d", resp.StatusCode)
	}

	var list tokenList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode token list: %w", err)
	}

	filtered := make([]types.Token, 0, c.limit)
	for _, t := range list.Tokens {
		if t.ChainID != c.chainID || t.Address == "" {
			continue
		}
		filtered = append(filtered, t)
		if len(filtered) == c.limit {
			break
		}
	}
	return filtered, nil
}

// Merge returns seed followed by the fetched tokens whose address is not
// already present, compared case-insensitively.
func Merge(seed, fetched []types.Token) []types.Token {
	seen := make(map[string]struct{}, len(seed)+len(fetched))
	merged := make([]types.Token, 0, len(seed)+len(fetched))

	for _, list := range [][]types.Token{seed, fetched} {
		for _, t := range list {
			if _, dup := seen[t.Key()]; dup {
				continue
			}
			seen[t.Key()] = struct{}{}
			merged = append(merged, t)
		}
	}
	return merged
}

// Loading reports whether a load is outstanding. While true the catalog is
// not authoritative.
func (c *Catalog) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Err returns the last load error, if any
func (c *Catalog) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Tokens returns a copy of the ordered token list
func (c *Catalog) Tokens() []types.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Token, len(c.tokens))
	copy(out, c.tokens)
	return out
}

// BySymbol finds a token by symbol, case-insensitively. The first match wins.
func (c *Catalog) BySymbol(symbol string) (types.Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return types.Token{}, false
}

// ByAddress finds a token by address, case-insensitively
func (c *Catalog) ByAddress(address string) (types.Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key := strings.ToLower(address)
	for _, t := range c.tokens {
		if t.Key() == key {
			return t, true
		}
	}
	return types.Token{}, false
}

// Resolve accepts either a symbol or an address
func (c *Catalog) Resolve(ref string) (types.Token, bool) {
	if strings.HasPrefix(strings.ToLower(ref), "0x") {
		return c.ByAddress(ref)
	}
	return c.BySymbol(ref)
}

// Search returns tokens whose symbol or name contains term
func (c *Catalog) Search(term string) []types.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()

	term = strings.ToLower(term)
	var out []types.Token
	for _, t := range c.tokens {
		if strings.Contains(strings.ToLower(t.Symbol), term) || strings.Contains(strings.ToLower(t.Name), term) {
			out = append(out, t)
		}
	}
	return out
}
