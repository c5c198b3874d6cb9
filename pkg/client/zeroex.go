package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cryptoswap/pkg/types"
)

const (
	pricePath = "/swap/allowance-holder/price"
	quotePath = "/swap/allowance-holder/quote"

	apiVersion = "v2"
)

// PriceParams are the query parameters shared by the price and quote endpoints.
// Exactly one of SellAmount and BuyAmount should be set; both are smallest units.
type PriceParams struct {
	ChainID               int64
	SellToken             string
	BuyToken              string
	SellAmount            string
	BuyAmount             string
	Taker                 string
	SwapFeeRecipient      string
	SwapFeeBps            int
	SwapFeeToken          string
	TradeSurplusRecipient string
}

// Values encodes the params, omitting empty ones
func (p PriceParams) Values() url.Values {
	v := url.Values{}
	v.Set("chainId", strconv.FormatInt(p.ChainID, 10))
	v.Set("sellToken", p.SellToken)
	v.Set("buyToken", p.BuyToken)

	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("sellAmount", p.SellAmount)
	set("buyAmount", p.BuyAmount)
	set("taker", p.Taker)
	set("swapFeeRecipient", p.SwapFeeRecipient)
	set("swapFeeToken", p.SwapFeeToken)
	set("tradeSurplusRecipient", p.TradeSurplusRecipient)

	// The fee is only meaningful with a recipient
	if p.SwapFeeRecipient != "" && p.SwapFeeBps > 0 {
		v.Set("swapFeeBps", strconv.Itoa(p.SwapFeeBps))
	}
	return v
}

// ValidationError is an entry of the validationErrors array
type ValidationError struct {
	Field       string `json:"field"`
	Code        int    `json:"code"`
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

func (v ValidationError) String() string {
	if v.Description != "" {
		return fmt.Sprintf("%s: %s", v.Field, v.Description)
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

// PriceResponse is the decoded body of the price endpoint
type PriceResponse struct {
	BuyAmount  string `json:"buyAmount"`
	SellAmount string `json:"sellAmount"`
	Fees       struct {
		IntegratorFee *struct {
			Amount string `json:"amount"`
			Token  string `json:"token"`
			Type   string `json:"type"`
		} `json:"integratorFee"`
	} `json:"fees"`
	TokenMetadata *struct {
		BuyToken  types.TokenTax `json:"buyToken"`
		SellToken types.TokenTax `json:"sellToken"`
	} `json:"tokenMetadata"`
	Issues struct {
		Allowance *types.AllowanceIssue `json:"allowance"`
		Balance   *types.BalanceIssue   `json:"balance"`
	} `json:"issues"`
	LiquidityAvailable *bool             `json:"liquidityAvailable,omitempty"`
	ValidationErrors   []ValidationError `json:"validationErrors"`
}

// Snapshot converts the response into the read-only snapshot consumed downstream
func (r *PriceResponse) Snapshot() *types.PriceSnapshot {
	snap := &types.PriceSnapshot{
		BuyAmount:      r.BuyAmount,
		SellAmount:     r.SellAmount,
		BuyTokenTax:    types.TokenTax{BuyTaxBps: "0", SellTaxBps: "0"},
		SellTokenTax:   types.TokenTax{BuyTaxBps: "0", SellTaxBps: "0"},
		AllowanceIssue: r.Issues.Allowance,
		BalanceIssue:   r.Issues.Balance,
	}
	if r.Fees.IntegratorFee != nil {
		snap.IntegratorFee = r.Fees.IntegratorFee.Amount
	}
	if r.TokenMetadata != nil {
		snap.BuyTokenTax = r.TokenMetadata.BuyToken
		snap.SellTokenTax = r.TokenMetadata.SellToken
	}
	return snap
}

// QuoteTransaction is the transaction a firm quote asks the taker to send
type QuoteTransaction struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
}

// QuoteResponse is the decoded body of the quote endpoint
type QuoteResponse struct {
	PriceResponse
	MinBuyAmount string           `json:"minBuyAmount"`
	Transaction  QuoteTransaction `json:"transaction"`
}

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("API error (status %d): %s: %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// ZeroExClient talks to the 0x swap API
type ZeroExClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// NewZeroExClient creates a new swap API client
func NewZeroExClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *ZeroExClient {
	return &ZeroExClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *ZeroExClient) WithHTTPClient(hc *http.Client) *ZeroExClient {
	c.httpClient = hc
	return c
}

// GetPrice fetches an indicative price. Validation errors are part of the
// response, not an error.
func (c *ZeroExClient) GetPrice(ctx context.Context, params PriceParams) (*PriceResponse, error) {
	var resp PriceResponse
	if err := c.get(ctx, pricePath, params.Values(), &resp); err != nil {
		return nil, fmt.Errorf("failed to get price: %w", err)
	}
	return &resp, nil
}

// GetQuote fetches a firm quote including the transaction to sign
func (c *ZeroExClient) GetQuote(ctx context.Context, params PriceParams) (*QuoteResponse, error) {
	if params.Taker == "" {
		return nil, fmt.Errorf("taker address is required for a firm quote")
	}

	var resp QuoteResponse
	if err := c.get(ctx, quotePath, params.Values(), &resp); err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	if len(resp.ValidationErrors) == 0 && resp.Transaction.To == "" {
		return nil, fmt.Errorf("quote response has no transaction")
	}
	return &resp, nil
}

func (c *ZeroExClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("0x-api-key", c.apiKey)
	req.Header.Set("0x-version", apiVersion)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("swap api request",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	// The API reports input problems as 400 with a validationErrors body;
	// those are decoded like a normal response.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusBadRequest && hasValidationErrors(body) {
			return json.Unmarshal(body, out)
		}
		return parseAPIError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func hasValidationErrors(body []byte) bool {
	var envelope struct {
		ValidationErrors []json.RawMessage `json:"validationErrors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	return len(envelope.ValidationErrors) > 0
}

// parseAPIError tries to extract the actual error message from the response
func parseAPIError(status int, body []byte) error {
	var errorResp struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil && (errorResp.Message != "" || errorResp.Name != "") {
		msg := errorResp.Message
		if msg == "" {
			msg = errorResp.Reason
		}
		return &APIError{StatusCode: status, Name: errorResp.Name, Message: msg}
	}
	// If we can't parse it, show the raw body
	return &APIError{StatusCode: status, Message: string(body)}
}
