package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Allowance check modes
const (
	AllowanceCheckNonZero = "nonzero" // any nonzero allowance counts as sufficient
	AllowanceCheckAmount  = "amount"  // allowance must cover the sell amount
)

// Config holds the application configuration
type Config struct {
	APIKey         string
	BaseURL        string
	TokenListURL   string
	TokenListLimit int
	ChainID        int64

	// Wallet
	RPCUrl     string
	PrivateKey string
	Taker      string // read-only taker address, used when no private key is set

	// Integrator fee
	FeeRecipient    string
	AffiliateFeeBps int

	PriceDebounce  time.Duration
	AllowanceCheck string
	HTTPTimeout    time.Duration

	Log LogConfig
}

// LogConfig controls the structured log file
type LogConfig struct {
	Level string
	File  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "https://api.0x.org")
	v.SetDefault("token_list_url", "https://tokens.coingecko.com/uniswap/all.json")
	v.SetDefault("token_list_limit", 30)
	v.SetDefault("chain_id", 1)
	v.SetDefault("affiliate_fee_bps", 100)
	v.SetDefault("price_debounce", "500ms")
	v.SetDefault("allowance_check", AllowanceCheckNonZero)
	v.SetDefault("http_timeout", "15s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/cryptoswap.log")
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".cryptoswap")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	setDefaults(v)

	// Read from environment variables (CRYPTOSWAP_API_KEY, CRYPTOSWAP_LOG_LEVEL, ...)
	v.SetEnvPrefix("CRYPTOSWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional
	_ = v.ReadInConfig()

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromViper builds a Config from an already populated viper instance
func FromViper(v *viper.Viper) *Config {
	return &Config{
		APIKey:          v.GetString("api_key"),
		BaseURL:         strings.TrimRight(v.GetString("base_url"), "/"),
		TokenListURL:    v.GetString("token_list_url"),
		TokenListLimit:  v.GetInt("token_list_limit"),
		ChainID:         v.GetInt64("chain_id"),
		RPCUrl:          v.GetString("rpc_url"),
		PrivateKey:      v.GetString("private_key"),
		Taker:           v.GetString("taker"),
		FeeRecipient:    v.GetString("fee_recipient"),
		AffiliateFeeBps: v.GetInt("affiliate_fee_bps"),
		PriceDebounce:   v.GetDuration("price_debounce"),
		AllowanceCheck:  strings.ToLower(v.GetString("allowance_check")),
		HTTPTimeout:     v.GetDuration("http_timeout"),
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key not found. Please set CRYPTOSWAP_API_KEY environment variable or create a .cryptoswap.yaml config file")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("invalid base URL: %s", c.BaseURL)
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("chain id must be positive")
	}
	if c.TokenListLimit <= 0 {
		return fmt.Errorf("token list limit must be positive")
	}
	if c.AffiliateFeeBps < 0 || c.AffiliateFeeBps > 10000 {
		return fmt.Errorf("affiliate fee must be between 0 and 10000 bps")
	}
	if c.PriceDebounce < 0 {
		return fmt.Errorf("price debounce must not be negative")
	}
	switch c.AllowanceCheck {
	case AllowanceCheckNonZero, AllowanceCheckAmount:
	default:
		return fmt.Errorf("allowance check must be '%s' or '%s', got '%s'", AllowanceCheckNonZero, AllowanceCheckAmount, c.AllowanceCheck)
	}
	return nil
}

// HasSigner returns true if a private key is configured
func (c *Config) HasSigner() bool {
	return c.PrivateKey != ""
}
