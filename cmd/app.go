package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cryptoswap/config"
	"cryptoswap/pkg/catalog"
	"cryptoswap/pkg/chain"
	"cryptoswap/pkg/client"
	"cryptoswap/pkg/logging"
)

// app holds the dependencies shared by the commands
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	api     *client.ZeroExClient
	catalog *catalog.Catalog
}

func newApp(cmd *cobra.Command) (*app, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.Log, verbose).With("command", cmd.Name())
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	return &app{
		cfg:     cfg,
		logger:  logger,
		api:     client.NewZeroExClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPTimeout, logger).WithHTTPClient(httpClient),
		catalog: catalog.New(httpClient, cfg.TokenListURL, cfg.ChainID, cfg.TokenListLimit, logger),
	}, nil
}

// loadTokens fetches the remote token list. A failure is reported but the
// popular tokens stay usable.
func (a *app) loadTokens(ctx context.Context, quiet bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !quiet {
		s.Suffix = " Fetching token list..."
		s.Start()
	}

	err := a.catalog.Load(ctx)
	if !quiet {
		s.Stop()
	}

	if err != nil && !quiet {
		color.Yellow("Could not load the token list, using popular tokens only: %v", err)
	}
}

// wallet connects the configured account, or returns nil when no wallet is set up
func (a *app) wallet() (*chain.Account, error) {
	if a.cfg.RPCUrl == "" || (!a.cfg.HasSigner() && a.cfg.Taker == "") {
		return nil, nil
	}
	return chain.Dial(a.cfg.RPCUrl, a.cfg.ChainID, a.cfg.PrivateKey, a.cfg.Taker, a.logger)
}
