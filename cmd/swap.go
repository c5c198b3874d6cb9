package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cryptoswap/pkg/client"
	"cryptoswap/pkg/execution"
	"cryptoswap/pkg/parser"
	"cryptoswap/pkg/readiness"
	"cryptoswap/pkg/types"
	"cryptoswap/pkg/units"
)

var (
	noConfirm bool
	swapFlip  bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <sell-token> to <buy-token>",
	Short: "Price, approve and execute a token swap",
	Long: `Swap tokens on the configured chain using the 0x Swap API.

The swap goes through the same steps as the web flow: an indicative price,
a one-time approval of the exchange contract if the sell token needs one,
a review of the firm quote and finally the signed swap transaction.

IMPORTANT:
  - CRYPTOSWAP_RPC_URL and CRYPTOSWAP_PRIVATE_KEY must be set to trade
  - Approvals grant the exchange contract an unlimited allowance

Examples:
  # Sell an exact amount
  cryptoswap swap 1 WETH to USDC

  # Buy an exact amount
  cryptoswap swap buy 3000 USDC with WETH

  # Sell what you would have bought
  cryptoswap swap 3000 USDC to WETH --flip

  # Skip all confirmations
  cryptoswap swap 1 WETH to USDC --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompts")
	swapCmd.Flags().BoolVar(&swapFlip, "flip", false, "Swap the sell and buy sides before pricing")
}

func runSwap(cmd *cobra.Command, args []string) {
	// Parse the command
	intent, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err == nil {
		err = parser.ValidateTradeIntent(intent)
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx := context.Background()
	a.loadTokens(ctx, jsonOutput)

	t, err := a.priceTrade(ctx, intent, swapFlip, jsonOutput)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer t.poller.Close()

	if !jsonOutput {
		displayPrice(t.poller.State(), t.session.Action())
	}
	if verbose {
		fmt.Printf("Session: %s\n", t.session.ID())
	}

	if err := advance(ctx, t, jsonOutput); err != nil {
		printError(err)
		os.Exit(1)
	}

	state := t.poller.State()
	params, err := a.quoteParams(state)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	exec := execution.New(a.api, t.account, a.logger)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}
	quote, err := exec.Quote(ctx, params)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		displayQuote(quote, state.SellToken, state.BuyToken)
	}

	if !noConfirm && !jsonOutput {
		if !confirm("Proceed with swap?") {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	if !jsonOutput {
		s.Suffix = " Sending swap transaction..."
		s.Start()
	}
	result, err := exec.Execute(ctx, quote)
	if !jsonOutput {
		s.Stop()
	}
	t.session.Reset()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"tx_hash":      result.TxHash.Hex(),
			"block_number": result.BlockNumber,
			"gas_used":     result.GasUsed,
			"sell_amount":  quote.SellAmount,
			"buy_amount":   quote.BuyAmount,
			"status":       "confirmed",
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	color.Green("\n✓ Swap confirmed in block %d", result.BlockNumber)
	fmt.Printf("  Transaction: %s\n", color.CyanString(result.TxHash.Hex()))
	fmt.Println("\nYou can inspect the transaction using:")
	color.Cyan("  cryptoswap status %s\n", result.TxHash.Hex())
}

// advance follows the readiness action until the trade is finalized for review
func advance(ctx context.Context, t *trade, quiet bool) error {
	approved := false
	for {
		action := t.session.Action()

		switch action.Kind {
		case readiness.ActionConnectWallet:
			return fmt.Errorf("no wallet configured. Set CRYPTOSWAP_RPC_URL and CRYPTOSWAP_PRIVATE_KEY")

		case readiness.ActionInsufficientBalance:
			return fmt.Errorf("insufficient %s balance for this trade", t.poller.State().Intent.SellToken)

		case readiness.ActionApprove:
			if approved {
				return fmt.Errorf("allowance is still insufficient after approval")
			}
			if err := approve(ctx, t, quiet); err != nil {
				return err
			}
			approved = true

		case readiness.ActionReview:
			if err := t.session.Review(); err != nil {
				return err
			}
			return nil

		default:
			return fmt.Errorf("cannot continue: %s", action.Label)
		}
	}
}

func approve(ctx context.Context, t *trade, quiet bool) error {
	state := t.poller.State()
	spender := state.Snapshot.AllowanceIssue.Spender

	if !quiet {
		color.Yellow("\n%s must be approved before it can be swapped.", state.SellToken.Symbol)
		fmt.Printf("  Spender: %s\n", spender)
	}
	if !noConfirm && !quiet {
		if !confirm("Approve unlimited spending?") {
			return fmt.Errorf("approval cancelled by user")
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !quiet {
		s.Suffix = " " + t.session.Action().Label
		s.Start()
	}
	err := t.session.Approve(ctx)
	if !quiet {
		s.Stop()
	}

	if err != nil {
		t.session.DismissError()
		if errors.Is(err, readiness.ErrNotConnected) {
			return fmt.Errorf("wallet is read-only. Set CRYPTOSWAP_PRIVATE_KEY to approve")
		}
		return err
	}

	if !quiet {
		printSuccess(color.GreenString("✓ Approval confirmed: %s", t.session.ApprovalTx().Hex()))
	}
	return nil
}

func displayQuote(quote *client.QuoteResponse, sell, buy *types.Token) {
	sellAmount, _ := units.FormatUnits(quote.SellAmount, sell.Decimals)
	buyAmount, _ := units.FormatUnits(quote.BuyAmount, buy.Decimals)
	minBuy, _ := units.FormatUnits(quote.MinBuyAmount, buy.Decimals)

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s\n", sellAmount, color.YellowString(sell.Symbol))
	fmt.Printf("  To:                ~%s %s\n", buyAmount, color.YellowString(buy.Symbol))
	fmt.Printf("  Minimum Received:  %s %s\n", minBuy, buy.Symbol)
	fmt.Printf("  Contract:          %s\n", color.CyanString(quote.Transaction.To))
	if quote.Transaction.Gas != "" {
		fmt.Printf("  Gas Limit:         %s\n", quote.Transaction.Gas)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
