package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cryptoswap/pkg/parser"
)

var priceFlip bool

var priceCmd = &cobra.Command{
	Use:   "price <amount> <sell-token> to <buy-token>",
	Short: "Show an indicative price without trading",
	Long: `Fetch an indicative price and show what the next step of the trade would be.

When a wallet is configured the price is fetched for it as taker, so
allowance and balance issues are reported.

Examples:
  cryptoswap price 1 WETH to USDC
  cryptoswap price buy 3000 USDC with WETH
  cryptoswap price 1 WETH to USDC --flip`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPrice,
}

func init() {
	rootCmd.AddCommand(priceCmd)

	priceCmd.Flags().BoolVar(&priceFlip, "flip", false, "Swap the sell and buy sides before pricing")
}

func runPrice(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	intent, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err == nil {
		err = parser.ValidateTradeIntent(intent)
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx := context.Background()
	a.loadTokens(ctx, jsonOutput)

	t, err := a.priceTrade(ctx, intent, priceFlip, jsonOutput)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer t.poller.Close()

	state := t.poller.State()
	action := t.session.Action()

	if jsonOutput {
		output := map[string]interface{}{
			"sell_token":  state.SellToken,
			"buy_token":   state.BuyToken,
			"sell_amount": state.Intent.SellAmount,
			"buy_amount":  state.Intent.BuyAmount,
			"direction":   state.Intent.Direction,
			"price":       state.Snapshot,
			"allowance":   t.session.Gate(),
			"state":       t.session.State(),
			"action":      action.Label,
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayPrice(state, action)
}
