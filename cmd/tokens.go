package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cryptoswap/pkg/types"
)

var filterSymbol string

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List tradable tokens",
	Long: `List the tokens available on the configured chain: the popular tokens
followed by the first entries of the remote token list.

Examples:
  cryptoswap list-tokens
  cryptoswap list-tokens --symbol USD`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol or name")
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	a.loadTokens(context.Background(), jsonOutput)

	tokens := a.catalog.Tokens()
	if filterSymbol != "" {
		tokens = a.catalog.Search(filterSymbol)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(tokens, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayTokens(tokens, a.cfg.ChainID)
	}
}

func displayTokens(tokens []types.Token, chainID int64) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            TRADABLE TOKENS (chain %d)", chainID)
	fmt.Println(strings.Repeat("=", 90))

	for _, token := range tokens {
		fmt.Printf("  %-10s  %2d decimals  %-42s  %s\n",
			color.YellowString(token.Symbol),
			token.Decimals,
			color.HiBlackString(token.Address),
			token.Name)
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens\n\n", len(tokens))
}
