package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cryptoswap",
	Short: "A CLI for same-chain token swaps using the 0x Swap API",
	Long: `cryptoswap is a command-line tool that prices, approves and executes
ERC-20 token swaps through the 0x Swap API. Type what you want to trade and
it walks you from an indicative price through the token approval to a
signed swap transaction.

Examples:
  cryptoswap swap 1 WETH to USDC
  cryptoswap swap buy 3000 USDC with WETH
  cryptoswap price 1 WETH to USDC
  cryptoswap list-tokens
  cryptoswap status <tx-hash>`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
