package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cryptoswap/pkg/chain"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the status of a swap or approval transaction",
	Long: `Check whether a transaction sent by cryptoswap has been mined and whether it succeeded.

Examples:
  cryptoswap status 0x1234...abcd
  cryptoswap status 0x1234...abcd --watch
  cryptoswap status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch until the transaction is mined")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	txHash := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if a.cfg.RPCUrl == "" {
		printError(fmt.Errorf("RPC URL not configured. Set CRYPTOSWAP_RPC_URL"))
		os.Exit(1)
	}

	// Status lookups only need an address to satisfy the account
	taker := a.cfg.Taker
	if taker == "" && !a.cfg.HasSigner() {
		taker = "0x0000000000000000000000000000000000000000"
	}
	account, err := chain.Dial(a.cfg.RPCUrl, a.cfg.ChainID, a.cfg.PrivateKey, taker, a.logger)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer account.Close()

	if watchStatus {
		watchTxStatus(account, txHash, jsonOutput)
	} else {
		checkTxStatus(account, txHash, jsonOutput)
	}
}

func checkTxStatus(account *chain.Account, txHash string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking transaction status..."
		s.Start()
	}

	info, err := account.TransactionInfo(context.Background(), txHash)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayStatus(info)
	}
}

func watchTxStatus(account *chain.Account, txHash string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	if watchInterval < 1 {
		watchInterval = 1
	}

	fmt.Printf("\nWatching transaction %s\n", color.CyanString(txHash))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first, then until mined
	for {
		if mined := checkAndDisplayStatus(account, txHash); mined {
			return
		}
		<-ticker.C
	}
}

func checkAndDisplayStatus(account *chain.Account, txHash string) bool {
	info, err := account.TransactionInfo(context.Background(), txHash)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displayStatus(info)
	return !info.Pending
}

func displayStatus(info *chain.TxInfo) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                     TRANSACTION STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Hash:            %s\n", color.CyanString(info.Hash))
	fmt.Printf("  Status:          %s\n", getColoredStatus(info))
	fmt.Printf("  To:              %s\n", info.To)
	fmt.Printf("  Nonce:           %d\n", info.Nonce)
	fmt.Printf("  Value:           %s wei\n", info.Value)
	fmt.Printf("  Gas Limit:       %d\n", info.GasLimit)

	if !info.Pending {
		fmt.Printf("  Block:           %d\n", info.BlockNumber)
		fmt.Printf("  Gas Used:        %d\n", info.GasUsed)
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(info *chain.TxInfo) string {
	switch {
	case info.Pending:
		return color.YellowString("PENDING")
	case info.Status == nil:
		return "UNKNOWN"
	case *info.Status == ethtypes.ReceiptStatusSuccessful:
		return color.GreenString("SUCCESS")
	default:
		return color.RedString("FAILED")
	}
}
