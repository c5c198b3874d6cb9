package parser

import (
	"fmt"
	"regexp"
	"strings"

	"cryptoswap/pkg/types"
)

var (
	// <amount> <sell> TO <buy>, optional leading SWAP or SELL
	sellPattern = regexp.MustCompile(`^(?:(?:SWAP|SELL)\s+)?(\d+\.?\d*|\.\d+)\s+([A-Z0-9.]+)\s+(?:TO|FOR)\s+([A-Z0-9.]+)$`)
	// BUY <amount> <buy> WITH <sell>
	buyPattern = regexp.MustCompile(`^BUY\s+(\d+\.?\d*|\.\d+)\s+([A-Z0-9.]+)\s+(?:WITH|USING)\s+([A-Z0-9.]+)$`)
)

// ParseSwapCommand parses a natural language trade command
// Examples:
//   - "swap 1 WETH to USDC"    (sell direction)
//   - "1.5 WETH for DAI"
//   - "buy 3000 USDC with WETH" (buy direction)
func ParseSwapCommand(command string) (*types.TradeIntent, error) {
	// Normalize the command
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")

	if m := buyPattern.FindStringSubmatch(command); m != nil {
		return &types.TradeIntent{
			BuyAmount: m[1],
			BuyToken:  m[2],
			SellToken: m[3],
			Direction: types.DirectionBuy,
		}, nil
	}

	if m := sellPattern.FindStringSubmatch(command); m != nil {
		return &types.TradeIntent{
			SellAmount: m[1],
			SellToken:  m[2],
			BuyToken:   m[3],
			Direction:  types.DirectionSell,
		}, nil
	}

	return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> to <token>' or 'buy <amount> <token> with <token>' (e.g., 'swap 1 WETH to USDC')")
}

// ValidateTradeIntent validates that an intent has all required fields
func ValidateTradeIntent(intent *types.TradeIntent) error {
	if intent.EditedAmount() == "" {
		return fmt.Errorf("amount is required")
	}
	if intent.SellToken == "" {
		return fmt.Errorf("sell token is required")
	}
	if intent.BuyToken == "" {
		return fmt.Errorf("buy token is required")
	}
	if strings.EqualFold(intent.SellToken, intent.BuyToken) {
		return fmt.Errorf("cannot swap %s for itself", intent.SellToken)
	}
	return nil
}
