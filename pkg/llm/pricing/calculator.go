package pricing

import (
	"fmt"
	"unicode/utf8"
)

// Calculate returns the USD cost of a call.
func Calculate(p Price, tokensIn, tokensOut int) float64 {
	if tokensIn < 0 {
		tokensIn = 0
	}
	if tokensOut < 0 {
		tokensOut = 0
	}
	return float64(tokensIn)/1_000_000.0*p.InputPerMillion +
		float64(tokensOut)/1_000_000.0*p.OutputPerMillion
}

// EstimateTokensFromText approximates token count at ~4 characters per token.
func EstimateTokensFromText(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / 4
	if n == 0 {
		return 1
	}
	return n
}

// FormatCost formats a USD amount for display.
func FormatCost(amount float64) string {
	switch {
	case amount == 0:
		return "$0.00"
	case amount < 0.01:
		return fmt.Sprintf("$%.4f", amount)
	default:
		return fmt.Sprintf("$%.2f", amount)
	}
}

// FormatTokens formats a token count with K/M suffixes.
func FormatTokens(tokens int) string {
	switch {
	case tokens >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(tokens)/1_000_000)
	case tokens >= 1_000:
		return fmt.Sprintf("%.1fK", float64(tokens)/1_000)
	default:
		return fmt.Sprintf("%d", tokens)
	}
}
