package utils

// Token estimation helpers used to budget the dataset payload sent to
// the agent. The 4-characters-per-token heuristic is deliberately
// rough; the cap only needs to keep requests inside the model's
// context window, not match its tokenizer exactly.

// CountTokens estimates the number of tokens in the given text.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TokenBudgetBytes converts a token budget to an approximate byte
// budget using the same heuristic.
func TokenBudgetBytes(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return tokens * 4
}

// TruncateToTokenLimit naively truncates text to roughly fit within a
// token limit, cutting on a rune boundary.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	charLimit := limit * 4
	if charLimit >= len(runes) {
		return text
	}
	return string(runes[:charLimit])
}
