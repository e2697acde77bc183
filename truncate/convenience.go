package truncate

import "unicode/utf8"

// ToTokens truncates text to fit within the specified token limit
// using the default estimating counter.
func ToTokens(text string, maxTokens int) string {
	return New(nil).Fit(text, maxTokens).Content
}

// ToLength truncates text to a maximum character length.
// Properly handles UTF-8 by counting runes, not bytes.
func ToLength(text string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	runeCount := utf8.RuneCountInString(text)
	if runeCount <= maxLen {
		return text
	}

	runes := []rune(text)
	if maxLen < 3 {
		return string(runes[:maxLen])
	}

	return string(runes[:maxLen-3]) + "..."
}
