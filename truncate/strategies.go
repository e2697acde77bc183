package truncate

import "strings"

// structural keeps the first 40% and last 30% of lines joined by the marker.
func (t *Truncator) structural(content string, limit int) (string, bool) {
	lines := strings.Split(content, "\n")
	head := int(float64(len(lines)) * HeadFraction)
	tail := int(float64(len(lines)) * TailFraction)
	if head == 0 && tail == 0 {
		return "", false
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(lines[:head], "\n"))
	sb.WriteString(t.marker)
	sb.WriteString(strings.Join(lines[len(lines)-tail:], "\n"))

	candidate := sb.String()
	return candidate, t.counter.FitsInLimit(candidate, limit)
}

// leadingLines keeps whole lines from the start followed by the end marker.
func (t *Truncator) leadingLines(content string, limit int) (string, bool) {
	endTokens := t.counter.Count(t.endMarker)
	if endTokens >= limit {
		return "", false
	}

	lines := strings.Split(content, "\n")
	kept, used := 0, 0
	for _, line := range lines {
		lineTokens := t.counter.Count(line + "\n")
		if used+lineTokens+endTokens > limit {
			break
		}
		used += lineTokens
		kept++
	}

	// Per-line counts only approximate the joined count; verify and back off.
	for ; kept > 0; kept-- {
		candidate := strings.Join(lines[:kept], "\n") + t.endMarker
		if t.counter.FitsInLimit(candidate, limit) {
			return candidate, true
		}
	}
	return "", false
}

// leadingChars keeps a character prefix sized by the content's own
// characters-per-token ratio, less a safety margin.
func (t *Truncator) leadingChars(content string, limit int) (string, bool) {
	target := limit - t.counter.Count(t.suffix)
	if target <= 0 {
		return "", false
	}

	runes := []rune(content)
	total := t.counter.Count(content)
	if len(runes) == 0 || total == 0 {
		return "", false
	}

	ratio := float64(len(runes)) / float64(total)
	keep := min(int(float64(target)*ratio*SafetyMargin), len(runes))
	if keep > 0 {
		candidate := string(runes[:keep]) + t.suffix
		if t.counter.FitsInLimit(candidate, limit) {
			return candidate, true
		}
	}

	// The ratio misjudged this text; search for the longest prefix that fits.
	keep = t.fittingPrefix(runes, limit)
	if keep == 0 {
		return "", false
	}
	return string(runes[:keep]) + t.suffix, true
}

// fittingPrefix finds how many runes from the start fit in limit
// together with the suffix.
func (t *Truncator) fittingPrefix(runes []rune, limit int) int {
	low, high := 0, len(runes)

	for low < high {
		mid := (low + high + 1) / 2
		candidate := string(runes[:mid]) + t.suffix
		if t.counter.FitsInLimit(candidate, limit) {
			low = mid
		} else {
			high = mid - 1
		}
	}

	return low
}
