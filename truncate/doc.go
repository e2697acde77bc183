// Package truncate shrinks text to a token limit.
//
// Fit degrades through four steps as the limit shrinks:
//
//  1. Structural: keep the first 40% and last 30% of lines around a marker.
//  2. Lines: keep whole lines from the start, then an end marker.
//  3. Characters: keep a prefix sized by the text's own characters-per-token
//     ratio with a 10% margin, then a suffix.
//  4. Placeholder: a fixed "[truncated]" string, or nothing at all.
//
// Whatever step answers, the result never exceeds the limit, and text that
// already fits comes back unchanged:
//
//	tr := truncate.New(counter)
//	res := tr.Fit(text, 500)
//	res.Content, res.Tokens, res.Stage
//
// For one-off use with the estimating counter:
//
//	short := truncate.ToTokens(text, 100)
//	label := truncate.ToLength(reason, 40)
package truncate
