// Package tokens provides token counting and the token budget type.
//
// # Counter
//
// The Counter interface provides token counting methods. EncodingCounter
// counts with a real tokenizer and silently estimates when the tokenizer is
// missing or fails on an input:
//
//	enc, err := tokens.NewTiktokenEncoding("cl100k_base")
//	counter := tokens.NewEncodingCounter(enc) // enc may be nil
//	defer counter.Close()
//	count := counter.Count("Hello, world!")
//
// The estimate is ceil(runes/4). It is also available on its own:
//
//	count := tokens.EstimateTokens("Hello, world!") // 4
//
// # Budget
//
// Budget is a token ceiling clamped to HardCeiling:
//
//	b := tokens.NewBudget(200000)
//	b.Limit()              // 150000
//	b.Fits(used, n)        // used+n <= limit
//	b.Remaining(used)      // never negative
//	b.Utilization(used)    // percent
package tokens
