package truncate

import "github.com/randalmurphal/ctxload/tokens"

// DefaultMarker joins the kept head and tail of a structurally truncated text.
const DefaultMarker = "\n\n... [content truncated to fit token budget] ...\n\n"

// DefaultEndMarker ends a text cut at a line boundary.
const DefaultEndMarker = "\n... [truncated]"

// DefaultSuffix ends a text cut mid-line.
const DefaultSuffix = "... [truncated]"

// DefaultPlaceholder replaces a text when not even the marker fits.
const DefaultPlaceholder = "[truncated]"

const (
	// HeadFraction is the share of lines kept from the start in the structural pass.
	HeadFraction = 0.4

	// TailFraction is the share of lines kept from the end in the structural pass.
	TailFraction = 0.3

	// SafetyMargin scales the character estimate in the character pass.
	SafetyMargin = 0.9
)

// Stage identifies which step of the algorithm produced a result.
type Stage int

const (
	// StageNone means the content already fit and is returned unchanged.
	StageNone Stage = iota

	// StageEmpty means nothing could be kept.
	StageEmpty

	// StagePlaceholder means only DefaultPlaceholder fit.
	StagePlaceholder

	// StageStructural keeps the first and last lines around the marker.
	StageStructural

	// StageLines keeps whole lines from the start.
	StageLines

	// StageChars keeps a character prefix.
	StageChars
)

var stageNames = map[Stage]string{
	StageNone:        "none",
	StageEmpty:       "empty",
	StagePlaceholder: "placeholder",
	StageStructural:  "structural",
	StageLines:       "lines",
	StageChars:       "chars",
}

// String returns the stage name.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Result is the outcome of Fit.
type Result struct {
	Content string
	Tokens  int
	Stage   Stage
}

// Truncated reports whether the content was changed.
func (r Result) Truncated() bool {
	return r.Stage != StageNone
}

// Truncator shrinks text to a token limit, degrading from structure-preserving
// truncation to whole lines to raw characters as the limit shrinks.
type Truncator struct {
	counter     tokens.Counter
	marker      string
	endMarker   string
	suffix      string
	placeholder string
}

// New creates a truncator that measures with counter.
// A nil counter uses the estimating counter.
func New(counter tokens.Counter) *Truncator {
	if counter == nil {
		counter = tokens.NewEstimatingCounter()
	}
	return &Truncator{
		counter:     counter,
		marker:      DefaultMarker,
		endMarker:   DefaultEndMarker,
		suffix:      DefaultSuffix,
		placeholder: DefaultPlaceholder,
	}
}

// WithCounter sets a custom token counter.
func (t *Truncator) WithCounter(counter tokens.Counter) *Truncator {
	t.counter = counter
	return t
}

// WithMarker sets the text placed between the kept head and tail.
func (t *Truncator) WithMarker(marker string) *Truncator {
	t.marker = marker
	return t
}

// Marker returns the structural marker.
func (t *Truncator) Marker() string {
	return t.marker
}

// Fit reduces content to at most limit tokens. Every result satisfies
// Count(result.Content) <= limit, and content that already fits is returned
// unchanged. A limit <= 0 yields empty content.
func (t *Truncator) Fit(content string, limit int) Result {
	if limit <= 0 {
		return Result{Stage: StageEmpty}
	}
	if n := t.counter.Count(content); n <= limit {
		return Result{Content: content, Tokens: n, Stage: StageNone}
	}

	if limit-t.counter.Count(t.marker) <= 0 {
		return t.placeholderResult(limit)
	}

	if s, ok := t.structural(content, limit); ok {
		return t.result(s, StageStructural)
	}
	if s, ok := t.leadingLines(content, limit); ok {
		return t.result(s, StageLines)
	}
	if s, ok := t.leadingChars(content, limit); ok {
		return t.result(s, StageChars)
	}
	return t.placeholderResult(limit)
}

// Truncate reduces the text to fit within the token limit.
// Returns the truncated text and whether truncation occurred.
func (t *Truncator) Truncate(text string, maxTokens int) (string, bool) {
	r := t.Fit(text, maxTokens)
	return r.Content, r.Truncated()
}

func (t *Truncator) result(content string, stage Stage) Result {
	return Result{Content: content, Tokens: t.counter.Count(content), Stage: stage}
}

func (t *Truncator) placeholderResult(limit int) Result {
	if n := t.counter.Count(t.placeholder); n <= limit {
		return Result{Content: t.placeholder, Tokens: n, Stage: StagePlaceholder}
	}
	return Result{Stage: StageEmpty}
}
