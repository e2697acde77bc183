package tokens

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// ErrEncoding indicates the primary encoding failed on some input.
// EncodingCounter never returns it; it is recovered by estimation.
var ErrEncoding = errors.New("token encoding failed")

// Encoding turns text into token ids. The token count of a text is the
// length of its encoding.
type Encoding interface {
	Encode(text string) ([]int, error)
}

// EncodingFunc adapts a plain function to the Encoding interface.
type EncodingFunc func(text string) ([]int, error)

// Encode calls f(text).
func (f EncodingFunc) Encode(text string) ([]int, error) {
	return f(text)
}

// TiktokenEncoding is an Encoding backed by a tiktoken BPE table.
type TiktokenEncoding struct {
	enc  *tiktoken.Tiktoken
	name string
}

// NewTiktokenEncoding loads the named tiktoken encoding (cl100k_base if empty).
// The BPE table may be fetched over the network on first use.
func NewTiktokenEncoding(name string) (*TiktokenEncoding, error) {
	if name == "" {
		name = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("get encoding %s: %w", name, err)
	}
	return &TiktokenEncoding{enc: enc, name: name}, nil
}

// NewTiktokenEncodingForModel loads the encoding for a model name, falling
// back to cl100k_base for models tiktoken does not know.
func NewTiktokenEncodingForModel(model string) (*TiktokenEncoding, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return NewTiktokenEncoding(DefaultEncoding)
	}
	return &TiktokenEncoding{enc: enc, name: model}, nil
}

// Name returns the encoding or model name this encoding was loaded for.
func (e *TiktokenEncoding) Name() string {
	return e.name
}

// Encode returns the token ids for text. Special-token strings such as
// "<|endoftext|>" are encoded as ordinary text. A panic inside the
// tokenizer surfaces as ErrEncoding.
func (e *TiktokenEncoding) Encode(text string) (ids []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			ids = nil
			err = fmt.Errorf("%w: %v", ErrEncoding, r)
		}
	}()
	return e.enc.Encode(text, nil, nil), nil
}

// Path identifies which branch produced a token count.
type Path int

const (
	// PathPrimary means the count came from the configured encoding.
	PathPrimary Path = iota

	// PathFallback means the count was estimated from character length.
	PathFallback
)

// String returns the path name.
func (p Path) String() string {
	if p == PathPrimary {
		return "primary"
	}
	return "fallback"
}

// EncodingCounter counts tokens with an Encoding and falls back to
// ceil(runes/4) when the encoding is missing, released, or fails.
// It is safe for concurrent use.
//
// The encoding handle is released by Close, never by the garbage collector.
type EncodingCounter struct {
	mu       sync.RWMutex
	encoding Encoding
	closed   bool

	fallback *EstimatingCounter
	logger   *slog.Logger
	warnOnce sync.Once
}

// CounterOption configures an EncodingCounter.
type CounterOption func(*EncodingCounter)

// WithCounterLogger sets the logger used to report encoder fallback.
func WithCounterLogger(logger *slog.Logger) CounterOption {
	return func(c *EncodingCounter) {
		c.logger = logger
	}
}

// NewEncodingCounter creates a counter over enc. A nil enc makes every
// count take the fallback path.
func NewEncodingCounter(enc Encoding, opts ...CounterOption) *EncodingCounter {
	c := &EncodingCounter{
		encoding: enc,
		fallback: NewEstimatingCounter(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultCounter returns a counter over the cl100k_base tiktoken encoding,
// or a pure fallback counter when that encoding cannot be loaded.
func DefaultCounter() *EncodingCounter {
	enc, err := NewTiktokenEncoding(DefaultEncoding)
	if err != nil {
		slog.Debug("tiktoken unavailable, estimating tokens", "encoding", DefaultEncoding, "error", err)
		return NewEncodingCounter(nil)
	}
	return NewEncodingCounter(enc)
}

// CountWithPath returns the token count of text and the branch that
// produced it. Empty text is 0 tokens without touching the encoding.
func (c *EncodingCounter) CountWithPath(text string) (int, Path) {
	c.mu.RLock()
	enc := c.encoding
	c.mu.RUnlock()

	if enc == nil {
		return c.fallback.Count(text), PathFallback
	}
	if text == "" {
		return 0, PathPrimary
	}

	ids, err := enc.Encode(text)
	if err != nil {
		c.warnOnce.Do(func() {
			c.logger.Debug("token encoding failed, estimating", "error", err)
		})
		return c.fallback.Count(text), PathFallback
	}
	return len(ids), PathPrimary
}

// Count returns the number of tokens in text. It never fails.
func (c *EncodingCounter) Count(text string) int {
	n, _ := c.CountWithPath(text)
	return n
}

// FitsInLimit returns true if the text fits within the token limit.
func (c *EncodingCounter) FitsInLimit(text string, limit int) bool {
	return c.Count(text) <= limit
}

// Close releases the encoding. Later counts use the fallback estimator.
// Close is idempotent; if the encoding implements io.Closer it is closed
// exactly once.
func (c *EncodingCounter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	enc := c.encoding
	c.encoding = nil

	if closer, ok := enc.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

var (
	_ Counter   = (*EstimatingCounter)(nil)
	_ Counter   = (*EncodingCounter)(nil)
	_ io.Closer = (*EncodingCounter)(nil)
	_ Encoding  = (*TiktokenEncoding)(nil)
)
