// Package config loads loader settings from defaults, a YAML file, and
// CTXLOAD_ environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/randalmurphal/ctxload/loader"
	"github.com/randalmurphal/ctxload/resource"
	"github.com/randalmurphal/ctxload/tokens"
)

// EnvPrefix prefixes environment overrides, e.g. CTXLOAD_BUDGET=20000.
const EnvPrefix = "CTXLOAD_"

// EncodingEstimate selects the character estimator instead of tiktoken.
const EncodingEstimate = "estimate"

// ErrInvalid indicates a configuration that failed validation.
var ErrInvalid = errors.New("invalid config")

// Config holds loader settings.
type Config struct {
	// Budget is the requested token budget, clamped to tokens.HardCeiling.
	Budget int `koanf:"budget" yaml:"budget"`

	// Encoding names the tiktoken encoding, or "estimate".
	Encoding string `koanf:"encoding" yaml:"encoding"`

	// Model selects the encoding by model name and overrides Encoding.
	Model string `koanf:"model" yaml:"model,omitempty"`

	AllowTruncation bool `koanf:"allow_truncation" yaml:"allow_truncation"`

	// Root resolves relative resource locations. Empty means the working directory.
	Root string `koanf:"root" yaml:"root,omitempty"`

	// MaxResourceBytes rejects larger files. 0 means no limit.
	MaxResourceBytes int64 `koanf:"max_resource_bytes" yaml:"max_resource_bytes,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level" yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	budget, _ := loader.RecommendedBudget("complex")
	return Config{
		Budget:   budget,
		Encoding: tokens.DefaultEncoding,
		LogLevel: "info",
	}
}

// Load layers the defaults, the YAML file at path, and the environment.
// An empty path or a missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}

	// CTXLOAD_ALLOW_TRUNCATION -> allow_truncation
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Budget < 0 {
		errs = append(errs, fmt.Errorf("budget %d is negative", c.Budget))
	}
	if c.MaxResourceBytes < 0 {
		errs = append(errs, fmt.Errorf("max_resource_bytes %d is negative", c.MaxResourceBytes))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// Options returns the load options the config selects.
func (c *Config) Options() loader.Options {
	return loader.Options{AllowTruncation: c.AllowTruncation}
}

// Logger returns a text logger on stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	return c.LoggerTo(os.Stderr)
}

// LoggerTo returns a text logger on w at the configured level.
func (c *Config) LoggerTo(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Counter returns the configured token counter. If the tiktoken encoding
// cannot be loaded, it warns and estimates instead.
func (c *Config) Counter(logger *slog.Logger) *tokens.EncodingCounter {
	if logger == nil {
		logger = slog.Default()
	}
	opt := tokens.WithCounterLogger(logger)

	if c.Model == "" && strings.EqualFold(c.Encoding, EncodingEstimate) {
		return tokens.NewEncodingCounter(nil, opt)
	}

	var (
		enc *tokens.TiktokenEncoding
		err error
	)
	if c.Model != "" {
		enc, err = tokens.NewTiktokenEncodingForModel(c.Model)
	} else {
		enc, err = tokens.NewTiktokenEncoding(c.Encoding)
	}
	if err != nil {
		logger.Warn("tiktoken unavailable, estimating tokens",
			"encoding", c.Encoding, "model", c.Model, "error", err)
		return tokens.NewEncodingCounter(nil, opt)
	}
	return tokens.NewEncodingCounter(enc, opt)
}

// Reader returns a file reader for the configured root and size limit.
func (c *Config) Reader() *resource.FileReader {
	return &resource.FileReader{Root: c.Root, MaxBytes: c.MaxResourceBytes}
}

// NewLoader builds a loader from the config. opts are applied after the
// configured logger, counter, and reader, so they take precedence.
func (c *Config) NewLoader(opts ...loader.Option) (*loader.Loader, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := c.Logger()
	base := []loader.Option{
		loader.WithLogger(logger),
		loader.WithCounter(c.Counter(logger)),
		loader.WithReader(c.Reader()),
	}
	return loader.New(c.Budget, append(base, opts...)...), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}

// defaults flattens Default into koanf keys.
func defaults() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"budget":             d.Budget,
		"encoding":           d.Encoding,
		"model":              d.Model,
		"allow_truncation":   d.AllowTruncation,
		"root":               d.Root,
		"max_resource_bytes": d.MaxResourceBytes,
		"log_level":          d.LogLevel,
	}
}
