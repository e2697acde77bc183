package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/ctxload/loader"
	"github.com/randalmurphal/ctxload/resource"
)

// Format is a manifest encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

var (
	// ErrUnsupportedFormat indicates a manifest encoding that cannot be read.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")

	// ErrInvalid indicates a manifest that parsed but failed validation.
	ErrInvalid = errors.New("invalid manifest")
)

// Entry is one resource in a manifest.
type Entry struct {
	Location string `json:"location" yaml:"location" toml:"location" jsonschema:"minLength=1" jsonschema_description:"Where the resource is read from"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty" toml:"reason,omitempty" jsonschema_description:"Why the resource is loaded"`
}

// Manifest declares a budgeted load.
type Manifest struct {
	// Budget is the requested token budget. Zero defers to the caller's
	// default; values above tokens.HardCeiling are clamped by the loader.
	Budget          int     `json:"budget,omitempty" yaml:"budget,omitempty" toml:"budget,omitempty" jsonschema:"minimum=0" jsonschema_description:"Requested token budget; larger values are clamped to 150000"`
	AllowTruncation bool    `json:"allow_truncation,omitempty" yaml:"allow_truncation,omitempty" toml:"allow_truncation,omitempty" jsonschema_description:"Truncate mandatory resources that do not fit"`
	Mandatory       []Entry `json:"mandatory,omitempty" yaml:"mandatory,omitempty" toml:"mandatory,omitempty" jsonschema_description:"Resources that must be loaded in order"`
	BestEffort      []Entry `json:"best_effort,omitempty" yaml:"best_effort,omitempty" toml:"best_effort,omitempty" jsonschema_description:"Resources loaded in order while budget remains"`
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Parse decodes and validates a manifest.
func Parse(data []byte, format Format) (*Manifest, error) {
	m := &Manifest{}

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("parse yaml manifest: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("parse toml manifest: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(m); err != nil {
			return nil, fmt.Errorf("parse json manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads the manifest at path, inferring its format from the extension.
func Load(path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	m, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", path, err)
	}
	return m, nil
}

// Validate reports every problem in the manifest. Locations must be
// non-empty and appear once across both tiers.
func (m *Manifest) Validate() error {
	var errs []error

	if m.Budget < 0 {
		errs = append(errs, fmt.Errorf("budget %d is negative", m.Budget))
	}

	seen := make(map[string]string)
	check := func(tier string, entries []Entry) {
		for i, e := range entries {
			if strings.TrimSpace(e.Location) == "" {
				errs = append(errs, fmt.Errorf("%s[%d]: location is required", tier, i))
				continue
			}
			if first, dup := seen[e.Location]; dup {
				errs = append(errs, fmt.Errorf("%s[%d]: %s already listed in %s", tier, i, e.Location, first))
				continue
			}
			seen[e.Location] = tier
		}
	}
	check("mandatory", m.Mandatory)
	check("best_effort", m.BestEffort)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// List converts the manifest to a resource list.
func (m *Manifest) List() resource.List {
	var list resource.List
	for _, e := range m.Mandatory {
		list.Add(resource.Spec{Location: e.Location, Reason: e.Reason, Tier: resource.Mandatory})
	}
	for _, e := range m.BestEffort {
		list.Add(resource.Spec{Location: e.Location, Reason: e.Reason, Tier: resource.BestEffort})
	}
	return list
}

// Options returns the load options the manifest declares.
func (m *Manifest) Options() loader.Options {
	return loader.Options{AllowTruncation: m.AllowTruncation}
}

// BudgetOr returns the manifest budget, or fallback when none is set.
func (m *Manifest) BudgetOr(fallback int) int {
	if m.Budget > 0 {
		return m.Budget
	}
	return fallback
}

// Marshal encodes the manifest in format.
func (m *Manifest) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(m)
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(m); err != nil {
			return nil, fmt.Errorf("encode toml manifest: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON:
		return json.MarshalIndent(m, "", "  ")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
