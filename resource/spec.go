package resource

import "fmt"

// Tier is a resource's loading priority.
type Tier int

const (
	// Mandatory resources must appear in the output, truncated if allowed.
	Mandatory Tier = iota

	// BestEffort resources are included only if they fit what remains.
	BestEffort
)

// String returns the tier name used in reports and manifests.
func (t Tier) String() string {
	switch t {
	case Mandatory:
		return "mandatory"
	case BestEffort:
		return "best_effort"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	switch t {
	case Mandatory, BestEffort:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("unknown tier %d", int(t))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	switch string(text) {
	case "mandatory", "required":
		*t = Mandatory
	case "best_effort", "best-effort", "optional":
		*t = BestEffort
	default:
		return fmt.Errorf("unknown tier %q", string(text))
	}
	return nil
}

// Spec describes one resource to load. It is read-only to the loader.
type Spec struct {
	// Location identifies the resource to the Reader. Its syntax is the
	// reader's business.
	Location string `json:"location" yaml:"location" toml:"location"`

	// Reason is a human-readable note carried into the report.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty" toml:"reason"`

	// Tier selects mandatory or best-effort handling.
	Tier Tier `json:"tier" yaml:"tier" toml:"tier"`
}

// List is a prioritized set of resources. Order within each tier is the
// load order.
type List struct {
	Mandatory  []Spec `json:"mandatory" yaml:"mandatory"`
	BestEffort []Spec `json:"best_effort" yaml:"best_effort"`
}

// Add appends spec to the slice matching its tier.
func (l *List) Add(spec Spec) {
	if spec.Tier == BestEffort {
		l.BestEffort = append(l.BestEffort, spec)
		return
	}
	spec.Tier = Mandatory
	l.Mandatory = append(l.Mandatory, spec)
}

// Specs returns all specs, mandatory first, each with its tier set.
func (l List) Specs() []Spec {
	specs := make([]Spec, 0, l.Len())
	for _, s := range l.Mandatory {
		s.Tier = Mandatory
		specs = append(specs, s)
	}
	for _, s := range l.BestEffort {
		s.Tier = BestEffort
		specs = append(specs, s)
	}
	return specs
}

// Len returns the number of specs in both tiers.
func (l List) Len() int {
	return len(l.Mandatory) + len(l.BestEffort)
}
