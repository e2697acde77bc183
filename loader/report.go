package loader

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/ctxload/resource"
	"github.com/randalmurphal/ctxload/truncate"
)

// LoadedResource is one resource as it was included in a load.
// Tokens is always the count of Content, recomputed after truncation.
type LoadedResource struct {
	Location  string        `json:"location" yaml:"location"`
	Content   string        `json:"content" yaml:"content"`
	Tokens    int           `json:"tokens" yaml:"tokens"`
	Truncated bool          `json:"truncated" yaml:"truncated"`
	Reason    string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Tier      resource.Tier `json:"tier" yaml:"tier"`
}

// Report is the auditable outcome of a load.
//
// TotalTokens is the sum of LoadedResources tokens. LoadedResources keeps
// input order, mandatory before best-effort.
type Report struct {
	LoadedResources       []LoadedResource `json:"loaded_resources" yaml:"loaded_resources"`
	TotalTokens           int              `json:"total_tokens" yaml:"total_tokens"`
	Budget                int              `json:"budget" yaml:"budget"`
	UtilizationPercentage string           `json:"utilization_percentage" yaml:"utilization_percentage"`
	WithinBudget          bool             `json:"within_budget" yaml:"within_budget"`
	SkippedLocations      []string         `json:"skipped_locations" yaml:"skipped_locations"`
	Warnings              []string         `json:"warnings" yaml:"warnings"`
}

// Remaining returns the unused part of the budget.
func (r *Report) Remaining() int {
	return max(r.Budget-r.TotalTokens, 0)
}

// Truncated returns the locations that were truncated to fit.
func (r *Report) Truncated() []string {
	var locations []string
	for _, lr := range r.LoadedResources {
		if lr.Truncated {
			locations = append(locations, lr.Location)
		}
	}
	return locations
}

// Skipped reports whether location was skipped.
func (r *Report) Skipped(location string) bool {
	for _, s := range r.SkippedLocations {
		if s == location {
			return true
		}
	}
	return false
}

// Content assembles the loaded resources in order, each under a
// "## <location>" header.
func (r *Report) Content() string {
	var sb strings.Builder
	for i, lr := range r.LoadedResources {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## ")
		sb.WriteString(lr.Location)
		sb.WriteString("\n\n")
		sb.WriteString(lr.Content)
	}
	return sb.String()
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report json: %w", err)
	}
	return data, nil
}

// YAML renders the report as YAML.
func (r *Report) YAML() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report yaml: %w", err)
	}
	return data, nil
}

// maxReasonLen bounds the reason column in Markdown summaries.
const maxReasonLen = 60

// Markdown renders a human-readable summary without resource content.
func (r *Report) Markdown() string {
	var sb strings.Builder

	sb.WriteString("# Load Report\n\n")
	fmt.Fprintf(&sb, "- Budget: %d tokens\n", r.Budget)
	fmt.Fprintf(&sb, "- Used: %d tokens (%s)\n", r.TotalTokens, r.UtilizationPercentage)
	fmt.Fprintf(&sb, "- Within budget: %t\n", r.WithinBudget)

	if len(r.LoadedResources) > 0 {
		sb.WriteString("\n## Loaded\n\n")
		sb.WriteString("| Location | Tier | Tokens | Truncated | Reason |\n")
		sb.WriteString("|---|---|---|---|---|\n")
		for _, lr := range r.LoadedResources {
			fmt.Fprintf(&sb, "| %s | %s | %d | %t | %s |\n",
				lr.Location, lr.Tier, lr.Tokens, lr.Truncated, truncate.ToLength(lr.Reason, maxReasonLen))
		}
	}

	if len(r.SkippedLocations) > 0 {
		sb.WriteString("\n## Skipped\n\n")
		for _, s := range r.SkippedLocations {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("\n## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}

	return sb.String()
}

func (r *Report) clone() *Report {
	c := *r
	c.LoadedResources = append([]LoadedResource{}, r.LoadedResources...)
	c.SkippedLocations = append([]string{}, r.SkippedLocations...)
	c.Warnings = append([]string{}, r.Warnings...)
	return &c
}
