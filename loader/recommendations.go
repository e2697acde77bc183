package loader

// Recommendations are fixed budget sizes by task complexity.
type Recommendations struct {
	Simple       int `json:"simple" yaml:"simple"`
	Medium       int `json:"medium" yaml:"medium"`
	Complex      int `json:"complex" yaml:"complex"`
	Architecture int `json:"architecture" yaml:"architecture"`
}

// BudgetRecommendations returns the standard sizing policy.
func BudgetRecommendations() Recommendations {
	return Recommendations{
		Simple:       10000,
		Medium:       20000,
		Complex:      40000,
		Architecture: 60000,
	}
}

// RecommendedBudget returns the budget for a complexity name
// ("simple", "medium", "complex", "architecture").
func RecommendedBudget(complexity string) (int, bool) {
	r := BudgetRecommendations()
	switch complexity {
	case "simple":
		return r.Simple, true
	case "medium":
		return r.Medium, true
	case "complex":
		return r.Complex, true
	case "architecture":
		return r.Architecture, true
	default:
		return 0, false
	}
}
