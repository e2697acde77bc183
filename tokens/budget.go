package tokens

// HardCeiling is the largest budget any load may use, regardless of what
// the caller requests.
const HardCeiling = 150000

// Budget is an immutable token ceiling.
type Budget struct {
	limit int
}

// NewBudget creates a budget of min(requested, HardCeiling).
// Negative requests produce a zero budget.
func NewBudget(requested int) Budget {
	switch {
	case requested < 0:
		requested = 0
	case requested > HardCeiling:
		requested = HardCeiling
	}
	return Budget{limit: requested}
}

// Limit returns the effective token ceiling.
func (b Budget) Limit() int {
	return b.limit
}

// Fits returns true if tokens more can be added to used without exceeding the limit.
func (b Budget) Fits(used, tokens int) bool {
	return used+tokens <= b.limit
}

// Remaining returns the tokens left after used, never negative.
func (b Budget) Remaining(used int) int {
	remaining := b.limit - used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Utilization returns used as a percentage of the limit.
// A zero budget reports 0 when nothing is used and 100 otherwise.
func (b Budget) Utilization(used int) float64 {
	if b.limit <= 0 {
		if used <= 0 {
			return 0
		}
		return 100
	}
	return float64(used) / float64(b.limit) * 100
}
