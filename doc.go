// Package ctxload loads prioritized text resources into a fixed token
// budget for LLM prompts.
//
// Resources are either mandatory or best-effort. Mandatory resources are
// read in order and must fit, truncated if the caller allows it; best-effort
// resources are added in order while the budget lasts. Each load returns a
// report of the included resources with their token counts, along with the
// skipped locations. Budgets are capped at 150,000 tokens.
//
// Each subpackage can be used independently:
//
//   - tokens: Token counting (tiktoken with an estimating fallback) and budgets
//   - truncate: Token-aware truncation that always lands within a limit
//   - resource: Resource specs, tiers, and readers for files, fs.FS, and memory
//   - loader: The budgeted two-phase loader and its reports
//   - manifest: YAML, TOML, and JSON manifests declaring a load
//   - skill: Skill directories (SKILL.md plus references) as loads
//   - config: Settings from file and CTXLOAD_ environment variables
//
// # Quick Start
//
//	import "github.com/randalmurphal/ctxload/loader"
//
//	l := loader.New(20000)
//	defer l.Close()
//
//	report, err := l.LoadWithBudget(ctx, resource.List{
//		Mandatory:  []resource.Spec{{Location: "docs/architecture.md"}},
//		BestEffort: []resource.Spec{{Location: "docs/examples.md"}},
//	}, loader.Options{AllowTruncation: true})
//	if err != nil {
//		return err
//	}
//	prompt := report.Content()
//
// From a manifest:
//
//	m, err := manifest.Load("context.yaml")
//	l := loader.New(m.BudgetOr(40000))
//	report, err := l.LoadWithBudget(ctx, m.List(), m.Options())
package ctxload
