// Package loader loads prioritized text resources under a hard token budget.
//
// A Loader is built with a requested budget, clamped to tokens.HardCeiling,
// and loads a resource.List in two phases. Mandatory resources are read in
// order and must all be included, truncated if the caller allows it;
// best-effort resources are then included in order only if they fit what
// remains:
//
//	l := loader.New(20000, loader.WithReader(resource.NewFileReader(root)))
//	defer l.Close()
//
//	report, err := l.LoadWithBudget(ctx, list, loader.Options{AllowTruncation: true})
//	switch {
//	case errors.Is(err, loader.ErrBudgetExceeded):
//	    // retry with a larger budget or truncation
//	case errors.Is(err, loader.ErrResourceUnavailable):
//	    // a mandatory resource could not be read
//	}
//
// The Report lists what was loaded, in what form, and what was skipped.
// GenerateLoadReport returns the latest report again without reading.
//
// # Observability
//
// Loads log through log/slog, emit one OpenTelemetry span each, and record
// Prometheus metrics when configured with WithMetrics.
package loader
