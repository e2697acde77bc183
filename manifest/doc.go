// Package manifest reads resource manifests: files that declare a budget
// and the mandatory and best-effort resources of a load.
//
// Manifests may be written in YAML, TOML, or JSON:
//
//	budget: 20000
//	allow_truncation: true
//	mandatory:
//	  - location: docs/architecture.md
//	    reason: system overview
//	best_effort:
//	  - location: docs/examples.md
//
// Schema returns a JSON Schema for the format, and Watch reloads a
// manifest whenever its file changes.
package manifest
