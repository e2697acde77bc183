// Package resource describes the text resources a loader reads and the
// readers that fetch them.
//
// A Spec names a location, a human-readable reason, and a Tier. Mandatory
// resources must be loaded; best-effort resources are loaded only when they
// fit. A List keeps both tiers in caller order:
//
//	var list resource.List
//	list.Add(resource.Spec{Location: "SKILL.md", Reason: "instructions"})
//	list.Add(resource.Spec{Location: "references/api.md", Tier: resource.BestEffort})
//
// Readers turn a location into text. FileReader reads from disk, FSReader
// from any fs.FS, MapReader from memory. Every reader failure wraps
// ErrUnavailable.
package resource
