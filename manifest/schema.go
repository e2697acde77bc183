package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaID identifies the manifest schema.
const SchemaID = "https://github.com/randalmurphal/ctxload/manifest.schema.json"

// Schema returns the JSON Schema describing manifest files.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(&Manifest{})
	s.ID = SchemaID
	s.Title = "ctxload manifest"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest schema: %w", err)
	}
	return data, nil
}
