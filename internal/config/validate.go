// CUE schema validation code
package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/encoding/yaml"

	"storagesim/internal/simerr"
)

//go:embed schema.cue
var embeddedSchema []byte

// Schema returns the embedded CUE schema.
func Schema() []byte { return embeddedSchema }

// ValidateWithCue validates YAML configuration bytes against the #Config
// definition of a CUE schema. An empty schema selects the embedded one.
func ValidateWithCue(name string, data, schema []byte) error {
	if len(schema) == 0 {
		schema = embeddedSchema
	}
	ctx := cuecontext.New()

	schemaVal := ctx.CompileBytes(schema, cue.Filename("schema.cue"))
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", err)
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("CUE schema has no #Config definition")
	}

	f, err := yaml.Extract(name, data)
	if err != nil {
		return fmt.Errorf("cannot parse YAML config: %w", err)
	}
	configVal := ctx.BuildFile(f)
	if err := configVal.Err(); err != nil {
		return fmt.Errorf("cannot build YAML config: %w", err)
	}

	final := def.Unify(configVal)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: schema validation failed: %s", simerr.ErrConfiguration, cueerrors.Details(err, nil))
	}
	return nil
}
