package policy

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Overrides replaces built-in predicate lists per backend and table. A
// table listed for a backend replaces that backend's list wholesale.
//
//	megaraid:
//	  volumes:
//	    - field: State
//	      kind: equals
//	      value: Optimal
//	      severity: error
type Overrides map[string]Set

// ParseOverrides decodes an overrides document
func ParseOverrides(data []byte) (Overrides, error) {
	overrides := Overrides{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse policy overrides: %w", err)
	}
	return overrides, nil
}

// LoadOverrides reads an overrides file. An empty path yields no overrides.
func LoadOverrides(path string) (Overrides, error) {
	if path == "" {
		return Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy overrides: %w", err)
	}
	return ParseOverrides(data)
}

// Apply returns base with the tables overridden for backend replaced
func (o Overrides) Apply(backend string, base Set) Set {
	merged := base.Clone()
	for table, preds := range o[backend] {
		merged[table] = slices.Clone(preds)
	}
	return merged
}

// Validate checks every override against the schema of its backend
func (o Overrides) Validate(schemas map[string]Schema) error {
	backends := make([]string, 0, len(o))
	for name := range o {
		backends = append(backends, name)
	}
	slices.Sort(backends)

	for _, name := range backends {
		schema, ok := schemas[name]
		if !ok {
			return fmt.Errorf("policy overrides name unknown backend %q", name)
		}
		if err := o[name].Validate(schema); err != nil {
			if f, ok := err.(*SchemaFault); ok {
				f.Backend = name
			}
			return fmt.Errorf("policy overrides for %s: %w", name, err)
		}
	}
	return nil
}
