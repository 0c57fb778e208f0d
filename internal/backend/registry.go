package backend

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"raid-health-check/internal/policy"
)

// All returns every supported backend in check order
func All(log *zap.Logger) []Backend {
	return []Backend{
		NewMegaRaid(log),
		NewAreca(log),
		NewThreeware(log),
		NewLinuxSW(log),
		NewZPool(log),
	}
}

// Names returns the names of backends
func Names(backends []Backend) []string {
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	return names
}

// Select returns the backends named in names, in the order given. An
// empty list selects every backend.
func Select(backends []Backend, names []string) ([]Backend, error) {
	if len(names) == 0 {
		return backends, nil
	}

	byName := make(map[string]Backend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}

	selected := make([]Backend, 0, len(names))
	for _, name := range names {
		b, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown backend %q (supported: %s)", name, strings.Join(Names(backends), ", "))
		}
		selected = append(selected, b)
	}
	return selected, nil
}

// Schemas returns the schema of every backend keyed by backend name
func Schemas(backends []Backend) map[string]policy.Schema {
	schemas := make(map[string]policy.Schema, len(backends))
	for _, b := range backends {
		schemas[b.Name()] = b.Schema()
	}
	return schemas
}
