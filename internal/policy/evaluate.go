package policy

import (
	"fmt"
	"slices"

	"raid-health-check/internal/store"
	"raid-health-check/pkg/types"
)

// Set maps table names to the predicates applied to that table
type Set map[string][]FieldPredicate

// Schema maps table names to the fields their records carry
type Schema map[string][]string

// Tables returns the table names of the set in sorted order
func (s Set) Tables() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Clone returns a copy of the set whose lists may be replaced freely
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for table, preds := range s {
		out[table] = slices.Clone(preds)
	}
	return out
}

// Validate checks every predicate against the fields schema declares
// for its table.
func (s Set) Validate(schema Schema) error {
	for _, table := range s.Tables() {
		fields, ok := schema[table]
		if !ok {
			return fmt.Errorf("policy names unknown table %q", table)
		}
		for _, p := range s[table] {
			if _, ok := kindNames[p.Kind]; !ok {
				return fmt.Errorf("table %s: predicate on %s has unknown kind %d", table, p.Field, int(p.Kind))
			}
			for _, field := range p.Fields() {
				if !slices.Contains(fields, field) {
					return &SchemaFault{Table: table, Field: field}
				}
			}
		}
	}
	return nil
}

// Evaluate applies every predicate to every record of t in sorted key
// order. The returned severity is the highest severity of any violation;
// an empty table yields OK and no findings.
func Evaluate(instance, table string, t types.Table, preds []FieldPredicate) (types.Severity, []types.Finding, error) {
	severity := types.SeverityOK
	var findings []types.Finding

	for _, key := range t.Keys() {
		record := t[key]
		for _, p := range preds {
			message, err := p.check(table, key, record)
			if err != nil {
				return severity, findings, err
			}
			if message == "" {
				continue
			}
			findings = append(findings, types.Finding{
				Instance: instance,
				Table:    table,
				Key:      key,
				Field:    p.Field,
				Value:    record[p.Field],
				Severity: p.Severity,
				Message:  message,
			})
			severity = types.Raise(severity, p.Severity)
		}
	}

	return severity, findings, nil
}

// EvaluateStore evaluates every table of every instance in s that set
// has predicates for. Tables the store does not hold were absent and
// are healthy.
func EvaluateStore(backend string, s *store.Store, set Set) (types.Severity, []types.Finding, error) {
	severity := types.SeverityOK
	var findings []types.Finding

	for _, instance := range s.Instances() {
		for _, table := range s.Tables(instance) {
			preds, ok := set[table]
			if !ok {
				continue
			}
			sev, found, err := Evaluate(instance, table, s.Get(instance, table), preds)
			if err != nil {
				if f, ok := err.(*SchemaFault); ok {
					f.Backend = backend
				}
				return severity, findings, fmt.Errorf("evaluating %s instance %s: %w", backend, instance, err)
			}
			for i := range found {
				found[i].Backend = backend
			}
			findings = append(findings, found...)
			severity = types.Raise(severity, sev)
		}
	}

	return severity, findings, nil
}
