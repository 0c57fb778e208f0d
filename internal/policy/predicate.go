package policy

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"raid-health-check/pkg/types"
)

// Kind is the comparison a FieldPredicate performs
type Kind int

const (
	// Equals is violated when the value differs from Value
	Equals Kind = iota
	// NotEquals is violated when the value equals Value
	NotEquals
	// NumericZero is violated when the value is not a number equal to zero
	NumericZero
	// OneOf is violated when the value is not listed in Values
	OneOf
	// SameAs is violated when the value differs from the Other field of
	// the same record
	SameAs
)

var kindNames = map[Kind]string{
	Equals:      "equals",
	NotEquals:   "not-equals",
	NumericZero: "numeric-zero",
	OneOf:       "one-of",
	SameAs:      "same-as",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown predicate kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	label := strings.ToLower(strings.TrimSpace(string(text)))
	for kind, name := range kindNames {
		if name == label {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown predicate kind %q", text)
}

// Guard exempts a record from a predicate when Field holds one of Values
// and the chained And guard, if any, also holds.
type Guard struct {
	Field  string   `yaml:"field" json:"field"`
	Values []string `yaml:"values" json:"values"`
	And    *Guard   `yaml:"and,omitempty" json:"and,omitempty"`
}

func (g *Guard) holds(r types.Record) bool {
	for ; g != nil; g = g.And {
		if !slices.Contains(g.Values, r[g.Field]) {
			return false
		}
	}
	return true
}

// FieldPredicate is one declarative check on a field of every record in
// a table.
type FieldPredicate struct {
	Field    string         `yaml:"field" json:"field"`
	Kind     Kind           `yaml:"kind" json:"kind"`
	Value    string         `yaml:"value,omitempty" json:"value,omitempty"`
	Values   []string       `yaml:"values,omitempty" json:"values,omitempty"`
	Other    string         `yaml:"other,omitempty" json:"other,omitempty"`
	Unless   *Guard         `yaml:"unless,omitempty" json:"unless,omitempty"`
	Severity types.Severity `yaml:"severity" json:"severity"`
}

// Equal builds a predicate requiring field to equal value
func Equal(field, value string, sev types.Severity) FieldPredicate {
	return FieldPredicate{Field: field, Kind: Equals, Value: value, Severity: sev}
}

// NotEqual builds a predicate forbidding field to equal value
func NotEqual(field, value string, sev types.Severity) FieldPredicate {
	return FieldPredicate{Field: field, Kind: NotEquals, Value: value, Severity: sev}
}

// Zero builds a predicate requiring field to be numerically zero
func Zero(field string, sev types.Severity) FieldPredicate {
	return FieldPredicate{Field: field, Kind: NumericZero, Severity: sev}
}

// In builds a predicate requiring field to hold one of values
func In(field string, sev types.Severity, values ...string) FieldPredicate {
	return FieldPredicate{Field: field, Kind: OneOf, Values: values, Severity: sev}
}

// Matches builds a predicate requiring field to equal the other field
func Matches(field, other string, sev types.Severity) FieldPredicate {
	return FieldPredicate{Field: field, Kind: SameAs, Other: other, Severity: sev}
}

// SkipWhen returns a copy of p that does not apply to records whose
// field holds one of values. Chained calls narrow the exemption: a
// record is skipped only when every guard holds.
func (p FieldPredicate) SkipWhen(field string, values ...string) FieldPredicate {
	guard := &Guard{Field: field, Values: values}
	if p.Unless == nil {
		p.Unless = guard
		return p
	}
	head := *p.Unless
	tail := &head
	for tail.And != nil {
		next := *tail.And
		tail.And = &next
		tail = &next
	}
	tail.And = guard
	p.Unless = &head
	return p
}

// Fields returns every record field the predicate reads
func (p FieldPredicate) Fields() []string {
	fields := []string{p.Field}
	if p.Kind == SameAs {
		fields = append(fields, p.Other)
	}
	for g := p.Unless; g != nil; g = g.And {
		fields = append(fields, g.Field)
	}
	return fields
}

// check applies the predicate to one record. It returns a message
// describing the violation, or "" when the record passes or is exempt.
func (p FieldPredicate) check(table, key string, r types.Record) (string, error) {
	for _, field := range p.Fields() {
		if _, ok := r[field]; !ok {
			return "", &SchemaFault{Table: table, Key: key, Field: field}
		}
	}

	if p.Unless != nil && p.Unless.holds(r) {
		return "", nil
	}

	value := r[p.Field]
	switch p.Kind {
	case Equals:
		if value != p.Value {
			return fmt.Sprintf("%s is %q, expected %q", p.Field, value, p.Value), nil
		}
	case NotEquals:
		if value == p.Value {
			return fmt.Sprintf("%s is %q", p.Field, value), nil
		}
	case NumericZero:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil || n != 0 {
			return fmt.Sprintf("%s is %q, expected 0", p.Field, value), nil
		}
	case OneOf:
		if !slices.Contains(p.Values, value) {
			return fmt.Sprintf("%s is %q, expected one of %q", p.Field, value, p.Values), nil
		}
	case SameAs:
		if other := r[p.Other]; value != other {
			return fmt.Sprintf("%s is %q, expected %s %q", p.Field, value, p.Other, other), nil
		}
	default:
		return "", fmt.Errorf("predicate on %s has unknown kind %d", p.Field, int(p.Kind))
	}
	return "", nil
}
