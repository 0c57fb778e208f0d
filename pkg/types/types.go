package types

import (
	"fmt"
	"sort"
	"strings"
)

// Severity represents the health classification of a monitored subsystem
type Severity int

const (
	SeverityOK      Severity = 0
	SeverityWarning Severity = 1
	SeverityError   Severity = 2
)

// Raise returns the higher of two severities
func Raise(current, candidate Severity) Severity {
	if candidate > current {
		return candidate
	}
	return current
}

// RaiseAll folds any number of severities, starting from OK
func RaiseAll(severities ...Severity) Severity {
	result := SeverityOK
	for _, s := range severities {
		result = Raise(result, s)
	}
	return result
}

// String returns the human label for the severity
func (s Severity) String() string {
	switch {
	case s <= SeverityOK:
		return "OK"
	case s == SeverityWarning:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// ExitCode maps the severity to the conventional process exit status
func (s Severity) ExitCode() int {
	switch {
	case s <= SeverityOK:
		return 0
	case s == SeverityWarning:
		return 1
	default:
		return 2
	}
}

// ParseSeverity converts a label such as "warning" into a Severity
func ParseSeverity(label string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "OK":
		return SeverityOK, nil
	case "WARNING", "WARN":
		return SeverityWarning, nil
	case "ERROR", "CRITICAL":
		return SeverityError, nil
	default:
		return SeverityOK, fmt.Errorf("unknown severity %q", label)
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Record maps field names to the values extracted from one table row or block
type Record map[string]string

// Fields returns the record's field names in sorted order
func (r Record) Fields() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table maps record keys to records
type Table map[string]Record

// Keys returns the table's record keys in sorted order
func (t Table) Keys() []string {
	keys := make([]string, 0, len(t))
	for key := range t {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Finding is one failed predicate tied to a specific record and field
type Finding struct {
	Backend  string   `json:"backend"`
	Instance string   `json:"instance"`
	Table    string   `json:"table"`
	Key      string   `json:"key"`
	Field    string   `json:"field"`
	Value    string   `json:"value"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// String renders the finding as a single report line
func (f Finding) String() string {
	return fmt.Sprintf("%s %s %s %s %s: %s", f.Severity, f.Backend, f.Instance, f.Table, f.Key, f.Message)
}
