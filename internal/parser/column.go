package parser

import (
	"fmt"
	"strings"

	"raid-health-check/pkg/types"
)

// ColumnKind selects how a column's value is located in a line
type ColumnKind int

const (
	// TokenColumn takes the Nth whitespace-delimited token
	TokenColumn ColumnKind = iota
	// RangeColumn slices a fixed character range of the raw line
	RangeColumn
)

// ToEOL as a range end extends the column to the end of the line
const ToEOL = -1

// Column describes how to extract one field's value from a line.
// Negative token indices and range offsets count from the end of the
// row being split; they are never resolved for the table as a whole.
type Column struct {
	Name  string
	Kind  ColumnKind
	Index int
	Start int
	End   int
}

// Token declares a column holding the index-th whitespace-delimited token
func Token(name string, index int) Column {
	return Column{Name: name, Kind: TokenColumn, Index: index}
}

// Range declares a column holding characters [start, end) of the line
func Range(name string, start, end int) Column {
	return Column{Name: name, Kind: RangeColumn, Start: start, End: end}
}

// RowSpec declares the columns of a table where each line is one record
type RowSpec struct {
	Columns []Column
	// Key names the column whose value becomes the record key
	Key string
	// KeyWith names further columns joined to Key with ":" for tables
	// where no single column is unique.
	KeyWith []string
	// SkipShortRows treats rows missing a token column as non-records
	// (group headings inside a table) instead of an extraction fault.
	SkipShortRows bool
}

// Fields returns the field names the spec produces, in declaration order
func (s RowSpec) Fields() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// Split extracts one record from a line
func (s RowSpec) Split(line string) (string, types.Record, error) {
	tokens := strings.Fields(line)
	record := make(types.Record, len(s.Columns))

	for _, col := range s.Columns {
		switch col.Kind {
		case TokenColumn:
			i, ok := resolveIndex(col.Index, len(tokens))
			if !ok {
				if s.SkipShortRows {
					return "", nil, errShortRow
				}
				return "", nil, fmt.Errorf("%w: %s is token %d of %d", ErrMissingColumn, col.Name, col.Index, len(tokens))
			}
			record[col.Name] = tokens[i]
		case RangeColumn:
			value, err := sliceRange(line, col)
			if err != nil {
				return "", nil, err
			}
			record[col.Name] = value
		default:
			return "", nil, fmt.Errorf("column %s has unknown kind %d", col.Name, col.Kind)
		}
	}

	parts := make([]string, 0, 1+len(s.KeyWith))
	for _, name := range append([]string{s.Key}, s.KeyWith...) {
		value, ok := record[name]
		if !ok {
			return "", nil, fmt.Errorf("%w: %s", ErrMissingKey, name)
		}
		parts = append(parts, value)
	}
	return strings.Join(parts, ":"), record, nil
}

func resolveIndex(index, n int) (int, bool) {
	if index < 0 {
		index += n
	}
	return index, index >= 0 && index < n
}

func sliceRange(line string, col Column) (string, error) {
	n := len(line)
	start, end := col.Start, col.End
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n + 1
	}
	// only a to-end-of-line column may start where the line ends
	if start < 0 || start > n || (start == n && col.End != ToEOL) {
		return "", fmt.Errorf("%w: %s starts at %d, line has %d characters", ErrMissingColumn, col.Name, col.Start, n)
	}
	// fixed-width tools do not pad the last column
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	return strings.TrimSpace(line[start:end]), nil
}

// OrphanPolicy decides what happens to a line without the delimiter
type OrphanPolicy int

const (
	// OrphanFault treats the line as an extraction fault
	OrphanFault OrphanPolicy = iota
	// OrphanIgnore drops the line
	OrphanIgnore
	// OrphanAppend appends the line to the previous field's value
	OrphanAppend
)

// PairSpec declares a key:value layout where each line holds one field
type PairSpec struct {
	Delimiter string
	// Cutset holds extra characters trimmed from both sides after
	// whitespace, e.g. "." for "Controller Count: 1."
	Cutset  string
	Orphans OrphanPolicy
}

// Split divides a line at the first delimiter only; values such as
// timestamps may contain the delimiter themselves.
func (p PairSpec) Split(line string) (string, string, error) {
	name, value, found := strings.Cut(line, p.Delimiter)
	if !found {
		return "", "", fmt.Errorf("%w: %q", ErrMissingDelimiter, p.Delimiter)
	}
	return p.trim(name), p.trim(value), nil
}

func (p PairSpec) trim(s string) string {
	s = strings.TrimSpace(s)
	if p.Cutset != "" {
		s = strings.Trim(s, p.Cutset)
	}
	return s
}

// pairs accumulates delimited lines into a record
type pairs struct {
	spec   PairSpec
	record types.Record
	last   string
}

func newPairs(spec PairSpec) *pairs {
	return &pairs{spec: spec, record: types.Record{}}
}

func (p *pairs) add(line string) (string, error) {
	name, value, err := p.spec.Split(line)
	if err == nil {
		p.record[name] = value
		p.last = name
		return name, nil
	}

	switch p.spec.Orphans {
	case OrphanIgnore:
		return "", nil
	case OrphanAppend:
		if p.last == "" {
			return "", err
		}
		p.record[p.last] = strings.TrimSpace(p.record[p.last] + " " + strings.TrimSpace(line))
		return "", nil
	default:
		return "", err
	}
}

func (p *pairs) reset() {
	p.record = types.Record{}
	p.last = ""
}
