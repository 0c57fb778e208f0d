package parser

import (
	"errors"
	"fmt"
)

// ErrAbsentTable reports that the stream holds no further records for a
// table. It is not a fault: callers treat the table as empty and healthy.
var ErrAbsentTable = errors.New("no further records")

// Extraction fault causes, matched with errors.Is against a *Fault.
var (
	ErrMissingColumn    = errors.New("column out of range")
	ErrMissingDelimiter = errors.New("delimiter not found")
	ErrMissingKey       = errors.New("record key field missing")
	ErrUnexpectedEOF    = errors.New("end of stream before table boundary")
)

// errShortRow is returned by RowSpec.Split for rows a SkipShortRows spec
// declares are not records.
var errShortRow = errors.New("short row")

// Fault is an extraction fault: input that does not match the declared
// table spec or boundary.
type Fault struct {
	Table string
	Line  int
	Text  string
	Err   error
}

func (f *Fault) Error() string {
	if f.Line == 0 {
		return fmt.Sprintf("extracting %s: %v", f.Table, f.Err)
	}
	return fmt.Sprintf("extracting %s: line %d %q: %v", f.Table, f.Line, f.Text, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// IsFault reports whether err is, or wraps, an extraction fault
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}
