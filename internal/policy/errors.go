package policy

import (
	"errors"
	"fmt"
)

// SchemaFault reports a predicate that names a field its table does not
// produce. It indicates a mismatch between extraction and policy
// configuration and halts the run.
type SchemaFault struct {
	Backend string
	Table   string
	// Key is the offending record, empty for faults found statically
	Key   string
	Field string
}

func (f *SchemaFault) Error() string {
	where := f.Table
	if f.Backend != "" {
		where = f.Backend + "/" + f.Table
	}
	if f.Key == "" {
		return fmt.Sprintf("schema mismatch: table %s does not produce field %q", where, f.Field)
	}
	return fmt.Sprintf("schema mismatch: table %s record %q has no field %q", where, f.Key, f.Field)
}

// IsSchemaFault reports whether err is or wraps a SchemaFault
func IsSchemaFault(err error) bool {
	var f *SchemaFault
	return errors.As(err, &f)
}
