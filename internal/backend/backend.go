package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"raid-health-check/internal/parser"
	"raid-health-check/internal/policy"
	"raid-health-check/internal/store"
	"raid-health-check/pkg/types"
)

// Backend adapts the inspection tool of one kind of storage subsystem.
// Backends differ only in the commands they run, the tables they
// extract and the predicates they apply.
type Backend interface {
	// Name identifies the backend in configuration and reports
	Name() string
	// Programs lists candidate executable names in preference order
	Programs() []string
	// Schema declares the fields each extracted table carries
	Schema() policy.Schema
	// Policies returns the built-in predicates per table
	Policies() policy.Set
	// Collect runs program and extracts every instance it reports
	Collect(ctx context.Context, run Runner, program string) (*store.Store, error)
}

// base carries what every backend shares
type base struct {
	name     string
	programs []string
	schema   policy.Schema
	policies policy.Set
	extract  *parser.Extractor
	log      *zap.Logger
}

func newBase(name string, programs []string, schema policy.Schema, policies policy.Set, log *zap.Logger) base {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named(name)
	if err := policies.Validate(schema); err != nil {
		panic(fmt.Sprintf("backend %s: built-in policy: %v", name, err))
	}
	return base{
		name:     name,
		programs: programs,
		schema:   schema,
		policies: policies,
		extract:  parser.NewExtractor(log),
		log:      log,
	}
}

func (b *base) Name() string          { return b.name }
func (b *base) Programs() []string    { return slices.Clone(b.programs) }
func (b *base) Schema() policy.Schema { return b.schema }
func (b *base) Policies() policy.Set  { return b.policies.Clone() }

// run executes one command and returns its output as a line source
func (b *base) run(ctx context.Context, runner Runner, cmd Command) (*parser.Source, error) {
	out, err := runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return parser.NewSource(bytes.NewReader(out)), nil
}

// table extracts one table, treating an absent table as empty
func (b *base) table(src *parser.Source, spec parser.TableSpec) (types.Table, error) {
	t, err := b.extract.Table(src, spec)
	if errors.Is(err, parser.ErrAbsentTable) {
		b.log.Debug("table absent", zap.String("table", spec.Name))
		return types.Table{}, nil
	}
	return t, err
}

// record extracts a key:value table, treating an absent table as empty
func (b *base) record(src *parser.Source, spec parser.RecordSpec) (types.Record, error) {
	r, err := b.extract.Record(src, spec)
	if errors.Is(err, parser.ErrAbsentTable) {
		b.log.Debug("table absent", zap.String("table", spec.Name))
		return types.Record{}, nil
	}
	return r, err
}

// blocks extracts vertical records, treating an absent table as empty
func (b *base) blocks(src *parser.Source, spec parser.BlockSpec) (types.Table, error) {
	t, err := b.extract.Blocks(src, spec)
	if errors.Is(err, parser.ErrAbsentTable) {
		b.log.Debug("table absent", zap.String("table", spec.Name))
		return types.Table{}, nil
	}
	return t, err
}

// rowFields builds schema entries from the row specs of tables
func rowFields(schema policy.Schema, specs ...parser.TableSpec) policy.Schema {
	for _, spec := range specs {
		schema[spec.Name] = spec.Row.Fields()
	}
	return schema
}
