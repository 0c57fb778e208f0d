package parser

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"raid-health-check/pkg/types"
)

// TableSpec is the recipe for a table where each line is one record
type TableSpec struct {
	Name     string
	Row      RowSpec
	Boundary Boundary
}

// RecordSpec is the recipe for a key:value table read into one record
type RecordSpec struct {
	Name     string
	Pair     PairSpec
	Boundary Boundary
}

// BlockSpec is the recipe for vertically rendered records, where one
// record spans many key:value lines.
type BlockSpec struct {
	Name string
	Pair PairSpec
	// Key names the field whose value keys each record
	Key string
	// Leader, when set, names the field that opens a new record; blank
	// lines then no longer separate records.
	Leader   string
	Boundary Boundary
}

// Extractor turns line streams into tables
type Extractor struct {
	log *zap.Logger
}

// NewExtractor creates an Extractor logging to log; nil disables logging
func NewExtractor(log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{log: log}
}

// Table extracts a table of one-line records
func (e *Extractor) Table(src *Source, spec TableSpec) (types.Table, error) {
	table := types.Table{}
	err := e.scan(src, spec.Name, spec.Boundary, func(line string) error {
		key, record, err := spec.Row.Split(line)
		if err != nil {
			return err
		}
		table[key] = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Debug("table extracted", zap.String("table", spec.Name), zap.Int("records", len(table)))
	return table, nil
}

// Record extracts a key:value table into a single record
func (e *Extractor) Record(src *Source, spec RecordSpec) (types.Record, error) {
	acc := newPairs(spec.Pair)
	err := e.scan(src, spec.Name, spec.Boundary, func(line string) error {
		_, err := acc.add(line)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Debug("record extracted", zap.String("table", spec.Name), zap.Int("fields", len(acc.record)))
	return acc.record, nil
}

// Drain consumes lines through a boundary without parsing them
func (e *Extractor) Drain(src *Source, name string, b Boundary) error {
	err := e.scan(src, name, b, func(string) error { return nil })
	if errors.Is(err, ErrAbsentTable) {
		return nil
	}
	return err
}

// Blocks extracts vertically rendered records. Each block ends at a
// blank line (or at the next Leader line); extraction stops at the
// sentinel. A stream holding no block at all reports ErrAbsentTable.
func (e *Extractor) Blocks(src *Source, spec BlockSpec) (types.Table, error) {
	read, err := e.skip(src, spec.Name, spec.Boundary)
	if err != nil {
		return nil, err
	}

	table := types.Table{}
	acc := newPairs(spec.Pair)
	started := spec.Leader == ""
	startLine := 0

	flush := func() error {
		if len(acc.record) == 0 {
			return nil
		}
		key, ok := acc.record[spec.Key]
		if !ok {
			return &Fault{Table: spec.Name, Line: startLine, Err: ErrMissingKey}
		}
		table[key] = acc.record
		acc.reset()
		return nil
	}
	finish := func() (types.Table, error) {
		if err := flush(); err != nil {
			return nil, err
		}
		if len(table) == 0 {
			return nil, ErrAbsentTable
		}
		e.log.Debug("blocks extracted", zap.String("table", spec.Name), zap.Int("records", len(table)))
		return table, nil
	}

	for {
		line, ok := src.Next()
		if !ok {
			if err := src.Err(); err != nil {
				return nil, &Fault{Table: spec.Name, Line: src.Line(), Err: err}
			}
			if read == 0 {
				return nil, ErrAbsentTable
			}
			if spec.Boundary.AllowEOF {
				return finish()
			}
			return nil, &Fault{Table: spec.Name, Line: src.Line(), Err: ErrUnexpectedEOF}
		}
		read++

		if spec.Boundary.Sentinel != "" && strings.Contains(line, spec.Boundary.Sentinel) {
			return finish()
		}

		if strings.TrimSpace(line) == "" {
			if spec.Leader == "" {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			continue
		}

		name, _, splitErr := spec.Pair.Split(line)
		if splitErr == nil && spec.Leader != "" && name == spec.Leader {
			if err := flush(); err != nil {
				return nil, err
			}
			started = true
		}
		if !started {
			continue
		}

		if len(acc.record) == 0 {
			startLine = src.Line()
		}
		if _, err := acc.add(line); err != nil {
			return nil, &Fault{Table: spec.Name, Line: src.Line(), Text: line, Err: err}
		}
	}
}

// skip discards the header lines of a table. A stream that is already
// exhausted holds no further tables.
func (e *Extractor) skip(src *Source, name string, b Boundary) (int, error) {
	read := 0
	for found := b.Header == ""; read < b.Skip || !found; read++ {
		line, ok := src.Next()
		if !ok {
			if err := src.Err(); err != nil {
				return read, &Fault{Table: name, Line: src.Line(), Err: err}
			}
			if read == 0 {
				return 0, ErrAbsentTable
			}
			return read, &Fault{Table: name, Line: src.Line(), Err: ErrUnexpectedEOF}
		}
		if read >= b.Skip && strings.Contains(line, b.Header) {
			found = true
		}
		e.log.Debug("header line skipped", zap.String("table", name), zap.String("line", line))
	}
	return read, nil
}

func (e *Extractor) scan(src *Source, name string, b Boundary, consume func(string) error) error {
	read, err := e.skip(src, name, b)
	if err != nil {
		return err
	}

	c := newCursor(b)
	for {
		line, ok := src.Next()
		if !ok {
			if err := src.Err(); err != nil {
				return &Fault{Table: name, Line: src.Line(), Err: err}
			}
			if read == 0 {
				return ErrAbsentTable
			}
			if c.complete() {
				return nil
			}
			return &Fault{Table: name, Line: src.Line(), Err: ErrUnexpectedEOF}
		}
		read++

		switch c.step(line) {
		case actDiscard:
			continue
		case actParse:
			if err := consume(line); err != nil {
				if errors.Is(err, errShortRow) {
					e.log.Debug("short row skipped", zap.String("table", name), zap.String("line", line))
					continue
				}
				return &Fault{Table: name, Line: src.Line(), Text: line, Err: err}
			}
			c.rows++
		case actStop:
			return nil
		case actPushBack:
			src.Unread(line)
			return nil
		case actAbsent:
			return ErrAbsentTable
		}
	}
}
