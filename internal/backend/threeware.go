package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"raid-health-check/internal/parser"
	"raid-health-check/internal/policy"
	"raid-health-check/internal/store"
	"raid-health-check/pkg/types"
)

func threewareTable(name string, skip int, row parser.RowSpec) parser.TableSpec {
	return parser.TableSpec{Name: name, Row: row, Boundary: parser.UntilBlank().OrEOF().AfterSkipping(skip)}
}

var (
	// tw_cli prints a blank line, the header and a dashed rule first
	threewareControllers = threewareTable("cntrs", 3, parser.RowSpec{
		Key: "controller",
		Columns: []parser.Column{
			parser.Token("controller", 0),
			parser.Token("model", 1),
			parser.Token("ports", 2),
			parser.Token("drives", 3),
			parser.Token("units", 4),
			parser.Token("notopt", 5),
			parser.Token("rrate", 6),
			parser.Token("vrate", 7),
			parser.Token("bbu_status", -1),
		},
	})

	threewareUnits = threewareTable("units", 3, parser.RowSpec{
		Key: "unit",
		Columns: []parser.Column{
			parser.Token("unit", 0),
			parser.Token("type", 1),
			parser.Token("status", 2),
			parser.Token("rebuild_complete", 3),
			parser.Token("VIM", 4),
			parser.Token("strip_size", 5),
			parser.Token("size", 6),
			parser.Token("cache", 7),
			parser.Token("auto_verify", 8),
		},
	})

	// Empty ports print only dashes after the unit column
	threewarePorts = threewareTable("ports", 2, parser.RowSpec{
		Key: "port",
		Columns: []parser.Column{
			parser.Token("port", 0),
			parser.Token("status", 1),
			parser.Token("unit", 2),
			parser.Token("serial number", -1),
		},
	})

	threewareBBUs = threewareTable("bbus", 2, parser.RowSpec{
		Key: "name",
		Columns: []parser.Column{
			parser.Token("name", 0),
			parser.Token("onlinestate", 1),
			parser.Token("bbuready", 2),
			parser.Token("status", 3),
			parser.Token("volt", 4),
			parser.Token("temp", 5),
			parser.Token("hours", 6),
			parser.Token("lastcaptest", 7),
		},
	})
)

// Threeware monitors 3ware controllers through tw_cli
type Threeware struct {
	base
}

// NewThreeware creates the 3ware backend
func NewThreeware(log *zap.Logger) *Threeware {
	schema := rowFields(policy.Schema{}, threewareControllers, threewareUnits, threewarePorts, threewareBBUs)
	policies := policy.Set{
		"cntrs": {
			policy.Zero("notopt", types.SeverityError),
			policy.Equal("bbu_status", "OK", types.SeverityError),
		},
		"units": {
			policy.Equal("status", "OK", types.SeverityError),
			policy.Equal("cache", "ON", types.SeverityError).SkipWhen("type", "SPARE"),
			policy.Equal("auto_verify", "ON", types.SeverityWarning).SkipWhen("type", "SPARE"),
		},
		// A port outside any unit cannot degrade an array
		"ports": {
			policy.Equal("status", "OK", types.SeverityError).SkipWhen("unit", "-"),
		},
		"bbus": {
			policy.Equal("status", "OK", types.SeverityError),
			policy.Equal("bbuready", "Yes", types.SeverityError),
			policy.NotEqual("lastcaptest", "xx-xxx-xxxx", types.SeverityWarning),
			policy.Equal("onlinestate", "On", types.SeverityError),
			policy.Equal("temp", "OK", types.SeverityError),
			policy.Equal("volt", "OK", types.SeverityError),
		},
	}
	return &Threeware{base: newBase("threeware", []string{"tw_cli"}, schema, policies, log)}
}

// Collect implements Backend
func (t *Threeware) Collect(ctx context.Context, run Runner, program string) (*store.Store, error) {
	src, err := t.run(ctx, run, Command{Program: program, Args: []string{"show"}})
	if err != nil {
		return nil, err
	}
	controllers, err := t.table(src, threewareControllers)
	if err != nil {
		return nil, err
	}

	s := store.New()
	for _, id := range controllers.Keys() {
		s.PutTable(id, threewareControllers.Name, types.Table{id: controllers[id]})

		src, err := t.run(ctx, run, Command{Program: program, Args: []string{"/" + id, "show"}})
		if err != nil {
			return nil, err
		}
		// Controllers without a battery unit end after the port table.
		for _, spec := range []parser.TableSpec{threewareUnits, threewarePorts, threewareBBUs} {
			table, err := t.table(src, spec)
			if err != nil {
				return nil, fmt.Errorf("controller %s: %w", id, err)
			}
			s.PutTable(id, spec.Name, table)
		}
	}
	s.Freeze()
	return s, nil
}
