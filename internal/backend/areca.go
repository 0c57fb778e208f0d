package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"raid-health-check/internal/parser"
	"raid-health-check/internal/policy"
	"raid-health-check/internal/store"
	"raid-health-check/pkg/types"
)

// arecaSentinel ends the output of every cli64 command
const arecaSentinel = "GuiErrMsg<0x00>: Success."

var errUnknownModel = errors.New("unsupported controller model")

// arecaModel holds the table layouts of one controller family. Column
// positions differ between firmware families.
type arecaModel struct {
	raids   parser.TableSpec
	volumes parser.TableSpec
	disks   parser.TableSpec
	sys     parser.RecordSpec
}

func arecaTable(name string, row parser.RowSpec) parser.TableSpec {
	return parser.TableSpec{Name: name, Row: row, Boundary: parser.BetweenRules('=', arecaSentinel)}
}

var (
	arecaControllers = arecaTable("cntrs", parser.RowSpec{
		Key: "controller_num",
		Columns: []parser.Column{
			parser.Range("controller_num", 4, 8),
			parser.Range("model", 8, 19),
			parser.Range("type", 19, 36),
			parser.Range("interface", 36, 50),
		},
	})

	arecaVolumes = arecaTable("volumes", parser.RowSpec{
		Key: "number",
		Columns: []parser.Column{
			parser.Token("number", 0),
			parser.Range("volume_name", 4, 21),
			parser.Range("raid_name", 21, 37),
			parser.Token("raid_level", -4),
			parser.Token("capacity", -3),
			parser.Token("ch/id/lun", -2),
			parser.Token("status", -1),
		},
	})

	arecaSys = parser.RecordSpec{
		Name:     "sys",
		Pair:     parser.PairSpec{Delimiter: ":", Orphans: parser.OrphanIgnore},
		Boundary: parser.BetweenRules('=', arecaSentinel),
	}

	arc1680 = arecaModel{
		raids: arecaTable("raids", parser.RowSpec{
			Key: "number",
			Columns: []parser.Column{
				parser.Token("number", 0),
				parser.Range("name", 4, 22),
				parser.Token("disk count", -5),
				parser.Token("total capacity", -4),
				parser.Token("free capacity", -3),
				parser.Token("mindiskcap", -2),
				parser.Token("status", -1),
			},
		}),
		volumes: arecaVolumes,
		disks: arecaTable("disks", parser.RowSpec{
			Key: "number",
			Columns: []parser.Column{
				parser.Token("number", 0),
				parser.Token("enclosure", 1),
				parser.Range("slot", 9, 17),
				parser.Range("modelname", 17, 50),
				parser.Range("capacity", 50, 60),
				parser.Range("raid_name", 60, parser.ToEOL),
			},
		}),
		sys: arecaSys,
	}

	arc1231 = arecaModel{
		raids: arecaTable("raids", parser.RowSpec{
			Key: "number",
			Columns: []parser.Column{
				parser.Token("number", 0),
				parser.Range("name", 4, 22),
				parser.Token("disk count", -5),
				parser.Token("total capacity", -4),
				parser.Token("free capacity", -3),
				parser.Token("disk channels", -2),
				parser.Token("status", -1),
			},
		}),
		volumes: arecaVolumes,
		disks: arecaTable("disks", parser.RowSpec{
			Key: "number",
			Columns: []parser.Column{
				parser.Token("number", 0),
				parser.Token("channel", 1),
				parser.Range("modelname", 8, 40),
				parser.Range("capacity", 40, 50),
				parser.Range("raid_name", 50, parser.ToEOL),
			},
		}),
		sys: arecaSys,
	}

	arecaModels = map[string]arecaModel{
		"ARC-1680": arc1680,
		"ARC-1231": arc1231,
		"ARC-1220": arc1231,
	}
)

// Areca monitors Areca controllers through an interactive cli64 session
type Areca struct {
	base
}

// NewAreca creates the Areca backend
func NewAreca(log *zap.Logger) *Areca {
	schema := policy.Schema{
		"sys": {"Controller Name", "Firmware Version"},
	}
	rowFields(schema, arecaControllers)
	// Every model must produce the fields the policies read.
	for _, model := range arecaModels {
		rowFields(schema, model.volumes)
		for _, spec := range []parser.TableSpec{model.raids, model.disks} {
			schema[spec.Name] = intersect(schema[spec.Name], spec.Row.Fields())
		}
	}

	policies := policy.Set{
		"raids":   {policy.Equal("status", "Normal", types.SeverityError)},
		"volumes": {policy.Equal("status", "Normal", types.SeverityError)},
	}
	return &Areca{base: newBase("areca", []string{"cli64", "cli32"}, schema, policies, log)}
}

// Collect implements Backend
func (a *Areca) Collect(ctx context.Context, run Runner, program string) (_ *store.Store, err error) {
	session, err := run.Start(ctx, Command{Program: program, IgnoreExitStatus: true})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := session.Close("exit"); cerr != nil && err == nil {
			err = cerr
		}
	}()

	src := session.Output()

	// Selecting a controller makes cli64 print the controller list and
	// then the success marker, whatever the current selection is.
	if err := session.Send("set curctrl=1"); err != nil {
		return nil, err
	}
	controllers, err := a.table(src, arecaControllers)
	if err != nil {
		return nil, err
	}
	// The list stops in front of the help table when cli64 prints one.
	if src.Pending() {
		if err := a.extract.Drain(src, "help", parser.UntilSentinel(arecaSentinel)); err != nil {
			return nil, err
		}
	}

	s := store.New()
	for _, id := range controllers.Keys() {
		summary := controllers[id]
		model, ok := arecaModels[summary["model"]]
		if !ok {
			return nil, fmt.Errorf("controller %s: %w %q", id, errUnknownModel, summary["model"])
		}
		s.PutTable(id, arecaControllers.Name, types.Table{id: summary})

		if err := session.Send("set curctrl=" + id); err != nil {
			return nil, err
		}
		if err := a.extract.Drain(src, "curctrl", parser.UntilSentinel(arecaSentinel)); err != nil {
			return nil, err
		}

		for _, step := range []struct {
			command string
			spec    parser.TableSpec
		}{
			{"rsf info", model.raids},
			{"vsf info", model.volumes},
			{"disk info", model.disks},
		} {
			if err := session.Send(step.command); err != nil {
				return nil, err
			}
			t, err := a.table(src, step.spec)
			if err != nil {
				return nil, fmt.Errorf("controller %s: %w", id, err)
			}
			s.PutTable(id, step.spec.Name, t)
		}

		if err := session.Send("sys info"); err != nil {
			return nil, err
		}
		sys, err := a.record(src, model.sys)
		if err != nil {
			return nil, fmt.Errorf("controller %s: %w", id, err)
		}
		s.PutTable(id, model.sys.Name, types.Table{id: sys})
	}
	s.Freeze()
	return s, nil
}

func intersect(a, b []string) []string {
	if a == nil {
		return b
	}
	var out []string
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = append(out, x)
				break
			}
		}
	}
	return out
}
