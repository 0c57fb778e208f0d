package backend

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"raid-health-check/internal/parser"
	"raid-health-check/internal/policy"
	"raid-health-check/internal/store"
	"raid-health-check/pkg/types"
)

const megaraidSentinel = "Exit Code:"

var (
	megaraidCount = parser.RecordSpec{
		Name:     "cntrs",
		Pair:     parser.PairSpec{Delimiter: ":", Cutset: "."},
		Boundary: parser.UntilSentinel(megaraidSentinel),
	}

	megaraidEnclosures = parser.BlockSpec{
		Name:     "enclosures",
		Pair:     parser.PairSpec{Delimiter: ":", Orphans: parser.OrphanIgnore},
		Key:      "Device ID",
		Leader:   "Device ID",
		Boundary: parser.UntilSentinel(megaraidSentinel).AfterSkipping(3),
	}

	megaraidDisks = parser.BlockSpec{
		Name:     "disks",
		Pair:     parser.PairSpec{Delimiter: ":", Orphans: parser.OrphanIgnore},
		Key:      "Device Id",
		Leader:   "Enclosure Device ID",
		Boundary: parser.UntilSentinel(megaraidSentinel).AfterSkipping(3),
	}

	megaraidVolumes = parser.BlockSpec{
		Name:     "volumes",
		Pair:     parser.PairSpec{Delimiter: ":", Orphans: parser.OrphanIgnore},
		Key:      "Virtual Drive",
		Leader:   "Virtual Drive",
		Boundary: parser.UntilSentinel(megaraidSentinel).AfterSkipping(2),
	}
)

// MegaRaid monitors LSI MegaRAID adapters through MegaCli
type MegaRaid struct {
	base
}

// NewMegaRaid creates the MegaRAID backend
func NewMegaRaid(log *zap.Logger) *MegaRaid {
	schema := policy.Schema{
		"enclosures": {"Device ID", "Status", "Number of Alarms"},
		"disks": {
			"Device Id", "Firmware state", "Media Error Count",
			"Predictive Failure Count", "Last Predictive Failure Event Seq Number",
		},
		"volumes": {"Virtual Drive", "State"},
	}
	policies := policy.Set{
		"enclosures": {
			policy.Equal("Status", "Normal", types.SeverityError),
			policy.Zero("Number of Alarms", types.SeverityError),
		},
		"disks": {
			policy.In("Firmware state", types.SeverityWarning,
				"Online", "Online, Spun Up", "Hotspare, Spun Up", "Hotspare, Spun down"),
			policy.Zero("Last Predictive Failure Event Seq Number", types.SeverityError),
			policy.Zero("Media Error Count", types.SeverityError),
			policy.Zero("Predictive Failure Count", types.SeverityWarning),
		},
		"volumes": {
			policy.Equal("State", "Optimal", types.SeverityError),
		},
	}
	return &MegaRaid{base: newBase("megaraid", []string{"MegaCli64", "MegaCli"}, schema, policies, log)}
}

// Collect implements Backend
func (m *MegaRaid) Collect(ctx context.Context, run Runner, program string) (*store.Store, error) {
	count, err := m.adapterCount(ctx, run, program)
	if err != nil {
		return nil, err
	}
	m.log.Debug("adapters found", zap.Int("count", count))

	s := store.New()
	for adapter := 0; adapter < count; adapter++ {
		id := strconv.Itoa(adapter)
		for _, table := range []struct {
			spec parser.BlockSpec
			args []string
		}{
			{megaraidEnclosures, []string{"-encinfo", "-a" + id}},
			{megaraidDisks, []string{"-pdlist", "-a" + id}},
			{megaraidVolumes, []string{"-ldinfo", "-lall", "-a" + id}},
		} {
			src, err := m.run(ctx, run, Command{Program: program, Args: table.args, IgnoreExitStatus: true})
			if err != nil {
				return nil, err
			}
			t, err := m.blocks(src, table.spec)
			if err != nil {
				return nil, fmt.Errorf("adapter %s: %w", id, err)
			}
			s.PutTable(id, table.spec.Name, t)
		}
	}
	s.Freeze()
	return s, nil
}

// adapterCount reads the number of adapters; MegaCli numbers them from 0
func (m *MegaRaid) adapterCount(ctx context.Context, run Runner, program string) (int, error) {
	src, err := m.run(ctx, run, Command{Program: program, Args: []string{"-adpcount"}, IgnoreExitStatus: true})
	if err != nil {
		return 0, err
	}
	r, err := m.record(src, megaraidCount)
	if err != nil {
		return 0, err
	}
	value, ok := r["Controller Count"]
	if !ok {
		return 0, nil
	}
	count, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid controller count %q: %w", value, err)
	}
	return count, nil
}
