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

var (
	mdadmArrays = parser.TableSpec{
		Name: "arrays",
		Row: parser.RowSpec{
			Key:     "array_name",
			Columns: []parser.Column{parser.Token("array_name", 1), parser.Token("uuid", -1)},
		},
		Boundary: parser.UntilEOF(),
	}

	// The detail listing starts with the device name followed by a colon
	mdadmDetails = parser.RecordSpec{
		Name:     "details",
		Pair:     parser.PairSpec{Delimiter: ":"},
		Boundary: parser.UntilSentinel("Number   Major   Minor").AfterSkipping(1),
	}

	mdadmDisks = parser.TableSpec{
		Name: "disks",
		// removed slots have no number and idle spares have no slot
		Row: parser.RowSpec{
			Key:     "number",
			KeyWith: []string{"raid_device"},
			Columns: []parser.Column{
				parser.Token("number", 0),
				parser.Token("major_devid", 1),
				parser.Token("minor_devid", 2),
				parser.Token("raid_device", 3),
				parser.Token("state", 4),
				parser.Token("device", -1),
			},
		},
		Boundary: parser.UntilEOF(),
	}
)

// LinuxSW monitors Linux software RAID arrays through mdadm. The
// operating system is the only controller; each array is an instance.
type LinuxSW struct {
	base
}

// NewLinuxSW creates the Linux software RAID backend
func NewLinuxSW(log *zap.Logger) *LinuxSW {
	schema := rowFields(policy.Schema{
		"details": {"State", "Total Devices", "Working Devices", "Failed Devices"},
	}, mdadmArrays, mdadmDisks)
	policies := policy.Set{
		"details": {
			policy.Zero("Failed Devices", types.SeverityError),
			policy.Matches("Working Devices", "Total Devices", types.SeverityWarning),
		},
		"disks": {
			policy.Equal("state", "active", types.SeverityError).
				SkipWhen("state", "spare").
				SkipWhen("raid_device", "-"),
		},
	}
	return &LinuxSW{base: newBase("linuxsw", []string{"mdadm"}, schema, policies, log)}
}

// Collect implements Backend
func (l *LinuxSW) Collect(ctx context.Context, run Runner, program string) (*store.Store, error) {
	src, err := l.run(ctx, run, Command{Program: program, Args: []string{"--detail", "--scan"}})
	if err != nil {
		return nil, err
	}
	arrays, err := l.table(src, mdadmArrays)
	if err != nil {
		return nil, err
	}

	s := store.New()
	for _, array := range arrays.Keys() {
		s.PutTable(array, mdadmArrays.Name, types.Table{array: arrays[array]})

		src, err := l.run(ctx, run, Command{Program: program, Args: []string{"--detail", array}})
		if err != nil {
			return nil, err
		}
		details, err := l.record(src, mdadmDetails)
		if err != nil {
			return nil, fmt.Errorf("array %s: %w", array, err)
		}
		s.PutTable(array, mdadmDetails.Name, types.Table{array: details})

		disks, err := l.table(src, mdadmDisks)
		if err != nil {
			return nil, fmt.Errorf("array %s: %w", array, err)
		}
		s.PutTable(array, mdadmDisks.Name, disks)
	}
	s.Freeze()
	return s, nil
}
