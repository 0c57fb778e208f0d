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
	zpoolList = parser.TableSpec{
		Name: "zpools",
		Row: parser.RowSpec{
			Key: "name",
			Columns: []parser.Column{
				parser.Token("name", 0),
				parser.Token("size", 1),
				parser.Token("used", 2),
				parser.Token("avail", 3),
				parser.Token("capacity", 4),
				parser.Token("health", 5),
				parser.Token("altroot", 6),
			},
		},
		Boundary: parser.UntilEOF(),
	}

	// status, action and errors messages wrap onto continuation lines
	zpoolDetails = parser.RecordSpec{
		Name:     "details",
		Pair:     parser.PairSpec{Delimiter: ":", Orphans: parser.OrphanAppend},
		Boundary: parser.UntilSentinel("config:"),
	}

	// Group headers such as "spares" or "logs" carry no counters
	zpoolDisks = parser.TableSpec{
		Name: "disks",
		Row: parser.RowSpec{
			Key: "name",
			Columns: []parser.Column{
				parser.Token("name", 0),
				parser.Token("state", 1),
				parser.Token("read_errors", 2),
				parser.Token("write_errors", 3),
				parser.Token("checksum_errors", 4),
			},
			SkipShortRows: true,
		},
		Boundary: parser.UntilBlank().OrEOF().AfterHeader("NAME"),
	}
)

// ZPool monitors ZFS pools. Each pool is an instance.
type ZPool struct {
	base
}

// NewZPool creates the ZFS pool backend
func NewZPool(log *zap.Logger) *ZPool {
	schema := rowFields(policy.Schema{
		"details": {"pool", "state"},
	}, zpoolList, zpoolDisks)
	policies := policy.Set{
		"details": {
			policy.Equal("state", "ONLINE", types.SeverityError),
		},
		"disks": {
			policy.Equal("state", "ONLINE", types.SeverityError),
			policy.Zero("checksum_errors", types.SeverityWarning),
			policy.Zero("write_errors", types.SeverityWarning),
			policy.Zero("read_errors", types.SeverityWarning),
		},
	}
	return &ZPool{base: newBase("zpool", []string{"zpool"}, schema, policies, log)}
}

// Collect implements Backend
func (z *ZPool) Collect(ctx context.Context, run Runner, program string) (*store.Store, error) {
	src, err := z.run(ctx, run, Command{
		Program: program,
		Args:    []string{"list", "-H", "-o", "name,size,alloc,free,cap,health,altroot"},
	})
	if err != nil {
		return nil, err
	}
	pools, err := z.table(src, zpoolList)
	if err != nil {
		return nil, err
	}

	s := store.New()
	for _, pool := range pools.Keys() {
		s.PutTable(pool, zpoolList.Name, types.Table{pool: pools[pool]})

		src, err := z.run(ctx, run, Command{Program: program, Args: []string{"status", pool}})
		if err != nil {
			return nil, err
		}
		details, err := z.record(src, zpoolDetails)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", pool, err)
		}
		s.PutTable(pool, zpoolDetails.Name, types.Table{pool: details})

		disks, err := z.table(src, zpoolDisks)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", pool, err)
		}
		s.PutTable(pool, zpoolDisks.Name, disks)
	}
	s.Freeze()
	return s, nil
}
