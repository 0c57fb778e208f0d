package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raid-health-check/pkg/types"
)

func TestPutLastWriteWins(t *testing.T) {
	s := New()
	s.Put("0", "disks", "8", types.Record{"state": "Online"})
	s.Put("0", "disks", "8", types.Record{"state": "Failed"})

	table := s.Get("0", "disks")
	require.Len(t, table, 1)
	assert.Equal(t, "Failed", table["8"]["state"])
}

func TestPutTableKeepsEmptyTables(t *testing.T) {
	s := New()
	s.PutTable("c0", "bbus", types.Table{})

	assert.Equal(t, []string{"c0"}, s.Instances())
	assert.Equal(t, []string{"bbus"}, s.Tables("c0"))
	assert.NotNil(t, s.Get("c0", "bbus"))
	assert.Nil(t, s.Get("c0", "units"))
	assert.Nil(t, s.Get("c9", "units"))
}

func TestSortedIteration(t *testing.T) {
	s := New()
	s.Put("tank", "zpools", "tank", types.Record{})
	s.Put("backup", "disks", "sda", types.Record{})
	s.Put("backup", "details", "state", types.Record{})

	assert.Equal(t, []string{"backup", "tank"}, s.Instances())
	assert.Equal(t, []string{"details", "disks"}, s.Tables("backup"))
	assert.Empty(t, s.Tables("missing"))
	assert.Equal(t, 3, s.Len())
}

func TestFreeze(t *testing.T) {
	s := New()
	s.Put("0", "volumes", "0", types.Record{"State": "Optimal"})
	s.Freeze()

	assert.True(t, s.Frozen())
	assert.Panics(t, func() { s.Put("0", "volumes", "1", types.Record{}) })
	assert.Panics(t, func() { s.PutTable("1", "volumes", types.Table{}) })
	assert.Equal(t, "Optimal", s.Get("0", "volumes")["0"]["State"])
}
