package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"raid-health-check/pkg/types"
)

const overridesDoc = `
megaraid:
  volumes:
    - field: State
      kind: one-of
      values: [Optimal, "Partially Degraded"]
      severity: warning
threeware:
  units:
    - field: status
      kind: equals
      value: OK
      severity: error
      unless:
        field: type
        values: [SPARE]
`

var testSchemas = map[string]Schema{
	"megaraid":  {"volumes": {"Virtual Drive", "State"}, "disks": {"Device Id", "Firmware state"}},
	"threeware": {"units": {"unit", "type", "status"}},
}

func TestParseOverrides(t *testing.T) {
	overrides, err := ParseOverrides([]byte(overridesDoc))
	require.NoError(t, err)
	require.NoError(t, overrides.Validate(testSchemas))

	volumes := overrides["megaraid"]["volumes"]
	require.Len(t, volumes, 1)
	assert.Equal(t, OneOf, volumes[0].Kind)
	assert.Equal(t, types.SeverityWarning, volumes[0].Severity)
	assert.Equal(t, []string{"Optimal", "Partially Degraded"}, volumes[0].Values)

	units := overrides["threeware"]["units"]
	require.Len(t, units, 1)
	require.NotNil(t, units[0].Unless)
	assert.Equal(t, "type", units[0].Unless.Field)
}

func TestParseOverridesRejectsUnknownKind(t *testing.T) {
	_, err := ParseOverrides([]byte("zpool:\n  zpools:\n    - field: health\n      kind: roughly\n      severity: error\n"))
	assert.Error(t, err)

	_, err = ParseOverrides([]byte("zpool:\n  zpools:\n    - field: health\n      kind: equals\n      severity: dire\n"))
	assert.Error(t, err)
}

func TestOverridesApplyReplacesListedTables(t *testing.T) {
	overrides, err := ParseOverrides([]byte(overridesDoc))
	require.NoError(t, err)

	base := Set{
		"volumes": {Equal("State", "Optimal", types.SeverityError)},
		"disks":   {Equal("Firmware state", "Online, Spun Up", types.SeverityError)},
	}

	merged := overrides.Apply("megaraid", base)
	assert.Equal(t, OneOf, merged["volumes"][0].Kind)
	assert.Equal(t, base["disks"], merged["disks"])
	assert.Equal(t, Equals, base["volumes"][0].Kind, "base set must not change")

	assert.Equal(t, base, overrides.Apply("zpool", base))
}

func TestOverridesValidate(t *testing.T) {
	bad, err := ParseOverrides([]byte("megaraid:\n  volumes:\n    - field: Cache\n      kind: equals\n      value: WB\n      severity: warning\n"))
	require.NoError(t, err)
	err = bad.Validate(testSchemas)
	require.Error(t, err)

	var fault *SchemaFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "megaraid", fault.Backend)

	unknown, err := ParseOverrides([]byte("hpraid: {}\n"))
	require.NoError(t, err)
	assert.Error(t, unknown.Validate(testSchemas))
}

func TestLoadOverrides(t *testing.T) {
	overrides, err := LoadOverrides("")
	require.NoError(t, err)
	assert.Empty(t, overrides)

	_, err = LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	core, logs := observer.New(zap.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan Overrides, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, testSchemas, zap.New(core), func(o Overrides) { applied <- o })
	}()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("watching policy overrides").Len() > 0
	}, 5*time.Second, 10*time.Millisecond)

	// A schema mismatch is rejected and not applied.
	require.NoError(t, os.WriteFile(path, []byte("threeware:\n  units:\n    - field: nope\n      kind: equals\n      severity: error\n"), 0o644))
	require.Eventually(t, func() bool {
		return logs.FilterMessage("policy overrides rejected").Len() > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(overridesDoc), 0o644))
	select {
	case o := <-applied:
		assert.Contains(t, o, "megaraid")
	case <-time.After(5 * time.Second):
		t.Fatal("overrides were not reloaded")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestParseOverridesChainedGuard(t *testing.T) {
	doc := `
linuxsw:
  disks:
    - field: state
      kind: equals
      value: active
      severity: error
      unless:
        field: state
        values: [spare]
        and:
          field: raid_device
          values: ["-"]
`
	overrides, err := ParseOverrides([]byte(doc))
	require.NoError(t, err)

	disks := overrides["linuxsw"]["disks"]
	require.Len(t, disks, 1)
	require.NotNil(t, disks[0].Unless.And)
	assert.Equal(t, "raid_device", disks[0].Unless.And.Field)

	severity, _, err := Evaluate("/dev/md2", "disks", types.Table{
		"2": {"state": "spare", "raid_device": "1"},
		"3": {"state": "spare", "raid_device": "-"},
	}, disks)
	require.NoError(t, err)
	assert.Equal(t, types.SeverityError, severity)
}
