package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func TestRiseMergeNilKeepsBase(t *testing.T) {
	base := DefaultRiseConfig()
	assert.Equal(t, base, base.Merge(nil))
}

func TestRiseMergeAppliesPresentFieldsOnly(t *testing.T) {
	base := DefaultRiseConfig()
	merged := base.Merge(&RiseOverride{
		SuddenSpikePercentageChangeThreshold: fptr(30.0),
		PeriodicityMaxPeriodDays:             iptr(14),
	})

	assert.Equal(t, 30.0, merged.SuddenSpikePercentageChangeThreshold)
	assert.Equal(t, 14, merged.PeriodicityMaxPeriodDays)
	assert.Equal(t, base.ScoreSuddenSpikeWeight, merged.ScoreSuddenSpikeWeight)
	assert.Equal(t, base.GradualIncreaseMinRSquared, merged.GradualIncreaseMinRSquared)

	// The receiver is never mutated.
	assert.Equal(t, DefaultRiseConfig(), base)
}

func TestRiseMergeZeroIsALegalOverride(t *testing.T) {
	merged := DefaultRiseConfig().Merge(&RiseOverride{
		SuddenSpikeMinAbsoluteChange: fptr(0.0),
	})
	assert.Equal(t, 0.0, merged.SuddenSpikeMinAbsoluteChange)
}

func TestDeclineMerge(t *testing.T) {
	base := DefaultDeclineConfig()
	merged := base.Merge(&DeclineOverride{
		SuddenDropMinAbsoluteChange: fptr(5.0),
		SteadyDeclineMinDataPoints:  iptr(3),
	})

	assert.Equal(t, 5.0, merged.SuddenDropMinAbsoluteChange)
	assert.Equal(t, 3, merged.SteadyDeclineMinDataPoints)
	assert.Equal(t, base.SuddenDropChangePercentThreshold, merged.SuddenDropChangePercentThreshold)
	assert.Equal(t, DefaultDeclineConfig(), base)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultFileConfig(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
rise:
  suddenSpikePercentageChangeThreshold: 50.0
window:
  maxSize: 14
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50.0, cfg.Rise.SuddenSpikePercentageChangeThreshold)
	assert.Equal(t, 14, cfg.Window.MaxSize)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultRiseConfig().ScoreCriticalThreshold, cfg.Rise.ScoreCriticalThreshold)
	assert.Equal(t, DefaultDeclineConfig(), cfg.Decline)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rise: ["), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
