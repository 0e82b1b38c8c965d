package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `{"min_consecutive_frames": 8, "train_speed_kmh": 80}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	confirmer := cfg.ConfirmerConfig()
	assert.Equal(t, 8, confirmer.MinConsecutiveFrames)
	// Unset fields fall back to defaults.
	assert.Equal(t, 3, confirmer.MaxFrameGap)
	assert.Equal(t, 10*time.Second, confirmer.InactivityTimeout)

	assert.Equal(t, 80.0, cfg.GetTrainSpeedKmh())
	assert.Equal(t, 800.0, cfg.EstimatorConfig().FocalLengthPx)
}

func TestTTCCutoffConversion(t *testing.T) {
	path := writeConfig(t, `{"ttc_critical_s": 15, "ttc_high_s": 35}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	ec := cfg.EstimatorConfig()
	assert.Equal(t, 15.0, ec.TTCCriticalS)
	assert.Equal(t, 35.0, ec.TTCHighS)
	// Unset cutoff keeps its default.
	assert.Equal(t, 60.0, ec.TTCMediumS)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero min frames", `{"min_consecutive_frames": 0}`},
		{"negative gap", `{"max_frame_gap": -1}`},
		{"bad duration", `{"inactivity_timeout": "soon"}`},
		{"fraction out of range", `{"zone_top_fraction": 1.5}`},
		{"negative focal", `{"focal_length_px": -10}`},
		{"non-increasing ttc cutoffs", `{"ttc_critical_s": 40, "ttc_high_s": 40}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadRequiresJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestZoneAndFilterConversion(t *testing.T) {
	path := writeConfig(t, `{
		"zone_critical_width_fraction": 0.3,
		"min_area_px": 2000,
		"duplicate_window": "45s"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	z := cfg.ZoneConfig()
	assert.Equal(t, 0.3, z.CriticalWidthFraction)
	assert.Equal(t, 0.4, z.TopFraction)

	f := cfg.FilterConfig()
	assert.Equal(t, 2000, f.MinAreaPx)
	assert.Equal(t, 45*time.Second, f.DuplicateWindow)
	assert.Equal(t, 100, f.DuplicateCap)
}

func TestSaveCalibrationPreservesOtherFields(t *testing.T) {
	path := writeConfig(t, `{"train_speed_kmh": 90, "min_consecutive_frames": 7}`)

	require.NoError(t, SaveCalibration(path, 950))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 950.0, cfg.EstimatorConfig().FocalLengthPx)
	assert.Equal(t, 90.0, cfg.GetTrainSpeedKmh())
	require.NotNil(t, cfg.MinConsecutiveFrames)
	assert.Equal(t, 7, *cfg.MinConsecutiveFrames)
}

func TestSaveCalibrationCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.json")
	require.NoError(t, SaveCalibration(path, 820))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 820.0, cfg.EstimatorConfig().FocalLengthPx)
}

func TestDefaultsFileLoads(t *testing.T) {
	cfg, err := Load("../../" + DefaultConfigPath)
	if err != nil {
		t.Skipf("defaults file not found from test dir: %v", err)
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.ConfirmerConfig().MinConsecutiveFrames)
	assert.Equal(t, 60.0, cfg.GetTrainSpeedKmh())
}
