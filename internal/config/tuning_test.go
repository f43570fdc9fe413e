package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/balloonpredict/internal/predict"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)
	if diff := cmp.Diff(predict.DefaultConfig(), cfg); diff != "" {
		t.Errorf("example tuning differs from defaults (-want +got):\n%s", diff)
	}
}

func TestPartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{"samples": 250, "uncertainty_timeout": "5s", "skip_uncertainty": true}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	want := predict.DefaultConfig()
	want.MonteCarlo.Samples = 250
	want.UncertaintyTimeout = 5 * time.Second
	want.SkipUncertainty = true
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, predict.DefaultConfig().MonteCarlo.Samples, cfg.MonteCarlo.Samples)
}

func TestLoadTuningConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"extension", "tuning.yaml", `{}`, ".json extension"},
		{"syntax", "tuning.json", `{`, "failed to parse"},
		{"duration", "tuning.json", `{"ascent_timestep": "soon"}`, "invalid ascent_timestep"},
		{"negative duration", "tuning.json", `{"window_margin": "-1m"}`, "window_margin must not be negative"},
		{"confidence", "tuning.json", `{"confidence_level": 1.5}`, "confidence_level"},
		{"rms", "tuning.json", `{"rms_wind_error": -1}`, "rms_wind_error"},
		{"percentile above 100", "tuning.json", `{"percentiles": [50, 100.5]}`, "percentiles"},
		{"percentile zero", "tuning.json", `{"percentiles": [0, 50]}`, "percentiles"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadTuningConfigMissingFile(t *testing.T) {
	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to stat")
}

func TestPercentilesAcceptHundred(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []float64
	}{
		{"max", `{"percentiles": [100]}`, []float64{100}},
		{"mixed", `{"percentiles": [5, 50, 99.9, 100]}`, []float64{5, 50, 99.9, 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, "tuning.json", tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.MonteCarlo.Percentiles)
			require.NoError(t, cfg.MonteCarlo.Validate())
		})
	}
}

func TestApplyNil(t *testing.T) {
	var tc *TuningConfig
	base := predict.DefaultConfig()
	assert.Equal(t, base, tc.Apply(base))
}
