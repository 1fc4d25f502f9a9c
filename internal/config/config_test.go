package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyUsesDefaults(t *testing.T) {
	cfg := Empty()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:3000", cfg.GetServerURL())
	assert.Equal(t, ":8080", cfg.GetListen())
	assert.Equal(t, 5*time.Minute, cfg.GetExpiry())
	assert.Equal(t, 5*time.Second, cfg.GetTrackThrottle())
	assert.Equal(t, 500*time.Millisecond, cfg.GetEnrichmentMaxDelay())
	assert.Equal(t, 30*time.Second, cfg.GetNameSweepInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.GetNameSweepInitialDelay())
	assert.Equal(t, 10*time.Minute, cfg.GetProjectionHorizon())
	assert.Equal(t, time.Minute, cfg.GetProjectionStep())
	assert.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, "kn", cfg.GetSpeedUnits())
	assert.Equal(t, 500.0, cfg.GetSelectionRadiusMeters())
}

func TestLoadDefaultsFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)

	// The shipped file and the built-in defaults agree.
	empty := Empty()
	assert.Equal(t, empty.GetServerURL(), cfg.GetServerURL())
	assert.Equal(t, empty.GetListen(), cfg.GetListen())
	assert.Equal(t, empty.GetExpiry(), cfg.GetExpiry())
	assert.Equal(t, empty.GetTrackThrottle(), cfg.GetTrackThrottle())
	assert.Equal(t, empty.GetEnrichmentMaxDelay(), cfg.GetEnrichmentMaxDelay())
	assert.Equal(t, empty.GetNameSweepInterval(), cfg.GetNameSweepInterval())
	assert.Equal(t, empty.GetNameSweepInitialDelay(), cfg.GetNameSweepInitialDelay())
	assert.Equal(t, empty.GetProjectionHorizon(), cfg.GetProjectionHorizon())
	assert.Equal(t, empty.GetProjectionStep(), cfg.GetProjectionStep())
	assert.Equal(t, empty.GetRequestTimeout(), cfg.GetRequestTimeout())
	assert.Equal(t, empty.GetSpeedUnits(), cfg.GetSpeedUnits())
	assert.Equal(t, empty.GetSelectionRadiusMeters(), cfg.GetSelectionRadiusMeters())
}

func TestLoadPartial(t *testing.T) {
	path := writeConfig(t, "partial.json", `{
  "server_url": "https://boat.local:3443",
  "expiry": "90s",
  "speed_units": "kmph",
  "selection_radius_m": 120.5
}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://boat.local:3443", cfg.GetServerURL())
	assert.Equal(t, 90*time.Second, cfg.GetExpiry())
	assert.Equal(t, "kmph", cfg.GetSpeedUnits())
	assert.Equal(t, 120.5, cfg.GetSelectionRadiusMeters())
	// Omitted fields keep defaults.
	assert.Equal(t, DefaultTrackThrottle, cfg.GetTrackThrottle())
	assert.Equal(t, DefaultListen, cfg.GetListen())
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "config.yaml", `{}`, ".json extension"},
		{"bad json", "c.json", `{"expiry":`, "parse config JSON"},
		{"bad url", "c.json", `{"server_url": "not a url"}`, "server_url"},
		{"bad listen", "c.json", `{"listen": "localhost"}`, "listen"},
		{"bad duration", "c.json", `{"expiry": "soon"}`, "expiry"},
		{"negative duration", "c.json", `{"track_throttle": "-5s"}`, "track_throttle"},
		{"bad units", "c.json", `{"speed_units": "knots"}`, "speed_units"},
		{"bad radius", "c.json", `{"selection_radius_m": -1}`, "selection_radius_m"},
		{"step beyond horizon", "c.json", `{"projection_horizon": "1m", "projection_step": "2m"}`, "projection_step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingAndOversized(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "stat config file")

	big := `{"server_url": "http://x", "pad": "` + strings.Repeat("x", maxFileSize) + `"}`
	_, err = Load(writeConfig(t, "big.json", big))
	assert.ErrorContains(t, err, "too large")
}

func TestOverrides(t *testing.T) {
	cfg := Empty()
	cfg.SetServerURL("http://10.0.0.5:3000")
	cfg.SetListen("127.0.0.1:9090")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://10.0.0.5:3000", cfg.GetServerURL())
	assert.Equal(t, "127.0.0.1:9090", cfg.GetListen())
}
