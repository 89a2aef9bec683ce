package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30, cfg.Search.MaxCandidates)
	assert.Equal(t, 200, cfg.Elevation.MaxSamples)
	assert.Equal(t, 10.0, cfg.Elevation.MetresPerSample)
	assert.Equal(t, DefaultElevationURL, cfg.Elevation.URL)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avue.yaml")
	data := `
search:
  default_radius_km: 4.5
  timeout: 30s
elevation:
  min_interval: 1s
supports:
  catalog_file: /data/supports.yaml
tracing:
  enabled: true
  exporter: otlp
  sample_ratio: 0.25
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4.5, cfg.Search.DefaultRadiusKm)
	assert.Equal(t, 30*time.Second, cfg.Search.Timeout)
	assert.Equal(t, time.Second, cfg.Elevation.MinInterval)
	assert.Equal(t, "/data/supports.yaml", cfg.Supports.CatalogFile)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 30, cfg.Search.MaxCandidates)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyEnvFrom(t *testing.T) {
	env := map[string]string{
		"AVUE_MAX_CANDIDATES":       "12",
		"AVUE_RADIUS_KM":            "2.5",
		"AVUE_SEARCH_TIMEOUT":       "45s",
		"AVUE_SUPPORTS_URL":         "http://backend:5000",
		"AVUE_TRACING_ENABLED":      "true",
		"AVUE_TRACING_SAMPLE_RATIO": "0.5",
		"LOG_LEVEL":                 "debug",
		"AVUE_HTTP_ADDR":            "   ",
	}
	cfg := Defaults()
	err := cfg.ApplyEnvFrom(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Search.MaxCandidates)
	assert.Equal(t, 2.5, cfg.Search.DefaultRadiusKm)
	assert.Equal(t, 45*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "http://backend:5000", cfg.Supports.BackendURL)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRatio)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr, "blank values are ignored")
}

func TestApplyEnvFromReportsMalformedValues(t *testing.T) {
	env := map[string]string{
		"AVUE_MAX_CANDIDATES": "many",
		"AVUE_RADIUS_KM":      "3",
	}
	cfg := Defaults()
	err := cfg.ApplyEnvFrom(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AVUE_MAX_CANDIDATES")
	assert.Equal(t, 30, cfg.Search.MaxCandidates)
	assert.Equal(t, 3.0, cfg.Search.DefaultRadiusKm)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero candidates", mutate: func(c *Config) { c.Search.MaxCandidates = 0 }},
		{name: "negative radius", mutate: func(c *Config) { c.Search.DefaultRadiusKm = -1 }},
		{name: "one sample", mutate: func(c *Config) { c.Elevation.MaxSamples = 1 }},
		{name: "no elevation url", mutate: func(c *Config) { c.Elevation.URL = "" }},
		{name: "no support source", mutate: func(c *Config) { c.Supports.BackendURL = "" }},
		{name: "sample ratio", mutate: func(c *Config) { c.Tracing.SampleRatio = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
		})
	}
}
