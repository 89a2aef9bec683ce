// Package config holds the runtime configuration shared by the avue
// commands: search limits, upstream endpoints, listen addresses, logging and
// tracing. Values are layered as defaults, then a YAML file, then AVUE_*
// environment variables; command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/avue/internal/observability"
	"gopkg.in/yaml.v3"
)

// DefaultElevationURL is the IGN elevation-line REST endpoint.
const DefaultElevationURL = "https://wxs.ign.fr/choisirgeoportail/alti/rest/elevationLine.json"

// Config is the complete service configuration.
type Config struct {
	Search    SearchConfig                `yaml:"search"`
	Elevation ElevationConfig             `yaml:"elevation"`
	Supports  SupportsConfig              `yaml:"supports"`
	Server    ServerConfig                `yaml:"server"`
	Log       LogConfig                   `yaml:"log"`
	Tracing   observability.TracingConfig `yaml:"tracing"`
}

// SearchConfig bounds a single search.
type SearchConfig struct {
	MaxCandidates       int           `yaml:"max_candidates"`
	DefaultRadiusKm     float64       `yaml:"default_radius_km"`
	InstallationHeightM float64       `yaml:"installation_height_m"`
	Timeout             time.Duration `yaml:"timeout"`
}

// ElevationConfig configures the elevation-line client.
type ElevationConfig struct {
	URL             string        `yaml:"url"`
	MaxSamples      int           `yaml:"max_samples"`
	MetresPerSample float64       `yaml:"metres_per_sample"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	// MinInterval is the minimum spacing between two elevation requests.
	MinInterval time.Duration `yaml:"min_interval"`
}

// SupportsConfig selects where relay supports come from. A CatalogFile,
// when set, is used instead of BackendURL.
type SupportsConfig struct {
	BackendURL  string        `yaml:"backend_url"`
	CatalogFile string        `yaml:"catalog_file"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// ServerConfig holds listen addresses for `avue serve`.
type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Search: SearchConfig{
			MaxCandidates:       30,
			DefaultRadiusKm:     10,
			InstallationHeightM: 6,
			Timeout:             2 * time.Minute,
		},
		Elevation: ElevationConfig{
			URL:             DefaultElevationURL,
			MaxSamples:      200,
			MetresPerSample: 10,
			Timeout:         15 * time.Second,
			MaxRetries:      3,
			MinInterval:     200 * time.Millisecond,
		},
		Supports: SupportsConfig{
			BackendURL: "http://127.0.0.1:5000",
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Server: ServerConfig{
			GRPCAddr:    ":50051",
			HTTPAddr:    ":8080",
			MetricsAddr: ":9090",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Tracing: observability.TracingConfig{
			ServiceName: "avue",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// Load returns Defaults overlaid with the YAML file at path. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := Parse(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse overlays YAML data onto cfg. Keys absent from data keep their
// current values.
func Parse(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}

// ApplyEnv overlays environment variables using os.LookupEnv.
func (c *Config) ApplyEnv() error {
	return c.ApplyEnvFrom(os.LookupEnv)
}

// ApplyEnvFrom overlays variables read through lookup. Malformed values are
// reported together; well-formed ones are still applied.
func (c *Config) ApplyEnvFrom(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.int("AVUE_MAX_CANDIDATES", &c.Search.MaxCandidates)
	e.float("AVUE_RADIUS_KM", &c.Search.DefaultRadiusKm)
	e.float("AVUE_HEIGHT_M", &c.Search.InstallationHeightM)
	e.duration("AVUE_SEARCH_TIMEOUT", &c.Search.Timeout)

	e.string("AVUE_ELEVATION_URL", &c.Elevation.URL)
	e.int("AVUE_ELEVATION_MAX_SAMPLES", &c.Elevation.MaxSamples)
	e.int("AVUE_ELEVATION_RETRIES", &c.Elevation.MaxRetries)
	e.duration("AVUE_ELEVATION_TIMEOUT", &c.Elevation.Timeout)
	e.duration("AVUE_ELEVATION_MIN_INTERVAL", &c.Elevation.MinInterval)

	e.string("AVUE_SUPPORTS_URL", &c.Supports.BackendURL)
	e.string("AVUE_SUPPORTS_FILE", &c.Supports.CatalogFile)

	e.string("AVUE_GRPC_ADDR", &c.Server.GRPCAddr)
	e.string("AVUE_HTTP_ADDR", &c.Server.HTTPAddr)
	e.string("AVUE_METRICS_ADDR", &c.Server.MetricsAddr)

	e.string("LOG_LEVEL", &c.Log.Level)
	e.string("LOG_FORMAT", &c.Log.Format)

	e.bool("AVUE_TRACING_ENABLED", &c.Tracing.Enabled)
	e.string("AVUE_TRACING_EXPORTER", &c.Tracing.Exporter)
	e.string("AVUE_TRACING_SERVICE_NAME", &c.Tracing.ServiceName)
	e.string("AVUE_TRACING_ENVIRONMENT", &c.Tracing.Environment)
	e.float("AVUE_TRACING_SAMPLE_RATIO", &c.Tracing.SampleRatio)
	e.string("AVUE_OTLP_ENDPOINT", &c.Tracing.Endpoint)

	return errors.Join(e.errs...)
}

// Validate rejects configurations a search cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Search.MaxCandidates <= 0 {
		errs = append(errs, fmt.Errorf("search.max_candidates must be positive, got %d", c.Search.MaxCandidates))
	}
	if c.Search.DefaultRadiusKm <= 0 {
		errs = append(errs, fmt.Errorf("search.default_radius_km must be positive, got %g", c.Search.DefaultRadiusKm))
	}
	if c.Search.InstallationHeightM < 0 {
		errs = append(errs, fmt.Errorf("search.installation_height_m must not be negative, got %g", c.Search.InstallationHeightM))
	}
	if c.Elevation.URL == "" {
		errs = append(errs, errors.New("elevation.url is required"))
	}
	if c.Elevation.MaxSamples < 2 {
		errs = append(errs, fmt.Errorf("elevation.max_samples must be at least 2, got %d", c.Elevation.MaxSamples))
	}
	if c.Elevation.MetresPerSample <= 0 {
		errs = append(errs, fmt.Errorf("elevation.metres_per_sample must be positive, got %g", c.Elevation.MetresPerSample))
	}
	if c.Elevation.MaxRetries < 0 || c.Supports.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries must not be negative"))
	}
	if c.Supports.BackendURL == "" && c.Supports.CatalogFile == "" {
		errs = append(errs, errors.New("one of supports.backend_url or supports.catalog_file is required"))
	}
	if r := c.Tracing.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be within [0,1], got %g", r))
	}
	return errors.Join(errs...)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) string(key string, dst *string) {
	if v, ok := e.raw(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}

func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}
