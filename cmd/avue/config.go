package main

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/avue/internal/config"
	"github.com/spf13/cobra"
)

// loadConfig resolves the configuration of cmd: defaults, then the YAML
// file, then environment variables, then flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, fmt.Errorf("environment: %w", err)
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flagString(cmd, "log-level", &cfg.Log.Level)
	flagString(cmd, "log-format", &cfg.Log.Format)
	flagString(cmd, "elevation-url", &cfg.Elevation.URL)
	flagDuration(cmd, "elevation-min-interval", &cfg.Elevation.MinInterval)
	flagString(cmd, "supports-url", &cfg.Supports.BackendURL)
	flagString(cmd, "supports-file", &cfg.Supports.CatalogFile)
	flagInt(cmd, "max-candidates", &cfg.Search.MaxCandidates)
	flagDuration(cmd, "search-timeout", &cfg.Search.Timeout)
	flagBool(cmd, "tracing", &cfg.Tracing.Enabled)

	// serve
	flagString(cmd, "grpc-addr", &cfg.Server.GRPCAddr)
	flagString(cmd, "http-addr", &cfg.Server.HTTPAddr)
	flagString(cmd, "metrics-addr", &cfg.Server.MetricsAddr)

	// search
	flagFloat(cmd, "height", &cfg.Search.InstallationHeightM)
	flagFloat(cmd, "radius", &cfg.Search.DefaultRadiusKm)
}

// The flag helpers only override dst when the flag exists on cmd and was
// set on the command line.

func flagString(cmd *cobra.Command, name string, dst *string) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

func flagInt(cmd *cobra.Command, name string, dst *int) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		*dst, _ = cmd.Flags().GetInt(name)
	}
}

func flagFloat(cmd *cobra.Command, name string, dst *float64) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		*dst, _ = cmd.Flags().GetFloat64(name)
	}
}

func flagBool(cmd *cobra.Command, name string, dst *bool) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		*dst, _ = cmd.Flags().GetBool(name)
	}
}

func flagDuration(cmd *cobra.Command, name string, dst *time.Duration) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		*dst, _ = cmd.Flags().GetDuration(name)
	}
}
