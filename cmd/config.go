package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/shufflefl/sim/federation"
)

// envPrefix namespaces every environment override, e.g. SHUFFLEFL_ROUNDS or
// SHUFFLEFL_OPTIMIZER_MAX_EVALUATIONS.
const envPrefix = "SHUFFLEFL_"

// loadConfig layers the run configuration: defaults, then the YAML file at
// path (when set), then SHUFFLEFL_* environment variables.
func loadConfig(path string) (federation.Config, error) {
	cfg := federation.DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		// Strict parsing: unknown keys are typos, not extensions.
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return cfg, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	return cfg, nil
}

// applyFlags overrides cfg with the flags the user set explicitly, so flag
// defaults never clobber values from the file or environment.
func applyFlags(cmd *cobra.Command, cfg *federation.Config) {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("rounds") {
		cfg.Rounds = rounds
	}
	if flags.Changed("users") {
		cfg.Users = users
	}
	if flags.Changed("devices") {
		cfg.Devices = devices
	}
	if flags.Changed("parallelism") {
		cfg.Parallelism = parallelism
	}
	if flags.Changed("baseline") {
		cfg.Baseline = baseline
	}
	if flags.Changed("trace-level") {
		cfg.TraceLevel = traceLevel
	}
	if flags.Changed("run-id") {
		cfg.RunID = runID
	}
}

// resolveConfig loads, overrides and validates the configuration for cmd.
func resolveConfig(cmd *cobra.Command) (federation.Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
