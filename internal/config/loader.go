package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML, JSON or JSON5 file and merges
// an optional <name>.local.<ext> file over it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}

	local := localPath(path)
	if data, err := os.ReadFile(local); err == nil {
		var override Config
		if err := decode(local, data, &override); err != nil {
			return nil, err
		}
		if err := mergo.Merge(cfg, override, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge local config: %w", err)
		}
		slog.Info("merging config with local overrides", "local", local)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read local config: %w", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".json5":
		if err := json5.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON5 config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if err := json5.Unmarshal(data, cfg); err != nil {
				return fmt.Errorf("failed to parse config (tried YAML and JSON5): %w", err)
			}
		}
	}
	return nil
}

func localPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

// ValidateConfig validates the configuration for required fields and consistency
func ValidateConfig(cfg *Config) error {
	if cfg.Reader.ReaderURL == "" {
		return fmt.Errorf("reader.readerUrl is required")
	}

	switch cfg.Detection.Mode {
	case ModeWatch, ModeAuto, ModeStep:
	default:
		return fmt.Errorf("unknown detection mode: %s (valid: watch, auto, step)", cfg.Detection.Mode)
	}

	if cfg.Detection.MaxPages < 1 {
		return fmt.Errorf("detection.maxPages must be >= 1")
	}
	if cfg.Detection.PollIntervalMS <= 0 {
		return fmt.Errorf("detection.pollIntervalMs must be > 0")
	}
	if cfg.Detection.SettleDelayMS < 0 {
		return fmt.Errorf("detection.settleDelayMs must be >= 0")
	}
	if cfg.Detection.MaxStalls < 1 {
		cfg.Detection.MaxStalls = 1
	}
	if cfg.Detection.LookupRetries < 0 {
		return fmt.Errorf("detection.lookupRetries must be >= 0")
	}
	for _, p := range cfg.Detection.VolatilePatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("detection.volatilePatterns: %q: %w", p, err)
		}
	}

	validProbes := map[string]bool{
		ProbeNetwork: true, ProbeScript: true, ProbeDOM: true,
		ProbeRawHTML: true, ProbeImage: true, ProbeScreenshot: true,
	}
	for _, p := range cfg.Probes.Enabled {
		if !validProbes[p] {
			return fmt.Errorf("unknown probe: %s", p)
		}
	}

	validFormats := map[string]bool{"txt": true, "json": true, "epub": true}
	if len(cfg.Output.Formats) == 0 {
		return fmt.Errorf("output.formats must name at least one format")
	}
	for _, f := range cfg.Output.Formats {
		if !validFormats[f] {
			return fmt.Errorf("output.formats: unknown format %q (valid: txt, json, epub)", f)
		}
	}

	if cfg.HTTP.DelayMS < 0 {
		return fmt.Errorf("http.delayMs must be >= 0")
	}

	return nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(cfg *Config, path string) error {
	ext := strings.ToLower(filepath.Ext(path))

	var data []byte
	var err error

	switch ext {
	case ".json", ".json5":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// HasFormat reports whether format is among the configured output formats.
func (c *Config) HasFormat(format string) bool {
	for _, f := range c.Output.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// ProbeEnabled reports whether the named probe should run.
func (c *Config) ProbeEnabled(name string) bool {
	for _, p := range c.Probes.Enabled {
		if p == name {
			return true
		}
	}
	return false
}
