// Package relayconfig locates and validates the host compiler's
// configuration: a standalone relay.config.json, or a package.json carrying a
// "relay" key. The artifactDirectory field doubles as the default scan root.
package relayconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the subset of the host configuration the tool consumes.
type Config struct {
	ArtifactDirectory string // resolved against the config file's directory; empty if unset
	ConfigPath        string
}

type featureFlag struct {
	Kind string `json:"kind"`
}

type hostConfig struct {
	ArtifactDirectory string                 `json:"artifactDirectory"`
	FeatureFlags      map[string]featureFlag `json:"featureFlags"`
}

// Find searches upward from startDir for a host configuration. Returns nil
// when none exists; that is a warning condition, not an error.
func Find(startDir string) *Config {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil
	}
	for {
		if cfg := tryLoad(filepath.Join(dir, "relay.config.json"), false); cfg != nil {
			return cfg
		}
		if cfg := tryLoad(filepath.Join(dir, "package.json"), true); cfg != nil {
			return cfg
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

func tryLoad(path string, packageManifest bool) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var hc hostConfig
	if packageManifest {
		var manifest struct {
			Relay *hostConfig `json:"relay"`
		}
		if json.Unmarshal(data, &manifest) != nil || manifest.Relay == nil {
			return nil
		}
		hc = *manifest.Relay
	} else if json.Unmarshal(data, &hc) != nil {
		return nil
	}

	cfg := &Config{ConfigPath: path}
	if hc.ArtifactDirectory != "" {
		cfg.ArtifactDirectory = filepath.Join(filepath.Dir(path), hc.ArtifactDirectory)
	}
	return cfg
}

// Validate checks the two feature flags this tool depends on:
// the host's own structure deduping must be switched off (its flag enabled),
// and strict fragment alias enforcement must not be on, since enabling any
// feature flag flips the host into strict alias checking.
func Validate(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", configPath, err)
	}

	var hc hostConfig
	if filepath.Base(configPath) == "package.json" {
		var manifest struct {
			Relay *hostConfig `json:"relay"`
		}
		if err := json.Unmarshal(data, &manifest); err != nil {
			return fmt.Errorf("parse %s: %w", configPath, err)
		}
		if manifest.Relay == nil {
			return fmt.Errorf("%s: no \"relay\" key", configPath)
		}
		hc = *manifest.Relay
	} else if err := json.Unmarshal(data, &hc); err != nil {
		return fmt.Errorf("parse %s: %w", configPath, err)
	}

	if hc.FeatureFlags["disable_deduping_common_structures_in_artifacts"].Kind != "enabled" {
		return fmt.Errorf(`%s: the compiler's built-in deduplication must be disabled.

Add to the config:

  "featureFlags": {
    "disable_deduping_common_structures_in_artifacts": { "kind": "enabled" },
    "enforce_fragment_alias_where_ambiguous": { "kind": "disabled" }
  }

The first flag is required; the compiler's own dedup conflicts with this tool.
The second works around strict alias checking being switched on whenever any
feature flag is set`, configPath)
	}

	if hc.FeatureFlags["enforce_fragment_alias_where_ambiguous"].Kind == "enabled" {
		return fmt.Errorf(`%s: "enforce_fragment_alias_where_ambiguous" must be disabled; set it to { "kind": "disabled" }`, configPath)
	}

	return nil
}
