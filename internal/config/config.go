// Package config loads the optional tool options file. Flags given on the
// command line always win; the file just pins project-wide defaults so CI and
// developers run with the same knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is looked up in the scan root, then the working directory.
const FileName = ".relay-dedup.yaml"

// Options mirrors the flag surface that makes sense to pin per project.
type Options struct {
	Output           string   `yaml:"output"`
	MinOccurrences   int      `yaml:"min_occurrences"`
	OrderInsensitive []string `yaml:"order_insensitive"`
	MaxPasses        int      `yaml:"max_passes"`
}

// Load reads an options file. A missing file returns zero Options and no
// error; a malformed one is a real error.
func Load(path string) (Options, error) {
	var opts Options
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse %s: %w", path, err)
	}
	if opts.MinOccurrences < 0 || opts.MaxPasses < 0 {
		return opts, fmt.Errorf("%s: negative values are not valid", path)
	}
	return opts, nil
}

// Discover finds the options file near the scan root, falling back to the
// working directory. Empty string when neither exists.
func Discover(scanRoot string) string {
	if scanRoot != "" {
		candidate := filepath.Join(scanRoot, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
