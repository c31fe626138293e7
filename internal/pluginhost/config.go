package pluginhost

import (
	"encoding/json"
	"fmt"
	"os"
)

// PluginConfig is one entry of config.json's "plugins" array.
type PluginConfig struct {
	Name    string          `json:"name"`
	Path    string          `json:"path"`
	Options json.RawMessage `json:"options,omitempty"`
}

// Config is the top-level shape of config.json (SPEC_FULL.md §6).
type Config struct {
	NumWorkers int            `json:"num_workers"`
	Plugins    []PluginConfig `json:"plugins"`
}

// LoadConfig reads and parses the plugin configuration file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// PluginsPath is where component paths in config.json are resolved
// relative to, per SPEC_FULL.md §4.5 ("Loading: components are read
// from ./plugins/<path>").
const PluginsPath = "./plugins"
