// Package config loads the application configuration from YAML or JSON with
// optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/uberum/fleetsim/core/cost"
	"github.com/uberum/fleetsim/core/energy"
	"github.com/uberum/fleetsim/core/metrics"
	"github.com/uberum/fleetsim/core/routing"
	"github.com/uberum/fleetsim/infra/mqtt"
	"github.com/uberum/fleetsim/simulator"
)

type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Engine     routing.Config   `json:"engine"`
	Energy     energy.Config    `json:"energy"`
	Cost       cost.Config      `json:"cost"`
	Metrics    metrics.Config   `json:"metrics"`
	Feed       mqtt.Config      `json:"feed"`
	Simulation simulator.Config `json:"simulation"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("FLEETSIM_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "fleetsim_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize applies defaults to every section and validates the result.
func (c *Config) Finalize() error {
	c.Logging.SetDefaults()
	c.Engine.SetDefaults()
	c.Energy.SetDefaults()
	c.Cost.SetDefaults()
	c.Simulation.SetDefaults()
	c.Feed.SetDefaults()
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Energy.Validate(); err != nil {
		return err
	}
	return c.Simulation.Validate()
}
