package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/votqanh/go-wikimediator/mediator"
	"github.com/votqanh/go-wikimediator/server"
	"github.com/votqanh/go-wikimediator/tbcache"
	"github.com/votqanh/go-wikimediator/wikisource"
	"gopkg.in/yaml.v3"
)

// Config is the contents of the configuration file.
type Config struct {
	Listen        string `yaml:"listen"`
	MaxClients    int    `yaml:"max_clients"`
	MetricsListen string `yaml:"metrics_listen"`
	StateDir      string `yaml:"state_dir"`
	LogLevel      string `yaml:"log_level"`

	Cache struct {
		Capacity int           `yaml:"capacity"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	Source struct {
		APIURL       string        `yaml:"api_url"`
		UserAgent    string        `yaml:"user_agent"`
		RetryMax     int           `yaml:"retry_max"`
		LinkLimit    int           `yaml:"link_limit"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
	} `yaml:"source"`

	PathFinder struct {
		MaxBranches int `yaml:"max_branches"`
		MaxDepth    int `yaml:"max_depth"`
	} `yaml:"path_finder"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Listen:        "127.0.0.1:9012",
		MaxClients:    server.DefaultMaxClients,
		MetricsListen: "127.0.0.1:9013",
		StateDir:      "./state",
		LogLevel:      "info",
	}
	cfg.Cache.Capacity = tbcache.DefaultCapacity
	cfg.Cache.TTL = tbcache.DefaultTTL
	cfg.Source.APIURL = wikisource.DefaultAPIURL
	cfg.Source.RetryMax = 3
	cfg.Source.FetchTimeout = mediator.DefaultFetchTimeout
	return cfg
}

// loadConfig reads the configuration file at path. If there is no file, one
// holding the default configuration is written.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return createDefaultConfig(path)
		}
		return nil, err
	}

	cfg := defaultConfig()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func createDefaultConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	if err = os.WriteFile(path, data, 0644); err != nil {
		return nil, err
	}
	log.Infow("Wrote default config", "path", path)
	return cfg, nil
}
