// Package config loads the node's bootstrap configuration: a YAML
// file overlaid with environment variables, so a deployment can ship
// one config file and override secrets/addresses per environment
// without templating the file itself.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the node's bootstrap configuration. Account CRUD, rate
// setting, and static-route setting are administered separately;
// this only carries what a node needs to start.
type Config struct {
	ILPAddress string `yaml:"ilp_address"`
	AssetCode  string `yaml:"asset_code"`
	AssetScale uint8  `yaml:"asset_scale"`

	RootSecret string `yaml:"root_secret"`

	HTTPListenAddress string `yaml:"http_listen_address"`
	BTPListenAddress  string `yaml:"btp_listen_address"`

	StorePath string `yaml:"store_path"`

	CCPBroadcastInterval time.Duration `yaml:"ccp_broadcast_interval"`
	ExchangeRateInterval time.Duration `yaml:"exchange_rate_interval"`
	ExchangeRateProvider string        `yaml:"exchange_rate_provider"`
	ExchangeRateSpread   float64       `yaml:"exchange_rate_spread"`

	Peers []PeerConfig `yaml:"peers"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// PeerConfig bootstraps one outgoing BTP/HTTP peer connection at
// startup.
type PeerConfig struct {
	AccountID string `yaml:"account_id"`
	BTPURL    string `yaml:"btp_url"`
	BTPToken  string `yaml:"btp_token"`
}

// Load reads path as YAML, then overlays environment variables (from
// the process environment and, if present, a ".env" file loaded via
// godotenv) onto the node-level fields that commonly vary per
// deployment.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	// Best-effort: a missing .env file is not an error, godotenv.Load
	// leaves the process environment untouched in that case.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if cfg.CCPBroadcastInterval == 0 {
		cfg.CCPBroadcastInterval = 30 * time.Second
	}
	if cfg.ExchangeRateInterval == 0 {
		cfg.ExchangeRateInterval = time.Minute
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ILP_ROOT_SECRET"); v != "" {
		cfg.RootSecret = v
	}
	if v := os.Getenv("ILP_HTTP_LISTEN_ADDRESS"); v != "" {
		cfg.HTTPListenAddress = v
	}
	if v := os.Getenv("ILP_BTP_LISTEN_ADDRESS"); v != "" {
		cfg.BTPListenAddress = v
	}
	if v := os.Getenv("ILP_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("ILP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ILP_EXCHANGE_RATE_SPREAD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ExchangeRateSpread = f
		}
	}
}
