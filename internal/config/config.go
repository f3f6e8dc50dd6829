package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Account AccountConfig `yaml:"account" mapstructure:"account"`
	API     APIConfig     `yaml:"api" mapstructure:"api"`
	Push    PushConfig    `yaml:"push" mapstructure:"push"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
}

type AccountConfig struct {
	Email    string `yaml:"email" mapstructure:"email"`
	Password string `yaml:"password" mapstructure:"password"`
}

type APIConfig struct {
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	TokenValidity time.Duration `yaml:"token_validity" mapstructure:"token_validity"`
	PollInterval  time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	// UsageField and CostField select the total field in meter-data
	// responses; the upstream has shipped both fae_cost and
	// fae_total_cost depending on revision.
	UsageField string `yaml:"usage_field" mapstructure:"usage_field"`
	CostField  string `yaml:"cost_field" mapstructure:"cost_field"`
	// Combined selects the later API revision with a single
	// price-and-usage endpoint.
	Combined bool   `yaml:"combined" mapstructure:"combined"`
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

type PushConfig struct {
	URL            string        `yaml:"url" mapstructure:"url"`
	ReconnectEvery time.Duration `yaml:"reconnect_every" mapstructure:"reconnect_every"`
	BackoffBase    time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`
	BackoffMax     time.Duration `yaml:"backoff_max" mapstructure:"backoff_max"`
	PingInterval   time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
}

type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "pstryk-bridge"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PSTRYK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := DefaultConfig()

	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)

	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, err
	}

	cfg.Account.Email = ExpandEnvVars(cfg.Account.Email)
	cfg.Account.Password = ExpandEnvVars(cfg.Account.Password)

	return cfg, nil
}

func Save(cfg *Config, configFile string) error {
	path := configFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		path = filepath.Join(home, ".config", "pstryk-bridge", "config.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:       "https://api.pstryk.pl",
			Timeout:       10 * time.Second,
			TokenValidity: 10 * time.Minute,
			PollInterval:  3 * time.Minute,
			UsageField:    "fae_usage",
			CostField:     "fae_cost",
			Timezone:      "Europe/Warsaw",
		},
		Push: PushConfig{
			URL:            "wss://api.pstryk.pl/ws/meter-data/{meter_id}/",
			ReconnectEvery: 2 * time.Hour,
			BackoffBase:    5 * time.Second,
			BackoffMax:     300 * time.Second,
			PingInterval:   30 * time.Second,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 3456,
		},
	}
}

// Validate checks the fields that cannot have usable defaults.
func (c *Config) Validate() error {
	if c.Account.Email == "" || c.Account.Password == "" {
		return fmt.Errorf("account.email and account.password are required")
	}
	if _, err := time.LoadLocation(c.API.Timezone); err != nil {
		return fmt.Errorf("invalid api.timezone %q: %w", c.API.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone, falling back to the system
// local zone if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.API.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func ExpandEnvVars(s string) string {
	return os.ExpandEnv(s)
}
