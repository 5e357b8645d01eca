package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	HTTP struct {
		Port            string        `koanf:"port"`
		RequestTimeout  time.Duration `koanf:"request_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"http"`

	Mongo struct {
		URI    string `koanf:"uri"`
		DBName string `koanf:"db_name"`
	} `koanf:"mongo"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
	} `koanf:"redis"`

	Postgres struct {
		Host          string `koanf:"host"`
		Port          int    `koanf:"port"`
		User          string `koanf:"user"`
		Password      string `koanf:"password"`
		DBName        string `koanf:"db_name"`
		MigrationsDir string `koanf:"migrations_dir"`
	} `koanf:"postgres"`

	Kafka struct {
		Brokers []string `koanf:"brokers"`
		Topic   string   `koanf:"topic"`
	} `koanf:"kafka"`

	Gateway struct {
		BaseURL        string        `koanf:"base_url"`
		KeyID          string        `koanf:"key_id"`
		Secret         string        `koanf:"secret"`
		RequestTimeout time.Duration `koanf:"request_timeout"`
	} `koanf:"gateway"`

	Checkout struct {
		Currency       string        `koanf:"currency"`
		SessionIdleTTL time.Duration `koanf:"session_idle_ttl"`
		PendingTTL     time.Duration `koanf:"pending_payment_ttl"`
		JanitorTick    time.Duration `koanf:"janitor_tick"`
		ShippingFee    float64       `koanf:"shipping_fee"`
	} `koanf:"checkout"`

	Identity struct {
		PollInterval time.Duration `koanf:"poll_interval"`
		AwaitTimeout time.Duration `koanf:"await_timeout"`
	} `koanf:"identity"`

	Security struct {
		AdminKey string `koanf:"admin_key"`
	} `koanf:"security"`
}

// Load reads the yaml file, then overlays environment variables
// (prefix STOREFRONT_, nested keys joined with __,
// e.g. STOREFRONT_POSTGRES__PASSWORD).
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load config file: %w", err)
	}

	if err := k.Load(env.Provider("STOREFRONT_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "STOREFRONT_")
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HTTP.Port == "" {
		return fmt.Errorf("http.port required")
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri required")
	}
	if c.Postgres.Host == "" {
		return fmt.Errorf("postgres.host required")
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url required")
	}
	return nil
}
