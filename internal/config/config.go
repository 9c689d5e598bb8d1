package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// EnvPrefix namespaces environment overrides, e.g. WSA_HUBSPOT_TOKEN.
const EnvPrefix = "WSA"

// ---- Root ----

type Config struct {
	Log        LogConfig         `mapstructure:"log"`
	HTTP       HTTPConfig        `mapstructure:"http"`
	MySQL      DatabaseConfig    `mapstructure:"mysql"`
	ClickHouse DatabaseConfig    `mapstructure:"clickhouse"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Kafka      KafkaConfig       `mapstructure:"kafka"`
	RateLimit  RateLimitConfig   `mapstructure:"rate_limit"`
	Admin      AdminConfig       `mapstructure:"admin"`
	Awards     AwardsConfig      `mapstructure:"awards"`
	Sync       SyncConfig        `mapstructure:"sync"`
	HubSpot    IntegrationConfig `mapstructure:"hubspot"`
	Loops      IntegrationConfig `mapstructure:"loops"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	TriggerTopic   string        `mapstructure:"trigger_topic"`
	GroupID        string        `mapstructure:"group_id"`
	MinBytes       int           `mapstructure:"min_bytes"`
	MaxBytes       int           `mapstructure:"max_bytes"`
	CommitInterval int           `mapstructure:"commit_interval_ms"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
}

// Enabled reports whether sync trigger messages go through Kafka.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.TriggerTopic != ""
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

type AdminConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

type AwardsConfig struct {
	Year    string `mapstructure:"year"`
	SiteURL string `mapstructure:"site_url"`
}

type SyncConfig struct {
	// Secret authenticates cron calls to POST /api/sync/:target; empty disables the check.
	Secret          string        `mapstructure:"secret"`
	BatchSize       int           `mapstructure:"batch_size"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	Inline          bool          `mapstructure:"inline"`
	InlineTimeout   time.Duration `mapstructure:"inline_timeout"`
	NotifyTimeout   time.Duration `mapstructure:"notify_timeout"`
	DeadOnPermanent bool          `mapstructure:"dead_on_permanent"`
	Interval        time.Duration `mapstructure:"interval"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

// IntegrationConfig configures one external system.
type IntegrationConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	RPS       float64       `mapstructure:"rps"`
	Burst     int           `mapstructure:"burst"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (WSA_*).
// A .env file in the working directory is loaded first; real env vars win.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// env override (WSA_SYNC_SECRET, WSA_HUBSPOT_TOKEN, ...)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
