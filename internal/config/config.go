package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"opswatch/internal/logging"
)

// Storage backends understood by the state repository.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Upstream    UpstreamConfig    `mapstructure:"upstream"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Probe       ProbeConfig       `mapstructure:"probe"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	DecisionLog DecisionLogConfig `mapstructure:"decision_log"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Server      ServerConfig      `mapstructure:"server"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StorageConfig selects where engine state is kept.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the postgres backend.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// UpstreamConfig points at the marketplace REST API.
type UpstreamConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Token        string        `mapstructure:"token"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	HealthPath   string        `mapstructure:"health_path"`
	ProductsPath string        `mapstructure:"products_path"`
	OrdersPath   string        `mapstructure:"orders_path"`
	RidersPath   string        `mapstructure:"riders_path"`
	DigestPath   string        `mapstructure:"digest_path"`
}

// SchedulerConfig governs refresh cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	CatalogInterval time.Duration `mapstructure:"catalog_interval"`
}

// ProbeConfig tunes latency classification and delta detection.
type ProbeConfig struct {
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	DeltaPct      float64       `mapstructure:"delta_pct"`
}

// CatalogConfig bounds the catalog scan.
type CatalogConfig struct {
	ScanLimit int `mapstructure:"scan_limit"`
}

// DecisionLogConfig bounds the decision log.
type DecisionLogConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// AlertingConfig routes accepted decision log entries to external channels.
type AlertingConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	MinSeverity string         `mapstructure:"min_severity"`
	Timeout     time.Duration  `mapstructure:"timeout"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
}

// TelegramConfig describes Telegram alert parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// KafkaConfig describes the decision topic.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ServerConfig sets the HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OPSWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "opswatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.stderr", true)

	v.SetDefault("storage.backend", BackendBadger)
	v.SetDefault("storage.path", "./data/opswatch")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("upstream.base_url", "http://localhost:8080/api")
	v.SetDefault("upstream.token", "")
	v.SetDefault("upstream.timeout", "8s")
	v.SetDefault("upstream.user_agent", "opswatch/1.0")
	v.SetDefault("upstream.health_path", "/health")
	v.SetDefault("upstream.products_path", "/products")
	v.SetDefault("upstream.orders_path", "/admin/orders")
	v.SetDefault("upstream.riders_path", "/admin/riders")
	v.SetDefault("upstream.digest_path", "/admin/digest")

	v.SetDefault("scheduler.interval", "30s")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.catalog_interval", "5m")

	v.SetDefault("probe.slow_threshold", "2500ms")
	v.SetDefault("probe.delta_pct", 0.30)

	v.SetDefault("catalog.scan_limit", 1000)

	v.SetDefault("decision_log.max_entries", 500)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_severity", "high")
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.kafka.enabled", false)
	v.SetDefault("alerting.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("alerting.kafka.topic", "opswatch-decisions")

	v.SetDefault("server.addr", ":8088")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendBadger:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the badger backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.CatalogInterval <= 0 {
		return fmt.Errorf("scheduler.catalog_interval must be greater than zero")
	}
	if c.Probe.SlowThreshold <= 0 {
		return fmt.Errorf("probe.slow_threshold must be greater than zero")
	}
	if c.Probe.DeltaPct <= 0 {
		return fmt.Errorf("probe.delta_pct must be greater than zero")
	}
	if c.Catalog.ScanLimit < 0 {
		return fmt.Errorf("catalog.scan_limit cannot be negative")
	}
	if c.DecisionLog.MaxEntries < 0 {
		return fmt.Errorf("decision_log.max_entries cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	if c.Alerting.Kafka.Enabled && (len(c.Alerting.Kafka.Brokers) == 0 || c.Alerting.Kafka.Topic == "") {
		return fmt.Errorf("alerting.kafka requires brokers and topic")
	}
	return nil
}
