package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Adapters   AdaptersConfig   `mapstructure:"adapters"`
	Routing    map[string]Route `mapstructure:"routing"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

// Route decides which delivery path carries an event type. Exactly one
// path per type; the bridge rejects types routed through the log.
type Route string

const (
	RouteLog    Route = "log"
	RouteDirect Route = "direct"
)

// RouteFor returns the configured path for an event type, defaulting to
// the log path for unknown types.
func (c Config) RouteFor(eventType string) Route {
	if r, ok := c.Routing[eventType]; ok && (r == RouteLog || r == RouteDirect) {
		return r
	}
	return RouteLog
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
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
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
	StartOffset    string   `mapstructure:"start_offset"` // earliest | latest
}

type BrokerConfig struct {
	Namespace         string `mapstructure:"namespace"`
	ResponseTimeoutMs int    `mapstructure:"response_timeout_ms"`
}

// ResponseTimeout returns the correlated-request deadline, defaulting
// to 5s.
func (b BrokerConfig) ResponseTimeout() time.Duration {
	if b.ResponseTimeoutMs <= 0 {
		return 5000 * time.Millisecond
	}
	return time.Duration(b.ResponseTimeoutMs) * time.Millisecond
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"`
}

// AdapterConfig selects one channel adapter at startup. Kind "http"
// needs a base URL; anything else falls back to the mock adapter.
type AdapterConfig struct {
	Kind      string        `mapstructure:"kind"` // http | feed | mock
	BaseURL   string        `mapstructure:"base_url"`
	Path      string        `mapstructure:"path"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type AdaptersConfig struct {
	Push AdapterConfig `mapstructure:"push"`
	SMS  AdapterConfig `mapstructure:"sms"`
	Feed AdapterConfig `mapstructure:"feed"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (CARE_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (CARE_*)
	v.SetEnvPrefix("CARE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the fail-fast startup contract: messaging topology
// must be fully configured before any message is processed.
func (c Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers is required")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Broker.Namespace == "" {
		return fmt.Errorf("config: broker.namespace is required")
	}
	return nil
}
