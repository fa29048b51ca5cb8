package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Broker.Namespace != "carelink" {
		t.Errorf("broker.namespace = %q", cfg.Broker.Namespace)
	}
	if got := cfg.Broker.ResponseTimeout(); got != 5*time.Second {
		t.Errorf("ResponseTimeout = %v, want 5s", got)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "127.0.0.1:9092" {
		t.Errorf("kafka.brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.StartOffset != "earliest" {
		t.Errorf("kafka.start_offset = %q", cfg.Kafka.StartOffset)
	}
	if cfg.Adapters.Push.Kind != "mock" {
		t.Errorf("adapters.push.kind = %q", cfg.Adapters.Push.Kind)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "http:\n  addr: \":9999\"\nbroker:\n  namespace: \"test-ns\"\n  response_timeout_ms: 250\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Errorf("http.addr = %q, want :9999", cfg.HTTP.Addr)
	}
	if cfg.Broker.Namespace != "test-ns" {
		t.Errorf("broker.namespace = %q", cfg.Broker.Namespace)
	}
	if got := cfg.Broker.ResponseTimeout(); got != 250*time.Millisecond {
		t.Errorf("ResponseTimeout = %v, want 250ms", got)
	}
	// untouched keys keep their defaults
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("redis.addr = %q", cfg.Redis.Addr)
	}
}

func TestRouteFor(t *testing.T) {
	cfg := Config{Routing: map[string]Route{
		"engagement":   RouteLog,
		"notification": RouteDirect,
		"bogus":        Route("sideways"),
	}}

	tests := []struct {
		eventType string
		want      Route
	}{
		{"engagement", RouteLog},
		{"notification", RouteDirect},
		{"bogus", RouteLog},   // invalid value falls back
		{"unknown", RouteLog}, // unconfigured type defaults to the log
	}
	for _, tt := range tests {
		if got := cfg.RouteFor(tt.eventType); got != tt.want {
			t.Errorf("RouteFor(%q) = %q, want %q", tt.eventType, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Kafka:  KafkaConfig{Brokers: []string{"k:9092"}, GroupID: "g"},
			Redis:  RedisConfig{Addr: "r:6379"},
			Broker: BrokerConfig{Namespace: "ns"},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("complete config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no kafka brokers", func(c *Config) { c.Kafka.Brokers = nil }},
		{"no group id", func(c *Config) { c.Kafka.GroupID = "" }},
		{"no redis addr", func(c *Config) { c.Redis.Addr = "" }},
		{"no broker namespace", func(c *Config) { c.Broker.Namespace = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestResponseTimeoutDefault(t *testing.T) {
	var b BrokerConfig
	if got := b.ResponseTimeout(); got != 5*time.Second {
		t.Errorf("zero config timeout = %v, want 5s", got)
	}
}
