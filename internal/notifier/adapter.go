// Package notifier resolves recipients and channels for incoming events
// and dispatches to pluggable delivery adapters.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/carelink/engage/internal/broker"
	"github.com/carelink/engage/internal/config"
	"github.com/carelink/engage/internal/model"
	"go.uber.org/zap"
)

// ErrSkip means no eligible destination exists for the recipient on
// this channel. Counted as skipped, never as failed.
var ErrSkip = errors.New("notifier: no destination, skipping")

// Message is the rendered notification handed to adapters.
type Message struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// Adapter delivers to one notification medium. Selection happens once
// at startup from config, keyed by the channel enum.
type Adapter interface {
	Name() string
	Send(ctx context.Context, recipientID string, msg Message) error
}

// MockAdapter is the static fail-safe fallback: a misconfigured channel
// becomes a logged no-op instead of a crashed router.
type MockAdapter struct {
	Channel model.Channel
	Log     *zap.Logger
}

func (m *MockAdapter) Name() string { return "mock-" + m.Channel.String() }

func (m *MockAdapter) Send(_ context.Context, recipientID string, msg Message) error {
	m.Log.Info("mock delivery",
		zap.String("channel", m.Channel.String()),
		zap.String("recipient", recipientID),
		zap.String("event", msg.EventID),
	)
	return nil
}

// Registry maps the channel enum to its concrete adapter. Built once at
// startup; no runtime loading.
type Registry map[model.Channel]Adapter

// Lookup never fails: unknown or unconfigured channels get a mock.
func (r Registry) Lookup(ch model.Channel, log *zap.Logger) Adapter {
	if a, ok := r[ch]; ok && a != nil {
		return a
	}
	log.Warn("no adapter configured, falling back to mock", zap.String("channel", ch.String()))
	return &MockAdapter{Channel: ch, Log: log}
}

// Deps carries the resolution sources adapters need. Broker is
// optional; when set, the feed adapter also publishes rendered
// messages to feed/<userId> for live dashboards.
type Deps struct {
	Devices      deviceSource
	Destinations destinationSource
	Feed         feedSink
	Broker       broker.Client
	Namespace    string
	Log          *zap.Logger
}

// BuildRegistry wires one adapter per channel from config. "http" kinds
// without a base URL degrade to mock with a warning.
func BuildRegistry(cfg config.AdaptersConfig, deps Deps) Registry {
	reg := Registry{}
	reg[model.ChannelPush] = buildHTTPKind(model.ChannelPush, cfg.Push, deps, newPushAdapter)
	reg[model.ChannelSMS] = buildHTTPKind(model.ChannelSMS, cfg.SMS, deps, newSMSAdapter)

	if cfg.Feed.Kind == "feed" && deps.Feed != nil {
		reg[model.ChannelFeed] = &FeedAdapter{Feed: deps.Feed, Broker: deps.Broker, NS: deps.Namespace, Log: deps.Log}
	} else {
		deps.Log.Warn("feed adapter not configured, using mock")
		reg[model.ChannelFeed] = &MockAdapter{Channel: model.ChannelFeed, Log: deps.Log}
	}

	reg[model.ChannelMock] = &MockAdapter{Channel: model.ChannelMock, Log: deps.Log}
	return reg
}

func buildHTTPKind(ch model.Channel, ac config.AdapterConfig, deps Deps, build func(config.AdapterConfig, Deps) (Adapter, error)) Adapter {
	if ac.Kind != "http" {
		return &MockAdapter{Channel: ch, Log: deps.Log}
	}
	a, err := build(ac, deps)
	if err != nil {
		deps.Log.Warn("adapter misconfigured, falling back to mock",
			zap.String("channel", ch.String()), zap.Error(err))
		return &MockAdapter{Channel: ch, Log: deps.Log}
	}
	return a
}

func requireBaseURL(ac config.AdapterConfig) error {
	if ac.BaseURL == "" {
		return fmt.Errorf("base_url is required for http adapters")
	}
	return nil
}
