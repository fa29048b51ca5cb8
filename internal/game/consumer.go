package game

import (
	"context"
	"errors"
	"time"

	"github.com/carelink/engage/internal/kafka"
	"github.com/carelink/engage/internal/metrics"
	"github.com/carelink/engage/internal/model"
	"github.com/carelink/engage/internal/repository"
	"github.com/carelink/engage/internal/util"
	"go.uber.org/zap"
)

const (
	// TopicEngagement is the inbound log, partitioned by userId.
	TopicEngagement = "engagement.events"
	// TopicGamification carries derived events (badge awards).
	TopicGamification = "gamification.events"
)

// Publisher is the outbound half for derived events.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Consumer is the engagement consumer: one message at a time per
// partition, offset committed only after the processing decision.
type Consumer struct {
	Source *kafka.Consumer
	States repository.GameStateRepository
	Out    Publisher
	Log    *zap.Logger
}

func NewConsumer(src *kafka.Consumer, states repository.GameStateRepository, out Publisher, log *zap.Logger) *Consumer {
	return &Consumer{Source: src, States: states, Out: out, Log: log}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Log.Warn("fetch failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}

		// Retry in place on repository failures: committing past a
		// transient DB error would lose the event for good. Skips and
		// replays return nil and advance the offset.
		for {
			perr := c.processOne(ctx, m.Value)
			if perr == nil {
				break
			}
			if ctx.Err() != nil {
				return nil
			}
			c.Log.Warn("processing failed, retrying", zap.Error(perr))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}

		if err := c.Source.Commit(ctx, m); err != nil {
			c.Log.Warn("commit failed", zap.Error(err))
		}
	}
}

// processOne applies one event. Malformed bodies, unknown actions and
// replays are logged, counted and skipped. A non-nil return means the
// repository failed and the message must not be committed yet.
func (c *Consumer) processOne(ctx context.Context, body []byte) error {
	ev, err := model.ParseEvent(body)
	if err != nil {
		metrics.EventsTotal.WithLabelValues("invalid", "").Inc()
		c.Log.Warn("dropping malformed event", zap.Error(err))
		return nil
	}

	tr, ok := transitionFor(ev.Action)
	if !ok {
		metrics.EventsTotal.WithLabelValues("unknown", ev.Action.String()).Inc()
		c.Log.Info("no transition for action", zap.String("action", ev.Action.String()), zap.String("user", ev.UserID))
		return nil
	}

	st, err := c.States.Load(ctx, ev.UserID)
	if err != nil {
		metrics.EventsTotal.WithLabelValues("error", ev.Action.String()).Inc()
		c.Log.Error("load state", zap.String("user", ev.UserID), zap.Error(err))
		return err
	}

	tr(&st, ev)
	newBadges := evaluateBadges(&st)

	key := ev.DedupKey()
	if err := c.States.Apply(ctx, st, key, newBadges); err != nil {
		if errors.Is(err, repository.ErrDuplicateEvent) {
			metrics.EventsTotal.WithLabelValues("duplicate", ev.Action.String()).Inc()
			c.Log.Info("replayed event skipped", zap.String("event", key), zap.String("user", ev.UserID))
			return nil
		}
		metrics.EventsTotal.WithLabelValues("error", ev.Action.String()).Inc()
		c.Log.Error("apply state", zap.String("user", ev.UserID), zap.Error(err))
		return err
	}

	metrics.EventsTotal.WithLabelValues("processed", ev.Action.String()).Inc()

	// Derived events after the state commit. A publish failure never
	// rolls the state back; it is counted so the gap stays visible.
	for _, badge := range newBadges {
		metrics.BadgesAwardedTotal.Inc()
		if err := c.publishBadge(ctx, ev, badge); err != nil {
			metrics.PublishFailuresTotal.WithLabelValues(TopicGamification).Inc()
			c.Log.Error("publish badge_awarded", zap.String("badge", badge), zap.String("user", ev.UserID), zap.Error(err))
		}
	}
	return nil
}

func (c *Consumer) publishBadge(ctx context.Context, src model.Event, badge string) error {
	derived := model.Event{
		ID:        util.New(),
		Type:      model.TypeBadgeAwarded,
		UserID:    src.UserID,
		Badge:     badge,
		Target:    src.Target,
		Timestamp: time.Now().UTC(),
	}
	raw, err := derived.Encode()
	if err != nil {
		return err
	}
	return c.Out.Publish(ctx, []byte(src.UserID), raw)
}
