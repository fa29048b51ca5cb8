package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carelink/engage/internal/broker"
	"github.com/carelink/engage/internal/kafka"
	"github.com/carelink/engage/internal/metrics"
	"github.com/carelink/engage/internal/model"
	"github.com/carelink/engage/internal/repository"
	"go.uber.org/zap"
)

// TopicNotifications is the broker stream of directly-published events.
const TopicNotifications = "notification.events"

// audienceChannels maps a target audience to the channels serving it.
var audienceChannels = map[model.Audience][]model.Channel{
	model.AudienceDashboard: {model.ChannelFeed},
	model.AudienceMobile:    {model.ChannelPush, model.ChannelSMS},
}

// relationshipSource is the slice of the relationships repository the
// router uses.
type relationshipSource interface {
	CaregiversOf(ctx context.Context, seniorID string) ([]string, error)
}

// Router fans one event out to (recipient, channel) pairs. Failed
// deliveries are logged, counted and dropped; there is no retry or
// dead-letter at this layer.
type Router struct {
	Registry      Registry
	Relationships relationshipSource
	Audit         repository.DeliveriesRepository // optional
	Log           *zap.Logger
}

func NewRouter(reg Registry, rels relationshipSource, audit repository.DeliveriesRepository, log *zap.Logger) *Router {
	return &Router{Registry: reg, Relationships: rels, Audit: audit, Log: log}
}

// HandleRaw decodes and routes one wire message. Malformed bodies are
// dropped without touching the subscriber loop.
func (r *Router) HandleRaw(ctx context.Context, body []byte) {
	ev, err := model.ParseEvent(body)
	if err != nil {
		metrics.EventsTotal.WithLabelValues("invalid", "").Inc()
		r.Log.Warn("dropping malformed notification event", zap.Error(err))
		return
	}
	r.Handle(ctx, ev)
}

// Handle resolves recipients and channels and invokes each adapter.
func (r *Router) Handle(ctx context.Context, ev model.Event) {
	msg, ok := render(ev)
	if !ok {
		// Unknown tag: explicit no-op, not a silent drop.
		r.Log.Info("no notification template for event type", zap.String("type", ev.Type.String()))
		return
	}

	recipients, err := r.resolveRecipients(ctx, ev)
	if err != nil {
		r.Log.Error("resolve recipients", zap.String("user", ev.UserID), zap.Error(err))
		return
	}

	for _, recipient := range recipients {
		for audience, channels := range audienceChannels {
			if !ev.TargetsAudience(audience) {
				continue
			}
			for _, ch := range channels {
				r.deliver(ctx, ev, recipient, ch, msg)
			}
		}
	}
}

// resolveRecipients applies the relationship graph: the senior plus all
// linked caregivers. Targeting narrows channels, not recipients.
func (r *Router) resolveRecipients(ctx context.Context, ev model.Event) ([]string, error) {
	recipients := []string{ev.UserID}
	caregivers, err := r.Relationships.CaregiversOf(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	return append(recipients, caregivers...), nil
}

func (r *Router) deliver(ctx context.Context, ev model.Event, recipient string, ch model.Channel, msg Message) {
	adapter := r.Registry.Lookup(ch, r.Log)

	outcome := "sent"
	var derr error
	if err := adapter.Send(ctx, recipient, msg); err != nil {
		if errors.Is(err, ErrSkip) {
			outcome = "skipped"
		} else {
			outcome = "failed"
			derr = err
			r.Log.Error("delivery failed",
				zap.String("adapter", adapter.Name()),
				zap.String("channel", ch.String()),
				zap.String("recipient", recipient),
				zap.String("event", ev.ID),
				zap.Error(err),
			)
		}
	}

	metrics.NotificationsTotal.WithLabelValues(ch.String(), outcome).Inc()
	r.audit(ctx, ev, recipient, ch, outcome, derr)
}

func (r *Router) audit(ctx context.Context, ev model.Event, recipient string, ch model.Channel, outcome string, derr error) {
	if r.Audit == nil {
		return
	}
	errText := ""
	if derr != nil {
		errText = derr.Error()
	}
	if err := r.Audit.Append(ctx, repository.Delivery{
		EventID:     ev.ID,
		EventType:   ev.Type.String(),
		RecipientID: recipient,
		Channel:     ch.String(),
		Outcome:     outcome,
		Error:       errText,
	}); err != nil {
		r.Log.Warn("delivery audit append failed", zap.Error(err))
	}
}

// render builds the per-channel message for known event types.
func render(ev model.Event) (Message, bool) {
	switch ev.Type {
	case model.TypeBadgeAwarded:
		return Message{
			EventID:   ev.ID,
			EventType: ev.Type.String(),
			Title:     "New badge earned",
			Body:      fmt.Sprintf("Badge %q was just awarded.", ev.Badge),
		}, true
	case model.TypeEngagement:
		return Message{
			EventID:   ev.ID,
			EventType: ev.Type.String(),
			Title:     "Activity update",
			Body:      fmt.Sprintf("Recorded %s.", ev.Action),
		}, true
	case model.TypeNotification:
		return Message{
			EventID:   ev.ID,
			EventType: ev.Type.String(),
			Title:     "CareLink",
			Body:      string(ev.Payload),
		}, true
	default:
		return Message{}, false
	}
}

// RunBroker subscribes the broker notification stream until ctx ends.
func (r *Router) RunBroker(ctx context.Context, b broker.Client) (broker.Subscription, error) {
	return b.Subscribe(ctx, TopicNotifications, func(_ string, body []byte) {
		r.HandleRaw(ctx, body)
	})
}

// RunLog consumes the derived-event log (gamification.events) until ctx
// is cancelled, committing offsets only after the routing decision.
func (r *Router) RunLog(ctx context.Context, src *kafka.Consumer) error {
	for {
		m, err := src.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.Log.Warn("fetch failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}

		r.HandleRaw(ctx, m.Value)

		if err := src.Commit(ctx, m); err != nil {
			r.Log.Warn("commit failed", zap.Error(err))
		}
	}
}
