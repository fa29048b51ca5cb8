package notifier

import (
	"context"
	"encoding/json"

	"github.com/carelink/engage/internal/broker"
	"github.com/carelink/engage/internal/model"
	"github.com/carelink/engage/internal/util"
	"go.uber.org/zap"
)

type feedSink interface {
	Insert(ctx context.Context, item model.FeedItem) error
}

// FeedAdapter writes a dashboard feed row and, when a broker is wired,
// publishes the rendered message to feed/<userId> so live dashboards
// see it without polling. The row insert decides the delivery outcome;
// a failed live publish is only logged.
type FeedAdapter struct {
	Feed   feedSink
	Broker broker.Client
	NS     string
	Log    *zap.Logger
}

func (f *FeedAdapter) Name() string { return "feed" }

func (f *FeedAdapter) Send(ctx context.Context, recipientID string, msg Message) error {
	if err := f.Feed.Insert(ctx, model.FeedItem{
		ID:        util.New(),
		UserID:    recipientID,
		Title:     msg.Title,
		Body:      msg.Body,
		EventType: msg.EventType,
	}); err != nil {
		return err
	}

	if f.Broker != nil && f.Broker.Connected() {
		raw, err := json.Marshal(msg)
		if err == nil {
			err = f.Broker.Publish(ctx, f.NS+"/feed/"+recipientID, raw)
		}
		if err != nil {
			f.Log.Warn("live feed publish failed",
				zap.String("recipient", recipientID), zap.Error(err))
		}
	}
	return nil
}
