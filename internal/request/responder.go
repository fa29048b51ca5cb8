package request

import (
	"context"
	"encoding/json"

	"github.com/carelink/engage/internal/broker"
	"go.uber.org/zap"
)

// HandlerFunc serves one request payload. A returned error becomes an
// ok=false reply envelope; the caller sees it as a ReplyError.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Responder is the server half of the correlated call path: it
// subscribes a request topic and publishes a reply envelope to the
// response topic encoded by the request's correlation id.
type Responder struct {
	broker broker.Client
	ns     string
	log    *zap.Logger
	sub    broker.Subscription
}

func NewResponder(b broker.Client, namespace string, log *zap.Logger) *Responder {
	return &Responder{broker: b, ns: namespace, log: log}
}

// Serve subscribes topic and answers each request with h until Stop.
func (r *Responder) Serve(ctx context.Context, topic string, h HandlerFunc) error {
	sub, err := r.broker.Subscribe(ctx, topic, func(_ string, body []byte) {
		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil || env.CorrelationID == "" {
			r.log.Warn("responder: dropping unparseable request", zap.String("topic", topic), zap.Error(err))
			return
		}

		reply := Envelope{CorrelationID: env.CorrelationID, OK: true}
		if out, herr := h(ctx, env.Payload); herr != nil {
			reply.OK = false
			reply.Error = herr.Error()
		} else {
			reply.Payload = out
		}

		raw, err := json.Marshal(reply)
		if err != nil {
			r.log.Error("responder: marshal reply", zap.Error(err))
			return
		}
		rt := broker.ResponseTopic(r.ns, env.CorrelationID)
		if err := r.broker.Publish(ctx, rt, raw); err != nil {
			r.log.Error("responder: publish reply", zap.String("topic", rt), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	r.sub = sub
	return nil
}

func (r *Responder) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}
