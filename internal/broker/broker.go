// Package broker is the publish/subscribe transport abstraction. Topics
// are slash-separated; a trailing "*" in a subscription pattern matches
// any suffix. The Redis implementation carries the request/response and
// notification fan-out paths; the durable ordered log lives in
// internal/kafka.
package broker

import (
	"context"
	"errors"
	"strings"
)

// ErrNotConnected is returned by Publish when the transport is down.
// No queueing, no implicit retry.
var ErrNotConnected = errors.New("broker: not connected")

// Handler receives one inbound message. It runs on the subscription's
// pump goroutine, so messages on the same subscription are handled one
// at a time; a slow handler delays later messages, never other
// subscriptions.
type Handler func(topic string, payload []byte)

type Subscription interface {
	Unsubscribe() error
}

type Client interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, pattern string, h Handler) (Subscription, error)
	Connected() bool
	Close() error
}

// ResponseTopic builds the reply topic encoded by a correlation id.
func ResponseTopic(ns, correlationID string) string {
	return ns + "/response/" + correlationID
}

// ResponsePattern is the wildcard a client subscribes to once, at
// startup, to demultiplex all replies in its namespace.
func ResponsePattern(ns string) string {
	return ns + "/response/*"
}

// CorrelationID extracts the correlation id from a response topic and
// reports whether the topic carries the error designation
// (<ns>/response/<id>/error). ok is false for topics outside the
// response namespace.
func CorrelationID(ns, topic string) (id string, isErr bool, ok bool) {
	prefix := ns + "/response/"
	rest, found := strings.CutPrefix(topic, prefix)
	if !found || rest == "" {
		return "", false, false
	}
	parts := strings.SplitN(rest, "/", 2)
	id = parts[0]
	if id == "" {
		return "", false, false
	}
	isErr = len(parts) == 2 && parts[1] == "error"
	return id, isErr, true
}
