// Package request emulates synchronous request/response calls over the
// fire-and-forget broker. A caller publishes a payload carrying a
// correlation id and blocks until the matching reply arrives on
// <ns>/response/<id>, the per-call deadline fires, or the client is
// closed. Whichever happens first settles the call, exactly once.
package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carelink/engage/internal/broker"
	"github.com/carelink/engage/internal/metrics"
	"github.com/carelink/engage/internal/util"
)

var (
	// ErrTimeout: no matching reply within the deadline.
	ErrTimeout = errors.New("request: timed out")
	// ErrDisconnected: the client was closed while the call was in flight.
	ErrDisconnected = errors.New("request: disconnected")
)

// ReplyError carries an application-level failure signalled by the
// responder (ok=false envelope or an /error topic suffix).
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string { return "request: reply error: " + e.Message }

// Envelope is the wire shape in both directions. Requests carry
// CorrelationID and Payload; responses add OK/Error.
type Envelope struct {
	CorrelationID string          `json:"correlation_id"`
	OK            bool            `json:"ok"`
	Error         string          `json:"error,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

type result struct {
	payload []byte
	err     error
}

type pendingCall struct {
	done  chan result
	timer *time.Timer
}

// Client owns its pending table exclusively; several clients on one
// process never interfere. Any number of calls may be in flight at once.
type Client struct {
	broker    broker.Client
	namespace string
	timeout   time.Duration

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool
	sub     broker.Subscription
}

// DefaultTimeout applies when neither the constructor nor the call
// overrides the deadline.
const DefaultTimeout = 5000 * time.Millisecond

// New subscribes once to the full response namespace wildcard and
// returns a ready client.
func New(ctx context.Context, b broker.Client, namespace string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		broker:    b,
		namespace: namespace,
		timeout:   timeout,
		pending:   make(map[string]*pendingCall),
	}
	sub, err := b.Subscribe(ctx, broker.ResponsePattern(namespace), c.onResponse)
	if err != nil {
		return nil, fmt.Errorf("subscribe responses: %w", err)
	}
	c.sub = sub
	return c, nil
}

// Send publishes payload to topic and blocks for the reply. timeout <= 0
// uses the client default. Fails immediately with broker.ErrNotConnected
// when the transport is down.
func (c *Client) Send(ctx context.Context, topic string, payload []byte, timeout time.Duration) ([]byte, error) {
	if !c.broker.Connected() {
		return nil, broker.ErrNotConnected
	}
	if timeout <= 0 {
		timeout = c.timeout
	}

	id := util.New()
	body, err := json.Marshal(Envelope{CorrelationID: id, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	call := &pendingCall{done: make(chan result, 1)}

	// The timer is armed before the entry becomes visible: once the call
	// is in the table, Close and the timer callback may read call.timer
	// concurrently.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrDisconnected
	}
	call.timer = time.AfterFunc(timeout, func() {
		c.resolve(id, nil, ErrTimeout)
	})
	c.pending[id] = call
	c.mu.Unlock()
	metrics.PendingRequests.Inc()

	if err := c.broker.Publish(ctx, topic, body); err != nil {
		c.resolve(id, nil, err)
		return nil, (<-call.done).err
	}

	select {
	case r := <-call.done:
		return r.payload, r.err
	case <-ctx.Done():
		c.resolve(id, nil, ctx.Err())
		return nil, (<-call.done).err
	}
}

// resolve settles one pending call at most once. Removal under the lock
// guarantees that a late response, a late timer, or a double error is a
// no-op; each correlation id settles at most once.
func (c *Client) resolve(id string, payload []byte, err error) {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	metrics.PendingRequests.Dec()
	if call.timer != nil {
		call.timer.Stop()
	}
	call.done <- result{payload: payload, err: err}
}

// onResponse demultiplexes every inbound message on the response
// wildcard by the trailing correlation id segment of its topic.
func (c *Client) onResponse(topic string, payload []byte) {
	id, isErr, ok := broker.CorrelationID(c.namespace, topic)
	if !ok {
		return
	}
	if isErr {
		c.resolve(id, nil, &ReplyError{Message: string(payload)})
		return
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.resolve(id, nil, &ReplyError{Message: "unparseable reply: " + err.Error()})
		return
	}
	if !env.OK {
		c.resolve(id, nil, &ReplyError{Message: env.Error})
		return
	}
	c.resolve(id, env.Payload, nil)
}

// Pending reports the number of in-flight calls.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close rejects every outstanding call with ErrDisconnected, clears the
// table, unsubscribes and closes the underlying transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	outstanding := c.pending
	c.pending = make(map[string]*pendingCall)
	c.mu.Unlock()

	for _, call := range outstanding {
		metrics.PendingRequests.Dec()
		if call.timer != nil {
			call.timer.Stop()
		}
		call.done <- result{err: ErrDisconnected}
	}

	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	return c.broker.Close()
}
