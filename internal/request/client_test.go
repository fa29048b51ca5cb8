package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/carelink/engage/internal/broker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fakeBroker routes published messages to matching pattern handlers and
// records everything it sent, so tests control reply timing exactly.
type fakeBroker struct {
	mu        sync.Mutex
	connected bool
	handlers  map[string]broker.Handler
	published []fakeMsg
}

type fakeMsg struct {
	topic   string
	payload []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{connected: true, handlers: map[string]broker.Handler{}}
}

func (f *fakeBroker) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return broker.ErrNotConnected
	}
	f.published = append(f.published, fakeMsg{topic: topic, payload: payload})
	var matched []broker.Handler
	for pattern, h := range f.handlers {
		if topicMatches(pattern, topic) {
			matched = append(matched, h)
		}
	}
	f.mu.Unlock()

	for _, h := range matched {
		h(topic, payload)
	}
	return nil
}

func (f *fakeBroker) Subscribe(_ context.Context, pattern string, h broker.Handler) (broker.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, broker.ErrNotConnected
	}
	f.handlers[pattern] = h
	return fakeSub{}, nil
}

func (f *fakeBroker) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBroker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeBroker) lastRequest(t *testing.T) (id string, payload []byte) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("nothing published")
	}
	var env Envelope
	if err := json.Unmarshal(f.published[len(f.published)-1].payload, &env); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	return env.CorrelationID, env.Payload
}

type fakeSub struct{}

func (fakeSub) Unsubscribe() error { return nil }

func topicMatches(pattern, topic string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}

func newTestClient(t *testing.T, fb *fakeBroker) *Client {
	t.Helper()
	c, err := New(context.Background(), fb, "care", time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// reply injects a response as the broker would deliver it.
func (f *fakeBroker) reply(id string, env Envelope) {
	env.CorrelationID = id
	raw, _ := json.Marshal(env)
	f.mu.Lock()
	h := f.handlers["care/response/*"]
	f.mu.Unlock()
	h(broker.ResponseTopic("care", id), raw)
}

func TestSend_Resolve(t *testing.T) {
	fb := newFakeBroker()
	c := newTestClient(t, fb)

	done := make(chan struct{})
	var got []byte
	var sendErr error
	go func() {
		defer close(done)
		got, sendErr = c.Send(context.Background(), "care/request/ping", []byte(`{"n":1}`), 0)
	}()

	waitForPending(t, c, 1)
	id, payload := fb.lastRequest(t)
	if string(payload) != `{"n":1}` {
		t.Fatalf("request payload: got %s", payload)
	}
	fb.reply(id, Envelope{OK: true, Payload: json.RawMessage(`{"pong":true}`)})

	<-done
	if sendErr != nil {
		t.Fatalf("send: %v", sendErr)
	}
	if string(got) != `{"pong":true}` {
		t.Fatalf("reply payload: got %s", got)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending after resolve: %d", c.Pending())
	}
}

func TestSend_AtMostOnce(t *testing.T) {
	fb := newFakeBroker()
	c := newTestClient(t, fb)

	done := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "care/request/x", []byte(`1`), 0)
		done <- err
	}()

	waitForPending(t, c, 1)
	id, _ := fb.lastRequest(t)

	fb.reply(id, Envelope{OK: true, Payload: json.RawMessage(`"first"`)})
	// duplicate response and a late error are both no-ops
	fb.reply(id, Envelope{OK: true, Payload: json.RawMessage(`"second"`)})
	fb.reply(id, Envelope{OK: false, Error: "late error"})

	if err := <-done; err != nil {
		t.Fatalf("first resolution should win, got %v", err)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending: %d", c.Pending())
	}
}

func TestSend_Timeout(t *testing.T) {
	fb := newFakeBroker()
	c := newTestClient(t, fb)

	start := time.Now()
	_, err := c.Send(context.Background(), "care/request/slow", []byte(`1`), 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("rejected before the deadline: %s", elapsed)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending entry must be absent after timeout, have %d", c.Pending())
	}

	// a response arriving after timeout is a no-op
	id, _ := fb.lastRequest(t)
	fb.reply(id, Envelope{OK: true, Payload: json.RawMessage(`"late"`)})
	if c.Pending() != 0 {
		t.Fatalf("pending: %d", c.Pending())
	}
}

func TestSend_ReplyError(t *testing.T) {
	fb := newFakeBroker()
	c := newTestClient(t, fb)

	done := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "care/request/x", []byte(`1`), 0)
		done <- err
	}()

	waitForPending(t, c, 1)
	id, _ := fb.lastRequest(t)
	fb.reply(id, Envelope{OK: false, Error: "boom"})

	err := <-done
	var re *ReplyError
	if !errors.As(err, &re) {
		t.Fatalf("got %v, want ReplyError", err)
	}
	if re.Message != "boom" {
		t.Fatalf("message: got %q", re.Message)
	}
}

func TestSend_ErrorTopicSegment(t *testing.T) {
	fb := newFakeBroker()
	c := newTestClient(t, fb)

	done := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "care/request/x", []byte(`1`), 0)
		done <- err
	}()

	waitForPending(t, c, 1)
	id, _ := fb.lastRequest(t)

	fb.mu.Lock()
	h := fb.handlers["care/response/*"]
	fb.mu.Unlock()
	h(broker.ResponseTopic("care", id)+"/error", []byte("downstream exploded"))

	err := <-done
	var re *ReplyError
	if !errors.As(err, &re) {
		t.Fatalf("got %v, want ReplyError", err)
	}
	if re.Message != "downstream exploded" {
		t.Fatalf("message: got %q", re.Message)
	}
}

func TestSend_NotConnected(t *testing.T) {
	fb := newFakeBroker()
	c := newTestClient(t, fb)
	_ = fb.Close()

	_, err := c.Send(context.Background(), "care/request/x", []byte(`1`), 0)
	if !errors.Is(err, broker.ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending: %d", c.Pending())
	}
}

func TestClose_FlushesAllPending(t *testing.T) {
	fb := newFakeBroker()
	c := newTestClient(t, fb)

	const n = 5
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := c.Send(context.Background(), fmt.Sprintf("care/request/%d", i), []byte(`1`), 0)
			errs <- err
		}(i)
	}
	waitForPending(t, c, n)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for i := 0; i < n; i++ {
		if err := <-errs; !errors.Is(err, ErrDisconnected) {
			t.Fatalf("call %d: got %v, want ErrDisconnected", i, err)
		}
	}
	if c.Pending() != 0 {
		t.Fatalf("pending table must be empty after disconnect, have %d", c.Pending())
	}

	// sends after close fail fast
	_, err := c.Send(context.Background(), "care/request/x", []byte(`1`), 0)
	if !errors.Is(err, broker.ErrNotConnected) && !errors.Is(err, ErrDisconnected) {
		t.Fatalf("send after close: got %v", err)
	}
}

func TestClose_RacesExpiringCalls(t *testing.T) {
	fb := newFakeBroker()
	c := newTestClient(t, fb)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Send(context.Background(), "care/request/x", []byte(`{}`), time.Nanosecond)
			switch {
			case err == nil:
			case errors.Is(err, ErrTimeout), errors.Is(err, ErrDisconnected), errors.Is(err, broker.ErrNotConnected):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	time.Sleep(time.Millisecond)
	if err := c.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	wg.Wait()

	if n := c.Pending(); n != 0 {
		t.Fatalf("pending after close: %d", n)
	}
}

func TestSend_ConcurrentCalls(t *testing.T) {
	fb := newFakeBroker()
	c := newTestClient(t, fb)

	// a responder that echoes each request's payload back
	fb.mu.Lock()
	fb.handlers["care/request/*"] = func(_ string, body []byte) {
		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return
		}
		go fb.reply(env.CorrelationID, Envelope{OK: true, Payload: env.Payload})
	}
	fb.mu.Unlock()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf(`{"i":%d}`, i)
			got, err := c.Send(context.Background(), "care/request/echo", []byte(want), time.Second)
			if err != nil {
				t.Errorf("call %d: %v", i, err)
				return
			}
			if string(got) != want {
				t.Errorf("call %d: got %s, want %s", i, got, want)
			}
		}(i)
	}
	wg.Wait()

	if c.Pending() != 0 {
		t.Fatalf("pending: %d", c.Pending())
	}
}

func waitForPending(t *testing.T, c *Client, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.Pending() >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("pending never reached %d (have %d)", n, c.Pending())
}

func TestEndToEnd_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	newRedisBroker := func() *broker.RedisClient {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return broker.NewRedisClient(rdb, zap.NewNop())
	}

	serverSide := newRedisBroker()
	defer serverSide.Close()
	clientSide := newRedisBroker()

	ctx := context.Background()

	resp := NewResponder(serverSide, "care", zap.NewNop())
	err := resp.Serve(ctx, "care/request/sum", func(_ context.Context, payload []byte) ([]byte, error) {
		var in struct{ A, B int }
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int{"sum": in.A + in.B})
	})
	if err != nil {
		t.Fatalf("responder: %v", err)
	}
	defer resp.Stop()

	c, err := New(ctx, clientSide, "care", 2*time.Second)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer c.Close()

	got, err := c.Send(ctx, "care/request/sum", []byte(`{"A":2,"B":3}`), 0)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if string(got) != `{"sum":5}` {
		t.Fatalf("got %s", got)
	}

	// application-level failure surfaces as ReplyError
	_, err = c.Send(ctx, "care/request/sum", []byte(`not json`), 0)
	var re *ReplyError
	if !errors.As(err, &re) {
		t.Fatalf("got %v, want ReplyError", err)
	}
}
