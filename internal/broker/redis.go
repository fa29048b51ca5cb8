package broker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisClient implements Client over Redis PUBLISH/PSUBSCRIBE. Delivery
// is fire-and-forget: a subscriber that is down misses the message, and
// callers above surface that as a timeout.
type RedisClient struct {
	rdb       *redis.Client
	log       *zap.Logger
	connected atomic.Bool

	mu   sync.Mutex
	subs []*redisSubscription
}

func NewRedisClient(rdb *redis.Client, log *zap.Logger) *RedisClient {
	c := &RedisClient{rdb: rdb, log: log}
	c.connected.Store(true)
	return c
}

func (c *RedisClient) Connected() bool { return c.connected.Load() }

func (c *RedisClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.rdb.Publish(ctx, topic, payload).Err()
}

// Subscribe registers a pattern subscription and pumps matching
// messages into h from a dedicated goroutine until Unsubscribe or Close.
func (c *RedisClient) Subscribe(ctx context.Context, pattern string, h Handler) (Subscription, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}

	ps := c.rdb.PSubscribe(ctx, pattern)
	// Force the subscription onto the wire before returning, so a
	// Publish issued right after Subscribe cannot be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSubscription{ps: ps}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			h(msg.Channel, []byte(msg.Payload))
		}
	}()

	return sub, nil
}

func (c *RedisClient) Close() error {
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			c.log.Warn("broker unsubscribe failed", zap.Error(err))
		}
	}
	return c.rdb.Close()
}

type redisSubscription struct {
	ps   *redis.PubSub
	once sync.Once
	err  error
}

func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() { s.err = s.ps.Close() })
	return s.err
}
