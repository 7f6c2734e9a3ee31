package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ggoodman/fleetsocket/chat"
	"github.com/ggoodman/fleetsocket/store"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for the Redis-backed Store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: FLEETSOCKET_KEY_PREFIX
	KeyPrefix string `env:"FLEETSOCKET_KEY_PREFIX"`
	// Retention is the per-room list cap. ENV: FLEETSOCKET_RETENTION
	Retention int `env:"FLEETSOCKET_RETENTION,default=1000"`
}

type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	retention int
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(cl, cfg.KeyPrefix, cfg.Retention), nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv(ctx context.Context) (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis config: %w", err)
	}
	return New(ctx, cfg)
}

// NewWithClient wraps an existing client. A non-positive retention selects
// chat.RetentionLimit.
func NewWithClient(client redis.UniversalClient, keyPrefix string, retention int) *Store {
	if retention <= 0 {
		retention = chat.RetentionLimit
	}
	return &Store{client: client, keyPrefix: keyPrefix, retention: retention}
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

// Ping checks connectivity to Redis.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// --- Key helpers ---

func (s *Store) listKey(roomID string) string    { return s.keyPrefix + "room:" + roomID + ":messages" }
func (s *Store) channelKey(roomID string) string { return s.keyPrefix + "room:" + roomID + ":pubsub" }

// --- Room list ---

func (s *Store) Append(ctx context.Context, roomID string, env chat.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	key := s.listKey(roomID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -int64(s.retention), -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append to %s: %w", key, err)
	}
	return nil
}

func (s *Store) RangeRecent(ctx context.Context, roomID string, n int) ([]chat.Envelope, error) {
	if n <= 0 {
		return []chat.Envelope{}, nil
	}
	key := s.listKey(roomID)
	raw, err := s.client.LRange(ctx, key, -int64(n), -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("range %s: %w", key, err)
	}
	out := make([]chat.Envelope, 0, len(raw))
	for _, r := range raw {
		var env chat.Envelope
		if err := json.Unmarshal([]byte(r), &env); err != nil {
			// Skip entries written by something other than this package.
			continue
		}
		out = append(out, env)
	}
	return out, nil
}

// --- Broker ---

func (s *Store) Publish(ctx context.Context, roomID string, env chat.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.client.Publish(ctx, s.channelKey(roomID), data).Err(); err != nil {
		return fmt.Errorf("publish to room %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, roomID string, handler store.Handler) (store.Subscription, error) {
	channel := s.channelKey(roomID)
	ps := s.client.Subscribe(ctx, channel)
	// Wait for the subscribe confirmation so that nothing published after
	// this call returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &subscription{ps: ps, stopCh: make(chan struct{})}
	go sub.run(ctx, handler)
	return sub, nil
}

type subscription struct {
	ps     *redis.PubSub
	stopCh chan struct{}
	once   sync.Once
}

func (sub *subscription) run(ctx context.Context, handler store.Handler) {
	defer sub.Close()
	ch := sub.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.stopCh:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env chat.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			handler(ctx, env)
		}
	}
}

func (sub *subscription) Close() error {
	var err error
	sub.once.Do(func() {
		close(sub.stopCh)
		err = sub.ps.Close()
	})
	return err
}

// Interface compliance
var (
	_ store.Store        = (*Store)(nil)
	_ store.Subscription = (*subscription)(nil)
)
