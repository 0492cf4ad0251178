package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/rtconf/rtconf/internal/document"
	"github.com/rtconf/rtconf/internal/message"
	"github.com/rtconf/rtconf/internal/rtcerr"
)

// Redis key layout: one hash per record family.
const (
	redisDataKey = "rt_config_data"
	redisAuthKey = "rt_auth_data"
)

type redisBackend struct {
	client     *redis.Client
	channel    string
	openNotify bool

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func newRedisBackend(ctx context.Context, cfg Config) (*redisBackend, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: ping redis: %w", err)
	}
	return &redisBackend{
		client:     client,
		channel:    cfg.NotifyChannel,
		openNotify: cfg.OpenNotify,
	}, nil
}

func (b *redisBackend) Get(ctx context.Context, name string) (document.Document, error) {
	raw, err := b.client.HGet(ctx, redisDataKey, name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, rtcerr.NotFound(name)
		}
		return nil, fmt.Errorf("store: read document %s: %w", name, err)
	}
	var doc document.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("store: decode document %s: %w", name, err)
	}
	return doc, nil
}

func (b *redisBackend) Set(ctx context.Context, name string, doc document.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: encode document %s: %w", name, err)
	}
	if err := b.client.HSet(ctx, redisDataKey, name, raw).Err(); err != nil {
		return fmt.Errorf("store: write document %s: %w", name, err)
	}
	return nil
}

func (b *redisBackend) Delete(ctx context.Context, name string) error {
	if err := b.client.HDel(ctx, redisDataKey, name).Err(); err != nil {
		return fmt.Errorf("store: delete document %s: %w", name, err)
	}
	return nil
}

func (b *redisBackend) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := b.client.HExists(ctx, redisDataKey, name).Result()
	if err != nil {
		return false, fmt.Errorf("store: check document %s: %w", name, err)
	}
	return ok, nil
}

func (b *redisBackend) List(ctx context.Context) ([]string, error) {
	names, err := b.client.HKeys(ctx, redisDataKey).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (b *redisBackend) Iter(ctx context.Context, fn func(string, document.Document) error) error {
	all, err := b.client.HGetAll(ctx, redisDataKey).Result()
	if err != nil {
		return fmt.Errorf("store: list documents: %w", err)
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var doc document.Document
		if err := json.Unmarshal([]byte(all[name]), &doc); err != nil {
			slog.Warn("skipping undecodable document", "name", name, "error", err)
			continue
		}
		if err := fn(name, doc); err != nil {
			return err
		}
	}
	return nil
}

func (b *redisBackend) GetUser(ctx context.Context, username string) (UserRecord, error) {
	raw, err := b.client.HGet(ctx, redisAuthKey, username).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("store: read user %s: %w", username, err)
	}
	var u UserRecord
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return UserRecord{}, fmt.Errorf("store: decode user %s: %w", username, err)
	}
	return u, nil
}

func (b *redisBackend) GetUserByToken(ctx context.Context, token string) (UserRecord, error) {
	all, err := b.client.HGetAll(ctx, redisAuthKey).Result()
	if err != nil {
		return UserRecord{}, fmt.Errorf("store: list users: %w", err)
	}
	for username, raw := range all {
		var u UserRecord
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			slog.Warn("skipping undecodable user", "username", username, "error", err)
			continue
		}
		if u.Token != "" && u.Token == token {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (b *redisBackend) SetUser(ctx context.Context, u UserRecord) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("store: encode user %s: %w", u.Username, err)
	}
	if err := b.client.HSet(ctx, redisAuthKey, u.Username, raw).Err(); err != nil {
		return fmt.Errorf("store: write user %s: %w", u.Username, err)
	}
	return nil
}

func (b *redisBackend) Publish(ctx context.Context, payload []byte) error {
	if !b.openNotify {
		return nil
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("store: publish: %w", err)
	}
	return nil
}

func (b *redisBackend) Subscribe(ctx context.Context, handler func([]byte)) error {
	if !b.openNotify {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return fmt.Errorf("store: already subscribed")
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	// Force the subscription onto the wire before returning so a publish
	// immediately after Subscribe is not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("store: subscribe: %w", err)
	}
	b.pubsub = pubsub
	b.done = make(chan struct{})
	go b.subscribeLoop(pubsub, handler, b.done)
	return nil
}

// subscribeLoop delivers published payloads until the channel closes or the
// shutdown sentinel arrives.
func (b *redisBackend) subscribeLoop(pubsub *redis.PubSub, handler func([]byte), done chan struct{}) {
	defer close(done)
	for msg := range pubsub.Channel() {
		if msg.Payload == message.Over {
			return
		}
		handler([]byte(msg.Payload))
	}
}

func (b *redisBackend) Close(ctx context.Context) error {
	if b.openNotify {
		if err := b.client.Publish(ctx, b.channel, message.Over).Err(); err != nil {
			slog.Warn("publishing shutdown sentinel failed", "error", err)
		}
	}
	b.mu.Lock()
	pubsub := b.pubsub
	done := b.done
	b.pubsub = nil
	b.done = nil
	b.mu.Unlock()
	if pubsub != nil {
		_ = pubsub.Close()
		<-done
	}
	return b.client.Close()
}
