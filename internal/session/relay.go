package session

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/dori/taskdeck/internal/logging"
)

// Notice is the message sent over the relay when a session changes.
type Notice struct {
	Origin   string `json:"origin"`
	Kind     string `json:"kind"`
	Revision int64  `json:"revision"`
}

// RedisRelay carries session notices between processes over redis pub/sub.
// It speeds up what the storage watcher would eventually notice anyway.
type RedisRelay struct {
	client  *redis.Client
	channel string
	logger  *log.Logger
}

// NewRedisRelay creates a relay publishing on channel.
func NewRedisRelay(client *redis.Client, channel string, logger *log.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, logger: logging.OrDiscard(logger)}
}

// DialRedis parses a redis URL and checks the server is reachable.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// Publish sends n to every subscribed process.
func (r *RedisRelay) Publish(ctx context.Context, n Notice) error {
	data, err := codec.Marshal(n)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run delivers notices to fn until ctx is done or the subscription closes.
func (r *RedisRelay) Run(ctx context.Context, fn func(Notice)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so no notice published after
	// Run starts is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				r.logger.Warn("relay subscription closed", "channel", r.channel)
				return nil
			}
			var n Notice
			if err := codec.UnmarshalFromString(msg.Payload, &n); err != nil {
				r.logger.Warn("unreadable relay notice", "err", err)
				continue
			}
			fn(n)
		}
	}
}

// Listen syncs the holder whenever another process announces a change.
func (h *Holder) Listen(ctx context.Context, r *RedisRelay) error {
	return r.Run(ctx, func(n Notice) {
		if n.Origin == h.origin {
			return
		}
		if _, err := h.Sync(); err != nil {
			h.logger.Warn("sync after relay notice", "err", err)
		}
	})
}
