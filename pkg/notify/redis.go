package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the redis notification sink.
type RedisOptions struct {
	// Address is the redis server address, host:port.
	Address string

	// Password for the redis server, empty when unauthenticated.
	Password string

	// DB selects the redis logical database.
	DB int

	// Channel is the pub/sub channel events are published to.
	Channel string

	// PublishTimeout bounds each background publish. Default 2s.
	PublishTimeout time.Duration
}

// RedisNotifier publishes events to a redis pub/sub channel. Publishing
// happens on a background goroutine with its own timeout so callers are
// never blocked; publish failures are logged and dropped.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

// envelope is the published wire format.
type envelope struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// NewRedisNotifier creates a redis-backed notifier.
func NewRedisNotifier(opts RedisOptions, logger *slog.Logger) *RedisNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.PublishTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisNotifier{
		client:  client,
		channel: opts.Channel,
		timeout: timeout,
		logger:  logger.With("component", "notify.redis"),
	}
}

// SpaceJoined publishes the join event.
func (n *RedisNotifier) SpaceJoined(ctx context.Context, ev SpaceJoinedEvent) {
	n.publish("space_joined", ev)
}

// ApprovalCreated publishes the approval event.
func (n *RedisNotifier) ApprovalCreated(ctx context.Context, ev ApprovalCreatedEvent) {
	n.publish("approval_created", ev)
}

// publish serializes and publishes the event in the background. The
// caller's context is deliberately not used: the state change that
// produced the event has already committed and must not be tied to the
// request lifecycle.
func (n *RedisNotifier) publish(kind string, payload any) {
	data, err := json.Marshal(envelope{Kind: kind, Payload: payload})
	if err != nil {
		n.logger.Error("event marshal failed", "kind", kind, "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
			n.logger.Warn("event publish failed", "kind", kind, "error", err)
		}
	}()
}

// Close releases the redis connection.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
