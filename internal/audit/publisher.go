package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prolearn/prolearn/internal/metrics"
)

const (
	// StreamKey is the Redis stream for audit events.
	StreamKey = "stream:audit_events"

	// DeadLetterStreamKey holds entries the worker could not decode.
	DeadLetterStreamKey = "stream:audit_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout bounds one asynchronous publish.
	PublishTimeout = 250 * time.Millisecond
)

// Publisher appends audit events to the stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a Publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "audit.publisher"),
		metrics: recorder,
	}
}

// Publish appends event and returns its stream ID.
func (p *Publisher) Publish(ctx context.Context, event Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"payload": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// PublishAsync publishes in the background. Failures are logged and
// counted; the caller's request never waits on the stream.
func (p *Publisher) PublishAsync(event Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish audit event",
				slog.String("action", string(event.Action)),
				slog.String("code", event.Code),
				slog.String("error", err.Error()),
			)
			p.metrics.IncAuditEventPublished("dropped")
			return
		}

		p.logger.Debug("audit event published",
			slog.String("action", string(event.Action)),
			slog.String("stream_id", streamID),
		)
		p.metrics.IncAuditEventPublished("success")
	}()
}
