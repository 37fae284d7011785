package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/prolearn/prolearn/internal/metrics"
	"github.com/prolearn/prolearn/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group of audit workers.
	ConsumerGroup = "audit_workers"

	DefaultBatchSize       = 200
	DefaultBlockTimeout    = 5 * time.Second
	DefaultMaxRetries      = 3
	DefaultClaimInterval   = 10 * time.Second
	DefaultClaimIdle       = 30 * time.Second
	DefaultMetricsInterval = 5 * time.Second
)

// Repository persists audit events.
type Repository interface {
	InsertAuditEvents(ctx context.Context, events []*model.AuditEvent) (int64, error)
}

// Worker drains the audit stream into the repository. Entries are acked
// only after they are stored or dead-lettered.
type Worker struct {
	redis      *redis.Client
	repo       Repository
	logger     *slog.Logger
	metrics    metrics.Recorder
	consumerID string

	batchSize       int
	blockTimeout    time.Duration
	maxRetries      int
	retryBase       time.Duration
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration

	claimStartID string
	lastClaim    time.Time
	lastMetrics  time.Time

	mu       sync.Mutex
	started  bool
	draining bool
	cancel   context.CancelFunc
	stopRead context.CancelFunc
	done     chan struct{}
}

// NewConsumerID returns a consumer name unique to this process.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}

// NewWorker creates a Worker.
func NewWorker(client *redis.Client, repo Repository, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		redis:           client,
		repo:            repo,
		logger:          logger.With("component", "audit.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		maxRetries:      DefaultMaxRetries,
		retryBase:       time.Second,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		claimStartID:    "0-0",
	}
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetBlockTimeout overrides the default blocking read timeout.
func (w *Worker) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.blockTimeout = timeout
	}
}

// Run processes the stream until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	// Reads stop as soon as Shutdown is called; storing and acking the
	// batch already read continue until ctx ends.
	readCtx, stopRead := context.WithCancel(ctx)
	w.stopRead = stopRead
	w.mu.Unlock()

	defer close(w.done)
	defer stopRead()

	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("audit worker started")

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()
		if draining {
			w.logger.Info("audit worker drained")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("audit worker stopping")
			return nil
		default:
		}

		if err := w.processOnce(ctx, readCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("audit batch error", slog.String("error", err.Error()))
			sleep(ctx, time.Second)
		}
	}
}

// Shutdown stops reading new entries and waits for the in-flight batch to
// be stored and acked. If ctx ends first the batch is abandoned and its
// entries stay pending until a consumer claims them. It matches
// server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel, stopRead, done := w.cancel, w.stopRead, w.done
	w.mu.Unlock()

	stopRead()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		cancel()
		w.logger.Warn("audit worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

func (w *Worker) processOnce(ctx, readCtx context.Context) error {
	w.maybeUpdateQueueDepth(readCtx)

	messages, err := w.maybeClaimPending(readCtx)
	if err != nil && readCtx.Err() == nil {
		w.logger.Warn("failed to claim pending audit events", slog.String("error", err.Error()))
	}
	if len(messages) == 0 {
		messages, err = w.readBatch(readCtx)
		if err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	events, ids := w.parseMessages(ctx, messages)
	if len(events) > 0 {
		if err := w.storeWithRetry(ctx, events); err != nil {
			// Unacked entries are reclaimed later.
			return err
		}
	}
	return w.ack(ctx, ids)
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

// maybeClaimPending takes over entries another consumer read but never
// acked.
func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if w.claimInterval <= 0 || w.claimIdle <= 0 {
		return nil, nil
	}
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.claimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		w.claimStartID = next
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			w.logger.Warn("failed to read stream group info", slog.String("error", err.Error()))
		}
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetAuditQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

// parseMessages decodes entries. Entries that fail to decode are
// dead-lettered; their IDs are still returned so they get acked.
func (w *Worker) parseMessages(ctx context.Context, messages []redis.XMessage) ([]*model.AuditEvent, []string) {
	events := make([]*model.AuditEvent, 0, len(messages))
	ids := make([]string, 0, len(messages))

	for _, msg := range messages {
		ids = append(ids, msg.ID)

		event, reason, err := decodeMessage(msg)
		if err != nil {
			w.deadLetter(ctx, msg, reason, err.Error())
			continue
		}
		events = append(events, event.toModel(ulid.Make().String(), msg.ID))
	}
	return events, ids
}

// decodeMessage returns the event in msg or a dead-letter reason.
func decodeMessage(msg redis.XMessage) (Event, string, error) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return Event{}, "invalid_format", errors.New("payload field missing or not a string")
	}

	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, "unmarshal_error", err
	}
	if err := event.Validate(); err != nil {
		return Event{}, "validation_error", err
	}
	return event, "", nil
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering audit event",
		slog.String("message_id", msg.ID),
		slog.String("reason", reason),
		slog.String("detail", detail),
	)

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          fmt.Sprint(msg.Values["payload"]),
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("failed to write dead-letter entry",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
	}

	w.metrics.IncAuditEventProcessed("dead_lettered")
}

func (w *Worker) storeWithRetry(ctx context.Context, events []*model.AuditEvent) error {
	var lastErr error
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		start := time.Now()
		inserted, err := w.repo.InsertAuditEvents(ctx, events)
		if err == nil {
			w.logger.Debug("audit batch stored",
				slog.Int("batch_size", len(events)),
				slog.Int64("inserted", inserted),
				slog.Duration("duration", time.Since(start)),
			)
			for range events {
				w.metrics.IncAuditEventProcessed("success")
			}
			return nil
		}

		lastErr = err
		if attempt == w.maxRetries {
			break
		}
		backoff := w.retryBase << attempt
		w.logger.Warn("audit batch failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
	}

	for range events {
		w.metrics.IncAuditEventProcessed("failed")
	}
	return fmt.Errorf("store audit batch: %w", lastErr)
}

func (w *Worker) ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
