package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"instagram-bot/models"
)

// RateLimiter caps throughput with a sliding window shared by all workers.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	requests []time.Time
}

// NewRateLimiter allows at most limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		window:   window,
		requests: make([]time.Time, 0),
	}
}

// Wait blocks until a request can be made within the rate limit.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Drop requests that fell out of the window
	valid := make([]time.Time, 0, len(r.requests))
	for _, t := range r.requests {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	r.requests = valid

	if len(r.requests) >= r.limit {
		oldest := r.requests[0]
		waitDuration := oldest.Add(r.window).Sub(now)

		if waitDuration > 0 {
			r.mu.Unlock()
			select {
			case <-time.After(waitDuration):
			case <-ctx.Done():
				r.mu.Lock()
				return ctx.Err()
			}
			r.mu.Lock()
		}
	}

	r.requests = append(r.requests, time.Now())
	return nil
}

// EventHandler processes one dequeued inbound event.
type EventHandler func(ctx context.Context, event models.InboundEvent)

// Queue is the durable inbound event queue backed by a Redis list. Webhook
// handlers enqueue and acknowledge immediately; workers drain at a bounded
// rate.
type Queue struct {
	client   *redis.Client
	key      string
	maxRetry int
}

// NewQueue connects to Redis and verifies the connection.
func NewQueue(ctx context.Context, addr, key string, maxRetry int) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	slog.Info("Connected to Redis", "addr", addr, "queue", key)

	return &Queue{
		client:   client,
		key:      key,
		maxRetry: maxRetry,
	}, nil
}

// Enqueue pushes an inbound event for asynchronous processing.
func (q *Queue) Enqueue(ctx context.Context, event models.InboundEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		slog.Error("Failed to enqueue event", "eventID", event.EventID, "error", err)
		return err
	}

	return nil
}

// Length returns the number of pending events.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

// StartWorkers launches the worker pool. Each worker blocks on the queue,
// waits for rate-limit clearance, then hands the event to the handler.
// Workers exit when ctx is canceled.
func (q *Queue) StartWorkers(ctx context.Context, workers, ratePerSec int, handler EventHandler) {
	limiter := NewRateLimiter(ratePerSec, time.Second)

	slog.Info("Starting queue workers", "workers", workers, "ratePerSec", ratePerSec)

	for i := 0; i < workers; i++ {
		go q.workerLoop(ctx, i, limiter, handler)
	}
}

func (q *Queue) workerLoop(ctx context.Context, id int, limiter *RateLimiter, handler EventHandler) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("Queue worker stopping", "worker", id)
			return
		default:
		}

		result, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			slog.Error("Queue pop failed", "worker", id, "error", err)
			time.Sleep(time.Second)
			continue
		}

		// BRPop returns [key, value]
		if len(result) < 2 {
			continue
		}

		var event models.InboundEvent
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			slog.Error("Discarding malformed queue payload", "worker", id, "error", err)
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			// Shutting down mid-wait, push the event back for the next run
			q.requeue(event)
			return
		}

		q.process(ctx, event, handler)
	}
}

// process runs the handler with panic recovery. A panicking event is
// redelivered with backoff until its retry budget is spent.
func (q *Queue) process(ctx context.Context, event models.InboundEvent, handler EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panicked",
				"eventID", event.EventID,
				"attempts", event.Attempts,
				"panic", r)
			q.retry(event)
		}
	}()

	handler(ctx, event)
}

func (q *Queue) retry(event models.InboundEvent) {
	event.Attempts++
	if event.Attempts > q.maxRetry {
		slog.Error("Event dropped after retry budget exhausted",
			"eventID", event.EventID,
			"attempts", event.Attempts)
		return
	}

	go func() {
		time.Sleep(time.Duration(event.Attempts) * 2 * time.Second)
		q.requeue(event)
	}()
}

// requeue pushes an event back using a detached context so shutdown does not
// lose it.
func (q *Queue) requeue(event models.InboundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Enqueue(ctx, event); err != nil {
		slog.Error("Failed to requeue event", "eventID", event.EventID, "error", err)
	}
}
