// Package urlqueue implements a database backed retry queue of HTTP
// requests.
//
// Enqueue stores a request (url, action, payload) through the insert
// script. The queue then sends one stored request per tick: the get script
// loads it, the request is performed, and only after a successful response
// does the after-send script remove it. A failed send leaves the row in
// place for the next tick.
//
// Ticks happen every send interval, and once send delay after each
// enqueue.
package urlqueue

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/roach88/sqlscript/internal/agent"
	"github.com/roach88/sqlscript/internal/executor"
	"github.com/roach88/sqlscript/internal/script"
	"github.com/roach88/sqlscript/internal/sqlerr"
	"github.com/roach88/sqlscript/internal/value"
)

// Defaults for queue timing.
const (
	DefaultSendInterval = 60 * time.Second
	DefaultSendDelay    = 2 * time.Second
	DefaultRetries      = 2
	DefaultBackoff      = 500 * time.Millisecond
)

// Scripts are the queue's database operations. Count is optional.
type Scripts struct {
	// Insert stores ${url}, ${action} and ${payload}.
	Insert *script.Script

	// Get loads the next request as one row with url, action and payload
	// columns (and whatever AfterSend needs, usually an id).
	Get *script.Script

	// AfterSend removes the request loaded by Get.
	AfterSend *script.Script

	// Count returns the number of stored requests in a "value" column.
	Count *script.Script
}

// Queue is safe for concurrent use. Sends are serialized.
type Queue struct {
	name         string
	exec         *executor.Executor
	scripts      Scripts
	client       *http.Client
	sendInterval time.Duration
	sendDelay    time.Duration
	retries      uint64
	backoff      time.Duration
	logger       *slog.Logger
	counter      *agent.Agent

	sendMu sync.Mutex

	mu      sync.Mutex
	pending int
	signal  chan struct{} // Signals an enqueue (buffered, size 1)
}

// Option configures a Queue.
type Option func(*Queue)

// WithHTTPClient sets the client used to send requests.
func WithHTTPClient(client *http.Client) Option {
	return func(q *Queue) {
		q.client = client
	}
}

// WithSendInterval sets the time between ticks.
func WithSendInterval(d time.Duration) Option {
	return func(q *Queue) {
		q.sendInterval = d
	}
}

// WithSendDelay sets the wait between an enqueue and its send attempt.
func WithSendDelay(d time.Duration) Option {
	return func(q *Queue) {
		q.sendDelay = d
	}
}

// WithRetries sets how many times a transient failure is retried within
// one send, and the first backoff.
func WithRetries(retries uint64, backoff time.Duration) Option {
	return func(q *Queue) {
		q.retries = retries
		q.backoff = backoff
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// New creates a queue.
func New(name string, exec *executor.Executor, scripts Scripts, opts ...Option) (*Queue, error) {
	switch {
	case scripts.Insert.Len() == 0:
		return nil, sqlerr.New(sqlerr.KindConfig, "queue %s: insert script is required", name)
	case scripts.Get.Len() == 0:
		return nil, sqlerr.New(sqlerr.KindConfig, "queue %s: get script is required", name)
	case scripts.AfterSend.Len() == 0:
		return nil, sqlerr.New(sqlerr.KindConfig, "queue %s: after-send script is required", name)
	}

	q := &Queue{
		name:         name,
		exec:         exec,
		scripts:      scripts,
		client:       &http.Client{Timeout: 30 * time.Second},
		sendInterval: DefaultSendInterval,
		sendDelay:    DefaultSendDelay,
		retries:      DefaultRetries,
		backoff:      DefaultBackoff,
		logger:       slog.Default(),
		signal:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("queue", name)

	if scripts.Count.Len() > 0 {
		q.counter = agent.New(name, exec, scripts.Count, agent.WithLogger(q.logger))
	}
	return q, nil
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Pending returns the number of stored requests last known.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

func (q *Queue) setPending(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = max(n, 0)
}

// Enqueue stores a request. action is an HTTP method ("+" means POST).
func (q *Queue) Enqueue(ctx context.Context, url, action, payload string) error {
	if _, err := parseMethod(action); err != nil {
		return err
	}

	request := value.ObjectOf(
		value.P("url", value.URL(url)),
		value.P("action", value.String(action)),
		value.P("payload", value.String(payload)),
	)
	if err := q.exec.Exec(ctx, q.scripts.Insert, request, value.NewObject()); err != nil {
		return fmt.Errorf("enqueue %s: %w", url, err)
	}

	q.mu.Lock()
	q.pending++
	q.mu.Unlock()

	q.logger.Debug("request queued", "url", url, "action", action)

	// Non-blocking: a buffer of 1 coalesces bursts into one tick.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Refresh reloads the pending count from the count script, when there is
// one, and returns it.
func (q *Queue) Refresh(ctx context.Context) (int, error) {
	if q.counter == nil {
		return q.Pending(), nil
	}
	if _, err := q.counter.Refresh(ctx); err != nil {
		return q.Pending(), err
	}
	n, err := countOf(q.counter.Value())
	if err != nil {
		return q.Pending(), fmt.Errorf("queue %s count: %w", q.name, err)
	}
	q.setPending(n)
	return n, nil
}

// Send sends the next stored request. It returns false when the queue
// is empty. On failure the request stays queued.
func (q *Queue) Send(ctx context.Context) (bool, error) {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()

	values := value.NewObject()
	if err := q.exec.ExecValue(ctx, q.scripts.Get, values); err != nil {
		return false, fmt.Errorf("queue %s get: %w", q.name, err)
	}

	url := values.Get("url").String()
	if url == "" {
		q.setPending(0)
		return false, nil
	}

	method, err := parseMethod(values.Get("action").String())
	if err != nil {
		return false, err
	}

	if err := q.deliver(ctx, method, url, values.Get("payload").String()); err != nil {
		q.logger.Warn("send failed, keeping request queued", "url", url, "method", method, "error", err)
		return false, fmt.Errorf("queue %s send %s %s: %w", q.name, method, url, err)
	}

	if err := q.exec.ExecValue(ctx, q.scripts.AfterSend, values); err != nil {
		return true, fmt.Errorf("queue %s after-send: %w", q.name, err)
	}

	q.mu.Lock()
	q.pending = max(q.pending-1, 0)
	q.mu.Unlock()

	q.logger.Info("request sent", "url", url, "method", method)
	return true, nil
}

// Tick refreshes the count and sends one request if any is pending.
func (q *Queue) Tick(ctx context.Context) error {
	if q.counter != nil {
		n, err := q.Refresh(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
	_, err := q.Send(ctx)
	return err
}

// Run ticks every send interval and send delay after every enqueue until
// ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	ticker := time.NewTicker(q.sendInterval)
	defer ticker.Stop()

	q.logger.Info("queue started", "send_interval", q.sendInterval, "send_delay", q.sendDelay)

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("queue stopping: context cancelled")
			return nil
		case <-q.signal:
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(q.sendDelay):
			}
		case <-ticker.C:
		}

		if err := q.Tick(ctx); err != nil {
			q.logger.Warn("queue tick failed", "error", err)
		}
	}
}

// countOf converts an agent value into a count.
func countOf(v value.Value) (int, error) {
	switch n := v.(type) {
	case value.Signed:
		return int(n), nil
	case value.Unsigned:
		return int(n), nil
	case value.Real:
		return int(n), nil
	case value.Null:
		return 0, nil
	}
	return 0, fmt.Errorf("not a number: %q", v.String())
}
