package rest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTransportBackoff is the fixed delay before retrying a transport
// failure, which carries no server-supplied timing hint.
const DefaultTransportBackoff = 500 * time.Millisecond

// RatelimiterConfig configures a Ratelimiter.
type RatelimiterConfig struct {
	// BaseURL is the REST API root, e.g. "https://chat.example.com/api/v6".
	BaseURL string
	// Executor performs the network calls. Required.
	Executor Executor
	// Header builds the header set for one request. includeAuth is false for
	// unauthenticated endpoints. If nil, requests carry no headers.
	Header func(includeAuth bool) http.Header
	// Global gates all buckets. If nil, a default limiter is used.
	Global *GlobalLimiter
	// ErrorKinds overrides DefaultErrorKinds as the code-to-kind table.
	ErrorKinds map[int]error
	// TransportBackoff overrides DefaultTransportBackoff.
	TransportBackoff time.Duration
	// Logger receives debug lines about retries and quota waits. If nil,
	// logging is disabled; result delivery never depends on it.
	Logger *zap.Logger
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Ratelimiter groups requests into quota buckets, serializes and paces
// execution per bucket, retries transparently on quota rejection using
// server-supplied timing, and resolves each request exactly once.
//
// Each bucket is driven by a single worker goroutine started lazily on first
// submission for its key, so at most one call per bucket is in flight and
// bucket state needs no locking beyond the queue. Buckets live for the
// process lifetime and start optimistic (full quota assumed) — nothing is
// persisted.
type Ratelimiter struct {
	baseURL          string
	executor         Executor
	header           func(includeAuth bool) http.Header
	global           *GlobalLimiter
	kinds            map[int]error
	transportBackoff time.Duration
	logger           *zap.Logger
	clock            func() time.Time
	sleep            func(time.Duration)

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRatelimiter creates a Ratelimiter from the given configuration.
func NewRatelimiter(cfg RatelimiterConfig) *Ratelimiter {
	global := cfg.Global
	if global == nil {
		global = NewGlobalLimiter(50, 50)
	}
	kinds := cfg.ErrorKinds
	if kinds == nil {
		kinds = DefaultErrorKinds
	}
	backoff := cfg.TransportBackoff
	if backoff <= 0 {
		backoff = DefaultTransportBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ratelimiter{
		baseURL:          cfg.BaseURL,
		executor:         cfg.Executor,
		header:           cfg.Header,
		global:           global,
		kinds:            kinds,
		transportBackoff: backoff,
		logger:           logger,
		clock:            cfg.Clock,
		sleep:            time.Sleep,
		buckets:          make(map[string]*bucket),
	}
}

// Submit enqueues the request on its bucket and starts the bucket's worker
// if idle. Malformed requests (wrong parameter count, failed body marshal,
// missing transport) are a caller contract violation: the result slot is
// resolved with the error, which is also returned.
func (rl *Ratelimiter) Submit(req *Request) error {
	if err := rl.validate(req); err != nil {
		req.complete(nil, err)
		return err
	}

	req.startClock(rl.now())
	rl.bucket(req.BucketKey()).enqueue(req)
	return nil
}

func (rl *Ratelimiter) validate(req *Request) error {
	if rl.executor == nil {
		return fmt.Errorf("rest: no executor configured")
	}
	if req.buildErr != nil {
		return req.buildErr
	}
	if want := req.endpoint.ParamCount(); len(req.urlParams) != want {
		return fmt.Errorf("rest: endpoint %s requires %d url parameters, got %d",
			req.endpoint.template, want, len(req.urlParams))
	}
	return nil
}

// BucketSnapshot is a point-in-time view of one bucket for diagnostics.
type BucketSnapshot struct {
	Key       string    `json:"key"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Queued    int       `json:"queued"`
}

// Snapshot returns the state of all live buckets, sorted by key.
func (rl *Ratelimiter) Snapshot() []BucketSnapshot {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	snapshots := make([]BucketSnapshot, 0, len(rl.buckets))
	for _, b := range rl.buckets {
		snapshots = append(snapshots, b.snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Key < snapshots[j].Key })
	return snapshots
}

// bucket returns the bucket for key, creating it lazily. Buckets are never
// destroyed; an idle bucket is just a map entry with no running worker.
func (rl *Ratelimiter) bucket(key string) *bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{key: key, rl: rl, remaining: -1}
		rl.buckets[key] = b
	}
	return b
}

func (rl *Ratelimiter) now() time.Time {
	if rl.clock != nil {
		return rl.clock()
	}
	return time.Now().UTC()
}

// bucket is one quota-sharing group of requests. The queue is mutex-guarded;
// remaining/resetAt are only touched by the single worker goroutine.
type bucket struct {
	key string
	rl  *Ratelimiter

	mu        sync.Mutex
	queue     []*Request
	running   bool
	remaining int // -1 until the first response teaches us the quota
	resetAt   time.Time
}

func (b *bucket) enqueue(req *Request) {
	b.mu.Lock()
	b.queue = append(b.queue, req)
	start := !b.running
	if start {
		b.running = true
	}
	b.mu.Unlock()

	if start {
		go b.run()
	}
}

// requeueFront puts a retried request ahead of everything else in the bucket
// so no later-submitted request runs before it.
func (b *bucket) requeueFront(req *Request) {
	b.mu.Lock()
	b.queue = append([]*Request{req}, b.queue...)
	b.mu.Unlock()
}

// next pops the front of the queue, or marks the worker stopped and returns
// nil when the queue is drained.
func (b *bucket) next() *Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		b.running = false
		return nil
	}
	req := b.queue[0]
	b.queue = b.queue[1:]
	return req
}

func (b *bucket) run() {
	for {
		req := b.next()
		if req == nil {
			return
		}
		b.process(req)
	}
}

// process drives one dequeued request through the quota gates, the transport
// and classification. Retryable outcomes requeue at the front and return to
// the worker loop; everything else resolves the result slot.
func (b *bucket) process(req *Request) {
	rl := b.rl

	if req.isCompleted() {
		return // cancelled while queued
	}
	if req.expired(rl.now()) {
		req.completeIfPending(nil, ErrDeadlineExceeded)
		return
	}

	if wait := b.quotaWait(rl.now()); wait > 0 {
		rl.logger.Debug("bucket quota exhausted, waiting for reset",
			zap.String("bucket", b.key),
			zap.Duration("wait", wait),
		)
		rl.sleep(wait)
	}

	ctx, cancel := req.waitContext()
	err := rl.global.Acquire(ctx)
	cancel()
	if err != nil {
		req.completeIfPending(nil, ErrDeadlineExceeded)
		return
	}

	if req.expired(rl.now()) {
		req.completeIfPending(nil, ErrDeadlineExceeded)
		return
	}
	if !req.claimDispatch() {
		return // cancelled during the waits
	}

	var header http.Header
	if rl.header != nil {
		header = rl.header(req.includeAuth)
	}
	url := req.endpoint.URL(rl.baseURL, req.urlParams...)

	// The transport call itself runs without the request deadline: once
	// dispatched, the in-flight call is allowed to complete. The deadline
	// only gates further retries.
	resp, execErr := rl.executor.Execute(context.Background(), req.method, url, header, req.body)
	out := classify(resp, execErr, rl.kinds, req.endpoint.template)

	// Quota headers are informational on every response, not only
	// rejections. Apply them before acting on the outcome.
	if out.quota != nil {
		b.setQuota(out.quota)
	}

	switch out.kind {
	case outcomeSuccess:
		if req.transform == nil {
			req.complete(resp, nil)
			return
		}
		value, err := req.transform(resp)
		if err != nil {
			req.complete(nil, err)
			return
		}
		req.complete(value, nil)

	case outcomeTerminal:
		req.complete(nil, out.err)

	case outcomeRatelimited:
		cause := fmt.Errorf("rate limited (retry after %s)", out.retryAfter)
		if out.global {
			rl.global.RecordGlobalRejection(out.retryAfter)
		}
		b.retry(req, out.retryAfter, !out.global, cause)

	case outcomeTransportFailure:
		b.retry(req, rl.transportBackoff, true, out.err)
	}
}

// retry requeues req at the front of the bucket after the delay, unless its
// retry budget or deadline is spent. sleepHere is false for global-scope
// rejections: the global limiter already holds everyone back, so this bucket
// only requeues and blocks in Acquire.
func (b *bucket) retry(req *Request, delay time.Duration, sleepHere bool, cause error) {
	rl := b.rl

	if req.Attempts() > req.retries {
		req.complete(nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryBudgetExhausted, req.Attempts(), cause))
		return
	}
	if req.expired(rl.now()) {
		req.complete(nil, ErrDeadlineExceeded)
		return
	}

	rl.logger.Debug("retrying request",
		zap.String("bucket", b.key),
		zap.String("request_id", req.id),
		zap.Int("attempt", req.Attempts()),
		zap.Duration("delay", delay),
		zap.Error(cause),
	)

	req.clearDispatched()
	if sleepHere && delay > 0 {
		rl.sleep(delay)
	}
	b.requeueFront(req)
}

// quotaWait returns how long the bucket must pause before its next call.
func (b *bucket) quotaWait(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining == 0 && b.resetAt.After(now) {
		return b.resetAt.Sub(now)
	}
	return 0
}

func (b *bucket) setQuota(q *quotaState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining = q.remaining
	b.resetAt = q.resetAt
}

func (b *bucket) snapshot() BucketSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BucketSnapshot{
		Key:       b.key,
		Remaining: b.remaining,
		ResetAt:   b.resetAt,
		Queued:    len(b.queue),
	}
}
