// Package rest dispatches REST calls to the chat service under its per-route
// and global rate limits. Requests are grouped into quota buckets, executed
// one at a time per bucket in submission order, retried transparently on
// quota rejection using server-supplied timing, and resolved exactly once.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRetries is the ratelimit retry budget applied to requests that do
// not override it.
const DefaultRetries = 5

// Transform converts a successful raw response into the typed result a call
// site wants. It runs on the bucket worker after classification; returning an
// error resolves the request with that error.
type Transform func(*Response) (any, error)

// Request is an immutable specification of one REST call plus its
// single-assignment result slot. Build it with NewRequest and the With*
// setters, submit it through a Ratelimiter (or Client), and read the result
// via Wait or Done/Result.
//
// The result slot is assigned exactly once, ever. A second assignment is a
// programming error and panics.
type Request struct {
	id          string
	method      string
	endpoint    Endpoint
	urlParams   []string
	body        []byte
	includeAuth bool
	retries     int
	timeout     time.Duration
	transform   Transform
	buildErr    error

	mu         sync.Mutex
	attempts   int
	dispatched bool
	completed  bool
	deadline   time.Time
	value      any
	err        error
	done       chan struct{}
}

// NewRequest creates a request for the given method, endpoint and URL
// parameters. Authorization is included by default.
func NewRequest(method string, endpoint Endpoint, params ...string) *Request {
	return &Request{
		id:          uuid.New().String(),
		method:      method,
		endpoint:    endpoint,
		urlParams:   params,
		includeAuth: true,
		retries:     DefaultRetries,
		done:        make(chan struct{}),
	}
}

// WithBody sets a JSON body. Marshal failures surface at submission.
func (r *Request) WithBody(v any) *Request {
	payload, err := json.Marshal(v)
	if err != nil {
		r.buildErr = fmt.Errorf("marshal request body: %w", err)
		return r
	}
	r.body = payload
	return r
}

// WithRawBody sets a pre-encoded body.
func (r *Request) WithRawBody(body []byte) *Request {
	r.body = body
	return r
}

// WithoutAuth omits the authorization header for this request.
func (r *Request) WithoutAuth() *Request {
	r.includeAuth = false
	return r
}

// WithRetries sets the ratelimit retry budget. A request with budget n is
// dispatched at most n+1 times.
func (r *Request) WithRetries(n int) *Request {
	if n < 0 {
		r.buildErr = fmt.Errorf("retries cannot be negative: %d", n)
		return r
	}
	r.retries = n
	return r
}

// WithTimeout sets an overall deadline covering all retries. Once exceeded,
// pending retries are abandoned and the request resolves with
// ErrDeadlineExceeded. An in-flight transport call is allowed to finish.
func (r *Request) WithTimeout(d time.Duration) *Request {
	r.timeout = d
	return r
}

// WithTransform sets the function applied to a successful raw response before
// it is delivered to the result slot.
func (r *Request) WithTransform(fn Transform) *Request {
	r.transform = fn
	return r
}

// ID returns the request's correlation ID, used in log lines.
func (r *Request) ID() string {
	return r.id
}

// BucketKey returns the rate-limit bucket this request belongs to.
func (r *Request) BucketKey() string {
	return r.endpoint.BucketKey(r.urlParams...)
}

// Attempts returns how many times the request was dispatched to the transport.
func (r *Request) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Done is closed when the result slot has been assigned.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Result returns the resolved value and error. It must only be called after
// Done is closed.
func (r *Request) Result() (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.err
}

// Wait blocks until the request resolves or ctx is done. A ctx expiry does
// not cancel the request itself; use Cancel for that.
func (r *Request) Wait(ctx context.Context) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-r.done:
		return r.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel resolves the request with ErrRequestCancelled if it has not yet been
// dispatched to the transport. It reports whether the cancellation took
// effect. Once dispatched, the in-flight call proceeds and Cancel is a no-op.
func (r *Request) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed || r.dispatched {
		return false
	}
	r.completeLocked(nil, ErrRequestCancelled)
	return true
}

// complete assigns the result slot. Exactly-once is an invariant: a second
// call is a bug in the dispatcher and panics.
func (r *Request) complete(value any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completeLocked(value, err)
}

func (r *Request) completeLocked(value any, err error) {
	if r.completed {
		panic(fmt.Sprintf("rest: request %s completed twice", r.id))
	}
	r.completed = true
	r.value = value
	r.err = err
	close(r.done)
}

func (r *Request) isCompleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// completeIfPending assigns the result slot unless it was already assigned
// (e.g. by a concurrent Cancel). It reports whether the assignment happened.
func (r *Request) completeIfPending(value any, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed {
		return false
	}
	r.completeLocked(value, err)
	return true
}

// claimDispatch records one transport dispatch and blocks late cancellation.
// It fails when the request was resolved while waiting in the queue or gates.
func (r *Request) claimDispatch() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed {
		return false
	}
	r.dispatched = true
	r.attempts++
	return true
}

// waitContext returns a context bounded by the request deadline, for use
// while waiting in the global limiter gate.
func (r *Request) waitContext() (context.Context, context.CancelFunc) {
	r.mu.Lock()
	deadline := r.deadline
	r.mu.Unlock()
	if deadline.IsZero() {
		return context.Background(), func() {}
	}
	return context.WithDeadline(context.Background(), deadline)
}

// clearDispatched re-arms cancellation between an attempt and its retry.
func (r *Request) clearDispatched() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatched = false
}

// startClock arms the overall deadline at submission time.
func (r *Request) startClock(now time.Time) {
	if r.timeout <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deadline.IsZero() {
		r.deadline = now.Add(r.timeout)
	}
}

// expired reports whether the overall deadline has elapsed.
func (r *Request) expired(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.deadline.IsZero() && now.After(r.deadline)
}
