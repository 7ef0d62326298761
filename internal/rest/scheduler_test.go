package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeExecutor scripts transport outcomes and records calls. handler receives
// the 1-based call number.
type fakeExecutor struct {
	handler func(call int, method, url string, body []byte) (*Response, error)

	mu       sync.Mutex
	calls    int
	bodies   []string
	inflight int
	maxSeen  int
}

func (f *fakeExecutor) Execute(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.bodies = append(f.bodies, string(body))
	f.inflight++
	if f.inflight > f.maxSeen {
		f.maxSeen = f.inflight
	}
	f.mu.Unlock()

	resp, err := f.handler(call, method, url, body)

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()
	return resp, err
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeExecutor) maxInflight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

func ok(body string) *Response {
	return &Response{Status: http.StatusOK, Header: http.Header{}, Body: []byte(body)}
}

func ratelimited(retryAfterMS float64, global bool) *Response {
	payload, _ := json.Marshal(map[string]any{
		"message":     "You are being rate limited.",
		"retry_after": retryAfterMS,
		"global":      global,
	})
	return &Response{Status: http.StatusTooManyRequests, Header: http.Header{}, Body: payload}
}

// sleepRecorder replaces the scheduler's sleep so tests neither wait nor
// race on wall-clock time.
type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
}

func (s *sleepRecorder) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

func newTestRatelimiter(t *testing.T, exec Executor) (*Ratelimiter, *sleepRecorder) {
	t.Helper()
	rl := NewRatelimiter(RatelimiterConfig{
		BaseURL:  "https://api.test",
		Executor: exec,
		Global:   NewGlobalLimiter(10000, 10000),
	})
	rec := &sleepRecorder{}
	rl.sleep = rec.sleep
	return rl, rec
}

func waitFor(t *testing.T, req *Request) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-req.Done():
		return req.Result()
	case <-ctx.Done():
		t.Fatal("request did not resolve in time")
		return nil, nil
	}
}

func TestBucketProcessesInSubmissionOrder(t *testing.T) {
	exec := &fakeExecutor{
		handler: func(call int, method, url string, body []byte) (*Response, error) {
			return ok(`{}`), nil
		},
	}
	rl, _ := newTestRatelimiter(t, exec)

	const n = 8
	requests := make([]*Request, 0, n)
	for i := 0; i < n; i++ {
		req := NewRequest(http.MethodPost, EndpointMessage, "chan-1").
			WithRawBody([]byte(strconv.Itoa(i)))
		requests = append(requests, req)
		require.NoError(t, rl.Submit(req))
	}
	for _, req := range requests {
		_, err := waitFor(t, req)
		require.NoError(t, err)
	}

	require.Equal(t, 1, exec.maxInflight(), "same bucket must never have two calls in flight")
	for i, body := range exec.bodies {
		require.Equal(t, strconv.Itoa(i), body, "submission order must be preserved")
	}
}

func TestDifferentBucketsRunConcurrently(t *testing.T) {
	bothInflight := make(chan struct{})
	var once sync.Once
	arrivals := make(chan struct{}, 2)

	exec := &fakeExecutor{
		handler: func(call int, method, url string, body []byte) (*Response, error) {
			arrivals <- struct{}{}
			if len(arrivals) == 2 {
				once.Do(func() { close(bothInflight) })
			}
			select {
			case <-bothInflight:
			case <-time.After(3 * time.Second):
				return nil, errors.New("peer bucket never dispatched")
			}
			return ok(`{}`), nil
		},
	}
	rl, _ := newTestRatelimiter(t, exec)

	reqA := NewRequest(http.MethodPost, EndpointMessage, "chan-a")
	reqB := NewRequest(http.MethodPost, EndpointMessage, "chan-b")
	require.NoError(t, rl.Submit(reqA))
	require.NoError(t, rl.Submit(reqB))

	_, errA := waitFor(t, reqA)
	_, errB := waitFor(t, reqB)
	require.NoError(t, errA)
	require.NoError(t, errB)
	require.Equal(t, 2, exec.maxInflight(), "distinct buckets should dispatch in parallel")
}

func TestRatelimitedRetriesWithServerDelay(t *testing.T) {
	exec := &fakeExecutor{
		handler: func(call int, method, url string, body []byte) (*Response, error) {
			if call == 1 {
				return ratelimited(2000, false), nil
			}
			return ok(`{"id":"m1"}`), nil
		},
	}
	rl, rec := newTestRatelimiter(t, exec)

	req := NewRequest(http.MethodPost, EndpointMessage, "chan-1")
	require.NoError(t, rl.Submit(req))
	_, err := waitFor(t, req)
	require.NoError(t, err)

	require.Equal(t, 2, exec.callCount())
	require.Equal(t, 2, req.Attempts())
	require.Contains(t, rec.all(), 2*time.Second, "retry must honor the server-supplied delay")
}

func TestRetriedRequestRunsBeforeLaterSubmissions(t *testing.T) {
	peerQueued := make(chan struct{})
	exec := &fakeExecutor{
		handler: func(call int, method, url string, body []byte) (*Response, error) {
			if call == 1 {
				// Hold the first attempt until the second request is queued
				// behind it, so the retry has something to jump ahead of.
				<-peerQueued
				return ratelimited(10, false), nil
			}
			return ok(`{}`), nil
		},
	}
	rl, _ := newTestRatelimiter(t, exec)

	first := NewRequest(http.MethodPost, EndpointMessage, "chan-1").WithRawBody([]byte("A"))
	second := NewRequest(http.MethodPost, EndpointMessage, "chan-1").WithRawBody([]byte("B"))
	require.NoError(t, rl.Submit(first))
	require.NoError(t, rl.Submit(second))
	close(peerQueued)

	_, err := waitFor(t, first)
	require.NoError(t, err)
	_, err = waitFor(t, second)
	require.NoError(t, err)

	require.Equal(t, []string{"A", "A", "B"}, exec.bodies,
		"a retried request must requeue at the front, ahead of later submissions")
}

func TestRetryBudgetExhausted(t *testing.T) {
	exec := &fakeExecutor{
		handler: func(call int, method, url string, body []byte) (*Response, error) {
			return ratelimited(10, false), nil
		},
	}
	rl, _ := newTestRatelimiter(t, exec)

	const retries = 2
	req := NewRequest(http.MethodPost, EndpointMessage, "chan-1").WithRetries(retries)
	require.NoError(t, rl.Submit(req))
	_, err := waitFor(t, req)

	require.ErrorIs(t, err, ErrRetryBudgetExhausted)
	require.Equal(t, retries+1, exec.callCount(), "budget n allows exactly n+1 dispatches")
	require.Equal(t, retries+1, req.Attempts())
}

func TestGlobalRejectionHaltsAllBuckets(t *testing.T) {
	const halt = 150 * time.Millisecond

	var haltSet time.Time
	release := make(chan struct{})
	exec := &fakeExecutor{
		handler: func(call int, method, url string, body []byte) (*Response, error) {
			if call == 1 {
				haltSet = time.Now()
				close(release)
				return ratelimited(float64(halt/time.Millisecond), true), nil
			}
			return ok(`{}`), nil
		},
	}
	rl, _ := newTestRatelimiter(t, exec)

	reqA := NewRequest(http.MethodPost, EndpointMessage, "chan-a")
	require.NoError(t, rl.Submit(reqA))

	// Submit to a different bucket only after the halt is in place so its
	// first dispatch must wait out the global window.
	<-release
	reqB := NewRequest(http.MethodPost, EndpointMessage, "chan-b")
	require.NoError(t, rl.Submit(reqB))

	_, errA := waitFor(t, reqA)
	_, errB := waitFor(t, reqB)
	require.NoError(t, errA)
	require.NoError(t, errB)
	dispatchedB := time.Now()

	require.False(t, rl.global.HaltedUntil().IsZero(), "global halt must be recorded")
	require.GreaterOrEqual(t, dispatchedB.Sub(haltSet), halt-20*time.Millisecond,
		"the other bucket's call must wait out the global window")
}

func TestTransportFailureRetriesWithFixedBackoff(t *testing.T) {
	exec := &fakeExecutor{
		handler: func(call int, method, url string, body []byte) (*Response, error) {
			if call <= 2 {
				return nil, errors.New("connection reset")
			}
			return ok(`{}`), nil
		},
	}
	rl, rec := newTestRatelimiter(t, exec)

	req := NewRequest(http.MethodGet, EndpointUser, "u1")
	require.NoError(t, rl.Submit(req))
	_, err := waitFor(t, req)
	require.NoError(t, err)

	require.Equal(t, 3, exec.callCount())
	slept := rec.all()
	count := 0
	for _, d := range slept {
		if d == DefaultTransportBackoff {
			count++
		}
	}
	require.Equal(t, 2, count, "each transport failure backs off by the fixed delay")
}

func TestQuotaHeadersApplyOnSuccess(t *testing.T) {
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	reset := base.Add(3 * time.Second)

	exec := &fakeExecutor{
		handler: func(call int, method, url string, body []byte) (*Response, error) {
			header := http.Header{}
			if call == 1 {
				header.Set(headerRemaining, "0")
				header.Set(headerReset, strconv.FormatInt(reset.Unix(), 10))
			}
			return &Response{Status: http.StatusOK, Header: header, Body: []byte(`{}`)}, nil
		},
	}
	rl, rec := newTestRatelimiter(t, exec)
	rl.clock = func() time.Time { return base }

	first := NewRequest(http.MethodPost, EndpointMessage, "chan-1")
	require.NoError(t, rl.Submit(first))
	_, err := waitFor(t, first)
	require.NoError(t, err)

	second := NewRequest(http.MethodPost, EndpointMessage, "chan-1")
	require.NoError(t, rl.Submit(second))
	_, err = waitFor(t, second)
	require.NoError(t, err)

	require.Contains(t, rec.all(), 3*time.Second,
		"a successful response's quota headers must pace the next call")
}

func TestCancelBeforeDispatch(t *testing.T) {
	blockFirst := make(chan struct{})
	exec := &fakeExecutor{
		handler: func(call int, method, url string, body []byte) (*Response, error) {
			if call == 1 {
				<-blockFirst
			}
			return ok(`{}`), nil
		},
	}
	rl, _ := newTestRatelimiter(t, exec)

	first := NewRequest(http.MethodPost, EndpointMessage, "chan-1")
	second := NewRequest(http.MethodPost, EndpointMessage, "chan-1")
	require.NoError(t, rl.Submit(first))
	require.NoError(t, rl.Submit(second))

	require.True(t, second.Cancel())
	_, err := waitFor(t, second)
	require.ErrorIs(t, err, ErrRequestCancelled)

	close(blockFirst)
	_, err = waitFor(t, first)
	require.NoError(t, err)
	require.Equal(t, 1, exec.callCount(), "a cancelled request must never reach the transport")

	// Cancellation leaves no residual bucket state: a fresh descriptor for
	// the same call behaves like any new request.
	third := NewRequest(http.MethodPost, EndpointMessage, "chan-1")
	require.NoError(t, rl.Submit(third))
	_, err = waitFor(t, third)
	require.NoError(t, err)
	require.Equal(t, 2, exec.callCount())
}

func TestDeadlineAbandonsPendingRetry(t *testing.T) {
	var mu sync.Mutex
	// Keep the fake clock ahead of the wall clock so the deadline-bounded
	// context used while gating never fires; only the fake clock decides.
	now := time.Now().UTC().Add(time.Hour)
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	exec := &fakeExecutor{
		handler: func(call int, method, url string, body []byte) (*Response, error) {
			// The in-flight call outlives the deadline.
			advance(time.Minute)
			return ratelimited(1000, false), nil
		},
	}
	rl, _ := newTestRatelimiter(t, exec)
	rl.clock = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	req := NewRequest(http.MethodPost, EndpointMessage, "chan-1").WithTimeout(10 * time.Second)
	require.NoError(t, rl.Submit(req))
	_, err := waitFor(t, req)

	require.ErrorIs(t, err, ErrDeadlineExceeded)
	require.Equal(t, 1, exec.callCount(), "no retry may be scheduled after the deadline")
}

func TestSubmitRejectsMalformedRequests(t *testing.T) {
	exec := &fakeExecutor{handler: func(int, string, string, []byte) (*Response, error) {
		return ok(`{}`), nil
	}}
	rl, _ := newTestRatelimiter(t, exec)

	// Too few parameters for a route requiring one.
	req := NewRequest(http.MethodPost, EndpointMessage)
	err := rl.Submit(req)
	require.Error(t, err)

	_, resolved := waitFor(t, req)
	require.Equal(t, err, resolved, "the result slot is resolved with the contract violation")
	require.Equal(t, 0, exec.callCount())
}

func TestSnapshotReportsBucketState(t *testing.T) {
	exec := &fakeExecutor{
		handler: func(call int, method, url string, body []byte) (*Response, error) {
			header := http.Header{}
			header.Set(headerRemaining, "4")
			header.Set(headerReset, fmt.Sprintf("%d", time.Now().Add(time.Minute).Unix()))
			return &Response{Status: http.StatusOK, Header: header, Body: []byte(`{}`)}, nil
		},
	}
	rl, _ := newTestRatelimiter(t, exec)

	req := NewRequest(http.MethodPost, EndpointMessage, "chan-1")
	require.NoError(t, rl.Submit(req))
	_, err := waitFor(t, req)
	require.NoError(t, err)

	snapshots := rl.Snapshot()
	require.Len(t, snapshots, 1)
	require.Equal(t, EndpointMessage.BucketKey("chan-1"), snapshots[0].Key)
	require.Equal(t, 4, snapshots[0].Remaining)
}
