package rest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestDefaults(t *testing.T) {
	req := NewRequest(http.MethodPost, EndpointMessage, "chan-1")

	require.NotEmpty(t, req.ID())
	require.Equal(t, DefaultRetries, req.retries)
	require.True(t, req.includeAuth)
	require.NoError(t, req.buildErr)
	require.Equal(t, "/channels/%s/messages|chan-1", req.BucketKey())
}

func TestRequestWithBodyMarshalsJSON(t *testing.T) {
	req := NewRequest(http.MethodPost, EndpointMessage, "chan-1").
		WithBody(map[string]string{"content": "hi"})

	require.NoError(t, req.buildErr)
	require.JSONEq(t, `{"content":"hi"}`, string(req.body))
}

func TestRequestWithBodyMarshalFailureSurfacesAtSubmit(t *testing.T) {
	req := NewRequest(http.MethodPost, EndpointMessage, "chan-1").
		WithBody(make(chan int)) // not marshalable

	require.Error(t, req.buildErr)

	rl, _ := newTestRatelimiter(t, &fakeExecutor{handler: func(int, string, string, []byte) (*Response, error) {
		return ok(`{}`), nil
	}})
	err := rl.Submit(req)
	require.Error(t, err)

	_, resolved := waitFor(t, req)
	require.Equal(t, err, resolved)
}

func TestRequestNegativeRetriesRejected(t *testing.T) {
	req := NewRequest(http.MethodGet, EndpointGateway).WithRetries(-1)
	require.Error(t, req.buildErr)
}

func TestRequestCompleteTwicePanics(t *testing.T) {
	req := NewRequest(http.MethodGet, EndpointGateway)
	req.complete("first", nil)

	require.Panics(t, func() { req.complete("second", nil) })

	value, err := req.Result()
	require.NoError(t, err)
	require.Equal(t, "first", value)
}

func TestRequestCancelOnlyBeforeDispatch(t *testing.T) {
	req := NewRequest(http.MethodGet, EndpointGateway)
	require.True(t, req.claimDispatch())
	require.False(t, req.Cancel(), "an in-flight request cannot be cancelled")

	fresh := NewRequest(http.MethodGet, EndpointGateway)
	require.True(t, fresh.Cancel())
	require.False(t, fresh.Cancel(), "second cancel reports no effect")

	_, err := fresh.Result()
	require.ErrorIs(t, err, ErrRequestCancelled)
}

func TestRequestCompleteIfPendingAfterCancel(t *testing.T) {
	req := NewRequest(http.MethodGet, EndpointGateway)
	require.True(t, req.Cancel())
	require.False(t, req.completeIfPending("late", nil), "a resolved slot is never reassigned")

	_, err := req.Result()
	require.ErrorIs(t, err, ErrRequestCancelled)
}

func TestRequestClaimDispatchAfterCompletion(t *testing.T) {
	req := NewRequest(http.MethodGet, EndpointGateway)
	req.complete(nil, ErrRequestCancelled)
	require.False(t, req.claimDispatch())
	require.Equal(t, 0, req.Attempts())
}

func TestRequestDeadline(t *testing.T) {
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	req := NewRequest(http.MethodGet, EndpointGateway).WithTimeout(time.Minute)
	req.startClock(base)

	require.False(t, req.expired(base.Add(30*time.Second)))
	require.True(t, req.expired(base.Add(2*time.Minute)))

	// The deadline is armed once; a later startClock must not extend it.
	req.startClock(base.Add(time.Hour))
	require.True(t, req.expired(base.Add(2*time.Minute)))
}

func TestRequestWithoutTimeoutNeverExpires(t *testing.T) {
	req := NewRequest(http.MethodGet, EndpointGateway)
	req.startClock(time.Now())
	require.False(t, req.expired(time.Now().Add(24*time.Hour)))

	ctx, cancel := req.waitContext()
	defer cancel()
	_, hasDeadline := ctx.Deadline()
	require.False(t, hasDeadline)
}

func TestRequestWaitHonorsContext(t *testing.T) {
	req := NewRequest(http.MethodGet, EndpointGateway)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := req.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The request itself is untouched by the observer's context.
	require.False(t, req.isCompleted())
}
