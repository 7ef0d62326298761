package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Quota signal headers. The service includes the remaining/reset pair on
// every response, success included; retry-after and the global marker only
// accompany 429 rejections.
const (
	headerRemaining  = "X-RateLimit-Remaining"
	headerReset      = "X-RateLimit-Reset" // unix seconds
	headerRetryAfter = "Retry-After"       // seconds
	headerGlobal     = "X-RateLimit-Global"
)

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRatelimited
	outcomeTransportFailure
	outcomeTerminal
)

// outcome is the classification of one transport result. It is a value; all
// state mutation from it is performed by the bucket worker.
type outcome struct {
	kind       outcomeKind
	retryAfter time.Duration
	global     bool
	err        error
	quota      *quotaState
}

// quotaState is bucket state extracted from response headers.
type quotaState struct {
	remaining int
	resetAt   time.Time
}

// ratelimitBody is the JSON body of a 429 rejection. retry_after is in
// milliseconds.
type ratelimitBody struct {
	Global     bool    `json:"global"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
}

// errorBody is the machine-readable shape of a non-429 rejection.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// classify maps a normalized transport result to an outcome, in priority
// order: transport failure, success, rate limited, terminal rejection.
func classify(resp *Response, execErr error, kinds map[int]error, endpoint string) outcome {
	if execErr != nil {
		return outcome{kind: outcomeTransportFailure, err: execErr}
	}

	quota := parseQuota(resp.Header)

	if resp.Status >= 200 && resp.Status < 300 {
		return outcome{kind: outcomeSuccess, quota: quota}
	}

	if resp.Status == http.StatusTooManyRequests {
		retryAfter, global := parseRatelimit(resp)
		return outcome{
			kind:       outcomeRatelimited,
			retryAfter: retryAfter,
			global:     global,
			quota:      quota,
		}
	}

	apiErr := &APIError{
		Status:   resp.Status,
		RawBody:  resp.Body,
		Endpoint: endpoint,
	}
	var body errorBody
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Code != 0 {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		apiErr.kind = kinds[body.Code]
	}
	return outcome{kind: outcomeTerminal, err: apiErr, quota: quota}
}

// parseQuota extracts the remaining/reset pair when both headers are present.
func parseQuota(header http.Header) *quotaState {
	if header == nil {
		return nil
	}

	remainingValue := strings.TrimSpace(header.Get(headerRemaining))
	resetValue := strings.TrimSpace(header.Get(headerReset))
	if remainingValue == "" || resetValue == "" {
		return nil
	}

	remaining, err := strconv.Atoi(remainingValue)
	if err != nil {
		return nil
	}
	resetUnix, err := strconv.ParseFloat(resetValue, 64)
	if err != nil {
		return nil
	}

	return &quotaState{
		remaining: remaining,
		resetAt:   time.Unix(0, int64(resetUnix*float64(time.Second))).UTC(),
	}
}

// parseRatelimit extracts the retry delay and scope of a 429. The body's
// retry_after (milliseconds) wins over the Retry-After header (seconds); the
// global marker may appear in either place.
func parseRatelimit(resp *Response) (time.Duration, bool) {
	global := strings.EqualFold(strings.TrimSpace(resp.Header.Get(headerGlobal)), "true")

	var body ratelimitBody
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		global = global || body.Global
		if body.RetryAfter > 0 {
			return time.Duration(body.RetryAfter * float64(time.Millisecond)), global
		}
	}

	if retry := strings.TrimSpace(resp.Header.Get(headerRetryAfter)); retry != "" {
		if seconds, err := strconv.ParseFloat(retry, 64); err == nil && seconds > 0 {
			return time.Duration(seconds * float64(time.Second)), global
		}
		if parsed, err := http.ParseTime(retry); err == nil {
			return time.Until(parsed), global
		}
	}

	return 0, global
}
