package rest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel error kinds surfaced by the dispatcher. Callers only ever observe
// these (or a generic *APIError); rate-limit rejections and transport
// failures are internal retry triggers and never escape.
var (
	// ErrRetryBudgetExhausted is returned when a request was retried its full
	// budget without reaching a terminal outcome. It is distinct from the
	// error that caused the last retry so callers can tell "the service kept
	// rejecting us" apart from "we gave up".
	ErrRetryBudgetExhausted = errors.New("rest: ratelimit retry budget exhausted")

	// ErrRequestCancelled is returned when a request was cancelled before it
	// was dispatched to the transport.
	ErrRequestCancelled = errors.New("rest: request cancelled")

	// ErrDeadlineExceeded is returned when a request's overall deadline
	// (covering all retries) elapsed before it reached a terminal outcome.
	ErrDeadlineExceeded = errors.New("rest: request deadline exceeded")

	// Known remote rejection kinds, keyed off service error codes.
	ErrCannotMessageUser  = errors.New("rest: cannot send messages to this user")
	ErrMissingPermissions = errors.New("rest: missing permissions")
	ErrMissingAccess      = errors.New("rest: missing access")
	ErrUnknownChannel     = errors.New("rest: unknown channel")
	ErrUnknownUser        = errors.New("rest: unknown user")
	ErrUnknownMessage     = errors.New("rest: unknown message")
)

// DefaultErrorKinds maps machine-readable error codes from rejection bodies
// to sentinel kinds. The table is configuration data, not scheduler logic:
// deployments can extend it (see config `api.error_kinds`) without touching
// the dispatch path.
var DefaultErrorKinds = map[int]error{
	10003: ErrUnknownChannel,
	10008: ErrUnknownMessage,
	10013: ErrUnknownUser,
	50001: ErrMissingAccess,
	50007: ErrCannotMessageUser,
	50013: ErrMissingPermissions,
}

// kindNames maps configuration names to sentinel kinds, for extending the
// error-code table from config files.
var kindNames = map[string]error{
	"cannot_message_user": ErrCannotMessageUser,
	"missing_permissions": ErrMissingPermissions,
	"missing_access":      ErrMissingAccess,
	"unknown_channel":     ErrUnknownChannel,
	"unknown_user":        ErrUnknownUser,
	"unknown_message":     ErrUnknownMessage,
}

// KindByName resolves a configuration kind name to its sentinel error.
func KindByName(name string) (error, bool) {
	kind, ok := kindNames[strings.ToLower(strings.TrimSpace(name))]
	return kind, ok
}

// ErrorKindsFromConfig merges configured code-to-kind-name entries over the
// built-in table. Keys are numeric service error codes as strings.
func ErrorKindsFromConfig(entries map[string]string) (map[int]error, error) {
	kinds := make(map[int]error, len(DefaultErrorKinds)+len(entries))
	for code, kind := range DefaultErrorKinds {
		kinds[code] = kind
	}
	for codeValue, name := range entries {
		code, err := strconv.Atoi(strings.TrimSpace(codeValue))
		if err != nil {
			return nil, fmt.Errorf("rest: invalid error code %q: %w", codeValue, err)
		}
		kind, ok := KindByName(name)
		if !ok {
			return nil, fmt.Errorf("rest: unknown error kind %q for code %d", name, code)
		}
		kinds[code] = kind
	}
	return kinds, nil
}

// APIError is a terminal rejection from the remote service. It carries enough
// to diagnose without retrying: HTTP status, the machine-readable code and
// message when the body contained one, and the raw body otherwise.
//
// When the code matched a known kind, errors.Is reports true for that
// sentinel:
//
//	if errors.Is(err, rest.ErrCannotMessageUser) { ... }
type APIError struct {
	Status   int
	Code     int
	Message  string
	RawBody  []byte
	Endpoint string

	kind error
}

func (e *APIError) Error() string {
	if e.kind != nil {
		return fmt.Sprintf("%v (status %d, code %d)", e.kind, e.Status, e.Code)
	}
	if e.Code != 0 {
		return fmt.Sprintf("rest: request rejected (status %d, code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("rest: request rejected (status %d): %s", e.Status, string(e.RawBody))
}

func (e *APIError) Unwrap() error {
	return e.kind
}
