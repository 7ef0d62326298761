package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response is the normalized outcome of one transport call.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Executor performs the network call for one request. The production
// implementation is HTTPExecutor; tests inject fakes. The bucket worker
// suspends on Execute, so implementations must honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error)
}

// HTTPExecutor executes requests over net/http.
type HTTPExecutor struct {
	Client *http.Client
}

// Execute performs the HTTP call and reads the full response body. A non-2xx
// status is not an error at this layer; classification happens downstream.
func (e *HTTPExecutor) Execute(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if len(body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   payload,
	}, nil
}
