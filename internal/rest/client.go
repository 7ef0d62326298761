package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chatwire/chatwire/internal/entity"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the REST API root. Required.
	BaseURL string
	// Token authorizes requests. May be empty for unauthenticated use.
	Token string
	// HTTPClient overrides the default transport client.
	HTTPClient *http.Client
	// Executor overrides the HTTP executor entirely (tests).
	Executor Executor
	// GlobalPerSecond / GlobalBurst tune the process-wide ceiling.
	GlobalPerSecond float64
	GlobalBurst     int
	// RequestTimeout is the overall deadline applied to requests built by the
	// typed helpers, covering all retries. Zero means no deadline.
	RequestTimeout time.Duration
	// Retries overrides the default ratelimit retry budget for requests built
	// by the typed helpers. Zero keeps the default.
	Retries int
	// ErrorKinds extends or replaces the known error-code table.
	ErrorKinds map[int]error
	// Logger is used for debug logging. If nil, logging is disabled.
	Logger *zap.Logger
}

// Client is the typed surface over the rate-limit-aware dispatcher. Every
// call builds a Request, submits it, and blocks on the result; the dispatcher
// below guarantees quota compliance, retries and exactly-once resolution.
type Client struct {
	token          string
	requestTimeout time.Duration
	retries        int
	rl             *Ratelimiter
}

// New creates a Client.
func New(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest: BaseURL is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	executor := cfg.Executor
	if executor == nil {
		executor = &HTTPExecutor{Client: cfg.HTTPClient}
	}

	client := &Client{
		token:          cfg.Token,
		requestTimeout: cfg.RequestTimeout,
		retries:        cfg.Retries,
	}

	client.rl = NewRatelimiter(RatelimiterConfig{
		BaseURL:    cfg.BaseURL,
		Executor:   executor,
		Header:     client.requestHeader,
		Global:     NewGlobalLimiter(cfg.GlobalPerSecond, cfg.GlobalBurst),
		ErrorKinds: cfg.ErrorKinds,
		Logger:     logger,
	})

	return client, nil
}

// Ratelimiter exposes the dispatcher, mainly for diagnostics (Snapshot).
func (c *Client) Ratelimiter() *Ratelimiter {
	return c.rl
}

// Submit enqueues a raw request. Most callers use the typed helpers instead.
func (c *Client) Submit(req *Request) error {
	return c.rl.Submit(req)
}

func (c *Client) requestHeader(includeAuth bool) http.Header {
	header := make(http.Header)
	header.Set("User-Agent", "chatwire")
	if includeAuth && c.token != "" {
		header.Set("Authorization", c.token)
	}
	return header
}

// do submits a request with a JSON-decoding transform and waits for it.
func do[T any](ctx context.Context, c *Client, req *Request) (T, error) {
	var zero T
	if c.requestTimeout > 0 && req.timeout <= 0 {
		req = req.WithTimeout(c.requestTimeout)
	}
	if c.retries > 0 {
		req = req.WithRetries(c.retries)
	}
	req = req.WithTransform(func(resp *Response) (any, error) {
		var value T
		if len(resp.Body) == 0 {
			return value, nil
		}
		if err := json.Unmarshal(resp.Body, &value); err != nil {
			return nil, fmt.Errorf("rest: decode %s response: %w", req.endpoint.template, err)
		}
		return value, nil
	})
	if err := c.rl.Submit(req); err != nil {
		return zero, err
	}
	value, err := req.Wait(ctx)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("rest: unexpected result type %T", value)
	}
	return typed, nil
}

// Self returns the account the token belongs to.
func (c *Client) Self(ctx context.Context) (entity.User, error) {
	return do[entity.User](ctx, c, NewRequest(http.MethodGet, EndpointSelf))
}

// User fetches a user by ID.
func (c *Client) User(ctx context.Context, userID string) (entity.User, error) {
	return do[entity.User](ctx, c, NewRequest(http.MethodGet, EndpointUser, userID))
}

// SendMessage posts a text message to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) (entity.Message, error) {
	req := NewRequest(http.MethodPost, EndpointMessage, channelID).
		WithBody(map[string]string{"content": content})
	return do[entity.Message](ctx, c, req)
}

// DeleteMessage removes a message from a channel.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	req := NewRequest(http.MethodDelete, EndpointMessageDelete, channelID, messageID)
	_, err := do[struct{}](ctx, c, req)
	return err
}

// DeleteChannel deletes (or for direct channels, closes) a channel.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) (entity.Channel, error) {
	return do[entity.Channel](ctx, c, NewRequest(http.MethodDelete, EndpointChannel, channelID))
}

// CreateDirectChannel opens a direct-message channel with a user.
func (c *Client) CreateDirectChannel(ctx context.Context, userID string) (entity.Channel, error) {
	req := NewRequest(http.MethodPost, EndpointUserChannel).
		WithBody(map[string]string{"recipient_id": userID})
	return do[entity.Channel](ctx, c, req)
}

// ServerChannels lists the channels of a server.
func (c *Client) ServerChannels(ctx context.Context, serverID string) ([]entity.Channel, error) {
	return do[[]entity.Channel](ctx, c, NewRequest(http.MethodGet, EndpointServerChannel, serverID))
}

// TriggerTyping starts the typing indicator in a channel.
func (c *Client) TriggerTyping(ctx context.Context, channelID string) error {
	_, err := do[struct{}](ctx, c, NewRequest(http.MethodPost, EndpointChannelTyping, channelID))
	return err
}

// GatewayURL asks the service where the websocket gateway lives. The
// endpoint is unauthenticated.
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	type gatewayResponse struct {
		URL string `json:"url"`
	}
	resp, err := do[gatewayResponse](ctx, c, NewRequest(http.MethodGet, EndpointGateway).WithoutAuth())
	if err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", fmt.Errorf("rest: gateway response had no url")
	}
	return resp.URL, nil
}
