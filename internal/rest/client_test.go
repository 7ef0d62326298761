package rest

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingExecutor captures method, url and headers for assertion.
type recordingExecutor struct {
	respond func(method, url string) *Response

	mu      sync.Mutex
	methods []string
	urls    []string
	headers []http.Header
}

func (r *recordingExecutor) Execute(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	r.mu.Lock()
	r.methods = append(r.methods, method)
	r.urls = append(r.urls, url)
	r.headers = append(r.headers, header)
	r.mu.Unlock()
	return r.respond(method, url), nil
}

func newTestClient(t *testing.T, exec Executor) *Client {
	t.Helper()
	client, err := New(ClientConfig{
		BaseURL:         "https://chat.example.com/api/v6",
		Token:           "token-abc",
		Executor:        exec,
		GlobalPerSecond: 10000,
		GlobalBurst:     10000,
	})
	require.NoError(t, err)
	return client
}

func TestClientRequiresBaseURL(t *testing.T) {
	_, err := New(ClientConfig{})
	require.Error(t, err)
}

func TestClientSendMessage(t *testing.T) {
	exec := &recordingExecutor{respond: func(method, url string) *Response {
		return ok(`{"id":"m1","channel_id":"chan-1","content":"hello"}`)
	}}
	client := newTestClient(t, exec)

	msg, err := client.SendMessage(context.Background(), "chan-1", "hello")
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)
	require.Equal(t, "chan-1", msg.ChannelID)
	require.Equal(t, "hello", msg.Content)

	require.Equal(t, http.MethodPost, exec.methods[0])
	require.Equal(t, "https://chat.example.com/api/v6/channels/chan-1/messages", exec.urls[0])
	require.Equal(t, "token-abc", exec.headers[0].Get("Authorization"))
	require.Equal(t, "chatwire", exec.headers[0].Get("User-Agent"))
}

func TestClientGatewayURLIsUnauthenticated(t *testing.T) {
	exec := &recordingExecutor{respond: func(method, url string) *Response {
		return ok(`{"url":"wss://gateway.example.com"}`)
	}}
	client := newTestClient(t, exec)

	url, err := client.GatewayURL(context.Background())
	require.NoError(t, err)
	require.Equal(t, "wss://gateway.example.com", url)
	require.Empty(t, exec.headers[0].Get("Authorization"))
}

func TestClientGatewayURLRejectsEmptyPayload(t *testing.T) {
	exec := &recordingExecutor{respond: func(method, url string) *Response {
		return ok(`{}`)
	}}
	client := newTestClient(t, exec)

	_, err := client.GatewayURL(context.Background())
	require.Error(t, err)
}

func TestClientDeleteMessageIgnoresEmptyBody(t *testing.T) {
	exec := &recordingExecutor{respond: func(method, url string) *Response {
		return &Response{Status: http.StatusNoContent, Header: http.Header{}}
	}}
	client := newTestClient(t, exec)

	err := client.DeleteMessage(context.Background(), "chan-1", "msg-9")
	require.NoError(t, err)
	require.Equal(t, http.MethodDelete, exec.methods[0])
	require.Equal(t, "https://chat.example.com/api/v6/channels/chan-1/messages/msg-9", exec.urls[0])
}

func TestClientSurfacesTerminalKind(t *testing.T) {
	exec := &recordingExecutor{respond: func(method, url string) *Response {
		return &Response{
			Status: http.StatusForbidden,
			Header: http.Header{},
			Body:   []byte(`{"code": 50007, "message": "Cannot send messages to this user"}`),
		}
	}}
	client := newTestClient(t, exec)

	_, err := client.SendMessage(context.Background(), "chan-1", "hello")
	require.ErrorIs(t, err, ErrCannotMessageUser)
	require.Len(t, exec.methods, 1, "a terminal rejection is never retried")
}

func TestClientServerChannels(t *testing.T) {
	exec := &recordingExecutor{respond: func(method, url string) *Response {
		return ok(`[{"id":"c1","type":0,"name":"general"},{"id":"c2","type":2,"name":"voice"}]`)
	}}
	client := newTestClient(t, exec)

	channels, err := client.ServerChannels(context.Background(), "srv-1")
	require.NoError(t, err)
	require.Len(t, channels, 2)
	require.Equal(t, "general", channels[0].Name)
	require.Equal(t, "https://chat.example.com/api/v6/guilds/srv-1/channels", exec.urls[0])
}

func TestClientDecodeFailureResolvesRequest(t *testing.T) {
	exec := &recordingExecutor{respond: func(method, url string) *Response {
		return ok(`not json`)
	}}
	client := newTestClient(t, exec)

	_, err := client.Self(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode")
}
