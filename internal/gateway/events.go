package gateway

import (
	"encoding/json"

	"github.com/chatwire/chatwire/internal/entity"
)

// Gateway opcodes.
const (
	opDispatch     = 0
	opHeartbeat    = 1
	opIdentify     = 2
	opHello        = 10
	opHeartbeatACK = 11
)

// Event type names delivered in dispatch frames.
const (
	EventReady              = "READY"
	EventMessageCreate      = "MESSAGE_CREATE"
	EventMessageDelete      = "MESSAGE_DELETE"
	EventChannelCreate      = "CHANNEL_CREATE"
	EventChannelUpdate      = "CHANNEL_UPDATE"
	EventChannelDelete      = "CHANNEL_DELETE"
	EventServerCreate       = "GUILD_CREATE"
	EventServerMemberUpdate = "GUILD_MEMBER_UPDATE"
)

// frame is the wire shape of every gateway message.
type frame struct {
	Op   int             `json:"op"`
	Type string          `json:"t,omitempty"`
	Seq  int64           `json:"s,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

// helloData accompanies opHello.
type helloData struct {
	HeartbeatIntervalMS int64 `json:"heartbeat_interval"`
}

// identifyData is sent with opIdentify after connecting.
type identifyData struct {
	Token      string         `json:"token"`
	Properties map[string]any `json:"properties"`
}

// readyData accompanies the READY dispatch.
type readyData struct {
	SessionID string      `json:"session_id"`
	Self      entity.User `json:"user"`
}

// messageDeleteData accompanies MESSAGE_DELETE.
type messageDeleteData struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// memberUpdateData accompanies GUILD_MEMBER_UPDATE.
type memberUpdateData struct {
	ServerID string      `json:"guild_id"`
	User     entity.User `json:"user"`
}
