// Package entity holds the in-memory domain model of the chat service:
// users, channels, messages and servers, plus a concurrency-safe cache kept
// current by the gateway event stream.
package entity

import "time"

// User is a chat service account.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
	Bot           bool   `json:"bot"`
}

// ChannelType enumerates the channel kinds the client understands.
type ChannelType int

const (
	ChannelTypeServerText  ChannelType = 0
	ChannelTypeDirect      ChannelType = 1
	ChannelTypeServerVoice ChannelType = 2
	ChannelTypeGroup       ChannelType = 3
	ChannelTypeCategory    ChannelType = 4
)

// Channel is a text, voice or direct-message channel.
type Channel struct {
	ID       string      `json:"id"`
	Type     ChannelType `json:"type"`
	ServerID string      `json:"guild_id,omitempty"`
	Name     string      `json:"name,omitempty"`
	Topic    string      `json:"topic,omitempty"`
	Position int         `json:"position,omitempty"`
}

// Message is one message in a channel.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Author    User      `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Server is a guild-style container of channels and members.
type Server struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Icon    string `json:"icon"`
	OwnerID string `json:"owner_id"`
}
