// Package event defines the outbound notifications the gateway pushes to
// live connections. Every event carries its wire name so the transport can
// frame it without type switches at each call site.
package event

import (
	"time"

	"github.com/google/uuid"
)

type Outbound interface {
	EventType() string
}

// NewMessage is delivered to every connection subscribed to the chat's room,
// strictly after the message's persistence write has been acknowledged.
type NewMessage struct {
	ID        uuid.UUID `json:"id"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (NewMessage) EventType() string { return "newMessage" }

// UserStatusChanged is global: presence is not scoped to a room.
type UserStatusChanged struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}

func (UserStatusChanged) EventType() string { return "userStatusChanged" }

// JoinedChat confirms a join to the joining connection only.
type JoinedChat struct {
	ChatID string `json:"chat_id"`
}

func (JoinedChat) EventType() string { return "joinedChat" }

// MemberRemoved is emitted into each chat room of a server when a member is
// removed from it by the membership collaborator.
type MemberRemoved struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	ServerID string `json:"server_id"`
	ChatID   string `json:"chat_id"`
}

func (MemberRemoved) EventType() string { return "memberRemoved" }

// ServerAccessRevoked is delivered to the removed user's own connections so
// the client drops server state immediately instead of on the next denied
// request.
type ServerAccessRevoked struct {
	UserID   string `json:"user_id"`
	ServerID string `json:"server_id"`
}

func (ServerAccessRevoked) EventType() string { return "serverAccessRevoked" }
