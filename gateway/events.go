package gateway

import (
	"encoding/json"
	stderrors "errors"
	"time"

	"vyre-gateway/domain/event"
	"vyre-gateway/errors"
)

// envelope is the inbound wire frame. Ref is an opaque caller correlation
// id echoed back on acks and errors.
type envelope struct {
	Type string          `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// outboundFrame is the outbound wire frame. Data carries the event payload
// under the event's wire name.
type outboundFrame struct {
	Type string         `json:"type"`
	Ref  string         `json:"ref,omitempty"`
	Data event.Outbound `json:"data,omitempty"`
}

type joinPayload struct {
	ChatID string `json:"chat_id" validate:"required"`
}

type leavePayload struct {
	ChatID string `json:"chat_id" validate:"required"`
}

type sendPayload struct {
	ChatID  string `json:"chat_id" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type historyPayload struct {
	ChatID string  `json:"chat_id" validate:"required"`
	Cursor *string `json:"cursor,omitempty"`
}

// ackData acknowledges a successful send with the generated message id and
// its persistence timestamp.
type ackData struct {
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (ackData) EventType() string { return "ack" }

type errorData struct {
	Reason string `json:"reason"`
}

func (errorData) EventType() string { return "error" }

type pongData struct{}

func (pongData) EventType() string { return "pong" }

type historyItem struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type historyData struct {
	ChatID   string        `json:"chat_id"`
	Messages []historyItem `json:"messages"`
	Cursor   *string       `json:"cursor,omitempty"`
}

func (historyData) EventType() string { return "history" }

// reasonFor maps the error taxonomy onto wire reasons. Store faults are
// surfaced as a generic failure distinct from a denial so callers can tell
// "you may not" from "we could not".
func reasonFor(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrValidation):
		return "invalid_payload"
	case stderrors.Is(err, errors.ErrAccessDenied):
		return "access_denied"
	case stderrors.Is(err, errors.ErrNotFound):
		return "not_found"
	case stderrors.Is(err, errors.ErrPersist), stderrors.Is(err, errors.ErrStore):
		return "server_error"
	default:
		return "server_error"
	}
}
