package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event. The gateway never mutates or
// deletes a message once it has been persisted.
type Message struct {
	ID        uuid.UUID
	ChatID    string
	SenderID  string
	Content   string
	CreatedAt time.Time
}
