package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vyre-gateway/access"
	"vyre-gateway/directory"
	"vyre-gateway/domain"
	"vyre-gateway/domain/event"
	"vyre-gateway/errors"
	"vyre-gateway/moderation"
	"vyre-gateway/repositories"
)

// Pipeline validates, persists, and fans out chat messages. Persistence is
// the single source of truth: a message is enqueued for delivery only after
// its store write has been acknowledged, so a ghost message visible only
// in-memory cannot exist.
//
// Pipeline is also the fanout worker: Run drains the delivery queue in
// order, so per-room delivery order matches persistence-completion order.
type Pipeline struct {
	messages   repositories.IMessageRepository
	evaluator  access.IEvaluator
	directory  *directory.Cache
	rooms      *RoomManager
	moderator  *moderation.Moderator
	deliveries chan event.NewMessage
	log        *slog.Logger
}

func NewPipeline(log *slog.Logger, messages repositories.IMessageRepository,
	evaluator access.IEvaluator, dir *directory.Cache, rooms *RoomManager,
	moderator *moderation.Moderator, bufferSize int) *Pipeline {
	return &Pipeline{
		messages:   messages,
		evaluator:  evaluator,
		directory:  dir,
		rooms:      rooms,
		moderator:  moderator,
		deliveries: make(chan event.NewMessage, bufferSize),
		log:        log,
	}
}

// Submit runs the full ingestion path for one message and acknowledges the
// caller with the persisted message. Errors map onto the gateway taxonomy:
// ErrValidation before any store access, ErrAccessDenied on a None grant,
// ErrStore/ErrPersist on collaborator failure.
func (p *Pipeline) Submit(ctx context.Context, senderID, chatID, content string) (domain.Message, error) {
	if chatID == "" || strings.TrimSpace(content) == "" {
		return domain.Message{}, errors.ErrValidation
	}

	grant, err := p.evaluator.Evaluate(senderID, chatID)
	if err != nil {
		return domain.Message{}, err
	}
	if !grant.Allows() {
		return domain.Message{}, errors.ErrAccessDenied
	}

	message := domain.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   p.moderator.Censor(content),
		CreatedAt: time.Now().UTC(),
	}
	if err := p.messages.StoreMessage(message); err != nil {
		// Persistence failed: the message is delivered to no one.
		return domain.Message{}, err
	}

	username := "Unknown user"
	if entry, err := p.directory.Resolve(senderID); err == nil {
		username = entry.Username
	}

	delivery := event.NewMessage{
		ID:        message.ID,
		ChatID:    message.ChatID,
		UserID:    message.SenderID,
		Username:  username,
		Content:   message.Content,
		CreatedAt: message.CreatedAt,
	}
	select {
	case p.deliveries <- delivery:
	case <-ctx.Done():
		// The message is durable; the caller went away before fan-out.
		p.log.Warn("Caller gone before delivery enqueue", "message_id", message.ID)
	}

	return message, nil
}

// History returns a page of the chat's persisted messages, newest first,
// under the same access rule as Submit.
func (p *Pipeline) History(userID, chatID string, cursor *string) ([]domain.Message, *string, error) {
	if chatID == "" {
		return nil, nil, errors.ErrValidation
	}

	grant, err := p.evaluator.Evaluate(userID, chatID)
	if err != nil {
		return nil, nil, err
	}
	if !grant.Allows() {
		return nil, nil, errors.ErrAccessDenied
	}

	return p.messages.GetMessages(chatID, cursor)
}

// Run is the fanout loop, supervised as a worker. One consumer drains the
// queue so room delivery order is the enqueue order.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("Stopping message fanout")
			return nil
		case delivery := <-p.deliveries:
			p.rooms.BroadcastToChat(ctx, delivery.ChatID, delivery)
		}
	}
}
