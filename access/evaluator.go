//go:generate go run go.uber.org/mock/mockgen -source=evaluator.go -destination=../mocks/mock_access.go -package=mocks
// Package access centralizes the chat authorization decision so the gateway
// and the REST collaborators evaluate the exact same rule and cannot drift.
package access

import (
	stderrors "errors"
	"fmt"
	"log/slog"

	"vyre-gateway/domain"
	"vyre-gateway/errors"
	"vyre-gateway/repositories"
)

type IEvaluator interface {
	Evaluate(userID, chatID string) (domain.AccessGrant, error)
}

// Evaluator computes an AccessGrant from three membership predicates:
// a direct membership row for the chat, ownership of the chat's server, or
// a server membership row. The first match wins in priority order
// DirectMember > ServerOwner > ServerMember. The grant is never cached
// across requests: membership can change at any time.
type Evaluator struct {
	memberships repositories.IMembershipRepository
	log         *slog.Logger
}

func NewEvaluator(memberships repositories.IMembershipRepository, log *slog.Logger) *Evaluator {
	return &Evaluator{memberships: memberships, log: log}
}

// Evaluate fails closed: a store failure returns GrantNone together with an
// ErrStore so the caller can surface a server error distinct from a denial,
// but access is never granted on evaluator failure.
func (e *Evaluator) Evaluate(userID, chatID string) (domain.AccessGrant, error) {
	direct, err := e.memberships.IsDirectMember(userID, chatID)
	if err != nil {
		return domain.GrantNone, fmt.Errorf("direct membership check: %w", err)
	}
	if direct {
		return domain.GrantDirectMember, nil
	}

	chat, err := e.memberships.GetChat(chatID)
	if stderrors.Is(err, errors.ErrNotFound) {
		// Unknown chat carries no grant; not a fault.
		return domain.GrantNone, nil
	}
	if err != nil {
		return domain.GrantNone, fmt.Errorf("chat lookup: %w", err)
	}
	if chat.ServerID == "" {
		return domain.GrantNone, nil
	}

	server, err := e.memberships.GetServer(chat.ServerID)
	if stderrors.Is(err, errors.ErrNotFound) {
		e.log.Warn(fmt.Sprintf("Chat %s references missing server %s", chatID, chat.ServerID))
		return domain.GrantNone, nil
	}
	if err != nil {
		return domain.GrantNone, fmt.Errorf("server lookup: %w", err)
	}
	if server.OwnerID == userID {
		return domain.GrantServerOwner, nil
	}

	member, err := e.memberships.IsServerMember(chat.ServerID, userID)
	if err != nil {
		return domain.GrantNone, fmt.Errorf("server membership check: %w", err)
	}
	if member {
		return domain.GrantServerMember, nil
	}

	return domain.GrantNone, nil
}
