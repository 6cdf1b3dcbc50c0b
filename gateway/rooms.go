package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"vyre-gateway/access"
	"vyre-gateway/contract"
	"vyre-gateway/domain"
	"vyre-gateway/domain/event"
	"vyre-gateway/errors"
)

type sinkResolver interface {
	Sink(connectionID string) (contract.EventSink, bool)
}

// RoomManager enforces the single-active-room rule. The RoomAssignment is
// keyed per user and is the authoritative record; per-connection
// subscription sets are a derived side effect that drives fan-out.
type RoomManager struct {
	mu          sync.RWMutex
	assignments map[string]string // user id -> chat id
	subscribers map[string]set    // chat id -> connection ids
	connRooms   map[string]string // connection id -> chat id
	evaluator   access.IEvaluator
	sessions    sinkResolver
	log         *slog.Logger
}

func NewRoomManager(log *slog.Logger, evaluator access.IEvaluator, sessions sinkResolver) *RoomManager {
	return &RoomManager{
		assignments: make(map[string]string),
		subscribers: make(map[string]set),
		connRooms:   make(map[string]string),
		evaluator:   evaluator,
		sessions:    sessions,
		log:         log,
	}
}

// Join consults the access evaluator, then revokes the user's prior
// RoomAssignment and records the new one. Joining a second room implicitly
// and atomically leaves the first for the joining connection. The
// assignment is only written when the evaluation just performed granted
// access.
func (rm *RoomManager) Join(userID, connectionID, chatID string) (domain.AccessGrant, error) {
	grant, err := rm.evaluator.Evaluate(userID, chatID)
	if err != nil {
		return domain.GrantNone, err
	}
	if !grant.Allows() {
		return grant, errors.ErrAccessDenied
	}

	rm.mu.Lock()
	rm.unsubscribeLocked(connectionID)
	rm.assignments[userID] = chatID
	members, ok := rm.subscribers[chatID]
	if !ok {
		members = make(set)
		rm.subscribers[chatID] = members
	}
	members[connectionID] = struct{}{}
	rm.connRooms[connectionID] = chatID
	rm.mu.Unlock()

	rm.log.Debug(fmt.Sprintf("User %s joined chat %s as %s", userID, chatID, grant))
	return grant, nil
}

// Leave removes the connection's subscription and clears the user's
// RoomAssignment if it matches the chat being left.
func (rm *RoomManager) Leave(userID, connectionID, chatID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.connRooms[connectionID] == chatID {
		rm.unsubscribeLocked(connectionID)
	}
	if rm.assignments[userID] == chatID {
		delete(rm.assignments, userID)
	}
}

// DropConnection cleans up a closed connection's subscription. The user's
// RoomAssignment survives: the original session is restored on reconnect.
func (rm *RoomManager) DropConnection(connectionID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.unsubscribeLocked(connectionID)
}

// Assignment returns the user's current room, if any.
func (rm *RoomManager) Assignment(userID string) (string, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	chatID, ok := rm.assignments[userID]
	return chatID, ok
}

// ClearAssignment drops a stale RoomAssignment, e.g. when a reconnect
// restore finds the grant has been revoked in the meantime.
func (rm *RoomManager) ClearAssignment(userID, chatID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.assignments[userID] == chatID {
		delete(rm.assignments, userID)
	}
}

// BroadcastToChat delivers an event to every connection currently
// subscribed to the chat's room. Subscribers are snapshotted under the read
// lock and sinks consumed outside it.
func (rm *RoomManager) BroadcastToChat(ctx context.Context, chatID string, e event.Outbound) {
	rm.mu.RLock()
	members, ok := rm.subscribers[chatID]
	if !ok {
		rm.mu.RUnlock()
		return
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	rm.mu.RUnlock()

	for _, id := range ids {
		sink, exists := rm.sessions.Sink(id)
		if !exists {
			continue
		}
		if err := sink.Consume(ctx, e); err != nil {
			rm.log.Debug("Room delivery failed", "chat_id", chatID, "connection_id", id, "error", err)
		}
	}
}

// Subscribers returns the connection ids currently in the chat's room.
func (rm *RoomManager) Subscribers(chatID string) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	members, ok := rm.subscribers[chatID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// unsubscribeLocked removes the connection from whatever room it occupies.
// Empty member sets are removed so the map doesn't leak over time.
func (rm *RoomManager) unsubscribeLocked(connectionID string) {
	chatID, ok := rm.connRooms[connectionID]
	if !ok {
		return
	}
	delete(rm.connRooms, connectionID)
	if members, exists := rm.subscribers[chatID]; exists {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(rm.subscribers, chatID)
		}
	}
}
