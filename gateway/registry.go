package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"vyre-gateway/contract"
	"vyre-gateway/domain/event"
)

type set map[string]struct{}

// presenceScheduler receives the registry's connection edges. Only the
// first connection of a user produces a "became active" edge, and only the
// last one going away produces a "became inactive" edge.
type presenceScheduler interface {
	ScheduleOnline(userID string)
	ScheduleOffline(userID string)
}

// Registry is the single authority over live transport sessions. It maps
// connection ids to their delivery sinks and users to their connection id
// sets. Nothing else mutates this topology.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]contract.EventSink // connection id -> sink
	userConns map[string]set                // user id -> connection ids
	presence  presenceScheduler
	log       *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		sessions:  make(map[string]contract.EventSink),
		userConns: make(map[string]set),
		log:       log,
	}
}

// Register appends a connection to the user's live set. The presence edge
// is emitted after the lock is released so a slow debouncer cannot stall
// registration.
func (r *Registry) Register(userID, connectionID string, sink contract.EventSink) {
	r.mu.Lock()
	r.sessions[connectionID] = sink
	conns, ok := r.userConns[userID]
	if !ok {
		conns = make(set)
		r.userConns[userID] = conns
	}
	conns[connectionID] = struct{}{}
	first := len(conns) == 1
	total := len(conns)
	r.mu.Unlock()

	r.log.Debug(fmt.Sprintf("Connection %s registered for user %s (%d active)", connectionID, userID, total))
	if first && r.presence != nil {
		r.presence.ScheduleOnline(userID)
	}
}

// Unregister removes the connection id. An unregister for a pair that was
// never registered is a no-op: receipt order is authoritative and an
// out-of-order unregister must not disturb the presence state.
func (r *Registry) Unregister(userID, connectionID string) {
	r.mu.Lock()
	conns, ok := r.userConns[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, ok := conns[connectionID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, connectionID)
	delete(conns, connectionID)
	last := len(conns) == 0
	if last {
		delete(r.userConns, userID)
	}
	r.mu.Unlock()

	r.log.Debug(fmt.Sprintf("Connection %s unregistered for user %s", connectionID, userID))
	if last && r.presence != nil {
		r.presence.ScheduleOffline(userID)
	}
}

// ListConnections returns the user's live connection ids. Used for
// direct-to-user notifications such as server access revocation, not for
// room broadcast.
func (r *Registry) ListConnections(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.userConns[userID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

// Sink resolves a connection id into its delivery sink.
func (r *Registry) Sink(connectionID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sessions[connectionID]
	return sink, ok
}

// SinksForUser resolves all of a user's live sinks.
func (r *Registry) SinksForUser(userID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.userConns[userID]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(conns))
	for id := range conns {
		if sink, exists := r.sessions[id]; exists {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// BroadcastAll delivers an event to every live connection. Presence is
// global, not room-scoped. Sinks are snapshotted under the read lock and
// consumed outside it.
func (r *Registry) BroadcastAll(ctx context.Context, e event.Outbound) {
	r.mu.RLock()
	sinks := make([]contract.EventSink, 0, len(r.sessions))
	for _, sink := range r.sessions {
		sinks = append(sinks, sink)
	}
	r.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Consume(ctx, e); err != nil {
			r.log.Debug("Broadcast delivery failed", "event", e.EventType(), "error", err)
		}
	}
}

// Counts reports the current topology for the census worker.
func (r *Registry) Counts() (users, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConns), len(r.sessions)
}
