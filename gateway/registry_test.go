package gateway

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vyre-gateway/domain/event"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.Outbound
}

func (s *recordingSink) Consume(_ context.Context, e event.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Events() []event.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Outbound(nil), s.events...)
}

type recordingScheduler struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (r *recordingScheduler) ScheduleOnline(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = append(r.online, userID)
}

func (r *recordingScheduler) ScheduleOffline(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = append(r.offline, userID)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRegistry_Register_FirstConnection_EmitsOnlineEdge(t *testing.T) {
	req := require.New(t)
	scheduler := &recordingScheduler{}
	registry := NewRegistry(testLogger())
	registry.presence = scheduler
	userID := uuid.NewString()

	// When the user's first connection registers
	registry.Register(userID, "c1", &recordingSink{})

	// Then exactly one online edge is emitted
	req.Equal([]string{userID}, scheduler.online)
	req.Empty(scheduler.offline)

	// And a second connection emits no further edge
	registry.Register(userID, "c2", &recordingSink{})
	req.Len(scheduler.online, 1)

	users, connections := registry.Counts()
	req.Equal(1, users)
	req.Equal(2, connections)
}

func TestRegistry_Unregister_LastConnection_EmitsOfflineEdge(t *testing.T) {
	req := require.New(t)
	scheduler := &recordingScheduler{}
	registry := NewRegistry(testLogger())
	registry.presence = scheduler
	userID := uuid.NewString()

	// Given two live connections
	registry.Register(userID, "c1", &recordingSink{})
	registry.Register(userID, "c2", &recordingSink{})

	// When one goes away, no offline edge yet
	registry.Unregister(userID, "c1")
	req.Empty(scheduler.offline)

	// When the last one goes away
	registry.Unregister(userID, "c2")

	// Then exactly one offline edge is emitted
	req.Equal([]string{userID}, scheduler.offline)
	req.Empty(registry.ListConnections(userID))
}

func TestRegistry_Unregister_BeforeRegister_IsNoOp(t *testing.T) {
	req := require.New(t)
	scheduler := &recordingScheduler{}
	registry := NewRegistry(testLogger())
	registry.presence = scheduler

	// When an unregister arrives for a pair that was never registered
	registry.Unregister(uuid.NewString(), "ghost")

	// Then nothing happens
	req.Empty(scheduler.offline)
	users, connections := registry.Counts()
	req.Zero(users)
	req.Zero(connections)
}

func TestRegistry_ListConnections_And_SinksForUser(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(testLogger())
	userID := uuid.NewString()
	sink1 := &recordingSink{}
	sink2 := &recordingSink{}

	registry.Register(userID, "c1", sink1)
	registry.Register(userID, "c2", sink2)

	req.ElementsMatch([]string{"c1", "c2"}, registry.ListConnections(userID))
	req.Len(registry.SinksForUser(userID), 2)

	sink, ok := registry.Sink("c1")
	req.True(ok)
	req.Same(sink1, sink.(*recordingSink))
}

func TestRegistry_BroadcastAll_ReachesEverySession(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(testLogger())
	sinkA := &recordingSink{}
	sinkB := &recordingSink{}
	registry.Register("user-a", "c1", sinkA)
	registry.Register("user-b", "c2", sinkB)

	// When a global event is broadcast
	registry.BroadcastAll(context.Background(), event.UserStatusChanged{UserID: "user-a", IsOnline: true})

	// Then every live session receives it, room membership notwithstanding
	req.Len(sinkA.Events(), 1)
	req.Len(sinkB.Events(), 1)
}
