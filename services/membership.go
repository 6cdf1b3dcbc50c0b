// Package services holds the business operations the REST collaborators
// call into. They live beside the gateway so membership changes and live
// notifications cannot drift apart.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"vyre-gateway/directory"
	"vyre-gateway/domain/event"
	"vyre-gateway/gateway"
	"vyre-gateway/repositories"
)

type MembershipService struct {
	memberships repositories.IMembershipRepository
	directory   *directory.Cache
	registry    *gateway.Registry
	rooms       *gateway.RoomManager
	log         *slog.Logger
}

func NewMembershipService(memberships repositories.IMembershipRepository,
	dir *directory.Cache, registry *gateway.Registry, rooms *gateway.RoomManager,
	log *slog.Logger) *MembershipService {
	return &MembershipService{
		memberships: memberships,
		directory:   dir,
		registry:    registry,
		rooms:       rooms,
		log:         log,
	}
}

// RemoveServerMember deletes the membership row, announces the removal in
// each of the server's chat rooms, and notifies the removed user's own
// connections directly so the client drops server state immediately.
// Notifications go out after the store write: the row is the authority, the
// events are a projection of it.
func (s *MembershipService) RemoveServerMember(ctx context.Context, serverID, userID string) error {
	server, err := s.memberships.GetServer(serverID)
	if err != nil {
		return fmt.Errorf("server lookup: %w", err)
	}

	if err := s.memberships.RemoveServerMember(serverID, userID); err != nil {
		return fmt.Errorf("membership removal: %w", err)
	}

	username := "Unknown user"
	if entry, err := s.directory.Resolve(userID); err == nil {
		username = entry.Username
	}

	chats, err := s.memberships.ListServerChats(serverID)
	if err != nil {
		// The row is gone; the room announcements are best-effort.
		s.log.Error("Chat listing failed after removal", "server_id", serverID, "error", err)
	}
	for _, chat := range chats {
		s.rooms.BroadcastToChat(ctx, chat.ID, event.MemberRemoved{
			UserID:   userID,
			Username: username,
			ServerID: serverID,
			ChatID:   chat.ID,
		})
	}

	revoked := event.ServerAccessRevoked{UserID: userID, ServerID: serverID}
	for _, sink := range s.registry.SinksForUser(userID) {
		if err := sink.Consume(ctx, revoked); err != nil {
			s.log.Debug("Revocation delivery failed", "user_id", userID, "error", err)
		}
	}

	s.log.Info(fmt.Sprintf("User %s (%s) removed from server %s (%s)",
		userID, username, serverID, server.Name))
	return nil
}
