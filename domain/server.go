package domain

import "time"

// Server groups chats under a single owner. Membership in a server grants
// access to every chat attached to it.
type Server struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	InviteCode  string
	CreatedAt   time.Time
}
