// Package domain contains core concepts of the Vyre chat system.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// User mirrors the persistent user record. Presence fields (IsOnline,
// LastActive) are best-effort projections maintained by the presence
// debouncer; current-connection topology is the only authoritative
// in-memory state.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Roles        []string
	IsOnline     bool
	LastActive   time.Time
	CreatedAt    time.Time
}
