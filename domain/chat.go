package domain

import "time"

// Chat is a channel users exchange messages in. A chat either belongs to a
// server (ServerID set) or stands alone as a direct conversation reachable
// only through explicit per-user membership.
type Chat struct {
	ID        string
	Name      string
	Category  string
	ServerID  string
	IsDirect  bool
	CreatedAt time.Time
}
