package domain

// AccessGrant is the outcome of evaluating a user's authorization to act on
// a chat. It is derived per request and never cached: membership facts can
// change at any time.
type AccessGrant int

const (
	GrantNone AccessGrant = iota
	GrantDirectMember
	GrantServerOwner
	GrantServerMember
)

// Allows reports whether the grant permits access. Any non-None grant has
// the same authorization effect; the distinction only matters for reporting.
func (g AccessGrant) Allows() bool {
	return g != GrantNone
}

func (g AccessGrant) String() string {
	switch g {
	case GrantDirectMember:
		return "direct_member"
	case GrantServerOwner:
		return "server_owner"
	case GrantServerMember:
		return "server_member"
	default:
		return "none"
	}
}
