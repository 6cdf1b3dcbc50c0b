// Package directory keeps a small read-through projection of the user table
// so delivery payloads can carry display names without a store round-trip.
package directory

import (
	stderrors "errors"
	"sync"

	"vyre-gateway/errors"
	"vyre-gateway/repositories"
)

type Entry struct {
	UserID   string
	Username string
}

// Cache never evicts: the entity set is small and usernames are treated as
// immutable for the cache's lifetime. A concurrent miss for the same key
// may perform redundant lookups; the overwrite is idempotent so no mutual
// exclusion is taken around the store read.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	users   repositories.IUserRepository
}

func NewCache(users repositories.IUserRepository) *Cache {
	return &Cache{
		entries: make(map[string]Entry),
		users:   users,
	}
}

// Resolve returns the directory entry for a user id, reading through to the
// store on a miss. ErrNotFound signals the caller should disconnect or
// reject; store failures pass through wrapped.
func (c *Cache) Resolve(userID string) (Entry, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if ok {
		return entry, nil
	}

	user, err := c.users.GetUserByID(userID)
	if stderrors.Is(err, errors.ErrNotFound) {
		return Entry{}, errors.ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}

	entry = Entry{UserID: user.ID, Username: user.Username}
	c.mu.Lock()
	c.entries[userID] = entry
	c.mu.Unlock()
	return entry, nil
}

// Prime inserts an entry without a store read. Used at handshake time when
// the verified token already carries the username.
func (c *Cache) Prime(userID, username string) {
	c.mu.Lock()
	c.entries[userID] = Entry{UserID: userID, Username: username}
	c.mu.Unlock()
}
