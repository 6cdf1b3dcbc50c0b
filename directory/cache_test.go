package directory

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vyre-gateway/domain"
	"vyre-gateway/errors"
)

type countingUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
	reads int
}

func (c *countingUsers) CreateUser(username, password string) (string, error) {
	return "", nil
}

func (c *countingUsers) GetUserByID(id string) (domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	user, ok := c.users[id]
	if !ok {
		return domain.User{}, errors.ErrNotFound
	}
	return user, nil
}

func (c *countingUsers) GetUserByUsername(username string) (domain.User, error) {
	return domain.User{}, errors.ErrNotFound
}

func (c *countingUsers) SetOnline(userID string, online bool, at time.Time) error {
	return nil
}

func (c *countingUsers) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func TestCache_Resolve_ReadsThroughOnce(t *testing.T) {
	req := require.New(t)
	userID := uuid.NewString()
	store := &countingUsers{users: map[string]domain.User{
		userID: {ID: userID, Username: "alice"},
	}}
	cache := NewCache(store)

	// First resolve misses and reads the store
	entry, err := cache.Resolve(userID)
	req.NoError(err)
	req.Equal("alice", entry.Username)
	req.Equal(1, store.Reads())

	// Second resolve is served from the cache
	entry, err = cache.Resolve(userID)
	req.NoError(err)
	req.Equal("alice", entry.Username)
	req.Equal(1, store.Reads())
}

func TestCache_Resolve_UnknownUser(t *testing.T) {
	req := require.New(t)
	cache := NewCache(&countingUsers{users: map[string]domain.User{}})

	_, err := cache.Resolve(uuid.NewString())
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestCache_Resolve_MissIsNotCached(t *testing.T) {
	req := require.New(t)
	userID := uuid.NewString()
	store := &countingUsers{users: map[string]domain.User{}}
	cache := NewCache(store)

	_, err := cache.Resolve(userID)
	req.ErrorIs(err, errors.ErrNotFound)

	// The user appears later; the cache must pick it up
	store.mu.Lock()
	store.users[userID] = domain.User{ID: userID, Username: "alice"}
	store.mu.Unlock()

	entry, err := cache.Resolve(userID)
	req.NoError(err)
	req.Equal("alice", entry.Username)
}

func TestCache_Prime_SkipsStoreRead(t *testing.T) {
	req := require.New(t)
	store := &countingUsers{users: map[string]domain.User{}}
	cache := NewCache(store)
	userID := uuid.NewString()

	cache.Prime(userID, "alice")

	entry, err := cache.Resolve(userID)
	req.NoError(err)
	req.Equal("alice", entry.Username)
	req.Equal(0, store.Reads())
}

func TestCache_Resolve_ConcurrentMissesConverge(t *testing.T) {
	req := require.New(t)
	userID := uuid.NewString()
	store := &countingUsers{users: map[string]domain.User{
		userID: {ID: userID, Username: "alice"},
	}}
	cache := NewCache(store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := cache.Resolve(userID)
			req.NoError(err)
			req.Equal("alice", entry.Username)
		}()
	}
	wg.Wait()
}
