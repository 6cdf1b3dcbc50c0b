//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"vyre-gateway/auth"
	"vyre-gateway/domain"
	"vyre-gateway/errors"
)

type IUserRepository interface {
	CreateUser(username, password string) (string, error)
	GetUserByID(id string) (domain.User, error)
	GetUserByUsername(username string) (domain.User, error)
	SetOnline(userID string, online bool, at time.Time) error
}

// UserRepository persists account records in BadgerDB.
// Keys: "user:{id}" holds the record, "username:{name}" is a unique index
// pointing back at the id so logins resolve in one extra read.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

type diskUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Roles        []string  `json:"roles"`
	IsOnline     bool      `json:"is_online"`
	LastActive   time.Time `json:"last_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUser hashes the password and persists the user.
// It returns the newly generated user id.
func (u *UserRepository) CreateUser(username, password string) (string, error) {
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("password hashing failed: %w", err)
	}

	newID := uuid.NewString()
	now := time.Now().UTC()
	data, err := json.Marshal(diskUser{
		ID:           newID,
		Username:     username,
		PasswordHash: hashed,
		Roles:        []string{"user"},
		LastActive:   now,
		CreatedAt:    now,
	})
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		indexKey := []byte("username:" + username)
		if _, err := txn.Get(indexKey); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(indexKey, []byte(newID)); err != nil {
			return err
		}
		return txn.Set([]byte("user:"+newID), data)
	})

	return newID, err
}

func (u *UserRepository) GetUserByID(id string) (domain.User, error) {
	var disk diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:" + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.User{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrStore, err)
	}
	return toUser(disk), nil
}

func (u *UserRepository) GetUserByUsername(username string) (domain.User, error) {
	var id string
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("username:" + username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.User{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrStore, err)
	}
	return u.GetUserByID(id)
}

// SetOnline flips the persisted presence flag and stamps last activity.
// The record is read-modified-written inside one transaction.
func (u *UserRepository) SetOnline(userID string, online bool, at time.Time) error {
	key := []byte("user:" + userID)
	err := u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var disk diskUser
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		}); err != nil {
			return err
		}
		disk.IsOnline = online
		disk.LastActive = at
		data, err := json.Marshal(disk)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err == badger.ErrKeyNotFound {
		return errors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStore, err)
	}
	return nil
}

func toUser(disk diskUser) domain.User {
	return domain.User{
		ID:           disk.ID,
		Username:     disk.Username,
		PasswordHash: disk.PasswordHash,
		Roles:        disk.Roles,
		IsOnline:     disk.IsOnline,
		LastActive:   disk.LastActive,
		CreatedAt:    disk.CreatedAt,
	}
}
