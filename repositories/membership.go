//go:generate go run go.uber.org/mock/mockgen -source=membership.go -destination=../mocks/mock_membership_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"vyre-gateway/domain"
	"vyre-gateway/errors"
)

type IMembershipRepository interface {
	CreateServer(name, description, ownerID, inviteCode string) (domain.Server, error)
	GetServer(serverID string) (domain.Server, error)
	CreateChat(name, category, serverID string, isDirect bool) (domain.Chat, error)
	GetChat(chatID string) (domain.Chat, error)
	ListServerChats(serverID string) ([]domain.Chat, error)

	AddDirectMember(userID, chatID string) error
	IsDirectMember(userID, chatID string) (bool, error)
	AddServerMember(serverID, userID, role string) error
	IsServerMember(serverID, userID string) (bool, error)
	RemoveServerMember(serverID, userID string) error
}

// MembershipRepository persists the relational membership model in BadgerDB.
// Keys:
//
//	server:{id}                      server record
//	chat:{id}                        chat record
//	serverchats:{serverID}:{chatID}  index for per-server chat listing
//	chatmember:{chatID}:{userID}     direct membership row
//	servermember:{serverID}:{userID} server membership row
type MembershipRepository struct {
	db *badger.DB
}

func NewMembershipRepository(db *badger.DB) IMembershipRepository {
	return &MembershipRepository{db: db}
}

type diskServer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	InviteCode  string    `json:"invite_code"`
	CreatedAt   time.Time `json:"created_at"`
}

type diskChat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	ServerID  string    `json:"server_id"`
	IsDirect  bool      `json:"is_direct"`
	CreatedAt time.Time `json:"created_at"`
}

type diskServerMember struct {
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func (m *MembershipRepository) CreateServer(name, description, ownerID, inviteCode string) (domain.Server, error) {
	server := domain.Server{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		InviteCode:  inviteCode,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(fromServer(server))
	if err != nil {
		return domain.Server{}, fmt.Errorf("marshal failed: %w", err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("server:"+server.ID), data)
	})
	if err != nil {
		return domain.Server{}, fmt.Errorf("%w: %v", errors.ErrStore, err)
	}
	return server, nil
}

func (m *MembershipRepository) GetServer(serverID string) (domain.Server, error) {
	var disk diskServer
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("server:" + serverID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Server{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Server{}, fmt.Errorf("%w: %v", errors.ErrStore, err)
	}
	return toServer(disk), nil
}

func (m *MembershipRepository) CreateChat(name, category, serverID string, isDirect bool) (domain.Chat, error) {
	chat := domain.Chat{
		ID:        uuid.NewString(),
		Name:      name,
		Category:  category,
		ServerID:  serverID,
		IsDirect:  isDirect,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(fromChat(chat))
	if err != nil {
		return domain.Chat{}, fmt.Errorf("marshal failed: %w", err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte("chat:"+chat.ID), data); err != nil {
			return err
		}
		if serverID != "" {
			return txn.Set([]byte("serverchats:"+serverID+":"+chat.ID), nil)
		}
		return nil
	})
	if err != nil {
		return domain.Chat{}, fmt.Errorf("%w: %v", errors.ErrStore, err)
	}
	return chat, nil
}

func (m *MembershipRepository) GetChat(chatID string) (domain.Chat, error) {
	var disk diskChat
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("chat:" + chatID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Chat{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Chat{}, fmt.Errorf("%w: %v", errors.ErrStore, err)
	}
	return toChat(disk), nil
}

// ListServerChats resolves the per-server chat index, then each chat record.
func (m *MembershipRepository) ListServerChats(serverID string) ([]domain.Chat, error) {
	var chatIDs []string
	prefix := []byte("serverchats:" + serverID + ":")
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			chatIDs = append(chatIDs, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStore, err)
	}

	chats := make([]domain.Chat, 0, len(chatIDs))
	for _, id := range chatIDs {
		chat, err := m.GetChat(id)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func (m *MembershipRepository) AddDirectMember(userID, chatID string) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(memberKey("chatmember:", chatID, userID), nil)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStore, err)
	}
	return nil
}

func (m *MembershipRepository) IsDirectMember(userID, chatID string) (bool, error) {
	return m.exists(memberKey("chatmember:", chatID, userID))
}

func (m *MembershipRepository) AddServerMember(serverID, userID, role string) error {
	data, err := json.Marshal(diskServerMember{Role: role, JoinedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(memberKey("servermember:", serverID, userID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStore, err)
	}
	return nil
}

func (m *MembershipRepository) IsServerMember(serverID, userID string) (bool, error) {
	return m.exists(memberKey("servermember:", serverID, userID))
}

func (m *MembershipRepository) RemoveServerMember(serverID, userID string) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(memberKey("servermember:", serverID, userID))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStore, err)
	}
	return nil
}

func (m *MembershipRepository) exists(key []byte) (bool, error) {
	err := m.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrStore, err)
	}
	return true, nil
}

func memberKey(prefix, ownerID, userID string) []byte {
	return []byte(prefix + ownerID + ":" + userID)
}

func fromServer(s domain.Server) diskServer {
	return diskServer{ID: s.ID, Name: s.Name, Description: s.Description,
		OwnerID: s.OwnerID, InviteCode: s.InviteCode, CreatedAt: s.CreatedAt}
}

func toServer(d diskServer) domain.Server {
	return domain.Server{ID: d.ID, Name: d.Name, Description: d.Description,
		OwnerID: d.OwnerID, InviteCode: d.InviteCode, CreatedAt: d.CreatedAt}
}

func fromChat(c domain.Chat) diskChat {
	return diskChat{ID: c.ID, Name: c.Name, Category: c.Category,
		ServerID: c.ServerID, IsDirect: c.IsDirect, CreatedAt: c.CreatedAt}
}

func toChat(d diskChat) domain.Chat {
	return domain.Chat{ID: d.ID, Name: d.Name, Category: d.Category,
		ServerID: d.ServerID, IsDirect: d.IsDirect, CreatedAt: d.CreatedAt}
}
