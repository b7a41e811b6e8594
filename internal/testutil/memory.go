package testutil

import (
	"chatly/internal/repository/db"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryDatabase is an in-memory db.Database for handler and client tests.
// Every write advances a fake clock by one second.
type MemoryDatabase struct {
	mu       sync.Mutex
	users    map[string]*db.User
	chats    map[string]*db.Chat
	messages map[string][]db.Message
	seq      int
}

var _ db.Database = (*MemoryDatabase)(nil)

// NewMemoryDatabase creates an empty MemoryDatabase
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		users:    map[string]*db.User{},
		chats:    map[string]*db.Chat{},
		messages: map[string][]db.Message{},
	}
}

func (m *MemoryDatabase) nextLocked() (string, time.Time) {
	m.seq++
	return fmt.Sprint(m.seq), time.Unix(1700000000+int64(m.seq), 0)
}

// User returns a copy of the stored user
func (m *MemoryDatabase) User(username string) (db.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return db.User{}, false
	}
	return *u, true
}

// Chat returns a copy of the stored chat
func (m *MemoryDatabase) Chat(id string) (db.Chat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok {
		return db.Chat{}, false
	}
	return *c, true
}

// ChatCount returns the number of stored chats
func (m *MemoryDatabase) ChatCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chats)
}

// Messages returns a copy of the messages of a chat
func (m *MemoryDatabase) Messages(chatID string) []db.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]db.Message(nil), m.messages[chatID]...)
}

func (m *MemoryDatabase) userByIDLocked(userID string) *db.User {
	for _, u := range m.users {
		if u.ID == userID {
			return u
		}
	}
	return nil
}

func (m *MemoryDatabase) CreateUser(username, passwordHash string, settings db.Settings) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return nil, db.ErrUserExists
	}
	id, now := m.nextLocked()
	u := &db.User{ID: "u" + id, Username: username, PasswordHash: passwordHash, Settings: settings, CreatedAt: now}
	m.users[username] = u
	copied := *u
	return &copied, nil
}

func (m *MemoryDatabase) GetUserByUsername(username string) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *MemoryDatabase) UpdateUserSettings(userID string, settings db.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.userByIDLocked(userID)
	if u == nil {
		return db.ErrNotFound
	}
	u.Settings = settings
	return nil
}

func (m *MemoryDatabase) UpdateUserPassword(userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.userByIDLocked(userID)
	if u == nil {
		return db.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *MemoryDatabase) DeleteUser(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.userByIDLocked(userID)
	if u == nil {
		return db.ErrNotFound
	}
	delete(m.users, u.Username)
	m.deleteChatsLocked(userID)
	return nil
}

func (m *MemoryDatabase) CreateChat(id, userID, title string) (*db.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, now := m.nextLocked()
	c := &db.Chat{ID: id, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}
	m.chats[id] = c
	copied := *c
	return &copied, nil
}

func (m *MemoryDatabase) GetChat(id string) (*db.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *MemoryDatabase) GetChatsByUser(userID string) ([]db.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Chat
	for _, c := range m.chats {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryDatabase) RenameChat(id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok {
		return db.ErrNotFound
	}
	c.Title = title
	return nil
}

func (m *MemoryDatabase) DeleteChat(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.chats, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryDatabase) DeleteChatsByUser(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteChatsLocked(userID)
	return nil
}

func (m *MemoryDatabase) deleteChatsLocked(userID string) {
	for id, c := range m.chats {
		if c.UserID == userID {
			delete(m.chats, id)
			delete(m.messages, id)
		}
	}
}

func (m *MemoryDatabase) AddMessage(chatID, role, content string) (*db.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok {
		return nil, db.ErrNotFound
	}
	id, now := m.nextLocked()
	msg := db.Message{ID: id, ChatID: chatID, Role: role, Content: content, CreatedAt: now}
	m.messages[chatID] = append(m.messages[chatID], msg)
	c.UpdatedAt = now
	return &msg, nil
}

func (m *MemoryDatabase) GetChatMessages(chatID string) ([]db.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]db.Message(nil), m.messages[chatID]...), nil
}

func (m *MemoryDatabase) DeleteMessage(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for chatID, msgs := range m.messages {
		for i, msg := range msgs {
			if msg.ID == id {
				m.messages[chatID] = append(msgs[:i:i], msgs[i+1:]...)
				return nil
			}
		}
	}
	return db.ErrNotFound
}
