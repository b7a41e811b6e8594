// Package session holds the client-side chat state: the user, the chat list,
// the active chat and its transcript. It only stores data; the reconcile
// package decides what gets written.
package session

import (
	"sync"
)

// Store is safe for concurrent use. Values are copied in and out.
type Store struct {
	mu           sync.RWMutex
	user         *User
	chats        []ChatSummary
	activeChatID string
	messages     []Message
}

// NewStore creates an empty, logged out store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.user)
}

func (s *Store) SetUser(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = copyUser(user)
}

func (s *Store) Chats() []ChatSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChatSummary(nil), s.chats...)
}

func (s *Store) SetChats(chats []ChatSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append([]ChatSummary(nil), chats...)
}

// HasChat reports whether id is in the chat list.
func (s *Store) HasChat(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.chats, id) >= 0
}

func (s *Store) ActiveChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeChatID
}

func (s *Store) SetActiveChatID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeChatID = id
}

func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

func (s *Store) AppendMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *Store) ReplaceMessages(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]Message(nil), msgs...)
}

// TruncateMessages keeps the first n messages.
func (s *Store) TruncateMessages(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n < len(s.messages) {
		s.messages = s.messages[:n:n]
	}
}

// Reset returns the store to the logged out state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.chats = nil
	s.activeChatID = ""
	s.messages = nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		User:         copyUser(s.user),
		Chats:        append([]ChatSummary(nil), s.chats...),
		ActiveChatID: s.activeChatID,
		Messages:     append([]Message(nil), s.messages...),
	}
}

func copyUser(user *User) *User {
	if user == nil {
		return nil
	}
	c := *user
	return &c
}

func indexOf(chats []ChatSummary, id string) int {
	for i, chat := range chats {
		if chat.ID == id {
			return i
		}
	}
	return -1
}
