// Package gatewaytest provides an in-memory gateway whose calls can be held
// and released to force a completion order.
package gatewaytest

import (
	"chatly/internal/chaterr"
	"chatly/internal/gateway"
	"chatly/internal/session"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Op names a gateway method.
type Op string

const (
	OpLogin          Op = "login"
	OpRegister       Op = "register"
	OpLogout         Op = "logout"
	OpCurrentUser    Op = "current_user"
	OpListChats      Op = "list_chats"
	OpGetChat        Op = "get_chat"
	OpCreateChat     Op = "create_chat"
	OpRenameChat     Op = "rename_chat"
	OpDeleteChat     Op = "delete_chat"
	OpClearChats     Op = "clear_chats"
	OpSendMessage    Op = "send_message"
	OpUpdateSettings Op = "update_settings"
	OpChangePassword Op = "change_password"
	OpDeleteAccount  Op = "delete_account"
)

// Gate holds one call after the backend did its work and before the
// response reaches the caller.
type Gate struct {
	Entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// Release lets the held call return.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

func (g *Gate) wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	close(g.Entered)
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type chat struct {
	summary  session.ChatSummary
	messages []session.Message
}

type account struct {
	password string
	user     session.User
}

// Fake is a scripted gateway.Gateway backed by in-memory state.
type Fake struct {
	mu       sync.Mutex
	now      func() time.Time
	accounts map[string]*account
	current  string
	chats    []*chat
	seq      int
	holds    map[Op][]*Gate
	fails    map[Op][]error
	calls    map[Op]int
	sends    []gateway.SendRequest

	// ReplyTime, when set, stamps assistant replies instead of the clock.
	ReplyTime func() time.Time
}

var _ gateway.Gateway = (*Fake)(nil)

// NewFake creates an empty backend using now for timestamps.
func NewFake(now func() time.Time) *Fake {
	if now == nil {
		now = time.Now
	}
	return &Fake{
		now:      now,
		accounts: make(map[string]*account),
		holds:    make(map[Op][]*Gate),
		fails:    make(map[Op][]error),
		calls:    make(map[Op]int),
	}
}

// AddUser creates an account.
func (f *Fake) AddUser(username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[username] = &account{password: password, user: defaultUser(username)}
}

// LoginAs marks username as the owner of the session cookie.
func (f *Fake) LoginAs(username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[username]; !ok {
		f.accounts[username] = &account{password: "password", user: defaultUser(username)}
	}
	f.current = username
}

// ExpireSession drops the session as if the cookie expired.
func (f *Fake) ExpireSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = ""
}

// AddChat stores a chat on the backend, most recent first.
func (f *Fake) AddChat(id, title string, msgs ...session.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &chat{summary: session.ChatSummary{ID: id, Title: title, Timestamp: f.now()}, messages: msgs}
	f.chats = append([]*chat{c}, f.chats...)
}

// RemoveChat deletes a chat behind the client's back.
func (f *Fake) RemoveChat(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(id)
}

// Hold makes the next call of op block until the returned gate is released.
func (f *Fake) Hold(op Op) *Gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &Gate{Entered: make(chan struct{}), release: make(chan struct{})}
	f.holds[op] = append(f.holds[op], g)
	return g
}

// FailNext makes the next call of op return err without touching state.
func (f *Fake) FailNext(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[op] = append(f.fails[op], err)
}

// Calls returns how often op was called.
func (f *Fake) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Sends returns every send request received.
func (f *Fake) Sends() []gateway.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.SendRequest(nil), f.sends...)
}

// Transcript returns the stored messages of a chat.
func (f *Fake) Transcript(id string) []session.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.findLocked(id); c != nil {
		return append([]session.Message(nil), c.messages...)
	}
	return nil
}

// ChatIDs returns the stored chat ids, most recent first.
func (f *Fake) ChatIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.chats))
	for _, c := range f.chats {
		ids = append(ids, c.summary.ID)
	}
	return ids
}

// begin records the call and returns an injected failure and the gate.
func (f *Fake) begin(op Op) (*Gate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	var err error
	if errs := f.fails[op]; len(errs) > 0 {
		err, f.fails[op] = errs[0], errs[1:]
	}
	var g *Gate
	if gates := f.holds[op]; len(gates) > 0 {
		g, f.holds[op] = gates[0], gates[1:]
	}
	return g, err
}

// run performs work unless a failure was injected, then waits on any gate.
func (f *Fake) run(ctx context.Context, op Op, work func() error) error {
	g, injected := f.begin(op)
	var err error
	if injected != nil {
		err = injected
	} else {
		f.mu.Lock()
		err = work()
		f.mu.Unlock()
	}
	if waitErr := g.wait(ctx); waitErr != nil {
		return waitErr
	}
	return err
}

func (f *Fake) authLocked() (*account, error) {
	if f.current == "" {
		return nil, chaterr.NewAuthError(chaterr.ReasonUnauthenticated, "Not logged in")
	}
	acc, ok := f.accounts[f.current]
	if !ok {
		return nil, chaterr.NewAuthError(chaterr.ReasonUnauthenticated, "Not logged in")
	}
	return acc, nil
}

func (f *Fake) findLocked(id string) *chat {
	for _, c := range f.chats {
		if c.summary.ID == id {
			return c
		}
	}
	return nil
}

func (f *Fake) removeLocked(id string) {
	kept := f.chats[:0]
	for _, c := range f.chats {
		if c.summary.ID != id {
			kept = append(kept, c)
		}
	}
	f.chats = kept
}

func (f *Fake) Login(ctx context.Context, username, password string) (*session.User, error) {
	var user *session.User
	err := f.run(ctx, OpLogin, func() error {
		acc, ok := f.accounts[username]
		if !ok {
			return chaterr.NewAuthError(chaterr.ReasonUserNotFound, "User not found")
		}
		if acc.password != password {
			return chaterr.NewAuthError(chaterr.ReasonInvalidPassword, "Incorrect password")
		}
		f.current = username
		u := acc.user
		user = &u
		return nil
	})
	return user, err
}

func (f *Fake) Register(ctx context.Context, username, password string) (*session.User, error) {
	var user *session.User
	err := f.run(ctx, OpRegister, func() error {
		if _, ok := f.accounts[username]; ok {
			return chaterr.NewAuthError(chaterr.ReasonUserExists, "Username already exists")
		}
		acc := &account{password: password, user: defaultUser(username)}
		f.accounts[username] = acc
		f.current = username
		u := acc.user
		user = &u
		return nil
	})
	return user, err
}

func (f *Fake) Logout(ctx context.Context) error {
	return f.run(ctx, OpLogout, func() error {
		f.current = ""
		return nil
	})
}

func (f *Fake) CurrentUser(ctx context.Context) (*session.User, error) {
	var user *session.User
	err := f.run(ctx, OpCurrentUser, func() error {
		acc, err := f.authLocked()
		if err != nil {
			return err
		}
		u := acc.user
		user = &u
		return nil
	})
	return user, err
}

func (f *Fake) ListChats(ctx context.Context) ([]session.ChatSummary, error) {
	var chats []session.ChatSummary
	err := f.run(ctx, OpListChats, func() error {
		if _, err := f.authLocked(); err != nil {
			return err
		}
		chats = make([]session.ChatSummary, 0, len(f.chats))
		for _, c := range f.chats {
			chats = append(chats, c.summary)
		}
		return nil
	})
	return chats, err
}

func (f *Fake) GetChat(ctx context.Context, chatID string) (*gateway.ChatDetail, error) {
	var detail *gateway.ChatDetail
	err := f.run(ctx, OpGetChat, func() error {
		if _, err := f.authLocked(); err != nil {
			return err
		}
		c := f.findLocked(chatID)
		if c == nil {
			return fmt.Errorf("%w: Chat not found", chaterr.ErrNotFound)
		}
		detail = &gateway.ChatDetail{Title: c.summary.Title, Messages: append([]session.Message(nil), c.messages...)}
		return nil
	})
	return detail, err
}

func (f *Fake) CreateChat(ctx context.Context) (session.ChatSummary, error) {
	var summary session.ChatSummary
	err := f.run(ctx, OpCreateChat, func() error {
		if _, err := f.authLocked(); err != nil {
			return err
		}
		f.seq++
		now := f.now()
		summary = session.ChatSummary{
			ID:        fmt.Sprintf("chat_%d_%08x", now.Unix(), f.seq),
			Title:     session.DefaultChatTitle,
			Timestamp: now,
		}
		f.chats = append([]*chat{{summary: summary}}, f.chats...)
		return nil
	})
	return summary, err
}

func (f *Fake) RenameChat(ctx context.Context, chatID, title string) error {
	return f.run(ctx, OpRenameChat, func() error {
		if _, err := f.authLocked(); err != nil {
			return err
		}
		c := f.findLocked(chatID)
		if c == nil {
			return fmt.Errorf("%w: Chat not found", chaterr.ErrNotFound)
		}
		c.summary.Title = title
		return nil
	})
}

func (f *Fake) DeleteChat(ctx context.Context, chatID string) error {
	return f.run(ctx, OpDeleteChat, func() error {
		if _, err := f.authLocked(); err != nil {
			return err
		}
		f.removeLocked(chatID)
		return nil
	})
}

func (f *Fake) ClearChats(ctx context.Context) error {
	return f.run(ctx, OpClearChats, func() error {
		if _, err := f.authLocked(); err != nil {
			return err
		}
		f.chats = nil
		return nil
	})
}

func (f *Fake) SendMessage(ctx context.Context, req gateway.SendRequest) (*gateway.SendResult, error) {
	var result *gateway.SendResult
	err := f.run(ctx, OpSendMessage, func() error {
		f.sends = append(f.sends, req)
		if _, err := f.authLocked(); err != nil {
			return err
		}
		c := f.findLocked(req.ChatID)
		if c == nil {
			return fmt.Errorf("%w: Chat not found", chaterr.ErrNotFound)
		}

		if req.Regenerate {
			for len(c.messages) > 0 && c.messages[len(c.messages)-1].Role == session.RoleAssistant {
				c.messages = c.messages[:len(c.messages)-1]
			}
		} else {
			c.messages = append(c.messages, session.Message{Role: session.RoleUser, Content: req.Content, Timestamp: f.now()})
			if len(c.messages) == 1 {
				c.summary.Title = titleFrom(req.Content)
			}
		}

		stamp := f.now()
		if f.ReplyTime != nil {
			stamp = f.ReplyTime()
		}
		reply := session.Message{Role: session.RoleAssistant, Content: "echo: " + req.Content, Timestamp: stamp}
		c.messages = append(c.messages, reply)
		result = &gateway.SendResult{Message: reply, Title: c.summary.Title}
		return nil
	})
	return result, err
}

func (f *Fake) UpdateSettings(ctx context.Context, patch gateway.SettingsPatch) (*session.User, error) {
	var user *session.User
	err := f.run(ctx, OpUpdateSettings, func() error {
		acc, err := f.authLocked()
		if err != nil {
			return err
		}
		applyPatch(&acc.user, patch)
		u := acc.user
		user = &u
		return nil
	})
	return user, err
}

func (f *Fake) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return f.run(ctx, OpChangePassword, func() error {
		acc, err := f.authLocked()
		if err != nil {
			return err
		}
		if acc.password != oldPassword {
			return chaterr.NewAuthError(chaterr.ReasonInvalidPassword, "Incorrect old password")
		}
		acc.password = newPassword
		return nil
	})
}

func (f *Fake) DeleteAccount(ctx context.Context, password string) error {
	return f.run(ctx, OpDeleteAccount, func() error {
		acc, err := f.authLocked()
		if err != nil {
			return err
		}
		if acc.password != password {
			return chaterr.NewAuthError(chaterr.ReasonInvalidPassword, "Incorrect password")
		}
		delete(f.accounts, f.current)
		f.current = ""
		f.chats = nil
		return nil
	})
}

func defaultUser(username string) session.User {
	return session.User{
		Username:   username,
		Theme:      "dark",
		ColorTheme: "default",
		Model:      "gemma",
		FontSize:   "medium",
		Animations: true,
		AutoScroll: true,
	}
}

func titleFrom(content string) string {
	words := strings.Fields(content)
	if len(words) > 3 {
		return strings.Join(words[:3], " ") + "..."
	}
	return strings.Join(words, " ")
}

func applyPatch(user *session.User, patch gateway.SettingsPatch) {
	if patch.Theme != nil {
		user.Theme = *patch.Theme
	}
	if patch.ColorTheme != nil {
		user.ColorTheme = *patch.ColorTheme
	}
	if patch.Model != nil {
		user.Model = *patch.Model
	}
	if patch.FontSize != nil {
		user.FontSize = *patch.FontSize
	}
	if patch.CompactSidebar != nil {
		user.CompactSidebar = *patch.CompactSidebar
	}
	if patch.Animations != nil {
		user.Animations = *patch.Animations
	}
	if patch.ShowLineNumbers != nil {
		user.ShowLineNumbers = *patch.ShowLineNumbers
	}
	if patch.AutoScroll != nil {
		user.AutoScroll = *patch.AutoScroll
	}
}
