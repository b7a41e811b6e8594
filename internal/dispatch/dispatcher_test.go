package dispatch

import (
	"chatly/internal/chaterr"
	"chatly/internal/gateway"
	"chatly/internal/gateway/gatewaytest"
	"chatly/internal/reconcile"
	"chatly/internal/session"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *gatewaytest.Fake, *session.Store) {
	t.Helper()

	c := &clock{t: time.Unix(1700000000, 0)}
	fake := gatewaytest.NewFake(c.Now)
	fake.LoginAs("alice")

	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := logrus.NewEntry(log)

	store := session.NewStore()
	engine := reconcile.NewEngine(store, fake,
		reconcile.WithClock(c.Now),
		reconcile.WithLogger(entry),
		reconcile.WithTimeout(2*time.Second),
	)
	opts = append([]Option{WithLogger(entry)}, opts...)
	return New(engine, opts...), fake, store
}

// async runs intent in the background and returns a channel with its result.
func async(d *Dispatcher, intent Intent) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- d.Dispatch(context.Background(), intent)
	}()
	return done
}

func TestDispatch_BootstrapOpensMostRecentChat(t *testing.T) {
	d, fake, store := newDispatcher(t)
	fake.AddChat("chat_a", "First")
	fake.AddChat("chat_b", "Second", session.Message{Role: session.RoleUser, Content: "hi", Timestamp: time.Unix(1, 0)})

	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))

	snap := store.Snapshot()
	assert.Equal(t, "alice", snap.User.Username)
	assert.Equal(t, "chat_b", snap.ActiveChatID)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hi", snap.Messages[0].Content)
}

func TestDispatch_BackToBackRenamesAreBusy(t *testing.T) {
	d, fake, store := newDispatcher(t)
	fake.AddChat("chat_a", "First")
	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))

	gate := fake.Hold(gatewaytest.OpRenameChat)
	first := async(d, RenameChat{ChatID: "chat_a", Title: "One"})
	<-gate.Entered

	assert.True(t, d.Busy("chat_a"))
	err := d.Dispatch(context.Background(), RenameChat{ChatID: "chat_a", Title: "Two"})
	require.ErrorIs(t, err, chaterr.ErrBusy)
	err = d.Dispatch(context.Background(), SendMessage{ChatID: "chat_a", Content: "hello"})
	require.ErrorIs(t, err, chaterr.ErrBusy)

	gate.Release()
	require.NoError(t, <-first)
	assert.False(t, d.Busy("chat_a"))
	assert.Equal(t, "One", store.Chats()[0].Title)
	assert.Equal(t, 1, fake.Calls(gatewaytest.OpRenameChat))

	require.NoError(t, d.Dispatch(context.Background(), RenameChat{ChatID: "chat_a", Title: "Two"}))
	assert.Equal(t, "Two", store.Chats()[0].Title)
}

func TestDispatch_DeleteSupersedesPendingSend(t *testing.T) {
	d, fake, store := newDispatcher(t)
	fake.AddChat("chat_a", "First")
	fake.AddChat("chat_b", "Second")
	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))
	require.Equal(t, "chat_b", store.ActiveChatID())

	gate := fake.Hold(gatewaytest.OpSendMessage)
	send := async(d, SendMessage{Content: "late"})
	<-gate.Entered

	require.NoError(t, d.Dispatch(context.Background(), DeleteChat{ChatID: "chat_b"}))
	gate.Release()
	require.ErrorIs(t, <-send, chaterr.ErrSuperseded)

	snap := store.Snapshot()
	assert.Equal(t, "chat_a", snap.ActiveChatID)
	assert.Empty(t, snap.Messages)
	require.Len(t, snap.Chats, 1)
	assert.Equal(t, "chat_a", snap.Chats[0].ID)
}

func TestDispatch_DeleteOnlyConflictsWithDelete(t *testing.T) {
	d, fake, _ := newDispatcher(t)
	fake.AddChat("chat_a", "First")
	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))

	gate := fake.Hold(gatewaytest.OpDeleteChat)
	first := async(d, DeleteChat{ChatID: "chat_a"})
	<-gate.Entered

	err := d.Dispatch(context.Background(), DeleteChat{ChatID: "chat_a"})
	require.ErrorIs(t, err, chaterr.ErrBusy)
	err = d.Dispatch(context.Background(), RenameChat{ChatID: "chat_a", Title: "Renamed"})
	require.ErrorIs(t, err, chaterr.ErrBusy)

	gate.Release()
	require.NoError(t, <-first)
	assert.Equal(t, 1, fake.Calls(gatewaytest.OpDeleteChat))
}

func TestDispatch_ClearWhileClearPending(t *testing.T) {
	d, fake, store := newDispatcher(t)
	fake.AddChat("chat_a", "First")
	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))

	gate := fake.Hold(gatewaytest.OpClearChats)
	first := async(d, ClearChats{})
	<-gate.Entered

	require.ErrorIs(t, d.Dispatch(context.Background(), ClearChats{}), chaterr.ErrBusy)
	gate.Release()
	require.NoError(t, <-first)

	require.NoError(t, d.Dispatch(context.Background(), ClearChats{}))
	assert.Empty(t, store.Chats())
	assert.Empty(t, store.ActiveChatID())
}

func TestDispatch_SendWithoutActiveChatCreatesOne(t *testing.T) {
	d, _, store := newDispatcher(t)
	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))

	require.NoError(t, d.Dispatch(context.Background(), SendMessage{Content: "plan a trip to Lisbon"}))

	snap := store.Snapshot()
	require.Len(t, snap.Chats, 1)
	assert.Equal(t, snap.Chats[0].ID, snap.ActiveChatID)
	assert.Equal(t, "plan a trip...", snap.Chats[0].Title)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, session.RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "echo: plan a trip to Lisbon", snap.Messages[1].Content)
	assert.False(t, d.Busy(snap.ActiveChatID))
	assert.False(t, d.guard.pending(newChatKey))
}

func TestDispatch_CreateBusyWhileFirstSendCreates(t *testing.T) {
	d, fake, store := newDispatcher(t)
	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))

	gate := fake.Hold(gatewaytest.OpCreateChat)
	send := async(d, SendMessage{Content: "hello"})
	<-gate.Entered

	require.ErrorIs(t, d.Dispatch(context.Background(), CreateChat{}), chaterr.ErrBusy)
	require.ErrorIs(t, d.Dispatch(context.Background(), SendMessage{Content: "again"}), chaterr.ErrBusy)

	gate.Release()
	require.NoError(t, <-send)
	assert.Len(t, store.Chats(), 1)
	assert.Equal(t, 1, fake.Calls(gatewaytest.OpCreateChat))
}

func TestDispatch_SendClaimMovesToCreatedChat(t *testing.T) {
	d, fake, store := newDispatcher(t)
	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))

	gate := fake.Hold(gatewaytest.OpSendMessage)
	send := async(d, SendMessage{Content: "hello"})
	<-gate.Entered

	chatID := store.ActiveChatID()
	require.NotEmpty(t, chatID)
	assert.True(t, d.Busy(chatID))
	assert.False(t, d.guard.pending(newChatKey))
	require.NoError(t, d.Dispatch(context.Background(), CreateChat{}))

	gate.Release()
	require.NoError(t, <-send)
	assert.False(t, d.Busy(chatID))
}

func TestDispatch_CreatedChatIsClaimedWhenFirstVisible(t *testing.T) {
	d, _, _ := newDispatcher(t)
	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))

	var mu sync.Mutex
	busyWhenSeen := make(map[string]bool)
	unsubscribe := d.engine.(*reconcile.Engine).Subscribe(func(snap session.Snapshot) {
		if snap.ActiveChatID == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if _, ok := busyWhenSeen[snap.ActiveChatID]; !ok {
			busyWhenSeen[snap.ActiveChatID] = d.Busy(snap.ActiveChatID)
		}
	})
	defer unsubscribe()

	require.NoError(t, d.Dispatch(context.Background(), SendMessage{Content: "hello"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, busyWhenSeen, 1)
	for id, busy := range busyWhenSeen {
		assert.True(t, busy, "chat %s was listed before the send claimed it", id)
		assert.False(t, d.Busy(id))
	}
}

func TestDispatch_Validation(t *testing.T) {
	d, fake, _ := newDispatcher(t, WithModelCheck(func(alias string) bool { return alias == "gemma" }))
	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))
	fake.AddChat("chat_a", "First")

	unknown := "gpt-9"
	tests := []struct {
		name   string
		intent Intent
		auth   bool
	}{
		{name: "empty message", intent: SendMessage{Content: "   "}},
		{name: "bad chat id", intent: SendMessage{ChatID: "../x", Content: "hi"}},
		{name: "empty title", intent: RenameChat{ChatID: "chat_a", Title: ""}},
		{name: "delete without id", intent: DeleteChat{}},
		{name: "select without id", intent: SelectChat{}},
		{name: "regenerate without active chat", intent: Regenerate{}},
		{name: "empty settings patch", intent: UpdateSettings{}},
		{name: "unknown model", intent: UpdateSettings{Patch: gateway.SettingsPatch{Model: &unknown}}},
		{name: "login without password", intent: Login{Username: "alice"}, auth: true},
		{name: "register short username", intent: Register{Username: "al", Password: "secret1", Confirm: "secret1"}, auth: true},
		{name: "register mismatch", intent: Register{Username: "bob", Password: "secret1", Confirm: "secret2"}, auth: true},
		{name: "change password mismatch", intent: ChangePassword{Old: "password", New: "secret1", Confirm: "secret2"}, auth: true},
		{name: "delete account without password", intent: DeleteAccount{}, auth: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Dispatch(context.Background(), tt.intent)
			require.Error(t, err)
			if tt.auth {
				var authErr *chaterr.AuthError
				require.True(t, errors.As(err, &authErr), "got %v", err)
				assert.Equal(t, chaterr.ReasonValidation, authErr.Reason)
				return
			}
			assert.ErrorIs(t, err, chaterr.ErrInvalidInput)
		})
	}

	assert.Zero(t, fake.Calls(gatewaytest.OpSendMessage))
	assert.Zero(t, fake.Calls(gatewaytest.OpRenameChat))
	assert.Zero(t, fake.Calls(gatewaytest.OpUpdateSettings))
	assert.Zero(t, fake.Calls(gatewaytest.OpRegister))
}

func TestDispatch_AccountFlow(t *testing.T) {
	d, fake, store := newDispatcher(t)
	fake.ExpireSession()
	fake.AddUser("bob", "secret1")

	err := d.Dispatch(context.Background(), Login{Username: "bob", Password: "wrong"})
	var authErr *chaterr.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, chaterr.ReasonInvalidPassword, authErr.Reason)

	require.NoError(t, d.Dispatch(context.Background(), Login{Username: "bob", Password: "secret1"}))
	assert.Equal(t, "bob", store.User().Username)

	light := "light"
	require.NoError(t, d.Dispatch(context.Background(), UpdateSettings{Patch: gateway.SettingsPatch{Theme: &light}}))
	assert.Equal(t, "light", store.User().Theme)

	require.NoError(t, d.Dispatch(context.Background(), ChangePassword{Old: "secret1", New: "secret2", Confirm: "secret2"}))
	require.NoError(t, d.Dispatch(context.Background(), Logout{}))
	assert.Nil(t, store.User())

	require.NoError(t, d.Dispatch(context.Background(), Login{Username: "bob", Password: "secret2"}))
	require.NoError(t, d.Dispatch(context.Background(), DeleteAccount{Password: "secret2"}))
	assert.False(t, store.Snapshot().LoggedIn())
}

func TestDispatch_AccountIntentsShareSlot(t *testing.T) {
	d, fake, _ := newDispatcher(t)
	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))

	gate := fake.Hold(gatewaytest.OpChangePassword)
	first := async(d, ChangePassword{Old: "password", New: "secret1", Confirm: "secret1"})
	<-gate.Entered

	dark := "dark"
	err := d.Dispatch(context.Background(), UpdateSettings{Patch: gateway.SettingsPatch{Theme: &dark}})
	require.ErrorIs(t, err, chaterr.ErrBusy)
	require.ErrorIs(t, d.Dispatch(context.Background(), Logout{}), chaterr.ErrBusy)

	gate.Release()
	require.NoError(t, <-first)
}

func TestDispatch_ReadsAreNotGuarded(t *testing.T) {
	d, fake, store := newDispatcher(t)
	fake.AddChat("chat_a", "First")
	fake.AddChat("chat_b", "Second")
	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))

	gate := fake.Hold(gatewaytest.OpRenameChat)
	rename := async(d, RenameChat{ChatID: "chat_a", Title: "Renamed"})
	<-gate.Entered

	require.NoError(t, d.Dispatch(context.Background(), SelectChat{ChatID: "chat_a"}))
	require.NoError(t, d.Dispatch(context.Background(), RefreshChats{}))
	assert.Equal(t, "chat_a", store.ActiveChatID())

	gate.Release()
	require.NoError(t, <-rename)
}

func TestDispatch_RegenerateActiveChat(t *testing.T) {
	d, fake, store := newDispatcher(t)
	fake.AddChat("chat_a", "First",
		session.Message{Role: session.RoleUser, Content: "question", Timestamp: time.Unix(1, 0)},
		session.Message{Role: session.RoleAssistant, Content: "old answer", Timestamp: time.Unix(2, 0)},
	)
	require.NoError(t, d.Dispatch(context.Background(), Bootstrap{}))

	require.NoError(t, d.Dispatch(context.Background(), Regenerate{}))

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "echo: question", msgs[1].Content)
	sends := fake.Sends()
	require.Len(t, sends, 1)
	assert.True(t, sends[0].Regenerate)
}

func TestGuard_ReleaseIsIdempotent(t *testing.T) {
	g := newGuard()
	release, err := g.acquire(chatKey("chat_a"), "rename_chat", false)
	require.NoError(t, err)
	release()
	release()
	assert.False(t, g.pending(chatKey("chat_a")))

	_, err = g.acquire(chatKey("chat_a"), "rename_chat", false)
	require.NoError(t, err)
}
