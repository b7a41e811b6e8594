package reconcile

import (
	"chatly/internal/chaterr"
	"chatly/internal/gateway"
	"chatly/internal/gateway/gatewaytest"
	"chatly/internal/session"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestEngine_SendWithoutChatCreatesChatAndTitlesIt(t *testing.T) {
	h := newHarness(t)
	h.bootstrap(t)
	ctx := context.Background()

	gate := h.fake.Hold(gatewaytest.OpSendMessage)
	done := make(chan error, 1)
	go func() { done <- h.engine.Send(ctx, "", "hello there my friend") }()

	<-gate.Entered
	snap := h.store.Snapshot()
	require.Len(t, snap.Chats, 1)
	assert.Equal(t, snap.Chats[0].ID, snap.ActiveChatID)
	assert.Equal(t, session.DefaultChatTitle, snap.Chats[0].Title)
	assert.Equal(t, []string{"user:hello there my friend"}, contents(snap.Messages))

	inFlight := h.engine.InFlight()
	require.Len(t, inFlight, 1)
	assert.Equal(t, KindSend, inFlight[0].Kind)
	assert.Equal(t, StatePending, inFlight[0].State)

	gate.Release()
	require.NoError(t, <-done)

	snap = h.store.Snapshot()
	assert.Equal(t, "hello there my...", snap.Chats[0].Title)
	assert.Equal(t, []string{
		"user:hello there my friend",
		"assistant:echo: hello there my friend",
	}, contents(snap.Messages))
	assert.Empty(t, h.engine.InFlight())
}

func TestEngine_DeleteDiscardsLateSend(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.fake.AddChat("chat_b", "B")
	h.bootstrap(t)
	ctx := context.Background()

	require.NoError(t, h.engine.SelectChat(ctx, "chat_a"))

	gate := h.fake.Hold(gatewaytest.OpSendMessage)
	done := make(chan error, 1)
	go func() { done <- h.engine.Send(ctx, "chat_a", "late message") }()
	<-gate.Entered

	require.NoError(t, h.engine.DeleteChat(ctx, "chat_a"))

	inFlight := h.engine.InFlight()
	require.Len(t, inFlight, 1)
	assert.Equal(t, StateSuperseded, inFlight[0].State)

	gate.Release()
	assert.ErrorIs(t, <-done, chaterr.ErrSuperseded)

	snap := h.store.Snapshot()
	assert.Equal(t, []string{"chat_b"}, chatIDs(snap.Chats))
	assert.Equal(t, "chat_b", snap.ActiveChatID)
	assert.Empty(t, snap.Messages)

	recent := h.engine.Recent()
	last := recent[len(recent)-1]
	assert.Equal(t, KindSend, last.Kind)
	assert.Equal(t, StateSuperseded, last.State)
}

func TestEngine_DeleteLastActiveChatClearsActive(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.bootstrap(t)
	ctx := context.Background()

	require.NoError(t, h.engine.SelectChat(ctx, "chat_a"))
	require.NoError(t, h.engine.DeleteChat(ctx, "chat_a"))

	snap := h.store.Snapshot()
	assert.Empty(t, snap.Chats)
	assert.Empty(t, snap.ActiveChatID)
	assert.True(t, h.engine.ListStale())
}

func TestEngine_DeleteUnknownChatCountsAsDeleted(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.bootstrap(t)

	h.fake.FailNext(gatewaytest.OpDeleteChat, chaterr.ErrNotFound)
	require.NoError(t, h.engine.DeleteChat(context.Background(), "chat_a"))
	assert.Empty(t, h.store.Chats())
}

func TestEngine_DeleteFailureKeepsChat(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.bootstrap(t)

	h.fake.FailNext(gatewaytest.OpDeleteChat, &chaterr.RemoteError{Status: 500, Message: "boom"})
	err := h.engine.DeleteChat(context.Background(), "chat_a")

	var remote *chaterr.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, []string{"chat_a"}, chatIDs(h.store.Chats()))
	assert.False(t, h.engine.ListStale())
}

func TestEngine_ClearAllIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A", h.msg(session.RoleUser, "hi"))
	h.fake.AddChat("chat_b", "B")
	h.bootstrap(t)
	ctx := context.Background()

	require.NoError(t, h.engine.SelectChat(ctx, "chat_a"))
	require.NoError(t, h.engine.ClearChats(ctx))
	first := h.store.Snapshot()

	require.NoError(t, h.engine.ClearChats(ctx))
	second := h.store.Snapshot()

	if diff := cmp.Diff(first, second, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("second clear changed state (-first +second):\n%s", diff)
	}
	assert.Empty(t, second.Chats)
	assert.Empty(t, second.ActiveChatID)
	assert.Empty(t, second.Messages)
	assert.True(t, second.LoggedIn())
	assert.Empty(t, h.fake.ChatIDs())
}

func TestEngine_ClearAllSupersedesPendingRename(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.bootstrap(t)
	ctx := context.Background()

	gate := h.fake.Hold(gatewaytest.OpRenameChat)
	done := make(chan error, 1)
	go func() { done <- h.engine.RenameChat(ctx, "chat_a", "Renamed") }()
	<-gate.Entered

	require.NoError(t, h.engine.ClearChats(ctx))
	gate.Release()

	assert.ErrorIs(t, <-done, chaterr.ErrSuperseded)
	assert.Empty(t, h.store.Chats())
}

func TestEngine_ClearAllSupersedesPendingCreate(t *testing.T) {
	h := newHarness(t)
	h.bootstrap(t)
	ctx := context.Background()

	gate := h.fake.Hold(gatewaytest.OpCreateChat)
	done := make(chan error, 1)
	go func() {
		_, err := h.engine.CreateChat(ctx)
		done <- err
	}()
	<-gate.Entered

	require.NoError(t, h.engine.ClearChats(ctx))
	gate.Release()

	assert.ErrorIs(t, <-done, chaterr.ErrSuperseded)
	snap := h.store.Snapshot()
	assert.Empty(t, snap.Chats)
	assert.Empty(t, snap.ActiveChatID)
}

func TestEngine_Regenerate(t *testing.T) {
	tests := []struct {
		name       string
		transcript []string
		whileHeld  []string
		after      []string
		resent     string
	}{
		{
			name:       "replaces last reply",
			transcript: []string{"user:first", "assistant:one", "user:second", "assistant:two"},
			whileHeld:  []string{"user:first", "assistant:one", "user:second"},
			after:      []string{"user:first", "assistant:one", "user:second", "assistant:echo: second"},
			resent:     "second",
		},
		{
			name:       "answers trailing user message",
			transcript: []string{"user:first", "assistant:one", "user:unanswered"},
			whileHeld:  []string{"user:first", "assistant:one", "user:unanswered"},
			after:      []string{"user:first", "assistant:one", "user:unanswered", "assistant:echo: unanswered"},
			resent:     "unanswered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			var msgs []session.Message
			for _, line := range tt.transcript {
				role, content := splitLine(line)
				msgs = append(msgs, h.msg(role, content))
			}
			h.fake.AddChat("chat_r", "R", msgs...)
			h.bootstrap(t)
			ctx := context.Background()
			require.NoError(t, h.engine.SelectChat(ctx, "chat_r"))

			gate := h.fake.Hold(gatewaytest.OpSendMessage)
			done := make(chan error, 1)
			go func() { done <- h.engine.Regenerate(ctx, "chat_r") }()
			<-gate.Entered

			assert.Equal(t, tt.whileHeld, contents(h.store.Messages()))
			gate.Release()
			require.NoError(t, <-done)

			assert.Equal(t, tt.after, contents(h.store.Messages()))
			sends := h.fake.Sends()
			require.Len(t, sends, 1)
			assert.Equal(t, gateway.SendRequest{ChatID: "chat_r", Content: tt.resent, Regenerate: true}, sends[0])
		})
	}
}

func TestEngine_RegenerateWithoutUserMessage(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_empty", "Empty")
	h.fake.AddChat("chat_bot", "Bot", h.msg(session.RoleAssistant, "welcome"))
	h.bootstrap(t)
	ctx := context.Background()

	require.NoError(t, h.engine.SelectChat(ctx, "chat_empty"))
	assert.ErrorIs(t, h.engine.Regenerate(ctx, "chat_empty"), chaterr.ErrNoUserMessageFound)

	require.NoError(t, h.engine.SelectChat(ctx, "chat_bot"))
	assert.ErrorIs(t, h.engine.Regenerate(ctx, "chat_bot"), chaterr.ErrNoUserMessageFound)
	assert.Equal(t, []string{"assistant:welcome"}, contents(h.store.Messages()))

	assert.Zero(t, h.fake.Calls(gatewaytest.OpSendMessage))
}

func TestEngine_RegenerateRequiresActiveChat(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A", h.msg(session.RoleUser, "hi"))
	h.bootstrap(t)

	err := h.engine.Regenerate(context.Background(), "chat_a")
	assert.ErrorIs(t, err, chaterr.ErrInvalidInput)
}

func TestEngine_RegenerateFailureKeepsTruncation(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_r", "R", h.msg(session.RoleUser, "q"), h.msg(session.RoleAssistant, "a"))
	h.bootstrap(t)
	ctx := context.Background()
	require.NoError(t, h.engine.SelectChat(ctx, "chat_r"))

	h.fake.FailNext(gatewaytest.OpSendMessage, &chaterr.RemoteError{Status: 502, Code: "llm_error"})
	err := h.engine.Regenerate(ctx, "chat_r")

	assert.ErrorIs(t, err, chaterr.ErrSendFailed)
	assert.Equal(t, []string{"user:q"}, contents(h.store.Messages()))
}

func TestEngine_ReplyTimestampIsClamped(t *testing.T) {
	h := newHarness(t)
	h.fake.ReplyTime = func() time.Time { return time.Unix(1000, 0) }
	h.bootstrap(t)

	require.NoError(t, h.engine.Send(context.Background(), "", "hi"))

	msgs := h.store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, msgs[0].Timestamp, msgs[1].Timestamp)
}

func TestEngine_SelectSortsTranscript(t *testing.T) {
	h := newHarness(t)
	late := h.msg(session.RoleAssistant, "second")
	early := session.Message{Role: session.RoleUser, Content: "first", Timestamp: late.Timestamp.Add(-time.Minute)}
	h.fake.AddChat("chat_a", "A", late, early)
	h.bootstrap(t)

	require.NoError(t, h.engine.SelectChat(context.Background(), "chat_a"))
	assert.Equal(t, []string{"user:first", "assistant:second"}, contents(h.store.Messages()))
}

func TestEngine_SendFailureKeepsUserMessage(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.bootstrap(t)
	ctx := context.Background()
	require.NoError(t, h.engine.SelectChat(ctx, "chat_a"))

	h.fake.FailNext(gatewaytest.OpSendMessage, &chaterr.RemoteError{Status: 502, Code: "llm_error", Message: "model down"})
	err := h.engine.Send(ctx, "chat_a", "are you there")

	assert.ErrorIs(t, err, chaterr.ErrSendFailed)
	var remote *chaterr.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "llm_error", remote.Code)
	assert.Equal(t, []string{"user:are you there"}, contents(h.store.Messages()))

	recent := h.engine.Recent()
	assert.Equal(t, StateRejected, recent[len(recent)-1].State)
}

func TestEngine_SendToChatGoneOnBackendHeals(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.bootstrap(t)
	ctx := context.Background()
	require.NoError(t, h.engine.SelectChat(ctx, "chat_a"))

	h.fake.RemoveChat("chat_a")
	err := h.engine.Send(ctx, "chat_a", "hello")

	assert.ErrorIs(t, err, chaterr.ErrSendFailed)
	assert.ErrorIs(t, err, chaterr.ErrNotFound)
	snap := h.store.Snapshot()
	assert.Empty(t, snap.Chats)
	assert.Empty(t, snap.ActiveChatID)
}

func TestEngine_SendTimesOut(t *testing.T) {
	h := newHarness(t, WithTimeout(30*time.Millisecond))
	h.fake.AddChat("chat_a", "A")
	h.bootstrap(t)
	ctx := context.Background()
	require.NoError(t, h.engine.SelectChat(ctx, "chat_a"))

	gate := h.fake.Hold(gatewaytest.OpSendMessage)
	defer gate.Release()

	err := h.engine.Send(ctx, "chat_a", "slow")
	assert.ErrorIs(t, err, chaterr.ErrSendFailed)
	assert.ErrorIs(t, err, chaterr.ErrTimeout)
	assert.Equal(t, []string{"user:slow"}, contents(h.store.Messages()))
}

func TestEngine_SendToInactiveChatAppliesTitleOnly(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.fake.AddChat("chat_b", "B")
	h.bootstrap(t)
	ctx := context.Background()
	require.NoError(t, h.engine.SelectChat(ctx, "chat_b"))

	require.NoError(t, h.engine.Send(ctx, "chat_a", "one two three four"))

	snap := h.store.Snapshot()
	assert.Equal(t, "chat_b", snap.ActiveChatID)
	assert.Empty(t, snap.Messages)
	assert.Equal(t, "one two three...", snap.Chats[1].Title)
}

func TestEngine_RenameUpdatesTitle(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.bootstrap(t)
	ctx := context.Background()

	require.NoError(t, h.engine.RenameChat(ctx, "chat_a", "Renamed"))
	assert.Equal(t, "Renamed", h.store.Chats()[0].Title)

	h.fake.RemoveChat("chat_a")
	assert.ErrorIs(t, h.engine.RenameChat(ctx, "chat_a", "Again"), chaterr.ErrNotFound)
	assert.Empty(t, h.store.Chats())
}

func TestEngine_SelectMissingChatHeals(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.fake.AddChat("chat_b", "B")
	h.bootstrap(t)
	ctx := context.Background()

	h.fake.RemoveChat("chat_a")
	assert.ErrorIs(t, h.engine.SelectChat(ctx, "chat_a"), chaterr.ErrNotFound)

	snap := h.store.Snapshot()
	assert.Equal(t, []string{"chat_b"}, chatIDs(snap.Chats))
	assert.Empty(t, snap.ActiveChatID)

	assert.ErrorIs(t, h.engine.SelectChat(ctx, "chat_unknown"), chaterr.ErrNotFound)
}

func TestEngine_SelectIgnoresTranscriptOfChatLeftBehind(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A", h.msg(session.RoleUser, "from a"))
	h.fake.AddChat("chat_b", "B", h.msg(session.RoleUser, "from b"))
	h.bootstrap(t)
	ctx := context.Background()

	gate := h.fake.Hold(gatewaytest.OpGetChat)
	done := make(chan error, 1)
	go func() { done <- h.engine.SelectChat(ctx, "chat_a") }()
	<-gate.Entered

	require.NoError(t, h.engine.SelectChat(ctx, "chat_b"))
	gate.Release()

	assert.ErrorIs(t, <-done, chaterr.ErrSuperseded)
	snap := h.store.Snapshot()
	assert.Equal(t, "chat_b", snap.ActiveChatID)
	assert.Equal(t, []string{"user:from b"}, contents(snap.Messages))
}

func TestEngine_RefreshKeepsChatCreatedMeanwhile(t *testing.T) {
	h := newHarness(t)
	h.bootstrap(t)
	ctx := context.Background()

	gate := h.fake.Hold(gatewaytest.OpListChats)
	done := make(chan error, 1)
	go func() { done <- h.engine.RefreshChats(ctx) }()
	<-gate.Entered

	chat, err := h.engine.CreateChat(ctx)
	require.NoError(t, err)

	gate.Release()
	require.NoError(t, <-done)

	snap := h.store.Snapshot()
	assert.Equal(t, []string{chat.ID}, chatIDs(snap.Chats))
	assert.Equal(t, chat.ID, snap.ActiveChatID)
}

func TestEngine_CreateChatClaimedPublishesOnClaimError(t *testing.T) {
	h := newHarness(t)
	h.bootstrap(t)
	claimErr := errors.New("claimed elsewhere")

	var claimed string
	chat, err := h.engine.CreateChatClaimed(context.Background(), func(chatID string) error {
		claimed = chatID
		assert.False(t, h.store.HasChat(chatID))
		return claimErr
	})
	require.ErrorIs(t, err, claimErr)

	assert.Equal(t, chat.ID, claimed)
	snap := h.store.Snapshot()
	assert.Equal(t, []string{chat.ID}, chatIDs(snap.Chats))
	assert.Equal(t, chat.ID, snap.ActiveChatID)
}

func TestEngine_RefreshKeepsTitleChangedMeanwhile(t *testing.T) {
	tests := []struct {
		name   string
		change func(ctx context.Context, e *Engine) error
		want   string
	}{
		{
			name: "rename",
			change: func(ctx context.Context, e *Engine) error {
				return e.RenameChat(ctx, "chat_a", "Renamed")
			},
			want: "Renamed",
		},
		{
			name: "title from first message",
			change: func(ctx context.Context, e *Engine) error {
				return e.Send(ctx, "chat_a", "one two three four")
			},
			want: "one two three...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.fake.AddChat("chat_a", "New Chat")
			h.bootstrap(t)
			ctx := context.Background()

			gate := h.fake.Hold(gatewaytest.OpListChats)
			done := make(chan error, 1)
			go func() { done <- h.engine.RefreshChats(ctx) }()
			<-gate.Entered

			require.NoError(t, tt.change(ctx, h.engine))
			require.Equal(t, tt.want, h.store.Chats()[0].Title)

			gate.Release()
			require.NoError(t, <-done)

			chats := h.store.Chats()
			require.Len(t, chats, 1)
			assert.Equal(t, tt.want, chats[0].Title)
		})
	}
}

func TestEngine_RefreshSurvivesFirstCallerCancel(t *testing.T) {
	h := newHarness(t)
	h.bootstrap(t)
	h.fake.AddChat("chat_a", "A")

	gate := h.fake.Hold(gatewaytest.OpListChats)
	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() { firstDone <- h.engine.RefreshChats(first) }()
	<-gate.Entered

	secondDone := make(chan error, 1)
	go func() { secondDone <- h.engine.RefreshChats(context.Background()) }()

	cancel()
	assert.ErrorIs(t, <-firstDone, context.Canceled)

	gate.Release()
	require.NoError(t, <-secondDone)
	assert.Equal(t, []string{"chat_a"}, chatIDs(h.store.Chats()))
}

func TestEngine_RefreshKeepsChatDeletedMeanwhileDeleted(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.fake.AddChat("chat_b", "B")
	h.bootstrap(t)
	ctx := context.Background()

	gate := h.fake.Hold(gatewaytest.OpListChats)
	done := make(chan error, 1)
	go func() { done <- h.engine.RefreshChats(ctx) }()
	<-gate.Entered

	require.NoError(t, h.engine.DeleteChat(ctx, "chat_a"))
	gate.Release()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"chat_b"}, chatIDs(h.store.Chats()))
	assert.True(t, h.engine.ListStale())
}

func TestEngine_RefreshHealsActiveChat(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A", h.msg(session.RoleUser, "hi"))
	h.bootstrap(t)
	ctx := context.Background()
	require.NoError(t, h.engine.SelectChat(ctx, "chat_a"))

	h.fake.RemoveChat("chat_a")
	require.NoError(t, h.engine.RefreshChats(ctx))

	snap := h.store.Snapshot()
	assert.Empty(t, snap.ActiveChatID)
	assert.Empty(t, snap.Messages)
}

func TestEngine_CreateRefreshesStaleList(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.fake.AddChat("chat_b", "B")
	h.fake.AddChat("chat_c", "C")
	h.bootstrap(t)
	ctx := context.Background()
	require.NoError(t, h.engine.SelectChat(ctx, "chat_c"))
	require.Equal(t, 1, h.fake.Calls(gatewaytest.OpListChats))

	// chat_b disappears on the backend; the next create must not keep it.
	h.fake.RemoveChat("chat_b")
	require.NoError(t, h.engine.DeleteChat(ctx, "chat_a"))
	require.True(t, h.engine.ListStale())

	chat, err := h.engine.CreateChat(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, h.fake.Calls(gatewaytest.OpListChats))
	assert.False(t, h.engine.ListStale())
	assert.Equal(t, []string{chat.ID, "chat_c"}, chatIDs(h.store.Chats()))
}

func TestEngine_UnauthenticatedResetsStore(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.bootstrap(t)
	ctx := context.Background()
	require.NoError(t, h.engine.SelectChat(ctx, "chat_a"))

	h.fake.ExpireSession()
	err := h.engine.RenameChat(ctx, "chat_a", "x")
	assert.True(t, chaterr.IsUnauthenticated(err))

	snap := h.store.Snapshot()
	assert.False(t, snap.LoggedIn())
	assert.Empty(t, snap.Chats)
	assert.Empty(t, snap.ActiveChatID)
}

func TestEngine_LoginAndLogout(t *testing.T) {
	h := newHarness(t)
	h.fake.ExpireSession()
	h.fake.AddUser("bob", "hunter22")
	ctx := context.Background()

	err := h.engine.Login(ctx, "bob", "wrong")
	var authErr *chaterr.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, chaterr.ReasonInvalidPassword, authErr.Reason)
	assert.False(t, h.store.Snapshot().LoggedIn())

	err = h.engine.Login(ctx, "nobody", "whatever")
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, chaterr.ReasonUserNotFound, authErr.Reason)

	require.NoError(t, h.engine.Login(ctx, "bob", "hunter22"))
	user := h.store.User()
	require.NotNil(t, user)
	assert.Equal(t, "bob", user.Username)
	assert.Equal(t, "gemma", user.Model)

	require.NoError(t, h.engine.Logout(ctx))
	assert.False(t, h.store.Snapshot().LoggedIn())
}

func TestEngine_RegisterExistingUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.engine.Register(ctx, "alice", "whatever")
	var authErr *chaterr.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, chaterr.ReasonUserExists, authErr.Reason)

	require.NoError(t, h.engine.Register(ctx, "carol", "password1"))
	assert.Equal(t, "carol", h.store.User().Username)
}

func TestEngine_LogoutSupersedesPendingSend(t *testing.T) {
	h := newHarness(t)
	h.fake.AddChat("chat_a", "A")
	h.bootstrap(t)
	ctx := context.Background()
	require.NoError(t, h.engine.SelectChat(ctx, "chat_a"))

	gate := h.fake.Hold(gatewaytest.OpSendMessage)
	done := make(chan error, 1)
	go func() { done <- h.engine.Send(ctx, "chat_a", "bye") }()
	<-gate.Entered

	require.NoError(t, h.engine.Logout(ctx))
	gate.Release()

	assert.ErrorIs(t, <-done, chaterr.ErrSuperseded)
	assert.Empty(t, h.store.Messages())
}

func TestEngine_SettingsPasswordAndAccount(t *testing.T) {
	h := newHarness(t)
	h.bootstrap(t)
	ctx := context.Background()

	theme := "light"
	require.NoError(t, h.engine.UpdateSettings(ctx, gateway.SettingsPatch{Theme: &theme}))
	assert.Equal(t, "light", h.store.User().Theme)

	err := h.engine.ChangePassword(ctx, "wrong", "newpass1")
	var authErr *chaterr.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, chaterr.ReasonInvalidPassword, authErr.Reason)
	assert.True(t, h.store.Snapshot().LoggedIn())

	require.NoError(t, h.engine.ChangePassword(ctx, "password", "newpass1"))

	require.Error(t, h.engine.DeleteAccount(ctx, "password"))
	require.NoError(t, h.engine.DeleteAccount(ctx, "newpass1"))
	assert.False(t, h.store.Snapshot().LoggedIn())
}

func TestEngine_SubscribeAndUnsubscribe(t *testing.T) {
	h := newHarness(t)
	h.bootstrap(t)

	var calls int
	unsubscribe := h.engine.Subscribe(func(session.Snapshot) { calls++ })

	_, err := h.engine.CreateChat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	unsubscribe()
	_, err = h.engine.CreateChat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestEngine_ConcurrentIntentsKeepInvariants(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"chat_a", "chat_b", "chat_c", "chat_d"} {
		h.fake.AddChat(id, id)
	}
	h.bootstrap(t)
	ctx := context.Background()
	require.NoError(t, h.engine.SelectChat(ctx, "chat_a"))

	var g errgroup.Group
	g.Go(func() error { return ignoreExpected(h.engine.Send(ctx, "chat_a", "hello a")) })
	g.Go(func() error { return ignoreExpected(h.engine.Send(ctx, "chat_b", "hello b")) })
	g.Go(func() error { return ignoreExpected(h.engine.RenameChat(ctx, "chat_c", "C!")) })
	g.Go(func() error { return ignoreExpected(h.engine.DeleteChat(ctx, "chat_a")) })
	g.Go(func() error { return ignoreExpected(h.engine.SelectChat(ctx, "chat_d")) })
	g.Go(func() error { return ignoreExpected(h.engine.RefreshChats(ctx)) })
	g.Go(func() error {
		_, err := h.engine.CreateChat(ctx)
		return ignoreExpected(err)
	})
	require.NoError(t, g.Wait())

	checkInvariants(t, h.store.Snapshot())
	assert.NotContains(t, chatIDs(h.store.Chats()), "chat_a")
	assert.Empty(t, h.engine.InFlight())
}

// ignoreExpected drops the errors concurrent intents legitimately produce.
func ignoreExpected(err error) error {
	if err == nil || errors.Is(err, chaterr.ErrSuperseded) || errors.Is(err, chaterr.ErrNotFound) {
		return nil
	}
	return err
}

func splitLine(line string) (session.Role, string) {
	for i := 0; i < len(line); i++ {
		if line[i] == ':' {
			return session.Role(line[:i]), line[i+1:]
		}
	}
	return session.RoleUser, line
}
