package reconcile

import (
	"chatly/internal/gateway/gatewaytest"
	"chatly/internal/session"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type harness struct {
	engine *Engine
	fake   *gatewaytest.Fake
	store  *session.Store
	clock  *testClock
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	clock := &testClock{t: time.Unix(1700000000, 0)}
	fake := gatewaytest.NewFake(clock.Now)
	fake.LoginAs("alice")
	store := session.NewStore()

	log := logrus.New()
	log.SetOutput(io.Discard)

	opts = append([]Option{
		WithClock(clock.Now),
		WithLogger(logrus.NewEntry(log)),
		WithTimeout(2 * time.Second),
	}, opts...)
	engine := NewEngine(store, fake, opts...)
	engine.Subscribe(func(snap session.Snapshot) {
		checkInvariants(t, snap)
	})

	return &harness{engine: engine, fake: fake, store: store, clock: clock}
}

// bootstrap logs the engine into the fake backend and loads the chat list.
func (h *harness) bootstrap(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Bootstrap(context.Background()))
}

func (h *harness) msg(role session.Role, content string) session.Message {
	return session.Message{Role: role, Content: content, Timestamp: h.clock.Now()}
}

// checkInvariants asserts the properties every published snapshot must hold.
func checkInvariants(t *testing.T, snap session.Snapshot) {
	seen := make(map[string]bool, len(snap.Chats))
	for _, chat := range snap.Chats {
		if seen[chat.ID] {
			t.Errorf("duplicate chat %s in %v", chat.ID, snap.Chats)
		}
		seen[chat.ID] = true
	}

	if snap.ActiveChatID != "" && !seen[snap.ActiveChatID] {
		t.Errorf("active chat %s not in chat list %v", snap.ActiveChatID, snap.Chats)
	}
	if snap.ActiveChatID == "" && len(snap.Messages) > 0 {
		t.Errorf("transcript without active chat: %v", snap.Messages)
	}

	for i := 1; i < len(snap.Messages); i++ {
		if snap.Messages[i].Timestamp.Before(snap.Messages[i-1].Timestamp) {
			t.Errorf("message %d at %v before message %d at %v", i, snap.Messages[i].Timestamp, i-1, snap.Messages[i-1].Timestamp)
		}
	}
}

func contents(msgs []session.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, string(m.Role)+":"+m.Content)
	}
	return out
}

func chatIDs(chats []session.ChatSummary) []string {
	out := make([]string, 0, len(chats))
	for _, c := range chats {
		out = append(out, c.ID)
	}
	return out
}
