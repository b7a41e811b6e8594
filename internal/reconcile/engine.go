// Package reconcile applies backend responses to the session store.
//
// Every operation follows the same shape: record the mutation and apply any
// optimistic change under the engine lock, release the lock for the gateway
// call, then re-take the lock and check whether the response was superseded
// before merging it. Responses apply in completion order.
package reconcile

import (
	"chatly/internal/chaterr"
	"chatly/internal/gateway"
	"chatly/internal/logger"
	"chatly/internal/session"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds every gateway call.
const DefaultTimeout = 30 * time.Second

const recentLimit = 64

// Engine owns all writes to a session.Store.
type Engine struct {
	store   *session.Store
	gateway gateway.Gateway
	timeout time.Duration
	now     func() time.Time
	log     *logrus.Entry

	mu           sync.Mutex
	epochs       map[string]uint64 // bumped when a chat is deleted
	clearEpoch   uint64            // bumped on clear-all and reset
	sessionEpoch uint64            // bumped on reset only
	viewEpoch    uint64            // bumped whenever the transcript is replaced
	listStale    bool
	nextID       uint64
	inFlight     map[uint64]*Mutation
	recent       []Mutation
	refreshing   int
	journal      []journalEntry
	journalSeq   uint64

	refreshGroup singleflight.Group

	subMu       sync.Mutex
	subscribers map[int]func(session.Snapshot)
	nextSub     int
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the per-call gateway timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock replaces time.Now for optimistic message timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the log entry used by the engine.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine creates an engine writing to store and reading from gw.
func NewEngine(store *session.Store, gw gateway.Gateway, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		gateway:     gw,
		timeout:     DefaultTimeout,
		now:         time.Now,
		log:         logrus.NewEntry(logger.Log),
		epochs:      make(map[string]uint64),
		inFlight:    make(map[uint64]*Mutation),
		subscribers: make(map[int]func(session.Snapshot)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("component", "reconcile")
	return e
}

// Store returns the store the engine writes to.
func (e *Engine) Store() *session.Store {
	return e.store
}

// Subscribe registers fn to receive a snapshot after every applied change.
// The returned func removes the subscription.
func (e *Engine) Subscribe(fn func(session.Snapshot)) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subscribers, id)
	}
}

// InFlight returns the mutations still waiting for a response, oldest first.
func (e *Engine) InFlight() []Mutation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Mutation, 0, len(e.inFlight))
	for _, m := range e.inFlight {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Recent returns the last finished mutations, oldest first.
func (e *Engine) Recent() []Mutation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Mutation(nil), e.recent...)
}

// ListStale reports whether a delete or clear-all applied since the last refresh.
func (e *Engine) ListStale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listStale
}

func (e *Engine) notify() {
	snap := e.store.Snapshot()
	e.subMu.Lock()
	subs := make([]func(session.Snapshot), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subs = append(subs, fn)
	}
	e.subMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// update runs fn under the engine lock and notifies subscribers when fn
// reports a change.
func (e *Engine) update(fn func() bool) {
	e.mu.Lock()
	changed := fn()
	e.mu.Unlock()
	if changed {
		e.notify()
	}
}

// call runs one gateway request under the engine timeout.
func (e *Engine) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, chaterr.ErrTimeout) {
		err = fmt.Errorf("%w: %v", chaterr.ErrTimeout, err)
	}
	return err
}

// token captures what a response must still match to be applied.
type token struct {
	chatID  string
	epoch   uint64
	clear   uint64
	session uint64
	view    uint64
}

func (e *Engine) captureLocked(chatID string) token {
	return token{
		chatID:  chatID,
		epoch:   e.epochs[chatID],
		clear:   e.clearEpoch,
		session: e.sessionEpoch,
		view:    e.viewEpoch,
	}
}

// supersededLocked reports whether a response captured by t must be discarded.
func (e *Engine) supersededLocked(t token) bool {
	if t.clear != e.clearEpoch || t.session != e.sessionEpoch {
		return true
	}
	if t.chatID == "" {
		return false
	}
	if e.epochs[t.chatID] != t.epoch {
		return true
	}
	return e.store.ActiveChatID() != t.chatID && !e.store.HasChat(t.chatID)
}

func (e *Engine) beginLocked(kind Kind, chatID string) *Mutation {
	e.nextID++
	m := &Mutation{ID: e.nextID, Kind: kind, ChatID: chatID, State: StatePending}
	e.inFlight[m.ID] = m
	return m
}

func (e *Engine) finishLocked(m *Mutation, state State, err error) {
	m.State = state
	m.Err = err
	delete(e.inFlight, m.ID)
	e.recent = append(e.recent, *m)
	if len(e.recent) > recentLimit {
		e.recent = e.recent[len(e.recent)-recentLimit:]
	}

	entry := e.log.WithFields(logrus.Fields{
		"mutation": m.ID,
		"kind":     m.Kind,
		"chat_id":  m.ChatID,
		"state":    state.String(),
	})
	switch state {
	case StateRejected:
		entry.WithError(err).Warn("Mutation rejected")
	case StateSuperseded:
		entry.Debug("Mutation superseded")
	default:
		entry.Debug("Mutation applied")
	}
}

// supersedeLocked marks pending mutations matching chatID (all when empty) as superseded.
func (e *Engine) supersedeLocked(chatID string, except *Mutation) {
	for _, m := range e.inFlight {
		if m == except {
			continue
		}
		if chatID == "" || m.ChatID == chatID {
			m.State = StateSuperseded
		}
	}
}

// resolveLocked runs the checks every response goes through before merging.
// It returns done=true with the error to report when the response must not
// be merged.
func (e *Engine) resolveLocked(m *Mutation, t token, err error) (done bool, changed bool, out error) {
	if chaterr.IsUnauthenticated(err) {
		e.finishLocked(m, StateRejected, err)
		e.resetLocked()
		return true, true, err
	}
	if m.State == StateSuperseded || e.supersededLocked(t) {
		e.finishLocked(m, StateSuperseded, chaterr.ErrSuperseded)
		return true, false, chaterr.ErrSuperseded
	}
	return false, false, nil
}

// resetLocked returns the store to the logged out state and supersedes
// everything in flight.
func (e *Engine) resetLocked() {
	e.store.Reset()
	e.clearEpoch++
	e.sessionEpoch++
	e.viewEpoch++
	e.listStale = false
	e.journal = nil
	e.supersedeLocked("", nil)
	e.log.Info("Session reset")
}

// setActiveLocked switches the active chat and empties the transcript.
func (e *Engine) setActiveLocked(chatID string) {
	e.store.SetActiveChatID(chatID)
	e.store.ReplaceMessages(nil)
	e.viewEpoch++
}

// appendLocked appends msg to the transcript keeping timestamps non-decreasing.
func (e *Engine) appendLocked(msg session.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = e.now()
	}
	if msgs := e.store.Messages(); len(msgs) > 0 {
		if last := msgs[len(msgs)-1].Timestamp; msg.Timestamp.Before(last) {
			msg.Timestamp = last
		}
	}
	e.store.AppendMessage(msg)
}

func (e *Engine) setTitleLocked(chatID, title string) bool {
	chats := e.store.Chats()
	for i := range chats {
		if chats[i].ID == chatID {
			if chats[i].Title == title {
				return false
			}
			chats[i].Title = title
			e.store.SetChats(chats)
			e.journalLocked(journalRename, chats[i])
			return true
		}
	}
	return false
}

// removeChatLocked drops chatID from the list and supersedes its pending
// mutations. When chatID was active the active chat is cleared.
func (e *Engine) removeChatLocked(chatID string, except *Mutation) (wasActive bool) {
	e.store.SetChats(removeChat(e.store.Chats(), chatID))
	e.epochs[chatID]++
	e.supersedeLocked(chatID, except)
	e.listStale = true
	e.journalLocked(journalDelete, session.ChatSummary{ID: chatID})

	if e.store.ActiveChatID() != chatID {
		return false
	}
	e.setActiveLocked("")
	return true
}

// healLocked clears the active chat when it is no longer listed.
func (e *Engine) healLocked() bool {
	active := e.store.ActiveChatID()
	if active == "" || e.store.HasChat(active) {
		return false
	}
	e.log.WithField("chat_id", active).Debug("Active chat no longer listed, clearing")
	e.setActiveLocked("")
	return true
}

func prependChat(chats []session.ChatSummary, chat session.ChatSummary) []session.ChatSummary {
	out := make([]session.ChatSummary, 0, len(chats)+1)
	out = append(out, chat)
	for _, c := range chats {
		if c.ID != chat.ID {
			out = append(out, c)
		}
	}
	return out
}
