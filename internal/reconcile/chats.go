package reconcile

import (
	"chatly/internal/chaterr"
	"chatly/internal/gateway"
	"chatly/internal/session"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

type journalKind int

const (
	journalCreate journalKind = iota
	journalDelete
	journalClear
	journalRename
)

// journalEntry is a local list change that a refresh started earlier must
// not undo.
type journalEntry struct {
	seq  uint64
	kind journalKind
	chat session.ChatSummary
}

func (e *Engine) journalLocked(kind journalKind, chat session.ChatSummary) {
	e.journalSeq++
	if e.refreshing == 0 {
		return
	}
	e.journal = append(e.journal, journalEntry{seq: e.journalSeq, kind: kind, chat: chat})
}

// CreateChat creates an empty chat and makes it active. When a delete or
// clear-all applied since the last refresh, the list is re-fetched first so
// the active chat is validated against the backend.
func (e *Engine) CreateChat(ctx context.Context) (session.ChatSummary, error) {
	return e.createChat(ctx, nil)
}

// CreateChatClaimed is CreateChat with claim run under the engine lock before
// the new chat is published. A claim error is returned once the chat is
// published.
func (e *Engine) CreateChatClaimed(ctx context.Context, claim func(chatID string) error) (session.ChatSummary, error) {
	return e.createChat(ctx, claim)
}

func (e *Engine) createChat(ctx context.Context, claim func(chatID string) error) (session.ChatSummary, error) {
	if e.ListStale() {
		if err := e.RefreshChats(ctx); err != nil {
			return session.ChatSummary{}, fmt.Errorf("refresh before create: %w", err)
		}
	}

	var m *Mutation
	var tok token
	e.update(func() bool {
		m = e.beginLocked(KindCreate, "")
		tok = e.captureLocked("")
		return false
	})

	var chat session.ChatSummary
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		chat, err = e.gateway.CreateChat(ctx)
		return err
	})

	var out, claimErr error
	e.update(func() bool {
		if done, changed, resErr := e.resolveLocked(m, tok, err); done {
			out = resErr
			return changed
		}
		if err != nil {
			e.finishLocked(m, StateRejected, err)
			out = err
			return false
		}

		if chat.Title == "" {
			chat.Title = session.DefaultChatTitle
		}
		if chat.Timestamp.IsZero() {
			chat.Timestamp = e.now()
		}
		if claim != nil {
			claimErr = claim(chat.ID)
		}
		e.store.SetChats(prependChat(e.store.Chats(), chat))
		e.setActiveLocked(chat.ID)
		e.journalLocked(journalCreate, chat)
		m.ChatID = chat.ID
		e.finishLocked(m, StateApplied, nil)
		return true
	})
	if out != nil {
		return session.ChatSummary{}, out
	}
	return chat, claimErr
}

// RenameChat sets the title of chatID.
func (e *Engine) RenameChat(ctx context.Context, chatID, title string) error {
	var m *Mutation
	var tok token
	e.update(func() bool {
		m = e.beginLocked(KindRename, chatID)
		tok = e.captureLocked(chatID)
		return false
	})

	err := e.call(ctx, func(ctx context.Context) error {
		return e.gateway.RenameChat(ctx, chatID, title)
	})

	var out error
	e.update(func() bool {
		if done, changed, resErr := e.resolveLocked(m, tok, err); done {
			out = resErr
			return changed
		}
		if err != nil {
			e.finishLocked(m, StateRejected, err)
			out = err
			if errors.Is(err, chaterr.ErrNotFound) {
				e.removeChatLocked(chatID, m)
				return true
			}
			return false
		}
		changed := e.setTitleLocked(chatID, title)
		e.finishLocked(m, StateApplied, nil)
		return changed
	})
	return out
}

// DeleteChat removes chatID. Pending requests for the chat are superseded.
// A chat the backend no longer knows counts as deleted. When the active chat
// is deleted the first remaining chat becomes active and is loaded.
func (e *Engine) DeleteChat(ctx context.Context, chatID string) error {
	var m *Mutation
	var tok token
	e.update(func() bool {
		m = e.beginLocked(KindDelete, chatID)
		tok = e.captureLocked("")
		return false
	})

	err := e.call(ctx, func(ctx context.Context) error {
		return e.gateway.DeleteChat(ctx, chatID)
	})

	var out error
	var replacement string
	var loadTok token
	e.update(func() bool {
		if done, changed, resErr := e.resolveLocked(m, tok, err); done {
			out = resErr
			return changed
		}
		if err != nil && !errors.Is(err, chaterr.ErrNotFound) {
			e.finishLocked(m, StateRejected, err)
			out = err
			return false
		}
		if wasActive := e.removeChatLocked(chatID, m); wasActive {
			if chats := e.store.Chats(); len(chats) > 0 {
				replacement = chats[0].ID
				e.setActiveLocked(replacement)
				loadTok = e.captureLocked(replacement)
			}
		}
		e.finishLocked(m, StateApplied, nil)
		return true
	})
	if out != nil {
		return out
	}

	if replacement != "" {
		if err := e.load(ctx, replacement, loadTok); err != nil && !errors.Is(err, chaterr.ErrSuperseded) {
			e.log.WithError(err).WithField("chat_id", replacement).Warn("Failed to load replacement chat")
		}
	}
	return nil
}

// ClearChats removes every chat and supersedes everything in flight.
// Clearing an empty list succeeds.
func (e *Engine) ClearChats(ctx context.Context) error {
	var m *Mutation
	var tok token
	e.update(func() bool {
		m = e.beginLocked(KindClear, "")
		tok = e.captureLocked("")
		return false
	})

	err := e.call(ctx, func(ctx context.Context) error {
		return e.gateway.ClearChats(ctx)
	})

	var out error
	e.update(func() bool {
		if done, changed, resErr := e.resolveLocked(m, tok, err); done {
			out = resErr
			return changed
		}
		if err != nil {
			e.finishLocked(m, StateRejected, err)
			out = err
			return false
		}
		e.store.SetChats(nil)
		e.setActiveLocked("")
		e.clearEpoch++
		e.listStale = true
		e.supersedeLocked("", m)
		e.journalLocked(journalClear, session.ChatSummary{})
		e.finishLocked(m, StateApplied, nil)
		return true
	})
	return out
}

// SelectChat makes chatID active and loads its transcript. The transcript is
// only applied if the chat is still active when it arrives.
func (e *Engine) SelectChat(ctx context.Context, chatID string) error {
	var tok token
	var out error
	e.update(func() bool {
		if !e.store.HasChat(chatID) {
			out = fmt.Errorf("%w: %s", chaterr.ErrNotFound, chatID)
			return false
		}
		e.setActiveLocked(chatID)
		tok = e.captureLocked(chatID)
		return true
	})
	if out != nil {
		return out
	}
	return e.load(ctx, chatID, tok)
}

// load fetches the transcript of the chat made active under tok.
func (e *Engine) load(ctx context.Context, chatID string, tok token) error {
	var detail *gateway.ChatDetail
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		detail, err = e.gateway.GetChat(ctx, chatID)
		return err
	})

	var out error
	e.update(func() bool {
		if chaterr.IsUnauthenticated(err) {
			e.resetLocked()
			out = err
			return true
		}
		if e.supersededLocked(tok) || e.store.ActiveChatID() != chatID || e.viewEpoch != tok.view {
			out = chaterr.ErrSuperseded
			return false
		}
		if errors.Is(err, chaterr.ErrNotFound) {
			e.removeChatLocked(chatID, nil)
			out = err
			return true
		}
		if err != nil {
			out = err
			return false
		}

		msgs := append([]session.Message(nil), detail.Messages...)
		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
		e.store.ReplaceMessages(msgs)
		if detail.Title != "" {
			e.setTitleLocked(chatID, detail.Title)
		}
		e.log.WithFields(logrus.Fields{"chat_id": chatID, "messages": len(msgs)}).Debug("Chat loaded")
		return true
	})
	return out
}

// RefreshChats replaces the chat list with the backend's. Concurrent calls
// share one request. Local list changes applied while the request was in
// flight are replayed on top of the result. The shared request is detached
// from the caller's cancellation and bounded by the engine timeout; a
// cancelled caller stops waiting without failing the others.
func (e *Engine) RefreshChats(ctx context.Context) error {
	shared := context.WithoutCancel(ctx)
	ch := e.refreshGroup.DoChan("chats", func() (any, error) {
		return nil, e.refresh(shared)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) refresh(ctx context.Context) error {
	var startSeq uint64
	var tok token
	e.update(func() bool {
		e.refreshing++
		startSeq = e.journalSeq
		tok = e.captureLocked("")
		return false
	})

	var chats []session.ChatSummary
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		chats, err = e.gateway.ListChats(ctx)
		return err
	})

	var out error
	e.update(func() bool {
		e.refreshing--
		defer func() {
			if e.refreshing == 0 {
				e.journal = nil
			}
		}()

		if chaterr.IsUnauthenticated(err) {
			e.resetLocked()
			out = err
			return true
		}
		if tok.session != e.sessionEpoch {
			out = chaterr.ErrSuperseded
			return false
		}
		if err != nil {
			out = err
			return false
		}

		stale := false
		for _, entry := range e.journal {
			if entry.seq <= startSeq {
				continue
			}
			switch entry.kind {
			case journalCreate:
				chats = prependChat(chats, entry.chat)
			case journalDelete:
				chats = removeChat(chats, entry.chat.ID)
				stale = true
			case journalClear:
				chats = nil
				stale = true
			case journalRename:
				chats = renameChat(chats, entry.chat)
			}
		}

		e.store.SetChats(chats)
		e.listStale = stale
		e.healLocked()
		e.log.WithField("chats", len(chats)).Debug("Chat list refreshed")
		return true
	})
	return out
}

func renameChat(chats []session.ChatSummary, renamed session.ChatSummary) []session.ChatSummary {
	for i := range chats {
		if chats[i].ID == renamed.ID {
			chats[i].Title = renamed.Title
		}
	}
	return chats
}

func removeChat(chats []session.ChatSummary, chatID string) []session.ChatSummary {
	out := make([]session.ChatSummary, 0, len(chats))
	for _, c := range chats {
		if c.ID != chatID {
			out = append(out, c)
		}
	}
	return out
}
