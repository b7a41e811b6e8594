package reconcile

import (
	"chatly/internal/chaterr"
	"chatly/internal/gateway"
	"chatly/internal/session"
	"context"
	"errors"
	"fmt"
)

// Send posts content to chatID. With an empty chatID a chat is created
// first and the message goes there. The user message is shown immediately
// when the chat is active and stays there if the send fails.
func (e *Engine) Send(ctx context.Context, chatID, content string) error {
	if chatID == "" {
		chat, err := e.CreateChat(ctx)
		if err != nil {
			return err
		}
		chatID = chat.ID
	}

	var m *Mutation
	var tok token
	e.update(func() bool {
		m = e.beginLocked(KindSend, chatID)
		if e.store.ActiveChatID() != chatID {
			tok = e.captureLocked(chatID)
			return false
		}
		e.appendLocked(session.Message{Role: session.RoleUser, Content: content, Timestamp: e.now()})
		tok = e.captureLocked(chatID)
		return true
	})

	return e.deliver(ctx, m, tok, gateway.SendRequest{ChatID: chatID, Content: content})
}

// Regenerate asks for a new reply to the last user turn of the active chat.
// The transcript is cut at the reply being replaced and is not restored if
// the request fails. A trailing user message without a reply is answered
// instead.
func (e *Engine) Regenerate(ctx context.Context, chatID string) error {
	var m *Mutation
	var tok token
	var req gateway.SendRequest
	var out error
	e.update(func() bool {
		if chatID == "" || e.store.ActiveChatID() != chatID {
			out = chaterr.Invalid(fmt.Errorf("chat %q is not active", chatID))
			return false
		}

		msgs := e.store.Messages()
		cut, content, ok := regenerationPoint(msgs)
		if !ok {
			out = chaterr.ErrNoUserMessageFound
			return false
		}

		m = e.beginLocked(KindRegenerate, chatID)
		req = gateway.SendRequest{ChatID: chatID, Content: content, Regenerate: true}
		changed := cut < len(msgs)
		if changed {
			e.store.TruncateMessages(cut)
		}
		tok = e.captureLocked(chatID)
		return changed
	})
	if out != nil {
		return out
	}

	return e.deliver(ctx, m, tok, req)
}

// regenerationPoint finds the user message to answer again and the length
// the transcript keeps.
func regenerationPoint(msgs []session.Message) (keep int, content string, ok bool) {
	n := len(msgs)
	if n == 0 {
		return 0, "", false
	}
	if msgs[n-1].Role == session.RoleUser {
		return n, msgs[n-1].Content, true
	}

	assistant := -1
	for i := n - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleAssistant {
			assistant = i
			break
		}
	}
	if assistant < 0 {
		return 0, "", false
	}
	for i := assistant - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleUser {
			return assistant, msgs[i].Content, true
		}
	}
	return 0, "", false
}

// deliver performs a send or regenerate request and merges the reply.
func (e *Engine) deliver(ctx context.Context, m *Mutation, tok token, req gateway.SendRequest) error {
	var result *gateway.SendResult
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		result, err = e.gateway.SendMessage(ctx, req)
		return err
	})

	var out error
	e.update(func() bool {
		if done, changed, resErr := e.resolveLocked(m, tok, err); done {
			out = resErr
			if !errors.Is(resErr, chaterr.ErrSuperseded) {
				out = &chaterr.SendFailedError{ChatID: req.ChatID, Cause: resErr}
			}
			return changed
		}
		if err != nil {
			e.finishLocked(m, StateRejected, err)
			out = &chaterr.SendFailedError{ChatID: req.ChatID, Cause: err}
			if errors.Is(err, chaterr.ErrNotFound) {
				e.removeChatLocked(req.ChatID, m)
				return true
			}
			return false
		}

		changed := false
		if e.store.ActiveChatID() == req.ChatID && e.viewEpoch == tok.view {
			reply := result.Message
			if reply.Role == "" {
				reply.Role = session.RoleAssistant
			}
			e.appendLocked(reply)
			changed = true
		}
		if result.Title != "" && result.Title != session.DefaultChatTitle {
			if e.setTitleLocked(req.ChatID, result.Title) {
				changed = true
			}
		}
		e.finishLocked(m, StateApplied, nil)
		return changed
	})
	return out
}
