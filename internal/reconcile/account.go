package reconcile

import (
	"chatly/internal/chaterr"
	"chatly/internal/gateway"
	"chatly/internal/session"
	"context"
	"fmt"
)

// Login authenticates and loads the chat list of the new session.
func (e *Engine) Login(ctx context.Context, username, password string) error {
	return e.startSession(ctx, func(ctx context.Context) (*session.User, error) {
		return e.gateway.Login(ctx, username, password)
	})
}

// Register creates an account, which also logs it in.
func (e *Engine) Register(ctx context.Context, username, password string) error {
	return e.startSession(ctx, func(ctx context.Context) (*session.User, error) {
		return e.gateway.Register(ctx, username, password)
	})
}

// Bootstrap resumes the session held by the gateway's cookie, if any.
func (e *Engine) Bootstrap(ctx context.Context) error {
	return e.startSession(ctx, e.gateway.CurrentUser)
}

func (e *Engine) startSession(ctx context.Context, authenticate func(context.Context) (*session.User, error)) error {
	var user *session.User
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		user, err = authenticate(ctx)
		return err
	})
	if err != nil {
		e.update(func() bool {
			if chaterr.IsUnauthenticated(err) && e.store.User() != nil {
				e.resetLocked()
				return true
			}
			return false
		})
		return err
	}

	e.update(func() bool {
		e.resetLocked()
		e.store.SetUser(user)
		return true
	})
	e.log.WithField("username", user.Username).Info("Session started")

	if err := e.RefreshChats(ctx); err != nil {
		return fmt.Errorf("failed to load chats: %w", err)
	}
	return nil
}

// Logout ends the session. Local state is cleared even when the backend
// cannot be reached.
func (e *Engine) Logout(ctx context.Context) error {
	err := e.call(ctx, e.gateway.Logout)
	e.update(func() bool {
		e.resetLocked()
		return true
	})
	if chaterr.IsUnauthenticated(err) {
		return nil
	}
	return err
}

// DeleteAccount removes the account and every chat it owns.
func (e *Engine) DeleteAccount(ctx context.Context, password string) error {
	err := e.call(ctx, func(ctx context.Context) error {
		return e.gateway.DeleteAccount(ctx, password)
	})
	if err != nil {
		e.resetOnUnauthenticated(err)
		return err
	}
	e.update(func() bool {
		e.resetLocked()
		return true
	})
	return nil
}

// UpdateSettings applies patch and stores the user the backend returns.
func (e *Engine) UpdateSettings(ctx context.Context, patch gateway.SettingsPatch) error {
	var m *Mutation
	var tok token
	e.update(func() bool {
		m = e.beginLocked(KindSettings, "")
		tok = e.captureLocked("")
		return false
	})

	var user *session.User
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		user, err = e.gateway.UpdateSettings(ctx, patch)
		return err
	})

	var out error
	e.update(func() bool {
		if tok.session != e.sessionEpoch && err == nil {
			e.finishLocked(m, StateSuperseded, chaterr.ErrSuperseded)
			out = chaterr.ErrSuperseded
			return false
		}
		if chaterr.IsUnauthenticated(err) {
			e.finishLocked(m, StateRejected, err)
			e.resetLocked()
			out = err
			return true
		}
		if err != nil {
			e.finishLocked(m, StateRejected, err)
			out = err
			return false
		}
		e.store.SetUser(user)
		e.finishLocked(m, StateApplied, nil)
		return true
	})
	return out
}

// ChangePassword replaces the account password.
func (e *Engine) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	err := e.call(ctx, func(ctx context.Context) error {
		return e.gateway.ChangePassword(ctx, oldPassword, newPassword)
	})
	e.resetOnUnauthenticated(err)
	return err
}

func (e *Engine) resetOnUnauthenticated(err error) {
	if !chaterr.IsUnauthenticated(err) {
		return
	}
	e.update(func() bool {
		e.resetLocked()
		return true
	})
}
