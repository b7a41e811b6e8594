// Package dispatch is the single entry point for user actions. It validates
// input, refuses a mutation while another one for the same chat is in flight
// and hands everything else to the reconciliation engine.
package dispatch

import (
	"chatly/internal/chaterr"
	"chatly/internal/gateway"
	"chatly/internal/logger"
	"chatly/internal/session"
	"chatly/pkg/validation"
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Engine is the part of the reconciliation engine the dispatcher drives.
type Engine interface {
	Store() *session.Store
	CreateChat(ctx context.Context) (session.ChatSummary, error)
	CreateChatClaimed(ctx context.Context, claim func(chatID string) error) (session.ChatSummary, error)
	Send(ctx context.Context, chatID, content string) error
	Regenerate(ctx context.Context, chatID string) error
	RenameChat(ctx context.Context, chatID, title string) error
	DeleteChat(ctx context.Context, chatID string) error
	ClearChats(ctx context.Context) error
	SelectChat(ctx context.Context, chatID string) error
	RefreshChats(ctx context.Context) error
	Login(ctx context.Context, username, password string) error
	Register(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	Bootstrap(ctx context.Context) error
	UpdateSettings(ctx context.Context, patch gateway.SettingsPatch) error
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	DeleteAccount(ctx context.Context, password string) error
}

// Dispatcher routes intents to the engine.
type Dispatcher struct {
	engine   Engine
	store    *session.Store
	guard    *guard
	auth     *validation.AuthRequestValidator
	chat     *validation.ChatRequestValidator
	settings *validation.SettingsValidator
	log      *logrus.Entry
}

// Option configures a Dispatcher.
type Option func(*dispatcherOptions)

type dispatcherOptions struct {
	log          *logrus.Entry
	isKnownModel func(string) bool
}

// WithLogger sets the log entry used by the dispatcher.
func WithLogger(log *logrus.Entry) Option {
	return func(o *dispatcherOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// WithModelCheck rejects settings naming a model alias isKnown does not accept.
func WithModelCheck(isKnown func(string) bool) Option {
	return func(o *dispatcherOptions) {
		o.isKnownModel = isKnown
	}
}

// New creates a dispatcher driving engine.
func New(engine Engine, opts ...Option) *Dispatcher {
	o := dispatcherOptions{log: logrus.NewEntry(logger.Log)}
	for _, opt := range opts {
		opt(&o)
	}
	return &Dispatcher{
		engine:   engine,
		store:    engine.Store(),
		guard:    newGuard(),
		auth:     validation.NewAuthRequestValidator(),
		chat:     validation.NewChatRequestValidator(),
		settings: validation.NewSettingsValidator(o.isKnownModel),
		log:      o.log.WithField("component", "dispatch"),
	}
}

// Busy reports whether a mutation for chatID is in flight.
func (d *Dispatcher) Busy(chatID string) bool {
	return d.guard.pending(chatKey(chatID))
}

// Dispatch validates intent and runs it. It blocks until the engine is done.
func (d *Dispatcher) Dispatch(ctx context.Context, intent Intent) error {
	err := d.dispatch(ctx, intent)
	entry := d.log.WithField("intent", intent.intentName())
	switch {
	case err == nil:
		entry.Debug("Intent completed")
	case errors.Is(err, chaterr.ErrBusy), errors.Is(err, chaterr.ErrSuperseded):
		entry.WithError(err).Debug("Intent dropped")
	default:
		entry.WithError(err).Info("Intent failed")
	}
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, intent Intent) error {
	switch in := intent.(type) {
	case CreateChat:
		return d.createChat(ctx)
	case SendMessage:
		return d.sendMessage(ctx, in)
	case Regenerate:
		return d.regenerate(ctx, in)
	case RenameChat:
		if err := d.chat.ValidateRenameRequest(in.ChatID, in.Title); err != nil {
			return chaterr.Invalid(err)
		}
		return d.guarded(chatKey(in.ChatID), in, false, func() error {
			return d.engine.RenameChat(ctx, in.ChatID, in.Title)
		})
	case DeleteChat:
		if err := d.chat.ValidateChatID(in.ChatID); err != nil {
			return chaterr.Invalid(err)
		}
		return d.guarded(chatKey(in.ChatID), in, true, func() error {
			return d.engine.DeleteChat(ctx, in.ChatID)
		})
	case ClearChats:
		return d.guarded(globalKey, in, true, func() error {
			return d.engine.ClearChats(ctx)
		})
	case SelectChat:
		if err := d.chat.ValidateChatID(in.ChatID); err != nil {
			return chaterr.Invalid(err)
		}
		return d.engine.SelectChat(ctx, in.ChatID)
	case RefreshChats:
		if err := d.engine.RefreshChats(ctx); err != nil {
			return err
		}
		return d.openFirst(ctx)
	case Bootstrap:
		if err := d.engine.Bootstrap(ctx); err != nil {
			return err
		}
		return d.openFirst(ctx)
	case Login:
		if err := d.auth.ValidateLoginRequest(in.Username, in.Password); err != nil {
			return invalidAuth(err)
		}
		return d.guarded(accountKey, in, false, func() error {
			if err := d.engine.Login(ctx, in.Username, in.Password); err != nil {
				return err
			}
			return d.openFirst(ctx)
		})
	case Register:
		if err := d.auth.ValidateRegisterRequest(in.Username, in.Password); err != nil {
			return invalidAuth(err)
		}
		if err := d.auth.ValidatePasswordConfirmation(in.Password, in.Confirm); err != nil {
			return invalidAuth(err)
		}
		return d.guarded(accountKey, in, false, func() error {
			return d.engine.Register(ctx, in.Username, in.Password)
		})
	case Logout:
		return d.guarded(accountKey, in, false, func() error {
			return d.engine.Logout(ctx)
		})
	case UpdateSettings:
		if in.Patch.Empty() {
			return chaterr.Invalid(errors.New("no settings to update"))
		}
		p := in.Patch
		if err := d.settings.ValidateSettings(p.Theme, p.ColorTheme, p.Model, p.FontSize); err != nil {
			return chaterr.Invalid(err)
		}
		return d.guarded(accountKey, in, false, func() error {
			return d.engine.UpdateSettings(ctx, in.Patch)
		})
	case ChangePassword:
		if err := d.auth.ValidateChangePasswordRequest(in.Old, in.New); err != nil {
			return invalidAuth(err)
		}
		if err := d.auth.ValidatePasswordConfirmation(in.New, in.Confirm); err != nil {
			return invalidAuth(err)
		}
		return d.guarded(accountKey, in, false, func() error {
			return d.engine.ChangePassword(ctx, in.Old, in.New)
		})
	case DeleteAccount:
		if in.Password == "" {
			return invalidAuth(errors.New("password cannot be empty"))
		}
		return d.guarded(accountKey, in, false, func() error {
			return d.engine.DeleteAccount(ctx, in.Password)
		})
	}
	return chaterr.Invalid(fmt.Errorf("unknown intent %T", intent))
}

func (d *Dispatcher) guarded(key string, intent Intent, superseding bool, fn func() error) error {
	release, err := d.guard.acquire(key, intent.intentName(), superseding)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (d *Dispatcher) createChat(ctx context.Context) error {
	return d.guarded(newChatKey, CreateChat{}, false, func() error {
		_, err := d.engine.CreateChat(ctx)
		return err
	})
}

func (d *Dispatcher) sendMessage(ctx context.Context, in SendMessage) error {
	if err := d.chat.ValidateMessage(in.Content); err != nil {
		return chaterr.Invalid(err)
	}

	chatID := in.ChatID
	if chatID == "" {
		chatID = d.store.ActiveChatID()
	}
	if chatID != "" {
		if err := d.chat.ValidateChatID(chatID); err != nil {
			return chaterr.Invalid(err)
		}
		return d.guarded(chatKey(chatID), in, false, func() error {
			return d.engine.Send(ctx, chatID, in.Content)
		})
	}

	// No active chat: the create holds the new-chat slot and claims the
	// created chat before it becomes visible.
	releaseNew, err := d.guard.acquire(newChatKey, in.intentName(), false)
	if err != nil {
		return err
	}
	var releaseChat func()
	chat, err := d.engine.CreateChatClaimed(ctx, func(chatID string) error {
		release, err := d.guard.acquire(chatKey(chatID), in.intentName(), false)
		releaseChat = release
		return err
	})
	releaseNew()
	if releaseChat != nil {
		defer releaseChat()
	}
	if err != nil {
		return err
	}
	return d.engine.Send(ctx, chat.ID, in.Content)
}

func (d *Dispatcher) regenerate(ctx context.Context, in Regenerate) error {
	chatID := in.ChatID
	if chatID == "" {
		chatID = d.store.ActiveChatID()
	}
	if chatID == "" {
		return chaterr.Invalid(errors.New("no active chat"))
	}
	if err := d.chat.ValidateChatID(chatID); err != nil {
		return chaterr.Invalid(err)
	}
	return d.guarded(chatKey(chatID), in, false, func() error {
		return d.engine.Regenerate(ctx, chatID)
	})
}

// openFirst selects the most recent chat when none is active.
func (d *Dispatcher) openFirst(ctx context.Context) error {
	if d.store.ActiveChatID() != "" {
		return nil
	}
	chats := d.store.Chats()
	if len(chats) == 0 {
		return nil
	}
	err := d.engine.SelectChat(ctx, chats[0].ID)
	if errors.Is(err, chaterr.ErrSuperseded) {
		return nil
	}
	return err
}

func invalidAuth(err error) error {
	return chaterr.NewAuthError(chaterr.ReasonValidation, err.Error())
}
