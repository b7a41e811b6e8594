// Package cli is the chatly command line client. Every command goes
// through the intent dispatcher and prints from store snapshots.
package cli

import (
	"chatly/internal/config"
	"chatly/internal/dispatch"
	"chatly/internal/gateway"
	"chatly/internal/logger"
	"chatly/internal/reconcile"
	"chatly/internal/session"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Client ties the gateway, engine and dispatcher of one CLI invocation together.
type Client struct {
	cfg        *config.ClientConfig
	gateway    *gateway.HTTPGateway
	engine     *reconcile.Engine
	dispatcher *dispatch.Dispatcher
	out        io.Writer
}

// NewClient creates a client for cfg.BaseURL and restores the saved session.
func NewClient(cfg *config.ClientConfig, out io.Writer) (*Client, error) {
	log := logrus.NewEntry(logger.Log)

	gw, err := gateway.NewHTTPGateway(cfg.BaseURL, log)
	if err != nil {
		return nil, err
	}
	cookies, err := loadCookies(cfg.CookieFile)
	if err != nil {
		return nil, err
	}
	gw.SetCookies(cookies)

	engine := reconcile.NewEngine(session.NewStore(), gw,
		reconcile.WithTimeout(cfg.Timeout),
		reconcile.WithLogger(log),
	)

	return &Client{
		cfg:        cfg,
		gateway:    gw,
		engine:     engine,
		dispatcher: dispatch.New(engine, dispatch.WithLogger(log)),
		out:        out,
	}, nil
}

// Dispatch runs an intent.
func (c *Client) Dispatch(ctx context.Context, intent dispatch.Intent) error {
	return c.dispatcher.Dispatch(ctx, intent)
}

// Bootstrap restores the session from the saved cookie.
func (c *Client) Bootstrap(ctx context.Context) error {
	return c.Dispatch(ctx, dispatch.Bootstrap{})
}

// Snapshot returns the current session state.
func (c *Client) Snapshot() session.Snapshot {
	return c.engine.Store().Snapshot()
}

// ResolveChat accepts a chat id or a 1-based position in the chat list.
func (c *Client) ResolveChat(ref string) (string, error) {
	chats := c.engine.Store().Chats()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(chats) {
			return "", fmt.Errorf("no chat number %d (have %d)", n, len(chats))
		}
		return chats[n-1].ID, nil
	}
	for _, chat := range chats {
		if chat.ID == ref {
			return chat.ID, nil
		}
	}
	if strings.HasPrefix(ref, "chat_") {
		return ref, nil
	}
	return "", fmt.Errorf("unknown chat %q", ref)
}

// Close saves the session cookie for the next invocation.
func (c *Client) Close() error {
	return saveCookies(c.cfg.CookieFile, c.gateway.Cookies())
}
