package cli

import (
	"chatly/internal/chaterr"
	"chatly/internal/dispatch"
	"chatly/internal/logger"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

const replHelp = `Type a message to send it to the active chat (a new chat is started when none is open).

  /login <user>       log in              /register <user>   create an account
  /logout             log out             /whoami            show user and settings
  /chats              list chats          /new               start a new chat
  /open <chat>        open a chat         /show              print the active transcript
  /rename <title>     rename active chat  /delete [chat]     delete a chat (default: active)
  /clear              delete all chats    /regen             regenerate the last reply
  /settings k=v ...   change settings     /passwd            change password
  /help               this help           /quit              leave`

type repl struct {
	client *Client
	out    io.Writer
	line   *liner.State
}

func newREPL(client *Client, out io.Writer) *repl {
	return &repl{client: client, out: out}
}

// parseCommand splits a slash command into its name and arguments
func parseCommand(input string) (name string, args []string) {
	fields := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func (r *repl) run(ctx context.Context) error {
	r.line = liner.NewLiner()
	r.line.SetCtrlCAborts(true)
	defer r.line.Close()

	historyFile := r.client.cfg.HistoryFile
	if f, err := os.Open(historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	defer r.saveHistory(historyFile)

	if err := r.client.Bootstrap(ctx); err != nil {
		if !chaterr.IsUnauthenticated(err) {
			fmt.Fprintln(r.out, "error:", describeError(err))
		}
		fmt.Fprintln(r.out, "Not logged in. Use /login <user> or /register <user>.")
	} else {
		fmt.Fprintf(r.out, "Logged in as %s. Type /help for commands.\n", r.client.Snapshot().User.Username)
		if r.client.Snapshot().ActiveChatID != "" {
			printTranscript(r.out, r.client.Snapshot())
		}
	}

	for {
		input, err := r.line.Prompt(r.prompt())
		if err != nil {
			// Ctrl+C, Ctrl+D or a closed terminal all end the session.
			fmt.Fprintln(r.out)
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if !strings.HasPrefix(input, "/") {
			r.report(r.send(ctx, input))
			continue
		}
		name, args := parseCommand(input)
		if name == "quit" || name == "exit" {
			return nil
		}
		r.report(r.command(ctx, name, args))
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) prompt() string {
	snap := r.client.Snapshot()
	if !snap.LoggedIn() {
		return "chatly> "
	}
	if chat, ok := snap.ActiveChat(); ok {
		return fmt.Sprintf("%s [%s]> ", snap.User.Username, chat.Title)
	}
	return snap.User.Username + "> "
}

func (r *repl) report(err error) {
	if err != nil {
		fmt.Fprintln(r.out, "error:", describeError(err))
	}
}

func (r *repl) send(ctx context.Context, content string) error {
	if err := r.client.Dispatch(ctx, dispatch.SendMessage{Content: content}); err != nil {
		return err
	}
	printLastReply(r.out, r.client.Snapshot())
	return nil
}

func (r *repl) command(ctx context.Context, name string, args []string) error {
	c := r.client
	switch name {
	case "help":
		fmt.Fprintln(r.out, replHelp)
	case "login":
		if len(args) != 1 {
			return errors.New("usage: /login <user>")
		}
		password, err := r.line.PasswordPrompt("Password: ")
		if err != nil {
			return err
		}
		if err := c.Dispatch(ctx, dispatch.Login{Username: args[0], Password: password}); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Logged in as %s.\n", args[0])
		printChats(r.out, c.Snapshot())
	case "register":
		if len(args) != 1 {
			return errors.New("usage: /register <user>")
		}
		password, err := r.line.PasswordPrompt("Password: ")
		if err != nil {
			return err
		}
		confirm, err := r.line.PasswordPrompt("Confirm password: ")
		if err != nil {
			return err
		}
		if err := c.Dispatch(ctx, dispatch.Register{Username: args[0], Password: password, Confirm: confirm}); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Registered and logged in as %s.\n", args[0])
	case "logout":
		if err := c.Dispatch(ctx, dispatch.Logout{}); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "Logged out.")
	case "whoami":
		printUser(r.out, c.Snapshot().User)
	case "chats":
		if err := c.Dispatch(ctx, dispatch.RefreshChats{}); err != nil {
			return err
		}
		printChats(r.out, c.Snapshot())
	case "new":
		return c.Dispatch(ctx, dispatch.CreateChat{})
	case "open":
		if len(args) != 1 {
			return errors.New("usage: /open <chat>")
		}
		chatID, err := c.ResolveChat(args[0])
		if err != nil {
			return err
		}
		if err := c.Dispatch(ctx, dispatch.SelectChat{ChatID: chatID}); err != nil {
			return err
		}
		printTranscript(r.out, c.Snapshot())
	case "show":
		printTranscript(r.out, c.Snapshot())
	case "rename":
		chatID := c.Snapshot().ActiveChatID
		if chatID == "" || len(args) == 0 {
			return errors.New("usage: /rename <title> (with a chat open)")
		}
		return c.Dispatch(ctx, dispatch.RenameChat{ChatID: chatID, Title: strings.Join(args, " ")})
	case "delete":
		chatID := c.Snapshot().ActiveChatID
		if len(args) > 0 {
			var err error
			if chatID, err = c.ResolveChat(args[0]); err != nil {
				return err
			}
		}
		if chatID == "" {
			return errors.New("usage: /delete <chat>")
		}
		if err := c.Dispatch(ctx, dispatch.DeleteChat{ChatID: chatID}); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Deleted %s.\n", chatID)
	case "clear":
		if ok, err := r.confirm("Delete all chats? [y/N] "); err != nil || !ok {
			return err
		}
		return c.Dispatch(ctx, dispatch.ClearChats{})
	case "regen", "regenerate":
		if err := c.Dispatch(ctx, dispatch.Regenerate{}); err != nil {
			return err
		}
		printLastReply(r.out, c.Snapshot())
	case "settings":
		if len(args) == 0 {
			printUser(r.out, c.Snapshot().User)
			return nil
		}
		patch, err := parseSettings(args)
		if err != nil {
			return err
		}
		return c.Dispatch(ctx, dispatch.UpdateSettings{Patch: patch})
	case "passwd":
		oldPassword, err := r.line.PasswordPrompt("Current password: ")
		if err != nil {
			return err
		}
		newPassword, err := r.line.PasswordPrompt("New password: ")
		if err != nil {
			return err
		}
		confirm, err := r.line.PasswordPrompt("Confirm new password: ")
		if err != nil {
			return err
		}
		if err := c.Dispatch(ctx, dispatch.ChangePassword{Old: oldPassword, New: newPassword, Confirm: confirm}); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "Password changed.")
	default:
		return fmt.Errorf("unknown command /%s, type /help", name)
	}
	return nil
}

func (r *repl) confirm(prompt string) (bool, error) {
	answer, err := r.line.Prompt(prompt)
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func (r *repl) saveHistory(path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		logger.Log.WithError(err).Debug("Failed to save history")
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}
