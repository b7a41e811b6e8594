package cli

import (
	"chatly/internal/config"
	"chatly/internal/dispatch"
	"chatly/internal/gateway"
	"chatly/internal/logger"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

type runner struct {
	out      io.Writer
	baseURL  string
	verbose  bool
	password string
	client   *Client
}

// NewRootCommand builds the chatly command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	r := &runner{out: out}

	root := &cobra.Command{
		Use:           "chatly",
		Short:         "Chat with your models from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&r.baseURL, "url", "", "backend URL (default from CHATLY_URL)")
	root.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "log requests to stderr")

	var newChat bool
	var chatRef string

	login := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and remember the session",
		Args:  cobra.ExactArgs(1),
		RunE: r.action(false, func(ctx context.Context, args []string) error {
			password, err := r.readPassword("Password: ")
			if err != nil {
				return err
			}
			if err := r.client.Dispatch(ctx, dispatch.Login{Username: args[0], Password: password}); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Logged in as %s.\n", args[0])
			return nil
		}),
	}

	register := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(1),
		RunE: r.action(false, func(ctx context.Context, args []string) error {
			password, err := r.readPassword("Password: ")
			if err != nil {
				return err
			}
			confirm := password
			if r.password == "" {
				if confirm, err = r.readPassword("Confirm password: "); err != nil {
					return err
				}
			}
			if err := r.client.Dispatch(ctx, dispatch.Register{Username: args[0], Password: password, Confirm: confirm}); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Registered and logged in as %s.\n", args[0])
			return nil
		}),
	}
	for _, cmd := range []*cobra.Command{login, register} {
		cmd.Flags().StringVarP(&r.password, "password", "p", "", "password (prompted when omitted)")
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: r.action(false, func(ctx context.Context, args []string) error {
			if err := r.client.Dispatch(ctx, dispatch.Logout{}); err != nil {
				return err
			}
			fmt.Fprintln(r.out, "Logged out.")
			return nil
		}),
	}

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user and settings",
		Args:  cobra.NoArgs,
		RunE: r.action(true, func(ctx context.Context, args []string) error {
			printUser(r.out, r.client.Snapshot().User)
			return nil
		}),
	}

	chats := &cobra.Command{
		Use:   "chats",
		Short: "List chats, most recent first",
		Args:  cobra.NoArgs,
		RunE: r.action(true, func(ctx context.Context, args []string) error {
			printChats(r.out, r.client.Snapshot())
			return nil
		}),
	}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Start an empty chat",
		Args:  cobra.NoArgs,
		RunE: r.action(true, func(ctx context.Context, args []string) error {
			if err := r.client.Dispatch(ctx, dispatch.CreateChat{}); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Created %s.\n", r.client.Snapshot().ActiveChatID)
			return nil
		}),
	}

	open := &cobra.Command{
		Use:   "open <chat>",
		Short: "Show a chat transcript (chat id or list number)",
		Args:  cobra.ExactArgs(1),
		RunE: r.action(true, func(ctx context.Context, args []string) error {
			if err := r.selectChat(ctx, args[0]); err != nil {
				return err
			}
			printTranscript(r.out, r.client.Snapshot())
			return nil
		}),
	}

	send := &cobra.Command{
		Use:   "send <message>...",
		Short: "Send a message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: r.action(true, func(ctx context.Context, args []string) error {
			switch {
			case newChat:
				if err := r.client.Dispatch(ctx, dispatch.CreateChat{}); err != nil {
					return err
				}
			case chatRef != "":
				if err := r.selectChat(ctx, chatRef); err != nil {
					return err
				}
			}
			content := strings.Join(args, " ")
			if err := r.client.Dispatch(ctx, dispatch.SendMessage{Content: content}); err != nil {
				return err
			}
			printLastReply(r.out, r.client.Snapshot())
			return nil
		}),
	}
	send.Flags().BoolVarP(&newChat, "new", "n", false, "send to a new chat")
	send.Flags().StringVarP(&chatRef, "chat", "c", "", "chat id or list number (default: most recent)")

	regenerate := &cobra.Command{
		Use:   "regenerate",
		Short: "Replace the last reply of a chat",
		Args:  cobra.NoArgs,
		RunE: r.action(true, func(ctx context.Context, args []string) error {
			if chatRef != "" {
				if err := r.selectChat(ctx, chatRef); err != nil {
					return err
				}
			}
			if err := r.client.Dispatch(ctx, dispatch.Regenerate{}); err != nil {
				return err
			}
			printLastReply(r.out, r.client.Snapshot())
			return nil
		}),
	}
	regenerate.Flags().StringVarP(&chatRef, "chat", "c", "", "chat id or list number (default: most recent)")

	rename := &cobra.Command{
		Use:   "rename <chat> <title>...",
		Short: "Rename a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: r.action(true, func(ctx context.Context, args []string) error {
			chatID, err := r.client.ResolveChat(args[0])
			if err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			if err := r.client.Dispatch(ctx, dispatch.RenameChat{ChatID: chatID, Title: title}); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Renamed %s to %q.\n", chatID, title)
			return nil
		}),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <chat>",
		Short: "Delete a chat",
		Args:  cobra.ExactArgs(1),
		RunE: r.action(true, func(ctx context.Context, args []string) error {
			chatID, err := r.client.ResolveChat(args[0])
			if err != nil {
				return err
			}
			if err := r.client.Dispatch(ctx, dispatch.DeleteChat{ChatID: chatID}); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Deleted %s.\n", chatID)
			return nil
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all chats",
		Args:  cobra.NoArgs,
		RunE: r.action(true, func(ctx context.Context, args []string) error {
			if err := r.client.Dispatch(ctx, dispatch.ClearChats{}); err != nil {
				return err
			}
			fmt.Fprintln(r.out, "All chats deleted.")
			return nil
		}),
	}

	settings := &cobra.Command{
		Use:   "settings [key=value]...",
		Short: "Show or change settings",
		Long: `Show the settings, or change them with key=value pairs.

Keys: theme, colorTheme, model, fontSize, compactSidebar, animations,
showLineNumbers, autoScroll.`,
		RunE: r.action(true, func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				patch, err := parseSettings(args)
				if err != nil {
					return err
				}
				if err := r.client.Dispatch(ctx, dispatch.UpdateSettings{Patch: patch}); err != nil {
					return err
				}
			}
			printUser(r.out, r.client.Snapshot().User)
			return nil
		}),
	}

	passwd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the password",
		Args:  cobra.NoArgs,
		RunE: r.action(true, func(ctx context.Context, args []string) error {
			oldPassword, err := r.readPassword("Current password: ")
			if err != nil {
				return err
			}
			newPassword, err := r.readPassword("New password: ")
			if err != nil {
				return err
			}
			confirm, err := r.readPassword("Confirm new password: ")
			if err != nil {
				return err
			}
			if err := r.client.Dispatch(ctx, dispatch.ChangePassword{Old: oldPassword, New: newPassword, Confirm: confirm}); err != nil {
				return err
			}
			fmt.Fprintln(r.out, "Password changed.")
			return nil
		}),
	}

	deleteAccount := &cobra.Command{
		Use:   "delete-account",
		Short: "Delete the account and all chats",
		Args:  cobra.NoArgs,
		RunE: r.action(true, func(ctx context.Context, args []string) error {
			password, err := r.readPassword("Password: ")
			if err != nil {
				return err
			}
			if err := r.client.Dispatch(ctx, dispatch.DeleteAccount{Password: password}); err != nil {
				return err
			}
			fmt.Fprintln(r.out, "Account deleted.")
			return nil
		}),
	}
	deleteAccount.Flags().StringVarP(&r.password, "password", "p", "", "password (prompted when omitted)")

	repl := &cobra.Command{
		Use:   "repl",
		Short: "Interactive chat session",
		Args:  cobra.NoArgs,
		RunE: r.action(false, func(ctx context.Context, args []string) error {
			return newREPL(r.client, r.out).run(ctx)
		}),
	}

	root.AddCommand(login, register, logout, whoami, chats, newCmd, open, send,
		regenerate, rename, deleteCmd, clearCmd, settings, passwd, deleteAccount, repl)
	return root
}

// action wraps a command body with client setup, optional session
// restore and cookie persistence.
func (r *runner) action(needSession bool, fn func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if r.verbose {
			logger.Configure("debug", "text")
		}

		cfg, err := config.LoadClientConfig()
		if err != nil {
			return err
		}
		if r.baseURL != "" {
			cfg.BaseURL = strings.TrimRight(r.baseURL, "/")
		}

		r.client, err = NewClient(cfg, r.out)
		if err != nil {
			return err
		}

		err = r.execute(cmd.Context(), needSession, fn, args)
		if saveErr := r.client.Close(); saveErr != nil {
			logger.Log.WithError(saveErr).Warn("Failed to save session")
		}
		if err != nil {
			return errors.New(describeError(err))
		}
		return nil
	}
}

func (r *runner) execute(ctx context.Context, needSession bool, fn func(ctx context.Context, args []string) error, args []string) error {
	if needSession {
		if err := r.client.Bootstrap(ctx); err != nil {
			return err
		}
	}
	return fn(ctx, args)
}

func (r *runner) selectChat(ctx context.Context, ref string) error {
	chatID, err := r.client.ResolveChat(ref)
	if err != nil {
		return err
	}
	return r.client.Dispatch(ctx, dispatch.SelectChat{ChatID: chatID})
}

// readPassword returns the --password flag or prompts without echo
func (r *runner) readPassword(prompt string) (string, error) {
	if r.password != "" {
		return r.password, nil
	}
	line := liner.NewLiner()
	defer line.Close()
	password, err := line.PasswordPrompt(prompt)
	if errors.Is(err, liner.ErrNotTerminalOutput) {
		return "", errors.New("no terminal for the password prompt, pass --password")
	}
	return password, err
}

// parseSettings turns key=value pairs into a settings patch
func parseSettings(args []string) (gateway.SettingsPatch, error) {
	var patch gateway.SettingsPatch
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return patch, fmt.Errorf("expected key=value, got %q", arg)
		}
		value = strings.TrimSpace(value)

		var target **bool
		switch strings.TrimSpace(key) {
		case "theme":
			patch.Theme = &value
		case "colorTheme":
			patch.ColorTheme = &value
		case "model":
			patch.Model = &value
		case "fontSize":
			patch.FontSize = &value
		case "compactSidebar":
			target = &patch.CompactSidebar
		case "animations":
			target = &patch.Animations
		case "showLineNumbers":
			target = &patch.ShowLineNumbers
		case "autoScroll":
			target = &patch.AutoScroll
		default:
			return patch, fmt.Errorf("unknown setting %q", key)
		}
		if target != nil {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return patch, fmt.Errorf("%s must be true or false, got %q", key, value)
			}
			*target = &b
		}
	}
	return patch, nil
}

// Execute runs the chatly command line.
func Execute() {
	logger.SetOutput(os.Stderr)
	logger.Configure("warn", "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := NewRootCommand(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "chatly:", err)
		os.Exit(1)
	}
}
