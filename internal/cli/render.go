package cli

import (
	"chatly/internal/chaterr"
	"chatly/internal/session"
	"errors"
	"fmt"
	"io"
	"strings"
)

const timeLayout = "2006-01-02 15:04"

func printChats(w io.Writer, snap session.Snapshot) {
	if len(snap.Chats) == 0 {
		fmt.Fprintln(w, "No chats yet.")
		return
	}
	for i, chat := range snap.Chats {
		marker := " "
		if chat.ID == snap.ActiveChatID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %2d. %-40s %s  %s\n", marker, i+1, chat.Title, chat.Timestamp.Format(timeLayout), chat.ID)
	}
}

func printTranscript(w io.Writer, snap session.Snapshot) {
	if chat, ok := snap.ActiveChat(); ok {
		fmt.Fprintf(w, "== %s ==\n", chat.Title)
	}
	if len(snap.Messages) == 0 {
		fmt.Fprintln(w, "(empty chat)")
		return
	}
	for _, msg := range snap.Messages {
		printMessage(w, msg)
	}
}

func printMessage(w io.Writer, msg session.Message) {
	if msg.Role == session.RoleUser {
		fmt.Fprintf(w, "[%s] you: %s\n", msg.Timestamp.Format(timeLayout), msg.Content)
		return
	}
	reasoning, answer := msg.Think()
	for _, segment := range reasoning {
		fmt.Fprintf(w, "  (thinking) %s\n", strings.ReplaceAll(segment, "\n", "\n  "))
	}
	fmt.Fprintf(w, "[%s] assistant: %s\n", msg.Timestamp.Format(timeLayout), answer)
}

// printLastReply prints the newest assistant message of the transcript
func printLastReply(w io.Writer, snap session.Snapshot) {
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if snap.Messages[i].Role == session.RoleAssistant {
			printMessage(w, snap.Messages[i])
			return
		}
	}
}

func printUser(w io.Writer, user *session.User) {
	if user == nil {
		fmt.Fprintln(w, "Not logged in.")
		return
	}
	fmt.Fprintf(w, "username:        %s\n", user.Username)
	fmt.Fprintf(w, "model:           %s\n", user.Model)
	fmt.Fprintf(w, "theme:           %s\n", user.Theme)
	fmt.Fprintf(w, "colorTheme:      %s\n", user.ColorTheme)
	fmt.Fprintf(w, "fontSize:        %s\n", user.FontSize)
	fmt.Fprintf(w, "compactSidebar:  %t\n", user.CompactSidebar)
	fmt.Fprintf(w, "animations:      %t\n", user.Animations)
	fmt.Fprintf(w, "showLineNumbers: %t\n", user.ShowLineNumbers)
	fmt.Fprintf(w, "autoScroll:      %t\n", user.AutoScroll)
}

// describeError turns a dispatch error into a line for the user
func describeError(err error) string {
	var authErr *chaterr.AuthError
	var remote *chaterr.RemoteError
	var sendErr *chaterr.SendFailedError
	switch {
	case errors.As(err, &sendErr):
		return "message not answered: " + describeError(sendErr.Cause)
	case errors.As(err, &authErr):
		if authErr.Reason == chaterr.ReasonUnauthenticated {
			return "not logged in, run `chatly login` first"
		}
		if authErr.Message != "" {
			return authErr.Message
		}
		return string(authErr.Reason)
	case errors.Is(err, chaterr.ErrBusy):
		return "another change to this chat is still in progress"
	case errors.Is(err, chaterr.ErrSuperseded):
		return "the chat changed before the reply arrived"
	case errors.Is(err, chaterr.ErrNoUserMessageFound):
		return "nothing to regenerate: the chat has no user message"
	case errors.Is(err, chaterr.ErrNotFound):
		return "chat not found"
	case errors.Is(err, chaterr.ErrTimeout):
		return "the server did not answer in time"
	case errors.As(err, &remote):
		if remote.Status == 0 {
			return "cannot reach the server: " + remote.Message
		}
		return remote.Message
	}
	return err.Error()
}
