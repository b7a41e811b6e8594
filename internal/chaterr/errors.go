// Package chaterr holds the errors shared by the chat client layers.
package chaterr

import (
	"errors"
	"fmt"
)

// AuthReason classifies authentication failures reported by the backend.
type AuthReason string

const (
	ReasonUserExists      AuthReason = "user_exists"
	ReasonUserNotFound    AuthReason = "user_not_found"
	ReasonInvalidPassword AuthReason = "invalid_password"
	ReasonValidation      AuthReason = "validation_error"
	ReasonUnauthenticated AuthReason = "unauthenticated"
)

// IsAuthReason reports whether code names a known auth failure.
func IsAuthReason(code string) bool {
	switch AuthReason(code) {
	case ReasonUserExists, ReasonUserNotFound, ReasonInvalidPassword, ReasonValidation, ReasonUnauthenticated:
		return true
	}
	return false
}

var (
	ErrNotFound           = errors.New("chat not found")
	ErrBusy               = errors.New("another request for this chat is in flight")
	ErrSendFailed         = errors.New("message could not be sent")
	ErrNoUserMessageFound = errors.New("no user message to regenerate from")
	ErrTimeout            = errors.New("request timed out")
	ErrSuperseded         = errors.New("response superseded by a newer change")
	ErrInvalidInput       = errors.New("invalid input")
)

// AuthError is returned for credential and session failures.
type AuthError struct {
	Reason  AuthReason
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth %s: %s", e.Reason, e.Message)
	}
	return "auth " + string(e.Reason)
}

// NewAuthError builds an AuthError.
func NewAuthError(reason AuthReason, message string) *AuthError {
	return &AuthError{Reason: reason, Message: message}
}

// IsUnauthenticated reports whether err means the session is gone.
func IsUnauthenticated(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Reason == ReasonUnauthenticated
}

// SendFailedError wraps the cause of a failed send. The optimistic user
// message stays in the transcript.
type SendFailedError struct {
	ChatID string
	Cause  error
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.ChatID, e.Cause)
}

func (e *SendFailedError) Unwrap() error { return e.Cause }

func (e *SendFailedError) Is(target error) bool { return target == ErrSendFailed }

// RemoteError is any backend failure without a more specific meaning.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote error %d: %s", e.Status, e.Message)
}

// Invalid wraps a validation failure so it matches ErrInvalidInput.
func Invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
