// Package services defines the business logic for accounts, chats, messages,
// and AI summaries. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

// Account-related errors.
var (
	// ErrEmailTaken indicates the email already belongs to an active account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrUsernameTaken indicates the username already belongs to an active account.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidCredentials is returned for a bad email/password pair. It is
	// deliberately indistinguishable between "no such user" and "wrong password".
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountLocked is returned when the account is under a lockout window
	// after repeated failed logins.
	ErrAccountLocked = errors.New("account temporarily locked")

	// ErrAccountUnverified is returned on login before the verification email
	// has been confirmed.
	ErrAccountUnverified = errors.New("email not verified")

	// ErrInvalidToken covers expired, revoked, or unknown verification, reset,
	// and refresh tokens.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrWeakPassword is returned when a password fails the minimum-length rule.
	ErrWeakPassword = errors.New("password must be at least 8 characters")

	// ErrUserNotFound indicates the account does not exist or was deleted.
	ErrUserNotFound = errors.New("user not found")
)

// Chat- and message-related errors.
var (
	// ErrChatNotFound indicates that the requested chat does not exist or is
	// not accessible to the current user.
	ErrChatNotFound = errors.New("chat not found")

	// ErrMessageNotFound indicates that the requested message does not exist
	// or is not accessible to the current user.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEmptyPrompt is returned when a request to create or edit a message
	// contains an empty prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when a prompt exceeds the configured length limit.
	ErrTooLong = errors.New("prompt too long")

	// ErrNotUserMessage is returned when an edit targets a message that was
	// not written by the user. Only user turns can be edited.
	ErrNotUserMessage = errors.New("only user messages can be edited")

	// ErrNotAssistantMessage is returned when feedback or regeneration targets
	// a message that is not an assistant reply.
	ErrNotAssistantMessage = errors.New("not an assistant message")

	// ErrInvalidFeedback is returned when a feedback value is outside the
	// allowed set (-1, 0, or 1).
	ErrInvalidFeedback = errors.New("feedback value must be -1, 0, or 1")

	// ErrNoMessages is returned when a summary is requested for an account
	// with no conversation history to summarize.
	ErrNoMessages = errors.New("no messages to summarize")
)
