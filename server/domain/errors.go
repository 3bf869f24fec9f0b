package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidName    = errors.New("invalid name")
	ErrInvalidToken   = errors.New("invalid token")
	ErrIdentityInUse  = errors.New("identity in use")
	ErrNotNamed       = errors.New("not named")
	ErrNotInRoom      = errors.New("not in a room")
	ErrNotAuthorized  = errors.New("not authorized")
	ErrTopicTooLong   = errors.New("topic too long")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidRoom    = errors.New("invalid room")
	ErrInvalidArgs    = errors.New("invalid arguments")
)

// defaultMessages is what a client sees when a sentinel is returned bare.
var defaultMessages = map[error]string{
	ErrInvalidName:    "That name is not allowed",
	ErrInvalidToken:   "Invalid token",
	ErrIdentityInUse:  "That identity is already connected",
	ErrNotNamed:       "You need to set a name",
	ErrNotInRoom:      "You're not in a room",
	ErrNotAuthorized:  "You don't have permission to do that",
	ErrTopicTooLong:   fmt.Sprintf("Topics may not exceed %d characters in length", MaxTopicLength),
	ErrUnknownCommand: "Invalid command",
	ErrInvalidRoom:    "That's not a valid room",
	ErrInvalidArgs:    "Invalid arguments",
}

// Error is a protocol failure reported back to the connection that caused it.
// Kind is one of the sentinel errors above so callers can use errors.Is.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Errorf builds an *Error of the given kind with a client-facing message.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Message returns the text that should follow ERROR on the wire.
func Message(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	for kind, msg := range defaultMessages {
		if errors.Is(err, kind) {
			return msg
		}
	}
	return "Something went wrong"
}

// IsProtocolError reports whether err belongs to the client-facing taxonomy.
func IsProtocolError(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return true
	}
	for kind := range defaultMessages {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
