package engine

import (
	"errors"
	"fmt"
)

// Error represents a rejected or failed inbound command.
//
// Errors include:
//   - Malformed message: not JSON, or payload does not satisfy its schema
//   - Unknown command: command name not recognized
//   - Not active: this instance does not hold the lease
//   - Handler failed: the command was valid but its handler failed
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Command is the command name, when it could be read.
	Command string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes command errors.
type ErrorCode string

const (
	// ErrCodeMalformed indicates an unparsable or schema-violating message.
	ErrCodeMalformed ErrorCode = "MALFORMED_MESSAGE"

	// ErrCodeUnknownCommand indicates an unrecognized command name.
	ErrCodeUnknownCommand ErrorCode = "UNKNOWN_COMMAND"

	// ErrCodeNotActive indicates a trigger reached a waiting instance.
	ErrCodeNotActive ErrorCode = "NOT_ACTIVE"

	// ErrCodeHandlerFailed indicates the handler returned an error or panicked.
	ErrCodeHandlerFailed ErrorCode = "HANDLER_FAILED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Command != "" {
		msg = fmt.Sprintf("%s: %s (command=%s)", e.Code, e.Message, e.Command)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsMalformed returns true if the message could not be decoded or validated.
// Uses errors.As to handle wrapped errors.
func IsMalformed(err error) bool {
	return hasCode(err, ErrCodeMalformed)
}

// IsUnknownCommand returns true if the command name was not recognized.
func IsUnknownCommand(err error) bool {
	return hasCode(err, ErrCodeUnknownCommand)
}

// IsNotActive returns true if the instance was waiting.
func IsNotActive(err error) bool {
	return hasCode(err, ErrCodeNotActive)
}

func malformed(command, msg string, cause error) *Error {
	return &Error{Code: ErrCodeMalformed, Command: command, Message: msg, Err: cause}
}

func unknownCommand(command string) *Error {
	return &Error{Code: ErrCodeUnknownCommand, Command: command, Message: "unrecognized command"}
}

func notActive(command string) *Error {
	return &Error{Code: ErrCodeNotActive, Command: command, Message: "instance is waiting; send activate-now to take over"}
}

func handlerFailed(command string, cause error) *Error {
	return &Error{Code: ErrCodeHandlerFailed, Command: command, Message: "handler failed", Err: cause}
}
