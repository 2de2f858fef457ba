package domain

import (
	"errors"
	"strings"
)

// ErrorCode classifies a failure independently of where it happened.
type ErrorCode string

const (
	CodeLoadFailed       ErrorCode = "LOAD_FAILED"
	CodePrerequisite     ErrorCode = "PREREQUISITE_FAILED"
	CodeCacheCorruption  ErrorCode = "CACHE_CORRUPTION"
	CodeRemoteExecution  ErrorCode = "REMOTE_EXECUTION_FAILED"
	CodeConfigResolution ErrorCode = "CONFIG_RESOLUTION_FAILED"
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeInternal         ErrorCode = "INTERNAL"
)

// Error is a coded failure of one operation.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

// Error renders "op: CODE: message", leaving out empty parts.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	parts := make([]string, 0, 3)
	for _, part := range []string{e.Op, string(e.Code), msg} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// E builds a coded error. An empty msg takes the cause's text.
func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{Code: code, Op: op, Message: msg, Cause: cause}
}

// Wrap codes err for op. An error that already carries a code keeps it, and
// keeps its own op when it has one.
func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var coded *Error
	if !errors.As(err, &coded) {
		return E(code, op, "", err)
	}
	if coded.Op != "" || op == "" {
		return coded
	}
	relabeled := *coded
	relabeled.Op = op
	return &relabeled
}

var sentinelCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvalidDefinition, CodeLoadFailed},
	{ErrUnresolvedEnv, CodeConfigResolution},
	{ErrInvalidParams, CodeInvalidArgument},
	{ErrToolsetNotFound, CodeNotFound},
	{ErrToolNotFound, CodeNotFound},
	{ErrToolsetDisabled, CodePrerequisite},
}

// CodeFrom returns the code carried by err, or the code of the sentinel it
// wraps.
func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code, true
	}
	for _, entry := range sentinelCodes {
		if errors.Is(err, entry.err) {
			return entry.code, true
		}
	}
	return "", false
}
