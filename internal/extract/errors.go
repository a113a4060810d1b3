package extract

import (
	"errors"
	"fmt"
)

// ErrorCode identifies why an extraction attempt failed.
type ErrorCode string

const (
	CodeMissingAPIKey ErrorCode = "missing_api_key"
	CodeUnreachable   ErrorCode = "unreachable"
	CodeBadStatus     ErrorCode = "bad_status"
	CodeEmptyContent  ErrorCode = "empty_content"
	CodeUnparseable   ErrorCode = "unparseable"
	CodeInvalidDraft  ErrorCode = "invalid_draft"
)

// Error wraps an extraction failure with a stable code so callers can tell
// "the message was not a transaction" apart from infrastructure problems.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotTransaction reports whether err means the input simply was not a
// parseable transaction message, as opposed to an infrastructure failure.
func IsNotTransaction(err error) bool {
	var extractErr *Error
	if !errors.As(err, &extractErr) {
		return false
	}
	return extractErr.Code == CodeUnparseable || extractErr.Code == CodeInvalidDraft
}
