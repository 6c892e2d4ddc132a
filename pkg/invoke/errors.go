package invoke

import "fmt"

// Error codes shared by every transport binding. Callers branch on Code, never
// on message substrings.
const (
	CodeInvalidArgs    = "INVALID_ARGS"
	CodeUnknownCommand = "UNKNOWN_COMMAND"
	CodeNotFound       = "NOT_FOUND"
	CodeAuthExpired    = "AUTH_EXPIRED"
	CodeStorageError   = "STORAGE_ERROR"
	CodeUpstreamError  = "UPSTREAM_ERROR"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternal       = "INTERNAL"
)

// Error is the structured failure produced by command handlers.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Errorf helps build protocol errors.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapErr converts an arbitrary error into a coded Error, preserving an
// existing *Error unchanged.
func WrapErr(code string, err error) *Error {
	if err == nil {
		return nil
	}
	if coded, ok := err.(*Error); ok {
		return coded
	}
	return &Error{Code: code, Message: err.Error()}
}
