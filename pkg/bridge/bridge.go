// Package bridge is the client side of the command protocol: one call
// contract, several transport bindings. Feature code depends on Invoker and
// never on a concrete transport.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
)

// Invoker executes a named backend command with an optional argument mapping
// and returns the raw result. A nil args mapping is sent as an empty mapping.
// Every failure surfaces as a returned error; backend-reported failures are
// *BackendError values.
type Invoker interface {
	Invoke(ctx context.Context, cmd string, args map[string]any) (json.RawMessage, error)
}

// BackendError is a failure reported by the backend rather than the transport.
type BackendError struct {
	Command string
	Status  int
	Code    string
	Message string
}

// Error returns the backend-provided message verbatim when present, otherwise
// a synthesized message carrying the transport status.
func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s: backend returned status %d", e.Command, e.Status)
}

// Call invokes cmd and decodes the result into T.
func Call[T any](ctx context.Context, inv Invoker, cmd string, args map[string]any) (T, error) {
	var out T
	raw, err := inv.Invoke(ctx, cmd, args)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s result: %w", cmd, err)
	}
	return out, nil
}

// Logger is satisfied by logging.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

func logFailure(logger Logger, cmd string, err error) {
	if logger != nil {
		logger.Printf("command %s failed: %v", cmd, err)
	}
}
