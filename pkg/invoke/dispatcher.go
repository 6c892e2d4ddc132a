package invoke

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Handler processes command arguments and returns a result or structured error.
type Handler func(context.Context, json.RawMessage) (any, *Error)

// Logger is satisfied by logging.Logger; kept minimal to avoid dependency cycles.
type Logger interface {
	Printf(format string, v ...any)
}

// Dispatcher is the host-side invoke primitive: a registry mapping command
// names to handlers. Every transport (HTTP, socket, in-process) funnels into
// Dispatch.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   Logger
}

// NewDispatcher constructs an empty command registry.
func NewDispatcher(logger Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register installs a handler for a command name.
func (d *Dispatcher) Register(cmd string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[cmd] = handler
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cmds := make([]string, 0, len(d.handlers))
	for cmd := range d.handlers {
		cmds = append(cmds, cmd)
	}
	sort.Strings(cmds)
	return cmds
}

// Dispatch runs the handler registered for cmd. Absent args are passed to the
// handler as an empty JSON object, never as null.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd string, args json.RawMessage) (json.RawMessage, *Error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	d.mu.RLock()
	handler := d.handlers[cmd]
	d.mu.RUnlock()

	commandsTotal.WithLabelValues(cmd).Inc()
	if handler == nil {
		return nil, d.fail(cmd, Errorf(CodeUnknownCommand, "unknown command: %s", cmd))
	}
	result, cmdErr := handler(ctx, args)
	if cmdErr != nil {
		return nil, d.fail(cmd, cmdErr)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, d.fail(cmd, Errorf(CodeInternal, "encode result: %v", err))
	}
	return raw, nil
}

func (d *Dispatcher) fail(cmd string, cmdErr *Error) *Error {
	failuresTotal.WithLabelValues(cmd, cmdErr.Code).Inc()
	if d.logger != nil {
		d.logger.Printf("command %s failed: %s (%s)", cmd, cmdErr.Message, cmdErr.Code)
	}
	return cmdErr
}
