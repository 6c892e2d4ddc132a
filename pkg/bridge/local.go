package bridge

import (
	"context"
	"encoding/json"

	"github.com/renlou/orbit/pkg/invoke"
)

// LocalInvoker is the in-process form of the host binding: it hands
// command+args straight to a dispatcher. No envelope exists on this path; the
// dispatcher already normalizes success and failure.
type LocalInvoker struct {
	dispatcher *invoke.Dispatcher
	logger     Logger
}

// NewLocalInvoker wraps a dispatcher as an Invoker.
func NewLocalInvoker(dispatcher *invoke.Dispatcher, logger Logger) *LocalInvoker {
	return &LocalInvoker{dispatcher: dispatcher, logger: logger}
}

// Invoke implements Invoker against the in-process dispatcher.
func (b *LocalInvoker) Invoke(ctx context.Context, cmd string, args map[string]any) (json.RawMessage, error) {
	raw, err := marshalArgs(args)
	if err != nil {
		logFailure(b.logger, cmd, err)
		return nil, err
	}
	data, cmdErr := b.dispatcher.Dispatch(ctx, cmd, raw)
	if cmdErr != nil {
		backendErr := &BackendError{Command: cmd, Code: cmdErr.Code, Message: cmdErr.Message}
		logFailure(b.logger, cmd, backendErr)
		return nil, backendErr
	}
	return data, nil
}

func marshalArgs(args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	return json.Marshal(args)
}
