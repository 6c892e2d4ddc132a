package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/renlou/orbit/pkg/ipc"
)

// SocketInvoker is the cross-process form of the host binding: commands are
// dispatched to the co-located daemon over its Unix socket. Each call dials
// its own connection and exchanges a single framed request/response pair.
type SocketInvoker struct {
	socketPath string
	logger     Logger
}

// NewSocketInvoker builds the socket binding.
func NewSocketInvoker(socketPath string, logger Logger) *SocketInvoker {
	return &SocketInvoker{socketPath: socketPath, logger: logger}
}

// Invoke implements Invoker over the framed socket protocol.
func (b *SocketInvoker) Invoke(ctx context.Context, cmd string, args map[string]any) (json.RawMessage, error) {
	raw, err := marshalArgs(args)
	if err != nil {
		logFailure(b.logger, cmd, err)
		return nil, err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", b.socketPath)
	if err != nil {
		logFailure(b.logger, cmd, err)
		return nil, fmt.Errorf("dial %s: %w", b.socketPath, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req := ipc.Request{
		ID:   fmt.Sprintf("bridge-%d", time.Now().UnixNano()),
		Cmd:  cmd,
		Args: raw,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		logFailure(b.logger, cmd, err)
		return nil, err
	}
	if err := ipc.WriteFrame(conn, payload); err != nil {
		logFailure(b.logger, cmd, err)
		return nil, fmt.Errorf("invoke %s: %w", cmd, err)
	}
	respBytes, err := ipc.ReadFrame(conn)
	if err != nil {
		logFailure(b.logger, cmd, err)
		return nil, fmt.Errorf("invoke %s: %w", cmd, err)
	}
	var resp ipc.Response
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		logFailure(b.logger, cmd, err)
		return nil, fmt.Errorf("decode %s response: %w", cmd, err)
	}
	if resp.Error != nil {
		backendErr := &BackendError{Command: cmd, Code: resp.Error.Code, Message: resp.Error.Message}
		logFailure(b.logger, cmd, backendErr)
		return nil, backendErr
	}
	return resp.Data, nil
}
