package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/renlou/orbit/pkg/invoke"
)

// Server serves command requests over a Unix socket, delegating every call to
// the shared dispatcher so socket and HTTP clients see identical behavior.
type Server struct {
	dispatcher *invoke.Dispatcher
	logger     invoke.Logger

	mu     sync.Mutex
	ln     net.Listener
	closed bool
}

// NewServer constructs a socket server around a dispatcher.
func NewServer(dispatcher *invoke.Dispatcher, logger invoke.Logger) *Server {
	return &Server{dispatcher: dispatcher, logger: logger}
}

// Start begins accepting connections on the socket at path.
func (s *Server) Start(ctx context.Context, path string) error {
	if s == nil || s.dispatcher == nil {
		return errors.New("nil server")
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return
			}
			s.logf("accept error: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		payload, err := ReadFrame(conn)
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			s.reply(conn, Response{Error: invoke.Errorf(invoke.CodeInvalidArgs, "invalid json")})
			continue
		}
		data, cmdErr := s.dispatcher.Dispatch(ctx, req.Cmd, req.Args)
		resp := Response{ID: req.ID}
		if cmdErr != nil {
			resp.Error = cmdErr
		} else {
			resp.OK = true
			resp.Data = data
		}
		if err := s.reply(conn, resp); err != nil {
			return
		}
	}
}

func (s *Server) reply(conn net.Conn, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return WriteFrame(conn, payload)
}

// Stop shuts down the listener.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) logf(format string, v ...any) {
	if s.logger != nil {
		s.logger.Printf(format, v...)
	}
}
