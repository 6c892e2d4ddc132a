package ipc

import (
	"encoding/json"

	"github.com/renlou/orbit/pkg/invoke"
)

// Request models one command call over the socket transport.
type Request struct {
	ID   string          `json:"id,omitempty"`
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Response models the socket transport's reply. Unlike the HTTP envelope the
// error is already structured; the host side normalizes success and failure.
type Response struct {
	ID    string          `json:"id,omitempty"`
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *invoke.Error   `json:"error,omitempty"`
}
