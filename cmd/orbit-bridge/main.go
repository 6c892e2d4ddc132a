package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/renlou/orbit/pkg/bridge"
	"github.com/renlou/orbit/pkg/config"
)

// request is one line of JSON on stdin from the host process.
type request struct {
	ID   string         `json:"id"`
	Cmd  string         `json:"cmd"`
	Args map[string]any `json:"args,omitempty"`
}

// reply mirrors the daemon envelope so the host sees one shape on both paths.
type reply struct {
	ID    string          `json:"id"`
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

func main() {
	socket := flag.String("socket", "", "Unix socket path (bypasses HTTP when set)")
	baseURL := flag.String("base-url", config.DefaultBaseURL, "Daemon HTTP base URL")
	timeout := flag.Duration("timeout", 60*time.Second, "Per-call timeout")
	flag.Parse()

	var invoker bridge.Invoker
	if *socket != "" {
		invoker = bridge.NewSocketInvoker(*socket, nil)
	} else {
		invoker = bridge.NewHTTPInvoker(*baseURL, nil)
	}

	reader := bufio.NewReader(os.Stdin)
	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "bridge exiting: %v\n", err)
			return
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			fmt.Fprintf(os.Stderr, "invalid message: %v\n", err)
			continue
		}
		out := dispatch(invoker, req, *timeout)
		if err := json.NewEncoder(writer).Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "write error: %v\n", err)
			return
		}
		writer.Flush()
	}
}

func dispatch(invoker bridge.Invoker, req request, timeout time.Duration) reply {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	data, err := invoker.Invoke(ctx, req.Cmd, req.Args)
	if err != nil {
		out := reply{ID: req.ID, Error: err.Error()}
		var backendErr *bridge.BackendError
		if errors.As(err, &backendErr) {
			out.Code = backendErr.Code
		}
		return out
	}
	return reply{ID: req.ID, OK: true, Data: data}
}
