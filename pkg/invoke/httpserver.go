package invoke

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Envelope is the uniform wire wrapper of the HTTP binding. ok=true implies
// data is present; ok=false implies error carries a human-readable message and
// code carries the machine-readable classification.
type Envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

type invokeRequest struct {
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args"`
}

// HTTPServer exposes the dispatcher over POST /api/invoke.
type HTTPServer struct {
	dispatcher *Dispatcher
	logger     Logger
	limiter    *mapLimiter
}

// HTTPOptions tunes the HTTP binding.
type HTTPOptions struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewHTTPServer wraps a dispatcher with the HTTP transport.
func NewHTTPServer(d *Dispatcher, logger Logger, opts HTTPOptions) *HTTPServer {
	return &HTTPServer{
		dispatcher: d,
		logger:     logger,
		limiter:    newMapLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
	}
}

// Router builds the mux router for the daemon's HTTP surface.
func (s *HTTPServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/invoke", s.handleInvoke).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

func (s *HTTPServer) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(clientKey(r), time.Now()) {
		s.writeError(w, http.StatusTooManyRequests, Errorf(CodeRateLimited, "too many requests"))
		return
	}
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, Errorf(CodeInvalidArgs, "invalid request body: %v", err))
		return
	}
	if req.Cmd == "" {
		s.writeError(w, http.StatusBadRequest, Errorf(CodeInvalidArgs, "cmd required"))
		return
	}
	data, cmdErr := s.dispatcher.Dispatch(r.Context(), req.Cmd, req.Args)
	if cmdErr != nil {
		s.writeError(w, statusFor(cmdErr.Code), cmdErr)
		return
	}
	s.writeJSON(w, http.StatusOK, Envelope{OK: true, Data: data})
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, cmdErr *Error) {
	s.writeJSON(w, status, Envelope{OK: false, Error: cmdErr.Message, Code: cmdErr.Code})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil && s.logger != nil {
		s.logger.Printf("write response: %v", err)
	}
}

func statusFor(code string) int {
	switch code {
	case CodeUnknownCommand, CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInternal, CodeStorageError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
