// Package httpdoor implements the HTTP front door of the bridge: it accepts
// one MCP message per POST /mcp request, feeds it to the engine through an
// in-memory stream pair, and relays whatever the engine writes back to the
// client — as one JSON body in buffered mode, or as a server-sent event
// stream in streaming mode.
//
// Every exchange owns its own stream pair and engine invocation; nothing is
// shared across requests. All faults are recovered here into JSON-RPC error
// envelopes delivered over the same channel a success would have used, so the
// HTTP transport never sees an unhandled failure.
package httpdoor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/bdobrica/markbridge/common/trace"
	"github.com/bdobrica/markbridge/internal/bridge/iostream"
	"github.com/bdobrica/markbridge/internal/bridge/mcp"
	"github.com/bdobrica/markbridge/internal/bridge/observability"
)

// Operating modes. In buffered mode the engine runs to completion before the
// response body is written; in streaming mode engine output is forwarded
// incrementally as SSE frames.
const (
	ModeBuffered  = "buffered"
	ModeStreaming = "streaming"
)

// Engine is the RPC engine the front door drives, one run per exchange.
type Engine interface {
	Run(ctx context.Context, in, out *iostream.Buffer) error
}

// Options configures the front door. Zero values fall back to defaults.
type Options struct {
	// Mode selects buffered or streaming delivery (default buffered).
	Mode string
	// EngineTimeout bounds one engine run (default 30s).
	EngineTimeout time.Duration
	// DrainInterval is the streaming-mode output poll cadence (default 10ms).
	DrainInterval time.Duration
	// MaxBodyBytes caps the inbound request body (default 4 MiB).
	MaxBodyBytes int64
	// RequestsPerSecond enables rate limiting on /mcp when positive.
	RequestsPerSecond float64
	// Burst is the rate limiter burst size (default 1).
	Burst int
	// ServerName and ServerVersion identify the engine in the default
	// envelope synthesized when a buffered exchange produced no output.
	ServerName    string
	ServerVersion string
}

// Server is the HTTP front door.
type Server struct {
	addr    string
	engine  Engine
	opts    Options
	limiter *rate.Limiter
	mux     *http.ServeMux
	server  *http.Server
}

// New creates a front door serving the given engine on addr.
func New(addr string, engine Engine, opts Options) *Server {
	if opts.Mode == "" {
		opts.Mode = ModeBuffered
	}
	if opts.EngineTimeout <= 0 {
		opts.EngineTimeout = 30 * time.Second
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = 10 * time.Millisecond
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4 * 1024 * 1024
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	s := &Server{addr: addr, engine: engine, opts: opts}
	if opts.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /mcp", s.handleMCP)
	s.mux = mux

	s.server = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// Streaming exchanges hold the response open for up to one engine
		// run, so the write timeout must outlast the engine deadline.
		WriteTimeout: opts.EngineTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. It returns once the listener is bound so callers
// can immediately start sending requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("front door listen %s: %w", s.addr, err)
	}
	slog.Info("front door listening", "addr", ln.Addr().String(), "mode", s.opts.Mode)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("front door error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.server.Shutdown(context.Background())
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// TestHandler exposes the server's HTTP handler for use in httptest.NewServer.
// This is only intended for tests.
func (s *Server) TestHandler() http.Handler {
	return s.mux
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}

// handleMCP validates one exchange and hands it to the selected mode. The
// engine is only ever constructed against a validated, non-empty, UTF-8
// message; rejected exchanges never reach it.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	ctx := trace.WithTraceID(r.Context(), trace.GenerateID())
	log := observability.WithTrace(ctx)

	if s.limiter != nil && !s.limiter.Allow() {
		log.Warn("mcp request rate limited")
		writeEnvelope(w, http.StatusTooManyRequests,
			mcp.NewError(nil, mcp.CodeRateLimited, "rate limit exceeded"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.opts.MaxBodyBytes+1))
	if err != nil {
		log.Warn("failed to read request body", "err", err)
		s.reject(w, mcp.NewError(nil, mcp.CodeInvalidRequest, "failed to read request body: "+err.Error()))
		return
	}
	if int64(len(body)) > s.opts.MaxBodyBytes {
		log.Warn("request body too large", "limit", s.opts.MaxBodyBytes)
		s.reject(w, mcp.NewError(nil, mcp.CodeInvalidRequest,
			fmt.Sprintf("request body exceeds %d bytes", s.opts.MaxBodyBytes)))
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		log.Warn("empty request body")
		s.reject(w, mcp.NewError(nil, mcp.CodeInvalidRequest, "empty request body"))
		return
	}
	if !utf8.Valid(body) {
		log.Warn("request body is not valid UTF-8")
		s.reject(w, mcp.NewError(nil, mcp.CodeParseError, "request body is not valid UTF-8"))
		return
	}

	// HTTP delivered the whole message atomically: feed it in, terminate the
	// line, and mark end-of-stream so the engine drains to EOF and returns.
	in := iostream.New()
	out := iostream.New()
	in.Write(body)
	in.WriteString("\n")
	in.CloseWrite()

	log.Debug("mcp exchange started", "mode", s.opts.Mode, "bytes", len(body))
	if s.opts.Mode == ModeStreaming {
		s.streamExchange(ctx, w, in, out, log)
	} else {
		s.bufferedExchange(ctx, w, in, out, log)
	}
}

// runEngine supervises one engine invocation, converting panics into errors
// so no fault escapes the exchange.
func (s *Server) runEngine(ctx context.Context, in, out *iostream.Buffer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return s.engine.Run(ctx, in, out)
}

// bufferedExchange runs the engine to completion and writes everything it
// produced as one JSON body.
func (s *Server) bufferedExchange(ctx context.Context, w http.ResponseWriter, in, out *iostream.Buffer, log *slog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, s.opts.EngineTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.runEngine(runCtx, in, out) }()

	select {
	case err := <-done:
		if err != nil {
			writeEnvelope(w, http.StatusOK, s.engineFault(err, log))
			return
		}
	case <-runCtx.Done():
		// The engine goroutine is abandoned; its stream pair is unreachable
		// once it returns and both fall to the collector.
		log.Error("engine run exceeded deadline", "timeout", s.opts.EngineTimeout)
		writeEnvelope(w, http.StatusOK, mcp.NewError(nil, mcp.CodeEngineTimeout, "engine timed out"))
		return
	}

	payload := out.TakeAll()
	if len(bytes.TrimSpace(payload)) == 0 {
		// The engine consumed the message without replying (e.g. a bare
		// notification). Answer with the default identity envelope so every
		// buffered exchange yields exactly one JSON object.
		payload = s.defaultEnvelope()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		log.Warn("failed to write response", "err", err)
	}
	log.Debug("mcp exchange complete", "response_bytes", len(payload))
}

// streamExchange runs the engine concurrently and forwards each complete
// output frame as one SSE event as soon as it appears. The loop exits only
// after the engine task has finished AND the output buffer is empty; the
// final drain runs after observing completion so a write racing the engine's
// return is never dropped.
func (s *Server) streamExchange(ctx context.Context, w http.ResponseWriter, in, out *iostream.Buffer, log *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.bufferedExchange(ctx, w, in, out, log)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	runCtx, cancel := context.WithTimeout(ctx, s.opts.EngineTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.runEngine(runCtx, in, out) }()

	var pending []byte
	clientGone := false

	// emit drains the output buffer and forwards every complete line as one
	// SSE frame. Partial lines stay in pending until their terminator
	// arrives. After a client disconnect the buffer is still drained so the
	// exchange winds down instead of accumulating.
	emit := func() {
		chunk := out.TakeAll()
		if clientGone {
			pending = nil
			return
		}
		pending = append(pending, chunk...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				return
			}
			line := bytes.TrimSpace(pending[:i])
			pending = pending[i+1:]
			if len(line) == 0 {
				continue
			}
			if err := writeFrame(w, flusher, line); err != nil {
				log.Warn("client disconnected mid-stream", "err", err)
				clientGone = true
				pending = nil
				return
			}
		}
	}

	// emitTail flushes an unterminated trailing fragment once the engine is
	// done and no further terminator can arrive.
	emitTail := func() {
		tail := bytes.TrimSpace(pending)
		pending = nil
		if clientGone || len(tail) == 0 {
			return
		}
		if err := writeFrame(w, flusher, tail); err != nil {
			clientGone = true
		}
	}

	emitFault := func(resp *mcp.Response) {
		if clientGone {
			return
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return
		}
		writeFrame(w, flusher, data)
	}

	ticker := time.NewTicker(s.opts.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			emit()
		case err := <-done:
			emit()
			emitTail()
			if err != nil {
				emitFault(s.engineFault(err, log))
			}
			log.Debug("mcp exchange complete")
			return
		case <-runCtx.Done():
			emit()
			emitTail()
			log.Error("engine run exceeded deadline", "timeout", s.opts.EngineTimeout)
			emitFault(mcp.NewError(nil, mcp.CodeEngineTimeout, "engine timed out"))
			return
		}
	}
}

// engineFault maps an engine run failure onto its error envelope.
func (s *Server) engineFault(err error, log *slog.Logger) *mcp.Response {
	if errors.Is(err, context.DeadlineExceeded) {
		log.Error("engine run exceeded deadline", "timeout", s.opts.EngineTimeout)
		return mcp.NewError(nil, mcp.CodeEngineTimeout, "engine timed out")
	}
	log.Error("engine failed", "err", err)
	return mcp.NewError(nil, mcp.CodeInternalError, err.Error())
}

// reject delivers a validation error over the channel the success path would
// have used: a JSON body in buffered mode, a single SSE frame in streaming
// mode. Rejected exchanges never reach the engine.
func (s *Server) reject(w http.ResponseWriter, resp *mcp.Response) {
	if s.opts.Mode != ModeStreaming {
		writeEnvelope(w, http.StatusOK, resp)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeEnvelope(w, http.StatusOK, resp)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	writeFrame(w, flusher, data)
}

// defaultEnvelope is the identity response used when the engine wrote
// nothing during a buffered exchange.
func (s *Server) defaultEnvelope() []byte {
	resp := mcp.NewResponse(json.RawMessage("0"), mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    mcp.ServerCaps{},
		ServerInfo:      mcp.ServerInfo{Name: s.opts.ServerName, Version: s.opts.ServerVersion},
	})
	data, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":0,"result":{}}` + "\n")
	}
	return append(data, '\n')
}

// --- helpers ---

func writeFrame(w http.ResponseWriter, flusher http.Flusher, payload []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeEnvelope(w http.ResponseWriter, status int, resp *mcp.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("front door: failed to encode envelope", "err", err)
		return
	}
	data = append(data, '\n')
	w.Write(data)
}
