package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlasmemory/atlas/internal/config"
	"github.com/atlasmemory/atlas/internal/events"
	"github.com/atlasmemory/atlas/internal/logging"
)

// Server is Atlas's Unix-socket JSON-RPC front door. Grounded on the
// teacher's pkg/server.(*Server).Start: a listener accept loop run in its
// own goroutine, shut down by cancelling the context and waiting for
// in-flight connections up to a deadline.
type Server struct {
	app     Application
	cfg     config.ServerConfig
	logger  *logging.Logger
	scanBuf int

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

const maxLineBytes = 16 << 20 // 16MiB, generous for ingest payloads with many file paths

func NewServer(app Application, cfg config.ServerConfig, logger *logging.Logger) *Server {
	return &Server{
		app:     app,
		cfg:     cfg,
		logger:  logger,
		scanBuf: maxLineBytes,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds the Unix socket and serves connections until ctx is
// cancelled, then shuts down gracefully within cfg.ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.cfg.SocketPath); err != nil {
		return err
	}
	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.serve(ctx, listener)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.forgetConn(conn)
			h := newConnHandler(ctx, s.app, conn, s.scanBuf, s.logger)
			h.run()
		}()
	}
}

func (s *Server) forgetConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) shutdown() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		_ = listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timeout := time.Duration(s.cfg.ShutdownTimeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
	}
	return os.RemoveAll(s.cfg.SocketPath)
}

// connHandler owns one accepted connection: it decodes request frames,
// dispatches them, and serializes all writes (responses and pushed
// notifications) through writeMu so concurrent goroutines never interleave
// partial JSON onto the wire.
type connHandler struct {
	ctx    context.Context
	app    Application
	conn   net.Conn
	logger *logging.Logger

	scanner *bufio.Scanner
	encoder *json.Encoder
	writeMu sync.Mutex

	subMu  sync.Mutex
	subID  uint64
	subSet bool
	cancel context.CancelFunc
}

func newConnHandler(ctx context.Context, app Application, conn net.Conn, scanBuf int, logger *logging.Logger) *connHandler {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBuf)
	return &connHandler{
		ctx:     ctx,
		app:     app,
		conn:    conn,
		logger:  logger,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}
}

func (h *connHandler) run() {
	defer h.conn.Close()
	defer h.clearSubscription()

	for h.scanner.Scan() {
		line := h.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			h.writeResponse(newError(nil, codeParseError, "invalid JSON"))
			continue
		}
		h.handleRequest(req)
	}
}

func (h *connHandler) handleRequest(req Request) {
	switch req.Method {
	case "atlas.subscribe":
		h.handleSubscribe(req)
		return
	case "atlas.unsubscribe":
		h.handleUnsubscribe(req)
		return
	}

	result, methodErr := dispatch(h.ctx, h.app, req.Method, req.Params)
	if methodErr != nil {
		h.writeResponse(newError(req.ID, methodErr.code, methodErr.message))
		return
	}
	h.writeResponse(newResult(req.ID, result))
}

func (h *connHandler) handleSubscribe(req Request) {
	var params struct {
		Events []string `json:"events"`
	}
	if err := unmarshalParams(req.Params, &params); err != nil {
		h.writeResponse(newError(req.ID, codeInvalidParams, err.Error()))
		return
	}

	h.clearSubscription()

	id, ch := h.app.Subscribe(params.Events)
	subCtx, cancel := context.WithCancel(h.ctx)
	h.subMu.Lock()
	h.subID = id
	h.subSet = true
	h.cancel = cancel
	h.subMu.Unlock()

	go h.forward(subCtx, ch)

	h.writeResponse(newResult(req.ID, nil))
}

func (h *connHandler) handleUnsubscribe(req Request) {
	h.clearSubscription()
	h.writeResponse(newResult(req.ID, nil))
}

func (h *connHandler) clearSubscription() {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	if !h.subSet {
		return
	}
	h.app.Unsubscribe(h.subID)
	h.cancel()
	h.subSet = false
}

func (h *connHandler) forward(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			h.writeNotification(Notification{JSONRPC: jsonRPCVersion, Method: event.Type, Params: event.Params})
		}
	}
}

func (h *connHandler) writeResponse(resp Response) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := h.encoder.Encode(resp); err != nil && h.logger != nil {
		h.logger.Warn(h.ctx, "rpc: failed writing response", zap.Error(err))
	}
}

func (h *connHandler) writeNotification(n Notification) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := h.encoder.Encode(n); err != nil && h.logger != nil {
		h.logger.Warn(h.ctx, "rpc: failed writing notification", zap.Error(err))
	}
}
