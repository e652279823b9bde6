package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/rmacdonaldsmith/shellwatch/internal/broker"
	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
)

// Request is a decoded client request
type Request struct {
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Server serves the method repository over a Unix socket. Each accepted
// connection is a subscriber: responses and event records share the socket.
type Server struct {
	config *Config
	repo   *Repository
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a server; call Start to listen
func NewServer(config *Config, repo *Repository) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Server{
		config: config,
		repo:   repo,
		logger: config.Logger,
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Start removes a stale socket file, listens and accepts in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("cannot start closed server")
	}
	if s.listener != nil {
		return nil
	}

	if err := os.Remove(s.config.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.config.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.SocketPath, err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop(listener)

	s.logger.Info("ipc server listening", "socket", s.config.SocketPath)
	return nil
}

// Addr returns the socket path
func (s *Server) Addr() string {
	return s.config.SocketPath
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", "error", err)
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serve(conn)
	}
}

// serve handles one client until it hangs up
func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	client := broker.NewConnection(s.config.ClientBuffer)
	logger := s.logger.With("client", client.ID())
	logger.Debug("client connected")

	var writeMu sync.Mutex
	write := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return WriteFrame(conn, data)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for rec := range client.Records() {
			if err := write(rec); err != nil {
				logger.Debug("failed to deliver record", "error", err)
				// keep draining so Close can finish
			}
		}
	}()

	ctx := context.Background()
	for {
		payload, err := ReadFrame(conn, s.config.MaxMessageSize)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("read failed", "error", err)
			}
			break
		}

		var req Request
		var resp brokerpkg.Response
		if err := json.Unmarshal(payload, &req); err != nil {
			resp = brokerpkg.Error("Malformed request: " + err.Error())
		} else {
			resp = s.repo.Call(ctx, client, req.Method, req.Data)
		}
		if err := write(resp); err != nil {
			logger.Debug("failed to write response", "error", err)
			break
		}
	}

	if err := s.repo.Disconnect(ctx, client); err != nil {
		logger.Warn("failed to process disconnect", "error", err)
	}
	client.Close()
	<-writerDone
	logger.Debug("client disconnected")
}

// Close stops accepting, hangs up every client and waits for their
// disconnects to be processed. Close is idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	s.wg.Wait()

	if rmErr := os.Remove(s.config.SocketPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}
