package rpcwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rmacdonaldsmith/shellwatch/internal/broker"
	"github.com/rmacdonaldsmith/shellwatch/internal/ipc"
)

// DefaultMaxMessageSize bounds a single gRPC message
const DefaultMaxMessageSize = 1024 * 1024

// Config holds configuration for the gRPC watch server
type Config struct {
	ListenAddress  string
	ClientBuffer   int
	MaxMessageSize int
	Logger         *slog.Logger
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return errors.New("listen address cannot be empty")
	}
	if c.ClientBuffer < 0 {
		return errors.New("client buffer cannot be negative")
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.ClientBuffer <= 0 {
		c.ClientBuffer = broker.DefaultClientBuffer
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Server serves the Events service. Each Watch call is one subscriber whose
// subscription lives as long as the stream.
type Server struct {
	config *Config
	repo   *ipc.Repository
	logger *slog.Logger

	mu       sync.Mutex
	grpc     *grpc.Server
	listener net.Listener
	closed   bool
	streams  sync.WaitGroup
}

// NewServer creates a server; call Start to listen
func NewServer(config *Config, repo *ipc.Repository) (*Server, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if repo == nil {
		return nil, errors.New("repository cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	configCopy := *config
	configCopy.SetDefaults()

	s := &Server{
		config: &configCopy,
		repo:   repo,
		logger: configCopy.Logger,
	}
	s.grpc = grpc.NewServer(
		grpc.MaxRecvMsgSize(configCopy.MaxMessageSize),
		grpc.MaxSendMsgSize(configCopy.MaxMessageSize),
	)
	RegisterEventsServer(s.grpc, s)
	return s, nil
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("cannot start closed server")
	}
	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.listener = listener

	go func() {
		if err := s.grpc.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("grpc server failed", "error", err)
		}
	}()

	s.logger.Info("grpc watch server listening", "address", listener.Addr().String())
	return nil
}

// GetListeningAddress returns the bound address, or the configured one
// before Start
func (s *Server) GetListeningAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.ListenAddress
}

// Watch implements EventsServer
func (s *Server) Watch(req *structpb.Struct, stream WatchStream) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return status.Error(codes.Unavailable, "server is closing")
	}
	s.streams.Add(1)
	s.mu.Unlock()
	defer s.streams.Done()

	data, err := protojson.Marshal(req)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	ctx := stream.Context()
	client := broker.NewConnection(s.config.ClientBuffer)
	logger := s.logger.With("client", client.ID(), "transport", "grpc")

	resp := s.repo.Call(ctx, client, ipc.MethodWatch, data)
	defer func() {
		// The stream context may already be cancelled.
		if err := s.repo.Disconnect(context.Background(), client); err != nil {
			logger.Warn("failed to process disconnect", "error", err)
		}
		client.Close()
		logger.Debug("client disconnected")
	}()

	first, err := toStruct(resp)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	if err := stream.Send(first); err != nil {
		return err
	}
	if !resp.IsOK() {
		return nil
	}
	logger.Debug("client subscribed")

	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-client.Records():
			if !ok {
				return nil
			}
			msg, err := toStruct(rec)
			if err != nil {
				logger.Warn("failed to convert record", "event", rec.Event(), "error", err)
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// Close stops the server, cancelling every stream, and waits for their
// disconnects to be processed. Close is idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.grpc.Stop()
	s.streams.Wait()
	return nil
}
