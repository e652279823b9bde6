// Package daemon assembles a running shellwatch host: the event loop, the
// shell model, the broker, the method repository and every enabled
// transport.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rmacdonaldsmith/shellwatch/internal/broker"
	"github.com/rmacdonaldsmith/shellwatch/internal/config"
	"github.com/rmacdonaldsmith/shellwatch/internal/eventloop"
	"github.com/rmacdonaldsmith/shellwatch/internal/httpapi"
	"github.com/rmacdonaldsmith/shellwatch/internal/ipc"
	"github.com/rmacdonaldsmith/shellwatch/internal/mqttbridge"
	"github.com/rmacdonaldsmith/shellwatch/internal/rpcwatch"
	"github.com/rmacdonaldsmith/shellwatch/internal/shell"
	"github.com/rmacdonaldsmith/shellwatch/internal/shellevents"
	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
)

var (
	// ErrClosed is returned when starting a node that has been stopped
	ErrClosed = errors.New("cannot start closed node")
)

// Node owns the host components and the transports in front of them
type Node struct {
	mu     sync.Mutex
	config *config.Config
	logger *slog.Logger

	loop   *eventloop.Loop
	core   *shell.Core
	broker *broker.ShellBroker
	repo   *ipc.Repository

	ipcServer  *ipc.Server
	httpServer *httpapi.Server
	rpcServer  *rpcwatch.Server
	bridge     *mqttbridge.Bridge

	cancelLoop context.CancelFunc
	loopDone   chan struct{}

	started bool
	closed  bool
}

// Option customizes a Node
type Option func(*options)

type options struct {
	mqttClient mqtt.Client
}

// New builds a node from cfg. Transports are created but not started;
// call Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Node, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	loop := eventloop.New(cfg.Broker.QueueSize, logger.With("component", "loop"))

	// The loop is not running yet, so the core can be seeded directly.
	core := shell.NewCore()
	for _, out := range cfg.Shell.Outputs {
		core.AddOutput(out.Name, shell.Geometry{Width: out.Width, Height: out.Height})
	}

	b, err := broker.New(&broker.Config{
		Strict:       cfg.Broker.Strict,
		ClientBuffer: cfg.Broker.ClientBuffer,
		Logger:       logger.With("component", "broker"),
	}, core, shellevents.NewCatalogue(core, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}

	repo := ipc.NewRepository(loop, logger.With("component", "repository"))
	ipc.RegisterBrokerMethods(repo, b)
	ipc.RegisterShellMethods(repo, core)

	n := &Node{
		config: cfg,
		logger: logger,
		loop:   loop,
		core:   core,
		broker: b,
		repo:   repo,
	}
	if err := n.createTransports(o); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) createTransports(o options) error {
	cfg := n.config

	if cfg.IPC.Enabled {
		server, err := ipc.NewServer(&ipc.Config{
			SocketPath:     cfg.IPC.Socket,
			ClientBuffer:   cfg.Broker.ClientBuffer,
			MaxMessageSize: cfg.IPC.MaxMessageSize,
			Logger:         n.logger.With("transport", "ipc"),
		}, n.repo)
		if err != nil {
			return fmt.Errorf("failed to create IPC server: %w", err)
		}
		n.ipcServer = server
	}

	if cfg.HTTP.Enabled {
		keepalive, _ := cfg.HTTPKeepalive()
		ttl, _ := cfg.HTTPTokenTTL()
		server, err := httpapi.NewServer(&httpapi.Config{
			Address:      cfg.HTTP.Address,
			SecretKey:    cfg.HTTP.SecretKey,
			AdminKey:     cfg.HTTP.AdminKey,
			TokenTTL:     ttl,
			Keepalive:    keepalive,
			ClientBuffer: cfg.Broker.ClientBuffer,
			Logger:       n.logger.With("transport", "http"),
		}, httpapi.Host{Loop: n.loop, Broker: n.broker, Repo: n.repo, Core: n.core})
		if err != nil {
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}
		n.httpServer = server
	}

	if cfg.GRPC.Enabled {
		server, err := rpcwatch.NewServer(&rpcwatch.Config{
			ListenAddress: cfg.GRPC.Address,
			ClientBuffer:  cfg.Broker.ClientBuffer,
			Logger:        n.logger.With("transport", "grpc"),
		}, n.repo)
		if err != nil {
			return fmt.Errorf("failed to create gRPC server: %w", err)
		}
		n.rpcServer = server
	}

	if cfg.MQTT.Enabled {
		bridge, err := mqttbridge.New(&mqttbridge.Config{
			Broker:       cfg.MQTT.Broker,
			ClientID:     cfg.MQTT.ClientID,
			Username:     cfg.MQTT.Username,
			Password:     cfg.MQTT.Password,
			TopicPrefix:  cfg.MQTT.Prefix,
			Events:       cfg.MQTT.Events,
			QoS:          byte(cfg.MQTT.QoS),
			Retain:       cfg.MQTT.Retain,
			ClientBuffer: cfg.Broker.ClientBuffer,
			Logger:       n.logger.With("transport", "mqtt"),
		}, n.repo, o.mqttClient)
		if err != nil {
			return fmt.Errorf("failed to create MQTT bridge: %w", err)
		}
		n.bridge = bridge
	}

	return nil
}

// Start runs the event loop and starts every enabled transport. If a
// transport fails to start, everything started so far is stopped.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	if n.started {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	n.cancelLoop = cancel
	n.loopDone = make(chan struct{})
	go func() {
		defer close(n.loopDone)
		if err := n.loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			n.logger.Error("event loop stopped", "error", err)
		}
	}()
	n.started = true

	if err := n.startTransports(ctx); err != nil {
		n.stopLocked(ctx)
		return err
	}
	n.logger.Info("node started", "transports", n.transportsLocked())
	return nil
}

func (n *Node) startTransports(ctx context.Context) error {
	if n.ipcServer != nil {
		if err := n.ipcServer.Start(); err != nil {
			return fmt.Errorf("failed to start IPC server: %w", err)
		}
	}
	if n.httpServer != nil {
		if err := n.httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}
	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
	}
	if n.bridge != nil {
		if err := n.bridge.Start(ctx); err != nil {
			return fmt.Errorf("failed to start MQTT bridge: %w", err)
		}
	}
	return nil
}

// Stop shuts down the transports, closes the broker and stops the event
// loop. A stopped node cannot be restarted. Stop is idempotent.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopLocked(ctx)
}

func (n *Node) stopLocked(ctx context.Context) error {
	if n.closed {
		return nil
	}
	n.closed = true
	if !n.started {
		return nil
	}

	// Transports disconnect their clients through the loop, so it must
	// keep running until they are gone.
	var errs []error
	if n.bridge != nil {
		if err := n.bridge.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop MQTT bridge: %w", err))
		}
	}
	if n.httpServer != nil {
		if err := n.httpServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
		}
	}
	if n.rpcServer != nil {
		if err := n.rpcServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop gRPC server: %w", err))
		}
	}
	if n.ipcServer != nil {
		if err := n.ipcServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop IPC server: %w", err))
		}
	}

	if err := n.loop.Call(ctx, func() { _ = n.broker.Close() }); err != nil {
		errs = append(errs, fmt.Errorf("failed to close broker: %w", err))
	}

	n.cancelLoop()
	<-n.loopDone
	n.started = false
	n.logger.Info("node stopped")
	return errors.Join(errs...)
}

// Done is closed once the event loop has exited
func (n *Node) Done() <-chan struct{} {
	return n.loop.Done()
}

// GetHealth returns the broker health as seen from the event loop
func (n *Node) GetHealth(ctx context.Context) (brokerpkg.HealthStatus, error) {
	var health brokerpkg.HealthStatus
	if err := n.loop.Call(ctx, func() { health = n.broker.Health() }); err != nil {
		return brokerpkg.HealthStatus{Message: err.Error()}, err
	}
	return health, nil
}

// Transports lists the enabled transports with their listen addresses
func (n *Node) Transports() map[string]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.transportsLocked()
}

func (n *Node) transportsLocked() map[string]string {
	t := make(map[string]string)
	if n.ipcServer != nil {
		t["ipc"] = n.ipcServer.Addr()
	}
	if n.httpServer != nil {
		t["http"] = n.httpServer.Addr()
	}
	if n.rpcServer != nil {
		t["grpc"] = n.rpcServer.GetListeningAddress()
	}
	if n.bridge != nil {
		t["mqtt"] = n.config.MQTT.Broker
	}
	return t
}

// Loop returns the host event loop
func (n *Node) Loop() *eventloop.Loop { return n.loop }

// Core returns the shell model
func (n *Node) Core() *shell.Core { return n.core }

// Broker returns the broker. It must only be used on the event loop.
func (n *Node) Broker() *broker.ShellBroker { return n.broker }

// Repository returns the method repository
func (n *Node) Repository() *ipc.Repository { return n.repo }
