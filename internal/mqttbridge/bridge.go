// Package mqttbridge forwards broker records to an MQTT broker. The bridge
// is an ordinary subscriber: it watches through the method repository like
// any socket client and publishes each delivered record to
// <prefix>/<event>.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rmacdonaldsmith/shellwatch/internal/broker"
	"github.com/rmacdonaldsmith/shellwatch/internal/ipc"
	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

const (
	// DefaultTopicPrefix is prepended to every event name
	DefaultTopicPrefix = "shellwatch"
	// DefaultClientID identifies the bridge to the MQTT broker
	DefaultClientID = "shellwatch-bridge"
	// DefaultTimeout bounds connecting and publishing
	DefaultTimeout = 10 * time.Second
)

var (
	// ErrNotConnected is returned when the MQTT client could not connect in time
	ErrNotConnected = errors.New("timeout connecting to mqtt broker")
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("bridge already started")
)

// Config holds configuration for the MQTT bridge
type Config struct {
	// Broker is the MQTT broker URL, e.g. tcp://localhost:1883
	Broker   string
	ClientID string
	Username string
	Password string

	// TopicPrefix is prepended to the event name of each record
	TopicPrefix string

	// Events is the watched topic list; nil watches every known topic
	Events []string

	QoS    byte
	Retain bool

	ClientBuffer int
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt broker cannot be empty")
	}
	if c.QoS > 2 {
		return fmt.Errorf("invalid qos %d", c.QoS)
	}
	if strings.ContainsAny(c.TopicPrefix, "+#") {
		return fmt.Errorf("topic prefix %q contains wildcards", c.TopicPrefix)
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.ClientBuffer <= 0 {
		c.ClientBuffer = broker.DefaultClientBuffer
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// NewClient builds a paho client from config
func NewClient(config *Config) mqtt.Client {
	logger := config.Logger
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectTimeout(config.Timeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected to MQTT broker", "broker", config.Broker, "client_id", config.ClientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if err != nil {
			logger.Warn("mqtt connection lost", "error", err)
		}
	})
	return mqtt.NewClient(opts)
}

// Bridge publishes records delivered to its connection over MQTT
type Bridge struct {
	config *Config
	repo   *ipc.Repository
	client mqtt.Client
	conn   *broker.Connection
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

// New creates a bridge. A nil client is built from config with NewClient.
func New(config *Config, repo *ipc.Repository, client mqtt.Client) (*Bridge, error) {
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
	if client == nil {
		client = NewClient(&configCopy)
	}

	return &Bridge{
		config: &configCopy,
		repo:   repo,
		client: client,
		conn:   broker.NewConnectionWithID("mqtt-"+configCopy.ClientID, configCopy.ClientBuffer),
		logger: configCopy.Logger.With("component", "mqttbridge"),
		done:   make(chan struct{}),
	}, nil
}

// ID returns the subscriber ID of the bridge
func (b *Bridge) ID() string {
	return b.conn.ID()
}

// Start connects to the MQTT broker, subscribes and begins forwarding
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.mu.Unlock()

	if err := b.subscribe(ctx); err != nil {
		// ctx may be done already; the release must still reach the loop
		if relErr := b.repo.Disconnect(context.WithoutCancel(ctx), b.conn); relErr != nil {
			b.logger.Warn("failed to release bridge subscription", "error", relErr)
		}
		b.conn.Close()
		close(b.done)
		return err
	}

	go b.forward()
	b.logger.Info("mqtt bridge started", "broker", b.config.Broker, "prefix", b.config.TopicPrefix)
	return nil
}

func (b *Bridge) subscribe(ctx context.Context) error {
	if !b.client.IsConnected() {
		token := b.client.Connect()
		if !token.WaitTimeout(b.config.Timeout) {
			return ErrNotConnected
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect mqtt broker: %w", err)
		}
	}

	body := map[string]any{}
	if b.config.Events != nil {
		body[brokerpkg.EventsField] = b.config.Events
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode watch request: %w", err)
	}
	resp := b.repo.Call(ctx, b.conn, ipc.MethodWatch, data)
	if !resp.IsOK() {
		b.client.Disconnect(250)
		return fmt.Errorf("failed to subscribe bridge: %s", resp.Message())
	}
	return nil
}

// forward drains the connection until it is closed
func (b *Bridge) forward() {
	defer close(b.done)
	for rec := range b.conn.Records() {
		if err := b.publish(rec); err != nil {
			b.logger.Warn("failed to publish record", "event", rec.Event(), "error", err)
		}
	}
}

func (b *Bridge) publish(rec *record.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	token := b.client.Publish(b.Topic(rec.Event()), b.config.QoS, b.config.Retain, payload)
	if !token.WaitTimeout(b.config.Timeout) {
		return errors.New("timeout publishing to mqtt broker")
	}
	return token.Error()
}

// Topic returns the MQTT topic records of event are published to
func (b *Bridge) Topic(event string) string {
	return b.config.TopicPrefix + "/" + topicReplacer.Replace(event)
}

var topicReplacer = strings.NewReplacer("+", "_", "#", "_")

// Stop releases the subscription and disconnects from the MQTT broker once
// pending records are published. Stop is idempotent.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped || !b.started {
		b.stopped = true
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	err := b.repo.Disconnect(ctx, b.conn)
	b.conn.Close()

	select {
	case <-b.done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	b.client.Disconnect(250)
	b.logger.Info("mqtt bridge stopped")
	return err
}
