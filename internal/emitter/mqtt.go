package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt not connected")

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Broker   string // host:port
	ClientID string
	// Topic is the prefix; events go to <Topic>/<language>.
	Topic string
	QoS   byte
}

// MQTTEmitter publishes word events to an MQTT broker.
type MQTTEmitter struct {
	cfg    MQTTConfig
	client mqtt.Client
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTEmitter creates an emitter with a paho client for cfg.Broker.
// Call Connect before publishing.
func NewMQTTEmitter(cfg MQTTConfig, logger *slog.Logger) *MQTTEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	e := &MQTTEmitter{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		logger.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		logger.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	e.client = mqtt.NewClient(opts)
	return e
}

// NewMQTTEmitterWithClient creates an emitter around an existing client.
func NewMQTTEmitterWithClient(cfg MQTTConfig, client mqtt.Client, logger *slog.Logger) *MQTTEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTEmitter{cfg: cfg, client: client, logger: logger, connected: client.IsConnected()}
}

// Connect establishes the broker connection.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	e.logger.Info("connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	if err := waitToken(ctx, token, connectTimeout); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Emit publishes ev as JSON to <topic>/<language>.
func (e *MQTTEmitter) Emit(ctx context.Context, ev Event) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := ev.JSON()
	if err != nil {
		e.countError()
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := e.Topic(ev.Language)
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if err := waitToken(ctx, token, publishTimeout); err != nil {
		e.countError()
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	e.logger.Debug("word published", "topic", topic, "gloss", ev.Gloss, "size", len(payload))
	return nil
}

// Topic returns the topic events for language are published to.
func (e *MQTTEmitter) Topic(language string) string {
	return fmt.Sprintf("%s/%s", e.cfg.Topic, language)
}

// Close disconnects from the broker.
func (e *MQTTEmitter) Close() error {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.logger.Info("mqtt disconnected")
	}
	e.setConnected(false)
	return nil
}

// Stats returns the number of published events and failures.
func (e *MQTTEmitter) Stats() (published, failed uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published, e.errors
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New("timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}
