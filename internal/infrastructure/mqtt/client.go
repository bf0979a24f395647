package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/arutha/lexhost/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	keepAlive      = 60 * time.Second

	// disconnectQuiesce is in milliseconds.
	disconnectQuiesce = 1000

	// willQoS makes sure the broker holds the crash announcement.
	willQoS = 1
)

// Logger receives connection events and command failures.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is the lexhost connection to an MQTT broker.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - After a reconnect the client announces itself again, republishes the
//     last provisioning status and restores the command subscription.
type Client struct {
	client   pahomqtt.Client
	topics   Topics
	qos      byte
	clientID string
	version  string
	logger   Logger

	mu         sync.Mutex
	connected  bool
	lastStatus []byte
	commands   CommandHandler
}

// Connect connects to the broker described by cfg and announces version
// as online. A nil logger discards events.
func Connect(cfg config.MQTTConfig, version string, logger Logger) (*Client, error) {
	c := newClient(cfg, version, logger)

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously.
	c.setConnected(true)
	return c, nil
}

// newClient builds an unconnected client.
func newClient(cfg config.MQTTConfig, version string, logger Logger) *Client {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Client{
		topics:   NewTopics(cfg.TopicPrefix),
		qos:      byte(cfg.QoS), //nolint:gosec // Config validates 0..2
		clientID: cfg.Broker.ClientID,
		version:  version,
		logger:   logger,
	}

	opts := c.clientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.setConnected(false)
		c.logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.logger.Warn("MQTT reconnecting", "broker", cfg.Broker.Host)
	})
	c.client = pahomqtt.NewClient(opts)
	return c
}

// clientOptions maps config to paho options, including the Last Will that
// reports a crash as offline.
func (c *Client) clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetBinaryWill(c.topics.SystemStatus(), c.announcement(statusOffline, reasonCrash), willQoS, true)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// handleConnect runs on the initial connect and on every reconnect.
func (c *Client) handleConnect() {
	c.setConnected(true)

	c.mu.Lock()
	status, commands := c.lastStatus, c.commands
	c.mu.Unlock()

	c.client.Publish(c.topics.SystemStatus(), c.qos, true, c.announcement(statusOnline, ""))
	if status != nil {
		c.client.Publish(c.topics.ProvisioningStatus(), c.qos, true, status)
	}
	if commands != nil {
		c.client.Subscribe(c.topics.ProvisioningCommand(), c.qos, c.dispatch)
	}
	c.logger.Info("MQTT connected", "client_id", c.clientID)
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close stops accepting commands, announces a graceful shutdown and
// disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		if err := c.stopCommands(); err != nil {
			c.logger.Warn("unsubscribing from commands", "error", err)
		}
		token := c.client.Publish(c.topics.SystemStatus(), c.qos, true, c.announcement(statusOffline, reasonShutdown))
		token.WaitTimeout(publishTimeout)
	}

	c.client.Disconnect(disconnectQuiesce)
	c.setConnected(false)
	return nil
}

// wait turns a paho token into an error wrapped with sentinel.
func wait(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
