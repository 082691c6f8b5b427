// Package mqtt publishes retained messages to an MQTT broker.
package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"info-collecte/internal/logger"
)

// ErrTransportUnavailable means the broker connection could not be made.
var ErrTransportUnavailable = errors.New("mqtt broker unavailable")

const (
	defaultQoS            = 1
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesceMS   = 250
)

// Config describes the broker connection.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string
	// KeepAlive is sent to the broker; zero uses 60s.
	KeepAlive time.Duration
}

// Client is a thin publisher around a Paho client.
type Client struct {
	cfg       Config
	client    paho.Client
	newClient func(*paho.ClientOptions) paho.Client
	log       *zap.SugaredLogger
}

// New creates an unconnected client.
func New(cfg Config, log *zap.SugaredLogger) *Client {
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("info-collecte-%d", time.Now().UnixNano())
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	return &Client{cfg: cfg, newClient: paho.NewClient, log: logger.OrNop(log)}
}

// Broker returns the tcp URL of the broker.
func (c *Client) Broker() string {
	return fmt.Sprintf("tcp://%s:%d", c.cfg.Host, c.cfg.Port)
}

// Connect opens the broker connection. Failures wrap ErrTransportUnavailable.
func (c *Client) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(c.Broker()).
		SetClientID(c.cfg.ClientID).
		SetKeepAlive(c.cfg.KeepAlive).
		SetConnectTimeout(defaultConnectTimeout).
		SetAutoReconnect(false).
		SetCleanSession(true)
	if c.cfg.User != "" {
		opts.SetUsername(c.cfg.User)
		opts.SetPassword(c.cfg.Password)
	}

	client := c.newClient(opts)
	token := client.Connect()
	if err := wait(ctx, token, defaultConnectTimeout); err != nil {
		// Stops the connect attempt still running after a timeout or cancel.
		client.Disconnect(0)
		return errors.Mark(errors.Wrapf(err, "connecting to %s", c.Broker()), ErrTransportUnavailable)
	}

	c.client = client
	c.log.Debugw("connected to broker", logger.FieldURL, c.Broker())
	return nil
}

// Publish sends payload to topic at QoS 1 and waits for the broker ack.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	if c.client == nil {
		return errors.Wrap(ErrTransportUnavailable, "publish before connect")
	}
	token := c.client.Publish(topic, defaultQoS, retain, payload)
	if err := wait(ctx, token, defaultPublishTimeout); err != nil {
		return errors.Wrapf(err, "publishing to %s", topic)
	}
	return nil
}

// Close disconnects from the broker. It is safe to call when not connected.
func (c *Client) Close() {
	if c.client == nil {
		return
	}
	c.client.Disconnect(disconnectQuiesceMS)
	c.client = nil
	c.log.Debugw("disconnected from broker", logger.FieldURL, c.Broker())
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return errors.Newf("no broker response after %s", timeout)
	}
}
