package mqtt_client

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/okieraised/greenhouse-agent/internal/cerrors"
	"github.com/okieraised/greenhouse-agent/internal/config"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/utilities"
	"github.com/pkg/errors"
)

// MessageHandler receives every message of the subscribed topics.
type MessageHandler func(topic string, payload []byte)

// DisconnectHandler is called once per lost connection.
type DisconnectHandler func(err error)

func isSecureScheme(u string) bool {
	s := strings.ToLower(u)
	return strings.HasPrefix(s, "mqtts://") || strings.HasPrefix(s, "ssl://") ||
		strings.HasPrefix(s, "tls://") || strings.HasPrefix(s, "wss://")
}

type Options struct {
	Username          string
	Password          string
	QoS               byte
	CleanSession      *bool
	TLSInsecureSkip   *bool
	WriteTimeout      *time.Duration
	KeepAlive         *time.Duration
	PingTimeout       *time.Duration
	ConnectTimeout    *time.Duration
	ConnectAttempts   int
	ConnectRetryDelay *time.Duration
	Logger            *log.Logger

	TLSConfig *tls.Config
}

type Option func(*Options)

func WithCredentials(username, password string) Option {
	return func(o *Options) {
		o.Username = username
		o.Password = password
	}
}

func WithQoS(qos byte) Option {
	return func(o *Options) {
		o.QoS = qos
	}
}

func WithCleanSession(v bool) Option {
	return func(o *Options) {
		o.CleanSession = &v
	}
}

func WithTLSInsecureSkipVerify(v bool) Option {
	return func(o *Options) {
		o.TLSInsecureSkip = &v
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.WriteTimeout = &d
	}
}

func WithKeepAlive(d time.Duration) Option {
	return func(o *Options) {
		o.KeepAlive = &d
	}
}

func WithPingTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.PingTimeout = &d
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ConnectTimeout = &d
	}
}

// WithConnectAttempts bounds Connect to n attempts separated by delay.
func WithConnectAttempts(n int, delay time.Duration) Option {
	return func(o *Options) {
		o.ConnectAttempts = n
		o.ConnectRetryDelay = &delay
	}
}

func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *Options) {
		o.TLSConfig = cfg
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func defaultOptionsFromViper() Options {
	return Options{
		Username:          config.GetString(config.MqttUsername, ""),
		Password:          config.GetString(config.MqttPassword, ""),
		QoS:               byte(config.GetInt(config.MqttQoS, constants.MqttDefaultQoS)),
		CleanSession:      utilities.Ptr(config.GetBool(config.MqttCleanSession, true)),
		TLSInsecureSkip:   utilities.Ptr(config.GetBool(config.MqttTLSInsecureSkipVerify, false)),
		WriteTimeout:      utilities.Ptr(config.GetDuration(config.MqttWriteTimeout, constants.MqttDefaultWriteTimeout)),
		KeepAlive:         utilities.Ptr(config.GetDuration(config.MqttKeepAliveDuration, constants.MqttDefaultKeepAlive)),
		PingTimeout:       utilities.Ptr(config.GetDuration(config.MqttPingTimeout, constants.MqttDefaultPingTimeout)),
		ConnectTimeout:    utilities.Ptr(config.GetDuration(config.MqttConnectTimeout, constants.MqttDefaultConnectTimeout)),
		ConnectAttempts:   config.GetInt(config.MqttConnectAttempts, constants.MqttDefaultConnectAttempts),
		ConnectRetryDelay: utilities.Ptr(config.GetDuration(config.MqttConnectRetryDelay, constants.MqttDefaultConnectRetryDelay)),
		Logger:            log.Default(),
	}
}

// Client is a paho client that leaves reconnection to its owner: automatic
// reconnect and resumed subscriptions are disabled.
type Client struct {
	conf     Options
	endpoint string
	client   mqtt.Client

	mu             sync.RWMutex
	onMessage      MessageHandler
	onDisconnected DisconnectHandler
}

// NewClient creates an unconnected mqtt client.
func NewClient(endpoint, clientID string, optFns ...Option) *Client {
	conf := defaultOptionsFromViper()
	for _, fn := range optFns {
		if fn != nil {
			fn(&conf)
		}
	}
	if conf.ConnectAttempts <= 0 {
		conf.ConnectAttempts = 1
	}

	c := &Client{conf: conf, endpoint: endpoint}

	opts := mqtt.NewClientOptions().
		AddBroker(endpoint).
		SetClientID(clientID).
		SetUsername(conf.Username).
		SetPassword(conf.Password).
		SetDefaultPublishHandler(c.dispatch).
		SetConnectionLostHandler(c.connectionLost).
		SetCleanSession(*conf.CleanSession).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetResumeSubs(false).
		SetWriteTimeout(*conf.WriteTimeout).
		SetKeepAlive(*conf.KeepAlive).
		SetPingTimeout(*conf.PingTimeout).
		SetConnectTimeout(*conf.ConnectTimeout)
	if conf.TLSConfig != nil {
		opts.SetTLSConfig(conf.TLSConfig)
	} else if isSecureScheme(endpoint) {
		if conf.TLSInsecureSkip != nil && *conf.TLSInsecureSkip {
			opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true}) // #nosec G402
		} else {
			opts.SetTLSConfig(&tls.Config{})
		}
	}
	c.client = mqtt.NewClient(opts)
	return c
}

func (c *Client) OnMessage(h MessageHandler) {
	c.mu.Lock()
	c.onMessage = h
	c.mu.Unlock()
}

func (c *Client) OnDisconnected(h DisconnectHandler) {
	c.mu.Lock()
	c.onDisconnected = h
	c.mu.Unlock()
}

func (c *Client) dispatch(_ mqtt.Client, msg mqtt.Message) {
	c.mu.RLock()
	h := c.onMessage
	c.mu.RUnlock()
	if h != nil {
		h(msg.Topic(), msg.Payload())
	}
}

func (c *Client) connectionLost(_ mqtt.Client, err error) {
	c.conf.Logger.Warn(fmt.Sprintf("mqtt connection to %s lost: %v", c.endpoint, err))
	c.mu.RLock()
	h := c.onDisconnected
	c.mu.RUnlock()
	if h != nil {
		h(err)
	}
}

// Connect tries ConnectAttempts times with a fixed delay in between.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.conf.ConnectAttempts; attempt++ {
		err := c.wait(ctx, c.client.Connect(), *c.conf.ConnectTimeout)
		if err == nil {
			c.conf.Logger.Info(fmt.Sprintf("connected to mqtt broker %s", c.endpoint))
			return nil
		}
		lastErr = err
		c.conf.Logger.Warn(fmt.Sprintf("mqtt connect attempt %d/%d to %s failed: %v", attempt, c.conf.ConnectAttempts, c.endpoint, err))
		if attempt == c.conf.ConnectAttempts {
			break
		}
		if sErr := utilities.Sleep(ctx, *c.conf.ConnectRetryDelay); sErr != nil {
			return sErr
		}
	}
	return cerrors.Transient(errors.Wrapf(lastErr, "mqtt connect to %s failed after %d attempts", c.endpoint, c.conf.ConnectAttempts))
}

func (c *Client) Subscribe(ctx context.Context, topic string) error {
	if err := c.wait(ctx, c.client.Subscribe(topic, c.conf.QoS, c.dispatch), *c.conf.WriteTimeout); err != nil {
		return errors.Wrapf(err, "subscribe %s", topic)
	}
	return nil
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := c.wait(ctx, c.client.Publish(topic, c.conf.QoS, false, payload), *c.conf.WriteTimeout); err != nil {
		return errors.Wrapf(err, "publish %s", topic)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *Client) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func (c *Client) wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return cerrors.Transient(err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return cerrors.Transient(errors.Errorf("mqtt operation timed out after %s", timeout))
	}
}
