package mqttconverter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-storebridge/pkg/messagepipeline"
	"github.com/rs/zerolog"
)

// MqttConsumer implements the messagepipeline.MessageConsumer interface for an MQTT source.
// Paho delivers messages one at a time in arrival order; the consumer keeps
// that order on its output channel.
type MqttConsumer struct {
	pahoClient mqtt.Client
	logger     zerolog.Logger
	mqttCfg    *MQTTClientConfig

	outputChan chan messagepipeline.Message
	doneChan   chan struct{}
	stopping   chan struct{}
	sendMu     sync.RWMutex
	stopOnce   sync.Once
}

// NewMqttConsumer creates a new MqttConsumer. When client is nil a Paho
// client is built from cfg. It does not connect until Start is called.
func NewMqttConsumer(client mqtt.Client, cfg *MQTTClientConfig, logger zerolog.Logger) (*MqttConsumer, error) {
	if cfg == nil {
		return nil, errors.New("MQTT config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	c := &MqttConsumer{
		logger:     logger.With().Str("component", "MqttConsumer").Str("broker", cfg.BrokerURL).Logger(),
		mqttCfg:    cfg,
		outputChan: make(chan messagepipeline.Message, 1000),
		doneChan:   make(chan struct{}),
		stopping:   make(chan struct{}),
	}
	if client == nil {
		opts, err := c.createMqttOptions()
		if err != nil {
			return nil, err
		}
		client = mqtt.NewClient(opts)
	}
	c.pahoClient = client
	return c, nil
}

// Messages returns the read-only channel from which raw messages can be consumed.
func (c *MqttConsumer) Messages() <-chan messagepipeline.Message {
	return c.outputChan
}

// Start connects and subscribes. A broker that cannot be reached or refuses
// the subscription within ConnectTimeout is an error.
func (c *MqttConsumer) Start(ctx context.Context) error {
	timeout := c.mqttCfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c.logger.Info().Msg("Attempting to connect to MQTT broker...")
	if err := waitToken(c.pahoClient.Connect(), timeout); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", c.mqttCfg.BrokerURL, err)
	}
	c.logger.Info().Msg("Connected to MQTT broker.")

	if err := waitToken(c.pahoClient.Subscribe(c.mqttCfg.Topic, c.mqttCfg.QoS, c.handleIncomingMessage), timeout); err != nil {
		c.pahoClient.Disconnect(250)
		return fmt.Errorf("failed to subscribe to MQTT topic %q: %w", c.mqttCfg.Topic, err)
	}
	c.logger.Info().Str("topic", c.mqttCfg.Topic).Uint8("qos", c.mqttCfg.QoS).Msg("Subscribed to MQTT topic.")

	go func() {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Shutdown signal received, ensuring consumer is stopped.")
			_ = c.Stop(context.Background())
		case <-c.doneChan:
		}
	}()
	return nil
}

// Stop unsubscribes, disconnects and closes the output channel. Messages
// arriving during shutdown are dropped.
func (c *MqttConsumer) Stop(_ context.Context) error {
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping MqttConsumer...")
		close(c.stopping)
		if c.pahoClient.IsConnected() {
			if err := waitToken(c.pahoClient.Unsubscribe(c.mqttCfg.Topic), 2*time.Second); err != nil {
				c.logger.Warn().Err(err).Str("topic", c.mqttCfg.Topic).Msg("Failed to unsubscribe from MQTT topic.")
			}
			c.pahoClient.Disconnect(500)
			c.logger.Info().Msg("Paho MQTT client disconnected.")
		}
		c.sendMu.Lock()
		close(c.outputChan)
		c.sendMu.Unlock()
		close(c.doneChan)
		c.logger.Info().Msg("MqttConsumer stopped.")
	})
	return nil
}

// Done returns a channel that is closed when the consumer has fully stopped.
func (c *MqttConsumer) Done() <-chan struct{} {
	return c.doneChan
}

// IsConnected returns the connection status of the underlying Paho client.
func (c *MqttConsumer) IsConnected() bool {
	return c.pahoClient.IsConnected()
}

// handleIncomingMessage converts an MQTT message to a pipeline Message.
func (c *MqttConsumer) handleIncomingMessage(_ mqtt.Client, msg mqtt.Message) {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	select {
	case <-c.stopping:
		c.logger.Warn().Str("topic", msg.Topic()).Msg("Consumer is shutting down, dropping MQTT message.")
		return
	default:
	}

	payloadCopy := make([]byte, len(msg.Payload()))
	copy(payloadCopy, msg.Payload())

	id := uuid.NewString()
	if msg.MessageID() != 0 {
		id = strconv.Itoa(int(msg.MessageID()))
	}
	consumed := messagepipeline.Message{
		MessageData: messagepipeline.MessageData{
			ID:          id,
			Payload:     payloadCopy,
			PublishTime: time.Now().UTC(),
		},
		Attributes: map[string]string{messagepipeline.TopicAttribute: msg.Topic()},
		// Paho acknowledges QoS 1 deliveries at the protocol level.
		Ack:  func() {},
		Nack: func() {},
	}
	c.logger.Debug().Str("topic", msg.Topic()).Str("msg_id", id).Msg("Received MQTT message")

	select {
	case c.outputChan <- consumed:
	case <-c.stopping:
		c.logger.Warn().Str("topic", msg.Topic()).Msg("Consumer is shutting down, dropping MQTT message.")
	}
}

// createMqttOptions assembles the Paho client options from the config.
func (c *MqttConsumer) createMqttOptions() (*mqtt.ClientOptions, error) {
	cfg := c.mqttCfg
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientIDPrefix + uuid.NewString()[:8])
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	if cfg.ReconnectWaitMax > 0 {
		opts.SetMaxReconnectInterval(cfg.ReconnectWaitMax)
	}
	// The broker keeps the subscription across automatic reconnects.
	opts.SetCleanSession(false)
	opts.SetResumeSubs(true)
	opts.SetOrderMatters(true)
	opts.SetDefaultPublishHandler(c.handleIncomingMessage)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.logger.Info().Msg("Paho client connected to MQTT broker.")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Error().Err(err).Msg("Paho client lost MQTT connection.")
	})

	if strings.HasPrefix(strings.ToLower(cfg.BrokerURL), "tls://") || strings.HasPrefix(strings.ToLower(cfg.BrokerURL), "ssl://") {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create MQTT TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
		c.logger.Info().Msg("TLS configured for MQTT client.")
	}
	return opts, nil
}

func waitToken(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out after %s", timeout)
	}
	return token.Error()
}

// newTLSConfig is a helper to create a tls.Config.
func newTLSConfig(cfg *MQTTClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert file %s: %w", cfg.CACertFile, err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA cert from %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = caCertPool
	}
	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
