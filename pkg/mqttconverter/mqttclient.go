package mqttconverter

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTopic subscribes to every topic on the broker.
const DefaultTopic = "#"

// MQTTClientConfig holds all necessary configuration for the Paho MQTT client.
type MQTTClientConfig struct {
	// BrokerURL is the full URL of the MQTT broker to connect to.
	// Example: "tcp://127.0.0.1:1883" or "tls://mqtt.example.com:8883"
	BrokerURL string
	// Topic is the subscription filter. Defaults to DefaultTopic.
	Topic string
	// QoS of the subscription. Defaults to 1.
	QoS byte
	// ClientIDPrefix is a prefix for the MQTT client ID. A unique suffix is
	// added, since brokers drop an older connection that reuses an ID.
	ClientIDPrefix string
	// AllowPublicBroker permits connecting without a username.
	AllowPublicBroker bool
	Username          string
	Password          string
	// KeepAlive is the interval at which the client sends keep-alive pings to the broker.
	KeepAlive time.Duration
	// ConnectTimeout bounds the initial connection and subscription.
	ConnectTimeout time.Duration
	// ReconnectWaitMax caps the back-off between automatic reconnects.
	ReconnectWaitMax time.Duration
	// CACertFile is an optional path to a CA certificate file for verifying the broker's certificate.
	CACertFile string
	// ClientCertFile and ClientKeyFile enable mTLS when both are set.
	ClientCertFile string
	ClientKeyFile  string
	// InsecureSkipVerify skips TLS certificate verification.
	InsecureSkipVerify bool
}

// Env constants for setting Mqtt settings
const (
	MqttSkipVerify              = "MQTT_INSECURE_SKIP_VERIFY"
	MqttKeepAliveSeconds        = "MQTT_KEEP_ALIVE_SECONDS"
	MqttConnectTimeoutSeconds   = "MQTT_CONNECT_TIMEOUT_SECONDS"
	MqttReconnectWaitMaxSeconds = "MQTT_RECONNECT_WAIT_MAX_SECONDS"
	MqttQoS                     = "MQTT_QOS"
	MqttCACertFile              = "MQTT_CA_CERT_FILE"
	MqttClientCertFile          = "MQTT_CLIENT_CERT_FILE"
	MqttClientKeyFile           = "MQTT_CLIENT_KEY_FILE"
)

var brokerSchemes = map[string]bool{"tcp": true, "mqtt": true, "ssl": true, "tls": true, "ws": true, "wss": true}

// LoadMQTTClientConfigFromEnv returns a config with the operational defaults,
// overridden by the MQTT_* environment variables. Broker, topic and
// credentials are left for the caller.
func LoadMQTTClientConfigFromEnv() *MQTTClientConfig {
	cfg := &MQTTClientConfig{
		Topic:            DefaultTopic,
		QoS:              1,
		KeepAlive:        60 * time.Second,
		ConnectTimeout:   10 * time.Second,
		ReconnectWaitMax: 120 * time.Second,
		ClientIDPrefix:   "storebridge-",
		CACertFile:       os.Getenv(MqttCACertFile),
		ClientCertFile:   os.Getenv(MqttClientCertFile),
		ClientKeyFile:    os.Getenv(MqttClientKeyFile),
	}
	if skipVerify, err := strconv.ParseBool(os.Getenv(MqttSkipVerify)); err == nil {
		cfg.InsecureSkipVerify = skipVerify
	}
	if d, ok := secondsFromEnv(MqttKeepAliveSeconds); ok {
		cfg.KeepAlive = d
	}
	if d, ok := secondsFromEnv(MqttConnectTimeoutSeconds); ok {
		cfg.ConnectTimeout = d
	}
	if d, ok := secondsFromEnv(MqttReconnectWaitMaxSeconds); ok {
		cfg.ReconnectWaitMax = d
	}
	if v := os.Getenv(MqttQoS); v != "" {
		if qos, err := strconv.ParseUint(v, 10, 8); err == nil && qos <= 2 {
			cfg.QoS = byte(qos)
		} else {
			log.Warn().Str("env", MqttQoS).Str("value", v).Msg("mqttconverter: invalid QoS, using default")
		}
	}
	return cfg
}

// Validate reports every problem with the config at once.
func (c *MQTTClientConfig) Validate() error {
	var errs []error
	if c.BrokerURL == "" {
		errs = append(errs, errors.New("MQTT broker URL is required"))
	} else if u, err := url.Parse(c.BrokerURL); err != nil || !brokerSchemes[strings.ToLower(u.Scheme)] || u.Host == "" {
		errs = append(errs, fmt.Errorf("MQTT broker URL %q must be scheme://host:port with scheme tcp, mqtt, ssl, tls, ws or wss", c.BrokerURL))
	}
	if c.QoS > 2 {
		errs = append(errs, fmt.Errorf("MQTT QoS %d is out of range", c.QoS))
	}
	if c.Username == "" && !c.AllowPublicBroker {
		errs = append(errs, errors.New("MQTT username is required unless public brokers are allowed"))
	}
	if (c.ClientCertFile == "") != (c.ClientKeyFile == "") {
		errs = append(errs, errors.New("MQTT client certificate and key must be set together"))
	}
	return errors.Join(errs...)
}

func secondsFromEnv(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn().Str("env", key).Str("value", v).Msg("mqttconverter: invalid seconds value, using default")
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
