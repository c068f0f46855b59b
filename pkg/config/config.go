// Package config loads the bridge configuration: built-in defaults, then an
// optional config file, then STOREBRIDGE_* environment variables, then
// command line overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-storebridge/pkg/topicpath"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	AppName   = "storebridge"
	EnvPrefix = "STOREBRIDGE"
)

// Transport kinds.
const (
	TransportMQTT   = "mqtt"
	TransportPubSub = "pubsub"
)

// Storage kinds.
const (
	StorageCDMI   = "cdmi"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Session store kinds.
const (
	SessionFile      = "file"
	SessionRedis     = "redis"
	SessionFirestore = "firestore"
	// SessionMemory keeps the session for the process lifetime only.
	SessionMemory = "memory"
)

// Config is the complete bridge configuration.
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Session   SessionConfig   `mapstructure:"session"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

type TransportConfig struct {
	Kind   string       `mapstructure:"kind"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

type MQTTConfig struct {
	Scheme   string `mapstructure:"scheme"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
	// AllowAnonymous permits connecting without a user.
	AllowAnonymous bool   `mapstructure:"allow_anonymous"`
	ClientIDPrefix string `mapstructure:"client_id_prefix"`
}

// BrokerURL renders the Paho broker URL.
func (m MQTTConfig) BrokerURL() string {
	return m.Scheme + "://" + net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

type PubSubConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	SubscriptionID  string `mapstructure:"subscription_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type StorageConfig struct {
	Kind string     `mapstructure:"kind"`
	CDMI CDMIConfig `mapstructure:"cdmi"`
	GCS  GCSConfig  `mapstructure:"gcs"`
}

// CDMIConfig addresses a CDMI server such as Radon.
type CDMIConfig struct {
	Scheme   string        `mapstructure:"scheme"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	APIPath  string        `mapstructure:"api_path"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// BaseURL is the session endpoint for the server.
func (c CDMIConfig) BaseURL() string {
	return c.Scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type GCSConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type SessionConfig struct {
	Kind      string          `mapstructure:"kind"`
	Dir       string          `mapstructure:"dir"`
	Key       string          `mapstructure:"key"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Firestore FirestoreConfig `mapstructure:"firestore"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type FirestoreConfig struct {
	ProjectID  string `mapstructure:"project_id"`
	Collection string `mapstructure:"collection"`
}

type BridgeConfig struct {
	// Topics is the exact-match allow-list.
	Topics          []string      `mapstructure:"topics"`
	MimeType        string        `mapstructure:"mimetype"`
	MaxPayloadBytes int           `mapstructure:"max_payload_bytes"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	// Addr serves /healthz and /metrics. Empty disables the server.
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers every key with its default, which also makes each
// key overridable from the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("transport.kind", TransportMQTT)
	v.SetDefault("transport.mqtt.scheme", "tcp")
	v.SetDefault("transport.mqtt.host", "127.0.0.1")
	v.SetDefault("transport.mqtt.port", 1883)
	v.SetDefault("transport.mqtt.user", "")
	v.SetDefault("transport.mqtt.password", "")
	v.SetDefault("transport.mqtt.topic", "#")
	v.SetDefault("transport.mqtt.allow_anonymous", true)
	v.SetDefault("transport.mqtt.client_id_prefix", AppName+"-")
	v.SetDefault("transport.pubsub.project_id", "")
	v.SetDefault("transport.pubsub.subscription_id", "")
	v.SetDefault("transport.pubsub.credentials_file", "")

	v.SetDefault("storage.kind", StorageCDMI)
	v.SetDefault("storage.cdmi.scheme", "http")
	v.SetDefault("storage.cdmi.host", "127.0.0.1")
	v.SetDefault("storage.cdmi.port", 8000)
	v.SetDefault("storage.cdmi.user", "")
	v.SetDefault("storage.cdmi.password", "")
	v.SetDefault("storage.cdmi.api_path", "/api/cdmi")
	v.SetDefault("storage.cdmi.timeout", 30*time.Second)
	v.SetDefault("storage.gcs.project_id", "")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "")
	v.SetDefault("storage.gcs.credentials_file", "")

	v.SetDefault("session.kind", SessionFile)
	v.SetDefault("session.dir", defaultSessionDir())
	v.SetDefault("session.key", "session.json")
	v.SetDefault("session.redis.addr", "localhost:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.key_prefix", AppName+":")
	v.SetDefault("session.redis.ttl", time.Duration(0))
	v.SetDefault("session.firestore.project_id", "")
	v.SetDefault("session.firestore.collection", "storebridge-sessions")

	v.SetDefault("bridge.topics", topicpath.DefaultTopics)
	v.SetDefault("bridge.mimetype", "text/plain")
	v.SetDefault("bridge.max_payload_bytes", 0)
	v.SetDefault("bridge.timeout", time.Duration(0))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("http.addr", "")
}

func defaultSessionDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, "."+AppName)
}

// FlagKeys maps command line flag names to the config keys they override.
var FlagKeys = map[string]string{
	"log_level":  "log.level",
	"log_format": "log.format",
	"http_addr":  "http.addr",
}

// BindFlags binds the flags of fs named in FlagKeys to v. Flags missing from
// fs are skipped; a bound flag only wins when it was set.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		fl := fs.Lookup(name)
		if fl == nil {
			continue
		}
		if err := v.BindPFlag(key, fl); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the configuration into v and decodes it. A configFile that does
// not exist is an error; without one, storebridge.{yaml,json,toml} is looked
// up in $HOME/.storebridge and the working directory and may be absent.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName(AppName)
		v.AddConfigPath(filepath.Join("$HOME", "."+AppName))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// ApplyOverrides applies the --mqtt_host and --radon_host endpoint strings.
// Empty strings are ignored.
func (c *Config) ApplyOverrides(mqttHost, storageHost string) error {
	if mqttHost != "" {
		ep, err := ParseEndpoint(mqttHost)
		if err != nil {
			return fmt.Errorf("mqtt_host: %w", err)
		}
		m := &c.Transport.MQTT
		ep.apply(&m.Host, &m.Port, &m.User, &m.Password)
	}
	if storageHost != "" {
		ep, err := ParseEndpoint(storageHost)
		if err != nil {
			return fmt.Errorf("radon_host: %w", err)
		}
		s := &c.Storage.CDMI
		ep.apply(&s.Host, &s.Port, &s.User, &s.Password)
	}
	return nil
}

// Validate checks the selected backends have what they need.
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport.Kind {
	case TransportMQTT:
		if c.Transport.MQTT.Host == "" {
			errs = append(errs, errors.New("transport.mqtt.host is required"))
		}
	case TransportPubSub:
		if c.Transport.PubSub.ProjectID == "" || c.Transport.PubSub.SubscriptionID == "" {
			errs = append(errs, errors.New("transport.pubsub.project_id and subscription_id are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport.kind %q", c.Transport.Kind))
	}

	switch c.Storage.Kind {
	case StorageCDMI:
		if c.Storage.CDMI.Host == "" {
			errs = append(errs, errors.New("storage.cdmi.host is required"))
		}
	case StorageGCS:
		if c.Storage.GCS.Bucket == "" {
			errs = append(errs, errors.New("storage.gcs.bucket is required"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.kind %q", c.Storage.Kind))
	}

	switch c.Session.Kind {
	case SessionFile:
		if c.Session.Dir == "" {
			errs = append(errs, errors.New("session.dir is required"))
		}
	case SessionRedis:
		if c.Session.Redis.Addr == "" {
			errs = append(errs, errors.New("session.redis.addr is required"))
		}
	case SessionFirestore:
		if c.Session.Firestore.ProjectID == "" {
			errs = append(errs, errors.New("session.firestore.project_id is required"))
		}
	case SessionMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown session.kind %q", c.Session.Kind))
	}

	if len(c.Bridge.Topics) == 0 {
		errs = append(errs, errors.New("bridge.topics cannot be empty"))
	}
	if c.Bridge.MaxPayloadBytes < 0 {
		errs = append(errs, errors.New("bridge.max_payload_bytes cannot be negative"))
	}
	return errors.Join(errs...)
}
