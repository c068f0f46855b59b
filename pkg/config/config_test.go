package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illmade-knight/go-storebridge/pkg/config"
	"github.com/illmade-knight/go-storebridge/pkg/topicpath"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFromDir(t *testing.T, file string) *config.Config {
	t.Helper()
	// Keep the search path away from a real ~/.storebridge.
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.Load(viper.New(), file)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromDir(t, "")

	assert.Equal(t, config.TransportMQTT, cfg.Transport.Kind)
	assert.Equal(t, "tcp://127.0.0.1:1883", cfg.Transport.MQTT.BrokerURL())
	assert.Equal(t, "#", cfg.Transport.MQTT.Topic)
	assert.Equal(t, config.StorageCDMI, cfg.Storage.Kind)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Storage.CDMI.BaseURL())
	assert.Equal(t, "/api/cdmi", cfg.Storage.CDMI.APIPath)
	assert.Equal(t, 30*time.Second, cfg.Storage.CDMI.Timeout)
	assert.Equal(t, config.SessionFile, cfg.Session.Kind)
	assert.Equal(t, "session.json", cfg.Session.Key)
	assert.Equal(t, topicpath.DefaultTopics, cfg.Bridge.Topics)
	assert.Equal(t, "text/plain", cfg.Bridge.MimeType)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.HTTP.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	yaml := `
storage:
  kind: memory
  cdmi:
    host: radon.local
bridge:
  topics: ["/a", "/b"]
  max_payload_bytes: 4096
session:
  kind: redis
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("STOREBRIDGE_LOG_LEVEL", "warn")
	t.Setenv("STOREBRIDGE_SESSION_REDIS_ADDR", "redis:6380")

	cfg := loadFromDir(t, path)

	assert.Equal(t, config.StorageMemory, cfg.Storage.Kind)
	assert.Equal(t, "radon.local", cfg.Storage.CDMI.Host)
	assert.Equal(t, 8000, cfg.Storage.CDMI.Port, "unset keys keep defaults")
	assert.Equal(t, []string{"/a", "/b"}, cfg.Bridge.Topics)
	assert.Equal(t, 4096, cfg.Bridge.MaxPayloadBytes)
	assert.Equal(t, "warn", cfg.Log.Level, "environment wins over the file")
	assert.Equal(t, "redis:6380", cfg.Session.Redis.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	cfg := loadFromDir(t, "")
	cfg.Transport.MQTT.User = "configured"

	require.NoError(t, cfg.ApplyOverrides("broker:1884", "alice:secret@radon"))

	assert.Equal(t, "broker", cfg.Transport.MQTT.Host)
	assert.Equal(t, 1884, cfg.Transport.MQTT.Port)
	assert.Equal(t, "configured", cfg.Transport.MQTT.User, "absent parts keep the configured value")
	assert.Equal(t, "radon", cfg.Storage.CDMI.Host)
	assert.Equal(t, 8000, cfg.Storage.CDMI.Port)
	assert.Equal(t, "alice", cfg.Storage.CDMI.User)
	assert.Equal(t, "secret", cfg.Storage.CDMI.Password)

	assert.Error(t, cfg.ApplyOverrides("broker:x", ""))
	assert.Error(t, cfg.ApplyOverrides("", "radon:x"))
}

func TestValidate(t *testing.T) {
	base := loadFromDir(t, "")

	testCases := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"Unknown transport", func(c *config.Config) { c.Transport.Kind = "amqp" }},
		{"Pubsub without subscription", func(c *config.Config) { c.Transport.Kind = config.TransportPubSub }},
		{"GCS without bucket", func(c *config.Config) { c.Storage.Kind = config.StorageGCS }},
		{"Unknown storage", func(c *config.Config) { c.Storage.Kind = "s3" }},
		{"Firestore without project", func(c *config.Config) { c.Session.Kind = config.SessionFirestore }},
		{"Empty topics", func(c *config.Config) { c.Bridge.Topics = nil }},
		{"Negative payload limit", func(c *config.Config) { c.Bridge.MaxPayloadBytes = -1 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *base
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBindFlags(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STOREBRIDGE_HTTP_ADDR", ":9000")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log_level", "", "")
	fs.String("http_addr", "", "")
	require.NoError(t, fs.Parse([]string{"--log_level=debug"}))

	v := viper.New()
	require.NoError(t, config.BindFlags(v, fs))
	cfg, err := config.Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level, "a set flag wins")
	assert.Equal(t, ":9000", cfg.HTTP.Addr, "an unset flag leaves the environment value")
	assert.Equal(t, "console", cfg.Log.Format, "log_format is not defined on this flag set")
}
