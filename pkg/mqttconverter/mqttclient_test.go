package mqttconverter_test

import (
	"testing"
	"time"

	"github.com/illmade-knight/go-storebridge/pkg/mqttconverter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMQTTClientConfigFromEnv(t *testing.T) {
	t.Run("Defaults subscribe to everything at QoS 1", func(t *testing.T) {
		cfg := mqttconverter.LoadMQTTClientConfigFromEnv()
		require.NotNil(t, cfg)
		assert.Equal(t, mqttconverter.DefaultTopic, cfg.Topic)
		assert.Equal(t, byte(1), cfg.QoS)
		assert.Equal(t, 60*time.Second, cfg.KeepAlive)
		assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
		assert.Equal(t, 120*time.Second, cfg.ReconnectWaitMax)
		assert.Equal(t, "storebridge-", cfg.ClientIDPrefix)
		assert.False(t, cfg.InsecureSkipVerify)
		assert.Empty(t, cfg.CACertFile)
	})

	t.Run("Environment overrides", func(t *testing.T) {
		t.Setenv(mqttconverter.MqttKeepAliveSeconds, "30")
		t.Setenv(mqttconverter.MqttConnectTimeoutSeconds, "5")
		t.Setenv(mqttconverter.MqttReconnectWaitMaxSeconds, "15")
		t.Setenv(mqttconverter.MqttSkipVerify, "true")
		t.Setenv(mqttconverter.MqttQoS, "0")
		t.Setenv(mqttconverter.MqttCACertFile, "/etc/ssl/broker-ca.pem")

		cfg := mqttconverter.LoadMQTTClientConfigFromEnv()
		assert.Equal(t, 30*time.Second, cfg.KeepAlive)
		assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
		assert.Equal(t, 15*time.Second, cfg.ReconnectWaitMax)
		assert.True(t, cfg.InsecureSkipVerify)
		assert.Equal(t, byte(0), cfg.QoS)
		assert.Equal(t, "/etc/ssl/broker-ca.pem", cfg.CACertFile)
	})

	t.Run("Invalid values fall back to defaults", func(t *testing.T) {
		t.Setenv(mqttconverter.MqttKeepAliveSeconds, "not-a-number")
		t.Setenv(mqttconverter.MqttConnectTimeoutSeconds, "-3")
		t.Setenv(mqttconverter.MqttQoS, "3")

		cfg := mqttconverter.LoadMQTTClientConfigFromEnv()
		assert.Equal(t, 60*time.Second, cfg.KeepAlive)
		assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
		assert.Equal(t, byte(1), cfg.QoS)
	})
}

func TestMQTTClientConfig_Validate(t *testing.T) {
	valid := func() *mqttconverter.MQTTClientConfig {
		cfg := mqttconverter.LoadMQTTClientConfigFromEnv()
		cfg.BrokerURL = "tcp://127.0.0.1:1883"
		cfg.Username = "bridge"
		return cfg
	}
	require.NoError(t, valid().Validate())

	testCases := []struct {
		name   string
		mutate func(c *mqttconverter.MQTTClientConfig)
	}{
		{"Missing broker", func(c *mqttconverter.MQTTClientConfig) { c.BrokerURL = "" }},
		{"Bare host", func(c *mqttconverter.MQTTClientConfig) { c.BrokerURL = "127.0.0.1:1883" }},
		{"Unknown scheme", func(c *mqttconverter.MQTTClientConfig) { c.BrokerURL = "http://broker:1883" }},
		{"QoS out of range", func(c *mqttconverter.MQTTClientConfig) { c.QoS = 3 }},
		{"Anonymous not allowed", func(c *mqttconverter.MQTTClientConfig) { c.Username = "" }},
		{"Cert without key", func(c *mqttconverter.MQTTClientConfig) { c.ClientCertFile = "client.pem" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("Anonymous allowed explicitly", func(t *testing.T) {
		cfg := valid()
		cfg.Username = ""
		cfg.AllowPublicBroker = true
		assert.NoError(t, cfg.Validate())
	})
}
