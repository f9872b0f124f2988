package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/umqtt"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		path := writeConfig(t, `
broker:
  uri: "ssl://broker.example.com:8883"
  client_id: "sensor-7"
  username: "user"
  password: "secret"
keepalive:
  interval: 10
  max_missed: 3
will:
  topic: "devices/sensor-7/status"
  payload: "offline"
  qos: 1
  retain: true
logging:
  level: debug
  format: text
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "ssl://broker.example.com:8883", cfg.Broker.URI)
		assert.Equal(t, "sensor-7", cfg.Broker.ClientID)
		assert.Equal(t, 10, cfg.KeepAlive.Interval)
		assert.Equal(t, 3, cfg.KeepAlive.MaxMissed)
		assert.Equal(t, "devices/sensor-7/status", cfg.Will.Topic)
		assert.Equal(t, "text", cfg.Logging.Format)

		// untouched sections keep their defaults
		assert.Equal(t, umqtt.DefaultReconnectMax, cfg.Reconnect.MaxAttempts)
		assert.True(t, cfg.Broker.CleanSession)
	})

	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/path/config.yaml")
		require.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "broker: [unclosed")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing config file")
	})

	t.Run("validation errors are joined", func(t *testing.T) {
		path := writeConfig(t, `
broker:
  uri: "http://broker:1883"
  password: "secret"
logging:
  format: xml
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, umqtt.ErrUnsupportedScheme)
		assert.Contains(t, err.Error(), "broker.password requires broker.username")
		assert.Contains(t, err.Error(), "logging.format")
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UMQTT_BROKER_URI", "ws://localhost:8080/mqtt")
	t.Setenv("UMQTT_CLIENT_ID", "from-env")
	t.Setenv("UMQTT_KEEPALIVE_INTERVAL", "7")
	t.Setenv("UMQTT_METRICS_ADDR", ":9100")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/mqtt", cfg.Broker.URI)
	assert.Equal(t, "from-env", cfg.Broker.ClientID)
	assert.Equal(t, 7, cfg.KeepAlive.Interval)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "defaults",
			modify: func(*Config) {},
		},
		{
			name:   "missing port",
			modify: func(c *Config) { c.Broker.URI = "tcp://localhost" },
			errMsg: "broker.uri",
		},
		{
			name:   "client id required without clean session",
			modify: func(c *Config) { c.Broker.ClientID = ""; c.Broker.CleanSession = false },
			errMsg: "client_id",
		},
		{
			name:   "cert without key",
			modify: func(c *Config) { c.TLS.CertFile = "client.pem" },
			errMsg: "tls.cert_file",
		},
		{
			name:   "will with wildcard",
			modify: func(c *Config) { c.Will.Topic = "status/#" },
			errMsg: "will.topic",
		},
		{
			name:   "will qos",
			modify: func(c *Config) { c.Will.Topic = "status"; c.Will.QoS = 3 },
			errMsg: "will.qos",
		},
		{
			name:   "negative publish rate",
			modify: func(c *Config) { c.Limits.PublishRate = -1 },
			errMsg: "publish_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestClientOptions(t *testing.T) {
	cfg := Default()
	cfg.Broker.Username = "user"
	cfg.Broker.Password = "pass"
	cfg.Will.Topic = "status"
	cfg.Will.Payload = "gone"
	cfg.Timeouts.Recv = 2

	opts, err := cfg.ClientOptions()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	client, err := umqtt.New(cfg.Broker.URI, opts...)
	require.NoError(t, err)
	assert.Equal(t, umqtt.StateIdle, client.State())

	// the will topic is registered as a subscription
	subs := client.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, "status", subs[0].Filter)
}

func TestTLSClientConfig(t *testing.T) {
	t.Run("no tls settings", func(t *testing.T) {
		tlsConfig, err := Default().TLSClientConfig()
		require.NoError(t, err)
		assert.Nil(t, tlsConfig)
	})

	t.Run("server name only", func(t *testing.T) {
		cfg := Default()
		cfg.TLS.ServerName = "broker.internal"

		tlsConfig, err := cfg.TLSClientConfig()
		require.NoError(t, err)
		require.NotNil(t, tlsConfig)
		assert.Equal(t, "broker.internal", tlsConfig.ServerName)
	})

	t.Run("missing CA file", func(t *testing.T) {
		cfg := Default()
		cfg.TLS.CAFile = filepath.Join(t.TempDir(), "missing.pem")

		_, err := cfg.TLSClientConfig()
		require.Error(t, err)
	})

	t.Run("CA file without certificates", func(t *testing.T) {
		cfg := Default()
		cfg.TLS.CAFile = writeConfig(t, "not a certificate")

		_, err := cfg.TLSClientConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no certificates")
	})
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 5*time.Second, seconds(5))
	assert.Equal(t, time.Duration(0), seconds(0))
}
