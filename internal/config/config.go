// Package config loads the umqtt command configuration from YAML.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// UMQTT_* environment variables.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalvas/umqtt"
)

// Config is the root configuration structure.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	TLS       TLSConfig       `yaml:"tls"`
	KeepAlive KeepAliveConfig `yaml:"keepalive"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Limits    LimitsConfig    `yaml:"limits"`
	Will      WillConfig      `yaml:"will"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// BrokerConfig identifies the broker and the client.
type BrokerConfig struct {
	URI           string `yaml:"uri"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	CleanSession  bool   `yaml:"clean_session"`
	Protocol      string `yaml:"protocol"`
	ProtocolLevel int    `yaml:"protocol_level"`
	Proxy         string `yaml:"proxy"`
}

// TLSConfig configures ssl, wss and quic connections.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// KeepAliveConfig holds keepalive settings in seconds.
type KeepAliveConfig struct {
	Interval  int `yaml:"interval"`
	MaxMissed int `yaml:"max_missed"`
	Connect   int `yaml:"connect"`
}

// ReconnectConfig holds the reconnect budget and pacing in seconds.
type ReconnectConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	Interval    int `yaml:"interval"`
	Delay       int `yaml:"delay"`
}

// TimeoutConfig holds I/O timeouts in seconds.
type TimeoutConfig struct {
	Connect int `yaml:"connect"`
	Recv    int `yaml:"recv"`
	Send    int `yaml:"send"`
}

// LimitsConfig bounds buffers, tables and publish rate.
type LimitsConfig struct {
	SendBuffer       int     `yaml:"send_buffer"`
	RecvBuffer       int     `yaml:"recv_buffer"`
	MaxSubscriptions int     `yaml:"max_subscriptions"`
	QoS2Queue        int     `yaml:"qos2_queue"`
	PublishRetries   int     `yaml:"publish_retries"`
	PublishRate      float64 `yaml:"publish_rate"`
	PublishBurst     int     `yaml:"publish_burst"`
}

// WillConfig is the last will; an empty topic disables it.
type WillConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     int    `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// LoggingConfig selects the log level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig sets the Prometheus listen address; empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads the configuration from a YAML file.
// An empty path yields the defaults with environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config holding the client defaults.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			URI:           "tcp://localhost:1883",
			ClientID:      "umqtt",
			CleanSession:  true,
			Protocol:      umqtt.DefaultProtocolName,
			ProtocolLevel: umqtt.DefaultProtocolLevel,
		},
		KeepAlive: KeepAliveConfig{
			Interval:  int(umqtt.DefaultKeepAliveInterval / time.Second),
			MaxMissed: umqtt.DefaultKeepAliveMax,
			Connect:   int(umqtt.DefaultConnectKeepAlive / time.Second),
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: umqtt.DefaultReconnectMax,
			Interval:    int(umqtt.DefaultReconnectInterval / time.Second),
			Delay:       int(umqtt.DefaultReconnectDelay / time.Second),
		},
		Timeouts: TimeoutConfig{
			Connect: int(umqtt.DefaultConnectTimeout / time.Second),
			Recv:    int(umqtt.DefaultRecvTimeout / time.Second),
			Send:    int(umqtt.DefaultSendTimeout / time.Second),
		},
		Limits: LimitsConfig{
			SendBuffer:       umqtt.DefaultBufferSize,
			RecvBuffer:       umqtt.DefaultBufferSize,
			MaxSubscriptions: umqtt.DefaultMaxSubscriptions,
			QoS2Queue:        umqtt.DefaultQoS2QueueSize,
			PublishRetries:   umqtt.DefaultPublishRetries,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyEnvOverrides applies UMQTT_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UMQTT_BROKER_URI"); v != "" {
		cfg.Broker.URI = v
	}
	if v := os.Getenv("UMQTT_CLIENT_ID"); v != "" {
		cfg.Broker.ClientID = v
	}
	if v := os.Getenv("UMQTT_USERNAME"); v != "" {
		cfg.Broker.Username = v
	}
	if v := os.Getenv("UMQTT_PASSWORD"); v != "" {
		cfg.Broker.Password = v
	}
	if v := os.Getenv("UMQTT_PROXY"); v != "" {
		cfg.Broker.Proxy = v
	}
	if v := os.Getenv("UMQTT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("UMQTT_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("UMQTT_KEEPALIVE_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.KeepAlive.Interval = n
		}
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if _, err := umqtt.ParseURI(c.Broker.URI); err != nil {
		errs = append(errs, fmt.Errorf("broker.uri: %w", err))
	}

	if c.Broker.ProtocolLevel < 1 || c.Broker.ProtocolLevel > 255 {
		errs = append(errs, errors.New("broker.protocol_level must be between 1 and 255"))
	}

	if c.Broker.Password != "" && c.Broker.Username == "" {
		errs = append(errs, errors.New("broker.password requires broker.username"))
	}

	if !c.Broker.CleanSession && c.Broker.ClientID == "" {
		errs = append(errs, errors.New("broker.client_id is required when clean_session is false"))
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls.cert_file and tls.key_file must be set together"))
	}

	if c.KeepAlive.Connect < 0 || c.KeepAlive.Connect > 65535 {
		errs = append(errs, errors.New("keepalive.connect must be between 0 and 65535"))
	}

	if c.Will.Topic != "" {
		if err := umqtt.ValidateTopicName(c.Will.Topic); err != nil {
			errs = append(errs, fmt.Errorf("will.topic: %w", err))
		}
		if c.Will.QoS < 0 || c.Will.QoS > 2 {
			errs = append(errs, errors.New("will.qos must be 0, 1, or 2"))
		}
	}

	if c.Limits.PublishRate < 0 {
		errs = append(errs, errors.New("limits.publish_rate must not be negative"))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}

	return errors.Join(errs...)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// TLSClientConfig builds the TLS configuration, or nil when no TLS setting is present.
func (c *Config) TLSClientConfig() (*tls.Config, error) {
	t := c.TLS
	if t.CAFile == "" && t.CertFile == "" && t.ServerName == "" && !t.InsecureSkipVerify {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify, //nolint:gosec
	}

	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", t.CAFile)
		}
		cfg.RootCAs = pool
	}

	if t.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// ClientOptions converts the configuration into client options.
func (c *Config) ClientOptions() ([]umqtt.Option, error) {
	opts := []umqtt.Option{
		umqtt.WithClientID(c.Broker.ClientID),
		umqtt.WithCleanSession(c.Broker.CleanSession),
		umqtt.WithProtocol(c.Broker.Protocol, byte(c.Broker.ProtocolLevel)),
		umqtt.WithKeepAlive(seconds(c.KeepAlive.Interval), c.KeepAlive.MaxMissed),
		umqtt.WithConnectKeepAlive(seconds(c.KeepAlive.Connect)),
		umqtt.WithReconnect(c.Reconnect.MaxAttempts, seconds(c.Reconnect.Interval)),
		umqtt.WithReconnectDelay(seconds(c.Reconnect.Delay)),
		umqtt.WithConnectTimeout(seconds(c.Timeouts.Connect)),
		umqtt.WithRecvTimeout(seconds(c.Timeouts.Recv)),
		umqtt.WithSendTimeout(seconds(c.Timeouts.Send)),
		umqtt.WithBufferSizes(c.Limits.SendBuffer, c.Limits.RecvBuffer),
		umqtt.WithMaxSubscriptions(c.Limits.MaxSubscriptions),
		umqtt.WithQoS2QueueSize(c.Limits.QoS2Queue),
		umqtt.WithPublishRetries(c.Limits.PublishRetries),
		umqtt.WithPublishRate(c.Limits.PublishRate, c.Limits.PublishBurst),
	}

	if c.Broker.Username != "" {
		opts = append(opts, umqtt.WithCredentials(c.Broker.Username, c.Broker.Password))
	}

	if c.Broker.Proxy != "" {
		opts = append(opts, umqtt.WithProxy(c.Broker.Proxy, "", ""))
	}

	if c.Will.Topic != "" {
		opts = append(opts, umqtt.WithWill(c.Will.Topic, []byte(c.Will.Payload), c.Will.Retain, byte(c.Will.QoS)))
	}

	tlsConfig, err := c.TLSClientConfig()
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts = append(opts, umqtt.WithTLS(tlsConfig))
	}

	return opts, nil
}

// Logger builds the slog-backed logger described by the logging section.
func (c *Config) Logger() umqtt.Logger {
	return umqtt.NewSlogLogger(os.Stderr, c.Logging.Format, umqtt.ParseLogLevel(c.Logging.Level))
}
