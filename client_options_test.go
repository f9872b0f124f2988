package umqtt

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	o := applyOptions()

	assert.True(t, o.cleanSession)
	assert.Equal(t, DefaultProtocolName, o.protocolName)
	assert.Equal(t, byte(DefaultProtocolLevel), o.protocolLevel)
	assert.Equal(t, DefaultBufferSize, o.sendBufferSize)
	assert.Equal(t, DefaultBufferSize, o.recvBufferSize)
	assert.Equal(t, DefaultReconnectMax, o.reconnectMax)
	assert.Equal(t, DefaultReconnectInterval, o.reconnectInterval)
	assert.Equal(t, DefaultReconnectDelay, o.reconnectDelay)
	assert.Equal(t, DefaultKeepAliveMax, o.keepAliveMax)
	assert.Equal(t, DefaultKeepAliveInterval, o.keepAliveInterval)
	assert.Equal(t, DefaultConnectKeepAlive, o.connectKeepAlive)
	assert.Equal(t, DefaultConnectTimeout, o.connectTimeout)
	assert.Equal(t, DefaultRecvTimeout, o.recvTimeout)
	assert.Equal(t, DefaultSendTimeout, o.sendTimeout)
	assert.Equal(t, DefaultTickInterval, o.tickInterval)
	assert.Equal(t, DefaultPublishRetries, o.publishRetries)
	assert.Equal(t, DefaultPubrecInterval, o.pubrecInterval)
	assert.Equal(t, DefaultQoS2QueueSize, o.qos2QueueSize)
	assert.Equal(t, DefaultAckQueueSize, o.ackQueueSize)
	assert.Equal(t, DefaultMaxSubscriptions, o.maxSubscriptions)
	assert.Equal(t, DefaultMaxTopicFilters, o.maxTopicFilters)
	assert.IsType(t, &NoOpLogger{}, o.logger)
	assert.IsType(t, &NoOpMetrics{}, o.metrics)
}

func TestOptionsApply(t *testing.T) {
	tlsConf := &tls.Config{ServerName: "broker"}
	logger := NewNoOpLogger()
	metrics := NewMemoryMetrics()
	handler := func(*Client, Event) {}

	o := applyOptions(
		WithClientID("c1"),
		WithCredentials("user", "pass"),
		WithWill("status/c1", []byte("gone"), true, 1),
		WithBufferSizes(256, 512),
		WithReconnect(10, 30*time.Second),
		WithReconnectDelay(time.Second),
		WithKeepAlive(10*time.Second, 2),
		WithConnectKeepAlive(20*time.Second),
		WithConnectTimeout(2*time.Second),
		WithRecvTimeout(3*time.Second),
		WithSendTimeout(time.Second),
		WithTickInterval(100*time.Millisecond),
		WithPubrecInterval(500*time.Millisecond),
		WithPublishRetries(5),
		WithQoS2QueueSize(2),
		WithMaxSubscriptions(8),
		WithMaxTopicFilters(2),
		WithAckQueueSize(16),
		WithProtocol("MQIsdp", 3),
		WithCleanSession(false),
		WithTLS(tlsConf),
		WithProxy("socks5://proxy:1080", "pu", "pp"),
		WithProxyFromEnvironment(),
		WithPublishRate(10, 5),
		OnEvent(handler),
		WithLogger(logger),
		WithMetrics(metrics),
	)

	assert.Equal(t, "c1", o.clientID)
	assert.Equal(t, "user", o.username)
	assert.Equal(t, "pass", o.password)
	assert.Equal(t, &WillMessage{Topic: "status/c1", Payload: []byte("gone"), QoS: 1, Retain: true}, o.will)
	assert.Equal(t, 256, o.sendBufferSize)
	assert.Equal(t, 512, o.recvBufferSize)
	assert.Equal(t, 10, o.reconnectMax)
	assert.Equal(t, 30*time.Second, o.reconnectInterval)
	assert.Equal(t, time.Second, o.reconnectDelay)
	assert.Equal(t, 10*time.Second, o.keepAliveInterval)
	assert.Equal(t, 2, o.keepAliveMax)
	assert.Equal(t, 20*time.Second, o.connectKeepAlive)
	assert.Equal(t, 2*time.Second, o.connectTimeout)
	assert.Equal(t, 3*time.Second, o.recvTimeout)
	assert.Equal(t, time.Second, o.sendTimeout)
	assert.Equal(t, 100*time.Millisecond, o.tickInterval)
	assert.Equal(t, 500*time.Millisecond, o.pubrecInterval)
	assert.Equal(t, 5, o.publishRetries)
	assert.Equal(t, 2, o.qos2QueueSize)
	assert.Equal(t, 8, o.maxSubscriptions)
	assert.Equal(t, 2, o.maxTopicFilters)
	assert.Equal(t, 16, o.ackQueueSize)
	assert.Equal(t, "MQIsdp", o.protocolName)
	assert.Equal(t, byte(3), o.protocolLevel)
	assert.False(t, o.cleanSession)
	assert.Same(t, tlsConf, o.tlsConfig)
	assert.Equal(t, "socks5://proxy:1080", o.proxyURL)
	assert.Equal(t, "pu", o.proxyUsername)
	assert.Equal(t, "pp", o.proxyPassword)
	assert.True(t, o.proxyFromEnv)
	assert.InDelta(t, 10, o.publishRate, 0)
	assert.Equal(t, 5, o.publishBurst)
	assert.NotNil(t, o.onEvent)
	assert.Same(t, logger, o.logger)
	assert.Same(t, metrics, o.metrics)
}

func TestOptionsZeroValuesRestoreDefaults(t *testing.T) {
	o := applyOptions(
		WithBufferSizes(0, -1),
		WithReconnect(0, 0),
		WithKeepAlive(-time.Second, 0),
		WithConnectTimeout(0),
		WithPublishRetries(-3),
		WithProtocol("", 0),
		WithLogger(nil),
		WithMetrics(nil),
	)

	assert.Equal(t, DefaultBufferSize, o.sendBufferSize)
	assert.Equal(t, DefaultBufferSize, o.recvBufferSize)
	assert.Equal(t, DefaultReconnectMax, o.reconnectMax)
	assert.Equal(t, DefaultReconnectInterval, o.reconnectInterval)
	assert.Equal(t, DefaultKeepAliveInterval, o.keepAliveInterval)
	assert.Equal(t, DefaultKeepAliveMax, o.keepAliveMax)
	assert.Equal(t, DefaultConnectTimeout, o.connectTimeout)
	assert.Equal(t, DefaultPublishRetries, o.publishRetries)
	assert.Equal(t, DefaultProtocolName, o.protocolName)
	assert.Equal(t, byte(DefaultProtocolLevel), o.protocolLevel)
	assert.NotNil(t, o.logger)
	assert.NotNil(t, o.metrics)
}

func TestConnectKeepAliveZeroIsKept(t *testing.T) {
	assert.Zero(t, applyOptions(WithConnectKeepAlive(0)).connectKeepAlive)
	assert.Equal(t, DefaultConnectKeepAlive, applyOptions(WithConnectKeepAlive(-time.Second)).connectKeepAlive)
}
