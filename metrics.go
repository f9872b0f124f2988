package umqtt

import (
	"time"
)

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics defines the interface for collecting metrics.
type Metrics interface {
	// Counter returns a counter metric.
	Counter(name string, labels MetricLabels) Counter

	// Gauge returns a gauge metric.
	Gauge(name string, labels MetricLabels) Gauge

	// Histogram returns a histogram metric.
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing counter.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()

	// Add adds the given value to the counter.
	Add(delta float64)
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	// Set sets the gauge to the given value.
	Set(value float64)

	// Inc increments the gauge by 1.
	Inc()

	// Dec decrements the gauge by 1.
	Dec()

	// Add adds the given value to the gauge.
	Add(delta float64)
}

// Histogram tracks the distribution of values.
type Histogram interface {
	// Observe records a value.
	Observe(value float64)
}

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

// Counter returns a no-op counter.
func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter {
	return noOpMetric{}
}

// Gauge returns a no-op gauge.
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge {
	return noOpMetric{}
}

// Histogram returns a no-op histogram.
func (n *NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram {
	return noOpMetric{}
}

type noOpMetric struct{}

func (noOpMetric) Inc()              {}
func (noOpMetric) Dec()              {}
func (noOpMetric) Add(_ float64)     {}
func (noOpMetric) Set(_ float64)     {}
func (noOpMetric) Observe(_ float64) {}

// Standard metric names for the client.
const (
	// MetricPacketsSent is the total number of packets sent.
	MetricPacketsSent = "umqtt_packets_sent_total"

	// MetricPacketsReceived is the total number of packets received.
	MetricPacketsReceived = "umqtt_packets_received_total"

	// MetricBytesSent is the total bytes sent.
	MetricBytesSent = "umqtt_bytes_sent_total"

	// MetricBytesReceived is the total bytes received.
	MetricBytesReceived = "umqtt_bytes_received_total"

	// MetricReconnects is the total number of connection attempts after the first.
	MetricReconnects = "umqtt_reconnects_total"

	// MetricPublishRetries is the total number of retransmitted PUBLISH and PUBREL packets.
	MetricPublishRetries = "umqtt_publish_retries_total"

	// MetricQoS2Dropped is the total number of inbound QoS 2 messages dropped undelivered.
	MetricQoS2Dropped = "umqtt_qos2_dropped_total"

	// MetricState is the current connection state.
	MetricState = "umqtt_state"

	// MetricAckWait is the time spent waiting for acknowledgments.
	MetricAckWait = "umqtt_ack_wait_seconds"
)

// Standard metric labels.
const (
	// LabelPacketType is the packet type label.
	LabelPacketType = "packet_type"

	// LabelClientID is the client ID label.
	LabelClientID = "client_id"
)

// clientMetrics records the client's standard metrics.
type clientMetrics struct {
	metrics  Metrics
	clientID string
}

func newClientMetrics(m Metrics, clientID string) *clientMetrics {
	if m == nil {
		m = &NoOpMetrics{}
	}
	return &clientMetrics{metrics: m, clientID: clientID}
}

func (c *clientMetrics) labels() MetricLabels {
	return MetricLabels{LabelClientID: c.clientID}
}

func (c *clientMetrics) packetLabels(t PacketType) MetricLabels {
	return MetricLabels{LabelClientID: c.clientID, LabelPacketType: t.String()}
}

func (c *clientMetrics) packetSent(t PacketType, n int) {
	c.metrics.Counter(MetricPacketsSent, c.packetLabels(t)).Inc()
	c.metrics.Counter(MetricBytesSent, c.labels()).Add(float64(n))
}

func (c *clientMetrics) packetReceived(t PacketType, n int) {
	c.metrics.Counter(MetricPacketsReceived, c.packetLabels(t)).Inc()
	c.metrics.Counter(MetricBytesReceived, c.labels()).Add(float64(n))
}

func (c *clientMetrics) reconnect() {
	c.metrics.Counter(MetricReconnects, c.labels()).Inc()
}

func (c *clientMetrics) publishRetry(t PacketType) {
	c.metrics.Counter(MetricPublishRetries, c.packetLabels(t)).Inc()
}

func (c *clientMetrics) qos2Dropped(n int) {
	c.metrics.Counter(MetricQoS2Dropped, c.labels()).Add(float64(n))
}

func (c *clientMetrics) state(s ClientState) {
	c.metrics.Gauge(MetricState, c.labels()).Set(float64(s))
}

func (c *clientMetrics) ackWait(t PacketType, d time.Duration) {
	c.metrics.Histogram(MetricAckWait, c.packetLabels(t)).Observe(d.Seconds())
}
