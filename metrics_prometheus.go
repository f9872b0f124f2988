package umqtt

import (
	"errors"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var metricHelp = map[string]string{
	MetricPacketsSent:     "The total number of MQTT packets sent",
	MetricPacketsReceived: "The total number of MQTT packets received",
	MetricBytesSent:       "The total number of MQTT bytes sent",
	MetricBytesReceived:   "The total number of MQTT bytes received",
	MetricReconnects:      "The total number of reconnect attempts",
	MetricPublishRetries:  "The total number of retransmitted PUBLISH and PUBREL packets",
	MetricQoS2Dropped:     "The total number of inbound QoS 2 messages dropped without delivery",
	MetricState:           "The current connection state",
	MetricAckWait:         "Time spent waiting for acknowledgments in seconds",
}

// PrometheusMetrics exposes client metrics through a Prometheus registerer.
// Vectors are created on first use; the label names of the first use are kept.
type PrometheusMetrics struct {
	reg prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics creates metrics registered on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func labelNames(labels MetricLabels) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// register registers c, reusing an identical collector that is already registered.
func (p *PrometheusMetrics) register(c prometheus.Collector) prometheus.Collector {
	if err := p.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
	}
	return c
}

func help(name string) string {
	if h, ok := metricHelp[name]; ok {
		return h
	}
	return name
}

// Counter returns a counter metric.
func (p *PrometheusMetrics) Counter(name string, labels MetricLabels) Counter {
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help(name)}, labelNames(labels))
		if existing, ok := p.register(vec).(*prometheus.CounterVec); ok {
			vec = existing
		}
		p.counters[name] = vec
	}
	p.mu.Unlock()

	c, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return noOpMetric{}
	}
	return c
}

// Gauge returns a gauge metric.
func (p *PrometheusMetrics) Gauge(name string, labels MetricLabels) Gauge {
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help(name)}, labelNames(labels))
		if existing, ok := p.register(vec).(*prometheus.GaugeVec); ok {
			vec = existing
		}
		p.gauges[name] = vec
	}
	p.mu.Unlock()

	g, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return noOpMetric{}
	}
	return g
}

// Histogram returns a histogram metric.
func (p *PrometheusMetrics) Histogram(name string, labels MetricLabels) Histogram {
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    help(name),
			Buckets: prometheus.DefBuckets,
		}, labelNames(labels))
		if existing, ok := p.register(vec).(*prometheus.HistogramVec); ok {
			vec = existing
		}
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	h, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return noOpMetric{}
	}
	return h
}
