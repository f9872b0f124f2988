package umqtt

import (
	"crypto/tls"
	"time"
)

// Client defaults.
const (
	DefaultBufferSize        = 1024
	DefaultReconnectMax      = 5
	DefaultReconnectInterval = 60 * time.Second
	DefaultReconnectDelay    = 5 * time.Second
	DefaultKeepAliveMax      = 5
	DefaultKeepAliveInterval = 30 * time.Second
	DefaultConnectKeepAlive  = 60 * time.Second
	DefaultConnectTimeout    = 4 * time.Second
	DefaultRecvTimeout       = 5 * time.Second
	DefaultSendTimeout       = 4 * time.Second
	DefaultTickInterval      = time.Second
	DefaultPublishRetries    = 3
)

// clientOptions holds configuration for a Client.
type clientOptions struct {
	// Connection settings
	clientID      string
	username      string
	password      string
	cleanSession  bool
	protocolName  string
	protocolLevel byte

	// Will message
	will        *WillMessage
	willHandler MessageHandler

	// Buffers
	sendBufferSize int
	recvBufferSize int

	// Reconnect
	reconnectMax      int
	reconnectInterval time.Duration
	reconnectDelay    time.Duration

	// Keepalive
	keepAliveMax      int
	keepAliveInterval time.Duration
	connectKeepAlive  time.Duration

	// Timeouts
	connectTimeout time.Duration
	recvTimeout    time.Duration
	sendTimeout    time.Duration
	tickInterval   time.Duration

	// QoS
	publishRetries int
	pubrecInterval time.Duration
	qos2QueueSize  int
	ackQueueSize   int

	// Limits
	maxSubscriptions int
	maxTopicFilters  int
	publishRate      float64
	publishBurst     int

	// Transport
	tlsConfig     *tls.Config
	dialer        Dialer
	proxyURL      string
	proxyUsername string
	proxyPassword string
	proxyFromEnv  bool

	// Observability
	onEvent EventHandler
	logger  Logger
	metrics Metrics
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() *clientOptions {
	return &clientOptions{
		cleanSession:      true,
		protocolName:      DefaultProtocolName,
		protocolLevel:     DefaultProtocolLevel,
		sendBufferSize:    DefaultBufferSize,
		recvBufferSize:    DefaultBufferSize,
		reconnectMax:      DefaultReconnectMax,
		reconnectInterval: DefaultReconnectInterval,
		reconnectDelay:    DefaultReconnectDelay,
		keepAliveMax:      DefaultKeepAliveMax,
		keepAliveInterval: DefaultKeepAliveInterval,
		connectKeepAlive:  DefaultConnectKeepAlive,
		connectTimeout:    DefaultConnectTimeout,
		recvTimeout:       DefaultRecvTimeout,
		sendTimeout:       DefaultSendTimeout,
		tickInterval:      DefaultTickInterval,
		publishRetries:    DefaultPublishRetries,
		pubrecInterval:    DefaultPubrecInterval,
		qos2QueueSize:     DefaultQoS2QueueSize,
		ackQueueSize:      DefaultAckQueueSize,
		maxSubscriptions:  DefaultMaxSubscriptions,
		maxTopicFilters:   DefaultMaxTopicFilters,
		logger:            NewNoOpLogger(),
		metrics:           &NoOpMetrics{},
	}
}

// Option configures a Client.
type Option func(*clientOptions)

// WithClientID sets the client identifier.
func WithClientID(id string) Option {
	return func(o *clientOptions) {
		o.clientID = id
	}
}

// WithCredentials sets the username and password sent in CONNECT.
func WithCredentials(username, password string) Option {
	return func(o *clientOptions) {
		o.username = username
		o.password = password
	}
}

// WithWill sets the last will published by the broker when the client vanishes.
func WithWill(topic string, payload []byte, retain bool, qos byte) Option {
	return func(o *clientOptions) {
		o.will = &WillMessage{
			Topic:   topic,
			Payload: payload,
			QoS:     qos,
			Retain:  retain,
		}
	}
}

// WithWillHandler subscribes handler to the will topic when the client is created.
func WithWillHandler(handler MessageHandler) Option {
	return func(o *clientOptions) {
		o.willHandler = handler
	}
}

// WithBufferSizes sets the send and receive buffer sizes in bytes.
// Inbound packets larger than the receive buffer are discarded.
func WithBufferSizes(send, recv int) Option {
	return func(o *clientOptions) {
		o.sendBufferSize = send
		o.recvBufferSize = recv
	}
}

// WithReconnect sets the reconnect budget and the spacing between timer-driven attempts.
func WithReconnect(maxAttempts int, interval time.Duration) Option {
	return func(o *clientOptions) {
		o.reconnectMax = maxAttempts
		o.reconnectInterval = interval
	}
}

// WithReconnectDelay sets the pause between blocking connect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(o *clientOptions) {
		o.reconnectDelay = d
	}
}

// WithKeepAlive sets the idle interval before a ping and the number of
// unanswered pings that ends the link.
func WithKeepAlive(interval time.Duration, maxMissed int) Option {
	return func(o *clientOptions) {
		o.keepAliveInterval = interval
		o.keepAliveMax = maxMissed
	}
}

// WithConnectKeepAlive sets the keepalive announced in CONNECT.
// It is rounded down to whole seconds.
func WithConnectKeepAlive(d time.Duration) Option {
	return func(o *clientOptions) {
		o.connectKeepAlive = d
	}
}

// WithConnectTimeout sets how long a blocking connect waits for CONNACK.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.connectTimeout = d
	}
}

// WithRecvTimeout sets the read deadline of each reader iteration.
func WithRecvTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.recvTimeout = d
	}
}

// WithSendTimeout sets the write deadline and the unanswered-ping timeout.
func WithSendTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.sendTimeout = d
	}
}

// WithTickInterval sets the timer period.
func WithTickInterval(d time.Duration) Option {
	return func(o *clientOptions) {
		o.tickInterval = d
	}
}

// WithPubrecInterval sets the spacing between PUBREC resends for inbound QoS 2.
func WithPubrecInterval(d time.Duration) Option {
	return func(o *clientOptions) {
		o.pubrecInterval = d
	}
}

// WithPublishRetries sets how many times an unacknowledged packet is sent.
// It also bounds PUBREC resends for inbound QoS 2.
func WithPublishRetries(n int) Option {
	return func(o *clientOptions) {
		o.publishRetries = n
	}
}

// WithQoS2QueueSize sets how many inbound QoS 2 messages may await PUBREL.
func WithQoS2QueueSize(n int) Option {
	return func(o *clientOptions) {
		o.qos2QueueSize = n
	}
}

// WithMaxSubscriptions sets the subscription table capacity.
func WithMaxSubscriptions(n int) Option {
	return func(o *clientOptions) {
		o.maxSubscriptions = n
	}
}

// WithMaxTopicFilters sets the number of entries allowed in one SUBSCRIBE or UNSUBSCRIBE.
func WithMaxTopicFilters(n int) Option {
	return func(o *clientOptions) {
		o.maxTopicFilters = n
	}
}

// WithAckQueueSize sets the depth of the acknowledgment queue.
func WithAckQueueSize(n int) Option {
	return func(o *clientOptions) {
		o.ackQueueSize = n
	}
}

// WithProtocol sets the protocol name and level written into CONNECT.
func WithProtocol(name string, level byte) Option {
	return func(o *clientOptions) {
		o.protocolName = name
		o.protocolLevel = level
	}
}

// WithCleanSession sets the CONNECT clean session flag.
func WithCleanSession(clean bool) Option {
	return func(o *clientOptions) {
		o.cleanSession = clean
	}
}

// WithTLS sets the TLS configuration for ssl, wss and quic URIs.
func WithTLS(config *tls.Config) Option {
	return func(o *clientOptions) {
		o.tlsConfig = config
	}
}

// WithDialer replaces the scheme dialer.
func WithDialer(d Dialer) Option {
	return func(o *clientOptions) {
		o.dialer = d
	}
}

// WithProxy routes the connection through an HTTP CONNECT or SOCKS5 proxy.
func WithProxy(proxyURL, username, password string) Option {
	return func(o *clientOptions) {
		o.proxyURL = proxyURL
		o.proxyUsername = username
		o.proxyPassword = password
	}
}

// WithProxyFromEnvironment picks the proxy from HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
func WithProxyFromEnvironment() Option {
	return func(o *clientOptions) {
		o.proxyFromEnv = true
	}
}

// WithPublishRate limits outbound publishes per second. Zero disables the limit.
func WithPublishRate(perSecond float64, burst int) Option {
	return func(o *clientOptions) {
		o.publishRate = perSecond
		o.publishBurst = burst
	}
}

// OnEvent sets the lifecycle event handler.
func OnEvent(handler EventHandler) Option {
	return func(o *clientOptions) {
		o.onEvent = handler
	}
}

// WithLogger sets the client logger.
func WithLogger(logger Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option {
	return func(o *clientOptions) {
		o.metrics = m
	}
}

// applyOptions applies all options to the default options and
// restores the default for every value left zero or negative.
func applyOptions(opts ...Option) *clientOptions {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	d := defaultOptions()
	fillInt(&options.sendBufferSize, d.sendBufferSize)
	fillInt(&options.recvBufferSize, d.recvBufferSize)
	fillInt(&options.reconnectMax, d.reconnectMax)
	fillInt(&options.keepAliveMax, d.keepAliveMax)
	fillInt(&options.publishRetries, d.publishRetries)
	fillInt(&options.qos2QueueSize, d.qos2QueueSize)
	fillInt(&options.ackQueueSize, d.ackQueueSize)
	fillInt(&options.maxSubscriptions, d.maxSubscriptions)
	fillInt(&options.maxTopicFilters, d.maxTopicFilters)
	fillDuration(&options.reconnectInterval, d.reconnectInterval)
	fillDuration(&options.reconnectDelay, d.reconnectDelay)
	fillDuration(&options.keepAliveInterval, d.keepAliveInterval)
	fillDuration(&options.connectTimeout, d.connectTimeout)
	fillDuration(&options.recvTimeout, d.recvTimeout)
	fillDuration(&options.sendTimeout, d.sendTimeout)
	fillDuration(&options.tickInterval, d.tickInterval)
	fillDuration(&options.pubrecInterval, d.pubrecInterval)

	if options.connectKeepAlive < 0 {
		options.connectKeepAlive = d.connectKeepAlive
	}
	if options.protocolName == "" {
		options.protocolName = d.protocolName
	}
	if options.protocolLevel == 0 {
		options.protocolLevel = d.protocolLevel
	}
	if options.logger == nil {
		options.logger = d.logger
	}
	if options.metrics == nil {
		options.metrics = d.metrics
	}

	return options
}

func fillInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func fillDuration(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}
