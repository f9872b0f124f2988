// Package umqtt implements an MQTT 3.1.1 client engine for constrained
// deployments: fixed buffers, a bounded subscription table and a small
// inbound QoS 2 queue.
//
// This package implements the MQTT Version 3.1.1 OASIS Standard:
// https://docs.oasis-open.org/mqtt/mqtt/v3.1.1/mqtt-v3.1.1.html
//
// # Features
//
//   - All 14 MQTT 3.1.1 control packet types
//   - QoS 0, 1, 2 publish with acknowledgment waiting and DUP resends
//   - Inbound QoS 2 duplicate suppression with PUBREC resends
//   - Keepalive and automatic reconnection driven by a 1 second timer
//   - Topic matching with wildcard support (+, #)
//   - Transport: TCP, TLS, WebSocket, WSS, Unix sockets, QUIC, HTTP/SOCKS5 proxies
//
// # Packets
//
// Codec encodes into and decodes from caller-owned buffers:
//
//	codec := &umqtt.Codec{MaxTopicFilters: umqtt.DefaultMaxTopicFilters}
//	n, err := codec.Encode(buf, &umqtt.PingreqPacket{})
//	pkt, n, err := codec.Decode(buf[:n])
//
// Use ReadPacket and WritePacket to read/write packets from/to streams:
//
//	pkt, n, err := umqtt.ReadPacket(conn, 0)
//	n, err := umqtt.WritePacket(conn, packet, 0)
//
// # Client
//
//	client, err := umqtt.New("tcp://localhost:1883",
//	    umqtt.WithClientID("sensor-1"),
//	    umqtt.WithKeepAlive(30*time.Second, 5),
//	    umqtt.OnEvent(func(c *umqtt.Client, ev umqtt.Event) { ... }),
//	)
//	if err := client.Start(ctx); err != nil { ... }
//	defer client.Delete()
//
//	client.Subscribe("sensors/+/temp", 1, func(msg *umqtt.Message) { ... })
//	client.Publish(&umqtt.Message{Topic: "sensors/1/temp", Payload: []byte("21.5"), QoS: 1}, time.Second)
//
// Once the broker refuses the client or the reconnect budget runs out the
// client enters StateDisconnect and every call returns ErrReconnectFailed.
//
// # Metrics
//
//	metrics := umqtt.NewPrometheusMetrics(prometheus.DefaultRegisterer)
//	client, err := umqtt.New(uri, umqtt.WithMetrics(metrics))
//
// # Logging
//
//	logger := umqtt.NewSlogLogger(os.Stderr, "json", umqtt.LogLevelInfo)
//	client, err := umqtt.New(uri, umqtt.WithLogger(logger))
package umqtt
