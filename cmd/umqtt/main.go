// Command umqtt publishes to or subscribes from an MQTT 3.1.1 broker.
//
// Usage:
//
//	umqtt pub -uri tcp://localhost:1883 -topic a/b -qos 1 -message hello
//	umqtt sub -config umqtt.yaml -topic 'a/#' -metrics-addr :9100
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitalvas/umqtt"
	"github.com/vitalvas/umqtt/internal/config"
)

type commandFlags struct {
	configPath  string
	uri         string
	topic       string
	qos         int
	message     string
	timeout     time.Duration
	metricsAddr string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "umqtt:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: umqtt pub|sub [flags]")
	}

	cmd := args[0]
	if cmd != "pub" && cmd != "sub" {
		return fmt.Errorf("unknown command %q", cmd)
	}

	f, err := parseFlags(cmd, args[1:])
	if err != nil {
		return err
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.uri != "" {
		cfg.Broker.URI = f.uri
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Addr = f.metricsAddr
	}

	logger := cfg.Logger()

	opts, err := cfg.ClientOptions()
	if err != nil {
		return err
	}
	opts = append(opts,
		umqtt.WithLogger(logger),
		umqtt.OnEvent(func(_ *umqtt.Client, ev umqtt.Event) {
			logger.Debug("client event", umqtt.LogFields{"event": ev.String()})
		}),
	)

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, umqtt.WithMetrics(umqtt.NewPrometheusMetrics(reg)))
		go serveMetrics(cfg.Metrics.Addr, reg, logger)
	}

	client, err := umqtt.New(cfg.Broker.URI, opts...)
	if err != nil {
		return err
	}
	defer client.Delete()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", cfg.Broker.URI, err)
	}

	if cmd == "pub" {
		return publish(client, f)
	}
	return subscribe(ctx, client, f, logger)
}

func parseFlags(cmd string, args []string) (*commandFlags, error) {
	f := &commandFlags{}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "path to YAML configuration")
	fs.StringVar(&f.uri, "uri", "", "broker URI, overrides the configuration")
	fs.StringVar(&f.topic, "topic", "", "topic name (pub) or filter (sub)")
	fs.IntVar(&f.qos, "qos", 0, "quality of service 0, 1 or 2")
	fs.StringVar(&f.message, "message", "", "payload to publish")
	fs.DurationVar(&f.timeout, "timeout", 5*time.Second, "acknowledgment wait per attempt")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if f.topic == "" {
		return nil, errors.New("-topic is required")
	}
	if f.qos < 0 || f.qos > 2 {
		return nil, errors.New("-qos must be 0, 1 or 2")
	}

	return f, nil
}

func publish(client *umqtt.Client, f *commandFlags) error {
	msg := &umqtt.Message{
		Topic:   f.topic,
		Payload: []byte(f.message),
		QoS:     byte(f.qos),
	}
	return client.Publish(msg, f.timeout)
}

func subscribe(ctx context.Context, client *umqtt.Client, f *commandFlags, logger umqtt.Logger) error {
	err := client.Subscribe(f.topic, byte(f.qos), func(msg *umqtt.Message) {
		fmt.Printf("%s %s\n", msg.Topic, msg.Payload)
	})
	if err != nil {
		return err
	}

	logger.Info("subscribed", umqtt.LogFields{umqtt.LogFieldTopic: f.topic})

	<-ctx.Done()
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger umqtt.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", umqtt.LogFields{umqtt.LogFieldError: err.Error()})
	}
}
