// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mqtt "github.com/mochi-mqtt/client"
	"github.com/mochi-mqtt/client/config"
	"github.com/mochi-mqtt/client/hooks/debug"
)

func main() {
	configFile := flag.String("config", "", "path to a yaml or json client config file")
	server := flag.String("server", "tcp://localhost:1883", "server uri, used if no config file is given")
	clientID := flag.String("id", "", "client identifier, generated if empty")
	subscribe := flag.String("sub", "", "topic filter to subscribe to")
	topic := flag.String("pub", "", "topic to publish a message to")
	message := flag.String("message", "", "payload of the published message")
	qos := flag.Int("qos", 0, "qos of the subscription and published message")
	metricsAddr := flag.String("metrics", "", "address to serve prometheus metrics on, e.g. :9090")
	verbose := flag.Bool("debug", false, "log packet level debugging output")
	flag.Parse()

	level := new(slog.LevelVar)
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg, err := config.FromFile(*configFile)
	if err != nil {
		log.Error("failed to read config", "error", err)
		os.Exit(1)
	}

	if cfg == nil {
		cfg, _ = config.FromBytes([]byte("{}"))
		cfg.Server = *server
		cfg.ClientID = *clientID
	}

	if *subscribe != "" {
		cfg.Subscriptions = append(cfg.Subscriptions, config.Subscription{Filter: *subscribe, Qos: byte(*qos)})
	}

	if *verbose && cfg.Debug == nil {
		cfg.Debug = new(debug.Options)
	}

	if cfg.Debug != nil {
		level.Set(slog.LevelDebug)
	}

	cfg.Options.Logger = log
	cfg.Options.OnMessageArrived = func(m *mqtt.Message) {
		log.Info("message arrived", "topic", m.Topic, "qos", m.Qos, "retained", m.Retained, "payload", string(m.Payload))
	}
	cfg.Options.OnConnectionLost = func(err error) {
		log.Warn("connection lost", "error", err)
	}

	cl, err := mqtt.New(cfg.Server, cfg.ClientID, &cfg.Options)
	if err != nil {
		log.Error("failed to create client", "error", err)
		os.Exit(1)
	}

	if cfg.Debug != nil {
		if err := cl.AddHook(new(debug.Hook), cfg.Debug); err != nil {
			log.Error("failed to add debug hook", "error", err)
		}
	}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		cl.Info.RegisterPrometheusMetrics(reg)
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           metricsHandler(cl, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	tk, err := cl.Connect(&cfg.Connect)
	if err == nil {
		var stopped bool
		stopped, err = awaitConnect(tk, sigs)
		if stopped {
			log.Warn("caught signal while connecting, stopping...")
			_ = cl.Close()
			return
		}
	}
	if err != nil {
		log.Error("failed to connect", "error", err)
		_ = cl.Close()
		os.Exit(1)
	}

	for _, sub := range cfg.Subscriptions {
		if _, err := cl.Subscribe(sub.Filter, &mqtt.SubscribeOptions{Qos: sub.Qos, Timeout: cfg.Connect.Timeout}); err != nil {
			log.Error("failed to subscribe", "error", err, "filter", sub.Filter)
		}
	}

	if *topic != "" {
		tk, err := cl.Publish(&mqtt.Message{Topic: *topic, Payload: []byte(*message), Qos: byte(*qos)})
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Connect.Timeout)
			err = tk.Wait(ctx)
			cancel()
		}

		if err != nil {
			log.Error("failed to publish", "error", err, "topic", *topic)
		} else {
			log.Info("message delivered", "topic", *topic)
		}

		if len(cfg.Subscriptions) == 0 {
			_ = cl.Close()
			return
		}
	}

	<-sigs
	log.Warn("caught signal, stopping...")
	_ = cl.Close()
	log.Info("main.go finished")
}

// awaitConnect waits for a connect call to finish or for a signal. Each attempt
// is bounded by the connect timeout, so the token completes once every host and
// protocol version has been tried.
func awaitConnect(tk *mqtt.Token, sigs <-chan os.Signal) (stopped bool, err error) {
	select {
	case <-tk.Done():
		return false, tk.Error()
	case <-sigs:
		return true, nil
	}
}

// metricsHandler serves the client's prometheus metrics, refreshing the
// runtime values on each scrape.
func metricsHandler(cl *mqtt.Client, reg *prometheus.Registry) http.Handler {
	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cl.Info.Refresh(time.Now().Unix())
		h.ServeHTTP(w, r)
	})
}
