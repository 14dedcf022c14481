// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-co
// SPDX-FileContributor: mochi-co

package system

import (
	"runtime"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Info contains atomic counters and values for various client statistics.
type Info struct {
	Version          string `json:"version"`           // the current version of the client
	Started          int64  `json:"started"`           // the time the client was created in unix seconds
	Time             int64  `json:"time"`              // current time on the client
	Uptime           int64  `json:"uptime"`            // the number of seconds the client has existed
	BytesReceived    int64  `json:"bytes_received"`    // total number of bytes received from servers
	BytesSent        int64  `json:"bytes_sent"`        // total number of bytes handed to transports
	Connected        int64  `json:"connected"`         // 1 while a connection is established, otherwise 0
	ConnectAttempts  int64  `json:"connect_attempts"`  // total number of transport connections attempted
	ConnectionsLost  int64  `json:"connections_lost"`  // total number of established connections which ended
	MessagesReceived int64  `json:"messages_received"` // total number of application messages delivered
	MessagesSent     int64  `json:"messages_sent"`     // total number of publish packets sent, including replays
	Inflight         int64  `json:"inflight"`          // the number of outbound packets awaiting acknowledgement
	InflightReceived int64  `json:"inflight_received"` // the number of inbound qos 2 messages awaiting release
	InflightDropped  int64  `json:"inflight_dropped"`  // the number of in-flight messages discarded by a clean session
	PacketsReceived  int64  `json:"packets_received"`  // total number of packets received
	PacketsSent      int64  `json:"packets_sent"`      // total number of packets sent
	MemoryAlloc      int64  `json:"memory_alloc"`      // memory currently allocated
	Threads          int64  `json:"threads"`           // number of active goroutines, named as threads for platform ambiguity
}

// Clone makes a copy of Info using atomic operation
func (i *Info) Clone() *Info {
	return &Info{
		Version:          i.Version,
		Started:          atomic.LoadInt64(&i.Started),
		Time:             atomic.LoadInt64(&i.Time),
		Uptime:           atomic.LoadInt64(&i.Uptime),
		BytesReceived:    atomic.LoadInt64(&i.BytesReceived),
		BytesSent:        atomic.LoadInt64(&i.BytesSent),
		Connected:        atomic.LoadInt64(&i.Connected),
		ConnectAttempts:  atomic.LoadInt64(&i.ConnectAttempts),
		ConnectionsLost:  atomic.LoadInt64(&i.ConnectionsLost),
		MessagesReceived: atomic.LoadInt64(&i.MessagesReceived),
		MessagesSent:     atomic.LoadInt64(&i.MessagesSent),
		Inflight:         atomic.LoadInt64(&i.Inflight),
		InflightReceived: atomic.LoadInt64(&i.InflightReceived),
		InflightDropped:  atomic.LoadInt64(&i.InflightDropped),
		PacketsReceived:  atomic.LoadInt64(&i.PacketsReceived),
		PacketsSent:      atomic.LoadInt64(&i.PacketsSent),
		MemoryAlloc:      atomic.LoadInt64(&i.MemoryAlloc),
		Threads:          atomic.LoadInt64(&i.Threads),
	}
}

// Refresh updates the time based and runtime values.
func (i *Info) Refresh(now int64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	atomic.StoreInt64(&i.Time, now)
	atomic.StoreInt64(&i.Uptime, now-atomic.LoadInt64(&i.Started))
	atomic.StoreInt64(&i.MemoryAlloc, int64(m.HeapInuse))
	atomic.StoreInt64(&i.Threads, int64(runtime.NumGoroutine()))
}

// RegisterPrometheusMetrics exposes the counters on a prometheus registry. The
// default registerer is used if registry is nil.
func (i *Info) RegisterPrometheusMetrics(registry prometheus.Registerer) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	type metrics struct {
		metricType string
		name       string
		help       string
		value      *int64
	}

	metricsList := []metrics{
		{"c", "bytes_received", "A counter of total number of bytes received", &i.BytesReceived},
		{"c", "bytes_sent", "A counter of total number of bytes sent", &i.BytesSent},
		{"g", "connected", "A gauge which is 1 while the client is connected", &i.Connected},
		{"c", "connect_attempts", "A counter of transport connections attempted", &i.ConnectAttempts},
		{"c", "connections_lost", "A counter of established connections which ended", &i.ConnectionsLost},
		{"c", "messages_received", "A counter of total number of application messages received", &i.MessagesReceived},
		{"c", "messages_sent", "A counter of total number of publish packets sent", &i.MessagesSent},
		{"g", "inflight", "A gauge of the number of outbound packets awaiting acknowledgement", &i.Inflight},
		{"g", "inflight_received", "A gauge of the number of inbound qos 2 messages awaiting release", &i.InflightReceived},
		{"c", "inflight_dropped", "A counter of in-flight messages discarded by a clean session", &i.InflightDropped},
		{"c", "packets_received", "A counter of the total number of packets received", &i.PacketsReceived},
		{"c", "packets_sent", "A counter of the total number of packets sent", &i.PacketsSent},
		{"g", "memory_alloc", "A gauge of memory currently allocated", &i.MemoryAlloc},
		{"g", "threads", "A gauge of the number of active goroutines", &i.Threads},
	}

	for _, m := range metricsList {
		m := m
		fn := func() float64 {
			return float64(atomic.LoadInt64(m.value))
		}

		switch m.metricType {
		case "c":
			registry.MustRegister(
				prometheus.NewCounterFunc(
					prometheus.CounterOpts{
						Namespace: "mqtt_client",
						Name:      m.name,
						Help:      m.help,
					},
					fn,
				),
			)
		case "g":
			registry.MustRegister(
				prometheus.NewGaugeFunc(
					prometheus.GaugeOpts{
						Namespace: "mqtt_client",
						Name:      m.name,
						Help:      m.help,
					},
					fn,
				),
			)
		}
	}

	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mqtt_client",
			Name:      "build_info",
			Help:      "Build Information",
		},
		[]string{"goversion", "version"},
	)
	registry.MustRegister(buildInfo)
	buildInfo.With(prometheus.Labels{"goversion": runtime.Version(), "version": i.Version}).Set(1)
}
