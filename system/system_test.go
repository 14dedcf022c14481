// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-co
// SPDX-FileContributor: mochi-co

package system

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestClone(t *testing.T) {
	o := &Info{
		Version:          "version",
		Started:          1,
		Time:             2,
		Uptime:           3,
		BytesReceived:    4,
		BytesSent:        5,
		Connected:        1,
		ConnectAttempts:  6,
		ConnectionsLost:  7,
		MessagesReceived: 8,
		MessagesSent:     9,
		Inflight:         10,
		InflightReceived: 11,
		InflightDropped:  12,
		PacketsReceived:  13,
		PacketsSent:      14,
		MemoryAlloc:      15,
		Threads:          16,
	}

	n := o.Clone()

	require.Equal(t, o, n)
}

func TestRefresh(t *testing.T) {
	o := &Info{Started: 100}
	o.Refresh(160)
	require.Equal(t, int64(160), o.Time)
	require.Equal(t, int64(60), o.Uptime)
	require.Greater(t, o.Threads, int64(0))
	require.Greater(t, o.MemoryAlloc, int64(0))
}

func TestRegisterPrometheusMetrics(t *testing.T) {
	o := &Info{Version: "test", PacketsSent: 3, Connected: 1}
	reg := prometheus.NewRegistry()
	o.RegisterPrometheusMetrics(reg)

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP mqtt_client_packets_sent A counter of the total number of packets sent
# TYPE mqtt_client_packets_sent counter
mqtt_client_packets_sent 3
# HELP mqtt_client_connected A gauge which is 1 while the client is connected
# TYPE mqtt_client_connected gauge
mqtt_client_connected 1
`), "mqtt_client_packets_sent", "mqtt_client_connected")
	require.NoError(t, err)
}
