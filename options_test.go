// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOptionsEnsureDefaults(t *testing.T) {
	o := new(Options)
	o.ensureDefaults()
	require.NotNil(t, o.Logger)
	require.NotNil(t, o.Store)
	require.NotNil(t, o.Dialer)
	require.Equal(t, defaultReadBufferSize, o.ReadBufferSize)
}

func TestOptionsEnsureDefaultsKeepsValues(t *testing.T) {
	o := &Options{ReadBufferSize: 512, Logger: logger}
	o.ensureDefaults()
	require.Equal(t, 512, o.ReadBufferSize)
	require.Equal(t, logger, o.Logger)
}

func TestNewConnectOptions(t *testing.T) {
	o := NewConnectOptions()
	require.True(t, o.CleanSession)
	require.Equal(t, defaultKeepAlive, o.KeepAlive)
	require.Equal(t, defaultConnectTimeout, o.Timeout)
	require.Equal(t, byte(0), o.MQTTVersion)
	require.NoError(t, o.Validate())
}

func TestConnectOptionsEnsureDefaults(t *testing.T) {
	o := new(ConnectOptions)
	o.ensureDefaults()
	require.Equal(t, defaultConnectTimeout, o.Timeout)
	require.Equal(t, 0, o.KeepAlive)

	o = &ConnectOptions{Timeout: time.Second}
	o.ensureDefaults()
	require.Equal(t, time.Second, o.Timeout)
}

func TestConnectOptionsValidate(t *testing.T) {
	long := string(make([]byte, 65536))

	tt := []struct {
		desc string
		opts ConnectOptions
		ok   bool
	}{
		{"defaults", *NewConnectOptions(), true},
		{"keepalive disabled", ConnectOptions{KeepAlive: 0}, true},
		{"keepalive max", ConnectOptions{KeepAlive: 65535}, true},
		{"keepalive negative", ConnectOptions{KeepAlive: -1}, false},
		{"keepalive too large", ConnectOptions{KeepAlive: 65536}, false},
		{"timeout negative", ConnectOptions{Timeout: -1}, false},
		{"version 3", ConnectOptions{MQTTVersion: 3}, true},
		{"version 4", ConnectOptions{MQTTVersion: 4}, true},
		{"version 5", ConnectOptions{MQTTVersion: 5}, false},
		{"username only", ConnectOptions{Username: "mochi"}, true},
		{"username and password", ConnectOptions{Username: "mochi", Password: "secret"}, true},
		{"password only", ConnectOptions{Password: "secret"}, false},
		{"username too long", ConnectOptions{Username: long}, false},
		{"will", ConnectOptions{Will: NewMessage("a/b", "gone")}, true},
		{"will wildcard", ConnectOptions{Will: NewMessage("a/#", "gone")}, false},
		{"will payload too long", ConnectOptions{Will: &Message{Topic: "a", Payload: []byte(long)}}, false},
		{"hosts", ConnectOptions{Hosts: []string{"tcp://a:1883", "ws://b/mqtt", "c"}}, true},
		{"bad host", ConnectOptions{Hosts: []string{"gopher://a"}}, false},
	}

	for _, tx := range tt {
		t.Run(tx.desc, func(t *testing.T) {
			err := tx.opts.Validate()
			if tx.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidArgument)
			}
		})
	}
}
