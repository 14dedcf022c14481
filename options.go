// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"crypto/tls"
	"log/slog"
	"os"
	"time"

	"github.com/mochi-mqtt/client/packets"
	"github.com/mochi-mqtt/client/storage"
	"github.com/mochi-mqtt/client/transport"
)

const (
	defaultKeepAlive      = 60               // seconds
	defaultConnectTimeout = 30 * time.Second // time allowed for CONNACK to arrive
	defaultReadBufferSize = 1024 * 4         // the size of the transport read buffer
	maxClientIDLength     = 65535            // bytes of utf-8
)

// Options contains configurable options for the client.
type Options struct {
	// Logger specifies a custom configured implementation of log/slog to override
	// the client's default logger configuration.
	Logger *slog.Logger `yaml:"-" json:"-"`

	// Store is the durable store used to persist in-flight messages. An in-memory
	// store is used if not set.
	Store storage.Store `yaml:"-" json:"-"`

	// StoreConfig is passed to Store.Init.
	StoreConfig any `yaml:"-" json:"-"`

	// Dialer opens transport connections. By default the tcp, tls and websocket
	// dialers of the transport package are used.
	Dialer transport.Dialer `yaml:"-" json:"-"`

	// TLSConfig is used by the default dialer for the ssl and wss schemes.
	TLSConfig *tls.Config `yaml:"-" json:"-"`

	// ReadBufferSize is the size of the buffer used for each transport read.
	ReadBufferSize int `yaml:"read_buffer_size" json:"read_buffer_size"`

	// OnMessageArrived is called for each application message received.
	OnMessageArrived func(msg *Message) `yaml:"-" json:"-"`

	// OnMessageDelivered is called when a published message has been handed to the
	// transport (qos 0) or acknowledged by the server (qos 1 and 2).
	OnMessageDelivered func(msg *Message) `yaml:"-" json:"-"`

	// OnConnectionLost is called when an established connection ends. The error is
	// nil if the connection ended because Disconnect was called.
	OnConnectionLost func(err error) `yaml:"-" json:"-"`
}

// ensureDefaults ensures that the client starts with sane default values, if none are provided.
func (o *Options) ensureDefaults() {
	if o.Logger == nil {
		log := slog.New(slog.NewTextHandler(os.Stdout, nil))
		o.Logger = log
	}

	if o.Store == nil {
		o.Store = storage.NewMemory()
	}

	if o.Dialer == nil {
		o.Dialer = transport.New(&transport.Config{
			TLSConfig: o.TLSConfig,
		})
	}

	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = defaultReadBufferSize
	}
}

// ConnectOptions contains the options of a single Connect call. Use
// NewConnectOptions to start from the defaults: a clean session, a 60 second
// keepalive and a 30 second connect timeout.
type ConnectOptions struct {
	// Hosts is an ordered list of server URIs tried in turn until one accepts the
	// connection. When empty the server given to New is used.
	Hosts []string `yaml:"hosts" json:"hosts"`

	// Username and Password are sent in CONNECT when set. A password requires a username.
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	// Will is published by the server if the client disconnects unexpectedly.
	Will *Message `yaml:"will" json:"will"`

	// Timeout is the time allowed for the server to accept the connection.
	// Zero uses the default of 30 seconds.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// KeepAlive is the keepalive interval in seconds. Zero disables keepalive.
	KeepAlive int `yaml:"keepalive" json:"keepalive"`

	// MQTTVersion is 3 (MQTT 3.1) or 4 (MQTT 3.1.1). Zero tries 4 first, then
	// falls back to 3 if no host accepts the connection.
	MQTTVersion byte `yaml:"mqtt_version" json:"mqtt_version"`

	// CleanSession discards any existing session state on connect.
	CleanSession bool `yaml:"clean_session" json:"clean_session"`

	// UseSSL upgrades plain schemes to tls (tcp to ssl, ws to wss).
	UseSSL bool `yaml:"use_ssl" json:"use_ssl"`
}

// NewConnectOptions returns connect options holding the default values.
func NewConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		CleanSession: true,
		KeepAlive:    defaultKeepAlive,
		Timeout:      defaultConnectTimeout,
	}
}

// ensureDefaults ensures that the connect options start with sane default values, if none are provided.
func (o *ConnectOptions) ensureDefaults() {
	if o.Timeout == 0 {
		o.Timeout = defaultConnectTimeout
	}
}

// Validate checks the connect options, returning an ErrInvalidArgument error
// naming the first invalid option.
func (o *ConnectOptions) Validate() error {
	if o.KeepAlive < 0 || o.KeepAlive > 65535 {
		return invalidArgument("keepalive", o.KeepAlive)
	}

	if o.Timeout < 0 {
		return invalidArgument("timeout", o.Timeout)
	}

	if o.MQTTVersion != 0 && o.MQTTVersion != packets.Version31 && o.MQTTVersion != packets.Version311 {
		return invalidArgument("mqtt_version", o.MQTTVersion)
	}

	if o.Password != "" && o.Username == "" {
		return invalidArgument("password", "<set without username>")
	}

	if len(o.Username) > 65535 || len(o.Password) > 65535 {
		return invalidArgument("username", "<too long>")
	}

	if o.Will != nil {
		if err := o.Will.validate(); err != nil {
			return err
		}

		if len(o.Will.Payload) > 65535 {
			return invalidArgument("will payload", len(o.Will.Payload))
		}
	}

	for _, h := range o.Hosts {
		if _, err := transport.ParseURI(h, o.UseSSL); err != nil {
			return wrap(ErrInvalidArgument, err)
		}
	}

	return nil
}

// SubscribeOptions contains the options of a single Subscribe call.
type SubscribeOptions struct {
	// Qos is the maximum quality of service requested for the subscription.
	Qos byte `yaml:"qos" json:"qos"`

	// Timeout fails the subscription if no SUBACK arrives in time. Zero waits indefinitely.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// OnMessage, if set, receives the messages matching the filter once the
	// server has granted the subscription, until it is unsubscribed.
	OnMessage MessageHandler `yaml:"-" json:"-"`
}

// UnsubscribeOptions contains the options of a single Unsubscribe call.
type UnsubscribeOptions struct {
	// Timeout fails the unsubscribe if no UNSUBACK arrives in time. Zero waits indefinitely.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}
