// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package transport opens the byte-stream connections the client speaks MQTT over.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
)

var (
	// ErrUnsupportedScheme indicates a server URI used a scheme with no registered dialer.
	ErrUnsupportedScheme = errors.New("unsupported uri scheme")

	// ErrInvalidURI indicates a server URI could not be parsed into a host and port.
	ErrInvalidURI = errors.New("invalid server uri")
)

// DefaultPath is the websocket path used when a ws/wss URI has none.
const DefaultPath = "/mqtt"

// Config contains configuration values for a dialer.
type Config struct {
	// TLSConfig is a tls.Config configuration to be used with the ssl and wss schemes.
	TLSConfig *tls.Config
}

// Dialer opens a connection to the server addressed by a URI. The protocol
// version is passed so that transports which negotiate a subprotocol can
// request the matching one.
type Dialer interface {
	Dial(ctx context.Context, u *url.URL, version byte) (net.Conn, error)
}

// Transports routes a dial to the dialer registered for the URI scheme.
type Transports struct {
	sync.RWMutex
	internal map[string]Dialer // dialers keyed on uri scheme
}

// New returns Transports with the tcp and websocket dialers registered for every
// scheme the client understands.
func New(config *Config) *Transports {
	if config == nil {
		config = new(Config)
	}

	t := &Transports{
		internal: map[string]Dialer{},
	}

	tcp := NewTCP(config)
	for _, scheme := range []string{"tcp", "mqtt", "ssl", "tls", "mqtts"} {
		t.Add(scheme, tcp)
	}

	ws := NewWebsocket(config)
	t.Add("ws", ws)
	t.Add("wss", ws)

	return t
}

// Add registers a dialer for a scheme.
func (t *Transports) Add(scheme string, d Dialer) {
	t.Lock()
	defer t.Unlock()
	t.internal[strings.ToLower(scheme)] = d
}

// Get returns the dialer registered for a scheme, if it exists.
func (t *Transports) Get(scheme string) (Dialer, bool) {
	t.RLock()
	defer t.RUnlock()
	d, ok := t.internal[strings.ToLower(scheme)]
	return d, ok
}

// Len returns the number of registered schemes.
func (t *Transports) Len() int {
	t.RLock()
	defer t.RUnlock()
	return len(t.internal)
}

// Dial dials the URI using the dialer registered for its scheme.
func (t *Transports) Dial(ctx context.Context, u *url.URL, version byte) (net.Conn, error) {
	d, ok := t.Get(u.Scheme)
	if !ok {
		return nil, ErrUnsupportedScheme
	}

	return d.Dial(ctx, u, version)
}

// secure indicates whether a scheme runs over tls.
func secure(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "ssl", "tls", "mqtts", "wss":
		return true
	}
	return false
}

// defaultPorts are the ports used when a URI does not name one.
var defaultPorts = map[string]string{
	"tcp":   "1883",
	"mqtt":  "1883",
	"ssl":   "8883",
	"tls":   "8883",
	"mqtts": "8883",
	"ws":    "80",
	"wss":   "443",
}

// ParseURI parses a server address into a URI. A bare host:port is treated as
// tcp. When useSSL is set a plain scheme is upgraded to its tls counterpart
// (tcp and mqtt to ssl, ws to wss). Missing ports are filled from the scheme
// default, and websocket URIs without a path use DefaultPath.
func ParseURI(server string, useSSL bool) (*url.URL, error) {
	if !strings.Contains(server, "://") {
		server = "tcp://" + server
	}

	u, err := url.Parse(server)
	if err != nil {
		return nil, errors.Join(ErrInvalidURI, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	port, ok := defaultPorts[u.Scheme]
	if !ok {
		return nil, ErrUnsupportedScheme
	}

	if u.Hostname() == "" {
		return nil, ErrInvalidURI
	}

	if useSSL {
		switch u.Scheme {
		case "tcp", "mqtt":
			u.Scheme = "ssl"
		case "ws":
			u.Scheme = "wss"
		}
		if u.Port() == "" {
			port = defaultPorts[u.Scheme]
		}
	}

	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}

	if (u.Scheme == "ws" || u.Scheme == "wss") && (u.Path == "" || u.Path == "/") {
		u.Path = DefaultPath
	}

	return u, nil
}
