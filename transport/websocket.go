// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	// ErrInvalidMessage indicates that a message payload was not valid.
	ErrInvalidMessage = errors.New("message type not binary")
)

// Subprotocols requested for each protocol version. MQTT 3.1 brokers expect
// mqttv3.1, while 3.1.1 registered plain mqtt.
var Subprotocols = map[byte]string{
	3: "mqttv3.1",
	4: "mqtt",
}

// Websocket is a dialer for establishing websocket connections.
type Websocket struct {
	config *Config // configuration values for the dialer
}

// NewWebsocket initialises and returns a new Websocket dialer.
func NewWebsocket(config *Config) *Websocket {
	if config == nil {
		config = new(Config)
	}

	return &Websocket{
		config: config,
	}
}

// Dial opens a websocket connection to the URI, requesting the subprotocol for the
// protocol version.
func (d *Websocket) Dial(ctx context.Context, u *url.URL, version byte) (net.Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
		TLSClientConfig:  d.config.TLSConfig,
	}

	if sp, ok := Subprotocols[version]; ok {
		dialer.Subprotocols = []string{sp}
	}

	c, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	return &wsConn{Conn: c.UnderlyingConn(), c: c}, nil
}

// wsConn is a websocket connection which satisfies the net.Conn interface.
type wsConn struct {
	net.Conn
	c  *websocket.Conn
	r  io.Reader  // the reader of the current message, if partially read
	mu sync.Mutex // websocket connections support one concurrent writer
}

// Read reads the next span of bytes from the websocket connection and returns the number of bytes read.
// A message larger than p is returned across several reads.
func (ws *wsConn) Read(p []byte) (int, error) {
	for {
		if ws.r == nil {
			op, r, err := ws.c.NextReader()
			if err != nil {
				return 0, err
			}

			if op != websocket.BinaryMessage {
				return 0, ErrInvalidMessage
			}

			ws.r = r
		}

		n, err := ws.r.Read(p)
		if errors.Is(err, io.EOF) {
			ws.r = nil
			if n == 0 {
				continue
			}
			err = nil
		}

		return n, err
	}
}

// Write writes bytes to the websocket connection as a single binary message.
func (ws *wsConn) Write(p []byte) (int, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	err := ws.c.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}

	return len(p), nil
}

// Close signals the underlying websocket conn to close.
func (ws *wsConn) Close() error {
	return ws.c.Close()
}
