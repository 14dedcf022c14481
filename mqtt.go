// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package mqtt is an MQTT v3.1 and v3.1.1 client. It keeps unacknowledged
// messages in a durable store so that qos 1 and 2 deliveries survive
// reconnects and restarts, fails over across a list of servers, and falls back
// from v3.1.1 to v3.1 when no server accepts the newer protocol.
package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/jinzhu/copier"
	"github.com/rs/xid"

	"github.com/mochi-mqtt/client/packets"
	"github.com/mochi-mqtt/client/storage"
	"github.com/mochi-mqtt/client/system"
	"github.com/mochi-mqtt/client/transport"
)

const (
	Version = "1.0.0" // the current client version.
)

// Client is an MQTT client connection to one of a list of servers.
//
// Every network, timer and user event is processed with the client lock held,
// one at a time. User callbacks are queued while an event is processed and run
// afterwards, in order, on a dedicated goroutine, so they may call back into
// the client.
type Client struct {
	ID       string       // the client identifier sent in CONNECT
	Log      *slog.Logger // minimal no-alloc logger
	Info     *system.Info // counters describing the client's activity
	Store    storage.Store
	hooks    *Hooks
	opts     *Options
	server   string // the server given to New, used when no hosts are given to Connect
	localKey string // identifies this client's session in the store

	mu             sync.Mutex
	notify         []func()        // user callbacks collected while processing an event
	callbacks      *fifo[func()]   // user callbacks waiting to run
	done           chan struct{}   // closed when the client is closed
	callbacksDone  chan struct{}   // closed when the callback goroutine exits
	sent           *Inflight       // outbound packets awaiting acknowledgement
	received       *Inflight       // inbound qos 2 messages awaiting PUBREL
	topics         *TopicsIndex    // handlers of acknowledged subscriptions
	nextID         uint16          // the next packet identifier to try
	sequence       uint64          // the last send sequence assigned
	queue          []queued        // packets waiting to be written once connected
	conn           *connection     // the current transport, nil when neither connecting nor connected
	connectOpts    *ConnectOptions // the options of the current connect call
	connectToken   *Token          // completes when the current connect call succeeds or fails
	connectTimeout *timeout
	hosts          []*url.URL // the servers of the current connect call
	hostIndex      int        // the server being tried
	version        byte       // the protocol version being tried
	explicit       bool       // the protocol version was chosen by the caller
	connected      bool       // a CONNACK accepting the connection has been received
	closed         bool
	sendPinger     *pinger
	receivePinger  *pinger
	tick           time.Duration // the unit of the keepalive interval
}

// queued is a packet waiting in the outbound queue.
type queued struct {
	pk     packets.Packet
	onSent func() // called with the client lock held once the packet is written
}

// New returns a client for the given server URI and client identifier. An
// empty identifier is replaced with a generated one. Any in-flight messages
// left in the store by a previous client with the same server and identifier
// are restored, and are resent when the client next connects.
func New(server, clientID string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}

	opts.ensureDefaults()

	if clientID == "" {
		clientID = xid.New().String()
	}

	if len(clientID) > maxClientIDLength {
		return nil, invalidArgument("client id", len(clientID))
	}

	if !utf8.ValidString(clientID) {
		return nil, wrap(ErrMalformedUnicode, packets.ErrMalformedUTF8)
	}

	uri, err := transport.ParseURI(server, false)
	if err != nil {
		return nil, wrap(ErrInvalidArgument, err)
	}

	cl := &Client{
		ID:    clientID,
		Log:   opts.Logger,
		Store: opts.Store,
		Info: &system.Info{
			Version: Version,
			Started: time.Now().Unix(),
		},
		hooks: &Hooks{
			Log: opts.Logger,
		},
		opts:          opts,
		server:        server,
		localKey:      localKey(uri, clientID),
		callbacks:     newFifo[func()](),
		done:          make(chan struct{}),
		callbacksDone: make(chan struct{}),
		sent:          NewInflights(),
		received:      NewInflights(),
		topics:        NewTopicsIndex(),
		nextID:        1,
		tick:          time.Second,
	}

	cl.sendPinger = newPinger(cl, "send")
	cl.receivePinger = newPinger(cl, "receive")

	cl.Store.SetLogger(cl.Log)
	if err := cl.Store.Init(opts.StoreConfig); err != nil {
		return nil, fmt.Errorf("failed initialising %s store: %w", cl.Store.ID(), err)
	}

	if err := cl.restore(); err != nil {
		_ = cl.Store.Stop()
		return nil, err
	}

	go cl.runCallbacks()

	return cl, nil
}

// AddHook attaches a new Hook to the client. Ideally, this should be called
// before the client is connected.
func (cl *Client) AddHook(hook Hook, config any) error {
	nl := cl.Log.With("hook", hook.ID())
	hook.SetOpts(nl, &HookOptions{
		ClientID: cl.ID,
		LocalKey: cl.localKey,
	})

	cl.Log.Info("added hook", "hook", hook.ID())
	return cl.hooks.Add(hook, config)
}

// Connect starts connecting to the first server. The returned token completes
// when a server accepts the connection, or fails once every server (and, if
// the version was not given, both protocol versions) has been tried. A nil
// opts uses the defaults of NewConnectOptions.
func (cl *Client) Connect(opts *ConnectOptions) (*Token, error) {
	o := NewConnectOptions()
	if opts != nil {
		if err := copier.CopyWithOption(o, opts, copier.Option{DeepCopy: true}); err != nil {
			return nil, wrap(ErrInvalidArgument, err)
		}
	}

	o.ensureDefaults()
	if err := o.Validate(); err != nil {
		return nil, err
	}

	hosts := o.Hosts
	if len(hosts) == 0 {
		hosts = []string{cl.server}
	}

	uris := make([]*url.URL, 0, len(hosts))
	for _, h := range hosts {
		uri, err := transport.ParseURI(h, o.UseSSL)
		if err != nil {
			return nil, wrap(ErrInvalidArgument, err)
		}
		uris = append(uris, uri)
	}

	cl.lock()
	defer cl.unlock()

	if cl.closed {
		return nil, ErrClientClosed
	}

	if cl.connected {
		return nil, ErrAlreadyConnected
	}

	if cl.conn != nil {
		return nil, ErrAlreadyConnecting
	}

	cl.connectOpts = o
	cl.hosts = uris
	cl.hostIndex = 0
	cl.explicit = o.MQTTVersion != 0
	cl.version = o.MQTTVersion
	if !cl.explicit {
		cl.version = packets.Version311
	}

	interval := time.Duration(o.KeepAlive) * cl.tick
	cl.sendPinger.interval = interval
	cl.receivePinger.interval = interval

	cl.connectToken = newToken()
	tk := cl.connectToken
	cl.doConnect()

	return tk, nil
}

// Subscribe requests a subscription to a topic filter. The returned token
// completes with the granted qos values when the server acknowledges it.
func (cl *Client) Subscribe(filter string, opts *SubscribeOptions) (*SubscribeToken, error) {
	if opts == nil {
		opts = new(SubscribeOptions)
	}

	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	if opts.Qos > 2 {
		return nil, invalidArgument("qos", opts.Qos)
	}

	cl.lock()
	defer cl.unlock()

	if !cl.connected {
		return nil, ErrNotConnected
	}

	f := &Flight{
		Packet: packets.Packet{
			FixedHeader: packets.FixedHeader{
				Type: packets.Subscribe,
				Qos:  1,
			},
			Topics: []string{filter},
			Qoss:   []byte{opts.Qos},
		},
		sub:     newSubscribeToken(),
		handler: opts.OnMessage,
	}

	if err := cl.requiresAck(f); err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		id := f.Packet.PacketID
		f.timeout = newTimeout(cl, opts.Timeout, func() {
			cl.expire(id, ErrSubscribeTimeout)
		})
	}

	cl.scheduleMessage(f.Packet, nil)

	return f.sub, nil
}

// Unsubscribe removes a subscription to a topic filter. The returned token
// completes when the server acknowledges it.
func (cl *Client) Unsubscribe(filter string, opts *UnsubscribeOptions) (*Token, error) {
	if opts == nil {
		opts = new(UnsubscribeOptions)
	}

	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	cl.lock()
	defer cl.unlock()

	if !cl.connected {
		return nil, ErrNotConnected
	}

	f := &Flight{
		Packet: packets.Packet{
			FixedHeader: packets.FixedHeader{
				Type: packets.Unsubscribe,
				Qos:  1,
			},
			Topics: []string{filter},
		},
		token: newToken(),
	}

	if err := cl.requiresAck(f); err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		id := f.Packet.PacketID
		f.timeout = newTimeout(cl, opts.Timeout, func() {
			cl.expire(id, ErrUnsubscribeTimeout)
		})
	}

	cl.scheduleMessage(f.Packet, nil)

	return f.token, nil
}

// Publish sends an application message. The message is copied, so it may be
// reused once Publish returns. The returned token completes when the message
// has been handed to the transport (qos 0) or acknowledged by the server
// (qos 1 and 2).
func (cl *Client) Publish(msg *Message) (*Token, error) {
	if msg == nil {
		return nil, invalidArgument("message", nil)
	}

	if err := msg.validate(); err != nil {
		return nil, err
	}

	if 2+len(msg.Topic)+2+len(msg.Payload) > packets.MaxRemainingLength {
		return nil, wrap(ErrMessageTooLarge, packets.ErrPacketTooLarge)
	}

	m := new(Message)
	if err := copier.CopyWithOption(m, msg, copier.Option{DeepCopy: true}); err != nil {
		return nil, wrap(ErrInvalidArgument, err)
	}
	m.Duplicate = false

	cl.lock()
	defer cl.unlock()

	if !cl.connected {
		return nil, ErrNotConnected
	}

	tk := newToken()
	if m.Qos == 0 {
		cl.scheduleMessage(m.packet(), func() {
			cl.delivered(m)
			tk.complete(nil)
		})
		return tk, nil
	}

	f := &Flight{
		Packet: m.packet(),
		token:  tk,
	}

	if err := cl.requiresAck(f); err != nil {
		return nil, err
	}

	cl.hooks.OnQosPublish(cl, f.Packet, f.Sequence)
	cl.scheduleMessage(f.Packet, nil)

	return tk, nil
}

// Disconnect ends the connection. While connected, a DISCONNECT packet is
// written and the connection closed once it has been flushed; the connection
// lost callback is then called with a nil error. While connecting, the
// attempt is aborted and the connect token fails with ErrConnectAborted.
func (cl *Client) Disconnect() error {
	cl.lock()
	defer cl.unlock()

	if cl.conn == nil {
		return ErrNotConnectingConnected
	}

	if !cl.connected {
		cl.disconnected(ErrConnectAborted)
		return nil
	}

	cl.scheduleMessage(packets.Packet{
		FixedHeader: packets.FixedHeader{
			Type: packets.Disconnect,
		},
	}, nil)

	if cl.conn != nil {
		cl.conn.drain()
		cl.disconnected(nil)
	}

	return nil
}

// IsConnected returns true if the server has accepted the connection and it
// has not since been lost.
func (cl *Client) IsConnected() bool {
	cl.lock()
	defer cl.unlock()
	return cl.connected
}

// Inflight returns the number of outbound packets awaiting acknowledgement.
func (cl *Client) Inflight() int {
	return cl.sent.Len()
}

// Close disconnects the client if needed, then stops the hooks and the store.
// Queued user callbacks are run before Close returns.
func (cl *Client) Close() error {
	err := cl.Disconnect()
	if err != nil && !errors.Is(err, ErrNotConnectingConnected) {
		cl.Log.Debug("problem disconnecting on close", "error", err, "client", cl.ID)
	}

	cl.lock()
	if cl.closed {
		cl.unlock()
		return nil
	}
	cl.closed = true
	cl.unlock()

	close(cl.done)
	<-cl.callbacksDone

	if cl.hooks.Len() > 0 {
		cl.hooks.Stop()
	}

	cl.Log.Info("mochi mqtt client closed", "client", cl.ID)
	return cl.Store.Stop()
}

// lock begins processing an event.
func (cl *Client) lock() {
	cl.mu.Lock()
}

// unlock ends processing an event, handing any user callbacks it produced to
// the callback goroutine.
func (cl *Client) unlock() {
	fns := cl.notify
	cl.notify = nil
	cl.callbacks.push(fns...)
	cl.mu.Unlock()
}

// runCallbacks runs user callbacks in the order they were produced until the
// client is closed.
func (cl *Client) runCallbacks() {
	defer close(cl.callbacksDone)
	for {
		for _, fn := range cl.callbacks.take() {
			fn()
		}

		select {
		case <-cl.callbacks.wake:
		case <-cl.done:
			for _, fn := range cl.callbacks.take() {
				fn()
			}
			return
		}
	}
}

// later queues a user callback to run once the current event has been processed.
func (cl *Client) later(fn func()) {
	cl.notify = append(cl.notify, fn)
}

// delivered reports a published message as delivered.
func (cl *Client) delivered(m *Message) {
	if cl.opts.OnMessageDelivered != nil {
		cl.later(func() {
			cl.opts.OnMessageDelivered(m)
		})
	}
}

// validateFilter checks a topic filter is usable in SUBSCRIBE or UNSUBSCRIBE.
func validateFilter(filter string) error {
	if !IsValidFilter(filter, false) {
		return invalidArgument("filter", filter)
	}

	if _, err := packets.EncodeUTF8(filter); err != nil {
		return wrap(ErrMalformedUnicode, err)
	}

	return nil
}

// refreshInflight updates the in-flight gauges.
func (cl *Client) refreshInflight() {
	atomic.StoreInt64(&cl.Info.Inflight, int64(cl.sent.Len()))
	atomic.StoreInt64(&cl.Info.InflightReceived, int64(cl.received.Len()))
}
