// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/mochi-mqtt/client/mempool"
	"github.com/mochi-mqtt/client/packets"
)

// connection is a single transport connection attempt. Events from its dial,
// read and write goroutines are ignored once it is no longer the client's
// current connection.
type connection struct {
	cl      *Client
	uri     *url.URL
	version byte
	cancel  context.CancelFunc // aborts the dial
	conn    net.Conn           // nil until the dial completes
	buf     []byte             // bytes of an incomplete frame
	out     *fifo[[]byte]      // encoded packets waiting to be written
	stop    chan struct{}      // closed to end the write loop without flushing
	once    sync.Once
	mu      sync.Mutex
	closing bool // write the queued packets, then close
}

// newConnection returns a connection attempt to a server.
func newConnection(cl *Client, uri *url.URL, version byte, cancel context.CancelFunc) *connection {
	return &connection{
		cl:      cl,
		uri:     uri,
		version: version,
		cancel:  cancel,
		out:     newFifo[[]byte](),
		stop:    make(chan struct{}),
	}
}

// dial opens the transport and reports the outcome to the client.
func (c *connection) dial(ctx context.Context) {
	conn, err := c.cl.opts.Dialer.Dial(ctx, c.uri, c.version)
	c.cl.onDialed(c, conn, err)
}

// write queues encoded packet bytes for the write loop.
func (c *connection) write(b []byte) {
	c.out.push(b)
}

// readLoop reads from the transport until it fails, handing each chunk to the client.
func (c *connection) readLoop() {
	buf := make([]byte, c.cl.opts.ReadBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.cl.onBytes(c, chunk)
		}

		if err != nil {
			c.cl.onSocketError(c, err)
			return
		}
	}
}

// writeLoop writes queued packets in order until the connection is closed.
func (c *connection) writeLoop() {
	for {
		for _, b := range c.out.take() {
			if _, err := c.conn.Write(b); err != nil {
				c.cl.onSocketError(c, err)
				c.shutdown()
				return
			}
		}

		c.mu.Lock()
		closing := c.closing
		c.mu.Unlock()
		if closing && c.out.len() == 0 {
			c.shutdown()
			return
		}

		select {
		case <-c.out.wake:
		case <-c.stop:
			return
		}
	}
}

// drain closes the connection once every queued packet has been written.
func (c *connection) drain() {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		c.shutdown()
		return
	}

	c.closing = true
	c.mu.Unlock()

	select {
	case c.out.wake <- struct{}{}:
	default:
	}
}

// close closes the connection immediately, abandoning queued packets. A
// draining connection is left for the write loop to close.
func (c *connection) close() {
	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()

	if !closing {
		c.shutdown()
	}
}

// shutdown releases the transport. It is safe to call more than once.
func (c *connection) shutdown() {
	c.once.Do(func() {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		c.cancel()
		close(c.stop)
		if conn != nil {
			_ = conn.Close()
		}
	})
}

// doConnect starts a connection attempt to the current host.
func (cl *Client) doConnect() {
	uri := cl.hosts[cl.hostIndex]
	ctx, cancel := context.WithCancel(context.Background())
	c := newConnection(cl, uri, cl.version, cancel)
	cl.conn = c
	atomic.AddInt64(&cl.Info.ConnectAttempts, 1)
	cl.Log.Debug("connecting", "client", cl.ID, "server", uri.String(), "version", cl.version)

	cl.connectTimeout = newTimeout(cl, cl.connectOpts.Timeout, func() {
		cl.disconnected(ErrConnectTimeout)
	})

	go c.dial(ctx)
}

// onDialed starts the session on a newly opened transport by sending CONNECT.
func (cl *Client) onDialed(c *connection, conn net.Conn, err error) {
	cl.lock()
	defer cl.unlock()

	if cl.conn != c {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		cl.disconnected(wrap(ErrSocketError, err))
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()
	go c.writeLoop()

	pk := cl.connectPacket()
	if err := cl.socketSend(pk); err != nil {
		cl.disconnected(wrap(ErrInternalError, err))
		return
	}

	cl.hooks.OnConnect(cl, pk)
}

// connectPacket returns the CONNECT packet for the current attempt.
func (cl *Client) connectPacket() packets.Packet {
	o := cl.connectOpts
	pk := packets.Packet{
		FixedHeader:      packets.NewFixedHeader(packets.Connect),
		ProtocolVersion:  cl.version,
		ClientIdentifier: cl.ID,
		CleanSession:     o.CleanSession,
		Keepalive:        uint16(o.KeepAlive),
	}

	if o.Will != nil {
		pk.WillFlag = true
		pk.WillTopic = o.Will.Topic
		pk.WillMessage = o.Will.Payload
		pk.WillQos = o.Will.Qos
		pk.WillRetain = o.Will.Retained
	}

	if o.Username != "" {
		pk.UsernameFlag = true
		pk.Username = []byte(o.Username)
	}

	if o.Password != "" {
		pk.PasswordFlag = true
		pk.Password = []byte(o.Password)
	}

	return pk
}

// onBytes appends a chunk of received data to any incomplete frame and
// handles every complete packet, in order.
func (cl *Client) onBytes(c *connection, chunk []byte) {
	cl.lock()
	defer cl.unlock()

	if cl.conn != c {
		return
	}

	atomic.AddInt64(&cl.Info.BytesReceived, int64(len(chunk)))
	cl.receivePinger.reset()

	buf := chunk
	if len(c.buf) > 0 {
		buf = append(c.buf, chunk...)
	}

	offset := 0
	for offset < len(buf) {
		pk, next, err := packets.Decode(buf, offset)
		if err != nil {
			cl.disconnected(wrap(ErrInternalError, err))
			return
		}

		if pk == nil {
			break
		}

		offset = next
		cl.handlePacket(*pk)
		if cl.conn != c {
			return
		}
	}

	c.buf = append([]byte(nil), buf[offset:]...)
}

// onSocketError handles the failure or closure of a transport.
func (cl *Client) onSocketError(c *connection, err error) {
	cl.lock()
	defer cl.unlock()

	if cl.conn != c {
		return
	}

	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		cl.disconnected(ErrSocketClosed)
		return
	}

	cl.disconnected(wrap(ErrSocketError, err))
}

// disconnected tears down the current transport, then tries the next host,
// reports a lost connection, falls back to MQTT 3.1, or fails the connect
// call, in that order of preference. err is nil when the client disconnected
// on request.
func (cl *Client) disconnected(err error) {
	cl.sendPinger.cancel()
	cl.receivePinger.cancel()
	if cl.connectTimeout != nil {
		cl.connectTimeout.cancel()
		cl.connectTimeout = nil
	}

	cl.queue = nil

	if cl.conn != nil {
		cl.conn.close()
		cl.conn = nil
		cl.hooks.OnDisconnect(cl, err)
	}

	aborted := errors.Is(err, ErrConnectAborted)
	if !aborted && cl.hostIndex < len(cl.hosts)-1 {
		cl.Log.Debug("trying next server", "client", cl.ID, "error", err)
		cl.hostIndex++
		cl.doConnect()
		return
	}

	if cl.connected {
		cl.connected = false
		atomic.StoreInt64(&cl.Info.Connected, 0)
		atomic.AddInt64(&cl.Info.ConnectionsLost, 1)
		cl.Log.Info("connection lost", "client", cl.ID, "error", err)
		cl.hooks.OnConnectionLost(cl, err)
		if cl.opts.OnConnectionLost != nil {
			cl.later(func() {
				cl.opts.OnConnectionLost(err)
			})
		}
		return
	}

	if !aborted && !cl.explicit && cl.version == packets.Version311 {
		cl.Log.Debug("falling back to mqtt 3.1", "client", cl.ID, "error", err)
		cl.version = packets.Version31
		cl.hostIndex = 0
		cl.doConnect()
		return
	}

	cl.Log.Warn("connect failed", "client", cl.ID, "error", err)
	if cl.connectToken != nil {
		cl.connectToken.complete(err)
		cl.connectToken = nil
	}
}

// scheduleMessage queues a packet, writing the queue straight away if connected.
func (cl *Client) scheduleMessage(pk packets.Packet, onSent func()) {
	cl.queue = append(cl.queue, queued{pk: pk, onSent: onSent})
	if cl.connected {
		cl.processQueue()
	}
}

// processQueue writes every queued packet in order.
func (cl *Client) processQueue() {
	for len(cl.queue) > 0 {
		q := cl.queue[0]
		cl.queue = cl.queue[1:]
		if err := cl.socketSend(q.pk); err != nil {
			cl.disconnected(wrap(ErrInternalError, err))
			return
		}

		if q.onSent != nil {
			q.onSent()
		}
	}
}

// socketSend writes a packet and resets the send pinger.
func (cl *Client) socketSend(pk packets.Packet) error {
	if err := cl.write(pk); err != nil {
		return err
	}

	cl.sendPinger.reset()
	return nil
}

// write encodes a packet and hands it to the current transport.
func (cl *Client) write(pk packets.Packet) error {
	if cl.conn == nil {
		return ErrNotConnectingConnected
	}

	pk = cl.hooks.OnPacketEncode(cl, pk)

	b, err := mempool.Encode(pk.Encode)
	if err != nil {
		return err
	}

	cl.conn.write(b)

	atomic.AddInt64(&cl.Info.BytesSent, int64(len(b)))
	atomic.AddInt64(&cl.Info.PacketsSent, 1)
	if pk.FixedHeader.Type == packets.Publish {
		atomic.AddInt64(&cl.Info.MessagesSent, 1)
	}

	cl.hooks.OnPacketSent(cl, pk, b)
	return nil
}
