// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co, thedevop, dgduncan

package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mochi-mqtt/client/packets"
)

const (
	SetOptions byte = iota
	OnConnect
	OnSessionEstablished
	OnConnectionLost
	OnDisconnect
	OnPacketRead
	OnPacketEncode
	OnPacketSent
	OnMessageArrived
	OnSubscribed
	OnUnsubscribed
	OnQosPublish
	OnQosComplete
	OnQosDropped
	OnPacketIDExhausted
)

var (
	// ErrInvalidConfigType indicates a different Type of config value was expected to what was received.
	ErrInvalidConfigType = errors.New("invalid config type provided")
)

// Hook provides an interface of handlers for different events which occur
// during the lifecycle of the client. Hooks are called while the client is
// processing an event, and must not call back into the client.
type Hook interface {
	ID() string
	Provides(b byte) bool
	Init(config any) error
	Stop() error
	SetOpts(l *slog.Logger, o *HookOptions)
	OnConnect(cl *Client, pk packets.Packet)
	OnSessionEstablished(cl *Client, pk packets.Packet)
	OnConnectionLost(cl *Client, err error)
	OnDisconnect(cl *Client, err error)
	OnPacketRead(cl *Client, pk packets.Packet) (packets.Packet, error) // triggers when a new packet is received from the server, before it is handled
	OnPacketEncode(cl *Client, pk packets.Packet) packets.Packet        // modify a packet before it is byte-encoded and written to the server
	OnPacketSent(cl *Client, pk packets.Packet, b []byte)               // triggers when packet bytes have been handed to the transport
	OnMessageArrived(cl *Client, pk packets.Packet)
	OnSubscribed(cl *Client, pk packets.Packet, reasonCodes []byte)
	OnUnsubscribed(cl *Client, pk packets.Packet)
	OnQosPublish(cl *Client, pk packets.Packet, sequence uint64)
	OnQosComplete(cl *Client, pk packets.Packet)
	OnQosDropped(cl *Client, pk packets.Packet)
	OnPacketIDExhausted(cl *Client, pk packets.Packet)
}

// HookOptions contains values which are inherited from the client on initialisation.
type HookOptions struct {
	ClientID string
	LocalKey string
}

// Hooks is a slice of Hook interfaces to be called in sequence.
type Hooks struct {
	Log        *slog.Logger   // a logger for the hook (from the client)
	internal   atomic.Value   // a slice of []Hook
	wg         sync.WaitGroup // a waitgroup for syncing hook shutdown
	qty        int64          // the number of hooks in use
	sync.Mutex                // a mutex for locking when adding hooks
}

// Len returns the number of hooks added.
func (h *Hooks) Len() int64 {
	return atomic.LoadInt64(&h.qty)
}

// Provides returns true if any one hook provides any of the requested hook methods.
func (h *Hooks) Provides(b ...byte) bool {
	for _, hook := range h.GetAll() {
		for _, hb := range b {
			if hook.Provides(hb) {
				return true
			}
		}
	}

	return false
}

// Add adds and initializes a new hook.
func (h *Hooks) Add(hook Hook, config any) error {
	h.Lock()
	defer h.Unlock()

	err := hook.Init(config)
	if err != nil {
		return fmt.Errorf("failed initialising %s hook: %w", hook.ID(), err)
	}

	i, ok := h.internal.Load().([]Hook)
	if !ok {
		i = []Hook{}
	}

	i = append(i, hook)
	h.internal.Store(i)
	atomic.AddInt64(&h.qty, 1)
	h.wg.Add(1)

	return nil
}

// GetAll returns a slice of all the hooks.
func (h *Hooks) GetAll() []Hook {
	i, ok := h.internal.Load().([]Hook)
	if !ok {
		return []Hook{}
	}

	return i
}

// Stop indicates all attached hooks to gracefully end.
func (h *Hooks) Stop() {
	go func() {
		for _, hook := range h.GetAll() {
			h.Log.Info("stopping hook", "hook", hook.ID())
			if err := hook.Stop(); err != nil {
				h.Log.Debug("problem stopping hook", "error", err, "hook", hook.ID())
			}

			h.wg.Done()
		}
	}()

	h.wg.Wait()
}

// OnConnect is called when a CONNECT packet has been written to a new transport.
func (h *Hooks) OnConnect(cl *Client, pk packets.Packet) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnConnect) {
			hook.OnConnect(cl, pk)
		}
	}
}

// OnSessionEstablished is called when the server accepts the connection.
func (h *Hooks) OnSessionEstablished(cl *Client, pk packets.Packet) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnSessionEstablished) {
			hook.OnSessionEstablished(cl, pk)
		}
	}
}

// OnConnectionLost is called when an established connection ends. err is nil
// if the client disconnected on request.
func (h *Hooks) OnConnectionLost(cl *Client, err error) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnConnectionLost) {
			hook.OnConnectionLost(cl, err)
		}
	}
}

// OnDisconnect is called each time a transport is torn down, including failed
// connection attempts.
func (h *Hooks) OnDisconnect(cl *Client, err error) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnDisconnect) {
			hook.OnDisconnect(cl, err)
		}
	}
}

// OnPacketRead is called when a packet is received from the server. A hook may
// modify the packet, or drop it by returning packets.ErrRejectPacket.
func (h *Hooks) OnPacketRead(cl *Client, pk packets.Packet) (pkx packets.Packet, err error) {
	pkx = pk
	for _, hook := range h.GetAll() {
		if hook.Provides(OnPacketRead) {
			npk, err := hook.OnPacketRead(cl, pkx)
			if err != nil && errors.Is(err, packets.ErrRejectPacket) {
				h.Log.Debug("packet rejected", "hook", hook.ID(), "packet", pkx)
				return pk, err
			} else if err != nil {
				continue
			}

			pkx = npk
		}
	}

	return
}

// OnPacketEncode is called immediately before a packet is encoded to be sent to the server.
func (h *Hooks) OnPacketEncode(cl *Client, pk packets.Packet) packets.Packet {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnPacketEncode) {
			pk = hook.OnPacketEncode(cl, pk)
		}
	}

	return pk
}

// OnPacketSent is called when packet bytes have been handed to the transport.
func (h *Hooks) OnPacketSent(cl *Client, pk packets.Packet, b []byte) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnPacketSent) {
			hook.OnPacketSent(cl, pk, b)
		}
	}
}

// OnMessageArrived is called when an application message is delivered to the client.
func (h *Hooks) OnMessageArrived(cl *Client, pk packets.Packet) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnMessageArrived) {
			hook.OnMessageArrived(cl, pk)
		}
	}
}

// OnSubscribed is called when the server acknowledges a subscription.
func (h *Hooks) OnSubscribed(cl *Client, pk packets.Packet, reasonCodes []byte) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnSubscribed) {
			hook.OnSubscribed(cl, pk, reasonCodes)
		}
	}
}

// OnUnsubscribed is called when the server acknowledges an unsubscribe.
func (h *Hooks) OnUnsubscribed(cl *Client, pk packets.Packet) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnUnsubscribed) {
			hook.OnUnsubscribed(cl, pk)
		}
	}
}

// OnQosPublish is called when a publish packet with qos >= 1 enters flight.
func (h *Hooks) OnQosPublish(cl *Client, pk packets.Packet, sequence uint64) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnQosPublish) {
			hook.OnQosPublish(cl, pk, sequence)
		}
	}
}

// OnQosComplete is called when the qos handshake for a message has completed.
func (h *Hooks) OnQosComplete(cl *Client, pk packets.Packet) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnQosComplete) {
			hook.OnQosComplete(cl, pk)
		}
	}
}

// OnQosDropped is called when an in-flight message is discarded before its
// handshake completed.
func (h *Hooks) OnQosDropped(cl *Client, pk packets.Packet) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnQosDropped) {
			hook.OnQosDropped(cl, pk)
		}
	}
}

// OnPacketIDExhausted is called when no free packet identifier remains for a new flight.
func (h *Hooks) OnPacketIDExhausted(cl *Client, pk packets.Packet) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnPacketIDExhausted) {
			hook.OnPacketIDExhausted(cl, pk)
		}
	}
}

// HookBase provides a set of default methods for each hook. It should be embedded in
// all hooks.
type HookBase struct {
	Hook
	Log  *slog.Logger
	Opts *HookOptions
}

// ID returns the ID of the hook.
func (h *HookBase) ID() string {
	return "base"
}

// Provides indicates which methods a hook provides. The default is none - this method
// should be overridden by the embedding hook.
func (h *HookBase) Provides(b byte) bool {
	return false
}

// Init performs any pre-start initializations for the hook, such as connecting to databases
// or opening files.
func (h *HookBase) Init(config any) error {
	return nil
}

// SetOpts is called by the client to propagate internal values and generally should
// not be called manually.
func (h *HookBase) SetOpts(l *slog.Logger, opts *HookOptions) {
	h.Log = l
	h.Opts = opts
}

// Stop is called to gracefully shut down the hook.
func (h *HookBase) Stop() error {
	return nil
}

// OnConnect is called when a CONNECT packet has been written.
func (h *HookBase) OnConnect(cl *Client, pk packets.Packet) {}

// OnSessionEstablished is called when the server accepts the connection.
func (h *HookBase) OnSessionEstablished(cl *Client, pk packets.Packet) {}

// OnConnectionLost is called when an established connection ends.
func (h *HookBase) OnConnectionLost(cl *Client, err error) {}

// OnDisconnect is called when a transport is torn down.
func (h *HookBase) OnDisconnect(cl *Client, err error) {}

// OnPacketRead is called when a packet is received.
func (h *HookBase) OnPacketRead(cl *Client, pk packets.Packet) (packets.Packet, error) {
	return pk, nil
}

// OnPacketEncode is called before a packet is byte-encoded and written to the server.
func (h *HookBase) OnPacketEncode(cl *Client, pk packets.Packet) packets.Packet {
	return pk
}

// OnPacketSent is called immediately after a packet is written.
func (h *HookBase) OnPacketSent(cl *Client, pk packets.Packet, b []byte) {}

// OnMessageArrived is called when an application message is delivered.
func (h *HookBase) OnMessageArrived(cl *Client, pk packets.Packet) {}

// OnSubscribed is called when a subscription is acknowledged.
func (h *HookBase) OnSubscribed(cl *Client, pk packets.Packet, reasonCodes []byte) {}

// OnUnsubscribed is called when an unsubscribe is acknowledged.
func (h *HookBase) OnUnsubscribed(cl *Client, pk packets.Packet) {}

// OnQosPublish is called when a qos message enters flight.
func (h *HookBase) OnQosPublish(cl *Client, pk packets.Packet, sequence uint64) {}

// OnQosComplete is called when the qos handshake for a message completes.
func (h *HookBase) OnQosComplete(cl *Client, pk packets.Packet) {}

// OnQosDropped is called when an in-flight message is discarded.
func (h *HookBase) OnQosDropped(cl *Client, pk packets.Packet) {}

// OnPacketIDExhausted is called when no packet identifiers are free.
func (h *HookBase) OnPacketIDExhausted(cl *Client, pk packets.Packet) {}
