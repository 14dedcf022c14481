// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-co
// SPDX-FileContributor: mochi-co

package debug

import (
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/mochi-mqtt/client"
	"github.com/mochi-mqtt/client/packets"
)

// Options contains configuration settings for the debug output.
type Options struct {
	ShowPacketData bool `yaml:"show_packet_data" json:"show_packet_data"` // include decoded packet data (default false)
	ShowPings      bool `yaml:"show_pings" json:"show_pings"`             // show ping requests and responses (default false)
	ShowPasswords  bool `yaml:"show_passwords" json:"show_passwords"`     // show connecting user passwords (default false)
}

// Hook is a debugging hook which logs additional low-level information from the client.
type Hook struct {
	mqtt.HookBase
	config *Options
	Log    *slog.Logger
}

// ID returns the ID of the hook.
func (h *Hook) ID() string {
	return "debug"
}

// Provides indicates that this hook provides all methods.
func (h *Hook) Provides(b byte) bool {
	return true
}

// Init is called when the hook is initialized.
func (h *Hook) Init(config any) error {
	if _, ok := config.(*Options); !ok && config != nil {
		return mqtt.ErrInvalidConfigType
	}

	if config == nil {
		config = new(Options)
	}

	h.config = config.(*Options)

	return nil
}

// SetOpts is called when the hook receives inheritable client parameters.
func (h *Hook) SetOpts(l *slog.Logger, opts *mqtt.HookOptions) {
	h.Log = l
	h.Log.Debug("", "method", "SetOpts", "client", opts.ClientID)
}

// Stop is called when the hook is stopped.
func (h *Hook) Stop() error {
	h.Log.Debug("", "method", "Stop")
	return nil
}

// OnConnect is called when a CONNECT packet has been written.
func (h *Hook) OnConnect(cl *mqtt.Client, pk packets.Packet) {
	h.Log.Debug("", "method", "OnConnect", "client", cl.ID, "version", pk.ProtocolVersion)
}

// OnSessionEstablished is called when the server accepts the connection.
func (h *Hook) OnSessionEstablished(cl *mqtt.Client, pk packets.Packet) {
	h.Log.Debug("", "method", "OnSessionEstablished", "client", cl.ID, "session_present", pk.SessionPresent)
}

// OnConnectionLost is called when an established connection ends.
func (h *Hook) OnConnectionLost(cl *mqtt.Client, err error) {
	h.Log.Debug("", "method", "OnConnectionLost", "client", cl.ID, "error", err)
}

// OnDisconnect is called when a transport is torn down.
func (h *Hook) OnDisconnect(cl *mqtt.Client, err error) {
	h.Log.Debug("", "method", "OnDisconnect", "client", cl.ID, "error", err)
}

// OnPacketRead is called when a new packet is received from the server.
func (h *Hook) OnPacketRead(cl *mqtt.Client, pk packets.Packet) (packets.Packet, error) {
	if pk.FixedHeader.Type == packets.Pingresp && !h.config.ShowPings {
		return pk, nil
	}

	h.Log.Debug(fmt.Sprintf("%s << %s", strings.ToUpper(packets.Names[pk.FixedHeader.Type]), cl.ID), "m", h.packetMeta(pk))

	return pk, nil
}

// OnPacketSent is called when a packet is sent to the server.
func (h *Hook) OnPacketSent(cl *mqtt.Client, pk packets.Packet, b []byte) {
	if pk.FixedHeader.Type == packets.Pingreq && !h.config.ShowPings {
		return
	}

	h.Log.Debug(fmt.Sprintf("%s >> %s", strings.ToUpper(packets.Names[pk.FixedHeader.Type]), cl.ID), "m", h.packetMeta(pk))
}

// OnQosPublish is called when a publish packet with qos enters flight.
func (h *Hook) OnQosPublish(cl *mqtt.Client, pk packets.Packet, sequence uint64) {
	h.Log.Debug("inflight out", "m", h.packetMeta(pk), "sequence", sequence)
}

// OnQosComplete is called when the qos flow for a message has been completed.
func (h *Hook) OnQosComplete(cl *mqtt.Client, pk packets.Packet) {
	h.Log.Debug("inflight complete", "m", h.packetMeta(pk))
}

// OnQosDropped is called when an in-flight message is discarded.
func (h *Hook) OnQosDropped(cl *mqtt.Client, pk packets.Packet) {
	h.Log.Debug("inflight dropped", "m", h.packetMeta(pk))
}

// OnPacketIDExhausted is called when no packet identifiers are free.
func (h *Hook) OnPacketIDExhausted(cl *mqtt.Client, pk packets.Packet) {
	h.Log.Debug("packet ids exhausted", "m", h.packetMeta(pk))
}

// OnSubscribed is called when a subscription is acknowledged.
func (h *Hook) OnSubscribed(cl *mqtt.Client, pk packets.Packet, reasonCodes []byte) {
	h.Log.Debug("subscribed", "client", cl.ID, "filters", pk.Topics, "granted", reasonCodes)
}

// OnUnsubscribed is called when an unsubscribe is acknowledged.
func (h *Hook) OnUnsubscribed(cl *mqtt.Client, pk packets.Packet) {
	h.Log.Debug("unsubscribed", "client", cl.ID, "filters", pk.Topics)
}

// packetMeta adds additional type-specific metadata to the debug logs.
func (h *Hook) packetMeta(pk packets.Packet) map[string]any {
	m := map[string]any{}
	switch pk.FixedHeader.Type {
	case packets.Connect:
		m["id"] = pk.ClientIdentifier
		m["clean"] = pk.CleanSession
		m["keepalive"] = pk.Keepalive
		m["version"] = pk.ProtocolVersion
		m["username"] = string(pk.Username)
		if h.config.ShowPasswords {
			m["password"] = string(pk.Password)
		} else if pk.PasswordFlag {
			m["password"] = "********"
		}
		if pk.WillFlag {
			m["will_topic"] = pk.WillTopic
			m["will_payload"] = string(pk.WillMessage)
		}
	case packets.Publish:
		m["topic"] = pk.TopicName
		m["payload"] = string(pk.Payload)
		m["raw"] = pk.Payload
		m["qos"] = pk.FixedHeader.Qos
		m["id"] = pk.PacketID
	case packets.Connack:
		m["return_code"] = int(pk.ReturnCode)
		m["session_present"] = pk.SessionPresent
	case packets.Puback, packets.Pubrec, packets.Pubrel, packets.Pubcomp, packets.Unsuback:
		m["id"] = pk.PacketID
	case packets.Subscribe:
		f := map[string]int{}
		for i, v := range pk.Topics {
			if i < len(pk.Qoss) {
				f[v] = int(pk.Qoss[i])
			}
		}
		m["id"] = pk.PacketID
		m["filters"] = f
	case packets.Unsubscribe:
		m["id"] = pk.PacketID
		m["filters"] = pk.Topics
	case packets.Suback:
		r := []int{}
		for _, v := range pk.ReturnCodes {
			r = append(r, int(v))
		}
		m["id"] = pk.PacketID
		m["reasons"] = r
	}

	if h.config.ShowPacketData {
		m["packet"] = pk
	}

	return m
}
