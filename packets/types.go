// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// All of the valid packet types and their packet identifier.
const (
	Reserved    byte = iota
	Connect          // 1
	Connack          // 2
	Publish          // 3
	Puback           // 4
	Pubrec           // 5
	Pubrel           // 6
	Pubcomp          // 7
	Subscribe        // 8
	Suback           // 9
	Unsubscribe      // 10
	Unsuback         // 11
	Pingreq          // 12
	Pingresp         // 13
	Disconnect       // 14
)

// Protocol versions supported by the codec.
const (
	Version31  byte = 3 // MQTT 3.1, protocol name "MQIsdp"
	Version311 byte = 4 // MQTT 3.1.1, protocol name "MQTT"
)

// Names is a map that provides human-readable names for the different
// MQTT packet types based on their ids.
var Names = map[byte]string{
	0:  "RESERVED",
	1:  "CONNECT",
	2:  "CONNACK",
	3:  "PUBLISH",
	4:  "PUBACK",
	5:  "PUBREC",
	6:  "PUBREL",
	7:  "PUBCOMP",
	8:  "SUBSCRIBE",
	9:  "SUBACK",
	10: "UNSUBSCRIBE",
	11: "UNSUBACK",
	12: "PINGREQ",
	13: "PINGRESP",
	14: "DISCONNECT",
	15: "RESERVED",
}

// protocolNames maps a protocol version to the protocol name sent in CONNECT.
var protocolNames = map[byte][]byte{
	Version31:  []byte("MQIsdp"),
	Version311: []byte("MQTT"),
}

// NewFixedHeader returns a fresh fixed header for a given packet type, with the
// reserved bits set where the protocol requires them.
func NewFixedHeader(packetType byte) FixedHeader {
	fh := FixedHeader{
		Type: packetType,
	}

	if packetType == Pubrel || packetType == Subscribe || packetType == Unsubscribe {
		fh.Qos = 1 // 0b0010
	}

	return fh
}
