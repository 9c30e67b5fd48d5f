// Package mqttchannel implements the MQTT channel layer: the MQTT Client
// Actor, its dynamic subscription registry, and the message/topic/request
// types they share.
package mqttchannel

import (
	"fmt"
	"unicode/utf8"
)

// QoS mirrors the three MQTT delivery guarantees.
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

func (q QoS) String() string {
	switch q {
	case AtMostOnce:
		return "at-most-once"
	case AtLeastOnce:
		return "at-least-once"
	case ExactlyOnce:
		return "exactly-once"
	default:
		return fmt.Sprintf("qos(%d)", byte(q))
	}
}

// Message is an MQTT publish, in or out. Payload may or may not be valid
// UTF-8; PayloadBytes/PayloadString validate on demand rather than at
// construction time.
type Message struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool

	// ack, when set, sends the deferred broker-level acknowledgement for
	// this inbound publish. Only a client actor running with manual acks
	// sets it; the consumer calls Acknowledge once processing is complete.
	ack func()
}

// WithAck returns a copy of m whose Acknowledge invokes f.
func (m Message) WithAck(f func()) Message {
	m.ack = f
	return m
}

// Acknowledge sends the deferred broker acknowledgement for this message.
// A no-op for messages without one (auto-acked or locally constructed).
func (m Message) Acknowledge() {
	if m.ack != nil {
		m.ack()
	}
}

// NewMessage constructs a Message, copying payload so the caller's buffer
// can be reused.
func NewMessage(topic string, payload []byte, qos QoS, retain bool) Message {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return Message{Topic: topic, Payload: cp, QoS: qos, Retain: retain}
}

// PayloadBytes strips exactly one trailing NUL byte, if present. It never
// strips more than one: "123\x00" -> "123", "123\x00\x00" -> "123\x00".
func (m Message) PayloadBytes() []byte {
	if len(m.Payload) > 0 && m.Payload[len(m.Payload)-1] == 0 {
		return m.Payload[:len(m.Payload)-1]
	}
	return m.Payload
}

// PayloadDecodeError reports a UTF-8 validation failure, carrying the byte
// offset of the first invalid byte and a truncated prefix of the valid
// decoded portion.
type PayloadDecodeError struct {
	Offset int
	Prefix string
}

const payloadErrorPrefixLimit = 32

func (e *PayloadDecodeError) Error() string {
	return fmt.Sprintf("mqttchannel: invalid UTF-8 payload at byte %d (decoded prefix %q)", e.Offset, e.Prefix)
}

// PayloadString validates PayloadBytes() as UTF-8, returning a
// *PayloadDecodeError on the first invalid byte.
func (m Message) PayloadString() (string, error) {
	b := m.PayloadBytes()
	if utf8.Valid(b) {
		return string(b), nil
	}

	offset := firstInvalidByteOffset(b)
	prefix := string(b[:offset])
	if len(prefix) > payloadErrorPrefixLimit {
		prefix = prefix[:payloadErrorPrefixLimit]
	}
	return "", &PayloadDecodeError{Offset: offset, Prefix: prefix}
}

// firstInvalidByteOffset returns the byte index of the first byte that
// cannot begin (or continue) a valid UTF-8 sequence.
func firstInvalidByteOffset(b []byte) int {
	offset := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			return offset
		}
		offset += size
		b = b[size:]
	}
	return offset
}
