package protocol

import (
	"fmt"
	"strings"
)

const (
	// Version is the only protocol version this package speaks.
	Version uint8 = 1

	// DefaultHeaderSize is the header length in 4-byte units written by NewMessage.
	DefaultHeaderSize uint8 = 1

	baseHeaderLen = 3
)

// Message is one protocol frame. Which optional fields are meaningful depends only on
// Type, Flag and Event; fields that do not apply are left at their zero value on decode
// and ignored on encode.
type Message struct {
	Version       uint8
	HeaderSize    uint8
	Type          MsgType
	Flag          MsgTypeFlag
	Serialization SerializationType
	Compression   CompressionType

	// Event is set when Flag is MsgTypeFlagWithEvent.
	Event EventType
	// SessionID is set for event frames outside the connection scope.
	SessionID string
	// ConnectID is set for ConnectionStarted, ConnectionFailed and ConnectionFinished.
	ConnectID string
	// Sequence is set for content frames flagged PositiveSeq or NegativeSeq.
	Sequence int32
	// ErrorCode is set for Error frames.
	ErrorCode uint32

	Payload []byte
}

// NewMessage returns a message with the default version, header size and a JSON,
// uncompressed payload.
func NewMessage(msgType MsgType, flag MsgTypeFlag) *Message {
	return &Message{
		Version:       Version,
		HeaderSize:    DefaultHeaderSize,
		Type:          msgType,
		Flag:          flag,
		Serialization: SerializationJSON,
		Compression:   CompressionNone,
	}
}

// HasEvent reports whether the message carries an event number.
func (m *Message) HasEvent() bool {
	return m.Flag == MsgTypeFlagWithEvent
}

// HasSequence reports whether the message carries a sequence number.
func (m *Message) HasSequence() bool {
	return m.Type.carriesContent() && m.Flag.hasSequence()
}

// HasConnectID reports whether the message carries a connect id.
func (m *Message) HasConnectID() bool {
	return m.HasEvent() && hasConnectID(m.Event)
}

// String renders the applicable fields for logs. Payloads are summarized, JSON payloads
// are shown verbatim.
func (m *Message) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Type=%s Flag=%s", m.Type, m.Flag)
	if m.HasEvent() {
		fmt.Fprintf(&b, " Event=%s", m.Event)
		if m.SessionID != "" {
			fmt.Fprintf(&b, " SessionID=%s", m.SessionID)
		}
		if m.ConnectID != "" {
			fmt.Fprintf(&b, " ConnectID=%s", m.ConnectID)
		}
	}
	if m.HasSequence() {
		fmt.Fprintf(&b, " Sequence=%d", m.Sequence)
	}
	if m.Type == MsgTypeError {
		fmt.Fprintf(&b, " ErrorCode=%d", m.ErrorCode)
	}
	if m.Type == MsgTypeAudioOnlyServer || m.Type == MsgTypeAudioOnlyClient {
		fmt.Fprintf(&b, " PayloadSize=%d", len(m.Payload))
	} else {
		fmt.Fprintf(&b, " Payload=%s", m.Payload)
	}
	return b.String()
}
