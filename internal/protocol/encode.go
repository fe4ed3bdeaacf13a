package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Marshal encodes msg into one frame.
//
// Layout after the padded header: event and session id (event frames only), then the
// sequence number or error code depending on Type, then the length-prefixed payload.
func Marshal(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("protocol: marshal nil message")
	}
	if msg.HeaderSize == 0 {
		return nil, ErrInvalidHeaderSize
	}
	for _, nibble := range []uint8{msg.Version, msg.HeaderSize, uint8(msg.Type), uint8(msg.Flag),
		uint8(msg.Serialization), uint8(msg.Compression)} {
		if nibble > 0x0f {
			return nil, fmt.Errorf("protocol: header field %d does not fit in 4 bits", nibble)
		}
	}

	headerLen := int(msg.HeaderSize) * 4
	buf := make([]byte, headerLen, headerLen+16+len(msg.SessionID)+len(msg.Payload))
	buf[0] = msg.Version<<4 | msg.HeaderSize
	buf[1] = uint8(msg.Type)<<4 | uint8(msg.Flag)
	buf[2] = uint8(msg.Serialization)<<4 | uint8(msg.Compression)

	var err error
	if msg.HasEvent() {
		if buf, err = writeEvent(buf, msg); err != nil {
			return nil, err
		}
	}

	switch {
	case msg.Type.carriesContent():
		if msg.Flag.hasSequence() {
			buf = binary.BigEndian.AppendUint32(buf, uint32(msg.Sequence))
		}
	case msg.Type == MsgTypeError:
		buf = binary.BigEndian.AppendUint32(buf, msg.ErrorCode)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMessageType, msg.Type)
	}

	return appendBytes(buf, msg.Payload)
}

func writeEvent(buf []byte, msg *Message) ([]byte, error) {
	buf = binary.BigEndian.AppendUint32(buf, uint32(msg.Event))

	// Frames that carry a connect id use the inbound layout so that the decoder can
	// read back what a server writes.
	// ConnectionFinished's slot after the event holds the connect id, not the session id.
	if hasConnectID(msg.Event) {
		return appendString(buf, msg.ConnectID)
	}
	if encodeSkipsSessionID(msg.Event) {
		return buf, nil
	}
	return appendString(buf, msg.SessionID)
}

func appendString(buf []byte, s string) ([]byte, error) {
	if uint64(len(s)) > math.MaxUint32 {
		return nil, fmt.Errorf("protocol: string field of %d bytes too long", len(s))
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...), nil
}

func appendBytes(buf, b []byte) ([]byte, error) {
	if uint64(len(b)) > math.MaxUint32 {
		return nil, fmt.Errorf("protocol: payload of %d bytes too long", len(b))
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...), nil
}
