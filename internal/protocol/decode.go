package protocol

import (
	"encoding/binary"
	"fmt"
)

// Unmarshal decodes one frame.
//
// The read order differs from Marshal: the type-dependent sequence number or error code
// comes before the event block. Bytes between the base header and HeaderSize*4 are
// skipped unread.
func Unmarshal(data []byte) (*Message, error) {
	if len(data) < baseHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(data))
	}

	msg := &Message{
		Version:       data[0] >> 4,
		HeaderSize:    data[0] & 0x0f,
		Type:          MsgType(data[1] >> 4),
		Flag:          MsgTypeFlag(data[1] & 0x0f),
		Serialization: SerializationType(data[2] >> 4),
		Compression:   CompressionType(data[2] & 0x0f),
	}

	headerLen := int(msg.HeaderSize) * 4
	if headerLen < baseHeaderLen {
		headerLen = baseHeaderLen
	}
	if headerLen > len(data) {
		return nil, fmt.Errorf("%w: header of %d bytes in %d byte frame", ErrTruncatedField, headerLen, len(data))
	}
	r := &reader{buf: data, off: headerLen}

	var err error
	switch {
	case msg.Type.carriesContent():
		if msg.Flag.hasSequence() {
			if msg.Sequence, err = r.int32("sequence"); err != nil {
				return nil, err
			}
		}
	case msg.Type == MsgTypeError:
		if msg.ErrorCode, err = r.uint32("error code"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMessageType, msg.Type)
	}

	if msg.HasEvent() {
		event, err := r.int32("event")
		if err != nil {
			return nil, err
		}
		msg.Event = EventType(event)
		if !decodeSkipsSessionID(msg.Event) {
			if msg.SessionID, err = r.string("session id"); err != nil {
				return nil, err
			}
		}
		if hasConnectID(msg.Event) {
			if msg.ConnectID, err = r.string("connect id"); err != nil {
				return nil, err
			}
		}
	}

	if msg.Payload, err = r.bytes("payload"); err != nil {
		return nil, err
	}
	return msg, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) next(field string, n int) ([]byte, error) {
	if n < 0 || n > len(r.buf)-r.off {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d left", ErrTruncatedField, field, n, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) uint32(field string) (uint32, error) {
	b, err := r.next(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) int32(field string) (int32, error) {
	v, err := r.uint32(field)
	return int32(v), err
}

func (r *reader) string(field string) (string, error) {
	b, err := r.bytes(field)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// bytes reads a big-endian uint32 length followed by that many bytes. The returned
// slice is a copy so that the message does not pin the frame buffer.
func (r *reader) bytes(field string) ([]byte, error) {
	size, err := r.uint32(field + " length")
	if err != nil {
		return nil, err
	}
	if uint64(size) > uint64(len(r.buf)-r.off) {
		return nil, fmt.Errorf("%w: %s declares %d bytes, %d left", ErrTruncatedField, field, size, len(r.buf)-r.off)
	}
	b, err := r.next(field, int(size))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
