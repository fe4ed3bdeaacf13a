package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrFrameTooShort          = errors.New("protocol: frame shorter than base header")
	ErrTruncatedField         = errors.New("protocol: field extends past end of frame")
	ErrUnsupportedMessageType = errors.New("protocol: unsupported message type")
	ErrInvalidHeaderSize      = errors.New("protocol: header size must be at least one unit")
)

// ServerError is an Error frame reported by the remote service.
type ServerError struct {
	Code    uint32
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("protocol: server error %d: %s", e.Code, e.Message)
}

// NewServerError converts an Error frame into a ServerError.
func NewServerError(msg *Message) *ServerError {
	return &ServerError{Code: msg.ErrorCode, Message: string(msg.Payload)}
}

// UnexpectedMessageError reports a frame whose type or event differs from what the
// caller was waiting for.
type UnexpectedMessageError struct {
	WantType  MsgType
	WantEvent EventType
	GotType   MsgType
	GotEvent  EventType

	// Err is set to a *ServerError when the unexpected frame was an Error frame.
	Err error
}

func (e *UnexpectedMessageError) Error() string {
	s := fmt.Sprintf("protocol: unexpected message: want %s/%s, got %s/%s",
		e.WantType, e.WantEvent, e.GotType, e.GotEvent)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *UnexpectedMessageError) Unwrap() error {
	return e.Err
}

// Unexpected builds an UnexpectedMessageError for got.
func Unexpected(wantType MsgType, wantEvent EventType, got *Message) *UnexpectedMessageError {
	err := &UnexpectedMessageError{
		WantType:  wantType,
		WantEvent: wantEvent,
		GotType:   got.Type,
		GotEvent:  got.Event,
	}
	if got.Type == MsgTypeError {
		err.Err = NewServerError(got)
	}
	return err
}
