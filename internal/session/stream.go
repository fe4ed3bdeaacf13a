package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/sandiwara/internal/protocol"
)

// ErrEmptyResult is returned when a session finished without producing audio.
var ErrEmptyResult = errors.New("session: finished without audio")

// WaitForEvent receives exactly one message and checks that it has the expected type and
// event.
func WaitForEvent(ctx context.Context, r Receiver, msgType protocol.MsgType, event protocol.EventType) (*protocol.Message, error) {
	msg, err := r.ReceiveMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", event, err)
	}
	if msg.Type != msgType || msg.Event != event {
		return nil, protocol.Unexpected(msgType, event, msg)
	}
	return msg, nil
}

// StreamAudio consumes frames until SessionFinished, passing each audio payload to fn in
// arrival order. It returns the number of audio bytes seen.
//
// FullServerResponse frames are status frames; a non-zero embedded status code is logged
// and the loop continues. Error frames and any other type end the loop with an error.
func StreamAudio(ctx context.Context, r Receiver, logger *zap.Logger, fn func(chunk []byte) error) (int, error) {
	total := 0
	for {
		msg, err := r.ReceiveMessage(ctx)
		if err != nil {
			return total, fmt.Errorf("receive audio: %w", err)
		}

		switch msg.Type {
		case protocol.MsgTypeAudioOnlyServer:
			if len(msg.Payload) == 0 {
				continue
			}
			total += len(msg.Payload)
			if err := fn(msg.Payload); err != nil {
				return total, err
			}

		case protocol.MsgTypeFullServerResponse:
			if code, message := protocol.StatusCode(msg); code != 0 {
				logger.Warn("Speech service reported status",
					zap.Stringer("event", msg.Event),
					zap.String("sessionID", msg.SessionID),
					zap.Int("statusCode", code),
					zap.String("message", message))
			}
			if msg.Event == protocol.EventSessionFinished {
				return total, nil
			}
			logger.Debug("Status frame", zap.Stringer("event", msg.Event))

		case protocol.MsgTypeError:
			return total, protocol.NewServerError(msg)

		default:
			return total, protocol.Unexpected(protocol.MsgTypeAudioOnlyServer, protocol.EventNone, msg)
		}
	}
}

// CollectAudio runs StreamAudio and returns the concatenated audio.
func CollectAudio(ctx context.Context, r Receiver, logger *zap.Logger) ([]byte, error) {
	var audio []byte
	_, err := StreamAudio(ctx, r, logger, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, ErrEmptyResult
	}
	return audio, nil
}
