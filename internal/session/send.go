package session

import (
	"context"
	"fmt"

	"github.com/satriahrh/sandiwara/internal/protocol"
)

// Writer sends one encoded message over the connection.
type Writer interface {
	WriteMessage(msg *protocol.Message) error
}

// Receiver returns decoded messages in arrival order.
type Receiver interface {
	ReceiveMessage(ctx context.Context) (*protocol.Message, error)
}

// Transport is a duplex connection such as *websocket.Conn.
type Transport interface {
	Writer
	Receiver
}

var emptyPayload = []byte("{}")

func eventRequest(event protocol.EventType, sessionID string, payload []byte) *protocol.Message {
	msg := protocol.NewMessage(protocol.MsgTypeFullClientRequest, protocol.MsgTypeFlagWithEvent)
	msg.Event = event
	msg.SessionID = sessionID
	msg.Payload = payload
	return msg
}

func send(w Writer, msg *protocol.Message) error {
	if err := w.WriteMessage(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Event, err)
	}
	return nil
}

// StartConnection opens the protocol connection.
func StartConnection(w Writer) error {
	return send(w, eventRequest(protocol.EventStartConnection, "", emptyPayload))
}

// FinishConnection asks the server to close the protocol connection.
func FinishConnection(w Writer) error {
	return send(w, eventRequest(protocol.EventFinishConnection, "", emptyPayload))
}

// StartSession opens sessionID with the given JSON request body.
func StartSession(w Writer, payload []byte, sessionID string) error {
	return send(w, eventRequest(protocol.EventStartSession, sessionID, payload))
}

// CancelSession abandons sessionID.
func CancelSession(w Writer, sessionID string) error {
	return send(w, eventRequest(protocol.EventCancelSession, sessionID, emptyPayload))
}

// FinishSession tells the server no more tasks follow for sessionID.
func FinishSession(w Writer, sessionID string) error {
	return send(w, eventRequest(protocol.EventFinishSession, sessionID, emptyPayload))
}

// TaskRequest submits one unit of work, such as text to synthesize, to sessionID.
func TaskRequest(w Writer, payload []byte, sessionID string) error {
	return send(w, eventRequest(protocol.EventTaskRequest, sessionID, payload))
}

// FullClientRequest sends payload without an event.
func FullClientRequest(w Writer, payload []byte) error {
	msg := protocol.NewMessage(protocol.MsgTypeFullClientRequest, protocol.MsgTypeFlagNoSeq)
	msg.Payload = payload
	return send(w, msg)
}

// AudioOnlyClient sends raw audio with a caller-chosen flag.
func AudioOnlyClient(w Writer, payload []byte, flag protocol.MsgTypeFlag) error {
	msg := protocol.NewMessage(protocol.MsgTypeAudioOnlyClient, flag)
	msg.Payload = payload
	return send(w, msg)
}

// SequencedAudio sends raw audio numbered seq. A negative seq marks the last chunk.
func SequencedAudio(w Writer, payload []byte, seq int32) error {
	flag := protocol.MsgTypeFlagPositiveSeq
	if seq < 0 {
		flag = protocol.MsgTypeFlagNegativeSeq
	}
	msg := protocol.NewMessage(protocol.MsgTypeAudioOnlyClient, flag)
	msg.Sequence = seq
	msg.Payload = payload
	return send(w, msg)
}
