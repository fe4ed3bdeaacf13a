// Package fakespeech runs an in-process speech-synthesis service that speaks the binary
// frame protocol, for tests.
package fakespeech

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/satriahrh/sandiwara/internal/protocol"
)

// ErrorText makes the server answer a task with an Error frame.
const ErrorText = "trigger server error"

// Server emulates the bidirectional synthesis endpoint. The synthesized "audio" for a
// task is the task text, split into ChunkSize-byte frames.
type Server struct {
	*httptest.Server

	ChunkSize int
	ConnectID string

	// PauseAfterFirstChunk holds the rest of a session's audio back until the client
	// cancels it.
	PauseAfterFirstChunk atomic.Bool

	mu       sync.Mutex
	headers  []http.Header
	received []*protocol.Message
}

// NewServer starts a server; callers Close it.
func NewServer() *Server {
	s := &Server{ChunkSize: 4, ConnectID: "fake-connect"}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// Headers returns the handshake headers of every accepted connection.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

// Received returns every decoded client frame in arrival order.
func (s *Server) Received() []*protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*protocol.Message(nil), s.received...)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type taskRequest struct {
	ReqParams struct {
		Text    string `json:"text"`
		Speaker string `json:"speaker"`
	} `json:"req_params"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.headers = append(s.headers, r.Header.Clone())
	s.mu.Unlock()

	header := http.Header{}
	header.Set("X-Tt-Logid", "fake-log-id")
	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		return
	}
	defer conn.Close()

	var text strings.Builder
	sequence := int32(0)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Unmarshal(data)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()

		switch msg.Event {
		case protocol.EventStartConnection:
			reply := event(protocol.EventConnectionStarted, "")
			reply.ConnectID = s.ConnectID
			write(conn, reply)

		case protocol.EventStartSession:
			text.Reset()
			sequence = 0
			write(conn, event(protocol.EventSessionStarted, msg.SessionID))

		case protocol.EventTaskRequest:
			var req taskRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				write(conn, failure(45000001, "invalid task payload"))
				continue
			}
			if req.ReqParams.Text == ErrorText {
				write(conn, failure(55000001, "synthesis failed"))
				continue
			}
			text.WriteString(req.ReqParams.Text)

		case protocol.EventFinishSession:
			sentence := event(protocol.EventTTSSentenceStart, msg.SessionID)
			sentence.Payload = []byte(`{"status_code":0}`)
			write(conn, sentence)
			audio := []byte(text.String())
			for len(audio) > 0 {
				n := s.ChunkSize
				if n > len(audio) {
					n = len(audio)
				}
				sequence++
				chunk := protocol.NewMessage(protocol.MsgTypeAudioOnlyServer, protocol.MsgTypeFlagPositiveSeq)
				chunk.Serialization = protocol.SerializationRaw
				chunk.Sequence = sequence
				chunk.Payload = audio[:n]
				write(conn, chunk)
				audio = audio[n:]
				if s.PauseAfterFirstChunk.Load() {
					break
				}
			}
			if s.PauseAfterFirstChunk.Load() {
				continue
			}
			write(conn, event(protocol.EventTTSSentenceEnd, msg.SessionID))
			write(conn, event(protocol.EventSessionFinished, msg.SessionID))

		case protocol.EventCancelSession:
			text.Reset()
			write(conn, event(protocol.EventSessionCanceled, msg.SessionID))

		case protocol.EventFinishConnection:
			reply := event(protocol.EventConnectionFinished, "")
			reply.ConnectID = s.ConnectID
			write(conn, reply)
			return
		}
	}
}

func event(e protocol.EventType, sessionID string) *protocol.Message {
	msg := protocol.NewMessage(protocol.MsgTypeFullServerResponse, protocol.MsgTypeFlagWithEvent)
	msg.Event = e
	msg.SessionID = sessionID
	msg.Payload = []byte("{}")
	return msg
}

func failure(code uint32, message string) *protocol.Message {
	msg := protocol.NewMessage(protocol.MsgTypeError, protocol.MsgTypeFlagNoSeq)
	msg.ErrorCode = code
	msg.Payload = []byte(`{"error":"` + message + `"}`)
	return msg
}

func write(conn *websocket.Conn, msg *protocol.Message) {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return
	}
	conn.WriteMessage(websocket.BinaryMessage, data)
}
