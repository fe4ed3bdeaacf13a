package protocol

import "fmt"

// MsgType is the 4-bit message kind carried in the second header byte.
type MsgType uint8

const (
	MsgTypeInvalid              MsgType = 0
	MsgTypeFullClientRequest    MsgType = 0b0001
	MsgTypeAudioOnlyClient      MsgType = 0b0010
	MsgTypeFullServerResponse   MsgType = 0b1001
	MsgTypeAudioOnlyServer      MsgType = 0b1011
	MsgTypeFrontEndResultServer MsgType = 0b1100
	MsgTypeError                MsgType = 0b1111
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeInvalid:
		return "Invalid"
	case MsgTypeFullClientRequest:
		return "FullClientRequest"
	case MsgTypeAudioOnlyClient:
		return "AudioOnlyClient"
	case MsgTypeFullServerResponse:
		return "FullServerResponse"
	case MsgTypeAudioOnlyServer:
		return "AudioOnlyServer"
	case MsgTypeFrontEndResultServer:
		return "FrontEndResultServer"
	case MsgTypeError:
		return "Error"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// carriesContent reports whether frames of this kind may hold a sequence number.
func (t MsgType) carriesContent() bool {
	switch t {
	case MsgTypeFullClientRequest, MsgTypeAudioOnlyClient, MsgTypeFullServerResponse,
		MsgTypeAudioOnlyServer, MsgTypeFrontEndResultServer:
		return true
	default:
		return false
	}
}

// MsgTypeFlag is the 4-bit flag nibble next to the message kind.
type MsgTypeFlag uint8

const (
	MsgTypeFlagNoSeq       MsgTypeFlag = 0
	MsgTypeFlagPositiveSeq MsgTypeFlag = 0b0001
	MsgTypeFlagLastNoSeq   MsgTypeFlag = 0b0010
	MsgTypeFlagNegativeSeq MsgTypeFlag = 0b0011
	MsgTypeFlagWithEvent   MsgTypeFlag = 0b0100
)

func (f MsgTypeFlag) String() string {
	switch f {
	case MsgTypeFlagNoSeq:
		return "NoSeq"
	case MsgTypeFlagPositiveSeq:
		return "PositiveSeq"
	case MsgTypeFlagLastNoSeq:
		return "LastNoSeq"
	case MsgTypeFlagNegativeSeq:
		return "NegativeSeq"
	case MsgTypeFlagWithEvent:
		return "WithEvent"
	default:
		return fmt.Sprintf("MsgTypeFlag(%d)", uint8(f))
	}
}

func (f MsgTypeFlag) hasSequence() bool {
	return f == MsgTypeFlagPositiveSeq || f == MsgTypeFlagNegativeSeq
}

// SerializationType tags how the payload is serialized.
type SerializationType uint8

const (
	SerializationRaw    SerializationType = 0
	SerializationJSON   SerializationType = 0b0001
	SerializationThrift SerializationType = 0b0011
	SerializationCustom SerializationType = 0b1111
)

func (s SerializationType) String() string {
	switch s {
	case SerializationRaw:
		return "Raw"
	case SerializationJSON:
		return "JSON"
	case SerializationThrift:
		return "Thrift"
	case SerializationCustom:
		return "Custom"
	default:
		return fmt.Sprintf("SerializationType(%d)", uint8(s))
	}
}

// CompressionType tags how the payload is compressed.
type CompressionType uint8

const (
	CompressionNone   CompressionType = 0
	CompressionGzip   CompressionType = 0b0001
	CompressionCustom CompressionType = 0b1111
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionGzip:
		return "Gzip"
	case CompressionCustom:
		return "Custom"
	default:
		return fmt.Sprintf("CompressionType(%d)", uint8(c))
	}
}

// EventType identifies an action or notification layered on top of MsgType.
type EventType int32

const (
	EventNone EventType = 0

	// Connection scope, 1-99.
	EventStartConnection    EventType = 1
	EventFinishConnection   EventType = 2
	EventConnectionStarted  EventType = 50
	EventConnectionFailed   EventType = 51
	EventConnectionFinished EventType = 52

	// Session scope, 100-199.
	EventStartSession    EventType = 100
	EventCancelSession   EventType = 101
	EventFinishSession   EventType = 102
	EventSessionStarted  EventType = 150
	EventSessionCanceled EventType = 151
	EventSessionFinished EventType = 152
	EventSessionFailed   EventType = 153
	EventUsageResponse   EventType = 154

	// General and task scope, 200-299.
	EventTaskRequest  EventType = 200
	EventUpdateConfig EventType = 201
	EventAudioMuted   EventType = 250

	// Speech synthesis, 300-399.
	EventSayHello             EventType = 300
	EventTTSSentenceStart     EventType = 350
	EventTTSSentenceEnd       EventType = 351
	EventTTSResponse          EventType = 352
	EventTTSEnded             EventType = 359
	EventPodcastRoundStart    EventType = 360
	EventPodcastRoundResponse EventType = 361
	EventPodcastRoundEnd      EventType = 362

	// Recognition, 450-499.
	EventASRInfo     EventType = 450
	EventASRResponse EventType = 451
	EventASREnded    EventType = 459

	// Chat, 500-599.
	EventChatTTSText  EventType = 500
	EventChatResponse EventType = 550
	EventChatEnded    EventType = 559

	// Subtitles, 650-699.
	EventSourceSubtitleStart         EventType = 650
	EventSourceSubtitleResponse      EventType = 651
	EventSourceSubtitleEnd           EventType = 652
	EventTranslationSubtitleStart    EventType = 653
	EventTranslationSubtitleResponse EventType = 654
	EventTranslationSubtitleEnd      EventType = 655
)

func (e EventType) String() string {
	switch e {
	case EventNone:
		return "None"
	case EventStartConnection:
		return "StartConnection"
	case EventFinishConnection:
		return "FinishConnection"
	case EventConnectionStarted:
		return "ConnectionStarted"
	case EventConnectionFailed:
		return "ConnectionFailed"
	case EventConnectionFinished:
		return "ConnectionFinished"
	case EventStartSession:
		return "StartSession"
	case EventCancelSession:
		return "CancelSession"
	case EventFinishSession:
		return "FinishSession"
	case EventSessionStarted:
		return "SessionStarted"
	case EventSessionCanceled:
		return "SessionCanceled"
	case EventSessionFinished:
		return "SessionFinished"
	case EventSessionFailed:
		return "SessionFailed"
	case EventUsageResponse:
		return "UsageResponse"
	case EventTaskRequest:
		return "TaskRequest"
	case EventUpdateConfig:
		return "UpdateConfig"
	case EventAudioMuted:
		return "AudioMuted"
	case EventSayHello:
		return "SayHello"
	case EventTTSSentenceStart:
		return "TTSSentenceStart"
	case EventTTSSentenceEnd:
		return "TTSSentenceEnd"
	case EventTTSResponse:
		return "TTSResponse"
	case EventTTSEnded:
		return "TTSEnded"
	case EventPodcastRoundStart:
		return "PodcastRoundStart"
	case EventPodcastRoundResponse:
		return "PodcastRoundResponse"
	case EventPodcastRoundEnd:
		return "PodcastRoundEnd"
	case EventASRInfo:
		return "ASRInfo"
	case EventASRResponse:
		return "ASRResponse"
	case EventASREnded:
		return "ASREnded"
	case EventChatTTSText:
		return "ChatTTSText"
	case EventChatResponse:
		return "ChatResponse"
	case EventChatEnded:
		return "ChatEnded"
	case EventSourceSubtitleStart:
		return "SourceSubtitleStart"
	case EventSourceSubtitleResponse:
		return "SourceSubtitleResponse"
	case EventSourceSubtitleEnd:
		return "SourceSubtitleEnd"
	case EventTranslationSubtitleStart:
		return "TranslationSubtitleStart"
	case EventTranslationSubtitleResponse:
		return "TranslationSubtitleResponse"
	case EventTranslationSubtitleEnd:
		return "TranslationSubtitleEnd"
	default:
		return fmt.Sprintf("EventType(%d)", int32(e))
	}
}

// EventScope is the numeric range an event belongs to.
type EventScope uint8

const (
	ScopeUnknown EventScope = iota
	ScopeConnection
	ScopeSession
	ScopeTask
	ScopeSynthesis
	ScopeRecognition
	ScopeChat
	ScopeSubtitle
)

func (s EventScope) String() string {
	switch s {
	case ScopeConnection:
		return "connection"
	case ScopeSession:
		return "session"
	case ScopeTask:
		return "task"
	case ScopeSynthesis:
		return "synthesis"
	case ScopeRecognition:
		return "recognition"
	case ScopeChat:
		return "chat"
	case ScopeSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// Scope classifies e by its numeric range.
func (e EventType) Scope() EventScope {
	switch {
	case e >= 1 && e <= 99:
		return ScopeConnection
	case e >= 100 && e <= 199:
		return ScopeSession
	case e >= 200 && e <= 299:
		return ScopeTask
	case e >= 300 && e <= 399:
		return ScopeSynthesis
	case e >= 450 && e <= 499:
		return ScopeRecognition
	case e >= 500 && e <= 599:
		return ScopeChat
	case e >= 650 && e <= 699:
		return ScopeSubtitle
	default:
		return ScopeUnknown
	}
}

// encodeSkipsSessionID lists the connection-scope events whose frames never carry a
// session id when written.
func encodeSkipsSessionID(e EventType) bool {
	switch e {
	case EventStartConnection, EventFinishConnection, EventConnectionStarted, EventConnectionFailed:
		return true
	default:
		return false
	}
}

// decodeSkipsSessionID is the read-side exclusion set; it also covers ConnectionFinished.
func decodeSkipsSessionID(e EventType) bool {
	return encodeSkipsSessionID(e) || e == EventConnectionFinished
}

// hasConnectID reports whether inbound frames for e carry a connect id.
func hasConnectID(e EventType) bool {
	switch e {
	case EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	default:
		return false
	}
}
