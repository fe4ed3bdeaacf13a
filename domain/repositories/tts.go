package repositories

import "context"

// SpeechRequest is one piece of text to be spoken
type SpeechRequest struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
}

// Speech is synthesized audio for one request
type Speech struct {
	Audio     []byte `json:"-"`
	Format    string `json:"format"`
	SessionID string `json:"session_id"`
}

// TextToSpeech abstracts speech synthesis services
type TextToSpeech interface {
	// Synthesize returns the complete audio for req
	Synthesize(ctx context.Context, req SpeechRequest) (*Speech, error)
	// ConvertTextToSpeech streams audio chunks for text in the default voice.
	// The channel is closed when synthesis ends.
	ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error)
}
