package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SynthesisStatus is the final lifecycle state of one synthesis session.
type SynthesisStatus string

const (
	SynthesisStatusFinished SynthesisStatus = "finished"
	SynthesisStatusCanceled SynthesisStatus = "canceled"
	SynthesisStatusFailed   SynthesisStatus = "failed"
)

// SynthesisRecord is the history entry written for every synthesis session
type SynthesisRecord struct {
	ID         string          `json:"id" bson:"_id"`
	SessionID  string          `json:"session_id" bson:"session_id"`
	ConnectID  string          `json:"connect_id" bson:"connect_id"`
	Speaker    string          `json:"speaker" bson:"speaker"`
	TextLength int             `json:"text_length" bson:"text_length"`
	Status     SynthesisStatus `json:"status" bson:"status"`
	AudioBytes int             `json:"audio_bytes" bson:"audio_bytes"`
	Error      string          `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at" bson:"started_at"`
	FinishedAt time.Time       `json:"finished_at" bson:"finished_at"`
}

// NewSynthesisRecord starts a record for a session that is about to run
func NewSynthesisRecord(sessionID, connectID, speaker, text string) *SynthesisRecord {
	return &SynthesisRecord{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		ConnectID:  connectID,
		Speaker:    speaker,
		TextLength: len([]rune(text)),
		StartedAt:  time.Now(),
	}
}

// Finish stamps the outcome. A non-nil err marks the record failed.
func (r *SynthesisRecord) Finish(status SynthesisStatus, audioBytes int, err error) {
	r.Status = status
	r.AudioBytes = audioBytes
	if err != nil {
		r.Status = SynthesisStatusFailed
		r.Error = err.Error()
	}
	r.FinishedAt = time.Now()
}

// Duration is how long the session took, zero while it is still running.
func (r *SynthesisRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *SynthesisRecord) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.SessionID == "" {
		return errors.New("session_id is required")
	}
	switch r.Status {
	case SynthesisStatusFinished, SynthesisStatusCanceled, SynthesisStatusFailed:
	default:
		return errors.New("invalid synthesis status")
	}
	return nil
}
