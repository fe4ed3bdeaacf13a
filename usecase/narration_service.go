package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/sandiwara/domain/entities"
	"github.com/satriahrh/sandiwara/domain/repositories"
)

// NarratedLine is the synthesized audio for one script line
type NarratedLine struct {
	Index     int    `json:"index"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	Format    string `json:"format"`
	Audio     []byte `json:"audio"`
}

// Narration is a fully synthesized script
type Narration struct {
	Title string         `json:"title"`
	Lines []NarratedLine `json:"lines"`
}

// TotalBytes is the audio size across all lines
func (n *Narration) TotalBytes() int {
	total := 0
	for _, line := range n.Lines {
		total += len(line.Audio)
	}
	return total
}

// NarrationService turns dialogue scripts into speech, one line at a time
type NarrationService struct {
	textToSpeech repositories.TextToSpeech
	logger       *zap.Logger
}

// NewNarrationService creates a new narration service
func NewNarrationService(tts repositories.TextToSpeech, logger *zap.Logger) *NarrationService {
	return &NarrationService{
		textToSpeech: tts,
		logger:       logger,
	}
}

// Synthesize speaks a single piece of text
func (s *NarrationService) Synthesize(ctx context.Context, req repositories.SpeechRequest) (*repositories.Speech, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, entities.ErrEmptyLine
	}
	speech, err := s.textToSpeech.Synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	return speech, nil
}

// Narrate synthesizes every line of script in order. Lines are spoken strictly one
// after another so the synthesizer can reuse its connection for each session. The
// first failing line aborts the narration.
func (s *NarrationService) Narrate(ctx context.Context, script *entities.Script) (*Narration, error) {
	if err := script.Validate(); err != nil {
		return nil, err
	}

	s.logger.Info("Narrating script",
		zap.String("title", script.Title),
		zap.Int("lines", len(script.Lines)),
		zap.Strings("speakers", script.Speakers()))

	narration := &Narration{
		Title: script.Title,
		Lines: make([]NarratedLine, 0, len(script.Lines)),
	}
	for i, line := range script.Lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		speech, err := s.textToSpeech.Synthesize(ctx, repositories.SpeechRequest{
			Text:    line.Text,
			Speaker: line.Speaker,
		})
		if err != nil {
			s.logger.Error("Failed to narrate line",
				zap.Int("line", i),
				zap.String("speaker", line.Speaker),
				zap.Error(err))
			return nil, fmt.Errorf("line %d: %w", i, err)
		}

		narration.Lines = append(narration.Lines, NarratedLine{
			Index:     i,
			Speaker:   line.Speaker,
			Text:      line.Text,
			SessionID: speech.SessionID,
			Format:    speech.Format,
			Audio:     speech.Audio,
		})
	}

	s.logger.Info("Script narrated",
		zap.String("title", script.Title),
		zap.Int("audioBytes", narration.TotalBytes()))
	return narration, nil
}
