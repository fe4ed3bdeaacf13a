package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/sandiwara/adapters/tts"
	"github.com/satriahrh/sandiwara/domain/entities"
	"github.com/satriahrh/sandiwara/domain/repositories"
	"github.com/satriahrh/sandiwara/internal/testutil/fakespeech"
)

type recordingTTS struct {
	requests []repositories.SpeechRequest
	failOn   string
}

func (r *recordingTTS) Synthesize(ctx context.Context, req repositories.SpeechRequest) (*repositories.Speech, error) {
	r.requests = append(r.requests, req)
	if req.Text == r.failOn {
		return nil, errors.New("synthesis unavailable")
	}
	return &repositories.Speech{Audio: []byte(req.Speaker + ":" + req.Text), Format: "mp3", SessionID: req.Text}, nil
}

func (r *recordingTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	return nil, errors.New("not used")
}

func TestNarrationService_Narrate(t *testing.T) {
	fake := &recordingTTS{}
	service := NewNarrationService(fake, zaptest.NewLogger(t))

	script := &entities.Script{
		Title: "scene one",
		Lines: []entities.Line{
			{Speaker: "narrator", Text: "Once upon a time"},
			{Speaker: "hero", Text: "Hello"},
		},
	}

	narration, err := service.Narrate(context.Background(), script)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}

	want := []repositories.SpeechRequest{
		{Text: "Once upon a time", Speaker: "narrator"},
		{Text: "Hello", Speaker: "hero"},
	}
	if diff := cmp.Diff(want, fake.requests); diff != "" {
		t.Errorf("Requests mismatch (-want +got):\n%s", diff)
	}
	if len(narration.Lines) != 2 || string(narration.Lines[1].Audio) != "hero:Hello" {
		t.Errorf("Unexpected narration %+v", narration)
	}
	if narration.TotalBytes() != len("narrator:Once upon a time")+len("hero:Hello") {
		t.Errorf("Unexpected total bytes %d", narration.TotalBytes())
	}
}

func TestNarrationService_NarrateErrors(t *testing.T) {
	fake := &recordingTTS{failOn: "broken"}
	service := NewNarrationService(fake, zaptest.NewLogger(t))

	if _, err := service.Narrate(context.Background(), &entities.Script{}); !errors.Is(err, entities.ErrEmptyScript) {
		t.Errorf("Expected ErrEmptyScript, got %v", err)
	}

	script := &entities.Script{Lines: []entities.Line{{Text: "fine"}, {Text: "broken"}, {Text: "never"}}}
	if _, err := service.Narrate(context.Background(), script); err == nil {
		t.Error("Expected failing line to abort narration")
	}
	if len(fake.requests) != 2 {
		t.Errorf("Expected narration to stop after the failing line, got %d requests", len(fake.requests))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := service.Narrate(ctx, &entities.Script{Lines: []entities.Line{{Text: "x"}}}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	if _, err := service.Synthesize(context.Background(), repositories.SpeechRequest{Text: " "}); !errors.Is(err, entities.ErrEmptyLine) {
		t.Errorf("Expected ErrEmptyLine, got %v", err)
	}
}

func TestNarrationService_OneConnectionPerScript(t *testing.T) {
	server := fakespeech.NewServer()
	defer server.Close()

	logger := zaptest.NewLogger(t)
	synthesizer, err := tts.NewOpenSpeechTTS(tts.OpenSpeechConfig{
		AppKey:    "app",
		AccessKey: "token",
		URL:       server.URL(),
		Timeout:   5 * time.Second,
	}, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer synthesizer.Close(context.Background())

	service := NewNarrationService(synthesizer, logger)
	script := &entities.Script{Lines: []entities.Line{
		{Speaker: "a", Text: "line one"},
		{Speaker: "b", Text: "line two"},
		{Speaker: "a", Text: "line three"},
	}}

	narration, err := service.Narrate(context.Background(), script)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	for i, line := range narration.Lines {
		if string(line.Audio) != script.Lines[i].Text {
			t.Errorf("line %d: expected %q, got %q", i, script.Lines[i].Text, line.Audio)
		}
	}
	if got := len(server.Headers()); got != 1 {
		t.Errorf("Expected one connection for the whole script, got %d", got)
	}
	if narration.Lines[0].SessionID == narration.Lines[1].SessionID {
		t.Error("Expected a distinct session per line")
	}
}
