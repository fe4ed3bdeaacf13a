package tts

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/sandiwara/adapters/memory"
	"github.com/satriahrh/sandiwara/domain/entities"
	"github.com/satriahrh/sandiwara/domain/repositories"
	"github.com/satriahrh/sandiwara/internal/metrics"
	"github.com/satriahrh/sandiwara/internal/protocol"
	"github.com/satriahrh/sandiwara/internal/testutil/fakespeech"
)

type fixture struct {
	server   *fakespeech.Server
	tts      *OpenSpeechTTS
	repo     *memory.SynthesisRepository
	registry *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithTimeout(t, 5*time.Second)
}

func newFixtureWithTimeout(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	server := fakespeech.NewServer()
	t.Cleanup(server.Close)

	repo := memory.NewSynthesisRepository()
	registry := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(registry))

	config := OpenSpeechConfig{
		AppKey:    "app",
		AccessKey: "token",
		URL:       server.URL(),
		Timeout:   timeout,
	}
	tts, err := NewOpenSpeechTTS(config, zaptest.NewLogger(t), WithRepository(repo), WithMetrics(m))
	if err != nil {
		t.Fatalf("Failed to create OpenSpeechTTS: %v", err)
	}
	t.Cleanup(func() { tts.Close(context.Background()) })

	return &fixture{server: server, tts: tts, repo: repo, registry: registry}
}

func events(msgs []*protocol.Message) []protocol.EventType {
	var out []protocol.EventType
	for _, msg := range msgs {
		out = append(out, msg.Event)
	}
	return out
}

func TestNewOpenSpeechTTS(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Setenv("OPENSPEECH_APP_KEY", "")
	t.Setenv("OPENSPEECH_ACCESS_KEY", "")
	if _, err := NewOpenSpeechTTS(NewOpenSpeechConfigFromEnv(), logger); err == nil {
		t.Error("Expected error when keys are not set")
	}

	t.Setenv("OPENSPEECH_APP_KEY", "app")
	t.Setenv("OPENSPEECH_ACCESS_KEY", "token")
	t.Setenv("OPENSPEECH_SAMPLE_RATE", "16000")
	t.Setenv("OPENSPEECH_TIMEOUT", "15s")

	tts, err := NewOpenSpeechTTS(NewOpenSpeechConfigFromEnv(), logger)
	if err != nil {
		t.Fatalf("Failed to create OpenSpeechTTS: %v", err)
	}
	if tts.url != defaultURL {
		t.Errorf("Expected default URL '%s', got '%s'", defaultURL, tts.url)
	}
	if tts.speaker != defaultSpeaker {
		t.Errorf("Expected default speaker '%s', got '%s'", defaultSpeaker, tts.speaker)
	}
	if tts.sampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", tts.sampleRate)
	}
	if tts.timeout != 15*time.Second {
		t.Errorf("Expected timeout 15s, got %s", tts.timeout)
	}
}

func TestValidateOpenSpeechConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  OpenSpeechConfig
		wantErr bool
	}{
		{"missing app key", OpenSpeechConfig{AccessKey: "t"}, true},
		{"missing access key", OpenSpeechConfig{AppKey: "a"}, true},
		{"negative sample rate", OpenSpeechConfig{AppKey: "a", AccessKey: "t", SampleRate: -1}, true},
		{"negative timeout", OpenSpeechConfig{AppKey: "a", AccessKey: "t", Timeout: -time.Second}, true},
		{"valid", OpenSpeechConfig{AppKey: "a", AccessKey: "t"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOpenSpeechConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOpenSpeechTTS_Synthesize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	speech, err := f.tts.Synthesize(ctx, repositories.SpeechRequest{Text: "hello world", Speaker: "narrator"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(speech.Audio) != "hello world" {
		t.Errorf("Expected audio 'hello world', got %q", speech.Audio)
	}
	if speech.Format != defaultFormat {
		t.Errorf("Expected format %s, got %s", defaultFormat, speech.Format)
	}

	headers := f.server.Headers()
	if len(headers) != 1 {
		t.Fatalf("Expected one connection, got %d", len(headers))
	}
	if headers[0].Get("X-Api-App-Key") != "app" || headers[0].Get("X-Api-Access-Key") != "token" {
		t.Errorf("Expected credentials in handshake, got %v", headers[0])
	}
	if headers[0].Get("X-Api-Resource-Id") != defaultResourceID || headers[0].Get("X-Api-Connect-Id") == "" {
		t.Errorf("Expected resource and connect id headers, got %v", headers[0])
	}

	received := f.server.Received()
	want := []protocol.EventType{
		protocol.EventStartConnection,
		protocol.EventStartSession,
		protocol.EventTaskRequest,
		protocol.EventFinishSession,
	}
	if diff := cmp.Diff(want, events(received)); diff != "" {
		t.Errorf("Client events mismatch (-want +got):\n%s", diff)
	}

	var task requestPayload
	if err := json.Unmarshal(received[2].Payload, &task); err != nil {
		t.Fatalf("Task payload is not JSON: %v", err)
	}
	if task.Event != protocol.EventTaskRequest || task.Namespace != namespace {
		t.Errorf("Unexpected task envelope %+v", task)
	}
	if task.ReqParams.Text != "hello world" || task.ReqParams.Speaker != "narrator" {
		t.Errorf("Unexpected task params %+v", task.ReqParams)
	}
	if task.ReqParams.AudioParams.SampleRate != defaultSampleRate {
		t.Errorf("Expected sample rate %d, got %d", defaultSampleRate, task.ReqParams.AudioParams.SampleRate)
	}
	if received[1].SessionID != speech.SessionID {
		t.Errorf("Expected session id %s on StartSession, got %s", speech.SessionID, received[1].SessionID)
	}

	record, err := f.repo.GetBySessionID(ctx, speech.SessionID)
	if err != nil {
		t.Fatalf("Expected synthesis record: %v", err)
	}
	if record.Status != entities.SynthesisStatusFinished || record.AudioBytes != 11 {
		t.Errorf("Unexpected record %+v", record)
	}
	if record.ConnectID != "fake-connect" || record.Speaker != "narrator" {
		t.Errorf("Unexpected record identity %+v", record)
	}

	count, err := testutil.GatherAndCount(f.registry, "sandiwara_speech_sessions_total")
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected one session series, got %d", count)
	}
}

func TestOpenSpeechTTS_ReusesConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"first line", "second line"} {
		speech, err := f.tts.Synthesize(ctx, repositories.SpeechRequest{Text: text})
		if err != nil {
			t.Fatalf("Synthesize(%q) failed: %v", text, err)
		}
		if string(speech.Audio) != text {
			t.Errorf("Expected %q, got %q", text, speech.Audio)
		}
	}

	if got := len(f.server.Headers()); got != 1 {
		t.Errorf("Expected sessions to share one connection, got %d connections", got)
	}

	if err := f.tts.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	received := f.server.Received()
	if last := received[len(received)-1]; last.Event != protocol.EventFinishConnection {
		t.Errorf("Expected FinishConnection last, got %s", last.Event)
	}
}

func TestOpenSpeechTTS_ServerError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tts.Synthesize(ctx, repositories.SpeechRequest{Text: fakespeech.ErrorText})
	var serverErr *protocol.ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("Expected ServerError, got %v", err)
	}
	if serverErr.Code != 55000001 {
		t.Errorf("Expected code 55000001, got %d", serverErr.Code)
	}

	records, _ := f.repo.ListRecent(ctx, 1)
	if len(records) != 1 || records[0].Status != entities.SynthesisStatusFailed || records[0].Error == "" {
		t.Errorf("Expected failed record, got %+v", records)
	}

	// The failed connection is dropped and the next call dials again.
	speech, err := f.tts.Synthesize(ctx, repositories.SpeechRequest{Text: "recovered"})
	if err != nil {
		t.Fatalf("Synthesize after failure failed: %v", err)
	}
	if string(speech.Audio) != "recovered" {
		t.Errorf("Expected 'recovered', got %q", speech.Audio)
	}
	if got := len(f.server.Headers()); got != 2 {
		t.Errorf("Expected a new connection after failure, got %d connections", got)
	}
}

func TestOpenSpeechTTS_CancelKeepsConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.server.PauseAfterFirstChunk.Store(true)

	errStop := errors.New("stop")
	var chunks [][]byte
	sessionID, err := f.tts.SynthesizeStream(ctx, repositories.SpeechRequest{Text: "interrupted"}, func(chunk []byte) error {
		chunks = append(chunks, chunk)
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("Expected errStop, got %v", err)
	}
	if len(chunks) != 1 || string(chunks[0]) != "inte" {
		t.Errorf("Expected only the first chunk, got %q", chunks)
	}

	record, err := f.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		t.Fatalf("Expected synthesis record: %v", err)
	}
	if record.Status != entities.SynthesisStatusCanceled {
		t.Errorf("Expected canceled record, got %s", record.Status)
	}

	f.server.PauseAfterFirstChunk.Store(false)
	speech, err := f.tts.Synthesize(ctx, repositories.SpeechRequest{Text: "next"})
	if err != nil {
		t.Fatalf("Synthesize after cancel failed: %v", err)
	}
	if string(speech.Audio) != "next" {
		t.Errorf("Expected 'next', got %q", speech.Audio)
	}
	if got := len(f.server.Headers()); got != 1 {
		t.Errorf("Expected cancelled session to keep the connection, got %d connections", got)
	}
}

func TestOpenSpeechTTS_ConvertTextToSpeech(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := f.tts.ConvertTextToSpeech(ctx, "   "); err == nil {
		t.Error("Expected error for whitespace-only text")
	}

	audioChan, err := f.tts.ConvertTextToSpeech(ctx, "streamed text")
	if err != nil {
		t.Fatalf("ConvertTextToSpeech failed: %v", err)
	}

	var audio []byte
	chunkCount := 0
	for chunk := range audioChan {
		audio = append(audio, chunk...)
		chunkCount++
	}
	if string(audio) != "streamed text" {
		t.Errorf("Expected 'streamed text', got %q", audio)
	}
	if chunkCount != 4 {
		t.Errorf("Expected 4 chunks, got %d", chunkCount)
	}
}

func TestOpenSpeechTTS_AbandonedStreamReleasesSession(t *testing.T) {
	f := newFixtureWithTimeout(t, 2*time.Second)

	// More chunks than the channel buffers, and nobody reads them.
	audioChan, err := f.tts.ConvertTextToSpeech(context.Background(), strings.Repeat("a", 200))
	if err != nil {
		t.Fatalf("ConvertTextToSpeech failed: %v", err)
	}

	waitFor(t, time.Second, "stream to finish its session request", func() bool {
		for _, msg := range f.server.Received() {
			if msg.Event == protocol.EventFinishSession {
				return true
			}
		}
		return false
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := f.tts.Synthesize(ctx, repositories.SpeechRequest{Text: "blocked"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected Synthesize to give up with its context, got %v", err)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer closeCancel()
	if err := f.tts.Close(closeCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected Close to give up with its context, got %v", err)
	}

	// The session timeout ends the stalled send and frees the session.
	waitFor(t, 5*time.Second, "abandoned session to be recorded", func() bool {
		records, _ := f.repo.ListRecent(context.Background(), 1)
		return len(records) == 1
	})
	records, _ := f.repo.ListRecent(context.Background(), 1)
	if records[0].Status == entities.SynthesisStatusFinished {
		t.Errorf("Expected abandoned session not to finish, got %s", records[0].Status)
	}

	speech, err := f.tts.Synthesize(context.Background(), repositories.SpeechRequest{Text: "after"})
	if err != nil {
		t.Fatalf("Synthesize after abandoned stream failed: %v", err)
	}
	if string(speech.Audio) != "after" {
		t.Errorf("Expected 'after', got %q", speech.Audio)
	}

	drained := make(chan struct{})
	go func() {
		for range audioChan {
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Error("Expected the abandoned channel to be closed")
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOpenSpeechTTS_DialFailure(t *testing.T) {
	config := OpenSpeechConfig{AppKey: "a", AccessKey: "t", URL: "ws://127.0.0.1:1/unreachable"}
	tts, err := NewOpenSpeechTTS(config, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tts.Synthesize(context.Background(), repositories.SpeechRequest{Text: "x"}); err == nil {
		t.Error("Expected dial failure")
	}
}
