package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/sandiwara/domain/entities"
	"github.com/satriahrh/sandiwara/domain/repositories"
	"github.com/satriahrh/sandiwara/internal/metrics"
	"github.com/satriahrh/sandiwara/internal/protocol"
	"github.com/satriahrh/sandiwara/internal/session"
	"github.com/satriahrh/sandiwara/internal/websocket"
)

const (
	defaultURL        = "wss://openspeech.bytedance.com/api/v3/tts/bidirection"
	defaultResourceID = "volc.service_type.10029"
	defaultSpeaker    = "zh_female_cancan_mars_bigtts"
	defaultFormat     = "mp3"
	defaultSampleRate = 24000
	defaultUserID     = "sandiwara"
	defaultTimeout    = 60 * time.Second // Per synthesized line
	defaultChanSize   = 10

	// Bound on the cleanup exchange after a stream is abandoned
	cancelTimeout = 5 * time.Second

	namespace = "BidirectionalTTS"
)

// OpenSpeechConfig holds configuration for the OpenSpeechTTS adapter
// Required fields:
// - AppKey: application key sent as X-Api-App-Key
// - AccessKey: access token sent as X-Api-Access-Key
// Optional fields fall back to the defaults above.
type OpenSpeechConfig struct {
	AppKey     string        // Required
	AccessKey  string        // Required
	ResourceID string        // Optional: X-Api-Resource-Id
	URL        string        // Optional: websocket endpoint
	Speaker    string        // Optional: voice used when a request names none
	Format     string        // Optional: audio container, e.g. mp3, pcm, ogg_opus
	SampleRate int           // Optional: output sample rate in Hz
	UserID     string        // Optional: user.uid reported to the service
	Timeout    time.Duration // Optional: deadline for one synthesis session
}

// ValidateOpenSpeechConfig validates the OpenSpeechConfig
func ValidateOpenSpeechConfig(config OpenSpeechConfig) error {
	if config.AppKey == "" {
		return fmt.Errorf("openspeech app key is required")
	}
	if config.AccessKey == "" {
		return fmt.Errorf("openspeech access key is required")
	}
	if config.SampleRate < 0 {
		return fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}
	return nil
}

// NewOpenSpeechConfigFromEnv creates a new OpenSpeechConfig from environment variables
func NewOpenSpeechConfigFromEnv() OpenSpeechConfig {
	config := OpenSpeechConfig{
		AppKey:     os.Getenv("OPENSPEECH_APP_KEY"),
		AccessKey:  os.Getenv("OPENSPEECH_ACCESS_KEY"),
		ResourceID: os.Getenv("OPENSPEECH_RESOURCE_ID"),
		URL:        os.Getenv("OPENSPEECH_URL"),
		Speaker:    os.Getenv("OPENSPEECH_SPEAKER"),
		Format:     os.Getenv("OPENSPEECH_FORMAT"),
		UserID:     os.Getenv("OPENSPEECH_USER_ID"),
	}

	if sampleRateStr := os.Getenv("OPENSPEECH_SAMPLE_RATE"); sampleRateStr != "" {
		if sampleRate, err := strconv.Atoi(sampleRateStr); err == nil && sampleRate > 0 {
			config.SampleRate = sampleRate
		}
	}

	if timeoutStr := os.Getenv("OPENSPEECH_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil && timeout > 0 {
			config.Timeout = timeout
		}
	}

	return config
}

// Option configures an OpenSpeechTTS
type Option func(*OpenSpeechTTS)

// WithMetrics records connection and session traffic on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *OpenSpeechTTS) {
		o.metrics = m
	}
}

// WithRepository stores one SynthesisRecord per session in repo
func WithRepository(repo repositories.SynthesisRepository) Option {
	return func(o *OpenSpeechTTS) {
		o.repo = repo
	}
}

// OpenSpeechTTS implements TextToSpeech over the bidirectional synthesis websocket.
//
// One connection is kept open and reused for successive sessions; sessions on it run
// one at a time. A session that fails leaves the connection in an unknown state, so
// the connection is dropped and the next call dials again. Waiting for a turn honors
// the caller's context.
type OpenSpeechTTS struct {
	appKey     string
	accessKey  string
	resourceID string
	url        string
	speaker    string
	format     string
	sampleRate int
	userID     string
	timeout    time.Duration

	logger  *zap.Logger
	metrics *metrics.Metrics
	repo    repositories.SynthesisRepository

	// Guards speaker and format
	mu sync.Mutex

	// One-slot semaphore held for a whole session; guards conn and client
	sem    chan struct{}
	conn   *websocket.Conn
	client *session.Client
}

var _ repositories.TextToSpeech = (*OpenSpeechTTS)(nil)

// NewOpenSpeechTTS creates a new OpenSpeechTTS instance. No connection is opened until
// the first synthesis.
func NewOpenSpeechTTS(config OpenSpeechConfig, logger *zap.Logger, opts ...Option) (*OpenSpeechTTS, error) {
	if err := ValidateOpenSpeechConfig(config); err != nil {
		return nil, err
	}

	url := config.URL
	if url == "" {
		url = defaultURL
		logger.Info("Using default URL", zap.String("url", url))
	}

	resourceID := config.ResourceID
	if resourceID == "" {
		resourceID = defaultResourceID
		logger.Info("Using default resource ID", zap.String("resourceID", resourceID))
	}

	speaker := config.Speaker
	if speaker == "" {
		speaker = defaultSpeaker
		logger.Info("Using default speaker", zap.String("speaker", speaker))
	}

	format := config.Format
	if format == "" {
		format = defaultFormat
		logger.Info("Using default format", zap.String("format", format))
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
		logger.Info("Using default sample rate", zap.Int("sampleRate", sampleRate))
	}

	userID := config.UserID
	if userID == "" {
		userID = defaultUserID
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
		logger.Info("Using default timeout", zap.Duration("timeout", timeout))
	}

	o := &OpenSpeechTTS{
		appKey:     config.AppKey,
		accessKey:  config.AccessKey,
		resourceID: resourceID,
		url:        url,
		speaker:    speaker,
		format:     format,
		sampleRate: sampleRate,
		userID:     userID,
		timeout:    timeout,
		logger:     logger,
		sem:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type requestPayload struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	Event     protocol.EventType `json:"event"`
	Namespace string             `json:"namespace"`
	ReqParams reqParams          `json:"req_params"`
}

type reqParams struct {
	Text        string      `json:"text,omitempty"`
	Speaker     string      `json:"speaker"`
	AudioParams audioParams `json:"audio_params"`
}

type audioParams struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

func (o *OpenSpeechTTS) payload(event protocol.EventType, text, speaker, format string) ([]byte, error) {
	var p requestPayload
	p.User.UID = o.userID
	p.Event = event
	p.Namespace = namespace
	p.ReqParams = reqParams{
		Text:    text,
		Speaker: speaker,
		AudioParams: audioParams{
			Format:     format,
			SampleRate: o.sampleRate,
		},
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return data, nil
}

// Synthesize speaks req.Text and returns the complete audio.
func (o *OpenSpeechTTS) Synthesize(ctx context.Context, req repositories.SpeechRequest) (*repositories.Speech, error) {
	var audio []byte
	sessionID, format, err := o.stream(ctx, req, func(_ context.Context, chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, session.ErrEmptyResult)
	}
	return &repositories.Speech{
		Audio:     audio,
		Format:    format,
		SessionID: sessionID,
	}, nil
}

// ConvertTextToSpeech streams the audio for text in the default voice.
// Failures are logged and end the stream early.
func (o *OpenSpeechTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	audioChan := make(chan []byte, defaultChanSize)
	go func() {
		defer close(audioChan)

		// The session context also ends with the per-line timeout, so an abandoned
		// channel cannot hold the session slot forever.
		_, _, err := o.stream(ctx, repositories.SpeechRequest{Text: text}, func(sessionCtx context.Context, chunk []byte) error {
			select {
			case audioChan <- chunk:
				return nil
			case <-sessionCtx.Done():
				return sessionCtx.Err()
			}
		})
		if err != nil {
			o.logger.Error("Streaming synthesis failed", zap.Error(err))
		}
	}()
	return audioChan, nil
}

// SynthesizeStream runs one session for req and passes every audio chunk to fn in
// order. It returns the session id. If fn fails or ctx ends mid-stream the session is
// cancelled.
func (o *OpenSpeechTTS) SynthesizeStream(ctx context.Context, req repositories.SpeechRequest, fn func(chunk []byte) error) (string, error) {
	sessionID, _, err := o.stream(ctx, req, func(_ context.Context, chunk []byte) error {
		return fn(chunk)
	})
	return sessionID, err
}

// stream also reports the audio format the session was requested in. fn receives the
// session context, which ends at the per-line timeout.
func (o *OpenSpeechTTS) stream(ctx context.Context, req repositories.SpeechRequest, fn func(ctx context.Context, chunk []byte) error) (string, string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", "", fmt.Errorf("text cannot be empty")
	}

	o.mu.Lock()
	speaker := req.Speaker
	if speaker == "" {
		speaker = o.speaker
	}
	format := o.format
	o.mu.Unlock()

	if err := o.acquire(ctx); err != nil {
		return "", format, err
	}
	defer o.release()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	client, err := o.connectLocked(ctx)
	if err != nil {
		return "", format, err
	}

	sessionID := uuid.New().String()
	record := entities.NewSynthesisRecord(sessionID, client.ConnectID(), speaker, req.Text)
	logger := o.logger.With(zap.String("sessionID", sessionID), zap.String("speaker", speaker))

	started := false
	n, err := o.runSession(ctx, client, sessionID, req.Text, speaker, format, &started, func(chunk []byte) error {
		return fn(ctx, chunk)
	})
	status := entities.SynthesisStatusFinished
	if err != nil {
		status = entities.SynthesisStatusFailed
		if started && o.cancelSession(client, sessionID, logger) {
			status = entities.SynthesisStatusCanceled
		} else {
			o.closeLocked()
		}
		logger.Warn("Synthesis session ended with error",
			zap.Stringer("state", client.State()),
			zap.Error(err))
	} else {
		logger.Info("Synthesis session finished", zap.Int("audioBytes", n))
	}
	o.metrics.SessionEnded(client.State().String())

	if status == entities.SynthesisStatusCanceled {
		record.Finish(status, n, nil)
		record.Error = err.Error()
	} else {
		record.Finish(status, n, err)
	}
	o.save(record)

	if err != nil {
		return sessionID, format, fmt.Errorf("synthesize session %s: %w", sessionID, err)
	}
	return sessionID, format, nil
}

func (o *OpenSpeechTTS) runSession(ctx context.Context, client *session.Client, sessionID, text, speaker, format string, started *bool, fn func(chunk []byte) error) (int, error) {
	startPayload, err := o.payload(protocol.EventStartSession, "", speaker, format)
	if err != nil {
		return 0, err
	}
	if err := client.StartSession(ctx, sessionID, startPayload); err != nil {
		return 0, err
	}
	*started = true

	taskPayload, err := o.payload(protocol.EventTaskRequest, text, speaker, format)
	if err != nil {
		return 0, err
	}
	if err := client.SendTask(sessionID, taskPayload); err != nil {
		return 0, err
	}
	if err := client.FinishSession(sessionID); err != nil {
		return 0, err
	}
	return client.StreamAudio(ctx, fn)
}

// cancelSession tries to end an abandoned session cleanly. It reports whether the
// service confirmed the cancellation, in which case the connection stays usable.
func (o *OpenSpeechTTS) cancelSession(client *session.Client, sessionID string, logger *zap.Logger) bool {
	if client.State().Terminal() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()

	if err := client.CancelSession(ctx, sessionID); err != nil {
		logger.Warn("Failed to cancel synthesis session", zap.Error(err))
		return false
	}
	return client.State() == session.StateCanceled
}

// acquire takes the session slot, giving up when ctx ends.
func (o *OpenSpeechTTS) acquire(ctx context.Context) error {
	select {
	case o.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for speech session: %w", ctx.Err())
	}
}

func (o *OpenSpeechTTS) release() {
	<-o.sem
}

// connectLocked returns the live client, dialing a new connection if there is none.
func (o *OpenSpeechTTS) connectLocked(ctx context.Context) (*session.Client, error) {
	if o.client != nil {
		select {
		case <-o.conn.Done():
			o.logger.Info("Speech connection lost, reconnecting")
			o.closeLocked()
		default:
			return o.client, nil
		}
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", o.appKey)
	header.Set("X-Api-Access-Key", o.accessKey)
	header.Set("X-Api-Resource-Id", o.resourceID)
	header.Set("X-Api-Connect-Id", uuid.New().String())

	conn, _, err := websocket.Dial(ctx, o.url, header, o.logger, websocket.WithMetrics(o.metrics))
	if err != nil {
		return nil, err
	}

	client := session.NewClient(conn, o.logger)
	if err := client.Connect(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	o.conn = conn
	o.client = client
	return client, nil
}

func (o *OpenSpeechTTS) closeLocked() {
	if o.conn != nil {
		o.conn.Close()
	}
	o.conn = nil
	o.client = nil
}

func (o *OpenSpeechTTS) save(record *entities.SynthesisRecord) {
	if o.repo == nil {
		return
	}
	// The caller's context may already be done; history is written regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.repo.Create(ctx, record); err != nil {
		o.logger.Error("Failed to save synthesis record",
			zap.String("sessionID", record.SessionID),
			zap.Error(err))
	}
}

// Close finishes the connection, if one is open, and closes it. It waits for a running
// session to end, at most until ctx is done.
func (o *OpenSpeechTTS) Close(ctx context.Context) error {
	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.release()

	if o.client == nil {
		return nil
	}
	err := o.client.Disconnect(ctx)
	o.closeLocked()
	if err != nil && !errors.Is(err, websocket.ErrConnectionClosed) {
		return err
	}
	return nil
}

// SetSpeaker changes the default voice
func (o *OpenSpeechTTS) SetSpeaker(speaker string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.speaker = speaker
	o.logger.Info("Updated speaker", zap.String("speaker", speaker))
}

// SetFormat changes the output format for later sessions
func (o *OpenSpeechTTS) SetFormat(format string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.format = format
	o.logger.Info("Updated format", zap.String("format", format))
}
