package stt

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cdichat/voicebridge/domain/entities"
	"github.com/cdichat/voicebridge/domain/repositories"
)

const (
	defaultSampleRate = 16000
	defaultEncoding   = "WEBM_OPUS"
)

// GoogleConfig holds audio parameters for the streaming recognizer
type GoogleConfig struct {
	SampleRate int
	Encoding   string
}

// NewGoogleConfigFromEnv creates a GoogleConfig from environment variables
func NewGoogleConfigFromEnv() GoogleConfig {
	config := GoogleConfig{
		Encoding: os.Getenv("GOOGLE_STT_ENCODING"),
	}
	if rateStr := os.Getenv("GOOGLE_STT_SAMPLE_RATE"); rateStr != "" {
		if rate, err := strconv.Atoi(rateStr); err == nil && rate > 0 {
			config.SampleRate = rate
		}
	}
	return config
}

// GoogleRecognizer implements the SpeechRecognizer capability interface
// on top of Google Cloud Speech streaming recognition. Audio is pushed
// in through Feed; results and lifecycle transitions come back through
// the configured event slots.
type GoogleRecognizer struct {
	logger     *zap.Logger
	audio      GoogleConfig
	recognizer repositories.RecognizerConfig
	events     repositories.RecognizerEvents

	mu            sync.Mutex
	client        *speech.Client
	stream        speechpb.Speech_StreamingRecognizeClient
	cancel        context.CancelFunc
	active        bool
	speaking      bool
	stopRequested bool
}

var (
	_ repositories.SpeechRecognizer = (*GoogleRecognizer)(nil)
	_ repositories.AudioStreamer    = (*GoogleRecognizer)(nil)
)

// NewGoogleRecognizer creates an unconfigured recognizer
func NewGoogleRecognizer(audio GoogleConfig, logger *zap.Logger) *GoogleRecognizer {
	if audio.SampleRate == 0 {
		audio.SampleRate = defaultSampleRate
	}
	if audio.Encoding == "" {
		audio.Encoding = defaultEncoding
	}
	return &GoogleRecognizer{
		logger: logger,
		audio:  audio,
	}
}

// Configure implements repositories.SpeechRecognizer
func (g *GoogleRecognizer) Configure(config repositories.RecognizerConfig, events repositories.RecognizerEvents) error {
	if _, err := audioEncoding(g.audio.Encoding); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.recognizer = config
	g.events = events
	return nil
}

// Start opens a streaming recognition session. The start event fires
// once the stream configuration is accepted; the engine then runs until
// Stop, a stream error, or Google's per-stream duration limit.
func (g *GoogleRecognizer) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.active {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	client, err := speech.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create speech client: %w", err)
	}

	// The stream outlives the Start call, so it is bound to its own
	// context rather than the caller's request context.
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		client.Close()
		return fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	encoding, err := audioEncoding(g.audio.Encoding)
	if err != nil {
		cancel()
		stream.CloseSend()
		client.Close()
		return err
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        encoding,
					SampleRateHertz: int32(g.audio.SampleRate),
					LanguageCode:    g.recognizer.Language,
					MaxAlternatives: int32(g.recognizer.MaxAlternatives),
				},
				InterimResults:  g.recognizer.InterimResults,
				SingleUtterance: !g.recognizer.Continuous,
			},
		},
	}); err != nil {
		cancel()
		stream.CloseSend()
		client.Close()
		return fmt.Errorf("failed to send streaming config: %w", err)
	}

	g.mu.Lock()
	g.client = client
	g.stream = stream
	g.cancel = cancel
	g.active = true
	g.speaking = false
	g.stopRequested = false
	g.mu.Unlock()

	go g.receiveResults(stream)

	g.logger.Info("Google streaming recognition started",
		zap.String("language", g.recognizer.Language),
		zap.Int("sample_rate", g.audio.SampleRate))

	if g.events.OnStart != nil {
		g.events.OnStart()
	}
	return nil
}

// Stop closes the audio stream. The end event is emitted by the
// receive loop once the stream drains.
func (g *GoogleRecognizer) Stop() error {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return nil
	}
	g.stopRequested = true
	stream := g.stream
	g.mu.Unlock()

	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send stream: %w", err)
	}
	return nil
}

// Feed implements repositories.AudioStreamer
func (g *GoogleRecognizer) Feed(data []byte) error {
	g.mu.Lock()
	active := g.active
	stream := g.stream
	g.mu.Unlock()

	if !active {
		return fmt.Errorf("recognizer is not listening")
	}
	if len(data) == 0 {
		return nil
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

func (g *GoogleRecognizer) receiveResults(stream speechpb.Speech_StreamingRecognizeClient) {
	defer g.teardown()

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			g.handleStreamError(err)
			return
		}

		if len(resp.Results) > 0 {
			g.emitResults(resp.Results)
		}
	}
}

func (g *GoogleRecognizer) emitResults(results []*speechpb.StreamingRecognitionResult) {
	g.mu.Lock()
	firstSpeech := !g.speaking
	g.speaking = true
	g.mu.Unlock()

	if firstSpeech && g.events.OnSpeechStart != nil {
		g.events.OnSpeechStart()
	}

	out := make([]entities.RecognitionResult, 0, len(results))
	sawFinal := false
	for _, result := range results {
		if len(result.Alternatives) == 0 {
			continue
		}

		best := result.Alternatives[0]
		alternatives := make([]string, 0, len(result.Alternatives)-1)
		for _, alt := range result.Alternatives[1:] {
			alternatives = append(alternatives, alt.Transcript)
		}

		out = append(out, entities.RecognitionResult{
			Transcript:   strings.TrimSpace(best.Transcript),
			Confidence:   float64(best.Confidence),
			IsFinal:      result.IsFinal,
			Alternatives: alternatives,
			Timestamp:    time.Now(),
		})
		if result.IsFinal {
			sawFinal = true
		}
	}

	if len(out) > 0 && g.events.OnResult != nil {
		g.events.OnResult(out)
	}

	if sawFinal {
		g.mu.Lock()
		g.speaking = false
		g.mu.Unlock()
		if g.events.OnSpeechEnd != nil {
			g.events.OnSpeechEnd()
		}
	}
}

func (g *GoogleRecognizer) handleStreamError(err error) {
	g.mu.Lock()
	deliberate := g.stopRequested
	g.mu.Unlock()

	code := repositories.ErrCodeNetwork
	if deliberate || status.Code(err) == codes.Canceled {
		code = repositories.ErrCodeAborted
	}

	g.logger.Warn("Streaming recognition error",
		zap.String("code", code),
		zap.Error(err))

	if g.events.OnError != nil {
		g.events.OnError(code)
	}
}

func (g *GoogleRecognizer) teardown() {
	g.mu.Lock()
	client := g.client
	cancel := g.cancel
	g.client = nil
	g.stream = nil
	g.cancel = nil
	g.active = false
	g.speaking = false
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.Close()
	}

	if g.events.OnEnd != nil {
		g.events.OnEnd()
	}
}

func audioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported audio encoding: %s", encoding)
	}
}
