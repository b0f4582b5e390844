package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/scrypster/recall/internal/logger"
)

// GCPSpeechConfig configures the Google Cloud Speech transcriber.
type GCPSpeechConfig struct {
	LanguageCode    string        // default: en-US
	CredentialsFile string        // empty uses application default credentials
	Timeout         time.Duration // default: 60s
	Logger          *logger.Logger
}

// GCPSpeechTranscriber implements Transcriber with synchronous Recognize calls.
// Captures are short voice notes, so the one-minute synchronous limit applies.
type GCPSpeechTranscriber struct {
	client         *speech.Client
	cfg            GCPSpeechConfig
	circuitBreaker *CircuitBreaker
}

// NewGCPSpeechTranscriber dials the Speech API.
func NewGCPSpeechTranscriber(ctx context.Context, cfg GCPSpeechConfig) (*GCPSpeechTranscriber, error) {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &GCPSpeechTranscriber{
		client:         client,
		cfg:            cfg,
		circuitBreaker: NewCircuitBreaker("gcp.speech", cfg.Logger),
	}, nil
}

// Transcribe sends the audio inline and joins the top alternative of each result.
func (t *GCPSpeechTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio is empty")
	}

	return execute(ctx, t.circuitBreaker, "gcp speech", func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()

		resp, err := t.client.Recognize(ctx, &speechpb.RecognizeRequest{
			Config: &speechpb.RecognitionConfig{
				Encoding:                   speechEncoding(mimeType),
				LanguageCode:               t.cfg.LanguageCode,
				EnableAutomaticPunctuation: true,
			},
			Audio: &speechpb.RecognitionAudio{
				AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
			},
		})
		if err != nil {
			return "", fmt.Errorf("speech recognize: %w", err)
		}

		parts := make([]string, 0, len(resp.GetResults()))
		for _, r := range resp.GetResults() {
			alts := r.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			if text := strings.TrimSpace(alts[0].GetTranscript()); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, " "), nil
	})
}

// Close releases the underlying gRPC connection.
func (t *GCPSpeechTranscriber) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}

var _ Transcriber = (*GCPSpeechTranscriber)(nil)

func speechEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3"), strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
