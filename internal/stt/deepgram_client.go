package stt

import (
	"context"
	"fmt"
	"io"
	"time"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/moonlight-recovery/note-builder/internal/config"
	"github.com/moonlight-recovery/note-builder/internal/observability"
)

// DeepgramClient implements Transcriber using Deepgram's prerecorded REST API.
type DeepgramClient struct {
	config  *config.Config
	client  *prerecorded.Client
	timeout time.Duration
}

// NewDeepgramClient creates a new Deepgram prerecorded transcription client
func NewDeepgramClient(cfg *config.Config) *DeepgramClient {
	c := listenClient.NewREST(cfg.DeepgramAPIKey, &interfaces.ClientOptions{})

	return &DeepgramClient{
		config:  cfg,
		client:  prerecorded.New(c),
		timeout: time.Duration(cfg.DeepgramTimeout) * time.Second,
	}
}

// speakerLabel flattens the optional speaker pointer from the diarized
// response. Utterances without a speaker label map to speaker 0.
func speakerLabel(speaker *int) int {
	if speaker == nil {
		return 0
	}
	return *speaker
}

// Transcribe submits audio bytes to Deepgram and returns the transcript.
// Errors surface to the caller unmodified; there is no local retry policy.
func (d *DeepgramClient) Transcribe(ctx context.Context, audio io.Reader, mimeType string) (*Transcription, error) {
	logger := observability.GetLogger()

	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.config.DeepgramModel,
		Language:    d.config.DeepgramLanguage,
		SmartFormat: true,
		Punctuate:   true,
		Diarize:     true,
		Utterances:  true,
	}

	// Large files can take minutes; bound the call with the configured timeout.
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	response, err := d.client.FromStream(ctx, audio, options)
	observability.RecordTranscription(start, err)
	if err != nil {
		return nil, fmt.Errorf("deepgram transcription failed: %w", err)
	}

	if response == nil || len(response.Results.Channels) == 0 ||
		len(response.Results.Channels[0].Alternatives) == 0 {
		return nil, fmt.Errorf("deepgram returned no transcription alternatives")
	}

	alt := response.Results.Channels[0].Alternatives[0]
	result := &Transcription{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
	}

	for _, u := range response.Results.Utterances {
		result.Utterances = append(result.Utterances, Utterance{
			Speaker:    speakerLabel(u.Speaker),
			Text:       u.Transcript,
			Start:      u.Start,
			End:        u.End,
			Confidence: u.Confidence,
		})
	}

	logger.Info().
		Str("model", d.config.DeepgramModel).
		Float64("confidence", result.Confidence).
		Int("utterances", len(result.Utterances)).
		Dur("elapsed", time.Since(start)).
		Msg("Transcription complete")

	return result, nil
}
