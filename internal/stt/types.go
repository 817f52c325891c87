package stt

import (
	"context"
	"io"
)

// Utterance is a speaker-labeled span of a transcription.
type Utterance struct {
	Speaker    int     `json:"speaker"`
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Transcription is the result of a prerecorded transcription call.
type Transcription struct {
	// Text is the full transcript of the best alternative
	Text string `json:"text"`

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64 `json:"confidence"`

	// Utterances carries optional speaker-labeled spans (diarization)
	Utterances []Utterance `json:"utterances,omitempty"`
}

// Transcriber is the interface for prerecorded speech-to-text clients.
// The call blocks until the service returns a transcript or fails; transport
// errors surface to the caller unmodified.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, mimeType string) (*Transcription, error)
}

// LiveResult is a single transcription result from a streaming session.
type LiveResult struct {
	// Text is the transcribed text
	Text string

	// IsFinal indicates if this is a final transcription (true) or interim (false)
	IsFinal bool

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64

	// StartTime is the start time of the utterance in seconds
	StartTime float64

	// Duration is the duration of the utterance in seconds
	Duration float64
}

// LiveTranscriber is the interface for streaming speech-to-text clients
// used by the live dictation path.
type LiveTranscriber interface {
	// Start begins a new transcription session
	Start() error

	// SendAudio sends an audio chunk to the STT service
	SendAudio(audioData []byte) error

	// Results returns a channel that receives transcription results
	Results() <-chan *LiveResult

	// Stop stops the transcription session
	Stop() error

	// Close closes the client and cleans up resources
	Close() error
}
