package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/moonlight-recovery/note-builder/internal/config"
	"github.com/moonlight-recovery/note-builder/internal/observability"
	"github.com/moonlight-recovery/note-builder/internal/resilience"
)

// messageCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we customize.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

// Message overrides the default handler to forward transcriptions to our channel
func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

// Error overrides the default handler to use our custom error handling
func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramLiveClient implements LiveTranscriber using Deepgram's streaming
// API. It backs the live dictation input path; the prerecorded upload path
// uses DeepgramClient instead.
type DeepgramLiveClient struct {
	config         *config.Config
	client         *listenClient.WSCallback
	results        chan *LiveResult
	mu             sync.RWMutex
	isActive       bool
	closed         bool
	ctx            context.Context
	cancel         context.CancelFunc
	circuitBreaker *resilience.CircuitBreaker
}

// NewDeepgramLiveClient creates a new Deepgram streaming client for dictation
func NewDeepgramLiveClient(cfg *config.Config) *DeepgramLiveClient {
	ctx, cancel := context.WithCancel(context.Background())

	circuitBreaker := resilience.NewCircuitBreaker(
		"deepgram-live",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)

	return &DeepgramLiveClient{
		config:         cfg,
		results:        make(chan *LiveResult, 100),
		ctx:            ctx,
		cancel:         cancel,
		circuitBreaker: circuitBreaker,
	}
}

// Start begins a new Deepgram streaming transcription session
func (d *DeepgramLiveClient) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isActive {
		return fmt.Errorf("deepgram live client is already active")
	}

	// Browser dictation sends 16-bit linear PCM, mono.
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.config.DeepgramModel,
		Language:       d.config.DeepgramLanguage,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.config.DictationSampleRate,
	}

	logger := observability.GetLogger()

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                d.handleMessage,
		errorHandler: func(errorResponse *msginterfaces.ErrorResponse) error {
			logger.Error().Interface("response", errorResponse).Msg("Deepgram stream error")

			d.circuitBreaker.RecordResult(false)
			observability.UpdateCircuitBreakerState("deepgram-live", int(d.circuitBreaker.GetState()))
			observability.IncrementCircuitBreakerFailures("deepgram-live")

			select {
			case <-d.ctx.Done():
				return nil
			default:
				// Connection lost, mark as inactive and recover in background
				d.mu.Lock()
				d.isActive = false
				d.mu.Unlock()

				go d.attemptReconnect()
			}
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(
		d.ctx,
		d.config.DeepgramAPIKey,
		nil, // ClientOptions - nil uses defaults
		tOptions,
		callback,
	)
	if err != nil {
		return fmt.Errorf("failed to create Deepgram live client: %w", err)
	}

	d.client = client
	d.isActive = true

	d.circuitBreaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("deepgram-live", int(d.circuitBreaker.GetState()))

	logger.Info().
		Str("model", d.config.DeepgramModel).
		Int("sample_rate", d.config.DictationSampleRate).
		Msg("Deepgram live client started")
	return nil
}

// handleMessage processes messages from Deepgram
func (d *DeepgramLiveClient) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	logger := observability.GetLogger()

	switch msg.Type {
	case "Metadata":
		logger.Debug().Interface("metadata", msg.Metadata).Msg("Deepgram metadata")

	case "SpeechStarted":
		logger.Debug().Msg("Deepgram: speech started")

	case "UtteranceEnd":
		logger.Debug().Msg("Deepgram: utterance ended")

	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}

		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}

		confidence := 0.0
		if alt.Confidence > 0 {
			confidence = alt.Confidence
		}

		startTime := msg.Start
		duration := msg.Duration
		if len(alt.Words) > 0 && duration == 0 {
			// Fallback: derive timing from words when not provided
			startTime = alt.Words[0].Start
			lastWord := alt.Words[len(alt.Words)-1]
			duration = lastWord.End - startTime
		}

		d.emit(&LiveResult{
			Text:       alt.Transcript,
			IsFinal:    msg.IsFinal,
			Confidence: confidence,
			StartTime:  startTime,
			Duration:   duration,
		})

	default:
		logger.Debug().Str("type", msg.Type).Msg("Deepgram: unknown message type")
	}
}

// emit delivers a result to the consumer channel. The read lock is held
// across the send so a Deepgram callback arriving after Close cannot hit
// a closed channel; a full channel drops the result instead of blocking.
func (d *DeepgramLiveClient) emit(result *LiveResult) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}

	select {
	case d.results <- result:
	default:
		logger := observability.GetLogger()
		logger.Warn().Msg("Results channel full, dropping transcription")
	}
}

// SendAudio sends an audio chunk to Deepgram
func (d *DeepgramLiveClient) SendAudio(audioData []byte) error {
	err := d.circuitBreaker.Call(func() error {
		d.mu.RLock()
		active := d.isActive
		client := d.client
		d.mu.RUnlock()

		if !active || client == nil {
			return fmt.Errorf("deepgram live client is not active")
		}

		_, err := client.Write(audioData)
		if err != nil {
			go d.attemptReconnect()
			return fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}

		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram-live", int(d.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram-live")
	}

	return err
}

// attemptReconnect attempts to reconnect to Deepgram
func (d *DeepgramLiveClient) attemptReconnect() {
	select {
	case <-d.ctx.Done():
		return
	default:
	}

	d.mu.RLock()
	alreadyActive := d.isActive
	d.mu.RUnlock()

	if alreadyActive {
		return // Already reconnected
	}

	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: d.config.ReconnectMaxAttempts,
		Backoff:     time.Duration(d.config.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}

	logger := observability.GetLogger()
	err := resilience.Reconnect(d.ctx, func() error {
		return d.Start()
	}, reconnectConfig)

	if err != nil {
		logger.Error().Err(err).Msg("Failed to reconnect Deepgram live client")
	} else {
		logger.Info().Msg("Reconnected Deepgram live client")
	}
}

// Results returns a channel that receives transcription results
func (d *DeepgramLiveClient) Results() <-chan *LiveResult {
	return d.results
}

// Stop stops the Deepgram streaming session
func (d *DeepgramLiveClient) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isActive {
		return nil // Already stopped
	}

	d.client.Finish()
	d.isActive = false
	return nil
}

// Close closes the client and cleans up resources
func (d *DeepgramLiveClient) Close() error {
	d.cancel() // Stop any reconnection attempts

	if err := d.Stop(); err != nil {
		return err
	}

	// The write lock excludes in-flight emits before the channel closes.
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.results)
	}
	return nil
}

// IsActive returns whether the client is currently active
func (d *DeepgramLiveClient) IsActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isActive
}
