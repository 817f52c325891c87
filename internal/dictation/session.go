// Package dictation implements the live "record audio" input path: the
// browser streams PCM frames over a websocket, the frames are piped to the
// streaming speech-to-text client, and interim/final transcripts are pushed
// back as JSON messages. On stop, the assembled transcript is stored in the
// workflow session for review.
package dictation

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/moonlight-recovery/note-builder/internal/audio"
	"github.com/moonlight-recovery/note-builder/internal/observability"
	"github.com/moonlight-recovery/note-builder/internal/session"
	"github.com/moonlight-recovery/note-builder/internal/stt"
)

// pumpChunkSize is how much buffered audio one STT write carries.
const pumpChunkSize = 4096

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The UI is served from the same origin; cross-origin dictation is
		// not supported. Same-origin requests send no Origin or a matching one.
		origin := r.Header.Get("Origin")
		return origin == "" || strings.Contains(origin, r.Host)
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// serverMessage is a JSON frame pushed to the browser.
type serverMessage struct {
	Event      string  `json:"event"` // "transcript", "stopped", "error"
	Text       string  `json:"text,omitempty"`
	IsFinal    bool    `json:"is_final,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Transcript string  `json:"transcript,omitempty"` // full assembled transcript on "stopped"
	Message    string  `json:"message,omitempty"`
}

// clientMessage is a JSON control frame from the browser. Audio arrives as
// binary frames, not JSON.
type clientMessage struct {
	Event string `json:"event"` // "stop"
}

// LiveTranscriberFactory builds a streaming STT client per dictation.
type LiveTranscriberFactory func() stt.LiveTranscriber

// dictationSession holds the state of one live dictation stream.
type dictationSession struct {
	conn      *websocket.Conn
	sttClient stt.LiveTranscriber
	store     *session.Store
	sessionID string
	logger    zerolog.Logger

	// buffer decouples socket reads from STT writes so a slow Deepgram
	// connection does not back-pressure the browser.
	buffer *audio.RingBuffer

	writeMu sync.Mutex // websocket writes come from two goroutines

	mu         sync.Mutex
	finals     []string
	confidence float64
	finalCount int

	done chan struct{}
	once sync.Once
}

// Handler returns the /ws/dictate websocket handler. The workflow session ID
// arrives as the "session" query parameter; the assembled transcript is
// written back to that session when dictation stops.
func Handler(store *session.Store, factory LiveTranscriberFactory, bufferSize int) http.HandlerFunc {
	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		if sessionID == "" {
			http.Error(w, "session query parameter is required", http.StatusBadRequest)
			return
		}
		if _, err := store.Get(sessionID); err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		// A session can host several dictation attempts; tag each stream.
		logger := observability.WithSession(sessionID).With().
			Str("dictation_id", observability.NewCorrelationID()).Logger()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("Websocket upgrade failed")
			return
		}

		sttClient := factory()
		if err := sttClient.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start live transcription")
			conn.WriteJSON(serverMessage{Event: "error", Message: err.Error()})
			conn.Close()
			return
		}

		ds := &dictationSession{
			conn:      conn,
			sttClient: sttClient,
			store:     store,
			sessionID: sessionID,
			logger:    logger,
			buffer:    audio.NewRingBuffer(bufferSize),
			done:      make(chan struct{}),
		}

		observability.DictationStarted()
		logger.Info().Msg("Dictation started")

		go ds.resultLoop()
		go ds.pumpLoop()
		go ds.readLoop()
	}
}

// readLoop forwards browser audio frames to the STT client and handles
// control messages until the socket closes.
func (ds *dictationSession) readLoop() {
	defer ds.finish()

	for {
		msgType, data, err := ds.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ds.logger.Warn().Err(err).Msg("Dictation socket closed unexpectedly")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			observability.RecordAudioBytes("dictation", len(data))
			if n := ds.buffer.Write(data); n < len(data) {
				ds.logger.Warn().Int("dropped", len(data)-n).Msg("Audio buffer full, dropping bytes")
			}

		case websocket.TextMessage:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Event == "stop" {
				return
			}
		}
	}
}

// pumpLoop drains buffered audio into the STT client.
func (ds *dictationSession) pumpLoop() {
	chunk := make([]byte, pumpChunkSize)
	for {
		select {
		case <-ds.done:
			return
		case <-ds.buffer.Ready():
			for {
				n := ds.buffer.Read(chunk)
				if n == 0 {
					break
				}
				if err := ds.sttClient.SendAudio(chunk[:n]); err != nil {
					ds.logger.Error().Err(err).Msg("Failed to forward audio")
					ds.send(serverMessage{Event: "error", Message: err.Error()})
				}
			}
		}
	}
}

// resultLoop pushes transcription results to the browser as they arrive.
func (ds *dictationSession) resultLoop() {
	for {
		select {
		case <-ds.done:
			return
		case result, ok := <-ds.sttClient.Results():
			if !ok {
				return
			}
			if result == nil {
				continue
			}

			if result.IsFinal {
				ds.mu.Lock()
				ds.finals = append(ds.finals, result.Text)
				ds.confidence += result.Confidence
				ds.finalCount++
				ds.mu.Unlock()
			}

			ds.send(serverMessage{
				Event:      "transcript",
				Text:       result.Text,
				IsFinal:    result.IsFinal,
				Confidence: result.Confidence,
			})
		}
	}
}

// finish stops the STT client, stores the assembled transcript in the
// workflow session, and closes the socket. Safe to call once per session.
func (ds *dictationSession) finish() {
	ds.once.Do(func() {
		close(ds.done)
		ds.flushBuffer()

		if err := ds.sttClient.Stop(); err != nil {
			ds.logger.Error().Err(err).Msg("Failed to stop live transcription")
		}
		// Give the service a moment to flush any final result.
		time.Sleep(250 * time.Millisecond)
		ds.drainResults()

		transcript, confidence := ds.assemble()
		if transcript != "" {
			_, err := ds.store.Update(ds.sessionID, func(s *session.Session) {
				s.Transcript = transcript
				s.Confidence = confidence
				s.Reviewed = false // dictated text still needs human review
			})
			if err != nil {
				ds.logger.Error().Err(err).Msg("Failed to store dictated transcript")
			}
		}

		ds.send(serverMessage{Event: "stopped", Transcript: transcript})
		ds.conn.Close()
		ds.sttClient.Close()

		observability.DictationEnded()
		ds.logger.Info().Int("segments", len(ds.finals)).Msg("Dictation finished")
	})
}

// flushBuffer sends any audio still queued when dictation stops.
func (ds *dictationSession) flushBuffer() {
	chunk := make([]byte, pumpChunkSize)
	for {
		n := ds.buffer.Read(chunk)
		if n == 0 {
			return
		}
		if err := ds.sttClient.SendAudio(chunk[:n]); err != nil {
			ds.logger.Debug().Err(err).Msg("Failed to flush buffered audio")
			return
		}
	}
}

// drainResults collects any final results still buffered in the STT client.
func (ds *dictationSession) drainResults() {
	for {
		select {
		case result, ok := <-ds.sttClient.Results():
			if !ok || result == nil {
				return
			}
			if result.IsFinal {
				ds.mu.Lock()
				ds.finals = append(ds.finals, result.Text)
				ds.confidence += result.Confidence
				ds.finalCount++
				ds.mu.Unlock()
			}
		default:
			return
		}
	}
}

func (ds *dictationSession) assemble() (string, float64) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	transcript := strings.TrimSpace(strings.Join(ds.finals, " "))
	confidence := 0.0
	if ds.finalCount > 0 {
		confidence = ds.confidence / float64(ds.finalCount)
	}
	return transcript, confidence
}

func (ds *dictationSession) send(msg serverMessage) {
	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	if err := ds.conn.WriteJSON(msg); err != nil {
		ds.logger.Debug().Err(err).Msg("Failed to write websocket message")
	}
}
