// Package api exposes the note-building workflow over JSON endpoints:
// create a session, transcribe or paste a transcript, review it, generate
// the SOAP note, hand-edit it, and export the result.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/moonlight-recovery/note-builder/internal/audio"
	"github.com/moonlight-recovery/note-builder/internal/config"
	"github.com/moonlight-recovery/note-builder/internal/note"
	"github.com/moonlight-recovery/note-builder/internal/notegen"
	"github.com/moonlight-recovery/note-builder/internal/observability"
	"github.com/moonlight-recovery/note-builder/internal/session"
	"github.com/moonlight-recovery/note-builder/internal/stt"
)

// Handler wires the workflow endpoints to the transcription and
// note-generation boundaries.
type Handler struct {
	cfg         *config.Config
	store       *session.Store
	transcriber stt.Transcriber
	generator   notegen.Generator
	now         func() time.Time
}

// NewHandler creates a workflow handler.
func NewHandler(cfg *config.Config, store *session.Store, transcriber stt.Transcriber, generator notegen.Generator) *Handler {
	return &Handler{
		cfg:         cfg,
		store:       store,
		transcriber: transcriber,
		generator:   generator,
		now:         time.Now,
	}
}

// Register mounts the workflow routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", h.handleSessions)
	mux.HandleFunc("/api/sessions/", h.handleSessionByID)
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sess := h.store.Create()
	logger := observability.WithSession(sess.ID)
	logger.Info().Msg("Workflow session created")
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "session ID is required")
		return
	}
	id := parts[0]

	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.getSession(w, id)
	case action == "" && r.Method == http.MethodDelete:
		h.store.Delete(id)
		w.WriteHeader(http.StatusNoContent)
	case action == "transcribe" && r.Method == http.MethodPost:
		h.transcribe(w, r, id)
	case action == "transcript" && r.Method == http.MethodPut:
		h.putTranscript(w, r, id)
	case action == "note" && r.Method == http.MethodPost:
		h.generateNote(w, r, id)
	case action == "note" && r.Method == http.MethodPatch:
		h.editNote(w, r, id)
	case action == "export" && r.Method == http.MethodGet:
		h.export(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) getSession(w http.ResponseWriter, id string) {
	sess, err := h.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// transcribe accepts a multipart audio upload and runs it through the
// speech-to-text boundary. Transport errors surface to the client
// unmodified; there is no local retry.
func (h *Handler) transcribe(w http.ResponseWriter, r *http.Request, id string) {
	logger := observability.WithSession(id)

	if _, err := h.store.Get(id); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "audio upload too large or malformed")
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read audio upload")
		return
	}

	format, err := audio.DetectFormat(data)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	observability.RecordAudioBytes("upload", len(data))

	event := logger.Info().Str("format", format.Name).Int("bytes", len(data))
	if format == audio.FormatWAV {
		if d, err := audio.WAVDuration(data); err == nil {
			event = event.Dur("audio_duration", d)
		}
	}
	event.Msg("Transcribing uploaded audio")

	result, err := h.transcriber.Transcribe(r.Context(), bytes.NewReader(data), format.MIME)
	if err != nil {
		logger.Error().Err(err).Msg("Transcription failed")
		observability.IncrementError("vendor_error", "stt")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	sess, err := h.store.Update(id, func(s *session.Session) {
		s.Transcript = result.Text
		s.Confidence = result.Confidence
		s.Reviewed = false // a fresh transcript needs human review
	})
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, transcribeResponse{
		Session:    sess,
		Utterances: result.Utterances,
	})
}

type transcribeResponse struct {
	session.Session
	Utterances []stt.Utterance `json:"utterances,omitempty"`
}

type putTranscriptRequest struct {
	Transcript string `json:"transcript"`
}

// putTranscript stores a pasted or hand-edited transcript. This is the
// human review gate: note generation only runs on a reviewed transcript.
func (h *Handler) putTranscript(w http.ResponseWriter, r *http.Request, id string) {
	var req putTranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		writeError(w, http.StatusBadRequest, "transcript must not be empty")
		return
	}

	sess, err := h.store.Update(id, func(s *session.Session) {
		s.Transcript = req.Transcript
		s.Reviewed = true
		if s.Confidence == 0 {
			s.Confidence = 1.0 // directly entered text
		}
	})
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

type generateNoteRequest struct {
	// Transcript, when set, is the user-approved text and overrides the
	// session transcript.
	Transcript string                 `json:"transcript,omitempty"`
	Context    notegen.SessionContext `json:"context"`
}

type noteResponse struct {
	Note       note.Record           `json:"note"`
	Validation note.ValidationResult `json:"validation"`
}

// generateNote calls the language-model boundary with the approved
// transcript and validates the drafted note. Validation failure is not
// fatal: the note is stored and returned flagged incomplete.
func (h *Handler) generateNote(w http.ResponseWriter, r *http.Request, id string) {
	logger := observability.WithSession(id)

	sess, err := h.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req generateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" {
		if !sess.Reviewed {
			writeError(w, http.StatusConflict, "transcript has not been reviewed")
			return
		}
		transcript = sess.Transcript
	}
	if strings.TrimSpace(transcript) == "" {
		writeError(w, http.StatusConflict, "no transcript available for this session")
		return
	}

	rec, err := h.generator.Generate(r.Context(), transcript, req.Context)
	if err != nil {
		logger.Error().Err(err).Msg("Note generation failed")
		observability.IncrementError("vendor_error", "notegen")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	finalized, validation := note.Finalize(*rec)
	observability.RecordValidation(validation.Complete, validation.Missing)

	_, err = h.store.Update(id, func(s *session.Session) {
		s.Transcript = transcript
		s.Reviewed = true
		s.Context = req.Context
		s.Note = &finalized
		s.Validation = &validation
	})
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	logger.Info().
		Bool("complete", validation.Complete).
		Strs("missing", validation.Missing).
		Msg("SOAP note generated")

	writeJSON(w, http.StatusOK, noteResponse{Note: finalized, Validation: validation})
}

// editNoteRequest carries hand edits; nil fields are left unchanged.
type editNoteRequest struct {
	ClientName    *string `json:"client_name"`
	SessionDate   *string `json:"session_date"`
	SessionLength *string `json:"session_length"`
	Subjective    *string `json:"subjective"`
	Objective     *string `json:"objective"`
	Assessment    *string `json:"assessment"`
	Plan          *string `json:"plan"`
	ClinicalTone  *string `json:"clinical_tone"`
}

func (h *Handler) editNote(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if sess.Note == nil {
		writeError(w, http.StatusConflict, "no note has been generated for this session")
		return
	}

	var req editNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec := *sess.Note
	applyEdit(&rec.ClientName, req.ClientName)
	applyEdit(&rec.SessionDate, req.SessionDate)
	applyEdit(&rec.SessionLength, req.SessionLength)
	applyEdit(&rec.Subjective, req.Subjective)
	applyEdit(&rec.Objective, req.Objective)
	applyEdit(&rec.Assessment, req.Assessment)
	applyEdit(&rec.Plan, req.Plan)
	applyEdit(&rec.ClinicalTone, req.ClinicalTone)

	finalized, validation := note.Finalize(rec)
	observability.RecordValidation(validation.Complete, validation.Missing)

	_, err = h.store.Update(id, func(s *session.Session) {
		s.Note = &finalized
		s.Validation = &validation
	})
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, noteResponse{Note: finalized, Validation: validation})
}

func applyEdit(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// export serializes the session note for download. An incomplete note still
// exports, flagged is_complete=false.
func (h *Handler) export(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if sess.Note == nil {
		writeError(w, http.StatusConflict, "no note has been generated for this session")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = note.FormatJSON
	}
	if format != note.FormatJSON && format != note.FormatText {
		writeError(w, http.StatusBadRequest, "format must be 'text' or 'json'")
		return
	}

	// One clock read keeps the printed timestamp and filename in step.
	now := h.now()

	var body []byte
	switch format {
	case note.FormatJSON:
		body, err = note.ExportJSON(*sess.Note)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	case note.FormatText:
		body = note.ExportText(*sess.Note, now)
	}

	observability.RecordExport(format)

	w.Header().Set("Content-Type", note.ContentType(format))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", note.ExportFilename(format, now)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := observability.GetLogger()
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
