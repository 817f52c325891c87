package api

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/moonlight-recovery/note-builder/internal/config"
	"github.com/moonlight-recovery/note-builder/internal/note"
	"github.com/moonlight-recovery/note-builder/internal/notegen"
	"github.com/moonlight-recovery/note-builder/internal/session"
	"github.com/moonlight-recovery/note-builder/internal/stt"
)

type fakeTranscriber struct {
	result  *stt.Transcription
	err     error
	gotMIME string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio io.Reader, mimeType string) (*stt.Transcription, error) {
	f.gotMIME = mimeType
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeGenerator struct {
	record        *note.Record
	err           error
	gotTranscript string
	gotContext    notegen.SessionContext
}

func (f *fakeGenerator) Generate(ctx context.Context, transcript string, sctx notegen.SessionContext) (*note.Record, error) {
	f.gotTranscript = transcript
	f.gotContext = sctx
	if f.err != nil {
		return nil, f.err
	}
	rec := *f.record
	return &rec, nil
}

func completeRecord() *note.Record {
	return &note.Record{
		ClientName:    "John D.",
		SessionDate:   "2025-03-01",
		SessionLength: "50 minutes",
		Subjective:    "Client reports improved sleep and fewer cravings.",
		Objective:     "Engaged, congruent affect, well groomed.",
		Assessment:    "Steady progress toward treatment goals.",
		Plan:          "Continue weekly sessions; attend two meetings.",
		ClinicalTone:  "Hopeful",
	}
}

func newTestServer(t *testing.T, transcriber stt.Transcriber, generator notegen.Generator) (*httptest.Server, *session.Store) {
	t.Helper()

	cfg := &config.Config{MaxUploadBytes: 1 << 20}
	store := session.NewStore(time.Minute)
	t.Cleanup(store.Close)

	handler := NewHandler(cfg, store, transcriber, generator)
	handler.now = func() time.Time { return time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC) }

	mux := http.NewServeMux()
	handler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, store
}

func createSession(t *testing.T, server *httptest.Server) string {
	t.Helper()

	resp, err := http.Post(server.URL+"/api/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/sessions failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var sess session.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	return sess.ID
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}

func TestWorkflow_TranscriptToExport(t *testing.T) {
	gen := &fakeGenerator{record: completeRecord()}
	server, _ := newTestServer(t, &fakeTranscriber{}, gen)

	id := createSession(t, server)

	// Step 2: paste a transcript (marks it reviewed)
	resp := doJSON(t, http.MethodPut, server.URL+"/api/sessions/"+id+"/transcript",
		putTranscriptRequest{Transcript: "Client discussed the past week."})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT transcript: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Step 3: generate the note
	resp = doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+id+"/note",
		generateNoteRequest{Context: notegen.SessionContext{ClientName: "John D."}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST note: expected 200, got %d", resp.StatusCode)
	}

	var nr noteResponse
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		t.Fatalf("Failed to decode note response: %v", err)
	}
	resp.Body.Close()

	if gen.gotTranscript != "Client discussed the past week." {
		t.Errorf("Expected reviewed transcript passed to generator, got %q", gen.gotTranscript)
	}
	if gen.gotContext.ClientName != "John D." {
		t.Errorf("Expected session context passed to generator, got %+v", gen.gotContext)
	}
	if !nr.Validation.Complete || !nr.Note.IsComplete {
		t.Errorf("Expected complete note, got validation %+v", nr.Validation)
	}

	// Step 4: export as JSON
	resp, err := http.Get(server.URL + "/api/sessions/" + id + "/export?format=json")
	if err != nil {
		t.Fatalf("GET export failed: %v", err)
	}
	first, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Export: expected 200, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "soap_note_20250301_1430.json") {
		t.Errorf("Expected export filename in Content-Disposition, got %q", cd)
	}

	var exported map[string]interface{}
	if err := json.Unmarshal(first, &exported); err != nil {
		t.Fatalf("Export is not valid JSON: %v", err)
	}
	if exported["is_complete"] != true {
		t.Errorf("Expected is_complete true in export, got %v", exported["is_complete"])
	}

	// Repeated export of the same note is byte-identical
	resp, err = http.Get(server.URL + "/api/sessions/" + id + "/export?format=json")
	if err != nil {
		t.Fatalf("GET export failed: %v", err)
	}
	again, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !bytes.Equal(first, again) {
		t.Error("Repeated JSON export is not byte-identical")
	}
}

func TestGenerateNote_RequiresReviewedTranscript(t *testing.T) {
	server, store := newTestServer(t, &fakeTranscriber{}, &fakeGenerator{record: completeRecord()})
	id := createSession(t, server)

	// Simulate a machine transcript that was never reviewed
	_, err := store.Update(id, func(s *session.Session) {
		s.Transcript = "unreviewed machine transcript"
		s.Reviewed = false
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	resp := doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+id+"/note", generateNoteRequest{})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for unreviewed transcript, got %d", resp.StatusCode)
	}
}

func TestGenerateNote_InlineTranscriptActsAsReview(t *testing.T) {
	gen := &fakeGenerator{record: completeRecord()}
	server, _ := newTestServer(t, &fakeTranscriber{}, gen)
	id := createSession(t, server)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+id+"/note",
		generateNoteRequest{Transcript: "approved transcript text"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if gen.gotTranscript != "approved transcript text" {
		t.Errorf("Expected inline transcript used, got %q", gen.gotTranscript)
	}
}

func TestGenerateNote_IncompleteIsNotFatal(t *testing.T) {
	rec := completeRecord()
	rec.ClientName = ""
	server, _ := newTestServer(t, &fakeTranscriber{}, &fakeGenerator{record: rec})
	id := createSession(t, server)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+id+"/note",
		generateNoteRequest{Transcript: "transcript"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for incomplete note, got %d", resp.StatusCode)
	}

	var nr noteResponse
	json.NewDecoder(resp.Body).Decode(&nr)
	resp.Body.Close()

	if nr.Validation.Complete {
		t.Error("Expected incomplete validation result")
	}
	if len(nr.Validation.Missing) != 1 || nr.Validation.Missing[0] != "client_name" {
		t.Errorf("Expected missing [client_name], got %v", nr.Validation.Missing)
	}

	// The incomplete note still exports, flagged is_complete=false
	resp, err := http.Get(server.URL + "/api/sessions/" + id + "/export?format=json")
	if err != nil {
		t.Fatalf("GET export failed: %v", err)
	}
	var exported map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&exported)
	resp.Body.Close()

	if exported["is_complete"] != false {
		t.Errorf("Expected is_complete false in export, got %v", exported["is_complete"])
	}
}

func TestGenerateNote_GeneratorErrorSurfaces(t *testing.T) {
	server, _ := newTestServer(t, &fakeTranscriber{},
		&fakeGenerator{err: fmt.Errorf("anthropic API error (529): overloaded")})
	id := createSession(t, server)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+id+"/note",
		generateNoteRequest{Transcript: "transcript"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", resp.StatusCode)
	}

	var er errorResponse
	json.NewDecoder(resp.Body).Decode(&er)
	if !strings.Contains(er.Error, "overloaded") {
		t.Errorf("Expected vendor error surfaced unmodified, got %q", er.Error)
	}
}

func TestTranscribe_Upload(t *testing.T) {
	tr := &fakeTranscriber{result: &stt.Transcription{Text: "transcribed text", Confidence: 0.97}}
	server, _ := newTestServer(t, tr, &fakeGenerator{record: completeRecord()})
	id := createSession(t, server)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "session.wav")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	fw.Write(minimalWAV())
	mw.Close()

	resp, err := http.Post(server.URL+"/api/sessions/"+id+"/transcribe", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST transcribe failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}

	if tr.gotMIME != "audio/wav" {
		t.Errorf("Expected sniffed MIME audio/wav, got %q", tr.gotMIME)
	}

	var sess session.Session
	json.NewDecoder(resp.Body).Decode(&sess)
	if sess.Transcript != "transcribed text" {
		t.Errorf("Expected transcript stored, got %q", sess.Transcript)
	}
	if sess.Reviewed {
		t.Error("A machine transcript must not be marked reviewed")
	}
}

func TestTranscribe_UnsupportedFormat(t *testing.T) {
	server, _ := newTestServer(t, &fakeTranscriber{}, &fakeGenerator{record: completeRecord()})
	id := createSession(t, server)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("audio", "notes.txt")
	fw.Write([]byte("this is not an audio file at all"))
	mw.Close()

	resp, err := http.Post(server.URL+"/api/sessions/"+id+"/transcribe", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST transcribe failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("Expected 415 for unsupported format, got %d", resp.StatusCode)
	}
}

func TestTranscribe_TransportErrorSurfaces(t *testing.T) {
	server, _ := newTestServer(t,
		&fakeTranscriber{err: fmt.Errorf("deepgram transcription failed: connection refused")},
		&fakeGenerator{record: completeRecord()})
	id := createSession(t, server)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("audio", "session.wav")
	fw.Write(minimalWAV())
	mw.Close()

	resp, err := http.Post(server.URL+"/api/sessions/"+id+"/transcribe", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST transcribe failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502 for transport error, got %d", resp.StatusCode)
	}
}

func TestEditNote_Revalidates(t *testing.T) {
	rec := completeRecord()
	rec.ClientName = ""
	server, _ := newTestServer(t, &fakeTranscriber{}, &fakeGenerator{record: rec})
	id := createSession(t, server)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+id+"/note",
		generateNoteRequest{Transcript: "transcript"})
	resp.Body.Close()

	name := "John D."
	resp = doJSON(t, http.MethodPatch, server.URL+"/api/sessions/"+id+"/note",
		editNoteRequest{ClientName: &name})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH note: expected 200, got %d", resp.StatusCode)
	}

	var nr noteResponse
	json.NewDecoder(resp.Body).Decode(&nr)
	resp.Body.Close()

	if nr.Note.ClientName != "John D." {
		t.Errorf("Expected edited client_name, got %q", nr.Note.ClientName)
	}
	if !nr.Validation.Complete {
		t.Errorf("Expected note complete after edit, missing %v", nr.Validation.Missing)
	}
}

func TestExport_TextMatchesJSONContent(t *testing.T) {
	server, _ := newTestServer(t, &fakeTranscriber{}, &fakeGenerator{record: completeRecord()})
	id := createSession(t, server)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+id+"/note",
		generateNoteRequest{Transcript: "transcript"})
	resp.Body.Close()

	resp, err := http.Get(server.URL + "/api/sessions/" + id + "/export?format=text")
	if err != nil {
		t.Fatalf("GET export failed: %v", err)
	}
	text, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Expected text/plain content type, got %q", ct)
	}

	resp, err = http.Get(server.URL + "/api/sessions/" + id + "/export?format=json")
	if err != nil {
		t.Fatalf("GET export failed: %v", err)
	}
	var exported map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&exported)
	resp.Body.Close()

	for _, key := range []string{"subjective", "objective", "assessment", "plan"} {
		content, _ := exported[key].(string)
		if content == "" || !strings.Contains(string(text), content) {
			t.Errorf("Expected section %q content in both exports", key)
		}
	}
}

func TestExport_NoNote(t *testing.T) {
	server, _ := newTestServer(t, &fakeTranscriber{}, &fakeGenerator{record: completeRecord()})
	id := createSession(t, server)

	resp, err := http.Get(server.URL + "/api/sessions/" + id + "/export")
	if err != nil {
		t.Fatalf("GET export failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 when no note exists, got %d", resp.StatusCode)
	}
}

func TestSession_NotFound(t *testing.T) {
	server, _ := newTestServer(t, &fakeTranscriber{}, &fakeGenerator{record: completeRecord()})

	resp, err := http.Get(server.URL + "/api/sessions/no-such-id")
	if err != nil {
		t.Fatalf("GET session failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestExport_TextTimestampMatchesFilename(t *testing.T) {
	store := session.NewStore(time.Minute)
	t.Cleanup(store.Close)

	handler := NewHandler(&config.Config{MaxUploadBytes: 1 << 20}, store,
		&fakeTranscriber{}, &fakeGenerator{record: completeRecord()})

	// Each clock read advances a minute, so a second read inside the export
	// path would put the filename ahead of the printed header.
	base := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)
	calls := 0
	handler.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * time.Minute)
	}

	mux := http.NewServeMux()
	handler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	id := createSession(t, server)
	resp := doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+id+"/note",
		generateNoteRequest{Transcript: "transcript"})
	resp.Body.Close()

	resp, err := http.Get(server.URL + "/api/sessions/" + id + "/export?format=text")
	if err != nil {
		t.Fatalf("GET export failed: %v", err)
	}
	text, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(text), "Generated: 2025-03-01 14:30") {
		t.Errorf("Expected header timestamp from a single clock read, got:\n%s", text)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "soap_note_20250301_1430.txt") {
		t.Errorf("Expected filename from the same clock read, got %q", cd)
	}
}

// minimalWAV builds the smallest recognizable PCM WAV payload.
func minimalWAV() []byte {
	buf := make([]byte, 44+320)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+320))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], 16000)
	binary.LittleEndian.PutUint32(buf[28:32], 32000)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], 320)
	return buf
}
