package notegen

import (
	"encoding/json"
	"strings"

	"github.com/moonlight-recovery/note-builder/internal/note"
)

// stripCodeFence removes a surrounding markdown code fence from a model
// response, including an optional "json" language marker.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	parts := strings.SplitN(trimmed, "```", 3)
	if len(parts) < 2 {
		return trimmed
	}
	body := parts[1]
	body = strings.TrimPrefix(body, "json")
	return strings.TrimSpace(body)
}

// parseNoteResponse decodes the model's JSON answer into a note record.
// Keys the model omitted decode to empty strings and are left for
// validation to flag; an omitted section is never treated as an error.
//
// When the response is not parseable JSON at all, the raw text is preserved
// in the subjective section and the remaining fields carry review guidance,
// so a clinician can still recover the draft by hand.
func parseNoteResponse(text string) note.Record {
	cleaned := stripCodeFence(text)

	var rec note.Record
	if err := json.Unmarshal([]byte(cleaned), &rec); err != nil {
		return note.Record{
			ClientName:    "Not specified",
			SessionDate:   "Not specified",
			SessionLength: "Not specified",
			Subjective:    cleaned,
			Objective:     "Unable to parse structured response",
			Assessment:    "Please review transcript manually",
			Plan:          "Regenerate note or enter manually",
			ClinicalTone:  "Unknown",
		}
	}

	// is_complete is derived locally, never trusted from the model.
	rec.IsComplete = false
	return rec
}
