package notegen

import (
	"strings"
	"testing"
)

const sampleResponse = `{
  "client_name": "John D.",
  "session_date": "2025-03-01",
  "session_length": "50 minutes",
  "subjective": "Client reports improved sleep.",
  "objective": "Engaged, congruent affect.",
  "assessment": "Steady progress.",
  "plan": "Continue weekly sessions.",
  "clinical_tone": "Hopeful"
}`

func TestParseNoteResponse_PlainJSON(t *testing.T) {
	rec := parseNoteResponse(sampleResponse)

	if rec.ClientName != "John D." {
		t.Errorf("Expected client_name 'John D.', got '%s'", rec.ClientName)
	}
	if rec.Plan != "Continue weekly sessions." {
		t.Errorf("Expected plan to be decoded, got '%s'", rec.Plan)
	}
	if rec.IsComplete {
		t.Error("Parsed record must not arrive pre-marked complete")
	}
}

func TestParseNoteResponse_CodeFence(t *testing.T) {
	tests := []struct {
		name string
		wrap func(string) string
	}{
		{"json fence", func(s string) string { return "```json\n" + s + "\n```" }},
		{"bare fence", func(s string) string { return "```\n" + s + "\n```" }},
		{"fence with trailing prose", func(s string) string { return "```json\n" + s + "\n```\nHere is your note." }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := parseNoteResponse(tt.wrap(sampleResponse))
			if rec.ClientName != "John D." {
				t.Errorf("Expected fenced JSON to decode, got client_name '%s'", rec.ClientName)
			}
		})
	}
}

func TestParseNoteResponse_MissingSectionIsEmpty(t *testing.T) {
	// A section the model omitted decodes to empty text for validation to
	// flag; it is not an error.
	rec := parseNoteResponse(`{"client_name": "John D.", "subjective": "Reports cravings."}`)

	if rec.Subjective != "Reports cravings." {
		t.Errorf("Expected subjective to decode, got '%s'", rec.Subjective)
	}
	if rec.Objective != "" || rec.Assessment != "" || rec.Plan != "" {
		t.Errorf("Expected omitted sections to be empty, got %+v", rec)
	}
}

func TestParseNoteResponse_UnparseableFallback(t *testing.T) {
	raw := "The client seemed anxious but engaged throughout the session."
	rec := parseNoteResponse(raw)

	if rec.Subjective != raw {
		t.Errorf("Expected raw text preserved in subjective, got '%s'", rec.Subjective)
	}
	if rec.ClientName != "Not specified" {
		t.Errorf("Expected sentinel client_name, got '%s'", rec.ClientName)
	}
	if rec.Objective != "Unable to parse structured response" {
		t.Errorf("Expected review guidance in objective, got '%s'", rec.Objective)
	}
}

func TestStripCodeFence_NoFence(t *testing.T) {
	if got := stripCodeFence("  plain text  "); got != "plain text" {
		t.Errorf("Expected trimmed text, got '%s'", got)
	}
}

func TestBuildUserPrompt_WithContext(t *testing.T) {
	sctx := SessionContext{ClientName: "John D.", SessionDate: "2025-03-01", SessionLength: "50 minutes"}
	prompt := buildUserPrompt("transcript body", sctx)

	if !strings.Contains(prompt, "Additional Context: Client Name: John D.. Session Date: 2025-03-01. Session Length: 50 minutes") {
		t.Errorf("Expected context block in prompt, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, "TRANSCRIPT:\ntranscript body") {
		t.Error("Expected transcript block in prompt")
	}
}

func TestBuildUserPrompt_WithoutContext(t *testing.T) {
	prompt := buildUserPrompt("transcript body", SessionContext{})

	if strings.Contains(prompt, "Additional Context") {
		t.Error("Expected no context block for empty session context")
	}
}
