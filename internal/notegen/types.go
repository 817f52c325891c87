package notegen

import (
	"context"
	"strings"

	"github.com/moonlight-recovery/note-builder/internal/note"
)

// SessionContext carries optional clinician-supplied context for a session.
// Non-empty fields are appended to the generation prompt so the model can
// fill in metadata the transcript itself may not mention.
type SessionContext struct {
	ClientName    string `json:"client_name,omitempty"`
	SessionDate   string `json:"session_date,omitempty"`
	SessionLength string `json:"session_length,omitempty"`
}

// String renders the context as the "Additional Context" prompt block.
func (c SessionContext) String() string {
	parts := make([]string, 0, 3)
	if c.ClientName != "" {
		parts = append(parts, "Client Name: "+c.ClientName)
	}
	if c.SessionDate != "" {
		parts = append(parts, "Session Date: "+c.SessionDate)
	}
	if c.SessionLength != "" {
		parts = append(parts, "Session Length: "+c.SessionLength)
	}
	return strings.Join(parts, ". ")
}

// Generator drafts a SOAP note record from a session transcript.
// The call blocks until the model responds or fails; transport errors
// surface to the caller unmodified.
type Generator interface {
	Generate(ctx context.Context, transcript string, sctx SessionContext) (*note.Record, error)
}
