package note

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Export formats offered for download.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ExportJSON serializes a record to indented JSON. The output contains
// exactly the nine data-model keys and is byte-identical for identical
// records, so repeated exports of the same note are stable.
func ExportJSON(r Record) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal note: %w", err)
	}
	return data, nil
}

// ExportText renders a record as a plain-text note with the fixed section
// order Subjective, Objective, Assessment, Plan. generatedAt is printed in
// the header; pass a fixed time for reproducible output.
func ExportText(r Record, generatedAt time.Time) []byte {
	status := "Warnings Present"
	if r.IsComplete {
		status = "Complete"
	}

	var b strings.Builder
	b.WriteString("SOAP NOTE\n")
	fmt.Fprintf(&b, "Generated: %s\n", generatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Client: %s\n", r.ClientName)
	fmt.Fprintf(&b, "Date: %s\n", r.SessionDate)
	fmt.Fprintf(&b, "Session Length: %s\n", r.SessionLength)
	fmt.Fprintf(&b, "Clinical Tone: %s\n", r.ClinicalTone)

	for _, name := range SectionOrder {
		fmt.Fprintf(&b, "\n%s:\n%s\n", strings.ToUpper(name), r.Section(name))
	}

	b.WriteString("\n---\n")
	fmt.Fprintf(&b, "Validation Status: %s\n", status)
	return []byte(b.String())
}

// ExportFilename builds the download filename for an export,
// e.g. soap_note_20250301_1430.json.
func ExportFilename(format string, at time.Time) string {
	ext := "txt"
	if format == FormatJSON {
		ext = "json"
	}
	return fmt.Sprintf("soap_note_%s.%s", at.Format("20060102_1504"), ext)
}

// ContentType returns the MIME type for an export format.
func ContentType(format string) string {
	if format == FormatJSON {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}
