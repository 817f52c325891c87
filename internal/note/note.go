package note

// Record is a SOAP note for a single therapy session.
// It is a transient value object: populated by the generation call,
// optionally hand-edited, validated, then exported. It is never persisted.
type Record struct {
	ClientName    string `json:"client_name" validate:"notblank"`
	SessionDate   string `json:"session_date"`
	SessionLength string `json:"session_length" validate:"notblank"`
	Subjective    string `json:"subjective" validate:"notblank"`
	Objective     string `json:"objective" validate:"notblank"`
	Assessment    string `json:"assessment" validate:"notblank"`
	Plan          string `json:"plan" validate:"notblank"`
	ClinicalTone  string `json:"clinical_tone"`
	IsComplete    bool   `json:"is_complete"`
}

// SectionOrder is the fixed rendering order for the four SOAP sections.
var SectionOrder = []string{"subjective", "objective", "assessment", "plan"}

// Section returns the text of a SOAP section by its field name.
// Unknown names return the empty string.
func (r Record) Section(name string) string {
	switch name {
	case "subjective":
		return r.Subjective
	case "objective":
		return r.Objective
	case "assessment":
		return r.Assessment
	case "plan":
		return r.Plan
	}
	return ""
}
