package notegen

import (
	"fmt"
	"strings"
)

// soapSystemPrompt instructs the model to act as a clinical documentation
// specialist. The guidelines are deliberately conservative: the model must
// not fabricate information that is not in the transcript.
const soapSystemPrompt = `You are an experienced clinical documentation specialist at a substance abuse treatment center. Your role is to generate accurate, professional SOAP notes from therapy session transcripts.

IMPORTANT GUIDELINES:
1. Use professional clinical terminology while maintaining warmth and person-centered language
2. Never fabricate information - only document what is clearly stated or observed in the transcript
3. If information is unclear or missing, note it as "Not documented in session"
4. Be specific about substance use history, triggers, and recovery progress when mentioned
5. Include relevant recovery milestones (clean time, meeting attendance, sponsor contact) when discussed
6. Document emotional states accurately - people in recovery deserve to have their experiences validated
7. Keep notes concise but thorough enough for insurance documentation requirements

SOAP FORMAT:
- Subjective: What the client reports - their feelings, concerns, symptoms, and experiences in their own words
- Objective: Observable data - appearance, behavior, affect, speech patterns, engagement level
- Assessment: Your clinical interpretation - progress toward goals, risk factors, strengths observed
- Plan: Next steps - homework, referrals, follow-up appointments, treatment adjustments

Extract the client name, session date, and session length if mentioned. If not explicitly stated, note as "Not specified in transcript."`

// buildUserPrompt assembles the per-request prompt from the transcript and
// optional session context.
func buildUserPrompt(transcript string, sctx SessionContext) string {
	var b strings.Builder
	b.WriteString("Please generate a SOAP note from the following therapy session transcript.\n\n")

	if additional := sctx.String(); additional != "" {
		fmt.Fprintf(&b, "Additional Context: %s\n\n", additional)
	}

	fmt.Fprintf(&b, "TRANSCRIPT:\n%s\n\n", transcript)

	b.WriteString(`Respond with a JSON object containing these exact fields:
- client_name (string): Client's name or "Not specified"
- session_date (string): Session date or "Not specified"
- session_length (string): Duration or "Not specified"
- subjective (string): Client's reported experience
- objective (string): Clinician observations
- assessment (string): Clinical assessment
- plan (string): Treatment plan
- clinical_tone (string): Brief description of client's overall presentation

Return ONLY valid JSON, no other text.`)

	return b.String()
}
