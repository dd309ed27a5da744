// Package rag builds the grounding prompt that combines a patient summary
// with the user's question. This is the only place where patient data and
// query text are joined into a prompt string.
package rag

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carepath/chat/internal/patient"
)

// BuildPrompt renders the grounding prompt for one request. It is pure and
// deterministic: identical inputs yield an identical string, and the summary
// is never mutated. Prompt length is bounded only by what the DB API already
// bounds (recent-N lists); oversized prompts are the backend's problem.
func BuildPrompt(query string, summary *patient.Summary) string {
	p := summary.Patient

	mrn := p.MRN
	if mrn == "" {
		mrn = "Unknown"
	}

	name := strings.TrimSpace(p.Name.First + " " + p.Name.Last)
	if name == "" {
		name = "Unknown"
	}

	dob := p.DOB
	if dob == "" {
		dob = "Unknown"
	}

	conditions := conditionDisplays(p.Conditions)
	conditionLine := "None recorded"
	if len(conditions) > 0 {
		conditionLine = strings.Join(conditions, ", ")
	}

	var b strings.Builder
	b.WriteString("You are a helpful AI healthcare assistant for CarePath.\n\n")
	b.WriteString("PATIENT INFORMATION:\n")
	fmt.Fprintf(&b, "- MRN: %s\n", mrn)
	fmt.Fprintf(&b, "- Name: %s\n", name)
	fmt.Fprintf(&b, "- Date of Birth: %s\n", dob)
	fmt.Fprintf(&b, "- Medical Conditions: %s\n", conditionLine)
	fmt.Fprintf(&b, "- Recent Encounters: %d\n", len(summary.RecentEncounters))
	b.WriteString("\nPATIENT SUMMARY DATA:\n")
	b.WriteString(summaryDump(summary))
	b.WriteString("\n\nUSER QUESTION:\n")
	b.WriteString(query)
	b.WriteString("\n\nPlease provide a helpful, empathetic response to the patient's question based on the information above.\n")
	b.WriteString("Keep your response clear, concise, and patient-friendly.\n")

	return b.String()
}

// conditionDisplays returns the condition display names de-duplicated,
// preserving first-seen order.
func conditionDisplays(conditions []patient.Condition) []string {
	seen := make(map[string]bool, len(conditions))
	out := make([]string, 0, len(conditions))
	for _, c := range conditions {
		if c.Display == "" || seen[c.Display] {
			continue
		}
		seen[c.Display] = true
		out = append(out, c.Display)
	}
	return out
}

// summaryDump renders the full summary document for grounding. The raw DB
// API body is preferred so fields this service does not model still reach
// the model; summaries built in-process fall back to re-marshalling.
func summaryDump(summary *patient.Summary) string {
	if len(summary.Raw) > 0 {
		var buf strings.Builder
		if err := indentJSON(&buf, summary.Raw); err == nil {
			return buf.String()
		}
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}

func indentJSON(buf *strings.Builder, raw json.RawMessage) error {
	var compact map[string]any
	if err := json.Unmarshal(raw, &compact); err != nil {
		return err
	}
	out, err := json.MarshalIndent(compact, "", "  ")
	if err != nil {
		return err
	}
	buf.Write(out)
	return nil
}
