package rag

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/carepath/chat/internal/patient"
)

func testSummary() *patient.Summary {
	return &patient.Summary{
		Patient: patient.Patient{
			MRN:  "P000123",
			Name: patient.Name{First: "Ada", Last: "Nguyen"},
			DOB:  "1961-04-02",
			Conditions: []patient.Condition{
				{Code: "E11.9", Display: "Type 2 diabetes"},
				{Code: "I10", Display: "Hypertension"},
				{Code: "E11.9-dup", Display: "Type 2 diabetes"},
			},
		},
		RecentEncounters: []patient.Encounter{
			{EncounterID: "E-1", Type: "office_visit"},
			{EncounterID: "E-2", Type: "telehealth"},
		},
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	t.Parallel()

	summary := testSummary()
	a := BuildPrompt("What are my current medications?", summary)
	b := BuildPrompt("What are my current medications?", summary)
	if a != b {
		t.Error("identical inputs produced different prompts")
	}
}

func TestBuildPrompt_ContainsQueryAndMRN(t *testing.T) {
	t.Parallel()

	query := "What are my current medications?"
	prompt := BuildPrompt(query, testSummary())

	if !strings.Contains(prompt, query) {
		t.Error("prompt missing literal query text")
	}
	if !strings.Contains(prompt, "P000123") {
		t.Error("prompt missing patient mrn")
	}
	if !strings.Contains(prompt, "Ada Nguyen") {
		t.Error("prompt missing normalized display name")
	}
	if !strings.Contains(prompt, "1961-04-02") {
		t.Error("prompt missing date of birth")
	}
	if !strings.Contains(prompt, "Recent Encounters: 2") {
		t.Error("prompt missing encounter count")
	}
}

func TestBuildPrompt_DeduplicatesConditions(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt("q", testSummary())

	if !strings.Contains(prompt, "Type 2 diabetes, Hypertension") {
		t.Errorf("conditions not deduplicated in order:\n%s", prompt)
	}
	if strings.Count(prompt, "Type 2 diabetes, Hypertension, Type 2 diabetes") != 0 {
		t.Error("duplicate condition display survived")
	}
}

func TestBuildPrompt_EmptySummaryFields(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt("q", &patient.Summary{})

	if !strings.Contains(prompt, "MRN: Unknown") {
		t.Error("missing mrn fallback")
	}
	if !strings.Contains(prompt, "Medical Conditions: None recorded") {
		t.Error("missing condition fallback")
	}
}

func TestBuildPrompt_DoesNotMutateSummary(t *testing.T) {
	t.Parallel()

	summary := testSummary()
	before, err := json.Marshal(summary)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	BuildPrompt("q", summary)

	after, err := json.Marshal(summary)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(before) != string(after) {
		t.Error("BuildPrompt mutated the summary")
	}
}

func TestBuildPrompt_PrefersRawBody(t *testing.T) {
	t.Parallel()

	summary := testSummary()
	summary.Raw = json.RawMessage(`{"patient":{"mrn":"P000123"},"custom_field":"kept"}`)

	prompt := BuildPrompt("q", summary)
	if !strings.Contains(prompt, "custom_field") {
		t.Error("raw summary fields should reach the prompt")
	}
}
