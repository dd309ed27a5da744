package triage

import (
	"errors"
	"net/http"
	"time"

	"github.com/carepath/chat/internal/llm"
	"github.com/carepath/chat/internal/patient"
)

// Status tracks how a triage run ended.
type Status string

const (
	// StatusComplete means a response was generated
	StatusComplete Status = "complete"

	// StatusFailed means the run ended before a response existed
	StatusFailed Status = "failed"
)

// Request is one patient question to answer.
type Request struct {
	PatientMRN string   `json:"patient_mrn"`
	Query      string   `json:"query"`
	Mode       llm.Mode `json:"llm_mode,omitempty"` // empty means the configured default
}

// Result is the outcome of a triage run.
type Result struct {
	TraceID        string    `json:"trace_id"`
	PatientMRN     string    `json:"patient_mrn"`
	Query          string    `json:"query"`
	Mode           llm.Mode  `json:"llm_mode"`
	Response       string    `json:"response"`
	InferenceMS    float64   `json:"inference_time_ms"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// Error is a failed triage run. Message is safe to show to the caller; Err
// carries the cause for logs and classification.
type Error struct {
	TraceID    string
	PatientMRN string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the failure to a response code. Only a missing patient is
// the caller's problem; everything else is a server-side failure.
func (e *Error) HTTPStatus() int {
	if errors.Is(e.Err, patient.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
