package triageapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/carepath/chat/internal/llm"
	"github.com/carepath/chat/internal/patient"
	"github.com/carepath/chat/internal/triage"
)

// triageRequest is the wire shape of POST /triage.
type triageRequest struct {
	PatientMRN string `json:"patient_mrn"`
	Query      string `json:"query"`
	LLMMode    string `json:"llm_mode,omitempty"`
}

func (a *API) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload", "", "")
		return
	}
	if req.PatientMRN == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid payload", "", "")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("carepath.patient_mrn", req.PatientMRN))

	result, err := a.svc.Triage(r.Context(), triage.Request{
		PatientMRN: req.PatientMRN,
		Query:      req.Query,
		Mode:       llm.Mode(req.LLMMode),
	})
	if err != nil {
		var terr *triage.Error
		if errors.As(err, &terr) {
			mrn := ""
			if errors.Is(err, patient.ErrNotFound) {
				mrn = terr.PatientMRN
			}
			writeError(w, terr.HTTPStatus(), terr.Message, terr.TraceID, mrn)
			return
		}
		a.logger.Error(r.Context(), err, "triage failed", "patient_mrn", req.PatientMRN)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred", "", "")
		return
	}

	span.SetAttributes(
		attribute.String("carepath.trace_id", result.TraceID),
		attribute.String("carepath.llm_mode", string(result.Mode)),
	)

	writeJSON(w, http.StatusOK, result)
}
