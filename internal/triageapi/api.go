// Package triageapi exposes the triage pipeline over HTTP.
package triageapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/carepath/chat/internal/llm"
	"github.com/carepath/chat/internal/triage"
)

// TriageService defines the business operations triageapi needs.
type TriageService interface {
	Triage(ctx context.Context, req triage.Request) (*triage.Result, error)
	Get(ctx context.Context, traceID string) (*triage.Result, bool, error)
	GetByMRN(ctx context.Context, mrn string) (*triage.Result, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger      log.Logger
	svc         TriageService
	serviceName string
	version     string
	defaultMode llm.Mode
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, serviceName, version string, defaultMode llm.Mode) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger:      logger,
		svc:         svc,
		serviceName: serviceName,
		version:     version,
		defaultMode: defaultMode,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/", a.handleServiceInfo)
	r.Post("/triage", a.handleTriage)
	r.Get("/triage/{trace_id}", a.handleGetTriage)
	r.Get("/patients/{mrn}/triage", a.handleGetPatientTriage)
}

func (a *API) handleServiceInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":  a.serviceName,
		"version":  a.version,
		"llm_mode": string(a.defaultMode),
	})
}

func (a *API) handleGetTriage(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "trace_id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("carepath.trace_id", traceID))

	result, ok, err := a.svc.Get(r.Context(), traceID)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get triage run", "trace_id", traceID)
		writeError(w, http.StatusInternalServerError, "internal error", traceID, "")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found", traceID, "")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleGetPatientTriage(w http.ResponseWriter, r *http.Request) {
	mrn := chi.URLParam(r, "mrn")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("carepath.patient_mrn", mrn))

	result, ok, err := a.svc.GetByMRN(r.Context(), mrn)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get patient triage history", "patient_mrn", mrn)
		writeError(w, http.StatusInternalServerError, "internal error", "", mrn)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found", "", mrn)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the error contract: a caller-safe message plus the trace id
// when a run had started, and the mrn when the patient was the problem.
type errorBody struct {
	Error      string `json:"error"`
	TraceID    string `json:"trace_id,omitempty"`
	PatientMRN string `json:"patient_mrn,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, traceID, mrn string) {
	writeJSON(w, status, errorBody{Error: msg, TraceID: traceID, PatientMRN: mrn})
}
