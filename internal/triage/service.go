package triage

import (
	"context"
	"errors"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/carepath/chat/internal/chatlog"
	"github.com/carepath/chat/internal/llm"
	"github.com/carepath/chat/internal/patient"
	"github.com/carepath/chat/internal/rag"
	"github.com/carepath/chat/internal/trace"
)

// ContextFetcher retrieves the patient summary grounding a response.
type ContextFetcher interface {
	FetchSummary(ctx context.Context, mrn string) (*patient.Summary, error)
}

// Generator produces a response through the backend registered for a mode.
type Generator interface {
	Generate(ctx context.Context, mode llm.Mode, prompt string) (string, time.Duration, error)
}

// ChatLogger stores finished conversations, best effort.
type ChatLogger interface {
	Store(ctx context.Context, rec chatlog.Record) (conversationID string, ok bool)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Fetcher     ContextFetcher
	Generator   Generator
	ChatLog     ChatLogger
	Store       Store // nil disables the audit trail
	Tracer      *trace.Recorder
	Metrics     *Metrics
	Logger      log.Logger
	DefaultMode llm.Mode
}

// Service is the business boundary for triage operations.
type Service struct {
	fetcher     ContextFetcher
	generator   Generator
	chatlog     ChatLogger
	store       Store
	tracer      *trace.Recorder
	metrics     *Metrics
	logger      log.Logger
	defaultMode llm.Mode
}

// NewService creates a new triage service.
func NewService(c ServiceConfig) *Service {
	if c.Logger == nil {
		c.Logger = log.Nop()
	}
	if c.Tracer == nil {
		c.Tracer = trace.New(c.Logger)
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Service{
		fetcher:     c.Fetcher,
		generator:   c.Generator,
		chatlog:     c.ChatLog,
		store:       c.Store,
		tracer:      c.Tracer,
		metrics:     c.Metrics,
		logger:      c.Logger,
		defaultMode: c.DefaultMode,
	}
}

// Triage answers one patient question. The returned error, when non-nil, is
// always a *Error carrying the trace id and a caller-safe message.
func (s *Service) Triage(ctx context.Context, req Request) (*Result, error) {
	traceID := s.tracer.Start()
	s.tracer.Span(ctx, traceID, "request_received", "patient_mrn", req.PatientMRN)

	// Identifying fields pass the scrub boundary before they reach logs.
	scrubbed := rag.ScrubPHI(map[string]string{
		"patient_mrn": req.PatientMRN,
		"query":       req.Query,
	})
	L := s.logger.With("trace_id", traceID, "patient_mrn", scrubbed["patient_mrn"])

	// Resolve the mode up front so a bad request never costs an upstream call.
	mode := s.defaultMode
	if req.Mode != "" {
		m, err := llm.ParseMode(string(req.Mode))
		if err != nil {
			s.tracer.Span(ctx, traceID, "error", "error_type", "llm_error", "error_message", err.Error())
			s.metrics.TriagesTotal.WithLabelValues(string(StatusFailed), string(req.Mode)).Inc()
			L.Error(ctx, err, "rejected unknown llm mode")
			return nil, &Error{TraceID: traceID, PatientMRN: req.PatientMRN, Message: "Error generating response", Err: err}
		}
		mode = m
	}

	s.tracer.Span(ctx, traceID, "db_api_patient_summary_start", "patient_mrn", req.PatientMRN)
	fetchStart := time.Now()
	summary, err := s.fetcher.FetchSummary(ctx, req.PatientMRN)
	fetchElapsed := time.Since(fetchStart)
	if err != nil {
		s.metrics.TriagesTotal.WithLabelValues(string(StatusFailed), string(mode)).Inc()
		if errors.Is(err, patient.ErrNotFound) {
			s.metrics.ContextFetchDuration.WithLabelValues("not_found").Observe(fetchElapsed.Seconds())
			s.tracer.Span(ctx, traceID, "error", "error_type", "patient_not_found", "patient_mrn", req.PatientMRN)
			return nil, &Error{TraceID: traceID, PatientMRN: req.PatientMRN, Message: "Patient not found", Err: err}
		}
		s.metrics.ContextFetchDuration.WithLabelValues("error").Observe(fetchElapsed.Seconds())
		s.tracer.Span(ctx, traceID, "error", "error_type", "db_api_error", "error_message", err.Error())
		L.Error(ctx, err, "patient summary fetch failed")
		return nil, &Error{TraceID: traceID, PatientMRN: req.PatientMRN, Message: "Error fetching patient data", Err: err}
	}
	s.metrics.ContextFetchDuration.WithLabelValues("success").Observe(fetchElapsed.Seconds())
	s.tracer.Span(ctx, traceID, "db_api_patient_summary_end", "elapsed_ms", millis(fetchElapsed))

	events := []chatlog.RetrievalEvent{{
		StepID:      1,
		QueryType:   "db_query",
		Query:       "Fetch patient summary by MRN",
		Endpoint:    "/patients/" + req.PatientMRN + "/summary",
		LatencyMS:   millis(fetchElapsed),
		RecordCount: 1,
	}}

	prompt := rag.BuildPrompt(req.Query, summary)

	s.tracer.Span(ctx, traceID, "llm_inference_start", "llm_mode", string(mode))
	response, inferElapsed, err := s.generator.Generate(ctx, mode, prompt)
	if err != nil {
		s.metrics.TriagesTotal.WithLabelValues(string(StatusFailed), string(mode)).Inc()
		s.tracer.Span(ctx, traceID, "error", "error_type", "llm_error", "error_message", err.Error())
		L.Error(ctx, err, "inference failed", "llm_mode", string(mode))
		return nil, &Error{TraceID: traceID, PatientMRN: req.PatientMRN, Message: "Error generating response", Err: err}
	}
	s.metrics.InferenceDuration.WithLabelValues(string(mode)).Observe(inferElapsed.Seconds())
	s.tracer.Span(ctx, traceID, "llm_inference_end", "elapsed_ms", millis(inferElapsed))

	// Both turns share one timestamp so the stored conversation orders by
	// sequence, not clock jitter.
	now := time.Now().UTC()
	messages := []chatlog.Message{
		{Role: "user", Content: req.Query, Timestamp: now},
		{Role: "assistant", Content: response, Timestamp: now, ModelName: string(mode), LatencyMS: millis(inferElapsed)},
	}

	s.tracer.Span(ctx, traceID, "chat_log_storage_start")
	conversationID, stored := s.chatlog.Store(ctx, chatlog.Record{
		PatientMRN:      req.PatientMRN,
		Channel:         "api",
		Messages:        messages,
		RetrievalEvents: events,
		TraceID:         traceID,
	})
	outcome := "success"
	if !stored {
		outcome = "error"
	}
	s.metrics.ChatLogTotal.WithLabelValues(outcome).Inc()
	s.tracer.Span(ctx, traceID, "chat_log_storage_end", "conversation_id", conversationID)

	result := &Result{
		TraceID:        traceID,
		PatientMRN:     req.PatientMRN,
		Query:          req.Query,
		Mode:           mode,
		Response:       response,
		InferenceMS:    millis(inferElapsed),
		ConversationID: conversationID,
		Status:         StatusComplete,
		CreatedAt:      now,
	}

	if s.store != nil {
		if err := s.store.Put(ctx, result); err != nil {
			L.Error(ctx, err, "failed to persist triage run")
		}
	}

	s.tracer.Span(ctx, traceID, "request_completed")
	s.metrics.TriagesTotal.WithLabelValues(string(StatusComplete), string(mode)).Inc()
	L.Info(ctx, "triage complete", "llm_mode", string(mode), "inference_ms", millis(inferElapsed))
	return result, nil
}

// Get retrieves a stored triage run by trace id.
func (s *Service) Get(ctx context.Context, traceID string) (*Result, bool, error) {
	if s.store == nil {
		return nil, false, nil
	}
	return s.store.Get(ctx, traceID)
}

// GetByMRN retrieves the most recent triage run for a patient.
func (s *Service) GetByMRN(ctx context.Context, mrn string) (*Result, bool, error) {
	if s.store == nil {
		return nil, false, nil
	}
	return s.store.GetByMRN(ctx, mrn)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1e3
}
