package triage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carepath/chat/internal/chatlog"
	"github.com/carepath/chat/internal/llm"
	"github.com/carepath/chat/internal/patient"
)

type fakeFetcher struct {
	summary *patient.Summary
	err     error
	calls   int
}

func (f *fakeFetcher) FetchSummary(_ context.Context, _ string) (*patient.Summary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

type fakeGenerator struct {
	text       string
	err        error
	took       time.Duration
	calls      int
	lastMode   llm.Mode
	lastPrompt string
}

func (g *fakeGenerator) Generate(_ context.Context, mode llm.Mode, prompt string) (string, time.Duration, error) {
	g.calls++
	g.lastMode = mode
	g.lastPrompt = prompt
	if g.err != nil {
		return "", g.took, g.err
	}
	return g.text, g.took, nil
}

type fakeChatLog struct {
	id      string
	ok      bool
	calls   int
	lastRec chatlog.Record
}

func (c *fakeChatLog) Store(_ context.Context, rec chatlog.Record) (string, bool) {
	c.calls++
	c.lastRec = rec
	return c.id, c.ok
}

type fakeStore struct {
	puts []*Result
	err  error
}

func (s *fakeStore) Get(_ context.Context, traceID string) (*Result, bool, error) {
	for _, r := range s.puts {
		if r.TraceID == traceID {
			return r, true, nil
		}
	}
	return nil, false, nil
}

func (s *fakeStore) GetByMRN(_ context.Context, mrn string) (*Result, bool, error) {
	for i := len(s.puts) - 1; i >= 0; i-- {
		if s.puts[i].PatientMRN == mrn {
			return s.puts[i], true, nil
		}
	}
	return nil, false, nil
}

func (s *fakeStore) Put(_ context.Context, r *Result) error {
	if s.err != nil {
		return s.err
	}
	s.puts = append(s.puts, r)
	return nil
}

func testSummary() *patient.Summary {
	return &patient.Summary{
		Patient: patient.Patient{
			MRN: "P000123",
			Name: patient.Name{
				First: "Ada",
				Last:  "Nguyen",
			},
			DOB: "1985-03-14",
		},
	}
}

type fixture struct {
	fetcher *fakeFetcher
	gen     *fakeGenerator
	chat    *fakeChatLog
	store   *fakeStore
	svc     *Service
}

func newFixture() *fixture {
	f := &fixture{
		fetcher: &fakeFetcher{summary: testSummary()},
		gen:     &fakeGenerator{text: "You are due for a follow-up.", took: 25 * time.Millisecond},
		chat:    &fakeChatLog{id: "conv-1", ok: true},
		store:   &fakeStore{},
	}
	f.svc = NewService(ServiceConfig{
		Fetcher:     f.fetcher,
		Generator:   f.gen,
		ChatLog:     f.chat,
		Store:       f.store,
		Metrics:     NewMetrics(prometheus.NewRegistry()),
		DefaultMode: llm.ModeMock,
	})
	return f
}

func TestTriage_Success(t *testing.T) {
	t.Parallel()

	f := newFixture()
	req := Request{PatientMRN: "P000123", Query: "When is my next appointment?"}

	result, err := f.svc.Triage(context.Background(), req)
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}

	if len(result.TraceID) != 26 {
		t.Errorf("trace id = %q, want 26-char ulid", result.TraceID)
	}
	if result.PatientMRN != "P000123" || result.Query != req.Query {
		t.Errorf("result echo = %q %q", result.PatientMRN, result.Query)
	}
	if result.Mode != llm.ModeMock {
		t.Errorf("mode = %q, want default mock", result.Mode)
	}
	if result.Response != "You are due for a follow-up." {
		t.Errorf("response = %q", result.Response)
	}
	if result.InferenceMS < 0 {
		t.Errorf("inference_time_ms = %v, want >= 0", result.InferenceMS)
	}
	if result.ConversationID != "conv-1" {
		t.Errorf("conversation_id = %q, want conv-1", result.ConversationID)
	}
	if result.Status != StatusComplete {
		t.Errorf("status = %q, want complete", result.Status)
	}

	if f.gen.lastPrompt == "" {
		t.Error("generator must receive the built prompt")
	}
	if len(f.store.puts) != 1 {
		t.Errorf("store puts = %d, want 1", len(f.store.puts))
	}
}

func TestTriage_ChatLogRecord(t *testing.T) {
	t.Parallel()

	f := newFixture()
	result, err := f.svc.Triage(context.Background(), Request{PatientMRN: "P000123", Query: "Am I on any statins?"})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}

	rec := f.chat.lastRec
	if rec.PatientMRN != "P000123" || rec.Channel != "api" {
		t.Errorf("record = %+v", rec)
	}
	if rec.TraceID != result.TraceID {
		t.Errorf("record trace_id = %q, want %q", rec.TraceID, result.TraceID)
	}
	if len(rec.Messages) != 2 {
		t.Fatalf("messages len = %d, want 2", len(rec.Messages))
	}
	if rec.Messages[0].Role != "user" || rec.Messages[0].Content != "Am I on any statins?" {
		t.Errorf("user message = %+v", rec.Messages[0])
	}
	if rec.Messages[1].Role != "assistant" || rec.Messages[1].ModelName != string(llm.ModeMock) {
		t.Errorf("assistant message = %+v", rec.Messages[1])
	}
	if !rec.Messages[0].Timestamp.Equal(rec.Messages[1].Timestamp) {
		t.Error("both turns must share one timestamp")
	}
	if len(rec.RetrievalEvents) != 1 {
		t.Fatalf("retrieval events len = %d, want 1", len(rec.RetrievalEvents))
	}
	ev := rec.RetrievalEvents[0]
	if ev.StepID != 1 || ev.QueryType != "db_query" || ev.RecordCount != 1 {
		t.Errorf("retrieval event = %+v", ev)
	}
	if ev.Endpoint != "/patients/P000123/summary" {
		t.Errorf("endpoint = %q", ev.Endpoint)
	}
}

func TestTriage_PatientNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.err = fmt.Errorf("mrn P999999: %w", patient.ErrNotFound)

	_, err := f.svc.Triage(context.Background(), Request{PatientMRN: "P999999", Query: "hello"})
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("err = %T, want *Error", err)
	}
	if terr.HTTPStatus() != http.StatusNotFound {
		t.Errorf("status = %d, want 404", terr.HTTPStatus())
	}
	if terr.Message != "Patient not found" {
		t.Errorf("message = %q", terr.Message)
	}
	if terr.TraceID == "" || terr.PatientMRN != "P999999" {
		t.Errorf("error context = %+v", terr)
	}
	if f.gen.calls != 0 {
		t.Error("generator must not run without patient context")
	}
	if f.chat.calls != 0 {
		t.Error("chat log must not be written for a failed run")
	}
}

func TestTriage_UpstreamFetchError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.err = &patient.UpstreamError{Status: 500, Body: "boom"}

	_, err := f.svc.Triage(context.Background(), Request{PatientMRN: "P000123", Query: "hello"})
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("err = %T, want *Error", err)
	}
	if terr.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", terr.HTTPStatus())
	}
	if terr.Message != "Error fetching patient data" {
		t.Errorf("message = %q", terr.Message)
	}
}

func TestTriage_UnknownModeRejectedBeforeFetch(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.svc.Triage(context.Background(), Request{
		PatientMRN: "P000123",
		Query:      "hello",
		Mode:       llm.Mode("gpt7"),
	})
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("err = %T, want *Error", err)
	}
	if !errors.Is(err, llm.ErrUnknownMode) {
		t.Error("cause must be ErrUnknownMode")
	}
	if terr.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", terr.HTTPStatus())
	}
	if f.fetcher.calls != 0 {
		t.Error("bad mode must be rejected before any upstream call")
	}
}

func TestTriage_ModeOverride(t *testing.T) {
	t.Parallel()

	f := newFixture()
	result, err := f.svc.Triage(context.Background(), Request{
		PatientMRN: "P000123",
		Query:      "hello",
		Mode:       llm.ModeGGUF,
	})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if f.gen.lastMode != llm.ModeGGUF {
		t.Errorf("generator mode = %q, want gguf", f.gen.lastMode)
	}
	if result.Mode != llm.ModeGGUF {
		t.Errorf("result mode = %q, want gguf", result.Mode)
	}
}

func TestTriage_GeneratorError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.gen.err = &llm.BackendError{Backend: llm.ModeHF, Category: llm.CategoryRateLimit, Message: "rate limited"}

	_, err := f.svc.Triage(context.Background(), Request{PatientMRN: "P000123", Query: "hello"})
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("err = %T, want *Error", err)
	}
	if terr.Message != "Error generating response" {
		t.Errorf("message = %q", terr.Message)
	}
	if f.chat.calls != 0 {
		t.Error("chat log must not be written when inference fails")
	}
}

func TestTriage_ChatLogFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.chat.id, f.chat.ok = "", false

	result, err := f.svc.Triage(context.Background(), Request{PatientMRN: "P000123", Query: "hello"})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if result.Status != StatusComplete {
		t.Errorf("status = %q, want complete", result.Status)
	}
	if result.ConversationID != "" {
		t.Errorf("conversation_id = %q, want empty", result.ConversationID)
	}
}

func TestTriage_AuditStoreFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.err = errors.New("db down")

	result, err := f.svc.Triage(context.Background(), Request{PatientMRN: "P000123", Query: "hello"})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if result.Status != StatusComplete {
		t.Errorf("status = %q, want complete", result.Status)
	}
}

func TestGet_RoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture()
	result, err := f.svc.Triage(context.Background(), Request{PatientMRN: "P000123", Query: "hello"})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}

	got, ok, err := f.svc.Get(context.Background(), result.TraceID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.TraceID != result.TraceID {
		t.Errorf("trace id = %q, want %q", got.TraceID, result.TraceID)
	}

	latest, ok, err := f.svc.GetByMRN(context.Background(), "P000123")
	if err != nil || !ok {
		t.Fatalf("GetByMRN: ok=%v err=%v", ok, err)
	}
	if latest.TraceID != result.TraceID {
		t.Errorf("latest trace id = %q, want %q", latest.TraceID, result.TraceID)
	}
}

func TestTriage_TraceIDsUnique(t *testing.T) {
	t.Parallel()

	f := newFixture()
	a, err := f.svc.Triage(context.Background(), Request{PatientMRN: "P000123", Query: "one"})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	b, err := f.svc.Triage(context.Background(), Request{PatientMRN: "P000123", Query: "two"})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if a.TraceID == b.TraceID {
		t.Error("each run must get its own trace id")
	}
}

func TestNewService_DefaultsMetrics(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{summary: testSummary()}
	svc := NewService(ServiceConfig{
		Fetcher:     fetcher,
		Generator:   &fakeGenerator{text: "ok"},
		ChatLog:     &fakeChatLog{id: "conv-1", ok: true},
		DefaultMode: llm.ModeMock,
	})

	result, err := svc.Triage(context.Background(), Request{PatientMRN: "P000123", Query: "hi"})
	if err != nil {
		t.Fatalf("Triage without explicit metrics: %v", err)
	}
	if result.Status != StatusComplete {
		t.Errorf("status = %q, want complete", result.Status)
	}
}
