package patient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const summaryBody = `{
	"patient": {
		"mrn": "P000123",
		"name": {"first": "Ada", "last": "Nguyen"},
		"dob": "1961-04-02",
		"sex": "F",
		"conditions": [{"code": "E11.9", "system": "ICD-10", "display": "Type 2 diabetes"}],
		"medications": [{"drug_code": "860975", "name": "Metformin 500mg", "start_date": "2020-01-15", "sig": "twice daily"}]
	},
	"recent_encounters": [{"patient_mrn": "P000123", "encounter_id": "E-1", "type": "office_visit", "location": "Clinic A", "start": "2026-01-10", "end": "2026-01-10"}],
	"recent_claims": [],
	"documents": [],
	"summary_metadata": {"mrn": "P000123", "encounter_count": 1, "claim_count": 0, "document_count": 0}
}`

func TestFetchSummary_OK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/patients/P000123/summary" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/patients/P000123/summary")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(summaryBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)

	summary, err := c.FetchSummary(context.Background(), "P000123")
	if err != nil {
		t.Fatalf("FetchSummary: %v", err)
	}
	if summary.Patient.MRN != "P000123" {
		t.Errorf("mrn = %q, want %q", summary.Patient.MRN, "P000123")
	}
	if got := len(summary.Patient.Conditions); got != 1 {
		t.Errorf("conditions = %d, want 1", got)
	}
	if summary.Metadata.EncounterCount != 1 {
		t.Errorf("encounter_count = %d, want 1", summary.Metadata.EncounterCount)
	}
	if len(summary.Raw) == 0 {
		t.Error("expected raw body to be preserved")
	}
}

func TestFetchSummary_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"Patient with MRN P999999 not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)

	_, err := c.FetchSummary(context.Background(), "P999999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFetchSummary_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)

	_, err := c.FetchSummary(context.Background(), "P000123")
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %T, want *UpstreamError", err)
	}
	if ue.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", ue.Status)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("server error must not be classified as not-found")
	}
}

func TestFetchSummary_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50*time.Millisecond)

	_, err := c.FetchSummary(context.Background(), "P000123")
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %T, want *UpstreamError", err)
	}
}

func TestFetchSummary_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)

	_, err := c.FetchSummary(context.Background(), "P000123")
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %T, want *UpstreamError", err)
	}
}
