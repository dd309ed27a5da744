// Package chatlog persists finished conversations to the DB API. Storage is
// best effort: a triage answer is never failed because its audit trail could
// not be written.
package chatlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Message is one conversation turn as the DB API records it.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name,omitempty"`
	LatencyMS float64   `json:"latency_ms,omitempty"`
}

// RetrievalEvent records one context lookup made while answering.
type RetrievalEvent struct {
	StepID      int     `json:"step_id"`
	QueryType   string  `json:"query_type"`
	Query       string  `json:"query"`
	Endpoint    string  `json:"endpoint"`
	LatencyMS   float64 `json:"latency_ms"`
	RecordCount int     `json:"record_count"`
}

// Record is a complete conversation ready to store.
type Record struct {
	PatientMRN      string           `json:"patient_mrn"`
	Channel         string           `json:"channel"`
	Messages        []Message        `json:"messages"`
	RetrievalEvents []RetrievalEvent `json:"retrieval_events"`
	TraceID         string           `json:"trace_id"`
}

// Client stores chat logs over the DB API's HTTP surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// NewClient creates a chat log client against the DB API base URL.
func NewClient(baseURL string, timeout time.Duration, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Store writes the record and returns the conversation id the DB API
// assigned. Every failure path logs and reports ok=false; Store never
// returns an error.
func (c *Client) Store(ctx context.Context, rec Record) (conversationID string, ok bool) {
	if rec.Channel == "" {
		rec.Channel = "api"
	}

	body, err := json.Marshal(rec)
	if err != nil {
		c.logger.Error(ctx, err, "chat log encode failed", "trace_id", rec.TraceID)
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat-logs", bytes.NewReader(body))
	if err != nil {
		c.logger.Error(ctx, err, "chat log request failed", "trace_id", rec.TraceID)
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, err, "chat log storage unreachable", "trace_id", rec.TraceID)
		return "", false
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error(ctx, err, "chat log response read failed", "trace_id", rec.TraceID)
		return "", false
	}

	if resp.StatusCode != http.StatusCreated {
		err := fmt.Errorf("chat log storage returned %d", resp.StatusCode)
		c.logger.Error(ctx, err, "chat log storage rejected",
			"status", resp.StatusCode,
			"body", excerpt(respBody),
			"trace_id", rec.TraceID)
		return "", false
	}

	var created struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		c.logger.Error(ctx, err, "chat log response decode failed", "trace_id", rec.TraceID)
		return "", false
	}

	c.logger.Info(ctx, "chat log stored",
		"conversation_id", created.ConversationID,
		"trace_id", rec.TraceID)
	return created.ConversationID, true
}

func excerpt(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}
