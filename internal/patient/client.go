package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrNotFound indicates the DB API does not know the requested MRN.
var ErrNotFound = errors.New("patient not found")

// UpstreamError indicates the DB API call failed for any reason other than
// a missing patient: transport failure, timeout, or a non-2xx response.
type UpstreamError struct {
	Status int    // HTTP status, 0 for transport failures
	Body   string // response body excerpt, empty for transport failures
	Err    error  // underlying transport error, nil for HTTP failures
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("db api: %v", e.Err)
	}
	return fmt.Sprintf("db api returned %d: %s", e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Client fetches patient summaries from the DB API. Requests carry a bounded
// timeout; failures are never retried here, the orchestrator decides the
// final response status.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a DB API client for the given base URL and per-request
// timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// FetchSummary retrieves the summary document for one MRN. It returns
// ErrNotFound when the DB API reports the MRN as unknown and *UpstreamError
// for any other failure.
func (c *Client) FetchSummary(ctx context.Context, mrn string) (*Summary, error) {
	url := fmt.Sprintf("%s/patients/%s/summary", c.baseURL, mrn)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("mrn %s: %w", mrn, ErrNotFound)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: excerpt(body)}
	}

	var summary Summary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("decode summary: %w", err)}
	}
	summary.Raw = json.RawMessage(body)

	return &summary, nil
}

func excerpt(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
