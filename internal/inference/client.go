package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks JSON-over-HTTP to the inference service.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the inference service at baseURL.
// A zero timeout falls back to 10s; Analyze is on the per-frame hot path,
// so the timeout doubles as backpressure against a stalled upstream.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Analyze submits one frame for scoring.
func (c *HTTPClient) Analyze(ctx context.Context, req AnalyzeRequest) (Verdict, error) {
	var v Verdict
	if err := c.post(ctx, "/v1/analyze", req, &v); err != nil {
		return Verdict{}, err
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}
	return v, nil
}

// RecommendDrills requests drills for the given weak areas.
func (c *HTTPClient) RecommendDrills(ctx context.Context, req DrillRequest) (DrillResponse, error) {
	var resp DrillResponse
	if err := c.post(ctx, "/v1/drills", req, &resp); err != nil {
		return DrillResponse{}, err
	}
	return resp, nil
}

// SessionReport requests the end-of-session summary.
func (c *HTTPClient) SessionReport(ctx context.Context, req ReportRequest) (SessionReport, error) {
	var report SessionReport
	if err := c.post(ctx, "/v1/report", req, &report); err != nil {
		return SessionReport{}, err
	}
	return report, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("inference: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("inference: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inference: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("inference: %s status %d: %s", path, resp.StatusCode, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("inference: decode response: %w", err)
	}
	return nil
}
