// Package hoyu submits approved dealer allocations to the HOYU partner system.
package hoyu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abascode/his-backend-abas/internal/allocation/engine"
	"github.com/abascode/his-backend-abas/internal/config"
)

// AllocationPath is the partner endpoint receiving allocations.
const AllocationPath = "/ords/hmsi/dealer_forcast/allocation"

const maxErrorBody = 512

// OutboundError reports a failed submission. The payload is never included.
type OutboundError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *OutboundError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("hoyu submission to %s failed with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("hoyu submission to %s failed: %v", e.URL, e.Err)
}

func (e *OutboundError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the submission gave up waiting for the partner.
func (e *OutboundError) IsTimeout() bool {
	var netErr interface{ Timeout() bool }
	if errors.As(e.Err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// SubmitResult describes an accepted submission.
type SubmitResult struct {
	URL        string
	StatusCode int
	Entries    int
	Body       []byte
	Duration   time.Duration
}

// Client posts allocation payloads with basic auth. There is no retry: a
// failed call is surfaced to the caller who decides whether to resend.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

func NewClient(cfg config.OutboundConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint is the full submission URL.
func (c *Client) Endpoint() string {
	return c.baseURL + AllocationPath
}

// Encode renders entries as the partner request body.
func Encode(entries []engine.PayloadEntry) ([]byte, error) {
	data := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		item := map[string]interface{}{
			"RECORD_ID":          e.RecordID,
			"DEALER_FORECAST_ID": e.DealerForecastID,
			"MODEL_VARIANT":      e.ModelVariant,
		}
		for _, a := range e.Allocations {
			item[fmt.Sprintf("N%d_HMSI_ALLOCATION", a.Horizon)] = a.Value
		}
		data = append(data, item)
	}
	return json.Marshal(map[string]interface{}{"data": data})
}

// SubmitAllocation posts an encoded body produced by Encode.
func (c *Client) SubmitAllocation(ctx context.Context, body []byte, entries int) (*SubmitResult, error) {
	url := c.Endpoint()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &OutboundError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &OutboundError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &OutboundError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := respBody
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &OutboundError{URL: url, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	return &SubmitResult{
		URL:        url,
		StatusCode: resp.StatusCode,
		Entries:    entries,
		Body:       respBody,
		Duration:   time.Since(start),
	}, nil
}
