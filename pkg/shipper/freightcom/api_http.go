package freightcom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var errPollTimeout = &APIError{Code: "TIMEOUT", Message: "rate request timed out waiting for results"}

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration // Interval between polls for pending rates
	PollTimeout  time.Duration // Max time to wait for rates
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 500 * time.Millisecond
	}

	pollTimeout := cfg.PollTimeout
	if pollTimeout == 0 {
		pollTimeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

// GetRates fetches shipping rates from the Freightcom API.
// POST /rate returns a request_id, then GET /rate/{request_id} is polled
// until the rates are complete.
func (c *HTTPAPIClient) GetRates(ctx context.Context, req *RatesRequest) (*RatesResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/rate", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var rateReq RateRequestResponse
	if err := json.NewDecoder(resp.Body).Decode(&rateReq); err != nil {
		return nil, fmt.Errorf("failed to decode rate request response: %w", err)
	}

	return c.pollRates(ctx, rateReq.RequestID)
}

func (c *HTTPAPIClient) pollRates(parent context.Context, requestID string) (*RatesResponse, error) {
	ctx, cancel := context.WithTimeout(parent, c.pollTimeout)
	defer cancel()

	timedOut := func() bool {
		return parent.Err() == nil && ctx.Err() == context.DeadlineExceeded
	}

	path := "/rate/" + requestID
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		result, err := c.fetchRates(ctx, path)
		if err != nil {
			if timedOut() {
				return nil, errPollTimeout
			}
			return nil, err
		}

		switch result.Status {
		case "complete":
			return result, nil
		case "error":
			return nil, &APIError{Code: "RATE_ERROR", Message: result.Error}
		case "pending":
		default:
			return nil, &APIError{
				Code:    "UNKNOWN_STATUS",
				Message: fmt.Sprintf("unknown rate status: %s", result.Status),
			}
		}

		select {
		case <-ctx.Done():
			if timedOut() {
				return nil, errPollTimeout
			}
			return nil, parent.Err()
		case <-ticker.C:
		}
	}
}

func (c *HTTPAPIClient) fetchRates(ctx context.Context, path string) (*RatesResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result RatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode rates response: %w", err)
	}
	return &result, nil
}

func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("User-Agent", "shipquote/1.0")

	return c.httpClient.Do(req)
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	var simpleErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &simpleErr); err == nil {
		if simpleErr.Error != "" {
			msg = simpleErr.Error
		} else if simpleErr.Message != "" {
			msg = simpleErr.Message
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
		Message:    msg,
	}
}

var _ APIClient = (*HTTPAPIClient)(nil)
