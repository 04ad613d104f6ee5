package cli

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

const clientTimeout = 30 * time.Second

// APIError is an error response from the storefront service.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s: %s", e.Status, e.Code, e.Message)
}

// Client calls the storefront service HTTP API.
type Client struct {
	base string
	http *http.Client
	out  *printer
}

func newClient(opts *RootOptions, out io.Writer) *Client {
	return &Client{
		base: strings.TrimRight(opts.Server, "/"),
		http: &http.Client{Timeout: clientTimeout},
		out:  newPrinter(out, opts),
	}
}

// Do sends body as JSON and decodes a successful response into dst.
// A nil dst discards the response body.
func (c *Client) Do(ctx context.Context, method, path string, body, dst any) error {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.out.request(method, path, reqJSON)

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	c.out.response(resp.StatusCode, respBody, duration)

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, respBody)
	}
	if dst == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, dst); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) error {
	var env struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			Retryable bool   `json:"retryable"`
		} `json:"error"`
	}
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, &env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Retryable = env.Error.Retryable
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
