package fieldapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client talks to the central field-service backend. All calls carry the
// technician's bearer token; the backend decides tenant scope from it.
type Client struct {
	baseURL string
	http    *http.Client
}

const loginTimeout = 15 * time.Second

func NewClient() *Client {
	baseURL := strings.TrimSpace(os.Getenv("FIELD_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.fieldops.mmdatafocus.com"
	}
	timeout := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("FIELD_API_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// HealthURL is the reachability-probe target. A HEAD here answers "can we
// actually reach the backend", not just "is the radio associated".
func (c *Client) HealthURL() string {
	return c.baseURL + "/healthz"
}

// APIError is a non-2xx backend answer. Transport-level failures stay plain
// errors so callers can tell the two classes apart.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("field api error %d: %s", e.StatusCode, e.Body)
}

// IsConflict reports a 409: the work order moved on the backend since the
// version this change was based on.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// IsClientError reports a non-conflict 4xx: a malformed request that will
// fail identically on every retry.
func IsClientError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusConflict
}

// IsRetryable reports whether a delivery failure may clear up on its own:
// transport errors, timeouts and 5xx answers.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return true
}

func (c *Client) do(ctx context.Context, method string, path string, token string, headers map[string]string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method string, path string, token string, headers map[string]string, payload any, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, token, headers, body, contentType, out)
}

func (c *Client) getJSON(ctx context.Context, path string, token string, params url.Values, out any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path, token, nil, nil, "", out)
}

func versionHeader(baseVersion int) map[string]string {
	if baseVersion <= 0 {
		return nil
	}
	return map[string]string{"If-Match": strconv.Itoa(baseVersion)}
}
