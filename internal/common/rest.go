package common

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

const defaultHTTPTimeout = 60 * time.Second

// StatusError is returned for a response outside the 2xx range.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Status, strings.TrimSpace(e.Body))
}

// RESTClient sends JSON requests to one base URL with a fixed authorization.
type RESTClient struct {
	BaseURL string
	HTTP    *http.Client
	// Authorize decorates each request, typically with an Authorization header.
	Authorize func(*http.Request)
}

// NewRESTClient creates a RESTClient with a default HTTP client.
func NewRESTClient(baseURL string, authorize func(*http.Request)) *RESTClient {
	return &RESTClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		HTTP:      &http.Client{Timeout: defaultHTTPTimeout},
		Authorize: authorize,
	}
}

// BearerToken sets "Authorization: <scheme> <token>".
func BearerToken(scheme, token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", scheme+" "+token) }
}

// BasicAuth sets HTTP basic authentication.
func BasicAuth(username, password string) func(*http.Request) {
	return func(r *http.Request) { r.SetBasicAuth(username, password) }
}

// Do sends a request with an optional JSON body and returns the raw response body.
func (c *RESTClient) Do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	url := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Authorize != nil {
		c.Authorize(req)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return data, &StatusError{Method: method, URL: url, Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// Get is shorthand for Do with GET.
func (c *RESTClient) Get(ctx context.Context, path string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}
