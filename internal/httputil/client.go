// Package httputil holds the HTTP glue shared by the daemon: the
// outbound client surface the webhook notifier posts through, and the
// JSON response helpers the API handlers write with.
package httputil

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPClient is the outbound surface the notifier needs. Webhook
// delivery only ever posts JSON, so the interface stays at one method;
// MockHTTPClient stands in during tests.
type HTTPClient interface {
	Post(url, contentType string, body io.Reader) (*http.Response, error)
}

// StandardClient adapts an *http.Client to HTTPClient.
type StandardClient struct {
	client *http.Client
}

// NewStandardClient wraps c, falling back to http.DefaultClient when nil.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{client: c}
}

func (c *StandardClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	return c.client.Post(url, contentType, body)
}

// MockHTTPClient records outbound posts and replays canned responses so
// webhook delivery, the legacy-endpoint fallback, and transport failures
// can be exercised without a listening TerrariumPI.
type MockHTTPClient struct {
	mu       sync.Mutex
	requests []*http.Request
	canned   []cannedResponse
	next     int

	// DefaultError, when set, fails every post before the canned queue is
	// consulted. Models an unreachable notification endpoint.
	DefaultError error
}

type cannedResponse struct {
	status int
	body   string
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues the status and body returned by the next post.
// Calls chain; an exhausted queue answers 200 with an empty body.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canned = append(m.canned, cannedResponse{status: status, body: body})
	return m
}

// Post records the request and returns the next canned response. The
// recorded request keeps its body unread so assertions can decode it.
func (m *MockHTTPClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.DefaultError != nil {
		return nil, m.DefaultError
	}

	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}
	if m.next < len(m.canned) {
		c := m.canned[m.next]
		m.next++
		resp.StatusCode = c.status
		resp.Body = io.NopCloser(strings.NewReader(c.body))
	}
	return resp, nil
}

// GetRequest returns the nth recorded request, or nil when out of range.
func (m *MockHTTPClient) GetRequest(n int) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.requests) {
		return nil
	}
	return m.requests[n]
}

// RequestCount reports how many posts have been recorded.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
