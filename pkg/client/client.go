// Package client is a Go client for a qpac server: whitelist administration
// and PAC file retrieval.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned for 404 responses: unknown host or hash, or no
	// PAC file generated yet.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when adding a host that is already listed.
	ErrAlreadyExists = errors.New("host already exists")

	// ErrUnauthorized is returned when the server rejects the bearer token.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is returned for any other non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qpac: server returned %d: %s", e.StatusCode, e.Message)
}

// PAC is a PAC file fetched from the server.
type PAC struct {
	Hash string
	Body string
}

// Client talks to one qpac server.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches token to mutating requests.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if base == "" {
		return nil, errors.New("server URL is required")
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// List returns the whitelist in server order.
func (c *Client) List(ctx context.Context) ([]string, error) {
	body, _, err := c.do(ctx, http.MethodGet, "/list", nil)
	if err != nil {
		return nil, err
	}
	var hosts []string
	if err := json.Unmarshal(body, &hosts); err != nil {
		return nil, fmt.Errorf("decode host list: %w", err)
	}
	return hosts, nil
}

// Add whitelists host.
func (c *Client) Add(ctx context.Context, host string) error {
	_, _, err := c.do(ctx, http.MethodPost, "/add", map[string]string{"host": host})
	return err
}

// Remove removes host from the whitelist.
func (c *Client) Remove(ctx context.Context, host string) error {
	_, _, err := c.do(ctx, http.MethodPost, "/remove", map[string]string{"host": host})
	return err
}

// Latest fetches the current PAC file.
func (c *Client) Latest(ctx context.Context) (*PAC, error) {
	body, hdr, err := c.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return nil, err
	}
	return &PAC{Hash: strings.TrimPrefix(hdr.Get("Content-Location"), "/"), Body: string(body)}, nil
}

// Get fetches the PAC file with the given hash.
func (c *Client) Get(ctx context.Context, hash string) (*PAC, error) {
	body, _, err := c.do(ctx, http.MethodGet, "/"+hash, nil)
	if err != nil {
		return nil, err
	}
	return &PAC{Hash: hash, Body: string(body)}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" && method != http.MethodGet {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 300 {
		return body, resp.Header, nil
	}

	var e struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &e)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case http.StatusUnauthorized:
		return nil, nil, fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case http.StatusBadRequest:
		if strings.Contains(e.Error, "already exists") {
			return nil, nil, fmt.Errorf("%s %s: %w", method, path, ErrAlreadyExists)
		}
	}
	msg := e.Error
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
}
