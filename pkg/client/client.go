package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEndpoint = "http://localhost:5000"
	defaultTimeout  = 10 * time.Second
	maxBodyBytes    = 1 << 20
)

// Client talks to the product catalog demo backend.
type Client struct {
	endpoint string
	paths    Paths
	http     *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithPaths overrides the target routes.
func WithPaths(p Paths) Option {
	return func(c *Client) { c.paths = p.withDefaults() }
}

// NewClient creates a new target client.
// endpoint defaults to "http://localhost:5000" if empty.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		paths:    DefaultPaths(),
		http: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the base URL the client targets.
func (c *Client) Endpoint() string { return c.endpoint }

// Create adds a product.
func (c *Client) Create(ctx context.Context, p NewProduct) (Created, error) {
	const op = "create"
	status, body, err := c.do(ctx, op, http.MethodPost, c.paths.Products, nil, p)
	if err != nil {
		return Created{}, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return Created{}, &StatusError{Op: op, StatusCode: status, Body: string(body)}
	}

	// The id is decoded leniently: a missing or malformed id is the
	// caller's warning, not a decode failure.
	var raw struct {
		ID      json.RawMessage `json:"id"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Created{}, &DecodeError{Op: op, StatusCode: status, Body: string(body), Err: err}
	}
	return Created{ID: parseID(raw.ID), Message: raw.Message, StatusCode: status}, nil
}

// List returns every product.
func (c *Client) List(ctx context.Context) (Listing, error) {
	return c.products(ctx, "list", c.paths.Products, nil)
}

// Search returns products matching term.
func (c *Client) Search(ctx context.Context, term string) (Listing, error) {
	return c.products(ctx, "search", c.paths.Products, url.Values{"search": {term}})
}

// Delete removes a product. A missing product yields a *StatusError with
// StatusCode 404.
func (c *Client) Delete(ctx context.Context, id int64) (Deletion, error) {
	const op = "delete"
	path := strings.TrimRight(c.paths.Products, "/") + "/" + strconv.FormatInt(id, 10)
	status, body, err := c.do(ctx, op, http.MethodDelete, path, nil, nil)
	if err != nil {
		return Deletion{}, err
	}
	if status < 200 || status > 299 {
		return Deletion{}, &StatusError{Op: op, StatusCode: status, Body: string(body)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return Deletion{Confirmed: true, StatusCode: status}, nil
	}

	var resp struct {
		Message string `json:"message"`
		Deleted *bool  `json:"deleted"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Deletion{}, &DecodeError{Op: op, StatusCode: status, Body: string(body), Err: err}
	}
	confirmed := true
	if resp.Deleted != nil {
		confirmed = *resp.Deleted
	}
	return Deletion{Confirmed: confirmed, Message: resp.Message, StatusCode: status}, nil
}

// TriggerError calls the error injection route. The target is expected to
// fail, so a *StatusError is the normal result. A nil error means the
// route unexpectedly succeeded.
func (c *Client) TriggerError(ctx context.Context) error {
	return c.expectFailure(ctx, "trigger_error", c.paths.Error, nil)
}

// TriggerSlow calls the slow query route, which answers with products.
func (c *Client) TriggerSlow(ctx context.Context) (Listing, error) {
	return c.products(ctx, "trigger_slow", c.paths.Slow, nil)
}

// TriggerDBError asks the target to provoke the database error kind.
func (c *Client) TriggerDBError(ctx context.Context, kind string) error {
	return c.expectFailure(ctx, "trigger_db_error", c.paths.DBError, url.Values{"type": {kind}})
}

// Ping checks the target's status route.
func (c *Client) Ping(ctx context.Context) error {
	const op = "ping"
	status, body, err := c.do(ctx, op, http.MethodGet, c.paths.Status, nil, nil)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &StatusError{Op: op, StatusCode: status, Body: string(body)}
	}
	return nil
}

func (c *Client) products(ctx context.Context, op, path string, query url.Values) (Listing, error) {
	status, body, err := c.do(ctx, op, http.MethodGet, path, query, nil)
	if err != nil {
		return Listing{}, err
	}
	if status < 200 || status > 299 {
		return Listing{}, &StatusError{Op: op, StatusCode: status, Body: string(body)}
	}

	var products []Product
	if err := json.Unmarshal(body, &products); err != nil {
		return Listing{}, &DecodeError{Op: op, StatusCode: status, Body: string(body), Err: err}
	}
	if products == nil {
		// "null" is not a collection.
		return Listing{}, &DecodeError{Op: op, StatusCode: status, Body: string(body), Err: fmt.Errorf("expected a JSON array")}
	}
	return Listing{Products: products, StatusCode: status}, nil
}

func (c *Client) expectFailure(ctx context.Context, op, path string, query url.Values) error {
	status, body, err := c.do(ctx, op, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		return &StatusError{Op: op, StatusCode: status, Body: string(body)}
	}
	return nil
}

// do performs one request and reads the (bounded) body. Only transport
// level problems are returned as errors; status handling is the caller's.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) (int, []byte, error) {
	target := c.endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: failed to marshal payload: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Op: op, URL: target, Err: fmt.Errorf("reading body: %w", err)}
	}
	return resp.StatusCode, body, nil
}

func parseID(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
	}
	return 0
}
