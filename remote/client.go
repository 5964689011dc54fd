// Package remote is the HTTP client for the taskboard server's row API. A
// Client satisfies gateway.Gateway, so a store can run against a server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CrowderSoup/taskboard/gateway"
)

const defaultTimeout = 15 * time.Second

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Client talks to /api/rows on one server as one user.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   *slog.Logger
}

var (
	_ gateway.Gateway      = (*Client)(nil)
	_ gateway.BatchUpdater = (*Client)(nil)
)

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a client for the server at baseURL using the bearer token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", base.Scheme)
	}
	c := &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: defaultTimeout},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(table gateway.Table, id string) string {
	u := *c.base
	u.Path += "/api/rows/" + url.PathEscape(string(table))
	if id != "" {
		u.Path += "/" + url.PathEscape(id)
	}
	return u.String()
}

// EncodeQuery renders q as the server's URL parameters.
func EncodeQuery(q gateway.Query) url.Values {
	v := url.Values{}
	for col, val := range q.Filter {
		if val == nil {
			v.Set(col, "null")
		} else {
			v.Set(col, fmt.Sprint(val))
		}
	}
	for _, o := range q.OrderBy {
		if o.Desc {
			v.Add("order", "-"+o.Column)
		} else {
			v.Add("order", o.Column)
		}
	}
	return v
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		c.log.Debug("request failed", "method", method, "url", target, "status", resp.StatusCode)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", gateway.ErrNotFound, serr)
		}
		return serr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) Select(ctx context.Context, table gateway.Table, q gateway.Query) ([]gateway.Row, error) {
	target := c.endpoint(table, "")
	if params := EncodeQuery(q); len(params) > 0 {
		target += "?" + params.Encode()
	}
	var rows []gateway.Row
	if err := c.do(ctx, http.MethodGet, target, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) Insert(ctx context.Context, table gateway.Table, row gateway.Row) (gateway.Row, error) {
	var created gateway.Row
	if err := c.do(ctx, http.MethodPost, c.endpoint(table, ""), row, &created); err != nil {
		return nil, err
	}
	if created.ID() == "" {
		return nil, errors.New("server returned a row without an id")
	}
	return created, nil
}

func (c *Client) Update(ctx context.Context, table gateway.Table, id string, patch gateway.Row) error {
	return c.do(ctx, http.MethodPatch, c.endpoint(table, id), patch, nil)
}

// UpdateBatch sends every patch in one request; the server applies them in
// a single transaction.
func (c *Client) UpdateBatch(ctx context.Context, table gateway.Table, patches map[string]gateway.Row) error {
	return c.do(ctx, http.MethodPatch, c.endpoint(table, ""), patches, nil)
}

func (c *Client) Delete(ctx context.Context, table gateway.Table, id string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint(table, id), nil, nil)
}
