// Package api is the REST client for the school portal backend.
//
// Entities live at <base>/<entity> and <base>/<entity>/<id>. Every request
// carries a bearer token and goes through a shared rate limiter.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/models"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4096

// TokenSource returns the bearer token for the next request. An empty
// token sends no Authorization header.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// Client talks to the backend.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	limiter *rate.Limiter
	logger  *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit allows rps requests per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for baseURL.
func New(baseURL string, token TokenSource, opts ...Option) *Client {
	if token == nil {
		token = StaticToken("")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		token:   token,
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		logger:  logging.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logging.Fields{"component": "api"})
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// List fetches every record of entity.
func (c *Client) List(ctx context.Context, entity string) ([]models.Record, error) {
	body, err := c.do(ctx, http.MethodGet, c.entityURL(entity, ""), nil)
	if err != nil {
		return nil, err
	}
	return decodeList(body)
}

// Get fetches one record. The server may answer with a list; it is
// returned as-is so the caller can cache every element.
func (c *Client) Get(ctx context.Context, entity, id string) ([]models.Record, error) {
	body, err := c.do(ctx, http.MethodGet, c.entityURL(entity, id), nil)
	if err != nil {
		return nil, err
	}
	return decodeList(body)
}

// Create posts a new record and returns the server's version of it.
func (c *Client) Create(ctx context.Context, entity string, rec models.Record) (models.Record, error) {
	body, err := c.do(ctx, http.MethodPost, c.entityURL(entity, ""), rec)
	if err != nil {
		return nil, err
	}
	return decodeOne(body)
}

// Update replaces a record and returns the server's version of it.
func (c *Client) Update(ctx context.Context, entity, id string, rec models.Record) (models.Record, error) {
	body, err := c.do(ctx, http.MethodPut, c.entityURL(entity, id), rec)
	if err != nil {
		return nil, err
	}
	return decodeOne(body)
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, entity, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.entityURL(entity, id), nil)
	return err
}

func (c *Client) entityURL(entity, id string) string {
	u := c.baseURL + "/" + url.PathEscape(entity)
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, u string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, "rate limiter wait aborted", err)
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	token, err := c.token(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrAuth, "failed to obtain token", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("%s %s failed", method, u), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, "failed to read response body", err)
	}

	c.logger.Debug("Request completed", logging.Fields{
		"method":      method,
		"url":         u,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		httpErr := &HTTPError{Method: method, URL: u, Status: resp.StatusCode, Body: string(body)}
		code := apperrors.ErrHTTP
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			code = apperrors.ErrAuth
		}
		return nil, apperrors.Wrap(code, fmt.Sprintf("server returned %d", resp.StatusCode), httpErr)
	}
	return body, nil
}
