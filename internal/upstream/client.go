// Package upstream is a read-only client for the marketplace REST API.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 8 << 20

// ErrMalformedPayload is returned when a 2xx body cannot be read as the
// expected document.
var ErrMalformedPayload = errors.New("unexpected payload shape")

// Options parameterise the client.
type Options struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	UserAgent    string
	HealthPath   string
	ProductsPath string
	OrdersPath   string
	RidersPath   string
	DigestPath   string
}

// Client fetches the collaborator endpoints the engine reads.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: api error (%d): %s", e.Endpoint, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: api error (%d)", e.Endpoint, e.Code)
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsAuth reports whether err is a 401 or 403 response.
func IsAuth(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// New constructs a client.
func New(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	opts.Timeout = timeout
	if opts.HealthPath == "" {
		opts.HealthPath = "/health"
	}
	if opts.ProductsPath == "" {
		opts.ProductsPath = "/products"
	}
	if opts.OrdersPath == "" {
		opts.OrdersPath = "/admin/orders"
	}
	if opts.RidersPath == "" {
		opts.RidersPath = "/admin/riders"
	}
	if opts.DigestPath == "" {
		opts.DigestPath = "/admin/digest"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "upstream").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Endpoint returns the absolute URL for path.
func (c *Client) Endpoint(path string) string {
	return c.baseURL + path
}

// Paths exposes the configured endpoint paths.
func (c *Client) Paths() Options {
	return c.opts
}

// Health calls the liveness endpoint. Only the status matters.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, c.opts.HealthPath)
	return err
}

// Products lists the catalog.
func (c *Client) Products(ctx context.Context) ([]Product, error) {
	body, err := c.get(ctx, c.opts.ProductsPath)
	if err != nil {
		return nil, err
	}
	return decodeProducts(body), nil
}

// Orders lists administrative orders.
func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	body, err := c.get(ctx, c.opts.OrdersPath)
	if err != nil {
		return nil, err
	}
	return decodeOrders(body), nil
}

// Riders lists drivers.
func (c *Client) Riders(ctx context.Context) ([]Rider, error) {
	body, err := c.get(ctx, c.opts.RidersPath)
	if err != nil {
		return nil, err
	}
	return decodeRiders(body), nil
}

// Digest fetches precomputed KPIs.
func (c *Client) Digest(ctx context.Context) (Digest, error) {
	body, err := c.get(ctx, c.opts.DigestPath)
	if err != nil {
		return Digest{}, err
	}
	d, ok := decodeDigest(body)
	if !ok {
		return Digest{}, fmt.Errorf("%s: %w", c.opts.DigestPath, ErrMalformedPayload)
	}
	return d, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint(path), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "opswatch/1.0")
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseHTTPError(path, resp.StatusCode, payload)
	}
	return payload, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func parseHTTPError(path string, status int, payload []byte) error {
	se := &StatusError{Endpoint: path, Code: status}
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		switch {
		case apiErr.Message != "":
			se.Message = apiErr.Message
		case apiErr.Detail != "":
			se.Message = apiErr.Detail
		case apiErr.Error != "":
			se.Message = apiErr.Error
		}
	}
	return se
}
