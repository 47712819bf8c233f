package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
)

// Endpoint paths on the aggregator, relative to the base URL.
const (
	pathPatients = "/api/v1/patients"
	pathStaff    = "/api/v1/staff"
	pathVisits   = "/api/v1/visits"
)

const maxResponseBytes = 4 << 20

// Tokens is the credential source the client pulls bearer tokens from.
type Tokens interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Client submits payloads to the aggregator. All methods classify failures:
// a returned error with CodeTransient is retryable, everything else is
// terminal for the attempt.
type Client struct {
	baseURL    string
	tokens     Tokens
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a client for the given aggregator base URL.
func NewClient(baseURL string, tokens Tokens, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitPatient posts a patient payload.
func (c *Client) SubmitPatient(ctx context.Context, payload any) (*Result, error) {
	return c.post(ctx, pathPatients, payload)
}

// SubmitStaff posts a staff payload.
func (c *Client) SubmitStaff(ctx context.Context, payload any) (*Result, error) {
	return c.post(ctx, pathStaff, payload)
}

// SubmitVisit posts a visit payload.
func (c *Client) SubmitVisit(ctx context.Context, payload any) (*Result, error) {
	return c.post(ctx, pathVisits, payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "encode payload")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeTransient, "read response body")
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeAuthentication {
			c.tokens.Invalidate()
		}
		c.logger.WarnContext(ctx, "aggregator rejected the request at the transport level",
			"path", path,
			"status", resp.StatusCode,
		)
		return &Result{HTTPStatus: resp.StatusCode}, err
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &Result{HTTPStatus: resp.StatusCode},
			pkgerrors.Wrap(err, pkgerrors.CodeInternal, "decode response envelope")
	}
	return &Result{Envelope: envelope, HTTPStatus: resp.StatusCode}, nil
}

// classifyStatus maps HTTP statuses to error codes. 2xx is success even
// when the envelope reports a business rejection; the orchestrator reads
// the envelope for that.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return pkgerrors.New(pkgerrors.CodeTransient, "aggregator is rate limiting")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgerrors.Newf(pkgerrors.CodeAuthentication, "aggregator returned %d", status)
	case status >= 500:
		return pkgerrors.Newf(pkgerrors.CodeTransient, "aggregator returned %d", status)
	default:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "aggregator returned %d", status)
	}
}

// classifyTransportError marks timeouts and network failures transient.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "request canceled")
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return pkgerrors.Wrap(err, pkgerrors.CodeTransient, "request timed out")
	}
	return pkgerrors.Wrap(err, pkgerrors.CodeTransient, "aggregator unreachable")
}
