// Package transport submits compiled workflows to the execution platform
// and hands back the raw response body stream for pkg/eventstream to
// decode. Connection establishment is retried with backoff; once bytes are
// flowing, failures are the caller's concern.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudshipai/workflowcore/internal/logging"
	"github.com/cloudshipai/workflowcore/pkg/workflow"
)

var tracer = otel.Tracer("workflowcore.transport")

// Config holds the options from SPEC_FULL.md's configuration surface that
// govern how the client reaches the platform.
type Config struct {
	Endpoint          string
	Credential        string
	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration
	MaxConnectRetries int
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = "https://workflows.cloudship.ai/api/v1/workflow"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxConnectRetries < 0 {
		c.MaxConnectRetries = 3
	}
	return c
}

// Client submits compiled workflows to the platform.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New constructs a Client. httpClient may be nil, in which case a default
// one is built with ConnectTimeout wired into its dial/TLS-handshake phase;
// when a caller substitutes its own client, ConnectTimeout has no effect and only RequestTimeout (applied per
// request regardless of transport) bounds the call.
func New(cfg Config, httpClient *http.Client) *Client {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 0,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
				TLSHandshakeTimeout: cfg.ConnectTimeout,
			},
		}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// SubmitRequest is the JSON body posted to the platform.
type SubmitRequest struct {
	Workflow workflow.CanonicalWorkflow `json:"workflow"`
	Params   map[string]string          `json:"params,omitempty"`
}

// Submit posts a compiled workflow and returns the open response body once
// the platform answers 200 OK with an event stream. The caller owns the
// returned ReadCloser and must close it to release the connection.
func (c *Client) Submit(ctx context.Context, form workflow.CanonicalWorkflow, params map[string]string) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "transport.submit",
		trace.WithAttributes(attribute.String("workflow.name", form.Name)))
	defer span.End()

	body, err := json.Marshal(SubmitRequest{Workflow: form, Params: params})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("transport: marshal request: %w", err)
	}

	endpoint, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("operation", "execute_workflow")
	q.Set("native_sse", "true")
	endpoint.RawQuery = q.Encode()

	var resp *http.Response
	attempt := 0
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxConnectRetries))

	operation := func() error {
		attempt++
		// RequestTimeout bounds the whole submit-to-first-byte call; once
		// the platform has answered, the stream is bounded only by ctx. The
		// dial/TLS-handshake phase within it is separately bounded by
		// ConnectTimeout via the client's Transport (see New).
		reqCtx, cancel := context.WithCancel(ctx)
		firstByte := time.AfterFunc(c.cfg.RequestTimeout, cancel)

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
		if err != nil {
			firstByte.Stop()
			cancel()
			return backoff.Permanent(fmt.Errorf("transport: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Authorization", "Bearer "+c.cfg.Credential)

		r, err := c.httpClient.Do(req)
		firstByte.Stop()
		if err != nil {
			cancel()
			logging.Debug("transport: connect attempt %d failed: %v", attempt, err)
			return err
		}

		if r.StatusCode == http.StatusOK {
			resp = r
			return nil
		}

		classified := classifyStatus(r)
		r.Body.Close()
		cancel()
		if !isRetryable(classified) {
			return backoff.Permanent(classified)
		}
		logging.Debug("transport: connect attempt %d got retryable status: %v", attempt, classified)
		return classified
	}

	if err := backoff.Retry(operation, policy); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return resp.Body, nil
}

func classifyStatus(r *http.Response) error {
	detail := readBoundedBody(r.Body, 4096)
	switch {
	case r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden:
		return &AuthError{StatusCode: r.StatusCode, Detail: detail}
	case r.StatusCode == http.StatusNotFound:
		return &NotFoundError{Detail: detail}
	case r.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0
		fmt.Sscanf(r.Header.Get("Retry-After"), "%d", &retryAfter)
		return &RateLimitedError{RetryAfterSeconds: retryAfter, Detail: detail}
	case r.StatusCode >= 500:
		return &TransientError{StatusCode: r.StatusCode, Detail: detail}
	default:
		return &PlatformError{StatusCode: r.StatusCode, Detail: detail}
	}
}

func readBoundedBody(r io.Reader, max int64) string {
	limited := io.LimitReader(r, max)
	b, _ := io.ReadAll(limited)
	return string(b)
}
