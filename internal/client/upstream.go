// Package client provides the outbound HTTP client used to reach proxy targets.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"privproxy/internal/config"
	"privproxy/internal/metrics"
	"privproxy/internal/model"
)

// ErrRedirectNotReplayable is returned when the target redirects with 307
// or 308 after the request body was already streamed and cannot be sent again.
var ErrRedirectNotReplayable = errors.New("cannot replay streamed request body across redirect")

// UpstreamClient sends forwarded requests to arbitrary targets.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection reuse, a
// response-header timeout, and a bounded redirect chain.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// The timeout covers header arrival only; a long streamed body is
		// bounded by the caller's connection instead.
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		// Bodies are relayed byte-for-byte, so never negotiate or decode
		// compression on the caller's behalf.
		DisableCompression: true,
		ForceAttemptHTTP2:  true,
	}

	maxRedirects := cfg.Upstream.MaxRedirects

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the target and returns the final
// response after following redirects.
// The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	// http.Client hands back a 307/308 it could not follow because the body
	// has no GetBody. The caller must never see an intermediate redirect.
	if isUnfollowedRedirect(req, resp) {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("upstream request: %w (status %d)", ErrRedirectNotReplayable, resp.StatusCode)
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       model.NewBody(resp.Body),
	}, nil
}

// DoStream executes a request whose body, if any, is streamed to the target
// as it is read. A negative contentLength means unknown (chunked upload).
// The caller is responsible for closing the returned body.
// The provided context controls the lifetime of the upstream request:
// when the context is canceled (e.g. client disconnects), the upstream
// request is also canceled.
func (c *UpstreamClient) DoStream(ctx context.Context, method, url string, header http.Header, body io.Reader, contentLength int64) (*model.ProxyResponse, error) {
	if body == http.NoBody {
		body = nil
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header
	if body != nil {
		req.ContentLength = contentLength
	}

	resp, err := c.Do(req)
	if err != nil && errors.Is(err, context.Canceled) {
		c.logger.Debug("upstream request canceled", "method", method)
	}
	return resp, err
}

func isUnfollowedRedirect(req *http.Request, resp *http.Response) bool {
	if resp.StatusCode != http.StatusTemporaryRedirect && resp.StatusCode != http.StatusPermanentRedirect {
		return false
	}
	if resp.Header.Get("Location") == "" {
		return false
	}
	return req.GetBody == nil && req.Body != nil && req.Body != http.NoBody
}
