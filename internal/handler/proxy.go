package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"privproxy/internal/metrics"
	"privproxy/internal/model"
	"privproxy/internal/relay"
	"privproxy/internal/service"
)

// userinfoPattern matches credentials embedded in URLs quoted by error messages.
var userinfoPattern = regexp.MustCompile(`(?i)(https?://)[^/@\s"]+@`)

// errorResponse is the JSON body of every response the proxy generates itself.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// ProxyHandler forwards requests to the target named in the url query
// parameter and streams the response back.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Handle proxies one request. OPTIONS preflights are answered directly with
// 204; everything else goes through the service and, on success, the target's
// status, filtered headers and body are relayed unchanged.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	if strings.EqualFold(req.Method, http.MethodOptions) {
		return c.NoContent(http.StatusNoContent)
	}

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Target:        c.QueryParam("url"),
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	out := c.Response().Header()

	// Content-Type is applied on its own and skipped in the bulk copy below.
	// Without one, sniffing is suppressed so no type is invented.
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "" {
		out.Set(echo.HeaderContentType, ct)
	} else {
		out[echo.HeaderContentType] = nil
	}
	for key, vals := range resp.Header {
		if key == echo.HeaderContentType {
			continue
		}
		for _, v := range vals {
			out.Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Once the status is sent a failed copy can only truncate the response.
	// The error is logged and counted, nothing is retried.
	n, err := relay.Copy(c.Response(), resp.Body)
	if h.metrics != nil {
		h.metrics.RelayedBytes.Add(float64(n))
	}
	if err != nil {
		h.countError(metrics.ErrorKindStream)
		h.logger.Warn("streaming response body",
			"err", sanitizeError(err),
			"path", req.URL.Path,
			"bytes", n,
		)
	}

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		h.countError(metrics.ErrorKindUnauthorized)
		h.logger.Warn("rejected request", "reason", "unauthorized", "path", path)
		return writeError(c, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})

	case errors.Is(err, service.ErrMissingURL):
		h.countError(metrics.ErrorKindMissingURL)
		h.logger.Debug("rejected request", "reason", "missing url", "path", path)
		return writeError(c, http.StatusBadRequest, errorResponse{Error: "URL parameter required."})
	}

	h.countError(metrics.ErrorKindUpstream)
	detail := upstreamDetail(err)
	if errors.Is(err, context.Canceled) {
		h.logger.Info("client disconnected before upstream responded", "path", path)
	} else {
		h.logger.Error("proxy error", "err", detail, "path", path)
	}

	return writeError(c, http.StatusBadGateway, errorResponse{Error: "Proxy error", Detail: detail})
}

// writeError sends body as compact JSON with no trailing newline.
func writeError(c echo.Context, code int, body errorResponse) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal error response: %w", err)
	}
	return c.Blob(code, echo.MIMEApplicationJSON, b)
}

func (h *ProxyHandler) countError(kind string) {
	if h.metrics != nil {
		h.metrics.ProxyErrors.WithLabelValues(kind).Inc()
	}
}

// upstreamDetail describes a forwarding failure for the caller. The
// transport's *url.Error is preferred because it names the operation and
// target without the proxy's own wrapping.
func upstreamDetail(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr
	}
	if msg := sanitizeError(err); msg != "" {
		return msg
	}
	return "upstream request failed"
}

// sanitizeError redacts URL credentials from error messages.
func sanitizeError(err error) string {
	return userinfoPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]@")
}
