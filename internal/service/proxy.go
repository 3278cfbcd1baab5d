// Package service implements the core proxy forwarding logic.
package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"privproxy/internal/client"
	"privproxy/internal/config"
	"privproxy/internal/model"
)

// AuthHeader carries the shared secret when the auth gate is enabled.
const AuthHeader = "X-Proxy-Auth"

var (
	// ErrMissingURL is returned when the request has no url query parameter.
	ErrMissingURL = errors.New("url query parameter required")
	// ErrUnauthorized is returned when the shared secret is missing or wrong.
	ErrUnauthorized = errors.New("shared secret missing or invalid")
)

// schemePattern matches targets that already carry an http(s) scheme.
var schemePattern = regexp.MustCompile(`(?i)^https?://`)

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client *client.UpstreamClient
	cfg    *config.Config
	logger *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client: c,
		cfg:    cfg,
		logger: logger.With("component", "proxy_service"),
	}
}

// Forward sends a ProxyRequest to its target and returns the final response.
// The caller is responsible for closing the response body.
//
// The shared secret, when configured, is checked before the target is
// resolved; ErrUnauthorized and ErrMissingURL are returned without any
// network I/O. Any other error is an upstream failure.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if err := s.authorize(pr.Header); err != nil {
		return nil, err
	}

	target, err := ResolveTarget(pr.Target)
	if err != nil {
		return nil, err
	}

	header := s.filterRequestHeaders(pr.Header)

	body := pr.Body
	contentLength := pr.ContentLength
	if !hasBody(pr.Method) {
		body = nil
		contentLength = 0
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"target_host", targetHost(target),
	)

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, target, header, body, contentLength)
	if err != nil {
		return nil, fmt.Errorf("forward to target: %w", err)
	}

	resp.Header = s.filterResponseHeaders(resp.Header)
	return resp, nil
}

// authorize checks the shared secret. It always succeeds when no secret is configured.
func (s *ProxyService) authorize(header http.Header) error {
	if !s.cfg.Auth.Enabled() {
		return nil
	}
	got := header.Get(AuthHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Auth.SharedSecret)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// ResolveTarget returns the URL to forward to, prefixing https:// when the
// raw value has no http or https scheme. No other validation is done; a
// malformed target fails later at the network layer.
func ResolveTarget(raw string) (string, error) {
	if raw == "" {
		return "", ErrMissingURL
	}
	if !schemePattern.MatchString(raw) {
		return "https://" + raw, nil
	}
	return raw, nil
}

// hasBody reports whether requests with this method forward a body.
func hasBody(method string) bool {
	m := strings.ToUpper(method)
	return m != http.MethodGet && m != http.MethodHead
}

// targetHost returns the host part of target for logging, without userinfo.
func targetHost(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Host
}
