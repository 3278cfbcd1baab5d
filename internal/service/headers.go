package service

import (
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"

	"privproxy/internal/model"
)

// hopByHopHeaders are meaningful only for a single connection and are never
// relayed in either direction. Keys are lower-case.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"host":                true,
}

// strippedRequestHeaders carry caller identity or credentials. user-agent
// and accept-language are replaced by the configured identity afterwards.
var strippedRequestHeaders = map[string]bool{
	"cookie":          true,
	"authorization":   true,
	"user-agent":      true,
	"accept-language": true,
	"x-proxy-auth":    true,
}

// strippedRequestPrefixes mark origin and forwarding metadata added by CDNs
// and intermediate proxies. They are dropped in both directions.
var strippedRequestPrefixes = []string{"cf-", "x-forwarded-"}

// isStrippedRequestHeader reports whether a lower-cased request header name
// must not reach the target.
func isStrippedRequestHeader(name string) bool {
	if hopByHopHeaders[name] || strippedRequestHeaders[name] {
		return true
	}
	return hasStrippedPrefix(name)
}

// proxyOwnedResponseHeaders are set by the proxy itself on every response.
var proxyOwnedResponseHeaders = func() map[string]bool {
	m := make(map[string]bool, len(model.CORSHeaders))
	for k := range model.CORSHeaders {
		m[strings.ToLower(k)] = true
	}
	return m
}()

// strippedResponseHeaders carry cookies or credentials and never reach the
// caller. Keys are lower-case.
var strippedResponseHeaders = map[string]bool{
	"set-cookie":    true,
	"cookie":        true,
	"authorization": true,
}

// isStrippedResponseHeader reports whether a lower-cased response header
// name must not reach the caller.
func isStrippedResponseHeader(name string) bool {
	if strippedResponseHeaders[name] || hopByHopHeaders[name] || proxyOwnedResponseHeaders[name] {
		return true
	}
	return hasStrippedPrefix(name)
}

func hasStrippedPrefix(name string) bool {
	for _, p := range strippedRequestPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// connectionTokens returns the lower-cased header names listed in the
// Connection header. Those headers are hop-by-hop as well (RFC 7230 §6.1).
func connectionTokens(h http.Header) map[string]bool {
	var tokens map[string]bool
	for key, vals := range h {
		if !strings.EqualFold(key, "Connection") {
			continue
		}
		for _, v := range vals {
			for _, tok := range strings.Split(v, ",") {
				tok = strings.TrimSpace(tok)
				if tok == "" || !httpguts.ValidHeaderFieldName(tok) {
					continue
				}
				if tokens == nil {
					tokens = make(map[string]bool)
				}
				tokens[strings.ToLower(tok)] = true
			}
		}
	}
	return tokens
}

// filterHeaders copies src into a new header, dropping every name for which
// drop returns true. Names are compared lower-cased so casing tricks such as
// "X-FORWARDED-FOR" cannot bypass the filter.
func filterHeaders(src http.Header, drop func(string) bool) http.Header {
	tokens := connectionTokens(src)
	dst := make(http.Header, len(src))
	for key, vals := range src {
		lk := strings.ToLower(key)
		if drop(lk) || tokens[lk] {
			continue
		}
		ck := http.CanonicalHeaderKey(key)
		dst[ck] = append(dst[ck], vals...)
	}
	return dst
}

func (s *ProxyService) filterRequestHeaders(src http.Header) http.Header {
	dst := filterHeaders(src, isStrippedRequestHeader)
	dst.Set("User-Agent", s.cfg.Identity.UserAgent)
	dst.Set("Accept-Language", s.cfg.Identity.AcceptLanguage)
	return dst
}

func (s *ProxyService) filterResponseHeaders(src http.Header) http.Header {
	return filterHeaders(src, isStrippedResponseHeader)
}
