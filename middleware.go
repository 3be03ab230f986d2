package cell_rate_limiter

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/aryangodara/cell_rate_limiter/cell"
)

var (
	_ http.Handler             = &httpRateLimiterHandler{}
	_ Extractor[*http.Request] = &httpHeaderExtractor{}
	_ Extractor[*http.Request] = &remoteAddrExtractor{}
)

const (
	rateLimitLimit     = "X-RateLimit-Limit"
	rateLimitRemaining = "X-RateLimit-Remaining"
	rateLimitReset     = "RateLimit-Reset"
	rateLimitPolicy    = "RateLimit-Policy"
	retryAfter         = "Retry-After"
)

type httpHeaderExtractor struct {
	headers []string
}

// Extract builds the key from the configured headers: one header gives a
// string key, two a pair and three a triple.
func (h *httpHeaderExtractor) Extract(r *http.Request) (cell.Key, error) {
	values := make([]string, 0, len(h.headers))

	for _, key := range h.headers {
		// a request without one of the headers can't be attributed to a bucket
		if value := strings.TrimSpace(r.Header.Get(key)); value != "" {
			values = append(values, value)
		} else {
			return cell.Key{}, NewExtractError(fmt.Sprintf("header %v must have a value set", key))
		}
	}

	switch len(values) {
	case 0:
		return cell.Key{}, NewExtractError("no headers configured")
	case 1:
		return cell.String(values[0]), nil
	case 2:
		return cell.Pair(values[0], values[1]), nil
	case 3:
		return cell.Triple(values[0], values[1], values[2]), nil
	default:
		return cell.String("(" + strings.Join(values, ", ") + ")"), nil
	}
}

// NewHttpHeaderExtractor creates an Extractor keyed by request headers.
func NewHttpHeaderExtractor(headers ...string) Extractor[*http.Request] {
	return &httpHeaderExtractor{headers: headers}
}

type remoteAddrExtractor struct {
	trustXFF bool
}

// NewRemoteAddrExtractor creates an Extractor keyed by client IP. With
// trustXFF the first X-Forwarded-For hop and then X-Real-IP are preferred
// over the connection address.
func NewRemoteAddrExtractor(trustXFF bool) Extractor[*http.Request] {
	return &remoteAddrExtractor{trustXFF: trustXFF}
}

func (e *remoteAddrExtractor) Extract(r *http.Request) (cell.Key, error) {
	if e.trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return cell.String(ip), nil
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return cell.String(ip), nil
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return cell.String(host), nil
	}
	if addr != "" {
		return cell.String(addr), nil
	}
	return cell.Key{}, NewExtractError("request has no remote address")
}

// NewRouteExtractor scopes the key of inner to the request route, giving the
// triple (key, method, path).
func NewRouteExtractor(inner Extractor[*http.Request]) Extractor[*http.Request] {
	return ExtractorFunc[*http.Request](func(r *http.Request) (cell.Key, error) {
		key, err := inner.Extract(r)
		if err != nil {
			return cell.Key{}, err
		}
		return cell.Triple(key.String(), r.Method, r.URL.Path), nil
	})
}

// RateLimiterConfig holds configuration for the HTTP rate limiter.
type RateLimiterConfig struct {
	Extractor Extractor[*http.Request]
	Policy    cell.Policy
	// Rules selects a rule per request. When set, Extractor and Policy are
	// ignored.
	Rules     RuleProvider[*http.Request]
	Transport cell.Transport
	// AddRateLimitHeaders sets X-RateLimit-* headers on every limited
	// response. Retry-After is always set on rejections.
	AddRateLimitHeaders bool
	Options             []Option
}

func (c *RateLimiterConfig) rules() RuleProvider[*http.Request] {
	if c.Rules != nil {
		return c.Rules
	}
	return NewRateLimitConfig(c.Extractor, c.Policy)
}

type httpRateLimiterHandler struct {
	handler    http.Handler
	limiter    *Limiter[*http.Request]
	addHeaders bool
	logger     *slog.Logger
}

// NewHTTPRateLimiterHandler wraps an existing http.Handler and performs rate limiting before forwarding the
// request to the API
func NewHTTPRateLimiterHandler(originalHandler http.Handler, config *RateLimiterConfig) http.Handler {
	return Middleware(config)(originalHandler)
}

// Middleware returns an HTTP middleware sharing one limiter between all the
// handlers it wraps.
func Middleware(config *RateLimiterConfig) func(next http.Handler) http.Handler {
	o := newOptions(config.Options)
	limiter := NewLimiter(config.rules(), config.Transport, config.Options...)

	return func(next http.Handler) http.Handler {
		return &httpRateLimiterHandler{
			handler:    next,
			limiter:    limiter,
			addHeaders: config.AddRateLimitHeaders,
			logger:     o.logger,
		}
	}
}

// ServeHTTP performs rate limiting and forwards the request if allowed.
func (h *httpRateLimiterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	admission, err := h.limiter.Check(r.Context(), r)
	if err != nil {
		h.reject(w, err)
		return
	}

	if admission.Limited && h.addHeaders {
		d := admission.Details
		setRateLimitHeaders(w.Header(), admission.Policy, d.Total, d.Remaining, d.ResetAfter)
	}

	h.handler.ServeHTTP(w, r)
}

func (h *httpRateLimiterHandler) reject(w http.ResponseWriter, err error) {
	var (
		throttled *ThrottleError
		eerr      *ExtractError
		terr      *cell.TransportError
		perr      *cell.ProtocolError
	)

	switch {
	case errors.As(err, &throttled):
		d := throttled.Details
		if h.addHeaders {
			setRateLimitHeaders(w.Header(), throttled.Policy, d.Total, d.Remaining, d.ResetAfter)
		}
		w.Header().Set(retryAfter, strconv.FormatUint(d.RetryAfter, 10))
		h.writeResponse(w, http.StatusTooManyRequests, "you have sent too many requests to this service, slow down please")
	case errors.As(err, &eerr):
		h.writeResponse(w, http.StatusBadRequest, "failed to extract rate limiting key from request: %v", eerr)
	case errors.As(err, &terr):
		h.writeResponse(w, http.StatusServiceUnavailable, "failed to run rate limiting for request")
	case errors.As(err, &perr):
		h.writeResponse(w, http.StatusBadGateway, "failed to run rate limiting for request")
	default:
		h.writeResponse(w, http.StatusInternalServerError, "failed to run rate limiting for request")
	}
}

func setRateLimitHeaders(header http.Header, policy cell.Policy, total, remaining uint, resetAfter uint64) {
	header.Set(rateLimitLimit, strconv.FormatUint(uint64(total), 10))
	header.Set(rateLimitRemaining, strconv.FormatUint(uint64(remaining), 10))
	header.Set(rateLimitReset, strconv.FormatUint(resetAfter, 10))
	header.Set(rateLimitPolicy, fmt.Sprintf("%d;w=%d", policy.Tokens(), policy.PeriodSeconds()))
}

func (h *httpRateLimiterHandler) writeResponse(w http.ResponseWriter, status int, msg string, args ...any) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(fmt.Sprintf(msg, args...))); err != nil {
		h.logger.Error("failed to write body to HTTP request", "error", err)
	}
}
