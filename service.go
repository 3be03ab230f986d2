package cell_rate_limiter

import (
	"context"

	"github.com/aryangodara/cell_rate_limiter/cell"
)

var (
	_ Handler[string, string] = &RateLimit[string, string]{}
	_ Handler[string, string] = HandlerFunc[string, string](nil)
)

// Handler is a request/response service the rate limiter can wrap.
type Handler[Req, Resp any] interface {
	Call(ctx context.Context, req Req) (Resp, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f HandlerFunc[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// RateLimit wraps a Handler and only calls it for admitted requests.
//
// Errors of the wrapped handler are returned unchanged, so ErrorKind reports
// "" for them and callers can tell them apart from rejections.
type RateLimit[Req, Resp any] struct {
	inner   Handler[Req, Resp]
	limiter *Limiter[Req]
}

// NewRateLimit wraps inner with a rate limiter checking rules over transport.
// A RateLimitConfig is the usual rules value.
func NewRateLimit[Req, Resp any](inner Handler[Req, Resp], rules RuleProvider[Req], transport cell.Transport, opts ...Option) *RateLimit[Req, Resp] {
	return &RateLimit[Req, Resp]{
		inner:   inner,
		limiter: NewLimiter(rules, transport, opts...),
	}
}

// Layer returns a decorator wrapping handlers with one shared limiter.
func Layer[Req, Resp any](rules RuleProvider[Req], transport cell.Transport, opts ...Option) func(Handler[Req, Resp]) Handler[Req, Resp] {
	limiter := NewLimiter(rules, transport, opts...)
	return func(inner Handler[Req, Resp]) Handler[Req, Resp] {
		return &RateLimit[Req, Resp]{inner: inner, limiter: limiter}
	}
}

// Call checks req and forwards it, unmodified, when admitted.
func (s *RateLimit[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	if _, err := s.limiter.Check(ctx, req); err != nil {
		var zero Resp
		return zero, err
	}
	return s.inner.Call(ctx, req)
}
