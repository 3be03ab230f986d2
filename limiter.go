// Package cell_rate_limiter admits or rejects requests with the CL.THROTTLE
// command of a redis-cell server. Limiter is the shared gate; RateLimit,
// Middleware and UnaryServerInterceptor put it in front of generic handlers,
// net/http handlers and gRPC servers.
package cell_rate_limiter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/aryangodara/cell_rate_limiter/cell"
)

const instrumentationName = "github.com/aryangodara/cell_rate_limiter"

var (
	_ RuleProvider[string] = RateLimitConfig[string]{}
	_ RuleProvider[string] = RuleProviderFunc[string](nil)
	_ Extractor[string]    = ExtractorFunc[string](nil)
)

// Extractor derives the rate limit key from a request.
type Extractor[Req any] interface {
	Extract(req Req) (cell.Key, error)
}

// ExtractorFunc adapts a function to an Extractor.
type ExtractorFunc[Req any] func(req Req) (cell.Key, error)

func (f ExtractorFunc[Req]) Extract(req Req) (cell.Key, error) {
	return f(req)
}

// Rule is the key and policy a request is checked against.
type Rule struct {
	Key    cell.Key
	Policy cell.Policy
}

// RuleProvider selects the rule for a request. A nil rule means the request
// is not rate limited.
type RuleProvider[Req any] interface {
	Provide(req Req) (*Rule, error)
}

// RuleProviderFunc adapts a function to a RuleProvider.
type RuleProviderFunc[Req any] func(req Req) (*Rule, error)

func (f RuleProviderFunc[Req]) Provide(req Req) (*Rule, error) {
	return f(req)
}

// RateLimitConfig applies one policy to every request, keyed by Extractor.
type RateLimitConfig[Req any] struct {
	Extractor Extractor[Req]
	Policy    cell.Policy
}

// NewRateLimitConfig creates a config checking every request against policy.
func NewRateLimitConfig[Req any](extractor Extractor[Req], policy cell.Policy) RateLimitConfig[Req] {
	return RateLimitConfig[Req]{Extractor: extractor, Policy: policy}
}

// Provide implements RuleProvider. It never returns a nil rule.
func (c RateLimitConfig[Req]) Provide(req Req) (*Rule, error) {
	if c.Extractor == nil {
		return nil, NewExtractError("no key extractor configured")
	}
	key, err := c.Extractor.Extract(req)
	if err != nil {
		return nil, err
	}
	return &Rule{Key: key, Policy: c.Policy}, nil
}

// Admission describes a request that was let through.
type Admission struct {
	// Limited is false when no rule applied and the server was not asked.
	Limited bool
	Policy  cell.Policy
	Details cell.Allowed
}

// Option configures a Limiter.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	metrics        *Metrics
	tracerProvider trace.TracerProvider
}

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records every check in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracerProvider sets the provider of the round trip spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

func newOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return o
}

// Limiter is the admission gate shared by all adapters. It is safe for
// concurrent use as long as the transport is.
type Limiter[Req any] struct {
	rules     RuleProvider[Req]
	transport cell.Transport
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer

	// transport failures tend to arrive in storms, log one per interval
	transportLogs rate.Sometimes
}

// NewLimiter creates a gate checking requests selected by rules over
// transport.
func NewLimiter[Req any](rules RuleProvider[Req], transport cell.Transport, opts ...Option) *Limiter[Req] {
	o := newOptions(opts)
	return &Limiter[Req]{
		rules:         rules,
		transport:     transport,
		logger:        o.logger,
		metrics:       o.metrics,
		tracer:        o.tracerProvider.Tracer(instrumentationName),
		transportLogs: rate.Sometimes{Interval: time.Second},
	}
}

// Check decides whether req may proceed. It returns nil only when the request
// is admitted; otherwise the error is an *ExtractError, *ThrottleError,
// *cell.TransportError or *cell.ProtocolError. Nothing is retried and a
// failed round trip never admits the request.
//
// If ctx is cancelled while waiting for the reply, the tokens the server may
// already have taken are not refunded.
func (l *Limiter[Req]) Check(ctx context.Context, req Req) (Admission, error) {
	rule, err := l.rules.Provide(req)
	if err != nil {
		err = asExtractError(err)
		l.metrics.observe("", kindExtract)
		l.logger.DebugContext(ctx, "rate limit key extraction failed", "error", err)
		return Admission{}, err
	}
	if rule == nil {
		return Admission{}, nil
	}

	label := policyLabel(rule.Policy)
	ctx, span := l.tracer.Start(ctx, cell.CommandName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ratelimit.policy", label),
			attribute.String("ratelimit.key.kind", rule.Key.Kind().String()),
		),
	)
	defer span.End()

	start := time.Now()
	verdict, err := cell.Throttle(ctx, l.transport, rule.Key, rule.Policy)
	l.metrics.observeRoundTrip(label, time.Since(start))

	if err != nil {
		kind := ErrorKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		span.SetAttributes(attribute.String("ratelimit.outcome", kind))
		l.metrics.observe(label, kind)
		l.logFailure(ctx, rule, err)
		return Admission{}, err
	}

	switch v := verdict.(type) {
	case cell.Blocked:
		span.SetAttributes(attribute.String("ratelimit.outcome", outcomeBlocked))
		l.metrics.observe(label, outcomeBlocked)
		l.logger.InfoContext(ctx, "request throttled",
			"policy", label,
			"key", rule.Key.String(),
			"retry_after", v.RetryAfter,
			"reset_after", v.ResetAfter,
		)
		return Admission{}, &ThrottleError{Policy: rule.Policy, Details: v}
	case cell.Allowed:
		span.SetAttributes(attribute.String("ratelimit.outcome", outcomeAllowed))
		l.metrics.observe(label, outcomeAllowed)
		l.logger.DebugContext(ctx, "request admitted",
			"policy", label,
			"key", rule.Key.String(),
			"remaining", v.Remaining,
		)
		return Admission{Limited: true, Policy: rule.Policy, Details: v}, nil
	default:
		return Admission{}, &cell.ProtocolError{Field: "reply", Expected: "verdict", Got: verdict}
	}
}

func (l *Limiter[Req]) logFailure(ctx context.Context, rule *Rule, err error) {
	var terr *cell.TransportError
	if errors.As(err, &terr) {
		l.transportLogs.Do(func() {
			l.logger.ErrorContext(ctx, "rate limit check failed, rejecting request",
				"policy", policyLabel(rule.Policy),
				"error", err,
			)
		})
		return
	}
	l.logger.WarnContext(ctx, "invalid rate limit reply, rejecting request",
		"policy", policyLabel(rule.Policy),
		"key", rule.Key.String(),
		"error", err,
	)
}

func policyLabel(p cell.Policy) string {
	if p.Name() == "" {
		return "default"
	}
	return p.Name()
}
