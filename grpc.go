package cell_rate_limiter

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/aryangodara/cell_rate_limiter/cell"
)

// RetryAfterMetadataKey is the header metadata key carrying the seconds to
// wait on a ResourceExhausted rejection.
const RetryAfterMetadataKey = "retry-after"

// GRPCRequest is what the unary interceptor hands to extractors and rule
// providers.
type GRPCRequest struct {
	Context    context.Context
	FullMethod string
	Message    any
}

// UnaryServerInterceptor rate limits unary calls before they reach the
// handler.
func UnaryServerInterceptor(rules RuleProvider[*GRPCRequest], transport cell.Transport, opts ...Option) grpc.UnaryServerInterceptor {
	limiter := NewLimiter(rules, transport, opts...)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		r := &GRPCRequest{Context: ctx, FullMethod: info.FullMethod, Message: req}
		if _, err := limiter.Check(ctx, r); err != nil {
			return nil, grpcStatus(ctx, err)
		}
		return handler(ctx, req)
	}
}

func grpcStatus(ctx context.Context, err error) error {
	var (
		throttled *ThrottleError
		eerr      *ExtractError
		terr      *cell.TransportError
		perr      *cell.ProtocolError
	)

	switch {
	case errors.As(err, &throttled):
		// fails outside of a server stream, e.g. when the interceptor is
		// called directly
		_ = grpc.SetHeader(ctx, metadata.Pairs(RetryAfterMetadataKey, strconv.FormatUint(throttled.Details.RetryAfter, 10)))
		return status.Error(codes.ResourceExhausted, throttled.Error())
	case errors.As(err, &eerr):
		return status.Error(codes.InvalidArgument, eerr.Error())
	case errors.As(err, &terr):
		return status.Error(codes.Unavailable, "failed to run rate limiting for request")
	case errors.As(err, &perr):
		return status.Error(codes.Internal, "failed to run rate limiting for request")
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// NewMetadataExtractor creates an Extractor keyed by incoming metadata
// values, combined the same way as NewHttpHeaderExtractor.
func NewMetadataExtractor(keys ...string) Extractor[*GRPCRequest] {
	return ExtractorFunc[*GRPCRequest](func(r *GRPCRequest) (cell.Key, error) {
		md, _ := metadata.FromIncomingContext(r.Context)

		values := make([]string, 0, len(keys))
		for _, key := range keys {
			v := md.Get(key)
			if len(v) == 0 || strings.TrimSpace(v[0]) == "" {
				return cell.Key{}, NewExtractError("metadata " + key + " must have a value set")
			}
			values = append(values, strings.TrimSpace(v[0]))
		}

		switch len(values) {
		case 0:
			return cell.Key{}, NewExtractError("no metadata keys configured")
		case 1:
			return cell.String(values[0]), nil
		case 2:
			return cell.Pair(values[0], values[1]), nil
		case 3:
			return cell.Triple(values[0], values[1], values[2]), nil
		default:
			return cell.String("(" + strings.Join(values, ", ") + ")"), nil
		}
	})
}

// NewPeerExtractor creates an Extractor keyed by the caller's address.
func NewPeerExtractor() Extractor[*GRPCRequest] {
	return ExtractorFunc[*GRPCRequest](func(r *GRPCRequest) (cell.Key, error) {
		p, ok := peer.FromContext(r.Context)
		if !ok || p.Addr == nil {
			return cell.Key{}, NewExtractError("request has no peer")
		}
		addr := p.Addr.String()
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return cell.String(host), nil
		}
		return cell.String(addr), nil
	})
}

// NewMethodExtractor scopes the key of inner to the called method.
func NewMethodExtractor(inner Extractor[*GRPCRequest]) Extractor[*GRPCRequest] {
	return ExtractorFunc[*GRPCRequest](func(r *GRPCRequest) (cell.Key, error) {
		key, err := inner.Extract(r)
		if err != nil {
			return cell.Key{}, err
		}
		return cell.Pair(key.String(), r.FullMethod), nil
	})
}
