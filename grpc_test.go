package cell_rate_limiter

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/aryangodara/cell_rate_limiter/cell"
)

func TestUnaryServerInterceptor(t *testing.T) {
	tt := []struct {
		desc      string
		md        metadata.MD
		reply     any
		err       error
		wantCode  codes.Code
		wantCalls int
	}{
		{
			desc:      "allowed call reaches the handler",
			md:        metadata.Pairs("x-user-id", "alice"),
			reply:     allowedReply,
			wantCode:  codes.OK,
			wantCalls: 1,
		},
		{
			desc:     "throttled call is resource exhausted",
			md:       metadata.Pairs("x-user-id", "alice"),
			reply:    blockedReply,
			wantCode: codes.ResourceExhausted,
		},
		{
			desc:     "missing metadata is invalid argument",
			md:       metadata.MD{},
			reply:    allowedReply,
			wantCode: codes.InvalidArgument,
		},
		{
			desc:     "transport failure is unavailable",
			md:       metadata.Pairs("x-user-id", "alice"),
			err:      errors.New("connection reset by peer"),
			wantCode: codes.Unavailable,
		},
		{
			desc:     "malformed reply is internal",
			md:       metadata.Pairs("x-user-id", "alice"),
			reply:    []any{"0", "15"},
			wantCode: codes.Internal,
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			interceptor := UnaryServerInterceptor(
				NewRateLimitConfig(NewMetadataExtractor("x-user-id"), apiPolicy),
				&stubTransport{reply: ts.reply, err: ts.err},
			)

			calls := 0
			handler := func(ctx context.Context, req any) (any, error) {
				calls++
				return "pong", nil
			}

			ctx := metadata.NewIncomingContext(context.Background(), ts.md)
			resp, err := interceptor(ctx, "ping", &grpc.UnaryServerInfo{FullMethod: "/echo.v1.Echo/Ping"}, handler)

			assert.Equal(t, ts.wantCode, status.Code(err))
			assert.Equal(t, ts.wantCalls, calls)
			if ts.wantCode == codes.OK {
				assert.Equal(t, "pong", resp)
			} else {
				assert.Nil(t, resp)
			}
		})
	}
}

func TestMetadataExtractor(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-tenant", "acme", "x-user-id", "alice"))

	key, err := NewMetadataExtractor("x-tenant", "x-user-id").Extract(&GRPCRequest{Context: ctx})
	require.NoError(t, err)
	assert.Equal(t, cell.Pair("acme", "alice"), key)

	_, err = NewMetadataExtractor("x-api-key").Extract(&GRPCRequest{Context: ctx})
	assert.EqualError(t, err, "failed to extract rate limiting key: metadata x-api-key must have a value set")

	_, err = NewMetadataExtractor("x-user-id").Extract(&GRPCRequest{Context: context.Background()})
	assert.Equal(t, "extract", ErrorKind(err))
}

func TestPeerExtractor(t *testing.T) {
	ctx := peer.NewContext(context.Background(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 41000},
	})

	key, err := NewPeerExtractor().Extract(&GRPCRequest{Context: ctx})
	require.NoError(t, err)
	assert.Equal(t, cell.String("192.0.2.10"), key)

	_, err = NewPeerExtractor().Extract(&GRPCRequest{Context: context.Background()})
	assert.Equal(t, "extract", ErrorKind(err))
}

func TestMethodExtractor(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-user-id", "alice"))

	key, err := NewMethodExtractor(NewMetadataExtractor("x-user-id")).Extract(&GRPCRequest{
		Context:    ctx,
		FullMethod: "/echo.v1.Echo/Ping",
	})
	require.NoError(t, err)
	assert.Equal(t, cell.Pair("alice", "/echo.v1.Echo/Ping"), key)
}
