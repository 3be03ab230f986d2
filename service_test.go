package cell_rate_limiter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryangodara/cell_rate_limiter/cell"
)

type countingHandler struct {
	calls int
	err   error
}

func (h *countingHandler) Call(_ context.Context, req string) (string, error) {
	h.calls++
	if h.err != nil {
		return "", h.err
	}
	return "hello " + req, nil
}

func TestRateLimit_Call(t *testing.T) {
	tt := []struct {
		desc      string
		req       string
		reply     any
		innerErr  error
		wantResp  string
		wantCalls int
		wantKind  string
	}{
		{
			desc:      "admitted request reaches the handler once",
			req:       "alice",
			reply:     allowedReply,
			wantResp:  "hello alice",
			wantCalls: 1,
		},
		{
			desc:      "throttled request never reaches the handler",
			req:       "alice",
			reply:     blockedReply,
			wantCalls: 0,
			wantKind:  "throttled",
		},
		{
			desc:      "unkeyed request never reaches the handler",
			req:       "",
			reply:     allowedReply,
			wantCalls: 0,
			wantKind:  "extract",
		},
		{
			desc:      "handler errors are passed through",
			req:       "alice",
			reply:     allowedReply,
			innerErr:  errors.New("backend down"),
			wantCalls: 1,
			wantKind:  "",
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			inner := &countingHandler{err: ts.innerErr}
			svc := NewRateLimit[string, string](inner, NewRateLimitConfig(userExtractor(), apiPolicy), &stubTransport{reply: ts.reply})

			resp, err := svc.Call(context.Background(), ts.req)

			assert.Equal(t, ts.wantResp, resp)
			assert.Equal(t, ts.wantCalls, inner.calls)
			assert.Equal(t, ts.wantKind, ErrorKind(err))
			if ts.innerErr != nil {
				assert.ErrorIs(t, err, ts.innerErr)
			}
		})
	}
}

func TestRateLimit_ThrottleDetails(t *testing.T) {
	inner := &countingHandler{}
	svc := NewRateLimit[string, string](inner, NewRateLimitConfig(userExtractor(), apiPolicy), &stubTransport{reply: blockedReply})

	_, err := svc.Call(context.Background(), "alice")

	terr, ok := IsThrottled(err)
	require.True(t, ok)
	assert.Equal(t, cell.Blocked{Total: 15, Remaining: 0, RetryAfter: 8, ResetAfter: 60}, terr.Details)
	assert.Zero(t, inner.calls)
}

func TestLayer(t *testing.T) {
	transport := &stubTransport{reply: allowedReply}
	layer := Layer[string, string](NewRateLimitConfig(userExtractor(), apiPolicy), transport)

	greet := layer(HandlerFunc[string, string](func(_ context.Context, req string) (string, error) {
		return "hi " + req, nil
	}))
	echo := layer(HandlerFunc[string, string](func(_ context.Context, req string) (string, error) {
		return req, nil
	}))

	resp, err := greet.Call(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "hi alice", resp)

	resp, err = echo.Call(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", resp)

	assert.Equal(t, 2, transport.callCount())
}
