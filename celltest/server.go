// Package celltest runs a miniredis server that understands CL.THROTTLE, so
// code using package cell can be tested without a redis-cell module.
package celltest

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/alicebob/miniredis/v2/server"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aryangodara/cell_rate_limiter/cell"
)

// Server is a miniredis instance with CL.THROTTLE registered. Buckets follow
// the GCRA rules of redis-cell: a bucket holds burst+1 tokens and refills
// tokens per period.
type Server struct {
	*miniredis.Miniredis

	mu   sync.Mutex
	now  func() time.Time
	tats map[string]time.Time
}

// NewServer starts a server for the duration of the test. now is used as the
// bucket clock; FastForward does not affect it.
func NewServer(t testing.TB, now func() time.Time) *Server {
	t.Helper()

	m, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	s := &Server{
		Miniredis: m,
		now:       now,
		tats:      make(map[string]time.Time),
	}
	require.NoError(t, m.Server().Register(cell.CommandName, s.throttle))
	return s
}

// NewClient returns a go-redis client connected to s.
func (s *Server) NewClient(t testing.TB) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func (s *Server) throttle(c *server.Peer, cmd string, args []string) {
	if len(args) != 4 && len(args) != 5 {
		c.WriteError("ERR wrong number of arguments for '" + cmd + "' command")
		return
	}

	key := args[0]
	params := make([]int64, 4)
	params[3] = 1 // apply
	for i, arg := range args[1:] {
		v, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || v < 0 {
			c.WriteError("ERR invalid argument '" + arg + "'")
			return
		}
		params[i] = v
	}
	burst, tokens, period, apply := params[0], params[1], params[2], params[3]
	if tokens == 0 || period == 0 {
		c.WriteError("ERR rate must be positive")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	emission := time.Duration(period) * time.Second / time.Duration(tokens)
	tolerance := emission * time.Duration(burst+1)
	increment := emission * time.Duration(apply)

	tat, ok := s.tats[key]
	if !ok || tat.Before(now) {
		tat = now
	}

	newTAT := tat.Add(increment)
	allowAt := newTAT.Add(-tolerance)
	diff := now.Sub(allowAt)

	limited := diff < 0
	retryAfter := int64(-1)
	var ttl time.Duration
	if limited {
		if increment <= tolerance {
			retryAfter = ceilSeconds(-diff)
		}
		ttl = tat.Sub(now)
	} else {
		ttl = newTAT.Sub(now)
		s.tats[key] = newTAT
	}

	var remaining int64
	if next := tolerance - ttl; next > -emission {
		remaining = int64(next / emission)
	}

	throttled := 0
	if limited {
		throttled = 1
	}

	c.WriteLen(5)
	c.WriteInt(throttled)
	c.WriteInt(int(burst + 1))
	c.WriteInt(int(remaining))
	c.WriteInt(int(retryAfter))
	c.WriteInt(int(ceilSeconds(ttl)))
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
