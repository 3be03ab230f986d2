package cell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// CommandName is the redis-cell command.
const CommandName = "CL.THROTTLE"

// Transport sends a command and returns its reply. *redis.Client,
// *redis.ClusterClient, *redis.Ring and redis.UniversalClient all satisfy it
// and are safe for concurrent use.
type Transport interface {
	Do(ctx context.Context, args ...any) *redis.Cmd
}

var _ Transport = redis.UniversalClient(nil)

// Cmd combines a key and a policy into a CL.THROTTLE command. It only
// borrows both and must not outlive them.
type Cmd struct {
	key    *Key
	policy *Policy
}

// NewCmd creates a command for key and policy.
func NewCmd(key *Key, policy *Policy) Cmd {
	return Cmd{key: key, policy: policy}
}

// Args returns the command arguments:
//
//	CL.THROTTLE <key> <burst> <tokens> <period-seconds> <apply>
func (c Cmd) Args() []any {
	return []any{
		CommandName,
		c.key.Arg(),
		uint64(c.policy.Burst()),
		uint64(c.policy.Tokens()),
		c.policy.PeriodSeconds(),
		uint64(c.policy.Apply()),
	}
}

func (c Cmd) String() string {
	args := c.Args()
	s := make([]string, len(args))
	for i, a := range args {
		s[i] = fmt.Sprint(a)
	}
	return strings.Join(s, " ")
}

// Throttle runs one check of key against policy and decodes the reply.
//
// Transport failures are returned as *TransportError and malformed replies as
// *ProtocolError. The check is not retried. If ctx is cancelled after the
// command was written the server may already have consumed the tokens; they
// are not given back.
func Throttle(ctx context.Context, t Transport, key Key, policy Policy) (Verdict, error) {
	cmd := NewCmd(&key, &policy)

	reply, err := t.Do(ctx, cmd.Args()...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, &TransportError{Err: err}
	}

	return Decode(reply)
}
