package cell

import (
	"fmt"
	"time"
)

const (
	day = 24 * time.Hour

	defaultBurst  = 15
	defaultTokens = 30
	defaultPeriod = time.Minute
)

// Policy describes one rate limit: a bucket that refills tokens every period,
// allows burst extra tokens above the steady rate and consumes apply tokens
// per check.
//
// A Policy is an immutable value. The With* methods return a modified copy,
// so a policy can be declared once as a package variable and shared.
type Policy struct {
	burst  uint
	tokens uint
	period time.Duration
	apply  uint
	name   string
}

// NewPolicy creates a policy from all of its wire parameters.
func NewPolicy(burst, tokens uint, period time.Duration, apply uint) Policy {
	return Policy{
		burst:  burst,
		tokens: tokens,
		period: period,
		apply:  apply,
	}
}

// DefaultPolicy returns the policy used when nothing else is configured:
// 30 tokens per minute with a burst of 15.
func DefaultPolicy() Policy {
	return NewPolicy(defaultBurst, defaultTokens, defaultPeriod, 1)
}

// PerPeriod allows tokens per period with no extra burst, consuming one
// token per check.
func PerPeriod(tokens uint, period time.Duration) Policy {
	return NewPolicy(0, tokens, period, 1)
}

func PerSecond(tokens uint) Policy { return PerPeriod(tokens, time.Second) }
func PerMinute(tokens uint) Policy { return PerPeriod(tokens, time.Minute) }
func PerHour(tokens uint) Policy   { return PerPeriod(tokens, time.Hour) }
func PerDay(tokens uint) Policy    { return PerPeriod(tokens, day) }

// WithBurst returns a copy of p with the given maximum burst.
func (p Policy) WithBurst(burst uint) Policy {
	p.burst = burst
	return p
}

// WithApply returns a copy of p consuming apply tokens per check.
func (p Policy) WithApply(apply uint) Policy {
	p.apply = apply
	return p
}

// WithName returns a copy of p labelled name. The name is only used in logs
// and metrics, it is never sent to the server.
func (p Policy) WithName(name string) Policy {
	p.name = name
	return p
}

func (p Policy) Burst() uint           { return p.burst }
func (p Policy) Tokens() uint          { return p.tokens }
func (p Policy) Period() time.Duration { return p.period }
func (p Policy) Apply() uint           { return p.apply }
func (p Policy) Name() string          { return p.name }

// PeriodSeconds returns the period truncated to whole seconds, which is the
// only resolution the command carries.
func (p Policy) PeriodSeconds() uint64 {
	if p.period <= 0 {
		return 0
	}
	return uint64(p.period / time.Second)
}

func (p Policy) String() string {
	s := fmt.Sprintf("%d/%s burst=%d apply=%d", p.tokens, p.period, p.burst, p.apply)
	if p.name != "" {
		s = p.name + " " + s
	}
	return s
}
