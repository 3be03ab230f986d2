package cell

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var general = PerPeriod(100, 100*time.Second).
	WithBurst(100).
	WithApply(2).
	WithName("general_policy")

func TestPolicy_Constructors(t *testing.T) {
	tt := []struct {
		desc   string
		policy Policy
		tokens uint
		period time.Duration
	}{
		{desc: "per second", policy: PerSecond(1), tokens: 1, period: time.Second},
		{desc: "per minute", policy: PerMinute(100), tokens: 100, period: time.Minute},
		{desc: "per hour", policy: PerHour(1_000), tokens: 1_000, period: time.Hour},
		{desc: "per day", policy: PerDay(5_000), tokens: 5_000, period: 24 * time.Hour},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			assert.Equal(t, NewPolicy(0, ts.tokens, ts.period, 1), ts.policy)
			assert.Equal(t, uint(0), ts.policy.Burst())
			assert.Equal(t, uint(1), ts.policy.Apply())
			assert.Empty(t, ts.policy.Name())
		})
	}
}

func TestPolicy_OverridesReturnCopies(t *testing.T) {
	base := PerMinute(10)
	named := base.WithName("login").WithBurst(5)

	assert.Equal(t, uint(0), base.Burst())
	assert.Empty(t, base.Name())
	assert.Equal(t, uint(5), named.Burst())
	assert.Equal(t, "login", named.Name())

	assert.Equal(t, uint(100), general.Burst())
	assert.Equal(t, uint(100), general.Tokens())
	assert.Equal(t, 100*time.Second, general.Period())
	assert.Equal(t, uint(2), general.Apply())
	assert.Equal(t, "general_policy 100/1m40s burst=100 apply=2", general.String())
}

func TestPolicy_PeriodSeconds(t *testing.T) {
	assert.Equal(t, uint64(1), PerPeriod(1, 1999*time.Millisecond).PeriodSeconds())
	assert.Equal(t, uint64(0), PerPeriod(1, 500*time.Millisecond).PeriodSeconds())
	assert.Equal(t, uint64(0), PerPeriod(1, -time.Second).PeriodSeconds())
	assert.Equal(t, uint64(86400), PerDay(1).PeriodSeconds())
}

func TestDefaultPolicy(t *testing.T) {
	assert.Equal(t, NewPolicy(15, 30, time.Minute, 1), DefaultPolicy())
}
