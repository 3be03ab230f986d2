package cell

import (
	"fmt"
	"math"
	"time"
)

const replyLen = 5

// Verdict is the decoded outcome of one check, either Allowed or Blocked.
type Verdict interface {
	verdict()
}

// Allowed is returned when the check passed and tokens were consumed.
type Allowed struct {
	Total      uint
	Remaining  uint
	ResetAfter uint64
}

// Blocked is returned when the check was rejected by the policy.
type Blocked struct {
	Total      uint
	Remaining  uint
	RetryAfter uint64
	ResetAfter uint64
}

func (Allowed) verdict() {}
func (Blocked) verdict() {}

// ResetAfterDuration is the time until the bucket is full again.
func (a Allowed) ResetAfterDuration() time.Duration { return seconds(a.ResetAfter) }

// ResetAfterDuration is the time until the bucket is full again.
func (b Blocked) ResetAfterDuration() time.Duration { return seconds(b.ResetAfter) }

// RetryAfterDuration is the time until the same check would pass.
func (b Blocked) RetryAfterDuration() time.Duration { return seconds(b.RetryAfter) }

func seconds(s uint64) time.Duration {
	if s > uint64(math.MaxInt64/int64(time.Second)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s) * time.Second
}

// Decode parses a CL.THROTTLE reply:
//
//	[throttled (0|1), total, remaining, retry_after, reset_after]
//
// Every element must be an integer. The first element that does not fit its
// field fails the whole reply with a *ProtocolError. retry_after is only
// meaningful on a blocked reply; on an allowed reply the server sends -1 and
// the value is dropped.
func Decode(reply any) (Verdict, error) {
	values, ok := reply.([]any)
	if !ok {
		return nil, &ProtocolError{Field: "reply", Expected: "sequence", Got: reply}
	}
	if len(values) != replyLen {
		return nil, &ProtocolError{
			Field:    "reply",
			Expected: fmt.Sprintf("sequence of %d elements", replyLen),
			Got:      values,
		}
	}

	throttled, err := parseThrottled(values[0])
	if err != nil {
		return nil, err
	}
	total, err := toUint("total", values[1])
	if err != nil {
		return nil, err
	}
	remaining, err := toUint("remaining", values[2])
	if err != nil {
		return nil, err
	}

	if !throttled {
		if _, err := toInt("retry_after", values[3]); err != nil {
			return nil, err
		}
		resetAfter, err := toUint64("reset_after", values[4])
		if err != nil {
			return nil, err
		}
		return Allowed{Total: total, Remaining: remaining, ResetAfter: resetAfter}, nil
	}

	retryAfter, err := toUint64("retry_after", values[3])
	if err != nil {
		return nil, err
	}
	resetAfter, err := toUint64("reset_after", values[4])
	if err != nil {
		return nil, err
	}
	return Blocked{
		Total:      total,
		Remaining:  remaining,
		RetryAfter: retryAfter,
		ResetAfter: resetAfter,
	}, nil
}

func parseThrottled(value any) (bool, error) {
	n, err := toInt("throttled", value)
	if err != nil {
		return false, err
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, &ProtocolError{Field: "throttled", Expected: "0 or 1", Got: n}
	}
}

func toUint(field string, value any) (uint, error) {
	n, err := toInt(field, value)
	if err != nil {
		return 0, err
	}
	if n < 0 || uint64(n) > uint64(math.MaxUint) {
		return 0, &ProtocolError{Field: field, Expected: "non-negative integer fitting uint", Got: n}
	}
	return uint(n), nil
}

func toUint64(field string, value any) (uint64, error) {
	n, err := toInt(field, value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, &ProtocolError{Field: field, Expected: "non-negative integer", Got: n}
	}
	return uint64(n), nil
}

func toInt(field string, value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, &ProtocolError{Field: field, Expected: "integer", Got: value}
	}
}
