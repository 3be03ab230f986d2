package cell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(values ...any) []any {
	return values
}

func TestDecode(t *testing.T) {
	tt := []struct {
		desc  string
		reply any
		want  Verdict
		field string
		msg   string
	}{
		{
			desc:  "allowed",
			reply: reply(int64(0), int64(15), int64(14), int64(0), int64(60)),
			want:  Allowed{Total: 15, Remaining: 14, ResetAfter: 60},
		},
		{
			desc:  "allowed drops the -1 retry_after placeholder",
			reply: reply(int64(0), int64(15), int64(14), int64(-1), int64(60)),
			want:  Allowed{Total: 15, Remaining: 14, ResetAfter: 60},
		},
		{
			desc:  "blocked",
			reply: reply(int64(1), int64(15), int64(0), int64(8), int64(60)),
			want:  Blocked{Total: 15, Remaining: 0, RetryAfter: 8, ResetAfter: 60},
		},
		{
			desc:  "int elements",
			reply: reply(1, 15, 0, 8, 60),
			want:  Blocked{Total: 15, Remaining: 0, RetryAfter: 8, ResetAfter: 60},
		},
		{
			desc:  "not a sequence",
			reply: "OK",
			field: "reply",
			msg:   "expected sequence, but got",
		},
		{
			desc:  "nil reply",
			reply: nil,
			field: "reply",
			msg:   "expected sequence",
		},
		{
			desc:  "four elements",
			reply: reply(int64(0), int64(15), int64(14), int64(0)),
			field: "reply",
			msg:   "expected sequence of 5 elements",
		},
		{
			desc:  "six elements",
			reply: reply(int64(0), int64(15), int64(14), int64(0), int64(60), int64(1)),
			field: "reply",
			msg:   "expected sequence of 5 elements",
		},
		{
			desc:  "throttled out of range",
			reply: reply(int64(2), int64(15), int64(14), int64(0), int64(60)),
			field: "throttled",
			msg:   "expected 0 or 1, but got 2",
		},
		{
			desc:  "throttled not an integer",
			reply: reply("0", int64(15), int64(14), int64(0), int64(60)),
			field: "throttled",
			msg:   "expected integer",
		},
		{
			desc:  "negative total",
			reply: reply(int64(0), int64(-1), int64(14), int64(0), int64(60)),
			field: "total",
		},
		{
			desc:  "remaining not an integer",
			reply: reply(int64(0), int64(15), "14", int64(0), int64(60)),
			field: "remaining",
		},
		{
			desc:  "allowed retry_after must still be an integer",
			reply: reply(int64(0), int64(15), int64(14), "x", int64(60)),
			field: "retry_after",
		},
		{
			desc:  "negative retry_after when blocked",
			reply: reply(int64(1), int64(15), int64(0), int64(-1), int64(60)),
			field: "retry_after",
		},
		{
			desc:  "negative reset_after",
			reply: reply(int64(0), int64(15), int64(14), int64(0), int64(-60)),
			field: "reset_after",
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			got, err := Decode(ts.reply)
			if ts.field == "" {
				require.NoError(t, err)
				assert.Equal(t, ts.want, got)
				return
			}

			assert.Nil(t, got)
			var perr *ProtocolError
			require.True(t, errors.As(err, &perr), "expected *ProtocolError, got %T", err)
			assert.Equal(t, ts.field, perr.Field)
			assert.Contains(t, err.Error(), ts.field)
			if ts.msg != "" {
				assert.Contains(t, err.Error(), ts.msg)
			}
		})
	}
}

func TestVerdict_Durations(t *testing.T) {
	b := Blocked{RetryAfter: 8, ResetAfter: 60}
	assert.Equal(t, "8s", b.RetryAfterDuration().String())
	assert.Equal(t, "1m0s", b.ResetAfterDuration().String())
	assert.Equal(t, "3s", Allowed{ResetAfter: 3}.ResetAfterDuration().String())
}
