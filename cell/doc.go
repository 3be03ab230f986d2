// Package cell speaks the redis-cell CL.THROTTLE protocol.
//
// A Policy and a Key are encoded into a single command with NewCmd, sent over
// any Transport (usually a go-redis client) and the reply is decoded into a
// Verdict with Decode. Throttle does all three:
//
//	var apiPolicy = cell.PerMinute(100).WithBurst(10).WithName("api")
//
//	verdict, err := cell.Throttle(ctx, client, cell.Pair("user123", "/api/infer"), apiPolicy)
//	if err != nil {
//		return err
//	}
//	switch v := verdict.(type) {
//	case cell.Allowed:
//		log.Printf("remaining=%d", v.Remaining)
//	case cell.Blocked:
//		log.Printf("retry in %s", v.RetryAfterDuration())
//	}
//
// The rate limiting algorithm runs on the server; this package only owns the
// wire format.
package cell
