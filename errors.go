package cell_rate_limiter

import (
	"errors"
	"fmt"

	"github.com/aryangodara/cell_rate_limiter/cell"
)

const (
	kindExtract   = "extract"
	kindTransport = "transport"
	kindProtocol  = "protocol"
	kindThrottled = "throttled"

	outcomeAllowed = "allowed"
	outcomeBlocked = kindThrottled
)

// ExtractError is returned when no key could be derived from a request. The
// request is rejected and never reaches the wrapped handler.
type ExtractError struct {
	Detail string
	Err    error
}

// NewExtractError creates an ExtractError carrying detail.
func NewExtractError(detail string) *ExtractError {
	return &ExtractError{Detail: detail}
}

func (e *ExtractError) Error() string {
	switch {
	case e.Detail != "":
		return "failed to extract rate limiting key: " + e.Detail
	case e.Err != nil:
		return "failed to extract rate limiting key: " + e.Err.Error()
	default:
		return "failed to extract rate limiting key"
	}
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

func asExtractError(err error) error {
	var eerr *ExtractError
	if errors.As(err, &eerr) {
		return err
	}
	return &ExtractError{Err: err}
}

// ThrottleError is the expected rejection of a request by its policy. Details
// carries what a caller needs to build a retry-after response.
type ThrottleError struct {
	Policy  cell.Policy
	Details cell.Blocked
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("rate limit exceeded for policy %s: retry after %ds", policyLabel(e.Policy), e.Details.RetryAfter)
}

// IsThrottled reports whether err was caused by a blocked check.
func IsThrottled(err error) (*ThrottleError, bool) {
	var terr *ThrottleError
	if errors.As(err, &terr) {
		return terr, true
	}
	return nil, false
}

// ErrorKind classifies errors returned by Check and the middlewares. It returns
// "extract", "transport", "protocol", "throttled", or "" for errors that did
// not originate in the rate limiter, such as those of the wrapped handler.
func ErrorKind(err error) string {
	var (
		eerr      *ExtractError
		terr      *cell.TransportError
		perr      *cell.ProtocolError
		throttled *ThrottleError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &throttled):
		return kindThrottled
	case errors.As(err, &eerr):
		return kindExtract
	case errors.As(err, &terr):
		return kindTransport
	case errors.As(err, &perr):
		return kindProtocol
	default:
		return ""
	}
}
