package cell

import "fmt"

// ProtocolError is returned when a reply does not have the CL.THROTTLE shape.
type ProtocolError struct {
	// Field is "reply" for shape errors, otherwise the name of the element.
	Field    string
	Expected string
	Got      any
}

func (e *ProtocolError) Error() string {
	if e.Field == "reply" {
		return fmt.Sprintf("invalid redis cell reply: expected %s, but got %#v", e.Expected, e.Got)
	}
	return fmt.Sprintf("invalid redis cell reply: failed to parse %s: expected %s, but got %#v", e.Field, e.Expected, e.Got)
}

// TransportError wraps a failure to deliver the command or read its reply.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to run %s: %v", CommandName, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
