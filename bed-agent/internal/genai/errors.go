package genai

import (
	"errors"
	"fmt"
)

// TransportFailure means the endpoint was unreachable, timed out or answered with an
// error status.
type TransportFailure struct {
	Op  string
	Err error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("genai %s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportFailure) Unwrap() error { return e.Err }

// SchemaViolation means a response arrived but did not parse into the declared structure.
type SchemaViolation struct {
	Reason string
	Err    error
}

func (e *SchemaViolation) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("genai: schema violation: %s: %v", e.Reason, e.Err)
	}
	return "genai: schema violation: " + e.Reason
}

func (e *SchemaViolation) Unwrap() error { return e.Err }

// ErrNotConfigured is wrapped in a TransportFailure by the Unavailable generator.
var ErrNotConfigured = errors.New("no generative endpoint configured")

func IsTransport(err error) bool {
	var tf *TransportFailure
	return errors.As(err, &tf)
}

func IsSchema(err error) bool {
	var sv *SchemaViolation
	return errors.As(err, &sv)
}
