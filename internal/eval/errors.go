package eval

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// Error is an evaluation-time failure. It carries the source range of the
// failing construct (when known) and a snapshot of the call stack at the
// point of failure, innermost frame first.
type Error struct {
	Message   string
	Subject   *hcl.Range
	Backtrace []Frame
}

func (e *Error) Error() string {
	if e.Subject != nil {
		return fmt.Sprintf("%s: %s", e.Subject, e.Message)
	}
	return e.Message
}

// errorf builds an Error with the current backtrace attached.
func (c *Context) errorf(subject *hcl.Range, format string, args ...any) *Error {
	return &Error{
		Message:   fmt.Sprintf(format, args...),
		Subject:   subject,
		Backtrace: c.Backtrace(defaultBacktraceLimit),
	}
}

// wrapRemote re-wraps an error from the extension host so the merged
// local+remote trace survives propagation.
func (c *Context) wrapRemote(subject *hcl.Range, err error) *Error {
	return &Error{
		Message:   fmt.Sprintf("remote exception: %v", err),
		Subject:   subject,
		Backtrace: c.Backtrace(defaultBacktraceLimit),
	}
}

// diagError converts HCL diagnostics into an evaluation error anchored at
// the first diagnostic's subject.
func (c *Context) diagError(diags hcl.Diagnostics) *Error {
	var subject *hcl.Range
	if len(diags) > 0 {
		subject = diags[0].Subject
	}
	return &Error{
		Message:   diags.Error(),
		Subject:   subject,
		Backtrace: c.Backtrace(defaultBacktraceLimit),
	}
}

const defaultBacktraceLimit = 64
