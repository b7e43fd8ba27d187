package eval

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// MaxStackDepth bounds the evaluation call stack. Exceeding it is a fatal
// evaluation error with no recovery.
const MaxStackDepth = 1000

// Frame is one activation record on the evaluation call stack. External
// frames represent code outside the manifest language (built-in or imported
// functions); their source location is frozen at entry, while in-language
// frames are live-updated as evaluation proceeds within them.
type Frame struct {
	Name     string
	Path     string
	Line     int
	External bool
	scope    *Scope
}

// ExternalFrame builds a frame for a native or imported function.
func ExternalFrame(name string, scope *Scope) Frame {
	return Frame{Name: name, External: true, scope: scope}
}

// SourceFrame builds a frame for in-language code entered at the given
// range.
func SourceFrame(name string, rng hcl.Range, scope *Scope) Frame {
	return Frame{Name: name, Path: rng.Filename, Line: rng.Start.Line, scope: scope}
}

// Scope returns the scope associated with the frame, or nil.
func (f Frame) Scope() *Scope { return f.scope }

func (f Frame) String() string {
	location := "<native>"
	if !f.External {
		location = fmt.Sprintf("%s:%d", f.Path, f.Line)
	}
	return fmt.Sprintf("in '%s' at %s", f.Name, location)
}

// PushFrame pushes a frame (and its match scope entry) onto the call stack.
// It returns a pop function that must run on every exit path; callers defer
// it immediately. Pushing beyond MaxStackDepth fails without modifying the
// stack.
func (c *Context) PushFrame(frame Frame) (func(), error) {
	if len(c.callStack) >= MaxStackDepth {
		return nil, c.errorf(nil, "cannot call '%s': maximum stack depth reached", frame.Name)
	}
	c.callStack = append(c.callStack, frame)
	popMatch := c.PushMatchScope()
	return func() {
		popMatch()
		c.callStack = c.callStack[:len(c.callStack)-1]
	}, nil
}

// StackDepth returns the current call stack depth.
func (c *Context) StackDepth() int {
	return len(c.callStack)
}

// Backtrace returns up to limit frames, innermost first.
func (c *Context) Backtrace(limit int) []Frame {
	n := len(c.callStack)
	if limit > n {
		limit = n
	}
	frames := make([]Frame, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		frames = append(frames, c.callStack[i])
	}
	return frames
}

// UpdateLocation records the most specific currently evaluating statement on
// the innermost frame, so partial-evaluation errors report it instead of the
// frame's entry point. External frames keep their frozen location.
func (c *Context) UpdateLocation(rng hcl.Range) {
	if len(c.callStack) == 0 {
		return
	}
	frame := &c.callStack[len(c.callStack)-1]
	if frame.External {
		return
	}
	frame.Path = rng.Filename
	frame.Line = rng.Start.Line
}

// CurrentScope returns the scope of the innermost frame.
func (c *Context) CurrentScope() (*Scope, error) {
	if n := len(c.callStack); n > 0 {
		if s := c.callStack[n-1].scope; s != nil {
			return s, nil
		}
	}
	return nil, c.errorf(nil, "operation not permitted: the current scope is not available")
}

// CallingScope returns the scope of the caller's frame.
func (c *Context) CallingScope() (*Scope, error) {
	if n := len(c.callStack); n >= 2 {
		if s := c.callStack[n-2].scope; s != nil {
			return s, nil
		}
	}
	return nil, c.errorf(nil, "operation not permitted: there is no calling scope")
}
