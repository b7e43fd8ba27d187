package eval

import "github.com/zclconf/go-cty/cty"

// matchList holds the capture values of the most recent pattern match in a
// match scope. The shared flag is set when a closure captures the list;
// setting new matches then allocates a fresh list (copy-on-write) so the
// closure keeps its snapshot.
type matchList struct {
	values []cty.Value
	shared bool
}

// matchEntry is one stack entry; list is nil until the scope performs a
// match.
type matchEntry struct {
	list *matchList
}

// PushMatchScope pushes an empty match scope entry and returns its pop
// function. Block scopes that may perform a pattern match push one entry.
func (c *Context) PushMatchScope() func() {
	c.matchStack = append(c.matchStack, &matchEntry{})
	return func() {
		c.matchStack = c.matchStack[:len(c.matchStack)-1]
	}
}

// SetMatches replaces the top entry's capture list. If the current list is
// shared with a captured closure, a fresh list is allocated first.
func (c *Context) SetMatches(captures []string) {
	c.setMatchesAt(len(c.matchStack)-1, captures)
}

// setMatchesCaller writes captures one entry below the top, skipping the
// entry pushed for the currently executing native function so the captures
// survive the function's return.
func (c *Context) setMatchesCaller(captures []string) {
	c.setMatchesAt(len(c.matchStack)-2, captures)
}

func (c *Context) setMatchesAt(index int, captures []string) {
	if index < 0 || index >= len(c.matchStack) {
		return
	}
	entry := c.matchStack[index]
	if entry.list == nil || entry.list.shared {
		entry.list = &matchList{}
	}

	entry.list.values = entry.list.values[:0]
	for _, capture := range captures {
		entry.list.values = append(entry.list.values, cty.StringVal(capture))
	}
}

// LookupMatch walks the match stack from innermost to outermost and returns
// capture N from the first entry that has a match list.
func (c *Context) LookupMatch(index int) (cty.Value, bool) {
	for i := len(c.matchStack) - 1; i >= 0; i-- {
		list := c.matchStack[i].list
		if list == nil {
			continue
		}
		if index < 0 || index >= len(list.values) {
			return cty.NilVal, false
		}
		return list.values[index], true
	}
	return cty.NilVal, false
}

// CaptureMatches marks the innermost match list as shared and returns it,
// for closures that must retain their own snapshot of matches at capture
// time.
func (c *Context) CaptureMatches() *MatchSnapshot {
	for i := len(c.matchStack) - 1; i >= 0; i-- {
		if list := c.matchStack[i].list; list != nil {
			list.shared = true
			return &MatchSnapshot{list: list}
		}
	}
	return &MatchSnapshot{}
}

// MatchSnapshot is a closure's view of the matches that were current when
// the closure was created.
type MatchSnapshot struct {
	list *matchList
}

// Lookup returns capture N from the snapshot.
func (s *MatchSnapshot) Lookup(index int) (cty.Value, bool) {
	if s.list == nil || index < 0 || index >= len(s.list.values) {
		return cty.NilVal, false
	}
	return s.list.values[index], true
}
