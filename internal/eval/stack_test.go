package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushFrameDepthLimit(t *testing.T) {
	ec, _, _ := newTestContext(nil, nil)
	scope := ec.TopScope()

	pops := make([]func(), 0, MaxStackDepth)
	for i := 0; i < MaxStackDepth; i++ {
		pop, err := ec.PushFrame(ExternalFrame("f", scope))
		require.NoError(t, err)
		pops = append(pops, pop)
	}
	assert.Equal(t, MaxStackDepth, ec.StackDepth())

	_, err := ec.PushFrame(ExternalFrame("overflow", scope))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum stack depth")
	assert.Equal(t, MaxStackDepth, ec.StackDepth(), "a failed push leaves the stack untouched")

	// Popping one frame makes room again.
	pops[len(pops)-1]()
	_, err = ec.PushFrame(ExternalFrame("again", scope))
	assert.NoError(t, err)
}

func TestBacktraceOrder(t *testing.T) {
	ec, _, _ := newTestContext(nil, nil)
	scope := ec.TopScope()

	popOuter, err := ec.PushFrame(SourceFrame("class outer", testRange(3), scope))
	require.NoError(t, err)
	defer popOuter()
	popInner, err := ec.PushFrame(ExternalFrame("include", scope))
	require.NoError(t, err)
	defer popInner()

	frames := ec.Backtrace(10)
	require.Len(t, frames, 2)
	assert.Equal(t, "include", frames[0].Name, "innermost frame first")
	assert.Equal(t, "class outer", frames[1].Name)
	assert.Contains(t, frames[0].String(), "<native>")
	assert.Contains(t, frames[1].String(), "test.hcl:3")

	assert.Len(t, ec.Backtrace(1), 1)
}

func TestUpdateLocation(t *testing.T) {
	ec, _, _ := newTestContext(nil, nil)
	scope := ec.TopScope()

	t.Run("source frames are live-updated", func(t *testing.T) {
		pop, err := ec.PushFrame(SourceFrame("class a", testRange(1), scope))
		require.NoError(t, err)
		defer pop()

		ec.UpdateLocation(testRange(42))
		assert.Equal(t, 42, ec.Backtrace(1)[0].Line)
	})

	t.Run("external frames keep their frozen location", func(t *testing.T) {
		pop, err := ec.PushFrame(ExternalFrame("include", scope))
		require.NoError(t, err)
		defer pop()

		ec.UpdateLocation(testRange(42))
		frame := ec.Backtrace(1)[0]
		assert.True(t, frame.External)
		assert.Zero(t, frame.Line)
	})
}

func TestCurrentAndCallingScope(t *testing.T) {
	ec, _, _ := newTestContext(nil, nil)
	top := ec.TopScope()
	child := NewScope(top, nil)

	_, err := ec.CurrentScope()
	assert.Error(t, err, "no frames, no scope")
	_, err = ec.CallingScope()
	assert.Error(t, err)

	pop1, err := ec.PushFrame(SourceFrame("outer", testRange(1), top))
	require.NoError(t, err)
	defer pop1()
	pop2, err := ec.PushFrame(ExternalFrame("inner", child))
	require.NoError(t, err)
	defer pop2()

	current, err := ec.CurrentScope()
	require.NoError(t, err)
	assert.Same(t, child, current)

	calling, err := ec.CallingScope()
	require.NoError(t, err)
	assert.Same(t, top, calling)
}
