package fiber

import (
	"testing"

	"github.com/ember-lang/ember/lang/heap"
	"github.com/ember-lang/ember/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFiberStatus(t *testing.T) {
	h := heap.New(0)
	f := New(h, value.Nil, 8)
	assert.Equal(t, StatusNew, f.Status())
	assert.Equal(t, 1, f.Depth())
}

func TestResumeDeadFails(t *testing.T) {
	h := heap.New(0)
	f := New(h, value.Nil, 8)
	require.NoError(t, f.BeginResume(nil))
	f.Finish(value.Number(1))
	assert.Equal(t, StatusDead, f.Status())

	err := f.BeginResume(nil)
	assert.Error(t, err)
}

func TestYieldThenResume(t *testing.T) {
	h := heap.New(0)
	f := New(h, value.Nil, 8)
	require.NoError(t, f.BeginResume(nil))
	f.Yield(value.Number(10), 0)
	f.EndResume()
	assert.Equal(t, StatusPending, f.Status())

	require.NoError(t, f.BeginResume(nil))
	v, err := f.TakeResult()
	require.NoError(t, err)
	assert.Equal(t, value.Number(10), v)
}

func TestCancelArmsError(t *testing.T) {
	h := heap.New(0)
	f := New(h, value.Nil, 8)
	require.NoError(t, f.BeginResume(nil))
	f.Yield(value.Nil, 0)
	f.EndResume()

	require.NoError(t, f.Cancel(assertErr{}))
	require.NoError(t, f.BeginResume(nil))
	_, err := f.TakeResult()
	assert.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "cancelled" }

func TestPushPopFrameAndTailcall(t *testing.T) {
	h := heap.New(0)
	f := New(h, value.Nil, 8)
	require.NoError(t, f.BeginResume(nil))

	require.NoError(t, f.PushCallFrame(value.Nil, 4, []value.Value{value.Number(1)}, -1))
	assert.Equal(t, 2, f.Depth())
	assert.Equal(t, value.Number(1), f.Slot(0))

	f.PushTailcallFrame(value.Nil, 4, []value.Value{value.Number(2)})
	assert.Equal(t, 2, f.Depth(), "tailcall reuses the current frame, not growing depth")
	assert.Equal(t, value.Number(2), f.Slot(0))

	entryPopped := f.PopFrame()
	assert.False(t, entryPopped)
	entryPopped = f.PopFrame()
	assert.True(t, entryPopped)
	assert.Equal(t, StatusDead, f.Status())
}

func TestParentChildLinking(t *testing.T) {
	h := heap.New(0)
	parent := New(h, value.Nil, 8)
	child := New(h, value.Nil, 8)

	require.NoError(t, child.BeginResume(parent))
	assert.Equal(t, parent, child.Parent())
	assert.Equal(t, child, parent.Child())

	child.Finish(value.Nil)
	child.EndResume()
	assert.Nil(t, parent.Child())
}

func TestPushCallFrameRejectsBeyondMaxDepth(t *testing.T) {
	h := heap.New(0)
	f := New(h, value.Nil, 8)
	f.SetMaxDepth(2)
	require.NoError(t, f.BeginResume(nil))

	require.NoError(t, f.PushCallFrame(value.Nil, 1, nil, -1))
	err := f.PushCallFrame(value.Nil, 1, nil, -1)
	assert.Error(t, err)
	assert.Equal(t, 2, f.Depth(), "the rejected frame must not be pushed")
}
