package framequeue_test

import (
	"testing"

	"github.com/emulator000/amqpcore/framequeue"
	"github.com/emulator000/amqpcore/promise"
	"github.com/emulator000/amqpcore/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func method(name string) wire.Frame {
	return wire.Frame{Type: wire.FrameMethod, Method: stubMethod(name)}
}

type stubMethod string

func (s stubMethod) ClassIdentifier() uint16  { return 0 }
func (s stubMethod) MethodIdentifier() uint16 { return 0 }
func (s stubMethod) Name() string             { return string(s) }
func (s stubMethod) Sync() bool               { return false }

func header(size uint64) wire.Frame {
	return wire.Frame{Type: wire.FrameHeader, BodySize: size}
}

func body(payload string) wire.Frame {
	return wire.Frame{Type: wire.FrameBody, Payload: []byte(payload)}
}

func TestPopOrderingAcrossLanes(t *testing.T) {
	q := framequeue.New()

	q.PushLowPrio(method("basic.publish"), nil)
	q.PushLowPrio(header(5), nil)
	q.PushLowPrio(body("hello"), nil)
	q.Push(1, method("queue.declare"), nil, nil)
	q.Retry(method("retry-me"), nil)

	of, ok := q.Pop(true)
	require.True(t, ok)
	assert.Equal(t, "retry-me", of.Frame.Method.Name())

	of, ok = q.Pop(true)
	require.True(t, ok)
	assert.Equal(t, "queue.declare", of.Frame.Method.Name())

	of, ok = q.Pop(true)
	require.True(t, ok)
	assert.Equal(t, "basic.publish", of.Frame.Method.Name())

	of, ok = q.Pop(true)
	require.True(t, ok)
	assert.Equal(t, wire.FrameHeader, of.Frame.Type)

	of, ok = q.Pop(true)
	require.True(t, ok)
	assert.Equal(t, wire.FrameBody, of.Frame.Type)

	_, ok = q.Pop(true)
	assert.False(t, ok)
}

func TestPopStallsLowPrioWhenFlowDisabled(t *testing.T) {
	q := framequeue.New()
	q.PushLowPrio(method("basic.publish"), nil)
	q.Push(1, method("channel.flow-ok"), nil, nil)

	of, ok := q.Pop(false)
	require.True(t, ok)
	assert.Equal(t, "channel.flow-ok", of.Frame.Method.Name())

	_, ok = q.Pop(false)
	assert.False(t, ok, "low-prio lane must stall while flow is disabled")

	of, ok = q.Pop(true)
	require.True(t, ok)
	assert.Equal(t, "basic.publish", of.Frame.Method.Name())
}

func TestPushFramesResolvesOnLastFrameOnly(t *testing.T) {
	q := framequeue.New()
	p := q.PushFrames([]wire.Frame{method("basic.publish"), header(5), body("hello")})

	assert.False(t, p.Resolved())

	of, ok := q.Pop(true)
	require.True(t, ok)
	assert.Nil(t, of.Resolver)

	of, ok = q.Pop(true)
	require.True(t, ok)
	assert.Nil(t, of.Resolver)

	of, ok = q.Pop(true)
	require.True(t, ok)
	require.NotNil(t, of.Resolver)
	of.Resolver.Resolve(struct{}{})

	assert.True(t, p.Resolved())
}

func TestPushFramesEmptyBatchResolvesImmediately(t *testing.T) {
	q := framequeue.New()
	p := q.PushFrames(nil)
	assert.True(t, p.Resolved())
}

func TestDropPendingFailsResolversAndCancelsExpectedReplies(t *testing.T) {
	q := framequeue.New()
	_, resolver := promise.New[struct{}]()
	q.Push(1, method("queue.declare"), resolver, nil)

	cancelled := false
	q.PushExpected(1, framequeue.ExpectedReply{
		Reply: "QueueDeclareOk",
		Cancel: func(error) { cancelled = true },
	})

	q.DropPending(assert.AnError)

	assert.True(t, cancelled)
	_, ok := q.Pop(true)
	assert.False(t, ok)
}

func TestNextExpectedReplyIsFIFO(t *testing.T) {
	q := framequeue.New()
	q.PushExpected(1, framequeue.ExpectedReply{Reply: "first"})
	q.PushExpected(1, framequeue.ExpectedReply{Reply: "second"})

	first, ok := q.NextExpectedReply(1)
	require.True(t, ok)
	assert.Equal(t, "first", first.Reply)

	second, ok := q.NextExpectedReply(1)
	require.True(t, ok)
	assert.Equal(t, "second", second.Reply)

	_, ok = q.NextExpectedReply(1)
	assert.False(t, ok)
}
