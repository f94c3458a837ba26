package channel_test

import (
	"context"
	"testing"
	"time"

	"github.com/emulator000/amqpcore/channel"
	"github.com/emulator000/amqpcore/framequeue"
	"github.com/emulator000/amqpcore/ids"
	"github.com/emulator000/amqpcore/promise"
	"github.com/emulator000/amqpcore/runtime"
	"github.com/emulator000/amqpcore/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChannel() (*channel.Channel, *framequeue.Queue) {
	q := framequeue.New()
	ch := channel.New(1, q, ids.NewRequestIDAllocator(), runtime.NewGoExecutor(0), 131072, nil, nil)
	return ch, q
}

func openChannel(t *testing.T, ch *channel.Channel, q *framequeue.Queue) {
	t.Helper()
	p, err := ch.Open()
	require.NoError(t, err)

	of, ok := q.Pop(true)
	require.True(t, ok)
	require.Equal(t, wire.FrameMethod, of.Frame.Type)

	require.NoError(t, ch.HandleMethod(wire.NewChannelOpenOk()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, channel.Connected, ch.State())
}

func TestChannelOpenTransitionsToConnected(t *testing.T) {
	ch, q := newTestChannel()
	assert.Equal(t, channel.Initial, ch.State())
	openChannel(t, ch, q)
}

func TestQueueDeclareRoundTrip(t *testing.T) {
	ch, q := newTestChannel()
	openChannel(t, ch, q)

	p, err := ch.QueueDeclare("orders", channel.QueueDeclareOptions{Durable: true})
	require.NoError(t, err)

	of, ok := q.Pop(true)
	require.True(t, ok)
	decl, ok := of.Frame.Method.(*wire.QueueDeclare)
	require.True(t, ok)
	assert.Equal(t, "orders", decl.Queue)

	require.NoError(t, ch.HandleMethod(wire.NewQueueDeclareOk("orders", 3, 1)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok2, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, ok2.MessageCount)
	assert.EqualValues(t, 1, ok2.ConsumerCount)
}

func TestBasicConsumeThenDeliverAssemblesMessage(t *testing.T) {
	ch, q := newTestChannel()
	openChannel(t, ch, q)

	p, err := ch.BasicConsume("orders", "ctag-1", channel.BasicConsumeOptions{})
	require.NoError(t, err)
	_, ok := q.Pop(true)
	require.True(t, ok)

	require.NoError(t, ch.HandleMethod(wire.NewBasicConsumeOk("ctag-1")))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = p.Wait(ctx)
	require.NoError(t, err)

	cons, ok := ch.Consumer("ctag-1")
	require.True(t, ok)

	require.NoError(t, ch.HandleMethod(wire.NewBasicDeliver("ctag-1", 42, false, "orders-exchange", "orders.new")))
	assert.Equal(t, channel.WillReceiveContent, ch.State())

	require.NoError(t, ch.HandleContentHeader(5, wire.BasicProperties{ContentType: "text/plain"}))
	assert.Equal(t, channel.ReceivingContent, ch.State())

	require.NoError(t, ch.HandleContentBody([]byte("hello")))
	assert.Equal(t, channel.Connected, ch.State())

	result, ok := cons.Next(ctx)
	require.True(t, ok)
	require.NoError(t, result.Err)
	assert.Equal(t, "hello", string(result.Delivery.Body))
	assert.EqualValues(t, 42, result.Delivery.DeliveryTag)
}

func TestUnexpectedAnswerIsChannelFatal(t *testing.T) {
	ch, q := newTestChannel()
	openChannel(t, ch, q)

	_, err := ch.QueueDeclare("orders", channel.QueueDeclareOptions{})
	require.NoError(t, err)
	_, ok := q.Pop(true)
	require.True(t, ok)

	err = ch.HandleMethod(wire.NewBasicCancelOk("no-such-tag"))
	require.Error(t, err)
	assert.Equal(t, channel.Error, ch.State())
}

func TestServerInitiatedCloseDrainsAwaitingAndCancelsConsumers(t *testing.T) {
	ch, q := newTestChannel()
	openChannel(t, ch, q)

	consumeP, err := ch.BasicConsume("orders", "ctag-1", channel.BasicConsumeOptions{})
	require.NoError(t, err)
	_, ok := q.Pop(true)
	require.True(t, ok)
	require.NoError(t, ch.HandleMethod(wire.NewBasicConsumeOk("ctag-1")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = consumeP.Wait(ctx)
	require.NoError(t, err)
	cons, ok := ch.Consumer("ctag-1")
	require.True(t, ok)

	declareP, err := ch.QueueDeclare("orders", channel.QueueDeclareOptions{})
	require.NoError(t, err)
	_, ok = q.Pop(true)
	require.True(t, ok)

	require.NoError(t, ch.HandleMethod(wire.NewChannelClose(404, "NOT_FOUND - no such queue", wire.ClassQueue, 10)))
	assert.Equal(t, channel.Closed, ch.State())

	_, err = declareP.Wait(ctx)
	assert.Error(t, err)

	result, ok := cons.Next(ctx)
	require.True(t, ok)
	assert.Error(t, result.Err)

	of, ok := q.Pop(true)
	require.True(t, ok)
	_, ok = of.Frame.Method.(*wire.ChannelCloseOk)
	assert.True(t, ok)
}

func TestBasicGetEmptyResolvesNil(t *testing.T) {
	ch, q := newTestChannel()
	openChannel(t, ch, q)

	p, err := ch.BasicGet("orders", true)
	require.NoError(t, err)
	_, ok := q.Pop(true)
	require.True(t, ok)

	require.NoError(t, ch.HandleMethod(wire.NewBasicGetEmpty()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestBasicGetOkAssemblesDelivery(t *testing.T) {
	ch, q := newTestChannel()
	openChannel(t, ch, q)

	p, err := ch.BasicGet("orders", true)
	require.NoError(t, err)
	_, ok := q.Pop(true)
	require.True(t, ok)

	require.NoError(t, ch.HandleMethod(wire.NewBasicGetOk(7, false, "", "orders", 0)))
	require.NoError(t, ch.HandleContentHeader(3, wire.BasicProperties{}))
	require.NoError(t, ch.HandleContentBody([]byte("abc")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := p.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "abc", string(d.Body))
	assert.EqualValues(t, 7, d.DeliveryTag)
}

func TestBasicPublishEnqueuesMethodHeaderAndBodyAsOneRun(t *testing.T) {
	ch, q := newTestChannel()
	openChannel(t, ch, q)

	p, err := ch.BasicPublish("ex", "rk", []byte("payload"), wire.BasicProperties{}, channel.BasicPublishOptions{})
	require.NoError(t, err)

	of, ok := q.Pop(true)
	require.True(t, ok)
	_, isMethod := of.Frame.Method.(*wire.BasicPublish)
	assert.True(t, isMethod)

	of, ok = q.Pop(true)
	require.True(t, ok)
	assert.True(t, of.Frame.IsHeader())

	of, ok = q.Pop(true)
	require.True(t, ok)
	assert.True(t, of.Frame.IsBody())
	assert.Equal(t, "payload", string(of.Frame.Payload))

	// Simulate the I/O loop resolving the batch's Promise once the last
	// frame has been written (spec section 4.3, push_frames contract).
	require.NotNil(t, of.Resolver)
	of.Resolver.Resolve(struct{}{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = p.Wait(ctx)
	require.NoError(t, err)
}

func TestBasicPublishStallsUntilChannelFlowResumes(t *testing.T) {
	ch, q := newTestChannel()
	openChannel(t, ch, q)

	require.NoError(t, ch.HandleMethod(wire.NewChannelFlow(false)))
	of, ok := q.Pop(true)
	require.True(t, ok)
	_, isFlowOk := of.Frame.Method.(*wire.ChannelFlowOk)
	assert.True(t, isFlowOk)

	publishDone := make(chan *promise.Promise[struct{}], 1)
	go func() {
		p, err := ch.BasicPublish("ex", "rk", []byte("payload"), wire.BasicProperties{}, channel.BasicPublishOptions{})
		require.NoError(t, err)
		publishDone <- p
	}()

	// basic.publish must not reach the scheduler while flow is paused.
	time.Sleep(20 * time.Millisecond)
	select {
	case <-publishDone:
		t.Fatal("BasicPublish returned while channel.flow was paused")
	default:
	}

	require.NoError(t, ch.HandleMethod(wire.NewChannelFlow(true)))

	var p *promise.Promise[struct{}]
	select {
	case p = <-publishDone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stalled publish to resume")
	}

	sawPublish := false
	for i := 0; i < 4; i++ {
		of, ok := q.Pop(true)
		if !ok {
			break
		}
		if _, isMethod := of.Frame.Method.(*wire.BasicPublish); isMethod {
			sawPublish = true
		}
		if of.Resolver != nil {
			of.Resolver.Resolve(struct{}{})
		}
	}
	assert.True(t, sawPublish, "expected the stalled basic.publish to reach the scheduler after flow resumed")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := p.Wait(ctx)
	require.NoError(t, err)
}

func TestBasicReturnRoutesToReturnHandler(t *testing.T) {
	ch, q := newTestChannel()
	openChannel(t, ch, q)

	received := make(chan wire.Return, 1)
	ch.SetReturnHandler(func(r wire.Return) { received <- r })

	require.NoError(t, ch.HandleMethod(wire.NewBasicReturn(312, "NO_ROUTE", "ex", "rk")))
	require.NoError(t, ch.HandleContentHeader(2, wire.BasicProperties{}))
	require.NoError(t, ch.HandleContentBody([]byte("hi")))

	select {
	case r := <-received:
		assert.Equal(t, "hi", string(r.Body))
		assert.EqualValues(t, 312, r.ReplyCode)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for return handler")
	}
	assert.Equal(t, channel.Connected, ch.State())
}
