package consumer_test

import (
	"context"
	"testing"
	"time"

	"github.com/emulator000/amqpcore/consumer"
	"github.com/emulator000/amqpcore/runtime"
	"github.com/emulator000/amqpcore/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopAcker struct{}

func (noopAcker) Ack(uint64, bool) error          { return nil }
func (noopAcker) Nack(uint64, bool, bool) error   { return nil }
func (noopAcker) Reject(uint64, bool) error       { return nil }

func newTestConsumer() *consumer.Consumer {
	return consumer.New("ctag", noopAcker{}, runtime.NewGoExecutor(0), nil)
}

func TestConsumerAssemblesDeliveryAndPublishes(t *testing.T) {
	c := newTestConsumer()

	d := wire.NewDelivery("ctag", 1, false, "", "q")
	d.SetBodySize(5)
	c.StartNewDelivery(d)
	c.SetProperties(wire.BasicProperties{ContentType: "text/plain"})
	c.ReceiveContent([]byte("hello"))
	require.True(t, c.CurrentDelivery().Complete())
	c.NewDeliveryComplete()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, ok := c.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "hello", string(result.Delivery.Body))
	assert.EqualValues(t, 1, result.Delivery.DeliveryTag)
	assert.Equal(t, "text/plain", result.Delivery.Properties.ContentType)
}

func TestConsumerCancelWakesBlockedReader(t *testing.T) {
	c := newTestConsumer()
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, ok := c.Next(ctx)
	require.True(t, ok)
	assert.True(t, result.IsCancel())
}

func TestConsumerSetErrorThenCancel(t *testing.T) {
	c := newTestConsumer()
	boom := assert.AnError
	c.SetError(boom)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, ok := c.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, boom, first.Err)

	second, ok := c.Next(ctx)
	require.True(t, ok)
	assert.True(t, second.IsCancel())
}

func TestConsumerDelegateFlushesQueuedDeliveries(t *testing.T) {
	c := newTestConsumer()

	for i := 0; i < 3; i++ {
		d := wire.NewDelivery("ctag", uint64(i+1), false, "", "q")
		d.SetBodySize(0)
		c.StartNewDelivery(d)
		c.NewDeliveryComplete()
	}

	received := make(chan consumer.Result, 3)
	c.SetDelegate(consumer.DelegateFunc(func(r consumer.Result) {
		received <- r
	}))

	for i := 0; i < 3; i++ {
		select {
		case r := <-received:
			assert.EqualValues(t, i+1, r.Delivery.DeliveryTag)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for flushed delivery")
		}
	}
}

func TestConsumerDelegateRacingWithDeliveryNeverDrops(t *testing.T) {
	for i := 0; i < 50; i++ {
		c := newTestConsumer()
		d := wire.NewDelivery("ctag", 1, false, "", "q")
		d.SetBodySize(0)
		c.StartNewDelivery(d)

		received := make(chan consumer.Result, 1)
		done := make(chan struct{})
		go func() {
			c.NewDeliveryComplete()
			close(done)
		}()
		c.SetDelegate(consumer.DelegateFunc(func(r consumer.Result) {
			received <- r
		}))
		<-done

		select {
		case r := <-received:
			assert.EqualValues(t, 1, r.Delivery.DeliveryTag)
		case <-time.After(time.Second):
			t.Fatal("delivery racing with SetDelegate was dropped")
		}
	}
}

func TestConsumerDropPrefetchedMessagesDrains(t *testing.T) {
	c := newTestConsumer()
	d := wire.NewDelivery("ctag", 1, false, "", "q")
	d.SetBodySize(0)
	c.StartNewDelivery(d)
	c.NewDeliveryComplete()

	// Give the relay goroutine a moment to make the delivery visible.
	time.Sleep(10 * time.Millisecond)
	c.DropPrefetchedMessages()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := c.Next(ctx)
	assert.False(t, ok, "queue should have been drained")
}
