// Package consumer implements message assembly and delivery distribution
// (spec section 4.5 / C6): a Consumer owns an in-progress Delivery plus a
// FIFO of completed ones, and hands them to whichever subscriber mode the
// caller picked — pull iterator, push channel, or spawned delegate.
// Grounded on original_source/src/consumer.rs's ConsumerInner
// (current_message, deliveries_in/out, optional delegate, optional waker),
// re-expressed with Go's native channel as the MPSC primitive instead of a
// bespoke waker, and on the teacher's consumer/qos pairing referenced from
// server/channel.go's addConsumer/decQosAndConsumerNext.
package consumer

import (
	"context"
	"sync"

	"github.com/emulator000/amqpcore/runtime"
	"github.com/emulator000/amqpcore/wire"
	"github.com/sirupsen/logrus"
)

// Acker is the minimal capability a Consumer needs from its owning channel
// to let a subscriber acknowledge a Delivery, accepted as an interface per
// the design notes' "never materialize a back-pointer" guidance (spec
// section 9) instead of importing the channel package directly.
type Acker interface {
	Ack(deliveryTag uint64, multiple bool) error
	Nack(deliveryTag uint64, multiple, requeue bool) error
	Reject(deliveryTag uint64, requeue bool) error
}

// Result is what a Consumer publishes to its subscribers: a successful
// delivery paired with the Acker needed to settle it, a cancellation
// sentinel (Delivery == nil, Err == nil), or a terminal error.
type Result struct {
	Channel  Acker
	Delivery *wire.Delivery
	Err      error
}

// IsCancel reports whether this Result is the cancellation sentinel.
func (r Result) IsCancel() bool {
	return r.Delivery == nil && r.Err == nil
}

// Delegate is a push-style subscriber, spawned on the Executor for each new
// delivery; Results already queued when it is installed are handed to it
// in order on the relay goroutine instead (mirrors
// original_source/src/consumer.rs's ConsumerDelegate trait).
type Delegate interface {
	OnNewDelivery(Result)
	DropPrefetchedMessages()
}

// DelegateFunc adapts a plain func(Result) into a Delegate with a no-op
// DropPrefetchedMessages, for callers that don't care about the prefetch
// drain notification.
type DelegateFunc func(Result)

func (f DelegateFunc) OnNewDelivery(r Result)  { f(r) }
func (f DelegateFunc) DropPrefetchedMessages() {}

// Consumer assembles and distributes deliveries for one basic.consume
// subscription. The MPSC channel promised by spec section 4.5 is an
// internally-pumped unbounded queue (the relay goroutine started by New)
// so that publishing a delivery from the channel's content-assembly path
// never blocks on a slow or absent subscriber. Both SetDelegate and every
// Result (deliveries, cancellation, terminal errors) funnel through that
// single goroutine, so there is one place — not two racing ones — that
// decides whether a given Result goes to a delegate or waits for a puller;
// whichever of "delegate installed" or "Result produced" happens first is
// simply whichever the relay's select picks up first.
type Consumer struct {
	tag      string
	acker    Acker
	executor runtime.Executor
	logger   *logrus.Entry

	in            chan Result
	out           chan Result
	setDelegateCh chan Delegate
	dropCh        chan struct{}

	mu        sync.Mutex
	current   *wire.Delivery
	cancelled bool
}

// New builds a Consumer for consumerTag, delivering to acker-settleable
// subscribers and dispatching delegates through executor.
func New(tag string, acker Acker, executor runtime.Executor, logger *logrus.Entry) *Consumer {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Consumer{
		tag:           tag,
		acker:         acker,
		executor:      executor,
		logger:        logger.WithField("consumerTag", tag),
		in:            make(chan Result),
		out:           make(chan Result),
		setDelegateCh: make(chan Delegate),
		dropCh:        make(chan struct{}),
	}
	go c.relay()
	return c
}

// relay is the sole owner of delegate and pending: every Result produced by
// publish()/Cancel()/SetError() and every SetDelegate call passes through
// here, so installing a delegate can never miss a Result that was produced
// concurrently (spec section 4.5's hand-off guarantee).
func (c *Consumer) relay() {
	defer close(c.out)
	var delegate Delegate
	var pending []Result
	for {
		if delegate != nil {
			select {
			case r, ok := <-c.in:
				if !ok {
					return
				}
				c.dispatch(delegate, r)
			case d := <-c.setDelegateCh:
				delegate = d
			case <-c.dropCh:
				c.executor.Spawn(delegate.DropPrefetchedMessages)
			}
			continue
		}

		if len(pending) == 0 {
			select {
			case r, ok := <-c.in:
				if !ok {
					return
				}
				pending = append(pending, r)
			case d := <-c.setDelegateCh:
				delegate = d
			case <-c.dropCh:
			}
			continue
		}

		select {
		case r, ok := <-c.in:
			if !ok {
				for _, p := range pending {
					c.out <- p
				}
				return
			}
			pending = append(pending, r)
		case c.out <- pending[0]:
			pending = pending[1:]
		case d := <-c.setDelegateCh:
			delegate = d
			// Flush on this goroutine, in order, before any later Result
			// is dispatched.
			for _, p := range pending {
				delegate.OnNewDelivery(p)
			}
			pending = nil
		case <-c.dropCh:
			pending = nil
		}
	}
}

func (c *Consumer) dispatch(delegate Delegate, r Result) {
	c.executor.Spawn(func() { delegate.OnNewDelivery(r) })
}

// Tag returns the consumer tag (server- or client-assigned).
func (c *Consumer) Tag() string {
	return c.tag
}

// StartNewDelivery begins assembling a new Delivery, entering the
// WillReceiveContent/ReceivingContent transient states described in spec
// section 3 (owned by the Channel; this just records the in-progress
// message).
func (c *Consumer) StartNewDelivery(d *wire.Delivery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = d
}

// SetProperties attaches the content header's properties to the
// in-progress delivery.
func (c *Consumer) SetProperties(props wire.BasicProperties) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Properties = props
	}
}

// ReceiveContent appends one content-body frame's payload to the
// in-progress delivery.
func (c *Consumer) ReceiveContent(chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.ReceiveContent(chunk)
	}
}

// CurrentDelivery exposes the in-progress delivery so the channel state
// machine can check Remaining()/Complete() without duplicating the body
// byte count.
func (c *Consumer) CurrentDelivery() *wire.Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewDeliveryComplete takes the assembled delivery and publishes it to
// whichever subscriber mode is active.
func (c *Consumer) NewDeliveryComplete() {
	c.mu.Lock()
	d := c.current
	c.current = nil
	c.mu.Unlock()

	if d == nil {
		return
	}
	c.publish(Result{Channel: c.acker, Delivery: d})
}

func (c *Consumer) publish(r Result) {
	c.in <- r
}

// SetDelegate installs a push-style handler. Any deliveries already queued
// or racing with this call are routed to it by the relay goroutine, so
// hand-off never drops a message (spec section 4.5).
func (c *Consumer) SetDelegate(d Delegate) {
	c.setDelegateCh <- d
}

// Next pulls the next Result, blocking until one is available or ctx is
// done — the iterator/stream subscriber mode.
func (c *Consumer) Next(ctx context.Context) (Result, bool) {
	select {
	case r, ok := <-c.out:
		return r, ok
	case <-ctx.Done():
		return Result{}, false
	}
}

// C exposes the raw delivery channel for callers that prefer `for r :=
// range consumer.C()` over Next.
func (c *Consumer) C() <-chan Result {
	return c.out
}

// Cancel sends the cancellation sentinel through the same path a real
// delivery would take, waking any blocked subscriber (spec section 5,
// Cancellation).
func (c *Consumer) Cancel() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	c.mu.Unlock()

	c.publish(Result{})
}

// SetError publishes a terminal error then cancels.
func (c *Consumer) SetError(err error) {
	c.publish(Result{Err: err})
	c.Cancel()
}

// DropPrefetchedMessages discards whatever the relay is still holding for
// delivery without delivering it (spec section 4.5, used by seed scenario
// 6), notifying the installed delegate (if any) through the same relay
// goroutine that owns it, so this can never race SetDelegate the way the
// caller reading c.out directly would.
func (c *Consumer) DropPrefetchedMessages() {
	c.dropCh <- struct{}{}
}
