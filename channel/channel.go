// Package channel implements the per-channel state machine (spec section
// 4.2 / C4): one operation per synchronous AMQP method, reply routing
// against a per-channel awaiting queue borrowed from the frame scheduler,
// and inbound/outbound content-transfer assembly. Grounded on the
// teacher's server/channel.go handleMethod/handleContentHeader/
// handleContentBody/sendError trio, re-purposed for the client side: the
// teacher applies a decoded method to in-memory broker state, this applies
// a decoded reply to an Answer awaiting a caller's Promise.
package channel

import (
	"fmt"
	"sync"

	"github.com/emulator000/amqpcore/amqperr"
	"github.com/emulator000/amqpcore/consumer"
	"github.com/emulator000/amqpcore/framequeue"
	"github.com/emulator000/amqpcore/ids"
	"github.com/emulator000/amqpcore/promise"
	"github.com/emulator000/amqpcore/queue"
	"github.com/emulator000/amqpcore/runtime"
	"github.com/emulator000/amqpcore/wire"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

// QueueDeclareOptions mirrors the queue.declare flags the original lapin
// API exposes as a single options struct (original_source/async/src/api.rs)
// rather than a long positional argument list.
type QueueDeclareOptions struct {
	Passive, Durable, Exclusive, AutoDelete, NoWait bool
	Arguments                                       wire.Table
}

// BasicConsumeOptions mirrors basic.consume's flags.
type BasicConsumeOptions struct {
	NoLocal, NoAck, Exclusive, NoWait bool
	Arguments                         wire.Table
}

// BasicPublishOptions mirrors basic.publish's flags.
type BasicPublishOptions struct {
	Mandatory, Immediate bool
}

// ExchangeDeclareOptions mirrors exchange.declare's flags.
type ExchangeDeclareOptions struct {
	Passive, Durable, AutoDelete, Internal, NoWait bool
	Arguments                                      wire.Table
}

type pendingKind int

const (
	pendingDeliver pendingKind = iota
	pendingGet
	pendingReturn
)

// pendingContent tracks an in-progress inbound content transfer (spec
// section 4.2, "Content transfer (inbound)"), one of three origins: a
// basic.deliver routed to a Consumer, a basic.get-ok resolving a pending
// BasicGet promise, or a basic.return routed to the return handler.
type pendingContent struct {
	kind       pendingKind
	consumer   *consumer.Consumer
	delivery   *wire.Delivery
	getResolve *promise.Resolver[*wire.Delivery]
	returnMeta *wire.BasicReturn
}

// Channel is one multiplexed AMQP session (spec section 3, "Channel").
type Channel struct {
	mu sync.Mutex

	id       uint16
	state    State
	closeErr error

	sendFlow     bool
	sendFlowCond *sync.Cond
	receiveFlow  bool

	prefetchSize   uint32
	prefetchCount  uint16
	applyGlobalQos func(size uint32, count uint16)

	confirmMode      bool
	txMode           bool
	nextPublishSeqNo uint64

	frameMax uint32

	queues    map[string]*queue.Queue
	consumers map[string]*consumer.Consumer

	returnHandler  func(wire.Return)
	confirmHandler func(ack bool, deliveryTag uint64, multiple bool)

	pending *pendingContent

	frames   *framequeue.Queue
	reqIDs   *ids.RequestIDAllocator
	executor runtime.Executor
	logger   *logrus.Entry
}

// New builds a Channel bound to id, sharing the connection's frame queue,
// request-id allocator and executor. applyGlobalQos lets basic.qos(global =
// true) write connection-level prefetch without this package importing the
// connection package (spec section 9, "never materialize a back-pointer").
func New(id uint16, frames *framequeue.Queue, reqIDs *ids.RequestIDAllocator, executor runtime.Executor, frameMax uint32, applyGlobalQos func(uint32, uint16), logger *logrus.Entry) *Channel {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	ch := &Channel{
		id:             id,
		state:          Initial,
		sendFlow:       true,
		receiveFlow:    true,
		frameMax:       frameMax,
		applyGlobalQos: applyGlobalQos,
		queues:         make(map[string]*queue.Queue),
		consumers:      make(map[string]*consumer.Consumer),
		frames:         frames,
		reqIDs:         reqIDs,
		executor:       executor,
		logger:         logger.WithField("channel", id),
	}
	ch.sendFlowCond = sync.NewCond(&ch.mu)
	return ch
}

// ID returns this channel's id.
func (ch *Channel) ID() uint16 { return ch.id }

// State returns the current lifecycle state.
func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// CloseError returns the reason this channel moved to Closed or Error, if
// any.
func (ch *Channel) CloseError() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closeErr
}

// SetReturnHandler installs the callback invoked for every broker
// basic.return (spec section 4.2, supplemented per SPEC_FULL section 9).
func (ch *Channel) SetReturnHandler(h func(wire.Return)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.returnHandler = h
}

// SetPublisherConfirmHandler installs the callback invoked for every
// basic.ack/basic.nack received once confirm.select is active.
func (ch *Channel) SetPublisherConfirmHandler(h func(ack bool, deliveryTag uint64, multiple bool)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.confirmHandler = h
}

// Consumer returns the named consumer registered on this channel, if any.
func (ch *Channel) Consumer(tag string) (*consumer.Consumer, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	c, ok := ch.consumers[tag]
	return c, ok
}

// checkStateLocked enforces spec section 4.2 step 2: every synchronous
// operation requires Connected, except channel.open which requires
// Initial. Violations are channel-fatal (spec section 7).
func (ch *Channel) checkStateLocked(m wire.Method) error {
	if m.ClassIdentifier() == wire.ClassChannel && m.MethodIdentifier() == 10 {
		if ch.state != Initial {
			ch.state = Error
			return amqperr.New(amqperr.InvalidState, fmt.Sprintf("channel.open requires Initial state, channel %d is %s", ch.id, ch.state))
		}
		return nil
	}
	if ch.state != Connected {
		ch.state = Error
		return amqperr.New(amqperr.InvalidState, fmt.Sprintf("%s requires Connected state, channel %d is %s", m.Name(), ch.id, ch.state))
	}
	return nil
}

func (ch *Channel) sendAsync(m wire.Method) {
	ch.frames.Push(ch.id, wire.Frame{Type: wire.FrameMethod, ChannelID: ch.id, Method: m}, nil, nil)
}

// enqueueSync is the shared shape behind every synchronous operation (spec
// section 4.2 steps 3-4): encode, enqueue with an expected reply, return a
// Promise. A free function rather than a method because Go methods cannot
// carry their own type parameters.
func enqueueSync[T any](ch *Channel, m wire.Method, mkAnswer func(reqID uint64, r *promise.Resolver[T]) Answer) (*promise.Promise[T], error) {
	ch.mu.Lock()
	if err := ch.checkStateLocked(m); err != nil {
		ch.mu.Unlock()
		return nil, err
	}
	ch.mu.Unlock()

	reqID := ch.reqIDs.Next()
	p, r := promise.New[T]()
	answer := mkAnswer(reqID, r)
	frame := wire.Frame{Type: wire.FrameMethod, ChannelID: ch.id, Method: m}
	ch.frames.Push(ch.id, frame, nil, &framequeue.ExpectedReply{
		Reply:  answer,
		Cancel: func(err error) { r.Fail(err) },
	})
	return p, nil
}

// Open sends channel.open.
func (ch *Channel) Open() (*promise.Promise[*wire.ChannelOpenOk], error) {
	return enqueueSync[*wire.ChannelOpenOk](ch, wire.NewChannelOpen(), func(reqID uint64, r *promise.Resolver[*wire.ChannelOpenOk]) Answer {
		return &AwaitingChannelOpenOk{reqID: reqID, resolver: r}
	})
}

// Close sends channel.close (spec section 4.2, "Close").
func (ch *Channel) Close(code uint16, text string) (*promise.Promise[*wire.ChannelCloseOk], error) {
	return enqueueSync[*wire.ChannelCloseOk](ch, wire.NewChannelClose(code, text, 0, 0), func(reqID uint64, r *promise.Resolver[*wire.ChannelCloseOk]) Answer {
		return &AwaitingChannelCloseOk{reqID: reqID, resolver: r}
	})
}

// Flow sends channel.flow.
func (ch *Channel) Flow(active bool) (*promise.Promise[*wire.ChannelFlowOk], error) {
	return enqueueSync[*wire.ChannelFlowOk](ch, wire.NewChannelFlow(active), func(reqID uint64, r *promise.Resolver[*wire.ChannelFlowOk]) Answer {
		return &AwaitingChannelFlowOk{reqID: reqID, resolver: r}
	})
}

// QueueDeclare sends queue.declare.
func (ch *Channel) QueueDeclare(name string, opts QueueDeclareOptions) (*promise.Promise[*wire.QueueDeclareOk], error) {
	m := wire.NewQueueDeclare(name, opts.Passive, opts.Durable, opts.Exclusive, opts.AutoDelete, opts.NoWait, opts.Arguments)
	return enqueueSync[*wire.QueueDeclareOk](ch, m, func(reqID uint64, r *promise.Resolver[*wire.QueueDeclareOk]) Answer {
		return &AwaitingQueueDeclareOk{reqID: reqID, queueName: name, durable: opts.Durable, exclusive: opts.Exclusive, autoDelete: opts.AutoDelete, resolver: r}
	})
}

// QueueBind sends queue.bind, recording the binding as pending until
// QueueBindOk arrives (spec section 4.2, reply routing).
func (ch *Channel) QueueBind(queueName, exchange, routingKey string, noWait bool, args wire.Table) (*promise.Promise[*wire.QueueBindOk], error) {
	ch.mu.Lock()
	if q, ok := ch.queues[queueName]; ok {
		q.Bind(exchange, routingKey)
	}
	ch.mu.Unlock()

	m := wire.NewQueueBind(queueName, exchange, routingKey, noWait, args)
	return enqueueSync[*wire.QueueBindOk](ch, m, func(reqID uint64, r *promise.Resolver[*wire.QueueBindOk]) Answer {
		return &AwaitingQueueBindOk{reqID: reqID, queue: queueName, exchange: exchange, routingKey: routingKey, resolver: r}
	})
}

// QueueUnbind sends queue.unbind.
func (ch *Channel) QueueUnbind(queueName, exchange, routingKey string, args wire.Table) (*promise.Promise[*wire.QueueUnbindOk], error) {
	m := wire.NewQueueUnbind(queueName, exchange, routingKey, args)
	return enqueueSync[*wire.QueueUnbindOk](ch, m, func(reqID uint64, r *promise.Resolver[*wire.QueueUnbindOk]) Answer {
		return &AwaitingQueueUnbindOk{reqID: reqID, queue: queueName, exchange: exchange, routingKey: routingKey, resolver: r}
	})
}

// QueuePurge sends queue.purge.
func (ch *Channel) QueuePurge(queueName string, noWait bool) (*promise.Promise[*wire.QueuePurgeOk], error) {
	m := wire.NewQueuePurge(queueName, noWait)
	return enqueueSync[*wire.QueuePurgeOk](ch, m, func(reqID uint64, r *promise.Resolver[*wire.QueuePurgeOk]) Answer {
		return &AwaitingQueuePurgeOk{reqID: reqID, resolver: r}
	})
}

// QueueDelete sends queue.delete.
func (ch *Channel) QueueDelete(queueName string, ifUnused, ifEmpty, noWait bool) (*promise.Promise[*wire.QueueDeleteOk], error) {
	m := wire.NewQueueDelete(queueName, ifUnused, ifEmpty, noWait)
	return enqueueSync[*wire.QueueDeleteOk](ch, m, func(reqID uint64, r *promise.Resolver[*wire.QueueDeleteOk]) Answer {
		return &AwaitingQueueDeleteOk{reqID: reqID, queue: queueName, resolver: r}
	})
}

// ExchangeDeclare sends exchange.declare (supplemented from
// original_source/async/src/api.rs; not named in spec.md's caller-API
// bullet list but present on every AMQP channel).
func (ch *Channel) ExchangeDeclare(name, kind string, opts ExchangeDeclareOptions) (*promise.Promise[*wire.ExchangeDeclareOk], error) {
	m := wire.NewExchangeDeclare(name, kind, opts.Passive, opts.Durable, opts.AutoDelete, opts.Internal, opts.NoWait, opts.Arguments)
	return enqueueSync[*wire.ExchangeDeclareOk](ch, m, func(reqID uint64, r *promise.Resolver[*wire.ExchangeDeclareOk]) Answer {
		return &AwaitingExchangeDeclareOk{reqID: reqID, resolver: r}
	})
}

// BasicQos sends basic.qos.
func (ch *Channel) BasicQos(prefetchSize uint32, prefetchCount uint16, global bool) (*promise.Promise[*wire.BasicQosOk], error) {
	m := wire.NewBasicQos(prefetchSize, prefetchCount, global)
	return enqueueSync[*wire.BasicQosOk](ch, m, func(reqID uint64, r *promise.Resolver[*wire.BasicQosOk]) Answer {
		return &AwaitingBasicQosOk{reqID: reqID, prefetchSize: prefetchSize, prefetchCount: prefetchCount, global: global, resolver: r}
	})
}

// BasicConsume sends basic.consume. Once the returned Promise resolves, the
// registered Consumer is available via Consumer(tag), keyed by the tag the
// basic.consume-ok reply carries. An empty tag is filled in client-side
// with a random UUID before basic.consume is sent; that generated tag is
// not returned to the caller.
func (ch *Channel) BasicConsume(queueName, tag string, opts BasicConsumeOptions) (*promise.Promise[*wire.BasicConsumeOk], error) {
	if tag == "" {
		tag = uuid.NewV4().String()
	}
	m := wire.NewBasicConsume(queueName, tag, opts.NoLocal, opts.NoAck, opts.Exclusive, opts.NoWait, opts.Arguments)
	return enqueueSync[*wire.BasicConsumeOk](ch, m, func(reqID uint64, r *promise.Resolver[*wire.BasicConsumeOk]) Answer {
		return &AwaitingBasicConsumeOk{reqID: reqID, queue: queueName, noAck: opts.NoAck, resolver: r}
	})
}

// BasicCancel sends basic.cancel.
func (ch *Channel) BasicCancel(tag string, noWait bool) (*promise.Promise[*wire.BasicCancelOk], error) {
	m := wire.NewBasicCancel(tag, noWait)
	return enqueueSync[*wire.BasicCancelOk](ch, m, func(reqID uint64, r *promise.Resolver[*wire.BasicCancelOk]) Answer {
		return &AwaitingBasicCancelOk{reqID: reqID, tag: tag, resolver: r}
	})
}

// BasicRecover sends basic.recover.
func (ch *Channel) BasicRecover(requeue bool) (*promise.Promise[*wire.BasicRecoverOk], error) {
	m := wire.NewBasicRecover(requeue)
	return enqueueSync[*wire.BasicRecoverOk](ch, m, func(reqID uint64, r *promise.Resolver[*wire.BasicRecoverOk]) Answer {
		return &AwaitingBasicRecoverOk{reqID: reqID, resolver: r}
	})
}

// BasicRecoverAsync sends basic.recover-async, the fire-and-forget sibling
// of BasicRecover (no reply expected).
func (ch *Channel) BasicRecoverAsync(requeue bool) error {
	m := wire.NewBasicRecoverAsync(requeue)
	ch.mu.Lock()
	if err := ch.checkStateLocked(m); err != nil {
		ch.mu.Unlock()
		return err
	}
	ch.mu.Unlock()
	ch.sendAsync(m)
	return nil
}

// ConfirmSelect sends confirm.select.
func (ch *Channel) ConfirmSelect(noWait bool) (*promise.Promise[*wire.ConfirmSelectOk], error) {
	m := wire.NewConfirmSelect(noWait)
	return enqueueSync[*wire.ConfirmSelectOk](ch, m, func(reqID uint64, r *promise.Resolver[*wire.ConfirmSelectOk]) Answer {
		return &AwaitingConfirmSelectOk{reqID: reqID, resolver: r}
	})
}

// TxSelect sends tx.select.
func (ch *Channel) TxSelect() (*promise.Promise[*wire.TxSelectOk], error) {
	return enqueueSync[*wire.TxSelectOk](ch, wire.NewTxSelect(), func(reqID uint64, r *promise.Resolver[*wire.TxSelectOk]) Answer {
		return &AwaitingTxSelectOk{reqID: reqID, resolver: r}
	})
}

// TxCommit sends tx.commit.
func (ch *Channel) TxCommit() (*promise.Promise[*wire.TxCommitOk], error) {
	return enqueueSync[*wire.TxCommitOk](ch, wire.NewTxCommit(), func(reqID uint64, r *promise.Resolver[*wire.TxCommitOk]) Answer {
		return &AwaitingTxCommitOk{reqID: reqID, resolver: r}
	})
}

// TxRollback sends tx.rollback.
func (ch *Channel) TxRollback() (*promise.Promise[*wire.TxRollbackOk], error) {
	return enqueueSync[*wire.TxRollbackOk](ch, wire.NewTxRollback(), func(reqID uint64, r *promise.Resolver[*wire.TxRollbackOk]) Answer {
		return &AwaitingTxRollbackOk{reqID: reqID, resolver: r}
	})
}

// BasicGet sends basic.get. A single expectation is satisfied by either
// basic.get-ok (followed by content) or basic.get-empty (spec section 9(c));
// the Promise resolves to nil when the queue was empty.
func (ch *Channel) BasicGet(queueName string, noAck bool) (*promise.Promise[*wire.Delivery], error) {
	m := wire.NewBasicGet(queueName, noAck)
	return enqueueSync[*wire.Delivery](ch, m, func(reqID uint64, r *promise.Resolver[*wire.Delivery]) Answer {
		return &AwaitingBasicGetAnswer{reqID: reqID, queue: queueName, noAck: noAck, resolver: r}
	})
}

// beginGet is invoked by AwaitingBasicGetAnswer.Apply, already holding ch.mu
// via handleSyncReply.
func (ch *Channel) beginGet(a *AwaitingBasicGetAnswer, ok *wire.BasicGetOk) {
	ch.state = WillReceiveContent
	ch.pending = &pendingContent{
		kind:       pendingGet,
		delivery:   wire.NewDelivery("", ok.DeliveryTag, ok.Redelivered, ok.Exchange, ok.RoutingKey),
		getResolve: a.resolver,
	}
}

// BasicPublish encodes a method + content-header + content-body batch and
// pushes it into the low-priority lane as a unit (spec section 4.2,
// "Content transfer (outbound)"). A broker-requested channel.flow(false)
// stalls this call until flow resumes (spec section 4.4, "a channel.flow
// (false) pauses that channel's outbound publishes"; section 7, "Local
// recovery only for channel.flow(false), stall not error") rather than
// enqueueing regardless or failing outright. While the frame batch is being
// built and handed to the frame queue, the channel sits in SendingContent,
// converging back to Connected once the batch is enqueued (spec section 3,
// ChannelState's transient states).
func (ch *Channel) BasicPublish(exchange, routingKey string, payload []byte, props wire.BasicProperties, opts BasicPublishOptions) (*promise.Promise[struct{}], error) {
	ch.mu.Lock()
	for ch.state == Connected && !ch.sendFlow {
		ch.sendFlowCond.Wait()
	}
	if ch.state != Connected {
		ch.state = Error
		ch.mu.Unlock()
		return nil, amqperr.New(amqperr.InvalidState, fmt.Sprintf("basic.publish requires Connected state, channel %d is %s", ch.id, ch.state))
	}
	frameMax := ch.frameMax
	if ch.confirmMode {
		ch.nextPublishSeqNo++
	}
	ch.state = SendingContent
	ch.mu.Unlock()

	m := wire.NewBasicPublish(exchange, routingKey, opts.Mandatory, opts.Immediate)
	frames := make([]wire.Frame, 0, 2+len(payload)/maxBodyChunk(frameMax)+1)
	frames = append(frames, wire.Frame{Type: wire.FrameMethod, ChannelID: ch.id, Method: m})
	frames = append(frames, wire.Frame{
		Type:       wire.FrameHeader,
		ChannelID:  ch.id,
		ClassID:    wire.ClassBasic,
		BodySize:   uint64(len(payload)),
		Properties: props,
	})

	chunk := maxBodyChunk(frameMax)
	for offset := 0; offset < len(payload); {
		end := offset + chunk
		if end > len(payload) {
			end = len(payload)
		}
		frames = append(frames, wire.Frame{Type: wire.FrameBody, ChannelID: ch.id, Payload: payload[offset:end]})
		offset = end
	}

	p := ch.frames.PushFrames(frames)

	ch.mu.Lock()
	if ch.state == SendingContent {
		ch.state = Connected
	}
	ch.mu.Unlock()

	return p, nil
}

// maxBodyChunk returns the largest content-body payload that fits within
// frameMax once the 7-byte frame header and 1-byte frame-end octet are
// accounted for (spec section 4.2: "body frames each <= frame_max - 8").
func maxBodyChunk(frameMax uint32) int {
	if frameMax == 0 {
		return 1 << 20
	}
	n := int(frameMax) - 8
	if n < 1 {
		n = 1
	}
	return n
}

// Ack implements consumer.Acker.
func (ch *Channel) Ack(deliveryTag uint64, multiple bool) error {
	return ch.sendAckLike(wire.NewBasicAck(deliveryTag, multiple))
}

// Nack implements consumer.Acker.
func (ch *Channel) Nack(deliveryTag uint64, multiple, requeue bool) error {
	return ch.sendAckLike(wire.NewBasicNack(deliveryTag, multiple, requeue))
}

// Reject implements consumer.Acker.
func (ch *Channel) Reject(deliveryTag uint64, requeue bool) error {
	return ch.sendAckLike(wire.NewBasicReject(deliveryTag, requeue))
}

func (ch *Channel) sendAckLike(m wire.Method) error {
	ch.mu.Lock()
	if ch.state != Connected {
		ch.mu.Unlock()
		return amqperr.New(amqperr.InvalidState, fmt.Sprintf("%s requires Connected state, channel %d is %s", m.Name(), ch.id, ch.state))
	}
	ch.mu.Unlock()
	ch.sendAsync(m)
	return nil
}

// HandleMethod dispatches one inbound method frame for this channel (spec
// section 4.2, "Reply routing (receive)" plus the asynchronous broker-
// initiated methods: basic.deliver, basic.return, basic.ack/nack,
// basic.cancel, channel.flow, channel.close).
func (ch *Channel) HandleMethod(m wire.Method) error {
	switch mm := m.(type) {
	case *wire.BasicDeliver:
		return ch.beginDeliver(mm)
	case *wire.BasicReturn:
		return ch.beginReturn(mm)
	case *wire.BasicAck:
		ch.handleConfirm(true, mm.DeliveryTag, mm.Multiple)
		return nil
	case *wire.BasicNack:
		ch.handleConfirm(false, mm.DeliveryTag, mm.Multiple)
		return nil
	case *wire.BasicCancel:
		return ch.handleServerCancel(mm)
	case *wire.ChannelFlow:
		return ch.handleServerFlow(mm)
	case *wire.ChannelClose:
		return ch.handleServerClose(mm)
	default:
		return ch.handleSyncReply(m)
	}
}

// handleSyncReply implements spec section 4.2's "Reply routing (receive)".
func (ch *Channel) handleSyncReply(m wire.Method) error {
	ch.mu.Lock()
	er, ok := ch.frames.NextExpectedReply(ch.id)
	if !ok {
		ch.state = Error
		ch.mu.Unlock()
		ch.logger.WithField("method", m.Name()).Warn("unexpected reply: no pending request")
		return amqperr.New(amqperr.UnexpectedAnswer, "unexpected reply "+m.Name()+": no pending request")
	}
	answer, ok := er.Reply.(Answer)
	if !ok || !answer.Matches(m) {
		ch.state = Error
		ch.mu.Unlock()
		err := amqperr.New(amqperr.UnexpectedAnswer, "unexpected reply "+m.Name())
		if ok {
			answer.Fail(err)
		}
		ch.logger.WithField("method", m.Name()).Warn("reply did not match expected variant")
		return err
	}
	answer.Apply(ch, m)
	ch.mu.Unlock()
	return nil
}

// beginDeliver implements the first bullet of "Content transfer (inbound)".
func (ch *Channel) beginDeliver(m *wire.BasicDeliver) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state != Connected {
		ch.state = Error
		return amqperr.New(amqperr.ProtocolUnexpectedFrame, "basic.deliver while channel is not connected")
	}
	cons, ok := ch.consumers[m.ConsumerTag]
	if !ok {
		ch.state = Error
		return amqperr.New(amqperr.ProtocolUnexpectedFrame, "basic.deliver for unknown consumer "+m.ConsumerTag)
	}
	cons.StartNewDelivery(wire.NewDelivery(m.ConsumerTag, m.DeliveryTag, m.Redelivered, m.Exchange, m.RoutingKey))
	ch.state = WillReceiveContent
	ch.pending = &pendingContent{kind: pendingDeliver, consumer: cons}
	return nil
}

// beginReturn implements spec section 4.2's "Basic.return": identical
// method+content shape to deliver, routed to the return handler instead of
// a consumer, without disturbing the awaiting queue.
func (ch *Channel) beginReturn(m *wire.BasicReturn) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state != Connected {
		ch.state = Error
		return amqperr.New(amqperr.ProtocolUnexpectedFrame, "basic.return while channel is not connected")
	}
	ch.state = WillReceiveContent
	ch.pending = &pendingContent{
		kind:       pendingReturn,
		delivery:   wire.NewDelivery("", 0, false, m.Exchange, m.RoutingKey),
		returnMeta: m,
	}
	return nil
}

// HandleContentHeader applies a content-header frame to the in-progress
// pending content (spec section 4.2).
func (ch *Channel) HandleContentHeader(bodySize uint64, props wire.BasicProperties) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state != WillReceiveContent || ch.pending == nil {
		ch.state = Error
		return amqperr.New(amqperr.ProtocolUnexpectedFrame, "content header outside a pending delivery")
	}

	switch ch.pending.kind {
	case pendingDeliver:
		ch.pending.consumer.SetProperties(props)
		ch.pending.consumer.CurrentDelivery().SetBodySize(bodySize)
	default:
		ch.pending.delivery.Properties = props
		ch.pending.delivery.SetBodySize(bodySize)
	}

	if bodySize == 0 {
		ch.completePendingLocked()
		return nil
	}
	ch.state = ReceivingContent
	return nil
}

// HandleContentBody applies one content-body frame to the in-progress
// pending content.
func (ch *Channel) HandleContentBody(payload []byte) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state != ReceivingContent || ch.pending == nil {
		ch.state = Error
		return amqperr.New(amqperr.ProtocolUnexpectedFrame, "content body outside a pending delivery")
	}

	var complete bool
	switch ch.pending.kind {
	case pendingDeliver:
		ch.pending.consumer.ReceiveContent(payload)
		complete = ch.pending.consumer.CurrentDelivery().Complete()
	default:
		ch.pending.delivery.ReceiveContent(payload)
		complete = ch.pending.delivery.Complete()
	}

	if complete {
		ch.completePendingLocked()
	}
	return nil
}

// completePendingLocked hands the assembled content to its destination and
// converges the channel back to Connected (spec section 4.2, called with
// ch.mu held).
func (ch *Channel) completePendingLocked() {
	p := ch.pending
	ch.pending = nil
	ch.state = Connected

	switch p.kind {
	case pendingDeliver:
		p.consumer.NewDeliveryComplete()
	case pendingGet:
		p.getResolve.Resolve(p.delivery)
	case pendingReturn:
		handler := ch.returnHandler
		if handler == nil {
			return
		}
		rm := wire.Return{
			ReplyCode:  p.returnMeta.ReplyCode,
			ReplyText:  p.returnMeta.ReplyText,
			Exchange:   p.returnMeta.Exchange,
			RoutingKey: p.returnMeta.RoutingKey,
			Properties: p.delivery.Properties,
			Body:       p.delivery.Body,
		}
		ch.executor.Spawn(func() { handler(rm) })
	}
}

func (ch *Channel) handleConfirm(ack bool, deliveryTag uint64, multiple bool) {
	ch.mu.Lock()
	handler := ch.confirmHandler
	ch.mu.Unlock()
	if handler != nil {
		ch.executor.Spawn(func() { handler(ack, deliveryTag, multiple) })
	}
}

// handleServerCancel handles a broker-initiated basic.cancel (e.g. the
// consumer's queue was deleted).
func (ch *Channel) handleServerCancel(m *wire.BasicCancel) error {
	ch.mu.Lock()
	cons, ok := ch.consumers[m.ConsumerTag]
	delete(ch.consumers, m.ConsumerTag)
	ch.mu.Unlock()

	if ok {
		cons.Cancel()
	}
	if !m.NoWait {
		ch.sendAsync(wire.NewBasicCancelOk(m.ConsumerTag))
	}
	return nil
}

// handleServerFlow handles a broker-initiated channel.flow, toggling
// whether this channel may emit low-priority (publish) frames (spec
// section 4.4, "Connection-level flow").
func (ch *Channel) handleServerFlow(m *wire.ChannelFlow) error {
	ch.mu.Lock()
	ch.sendFlow = m.Active
	ch.sendFlowCond.Broadcast()
	ch.mu.Unlock()
	ch.sendAsync(wire.NewChannelFlowOk(m.Active))
	return nil
}

// handleServerClose handles a broker-initiated channel.close: drains
// awaiting failing each Promise with the close reason, cancels every
// consumer, replies close-ok, and moves to Closed (spec section 4.2,
// "Close").
func (ch *Channel) handleServerClose(m *wire.ChannelClose) error {
	err := amqperr.Closed(amqperr.ChannelClosed, m.ReplyCode, m.ReplyText)

	ch.mu.Lock()
	ch.state = Closed
	ch.closeErr = err
	ch.sendFlowCond.Broadcast()
	conss := make([]*consumer.Consumer, 0, len(ch.consumers))
	for _, c := range ch.consumers {
		conss = append(conss, c)
	}
	ch.mu.Unlock()

	ch.frames.ClearExpectedReplies(ch.id, err)
	for _, c := range conss {
		c.SetError(err)
	}

	ch.logger.WithFields(logrus.Fields{"replyCode": m.ReplyCode, "replyText": m.ReplyText}).Info("channel closed by broker")
	ch.sendAsync(wire.NewChannelCloseOk())
	return nil
}

// Fail moves the channel to Error, failing every pending Promise and
// consumer with err. Used by the owning Connection when the whole
// connection goes down (spec section 7, "Connection-fatal").
func (ch *Channel) Fail(err error) {
	ch.mu.Lock()
	if ch.state == Closed || ch.state == Error {
		ch.mu.Unlock()
		return
	}
	ch.state = Error
	ch.closeErr = err
	ch.sendFlowCond.Broadcast()
	conss := make([]*consumer.Consumer, 0, len(ch.consumers))
	for _, c := range ch.consumers {
		conss = append(conss, c)
	}
	ch.mu.Unlock()

	ch.frames.ClearExpectedReplies(ch.id, err)
	for _, c := range conss {
		c.SetError(err)
	}
}

// getOrCreateQueue returns (creating if absent) the client-side record for
// name. Called only from Answer.Apply, which already holds ch.mu.
func (ch *Channel) getOrCreateQueue(name string) *queue.Queue {
	q, ok := ch.queues[name]
	if !ok {
		q = queue.New(name)
		ch.queues[name] = q
	}
	return q
}

func (ch *Channel) getQueue(name string) *queue.Queue {
	return ch.queues[name]
}

func (ch *Channel) removeQueue(name string) {
	delete(ch.queues, name)
}

// addConsumer registers a new Consumer for a successful basic.consume-ok.
// queueName/noAck are recorded by the caller's Answer, not here; this
// package's Consumer has no need of them once registered.
func (ch *Channel) addConsumer(tag, queueName string, noAck bool) *consumer.Consumer {
	c := consumer.New(tag, ch, ch.executor, ch.logger)
	ch.consumers[tag] = c
	return c
}

func (ch *Channel) removeConsumer(tag string) {
	if c, ok := ch.consumers[tag]; ok {
		c.Cancel()
		delete(ch.consumers, tag)
	}
}
