package channel

import (
	"github.com/emulator000/amqpcore/promise"
	"github.com/emulator000/amqpcore/wire"
)

// Answer is a tagged-variant stand-in (spec section 3): one concrete type
// per synchronous reply kind, each able to recognize its matching wire
// method, apply that reply's side effects to the owning Channel, and
// settle (or fail) the caller's Promise. Go has no closed sum type, so this
// plays the role of Rust's `enum Reply` through an interface plus one
// struct per variant, the same idiom the teacher uses for
// ClassIdentifier()/MethodIdentifier() dispatch (server/channel.go).
type Answer interface {
	// RequestID identifies the originating request. The channel keeps no
	// record of finished request-ids, so there is no lookup by it once the
	// reply has been applied.
	RequestID() uint64
	// Matches reports whether m is the exact reply variant this Answer is
	// waiting for.
	Matches(m wire.Method) bool
	// Apply applies m's side effects to ch and resolves the caller's
	// Promise. Only called after Matches(m) is true.
	Apply(ch *Channel, m wire.Method)
	// Fail settles the caller's Promise with err instead, used when the
	// channel or connection fails before a reply arrives.
	Fail(err error)
}

// AwaitingChannelOpenOk tracks an in-flight channel.open.
type AwaitingChannelOpenOk struct {
	reqID    uint64
	resolver *promise.Resolver[*wire.ChannelOpenOk]
}

func (a *AwaitingChannelOpenOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingChannelOpenOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.ChannelOpenOk)
	return ok
}
func (a *AwaitingChannelOpenOk) Apply(ch *Channel, m wire.Method) {
	ok := m.(*wire.ChannelOpenOk)
	ch.state = Connected
	a.resolver.Resolve(ok)
}
func (a *AwaitingChannelOpenOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingChannelCloseOk tracks a client-initiated channel.close.
type AwaitingChannelCloseOk struct {
	reqID    uint64
	resolver *promise.Resolver[*wire.ChannelCloseOk]
}

func (a *AwaitingChannelCloseOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingChannelCloseOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.ChannelCloseOk)
	return ok
}
func (a *AwaitingChannelCloseOk) Apply(ch *Channel, m wire.Method) {
	ok := m.(*wire.ChannelCloseOk)
	ch.state = Closed
	ch.sendFlowCond.Broadcast()
	a.resolver.Resolve(ok)
}
func (a *AwaitingChannelCloseOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingChannelFlowOk tracks channel.flow.
type AwaitingChannelFlowOk struct {
	reqID    uint64
	resolver *promise.Resolver[*wire.ChannelFlowOk]
}

func (a *AwaitingChannelFlowOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingChannelFlowOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.ChannelFlowOk)
	return ok
}
func (a *AwaitingChannelFlowOk) Apply(ch *Channel, m wire.Method) {
	ok := m.(*wire.ChannelFlowOk)
	ch.sendFlow = ok.Active
	ch.sendFlowCond.Broadcast()
	a.resolver.Resolve(ok)
}
func (a *AwaitingChannelFlowOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingQueueDeclareOk tracks queue.declare.
type AwaitingQueueDeclareOk struct {
	reqID     uint64
	queueName string
	durable   bool
	exclusive bool
	autoDelete bool
	resolver  *promise.Resolver[*wire.QueueDeclareOk]
}

func (a *AwaitingQueueDeclareOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingQueueDeclareOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.QueueDeclareOk)
	return ok
}
func (a *AwaitingQueueDeclareOk) Apply(ch *Channel, m wire.Method) {
	ok := m.(*wire.QueueDeclareOk)
	q := ch.getOrCreateQueue(ok.Queue)
	q.Durable, q.Exclusive, q.AutoDelete = a.durable, a.exclusive, a.autoDelete
	q.ApplyDeclareOk(ok.MessageCount, ok.ConsumerCount)
	a.resolver.Resolve(ok)
}
func (a *AwaitingQueueDeclareOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingQueueBindOk tracks queue.bind.
type AwaitingQueueBindOk struct {
	reqID                       uint64
	queue, exchange, routingKey string
	resolver                    *promise.Resolver[*wire.QueueBindOk]
}

func (a *AwaitingQueueBindOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingQueueBindOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.QueueBindOk)
	return ok
}
func (a *AwaitingQueueBindOk) Apply(ch *Channel, m wire.Method) {
	ok := m.(*wire.QueueBindOk)
	if q := ch.getQueue(a.queue); q != nil {
		q.ActivateBinding(a.exchange, a.routingKey)
	}
	a.resolver.Resolve(ok)
}
func (a *AwaitingQueueBindOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingQueueUnbindOk tracks queue.unbind.
type AwaitingQueueUnbindOk struct {
	reqID                       uint64
	queue, exchange, routingKey string
	resolver                    *promise.Resolver[*wire.QueueUnbindOk]
}

func (a *AwaitingQueueUnbindOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingQueueUnbindOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.QueueUnbindOk)
	return ok
}
func (a *AwaitingQueueUnbindOk) Apply(ch *Channel, m wire.Method) {
	ok := m.(*wire.QueueUnbindOk)
	if q := ch.getQueue(a.queue); q != nil {
		q.Unbind(a.exchange, a.routingKey)
	}
	a.resolver.Resolve(ok)
}
func (a *AwaitingQueueUnbindOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingQueuePurgeOk tracks queue.purge.
type AwaitingQueuePurgeOk struct {
	reqID    uint64
	resolver *promise.Resolver[*wire.QueuePurgeOk]
}

func (a *AwaitingQueuePurgeOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingQueuePurgeOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.QueuePurgeOk)
	return ok
}
func (a *AwaitingQueuePurgeOk) Apply(ch *Channel, m wire.Method) {
	a.resolver.Resolve(m.(*wire.QueuePurgeOk))
}
func (a *AwaitingQueuePurgeOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingQueueDeleteOk tracks queue.delete.
type AwaitingQueueDeleteOk struct {
	reqID    uint64
	queue    string
	resolver *promise.Resolver[*wire.QueueDeleteOk]
}

func (a *AwaitingQueueDeleteOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingQueueDeleteOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.QueueDeleteOk)
	return ok
}
func (a *AwaitingQueueDeleteOk) Apply(ch *Channel, m wire.Method) {
	ch.removeQueue(a.queue)
	a.resolver.Resolve(m.(*wire.QueueDeleteOk))
}
func (a *AwaitingQueueDeleteOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingExchangeDeclareOk tracks exchange.declare.
type AwaitingExchangeDeclareOk struct {
	reqID    uint64
	resolver *promise.Resolver[*wire.ExchangeDeclareOk]
}

func (a *AwaitingExchangeDeclareOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingExchangeDeclareOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.ExchangeDeclareOk)
	return ok
}
func (a *AwaitingExchangeDeclareOk) Apply(ch *Channel, m wire.Method) {
	a.resolver.Resolve(m.(*wire.ExchangeDeclareOk))
}
func (a *AwaitingExchangeDeclareOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingBasicQosOk tracks basic.qos; the requested values travel on the
// Answer itself since BasicQosOk carries none (spec section 3, Answer
// definition).
type AwaitingBasicQosOk struct {
	reqID                       uint64
	prefetchSize                uint32
	prefetchCount               uint16
	global                      bool
	resolver                    *promise.Resolver[*wire.BasicQosOk]
}

func (a *AwaitingBasicQosOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingBasicQosOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.BasicQosOk)
	return ok
}
func (a *AwaitingBasicQosOk) Apply(ch *Channel, m wire.Method) {
	ok := m.(*wire.BasicQosOk)
	if a.global && ch.applyGlobalQos != nil {
		ch.applyGlobalQos(a.prefetchSize, a.prefetchCount)
	} else {
		ch.prefetchSize = a.prefetchSize
		ch.prefetchCount = a.prefetchCount
	}
	a.resolver.Resolve(ok)
}
func (a *AwaitingBasicQosOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingBasicConsumeOk tracks basic.consume.
type AwaitingBasicConsumeOk struct {
	reqID    uint64
	queue    string
	noAck    bool
	resolver *promise.Resolver[*wire.BasicConsumeOk]
}

func (a *AwaitingBasicConsumeOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingBasicConsumeOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.BasicConsumeOk)
	return ok
}
func (a *AwaitingBasicConsumeOk) Apply(ch *Channel, m wire.Method) {
	ok := m.(*wire.BasicConsumeOk)
	ch.addConsumer(ok.ConsumerTag, a.queue, a.noAck)
	a.resolver.Resolve(ok)
}
func (a *AwaitingBasicConsumeOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingBasicCancelOk tracks basic.cancel.
type AwaitingBasicCancelOk struct {
	reqID    uint64
	tag      string
	resolver *promise.Resolver[*wire.BasicCancelOk]
}

func (a *AwaitingBasicCancelOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingBasicCancelOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.BasicCancelOk)
	return ok
}
func (a *AwaitingBasicCancelOk) Apply(ch *Channel, m wire.Method) {
	ok := m.(*wire.BasicCancelOk)
	ch.removeConsumer(a.tag)
	a.resolver.Resolve(ok)
}
func (a *AwaitingBasicCancelOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingBasicRecoverOk tracks basic.recover.
type AwaitingBasicRecoverOk struct {
	reqID    uint64
	resolver *promise.Resolver[*wire.BasicRecoverOk]
}

func (a *AwaitingBasicRecoverOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingBasicRecoverOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.BasicRecoverOk)
	return ok
}
func (a *AwaitingBasicRecoverOk) Apply(ch *Channel, m wire.Method) {
	a.resolver.Resolve(m.(*wire.BasicRecoverOk))
}
func (a *AwaitingBasicRecoverOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingBasicGetAnswer is a single expectation satisfiable by either
// GetOk (followed by content) or GetEmpty (spec section 9(c)).
type AwaitingBasicGetAnswer struct {
	reqID    uint64
	queue    string
	noAck    bool
	resolver *promise.Resolver[*wire.Delivery]
}

func (a *AwaitingBasicGetAnswer) RequestID() uint64 { return a.reqID }
func (a *AwaitingBasicGetAnswer) Matches(m wire.Method) bool {
	switch m.(type) {
	case *wire.BasicGetOk, *wire.BasicGetEmpty:
		return true
	default:
		return false
	}
}
func (a *AwaitingBasicGetAnswer) Apply(ch *Channel, m wire.Method) {
	switch ok := m.(type) {
	case *wire.BasicGetEmpty:
		a.resolver.Resolve(nil)
	case *wire.BasicGetOk:
		ch.beginGet(a, ok)
	}
}
func (a *AwaitingBasicGetAnswer) Fail(err error) { a.resolver.Fail(err) }

// AwaitingConfirmSelectOk tracks confirm.select.
type AwaitingConfirmSelectOk struct {
	reqID    uint64
	resolver *promise.Resolver[*wire.ConfirmSelectOk]
}

func (a *AwaitingConfirmSelectOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingConfirmSelectOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.ConfirmSelectOk)
	return ok
}
func (a *AwaitingConfirmSelectOk) Apply(ch *Channel, m wire.Method) {
	ok := m.(*wire.ConfirmSelectOk)
	ch.confirmMode = true
	a.resolver.Resolve(ok)
}
func (a *AwaitingConfirmSelectOk) Fail(err error) { a.resolver.Fail(err) }

// AwaitingTxSelectOk / AwaitingTxCommitOk / AwaitingTxRollbackOk track the
// tx.* class.
type AwaitingTxSelectOk struct {
	reqID    uint64
	resolver *promise.Resolver[*wire.TxSelectOk]
}

func (a *AwaitingTxSelectOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingTxSelectOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.TxSelectOk)
	return ok
}
func (a *AwaitingTxSelectOk) Apply(ch *Channel, m wire.Method) {
	ch.txMode = true
	a.resolver.Resolve(m.(*wire.TxSelectOk))
}
func (a *AwaitingTxSelectOk) Fail(err error) { a.resolver.Fail(err) }

type AwaitingTxCommitOk struct {
	reqID    uint64
	resolver *promise.Resolver[*wire.TxCommitOk]
}

func (a *AwaitingTxCommitOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingTxCommitOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.TxCommitOk)
	return ok
}
func (a *AwaitingTxCommitOk) Apply(ch *Channel, m wire.Method) {
	a.resolver.Resolve(m.(*wire.TxCommitOk))
}
func (a *AwaitingTxCommitOk) Fail(err error) { a.resolver.Fail(err) }

type AwaitingTxRollbackOk struct {
	reqID    uint64
	resolver *promise.Resolver[*wire.TxRollbackOk]
}

func (a *AwaitingTxRollbackOk) RequestID() uint64 { return a.reqID }
func (a *AwaitingTxRollbackOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.TxRollbackOk)
	return ok
}
func (a *AwaitingTxRollbackOk) Apply(ch *Channel, m wire.Method) {
	a.resolver.Resolve(m.(*wire.TxRollbackOk))
}
func (a *AwaitingTxRollbackOk) Fail(err error) { a.resolver.Fail(err) }
