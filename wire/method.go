package wire

// Class ids, per the AMQP 0-9-1 spec tables.
const (
	ClassConnection uint16 = 10
	ClassChannel    uint16 = 20
	ClassExchange   uint16 = 40
	ClassQueue      uint16 = 50
	ClassBasic      uint16 = 60
	ClassTx         uint16 = 90
	ClassConfirm    uint16 = 85
)

// Method is a decoded method-frame payload. Every `class.method` the core
// emits or consumes implements it, following the teacher's
// ClassIdentifier()/MethodIdentifier()/Name() trio (server/channel.go's
// amqp.Method usage) rather than a closed sum type, since Go has no enum of
// types.
type Method interface {
	ClassIdentifier() uint16
	MethodIdentifier() uint16
	Name() string
	// Sync reports whether the broker owes a synchronous reply to this
	// method (mirrors the teacher's Method.Sync()).
	Sync() bool
}

type methodBase struct {
	class, method uint16
	name          string
	sync          bool
}

func (m methodBase) ClassIdentifier() uint16  { return m.class }
func (m methodBase) MethodIdentifier() uint16 { return m.method }
func (m methodBase) Name() string             { return m.name }
func (m methodBase) Sync() bool                { return m.sync }

// --- connection.* ---

type ConnectionStart struct {
	methodBase
	VersionMajor, VersionMinor byte
	ServerProperties           Table
	Mechanisms, Locales        string
}

type ConnectionStartOk struct {
	methodBase
	ClientProperties     Table
	Mechanism, Response  string
	Locale               string
}

type ConnectionTune struct {
	methodBase
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

type ConnectionTuneOk struct {
	methodBase
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

type ConnectionOpen struct {
	methodBase
	VirtualHost string
}

type ConnectionOpenOk struct{ methodBase }

type ConnectionClose struct {
	methodBase
	ReplyCode          uint16
	ReplyText          string
	ClassID, MethodID  uint16
}

type ConnectionCloseOk struct{ methodBase }

type ConnectionBlocked struct {
	methodBase
	Reason string
}

type ConnectionUnblocked struct{ methodBase }

func NewConnectionStart() *ConnectionStart {
	return &ConnectionStart{methodBase: methodBase{ClassConnection, 10, "connection.start", false}}
}
func NewConnectionStartOk() *ConnectionStartOk {
	return &ConnectionStartOk{methodBase: methodBase{ClassConnection, 11, "connection.start-ok", false}}
}
func NewConnectionTune() *ConnectionTune {
	return &ConnectionTune{methodBase: methodBase{ClassConnection, 30, "connection.tune", false}}
}
func NewConnectionTuneOk() *ConnectionTuneOk {
	return &ConnectionTuneOk{methodBase: methodBase{ClassConnection, 31, "connection.tune-ok", false}}
}
func NewConnectionOpen(vhost string) *ConnectionOpen {
	return &ConnectionOpen{methodBase: methodBase{ClassConnection, 40, "connection.open", true}, VirtualHost: vhost}
}
func NewConnectionOpenOk() *ConnectionOpenOk {
	return &ConnectionOpenOk{methodBase: methodBase{ClassConnection, 41, "connection.open-ok", false}}
}
func NewConnectionClose(code uint16, text string) *ConnectionClose {
	return &ConnectionClose{methodBase: methodBase{ClassConnection, 50, "connection.close", true}, ReplyCode: code, ReplyText: text}
}
func NewConnectionCloseOk() *ConnectionCloseOk {
	return &ConnectionCloseOk{methodBase: methodBase{ClassConnection, 51, "connection.close-ok", false}}
}

// --- channel.* ---

type ChannelOpen struct{ methodBase }
type ChannelOpenOk struct{ methodBase }
type ChannelFlow struct {
	methodBase
	Active bool
}
type ChannelFlowOk struct {
	methodBase
	Active bool
}
type ChannelClose struct {
	methodBase
	ReplyCode         uint16
	ReplyText         string
	ClassID, MethodID uint16
}
type ChannelCloseOk struct{ methodBase }

func NewChannelOpen() *ChannelOpen {
	return &ChannelOpen{methodBase{ClassChannel, 10, "channel.open", true}}
}
func NewChannelOpenOk() *ChannelOpenOk {
	return &ChannelOpenOk{methodBase{ClassChannel, 11, "channel.open-ok", false}}
}
func NewChannelFlow(active bool) *ChannelFlow {
	return &ChannelFlow{methodBase{ClassChannel, 20, "channel.flow", true}, active}
}
func NewChannelFlowOk(active bool) *ChannelFlowOk {
	return &ChannelFlowOk{methodBase{ClassChannel, 21, "channel.flow-ok", false}, active}
}
func NewChannelClose(code uint16, text string, classID, methodID uint16) *ChannelClose {
	return &ChannelClose{methodBase{ClassChannel, 40, "channel.close", true}, code, text, classID, methodID}
}
func NewChannelCloseOk() *ChannelCloseOk {
	return &ChannelCloseOk{methodBase{ClassChannel, 41, "channel.close-ok", false}}
}

// --- queue.* ---

type QueueDeclare struct {
	methodBase
	Queue                                        string
	Passive, Durable, Exclusive, AutoDelete, NoWait bool
	Arguments                                    Table
}
type QueueDeclareOk struct {
	methodBase
	Queue                        string
	MessageCount, ConsumerCount  uint32
}
type QueueBind struct {
	methodBase
	Queue, Exchange, RoutingKey string
	NoWait                      bool
	Arguments                   Table
}
type QueueBindOk struct{ methodBase }
type QueueUnbind struct {
	methodBase
	Queue, Exchange, RoutingKey string
	Arguments                   Table
}
type QueueUnbindOk struct{ methodBase }
type QueuePurge struct {
	methodBase
	Queue  string
	NoWait bool
}
type QueuePurgeOk struct {
	methodBase
	MessageCount uint32
}
type QueueDelete struct {
	methodBase
	Queue                       string
	IfUnused, IfEmpty, NoWait   bool
}
type QueueDeleteOk struct {
	methodBase
	MessageCount uint32
}

func NewQueueDeclare(name string, passive, durable, exclusive, autoDelete, noWait bool, args Table) *QueueDeclare {
	return &QueueDeclare{methodBase{ClassQueue, 10, "queue.declare", !noWait}, name, passive, durable, exclusive, autoDelete, noWait, args}
}
func NewQueueDeclareOk(name string, msgs, consumers uint32) *QueueDeclareOk {
	return &QueueDeclareOk{methodBase{ClassQueue, 11, "queue.declare-ok", false}, name, msgs, consumers}
}
func NewQueueBind(queue, exchange, key string, noWait bool, args Table) *QueueBind {
	return &QueueBind{methodBase{ClassQueue, 20, "queue.bind", !noWait}, queue, exchange, key, noWait, args}
}
func NewQueueBindOk() *QueueBindOk {
	return &QueueBindOk{methodBase{ClassQueue, 21, "queue.bind-ok", false}}
}
func NewQueueUnbind(queue, exchange, key string, args Table) *QueueUnbind {
	return &QueueUnbind{methodBase{ClassQueue, 50, "queue.unbind", true}, queue, exchange, key, args}
}
func NewQueueUnbindOk() *QueueUnbindOk {
	return &QueueUnbindOk{methodBase{ClassQueue, 51, "queue.unbind-ok", false}}
}
func NewQueuePurge(queue string, noWait bool) *QueuePurge {
	return &QueuePurge{methodBase{ClassQueue, 30, "queue.purge", !noWait}, queue, noWait}
}
func NewQueuePurgeOk(count uint32) *QueuePurgeOk {
	return &QueuePurgeOk{methodBase{ClassQueue, 31, "queue.purge-ok", false}, count}
}
func NewQueueDelete(queue string, ifUnused, ifEmpty, noWait bool) *QueueDelete {
	return &QueueDelete{methodBase{ClassQueue, 40, "queue.delete", !noWait}, queue, ifUnused, ifEmpty, noWait}
}
func NewQueueDeleteOk(count uint32) *QueueDeleteOk {
	return &QueueDeleteOk{methodBase{ClassQueue, 41, "queue.delete-ok", false}, count}
}

// --- exchange.* ---

type ExchangeDeclare struct {
	methodBase
	Exchange, Type                                string
	Passive, Durable, AutoDelete, Internal, NoWait bool
	Arguments                                      Table
}
type ExchangeDeclareOk struct{ methodBase }
type ExchangeDelete struct {
	methodBase
	Exchange string
	IfUnused bool
	NoWait   bool
}
type ExchangeDeleteOk struct{ methodBase }

func NewExchangeDeclare(name, kind string, passive, durable, autoDelete, internal, noWait bool, args Table) *ExchangeDeclare {
	return &ExchangeDeclare{methodBase{ClassExchange, 10, "exchange.declare", !noWait}, name, kind, passive, durable, autoDelete, internal, noWait, args}
}
func NewExchangeDeclareOk() *ExchangeDeclareOk {
	return &ExchangeDeclareOk{methodBase{ClassExchange, 11, "exchange.declare-ok", false}}
}

// --- basic.* ---

type BasicQos struct {
	methodBase
	PrefetchSize  uint32
	PrefetchCount uint16
	Global        bool
}
type BasicQosOk struct{ methodBase }
type BasicConsume struct {
	methodBase
	Queue, ConsumerTag                    string
	NoLocal, NoAck, Exclusive, NoWait      bool
	Arguments                              Table
}
type BasicConsumeOk struct {
	methodBase
	ConsumerTag string
}
type BasicCancel struct {
	methodBase
	ConsumerTag string
	NoWait      bool
}
type BasicCancelOk struct {
	methodBase
	ConsumerTag string
}
type BasicPublish struct {
	methodBase
	Exchange, RoutingKey   string
	Mandatory, Immediate   bool
}
type BasicReturn struct {
	methodBase
	ReplyCode            uint16
	ReplyText            string
	Exchange, RoutingKey string
}
type BasicDeliver struct {
	methodBase
	ConsumerTag           string
	DeliveryTag           uint64
	Redelivered           bool
	Exchange, RoutingKey  string
}
type BasicGet struct {
	methodBase
	Queue  string
	NoAck  bool
}
type BasicGetOk struct {
	methodBase
	DeliveryTag           uint64
	Redelivered           bool
	Exchange, RoutingKey  string
	MessageCount          uint32
}
type BasicGetEmpty struct{ methodBase }
type BasicAck struct {
	methodBase
	DeliveryTag uint64
	Multiple    bool
}
type BasicNack struct {
	methodBase
	DeliveryTag uint64
	Multiple    bool
	Requeue     bool
}
type BasicReject struct {
	methodBase
	DeliveryTag uint64
	Requeue     bool
}
type BasicRecover struct {
	methodBase
	Requeue bool
}
type BasicRecoverAsync struct {
	methodBase
	Requeue bool
}
type BasicRecoverOk struct{ methodBase }

func NewBasicQos(size uint32, count uint16, global bool) *BasicQos {
	return &BasicQos{methodBase{ClassBasic, 10, "basic.qos", true}, size, count, global}
}
func NewBasicQosOk() *BasicQosOk {
	return &BasicQosOk{methodBase{ClassBasic, 11, "basic.qos-ok", false}}
}
func NewBasicConsume(queue, tag string, noLocal, noAck, exclusive, noWait bool, args Table) *BasicConsume {
	return &BasicConsume{methodBase{ClassBasic, 20, "basic.consume", !noWait}, queue, tag, noLocal, noAck, exclusive, noWait, args}
}
func NewBasicConsumeOk(tag string) *BasicConsumeOk {
	return &BasicConsumeOk{methodBase{ClassBasic, 21, "basic.consume-ok", false}, tag}
}
func NewBasicCancel(tag string, noWait bool) *BasicCancel {
	return &BasicCancel{methodBase{ClassBasic, 30, "basic.cancel", !noWait}, tag, noWait}
}
func NewBasicCancelOk(tag string) *BasicCancelOk {
	return &BasicCancelOk{methodBase{ClassBasic, 31, "basic.cancel-ok", false}, tag}
}
func NewBasicPublish(exchange, key string, mandatory, immediate bool) *BasicPublish {
	return &BasicPublish{methodBase{ClassBasic, 40, "basic.publish", false}, exchange, key, mandatory, immediate}
}
func NewBasicReturn(code uint16, text, exchange, key string) *BasicReturn {
	return &BasicReturn{methodBase{ClassBasic, 50, "basic.return", false}, code, text, exchange, key}
}
func NewBasicDeliver(tag string, deliveryTag uint64, redelivered bool, exchange, key string) *BasicDeliver {
	return &BasicDeliver{methodBase{ClassBasic, 60, "basic.deliver", false}, tag, deliveryTag, redelivered, exchange, key}
}
func NewBasicGet(queue string, noAck bool) *BasicGet {
	return &BasicGet{methodBase{ClassBasic, 70, "basic.get", true}, queue, noAck}
}
func NewBasicGetOk(deliveryTag uint64, redelivered bool, exchange, key string, count uint32) *BasicGetOk {
	return &BasicGetOk{methodBase{ClassBasic, 71, "basic.get-ok", false}, deliveryTag, redelivered, exchange, key, count}
}
func NewBasicGetEmpty() *BasicGetEmpty {
	return &BasicGetEmpty{methodBase{ClassBasic, 72, "basic.get-empty", false}}
}
func NewBasicAck(tag uint64, multiple bool) *BasicAck {
	return &BasicAck{methodBase{ClassBasic, 80, "basic.ack", false}, tag, multiple}
}
func NewBasicNack(tag uint64, multiple, requeue bool) *BasicNack {
	return &BasicNack{methodBase{ClassBasic, 120, "basic.nack", false}, tag, multiple, requeue}
}
func NewBasicReject(tag uint64, requeue bool) *BasicReject {
	return &BasicReject{methodBase{ClassBasic, 90, "basic.reject", false}, tag, requeue}
}
func NewBasicRecover(requeue bool) *BasicRecover {
	return &BasicRecover{methodBase{ClassBasic, 110, "basic.recover", true}, requeue}
}
func NewBasicRecoverAsync(requeue bool) *BasicRecoverAsync {
	return &BasicRecoverAsync{methodBase{ClassBasic, 100, "basic.recover-async", false}, requeue}
}
func NewBasicRecoverOk() *BasicRecoverOk {
	return &BasicRecoverOk{methodBase{ClassBasic, 111, "basic.recover-ok", false}}
}

// --- tx.* ---

type TxSelect struct{ methodBase }
type TxSelectOk struct{ methodBase }
type TxCommit struct{ methodBase }
type TxCommitOk struct{ methodBase }
type TxRollback struct{ methodBase }
type TxRollbackOk struct{ methodBase }

func NewTxSelect() *TxSelect     { return &TxSelect{methodBase{ClassTx, 10, "tx.select", true}} }
func NewTxSelectOk() *TxSelectOk { return &TxSelectOk{methodBase{ClassTx, 11, "tx.select-ok", false}} }
func NewTxCommit() *TxCommit     { return &TxCommit{methodBase{ClassTx, 20, "tx.commit", true}} }
func NewTxCommitOk() *TxCommitOk { return &TxCommitOk{methodBase{ClassTx, 21, "tx.commit-ok", false}} }
func NewTxRollback() *TxRollback { return &TxRollback{methodBase{ClassTx, 30, "tx.rollback", true}} }
func NewTxRollbackOk() *TxRollbackOk {
	return &TxRollbackOk{methodBase{ClassTx, 31, "tx.rollback-ok", false}}
}

// --- confirm.* ---

type ConfirmSelect struct {
	methodBase
	NoWait bool
}
type ConfirmSelectOk struct{ methodBase }

func NewConfirmSelect(noWait bool) *ConfirmSelect {
	return &ConfirmSelect{methodBase{ClassConfirm, 10, "confirm.select", !noWait}, noWait}
}
func NewConfirmSelectOk() *ConfirmSelectOk {
	return &ConfirmSelectOk{methodBase{ClassConfirm, 11, "confirm.select-ok", false}}
}
