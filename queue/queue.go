// Package queue holds the client-side model of a declared queue and its
// bindings (spec section 3, "Queue / Binding / Consumer / Message"):
// purely bookkeeping mirrored from DeclareOk/BindOk replies, not the
// broker-side queue implementation the teacher (garagemq/queue) provides.
package queue

import "sync"

// Binding models one exchange/routing-key pair a queue is bound to.
// Active flips true once the broker acknowledges the bind with BindOk
// (spec section 3).
type Binding struct {
	Exchange   string
	RoutingKey string
	Active     bool
}

// Queue is the client-side record of a declared queue.
type Queue struct {
	mu sync.Mutex

	Name         string
	Durable      bool
	Exclusive    bool
	AutoDelete   bool
	Created      bool
	MessageCount uint32
	ConsumerCount uint32

	bindings map[string]*Binding
}

// New builds an empty Queue record for name.
func New(name string) *Queue {
	return &Queue{Name: name, bindings: make(map[string]*Binding)}
}

func bindingKey(exchange, routingKey string) string {
	return exchange + "\x00" + routingKey
}

// Bind records a pending binding (inactive until BindOk arrives).
func (q *Queue) Bind(exchange, routingKey string) *Binding {
	q.mu.Lock()
	defer q.mu.Unlock()
	b := &Binding{Exchange: exchange, RoutingKey: routingKey}
	q.bindings[bindingKey(exchange, routingKey)] = b
	return b
}

// ActivateBinding flips a pending binding's Active flag, applied when
// QueueBindOk arrives (spec section 4.2, reply routing).
func (q *Queue) ActivateBinding(exchange, routingKey string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if b, ok := q.bindings[bindingKey(exchange, routingKey)]; ok {
		b.Active = true
	}
}

// Unbind removes a binding, applied when QueueUnbindOk arrives.
func (q *Queue) Unbind(exchange, routingKey string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.bindings, bindingKey(exchange, routingKey))
}

// Bindings returns a snapshot of the current bindings.
func (q *Queue) Bindings() []Binding {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Binding, 0, len(q.bindings))
	for _, b := range q.bindings {
		out = append(out, *b)
	}
	return out
}

// ApplyDeclareOk updates this record from a successful queue.declare-ok
// reply (spec section 4.2: "QueueDeclareOk updates message_count,
// consumer_count, sets created = true").
func (q *Queue) ApplyDeclareOk(messageCount, consumerCount uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.MessageCount = messageCount
	q.ConsumerCount = consumerCount
	q.Created = true
}
