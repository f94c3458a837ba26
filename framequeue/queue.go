// Package framequeue implements the prioritized outbound frame scheduler
// (spec section 4.3): four FIFO lanes — retry, publish-sequence, normal,
// low-prio — plus a per-channel queue of expected replies. Grounded on
// original_source/src/frames.rs's Inner{publish_frames, retry_frames,
// frames, low_prio_frames, expected_replies}/push/push_frames/pop/
// drop_pending, re-expressed with container/list-backed FIFOs and a
// sync.Mutex in place of Rust's VecDeque/parking_lot::Mutex.
package framequeue

import (
	"container/list"
	"sync"

	"github.com/emulator000/amqpcore/promise"
	"github.com/emulator000/amqpcore/wire"
)

// OutboundFrame pairs a frame with the resolver that must fire exactly once
// it has been written (spec section 4.3 invariant c), or nil for frames in
// the middle of a batch.
type OutboundFrame struct {
	Frame    wire.Frame
	Resolver *promise.Resolver[struct{}]
}

// ExpectedReply pairs an opaque per-channel reply expectation (the
// channel package's concrete Answer value) with a cancel callback invoked
// when the connection or channel fails with pending work outstanding.
// Kept opaque here (interface{} instead of a concrete Answer type) so this
// package does not need to import the channel package that owns Answer's
// definition.
type ExpectedReply struct {
	Reply  interface{}
	Cancel func(error)
}

// Queue is the four-lane scheduler described in spec section 4.3.
type Queue struct {
	mu sync.Mutex

	retry     *list.List
	publish   *list.List
	normal    *list.List
	lowPrio   *list.List

	expected map[uint16]*list.List // channelID -> *list.List of ExpectedReply
}

// New builds an empty Queue.
func New() *Queue {
	return &Queue{
		retry:    list.New(),
		publish:  list.New(),
		normal:   list.New(),
		lowPrio:  list.New(),
		expected: make(map[uint16]*list.List),
	}
}

// Push enqueues a single frame into the normal lane, optionally registering
// an expected reply for channelID (spec section 4.2 step 3).
func (q *Queue) Push(channelID uint16, frame wire.Frame, resolver *promise.Resolver[struct{}], expected *ExpectedReply) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.normal.PushBack(OutboundFrame{Frame: frame, Resolver: resolver})
	if expected != nil {
		q.pushExpectedLocked(channelID, *expected)
	}
}

// PushLowPrio enqueues a single frame into the low-priority lane. The
// channel's basic.publish batch goes through PushFrames instead.
func (q *Queue) PushLowPrio(frame wire.Frame, resolver *promise.Resolver[struct{}]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lowPrio.PushBack(OutboundFrame{Frame: frame, Resolver: resolver})
}

// PushFrames enqueues a batch of frames into the low-prio lane as a unit,
// returning a Promise that resolves once the *last* frame of the batch has
// been written. An empty batch resolves immediately (spec section 4.3).
func (q *Queue) PushFrames(frames []wire.Frame) *promise.Promise[struct{}] {
	p, r := promise.New[struct{}]()
	if len(frames) == 0 {
		r.Resolve(struct{}{})
		return p
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	last := len(frames) - 1
	for i, f := range frames {
		if i == last {
			q.lowPrio.PushBack(OutboundFrame{Frame: f, Resolver: r})
		} else {
			q.lowPrio.PushBack(OutboundFrame{Frame: f})
		}
	}
	return p
}

func (q *Queue) pushExpectedLocked(channelID uint16, reply ExpectedReply) {
	l, ok := q.expected[channelID]
	if !ok {
		l = list.New()
		q.expected[channelID] = l
	}
	l.PushBack(reply)
}

// PushExpected registers an expected reply for channelID without enqueuing
// any frame, for operations whose method frame is pushed separately.
func (q *Queue) PushExpected(channelID uint16, reply ExpectedReply) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushExpectedLocked(channelID, reply)
}

// Retry re-enqueues a frame at the head of the schedule, ahead of every
// other lane (spec section 4.3 step 1).
func (q *Queue) Retry(frame wire.Frame, resolver *promise.Resolver[struct{}]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retry.PushBack(OutboundFrame{Frame: frame, Resolver: resolver})
}

// Pop dequeues the next frame to write, implementing the ordering policy of
// spec section 4.3:
//  1. retry
//  2. publish-sequence
//  3. normal
//  4. low-prio, only when flowEnabled, migrating a detected publish run
//     (header + contiguous body frames) into publish-sequence first.
func (q *Queue) Pop(flowEnabled bool) (OutboundFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e := q.retry.Front(); e != nil {
		q.retry.Remove(e)
		return e.Value.(OutboundFrame), true
	}
	if e := q.publish.Front(); e != nil {
		q.publish.Remove(e)
		return e.Value.(OutboundFrame), true
	}
	if e := q.normal.Front(); e != nil {
		q.normal.Remove(e)
		return e.Value.(OutboundFrame), true
	}
	if !flowEnabled {
		return OutboundFrame{}, false
	}

	e := q.lowPrio.Front()
	if e == nil {
		return OutboundFrame{}, false
	}
	q.lowPrio.Remove(e)
	frame := e.Value.(OutboundFrame)

	// If the frame that follows is a content header, this is the start of a
	// basic.publish run: migrate the header and every contiguous body frame
	// into the publish lane so nothing else can interleave (spec section
	// 4.3 invariant a).
	if next := q.lowPrio.Front(); next != nil {
		if of, ok := next.Value.(OutboundFrame); ok && of.Frame.IsHeader() {
			q.lowPrio.Remove(next)
			q.publish.PushBack(of)

			for {
				bodyElem := q.lowPrio.Front()
				if bodyElem == nil {
					break
				}
				bodyFrame, ok := bodyElem.Value.(OutboundFrame)
				if !ok || !bodyFrame.Frame.IsBody() {
					break
				}
				q.lowPrio.Remove(bodyElem)
				q.publish.PushBack(bodyFrame)
			}
		}
	}

	return frame, true
}

// NextExpectedReply pops the oldest expectation registered for channelID.
func (q *Queue) NextExpectedReply(channelID uint16) (ExpectedReply, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.expected[channelID]
	if !ok {
		return ExpectedReply{}, false
	}
	e := l.Front()
	if e == nil {
		return ExpectedReply{}, false
	}
	l.Remove(e)
	return e.Value.(ExpectedReply), true
}

// HasPending reports whether any lane still holds frames.
func (q *Queue) HasPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.retry.Len() > 0 || q.publish.Len() > 0 || q.normal.Len() > 0 || q.lowPrio.Len() > 0
}

// DropPending fails every pending resolver across all lanes and cancels
// every expected reply, with err (spec section 4.3, drop_pending).
func (q *Queue) DropPending(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	drain := func(l *list.List) {
		for e := l.Front(); e != nil; e = e.Next() {
			of := e.Value.(OutboundFrame)
			if of.Resolver != nil {
				of.Resolver.Fail(err)
			}
		}
		l.Init()
	}
	drain(q.retry)
	drain(q.publish)
	drain(q.normal)
	drain(q.lowPrio)

	for channelID, l := range q.expected {
		for e := l.Front(); e != nil; e = e.Next() {
			er := e.Value.(ExpectedReply)
			if er.Cancel != nil {
				er.Cancel(err)
			}
		}
		delete(q.expected, channelID)
	}
}

// ClearExpectedReplies cancels and drops every outstanding expectation for
// one channel, used when that channel alone (not the whole connection)
// fails (spec section 4.2, channel-fatal errors).
func (q *Queue) ClearExpectedReplies(channelID uint16, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.expected[channelID]
	if !ok {
		return
	}
	for e := l.Front(); e != nil; e = e.Next() {
		er := e.Value.(ExpectedReply)
		if er.Cancel != nil {
			er.Cancel(err)
		}
	}
	delete(q.expected, channelID)
}
