// Package heartbeat schedules outbound heartbeat frames during otherwise
// idle periods and declares a connection dead once its peer goes quiet for
// too long (spec section 4.6 step 3, component C8). Grounded on the
// teacher's timer-driven goroutines in server/channel.go (its
// heartbeat/writer tickers built around time.NewTicker), re-expressed
// around the runtime.Reactor.Timer capability instead of a bare
// time.Ticker so a caller-supplied Reactor drives the cadence.
package heartbeat

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/emulator000/amqpcore/amqperr"
	"github.com/emulator000/amqpcore/connection"
	"github.com/emulator000/amqpcore/runtime"
	"github.com/emulator000/amqpcore/wire"
	"github.com/sirupsen/logrus"
)

// Monitor tracks read/write activity and enforces the heartbeat contract:
// send one after Interval of outbound silence, declare the connection dead
// after 2*Interval of inbound silence (spec section 4.6 step 3, and the
// "Heartbeat-only connection... stays alive >= 3x heartbeat interval"
// boundary behavior).
type Monitor struct {
	conn     *connection.Connection
	reactor  runtime.Reactor
	interval time.Duration
	logger   *logrus.Entry

	lastWrite int64 // unix nanos, atomic
	lastRead  int64 // unix nanos, atomic
}

// New builds a Monitor. interval <= 0 disables heartbeats entirely (Run
// returns immediately).
func New(conn *connection.Connection, reactor runtime.Reactor, interval time.Duration, logger *logrus.Entry) *Monitor {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	now := time.Now().UnixNano()
	return &Monitor{
		conn:      conn,
		reactor:   reactor,
		interval:  interval,
		logger:    logger,
		lastWrite: now,
		lastRead:  now,
	}
}

// NoteWrite records that some frame (any frame, heartbeat or not) was just
// written, resetting the outbound-silence clock.
func (m *Monitor) NoteWrite() {
	atomic.StoreInt64(&m.lastWrite, time.Now().UnixNano())
}

// NoteRead records that some frame was just read, resetting the
// inbound-silence clock.
func (m *Monitor) NoteRead() {
	atomic.StoreInt64(&m.lastRead, time.Now().UnixNano())
}

// Run ticks at Interval/2 (the conventional AMQP heartbeat cadence) until
// ctx is done, pushing a heartbeat frame when outbound traffic has gone
// quiet and failing the connection when inbound traffic has.
func (m *Monitor) Run(ctx context.Context) {
	if m.interval <= 0 {
		return
	}
	tick := m.interval / 2
	if tick <= 0 {
		tick = m.interval
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.reactor.Timer(tick):
		}

		now := time.Now()
		if now.Sub(time.Unix(0, atomic.LoadInt64(&m.lastWrite))) >= m.interval {
			m.conn.Frames().Push(0, wire.Heartbeat(), nil, nil)
			m.NoteWrite()
		}

		if now.Sub(time.Unix(0, atomic.LoadInt64(&m.lastRead))) >= 2*m.interval {
			m.logger.Warn("no inbound traffic for 2 heartbeat intervals, declaring connection dead")
			m.conn.Fail(amqperr.New(amqperr.IoError, "heartbeat timeout: no inbound traffic"))
			return
		}
	}
}
