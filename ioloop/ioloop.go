// Package ioloop implements the cooperative per-connection I/O loop (spec
// section 4.6, component C7): one task reading decoded frames off the wire
// into Connection.Dispatch, and one pulling outbound frames off the frame
// queue into the codec. Grounded on the teacher's per-channel
// reader/writer goroutine pair (server/channel.go's handleIncoming/
// handleOutgoing, each its own goroutine reading/writing a net.Conn),
// generalized to one pair per connection instead of one pair per channel,
// and supervised with golang.org/x/sync/errgroup the way
// mwaaas-machinery/v1/brokers/amqp.go supervises its worker goroutines.
package ioloop

import (
	"bytes"
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/emulator000/amqpcore/amqperr"
	"github.com/emulator000/amqpcore/connection"
	"github.com/emulator000/amqpcore/framequeue"
	"github.com/emulator000/amqpcore/heartbeat"
	"github.com/emulator000/amqpcore/runtime"
	"github.com/emulator000/amqpcore/wire"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// idlePoll bounds how long the write pump sleeps when the frame queue has
// nothing to send, so it still notices new low-prio traffic promptly
// without busy-spinning (spec section 4.6 step 4, "yield until next
// readable/writable/timer event"). It is also the interval at which
// runHeartbeat re-checks whether negotiation has finished.
const idlePoll = 5 * time.Millisecond

// Loop drives one Connection's socket traffic until the connection closes
// or a fatal I/O/decode error occurs.
type Loop struct {
	conn    *connection.Connection
	codec   wire.Codec
	reactor runtime.Reactor
	handle  runtime.Handle
	monitor atomic.Pointer[heartbeat.Monitor]
	logger  *logrus.Entry
}

// New registers netConn with reactor and builds a Loop that will drive
// conn's traffic through codec. If conn's negotiated heartbeat interval is
// non-zero once the connection reaches Connected, a heartbeat.Monitor is
// driven alongside the two pumps.
func New(conn *connection.Connection, codec wire.Codec, netConn net.Conn, reactor runtime.Reactor, logger *logrus.Entry) (*Loop, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	handle, err := reactor.Register(netConn)
	if err != nil {
		return nil, amqperr.Wrap(amqperr.IoError, err, "registering connection with reactor")
	}
	return &Loop{
		conn:    conn,
		codec:   codec,
		reactor: reactor,
		handle:  handle,
		logger:  logger,
	}, nil
}

// Run blocks until ctx is cancelled or a fatal error occurs, at which point
// the Connection is failed (spec section 4.6, "drop_pending + Error") and
// the error returned.
func (l *Loop) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return l.readPump(gctx) })
	g.Go(func() error { return l.writePump(gctx) })
	g.Go(func() error { return l.runHeartbeat(gctx) })

	err := g.Wait()
	if err != nil {
		l.conn.Fail(err)
	}
	return err
}

// runHeartbeat waits for the handshake to finish negotiating a heartbeat
// interval before starting the monitor, since Run is launched concurrently
// with Connect and the interval is unknown until connection.tune arrives.
func (l *Loop) runHeartbeat(ctx context.Context) error {
	for l.conn.State() != connection.Connected {
		select {
		case <-ctx.Done():
			return nil
		case <-l.reactor.Timer(idlePoll):
		}
		if l.conn.State() == connection.Closed || l.conn.State() == connection.Error {
			return nil
		}
	}

	hb := l.conn.Heartbeat()
	if hb <= 0 {
		return nil
	}
	m := heartbeat.New(l.conn, l.reactor, hb, l.logger)
	l.monitor.Store(m)
	m.Run(ctx)
	return nil
}

func (l *Loop) readPump(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := l.reactor.AwaitReadable(ctx, l.handle); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return amqperr.Wrap(amqperr.IoError, err, "waiting for socket readability")
		}

		f, err := l.codec.ReadFrame(l.reactor.Reader(l.handle))
		if err != nil {
			return amqperr.Wrap(amqperr.ProtocolDecode, err, "decoding inbound frame")
		}

		if m := l.monitor.Load(); m != nil {
			m.NoteRead()
		}

		if err := l.conn.Dispatch(f); err != nil {
			// Every Dispatch error is logged and the pump keeps reading;
			// channel-fatal errors are also reflected in that channel's
			// State(). No Dispatch error fails the connection here.
			l.logger.WithError(err).Warn("dispatch rejected inbound frame")
		}
	}
}

func (l *Loop) writePump(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		of, ok := l.conn.Frames().Pop(l.conn.FlowEnabled())
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-l.reactor.Timer(idlePoll):
				continue
			}
		}

		if err := l.writeOne(ctx, of); err != nil {
			return err
		}
	}
}

func (l *Loop) writeOne(ctx context.Context, of framequeue.OutboundFrame) error {
	if err := l.reactor.AwaitWritable(ctx, l.handle); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		err = amqperr.Wrap(amqperr.IoError, err, "waiting for socket writability")
		if of.Resolver != nil {
			of.Resolver.Fail(err)
		}
		return err
	}

	var buf bytes.Buffer
	if err := l.codec.WriteFrame(&buf, of.Frame); err != nil {
		err = amqperr.Wrap(amqperr.ProtocolDecode, err, "encoding outbound frame")
		if of.Resolver != nil {
			of.Resolver.Fail(err)
		}
		return err
	}

	if _, err := l.reactor.Write(l.handle, buf.Bytes()); err != nil {
		err = amqperr.Wrap(amqperr.IoError, err, "writing outbound frame")
		if of.Resolver != nil {
			of.Resolver.Fail(err)
		}
		return err
	}

	if m := l.monitor.Load(); m != nil {
		m.NoteWrite()
	}
	if of.Resolver != nil {
		of.Resolver.Resolve(struct{}{})
	}
	return nil
}
