// Package connection implements the connection-level handshake state
// machine and channel ownership (spec section 4.4 / C5). Grounded on
// garagemq/vhost.go's pattern of threading a single config object through
// construction and owning a map of child resources (there, queues/
// exchanges; here, channels), and on the teacher's connection dispatch
// loop that routes an inbound frame to its channel by id before handing it
// to that channel's handleMethod.
package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emulator000/amqpcore/amqperr"
	"github.com/emulator000/amqpcore/channel"
	"github.com/emulator000/amqpcore/config"
	"github.com/emulator000/amqpcore/framequeue"
	"github.com/emulator000/amqpcore/ids"
	"github.com/emulator000/amqpcore/promise"
	"github.com/emulator000/amqpcore/runtime"
	"github.com/emulator000/amqpcore/wire"
	"github.com/sirupsen/logrus"
)

// connAnswer is the connection-level analogue of channel.Answer (spec
// section 3's Answer concept, narrowed to the two synchronous
// connection-class replies this core awaits: connection.open-ok and
// connection.close-ok).
type connAnswer interface {
	Matches(m wire.Method) bool
	Apply(c *Connection, m wire.Method)
	Fail(err error)
}

type awaitingConnectionOpenOk struct {
	resolver *promise.Resolver[*wire.ConnectionOpenOk]
}

func (a *awaitingConnectionOpenOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.ConnectionOpenOk)
	return ok
}
func (a *awaitingConnectionOpenOk) Apply(c *Connection, m wire.Method) {
	c.state = Connected
	a.resolver.Resolve(m.(*wire.ConnectionOpenOk))
}
func (a *awaitingConnectionOpenOk) Fail(err error) { a.resolver.Fail(err) }

type awaitingConnectionCloseOk struct {
	resolver *promise.Resolver[*wire.ConnectionCloseOk]
}

func (a *awaitingConnectionCloseOk) Matches(m wire.Method) bool {
	_, ok := m.(*wire.ConnectionCloseOk)
	return ok
}
func (a *awaitingConnectionCloseOk) Apply(c *Connection, m wire.Method) {
	c.state = Closed
	a.resolver.Resolve(m.(*wire.ConnectionCloseOk))
}
func (a *awaitingConnectionCloseOk) Fail(err error) { a.resolver.Fail(err) }

// Connection owns the channel-id arena and the shared frame queue (spec
// section 3, "Lifetimes & ownership": "Connection exclusively owns the
// Channel map and the Frame queue").
type Connection struct {
	mu       sync.Mutex
	state    State
	closeErr error

	opts config.Options

	negotiatedChannelMax uint16
	negotiatedFrameMax   uint32
	negotiatedHeartbeat  time.Duration

	flowEnabled bool

	prefetchSize  uint32
	prefetchCount uint16

	channels     map[uint16]*channel.Channel
	channelAlloc *ids.ChannelAllocator
	reqIDs       *ids.RequestIDAllocator
	frames       *framequeue.Queue

	executor runtime.Executor
	reactor  runtime.Reactor
	logger   *logrus.Entry

	connectResolver *promise.Resolver[*Connection]
}

// New builds a Connection from opts, falling back to config.Default()'s
// runtime choices when opts leaves Executor/Reactor nil.
func New(opts config.Options) *Connection {
	executor := opts.Executor
	if executor == nil {
		executor = runtime.NewGoExecutor(0)
	}
	reactor := opts.Reactor
	if reactor == nil {
		reactor = runtime.NewPollReactor()
	}
	return &Connection{
		state:        PreInit,
		opts:         opts,
		flowEnabled:  true,
		channels:     make(map[uint16]*channel.Channel),
		channelAlloc: ids.NewChannelAllocator(config.DefaultChannelMax),
		reqIDs:       ids.NewRequestIDAllocator(),
		frames:       framequeue.New(),
		executor:     executor,
		reactor:      reactor,
		logger:       logrus.NewEntry(logrus.StandardLogger()),
	}
}

// State returns the current handshake/lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CloseError returns the reason this connection moved to Closed or Error.
func (c *Connection) CloseError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Frames exposes the shared frame queue, read by the I/O loop's write pump.
func (c *Connection) Frames() *framequeue.Queue { return c.frames }

// Reactor exposes the Reactor this connection was built with, so an I/O
// loop constructed for it can reuse the same instance instead of requiring
// the caller to thread it through twice.
func (c *Connection) Reactor() runtime.Reactor { return c.reactor }

// FlowEnabled reports whether low-priority (publish) traffic may proceed,
// toggled by connection.blocked/unblocked (spec section 4.4).
func (c *Connection) FlowEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flowEnabled
}

// Connect starts the handshake: the caller must write the returned
// protocol header bytes to the socket, then feed inbound frames to
// Dispatch. The returned Promise resolves once connection.open-ok arrives.
func (c *Connection) Connect() (*promise.Promise[*Connection], []byte) {
	p, r := promise.New[*Connection]()
	c.mu.Lock()
	c.connectResolver = r
	c.state = SentProtocolHeader
	c.mu.Unlock()
	header := wire.ProtocolHeader
	return p, header[:]
}

func (c *Connection) sendConnFrame(m wire.Method) {
	c.frames.Push(0, wire.Frame{Type: wire.FrameMethod, ChannelID: 0, Method: m}, nil, nil)
}

// Dispatch routes one inbound frame (spec section 2, "Connection
// dispatch"): connection-class methods on channel 0, everything else
// forwarded to the owning Channel.
func (c *Connection) Dispatch(f wire.Frame) error {
	if f.Type == wire.FrameHeartbeat {
		return nil
	}
	if f.ChannelID == 0 {
		return c.handleConnectionMethod(f.Method)
	}

	ch, ok := c.lookupChannel(f.ChannelID)
	if !ok {
		return amqperr.New(amqperr.InvalidChannel, fmt.Sprintf("frame for unknown channel %d", f.ChannelID))
	}

	var err error
	switch f.Type {
	case wire.FrameMethod:
		err = ch.HandleMethod(f.Method)
	case wire.FrameHeader:
		err = ch.HandleContentHeader(f.BodySize, f.Properties)
	case wire.FrameBody:
		err = ch.HandleContentBody(f.Payload)
	}

	if ch.State() == channel.Closed {
		c.releaseChannel(f.ChannelID)
	}
	return err
}

func (c *Connection) lookupChannel(id uint16) (*channel.Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[id]
	return ch, ok
}

func (c *Connection) releaseChannel(id uint16) {
	c.mu.Lock()
	delete(c.channels, id)
	c.mu.Unlock()
	c.channelAlloc.Release(id)
}

func (c *Connection) handleConnectionMethod(m wire.Method) error {
	switch mm := m.(type) {
	case *wire.ConnectionStart:
		return c.handleStart(mm)
	case *wire.ConnectionTune:
		return c.handleTune(mm)
	case *wire.ConnectionClose:
		return c.handleServerClose(mm)
	case *wire.ConnectionBlocked:
		c.mu.Lock()
		c.flowEnabled = false
		c.mu.Unlock()
		return nil
	case *wire.ConnectionUnblocked:
		c.mu.Lock()
		c.flowEnabled = true
		c.mu.Unlock()
		return nil
	default:
		return c.handleSyncReply(m)
	}
}

func (c *Connection) handleSyncReply(m wire.Method) error {
	c.mu.Lock()
	er, ok := c.frames.NextExpectedReply(0)
	if !ok {
		c.state = Error
		c.mu.Unlock()
		return amqperr.New(amqperr.UnexpectedAnswer, "unexpected reply "+m.Name()+": no pending request")
	}
	answer, ok := er.Reply.(connAnswer)
	if !ok || !answer.Matches(m) {
		c.state = Error
		c.mu.Unlock()
		err := amqperr.New(amqperr.UnexpectedAnswer, "unexpected reply "+m.Name())
		if ok {
			answer.Fail(err)
		}
		return err
	}
	answer.Apply(c, m)
	c.mu.Unlock()
	return nil
}

// handleStart replies to connection.start with connection.start-ok (spec
// section 4.4, PreInit->...->ReceivedStart->SentStartOk).
func (c *Connection) handleStart(m *wire.ConnectionStart) error {
	c.mu.Lock()
	if c.state != SentProtocolHeader {
		c.state = Error
		c.mu.Unlock()
		return amqperr.New(amqperr.InvalidState, "connection.start received outside SentProtocolHeader")
	}
	c.state = ReceivedStart
	props := c.opts.ClientProperties
	user, pass := c.opts.Username, c.opts.Password
	c.state = SentStartOk
	c.mu.Unlock()

	startOk := wire.NewConnectionStartOk()
	startOk.ClientProperties = props
	startOk.Mechanism = "PLAIN"
	startOk.Response = "\x00" + user + "\x00" + pass
	startOk.Locale = "en_US"
	c.sendConnFrame(startOk)
	return nil
}

// handleTune negotiates channel_max/frame_max/heartbeat and immediately
// follows with connection.open, since SentTuneOk and SentOpen both precede
// any server reply (spec section 4.4).
func (c *Connection) handleTune(m *wire.ConnectionTune) error {
	c.mu.Lock()
	if c.state != SentStartOk {
		c.state = Error
		c.mu.Unlock()
		return amqperr.New(amqperr.InvalidState, "connection.tune received outside SentStartOk")
	}
	c.state = ReceivedTune

	channelMax := config.Negotiate(uint32(c.opts.ChannelMax), uint32(m.ChannelMax))
	if channelMax > 0xFFFF {
		channelMax = 0xFFFF
	}
	frameMax := config.Negotiate(c.opts.FrameMax, m.FrameMax)
	if frameMax == 0 {
		frameMax = config.DefaultFrameMax
	}
	heartbeat := config.NegotiateHeartbeat(c.opts.Heartbeat, time.Duration(m.Heartbeat)*time.Second)

	c.negotiatedChannelMax = uint16(channelMax)
	c.negotiatedFrameMax = frameMax
	c.negotiatedHeartbeat = heartbeat
	c.channelAlloc = ids.NewChannelAllocator(c.negotiatedChannelMax)
	c.state = SentTuneOk
	c.mu.Unlock()

	tuneOk := wire.NewConnectionTuneOk()
	tuneOk.ChannelMax = c.negotiatedChannelMax
	tuneOk.FrameMax = c.negotiatedFrameMax
	tuneOk.Heartbeat = uint16(heartbeat / time.Second)
	c.sendConnFrame(tuneOk)

	c.mu.Lock()
	vhost := c.opts.VirtualHost
	c.state = SentOpen
	c.mu.Unlock()

	p, r := promise.New[*wire.ConnectionOpenOk]()
	c.frames.PushExpected(0, framequeue.ExpectedReply{
		Reply:  &awaitingConnectionOpenOk{resolver: r},
		Cancel: func(err error) { r.Fail(err) },
	})
	c.sendConnFrame(wire.NewConnectionOpen(vhost))

	c.executor.Spawn(func() {
		_, err := p.Wait(context.Background())
		c.mu.Lock()
		resolver := c.connectResolver
		c.mu.Unlock()
		if resolver == nil {
			return
		}
		if err != nil {
			resolver.Fail(err)
			return
		}
		resolver.Resolve(c)
	})
	return nil
}

// Heartbeat returns the negotiated heartbeat interval (0 disables it).
func (c *Connection) Heartbeat() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiatedHeartbeat
}

// FrameMax returns the negotiated maximum frame size.
func (c *Connection) FrameMax() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiatedFrameMax
}

// CreateChannel allocates a channel-id and opens it (spec section 4.4,
// "Provides operations to open/close channels... by delegating to the
// owning Channel after verifying Connected").
func (c *Connection) CreateChannel() (*promise.Promise[*channel.Channel], error) {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return nil, amqperr.New(amqperr.InvalidState, "create_channel requires a Connected connection")
	}
	id, err := c.channelAlloc.Allocate()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	ch := channel.New(id, c.frames, c.reqIDs, c.executor, c.negotiatedFrameMax, c.applyGlobalQos, c.logger)
	c.channels[id] = ch
	c.mu.Unlock()

	openP, err := ch.Open()
	if err != nil {
		c.releaseChannel(id)
		return nil, err
	}

	p, r := promise.New[*channel.Channel]()
	c.executor.Spawn(func() {
		_, err := openP.Wait(context.Background())
		if err != nil {
			r.Fail(err)
			return
		}
		r.Resolve(ch)
	})
	return p, nil
}

// Channel returns a previously created channel by id.
func (c *Connection) Channel(id uint16) (*channel.Channel, bool) {
	return c.lookupChannel(id)
}

func (c *Connection) applyGlobalQos(size uint32, count uint16) {
	c.mu.Lock()
	c.prefetchSize = size
	c.prefetchCount = count
	c.mu.Unlock()
}

// Close sends connection.close (client-initiated shutdown).
func (c *Connection) Close(code uint16, text string) (*promise.Promise[*wire.ConnectionCloseOk], error) {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return nil, amqperr.New(amqperr.InvalidState, "close requires a Connected connection")
	}
	c.state = Closing
	c.mu.Unlock()

	p, r := promise.New[*wire.ConnectionCloseOk]()
	c.frames.PushExpected(0, framequeue.ExpectedReply{
		Reply:  &awaitingConnectionCloseOk{resolver: r},
		Cancel: func(err error) { r.Fail(err) },
	})
	c.sendConnFrame(wire.NewConnectionClose(code, text))
	return p, nil
}

// handleServerClose handles a broker-initiated connection.close: fails
// every channel and pending frame-queue entry, replies close-ok, and moves
// to Closed.
func (c *Connection) handleServerClose(m *wire.ConnectionClose) error {
	err := amqperr.ClosedBy(amqperr.ByPeer, amqperr.Closed(amqperr.ConnectionClosed, m.ReplyCode, m.ReplyText))

	c.mu.Lock()
	c.state = Closed
	c.closeErr = err
	chans := make([]*channel.Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		chans = append(chans, ch)
	}
	c.channels = make(map[uint16]*channel.Channel)
	c.mu.Unlock()

	c.frames.DropPending(err)
	for _, ch := range chans {
		ch.Fail(err)
	}

	c.logger.WithFields(logrus.Fields{"replyCode": m.ReplyCode, "replyText": m.ReplyText}).Info("connection closed by broker")
	c.sendConnFrame(wire.NewConnectionCloseOk())
	return nil
}

// Fail moves the connection to Error, failing every channel, every pending
// frame-queue entry, and (if still outstanding) the Connect() promise.
// Used by the I/O loop on a transport-level failure (spec section 7,
// "ConnectionClosed{io}").
func (c *Connection) Fail(err error) {
	c.mu.Lock()
	if c.state == Closed || c.state == Error {
		c.mu.Unlock()
		return
	}
	c.state = Error
	c.closeErr = err
	chans := make([]*channel.Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		chans = append(chans, ch)
	}
	c.channels = make(map[uint16]*channel.Channel)
	resolver := c.connectResolver
	c.mu.Unlock()

	c.frames.DropPending(err)
	for _, ch := range chans {
		ch.Fail(err)
	}
	if resolver != nil {
		resolver.Fail(err)
	}
}
