package ioloop_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/emulator000/amqpcore/config"
	"github.com/emulator000/amqpcore/connection"
	"github.com/emulator000/amqpcore/ioloop"
	"github.com/emulator000/amqpcore/promise"
	"github.com/emulator000/amqpcore/runtime"
	"github.com/emulator000/amqpcore/wire"
	"github.com/stretchr/testify/require"
)

// testCodec is a minimal stand-in for a real AMQP 0-9-1 codec: it encodes
// only the one byte of information these tests need (the frame type), and
// on decode always produces a fixed connection.start for a method frame.
// The real bit layout is an external collaborator per spec section 1.
type testCodec struct{}

func (testCodec) ReadFrame(r io.Reader) (wire.Frame, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return wire.Frame{}, err
	}
	switch wire.FrameType(buf[0]) {
	case wire.FrameHeartbeat:
		return wire.Frame{Type: wire.FrameHeartbeat}, nil
	case wire.FrameMethod:
		return wire.Frame{Type: wire.FrameMethod, ChannelID: 0, Method: wire.NewConnectionStart()}, nil
	default:
		return wire.Frame{}, errors.New("testCodec: unknown frame type byte")
	}
}

func (testCodec) WriteFrame(w io.Writer, f wire.Frame) error {
	_, err := w.Write([]byte{byte(f.Type)})
	return err
}

func TestWritePumpDeliversPushedFrameAndResolves(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	conn := connection.New(config.Default())
	reactor := runtime.NewPollReactor()
	loop, err := ioloop.New(conn, testCodec{}, serverConn, reactor, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go loop.Run(ctx)

	p, r := promise.New[struct{}]()
	conn.Frames().Push(0, wire.Heartbeat(), r, nil)

	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 1)
	_, err = io.ReadFull(clientConn, buf)
	require.NoError(t, err)
	require.Equal(t, byte(wire.FrameHeartbeat), buf[0])

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	_, err = p.Wait(waitCtx)
	require.NoError(t, err)
}

func TestReadPumpDispatchesInboundMethodAndConnectionReplies(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	conn := connection.New(config.Default())
	_, _ = conn.Connect() // advances state to SentProtocolHeader

	reactor := runtime.NewPollReactor()
	loop, err := ioloop.New(conn, testCodec{}, serverConn, reactor, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go loop.Run(ctx)

	go func() {
		_, _ = clientConn.Write([]byte{byte(wire.FrameMethod)})
	}()

	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 1)
	_, err = io.ReadFull(clientConn, buf)
	require.NoError(t, err)
	require.Equal(t, byte(wire.FrameMethod), buf[0])
}
