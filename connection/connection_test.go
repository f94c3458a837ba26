package connection_test

import (
	"context"
	"testing"
	"time"

	"github.com/emulator000/amqpcore/config"
	"github.com/emulator000/amqpcore/connection"
	"github.com/emulator000/amqpcore/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T) (*connection.Connection, *wire.ConnectionOpen) {
	t.Helper()
	c := connection.New(config.Default())
	p, header := c.Connect()
	require.Equal(t, wire.ProtocolHeader[:], header)

	require.NoError(t, c.Dispatch(wire.Frame{ChannelID: 0, Type: wire.FrameMethod, Method: wire.NewConnectionStart()}))

	of, ok := c.Frames().Pop(true)
	require.True(t, ok)
	startOk, ok := of.Frame.Method.(*wire.ConnectionStartOk)
	require.True(t, ok)
	assert.Equal(t, "\x00guest\x00guest", startOk.Response)

	require.NoError(t, c.Dispatch(wire.Frame{ChannelID: 0, Type: wire.FrameMethod, Method: wire.NewConnectionTune()}))

	of, ok = c.Frames().Pop(true)
	require.True(t, ok)
	_, ok = of.Frame.Method.(*wire.ConnectionTuneOk)
	require.True(t, ok)

	of, ok = c.Frames().Pop(true)
	require.True(t, ok)
	open, ok := of.Frame.Method.(*wire.ConnectionOpen)
	require.True(t, ok)

	require.NoError(t, c.Dispatch(wire.Frame{ChannelID: 0, Type: wire.FrameMethod, Method: wire.NewConnectionOpenOk()}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, connection.Connected, c.State())

	return c, open
}

func TestHandshakeReachesConnected(t *testing.T) {
	c, open := dial(t)
	assert.Equal(t, "/", open.VirtualHost)
}

func TestCreateChannelOpensAndTracksIt(t *testing.T) {
	c, _ := dial(t)

	chP, err := c.CreateChannel()
	require.NoError(t, err)

	of, ok := c.Frames().Pop(true)
	require.True(t, ok)
	_, ok = of.Frame.Method.(*wire.ChannelOpen)
	require.True(t, ok)
	channelID := of.Frame.ChannelID

	require.NoError(t, c.Dispatch(wire.Frame{ChannelID: channelID, Type: wire.FrameMethod, Method: wire.NewChannelOpenOk()}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ch, err := chP.Wait(ctx)
	require.NoError(t, err)

	got, ok := c.Channel(channelID)
	require.True(t, ok)
	assert.Equal(t, ch, got)
}

func TestServerCloseFailsOwnedChannels(t *testing.T) {
	c, _ := dial(t)

	chP, err := c.CreateChannel()
	require.NoError(t, err)
	of, ok := c.Frames().Pop(true)
	require.True(t, ok)
	channelID := of.Frame.ChannelID
	require.NoError(t, c.Dispatch(wire.Frame{ChannelID: channelID, Type: wire.FrameMethod, Method: wire.NewChannelOpenOk()}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ch, err := chP.Wait(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Dispatch(wire.Frame{ChannelID: 0, Type: wire.FrameMethod, Method: wire.NewConnectionClose(320, "CONNECTION_FORCED")}))
	assert.Equal(t, connection.Closed, c.State())
	assert.Error(t, ch.CloseError())

	of, ok = c.Frames().Pop(true)
	require.True(t, ok)
	_, ok = of.Frame.Method.(*wire.ConnectionCloseOk)
	assert.True(t, ok)
}

func TestClientCloseRoundTrip(t *testing.T) {
	c, _ := dial(t)

	closeP, err := c.Close(200, "bye")
	require.NoError(t, err)

	of, ok := c.Frames().Pop(true)
	require.True(t, ok)
	_, ok = of.Frame.Method.(*wire.ConnectionClose)
	require.True(t, ok)

	require.NoError(t, c.Dispatch(wire.Frame{ChannelID: 0, Type: wire.FrameMethod, Method: wire.NewConnectionCloseOk()}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = closeP.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, connection.Closed, c.State())
}

func TestDispatchToUnknownChannelIsError(t *testing.T) {
	c, _ := dial(t)
	err := c.Dispatch(wire.Frame{ChannelID: 7, Type: wire.FrameMethod, Method: wire.NewChannelOpenOk()})
	assert.Error(t, err)
}
