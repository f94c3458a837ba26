// Package config carries the recognized connection options named in spec
// section 6: heartbeat, channel_max, frame_max, executor, reactor, and
// client_properties. Grounded on garagemq/vhost.go's pattern of threading a
// single *config.Config through construction (vhost.New(name, ..., srvConfig
// *config.Config)), generalized from server-side vhost config to
// client-side connection negotiation preferences.
package config

import (
	"time"

	"github.com/emulator000/amqpcore/runtime"
	"github.com/emulator000/amqpcore/wire"
)

// DefaultChannelMax bounds the channel-id allocator a Connection is built
// with, before connection.tune. Tune replaces that allocator with one
// bounded by min(client_preference, server_offer), 0 meaning unlimited on
// either side; when both sides are 0 the allocator spans the full uint16
// range (minus the reserved id 0), not DefaultChannelMax.
const DefaultChannelMax = 2047

// DefaultFrameMax mirrors the conventional RabbitMQ default frame size.
const DefaultFrameMax = 131072

// Options are the client-supplied preferences for a Connection (spec
// section 6, "Recognized options").
type Options struct {
	// Heartbeat is the client-preferred interval; 0 disables heartbeats.
	Heartbeat time.Duration
	// ChannelMax upper-bounds channel-id allocation; 0 means no client-side
	// preference (defer entirely to the broker's offer).
	ChannelMax uint16
	// FrameMax upper-bounds a single encoded frame.
	FrameMax uint32
	// Executor dispatches consumer delegates and return/confirm handler
	// callbacks; the heartbeat monitor does not run on it. Nil means the
	// default runtime.GoExecutor is used.
	Executor runtime.Executor
	// Reactor drives socket readiness and timers. Nil means the default
	// runtime.PollReactor is used.
	Reactor runtime.Reactor
	// ClientProperties is the fielded table sent at handshake.
	ClientProperties wire.Table
	// VirtualHost is the vhost path opened on connection.open.
	VirtualHost string
	// Username/Password authenticate the handshake's SASL PLAIN response.
	Username, Password string
}

// Default returns the baseline Options: a 60s heartbeat preference, no
// client-side channel-max/frame-max preference (broker's offer wins), and
// the default runtime.
func Default() Options {
	return Options{
		Heartbeat:   60 * time.Second,
		VirtualHost: "/",
		Username:    "guest",
		Password:    "guest",
		ClientProperties: wire.Table{
			"product": "amqpcore",
		},
	}
}

// Negotiate applies spec section 4.4's min(client_preference,
// server_offer)-with-zero-meaning-unlimited rule.
func Negotiate(clientPreference, serverOffer uint32) uint32 {
	switch {
	case clientPreference == 0:
		return serverOffer
	case serverOffer == 0:
		return clientPreference
	case clientPreference < serverOffer:
		return clientPreference
	default:
		return serverOffer
	}
}

// NegotiateHeartbeat is Negotiate specialized to the uint16 heartbeat field.
func NegotiateHeartbeat(clientPreference, serverOffer time.Duration) time.Duration {
	cp := uint32(clientPreference / time.Second)
	so := uint32(serverOffer / time.Second)
	return time.Duration(Negotiate(cp, so)) * time.Second
}
