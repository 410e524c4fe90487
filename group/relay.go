package group

import (
	"errors"
	"net"
	"sync"

	"github.com/opd-ai/toxcore/transport"
)

var errNoRelayAddress = errors.New("group: no relay address registered for peer")

// TCPMultiplex is the narrow TCP-relay collaborator interface the group
// core consumes (spec.md §6): a connection multiplex with per-peer
// logical channels.
type TCPMultiplex interface {
	NewChannel(peerEncKey [32]byte) (channel string, err error)
	Send(channel string, data []byte) error
	SendOOB(via RelayNode, toPeerEncKey [32]byte, data []byte) error
	SetStatus(channel string, useTCP bool) error
	Kill(channel string) error
	RegisterRelayAddress(peerEncKey [32]byte, addr transport.NetworkAddress)
}

// multiplexRelay adapts transport.ConnectionMultiplexer to TCPMultiplex.
// The teacher's multiplexer addresses connections by net.Addr rather than
// by peer key, so this adapter keeps a small peer-key-to-address registry
// populated from handshake and sync-response relay hints.
type multiplexRelay struct {
	mux *transport.ConnectionMultiplexer

	mu       sync.Mutex
	addrs    map[[32]byte]net.Addr
	channels map[[32]byte]string
}

// NewMultiplexRelay wraps an already-started ConnectionMultiplexer.
func NewMultiplexRelay(mux *transport.ConnectionMultiplexer) TCPMultiplex {
	return &multiplexRelay{
		mux:      mux,
		addrs:    make(map[[32]byte]net.Addr),
		channels: make(map[[32]byte]string),
	}
}

// RegisterRelayAddress records the dialable address behind a TCP relay
// hint carried in a handshake payload, sync response, or peer announce,
// so a later NewChannel/SendOOB call can reach it.
func (r *multiplexRelay) RegisterRelayAddress(peerEncKey [32]byte, addr transport.NetworkAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs[peerEncKey] = addr.ToNetAddr()
}

func (r *multiplexRelay) NewChannel(peerEncKey [32]byte) (string, error) {
	r.mu.Lock()
	addr, ok := r.addrs[peerEncKey]
	r.mu.Unlock()
	if !ok {
		return "", errNoRelayAddress
	}
	conn, err := r.mux.CreateConnection(addr)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.channels[peerEncKey] = conn.ID
	r.mu.Unlock()
	return conn.ID, nil
}

func (r *multiplexRelay) Send(channel string, data []byte) error {
	return r.mux.SendPacket(channel, &transport.Packet{PacketType: transport.PacketGroupLossless, Data: data})
}

// SendOOB routes data to toPeerEncKey through via's relay address. The
// underlying multiplexer has no server-side relay protocol of its own, so
// the target key is carried as a prefix the relay operator is expected to
// demultiplex on (spec.md §4.2 "OOB path").
func (r *multiplexRelay) SendOOB(via RelayNode, toPeerEncKey [32]byte, data []byte) error {
	conn, err := r.mux.CreateConnection(via.Address.ToNetAddr())
	if err != nil {
		return err
	}
	payload := make([]byte, 32+len(data))
	copy(payload[:32], toPeerEncKey[:])
	copy(payload[32:], data)
	return r.mux.SendPacket(conn.ID, &transport.Packet{PacketType: transport.PacketGroupHandshake, Data: payload})
}

// SetStatus is a no-op: the teacher's multiplexer does not distinguish a
// channel's direct-vs-relayed transport mode at this layer; path
// selection (spec.md §4.3 "dual transport") is done one level up by
// Group.sendFrame, which uses direct UDP when the connection's
// directPathReachable reports true and the relay channel otherwise.
func (r *multiplexRelay) SetStatus(channel string, useTCP bool) error {
	return nil
}

func (r *multiplexRelay) Kill(channel string) error {
	return r.mux.CloseConnection(channel)
}
