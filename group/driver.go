package group

import (
	"encoding/binary"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxcore/transport"
)

// Clock is the narrow time collaborator the group core consumes (spec.md
// §6 "Clock: monotonic wall-clock seconds"), mirroring the TimeProvider
// pattern used elsewhere in this module so tests can drive the periodic
// driver deterministically.
type Clock interface {
	Now() time.Time
}

// systemClock is the production Clock backed by the real wall clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// pingPayload is the periodic lossy sync probe of spec.md §4.9: four
// version counters the recipient compares against its own.
type pingPayload struct {
	ConfirmedPeerCount  uint32
	SharedStateVersion  uint32
	SanctionsVersion    uint32
	TopicVersion        uint32
}

func (p pingPayload) pack() []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], p.ConfirmedPeerCount)
	binary.BigEndian.PutUint32(buf[4:8], p.SharedStateVersion)
	binary.BigEndian.PutUint32(buf[8:12], p.SanctionsVersion)
	binary.BigEndian.PutUint32(buf[12:16], p.TopicVersion)
	return buf
}

func unpackPingPayload(data []byte) (pingPayload, error) {
	if len(data) < 16 {
		return pingPayload{}, errFrameTooShort
	}
	return pingPayload{
		ConfirmedPeerCount: binary.BigEndian.Uint32(data[0:4]),
		SharedStateVersion: binary.BigEndian.Uint32(data[4:8]),
		SanctionsVersion:   binary.BigEndian.Uint32(data[8:12]),
		TopicVersion:       binary.BigEndian.Uint32(data[12:16]),
	}, nil
}

// aheadOf reports whether p appears strictly more advanced than other in
// any dimension (spec.md §4.9): the trigger for arming a pending
// state-sync flag.
func (p pingPayload) aheadOf(other pingPayload) bool {
	return p.ConfirmedPeerCount > other.ConfirmedPeerCount ||
		p.SharedStateVersion > other.SharedStateVersion ||
		p.SanctionsVersion > other.SanctionsVersion ||
		p.TopicVersion > other.TopicVersion
}

// Tick runs one pass of the periodic driver (spec.md §4.9): TCP
// maintenance, pending-handshake dispatch, per-peer retransmission,
// per-peer timeouts, periodic ping, new-connection-meter decay, and the
// reconnection state machine. The outer messenger is expected to call
// this once per wall-clock second for every live group.
func (g *Group) Tick() {
	g.meter.decay()
	g.maintainTCPChannels()
	g.dispatchPendingHandshakes()
	g.retransmitDue()
	g.timeoutPeers()
	g.sendPings()
	g.driveReconnection()
}

// maintainTCPChannels opens a relay channel for any confirmed peer that
// has none yet, so retransmission and broadcast always have a fallback
// path even if the direct UDP path later goes stale.
func (g *Group) maintainTCPChannels() {
	if g.relay == nil {
		return
	}
	for _, p := range g.Peers.List() {
		if p.Conn == nil || p.Conn.TCPChannel != "" {
			continue
		}
		if p.Conn.State != ConnHandshaked && p.Conn.State != ConnConfirmed {
			continue
		}
		channel, err := g.relay.NewChannel(p.PublicKey.EncryptionPublic())
		if err != nil {
			continue // no relay address known yet; try again next tick
		}
		p.Conn.TCPChannel = channel
	}
}

// dispatchPendingHandshakes fires any handshake request a caller armed
// for later delivery (e.g. a reconnection attempt), once its scheduled
// time has arrived.
func (g *Group) dispatchPendingHandshakes() {
	now := g.now()
	for _, p := range g.Peers.List() {
		if p.Conn == nil || !p.Conn.PendingHandshakeSet {
			continue
		}
		if now.Before(p.Conn.PendingHandshakeAt) {
			continue
		}
		p.Conn.PendingHandshakeSet = false
		if err := g.InitiateHandshake(p, p.Conn.PendingHandshakeKind, RelayNode{}); err != nil {
			logrus.WithFields(logrus.Fields{"peer_id": p.PeerID, "error": err}).Warn("group: pending handshake dispatch failed")
		}
	}
}

// retransmitDue resends every outbound lossless frame that has aged past
// the retransmission interval without being acknowledged (spec.md §4.3).
func (g *Group) retransmitDue() {
	now := g.now()
	for _, p := range g.Peers.List() {
		if p.Conn == nil || p.Conn.stream == nil {
			continue
		}
		for _, entry := range p.Conn.stream.duePending(now) {
			if err := g.sendFrame(p, transport.PacketGroupLossless, entry.frame); err != nil {
				logrus.WithFields(logrus.Fields{"peer_id": p.PeerID, "error": err}).Warn("group: retransmit failed")
				continue
			}
			entry.lastSendTry = now
		}
	}
}

// timeoutPeers drops peers that have gone silent past their state's
// timeout (spec.md §4.4). Peer ids are snapshotted before deletion since
// PeerTable.Delete recompacts the underlying vector.
func (g *Group) timeoutPeers() {
	now := g.now()
	var ids []uint32
	peers := g.Peers.List()
	for _, idx := range g.Peers.TimedOut(now) {
		ids = append(ids, peers[idx].PeerID)
	}
	for _, id := range ids {
		peer, idx, ok := g.Peers.ByID(id)
		if !ok {
			continue
		}
		logrus.WithFields(logrus.Fields{"peer_id": id}).Info("group: peer timed out")
		if g.callbacks.OnPeerExit != nil {
			g.callbacks.OnPeerExit(id, "")
		}
		_ = peer
		_ = g.Peers.Delete(idx)
	}
}

// confirmedPeerCount counts peers (excluding self) whose connection has
// reached Confirmed.
func (g *Group) confirmedPeerCount() int {
	n := 0
	for _, p := range g.Peers.List() {
		if p.Conn != nil && p.Conn.State == ConnConfirmed {
			n++
		}
	}
	return n
}

// selfPing builds the local ping payload advertised to peers.
func (g *Group) selfPing() pingPayload {
	return pingPayload{
		ConfirmedPeerCount: uint32(g.confirmedPeerCount()),
		SharedStateVersion: g.sharedStateVersion(),
		SanctionsVersion:   g.sanctionsVersion(),
		TopicVersion:       g.topicVersion(),
	}
}

// sendPings sends a periodic ping to every confirmed peer due for one
// (spec.md §4.9).
func (g *Group) sendPings() {
	now := g.now()
	ping := g.selfPing()
	selfID := g.Peers.Self().PeerID
	for _, p := range g.Peers.List() {
		if p.PeerID == selfID || p.Conn == nil || p.Conn.State != ConnConfirmed {
			continue
		}
		if !p.Conn.LastPing.IsZero() && now.Sub(p.Conn.LastPing) < pingInterval {
			continue
		}
		if err := g.sendLossy(p, InnerPing, ping.pack()); err != nil {
			logrus.WithFields(logrus.Fields{"peer_id": p.PeerID, "error": err}).Debug("group: ping send failed")
			continue
		}
		p.Conn.LastPing = now
	}
}

// HandlePing compares an inbound ping against the local state and, per
// spec.md §4.9's two-step anti-storm rule, only requests a resync the
// *second* time the sender is found ahead in any dimension.
func (g *Group) HandlePing(peer *Peer, payload pingPayload) error {
	if !payload.aheadOf(g.selfPing()) {
		peer.Conn.PendingStateSync = false
		return nil
	}
	if !peer.Conn.PendingStateSync {
		peer.Conn.PendingStateSync = true
		return nil
	}
	peer.Conn.PendingStateSync = false
	return g.sendLossless(peer, InnerSyncRequest, nil)
}

// driveReconnection runs the group-level connectivity state machine
// (spec.md §4.9): a Disconnected group with known peers schedules fresh
// handshakes and moves to Connecting; a Connecting group that exceeds the
// reconnect backoff without reaching Connected falls back to
// Disconnected.
func (g *Group) driveReconnection() {
	now := g.now()
	switch g.groupState {
	case GroupDisconnected:
		if g.Peers.Count() <= 1 {
			return
		}
		for _, p := range g.Peers.List() {
			if p.PeerID == g.Peers.Self().PeerID || p.Conn == nil {
				continue
			}
			p.Conn.PendingHandshakeSet = true
			p.Conn.PendingHandshakeAt = now
			p.Conn.PendingHandshakeKind = RequestKindPeerInfoExchange
		}
		g.groupState = GroupConnecting
		g.reconnectStartedAt = now
	case GroupConnecting:
		if g.confirmedPeerCount() > 0 {
			g.groupState = GroupConnected
			return
		}
		if now.Sub(g.reconnectStartedAt) > reconnectBackoff {
			g.groupState = GroupDisconnected
		}
	case GroupConnected:
		if g.confirmedPeerCount() == 0 && g.Peers.Count() > 1 {
			g.groupState = GroupDisconnected
		}
	}
}
