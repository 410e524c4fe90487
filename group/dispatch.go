package group

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxcore/transport"
)

// HandleLosslessFrame decrypts and dispatches an inbound Lossless frame,
// feeding it through the per-connection reliability window so delivery
// stays in send order (spec.md §4.3, §4.1).
func (g *Group) HandleLosslessFrame(frame []byte) error {
	header, _, err := unpackOuterHeader(frame)
	if err != nil {
		return nil
	}
	peer, _, ok := g.Peers.ByEncryptionKey(header.SenderEncKey)
	if !ok || peer.Conn == nil {
		return nil
	}
	_, plaintext, err := unwrapFrame(frame, peer.Conn.SharedKey, header.SenderEncKey)
	if err != nil {
		return nil // authentication failure: drop, do not touch timers (spec.md §7)
	}
	typ, msgID, payload, err := decodeLossless(plaintext)
	if err != nil {
		return nil
	}

	peer.LastHeard = g.now()
	if peer.Conn.State == ConnHandshaked {
		peer.Conn.State = ConnConfirmed
	}

	delivered, ack := peer.Conn.stream.accept(msgID, typ, payload, g.now())
	if ack != nil {
		if err := g.sendLossy(peer, InnerMessageAck, ack.pack()); err != nil {
			logrus.WithFields(logrus.Fields{"peer_id": peer.PeerID, "error": err}).Debug("group: ack send failed")
		}
	}
	for _, d := range delivered {
		if err := g.dispatchInner(peer, d.typ, d.payload); err != nil {
			logrus.WithFields(logrus.Fields{"peer_id": peer.PeerID, "inner_type": d.typ, "error": err}).Warn("group: inner packet handling failed")
		}
	}
	return nil
}

// HandleLossyFrame decrypts and dispatches an inbound Lossy frame: pings,
// message acks, and best-effort address hints.
func (g *Group) HandleLossyFrame(frame []byte) error {
	header, _, err := unpackOuterHeader(frame)
	if err != nil {
		return nil
	}
	peer, _, ok := g.Peers.ByEncryptionKey(header.SenderEncKey)
	if !ok || peer.Conn == nil {
		return nil
	}
	_, plaintext, err := unwrapFrame(frame, peer.Conn.SharedKey, header.SenderEncKey)
	if err != nil {
		return nil
	}
	typ, payload, err := decodeLossy(plaintext)
	if err != nil {
		return nil
	}

	peer.LastHeard = g.now()
	switch typ {
	case InnerPing:
		ping, err := unpackPingPayload(payload)
		if err != nil {
			return nil
		}
		return g.HandlePing(peer, ping)
	case InnerMessageAck:
		ack, err := unpackMessageAck(payload)
		if err != nil {
			return nil
		}
		g.handleMessageAck(peer, ack)
		return nil
	case InnerIPPort:
		addr, _, err := unpackIPPort(payload)
		if err != nil {
			return nil
		}
		peer.Conn.LastDirectAddr = &addr
		peer.Conn.LastDirectRecv = g.now()
		return nil
	default:
		return nil
	}
}

// handleMessageAck drives the send-side reliability window: a read ack
// clears acknowledged ring entries, a gap request retransmits the
// specific missing frame immediately rather than waiting for the next
// scheduled retransmission (spec.md §4.3, testable property 5).
func (g *Group) handleMessageAck(peer *Peer, ack messageAck) {
	switch ack.Kind {
	case AckRead:
		peer.Conn.stream.ackRead(ack.MessageID)
	case AckRequest:
		if entry := peer.Conn.stream.entryFor(ack.MessageID); entry != nil {
			if err := g.sendFrame(peer, transport.PacketGroupLossless, entry.frame); err == nil {
				entry.lastSendTry = g.now()
			}
		}
	}
}

// dispatchInner routes one in-order delivered lossless packet to its
// handler (spec.md §6 "inner packet types").
func (g *Group) dispatchInner(peer *Peer, typ InnerType, payload []byte) error {
	switch typ {
	case InnerSyncRequest:
		return g.HandleSyncRequest(peer)
	case InnerSyncResponse:
		return g.handleSyncResponse(payload)
	case InnerInviteRequest:
		req, err := unpackInviteRequest(payload)
		if err != nil {
			return nil
		}
		return g.HandleInviteRequest(peer, req)
	case InnerInviteResponse:
		return g.handleInviteResponse(peer)
	case InnerInviteResponseReject:
		rej, err := unpackInviteResponseReject(payload)
		if err != nil {
			return nil
		}
		if g.callbacks.OnReject != nil {
			g.callbacks.OnReject(rej.Reason)
		}
		return nil
	case InnerPeerInfoRequest:
		return g.sendPeerInfoExchange(peer)
	case InnerPeerInfoResponse:
		resp, err := unpackPeerInfoResponse(payload)
		if err != nil {
			return nil
		}
		return g.handlePeerInfoResponse(peer, resp)
	case InnerPeerAnnounce:
		ann, err := unpackPeerAnnounce(payload)
		if err != nil {
			return nil
		}
		return g.handlePeerAnnounce(ann)
	case InnerSharedState:
		return g.handleSharedState(peer, payload)
	case InnerModList:
		return g.handleModList(payload)
	case InnerSanctionsList:
		return g.handleSanctionsList(payload)
	case InnerTopic:
		return g.handleTopic(payload)
	case InnerHsResponseAck:
		return nil
	case InnerBroadcast:
		return g.handleBroadcast(peer, payload)
	case InnerCustomPacket:
		if g.callbacks.OnCustomPacket != nil {
			g.callbacks.OnCustomPacket(peer.PeerID, true, payload)
		}
		return nil
	default:
		return nil // unknown inner type: drop silently, spec.md §7
	}
}

// handleSyncResponse admits every peer named in a sync roster that is not
// already known, scheduling a handshake toward each (spec.md §4.5 item 5).
func (g *Group) handleSyncResponse(payload []byte) error {
	resp, err := unpackSyncResponse(payload)
	if err != nil {
		return nil
	}
	selfEnc := g.Self.Public.EncryptionPublic()
	for _, entry := range resp.Peers {
		if entry.PeerEncKey == selfEnc {
			continue
		}
		if _, _, exists := g.Peers.ByEncryptionKey(entry.PeerEncKey); exists {
			continue
		}
		var extPub ExtendedPublicKey
		copy(extPub[:32], entry.PeerEncKey[:])
		newPeer, err := g.Peers.Add(extPub, nil)
		if err != nil {
			continue
		}
		if g.relay != nil {
			g.relay.RegisterRelayAddress(entry.PeerEncKey, entry.Relay.Address)
		}
		if err := g.InitiateHandshake(newPeer, RequestKindPeerInfoExchange, entry.Relay); err != nil {
			logrus.WithFields(logrus.Fields{"peer_id": newPeer.PeerID, "error": err}).Warn("group: sync-response handshake initiation failed")
		}
	}
	return nil
}

// handlePeerAnnounce admits a newly joined peer announced by another
// confirmed member, proactively connecting to it (spec.md §4.5).
func (g *Group) handlePeerAnnounce(ann peerAnnounce) error {
	if ann.PeerEncKey == g.Self.Public.EncryptionPublic() {
		return nil
	}
	if _, _, exists := g.Peers.ByEncryptionKey(ann.PeerEncKey); exists {
		return nil
	}
	var extPub ExtendedPublicKey
	copy(extPub[:32], ann.PeerEncKey[:])
	copy(extPub[32:], ann.PeerSignKey[:])
	newPeer, err := g.Peers.Add(extPub, nil)
	if err != nil {
		return nil
	}
	if g.relay != nil {
		g.relay.RegisterRelayAddress(ann.PeerEncKey, ann.Relay.Address)
	}
	return g.InitiateHandshake(newPeer, RequestKindPeerInfoExchange, ann.Relay)
}

// handleInviteResponse marks the connection Confirmed on acceptance and
// immediately requests the full sync sequence (spec.md §4.5).
func (g *Group) handleInviteResponse(peer *Peer) error {
	peer.Conn.State = ConnConfirmed
	wasConnected := g.groupState == GroupConnected
	g.groupState = GroupConnected
	if !wasConnected && g.callbacks.OnSelfJoin != nil {
		g.callbacks.OnSelfJoin()
	}
	if g.callbacks.OnPeerJoin != nil {
		g.callbacks.OnPeerJoin(peer.PeerID)
	}
	return g.sendLossless(peer, InnerSyncRequest, nil)
}

// handlePeerInfoResponse installs the responder's nick/status after a
// PeerInfoExchange handshake (spec.md §4.5).
func (g *Group) handlePeerInfoResponse(peer *Peer, resp peerInfoResponse) error {
	if _, dup := g.Peers.duplicateNickIndex(resp.Nick, -1); !dup {
		peer.Nick = resp.Nick
	}
	peer.Status = resp.Status
	peer.Conn.State = ConnConfirmed
	if g.callbacks.OnPeerJoin != nil {
		g.callbacks.OnPeerJoin(peer.PeerID)
	}
	return nil
}

// handleSharedState applies an inbound shared-state replica under the
// version/signature replication rule (spec.md §4.6, invariants 2-4).
func (g *Group) handleSharedState(peer *Peer, payload []byte) error {
	incoming, err := unpackSharedState(payload)
	if err != nil {
		return nil
	}
	next, err := acceptIncoming(g.State, incoming)
	if err != nil {
		return nil // bad signature or stale version: drop silently
	}
	g.State = &next
	if peer.Conn != nil {
		peer.Conn.PeerSentSharedStateVersion = next.Version
	}
	g.refreshSelfRole()
	if g.callbacks.OnPrivacyChange != nil {
		g.callbacks.OnPrivacyChange(next.Privacy)
	}
	if g.discovery != nil {
		_ = g.discovery.Announce(g.chatIDHash, next.Name, next.Privacy)
	}
	return nil
}

// handleModList installs an inbound moderator list only if it is bound to
// the currently held shared state's hash (invariant 2).
func (g *Group) handleModList(payload []byte) error {
	if g.State == nil {
		return nil
	}
	mods, err := unpackModeratorList(payload)
	if err != nil {
		return nil
	}
	if hashModeratorList(mods) != g.State.ModListHash {
		return nil
	}
	g.Mods = mods
	g.refreshSelfRole()
	return nil
}

// handleSanctionsList installs an inbound sanctions list only after its
// hash chain and every entry signature verify against the currently
// trusted signer set (invariant 3).
func (g *Group) handleSanctionsList(payload []byte) error {
	if g.State == nil {
		return nil
	}
	incoming, err := unpackSanctionsList(payload)
	if err != nil {
		return nil
	}
	founder := g.State.Founder.SignaturePublic()
	signerOK := func(signPublic [32]byte) bool {
		return signPublic == founder || g.Mods.Contains(signPublic)
	}
	if err := incoming.verifyIntegrity(signerOK); err != nil {
		return nil
	}
	if g.Sanctions != nil && incoming.Credentials.Version < g.Sanctions.Credentials.Version {
		return nil
	}
	g.Sanctions = incoming
	return nil
}

// handleTopic installs an inbound topic under the strictly-newer-wins
// rule (spec.md §4.6 invariant 5, scenario S6).
func (g *Group) handleTopic(payload []byte) error {
	if g.State == nil {
		return nil
	}
	incoming, err := unpackTopic(payload)
	if err != nil {
		return nil
	}
	t, err := acceptTopic(g.Topic, incoming, g.State.Founder.SignaturePublic(), g.Mods)
	if err != nil {
		return nil
	}
	g.Topic = &t
	if g.callbacks.OnTopicChange != nil {
		g.callbacks.OnTopicChange(t.Text)
	}
	return nil
}

// refreshSelfRole re-derives self's locally authoritative role from the
// currently held shared state and moderator list (spec.md §4.7), run
// after any update that could change either.
func (g *Group) refreshSelfRole() {
	self := g.Peers.Self()
	switch {
	case g.State != nil && self.PublicKey.EncryptionPublic() == g.State.Founder.EncryptionPublic():
		self.Role = RoleFounder
	case g.Mods.Contains(self.PublicKey.SignaturePublic()):
		self.Role = RoleModerator
	case self.Role == RoleObserver:
		// sanctions-imposed restriction persists until explicitly lifted
	default:
		self.Role = RoleUser
	}
}

// handleBroadcast dispatches an InnerBroadcast packet by its type
// (spec.md §4.8).
func (g *Group) handleBroadcast(peer *Peer, payload []byte) error {
	bf, err := unpackBroadcastFrame(payload)
	if err != nil {
		return nil
	}
	if bf.SenderHash != PeerKeyHash(peer.PublicKey.EncryptionPublic()) {
		return nil // forged sender hash, scenario S5
	}

	switch bf.Type {
	case BroadcastStatus:
		if len(bf.Payload) < 1 {
			return nil
		}
		peer.Status = PeerStatus(bf.Payload[0])
		if g.callbacks.OnStatusChange != nil {
			g.callbacks.OnStatusChange(peer.PeerID, peer.Status)
		}
	case BroadcastNick:
		nick := string(bf.Payload)
		if _, dup := g.Peers.duplicateNickIndex(nick, -1); dup {
			if _, idx, ok := g.Peers.ByPublicKey(peer.PublicKey); ok {
				_ = g.Peers.Delete(idx) // testable property 6
			}
			return nil
		}
		peer.Nick = nick
		if g.callbacks.OnNickChange != nil {
			g.callbacks.OnNickChange(peer.PeerID, nick)
		}
	case BroadcastPlainMessage, BroadcastActionMessage:
		if peer.Role == RoleObserver {
			return nil
		}
		if g.callbacks.OnMessage != nil {
			g.callbacks.OnMessage(peer.PeerID, bf.Type == BroadcastActionMessage, string(bf.Payload))
		}
	case BroadcastPrivateMessage:
		if g.callbacks.OnPrivateMessage != nil {
			g.callbacks.OnPrivateMessage(peer.PeerID, string(bf.Payload))
		}
	case BroadcastPeerExit:
		if _, idx, ok := g.Peers.ByPublicKey(peer.PublicKey); ok {
			_ = g.Peers.Delete(idx)
		}
		if g.callbacks.OnPeerExit != nil {
			g.callbacks.OnPeerExit(peer.PeerID, string(bf.Payload))
		}
	case BroadcastRemovePeer:
		rp, err := unpackRemovePeerPayload(bf.Payload)
		if err != nil {
			return nil
		}
		if target, idx, ok := g.Peers.ByEncryptionKey(rp.TargetEncKey); ok {
			targetID := target.PeerID
			_ = g.Peers.Delete(idx)
			if g.callbacks.OnModeration != nil {
				kind := "kick"
				if rp.SetBan {
					kind = "ban"
				}
				g.callbacks.OnModeration(targetID, kind)
			}
		}
	case BroadcastRemoveBan:
		// Carries only the advanced credentials; the full list arrives
		// via a following InnerSanctionsList, or catches up on the next
		// ping-armed resync (spec.md §4.9).
	case BroadcastSetMod:
		sp, err := unpackSetModPayload(bf.Payload)
		if err != nil {
			return nil
		}
		if target, _, ok := g.Peers.BySignatureKey(sp.TargetSignKey); ok {
			if sp.IsModerator {
				target.Role = RoleModerator
			} else if target.Role == RoleModerator {
				target.Role = RoleUser
			}
		}
	case BroadcastSetObserver:
		so, err := unpackSetObserverPayload(bf.Payload)
		if err != nil {
			return nil
		}
		if target, _, ok := g.Peers.ByEncryptionKey(so.TargetEncKey); ok {
			if so.IsObserver {
				target.Role = RoleObserver
			} else if target.Role == RoleObserver {
				target.Role = RoleUser
			}
		}
	}
	return nil
}
