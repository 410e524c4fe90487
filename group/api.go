package group

import (
	"errors"

	"github.com/sirupsen/logrus"
)

var errEmptyMessage = errors.New("group: message must not be empty")

// selfBroadcastFrame packs a broadcastFrame stamped with the local peer's
// sender hash and the current wall clock (spec.md §4.8).
func (g *Group) selfBroadcastFrame(typ BroadcastType, payload []byte) []byte {
	return (broadcastFrame{
		Type:       typ,
		SenderHash: PeerKeyHash(g.Self.Public.EncryptionPublic()),
		Timestamp:  uint64(g.now().Unix()),
		Payload:    payload,
	}).pack()
}

// SendMessage broadcasts a plain or action message to every confirmed
// peer (spec.md §4.8). Observers may not send messages (spec.md §4.7).
func (g *Group) SendMessage(text string, action bool) error {
	if !CanSendMessage(g.selfRole()) {
		return ErrPermissionDenied
	}
	if len(text) == 0 {
		return errEmptyMessage
	}
	typ := BroadcastPlainMessage
	if action {
		typ = BroadcastActionMessage
	}
	g.broadcastLossless(InnerBroadcast, g.selfBroadcastFrame(typ, []byte(text)), 0)
	return nil
}

// SendPrivateMessage sends text down a single peer's connection instead
// of to the whole group (spec.md §4.8).
func (g *Group) SendPrivateMessage(peerID uint32, text string) error {
	if len(text) == 0 {
		return errEmptyMessage
	}
	peer, _, ok := g.Peers.ByID(peerID)
	if !ok {
		return ErrBadPeerID
	}
	if peer.Conn == nil || peer.Conn.State != ConnConfirmed {
		return ErrBadPeerID
	}
	return g.sendLossless(peer, InnerBroadcast, g.selfBroadcastFrame(BroadcastPrivateMessage, []byte(text)))
}

// SendCustomPacket delivers an opaque application payload to a single
// peer, lossless or lossy as requested (spec.md §4.8).
func (g *Group) SendCustomPacket(peerID uint32, lossless bool, data []byte) error {
	if !CanSendCustomPacket(g.selfRole()) {
		return ErrPermissionDenied
	}
	peer, _, ok := g.Peers.ByID(peerID)
	if !ok {
		return ErrBadPeerID
	}
	if peer.Conn == nil || peer.Conn.State != ConnConfirmed {
		return ErrBadPeerID
	}
	if lossless {
		return g.sendLossless(peer, InnerCustomPacket, data)
	}
	return g.sendLossy(peer, InnerCustomPacket, data)
}

// SetNick changes the local nick and announces it, rejecting a nick
// already claimed by another peer (spec.md testable property 6). Self is
// always index 0 in the peer table (invariant 1).
func (g *Group) SetNick(nick string) error {
	if len(nick) == 0 || len([]byte(nick)) > MaxNickLength {
		return ErrBadArgument
	}
	if _, dup := g.Peers.duplicateNickIndex(nick, 0); dup {
		return ErrBadArgument
	}
	g.Peers.Self().Nick = nick
	g.broadcastLossless(InnerBroadcast, g.selfBroadcastFrame(BroadcastNick, []byte(nick)), 0)
	return nil
}

// SetStatus changes the local presence status and announces it.
func (g *Group) SetStatus(status PeerStatus) error {
	g.Peers.Self().Status = status
	g.broadcastLossless(InnerBroadcast, g.selfBroadcastFrame(BroadcastStatus, []byte{byte(status)}), 0)
	return nil
}

// SetPrivacy flips the group between Public and Private, atomically
// updating DHT announcement (spec.md invariant 7).
func (g *Group) SetPrivacy(privacy Privacy) error {
	if !CanSetSharedState(g.selfRole()) {
		return ErrNotFounder
	}
	state, err := signAsFounder(g.State, func(s *SharedState) {
		s.Privacy = privacy
	}, g.founderSignSeed)
	if err != nil {
		return err
	}
	g.State = &state
	g.broadcastLossless(InnerSharedState, g.State.pack(), 0)
	if g.discovery != nil {
		if privacy == PrivacyPrivate {
			g.discovery.Unannounce(g.chatIDHash)
		} else {
			_ = g.discovery.Announce(g.chatIDHash, g.State.Name, privacy)
		}
	}
	if g.callbacks.OnPrivacyChange != nil {
		g.callbacks.OnPrivacyChange(privacy)
	}
	logrus.WithFields(logrus.Fields{"chat_id_hash": g.chatIDHash, "privacy": privacy}).Info("group: privacy changed")
	return nil
}

// SetPassword changes the join password, founder only.
func (g *Group) SetPassword(password string) error {
	if !CanSetSharedState(g.selfRole()) {
		return ErrNotFounder
	}
	if len([]byte(password)) > MaxPasswordLength {
		return ErrBadArgument
	}
	state, err := signAsFounder(g.State, func(s *SharedState) {
		s.Password = password
	}, g.founderSignSeed)
	if err != nil {
		return err
	}
	g.State = &state
	g.broadcastLossless(InnerSharedState, g.State.pack(), 0)
	if g.callbacks.OnPasswordChange != nil {
		g.callbacks.OnPasswordChange(password)
	}
	return nil
}

// SetMaxPeers changes the group's peer cap, founder only.
func (g *Group) SetMaxPeers(maxPeers uint32) error {
	if !CanSetSharedState(g.selfRole()) {
		return ErrNotFounder
	}
	state, err := signAsFounder(g.State, func(s *SharedState) {
		s.MaxPeers = maxPeers
	}, g.founderSignSeed)
	if err != nil {
		return err
	}
	g.State = &state
	g.broadcastLossless(InnerSharedState, g.State.pack(), 0)
	if g.callbacks.OnPeerLimitChange != nil {
		g.callbacks.OnPeerLimitChange(maxPeers)
	}
	return nil
}

// RemovePeer kicks or bans peerID (spec.md testable property 8,
// "gc_remove_peer"). A kick (setBan=false) only deletes the local record
// and broadcasts the removal; a ban additionally appends a signed
// sanctions entry via SanctionPeer so the target cannot silently rejoin.
func (g *Group) RemovePeer(peerID uint32, setBan bool, signerSeed, signerSignPublic [32]byte) error {
	peer, idx, ok := g.Peers.ByID(peerID)
	if !ok {
		return ErrBadPeerID
	}
	if !CanSanction(g.selfRole(), peer.Role) {
		return ErrPermissionDenied
	}
	if setBan {
		return g.SanctionPeer(g.selfRole(), peer, SanctionBan, signerSeed, signerSignPublic, true)
	}

	_ = g.Peers.Delete(idx)
	payload := removePeerPayload{TargetEncKey: peer.PublicKey.EncryptionPublic(), SetBan: false}
	g.broadcastLossless(InnerBroadcast, g.selfBroadcastFrame(BroadcastRemovePeer, payload.pack()), 0)
	if g.callbacks.OnModeration != nil {
		g.callbacks.OnModeration(peerID, "kick")
	}
	logrus.WithFields(logrus.Fields{"peer_id": peerID}).Info("group: peer kicked")
	return nil
}

// SetObserver promotes a User to Observer, or demotes an Observer back to
// User (spec.md §4.7 CanToggleObserver).
func (g *Group) SetObserver(peerID uint32, isObserver bool) error {
	peer, _, ok := g.Peers.ByID(peerID)
	if !ok {
		return ErrBadPeerID
	}
	if !CanToggleObserver(g.selfRole()) {
		return ErrPermissionDenied
	}
	if isObserver {
		peer.Role = RoleObserver
	} else if peer.Role == RoleObserver {
		peer.Role = RoleUser
	}
	payload := setObserverPayload{TargetEncKey: peer.PublicKey.EncryptionPublic(), IsObserver: isObserver}
	g.broadcastLossless(InnerBroadcast, g.selfBroadcastFrame(BroadcastSetObserver, payload.pack()), 0)
	return nil
}
