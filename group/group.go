package group

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxcore/crypto"
	"github.com/opd-ai/toxcore/transport"
)

// GroupState is a group's overall connectivity state machine (spec.md §3
// "Lifecycles"): None -> Disconnected -> Connecting -> Connected ->
// {Closing | Failed}.
type GroupState uint8

const (
	GroupNone GroupState = iota
	GroupDisconnected
	GroupConnecting
	GroupConnected
	GroupClosing
	GroupFailed
)

// Callbacks is the upward callback surface exposed to the outer messenger
// for a single group session (spec.md §6). Any field left nil is simply
// not invoked.
type Callbacks struct {
	OnMessage        func(peerID uint32, action bool, text string)
	OnPrivateMessage func(peerID uint32, text string)
	OnCustomPacket   func(peerID uint32, lossless bool, data []byte)
	OnModeration     func(peerID uint32, kind string)
	OnNickChange     func(peerID uint32, nick string)
	OnStatusChange   func(peerID uint32, status PeerStatus)
	OnTopicChange    func(text string)
	OnPeerLimitChange func(maxPeers uint32)
	OnPrivacyChange  func(privacy Privacy)
	OnPasswordChange func(password string)
	OnPeerJoin       func(peerID uint32)
	OnPeerExit       func(peerID uint32, message string)
	OnSelfJoin       func()
	OnReject         func(reason RejectReason)
}

var errNoSharedState = errors.New("group: no shared state installed")

// Group is one decentralized group chat session: identity, peer table,
// signed replicated state, and the transport/DHT glue that drives them
// (spec.md §3-§4).
type Group struct {
	GroupNumber uint32

	Self   *ExtendedKeyPair
	ChatID [32]byte // founder's signature public key; the long-term chat identity
	chatIDHash uint32

	Peers     *PeerTable
	State     *SharedState
	Mods      *ModeratorList
	Sanctions *SanctionsList
	Topic     *Topic

	IsFounder     bool
	founderSignSeed [32]byte

	groupState         GroupState
	reconnectStartedAt time.Time
	meter              connectionMeter

	clock     Clock
	udp       transport.Transport
	relay     TCPMultiplex
	discovery Discovery

	callbacks Callbacks
}

// NewFounderGroup creates a brand-new group with self as founder,
// producing an initial signed shared state at version 1 (spec.md scenario
// S1).
func NewFounderGroup(groupNumber uint32, self *ExtendedKeyPair, name string, privacy Privacy, password string, udp transport.Transport, relay TCPMultiplex, discovery Discovery, clock Clock) (*Group, error) {
	if clock == nil {
		clock = systemClock{}
	}
	selfPeer := &Peer{
		PublicKey: self.Public,
		PeerID:    1,
		Role:      RoleFounder,
		Status:    PeerStatusOnline,
		LastHeard: clock.Now(),
	}
	g := &Group{
		GroupNumber: groupNumber,
		Self:        self,
		ChatID:      self.Public.SignaturePublic(),
		chatIDHash:  ChatIDHash(self.Public.SignaturePublic()),
		Peers:       NewPeerTable(selfPeer),
		Mods:        &ModeratorList{},
		Sanctions:   &SanctionsList{},
		IsFounder:   true,
		founderSignSeed: self.Secret.SignatureSeed(),
		groupState:  GroupConnected,
		clock:       clock,
		udp:         udp,
		relay:       relay,
		discovery:   discovery,
	}

	state, err := signAsFounder(nil, func(s *SharedState) {
		s.Founder = self.Public
		s.MaxPeers = MaxSanctions // generous default cap; callers may lower via SetMaxPeers
		s.Name = name
		s.Privacy = privacy
		s.Password = password
		s.ModListHash = hashModeratorList(g.Mods)
	}, g.founderSignSeed)
	if err != nil {
		return nil, err
	}
	g.State = &state

	if discovery != nil {
		_ = discovery.Announce(g.chatIDHash, name, privacy)
	}
	return g, nil
}

// NewJoinerGroup creates a group object for a peer about to join an
// existing chat identified by chatID (the founder's signature public
// key). The returned group starts Disconnected until the handshake/sync
// sequence installs a shared state.
func NewJoinerGroup(groupNumber uint32, self *ExtendedKeyPair, chatID [32]byte, udp transport.Transport, relay TCPMultiplex, discovery Discovery, clock Clock) *Group {
	if clock == nil {
		clock = systemClock{}
	}
	selfPeer := &Peer{
		PublicKey: self.Public,
		PeerID:    1,
		Role:      RoleUser,
		Status:    PeerStatusOnline,
		LastHeard: clock.Now(),
	}
	return &Group{
		GroupNumber: groupNumber,
		Self:        self,
		ChatID:      chatID,
		chatIDHash:  ChatIDHash(chatID),
		Peers:       NewPeerTable(selfPeer),
		groupState:  GroupDisconnected,
		clock:       clock,
		udp:         udp,
		relay:       relay,
		discovery:   discovery,
	}
}

// State accessors used by the periodic driver and tests.
func (g *Group) ConnectionState() GroupState { return g.groupState }

func (g *Group) now() time.Time { return g.clock.Now() }

// sharedStateVersion returns the installed shared-state version, or the
// "none yet" sentinel if no shared state has been installed.
func (g *Group) sharedStateVersion() uint32 {
	if g.State == nil {
		return sharedStateVersionUnset
	}
	return g.State.Version
}

func (g *Group) sanctionsVersion() uint32 {
	if g.Sanctions == nil {
		return 0
	}
	return g.Sanctions.Credentials.Version
}

func (g *Group) topicVersion() uint32 {
	if g.Topic == nil {
		return 0
	}
	return g.Topic.Version
}

// selfRole returns self's authoritative local role (invariant 1).
func (g *Group) selfRole() Role {
	return g.Peers.Self().Role
}

// --- Outbound framing -------------------------------------------------

// sendFrame transmits an already-wrapped frame to peer over whichever
// path is currently selected (spec.md §4.3 "dual transport").
func (g *Group) sendFrame(peer *Peer, kind transport.PacketType, frame []byte) error {
	if peer.Conn.directPathReachable(g.now()) && g.udp != nil {
		err := g.udp.Send(&transport.Packet{PacketType: kind, Data: frame}, peer.Conn.LastDirectAddr.ToNetAddr())
		if err == nil {
			return nil
		}
		logrus.WithFields(logrus.Fields{"peer_id": peer.PeerID, "error": err}).Warn("group: direct send failed, falling back to relay")
	}
	if g.relay == nil || peer.Conn.TCPChannel == "" {
		return ErrNetworkSendFailure
	}
	if err := g.relay.Send(peer.Conn.TCPChannel, frame); err != nil {
		return ErrNetworkSendFailure
	}
	return nil
}

// sendLossless wraps and sends a reliable inner packet, assigning it the
// connection's next message id (invariant 6).
func (g *Group) sendLossless(peer *Peer, typ InnerType, payload []byte) error {
	id := peer.Conn.stream.queueSend(nil, g.now())
	frame, err := wrapLossless(g.chatIDHash, g.Self.Public.EncryptionPublic(), peer.Conn.SharedKey, typ, id, payload)
	if err != nil {
		return err
	}
	if entry := peer.Conn.stream.entryFor(id); entry != nil {
		entry.frame = frame
		entry.dataLen = len(frame)
	}
	return g.sendFrame(peer, transport.PacketGroupLossless, frame)
}

// sendLossy wraps and sends a best-effort inner packet.
func (g *Group) sendLossy(peer *Peer, typ InnerType, payload []byte) error {
	frame, err := wrapLossy(g.chatIDHash, g.Self.Public.EncryptionPublic(), peer.Conn.SharedKey, typ, payload)
	if err != nil {
		return err
	}
	return g.sendFrame(peer, transport.PacketGroupLossy, frame)
}

// broadcastLossless sends a lossless frame to every confirmed peer except
// self and, if set, skip.
func (g *Group) broadcastLossless(typ InnerType, payload []byte, skip uint32) {
	for _, p := range g.Peers.List() {
		if p.PeerID == g.Peers.Self().PeerID || p.PeerID == skip {
			continue
		}
		if p.Conn == nil || p.Conn.State != ConnConfirmed {
			continue
		}
		if err := g.sendLossless(p, typ, payload); err != nil {
			logrus.WithFields(logrus.Fields{"peer_id": p.PeerID, "error": err}).Warn("group: broadcast send failed")
		}
	}
}

// --- Handshake initiation ----------------------------------------------

// InitiateHandshake sends a Request to a newly added, not-yet-handshaken
// peer (spec.md §4.2).
func (g *Group) InitiateHandshake(peer *Peer, kind RequestKind, relayHint RelayNode) error {
	sessionKeys, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	sessionPub, sessionPriv := sessionKeys.Public, sessionKeys.Private
	peer.Conn.SessionPublic = sessionPub
	peer.Conn.SessionPrivate = sessionPriv
	peer.Conn.State = ConnHandshaking

	payload := handshakePayload{
		Type:                  HandshakeRequest,
		SenderHash:            PeerKeyHash(g.Self.Public.EncryptionPublic()),
		SenderSessionPublic:   sessionPub,
		SenderSignPublic:      g.Self.Public.SignaturePublic(),
		RequestKind:           kind,
		JoinKind:              g.joinKind(),
		LastKnownStateVersion: peer.Conn.SelfSentSharedStateVersion,
		Relay:                 relayHint,
	}
	frame, err := wrapHandshake(g.chatIDHash, g.Self.Public.EncryptionPublic(), g.Self.Secret.EncryptionSecret(), peer.PublicKey.EncryptionPublic(), payload.pack())
	if err != nil {
		return err
	}
	return g.sendFrame(peer, transport.PacketGroupHandshake, frame)
}

func (g *Group) joinKind() Privacy {
	if g.State != nil {
		return g.State.Privacy
	}
	return PrivacyPublic
}

// HandleHandshake processes an inbound Handshake frame. senderEncKey and
// senderAddr come from the outer header the session dispatcher already
// parsed while routing the frame to this group (spec.md §4.1, §4.2).
func (g *Group) HandleHandshake(frame []byte, senderEncKey [32]byte, senderAddr *transport.NetworkAddress) error {
	_, plaintext, err := unwrapHandshake(frame, g.Self.Secret.EncryptionSecret())
	if err != nil {
		return nil // malformed or undecryptable: drop silently, spec.md §7
	}
	payload, err := unpackHandshakePayload(plaintext)
	if err != nil {
		return nil
	}
	if PeerKeyHash(senderEncKey) != payload.SenderHash {
		return nil // forged sender-hash: drop, spec.md scenario S5
	}

	switch payload.Type {
	case HandshakeRequest:
		return g.handleHandshakeRequest(payload, senderEncKey, senderAddr)
	case HandshakeResponse:
		return g.handleHandshakeResponse(payload, senderEncKey)
	default:
		return nil
	}
}

func (g *Group) handleHandshakeRequest(payload handshakePayload, senderEncKey [32]byte, senderAddr *transport.NetworkAddress) error {
	if !g.meter.allow() {
		return nil
	}
	if g.Sanctions != nil && g.Sanctions.IsBanned(senderEncKey) && !g.Mods.Contains(payload.SenderSignPublic) {
		return nil
	}

	peer, _, exists := g.Peers.ByEncryptionKey(senderEncKey)
	if !exists {
		var extPub ExtendedPublicKey
		copy(extPub[:32], senderEncKey[:])
		copy(extPub[32:], payload.SenderSignPublic[:])
		var err error
		peer, err = g.Peers.Add(extPub, senderAddr)
		if err != nil {
			return nil
		}
	}
	g.meter.increment()

	peer.Conn.PeerSignPublic = payload.SenderSignPublic
	copy(peer.PublicKey[32:], payload.SenderSignPublic[:])
	peer.Conn.PeerKeyHash = payload.SenderHash
	peer.Conn.PeerSentSharedStateVersion = payload.LastKnownStateVersion
	peer.Conn.State = ConnHandshaking

	sessionKeys, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil
	}
	sessionPub, sessionPriv := sessionKeys.Public, sessionKeys.Private
	sharedKey, err := crypto.DeriveSharedSecret(payload.SenderSessionPublic, sessionPriv)
	if err != nil {
		return nil
	}
	peer.Conn.SessionPublic = sessionPub
	peer.Conn.SessionPrivate = sessionPriv
	peer.Conn.SharedKey = sharedKey
	peer.Conn.State = ConnHandshaked

	resp := handshakePayload{
		Type:                  HandshakeResponse,
		SenderHash:            PeerKeyHash(g.Self.Public.EncryptionPublic()),
		SenderSessionPublic:   sessionPub,
		SenderSignPublic:      g.Self.Public.SignaturePublic(),
		RequestKind:           payload.RequestKind,
		JoinKind:              g.joinKind(),
		LastKnownStateVersion: g.sharedStateVersion(),
	}
	frame, err := wrapHandshake(g.chatIDHash, g.Self.Public.EncryptionPublic(), g.Self.Secret.EncryptionSecret(), senderEncKey, resp.pack())
	if err != nil {
		return nil
	}
	_ = g.sendFrame(peer, transport.PacketGroupHandshake, frame)
	return g.sendLossless(peer, InnerHsResponseAck, nil)
}

func (g *Group) handleHandshakeResponse(payload handshakePayload, senderEncKey [32]byte) error {
	peer, _, exists := g.Peers.ByEncryptionKey(senderEncKey)
	if !exists {
		return nil
	}
	sharedKey, err := crypto.DeriveSharedSecret(payload.SenderSessionPublic, peer.Conn.SessionPrivate)
	if err != nil {
		return nil
	}
	peer.Conn.SharedKey = sharedKey
	peer.Conn.PeerSignPublic = payload.SenderSignPublic
	copy(peer.PublicKey[32:], payload.SenderSignPublic[:])
	peer.Conn.PeerSentSharedStateVersion = payload.LastKnownStateVersion
	peer.Conn.State = ConnHandshaked

	if err := g.sendLossless(peer, InnerHsResponseAck, nil); err != nil {
		return err
	}

	switch payload.RequestKind {
	case RequestKindInvite:
		if g.shouldInitiateInvite(peer) {
			return g.sendInviteRequest(peer, g.Peers.Self().Nick, "")
		}
		return nil
	case RequestKindPeerInfoExchange:
		return g.sendPeerInfoExchange(peer)
	}
	return nil
}

// shouldInitiateInvite applies the version tiebreak of spec.md §4.2.
func (g *Group) shouldInitiateInvite(peer *Peer) bool {
	return resolveHandshakeTiebreak(
		peer.Conn.SelfSentSharedStateVersion,
		peer.Conn.PeerSentSharedStateVersion,
		g.Self.Public.SignaturePublic(),
		peer.Conn.PeerSignPublic,
	)
}

// --- Sync protocol ------------------------------------------------------

func (g *Group) sendInviteRequest(peer *Peer, nick, password string) error {
	req := inviteRequest{Nick: nick, Password: password}
	return g.sendLossless(peer, InnerInviteRequest, req.pack())
}

func (g *Group) sendPeerInfoExchange(peer *Peer) error {
	resp := peerInfoResponse{Nick: g.Peers.Self().Nick, Status: g.Peers.Self().Status}
	if g.State != nil {
		resp.Password = g.State.Password
	}
	return g.sendLossless(peer, InnerPeerInfoResponse, resp.pack())
}

// HandleInviteRequest processes an inbound invite request and responds
// with acceptance or a typed reject (spec.md §4.5, §7 "Policy violation").
func (g *Group) HandleInviteRequest(peer *Peer, req inviteRequest) error {
	if g.State == nil {
		return nil
	}
	if g.State.Password != "" && !checkPassword(g.State.Password, req.Password) {
		resp := inviteResponseReject{Reason: RejectInvalidPassword}
		if g.callbacks.OnReject != nil {
			g.callbacks.OnReject(RejectInvalidPassword)
		}
		return g.sendLossless(peer, InnerInviteResponseReject, resp.pack())
	}
	if uint32(g.Peers.Count()) >= g.State.MaxPeers {
		resp := inviteResponseReject{Reason: RejectGroupFull}
		return g.sendLossless(peer, InnerInviteResponseReject, resp.pack())
	}
	if _, dup := g.Peers.duplicateNickIndex(req.Nick, -1); dup {
		resp := inviteResponseReject{Reason: RejectNickTaken}
		return g.sendLossless(peer, InnerInviteResponseReject, resp.pack())
	}

	peer.Nick = req.Nick
	if err := g.sendLossless(peer, InnerInviteResponse, (inviteResponse{}).pack()); err != nil {
		return err
	}

	g.broadcastPeerAnnounce(peer)
	return nil
}

func (g *Group) broadcastPeerAnnounce(newPeer *Peer) {
	announce := peerAnnounce{
		PeerEncKey:  newPeer.PublicKey.EncryptionPublic(),
		PeerSignKey: newPeer.PublicKey.SignaturePublic(),
	}
	if newPeer.Conn.LastDirectAddr != nil {
		announce.Relay = RelayNode{Address: *newPeer.Conn.LastDirectAddr}
	}
	g.broadcastLossless(InnerPeerAnnounce, announce.pack(), newPeer.PeerID)
}

// HandleSyncRequest emits the responder's sequence: shared state, mod
// list, sanctions, topic, then the sync response roster (spec.md §4.5).
func (g *Group) HandleSyncRequest(peer *Peer) error {
	if g.State == nil {
		return errNoSharedState
	}
	if err := g.sendLossless(peer, InnerSharedState, g.State.pack()); err != nil {
		return err
	}
	if err := g.sendLossless(peer, InnerModList, g.Mods.packKeys()); err != nil {
		return err
	}
	if err := g.sendSanctionsList(peer); err != nil {
		return err
	}
	if g.Topic != nil {
		if err := g.sendLossless(peer, InnerTopic, g.Topic.pack()); err != nil {
			return err
		}
	}

	var resp syncResponse
	for _, p := range g.Peers.List() {
		if p.PeerID == g.Peers.Self().PeerID || p.PeerID == peer.PeerID {
			continue
		}
		if p.Conn == nil || p.Conn.State != ConnConfirmed {
			continue
		}
		entry := syncPeerEntry{PeerEncKey: p.PublicKey.EncryptionPublic()}
		if p.Conn.LastDirectAddr != nil {
			entry.Relay = RelayNode{Address: *p.Conn.LastDirectAddr}
		}
		resp.Peers = append(resp.Peers, entry)
	}
	return g.sendLossless(peer, InnerSyncResponse, resp.pack())
}

func (g *Group) sendSanctionsList(peer *Peer) error {
	var buf []byte
	var countBuf [4]byte
	putUint32(countBuf[:], uint32(len(g.Sanctions.Entries)))
	buf = append(buf, countBuf[:]...)
	for _, e := range g.Sanctions.Entries {
		buf = append(buf, e.entryBody()...)
		buf = append(buf, e.Signature[:]...)
	}
	var credBuf [4 + 32]byte
	putUint32(credBuf[:4], g.Sanctions.Credentials.Version)
	copy(credBuf[4:], g.Sanctions.Credentials.Hash[:])
	buf = append(buf, credBuf[:]...)
	return g.sendLossless(peer, InnerSanctionsList, buf)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// --- Role operations ------------------------------------------------------

// SetTopic signs and installs a new topic, broadcasting it to confirmed
// peers (spec.md §4.6).
func (g *Group) SetTopic(text string, signerSeed [32]byte) error {
	if !CanSetTopic(g.Self.Public.SignaturePublic(), g.State.Founder.SignaturePublic(), g.Mods) {
		return ErrPermissionDenied
	}
	t, err := signTopic(g.Topic, text, signerSeed, g.Self.Public.SignaturePublic())
	if err != nil {
		return err
	}
	g.Topic = &t
	g.broadcastLossless(InnerTopic, t.pack(), 0)
	if g.callbacks.OnTopicChange != nil {
		g.callbacks.OnTopicChange(text)
	}
	return nil
}

// SetModerator adds or removes a moderator, re-hashing and re-signing the
// shared state (spec.md §4.6).
func (g *Group) SetModerator(signPublic [32]byte, isModerator bool) error {
	if !g.IsFounder {
		return ErrNotFounder
	}
	var next *ModeratorList
	var err error
	if isModerator {
		next, err = g.Mods.withAdded(signPublic)
	} else {
		next = g.Mods.withRemoved(signPublic)
	}
	if err != nil {
		return err
	}
	g.Mods = next

	state, err := signAsFounder(g.State, func(s *SharedState) {
		s.ModListHash = hashModeratorList(g.Mods)
	}, g.founderSignSeed)
	if err != nil {
		return err
	}
	g.State = &state

	g.broadcastLossless(InnerSharedState, g.State.pack(), 0)
	g.broadcastLossless(InnerModList, g.Mods.packKeys(), 0)
	payload := setModPayload{TargetSignKey: signPublic, IsModerator: isModerator}
	g.broadcastLossless(InnerBroadcast, (broadcastFrame{
		Type:       BroadcastSetMod,
		SenderHash: PeerKeyHash(g.Self.Public.EncryptionPublic()),
		Timestamp:  uint64(g.now().Unix()),
		Payload:    payload.pack(),
	}).pack(), 0)
	return nil
}

// SanctionPeer bans or observer-restricts target, per spec.md §4.7
// (CanSanction) and §4.6 (Sanctions list mutation).
func (g *Group) SanctionPeer(actor Role, target *Peer, kind SanctionKind, signerSeed, signerSignPublic [32]byte, setBan bool) error {
	if !CanSanction(actor, target.Role) {
		return ErrPermissionDenied
	}
	next, err := g.Sanctions.appendEntry(kind, target.PublicKey.EncryptionPublic(), nil, uint64(g.now().Unix()), signerSeed, signerSignPublic)
	if err != nil {
		return err
	}
	g.Sanctions = next

	if kind == SanctionBan {
		_, idx, ok := g.Peers.ByPublicKey(target.PublicKey)
		if ok {
			_ = g.Peers.Delete(idx)
		}
		payload := removePeerPayload{TargetEncKey: target.PublicKey.EncryptionPublic(), SetBan: setBan}
		g.broadcastLossless(InnerBroadcast, (broadcastFrame{
			Type:       BroadcastRemovePeer,
			SenderHash: PeerKeyHash(g.Self.Public.EncryptionPublic()),
			Timestamp:  uint64(g.now().Unix()),
			Payload:    payload.pack(),
		}).pack(), 0)
	}
	return nil
}
