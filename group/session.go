package group

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxcore/transport"
)

// Session is the container for every group a local node currently
// participates in, and the single point where inbound network packets are
// decoded just far enough to route them to the right Group (spec.md §5
// "container and wiring"). It owns no cryptographic state of its own.
type Session struct {
	mu         sync.Mutex
	byNumber   map[uint32]*Group
	byChatHash map[uint32]*Group
	nextNumber uint32
}

// NewSession creates an empty session and wires its packet routing onto
// udp, the shared UDP transport every group in the session sends and
// receives over.
func NewSession(udp transport.Transport) *Session {
	s := &Session{
		byNumber:   make(map[uint32]*Group),
		byChatHash: make(map[uint32]*Group),
		nextNumber: 1,
	}
	if udp != nil {
		udp.RegisterHandler(transport.PacketGroupHandshake, s.routeHandshake)
		udp.RegisterHandler(transport.PacketGroupLossless, s.routeLossless)
		udp.RegisterHandler(transport.PacketGroupLossy, s.routeLossy)
	}
	return s
}

// AddGroup registers g under a freshly allocated group number and makes it
// reachable by its chat-id hash for inbound routing.
func (s *Session) AddGroup(g *Group) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	number := s.nextNumber
	s.nextNumber++
	g.GroupNumber = number
	s.byNumber[number] = g
	s.byChatHash[g.chatIDHash] = g
	return number
}

// Group resolves a group number to its Group, per the public return-code
// surface of spec.md §7 ("bad groupnumber").
func (s *Session) Group(groupNumber uint32) (*Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.byNumber[groupNumber]
	return g, ok
}

// RemoveGroup tears a group down: broadcasts a self-exit, releases its TCP
// channels, and drops it from the session (spec.md §5 "Group teardown").
func (s *Session) RemoveGroup(groupNumber uint32) error {
	s.mu.Lock()
	g, ok := s.byNumber[groupNumber]
	if ok {
		delete(s.byNumber, groupNumber)
		delete(s.byChatHash, g.chatIDHash)
	}
	s.mu.Unlock()
	if !ok {
		return ErrBadGroupNumber
	}

	g.broadcastLossless(InnerBroadcast, (broadcastFrame{
		Type:       BroadcastPeerExit,
		SenderHash: PeerKeyHash(g.Self.Public.EncryptionPublic()),
		Timestamp:  uint64(g.now().Unix()),
	}).pack(), 0)

	for _, p := range g.Peers.List() {
		if p.Conn == nil || p.Conn.TCPChannel == "" || g.relay == nil {
			continue
		}
		_ = g.relay.Kill(p.Conn.TCPChannel)
	}
	if g.discovery != nil {
		g.discovery.Unannounce(g.chatIDHash)
	}
	g.callbacks = Callbacks{}
	g.groupState = GroupClosing
	return nil
}

// Tick drives every live group's periodic maintenance once (spec.md
// §4.9), meant to be invoked by the outer messenger's own tick loop.
func (s *Session) Tick() {
	s.mu.Lock()
	groups := make([]*Group, 0, len(s.byNumber))
	for _, g := range s.byNumber {
		groups = append(groups, g)
	}
	s.mu.Unlock()
	for _, g := range groups {
		g.Tick()
	}
}

// groupForFrame peeks the outer header of a raw frame without decrypting
// it and resolves the owning group by chat-id hash (spec.md §4.1).
func (s *Session) groupForFrame(data []byte) (*Group, outerHeader, bool) {
	header, _, err := unpackOuterHeader(data)
	if err != nil {
		return nil, outerHeader{}, false
	}
	s.mu.Lock()
	g, ok := s.byChatHash[header.ChatIDHash]
	s.mu.Unlock()
	return g, header, ok
}

func (s *Session) routeHandshake(packet *transport.Packet, addr net.Addr) error {
	g, header, ok := s.groupForFrame(packet.Data)
	if !ok {
		return nil
	}
	netAddr, err := transport.ConvertNetAddrToNetworkAddress(addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{"error": err}).Debug("group: could not convert sender address")
		return g.HandleHandshake(packet.Data, header.SenderEncKey, nil)
	}
	return g.HandleHandshake(packet.Data, header.SenderEncKey, netAddr)
}

func (s *Session) routeLossless(packet *transport.Packet, addr net.Addr) error {
	g, _, ok := s.groupForFrame(packet.Data)
	if !ok {
		return nil
	}
	return g.HandleLosslessFrame(packet.Data)
}

func (s *Session) routeLossy(packet *transport.Packet, addr net.Addr) error {
	g, _, ok := s.groupForFrame(packet.Data)
	if !ok {
		return nil
	}
	return g.HandleLossyFrame(packet.Data)
}
