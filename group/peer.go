package group

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxcore/transport"
)

// PeerStatus is a peer's self-reported presence.
type PeerStatus uint8

const (
	PeerStatusNone PeerStatus = iota
	PeerStatusAway
	PeerStatusBusy
	PeerStatusOnline
)

// Peer is a group member as seen from the local peer's point of view
// (spec.md §3, "Peer record").
type Peer struct {
	PublicKey ExtendedPublicKey
	PeerID    uint32
	Nick      string
	Status    PeerStatus
	Role      Role
	Ignored   bool
	LastHeard time.Time

	Conn *Connection
}

// PeerTable is the contiguous, insertion-ordered peer vector of spec.md
// §4.4, with index 0 always self (invariant 1).
type PeerTable struct {
	peers []*Peer
	byID  map[uint32]int

	// recentConfirmed is the bounded ring of encryption keys belonging to
	// peers who were once Confirmed, used to admit private-chat reconnects
	// (spec.md §4.4).
	recentConfirmed [][32]byte
}

// NewPeerTable creates a table seeded with self at index 0.
func NewPeerTable(self *Peer) *PeerTable {
	return &PeerTable{
		peers: []*Peer{self},
		byID:  map[uint32]int{self.PeerID: 0},
	}
}

// AllocatePeerID generates a random 32-bit peer id unique within this
// table's local view.
func (t *PeerTable) AllocatePeerID() (uint32, error) {
	for {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		id := binary.BigEndian.Uint32(buf[:])
		if id == 0 {
			continue
		}
		if _, exists := t.byID[id]; !exists {
			return id, nil
		}
	}
}

// Self returns the local peer record at index 0.
func (t *PeerTable) Self() *Peer {
	return t.peers[0]
}

// Count returns the number of known peers, including self.
func (t *PeerTable) Count() int {
	return len(t.peers)
}

// List returns the peer table in current index order. The slice must not
// be mutated by callers.
func (t *PeerTable) List() []*Peer {
	return t.peers
}

// ByID resolves a stable peer id to its current index and record.
func (t *PeerTable) ByID(id uint32) (*Peer, int, bool) {
	idx, ok := t.byID[id]
	if !ok {
		return nil, 0, false
	}
	return t.peers[idx], idx, true
}

// ByPublicKey finds a peer by its extended public key.
func (t *PeerTable) ByPublicKey(pub ExtendedPublicKey) (*Peer, int, bool) {
	for i, p := range t.peers {
		if p.PublicKey == pub {
			return p, i, true
		}
	}
	return nil, 0, false
}

// ByEncryptionKey finds a peer by its encryption-public half alone, used
// when routing an inbound frame whose outer header only carries the
// sender's encryption key (spec.md §4.1).
func (t *PeerTable) ByEncryptionKey(encKey [32]byte) (*Peer, int, bool) {
	for i, p := range t.peers {
		if p.PublicKey.EncryptionPublic() == encKey {
			return p, i, true
		}
	}
	return nil, 0, false
}

// BySignatureKey finds a peer by its signature-public half alone, used to
// resolve moderation broadcasts that name a target by signing key
// (spec.md §4.8, SetMod payload).
func (t *PeerTable) BySignatureKey(signKey [32]byte) (*Peer, int, bool) {
	for i, p := range t.peers {
		if p.PublicKey.SignaturePublic() == signKey {
			return p, i, true
		}
	}
	return nil, 0, false
}

// Add inserts a new peer, rejecting if the public key is already known
// (spec.md §4.4).
func (t *PeerTable) Add(pub ExtendedPublicKey, addr *transport.NetworkAddress) (*Peer, error) {
	if _, _, exists := t.ByPublicKey(pub); exists {
		return nil, ErrAlreadyPresent
	}
	id, err := t.AllocatePeerID()
	if err != nil {
		return nil, err
	}
	peer := &Peer{
		PublicKey: pub,
		PeerID:    id,
		Role:      RoleUser,
		Conn:      newConnection(),
	}
	if addr != nil {
		peer.Conn.LastDirectAddr = addr
	}
	t.peers = append(t.peers, peer)
	t.byID[id] = len(t.peers) - 1

	logrus.WithFields(logrus.Fields{
		"peer_id": id,
		"pubkey":  pub.SignaturePublic()[:8],
	}).Info("group: peer added")
	return peer, nil
}

// duplicateNickIndex finds the first peer whose nick collides with nick,
// excluding exceptIndex.
func (t *PeerTable) duplicateNickIndex(nick string, exceptIndex int) (int, bool) {
	for i, p := range t.peers {
		if i == exceptIndex {
			continue
		}
		if p.Nick == nick {
			return i, true
		}
	}
	return 0, false
}

// UpdateNick applies a nick change at index, detecting collisions with any
// other peer's nick. On collision the offending (new) update is rejected
// and the caller is expected to delete the attacker (spec.md §4.4,
// testable property 6).
func (t *PeerTable) UpdateNick(index int, nick string) error {
	if index < 0 || index >= len(t.peers) {
		return ErrBadPeerID
	}
	if _, dup := t.duplicateNickIndex(nick, index); dup {
		return errDuplicateNick
	}
	t.peers[index].Nick = nick
	return nil
}

// Delete removes the peer at index, compacting the vector by moving the
// last element into the freed slot (spec.md §4.4). Index 0 (self) can
// never be deleted through this path.
func (t *PeerTable) Delete(index int) error {
	if index <= 0 || index >= len(t.peers) {
		return ErrBadPeerID
	}

	removed := t.peers[index]
	if removed.Conn != nil && removed.Conn.State == ConnConfirmed {
		t.rememberConfirmed(removed.PublicKey.EncryptionPublic())
	}
	delete(t.byID, removed.PeerID)

	last := len(t.peers) - 1
	if index != last {
		t.peers[index] = t.peers[last]
		t.byID[t.peers[index].PeerID] = index
	}
	t.peers[last] = nil
	t.peers = t.peers[:last]

	logrus.WithFields(logrus.Fields{
		"peer_id": removed.PeerID,
	}).Info("group: peer deleted")
	return nil
}

func (t *PeerTable) rememberConfirmed(encKey [32]byte) {
	t.recentConfirmed = append(t.recentConfirmed, encKey)
	if len(t.recentConfirmed) > recentConfirmedPeersRingSize {
		t.recentConfirmed = t.recentConfirmed[len(t.recentConfirmed)-recentConfirmedPeersRingSize:]
	}
}

// WasRecentlyConfirmed reports whether encKey belonged to a peer that was
// Confirmed before being removed, used to admit reconnects to private
// groups (spec.md §4.2 "OOB path", §4.4).
func (t *PeerTable) WasRecentlyConfirmed(encKey [32]byte) bool {
	for _, k := range t.recentConfirmed {
		if k == encKey {
			return true
		}
	}
	return false
}

// TimedOut reports peers that have exceeded their timeout, per spec.md
// §4.4: confirmed peers get a long timeout, unconfirmed peers a short one.
func (t *PeerTable) TimedOut(now time.Time) []int {
	var out []int
	for i, p := range t.peers {
		if i == 0 || p.Conn == nil {
			continue
		}
		timeout := unconfirmedPeerTimeout
		if p.Conn.State == ConnConfirmed {
			timeout = confirmedPeerTimeout
		}
		if p.LastHeard.IsZero() {
			continue
		}
		if now.Sub(p.LastHeard) > timeout {
			out = append(out, i)
		}
	}
	return out
}
