package group

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"net"

	"github.com/opd-ai/toxcore/crypto"
)

// ModeratorList is the founder-signed set of signature keys authorized to
// sanction and set topic (spec.md §3). The list itself carries no
// signature; its integrity comes from the hash embedded in the currently
// held SharedState (invariant 2).
type ModeratorList struct {
	Keys [][32]byte
}

// Contains reports whether signPublic is currently a moderator.
func (m *ModeratorList) Contains(signPublic [32]byte) bool {
	if m == nil {
		return false
	}
	for _, k := range m.Keys {
		if k == signPublic {
			return true
		}
	}
	return false
}

// packKeys returns the deterministic byte encoding hashed into
// SharedState.ModListHash and sent on the wire for InnerModList.
func (m *ModeratorList) packKeys() []byte {
	if m == nil {
		return nil
	}
	var buf bytes.Buffer
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(m.Keys)))
	buf.Write(count[:])
	for _, k := range m.Keys {
		buf.Write(k[:])
	}
	return buf.Bytes()
}

func unpackModeratorList(data []byte) (*ModeratorList, error) {
	if len(data) < 4 {
		return nil, errFrameTooShort
	}
	count := binary.BigEndian.Uint32(data[:4])
	if count > MaxModerators {
		return nil, errors.New("group: moderator list exceeds maximum size")
	}
	if len(data) < 4+int(count)*32 {
		return nil, errFrameTooShort
	}
	list := &ModeratorList{Keys: make([][32]byte, count)}
	off := 4
	for i := uint32(0); i < count; i++ {
		copy(list.Keys[i][:], data[off:off+32])
		off += 32
	}
	return list, nil
}

// withAdded returns a copy of the list with key appended, rejecting
// duplicates and the size cap.
func (m *ModeratorList) withAdded(key [32]byte) (*ModeratorList, error) {
	if m.Contains(key) {
		return nil, errors.New("group: already a moderator")
	}
	if len(m.Keys) >= MaxModerators {
		return nil, errors.New("group: moderator list is full")
	}
	next := &ModeratorList{Keys: append(append([][32]byte{}, m.Keys...), key)}
	return next, nil
}

// withRemoved returns a copy of the list with key removed.
func (m *ModeratorList) withRemoved(key [32]byte) *ModeratorList {
	out := &ModeratorList{}
	for _, k := range m.Keys {
		if k != key {
			out.Keys = append(out.Keys, k)
		}
	}
	return out
}

// SanctionKind distinguishes a ban from an observer restriction
// (spec.md §3, "Sanctions list").
type SanctionKind uint8

const (
	SanctionBan SanctionKind = iota + 1
	SanctionObserver
)

// SanctionEntry is one signed sanction (spec.md §3).
type SanctionEntry struct {
	Kind             SanctionKind
	Timestamp        uint64
	TargetEncKey     [32]byte
	TargetIP         net.IP // nil unless Kind == SanctionBan and an IP was recorded
	SignerSignPublic [32]byte
	Signature        crypto.Signature
}

// entryBody returns the portion of the entry covered by its signature,
// excluding the signature itself.
func (e SanctionEntry) entryBody() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(e.Kind))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], e.Timestamp)
	buf.Write(ts[:])
	buf.Write(e.TargetEncKey[:])
	if e.TargetIP == nil {
		buf.WriteByte(0)
	} else if ip4 := e.TargetIP.To4(); ip4 != nil {
		buf.WriteByte(4)
		buf.Write(ip4)
	} else {
		buf.WriteByte(16)
		buf.Write(e.TargetIP.To16())
	}
	buf.Write(e.SignerSignPublic[:])
	return buf.Bytes()
}

// unpackSanctionEntry parses one wire entry: entryBody() followed by its
// 64-byte signature. Returns the number of bytes consumed.
func unpackSanctionEntry(data []byte) (SanctionEntry, int, error) {
	const fixedLen = 1 + 8 + 32 + 1 // kind, timestamp, target enc key, ip tag
	if len(data) < fixedLen {
		return SanctionEntry{}, 0, errFrameTooShort
	}
	var e SanctionEntry
	e.Kind = SanctionKind(data[0])
	e.Timestamp = binary.BigEndian.Uint64(data[1:9])
	copy(e.TargetEncKey[:], data[9:41])
	off := 42
	switch data[41] {
	case 0:
		// no IP recorded
	case 4:
		if len(data) < off+4 {
			return SanctionEntry{}, 0, errFrameTooShort
		}
		e.TargetIP = net.IP(append([]byte{}, data[off:off+4]...))
		off += 4
	case 16:
		if len(data) < off+16 {
			return SanctionEntry{}, 0, errFrameTooShort
		}
		e.TargetIP = net.IP(append([]byte{}, data[off:off+16]...))
		off += 16
	default:
		return SanctionEntry{}, 0, errors.New("group: invalid sanction entry IP tag")
	}
	if len(data) < off+32+SignatureSize {
		return SanctionEntry{}, 0, errFrameTooShort
	}
	copy(e.SignerSignPublic[:], data[off:off+32])
	off += 32
	copy(e.Signature[:], data[off:off+SignatureSize])
	off += SignatureSize
	return e, off, nil
}

// unpackSanctionsList parses the wire format sent for InnerSanctionsList:
// a 4-byte entry count, each entry, then a 4-byte credentials version and
// 32-byte credentials hash. Integrity is not verified here; callers must
// call verifyIntegrity before installing the result (invariant 3).
func unpackSanctionsList(data []byte) (*SanctionsList, error) {
	if len(data) < 4 {
		return nil, errFrameTooShort
	}
	count := binary.BigEndian.Uint32(data[:4])
	if count > MaxSanctions {
		return nil, errors.New("group: sanctions list exceeds maximum size")
	}
	off := 4
	entries := make([]SanctionEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		e, n, err := unpackSanctionEntry(data[off:])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		off += n
	}
	if len(data) < off+4+32 {
		return nil, errFrameTooShort
	}
	version := binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	var hash [32]byte
	copy(hash[:], data[off:off+32])
	return &SanctionsList{Entries: entries, Credentials: SanctionsCredentials{Version: version, Hash: hash}}, nil
}

// genesisCredentialsHash seeds the sanctions hash chain for an empty list.
var genesisCredentialsHash = sha256.Sum256([]byte("group-sanctions-genesis"))

// SanctionsCredentials authenticates a SanctionsList as a single object
// (spec.md §3): a strictly non-decreasing version and the hash at the end
// of the entry chain.
type SanctionsCredentials struct {
	Version uint32
	Hash    [32]byte
}

// SanctionsList is the ordered, collectively signed list of active
// observers and bans (spec.md §3, §4.6).
type SanctionsList struct {
	Entries     []SanctionEntry
	Credentials SanctionsCredentials
}

// chainAndVerify folds the hash chain over entries starting from the genesis hash,
// verifying each entry's signature against the rolling previous-hash
// value as it goes. signerOK is consulted for every entry so the caller
// can enforce "signer must be founder or a seated moderator" without this
// function needing to know about moderator lists directly.
func chainAndVerify(entries []SanctionEntry, signerOK func(signPublic [32]byte) bool) ([32]byte, error) {
	h := genesisCredentialsHash
	for _, e := range entries {
		if signerOK != nil && !signerOK(e.SignerSignPublic) {
			return [32]byte{}, errors.New("group: sanction entry signer is not authorized")
		}
		msg := append(append([]byte{}, h[:]...), e.entryBody()...)
		ok, err := crypto.Verify(msg, e.Signature, e.SignerSignPublic)
		if err != nil || !ok {
			return [32]byte{}, errors.New("group: sanction entry signature invalid")
		}
		h = sha256.Sum256(msg)
	}
	return h, nil
}

// verifyIntegrity recomputes the hash chain and compares it to the held
// credentials (spec.md invariant 3: a list whose check fails is never
// installed).
func (s *SanctionsList) verifyIntegrity(signerOK func(signPublic [32]byte) bool) error {
	h, err := chainAndVerify(s.Entries, signerOK)
	if err != nil {
		return err
	}
	if h != s.Credentials.Hash {
		return errors.New("group: sanctions credentials hash mismatch")
	}
	return nil
}

// appendEntry signs and appends a new entry, advancing the credentials.
func (s *SanctionsList) appendEntry(kind SanctionKind, targetEncKey [32]byte, targetIP net.IP, now uint64, signerSignSeed [32]byte, signerSignPublic [32]byte) (*SanctionsList, error) {
	if len(s.Entries) >= MaxSanctions {
		return nil, errors.New("group: sanctions list is full")
	}
	entry := SanctionEntry{
		Kind:             kind,
		Timestamp:        now,
		TargetEncKey:     targetEncKey,
		TargetIP:         targetIP,
		SignerSignPublic: signerSignPublic,
	}
	prevHash := s.Credentials.Hash
	if len(s.Entries) == 0 {
		prevHash = genesisCredentialsHash
	}
	msg := append(append([]byte{}, prevHash[:]...), entry.entryBody()...)
	sig, err := crypto.Sign(msg, signerSignSeed)
	if err != nil {
		return nil, err
	}
	entry.Signature = sig

	next := &SanctionsList{
		Entries: append(append([]SanctionEntry{}, s.Entries...), entry),
		Credentials: SanctionsCredentials{
			Version: s.Credentials.Version + 1,
			Hash:    sha256.Sum256(msg),
		},
	}
	return next, nil
}

// removeEntry drops every entry for targetEncKey (used to lift a ban) and
// recomputes credentials from the remaining entries, per spec.md §4.6
// ("Removal of a ban can be broadcast with just the new credentials").
func (s *SanctionsList) removeEntry(targetEncKey [32]byte, signerOK func(signPublic [32]byte) bool) (*SanctionsList, error) {
	remaining := make([]SanctionEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if e.TargetEncKey != targetEncKey {
			remaining = append(remaining, e)
		}
	}
	h, err := chainAndVerify(remaining, signerOK)
	if err != nil {
		return nil, err
	}
	return &SanctionsList{
		Entries: remaining,
		Credentials: SanctionsCredentials{
			Version: s.Credentials.Version + 1,
			Hash:    h,
		},
	}, nil
}

// IsBanned reports whether encKey matches an active ban entry. Recorded
// IPs are not consulted here; IPBanned checks those.
func (s *SanctionsList) IsBanned(encKey [32]byte) bool {
	for _, e := range s.Entries {
		if e.Kind == SanctionBan && e.TargetEncKey == encKey {
			return true
		}
	}
	return false
}

// IPBanned reports whether ip matches any active ban entry's recorded IP.
func (s *SanctionsList) IPBanned(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, e := range s.Entries {
		if e.Kind == SanctionBan && e.TargetIP != nil && e.TargetIP.Equal(ip) {
			return true
		}
	}
	return false
}

// IsObserver reports whether encKey is restricted to the Observer role by
// the sanctions list.
func (s *SanctionsList) IsObserver(encKey [32]byte) bool {
	for _, e := range s.Entries {
		if e.Kind == SanctionObserver && e.TargetEncKey == encKey {
			return true
		}
	}
	return false
}

// reassignSigner re-signs every entry previously signed by oldSigner under
// newSignerSeed/newSignerPublic, rebuilding the hash chain. Used when a
// moderator is demoted so their sanctions remain valid under the
// founder's authority (spec.md §4.6).
func (s *SanctionsList) reassignSigner(oldSigner [32]byte, newSignerSeed, newSignerPublic [32]byte) (*SanctionsList, error) {
	h := genesisCredentialsHash
	out := make([]SanctionEntry, len(s.Entries))
	for i, e := range s.Entries {
		if e.SignerSignPublic == oldSigner {
			e.SignerSignPublic = newSignerPublic
		}
		msg := append(append([]byte{}, h[:]...), e.entryBody()...)
		sig, err := crypto.Sign(msg, newSignerSeed)
		if err != nil {
			return nil, err
		}
		e.Signature = sig
		out[i] = e
		h = sha256.Sum256(msg)
	}
	return &SanctionsList{
		Entries:     out,
		Credentials: SanctionsCredentials{Version: s.Credentials.Version + 1, Hash: h},
	}, nil
}
