package group

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/opd-ai/toxcore/crypto"
)

// Privacy is a group's join policy (spec.md §3).
type Privacy uint8

const (
	PrivacyPublic Privacy = iota
	PrivacyPrivate
)

// SharedState is the founder-signed, versioned group-wide configuration
// record (spec.md §3, §4.6). It is the sole object the founder is
// authoritative over.
type SharedState struct {
	Founder      ExtendedPublicKey
	MaxPeers     uint32
	Name         string
	Privacy      Privacy
	Password     string
	ModListHash  [32]byte
	Version      uint32
	Signature    crypto.Signature
}

var (
	errStateNameTooLong     = errors.New("group: shared state name too long")
	errStatePasswordTooLong = errors.New("group: shared state password too long")
	errStateBadSignature    = errors.New("group: shared state signature verification failed")
	errStateNotSignedByFounder = errors.New("group: shared state not signed by founder (invariant 4)")
	errStateStale           = errors.New("group: shared state version is not newer")
)

// signedBytes returns the deterministic byte encoding that is signed
// over, excluding the signature field itself.
func (s SharedState) signedBytes() []byte {
	var buf bytes.Buffer
	buf.Write(s.Founder[:])
	var maxPeers [4]byte
	binary.BigEndian.PutUint32(maxPeers[:], s.MaxPeers)
	buf.Write(maxPeers[:])
	nameBytes := []byte(s.Name)
	buf.WriteByte(byte(len(nameBytes)))
	buf.Write(nameBytes)
	buf.WriteByte(byte(s.Privacy))
	pwBytes := []byte(s.Password)
	buf.WriteByte(byte(len(pwBytes)))
	buf.Write(pwBytes)
	buf.Write(s.ModListHash[:])
	var version [4]byte
	binary.BigEndian.PutUint32(version[:], s.Version)
	buf.Write(version[:])
	return buf.Bytes()
}

func (s SharedState) pack() []byte {
	body := s.signedBytes()
	out := make([]byte, len(body)+SignatureSize)
	copy(out, body)
	copy(out[len(body):], s.Signature[:])
	return out
}

// unpackSharedState parses a received shared-state frame without
// verifying it; verification is a separate step so callers can log the
// distinction between "malformed" and "invalid signature" per spec.md §7.
func unpackSharedState(data []byte) (SharedState, error) {
	const minLen = 64 + 4 + 1 + 1 + 1 + 32 + 4 + SignatureSize
	if len(data) < minLen {
		return SharedState{}, errFrameTooShort
	}
	var s SharedState
	copy(s.Founder[:], data[:64])
	off := 64
	s.MaxPeers = binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	nameLen := int(data[off])
	off++
	if len(data) < off+nameLen {
		return SharedState{}, errFrameTooShort
	}
	s.Name = string(data[off : off+nameLen])
	off += nameLen
	s.Privacy = Privacy(data[off])
	off++
	pwLen := int(data[off])
	off++
	if len(data) < off+pwLen+32+4+SignatureSize {
		return SharedState{}, errFrameTooShort
	}
	s.Password = string(data[off : off+pwLen])
	off += pwLen
	copy(s.ModListHash[:], data[off:off+32])
	off += 32
	s.Version = binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	copy(s.Signature[:], data[off:off+SignatureSize])
	return s, nil
}

// validateStructure enforces the bounded-length invariants independent of
// signature validity (spec.md §4.6 "structural constraints").
func (s SharedState) validateStructure() error {
	if len([]byte(s.Name)) > MaxGroupNameLength {
		return errStateNameTooLong
	}
	if len([]byte(s.Password)) > MaxPasswordLength {
		return errStatePasswordTooLong
	}
	return nil
}

// verify checks that s is signed by the founder's signature key embedded
// in s itself (invariant 4: only the founder may sign shared state).
func (s SharedState) verify() error {
	if err := s.validateStructure(); err != nil {
		return err
	}
	ok, err := crypto.Verify(s.signedBytes(), s.Signature, s.Founder.SignaturePublic())
	if err != nil || !ok {
		return errStateBadSignature
	}
	return nil
}

// signAsFounder signs s with the founder's signing seed, incrementing its
// version (saturating at MaxUint32) per spec.md §4.6.
func signAsFounder(prev *SharedState, mutate func(*SharedState), founderSignSeed [32]byte) (SharedState, error) {
	next := SharedState{}
	if prev != nil {
		next = *prev
	}
	mutate(&next)
	if next.Version < 0xFFFFFFFF {
		next.Version++
	}
	sig, err := crypto.Sign(next.signedBytes(), founderSignSeed)
	if err != nil {
		return SharedState{}, err
	}
	next.Signature = sig
	return next, nil
}

// acceptIncoming applies the replication rule of spec.md §4.6: versions
// strictly less than current are ignored; equal version supersedes only
// if the signature verifies (and in practice will be byte-identical);
// anything else is installed only after signature verification.
func acceptIncoming(current *SharedState, incoming SharedState) (SharedState, error) {
	if err := incoming.verify(); err != nil {
		return SharedState{}, err
	}
	if current != nil && incoming.Version < current.Version {
		return SharedState{}, errStateStale
	}
	return incoming, nil
}

// hashModeratorList computes the binding hash stored in SharedState.ModListHash
// (spec.md §4.6, invariant 2).
func hashModeratorList(mods *ModeratorList) [32]byte {
	return sha256.Sum256(mods.packKeys())
}
