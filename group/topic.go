package group

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/opd-ai/toxcore/crypto"
)

// Topic is the group's signed topic record (spec.md §3, §4.6). Unlike
// SharedState it may be signed by the founder or any seated moderator.
type Topic struct {
	Text             string
	SignerSignPublic [32]byte
	Version          uint32
	Signature        crypto.Signature
}

var (
	errTopicTooLong      = errors.New("group: topic text too long")
	errTopicBadSignature = errors.New("group: topic signature verification failed")
	errTopicStale        = errors.New("group: topic version is older than held")
	errTopicUnauthorized = errors.New("group: topic signer is not founder or moderator")
)

func (t Topic) signedBytes() []byte {
	var buf bytes.Buffer
	textBytes := []byte(t.Text)
	var textLen [2]byte
	binary.BigEndian.PutUint16(textLen[:], uint16(len(textBytes)))
	buf.Write(textLen[:])
	buf.Write(textBytes)
	buf.Write(t.SignerSignPublic[:])
	var version [4]byte
	binary.BigEndian.PutUint32(version[:], t.Version)
	buf.Write(version[:])
	return buf.Bytes()
}

func (t Topic) pack() []byte {
	body := t.signedBytes()
	out := make([]byte, len(body)+SignatureSize)
	copy(out, body)
	copy(out[len(body):], t.Signature[:])
	return out
}

func unpackTopic(data []byte) (Topic, error) {
	if len(data) < 2 {
		return Topic{}, errFrameTooShort
	}
	textLen := int(binary.BigEndian.Uint16(data[:2]))
	off := 2
	if len(data) < off+textLen+32+4+SignatureSize {
		return Topic{}, errFrameTooShort
	}
	var t Topic
	t.Text = string(data[off : off+textLen])
	off += textLen
	copy(t.SignerSignPublic[:], data[off:off+32])
	off += 32
	t.Version = binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	copy(t.Signature[:], data[off:off+SignatureSize])
	return t, nil
}

// verify checks the structural bound and the signature, and that the
// signer is authorized by the currently held shared state / moderator
// list (spec.md §4.6 invariant 5).
func (t Topic) verify(founderSignPublic [32]byte, mods *ModeratorList) error {
	if len([]byte(t.Text)) > MaxTopicLength {
		return errTopicTooLong
	}
	if !CanSetTopic(t.SignerSignPublic, founderSignPublic, mods) {
		return errTopicUnauthorized
	}
	ok, err := crypto.Verify(t.signedBytes(), t.Signature, t.SignerSignPublic)
	if err != nil || !ok {
		return errTopicBadSignature
	}
	return nil
}

// acceptTopic applies spec.md's monotone-version rule with "equality
// held wins": an incoming topic strictly newer than current replaces it;
// an equal or older version is rejected even if otherwise valid, so a
// duplicate retransmission never flaps an already-applied topic.
func acceptTopic(current *Topic, incoming Topic, founderSignPublic [32]byte, mods *ModeratorList) (Topic, error) {
	if err := incoming.verify(founderSignPublic, mods); err != nil {
		return Topic{}, err
	}
	if current != nil && incoming.Version <= current.Version {
		return Topic{}, errTopicStale
	}
	return incoming, nil
}

// signTopic produces a newly signed Topic, incrementing the version held
// by current (or starting at 1 if current is nil).
func signTopic(current *Topic, text string, signerSeed, signerSignPublic [32]byte) (Topic, error) {
	if len([]byte(text)) > MaxTopicLength {
		return Topic{}, errTopicTooLong
	}
	version := uint32(1)
	if current != nil && current.Version < 0xFFFFFFFF {
		version = current.Version + 1
	}
	t := Topic{Text: text, SignerSignPublic: signerSignPublic, Version: version}
	sig, err := crypto.Sign(t.signedBytes(), signerSeed)
	if err != nil {
		return Topic{}, err
	}
	t.Signature = sig
	return t, nil
}
