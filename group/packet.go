package group

import (
	"encoding/binary"
	"errors"

	"github.com/opd-ai/toxcore/crypto"
)

// OuterKind is the outer, plaintext packet kind carried by every group
// frame (spec.md §4.1, §6 "on-wire packet kinds").
type OuterKind byte

const (
	OuterHandshake OuterKind = iota + 1
	OuterLossless
	OuterLossy
)

// InnerType is the cleartext byte inside a decrypted lossless/lossy frame
// that selects how the payload is interpreted (spec.md §6). Values are
// stable protocol numbers and must never change once assigned; zero is
// reserved so that padding-stripping (skip leading zero bytes) can never
// be confused with a valid type.
type InnerType byte

const (
	InnerSyncRequest InnerType = iota + 1
	InnerSyncResponse
	InnerInviteRequest
	InnerInviteResponse
	InnerPeerInfoRequest
	InnerPeerInfoResponse
	InnerPeerAnnounce
	InnerSharedState
	InnerModList
	InnerSanctionsList
	InnerTopic
	InnerHsResponseAck
	InnerBroadcast
	InnerMessageAck
	InnerPing
	InnerInviteResponseReject
	InnerTcpRelays
	InnerIPPort
	InnerCustomPacket
	// InnerFriendInvite never appears on the wire inside a group frame; it
	// is injected out-of-band by the outer messenger (spec.md §6) and is
	// listed here only so the full stable protocol-number space is named
	// in one place.
	InnerFriendInvite
)

var (
	errFrameTooShort    = errors.New("group: frame too short")
	errFrameTooLarge    = errors.New("group: frame exceeds maximum packet size")
	errDecryptionFailed = errors.New("group: decryption failed")
	errSenderHashMismatch = errors.New("group: sender key hash mismatch")
	errBadInnerType     = errors.New("group: invalid or empty inner plaintext")
)

// outerHeaderSize is the size of the plaintext header preceding the
// ciphertext: kind(1) + chat-hash(4) + sender-enc-key(32) + nonce(24).
const outerHeaderSize = 1 + 4 + 32 + NonceSize

// outerHeader is the plaintext header shared by every group frame.
type outerHeader struct {
	Kind          OuterKind
	ChatIDHash    uint32
	SenderEncKey  [32]byte
	Nonce         crypto.Nonce
}

func (h outerHeader) pack() []byte {
	buf := make([]byte, outerHeaderSize)
	buf[0] = byte(h.Kind)
	binary.BigEndian.PutUint32(buf[1:5], h.ChatIDHash)
	copy(buf[5:37], h.SenderEncKey[:])
	copy(buf[37:61], h.Nonce[:])
	return buf
}

func unpackOuterHeader(data []byte) (outerHeader, []byte, error) {
	if len(data) < outerHeaderSize {
		return outerHeader{}, nil, errFrameTooShort
	}
	var h outerHeader
	h.Kind = OuterKind(data[0])
	h.ChatIDHash = binary.BigEndian.Uint32(data[1:5])
	copy(h.SenderEncKey[:], data[5:37])
	copy(h.Nonce[:], data[37:61])
	return h, data[outerHeaderSize:], nil
}

// minLosslessPlaintext is type+message-id, the minimum legal plaintext
// for a Lossless frame once padding is stripped (spec.md §4.1).
const minLosslessPlaintext = 1 + 8

// minLossyPlaintext is the type byte alone, the minimum legal plaintext
// for a Lossy frame.
const minLossyPlaintext = 1

// padTo8 returns the number of zero padding bytes needed so that
// padLen+innerLen is a multiple of 8, per spec.md §4.1.
func padTo8(innerLen int) int {
	rem := innerLen % 8
	if rem == 0 {
		return 0
	}
	return 8 - rem
}

// buildInnerLossless builds the cleartext-to-be-encrypted for a Lossless
// frame: padding, type, message id, payload.
func buildInnerLossless(typ InnerType, messageID uint64, payload []byte) []byte {
	innerLen := 1 + 8 + len(payload)
	pad := padTo8(innerLen)
	buf := make([]byte, pad+innerLen)
	buf[pad] = byte(typ)
	binary.BigEndian.PutUint64(buf[pad+1:pad+9], messageID)
	copy(buf[pad+9:], payload)
	return buf
}

// buildInnerLossy builds the cleartext-to-be-encrypted for a Lossy frame:
// padding, type, payload.
func buildInnerLossy(typ InnerType, payload []byte) []byte {
	innerLen := 1 + len(payload)
	pad := padTo8(innerLen)
	buf := make([]byte, pad+innerLen)
	buf[pad] = byte(typ)
	copy(buf[pad+1:], payload)
	return buf
}

// stripPadding skips leading zero bytes and returns the first non-zero
// byte (the inner type) plus the remainder of the buffer starting at that
// byte, per spec.md §4.1's padding-stripping rule.
func stripPadding(data []byte) (InnerType, []byte, error) {
	i := 0
	for i < len(data) && data[i] == 0 {
		i++
	}
	if i == len(data) {
		return 0, nil, errBadInnerType
	}
	return InnerType(data[i]), data[i:], nil
}

// decodeLossless strips padding from a decrypted Lossless plaintext and
// returns its type, message id, and payload.
func decodeLossless(plaintext []byte) (InnerType, uint64, []byte, error) {
	typ, rest, err := stripPadding(plaintext)
	if err != nil {
		return 0, 0, nil, err
	}
	if len(rest) < 1+8 {
		return 0, 0, nil, errFrameTooShort
	}
	msgID := binary.BigEndian.Uint64(rest[1:9])
	return typ, msgID, rest[9:], nil
}

// decodeLossy strips padding from a decrypted Lossy plaintext and returns
// its type and payload.
func decodeLossy(plaintext []byte) (InnerType, []byte, error) {
	typ, rest, err := stripPadding(plaintext)
	if err != nil {
		return 0, nil, err
	}
	return typ, rest[1:], nil
}

// wrapHandshake encrypts a handshake payload under the peer's static
// encryption key (spec.md §4.1: handshake frames use static keys, not
// session keys).
func wrapHandshake(chatIDHash uint32, selfEncPub, selfEncPriv, peerEncPub [32]byte, payload []byte) ([]byte, error) {
	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return nil, err
	}
	ciphertext, err := crypto.Encrypt(payload, nonce, peerEncPub, selfEncPriv)
	if err != nil {
		return nil, err
	}
	h := outerHeader{Kind: OuterHandshake, ChatIDHash: chatIDHash, SenderEncKey: selfEncPub, Nonce: nonce}
	return appendFrame(h, ciphertext)
}

// wrapLossless encrypts a Lossless inner packet under the connection's
// precomputed shared key.
func wrapLossless(chatIDHash uint32, selfEncPub [32]byte, sharedKey [32]byte, typ InnerType, messageID uint64, payload []byte) ([]byte, error) {
	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return nil, err
	}
	inner := buildInnerLossless(typ, messageID, payload)
	ciphertext, err := crypto.EncryptSymmetric(inner, nonce, sharedKey)
	if err != nil {
		return nil, err
	}
	h := outerHeader{Kind: OuterLossless, ChatIDHash: chatIDHash, SenderEncKey: selfEncPub, Nonce: nonce}
	return appendFrame(h, ciphertext)
}

// wrapLossy encrypts a Lossy inner packet under the connection's
// precomputed shared key.
func wrapLossy(chatIDHash uint32, selfEncPub [32]byte, sharedKey [32]byte, typ InnerType, payload []byte) ([]byte, error) {
	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return nil, err
	}
	inner := buildInnerLossy(typ, payload)
	ciphertext, err := crypto.EncryptSymmetric(inner, nonce, sharedKey)
	if err != nil {
		return nil, err
	}
	h := outerHeader{Kind: OuterLossy, ChatIDHash: chatIDHash, SenderEncKey: selfEncPub, Nonce: nonce}
	return appendFrame(h, ciphertext)
}

func appendFrame(h outerHeader, ciphertext []byte) ([]byte, error) {
	frame := append(h.pack(), ciphertext...)
	if len(frame) > MaxPacketSize {
		return nil, errFrameTooLarge
	}
	return frame, nil
}

// unwrapHandshake decrypts a received handshake frame using our static
// secret key, verifying the claimed sender key against the embedded hash
// (spec.md §4.1 failure mode: sender-hash mismatch).
func unwrapHandshake(frame []byte, selfEncPriv [32]byte) (outerHeader, []byte, error) {
	h, ciphertext, err := unpackOuterHeader(frame)
	if err != nil {
		return h, nil, err
	}
	if h.Kind != OuterHandshake {
		return h, nil, errBadInnerType
	}
	plaintext, err := crypto.Decrypt(ciphertext, h.Nonce, h.SenderEncKey, selfEncPriv)
	if err != nil {
		return h, nil, errDecryptionFailed
	}
	return h, plaintext, nil
}

// unwrapFrame decrypts a received Lossless/Lossy frame using the
// connection's precomputed shared key and checks that the sender key in
// the header equals the claimed sender key, byte for byte (forgery check,
// spec.md §3 "Self identity").
func unwrapFrame(frame []byte, sharedKey [32]byte, claimedSenderEncKey [32]byte) (outerHeader, []byte, error) {
	h, ciphertext, err := unpackOuterHeader(frame)
	if err != nil {
		return h, nil, err
	}
	if h.Kind != OuterLossless && h.Kind != OuterLossy {
		return h, nil, errBadInnerType
	}
	if h.SenderEncKey != claimedSenderEncKey {
		return h, nil, errSenderHashMismatch
	}
	minSize := minLossyPlaintext
	if h.Kind == OuterLossless {
		minSize = minLosslessPlaintext
	}
	if len(ciphertext) < minSize+MACSize {
		return h, nil, errFrameTooShort
	}
	plaintext, err := crypto.DecryptSymmetric(ciphertext, h.Nonce, sharedKey)
	if err != nil {
		return h, nil, errDecryptionFailed
	}
	return h, plaintext, nil
}
