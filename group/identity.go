package group

import (
	"errors"

	"github.com/opd-ai/toxcore/crypto"
)

// ExtendedPublicKey is the concatenation of a 32-byte X25519 encryption
// public key and a 32-byte Ed25519 signature public key belonging to the
// same identity (spec.md §3, "Extended public key").
type ExtendedPublicKey [64]byte

// ExtendedSecretKey is the concatenation of the X25519 encryption secret
// key and the Ed25519 signing seed for the same identity.
type ExtendedSecretKey [64]byte

// EncryptionPublic returns the encryption half of the extended key.
func (k ExtendedPublicKey) EncryptionPublic() [32]byte {
	var out [32]byte
	copy(out[:], k[:32])
	return out
}

// SignaturePublic returns the signature half of the extended key, which is
// also the chat id for a group's founder identity.
func (k ExtendedPublicKey) SignaturePublic() [32]byte {
	var out [32]byte
	copy(out[:], k[32:])
	return out
}

// EncryptionSecret returns the encryption half of the extended secret key.
func (k ExtendedSecretKey) EncryptionSecret() [32]byte {
	var out [32]byte
	copy(out[:], k[:32])
	return out
}

// SignatureSeed returns the Ed25519 signing seed half of the extended
// secret key.
func (k ExtendedSecretKey) SignatureSeed() [32]byte {
	var out [32]byte
	copy(out[:], k[32:])
	return out
}

// ExtendedKeyPair is a self or chat identity: a long-term signing keypair
// plus the encryption keypair derived from it (spec.md §3).
type ExtendedKeyPair struct {
	Public ExtendedPublicKey
	Secret ExtendedSecretKey
}

// NewExtendedKeyPair generates a fresh signing keypair and derives its
// encryption half via Ed25519->X25519 conversion, per spec.md §3.
func NewExtendedKeyPair() (*ExtendedKeyPair, error) {
	sigPub, sigPriv, err := generateSigningKeyPair()
	if err != nil {
		return nil, err
	}
	return extendedKeyPairFromSignature(sigPub, sigPriv)
}

// extendedKeyPairFromSignature derives an extended keypair from an existing
// Ed25519 signature keypair, deriving the encryption half.
func extendedKeyPairFromSignature(sigPub, sigPriv [32]byte) (*ExtendedKeyPair, error) {
	encPub, err := crypto.Ed25519PublicKeyToX25519(sigPub)
	if err != nil {
		return nil, err
	}
	encSec := crypto.Ed25519SecretKeyToX25519(sigPriv)

	kp := &ExtendedKeyPair{}
	copy(kp.Public[:32], encPub[:])
	copy(kp.Public[32:], sigPub[:])
	copy(kp.Secret[:32], encSec[:])
	copy(kp.Secret[32:], sigPriv[:])
	return kp, nil
}

// generateSigningKeyPair generates a fresh Ed25519 keypair.
func generateSigningKeyPair() (pub, priv [32]byte, err error) {
	return crypto.GenerateSignatureSeed()
}

// jenkinsOneAtATime computes the 32-bit "hash id" used throughout the group
// core to demultiplex packets without decrypting them (spec.md GLOSSARY,
// "Hash id"). It is Bob Jenkins' one-at-a-time hash, a small, well-known,
// non-cryptographic mixing function with no suitable library in the
// retrieved dependency pack — implemented directly rather than pulled in
// from a third party.
func jenkinsOneAtATime(data []byte) uint32 {
	var hash uint32
	for _, b := range data {
		hash += uint32(b)
		hash += hash << 10
		hash ^= hash >> 6
	}
	hash += hash << 3
	hash ^= hash >> 11
	hash += hash << 15
	return hash
}

// ChatIDHash returns the hash id for a chat id (a group's founder signature
// public key).
func ChatIDHash(chatID [32]byte) uint32 {
	return jenkinsOneAtATime(chatID[:])
}

// PeerKeyHash returns the hash id for a peer's encryption public key, used
// as the per-frame sender forgery check (spec.md §4.1).
func PeerKeyHash(encryptionPublic [32]byte) uint32 {
	return jenkinsOneAtATime(encryptionPublic[:])
}

var errZeroExtendedKey = errors.New("group: extended key must not be all-zero")

func validateExtendedPublicKey(k ExtendedPublicKey) error {
	var zero ExtendedPublicKey
	if k == zero {
		return errZeroExtendedKey
	}
	return nil
}
