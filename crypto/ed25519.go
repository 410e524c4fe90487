package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
)

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Signature represents an Ed25519 signature.
//
//export ToxSignature
type Signature [SignatureSize]byte

// Sign creates an Ed25519 signature for a message using the private key.
//
//export ToxSign
func Sign(message []byte, privateKey [32]byte) (Signature, error) {
	if len(message) == 0 {
		return Signature{}, errors.New("empty message")
	}

	// Convert the 32-byte private key to the format expected by ed25519
	// Ed25519 private keys are 64 bytes (32 bytes seed + 32 bytes public key)
	edPrivateKey := ed25519.NewKeyFromSeed(privateKey[:])

	// Sign the message
	signatureBytes := ed25519.Sign(edPrivateKey, message)

	var signature Signature
	copy(signature[:], signatureBytes)

	return signature, nil
}

// Verify checks if a signature is valid for a message and public key.
//
//export ToxVerify
func Verify(message []byte, signature Signature, publicKey [32]byte) (bool, error) {
	if len(message) == 0 {
		return false, errors.New("empty message")
	}

	// Convert the 32-byte public key to the format expected by ed25519
	var edPublicKey [ed25519.PublicKeySize]byte
	copy(edPublicKey[:], publicKey[:])

	// Verify the signature
	return ed25519.Verify(edPublicKey[:], message, signature[:]), nil
}

// GenerateSignatureSeed creates a new random Ed25519 signing keypair,
// returning the 32-byte public key and the 32-byte seed (as accepted by
// Sign and ed25519.NewKeyFromSeed).
//
//export ToxGenerateSignatureSeed
func GenerateSignatureSeed() (publicKey, seed [32]byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return publicKey, seed, err
	}
	copy(publicKey[:], pub)
	copy(seed[:], priv.Seed())
	return publicKey, seed, nil
}

// GetSignaturePublicKey derives the Ed25519 public key that verifies
// signatures made by Sign with the given 32-byte seed.
func GetSignaturePublicKey(privateKey [32]byte) [32]byte {
	edPrivateKey := ed25519.NewKeyFromSeed(privateKey[:])
	var publicKey [32]byte
	copy(publicKey[:], edPrivateKey.Public().(ed25519.PublicKey))
	return publicKey
}
