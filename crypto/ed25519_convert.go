package crypto

import (
	"crypto/sha512"
	"errors"
	"math/big"
)

// fieldPrime is the Curve25519/Ed25519 base field prime, 2^255 - 19.
var fieldPrime = new(big.Int).Sub(
	new(big.Int).Lsh(big.NewInt(1), 255),
	big.NewInt(19),
)

// Ed25519PublicKeyToX25519 converts an Ed25519 signature public key to its
// corresponding X25519 (Curve25519) public key via the standard birational
// map between the twisted Edwards and Montgomery forms of curve25519:
//
//	u = (1 + y) / (1 - y) mod p
//
// where y is the Edwards public key's y-coordinate, recovered by clearing
// the sign bit carried in the top bit of the encoded key.
//
//export ToxEd25519PublicKeyToX25519
func Ed25519PublicKeyToX25519(signPublic [32]byte) ([32]byte, error) {
	var encoded [32]byte
	copy(encoded[:], signPublic[:])
	encoded[31] &= 0x7F // clear the sign bit; only y is needed for u

	y := leBytesToBig(encoded[:])
	if y.Cmp(fieldPrime) >= 0 {
		return [32]byte{}, errors.New("invalid ed25519 public key: y out of range")
	}

	one := big.NewInt(1)
	numerator := new(big.Int).Add(one, y)
	numerator.Mod(numerator, fieldPrime)

	denominator := new(big.Int).Sub(one, y)
	denominator.Mod(denominator, fieldPrime)

	denomInv := new(big.Int).ModInverse(denominator, fieldPrime)
	if denomInv == nil {
		return [32]byte{}, errors.New("invalid ed25519 public key: non-invertible denominator")
	}

	u := new(big.Int).Mul(numerator, denomInv)
	u.Mod(u, fieldPrime)

	var out [32]byte
	bigToLEBytes(u, out[:])
	return out, nil
}

// Ed25519SecretKeyToX25519 converts an Ed25519 signing seed (the 32-byte
// secret half of an Ed25519 key pair) into the corresponding X25519 secret
// scalar, following the same SHA-512-and-clamp construction libsodium uses
// for crypto_sign_ed25519_sk_to_curve25519.
//
//export ToxEd25519SecretKeyToX25519
func Ed25519SecretKeyToX25519(signSeed [32]byte) [32]byte {
	digest := sha512.Sum512(signSeed[:])

	var scalar [32]byte
	copy(scalar[:], digest[:32])
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64

	ZeroBytes(digest[:])
	return scalar
}

func leBytesToBig(b []byte) *big.Int {
	rev := make([]byte, len(b))
	for i, v := range b {
		rev[len(b)-1-i] = v
	}
	return new(big.Int).SetBytes(rev)
}

func bigToLEBytes(n *big.Int, out []byte) {
	be := n.Bytes()
	for i := 0; i < len(be); i++ {
		out[i] = be[len(be)-1-i]
	}
}
