package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
)

// Signer holds an ed25519 keypair and the chain address derived from it.
// Orders are signed over the 32-byte sha256 digest of their canonical
// encoding, not over the raw encoding.
type Signer struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string
}

// GenerateKey creates a new random ed25519 keypair.
func GenerateKey() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Signer{priv: priv, pub: pub, address: NormalAddress(pub)}, nil
}

// FromSeedHex creates a Signer from a hex-encoded 32-byte seed.
func FromSeedHex(seedHex string) (*Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{priv: priv, pub: pub, address: NormalAddress(pub)}, nil
}

// FromSecret derives a keypair from an arbitrary secret phrase, using the
// sha256 of the phrase as the ed25519 seed.
func FromSecret(secret string) *Signer {
	seed := sha256.Sum256([]byte(secret))
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{priv: priv, pub: pub, address: NormalAddress(pub)}
}

// Address returns the chain address derived from the public key.
func (s *Signer) Address() string { return s.address }

// PublicKeyHex returns the hex encoding of the 32-byte public key.
func (s *Signer) PublicKeyHex() string { return hex.EncodeToString(s.pub) }

// SignDigest signs a 32-byte digest and returns the 64-byte signature.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != sha256.Size {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", sha256.Size, len(digest))
	}
	return ed25519.Sign(s.priv, digest), nil
}

// VerifyDigest reports whether sig is a valid signature of digest by pub.
func VerifyDigest(pub, digest, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	if len(digest) != sha256.Size {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), digest, sig)
}

// DecodeHex decodes a hex string with or without a 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
