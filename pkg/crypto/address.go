package crypto

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // chain address format requires ripemd160
)

// NormalAddressPrefix marks user (non-contract) account addresses.
const NormalAddressPrefix = "A"

// NormalAddress derives the chain address for an ed25519 public key:
// base58(ripemd160(sha256(pub))) with the normal-account prefix.
func NormalAddress(pub []byte) string {
	sum := sha256.Sum256(pub)
	r := ripemd160.New()
	r.Write(sum[:])
	return NormalAddressPrefix + base58.Encode(r.Sum(nil))
}

// IsNormalAddress reports whether s looks like a well-formed user address.
func IsNormalAddress(s string) bool {
	if len(s) < 2 || s[:1] != NormalAddressPrefix {
		return false
	}
	raw, err := base58.Decode(s[1:])
	if err != nil {
		return false
	}
	return len(raw) == ripemd160.Size
}
