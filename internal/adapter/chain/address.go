package chain

import (
	"context"
	"crypto/sha256"
	"errors"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address hashing, not a security primitive
)

// testnetP2PKHVersion is the version byte for Bitcoin testnet P2PKH addresses.
const testnetP2PKHVersion = 0x6f

// AddressIssuer implements ports.AddressIssuer by deriving a testnet
// P2PKH-style address from the owner's identity. No keys are generated or held,
// so the same owner always receives the same address.
type AddressIssuer struct{}

// NewAddressIssuer creates a deterministic address issuer.
func NewAddressIssuer() *AddressIssuer {
	return &AddressIssuer{}
}

// NewAddress returns base58check(0x6f || ripemd160(sha256(ownerID))).
func (a *AddressIssuer) NewAddress(_ context.Context, ownerID string) (string, error) {
	if ownerID == "" {
		return "", errors.New("address issuer: empty owner id")
	}
	return DeriveAddress([]byte(ownerID)), nil
}

// DeriveAddress hashes identity bytes into a testnet P2PKH address.
func DeriveAddress(identity []byte) string {
	sum := sha256.Sum256(identity)

	h := ripemd160.New()
	h.Write(sum[:])

	payload := make([]byte, 0, 1+ripemd160.Size+4)
	payload = append(payload, testnetP2PKHVersion)
	payload = h.Sum(payload)

	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	payload = append(payload, second[:4]...)

	return base58.Encode(payload)
}

// ValidAddress reports whether addr is a well-formed testnet P2PKH address
// with a correct checksum.
func ValidAddress(addr string) bool {
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 1+ripemd160.Size+4 || raw[0] != testnetP2PKHVersion {
		return false
	}
	body, check := raw[:len(raw)-4], raw[len(raw)-4:]
	first := sha256.Sum256(body)
	second := sha256.Sum256(first[:])
	return string(second[:4]) == string(check)
}
