// Package identity provides the default oplog.Signer: an ECDSA P256 keypair
// whose public half, hex-encoded, is the string an oplog.Entry carries as
// its Key and a Log carries in its AllowedKeys set.
package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// Identity is a single ECDSA P256 keypair. It implements oplog.Signer.
type Identity struct {
	privateKey *ecdsa.PrivateKey
}

// New generates a fresh keypair.
func New() (*Identity, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &Identity{privateKey: privateKey}, nil
}

// FromPrivateKey wraps an already-generated key, e.g. one recovered from a
// keystore.
func FromPrivateKey(key *ecdsa.PrivateKey) *Identity {
	return &Identity{privateKey: key}
}

// PrivateKey exposes the underlying key, for callers that persist it
// (keystore.KeyStore).
func (id *Identity) PrivateKey() *ecdsa.PrivateKey {
	return id.privateKey
}

// PublicIdentity returns the hex-encoded, uncompressed public key: the
// string oplog treats as this identity's Key.
func (id *Identity) PublicIdentity() string {
	return encodePublicKey(&id.privateKey.PublicKey)
}

// Sign produces a hex-encoded ECDSA signature over the sha256 digest of
// data.
func (id *Identity) Sign(data []byte) (string, error) {
	digest := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(rand.Reader, id.privateKey, digest[:])
	if err != nil {
		return "", fmt.Errorf("identity: sign: %w", err)
	}
	sig := append(padTo32(r), padTo32(s)...)
	return hex.EncodeToString(sig), nil
}

// Verify checks sigHex against data under the public key encoded as
// pubKeyHex. It never returns an error for a signature that simply fails to
// verify — only for malformed hex/length input — so callers can treat a
// false return as "verification failed" and an error as "couldn't even
// check".
func (id *Identity) Verify(pubKeyHex string, sigHex string, data []byte) (bool, error) {
	pub, err := decodePublicKey(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("identity: decode public key: %w", err)
	}

	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("identity: decode signature: %w", err)
	}
	if len(sigBytes) != 64 {
		return false, errors.New("identity: signature must be 64 bytes")
	}

	r := new(big.Int).SetBytes(sigBytes[:32])
	s := new(big.Int).SetBytes(sigBytes[32:])

	digest := sha256.Sum256(data)
	return ecdsa.Verify(pub, digest[:], r, s), nil
}

func encodePublicKey(pub *ecdsa.PublicKey) string {
	return hex.EncodeToString(append(padTo32(pub.X), padTo32(pub.Y)...))
}

func decodePublicKey(pubKeyHex string) (*ecdsa.PublicKey, error) {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, err
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("invalid public key length: %d", len(raw))
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(raw[:32]),
		Y:     new(big.Int).SetBytes(raw[32:]),
	}, nil
}

// padTo32 left-pads a big.Int's bytes to the P256 coordinate width, so X/Y/R/S
// always round-trip to the same 32-byte slice regardless of leading zeros.
func padTo32(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
