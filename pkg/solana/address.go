package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/pkg/errors"
)

const (
	// MaxSeedLength is the maximum length of a seed used to derive an address.
	MaxSeedLength = 32
)

var (
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrIllegalOwner          = errors.New("illegal owner")

	ErrInvalidPublicKey = errors.New("invalid public key")
)

var (
	addressHashCtor = sha256.New

	pdaMarker = []byte("ProgramDerivedAddress")
)

// CreateWithSeed mirrors the implementation of the Solana SDK's Pubkey::create_with_seed.
//
// The resulting address is sha256(base || seed || owner). It has no private key;
// creating an account at it requires a signature from base.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L140
func CreateWithSeed(base ed25519.PublicKey, seed string, owner ed25519.PublicKey) (ed25519.PublicKey, error) {
	if len(seed) > MaxSeedLength {
		return nil, ErrMaxSeedLengthExceeded
	}
	if len(base) != ed25519.PublicKeySize || len(owner) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}

	if bytes.HasSuffix(owner, pdaMarker) {
		return nil, ErrIllegalOwner
	}

	h := addressHashCtor()
	for _, v := range [][]byte{base, []byte(seed), owner} {
		if _, err := h.Write(v); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	return h.Sum(nil), nil
}
