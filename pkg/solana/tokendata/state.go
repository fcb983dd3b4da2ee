package tokendata

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/account-provisioner/pkg/solana/binary"
)

const (
	// HeaderSize is the size of an encoded TokenData with no history.
	HeaderSize = 4 + 4

	// ChangeDetailSize is the size of a single encoded history entry.
	ChangeDetailSize = 4 + 2*ed25519.PublicKeySize + 8
)

var ErrInvalidTokenData = errors.New("invalid token data")

// ChangeDetail records a single mutation of a TokenData amount.
type ChangeDetail struct {
	Amount    uint32
	From      ed25519.PublicKey
	To        ed25519.PublicKey
	Timestamp int64
}

// TokenData is the state the token-data program keeps in its data accounts.
//
// Layout (borsh):
//
//	amount:  u32
//	history: u32 length, then ChangeDetail{amount u32, from [32]u8, to [32]u8, timestamp i64}
type TokenData struct {
	Amount  uint32
	History []ChangeDetail
}

// Size returns the number of bytes Marshal produces.
func (t *TokenData) Size() int {
	return HeaderSize + len(t.History)*ChangeDetailSize
}

func (t *TokenData) Marshal() []byte {
	b := make([]byte, t.Size())

	var offset int
	binary.PutUint32(b[offset:], t.Amount, &offset)
	binary.PutUint32(b[offset:], uint32(len(t.History)), &offset)
	for _, h := range t.History {
		binary.PutUint32(b[offset:], h.Amount, &offset)
		binary.PutKey32(b[offset:], h.From, &offset)
		binary.PutKey32(b[offset:], h.To, &offset)
		binary.PutInt64(b[offset:], h.Timestamp, &offset)
	}

	return b
}

// Unmarshal decodes a TokenData from the start of b. Trailing bytes are
// ignored, since data accounts are allocated with a fixed size.
func (t *TokenData) Unmarshal(b []byte) error {
	if len(b) < HeaderSize {
		return ErrInvalidTokenData
	}

	var offset int
	var count uint32
	binary.GetUint32(b[offset:], &t.Amount, &offset)
	binary.GetUint32(b[offset:], &count, &offset)

	if uint64(len(b)-offset) < uint64(count)*ChangeDetailSize {
		return errors.Wrapf(ErrInvalidTokenData, "history of %d entries does not fit in %d bytes", count, len(b))
	}

	t.History = make([]ChangeDetail, count)
	for i := range t.History {
		h := &t.History[i]
		binary.GetUint32(b[offset:], &h.Amount, &offset)
		binary.GetKey32(b[offset:], &h.From, &offset)
		binary.GetKey32(b[offset:], &h.To, &offset)
		binary.GetInt64(b[offset:], &h.Timestamp, &offset)
	}

	return nil
}

// UnmarshalTokenData decodes account data. Empty data decodes to the zero value.
func UnmarshalTokenData(data []byte) (*TokenData, error) {
	var t TokenData
	if len(data) == 0 {
		return &t, nil
	}
	if err := t.Unmarshal(data); err != nil {
		return nil, err
	}
	return &t, nil
}
