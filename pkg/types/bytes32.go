package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Bytes32Len is the width of an EVM word.
const Bytes32Len = 32

// Bytes32HexLen is the length of a 0x-prefixed hex word, matching the
// blockchain_payment_id column.
const Bytes32HexLen = 2 + 2*Bytes32Len

// Bytes32 is a fixed-width EVM word rendered as 0x-prefixed hex in JSON.
type Bytes32 [Bytes32Len]byte

// ParseBytes32 decodes a 0x-prefixed, 64 hex digit string.
func ParseBytes32(value string) (Bytes32, error) {
	var out Bytes32
	if len(value) != Bytes32HexLen || !strings.HasPrefix(value, "0x") {
		return out, fmt.Errorf("expected 0x-prefixed %d-character hex, got %d characters", Bytes32HexLen, len(value))
	}
	raw, err := hex.DecodeString(value[2:])
	if err != nil {
		return out, fmt.Errorf("decode hex: %w", err)
	}
	copy(out[:], raw)
	return out, nil
}

// Hex returns the lowercase 0x-prefixed encoding.
func (b Bytes32) Hex() string {
	return "0x" + hex.EncodeToString(b[:])
}

func (b Bytes32) String() string {
	return b.Hex()
}

// IsZero reports whether every byte is zero.
func (b Bytes32) IsZero() bool {
	return b == Bytes32{}
}

func (b Bytes32) MarshalText() ([]byte, error) {
	return []byte(b.Hex()), nil
}

func (b *Bytes32) UnmarshalText(text []byte) error {
	parsed, err := ParseBytes32(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
