// Package oracle holds the fixed-width word exchanged with on-chain oracle callbacks.
package oracle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/unitpay/unitpay-gateway/pkg/types"
)

var uint256Args = mustUint256Args()

func mustUint256Args() abi.Arguments {
	typ, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(fmt.Sprintf("oracle: build uint256 abi type: %v", err))
	}
	return abi.Arguments{{Type: typ}}
}

// EncodeResult builds the verification word directly: 31 zero bytes followed
// by 1 when verified and 0 otherwise.
func EncodeResult(verified bool) types.Bytes32 {
	var word types.Bytes32
	if verified {
		word[types.Bytes32Len-1] = 1
	}
	return word
}

// EncodeUint256 ABI-encodes v as a single big-endian uint256 word.
func EncodeUint256(v *big.Int) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("uint256 value required")
	}
	if v.Sign() < 0 || v.BitLen() > 256 {
		return nil, fmt.Errorf("value %s out of uint256 range", v.String())
	}
	return uint256Args.Pack(v)
}

// DecodeResult reads a verification word back into a bool. Any value other
// than 0 or 1 is rejected.
func DecodeResult(word []byte) (bool, error) {
	if len(word) != types.Bytes32Len {
		return false, fmt.Errorf("expected %d bytes, got %d", types.Bytes32Len, len(word))
	}
	for _, b := range word[:types.Bytes32Len-1] {
		if b != 0 {
			return false, fmt.Errorf("non-zero padding in result word")
		}
	}
	switch word[types.Bytes32Len-1] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("unexpected result flag %d", word[types.Bytes32Len-1])
	}
}
