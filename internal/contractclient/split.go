package contractclient

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// splitRoot splits a 32-byte root into its low and high 16-byte halves, encoded
// low-then-high as the contract's calldata convention requires (spec §6.1).
func splitRoot(root common.Hash) (low, high *big.Int) {
	b := root.Bytes()
	high = new(big.Int).SetBytes(b[:16])
	low = new(big.Int).SetBytes(b[16:])
	return low, high
}

// joinRoot is the inverse of splitRoot, used when decoding a read-side getter's
// return value back into a full 32-byte root.
func joinRoot(low, high *big.Int) common.Hash {
	var out [32]byte
	copy(out[0:16], leftPad16(high))
	copy(out[16:32], leftPad16(low))
	return out
}

func leftPad16(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) >= 16 {
		return b[len(b)-16:]
	}
	out := make([]byte, 16)
	copy(out[16-len(b):], b)
	return out
}
