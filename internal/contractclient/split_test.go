package contractclient

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestSplitRoot_RoundTrip(t *testing.T) {
	root := common.HexToHash("0x0123456789abcdef0123456789abcdeffedcba9876543210fedcba9876543210")
	low, high := splitRoot(root)
	require.Equal(t, root, joinRoot(low, high))
}

func TestSplitRoot_Zero(t *testing.T) {
	low, high := splitRoot(common.Hash{})
	require.Equal(t, int64(0), low.Int64())
	require.Equal(t, int64(0), high.Int64())
}
