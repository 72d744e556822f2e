package contractclient

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// mockEthClient mirrors x/superblock/l1/eth_publisher_test.go's mockEthClient.
type mockEthClient struct {
	sent            *types.Transaction
	receipt         *types.Receipt
	receiptErr      error
	lastCallMsg     ethereum.CallMsg
	callContractRet []byte
}

func (m *mockEthClient) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(1337), nil }
func (m *mockEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 3, nil
}
func (m *mockEthClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}
func (m *mockEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}
func (m *mockEthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 50_000, nil
}
func (m *mockEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(10), BaseFee: big.NewInt(5_000_000_000)}, nil
}
func (m *mockEthClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	m.lastCallMsg = msg
	return m.callContractRet, nil
}
func (m *mockEthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	m.sent = tx
	return nil
}
func (m *mockEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if m.receiptErr != nil {
		return nil, m.receiptErr
	}
	return m.receipt, nil
}

func testClient(t *testing.T, eth *mockEthClient) *Client {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewLocalECDSASigner(big.NewInt(1337), key)

	cfg := DefaultConfig()
	cfg.ChainID = 1337
	cfg.VerifierContract = "0x000000000000000000000000000000000000aBcD"
	cfg.GasLimitBufferPct = 0
	cfg.ConfirmationDelaySeconds = 0

	c, err := New(cfg, eth, signer, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestClient_VerifyCommitteeUpdate_Submits(t *testing.T) {
	eth := &mockEthClient{}
	c := testClient(t, eth)

	txHash, err := c.VerifyCommitteeUpdate(context.Background(), common.HexToHash("0xaa"), common.HexToHash("0xbb"), 8224)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, txHash)
	require.NotNil(t, eth.sent)
	require.Equal(t, c.address, *eth.sent.To())
}

func TestClient_WaitForConfirmation_Success(t *testing.T) {
	eth := &mockEthClient{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	c := testClient(t, eth)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.WaitForConfirmation(ctx, common.HexToHash("0x01")))
}

func TestClient_WaitForConfirmation_Reverted(t *testing.T) {
	eth := &mockEthClient{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}
	c := testClient(t, eth)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.WaitForConfirmation(ctx, common.HexToHash("0x01"))
	require.Error(t, err)
}

func TestClient_WaitForConfirmation_Timeout(t *testing.T) {
	eth := &mockEthClient{receiptErr: ethereum.NotFound}
	c := testClient(t, eth)
	c.cfg.ConfirmationRetries = 2

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.WaitForConfirmation(ctx, common.HexToHash("0x01"))
	require.Error(t, err)
}

func TestClient_GetLatestCommitteeID(t *testing.T) {
	parsed, err := parseVerifierABI()
	require.NoError(t, err)

	eth := &mockEthClient{}
	c := testClient(t, eth)
	outputs, err := parsed.Methods["get_latest_committee_id"].Outputs.Pack(uint64(5))
	require.NoError(t, err)
	eth.callContractRet = outputs

	id, err := c.GetLatestCommitteeID(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(5), id)
}
