// Package contractclient implements the settlement-chain contract client (spec §6.1):
// the two write operations the on-chain broadcaster (C7) submits, and the read
// operations the scheduler (C3) and retry controller (C8) use to derive verified
// state.
//
// Grounded on x/superblock/l1/eth_publisher_test.go for the transaction-building shape
// (PendingNonceAt → EstimateGas → fee suggestion → sign → SendTransaction) and on
// x/superblock/l1/contracts/dispute_game_factory.go for the embedded-ABI / abi.Pack
// calldata convention. The confirmation-polling loop is grounded on
// original_source/crates/daemon/src/job_processor/broadcast.rs's submit-then-
// wait_for_confirmation sequence, translated from Starknet tx-status polling to an EVM
// receipt poll.
package contractclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/lightclient/bankai/internal/bankerr"
)

// ethClient is the subset of ethclient.Client the contract client needs. Matching
// x/superblock/l1/eth_publisher_test.go's mockEthClient surface keeps this client
// testable without a live node.
type ethClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EpochProof mirrors the contract's get_epoch_proof return tuple.
type EpochProof struct {
	HeaderRoot      common.Hash
	StateRoot       common.Hash
	NSigners        uint64
	ExecutionHash   common.Hash
	ExecutionHeight uint64
}

// Client is the settlement-chain contract client.
type Client struct {
	cfg     Config
	client  ethClient
	signer  Signer
	address common.Address
	abi     abi.ABI
	log     zerolog.Logger
}

// New constructs a Client. client is the live ethclient.Client (or a test double
// satisfying ethClient); signer holds the key used to sign broadcast transactions.
func New(cfg Config, client ethClient, signer Signer, log zerolog.Logger) (*Client, error) {
	parsedABI, err := parseVerifierABI()
	if err != nil {
		return nil, fmt.Errorf("contractclient: parse abi: %w", err)
	}
	if cfg.VerifierContract == "" {
		return nil, errors.New("contractclient: verifier_contract is required")
	}
	return &Client{
		cfg:     cfg,
		client:  client,
		signer:  signer,
		address: common.HexToAddress(cfg.VerifierContract),
		abi:     parsedABI,
		log:     log.With().Str("component", "contract-client").Logger(),
	}, nil
}

// VerifyCommitteeUpdate submits verify_committee_update(state_root, committee_hash, slot)
// and returns the transaction hash (spec §6.1, §4.4 step 7).
func (c *Client) VerifyCommitteeUpdate(ctx context.Context, stateRoot, committeeHash common.Hash, slot uint64) (common.Hash, error) {
	stateLow, stateHigh := splitRoot(stateRoot)
	committeeLow, committeeHigh := splitRoot(committeeHash)

	data, err := c.abi.Pack("verify_committee_update", stateLow, stateHigh, committeeLow, committeeHigh, slot)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: pack verify_committee_update: %w", err)
	}
	return c.submit(ctx, data)
}

// VerifyEpochBatch submits verify_epoch_batch(...) for the latest epoch in the batch,
// carrying the batch merkle root (spec §6.1, §4.5 step 8).
func (c *Client) VerifyEpochBatch(ctx context.Context, batchRoot, headerRoot, stateRoot, committeeHash, executionHash common.Hash, slot, nSigners, executionHeight uint64) (common.Hash, error) {
	headerLow, headerHigh := splitRoot(headerRoot)
	stateLow, stateHigh := splitRoot(stateRoot)
	committeeLow, committeeHigh := splitRoot(committeeHash)
	execLow, execHigh := splitRoot(executionHash)

	data, err := c.abi.Pack("verify_epoch_batch",
		new(big.Int).SetBytes(batchRoot.Bytes()),
		headerLow, headerHigh,
		stateLow, stateHigh,
		slot,
		committeeLow, committeeHigh,
		nSigners,
		execLow, execHigh,
		executionHeight,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: pack verify_epoch_batch: %w", err)
	}
	return c.submit(ctx, data)
}

func (c *Client) submit(ctx context.Context, data []byte) (common.Hash, error) {
	from := c.signer.Address()

	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: pending nonce: %w", err)
	}

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &c.address, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: estimate gas: %w", err)
	}
	gasLimit += gasLimit * c.cfg.GasLimitBufferPct / 100

	chainID := new(big.Int).SetUint64(c.cfg.ChainID)

	var tx *types.Transaction
	if c.cfg.UseEIP1559 {
		tipCap, err := c.client.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("contractclient: suggest tip cap: %w", err)
		}
		head, err := c.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return common.Hash{}, fmt.Errorf("contractclient: header by number: %w", err)
		}
		feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tipCap,
			GasFeeCap: feeCap,
			Gas:       gasLimit,
			To:        &c.address,
			Data:      data,
		})
	} else {
		gasPrice, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("contractclient: suggest gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &c.address,
			Data:     data,
		})
	}

	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: sign tx: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: send tx: %w", err)
	}

	c.log.Info().Str("tx_hash", signed.Hash().Hex()).Msg("submitted settlement-chain transaction")
	return signed.Hash(), nil
}

// WaitForConfirmation polls the transaction receipt every ConfirmationDelaySeconds, up
// to ConfirmationRetries times (spec §4.1 step 3). A reverted receipt is a
// bankerr.BroadcastError (settlement-chain rejection, spec §7); exhausting the retry
// budget without a receipt is a timeout bankerr.BroadcastError.
func (c *Client) WaitForConfirmation(ctx context.Context, txHash common.Hash) error {
	delay := time.Duration(c.cfg.ConfirmationDelaySeconds) * time.Second
	if delay <= 0 {
		delay = 2 * time.Second
	}

	for attempt := uint64(0); attempt < c.cfg.ConfirmationRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		receipt, err := c.client.TransactionReceipt(ctx, txHash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				continue
			}
			c.log.Warn().Err(err).Str("tx_hash", txHash.Hex()).Msg("error polling transaction receipt")
			continue
		}

		if receipt.Status == types.ReceiptStatusFailed {
			return bankerr.NewBroadcastError("settlement-chain transaction reverted").WithTxHash(txHash.Hex())
		}
		return nil
	}

	return bankerr.NewBroadcastError("timed out waiting for transaction confirmation").WithTxHash(txHash.Hex())
}

// GetLatestEpochSlot reads the highest epoch slot verified on-chain.
func (c *Client) GetLatestEpochSlot(ctx context.Context) (uint64, error) {
	var out uint64
	if err := c.call(ctx, "get_latest_epoch_slot", &out); err != nil {
		return 0, err
	}
	return out, nil
}

// GetLatestCommitteeID reads the highest sync-committee id verified on-chain.
func (c *Client) GetLatestCommitteeID(ctx context.Context) (uint64, error) {
	var out uint64
	if err := c.call(ctx, "get_latest_committee_id", &out); err != nil {
		return 0, err
	}
	return out, nil
}

// GetCommitteeHash reads the verified committee hash for committeeID.
func (c *Client) GetCommitteeHash(ctx context.Context, committeeID uint64) (common.Hash, error) {
	var out *big.Int
	if err := c.call(ctx, "get_committee_hash", &out, committeeID); err != nil {
		return common.Hash{}, err
	}
	return common.BigToHash(out), nil
}

// GetEpochProof reads back a previously verified epoch's proof outputs.
func (c *Client) GetEpochProof(ctx context.Context, slot uint64) (*EpochProof, error) {
	endpoint := c.abi.Methods["get_epoch_proof"]
	data, err := c.abi.Pack("get_epoch_proof", slot)
	if err != nil {
		return nil, fmt.Errorf("contractclient: pack get_epoch_proof: %w", err)
	}
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contractclient: call get_epoch_proof: %w", err)
	}
	values, err := endpoint.Outputs.Unpack(result)
	if err != nil {
		return nil, fmt.Errorf("contractclient: unpack get_epoch_proof: %w", err)
	}

	return &EpochProof{
		HeaderRoot:      common.BigToHash(values[0].(*big.Int)),
		StateRoot:       common.BigToHash(values[1].(*big.Int)),
		NSigners:        values[2].(uint64),
		ExecutionHash:   common.BigToHash(values[3].(*big.Int)),
		ExecutionHeight: values[4].(uint64),
	}, nil
}

func (c *Client) call(ctx context.Context, method string, out interface{}, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("contractclient: pack %s: %w", method, err)
	}
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("contractclient: call %s: %w", method, err)
	}
	values, err := c.abi.Methods[method].Outputs.Unpack(result)
	if err != nil {
		return fmt.Errorf("contractclient: unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return fmt.Errorf("contractclient: %s returned %d values, want 1", method, len(values))
	}
	switch typed := out.(type) {
	case *uint64:
		v, ok := values[0].(uint64)
		if !ok {
			return fmt.Errorf("contractclient: %s: unexpected output type %T", method, values[0])
		}
		*typed = v
	case **big.Int:
		v, ok := values[0].(*big.Int)
		if !ok {
			return fmt.Errorf("contractclient: %s: unexpected output type %T", method, values[0])
		}
		*typed = v
	default:
		return fmt.Errorf("contractclient: unsupported output destination %T", out)
	}
	return nil
}
