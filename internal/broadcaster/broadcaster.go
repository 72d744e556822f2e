// Package broadcaster implements the On-Chain Broadcaster (C7, spec §4.6): the single
// point of on-chain writes, gated by a process-wide single-permit semaphore, enforcing
// the epoch-batch ordering constraint, submitting the transaction, waiting for
// confirmation, and performing the post-commit writes on confirmed success.
//
// Grounded on original_source/crates/daemon/src/job_processor/broadcast.rs's
// broadcast_epoch_batch/broadcast_sync_committee (static single-permit semaphore,
// ordering check, submit+confirm, post-commit inserts); Go shape styled on
// x/superblock/l1's client/config boundary.
package broadcaster

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/lightclient/bankai/internal/bankerr"
	"github.com/lightclient/bankai/internal/job"
	"github.com/lightclient/bankai/internal/metrics"
)

// Contract is the subset of the settlement-chain contract client the broadcaster needs.
type Contract interface {
	VerifyCommitteeUpdate(ctx context.Context, stateRoot, committeeHash common.Hash, slot uint64) (common.Hash, error)
	VerifyEpochBatch(ctx context.Context, batchRoot, headerRoot, stateRoot, committeeHash, executionHash common.Hash, slot, nSigners, executionHeight uint64) (common.Hash, error)
	WaitForConfirmation(ctx context.Context, txHash common.Hash) error
	GetLatestCommitteeID(ctx context.Context) (uint64, error)
	GetCommitteeHash(ctx context.Context, committeeID uint64) (common.Hash, error)
}

// Store is the subset of the Job Store the broadcaster needs.
type Store interface {
	UpdateJob(j *job.Job) error
	GetEpochBatchArtifact(jobID string) (*job.EpochBatchArtifact, error)
	InsertVerifiedEpoch(v *job.VerifiedEpoch) error
	InsertVerifiedSyncCommittee(v *job.VerifiedSyncCommittee) error
}

// Permits is the subset of jobrunner.Permits the broadcaster needs: the single
// process-wide submission gate (spec §4.6 step 1).
type Permits interface {
	AcquireSubmission(ctx context.Context) error
	ReleaseSubmission()
}

// submissionDelay is the brief pause after submission before polling begins
// (original: "small delay after submission before checking status").
const submissionDelay = 2 * time.Second

// Broadcaster implements jobrunner.Broadcaster.
type Broadcaster struct {
	contract Contract
	store    Store
	permits  Permits
	metrics  *metrics.Bankai
	log      zerolog.Logger
}

// New constructs a Broadcaster. m may be nil, e.g. in tests.
func New(contract Contract, st Store, permits Permits, m *metrics.Bankai, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{contract: contract, store: st, permits: permits, metrics: m, log: log.With().Str("component", "broadcaster").Logger()}
}

// Broadcast submits j's outputs on-chain and, on confirmed success, transitions it to
// Done and writes the derived verified-state rows (spec §4.6).
func (b *Broadcaster) Broadcast(ctx context.Context, j *job.Job) error {
	switch j.Kind {
	case job.KindEpochBatchUpdate:
		return b.broadcastEpochBatch(ctx, j)
	case job.KindSyncCommitteeUpdate:
		return b.broadcastSyncCommittee(ctx, j)
	default:
		return bankerr.NewInvariant("unknown job kind at broadcast").WithJob(j.ID, string(j.Status))
	}
}

func (b *Broadcaster) broadcastEpochBatch(ctx context.Context, j *job.Job) error {
	artifact, err := b.store.GetEpochBatchArtifact(j.ID)
	if err != nil {
		return bankerr.NewInvariant("missing prepared epoch-batch artifact").WithCause(err).WithJob(j.ID, string(j.Status))
	}
	if len(artifact.Epochs) == 0 {
		return bankerr.NewInvariant("epoch-batch artifact has no epochs").WithJob(j.ID, string(j.Status))
	}

	latest := artifact.Epochs[len(artifact.Epochs)-1]
	requiredCommittee := job.SyncCommitteeIDBySlot(latest.Slot)

	latestVerifiedCommittee, err := b.contract.GetLatestCommitteeID(ctx)
	if err != nil {
		return bankerr.NewTransient("query latest verified committee id").WithCause(err).WithJob(j.ID, string(j.Status))
	}

	if uint64(requiredCommittee) > latestVerifiedCommittee {
		b.log.Info().Str("job_id", j.ID).Uint64("required_committee_id", uint64(requiredCommittee)).
			Uint64("latest_committee_id", latestVerifiedCommittee).Msg("waiting for sync committee update")
		if b.metrics != nil {
			b.metrics.BroadcastWaitingTotal.Inc()
		}
		return nil
	}

	if err := b.permits.AcquireSubmission(ctx); err != nil {
		return bankerr.NewTransient("acquire submission permit").WithCause(err).WithJob(j.ID, string(j.Status))
	}
	defer b.permits.ReleaseSubmission()
	b.log.Info().Str("job_id", j.ID).Msg("acquired submission permit, proceeding with on-chain update")

	batchRoot := common.HexToHash(artifact.BatchRoot)
	headerRoot := common.HexToHash(latest.HeaderRoot)
	stateRoot := common.HexToHash(latest.StateRoot)
	committeeHash := common.HexToHash(latest.CommitteeHash)
	executionHash := common.HexToHash(latest.ExecutionHeaderHash)

	txHash, err := b.contract.VerifyEpochBatch(ctx, batchRoot, headerRoot, stateRoot, committeeHash, executionHash, latest.Slot, latest.NSigners, latest.ExecutionHeaderHeight)
	if err != nil {
		b.recordOutcome(job.KindEpochBatchUpdate, "error")
		return bankerr.NewBroadcastError("submit epoch-batch update").WithCause(err)
	}

	time.Sleep(submissionDelay)

	j.TxHash = txHash.Hex()
	if err := b.store.UpdateJob(j); err != nil {
		return err
	}

	if err := b.contract.WaitForConfirmation(ctx, txHash); err != nil {
		b.recordOutcome(job.KindEpochBatchUpdate, "error")
		return bankerr.NewBroadcastError("wait for epoch-batch confirmation").WithCause(err).WithTxHash(txHash.Hex())
	}

	b.log.Info().Str("job_id", j.ID).Str("tx_hash", txHash.Hex()).Msg("transaction is confirmed on-chain")

	j.Status = job.StatusDone
	if err := b.store.UpdateJob(j); err != nil {
		return err
	}

	for _, epoch := range artifact.Epochs {
		v := epoch
		if err := b.store.InsertVerifiedEpoch(&v); err != nil {
			return err
		}
	}

	b.recordOutcome(job.KindEpochBatchUpdate, "success")
	if b.metrics != nil {
		b.metrics.LatestVerifiedEpochSlot.Set(float64(latest.Slot))
	}

	return nil
}

func (b *Broadcaster) broadcastSyncCommittee(ctx context.Context, j *job.Job) error {
	committeeID := job.SyncCommitteeIDBySlot(j.Slot)

	if err := b.permits.AcquireSubmission(ctx); err != nil {
		return bankerr.NewTransient("acquire submission permit").WithCause(err).WithJob(j.ID, string(j.Status))
	}
	defer b.permits.ReleaseSubmission()
	b.log.Info().Str("job_id", j.ID).Msg("acquired submission permit, proceeding with on-chain update")

	// StateRoot/CommitteeHash were computed during the sync-committee pipeline's
	// prepare stage (spec §4.4); the committee hash is read back from the contract
	// after confirmation below rather than trusted from the local computation.
	stateRoot := common.HexToHash(j.StateRoot)
	committeeHash := common.HexToHash(j.CommitteeHash)

	txHash, err := b.contract.VerifyCommitteeUpdate(ctx, stateRoot, committeeHash, j.Slot)
	if err != nil {
		b.recordOutcome(job.KindSyncCommitteeUpdate, "error")
		return bankerr.NewBroadcastError("submit sync-committee update").WithCause(err)
	}

	time.Sleep(submissionDelay)

	j.TxHash = txHash.Hex()
	if err := b.store.UpdateJob(j); err != nil {
		return err
	}

	if err := b.contract.WaitForConfirmation(ctx, txHash); err != nil {
		b.recordOutcome(job.KindSyncCommitteeUpdate, "error")
		return bankerr.NewBroadcastError("wait for sync-committee confirmation").WithCause(err).WithTxHash(txHash.Hex())
	}

	b.log.Info().Str("job_id", j.ID).Uint64("committee_id", uint64(committeeID)).Str("tx_hash", txHash.Hex()).
		Msg("transaction is confirmed on-chain")

	confirmedHash, err := b.contract.GetCommitteeHash(ctx, uint64(committeeID))
	if err != nil {
		b.recordOutcome(job.KindSyncCommitteeUpdate, "error")
		return bankerr.NewBroadcastError("read back committee hash").WithCause(err).WithTxHash(txHash.Hex())
	}

	j.Status = job.StatusDone
	if err := b.store.UpdateJob(j); err != nil {
		return err
	}

	if err := b.store.InsertVerifiedSyncCommittee(&job.VerifiedSyncCommittee{CommitteeID: uint64(committeeID), Hash: confirmedHash.Hex()}); err != nil {
		return err
	}

	b.recordOutcome(job.KindSyncCommitteeUpdate, "success")
	if b.metrics != nil {
		b.metrics.LatestVerifiedCommittee.Set(float64(committeeID))
	}

	b.log.Info().Str("job_id", j.ID).Msg("sync committee verified onchain, job is done")
	return nil
}

func (b *Broadcaster) recordOutcome(kind job.Kind, outcome string) {
	if b.metrics != nil {
		b.metrics.BroadcastsTotal.WithLabelValues(string(kind), outcome).Inc()
	}
}
