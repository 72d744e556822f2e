// Package epochbatch implements the Epoch-Batch Pipeline (C6, spec §4.5): the same
// seven-stage skeleton as the sync-committee pipeline (§4.4), with an additional
// per-epoch input-fetch and merkle-batching step at "Prepare inputs".
//
// Grounded on original_source/crates/daemon/src/job_processor/epoch_batch.rs's
// process_job (fetch-per-epoch via EpochUpdateBatch::new_by_epoch_range, export,
// generate PIE, submit to prover) for the stage sequence; the merkle-path persistence
// detail is synthesized from spec §4.5's literal description using internal/merkle,
// since new_by_epoch_range's merkle step is not directly visible in the retrieved
// source. Go shape grounded on x/superblock/batch/pipeline.go's single-stage-handler
// style.
package epochbatch

import (
	"context"
	"crypto/sha256"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/lightclient/bankai/internal/artifacts"
	"github.com/lightclient/bankai/internal/bankerr"
	"github.com/lightclient/bankai/internal/beacon"
	"github.com/lightclient/bankai/internal/job"
	"github.com/lightclient/bankai/internal/merkle"
)

// Beacon is the subset of the beacon RPC client this pipeline needs.
type Beacon interface {
	GetHeaderWithRetry(ctx context.Context, slot uint64) (*beacon.Header, uint64, error)
	GetBlock(ctx context.Context, slot uint64) (*beacon.Block, error)
	GetValidators(ctx context.Context, ids []string) ([]beacon.Validator, error)
}

// Prover submits a generated trace for off-chain proof generation.
type Prover interface {
	SubmitProof(ctx context.Context, pieData []byte, layout string) (queryID string, err error)
}

// Store is the subset of the Job Store this pipeline needs.
type Store interface {
	UpdateJob(j *job.Job) error
	InsertMerklePath(p *job.MerklePath) error
	SaveEpochBatchArtifact(a *job.EpochBatchArtifact) error
}

// TraceGenerator produces the Cairo PIE artifact for an epoch-batch circuit input.
type TraceGenerator interface {
	GenerateEpochBatchPIE(ctx context.Context, input CircuitInput) (pie []byte, err error)
}

// EpochInput is the per-epoch proof input assembled during "Prepare inputs": header,
// sync aggregate, non-signer set, and execution-header proof (spec §4.5).
type EpochInput struct {
	EpochID               uint64
	Slot                  uint64
	HeaderRoot            string
	StateRoot             string
	SyncCommitteeBits     string
	NonSignerPubkeys      []string
	ExecutionHeaderHash   string
	ExecutionHeaderHeight uint64
	CommitteeHash         string
	NSigners              uint64
	OutputHash            merkle.Leaf
}

// CircuitInput mirrors the exported EpochUpdateBatch document.
type CircuitInput struct {
	EpochStart uint64       `json:"epoch_start"`
	EpochEnd   uint64       `json:"epoch_end"`
	BatchRoot  merkle.Leaf  `json:"batch_root"`
	Epochs     []EpochInput `json:"epochs"`
}

// BeaconAndTraceGate is the subset of jobrunner.Permits this pipeline needs.
type BeaconAndTraceGate interface {
	AcquireBeaconRPC(ctx context.Context) error
	ReleaseBeaconRPC()
	AcquireTraceGen(ctx context.Context) error
	ReleaseTraceGen()
}

// Layout is the Cairo execution layout submitted alongside the PIE.
const Layout = "recursive_with_poseidon"

// Pipeline implements jobrunner.Pipeline for EpochBatchUpdate jobs.
type Pipeline struct {
	beacon  Beacon
	tracer  TraceGenerator
	prover  Prover
	store   Store
	permits BeaconAndTraceGate
	layout  string

	// artifactsDir is the root of the on-disk circuit-input/PIE tree this pipeline
	// writes into at "Prepare inputs" (spec §6.5).
	artifactsDir string

	log zerolog.Logger
}

// New constructs an epoch-batch Pipeline. artifactsDir is the root of the on-disk
// circuit-input/PIE tree (spec §6.5); callers pass config.StoreConfig.ArtifactsDir.
func New(b Beacon, tracer TraceGenerator, pr Prover, st Store, permits BeaconAndTraceGate, artifactsDir string, log zerolog.Logger) *Pipeline {
	return &Pipeline{beacon: b, tracer: tracer, prover: pr, store: st, permits: permits, layout: Layout, artifactsDir: artifactsDir, log: log.With().Str("component", "epoch-batch-pipeline").Logger()}
}

// PrepareAndAdvance runs the Created -> OffchainProofRequested local-prep path.
func (p *Pipeline) PrepareAndAdvance(ctx context.Context, j *job.Job) error {
	if j.EpochStart == nil || j.EpochEnd == nil {
		return bankerr.NewInvariant("epoch-batch job missing epoch range").WithJob(j.ID, string(j.Status))
	}
	epochStart, epochEnd := *j.EpochStart, *j.EpochEnd
	if epochEnd < epochStart {
		return bankerr.NewInvariant("epoch-batch range is empty").WithJob(j.ID, string(j.Status))
	}
	if job.SyncCommitteeIDByEpoch(epochStart) != job.SyncCommitteeIDByEpoch(epochEnd) {
		return bankerr.NewInvariant("epoch-batch range crosses a sync-committee boundary").
			WithJob(j.ID, string(j.Status)).WithContext("epoch_start", epochStart).WithContext("epoch_end", epochEnd)
	}

	p.log.Info().Str("job_id", j.ID).Uint64("epoch_start", epochStart).Uint64("epoch_end", epochEnd).Msg("preparing inputs for program for epochs")

	epochs := make([]EpochInput, 0, epochEnd-epochStart+1)
	leaves := make([]merkle.Leaf, 0, epochEnd-epochStart+1)
	for epoch := epochStart; epoch <= epochEnd; epoch++ {
		input, err := p.fetchEpochInput(ctx, j, epoch)
		if err != nil {
			return err
		}
		epochs = append(epochs, *input)
		leaves = append(leaves, input.OutputHash)
	}

	root, paths := merkle.Build(leaves)
	for i, path := range paths {
		if !merkle.VerifyPath(leaves[i], path, i, root) {
			return bankerr.NewInvariant("merkle path failed verification before persisting").
				WithJob(j.ID, string(j.Status)).WithContext("epoch_id", epochs[i].EpochID)
		}
	}
	for i, path := range paths {
		siblings := make([]string, len(path))
		for k, sib := range path {
			siblings[k] = leafHex(sib)
		}
		if err := p.store.InsertMerklePath(&job.MerklePath{EpochID: epochs[i].EpochID, PathIndex: i, Siblings: siblings}); err != nil {
			return err
		}
	}

	input := CircuitInput{EpochStart: epochStart, EpochEnd: epochEnd, BatchRoot: root, Epochs: epochs}

	inputPath := artifacts.EpochBatchInputPath(p.artifactsDir, epochStart, epochEnd)
	if err := artifacts.WriteInput(inputPath, input); err != nil {
		return bankerr.NewTransient("export circuit input").WithCause(err).WithJob(j.ID, string(j.Status))
	}

	batchRootHex := leafHex(root)
	verified := make([]job.VerifiedEpoch, len(epochs))
	for i, e := range epochs {
		verified[i] = job.VerifiedEpoch{
			EpochID:               e.EpochID,
			HeaderRoot:            e.HeaderRoot,
			StateRoot:             e.StateRoot,
			Slot:                  e.Slot,
			CommitteeHash:         e.CommitteeHash,
			NSigners:              e.NSigners,
			ExecutionHeaderHash:   e.ExecutionHeaderHash,
			ExecutionHeaderHeight: e.ExecutionHeaderHeight,
			BatchIndex:            i,
			BatchRoot:             batchRootHex,
		}
	}
	if err := p.store.SaveEpochBatchArtifact(&job.EpochBatchArtifact{JobID: j.ID, BatchRoot: batchRootHex, Epochs: verified}); err != nil {
		return err
	}

	j.Status = job.StatusProgramInputsPrepared
	if err := p.store.UpdateJob(j); err != nil {
		return err
	}

	p.log.Info().Str("job_id", j.ID).Msg("starting trace generation")
	if err := p.permits.AcquireTraceGen(ctx); err != nil {
		return bankerr.NewTransient("acquire trace-gen permit").WithCause(err).WithJob(j.ID, string(j.Status))
	}
	pie, err := p.tracer.GenerateEpochBatchPIE(ctx, input)
	p.permits.ReleaseTraceGen()
	if err != nil {
		return bankerr.NewTransient("generate epoch-batch PIE").WithCause(err).WithJob(j.ID, string(j.Status))
	}
	piePath := artifacts.EpochBatchPiePath(p.artifactsDir, epochStart, epochEnd)
	if err := artifacts.WritePIE(piePath, pie); err != nil {
		return bankerr.NewTransient("export pie").WithCause(err).WithJob(j.ID, string(j.Status))
	}

	j.Status = job.StatusStartedTraceGeneration
	if err := p.store.UpdateJob(j); err != nil {
		return err
	}
	j.Status = job.StatusPieGenerated
	if err := p.store.UpdateJob(j); err != nil {
		return err
	}

	p.log.Info().Str("job_id", j.ID).Msg("uploading PIE and sending proof generation request")
	queryID, err := p.prover.SubmitProof(ctx, pie, p.layout)
	if err != nil {
		return bankerr.NewTransient("submit proof generation batch").WithCause(err).WithJob(j.ID, string(j.Status))
	}

	j.ProofQueryID = queryID
	j.Status = job.StatusOffchainProofRequested
	if err := p.store.UpdateJob(j); err != nil {
		return err
	}

	p.log.Info().Str("job_id", j.ID).Str("atlantic_query_id", queryID).Msg("proof generation batch submitted to Atlantic")
	return nil
}

// fetchEpochInput fetches header, aggregate, non-signers, and the execution-header
// proof for one epoch, in order (spec §4.5), and computes its output hash.
func (p *Pipeline) fetchEpochInput(ctx context.Context, j *job.Job, epoch uint64) (*EpochInput, error) {
	slot := job.SlotOfEpochEnd(epoch)

	if err := p.permits.AcquireBeaconRPC(ctx); err != nil {
		return nil, bankerr.NewTransient("acquire beacon RPC permit").WithCause(err).WithJob(j.ID, string(j.Status))
	}
	defer p.permits.ReleaseBeaconRPC()

	header, resolvedSlot, err := p.beacon.GetHeaderWithRetry(ctx, slot)
	if err != nil {
		if err == beacon.ErrEmptySlot {
			return nil, bankerr.NewEmptySlot("beacon header unavailable for epoch end slot after exhausting retries").
				WithJob(j.ID, string(j.Status)).WithContext("epoch_id", epoch).WithContext("requested_slot", slot)
		}
		return nil, bankerr.NewTransient("fetch beacon header").WithCause(err).WithJob(j.ID, string(j.Status))
	}
	slot = resolvedSlot

	block, err := p.beacon.GetBlock(ctx, slot)
	if err != nil {
		return nil, bankerr.NewTransient("fetch beacon block").WithCause(err).WithJob(j.ID, string(j.Status))
	}

	validators, err := p.beacon.GetValidators(ctx, nil)
	if err != nil {
		return nil, bankerr.NewTransient("fetch validators for non-signer set").WithCause(err).WithJob(j.ID, string(j.Status))
	}
	nonSigners := nonSignerPubkeys(validators, block.SyncAggregate.SyncCommitteeBits)
	nSigners := uint64(len(validators) - len(nonSigners))

	input := &EpochInput{
		EpochID:               epoch,
		Slot:                  slot,
		HeaderRoot:            header.Root,
		StateRoot:             header.StateRoot,
		SyncCommitteeBits:     block.SyncAggregate.SyncCommitteeBits,
		NonSignerPubkeys:      nonSigners,
		ExecutionHeaderHash:   block.ExecutionHeaderHash,
		ExecutionHeaderHeight: block.ExecutionHeaderHeight,
		CommitteeHash:         committeeHash(validators),
		NSigners:              nSigners,
	}
	input.OutputHash = computeOutputHash(input)

	return input, nil
}

// computeOutputHash derives the per-epoch leaf committed into the batch merkle tree:
// a sha256 digest of the fields the circuit attests to for that epoch (spec §4.5,
// §8's "hash_path(leaf_i, ...)" invariant only constrains how leaves are bound into
// the tree, not how a leaf is derived from epoch data — the derivation itself is a
// daemon-side commitment, not a circuit constant).
func computeOutputHash(input *EpochInput) merkle.Leaf {
	h := sha256.New()
	h.Write([]byte(strconv.FormatUint(input.EpochID, 10)))
	h.Write([]byte(input.HeaderRoot))
	h.Write([]byte(input.StateRoot))
	h.Write([]byte(input.SyncCommitteeBits))
	h.Write([]byte(input.ExecutionHeaderHash))
	h.Write([]byte(strconv.FormatUint(input.ExecutionHeaderHeight, 10)))
	var out merkle.Leaf
	copy(out[:], h.Sum(nil))
	return out
}

// committeeHash derives a daemon-side commitment to the active sync committee's
// validator set, read back in VerifiedEpoch rows (spec §4.6 post-commit writes).
func committeeHash(validators []beacon.Validator) string {
	h := sha256.New()
	for _, v := range validators {
		h.Write([]byte(v.Pubkey))
	}
	return "0x" + hexString(h.Sum(nil))
}

func hexString(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 2*len(b))
	for i, c := range b {
		out[2*i] = hexDigits[c>>4]
		out[2*i+1] = hexDigits[c&0x0f]
	}
	return string(out)
}

// nonSignerPubkeys returns the pubkeys of validators whose bit is unset in bits. bits
// is a hex-encoded bit-vector as returned by the beacon API.
func nonSignerPubkeys(validators []beacon.Validator, bits string) []string {
	var nonSigners []string
	for i, v := range validators {
		if !bitSet(bits, i) {
			nonSigners = append(nonSigners, v.Pubkey)
		}
	}
	return nonSigners
}

func bitSet(hexBits string, index int) bool {
	byteIdx := index / 8
	bitIdx := uint(index % 8)
	b := hexByte(hexBits, byteIdx)
	return b&(1<<bitIdx) != 0
}

// hexByte decodes the byte at position idx of a "0x"-prefixed hex string, returning 0
// on any malformed input (an empty/short bit-vector means "no signers recorded").
func hexByte(hexStr string, idx int) byte {
	s := hexStr
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	pos := idx * 2
	if pos+2 > len(s) {
		return 0
	}
	hi := hexNibble(s[pos])
	lo := hexNibble(s[pos+1])
	return hi<<4 | lo
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

func leafHex(l merkle.Leaf) string {
	return "0x" + hexString(l[:])
}
