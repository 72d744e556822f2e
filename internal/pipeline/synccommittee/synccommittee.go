// Package synccommittee implements the Sync-Committee Pipeline (C5, spec §4.4): the
// kind-specific trace-generation/local-prep path for SyncCommitteeUpdate jobs, from
// Created through submitting the generated proof to the external prover.
//
// Grounded on original_source/crates/daemon/src/job_processor/sync_committee.rs's
// process_job (fetch header + sync committee, export circuit inputs, generate PIE,
// submit to prover, persist proof_query_id), restructured into the teacher's
// processRangeProofStage single-stage-handler shape
// (x/superblock/batch/pipeline.go).
package synccommittee

import (
	"context"
	"crypto/sha256"

	"github.com/rs/zerolog"

	"github.com/lightclient/bankai/internal/artifacts"
	"github.com/lightclient/bankai/internal/bankerr"
	"github.com/lightclient/bankai/internal/beacon"
	"github.com/lightclient/bankai/internal/job"
)

// Beacon is the subset of the beacon RPC client this pipeline needs.
type Beacon interface {
	GetHeaderWithRetry(ctx context.Context, slot uint64) (*beacon.Header, uint64, error)
	GetSyncCommittee(ctx context.Context, slot uint64) (*beacon.SyncCommittee, error)
}

// Prover submits a generated trace for off-chain proof generation.
type Prover interface {
	SubmitProof(ctx context.Context, pieData []byte, layout string) (queryID string, err error)
}

// Store is the subset of the Job Store this pipeline needs.
type Store interface {
	UpdateJob(j *job.Job) error
}

// TraceGenerator produces the Cairo PIE artifact for a sync-committee circuit input.
// Kept as an interface, matching the teacher's own proofs.ProverClient boundary
// (x/superblock/proofs/prover_types.go), since trace generation is an external
// computation the daemon calls out to, not something expressed in Go itself.
type TraceGenerator interface {
	GenerateSyncCommitteePIE(ctx context.Context, input CircuitInput) (pie []byte, err error)
}

// CircuitInput mirrors the exported circuit-input document
// (original_source::types::SyncCommitteeUpdate::export), serialized to JSON the way
// the original writes it to disk before invoking the Cairo runner.
type CircuitInput struct {
	Slot               uint64   `json:"slot"`
	CommitteeID        uint64   `json:"committee_id"`
	HeaderRoot         string   `json:"header_root"`
	StateRoot          string   `json:"state_root"`
	CommitteeValidators []string `json:"committee_validators"`
}

// Pipeline implements jobrunner.Pipeline for SyncCommitteeUpdate jobs.
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

// BeaconAndTraceGate is the subset of jobrunner.Permits this pipeline acquires before
// making a beacon RPC call or starting trace generation (spec §5).
type BeaconAndTraceGate interface {
	AcquireBeaconRPC(ctx context.Context) error
	ReleaseBeaconRPC()
	AcquireTraceGen(ctx context.Context) error
	ReleaseTraceGen()
}

// Layout is the Cairo execution layout submitted alongside the PIE (spec §6.3).
const Layout = "recursive_with_poseidon"

// New constructs a sync-committee Pipeline. artifactsDir is the root of the on-disk
// circuit-input/PIE tree (spec §6.5); callers pass config.StoreConfig.ArtifactsDir.
func New(b Beacon, tracer TraceGenerator, pr Prover, st Store, permits BeaconAndTraceGate, artifactsDir string, log zerolog.Logger) *Pipeline {
	return &Pipeline{beacon: b, tracer: tracer, prover: pr, store: st, permits: permits, layout: Layout, artifactsDir: artifactsDir, log: log.With().Str("component", "sync-committee-pipeline").Logger()}
}

// PrepareAndAdvance runs the Created -> OffchainProofRequested local-prep path.
func (p *Pipeline) PrepareAndAdvance(ctx context.Context, j *job.Job) error {
	committeeID := job.SyncCommitteeIDBySlot(j.Slot)

	if err := p.permits.AcquireBeaconRPC(ctx); err != nil {
		return bankerr.NewTransient("acquire beacon RPC permit").WithCause(err).WithJob(j.ID, string(j.Status))
	}
	header, resolvedSlot, err := p.beacon.GetHeaderWithRetry(ctx, j.Slot)
	if err != nil {
		p.permits.ReleaseBeaconRPC()
		if err == beacon.ErrEmptySlot {
			return bankerr.NewEmptySlot("beacon header unavailable for committee update slot after exhausting retries").
				WithJob(j.ID, string(j.Status)).WithContext("requested_slot", j.Slot)
		}
		return bankerr.NewTransient("fetch beacon header").WithCause(err).WithJob(j.ID, string(j.Status))
	}
	j.Slot = resolvedSlot

	committee, err := p.beacon.GetSyncCommittee(ctx, resolvedSlot)
	p.permits.ReleaseBeaconRPC()
	if err != nil {
		return bankerr.NewTransient("fetch sync committee").WithCause(err).WithJob(j.ID, string(j.Status))
	}

	input := CircuitInput{
		Slot:                j.Slot,
		CommitteeID:         uint64(committeeID),
		HeaderRoot:          header.Root,
		StateRoot:           header.StateRoot,
		CommitteeValidators: committee.Validators,
	}

	j.HeaderRoot = header.Root
	j.StateRoot = header.StateRoot
	j.CommitteeHash = committeeHash(committee.Validators)

	inputPath := artifacts.SyncCommitteeInputPath(p.artifactsDir, uint64(committeeID), j.Slot)
	if err := artifacts.WriteInput(inputPath, input); err != nil {
		return bankerr.NewTransient("export circuit input").WithCause(err).WithJob(j.ID, string(j.Status))
	}

	j.Status = job.StatusProgramInputsPrepared
	if err := p.store.UpdateJob(j); err != nil {
		return err
	}
	p.log.Info().Str("job_id", j.ID).Uint64("committee_id", uint64(committeeID)).Msg("sync committee update program inputs generated")

	if err := p.permits.AcquireTraceGen(ctx); err != nil {
		return bankerr.NewTransient("acquire trace-gen permit").WithCause(err).WithJob(j.ID, string(j.Status))
	}
	pie, err := p.tracer.GenerateSyncCommitteePIE(ctx, input)
	p.permits.ReleaseTraceGen()
	if err != nil {
		return bankerr.NewTransient("generate sync-committee PIE").WithCause(err).WithJob(j.ID, string(j.Status))
	}
	piePath := artifacts.SyncCommitteePiePath(p.artifactsDir, uint64(committeeID), j.Slot)
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
	p.log.Info().Str("job_id", j.ID).Uint64("committee_id", uint64(committeeID)).Msg("PIE generated successfully")

	queryID, err := p.prover.SubmitProof(ctx, pie, p.layout)
	if err != nil {
		return bankerr.NewTransient("submit proof generation batch").WithCause(err).WithJob(j.ID, string(j.Status))
	}

	j.ProofQueryID = queryID
	j.Status = job.StatusOffchainProofRequested
	if err := p.store.UpdateJob(j); err != nil {
		return err
	}

	p.log.Info().Str("job_id", j.ID).Str("atlantic_query_id", queryID).Msg("proof generation batch submitted")
	return nil
}

// committeeHash derives a daemon-side commitment to the new committee's validator set,
// passed to the contract at submission time. The VerifiedSyncCommittee row written after
// confirmation stores the hash read back from the contract, not this one; the two are
// not compared.
func committeeHash(validators []string) string {
	h := sha256.New()
	for _, v := range validators {
		h.Write([]byte(v))
	}
	const hexDigits = "0123456789abcdef"
	sum := h.Sum(nil)
	out := make([]byte, 2*len(sum))
	for i, c := range sum {
		out[2*i] = hexDigits[c>>4]
		out[2*i+1] = hexDigits[c&0x0f]
	}
	return "0x" + string(out)
}
