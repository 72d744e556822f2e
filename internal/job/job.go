// Package job defines the data model for the light-client bridge's lifecycle engine:
// jobs, their derived verified-state rows, and the beacon-chain constants used
// throughout scheduling and pipeline arithmetic.
package job

import "time"

// Kind identifies which of the two work types a job represents.
type Kind string

const (
	KindSyncCommitteeUpdate Kind = "SyncCommitteeUpdate"
	KindEpochBatchUpdate    Kind = "EpochBatchUpdate"
)

// Status is the job's position in the shared lifecycle state machine (spec §4.3).
type Status string

const (
	StatusCreated                    Status = "Created"
	StatusStartedFetchingInputs      Status = "StartedFetchingInputs"
	StatusProgramInputsPrepared      Status = "ProgramInputsPrepared"
	StatusStartedTraceGeneration     Status = "StartedTraceGeneration"
	StatusPieGenerated               Status = "PieGenerated"
	StatusOffchainProofRequested     Status = "OffchainProofRequested"
	StatusOffchainProofRetrieved     Status = "OffchainProofRetrieved"
	StatusWrapProofRequested         Status = "WrapProofRequested"
	StatusWrappedProofDone           Status = "WrappedProofDone"
	StatusOffchainComputationFinished Status = "OffchainComputationFinished"
	StatusReadyToBroadcastOnchain    Status = "ReadyToBroadcastOnchain"
	StatusProofVerifyCalledOnchain   Status = "ProofVerifyCalledOnchain"
	StatusDone                       Status = "Done"
	StatusError                      Status = "Error"
	StatusCancelled                  Status = "Cancelled"
)

// Terminal reports whether status ∈ {Done, Error, Cancelled} — no normal scheduling
// path advances a job further once it reaches one of these.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// WaitingForExternalWork reports whether s is one of the "polling-like" states the
// scheduler's progress tick (§4.1 step 3) requeues: jobs waiting on the external
// prover for a query id to resolve.
func (s Status) WaitingForExternalWork() bool {
	switch s {
	case StatusOffchainProofRequested, StatusWrapProofRequested:
		return true
	default:
		return false
	}
}

// Job is the single persisted record for both kinds of work (spec §3, §9 design note:
// "Job as a tagged variant vs shared record" — a single table with a kind tag, rather
// than two separate schemas, avoids join complexity between the shared lifecycle and
// the kind-specific fields).
type Job struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	Status  Status `json:"status"`

	// Slot is the target beacon slot. For SyncCommitteeUpdate it is the slot whose
	// state root anchors the committee hash being proven. For EpochBatchUpdate it is
	// the latest slot of the batch (the slot under which the batch was signed).
	Slot uint64 `json:"slot"`

	// EpochStart/EpochEnd are set only for EpochBatchUpdate jobs; inclusive range.
	EpochStart *uint64 `json:"epoch_start,omitempty"`
	EpochEnd   *uint64 `json:"epoch_end,omitempty"`

	// HeaderRoot/StateRoot/CommitteeHash are set by the sync-committee pipeline's
	// "Prepare inputs" stage and read back by the broadcaster at submission time
	// (spec §4.4, §4.6). EpochBatchUpdate jobs carry the equivalent per-epoch data in
	// the persisted EpochBatchArtifact instead, since a batch has many of each.
	HeaderRoot    string `json:"header_root,omitempty"`
	StateRoot     string `json:"state_root,omitempty"`
	CommitteeHash string `json:"committee_hash,omitempty"`

	ProofQueryID string `json:"proof_query_id,omitempty"`
	WrapQueryID  string `json:"wrap_query_id,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`

	FailedAt Status `json:"failed_at,omitempty"`
	Retries  uint64 `json:"retries"`

	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
}

// IdentifyingKey returns the value the store's uniqueness index is keyed on: the
// committee id for sync-committee jobs, the epoch range for epoch-batch jobs (spec §3
// invariant: "Exactly one job per (kind, identifying key)").
func (j *Job) IdentifyingKey() string {
	switch j.Kind {
	case KindSyncCommitteeUpdate:
		return SyncCommitteeIDBySlot(j.Slot).String()
	case KindEpochBatchUpdate:
		if j.EpochStart == nil || j.EpochEnd == nil {
			return ""
		}
		return epochRangeKey(*j.EpochStart, *j.EpochEnd)
	default:
		return ""
	}
}

func epochRangeKey(start, end uint64) string {
	return Uitoa(start) + "_" + Uitoa(end)
}

// VerifiedEpoch is written once, after the enclosing epoch-batch job reaches Done.
type VerifiedEpoch struct {
	EpochID               uint64 `json:"epoch_id"`
	HeaderRoot             string `json:"header_root"`
	StateRoot              string `json:"state_root"`
	Slot                   uint64 `json:"slot"`
	CommitteeHash          string `json:"committee_hash"`
	NSigners               uint64 `json:"n_signers"`
	ExecutionHeaderHash    string `json:"execution_header_hash"`
	ExecutionHeaderHeight  uint64 `json:"execution_header_height"`
	BatchIndex             int    `json:"batch_index"`
	BatchRoot              string `json:"batch_root"`
}

// VerifiedSyncCommittee is written once, after the corresponding sync-committee job
// reaches Done.
type VerifiedSyncCommittee struct {
	CommitteeID uint64 `json:"committee_id"`
	Hash        string `json:"hash"`
}

// MerklePath is one per-leaf inclusion proof for an epoch within its batch. Unique on
// (EpochID, PathIndex); duplicate inserts are idempotent (spec §4.5, §8).
type MerklePath struct {
	EpochID   uint64   `json:"epoch_id"`
	PathIndex int      `json:"path_index"`
	Siblings  []string `json:"siblings"`
}

// EpochBatchArtifact bridges the Epoch-Batch Pipeline's "Prepare inputs" stage to the
// Broadcaster (C7): the per-epoch decommitment data and batch root computed once at
// prepare time, persisted so the broadcaster does not need to refetch or recompute
// it from the beacon chain at submission time (spec §4.5/§4.6).
type EpochBatchArtifact struct {
	JobID     string          `json:"job_id"`
	BatchRoot string          `json:"batch_root"`
	Epochs    []VerifiedEpoch `json:"epochs"`
}

// DaemonState is the singleton recording the latest beacon slot/block observed by the
// head-event ingress (C2).
type DaemonState struct {
	LatestSlot      uint64 `json:"latest_slot"`
	LatestBlockRoot string `json:"latest_block_root"`
	UpdatedAt       time.Time `json:"updated_at"`
}
