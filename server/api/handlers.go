package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lightclient/bankai/internal/artifacts"
	"github.com/lightclient/bankai/internal/job"
)

// Store is the subset of the Job Store the read API projects over.
type Store interface {
	ListJobs() ([]*job.Job, error)
	GetJob(id string) (*job.Job, error)
	GetEpochBatchArtifact(jobID string) (*job.EpochBatchArtifact, error)
	ListVerifiedEpochs() ([]*job.VerifiedEpoch, error)
	ListVerifiedSyncCommittees() ([]*job.VerifiedSyncCommittee, error)
}

// Contract is the subset of the settlement-chain contract client the debug endpoints
// proxy (original_source/crates/api/src/handlers/debug.rs).
type Contract interface {
	GetLatestEpochSlot(ctx context.Context) (uint64, error)
	GetLatestCommitteeID(ctx context.Context) (uint64, error)
}

// Retry forces an out-of-band retry of an Error job, bypassing the scheduler's
// once-per-head-event cadence (spec §4.8) — the operator-facing escape hatch surfaced
// by `bankaid jobs retry`.
type Retry interface {
	Retry(ctx context.Context, jobID string) (*job.Job, error)
}

// Handlers registers the bankai read API's routes on a Server's router.
type Handlers struct {
	store        Store
	contract     Contract
	retry        Retry
	artifactsDir string
}

// NewHandlers constructs the read API handler set. contract and retry may be nil, in
// which case the endpoints that need them report unavailable rather than panicking.
// artifactsDir is the root of the on-disk circuit-input/PIE tree (spec §6.5), used to
// resolve the paths reported by debugJobArtifacts.
func NewHandlers(st Store, contract Contract, retry Retry, artifactsDir string) *Handlers {
	return &Handlers{store: st, contract: contract, retry: retry, artifactsDir: artifactsDir}
}

// Register mounts every route on r.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/jobs", h.listJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", h.getJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/retry", h.retryJob).Methods(http.MethodPost)
	r.HandleFunc("/verified/epochs", h.listVerifiedEpochs).Methods(http.MethodGet)
	r.HandleFunc("/verified/committees", h.listVerifiedCommittees).Methods(http.MethodGet)
	r.HandleFunc("/debug/contract-state", h.debugContractState).Methods(http.MethodGet)
	r.HandleFunc("/debug/jobs/{id}/artifacts", h.debugJobArtifacts).Methods(http.MethodGet)
}

func (h *Handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListJobs()
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "store_error", "failed to list jobs", nil)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := jobs[:0:0]
		for _, j := range jobs {
			if string(j.Status) == status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *Handlers) getJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	j, err := h.store.GetJob(id)
	if err != nil {
		WriteError(w, r, http.StatusNotFound, "not_found", "job not found", nil)
		return
	}
	WriteJSON(w, http.StatusOK, j)
}

func (h *Handlers) retryJob(w http.ResponseWriter, r *http.Request) {
	if h.retry == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "unavailable", "retry controller not configured", nil)
		return
	}
	id := mux.Vars(r)["id"]
	j, err := h.retry.Retry(r.Context(), id)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "retry_failed", err.Error(), nil)
		return
	}
	WriteJSON(w, http.StatusOK, j)
}

func (h *Handlers) listVerifiedEpochs(w http.ResponseWriter, r *http.Request) {
	epochs, err := h.store.ListVerifiedEpochs()
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "store_error", "failed to list verified epochs", nil)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"epochs": epochs})
}

func (h *Handlers) listVerifiedCommittees(w http.ResponseWriter, r *http.Request) {
	committees, err := h.store.ListVerifiedSyncCommittees()
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "store_error", "failed to list verified committees", nil)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"committees": committees})
}

// debugContractState proxies the settlement-chain contract's own view of its latest
// verified epoch slot and committee id (original_source's debug.rs
// get_contract_state), useful for spotting drift between the daemon's Job Store and
// what is actually committed on-chain.
func (h *Handlers) debugContractState(w http.ResponseWriter, r *http.Request) {
	if h.contract == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "unavailable", "contract client not configured", nil)
		return
	}
	slot, err := h.contract.GetLatestEpochSlot(r.Context())
	if err != nil {
		WriteError(w, r, http.StatusBadGateway, "contract_error", "failed to read latest epoch slot", nil)
		return
	}
	committeeID, err := h.contract.GetLatestCommitteeID(r.Context())
	if err != nil {
		WriteError(w, r, http.StatusBadGateway, "contract_error", "failed to read latest committee id", nil)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"latest_epoch_slot":   slot,
		"latest_committee_id": committeeID,
	})
}

// debugJobArtifacts resolves the prepared epoch-batch artifact for an epoch-batch job
// along with the filesystem paths of the on-disk circuit-input/PIE tree the "Prepare
// inputs" stage wrote them to (spec §6.5), for inspecting what was committed into the
// merkle tree without re-deriving it.
func (h *Handlers) debugJobArtifacts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	j, err := h.store.GetJob(id)
	if err != nil {
		WriteError(w, r, http.StatusNotFound, "not_found", "job not found", nil)
		return
	}
	if j.Kind != job.KindEpochBatchUpdate {
		WriteError(w, r, http.StatusBadRequest, "wrong_kind", "job is not an EpochBatchUpdate", nil)
		return
	}
	artifact, err := h.store.GetEpochBatchArtifact(id)
	if err != nil {
		WriteError(w, r, http.StatusNotFound, "not_found", "no artifact prepared for job", nil)
		return
	}

	resp := map[string]any{"artifact": artifact}
	if len(artifact.Epochs) > 0 {
		epochStart := artifact.Epochs[0].EpochID
		epochEnd := artifact.Epochs[len(artifact.Epochs)-1].EpochID
		resp["input_path"] = artifacts.EpochBatchInputPath(h.artifactsDir, epochStart, epochEnd)
		resp["pie_path"] = artifacts.EpochBatchPiePath(h.artifactsDir, epochStart, epochEnd)
	}
	WriteJSON(w, http.StatusOK, resp)
}
