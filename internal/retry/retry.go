// Package retry implements the Retry Controller (C8): the sole path by which an Error
// job re-enters the lifecycle (spec §4.8). Invoked by the scheduler on every head event
// for each Error job below its retry cap.
//
// Grounded on original_source/crates/daemon/src/job_manager/retry.rs
// (update_job_status_for_retry): query the external prover for the authoritative resume
// point rather than trusting failed_at, apply the kind-and-status weighted backoff, then
// transition and re-enqueue. Structured the way x/superblock/rollback/manager.go wires a
// Dependencies struct of narrow interfaces into an orchestrating Manager.
package retry

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lightclient/bankai/internal/job"
	"github.com/lightclient/bankai/internal/prover"
)

// Store is the subset of the Job Store the retry controller needs.
type Store interface {
	GetJob(id string) (*job.Job, error)
	UpdateJob(j *job.Job) error
}

// ProverStatus checks an external prover query id's status. Implemented by
// *prover.Client; narrowed here so tests can substitute a fake.
type ProverStatus interface {
	PollProof(ctx context.Context, queryID string) (prover.Status, []byte, error)
	PollWrap(ctx context.Context, queryID string) (prover.Status, []byte, error)
}

// Dependencies wires the retry controller's collaborators.
type Dependencies struct {
	Store  Store
	Prover ProverStatus
	Log    zerolog.Logger
}

// Controller is the Retry Controller (C8).
type Controller struct {
	deps Dependencies
	log  zerolog.Logger
}

func NewController(deps Dependencies) *Controller {
	return &Controller{deps: deps, log: deps.Log.With().Str("component", "retry-controller").Logger()}
}

// retryWeight returns how much a single retry attempt of this kind/resume-status costs
// against MAX_JOB_RETRIES_COUNT (spec §4.8 step 2: "expensive-to-redo jobs back off
// faster than cheap ones").
func retryWeight(kind job.Kind, resumeStatus job.Status) uint64 {
	if kind == job.KindSyncCommitteeUpdate {
		return 1
	}
	switch resumeStatus {
	case job.StatusCreated:
		return 2
	case job.StatusOffchainProofRequested:
		return 4
	case job.StatusOffchainComputationFinished:
		return 1
	default:
		return 1
	}
}

// Retry recomputes the resume status for an Error job from prover ground truth,
// increments its weighted retry counter, and transitions it out of Error — unless the
// job is already at or above MAX_JOB_RETRIES_COUNT, in which case it is left untouched
// and ErrRetryCapExceeded is returned.
func (c *Controller) Retry(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := c.deps.Store.GetJob(jobID)
	if err != nil {
		return nil, fmt.Errorf("retry: load job: %w", err)
	}
	if j.Status != job.StatusError {
		return j, nil
	}

	resumeStatus, err := c.resumeStatus(ctx, j)
	if err != nil {
		return nil, fmt.Errorf("retry: determine resume status: %w", err)
	}

	weight := retryWeight(j.Kind, resumeStatus)
	if j.Retries >= job.MaxJobRetriesCount {
		c.log.Warn().Str("job_id", j.ID).Uint64("retries", j.Retries).Msg("job exceeded retry cap, leaving in Error")
		return nil, ErrRetryCapExceeded
	}

	j.Retries += weight
	j.Status = resumeStatus

	if err := c.deps.Store.UpdateJob(j); err != nil {
		return nil, fmt.Errorf("retry: persist resumed job: %w", err)
	}

	c.log.Info().Str("job_id", j.ID).Str("resume_status", string(resumeStatus)).Uint64("retries", j.Retries).Msg("retried job")
	return j, nil
}

// resumeStatus implements spec §4.8 step 1: wrap query id takes priority over proof
// query id, which takes priority over starting over from Created.
func (c *Controller) resumeStatus(ctx context.Context, j *job.Job) (job.Status, error) {
	if j.WrapQueryID != "" {
		status, _, err := c.deps.Prover.PollWrap(ctx, j.WrapQueryID)
		if err != nil {
			return "", err
		}
		if status == prover.StatusDone {
			return job.StatusOffchainComputationFinished, nil
		}
		return job.StatusOffchainProofRequested, nil
	}
	if j.ProofQueryID != "" {
		status, _, err := c.deps.Prover.PollProof(ctx, j.ProofQueryID)
		if err != nil {
			return "", err
		}
		if status == prover.StatusDone {
			return job.StatusOffchainProofRequested, nil
		}
		return job.StatusCreated, nil
	}
	return job.StatusCreated, nil
}

// ErrRetryCapExceeded is returned when a job's weighted retry counter is already at or
// above MAX_JOB_RETRIES_COUNT.
var ErrRetryCapExceeded = errors.New("retry: job exceeded MAX_JOB_RETRIES_COUNT")
