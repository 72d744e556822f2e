// Package scheduler implements the Scheduler (C3): on every head event, it derives
// which jobs need to exist, invokes the retry controller, runs the progress tick, and
// enqueues everything onto the bounded job channel (spec §4.1).
//
// Grounded on x/superblock/batch/manager.go for the trigger-driven event-loop shape
// (select over a context and an event channel, one handler per event); the exact
// decision arithmetic — sync-committee eligibility, epoch-batch range computation,
// committee-boundary truncation — is grounded on
// original_source/crates/daemon/src/job_processor/scheduler.rs::create_new_jobs.
package scheduler

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lightclient/bankai/internal/bankerr"
	"github.com/lightclient/bankai/internal/beacon"
	"github.com/lightclient/bankai/internal/job"
	"github.com/lightclient/bankai/internal/metrics"
	"github.com/lightclient/bankai/internal/retry"
	"github.com/lightclient/bankai/internal/store"
)

// Contract is the subset of the settlement-chain contract client the scheduler needs.
type Contract interface {
	GetLatestEpochSlot(ctx context.Context) (uint64, error)
	GetLatestCommitteeID(ctx context.Context) (uint64, error)
}

// Scheduler is the Scheduler (C3).
type Scheduler struct {
	store    *store.Store
	contract Contract
	retry    *retry.Controller
	out      chan<- *job.Job
	metrics  *metrics.Bankai
	log      zerolog.Logger
}

// New constructs a Scheduler. out is the bounded channel the Job Runner (C4) consumes
// from (spec §5: bounded job channel).
func New(st *store.Store, contract Contract, retryCtl *retry.Controller, out chan<- *job.Job, m *metrics.Bankai, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:    st,
		contract: contract,
		retry:    retryCtl,
		out:      out,
		metrics:  m,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Run consumes head events until events closes or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, events <-chan beacon.HeadEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.HandleHeadEvent(ctx, ev)
		}
	}
}

// HandleHeadEvent runs the full per-event decision sequence (spec §4.1 steps 1-7).
// Contract-query failures abort only this event; the next event will retry.
func (s *Scheduler) HandleHeadEvent(ctx context.Context, ev beacon.HeadEvent) {
	if err := s.store.SetDaemonState(&job.DaemonState{LatestSlot: ev.Slot, LatestBlockRoot: ev.BlockRoot}); err != nil {
		s.log.Error().Err(err).Msg("failed to persist daemon state")
		return
	}
	if s.metrics != nil {
		s.metrics.LatestObservedSlot.Set(float64(ev.Slot))
		s.metrics.HeadEventsTotal.Inc()
	}

	s.runRetries(ctx)
	s.runProgressTick(ev.Slot)

	latestEpochSlot, err := s.contract.GetLatestEpochSlot(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to query latest verified epoch slot, aborting this head event")
		return
	}
	latestCommitteeID, err := s.contract.GetLatestCommitteeID(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to query latest verified committee id, aborting this head event")
		return
	}
	if s.metrics != nil {
		s.metrics.LatestVerifiedEpochSlot.Set(float64(latestEpochSlot))
		s.metrics.LatestVerifiedCommittee.Set(float64(latestCommitteeID))
	}

	if err := s.scheduleSyncCommitteeWork(latestEpochSlot, latestCommitteeID); err != nil {
		s.log.Error().Err(err).Msg("failed to schedule sync-committee work")
	}
	if err := s.scheduleEpochBatchWork(ev.Slot, latestEpochSlot); err != nil {
		s.log.Error().Err(err).Msg("failed to schedule epoch-batch work")
	}
}

// runRetries invokes the Retry Controller for every Error job below the retry cap
// (spec §4.1 step 2).
func (s *Scheduler) runRetries(ctx context.Context) {
	errored, err := s.store.ListJobsByStatus(job.StatusError)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list errored jobs")
		return
	}
	for _, j := range errored {
		if j.Retries >= job.MaxJobRetriesCount {
			continue
		}
		resumed, err := s.retry.Retry(ctx, j.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("job_id", j.ID).Msg("retry attempt failed")
			continue
		}
		if resumed != nil {
			s.enqueue(resumed)
			if s.metrics != nil {
				s.metrics.JobRetriesTotal.WithLabelValues(string(j.Kind)).Inc()
			}
		}
	}
}

// runProgressTick requeues every waiting-for-external-work / ready-to-broadcast job
// every ProgressTickSlots slots (spec §4.1 step 3).
func (s *Scheduler) runProgressTick(slot uint64) {
	if slot%job.ProgressTickSlots != 0 {
		return
	}

	waiting, err := s.store.ListJobsByStatus(job.StatusOffchainProofRequested, job.StatusWrapProofRequested, job.StatusOffchainComputationFinished)
	if err != nil {
		s.log.Error().Err(err).Msg("progress tick: failed to list jobs")
		return
	}
	for _, j := range waiting {
		s.enqueue(j)
	}
}

// scheduleSyncCommitteeWork implements spec §4.1 step 5.
func (s *Scheduler) scheduleSyncCommitteeWork(latestEpochSlot, latestCommitteeID uint64) error {
	if latestEpochSlot < latestCommitteeID*job.SlotsPerSyncCommittee {
		return nil
	}

	newCommitteeID := job.SyncCommitteeIDBySlot(latestEpochSlot) + 1

	lastInProgress, err := s.store.LatestByKind(job.KindSyncCommitteeUpdate, false)
	if err != nil {
		return err
	}
	lastDone, err := s.store.LatestByKind(job.KindSyncCommitteeUpdate, true)
	if err != nil {
		return err
	}

	if lastInProgress != nil && newCommitteeID <= job.SyncCommitteeIDBySlot(lastInProgress.Slot)+1 {
		return nil
	}
	if lastDone != nil && newCommitteeID <= job.SyncCommitteeIDBySlot(lastDone.Slot)+1 {
		return nil
	}

	has, err := s.store.HasJobForKey(job.KindSyncCommitteeUpdate, newCommitteeID.String())
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	j := &job.Job{
		ID:     uuid.NewString(),
		Kind:   job.KindSyncCommitteeUpdate,
		Status: job.StatusCreated,
		Slot:   latestEpochSlot,
	}
	if err := s.store.CreateJob(j); err != nil {
		if err == store.ErrDuplicateJob {
			return nil
		}
		return err
	}

	s.log.Info().Str("job_id", j.ID).Uint64("committee_id", uint64(newCommitteeID)).Uint64("slot", j.Slot).Msg("created sync-committee update job")
	if s.metrics != nil {
		s.metrics.JobsCreatedTotal.WithLabelValues(string(j.Kind)).Inc()
	}
	s.enqueue(j)
	return nil
}

// scheduleEpochBatchWork implements spec §4.1 step 6.
func (s *Scheduler) scheduleEpochBatchWork(eventSlot, latestEpochSlot uint64) error {
	count, err := s.store.CountNonTerminal()
	if err != nil {
		return err
	}
	if count >= job.MaxConcurrentJobsInProgress {
		return nil
	}

	lastScheduled, err := s.store.LatestEpochBatchEnd(false)
	if err != nil {
		return err
	}
	lastDone, err := s.store.LatestEpochBatchEnd(true)
	if err != nil {
		return err
	}

	latestEpoch := job.EpochOfSlot(latestEpochSlot)
	lastKnownEpoch := latestEpoch
	if lastScheduled != nil && *lastScheduled > lastKnownEpoch {
		lastKnownEpoch = *lastScheduled
	}
	if lastDone != nil && *lastDone > lastKnownEpoch {
		lastKnownEpoch = *lastDone
	}

	eNext := lastKnownEpoch + 1
	eventEpoch := job.EpochOfSlot(eventSlot)

	if eventEpoch < eNext-1 || eventEpoch-(eNext-1) < job.TargetBatchSize {
		return nil
	}

	committeeID := job.SyncCommitteeIDByEpoch(eNext)
	lastEpochOfCommittee := job.LastEpochForCommittee(committeeID)

	eEnd := eNext + job.TargetBatchSize - 1
	if lastEpochOfCommittee < eEnd {
		eEnd = lastEpochOfCommittee
	}
	if eEnd < eNext {
		return bankerr.NewInvariant("epoch-batch range computed end before start").
			WithContext("epoch_start", eNext).WithContext("epoch_end", eEnd)
	}

	existing, err := s.store.JobCoveringEpochRange(eNext, eEnd)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	j := &job.Job{
		ID:         uuid.NewString(),
		Kind:       job.KindEpochBatchUpdate,
		Status:     job.StatusCreated,
		Slot:       eventSlot,
		EpochStart: ptr(eNext),
		EpochEnd:   ptr(eEnd),
	}
	if err := s.store.CreateJob(j); err != nil {
		if err == store.ErrDuplicateJob {
			return nil
		}
		return err
	}

	s.log.Info().Str("job_id", j.ID).Uint64("epoch_start", eNext).Uint64("epoch_end", eEnd).Msg("created epoch-batch update job")
	if s.metrics != nil {
		s.metrics.JobsCreatedTotal.WithLabelValues(string(j.Kind)).Inc()
		s.metrics.EpochBatchSize.Observe(float64(eEnd - eNext + 1))
	}
	s.enqueue(j)
	return nil
}

func (s *Scheduler) enqueue(j *job.Job) {
	select {
	case s.out <- j:
	default:
		s.log.Warn().Str("job_id", j.ID).Msg("job channel full, dropping enqueue — next tick will retry")
	}
}

func ptr(v uint64) *uint64 { return &v }
