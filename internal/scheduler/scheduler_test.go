package scheduler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lightclient/bankai/internal/beacon"
	"github.com/lightclient/bankai/internal/job"
	"github.com/lightclient/bankai/internal/prover"
	"github.com/lightclient/bankai/internal/retry"
	"github.com/lightclient/bankai/internal/store"
)

type fakeContract struct {
	latestEpochSlot   uint64
	latestCommitteeID uint64
}

func (f *fakeContract) GetLatestEpochSlot(ctx context.Context) (uint64, error)   { return f.latestEpochSlot, nil }
func (f *fakeContract) GetLatestCommitteeID(ctx context.Context) (uint64, error) { return f.latestCommitteeID, nil }

// noopProver satisfies retry.ProverStatus without ever being exercised by these tests
// (no seeded job carries a query id, so resumeStatus never calls it).
type noopProver struct{}

func (noopProver) PollProof(ctx context.Context, queryID string) (prover.Status, []byte, error) {
	return prover.StatusInProgress, nil, nil
}
func (noopProver) PollWrap(ctx context.Context, queryID string) (prover.Status, []byte, error) {
	return prover.StatusInProgress, nil, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bankai.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestScheduler(t *testing.T, st *store.Store, contract Contract) (*Scheduler, chan *job.Job) {
	t.Helper()
	out := make(chan *job.Job, 32)
	retryCtl := retry.NewController(retry.Dependencies{Store: st, Prover: noopProver{}, Log: zerolog.Nop()})
	return New(st, contract, retryCtl, out, nil, zerolog.Nop()), out
}

func TestScheduler_ScheduleSyncCommitteeWork_CreatesJobAtCommitteeBoundary(t *testing.T) {
	s := newTestStore(t)
	contract := &fakeContract{latestEpochSlot: job.SlotsPerSyncCommittee - 1, latestCommitteeID: 0}
	sched, out := newTestScheduler(t, s, contract)

	sched.HandleHeadEvent(context.Background(), beacon.HeadEvent{Slot: job.SlotsPerSyncCommittee - 1, BlockRoot: "0xabc"})

	select {
	case j := <-out:
		require.Equal(t, job.KindSyncCommitteeUpdate, j.Kind)
	default:
		t.Fatal("expected a sync-committee job to be enqueued")
	}

	jobs, err := s.ListJobsByStatus(job.StatusCreated)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestScheduler_ScheduleSyncCommitteeWork_NoOpWhenAlreadyScheduled(t *testing.T) {
	s := newTestStore(t)
	contract := &fakeContract{latestEpochSlot: job.SlotsPerSyncCommittee - 1, latestCommitteeID: 0}
	sched, out := newTestScheduler(t, s, contract)

	sched.HandleHeadEvent(context.Background(), beacon.HeadEvent{Slot: job.SlotsPerSyncCommittee - 1})
	<-out

	sched.HandleHeadEvent(context.Background(), beacon.HeadEvent{Slot: job.SlotsPerSyncCommittee})

	select {
	case j := <-out:
		t.Fatalf("expected no second sync-committee job, got %+v", j)
	default:
	}
}

func TestScheduler_ScheduleEpochBatchWork_CreatesJobAtTargetBatchSize(t *testing.T) {
	s := newTestStore(t)
	contract := &fakeContract{latestEpochSlot: 0, latestCommitteeID: 0}
	sched, out := newTestScheduler(t, s, contract)

	eventSlot := job.SlotOfEpochStart(job.TargetBatchSize)

	sched.HandleHeadEvent(context.Background(), beacon.HeadEvent{Slot: eventSlot})

	var found *job.Job
	for {
		select {
		case j := <-out:
			if j.Kind == job.KindEpochBatchUpdate {
				found = j
			}
			continue
		default:
		}
		break
	}
	require.NotNil(t, found)
	require.NotNil(t, found.EpochStart)
	require.NotNil(t, found.EpochEnd)
	require.Equal(t, uint64(1), *found.EpochStart)
	require.Equal(t, uint64(job.TargetBatchSize), *found.EpochEnd)
}

func TestScheduler_ScheduleEpochBatchWork_RespectsConcurrencyCap(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < job.MaxConcurrentJobsInProgress; i++ {
		start, end := uint64(i*10+1), uint64(i*10+5)
		require.NoError(t, s.CreateJob(&job.Job{
			ID: "seed" + job.Uitoa(uint64(i)), Kind: job.KindEpochBatchUpdate,
			Status: job.StatusStartedFetchingInputs, EpochStart: &start, EpochEnd: &end,
		}))
	}
	contract := &fakeContract{latestEpochSlot: 0, latestCommitteeID: 0}
	sched, out := newTestScheduler(t, s, contract)

	eventSlot := job.SlotOfEpochStart(job.TargetBatchSize * 10)
	sched.HandleHeadEvent(context.Background(), beacon.HeadEvent{Slot: eventSlot})

	for {
		select {
		case j := <-out:
			require.NotEqual(t, job.KindEpochBatchUpdate, j.Kind, "no new epoch-batch job should be created while at the concurrency cap")
			continue
		default:
		}
		break
	}
}

func TestScheduler_RunProgressTick_RequeuesWaitingJobs(t *testing.T) {
	s := newTestStore(t)
	j := &job.Job{ID: "waiting1", Kind: job.KindSyncCommitteeUpdate, Status: job.StatusOffchainProofRequested, Slot: 1}
	require.NoError(t, s.CreateJob(j))

	contract := &fakeContract{latestEpochSlot: 0, latestCommitteeID: 0}
	sched, out := newTestScheduler(t, s, contract)

	sched.HandleHeadEvent(context.Background(), beacon.HeadEvent{Slot: job.ProgressTickSlots})

	var sawRequeue bool
	for {
		select {
		case got := <-out:
			if got.ID == "waiting1" {
				sawRequeue = true
			}
			continue
		default:
		}
		break
	}
	require.True(t, sawRequeue)
}

func TestScheduler_RunRetries_ResumesErroredJobBelowCap(t *testing.T) {
	s := newTestStore(t)
	j := &job.Job{ID: "errored1", Kind: job.KindSyncCommitteeUpdate, Status: job.StatusError, Slot: 1}
	require.NoError(t, s.CreateJob(j))

	contract := &fakeContract{latestEpochSlot: 0, latestCommitteeID: 0}
	sched, out := newTestScheduler(t, s, contract)

	sched.HandleHeadEvent(context.Background(), beacon.HeadEvent{Slot: 1})

	got, err := s.GetJob("errored1")
	require.NoError(t, err)
	require.Equal(t, job.StatusCreated, got.Status)

	var sawResume bool
	for {
		select {
		case j := <-out:
			if j.ID == "errored1" {
				sawResume = true
			}
			continue
		default:
		}
		break
	}
	require.True(t, sawResume)
}
