package retry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lightclient/bankai/internal/job"
	"github.com/lightclient/bankai/internal/prover"
)

type fakeStore struct {
	jobs map[string]*job.Job
}

func newFakeStore(jobs ...*job.Job) *fakeStore {
	s := &fakeStore{jobs: map[string]*job.Job{}}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeStore) GetJob(id string) (*job.Job, error) { return s.jobs[id], nil }
func (s *fakeStore) UpdateJob(j *job.Job) error {
	s.jobs[j.ID] = j
	return nil
}

type fakeProver struct {
	proofStatus prover.Status
	wrapStatus  prover.Status
}

func (f *fakeProver) PollProof(ctx context.Context, queryID string) (prover.Status, []byte, error) {
	return f.proofStatus, nil, nil
}
func (f *fakeProver) PollWrap(ctx context.Context, queryID string) (prover.Status, []byte, error) {
	return f.wrapStatus, nil, nil
}

func TestController_Retry_NoQueryIDs_ResumesAtCreated(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindSyncCommitteeUpdate, Status: job.StatusError}
	s := newFakeStore(j)
	c := NewController(Dependencies{Store: s, Prover: &fakeProver{}, Log: zerolog.Nop()})

	resumed, err := c.Retry(context.Background(), j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusCreated, resumed.Status)
	require.Equal(t, uint64(1), resumed.Retries)
}

func TestController_Retry_WrapDone_ResumesAtComputationFinished(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindEpochBatchUpdate, Status: job.StatusError, WrapQueryID: "w1"}
	s := newFakeStore(j)
	c := NewController(Dependencies{Store: s, Prover: &fakeProver{wrapStatus: prover.StatusDone}, Log: zerolog.Nop()})

	resumed, err := c.Retry(context.Background(), j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusOffchainComputationFinished, resumed.Status)
	require.Equal(t, uint64(1), resumed.Retries)
}

func TestController_Retry_ProofInProgress_ResumesAtCreated(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindEpochBatchUpdate, Status: job.StatusError, ProofQueryID: "p1"}
	s := newFakeStore(j)
	c := NewController(Dependencies{Store: s, Prover: &fakeProver{proofStatus: prover.StatusInProgress}, Log: zerolog.Nop()})

	resumed, err := c.Retry(context.Background(), j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusCreated, resumed.Status)
	require.Equal(t, uint64(2), resumed.Retries)
}

func TestController_Retry_ExceedsCap(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindEpochBatchUpdate, Status: job.StatusError, ProofQueryID: "p1", Retries: job.MaxJobRetriesCount}
	s := newFakeStore(j)
	c := NewController(Dependencies{Store: s, Prover: &fakeProver{proofStatus: prover.StatusInProgress}, Log: zerolog.Nop()})

	_, err := c.Retry(context.Background(), j.ID)
	require.ErrorIs(t, err, ErrRetryCapExceeded)
}

func TestController_Retry_NonErrorJob_NoOp(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindSyncCommitteeUpdate, Status: job.StatusCreated}
	s := newFakeStore(j)
	c := NewController(Dependencies{Store: s, Prover: &fakeProver{}, Log: zerolog.Nop()})

	resumed, err := c.Retry(context.Background(), j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusCreated, resumed.Status)
}
