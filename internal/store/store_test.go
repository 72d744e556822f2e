package store

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lightclient/bankai/internal/job"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bankai.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CreateAndGetJob(t *testing.T) {
	s := newTestStore(t)

	j := &job.Job{ID: uuid.NewString(), Kind: job.KindSyncCommitteeUpdate, Status: job.StatusCreated, Slot: 8224}
	require.NoError(t, s.CreateJob(j))

	got, err := s.GetJob(j.ID)
	require.NoError(t, err)
	require.Equal(t, j.Kind, got.Kind)
	require.Equal(t, job.StatusCreated, got.Status)
	require.False(t, got.CreatedAt.IsZero())
}

func TestStore_CreateJob_DuplicateRejected(t *testing.T) {
	s := newTestStore(t)

	j1 := &job.Job{ID: uuid.NewString(), Kind: job.KindSyncCommitteeUpdate, Status: job.StatusCreated, Slot: 8224}
	require.NoError(t, s.CreateJob(j1))

	j2 := &job.Job{ID: uuid.NewString(), Kind: job.KindSyncCommitteeUpdate, Status: job.StatusCreated, Slot: 8224}
	require.ErrorIs(t, s.CreateJob(j2), ErrDuplicateJob)
}

func TestStore_UpdateJob_BumpsUpdatedAt(t *testing.T) {
	s := newTestStore(t)

	j := &job.Job{ID: uuid.NewString(), Kind: job.KindEpochBatchUpdate, Status: job.StatusCreated}
	start, end := uint64(257), uint64(288)
	j.EpochStart, j.EpochEnd = &start, &end
	require.NoError(t, s.CreateJob(j))

	firstUpdate := j.UpdatedAt
	j.Status = job.StatusStartedFetchingInputs
	require.NoError(t, s.UpdateJob(j))

	got, err := s.GetJob(j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusStartedFetchingInputs, got.Status)
	require.True(t, got.UpdatedAt.After(firstUpdate) || got.UpdatedAt.Equal(firstUpdate))
}

func TestStore_ListJobsByStatus(t *testing.T) {
	s := newTestStore(t)

	for i, st := range []job.Status{job.StatusCreated, job.StatusError, job.StatusError} {
		j := &job.Job{ID: uuid.NewString(), Kind: job.KindSyncCommitteeUpdate, Status: st, Slot: uint64(8192 * (i + 1))}
		require.NoError(t, s.CreateJob(j))
	}

	errored, err := s.ListJobsByStatus(job.StatusError)
	require.NoError(t, err)
	require.Len(t, errored, 2)
}

func TestStore_CountNonTerminal(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateJob(&job.Job{ID: uuid.NewString(), Kind: job.KindSyncCommitteeUpdate, Status: job.StatusCreated, Slot: 1}))
	require.NoError(t, s.CreateJob(&job.Job{ID: uuid.NewString(), Kind: job.KindSyncCommitteeUpdate, Status: job.StatusDone, Slot: 2}))

	n, err := s.CountNonTerminal()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestStore_JobCoveringEpochRange(t *testing.T) {
	s := newTestStore(t)
	start, end := uint64(257), uint64(288)
	j := &job.Job{ID: uuid.NewString(), Kind: job.KindEpochBatchUpdate, Status: job.StatusCreated, EpochStart: &start, EpochEnd: &end}
	require.NoError(t, s.CreateJob(j))

	found, err := s.JobCoveringEpochRange(257, 288)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, j.ID, found.ID)

	notFound, err := s.JobCoveringEpochRange(300, 331)
	require.NoError(t, err)
	require.Nil(t, notFound)
}

func TestStore_LatestEpochBatchEnd(t *testing.T) {
	s := newTestStore(t)
	s1, e1 := uint64(257), uint64(288)
	s2, e2 := uint64(289), uint64(300)
	require.NoError(t, s.CreateJob(&job.Job{ID: uuid.NewString(), Kind: job.KindEpochBatchUpdate, Status: job.StatusDone, EpochStart: &s1, EpochEnd: &e1}))
	require.NoError(t, s.CreateJob(&job.Job{ID: uuid.NewString(), Kind: job.KindEpochBatchUpdate, Status: job.StatusStartedFetchingInputs, EpochStart: &s2, EpochEnd: &e2}))

	inProgress, err := s.LatestEpochBatchEnd(false)
	require.NoError(t, err)
	require.NotNil(t, inProgress)
	require.Equal(t, e2, *inProgress)

	done, err := s.LatestEpochBatchEnd(true)
	require.NoError(t, err)
	require.NotNil(t, done)
	require.Equal(t, e1, *done)
}

func TestStore_MerklePath_IdempotentInsert(t *testing.T) {
	s := newTestStore(t)
	p := &job.MerklePath{EpochID: 257, PathIndex: 0, Siblings: []string{"0xaa"}}
	require.NoError(t, s.InsertMerklePath(p))
	require.NoError(t, s.InsertMerklePath(p))

	got, err := s.GetMerklePath(257, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"0xaa"}, got.Siblings)
}

func TestStore_VerifiedEpochsByBatchRoot_Ordered(t *testing.T) {
	s := newTestStore(t)
	root := "0xroot"
	for _, idx := range []int{2, 0, 1} {
		require.NoError(t, s.InsertVerifiedEpoch(&job.VerifiedEpoch{EpochID: uint64(257 + idx), BatchIndex: idx, BatchRoot: root}))
	}

	rows, err := s.ListVerifiedEpochsByBatchRoot(root)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, 0, rows[0].BatchIndex)
	require.Equal(t, 1, rows[1].BatchIndex)
	require.Equal(t, 2, rows[2].BatchIndex)
}

func TestStore_DaemonState(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetDaemonState(&job.DaemonState{LatestSlot: 8224, LatestBlockRoot: "0xabc"}))

	ds, err := s.GetDaemonState()
	require.NoError(t, err)
	require.Equal(t, uint64(8224), ds.LatestSlot)
}
