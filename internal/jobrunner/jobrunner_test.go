package jobrunner

import (
	"context"
	"errors"
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
	proofStatus  prover.Status
	proofBytes   []byte
	proofErr     error
	wrapQueryID  string
	wrapErr      error
	wrapStatus   prover.Status
}

func (f *fakeProver) PollProof(ctx context.Context, queryID string) (prover.Status, []byte, error) {
	return f.proofStatus, f.proofBytes, f.proofErr
}
func (f *fakeProver) SubmitWrap(ctx context.Context, proof []byte, verifierProgram string) (string, error) {
	return f.wrapQueryID, f.wrapErr
}
func (f *fakeProver) PollWrap(ctx context.Context, queryID string) (prover.Status, []byte, error) {
	return f.wrapStatus, nil, nil
}

type fakePipeline struct {
	called bool
	err    error
}

func (p *fakePipeline) PrepareAndAdvance(ctx context.Context, j *job.Job) error {
	p.called = true
	return p.err
}

type fakeBroadcaster struct {
	called bool
	err    error
}

func (b *fakeBroadcaster) Broadcast(ctx context.Context, j *job.Job) error {
	b.called = true
	return b.err
}

func TestRunner_PollProof_DoneSubmitsWrapAndAdvances(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindSyncCommitteeUpdate, Status: job.StatusOffchainProofRequested, ProofQueryID: "p1"}
	st := newFakeStore(j)
	pr := &fakeProver{proofStatus: prover.StatusDone, wrapQueryID: "w1"}
	r := New(st, map[job.Kind]Pipeline{}, &fakeBroadcaster{}, pr, NewPermits(1, 1), Config{VerifierProgram: "wrap.cairo"}, nil, zerolog.Nop())

	r.dispatch(context.Background(), j)

	got := st.jobs["j1"]
	require.Equal(t, job.StatusWrapProofRequested, got.Status)
	require.Equal(t, "w1", got.WrapQueryID)
}

func TestRunner_PollProof_FailedTransitionsToError(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindSyncCommitteeUpdate, Status: job.StatusOffchainProofRequested, ProofQueryID: "p1"}
	st := newFakeStore(j)
	pr := &fakeProver{proofStatus: prover.StatusFailed}
	r := New(st, map[job.Kind]Pipeline{}, &fakeBroadcaster{}, pr, NewPermits(1, 1), Config{}, nil, zerolog.Nop())

	r.dispatch(context.Background(), j)

	got := st.jobs["j1"]
	require.Equal(t, job.StatusError, got.Status)
	require.Equal(t, job.StatusOffchainProofRequested, got.FailedAt)
}

func TestRunner_PollProof_InProgressNoOp(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindSyncCommitteeUpdate, Status: job.StatusOffchainProofRequested, ProofQueryID: "p1"}
	st := newFakeStore(j)
	pr := &fakeProver{proofStatus: prover.StatusInProgress}
	r := New(st, map[job.Kind]Pipeline{}, &fakeBroadcaster{}, pr, NewPermits(1, 1), Config{}, nil, zerolog.Nop())

	r.dispatch(context.Background(), j)

	got := st.jobs["j1"]
	require.Equal(t, job.StatusOffchainProofRequested, got.Status)
}

func TestRunner_PollWrap_DoneAdvancesToComputationFinished(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindEpochBatchUpdate, Status: job.StatusWrapProofRequested, WrapQueryID: "w1"}
	st := newFakeStore(j)
	pr := &fakeProver{wrapStatus: prover.StatusDone}
	r := New(st, map[job.Kind]Pipeline{}, &fakeBroadcaster{}, pr, NewPermits(1, 1), Config{}, nil, zerolog.Nop())

	r.dispatch(context.Background(), j)

	got := st.jobs["j1"]
	require.Equal(t, job.StatusOffchainComputationFinished, got.Status)
}

func TestRunner_DispatchesToBroadcaster(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindEpochBatchUpdate, Status: job.StatusOffchainComputationFinished}
	st := newFakeStore(j)
	bc := &fakeBroadcaster{}
	r := New(st, map[job.Kind]Pipeline{}, bc, &fakeProver{}, NewPermits(1, 1), Config{}, nil, zerolog.Nop())

	r.dispatch(context.Background(), j)

	require.True(t, bc.called)
}

func TestRunner_DispatchesToPipelineForOtherStatuses(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindSyncCommitteeUpdate, Status: job.StatusCreated}
	st := newFakeStore(j)
	p := &fakePipeline{}
	r := New(st, map[job.Kind]Pipeline{job.KindSyncCommitteeUpdate: p}, &fakeBroadcaster{}, &fakeProver{}, NewPermits(1, 1), Config{}, nil, zerolog.Nop())

	r.dispatch(context.Background(), j)

	require.True(t, p.called)
}

func TestRunner_PipelineErrorTransitionsToError(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindSyncCommitteeUpdate, Status: job.StatusCreated}
	st := newFakeStore(j)
	p := &fakePipeline{err: errors.New("boom")}
	r := New(st, map[job.Kind]Pipeline{job.KindSyncCommitteeUpdate: p}, &fakeBroadcaster{}, &fakeProver{}, NewPermits(1, 1), Config{}, nil, zerolog.Nop())

	r.dispatch(context.Background(), j)

	got := st.jobs["j1"]
	require.Equal(t, job.StatusError, got.Status)
	require.Equal(t, job.StatusCreated, got.FailedAt)
}

func TestRunner_TerminalJobIgnored(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindSyncCommitteeUpdate, Status: job.StatusDone}
	st := newFakeStore(j)
	r := New(st, map[job.Kind]Pipeline{}, &fakeBroadcaster{}, &fakeProver{}, NewPermits(1, 1), Config{}, nil, zerolog.Nop())

	r.dispatch(context.Background(), j)

	got := st.jobs["j1"]
	require.Equal(t, job.StatusDone, got.Status)
}
