package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/lightclient/bankai/internal/job"
)

var errNotFound = errors.New("not found")

type fakeStore struct {
	jobs       []*job.Job
	jobsByID   map[string]*job.Job
	artifacts  map[string]*job.EpochBatchArtifact
	epochs     []*job.VerifiedEpoch
	committees []*job.VerifiedSyncCommittee
}

func (s *fakeStore) ListJobs() ([]*job.Job, error) { return s.jobs, nil }

func (s *fakeStore) GetJob(id string) (*job.Job, error) {
	j, ok := s.jobsByID[id]
	if !ok {
		return nil, errNotFound
	}
	return j, nil
}

func (s *fakeStore) GetEpochBatchArtifact(jobID string) (*job.EpochBatchArtifact, error) {
	a, ok := s.artifacts[jobID]
	if !ok {
		return nil, errNotFound
	}
	return a, nil
}

func (s *fakeStore) ListVerifiedEpochs() ([]*job.VerifiedEpoch, error) { return s.epochs, nil }

func (s *fakeStore) ListVerifiedSyncCommittees() ([]*job.VerifiedSyncCommittee, error) {
	return s.committees, nil
}

type fakeContract struct {
	slot        uint64
	committeeID uint64
}

func (c *fakeContract) GetLatestEpochSlot(ctx context.Context) (uint64, error)   { return c.slot, nil }
func (c *fakeContract) GetLatestCommitteeID(ctx context.Context) (uint64, error) { return c.committeeID, nil }

type fakeRetry struct {
	retried *job.Job
	err     error
}

func (f *fakeRetry) Retry(ctx context.Context, jobID string) (*job.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.retried, nil
}

func newTestRouter(st Store, contract Contract) *mux.Router {
	return newTestRouterWithRetry(st, contract, nil)
}

func newTestRouterWithRetry(st Store, contract Contract, retry Retry) *mux.Router {
	r := mux.NewRouter()
	NewHandlers(st, contract, retry, "batches").Register(r)
	return r
}

func TestListJobs(t *testing.T) {
	st := &fakeStore{jobs: []*job.Job{{ID: "j1", Status: job.StatusDone}, {ID: "j2", Status: job.StatusCreated}}}
	r := newTestRouter(st, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]job.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["jobs"], 2)
}

func TestListJobs_FilterByStatus(t *testing.T) {
	st := &fakeStore{jobs: []*job.Job{{ID: "j1", Status: job.StatusDone}, {ID: "j2", Status: job.StatusCreated}}}
	r := newTestRouter(st, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs?status=Done", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body map[string][]job.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["jobs"], 1)
	require.Equal(t, "j1", body["jobs"][0].ID)
}

func TestGetJob_NotFound(t *testing.T) {
	st := &fakeStore{jobsByID: map[string]*job.Job{}}
	r := newTestRouter(st, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugContractState(t *testing.T) {
	st := &fakeStore{}
	r := newTestRouter(st, &fakeContract{slot: 12345, committeeID: 7})

	req := httptest.NewRequest(http.MethodGet, "/debug/contract-state", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]uint64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, uint64(12345), body["latest_epoch_slot"])
	require.Equal(t, uint64(7), body["latest_committee_id"])
}

func TestDebugContractState_Unconfigured(t *testing.T) {
	r := newTestRouter(&fakeStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/debug/contract-state", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRetryJob(t *testing.T) {
	retried := &job.Job{ID: "j1", Status: job.StatusCreated}
	r := newTestRouterWithRetry(&fakeStore{}, nil, &fakeRetry{retried: retried})

	req := httptest.NewRequest(http.MethodPost, "/jobs/j1/retry", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body job.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, job.StatusCreated, body.Status)
}

func TestRetryJob_Unconfigured(t *testing.T) {
	r := newTestRouter(&fakeStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs/j1/retry", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRetryJob_Failure(t *testing.T) {
	r := newTestRouterWithRetry(&fakeStore{}, nil, &fakeRetry{err: errNotFound})

	req := httptest.NewRequest(http.MethodPost, "/jobs/j1/retry", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugJobArtifacts(t *testing.T) {
	j := &job.Job{ID: "j1", Kind: job.KindEpochBatchUpdate}
	artifact := &job.EpochBatchArtifact{
		JobID:     "j1",
		BatchRoot: "0xroot",
		Epochs:    []job.VerifiedEpoch{{EpochID: 1}, {EpochID: 2}, {EpochID: 3}},
	}
	st := &fakeStore{
		jobsByID:  map[string]*job.Job{"j1": j},
		artifacts: map[string]*job.EpochBatchArtifact{"j1": artifact},
	}
	r := newTestRouter(st, nil)

	req := httptest.NewRequest(http.MethodGet, "/debug/jobs/j1/artifacts", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Artifact  job.EpochBatchArtifact `json:"artifact"`
		InputPath string                 `json:"input_path"`
		PiePath   string                 `json:"pie_path"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "0xroot", body.Artifact.BatchRoot)
	require.Equal(t, "batches/epoch_batch/1_to_3/input_batch_1_to_3.json", body.InputPath)
	require.Equal(t, "batches/epoch_batch/1_to_3/pie_batch_1_to_3.zip", body.PiePath)
}
