// Package store implements the Persistent Job Store (C1): a durable, embedded record
// of every job, its lifecycle state, retries, failure site, external correlation ids,
// and derived verified outputs (spec §3, §6.4).
//
// The teacher keeps superblock state in an in-memory map guarded by a mutex
// (x/superblock/store/types.go); a bridge daemon must survive restarts mid-pipeline
// (spec §5: "durable state ensures that any stage can be resumed on restart"), so this
// package swaps that in-memory map for go.etcd.io/bbolt, an embedded single-file KV
// store, while keeping the teacher's record-shape conventions (string-enum status,
// JSON-friendly fields).
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/lightclient/bankai/internal/job"
)

var (
	// ErrNotFound is returned when a lookup by id finds no record.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicateJob is returned by CreateJob when a job with the same (kind,
	// identifying key) already exists (spec §3 invariant).
	ErrDuplicateJob = errors.New("store: duplicate job for identifying key")
)

var (
	bucketJobs          = []byte("jobs")
	bucketJobIndex       = []byte("job_index") // kind+identifying-key -> job id
	bucketVerifiedEpochs = []byte("verified_epochs")
	bucketVerifiedSC     = []byte("verified_sync_committees")
	bucketMerklePaths    = []byte("merkle_paths")
	bucketDaemonState    = []byte("daemon_state")
	bucketEpochBatchArtifacts = []byte("epoch_batch_artifacts")

	daemonStateKey = []byte("singleton")
)

// Store is the durable Job Store. All methods are safe for concurrent use; bbolt
// serializes writers internally and snapshots readers.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketJobs, bucketJobIndex, bucketVerifiedEpochs, bucketVerifiedSC, bucketMerklePaths, bucketDaemonState, bucketEpochBatchArtifacts} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// CreateJob persists a new job, assigning CreatedAt/UpdatedAt, and registers it in the
// identifying-key index. Returns ErrDuplicateJob if a job already exists for
// (kind, identifying key).
func (s *Store) CreateJob(j *job.Job) error {
	now := time.Now()
	j.CreatedAt = now
	j.UpdatedAt = now

	indexKey := indexKeyFor(j.Kind, j.IdentifyingKey())

	return s.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucketJobIndex)
		if existing := idx.Get(indexKey); existing != nil {
			return ErrDuplicateJob
		}

		jobs := tx.Bucket(bucketJobs)
		data, err := json.Marshal(j)
		if err != nil {
			return err
		}
		if err := jobs.Put([]byte(j.ID), data); err != nil {
			return err
		}
		return idx.Put(indexKey, []byte(j.ID))
	})
}

func indexKeyFor(kind job.Kind, identifyingKey string) []byte {
	return []byte(string(kind) + "|" + identifyingKey)
}

// GetJob looks up a job by id.
func (s *Store) GetJob(id string) (*job.Job, error) {
	var out *job.Job
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var j job.Job
		if err := json.Unmarshal(data, &j); err != nil {
			return err
		}
		out = &j
		return nil
	})
	return out, err
}

// ListJobs returns every job record, sorted by CreatedAt descending. Used by the HTTP
// read API's job listing endpoint.
func (s *Store) ListJobs() ([]*job.Job, error) {
	all, err := s.allJobs()
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, nil
}

// UpdateJob overwrites the stored job record, bumping UpdatedAt. Every status
// transition is committed via this call before any side effect that depends on the
// new state is visible externally (spec §4.3).
func (s *Store) UpdateJob(j *job.Job) error {
	j.UpdatedAt = time.Now()
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(j)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketJobs).Put([]byte(j.ID), data)
	})
}

// HasJobForKey reports whether a job already exists for (kind, identifyingKey),
// without needing to construct a candidate Job first.
func (s *Store) HasJobForKey(kind job.Kind, identifyingKey string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketJobIndex).Get(indexKeyFor(kind, identifyingKey)) != nil
		return nil
	})
	return found, err
}

// allJobs returns every job record, in storage order (not significant).
func (s *Store) allJobs() ([]*job.Job, error) {
	var out []*job.Job
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(_, v []byte) error {
			var j job.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			out = append(out, &j)
			return nil
		})
	})
	return out, err
}

// ListJobsByStatus returns every job whose status is in the given set. Used by the
// progress tick (requeue) and the retry controller (Error-job scan).
func (s *Store) ListJobsByStatus(statuses ...job.Status) ([]*job.Job, error) {
	want := make(map[job.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	all, err := s.allJobs()
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, j := range all {
		if want[j.Status] {
			out = append(out, j)
		}
	}
	return out, nil
}

// CountNonTerminal returns the number of jobs whose status is not Done/Error/Cancelled,
// used by the scheduler's MAX_CONCURRENT_JOBS_IN_PROGRESS check (spec §4.1 step 6).
func (s *Store) CountNonTerminal() (int, error) {
	all, err := s.allJobs()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range all {
		if !j.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

// LatestByKind returns the job of the given kind with the highest Slot among jobs
// matching the terminal predicate (terminal=true looks at Done jobs only, terminal=
// false looks at any non-Cancelled/Error in-progress job), or nil if none exist. This
// backs the scheduler's "last in-progress / last completed sync-committee job" checks
// (spec §4.1 step 5).
func (s *Store) LatestByKind(kind job.Kind, wantDone bool) (*job.Job, error) {
	all, err := s.allJobs()
	if err != nil {
		return nil, err
	}
	var best *job.Job
	for _, j := range all {
		if j.Kind != kind {
			continue
		}
		if wantDone {
			if j.Status != job.StatusDone {
				continue
			}
		} else {
			if j.Status == job.StatusError || j.Status == job.StatusCancelled || j.Status == job.StatusDone {
				continue
			}
		}
		if best == nil || j.Slot > best.Slot {
			best = j
		}
	}
	return best, nil
}

// LatestEpochBatchEnd returns the highest EpochEnd among EpochBatchUpdate jobs matching
// the same terminal predicate as LatestByKind, or nil if none exist. Backs the
// scheduler's `last_scheduled_epoch` term (spec §4.1 step 6).
func (s *Store) LatestEpochBatchEnd(wantDone bool) (*uint64, error) {
	all, err := s.allJobs()
	if err != nil {
		return nil, err
	}
	var best *uint64
	for _, j := range all {
		if j.Kind != job.KindEpochBatchUpdate || j.EpochEnd == nil {
			continue
		}
		if wantDone {
			if j.Status != job.StatusDone {
				continue
			}
		} else {
			if j.Status == job.StatusError || j.Status == job.StatusCancelled || j.Status == job.StatusDone {
				continue
			}
		}
		if best == nil || *j.EpochEnd > *best {
			v := *j.EpochEnd
			best = &v
		}
	}
	return best, nil
}

// JobCoveringEpochRange returns the epoch-batch job already covering [start, end], if any.
func (s *Store) JobCoveringEpochRange(start, end uint64) (*job.Job, error) {
	has, err := s.HasJobForKey(job.KindEpochBatchUpdate, job.Uitoa(start)+"_"+job.Uitoa(end))
	if err != nil || !has {
		return nil, err
	}
	var id string
	err = s.db.View(func(tx *bbolt.Tx) error {
		id = string(tx.Bucket(bucketJobIndex).Get(indexKeyFor(job.KindEpochBatchUpdate, job.Uitoa(start)+"_"+job.Uitoa(end))))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(id)
}

// InsertVerifiedEpoch writes a VerifiedEpoch row, keyed by EpochID.
func (s *Store) InsertVerifiedEpoch(v *job.VerifiedEpoch) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketVerifiedEpochs).Put(epochKey(v.EpochID), data)
	})
}

func epochKey(epochID uint64) []byte { return []byte(job.Uitoa(epochID)) }

// GetVerifiedEpoch looks up a verified epoch row by epoch id.
func (s *Store) GetVerifiedEpoch(epochID uint64) (*job.VerifiedEpoch, error) {
	var out *job.VerifiedEpoch
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketVerifiedEpochs).Get(epochKey(epochID))
		if data == nil {
			return ErrNotFound
		}
		var v job.VerifiedEpoch
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		out = &v
		return nil
	})
	return out, err
}

// ListVerifiedEpochsByBatchRoot returns all VerifiedEpoch rows sharing a batch root, ordered by
// BatchIndex, used by the testable-property check in spec §8 ("contiguous epoch_index").
func (s *Store) ListVerifiedEpochsByBatchRoot(batchRoot string) ([]*job.VerifiedEpoch, error) {
	var out []*job.VerifiedEpoch
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVerifiedEpochs).ForEach(func(_, v []byte) error {
			var ve job.VerifiedEpoch
			if err := json.Unmarshal(v, &ve); err != nil {
				return err
			}
			if ve.BatchRoot == batchRoot {
				out = append(out, &ve)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, k int) bool { return out[i].BatchIndex < out[k].BatchIndex })
	return out, nil
}

// ListVerifiedEpochs returns every verified epoch row, sorted by EpochID. Used by the
// HTTP read API's `/verified/epochs` endpoint.
func (s *Store) ListVerifiedEpochs() ([]*job.VerifiedEpoch, error) {
	var out []*job.VerifiedEpoch
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVerifiedEpochs).ForEach(func(_, v []byte) error {
			var ve job.VerifiedEpoch
			if err := json.Unmarshal(v, &ve); err != nil {
				return err
			}
			out = append(out, &ve)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, k int) bool { return out[i].EpochID < out[k].EpochID })
	return out, nil
}

// InsertVerifiedSyncCommittee writes a VerifiedSyncCommittee row, keyed by CommitteeID.
func (s *Store) InsertVerifiedSyncCommittee(v *job.VerifiedSyncCommittee) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketVerifiedSC).Put([]byte(job.Uitoa(v.CommitteeID)), data)
	})
}

// GetVerifiedSyncCommittee looks up a verified sync committee row by committee id.
func (s *Store) GetVerifiedSyncCommittee(committeeID uint64) (*job.VerifiedSyncCommittee, error) {
	var out *job.VerifiedSyncCommittee
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketVerifiedSC).Get([]byte(job.Uitoa(committeeID)))
		if data == nil {
			return ErrNotFound
		}
		var v job.VerifiedSyncCommittee
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		out = &v
		return nil
	})
	return out, err
}

// ListVerifiedSyncCommittees returns every verified sync committee row, sorted by
// CommitteeID. Used by the HTTP read API's `/verified/committees` endpoint.
func (s *Store) ListVerifiedSyncCommittees() ([]*job.VerifiedSyncCommittee, error) {
	var out []*job.VerifiedSyncCommittee
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVerifiedSC).ForEach(func(_, v []byte) error {
			var vc job.VerifiedSyncCommittee
			if err := json.Unmarshal(v, &vc); err != nil {
				return err
			}
			out = append(out, &vc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CommitteeID < out[k].CommitteeID })
	return out, nil
}

// InsertMerklePath inserts a merkle path row. Unique on (EpochID, PathIndex); a
// duplicate insert is a no-op, matching the spec's "ON CONFLICT DO NOTHING" requirement
// (§4.5, §8).
func (s *Store) InsertMerklePath(p *job.MerklePath) error {
	key := merklePathKey(p.EpochID, p.PathIndex)
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMerklePaths)
		if b.Get(key) != nil {
			return nil
		}
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func merklePathKey(epochID uint64, pathIndex int) []byte {
	return []byte(fmt.Sprintf("%d|%d", epochID, pathIndex))
}

// GetMerklePath looks up a single merkle path row.
func (s *Store) GetMerklePath(epochID uint64, pathIndex int) (*job.MerklePath, error) {
	var out *job.MerklePath
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMerklePaths).Get(merklePathKey(epochID, pathIndex))
		if data == nil {
			return ErrNotFound
		}
		var p job.MerklePath
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		out = &p
		return nil
	})
	return out, err
}

// SaveEpochBatchArtifact persists the prepared per-epoch decommitment data for an
// epoch-batch job, for the broadcaster to read back at submission time.
func (s *Store) SaveEpochBatchArtifact(a *job.EpochBatchArtifact) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketEpochBatchArtifacts).Put([]byte(a.JobID), data)
	})
}

// GetEpochBatchArtifact looks up a job's prepared epoch-batch artifact.
func (s *Store) GetEpochBatchArtifact(jobID string) (*job.EpochBatchArtifact, error) {
	var out *job.EpochBatchArtifact
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEpochBatchArtifacts).Get([]byte(jobID))
		if data == nil {
			return ErrNotFound
		}
		var a job.EpochBatchArtifact
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		out = &a
		return nil
	})
	return out, err
}

// GetDaemonState reads the singleton daemon state, returning a zero-value if unset.
func (s *Store) GetDaemonState() (*job.DaemonState, error) {
	var out job.DaemonState
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDaemonState).Get(daemonStateKey)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &out)
	})
	return &out, err
}

// SetDaemonState overwrites the singleton daemon state.
func (s *Store) SetDaemonState(ds *job.DaemonState) error {
	ds.UpdatedAt = time.Now()
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(ds)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDaemonState).Put(daemonStateKey, data)
	})
}
