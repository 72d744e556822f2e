package job

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEpochOfSlot(t *testing.T) {
	require.Equal(t, uint64(257), EpochOfSlot(8224))
	require.Equal(t, uint64(0), EpochOfSlot(31))
	require.Equal(t, uint64(1), EpochOfSlot(32))
}

func TestSyncCommitteeIDBySlot(t *testing.T) {
	require.Equal(t, CommitteeID(0), SyncCommitteeIDBySlot(0))
	require.Equal(t, CommitteeID(1), SyncCommitteeIDBySlot(8192))
	require.Equal(t, CommitteeID(0), SyncCommitteeIDBySlot(8191))
}

func TestFirstLastEpochForCommittee(t *testing.T) {
	require.Equal(t, uint64(0), FirstEpochForCommittee(0))
	require.Equal(t, uint64(255), LastEpochForCommittee(0))
	require.Equal(t, uint64(256), FirstEpochForCommittee(1))
	require.Equal(t, uint64(511), LastEpochForCommittee(1))
}

func TestJob_IdentifyingKey(t *testing.T) {
	scJob := &Job{Kind: KindSyncCommitteeUpdate, Slot: 8224}
	require.Equal(t, "1", scJob.IdentifyingKey())

	start, end := uint64(257), uint64(288)
	ebJob := &Job{Kind: KindEpochBatchUpdate, EpochStart: &start, EpochEnd: &end}
	require.Equal(t, "257_288", ebJob.IdentifyingKey())
}

func TestStatus_Terminal(t *testing.T) {
	require.True(t, StatusDone.Terminal())
	require.True(t, StatusError.Terminal())
	require.True(t, StatusCancelled.Terminal())
	require.False(t, StatusCreated.Terminal())
}

func TestStatus_WaitingForExternalWork(t *testing.T) {
	require.True(t, StatusOffchainProofRequested.WaitingForExternalWork())
	require.True(t, StatusWrapProofRequested.WaitingForExternalWork())
	require.False(t, StatusCreated.WaitingForExternalWork())
}

func TestValidTransition(t *testing.T) {
	require.True(t, ValidTransition(StatusCreated, StatusProgramInputsPrepared))
	require.True(t, ValidTransition(StatusOffchainComputationFinished, StatusDone))
	require.False(t, ValidTransition(StatusCreated, StatusDone))
	require.True(t, ValidTransition(StatusPieGenerated, StatusError))
	require.False(t, ValidTransition(StatusDone, StatusError))
}
