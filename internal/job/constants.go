package job

import "strconv"

// Beacon-chain time constants (spec GLOSSARY).
const (
	SlotsPerEpoch         uint64 = 32
	SlotsPerSyncCommittee uint64 = 8192
	EpochsPerSyncCommittee       = SlotsPerSyncCommittee / SlotsPerEpoch // 256
)

// Scheduling knobs (spec §4.1, §5); values chosen to match the original client's
// defaults (original_source/crates/core/src/utils/config.rs).
const (
	MaxConcurrentJobsInProgress = 8
	TargetBatchSize             = 32
	ProgressTickSlots           = 5
	MaxJobRetriesCount          = 10
	MaxSkippedSlotsRetryAttempts = 3
)

// CommitteeID is the sync-committee id derived from a slot or epoch.
type CommitteeID uint64

func (c CommitteeID) String() string { return strconv.FormatUint(uint64(c), 10) }

// EpochOfSlot returns slot / SLOTS_PER_EPOCH.
func EpochOfSlot(slot uint64) uint64 { return slot / SlotsPerEpoch }

// SlotOfEpochStart returns the first slot of an epoch.
func SlotOfEpochStart(epoch uint64) uint64 { return epoch * SlotsPerEpoch }

// SlotOfEpochEnd returns the last slot of an epoch.
func SlotOfEpochEnd(epoch uint64) uint64 { return (epoch+1)*SlotsPerEpoch - 1 }

// SyncCommitteeIDBySlot returns slot / SLOTS_PER_SYNC_COMMITTEE.
func SyncCommitteeIDBySlot(slot uint64) CommitteeID {
	return CommitteeID(slot / SlotsPerSyncCommittee)
}

// SyncCommitteeIDByEpoch returns the sync committee id that signs epoch.
func SyncCommitteeIDByEpoch(epoch uint64) CommitteeID {
	return CommitteeID(epoch / EpochsPerSyncCommittee)
}

// FirstEpochForCommittee returns the first epoch signed by committee c.
func FirstEpochForCommittee(c CommitteeID) uint64 {
	return uint64(c) * EpochsPerSyncCommittee
}

// LastEpochForCommittee returns the last epoch signed by committee c.
func LastEpochForCommittee(c CommitteeID) uint64 {
	return (uint64(c)+1)*EpochsPerSyncCommittee - 1
}

// Uitoa is a tiny decimal formatter used to build composite store keys without
// pulling fmt into the hot identifying-key path.
func Uitoa(v uint64) string { return strconv.FormatUint(v, 10) }
