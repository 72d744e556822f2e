// Package artifacts writes the deterministic on-disk circuit-input/PIE tree the
// "Prepare inputs" stage of both pipelines produces (spec §6.5), mirroring
// original_source/crates/core/src/types/proofs/{sync_committee,epoch_batch}.rs's
// Exportable::export(): pretty-printed JSON circuit input next to the PIE zip it
// produced, laid out so re-running "Prepare inputs" for the same job identity
// overwrites the same paths rather than scattering new ones (spec §8's idempotence
// property, §9's "content-addressed by job identity").
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SyncCommitteeDir returns the directory a sync-committee update's artifacts for
// committeeID live under.
func SyncCommitteeDir(root string, committeeID uint64) string {
	return filepath.Join(root, "committee", fmt.Sprintf("committee_%d", committeeID))
}

// SyncCommitteeInputPath returns the path of the circuit-input document for a
// sync-committee update at slot, within committeeID's directory.
func SyncCommitteeInputPath(root string, committeeID, slot uint64) string {
	return filepath.Join(SyncCommitteeDir(root, committeeID), fmt.Sprintf("input_%d.json", slot))
}

// SyncCommitteePiePath returns the path of the PIE zip matching
// SyncCommitteeInputPath.
func SyncCommitteePiePath(root string, committeeID, slot uint64) string {
	return filepath.Join(SyncCommitteeDir(root, committeeID), fmt.Sprintf("pie_committee_%d_%d.zip", committeeID, slot))
}

// EpochBatchDir returns the directory an epoch-batch update's artifacts for the
// inclusive [epochStart, epochEnd] range live under.
func EpochBatchDir(root string, epochStart, epochEnd uint64) string {
	return filepath.Join(root, "epoch_batch", fmt.Sprintf("%d_to_%d", epochStart, epochEnd))
}

// EpochBatchInputPath returns the path of the circuit-input document for an
// epoch-batch update over [epochStart, epochEnd].
func EpochBatchInputPath(root string, epochStart, epochEnd uint64) string {
	return filepath.Join(EpochBatchDir(root, epochStart, epochEnd), fmt.Sprintf("input_batch_%d_to_%d.json", epochStart, epochEnd))
}

// EpochBatchPiePath returns the path of the PIE zip matching EpochBatchInputPath.
func EpochBatchPiePath(root string, epochStart, epochEnd uint64) string {
	return filepath.Join(EpochBatchDir(root, epochStart, epochEnd), fmt.Sprintf("pie_batch_%d_to_%d.zip", epochStart, epochEnd))
}

// WriteInput marshals v as pretty-printed JSON and writes it to path, creating any
// missing parent directories. Writing the same v to the same path twice produces
// byte-identical contents.
func WriteInput(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal circuit input: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write circuit input: %w", err)
	}
	return nil
}

// WritePIE writes the raw PIE bytes to path, creating any missing parent
// directories.
func WritePIE(path string, pie []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, pie, 0o644); err != nil {
		return fmt.Errorf("write pie: %w", err)
	}
	return nil
}
