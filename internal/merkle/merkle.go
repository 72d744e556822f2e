// Package merkle builds the per-batch merkle root over epoch output hashes and the
// per-leaf inclusion paths the epoch-batch pipeline persists (spec §4.5, §8).
//
// Grounded on original_source/client-rs/crates/utils/src/merkle.rs's sha256 tree
// (generate_path/hash_path), translated to idiomatic Go: leaves are padded to the
// next power of two with zero hashes, the tree is built bottom-up, and each leaf's
// path is the sequence of sibling hashes from leaf to root.
package merkle

import "crypto/sha256"

// Leaf is a 32-byte output hash, matching the contract's root/hash width (§6.1).
type Leaf = [32]byte

// Build computes the batch root and, for every original leaf (ignoring any zero
// padding), its sibling path from leaf to root. paths[i] corresponds to leaves[i].
func Build(leaves []Leaf) (root Leaf, paths [][]Leaf) {
	n := len(leaves)
	if n == 0 {
		return Leaf{}, nil
	}

	treeSize := 1
	for treeSize < n {
		treeSize *= 2
	}

	level := make([]Leaf, treeSize)
	copy(level, leaves)
	// Remaining slots are already zero-valued (Go zero value for [32]byte).

	var levels [][]Leaf
	levels = append(levels, append([]Leaf(nil), level...))

	for len(level) > 1 {
		next := make([]Leaf, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = hashPair(level[i], level[i+1])
		}
		level = next
		levels = append(levels, append([]Leaf(nil), level...))
	}

	root = level[0]

	paths = make([][]Leaf, n)
	for leafIdx := 0; leafIdx < n; leafIdx++ {
		idx := leafIdx
		var path []Leaf
		for _, lvl := range levels[:len(levels)-1] {
			var siblingIdx int
			if idx%2 == 0 {
				siblingIdx = idx + 1
			} else {
				siblingIdx = idx - 1
			}
			path = append(path, lvl[siblingIdx])
			idx /= 2
		}
		paths[leafIdx] = path
	}

	return root, paths
}

func hashPair(left, right Leaf) Leaf {
	var data [64]byte
	copy(data[0:32], left[:])
	copy(data[32:64], right[:])
	return sha256.Sum256(data[:])
}

// VerifyPath recomputes the root implied by leaf, path, and index and reports whether
// it matches root — the per-path verification required before persisting (spec §4.5)
// and the universal invariant in spec §8 ("hash_path(leaf_i, path_i, i) == batch_root").
func VerifyPath(leaf Leaf, path []Leaf, index int, root Leaf) bool {
	value := leaf
	idx := index
	for _, sibling := range path {
		if idx%2 == 0 {
			value = hashPair(value, sibling)
		} else {
			value = hashPair(sibling, value)
		}
		idx /= 2
	}
	return value == root
}
