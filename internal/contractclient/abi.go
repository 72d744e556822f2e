package contractclient

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// verifierABIJSON is the minimal ABI surface the daemon drives: the two write
// operations the broadcaster submits, and the four reads the scheduler/retry
// controller use to derive verified state (spec §6.1). Modeled inline the way
// x/superblock/l1/contracts/dispute_game_factory.go embeds its ABI, except this
// contract has no generated bytecode to embed against so the JSON is inlined here
// instead of behind go:embed.
const verifierABIJSON = `[
  {"type":"function","name":"verify_committee_update","stateMutability":"nonpayable",
   "inputs":[
     {"name":"state_root_low","type":"uint128"},
     {"name":"state_root_high","type":"uint128"},
     {"name":"committee_hash_low","type":"uint128"},
     {"name":"committee_hash_high","type":"uint128"},
     {"name":"slot","type":"uint64"}
   ],"outputs":[]},
  {"type":"function","name":"verify_epoch_batch","stateMutability":"nonpayable",
   "inputs":[
     {"name":"batch_root","type":"uint256"},
     {"name":"header_root_low","type":"uint128"},
     {"name":"header_root_high","type":"uint128"},
     {"name":"state_root_low","type":"uint128"},
     {"name":"state_root_high","type":"uint128"},
     {"name":"slot","type":"uint64"},
     {"name":"committee_hash_low","type":"uint128"},
     {"name":"committee_hash_high","type":"uint128"},
     {"name":"n_signers","type":"uint64"},
     {"name":"execution_hash_low","type":"uint128"},
     {"name":"execution_hash_high","type":"uint128"},
     {"name":"execution_height","type":"uint64"}
   ],"outputs":[]},
  {"type":"function","name":"get_latest_epoch_slot","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint64"}]},
  {"type":"function","name":"get_latest_committee_id","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint64"}]},
  {"type":"function","name":"get_committee_hash","stateMutability":"view",
   "inputs":[{"name":"committee_id","type":"uint64"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"get_epoch_proof","stateMutability":"view",
   "inputs":[{"name":"slot","type":"uint64"}],
   "outputs":[
     {"name":"header_root","type":"uint256"},
     {"name":"state_root","type":"uint256"},
     {"name":"n_signers","type":"uint64"},
     {"name":"execution_hash","type":"uint256"},
     {"name":"execution_height","type":"uint64"}
   ]}
]`

func parseVerifierABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(verifierABIJSON))
}
