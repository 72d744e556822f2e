package contractclient

// Config holds settlement-chain integration configuration.
//
// Grounded on x/superblock/l1/config.go: the same RPC endpoint / chain id / EIP-1559
// fee knobs and confirmation/finality depth fields, trimmed to the single verifier
// contract this daemon talks to instead of a registry + dispute-game-factory pair.
type Config struct {
	RPCEndpoint string `mapstructure:"rpc_endpoint" yaml:"rpc_endpoint"`

	VerifierContract string `mapstructure:"verifier_contract" yaml:"verifier_contract"`

	ChainID uint64 `mapstructure:"chain_id" yaml:"chain_id"`

	// ConfirmationDelaySeconds is the pause between receipt polls in WaitForConfirmation,
	// and ConfirmationRetries is how many polls it makes before giving up.
	ConfirmationDelaySeconds uint64 `mapstructure:"confirmation_delay_seconds" yaml:"confirmation_delay_seconds"`
	ConfirmationRetries      uint64 `mapstructure:"confirmation_retries"       yaml:"confirmation_retries"`

	UseEIP1559        bool   `mapstructure:"use_eip1559"          yaml:"use_eip1559"`
	MaxFeePerGasWei   string `mapstructure:"max_fee_per_gas_wei"  yaml:"max_fee_per_gas_wei"`
	MaxPriorityFeeWei string `mapstructure:"max_priority_fee_wei" yaml:"max_priority_fee_wei"`
	GasLimitBufferPct uint64 `mapstructure:"gas_limit_buffer_pct" yaml:"gas_limit_buffer_pct"`

	// SignerPkHex is the hex-encoded ECDSA private key used to sign broadcast
	// transactions. Required unless an external signer is wired in at runtime.
	SignerPkHex string `mapstructure:"signer_pk_hex" yaml:"signer_pk_hex" env:"CONTRACT_SIGNER_PK_HEX"`
}

func DefaultConfig() Config {
	return Config{
		RPCEndpoint:              "ws://localhost:8546",
		ConfirmationDelaySeconds: 2,
		ConfirmationRetries:      10,
		UseEIP1559:               true,
		GasLimitBufferPct:        15,
	}
}
