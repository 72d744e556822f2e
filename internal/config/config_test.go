package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Contract.VerifierContract = "0xdeadbeef"
	cfg.Contract.SignerPkHex = "0x1234"
	cfg.Prover.BaseURL = "http://localhost:9009"
	cfg.Prover.VerifierProgram = "bankai-wrap-v1"
	cfg.Tracegen.BaseURL = "http://localhost:9010"
	return cfg
}

func TestDefault_FailsValidationWithoutRequiredFields(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate())
}

func TestValidConfig_PassesValidation(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_MissingBeaconBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Beacon.BaseURL = ""
	require.ErrorContains(t, cfg.Validate(), "beacon.base_url")
}

func TestValidate_MissingVerifierProgram(t *testing.T) {
	cfg := validConfig()
	cfg.Prover.VerifierProgram = ""
	require.ErrorContains(t, cfg.Validate(), "verifier_program")
}

func TestValidate_SchedulerPermitsMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler.MaxConcurrentTraceGenerations = 0
	require.ErrorContains(t, cfg.Validate(), "max_concurrent_trace_generations")
}

func TestValidate_MissingArtifactsDir(t *testing.T) {
	cfg := validConfig()
	cfg.Store.ArtifactsDir = ""
	require.ErrorContains(t, cfg.Validate(), "artifacts_dir")
}

func TestValidate_MetricsPathRequiredWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = ""
	require.ErrorContains(t, cfg.Validate(), "metrics.path")
}

func TestLoad_ReadsYAMLAndOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bankai.yaml")
	contents := `
beacon:
  base_url: http://beacon.example:5052
contract:
  rpc_endpoint: ws://geth.example:8546
  verifier_contract: "0xabc123"
  signer_pk_hex: "0xfeed"
prover:
  base_url: http://prover.example:9009
  verifier_program: bankai-wrap-v1
tracegen:
  base_url: http://tracegen.example:9010
store:
  path: /var/lib/bankai/bankai.db
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://beacon.example:5052", cfg.Beacon.BaseURL)
	require.Equal(t, "ws://geth.example:8546", cfg.Contract.RPCEndpoint)
	require.Equal(t, "/var/lib/bankai/bankai.db", cfg.Store.Path)
	// defaults still applied for fields the file didn't set
	require.Equal(t, 32, cfg.Beacon.HeadEventCapacity)
	require.True(t, cfg.Contract.UseEIP1559)
	require.Equal(t, "batches", cfg.Store.ArtifactsDir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
