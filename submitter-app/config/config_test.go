package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const minimalYAML = `
network:
  rpc_url: "http://127.0.0.1:8545"
  chain_id: 31337
contracts:
  bridge: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "sqlite://file::memory:?cache=shared")
	t.Setenv("SUBMITTER_PRIVATE_KEY", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setSecrets(t)

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	require.Equal(t, "calldata", cfg.DA.Mode)
	require.Equal(t, "standard", cfg.Fees.Policy)
	require.Equal(t, uint32(5), cfg.Resilience.MaxRetries)
	require.Equal(t, uint64(1), cfg.Resilience.Confirmations)
	require.Equal(t, 5*time.Second, cfg.TickInterval())
	require.Equal(t, 30*time.Second, cfg.ShutdownGrace())
	require.Equal(t, ":8081", cfg.API.ListenAddr)
	require.Equal(t, "info", cfg.Log.Level)
	require.True(t, cfg.Metrics.Enabled)
}

func TestLoadReadsFileValues(t *testing.T) {
	setSecrets(t)

	cfg, err := Load(writeConfig(t, minimalYAML+`
da:
  mode: blob
  blob_binding: mock
  blob_index: 2
  archiver_url: "http://archiver:9000"
prover:
  url: "http://prover:3000"
fees:
  policy: fixed
  fixed_tip_gwei: 7
orchestrator:
  tick_ms: 250
  max_concurrency: 2
`))
	require.NoError(t, err)

	require.Equal(t, "blob", cfg.DA.Mode)
	require.Equal(t, "mock", cfg.DA.BlobBinding)
	require.Equal(t, uint8(2), cfg.DA.BlobIndex)
	require.Equal(t, "http://archiver:9000", cfg.DA.ArchiverURL)
	require.Equal(t, "http://prover:3000", cfg.Prover.URL)
	require.Equal(t, "fixed", cfg.Fees.Policy)
	require.Equal(t, uint64(7), cfg.Fees.FixedTipGwei)
	require.Equal(t, 250*time.Millisecond, cfg.TickInterval())
	require.Equal(t, 2, cfg.Orchestrator.MaxConcurrency)
}

func TestLoadReadsSecretsFromEnv(t *testing.T) {
	setSecrets(t)

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	require.Equal(t, "sqlite://file::memory:?cache=shared", cfg.DatabaseURL)
	require.NotEmpty(t, cfg.PrivateKey)
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SUBMITTER_PRIVATE_KEY", "")

	_, err := Load(writeConfig(t, minimalYAML))
	require.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "sqlite://file::memory:")
	_, err = Load(writeConfig(t, minimalYAML))
	require.ErrorContains(t, err, "SUBMITTER_PRIVATE_KEY")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	setSecrets(t)

	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing rpc url", `
network:
  chain_id: 1
contracts:
  bridge: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
`, "network.rpc_url"},
		{"zero chain id", `
network:
  rpc_url: "http://127.0.0.1:8545"
contracts:
  bridge: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
`, "network.chain_id"},
		{"bad bridge address", `
network:
  rpc_url: "http://127.0.0.1:8545"
  chain_id: 1
contracts:
  bridge: "not-an-address"
`, "contracts.bridge"},
		{"bad da mode", minimalYAML + `
da:
  mode: carrier-pigeon
`, "da.mode"},
		{"bad blob binding", minimalYAML + `
da:
  blob_binding: magic
`, "da.blob_binding"},
		{"bad fee policy", minimalYAML + `
fees:
  policy: yolo
`, "fees.policy"},
		{"zero tick", minimalYAML + `
orchestrator:
  tick_ms: 0
`, "orchestrator.tick_ms"},
		{"seed without root", minimalYAML + `
batch:
  data_file: /tmp/batch.bin
`, "batch.new_root"},
		{"seed with short root", minimalYAML + `
batch:
  data_file: /tmp/batch.bin
  new_root: "0x1234"
`, "batch.new_root"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoadAcceptsSeedBlock(t *testing.T) {
	setSecrets(t)

	cfg, err := Load(writeConfig(t, minimalYAML+`
batch:
  data_file: /tmp/batch.bin
  new_root: "0x1111111111111111111111111111111111111111111111111111111111111111"
`))
	require.NoError(t, err)
	require.True(t, cfg.Batch.Enabled())
}

func TestDefaultConfigRoundTripsThroughYAML(t *testing.T) {
	setSecrets(t)

	cfg := Default()
	cfg.Network.RPCURL = "http://127.0.0.1:8545"
	cfg.Network.ChainID = 31337
	cfg.Contracts.Bridge = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

	raw, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	loaded, err := Load(writeConfig(t, string(raw)))
	require.NoError(t, err)
	require.Equal(t, cfg.Network, loaded.Network)
	require.Equal(t, cfg.DA, loaded.DA)
	require.Equal(t, cfg.Fees, loaded.Fees)
	require.Equal(t, cfg.Orchestrator, loaded.Orchestrator)
}

func TestLoadMissingFileFails(t *testing.T) {
	setSecrets(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
