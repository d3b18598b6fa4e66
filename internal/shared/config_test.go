package shared_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charadev96/ledgerchat/internal/shared"
)

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LEDGERCHAT_DATA_DIR", dir)

	cfg, err := shared.LoadConfig(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "sapphire-localnet", cfg.Network)
	assert.Equal(t, shared.BackendEVM, cfg.Backend)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.FreshnessWindow)
	assert.Equal(t, filepath.Join(dir, "wallet.key"), cfg.KeyFile)
	assert.Equal(t, filepath.Join(dir, "credentials.toml"), cfg.CredentialsFile())
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
network = "sapphire-testnet"
backend = "local"
data_dir = "`+filepath.ToSlash(dir)+`"
poll_interval = "3s"
failure_threshold = 2
`), 0644))

	t.Setenv("LEDGERCHAT_POLL_INTERVAL", "250ms")

	cfg, err := shared.LoadConfig(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "sapphire-testnet", cfg.Network)
	assert.Equal(t, shared.BackendLocal, cfg.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 2, cfg.FailureThreshold)
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	t.Setenv("LEDGERCHAT_DATA_DIR", t.TempDir())
	t.Setenv("LEDGERCHAT_BACKEND", "carrier-pigeon")

	_, err := shared.LoadConfig(context.Background(), "")
	assert.ErrorContains(t, err, "unknown backend")
}

func TestResolveNetwork(t *testing.T) {
	dir := t.TempDir()
	cfg := shared.DefaultConfig()
	cfg.DataDir = dir
	cfg.NetworksFile = filepath.Join(dir, "networks.toml")

	n, err := cfg.ResolveNetwork()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x5afd), n.ChainID)
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), n.Contract)

	cfg.Network = "sapphire"
	_, err = cfg.ResolveNetwork()
	assert.ErrorContains(t, err, "no messaging contract")

	cfg.Backend = shared.BackendLocal
	_, err = cfg.ResolveNetwork()
	assert.NoError(t, err)
}

func TestNetworkRegistry_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.toml")
	contract := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	reg := &shared.NetworkRegistryTOML{FilePath: path}
	require.NoError(t, reg.LoadFile())
	reg.Set("devnet", shared.NetworkInfo{RPC: "http://127.0.0.1:9545", ChainID: 1337, Contract: contract})
	require.NoError(t, reg.SaveFile())

	loaded := &shared.NetworkRegistryTOML{FilePath: path}
	require.NoError(t, loaded.LoadFile())
	n, ok := loaded.Get("devnet")
	require.True(t, ok)
	assert.Equal(t, uint64(1337), n.ChainID)
	assert.Equal(t, contract, n.Contract)

	_, ok = loaded.Get("sapphire-testnet")
	assert.True(t, ok)
	assert.Contains(t, loaded.Names(), "devnet")
}

func TestConfigureLogging(t *testing.T) {
	assert.NoError(t, shared.ConfigureLogging("debug"))
	assert.NoError(t, shared.ConfigureLogging(""))
	assert.Error(t, shared.ConfigureLogging("loud"))
}
