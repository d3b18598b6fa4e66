package shared

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sethvargo/go-envconfig"

	"github.com/charadev96/ledgerchat/internal/shared/eip712"
)

const (
	BackendEVM   = "evm"
	BackendLocal = "local"
)

type Config struct {
	Network      string `toml:"network" env:"LEDGERCHAT_NETWORK, overwrite"`
	Backend      string `toml:"backend" env:"LEDGERCHAT_BACKEND, overwrite"`
	RPC          string `toml:"rpc" env:"LEDGERCHAT_RPC, overwrite"`
	DataDir      string `toml:"data_dir" env:"LEDGERCHAT_DATA_DIR, overwrite"`
	KeyFile      string `toml:"key_file" env:"LEDGERCHAT_KEY_FILE, overwrite"`
	LedgerDB     string `toml:"ledger_db" env:"LEDGERCHAT_LEDGER_DB, overwrite"`
	NetworksFile string `toml:"networks_file" env:"LEDGERCHAT_NETWORKS_FILE, overwrite"`

	PollInterval     time.Duration `toml:"poll_interval" env:"LEDGERCHAT_POLL_INTERVAL, overwrite"`
	FailureThreshold int           `toml:"failure_threshold" env:"LEDGERCHAT_FAILURE_THRESHOLD, overwrite"`
	FreshnessWindow  time.Duration `toml:"freshness_window" env:"LEDGERCHAT_FRESHNESS_WINDOW, overwrite"`
	ApproveInterval  time.Duration `toml:"approve_interval" env:"LEDGERCHAT_APPROVE_INTERVAL, overwrite"`

	SignInDomainName    string `toml:"signin_domain_name" env:"LEDGERCHAT_SIGNIN_DOMAIN_NAME, overwrite"`
	SignInDomainVersion string `toml:"signin_domain_version" env:"LEDGERCHAT_SIGNIN_DOMAIN_VERSION, overwrite"`

	LogLevel string `toml:"log_level" env:"LEDGERCHAT_LOG_LEVEL, overwrite"`
}

func DefaultConfig() Config {
	dataDir := ".ledgerchat"
	if dir, err := os.UserConfigDir(); err == nil {
		dataDir = filepath.Join(dir, "ledgerchat")
	}
	return Config{
		Network:             "sapphire-localnet",
		Backend:             BackendEVM,
		DataDir:             dataDir,
		PollInterval:        time.Second,
		FailureThreshold:    5,
		FreshnessWindow:     24 * time.Hour,
		ApproveInterval:     6 * time.Second,
		SignInDomainName:    "Messaging.SignIn",
		SignInDomainVersion: "1",
		LogLevel:            "info",
	}
}

// LoadConfig layers the TOML file at path (optional) and LEDGERCHAT_*
// environment variables over the defaults.
func LoadConfig(ctx context.Context, path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.KeyFile == "" {
		cfg.KeyFile = filepath.Join(cfg.DataDir, "wallet.key")
	}
	if cfg.LedgerDB == "" {
		cfg.LedgerDB = filepath.Join(cfg.DataDir, "ledger.db")
	}
	if cfg.NetworksFile == "" {
		cfg.NetworksFile = filepath.Join(cfg.DataDir, "networks.toml")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Backend != BackendEVM && c.Backend != BackendLocal {
		errs = append(errs, fmt.Errorf("unknown backend %q, must be %q or %q", c.Backend, BackendEVM, BackendLocal))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive"))
	}
	if c.FailureThreshold <= 0 {
		errs = append(errs, fmt.Errorf("failure threshold must be positive"))
	}
	if c.FreshnessWindow <= 0 {
		errs = append(errs, fmt.Errorf("freshness window must be positive"))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("data directory is required"))
	}
	return errors.Join(errs...)
}

func (c Config) CredentialsFile() string {
	return filepath.Join(c.DataDir, "credentials.toml")
}

func (c Config) NamesFile() string {
	return filepath.Join(c.DataDir, "names.toml")
}

// ResolveNetwork looks up the configured network and applies the RPC override.
func (c Config) ResolveNetwork() (NetworkInfo, error) {
	reg := &NetworkRegistryTOML{FilePath: c.NetworksFile}
	if err := reg.LoadFile(); err != nil {
		return NetworkInfo{}, err
	}
	info, ok := reg.Get(c.Network)
	if !ok {
		return NetworkInfo{}, fmt.Errorf("unknown network %q", c.Network)
	}
	n := *info
	if c.RPC != "" {
		n.RPC = c.RPC
	}
	if c.Backend == BackendEVM && n.Contract == (common.Address{}) {
		return n, fmt.Errorf("network %q has no messaging contract address", c.Network)
	}
	return n, nil
}

func (c Config) SignInDomain(n NetworkInfo) eip712.Domain {
	return eip712.Domain{
		Name:              c.SignInDomainName,
		Version:           c.SignInDomainVersion,
		ChainID:           n.ChainID,
		VerifyingContract: n.Contract,
	}
}
