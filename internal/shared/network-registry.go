package shared

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

const (
	permRegistry = 0644
)

type NetworkInfo struct {
	RPC      string         `toml:"rpc"`
	ChainID  uint64         `toml:"chain_id"`
	Contract common.Address `toml:"contract"`
}

type networkTable struct {
	Networks map[string]*NetworkInfo `toml:"networks"`
}

// NetworkRegistryTOML maps network names to ledger deployments. Entries read
// from FilePath override the built-in ones.
type NetworkRegistryTOML struct {
	FilePath string

	table networkTable
}

func DefaultNetworks() map[string]*NetworkInfo {
	return map[string]*NetworkInfo{
		"sapphire": {
			RPC:     "https://sapphire.oasis.io",
			ChainID: 0x5afe,
		},
		"sapphire-testnet": {
			RPC:     "https://testnet.sapphire.oasis.io",
			ChainID: 0x5aff,
		},
		"sapphire-localnet": {
			RPC:      "http://localhost:8545",
			ChainID:  0x5afd,
			Contract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		},
	}
}

func (r *NetworkRegistryTOML) Get(name string) (*NetworkInfo, bool) {
	if r.table.Networks == nil {
		r.table.Networks = DefaultNetworks()
	}
	n, ok := r.table.Networks[name]
	return n, ok
}

func (r *NetworkRegistryTOML) Set(name string, info NetworkInfo) {
	if r.table.Networks == nil {
		r.table.Networks = DefaultNetworks()
	}
	r.table.Networks[name] = &info
}

func (r *NetworkRegistryTOML) Names() []string {
	if r.table.Networks == nil {
		r.table.Networks = DefaultNetworks()
	}
	names := make([]string, 0, len(r.table.Networks))
	for name := range r.table.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile merges the registry file over the built-in networks. A missing
// file is not an error.
func (r *NetworkRegistryTOML) LoadFile() error {
	r.table.Networks = DefaultNetworks()
	var file networkTable
	_, err := toml.DecodeFile(r.FilePath, &file)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load network registry: %w", err)
	}
	for name, info := range file.Networks {
		r.table.Networks[name] = info
	}
	return nil
}

func (r *NetworkRegistryTOML) SaveFile() error {
	file, err := os.OpenFile(r.FilePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, permRegistry)
	if err != nil {
		return fmt.Errorf("failed to save network registry: %w", err)
	}
	defer file.Close()
	enc := toml.NewEncoder(file)
	enc.Indent = ""
	return enc.Encode(r.table)
}
