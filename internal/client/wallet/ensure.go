package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/charadev96/ledgerchat/internal/shared/log"
)

const (
	permKeyDir = 0700
)

// EnsureSigningKey loads the secp256k1 key at keyPath, creating one when the
// file does not exist. The key is stored hex encoded with mode 0600.
func EnsureSigningKey(keyPath string, logger *zerolog.Logger) (*ecdsa.PrivateKey, error) {
	logger = log.OrNop(logger)

	var key *ecdsa.PrivateKey
	if _, err := os.Stat(keyPath); errors.Is(err, os.ErrNotExist) {
		logger.Warn().
			Str("file", keyPath).
			Msg("signing key does not exist")
		key, err = generateKeyFile(keyPath)
		if err != nil {
			return nil, err
		}
		logger.Info().
			Str("file", keyPath).
			Msg("created new signing key")
	} else if err != nil {
		return nil, fmt.Errorf("failed to retrieve signing key: %w", err)
	} else {
		key, err = loadKeyFile(keyPath)
		if err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("file", keyPath).
		Str("address", crypto.PubkeyToAddress(key.PublicKey).Hex()).
		Msg("parsed signing key")

	return key, nil
}

func generateKeyFile(keyPath string) (*ecdsa.PrivateKey, error) {
	if err := os.MkdirAll(filepath.Dir(keyPath), permKeyDir); err != nil {
		return nil, fmt.Errorf("failed to create signing key directory: %w", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	if err := crypto.SaveECDSA(keyPath, key); err != nil {
		return nil, fmt.Errorf("failed to write signing key to disk: %w", err)
	}
	return key, nil
}

func loadKeyFile(keyPath string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.LoadECDSA(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return key, nil
}
