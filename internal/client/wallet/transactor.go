package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

// Transactor returns options that sign transactions for chainID with the
// signer's key, after confirmation.
func (s *KeySigner) Transactor(ctx context.Context, chainID uint64) (*bind.TransactOpts, error) {
	if s == nil || s.Key == nil {
		return nil, shared.ErrSigningUnavailable
	}
	opts, err := bind.NewKeyedTransactorWithChainID(s.Key, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	sign := opts.Signer
	opts.Signer = func(from common.Address, tx *types.Transaction) (*types.Transaction, error) {
		req := Request{
			Kind:    RequestTransaction,
			Account: from,
			Summary: describeTx(tx),
		}
		if err := s.confirm(ctx, req); err != nil {
			return nil, err
		}
		return sign(from, tx)
	}
	opts.Context = ctx
	return opts, nil
}

func describeTx(tx *types.Transaction) string {
	to := "contract creation"
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	return fmt.Sprintf(
		"call %s, gas %s, nonce %d",
		to, humanize.Comma(int64(tx.Gas())), tx.Nonce(),
	)
}
