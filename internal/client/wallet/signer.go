// Package wallet provides the local signing capability of a ledger identity.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

type RequestKind int

const (
	RequestSignIn RequestKind = iota
	RequestTransaction
)

func (k RequestKind) String() string {
	if k == RequestTransaction {
		return "transaction"
	}
	return "sign-in"
}

// Request describes what the user is asked to approve.
type Request struct {
	Kind    RequestKind
	Account shared.Identity
	Summary string
}

// ConfirmFunc asks the user to approve a request. Returning false declines.
type ConfirmFunc func(ctx context.Context, req Request) (bool, error)

// KeySigner signs with a local private key. When Confirm is set every
// signature is approved by the user first.
type KeySigner struct {
	Key     *ecdsa.PrivateKey
	Confirm ConfirmFunc
	Logger  *zerolog.Logger
}

func (s *KeySigner) Identity() shared.Identity {
	if s == nil || s.Key == nil {
		return shared.Identity{}
	}
	return crypto.PubkeyToAddress(s.Key.PublicKey)
}

func (s *KeySigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	if s == nil || s.Key == nil {
		return nil, shared.ErrSigningUnavailable
	}
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}

	req := Request{
		Kind:    RequestSignIn,
		Account: s.Identity(),
		Summary: fmt.Sprintf("%s for %s (%v)", data.PrimaryType, data.Domain.Name, data.Message),
	}
	if err := s.confirm(ctx, req); err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(hash, s.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (s *KeySigner) confirm(ctx context.Context, req Request) error {
	if s.Confirm == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := log.OrNop(s.Logger)
	logger.Info().
		Str("kind", req.Kind.String()).
		Str("account", req.Account.Hex()).
		Msg("awaiting user confirmation")

	ok, err := s.Confirm(ctx, req)
	if err != nil {
		if errors.Is(err, shared.ErrUserRejected) {
			return err
		}
		return fmt.Errorf("failed to confirm %s: %w", req.Kind, err)
	}
	if !ok {
		logger.Info().
			Str("kind", req.Kind.String()).
			Msg("declined by user")
		return shared.ErrUserRejected
	}
	return nil
}
