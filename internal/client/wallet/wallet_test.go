package wallet

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/eip712"
)

var testDomain = eip712.Domain{
	Name:              "Messaging.SignIn",
	Version:           "1",
	ChainID:           0x5afd,
	VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
}

func TestEnsureSigningKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "wallet.key")

	created, err := EnsureSigningKey(path, nil)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := EnsureSigningKey(path, nil)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(created.PublicKey), crypto.PubkeyToAddress(loaded.PublicKey))
}

func TestEnsureSigningKeyCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.key")
	require.NoError(t, os.WriteFile(path, []byte("not a key"), 0600))

	_, err := EnsureSigningKey(path, nil)
	require.Error(t, err)
}

func TestKeySignerSignsRecoverableCredential(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := &KeySigner{Key: key}

	sig, err := s.SignTypedData(context.Background(), testDomain.TypedData(s.Identity(), 1700000000))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	rsv, err := eip712.SplitSignature(sig)
	require.NoError(t, err)
	auth := shared.SignIn{User: s.Identity(), Time: 1700000000, RSV: rsv}
	assert.True(t, eip712.Verify(testDomain, auth))
}

func TestKeySignerDeclined(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	var asked Request
	s := &KeySigner{
		Key: key,
		Confirm: func(_ context.Context, req Request) (bool, error) {
			asked = req
			return false, nil
		},
	}

	_, err = s.SignTypedData(context.Background(), testDomain.TypedData(s.Identity(), 1))
	require.ErrorIs(t, err, shared.ErrUserRejected)
	assert.Equal(t, RequestSignIn, asked.Kind)
	assert.Equal(t, s.Identity(), asked.Account)
}

func TestKeySignerConfirmFailure(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	boom := errors.New("no terminal")
	s := &KeySigner{
		Key: key,
		Confirm: func(context.Context, Request) (bool, error) {
			return false, boom
		},
	}

	_, err = s.SignTypedData(context.Background(), testDomain.TypedData(s.Identity(), 1))
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, shared.ErrUserRejected)
}

func TestNilSignerUnavailable(t *testing.T) {
	var s *KeySigner
	assert.Equal(t, shared.Identity{}, s.Identity())

	_, err := s.SignTypedData(context.Background(), testDomain.TypedData(shared.Identity{}, 1))
	require.ErrorIs(t, err, shared.ErrSigningUnavailable)

	_, err = s.Transactor(context.Background(), 1)
	require.ErrorIs(t, err, shared.ErrSigningUnavailable)
}

func TestTransactorConfirmsBeforeSigning(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	confirmed := 0
	approve := true
	s := &KeySigner{
		Key: key,
		Confirm: func(_ context.Context, req Request) (bool, error) {
			confirmed++
			assert.Equal(t, RequestTransaction, req.Kind)
			return approve, nil
		},
	}

	opts, err := s.Transactor(context.Background(), 0x5afd)
	require.NoError(t, err)
	assert.Equal(t, s.Identity(), opts.From)

	to := testDomain.VerifyingContract
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Gas: 21000})

	signed, err := opts.Signer(opts.From, tx)
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)
	sender, err := types.Sender(types.LatestSignerForChainID(signed.ChainId()), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Identity(), sender)

	approve = false
	_, err = opts.Signer(opts.From, tx)
	require.ErrorIs(t, err, shared.ErrUserRejected)
	assert.Equal(t, 2, confirmed)
}
