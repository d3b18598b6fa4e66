// Package ledgertest provides an in-memory local ledger and signing
// helpers for tests.
package ledgertest

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/charadev96/ledgerchat/internal/server"
	"github.com/charadev96/ledgerchat/internal/server/service"
	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/eip712"
)

var Domain = eip712.Domain{
	Name:              "Messaging.SignIn",
	Version:           "1",
	ChainID:           0x5afd,
	VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
}

// New returns a ledger over a fresh in-memory database closed with t.
func New(t testing.TB) *service.LedgerService {
	t.Helper()
	db, err := server.OpenDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l, err := server.NewLedger(context.Background(), db, server.LedgerConfig{
		Domain:    Domain,
		Freshness: service.DefaultFreshness,
	})
	require.NoError(t, err)
	return l
}

func NewKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func Address(key *ecdsa.PrivateKey) shared.Identity {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// SignIn signs a credential for key issued at at.
func SignIn(t testing.TB, key *ecdsa.PrivateKey, at time.Time) shared.SignIn {
	t.Helper()
	user := Address(key)
	ts := uint32(at.Unix())
	hash, err := eip712.Digest(Domain, user, ts)
	require.NoError(t, err)
	sig, err := crypto.Sign(hash, key)
	require.NoError(t, err)
	rsv, err := eip712.SplitSignature(sig)
	require.NoError(t, err)
	return shared.SignIn{User: user, Time: ts, RSV: rsv}
}
