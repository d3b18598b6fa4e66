// Package clienttest wires client identities against the in-memory ledger
// for tests.
package clienttest

import (
	"crypto/ecdsa"
	"path/filepath"
	"testing"
	"time"

	"github.com/charadev96/ledgerchat/internal/client/repository"
	"github.com/charadev96/ledgerchat/internal/client/session"
	"github.com/charadev96/ledgerchat/internal/client/signin"
	"github.com/charadev96/ledgerchat/internal/client/wallet"
	"github.com/charadev96/ledgerchat/internal/server/ledgertest"
	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

type Account struct {
	Key     *ecdsa.PrivateKey
	Signer  *wallet.KeySigner
	Store   *repository.TOMLCredentialRepository
	Session *session.Manager
}

func (a *Account) ID() shared.Identity {
	return a.Signer.Identity()
}

// NewAccount creates an identity with its own credential file. A nil
// confirm approves every signature.
func NewAccount(t testing.TB, confirm wallet.ConfirmFunc) *Account {
	t.Helper()
	key := ledgertest.NewKey(t)
	signer := &wallet.KeySigner{Key: key, Confirm: confirm}
	store := repository.NewTOMLCredentialRepository(filepath.Join(t.TempDir(), "credentials.toml"))
	return &Account{
		Key:    key,
		Signer: signer,
		Store:  store,
		Session: &session.Manager{
			User:  signer.Identity(),
			Store: store,
			Issuer: &signin.Issuer{
				Signer: signer,
				Domain: ledgertest.Domain,
				Now:    time.Now,
			},
		},
	}
}

// SignIn returns a credential of a for direct ledger calls.
func (a *Account) SignIn(t testing.TB) shared.SignIn {
	return ledgertest.SignIn(t, a.Key, time.Now())
}
