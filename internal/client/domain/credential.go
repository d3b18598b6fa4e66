package domain

import (
	"context"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

// CredentialRepository keeps the last issued credential per identity.
// Load returns shared.ErrNotExist when none was saved or it was deleted.
type CredentialRepository interface {
	Load(id shared.Identity) (shared.SignIn, error)
	Save(id shared.Identity, cred shared.SignIn) error
	Delete(id shared.Identity) error
}

// NameRepository keeps cosmetic, unauthenticated display names.
type NameRepository interface {
	Get(id shared.Identity) (string, error)
	Set(id shared.Identity, name string) error
	Delete(id shared.Identity) error
}

// Authorizer runs ledger calls on behalf of the active identity with its
// credential, re-issuing the credential when the ledger rejects it.
type Authorizer interface {
	Identity() shared.Identity
	Do(ctx context.Context, fn func(ctx context.Context, auth shared.SignIn) error) error
}
