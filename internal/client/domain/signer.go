package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

// Signer is the signing capability of the connected identity.
// SignTypedData returns a 65 byte [R || S || V] signature, or
// shared.ErrUserRejected when the user declines.
type Signer interface {
	Identity() shared.Identity
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}
