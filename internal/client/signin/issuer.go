// Package signin issues SignIn credentials for the connected identity.
package signin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	client "github.com/charadev96/ledgerchat/internal/client/domain"
	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/eip712"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

type Issuer struct {
	Signer client.Signer
	Domain eip712.Domain
	Now    func() time.Time
	Logger *zerolog.Logger
}

// Issue asks the signer for a fresh credential. It has no persistence side
// effect.
func (i *Issuer) Issue(ctx context.Context) (shared.SignIn, error) {
	cred := shared.SignIn{}
	if i.Signer == nil {
		return cred, shared.ErrSigningUnavailable
	}
	logger := log.OrNop(i.Logger)

	now := time.Now
	if i.Now != nil {
		now = i.Now
	}
	unix := now().Unix()
	if unix < 0 || unix > math.MaxUint32 {
		return cred, fmt.Errorf("clock out of range for sign-in time: %d", unix)
	}

	user := i.Signer.Identity()
	if user == (shared.Identity{}) {
		return cred, shared.ErrSigningUnavailable
	}
	cred.User = user
	cred.Time = uint32(unix)

	logger.Info().
		Str("user", user.Hex()).
		Uint32("time", cred.Time).
		Msg("requesting sign-in signature")

	sig, err := i.Signer.SignTypedData(ctx, i.Domain.TypedData(cred.User, cred.Time))
	if err != nil {
		if errors.Is(err, shared.ErrUserRejected) {
			logger.Info().
				Str("user", user.Hex()).
				Msg("sign-in declined")
			return shared.SignIn{}, err
		}
		if errors.Is(err, shared.ErrSigningUnavailable) {
			return shared.SignIn{}, err
		}
		return shared.SignIn{}, fmt.Errorf("failed to sign credential: %w", err)
	}
	rsv, err := eip712.SplitSignature(sig)
	if err != nil {
		return shared.SignIn{}, fmt.Errorf("failed to sign credential: %w", err)
	}
	cred.RSV = rsv

	logger.Info().
		Str("user", user.Hex()).
		Msg("issued sign-in credential")

	return cred, nil
}
