// Package session keeps the active identity's credential available to the
// rest of the client, issuing and re-issuing it as the ledger demands.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	client "github.com/charadev96/ledgerchat/internal/client/domain"
	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

type Issuer interface {
	Issue(ctx context.Context) (shared.SignIn, error)
}

type Manager struct {
	User   shared.Identity
	Store  client.CredentialRepository
	Issuer Issuer
	Logger *zerolog.Logger

	mu       sync.Mutex
	declined bool
	issuing  singleflight.Group
}

func (m *Manager) Identity() shared.Identity {
	return m.User
}

// Credential returns the stored credential, issuing one when none is stored.
// After the user declined, no new prompt is made until SignIn is called.
func (m *Manager) Credential(ctx context.Context) (shared.SignIn, error) {
	if m.User == (shared.Identity{}) {
		return shared.SignIn{}, shared.ErrSigningUnavailable
	}
	cred, err := m.Store.Load(m.User)
	if err == nil {
		return cred, nil
	}
	if !errors.Is(err, shared.ErrNotExist) {
		return cred, fmt.Errorf("failed to load credential: %w", err)
	}

	m.mu.Lock()
	declined := m.declined
	m.mu.Unlock()
	if declined {
		return shared.SignIn{}, shared.ErrUserRejected
	}
	return m.issue(ctx)
}

// SignIn issues and stores a fresh credential, replacing any stored one.
func (m *Manager) SignIn(ctx context.Context) (shared.SignIn, error) {
	if m.User == (shared.Identity{}) {
		return shared.SignIn{}, shared.ErrSigningUnavailable
	}
	m.mu.Lock()
	m.declined = false
	m.mu.Unlock()
	return m.issue(ctx)
}

// SignOut clears the stored credential of the identity.
func (m *Manager) SignOut() error {
	m.mu.Lock()
	m.declined = false
	m.mu.Unlock()
	if err := m.Store.Delete(m.User); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	log.OrNop(m.Logger).Info().
		Str("user", m.User.Hex()).
		Msg("signed out")
	return nil
}

// Declined reports whether the last signing prompt was declined.
func (m *Manager) Declined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.declined
}

// Do runs fn with the credential. When the ledger rejects the credential it
// is discarded and fn is retried once with a freshly issued one.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context, auth shared.SignIn) error) error {
	logger := log.OrNop(m.Logger)
	return retry.Do(
		func() error {
			cred, err := m.Credential(ctx)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			err = fn(ctx, cred)
			if shared.IsCredentialError(err) {
				if derr := m.discard(cred); derr != nil {
					return retry.Unrecoverable(errors.Join(err, derr))
				}
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && shared.IsCredentialError(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Info().
				Err(err).
				Str("user", m.User.Hex()).
				Msg("credential rejected, signing in again")
		}),
	)
}

func (m *Manager) issue(ctx context.Context) (shared.SignIn, error) {
	key := shared.IdentityKey(m.User)
	// The flight outlives any single caller; each caller waits on its own ctx.
	flight := context.WithoutCancel(ctx)
	ch := m.issuing.DoChan(key, func() (any, error) {
		cred, err := m.Issuer.Issue(flight)
		if err != nil {
			if errors.Is(err, shared.ErrUserRejected) {
				m.mu.Lock()
				m.declined = true
				m.mu.Unlock()
			}
			return shared.SignIn{}, err
		}
		if cred.User != m.User {
			return shared.SignIn{}, fmt.Errorf("issued credential for %s, expected %s", cred.User.Hex(), m.User.Hex())
		}
		if err := m.Store.Save(m.User, cred); err != nil {
			return shared.SignIn{}, fmt.Errorf("failed to store credential: %w", err)
		}
		return cred, nil
	})
	select {
	case <-ctx.Done():
		return shared.SignIn{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return shared.SignIn{}, res.Err
		}
		return res.Val.(shared.SignIn), nil
	}
}

// discard deletes the stored credential unless it was already replaced.
func (m *Manager) discard(cred shared.SignIn) error {
	stored, err := m.Store.Load(m.User)
	if errors.Is(err, shared.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if stored != cred {
		return nil
	}
	return m.Store.Delete(m.User)
}
