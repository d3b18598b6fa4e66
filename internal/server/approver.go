package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

// PendingAdmitter lists pending requests and admits them without a member
// credential.
type PendingAdmitter interface {
	GetAllGroups(ctx context.Context) ([]shared.Group, error)
	GetAllPendingMemberships(ctx context.Context) ([]shared.PendingMembership, error)
	AdmitPending(ctx context.Context, groupID uint64, member shared.Identity) error
}

// Policy decides whether member satisfies the criteria of g.
type Policy func(ctx context.Context, g shared.Group, member shared.Identity) (bool, error)

// AcceptAll admits every request.
func AcceptAll(context.Context, shared.Group, shared.Identity) (bool, error) {
	return true, nil
}

// Approver periodically admits pending requests that pass Policy.
type Approver struct {
	Ledger   PendingAdmitter
	Policy   Policy
	Interval time.Duration
	Logger   *zerolog.Logger
}

func (a *Approver) Run(ctx context.Context) error {
	logger := log.OrNop(a.Logger)
	interval := a.Interval
	if interval <= 0 {
		interval = 6 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().
		Dur("interval", interval).
		Msg("started approver")
	for {
		if _, err := a.ApproveOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Error().
				Err(err).
				Msg("failed to process pending memberships")
		}
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

// ApproveOnce processes every pending request once and returns the number
// of admitted members.
func (a *Approver) ApproveOnce(ctx context.Context) (int, error) {
	logger := log.OrNop(a.Logger)
	policy := a.Policy
	if policy == nil {
		policy = AcceptAll
	}

	pending, err := a.Ledger.GetAllPendingMemberships(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending memberships: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	groups, err := a.Ledger.GetAllGroups(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get groups: %w", err)
	}
	byID := make(map[uint64]shared.Group, len(groups))
	for _, g := range groups {
		if g.Exists {
			byID[g.ID] = g
		}
	}

	admitted := 0
	var errs []error
	for _, p := range pending {
		g, ok := byID[p.GroupID]
		if !ok {
			continue
		}
		ok, err := policy(ctx, g, p.Member)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to check criteria of group %d: %w", p.GroupID, err))
			continue
		}
		if !ok {
			logger.Debug().
				Uint64("group", p.GroupID).
				Str("member", p.Member.Hex()).
				Msg("criteria not met")
			continue
		}
		if err := a.Ledger.AdmitPending(ctx, p.GroupID, p.Member); err != nil {
			if shared.KindOf(err) == shared.KindConflict || errors.Is(err, shared.ErrNotPendingMember) {
				continue
			}
			errs = append(errs, fmt.Errorf("failed to add member %s to group %d: %w", p.Member.Hex(), p.GroupID, err))
			continue
		}
		admitted++
		logger.Info().
			Uint64("group", p.GroupID).
			Str("member", p.Member.Hex()).
			Msg("added member")
	}
	return admitted, errors.Join(errs...)
}
