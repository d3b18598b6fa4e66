// Package access derives the membership state of an identity in a group and
// requests access for it.
package access

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	client "github.com/charadev96/ledgerchat/internal/client/domain"
	"github.com/charadev96/ledgerchat/internal/client/poller"
	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

type State int

const (
	StateUnknown State = iota
	StateNotMember
	StatePending
	StateMember
)

func (s State) String() string {
	switch s {
	case StateNotMember:
		return "not a member"
	case StatePending:
		return "pending"
	case StateMember:
		return "member"
	default:
		return "unknown"
	}
}

// Derive is the only place membership and pending flags become a state.
// Membership wins when the ledger reports both.
func Derive(isMember, isPending bool) State {
	switch {
	case isMember:
		return StateMember
	case isPending:
		return StatePending
	default:
		return StateNotMember
	}
}

// Status is the gate state as seen through the poll cache. Loaded is false
// until both queries completed at least once.
type Status struct {
	Loaded  bool
	Member  bool
	Pending bool
}

func (s Status) State() State {
	if !s.Loaded {
		return StateUnknown
	}
	return Derive(s.Member, s.Pending)
}

const (
	OpMembership = "isGroupMember"
	OpPending    = "isPendingMember"
)

type Gate struct {
	Ledger shared.Ledger
	Auth   client.Authorizer
	Poller *poller.Poller
	Logger *zerolog.Logger
}

func (g *Gate) QueryMembership(ctx context.Context, groupID uint64, id shared.Identity) (bool, error) {
	return g.Ledger.IsGroupMember(ctx, groupID, id)
}

func (g *Gate) QueryPending(ctx context.Context, groupID uint64, id shared.Identity) (bool, error) {
	return g.Ledger.IsPendingMember(ctx, groupID, id)
}

// State queries membership and pending state concurrently.
func (g *Gate) State(ctx context.Context, groupID uint64, id shared.Identity) (State, error) {
	var isMember, isPending bool
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		isMember, err = g.QueryMembership(ctx, groupID, id)
		return err
	})
	eg.Go(func() (err error) {
		isPending, err = g.QueryPending(ctx, groupID, id)
		return err
	})
	if err := eg.Wait(); err != nil {
		return StateUnknown, err
	}
	g.checkInvariant(groupID, id, isMember, isPending)
	return Derive(isMember, isPending), nil
}

// RequestAccess asks to join the group as the authorized identity.
// AlreadyPending and AlreadyGroupMember are returned as is; the gate's
// polled state is refreshed in every case.
func (g *Gate) RequestAccess(ctx context.Context, groupID uint64) (shared.Receipt, error) {
	var rcpt shared.Receipt
	err := g.Auth.Do(ctx, func(ctx context.Context, auth shared.SignIn) (err error) {
		rcpt, err = g.Ledger.RequestToJoinGroup(ctx, auth, groupID)
		return err
	})
	if err == nil || shared.KindOf(err) == shared.KindConflict {
		g.Refresh(groupID, g.Auth.Identity())
	}
	if err != nil && shared.KindOf(err) == shared.KindConflict {
		log.OrNop(g.Logger).Info().
			Err(err).
			Uint64("group", groupID).
			Msg("access already requested")
	}
	return rcpt, err
}

// Keys returns the poll keys of the membership and pending queries.
func Keys(groupID uint64, id shared.Identity) (membership, pending poller.Key) {
	ch := client.GroupChannel(groupID).Key()
	return poller.Key{Op: OpMembership, Channel: ch, Identity: id},
		poller.Key{Op: OpPending, Channel: ch, Identity: id}
}

// Watch polls both queries of (groupID, id) until cancel is called.
func (g *Gate) Watch(ctx context.Context, groupID uint64, id shared.Identity) (cancel func()) {
	mk, pk := Keys(groupID, id)
	cm := g.Poller.Subscribe(ctx, mk, func(ctx context.Context) (any, error) {
		return g.QueryMembership(ctx, groupID, id)
	})
	cp := g.Poller.Subscribe(ctx, pk, func(ctx context.Context) (any, error) {
		return g.QueryPending(ctx, groupID, id)
	})
	return func() {
		cm()
		cp()
	}
}

// Status reads the polled state of (groupID, id).
func (g *Gate) Status(groupID uint64, id shared.Identity) Status {
	mk, pk := Keys(groupID, id)
	isMember, okm := poller.Value[bool](g.Poller, mk)
	isPending, okp := poller.Value[bool](g.Poller, pk)
	if okm && okp {
		g.checkInvariant(groupID, id, isMember, isPending)
	}
	return Status{
		Loaded:  okm && okp,
		Member:  isMember,
		Pending: isPending,
	}
}

func (g *Gate) Refresh(groupID uint64, id shared.Identity) {
	if g.Poller == nil {
		return
	}
	mk, pk := Keys(groupID, id)
	g.Poller.Refresh(mk)
	g.Poller.Refresh(pk)
}

func (g *Gate) checkInvariant(groupID uint64, id shared.Identity, isMember, isPending bool) {
	if isMember && isPending {
		log.OrNop(g.Logger).Warn().
			Uint64("group", groupID).
			Str("user", id.Hex()).
			Msg("ledger reports identity as both member and pending")
	}
}
