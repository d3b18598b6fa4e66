package channel

import (
	"context"
	"strings"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

// Groups lists the existing groups.
func (r *Resolver) Groups(ctx context.Context) ([]shared.Group, error) {
	all, err := r.Ledger.GetAllGroups(ctx)
	if err != nil {
		return nil, err
	}
	groups := make([]shared.Group, 0, len(all))
	for _, g := range all {
		if g.Exists {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

// MyGroups lists the ids of the groups the authorized identity belongs to.
func (r *Resolver) MyGroups(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := r.Auth.Do(ctx, func(ctx context.Context, auth shared.SignIn) (err error) {
		ids, err = r.Ledger.GetUserGroups(ctx, auth)
		return err
	})
	return ids, err
}

func (r *Resolver) GroupDetails(ctx context.Context, groupID uint64) (shared.GroupDetails, error) {
	return r.Ledger.GetGroupDetails(ctx, groupID)
}

func (r *Resolver) PendingMembers(ctx context.Context, groupID uint64) ([]shared.Identity, error) {
	return r.Ledger.GetPendingMembers(ctx, groupID)
}

func (r *Resolver) CreateGroup(ctx context.Context, g shared.NewGroup) (shared.Receipt, error) {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return shared.Receipt{}, shared.ErrEmptyGroupName
	}
	if g.Criteria.TokenAddress == (shared.Identity{}) {
		return shared.Receipt{}, shared.ErrInvalidTokenAddress
	}
	if g.Criteria.RequiredAmount == nil || g.Criteria.RequiredAmount.Sign() <= 0 {
		return shared.Receipt{}, shared.ErrInvalidRequiredAmount
	}
	var rcpt shared.Receipt
	err := r.Auth.Do(ctx, func(ctx context.Context, auth shared.SignIn) (err error) {
		rcpt, err = r.Ledger.CreateGroup(ctx, auth, g)
		return err
	})
	if err != nil {
		return rcpt, err
	}
	log.OrNop(r.Logger).Info().
		Uint64("group", rcpt.GroupID).
		Str("name", g.Name).
		Msg("group created")
	r.refresh(GroupsKey(), MyGroupsKey(r.self()))
	return rcpt, nil
}

// AddMember approves the pending request of member.
func (r *Resolver) AddMember(ctx context.Context, groupID uint64, member shared.Identity) (shared.Receipt, error) {
	if member == (shared.Identity{}) {
		return shared.Receipt{}, shared.ErrInvalidMemberAddress
	}
	var rcpt shared.Receipt
	err := r.Auth.Do(ctx, func(ctx context.Context, auth shared.SignIn) (err error) {
		rcpt, err = r.Ledger.AddGroupMember(ctx, auth, groupID, member)
		return err
	})
	if err != nil {
		return rcpt, err
	}
	r.refresh(GroupsKey())
	return rcpt, nil
}

// RemoveMember removes a member or rejects a pending request.
func (r *Resolver) RemoveMember(ctx context.Context, groupID uint64, member shared.Identity) (shared.Receipt, error) {
	if member == (shared.Identity{}) {
		return shared.Receipt{}, shared.ErrInvalidMemberAddress
	}
	if member == r.self() {
		return shared.Receipt{}, shared.ErrCannotRemoveSelf
	}
	var rcpt shared.Receipt
	err := r.Auth.Do(ctx, func(ctx context.Context, auth shared.SignIn) (err error) {
		rcpt, err = r.Ledger.RemoveGroupMember(ctx, auth, groupID, member)
		return err
	})
	if err != nil {
		return rcpt, err
	}
	r.refresh(GroupsKey())
	return rcpt, nil
}
