package domain

import (
	"context"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

type MembershipState int

const (
	StatePending MembershipState = iota + 1
	StateMember
)

func (s MembershipState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateMember:
		return "member"
	default:
		return "none"
	}
}

// Membership relates an identity to a group. An identity has at most one
// membership per group, so it is never pending and member at once.
type Membership struct {
	GroupID uint64
	Member  shared.Identity
	State   MembershipState
}

type MembershipRepository interface {
	Get(ctx context.Context, groupID uint64, id shared.Identity) (Membership, error)
	Save(ctx context.Context, m Membership) error
	Delete(ctx context.Context, groupID uint64, id shared.Identity) error
	ListByGroup(ctx context.Context, groupID uint64, state MembershipState) ([]shared.Identity, error)
	ListByMember(ctx context.Context, id shared.Identity, state MembershipState) ([]uint64, error)
	List(ctx context.Context, state MembershipState) ([]Membership, error)
}
