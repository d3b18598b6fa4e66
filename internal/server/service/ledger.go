// Package service implements the messaging ledger over local repositories.
package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	server "github.com/charadev96/ledgerchat/internal/server/domain"
	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/eip712"
	"github.com/charadev96/ledgerchat/internal/shared/log"
)

const DefaultFreshness = 24 * time.Hour

// LedgerService stores groups, memberships and messages and authorizes
// calls with SignIn credentials bound to Domain.
type LedgerService struct {
	Domain      eip712.Domain
	Freshness   time.Duration
	Groups      server.GroupRepository
	Memberships server.MembershipRepository
	Messages    server.MessageRepository
	TXRunner    shared.TransactionRunner
	Now         func() time.Time
	Logger      *zerolog.Logger
}

var _ shared.Ledger = (*LedgerService)(nil)

func (s *LedgerService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// authenticate returns the identity proven by auth.
func (s *LedgerService) authenticate(auth shared.SignIn) (shared.Identity, error) {
	freshness := s.Freshness
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	if auth.IssuedAt().Add(freshness).Before(s.now()) {
		return shared.Identity{}, shared.ErrSignInExpired
	}
	if auth.User == (shared.Identity{}) || !eip712.Verify(s.Domain, auth) {
		return shared.Identity{}, shared.ErrInvalidSignIn
	}
	return auth.User, nil
}

func (s *LedgerService) group(ctx context.Context, id uint64) (server.GroupRecord, error) {
	g, err := s.Groups.GetByID(ctx, id)
	if errors.Is(err, shared.ErrNotExist) {
		return g, shared.ErrGroupDoesNotExist
	}
	return g, err
}

func (s *LedgerService) state(ctx context.Context, groupID uint64, id shared.Identity) (server.MembershipState, error) {
	m, err := s.Memberships.Get(ctx, groupID, id)
	if errors.Is(err, shared.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return m.State, nil
}

func (s *LedgerService) requireMember(ctx context.Context, groupID uint64, id shared.Identity) error {
	st, err := s.state(ctx, groupID, id)
	if err != nil {
		return err
	}
	if st != server.StateMember {
		return shared.ErrNotGroupMember
	}
	return nil
}

func newReceipt() shared.Receipt {
	id := uuid.New()
	return shared.Receipt{TxHash: common.BytesToHash(id[:])}
}

func (s *LedgerService) IsGroupMember(ctx context.Context, groupID uint64, user shared.Identity) (bool, error) {
	st, err := s.state(ctx, groupID, user)
	return st == server.StateMember, err
}

func (s *LedgerService) IsPendingMember(ctx context.Context, groupID uint64, user shared.Identity) (bool, error) {
	st, err := s.state(ctx, groupID, user)
	return st == server.StatePending, err
}

func (s *LedgerService) GetAllGroups(ctx context.Context) ([]shared.Group, error) {
	records, err := s.Groups.List(ctx)
	if err != nil {
		return nil, err
	}
	groups := make([]shared.Group, 0, len(records))
	for _, g := range records {
		members, err := s.Memberships.ListByGroup(ctx, g.ID, server.StateMember)
		if err != nil {
			return nil, err
		}
		groups = append(groups, shared.Group{
			ID:       g.ID,
			Name:     g.Name,
			Members:  members,
			Criteria: g.Criteria(),
			Exists:   true,
		})
	}
	return groups, nil
}

func (s *LedgerService) GetGroupDetails(ctx context.Context, groupID uint64) (shared.GroupDetails, error) {
	g, err := s.group(ctx, groupID)
	if err != nil {
		return shared.GroupDetails{}, err
	}
	members, err := s.Memberships.ListByGroup(ctx, groupID, server.StateMember)
	if err != nil {
		return shared.GroupDetails{}, err
	}
	return shared.GroupDetails{Name: g.Name, Members: members}, nil
}

func (s *LedgerService) GetPendingMembers(ctx context.Context, groupID uint64) ([]shared.Identity, error) {
	if _, err := s.group(ctx, groupID); err != nil {
		return nil, err
	}
	return s.Memberships.ListByGroup(ctx, groupID, server.StatePending)
}

func (s *LedgerService) GetAllPendingMemberships(ctx context.Context) ([]shared.PendingMembership, error) {
	ms, err := s.Memberships.List(ctx, server.StatePending)
	if err != nil {
		return nil, err
	}
	pending := make([]shared.PendingMembership, 0, len(ms))
	for _, m := range ms {
		pending = append(pending, shared.PendingMembership{GroupID: m.GroupID, Member: m.Member})
	}
	return pending, nil
}

func (s *LedgerService) GetUserGroupsByAddress(ctx context.Context, user shared.Identity) ([]uint64, error) {
	return s.Memberships.ListByMember(ctx, user, server.StateMember)
}

func (s *LedgerService) GetDirectMessageContacts(ctx context.Context, auth shared.SignIn) ([]shared.Identity, error) {
	user, err := s.authenticate(auth)
	if err != nil {
		return nil, err
	}
	return s.Messages.Contacts(ctx, user)
}

func (s *LedgerService) GetDirectMessages(ctx context.Context, auth shared.SignIn, other shared.Identity) ([]shared.Message, error) {
	user, err := s.authenticate(auth)
	if err != nil {
		return nil, err
	}
	records, err := s.Messages.ListDirect(ctx, user, other)
	if err != nil {
		return nil, err
	}
	return toMessages(records), nil
}

func (s *LedgerService) GetGroupMessages(ctx context.Context, auth shared.SignIn, groupID uint64) ([]shared.Message, error) {
	user, err := s.authenticate(auth)
	if err != nil {
		return nil, err
	}
	if _, err := s.group(ctx, groupID); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, groupID, user); err != nil {
		return nil, err
	}
	records, err := s.Messages.ListGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return toMessages(records), nil
}

func (s *LedgerService) GetUserGroups(ctx context.Context, auth shared.SignIn) ([]uint64, error) {
	user, err := s.authenticate(auth)
	if err != nil {
		return nil, err
	}
	return s.Memberships.ListByMember(ctx, user, server.StateMember)
}

func (s *LedgerService) CreateGroup(ctx context.Context, auth shared.SignIn, g shared.NewGroup) (shared.Receipt, error) {
	user, err := s.authenticate(auth)
	if err != nil {
		return shared.Receipt{}, err
	}
	if strings.TrimSpace(g.Name) == "" {
		return shared.Receipt{}, shared.ErrEmptyGroupName
	}
	if g.Criteria.TokenAddress == (shared.Identity{}) {
		return shared.Receipt{}, shared.ErrInvalidTokenAddress
	}
	if g.Criteria.RequiredAmount == nil || g.Criteria.RequiredAmount.Sign() <= 0 {
		return shared.Receipt{}, shared.ErrInvalidRequiredAmount
	}

	rcpt := newReceipt()
	err = s.TXRunner.Exec(ctx, func(ctx context.Context) error {
		id, err := s.Groups.Create(ctx, server.GroupRecord{
			Name:           g.Name,
			ChainID:        g.Criteria.ChainID,
			TokenAddress:   g.Criteria.TokenAddress,
			RequiredAmount: new(big.Int).Set(g.Criteria.RequiredAmount),
			Creator:        user,
			CreatedAt:      s.now(),
		})
		if err != nil {
			return err
		}
		rcpt.GroupID = id
		return s.Memberships.Save(ctx, server.Membership{
			GroupID: id,
			Member:  user,
			State:   server.StateMember,
		})
	})
	if err != nil {
		return shared.Receipt{}, err
	}

	log.OrNop(s.Logger).Info().
		Uint64("group", rcpt.GroupID).
		Str("name", g.Name).
		Str("creator", user.Hex()).
		Msg("group created")
	return rcpt, nil
}

func (s *LedgerService) RequestToJoinGroup(ctx context.Context, auth shared.SignIn, groupID uint64) (shared.Receipt, error) {
	user, err := s.authenticate(auth)
	if err != nil {
		return shared.Receipt{}, err
	}
	err = s.TXRunner.Exec(ctx, func(ctx context.Context) error {
		if _, err := s.group(ctx, groupID); err != nil {
			return err
		}
		st, err := s.state(ctx, groupID, user)
		if err != nil {
			return err
		}
		switch st {
		case server.StateMember:
			return shared.ErrAlreadyGroupMember
		case server.StatePending:
			return shared.ErrAlreadyPending
		}
		return s.Memberships.Save(ctx, server.Membership{
			GroupID: groupID,
			Member:  user,
			State:   server.StatePending,
		})
	})
	if err != nil {
		return shared.Receipt{}, err
	}

	log.OrNop(s.Logger).Info().
		Uint64("group", groupID).
		Str("requester", user.Hex()).
		Msg("join requested")
	return newReceipt(), nil
}

func (s *LedgerService) AddGroupMember(ctx context.Context, auth shared.SignIn, groupID uint64, member shared.Identity) (shared.Receipt, error) {
	user, err := s.authenticate(auth)
	if err != nil {
		return shared.Receipt{}, err
	}
	err = s.TXRunner.Exec(ctx, func(ctx context.Context) error {
		if _, err := s.group(ctx, groupID); err != nil {
			return err
		}
		if err := s.requireMember(ctx, groupID, user); err != nil {
			return err
		}
		return s.admit(ctx, groupID, member)
	})
	if err != nil {
		return shared.Receipt{}, err
	}

	log.OrNop(s.Logger).Info().
		Uint64("group", groupID).
		Str("member", member.Hex()).
		Str("added_by", user.Hex()).
		Msg("member added")
	return newReceipt(), nil
}

// AdmitPending turns a pending request into a membership without a member
// credential. It is the approval path of the membership approver.
func (s *LedgerService) AdmitPending(ctx context.Context, groupID uint64, member shared.Identity) error {
	err := s.TXRunner.Exec(ctx, func(ctx context.Context) error {
		if _, err := s.group(ctx, groupID); err != nil {
			return err
		}
		return s.admit(ctx, groupID, member)
	})
	if err != nil {
		return err
	}
	log.OrNop(s.Logger).Info().
		Uint64("group", groupID).
		Str("member", member.Hex()).
		Msg("pending member admitted")
	return nil
}

func (s *LedgerService) admit(ctx context.Context, groupID uint64, member shared.Identity) error {
	if member == (shared.Identity{}) {
		return shared.ErrInvalidMemberAddress
	}
	st, err := s.state(ctx, groupID, member)
	if err != nil {
		return err
	}
	switch st {
	case server.StateMember:
		return shared.ErrAlreadyGroupMember
	case server.StatePending:
	default:
		return shared.ErrNotPendingMember
	}
	return s.Memberships.Save(ctx, server.Membership{
		GroupID: groupID,
		Member:  member,
		State:   server.StateMember,
	})
}

// RemoveGroupMember removes a member, or rejects the request of a pending
// identity.
func (s *LedgerService) RemoveGroupMember(ctx context.Context, auth shared.SignIn, groupID uint64, member shared.Identity) (shared.Receipt, error) {
	user, err := s.authenticate(auth)
	if err != nil {
		return shared.Receipt{}, err
	}
	var removed server.MembershipState
	err = s.TXRunner.Exec(ctx, func(ctx context.Context) error {
		if _, err := s.group(ctx, groupID); err != nil {
			return err
		}
		if err := s.requireMember(ctx, groupID, user); err != nil {
			return err
		}
		if member == (shared.Identity{}) {
			return shared.ErrInvalidMemberAddress
		}
		if member == user {
			return shared.ErrCannotRemoveSelf
		}
		removed, err = s.state(ctx, groupID, member)
		if err != nil {
			return err
		}
		if removed == 0 {
			return shared.ErrNotGroupMember
		}
		return s.Memberships.Delete(ctx, groupID, member)
	})
	if err != nil {
		return shared.Receipt{}, err
	}

	log.OrNop(s.Logger).Info().
		Uint64("group", groupID).
		Str("member", member.Hex()).
		Str("state", removed.String()).
		Str("removed_by", user.Hex()).
		Msg("member removed")
	return newReceipt(), nil
}

func (s *LedgerService) SendDirectMessage(ctx context.Context, auth shared.SignIn, to shared.Identity, content string) (shared.Receipt, error) {
	user, err := s.authenticate(auth)
	if err != nil {
		return shared.Receipt{}, err
	}
	if to == (shared.Identity{}) {
		return shared.Receipt{}, shared.ErrInvalidRecipient
	}
	if to == user {
		return shared.Receipt{}, shared.ErrCannotMessageSelf
	}
	if content == "" {
		return shared.Receipt{}, shared.ErrEmptyMessage
	}
	_, err = s.Messages.Append(ctx, server.MessageRecord{
		Kind:      server.MessageDirect,
		Sender:    user,
		Recipient: to,
		Content:   content,
		Timestamp: s.now().Unix(),
	})
	if err != nil {
		return shared.Receipt{}, err
	}
	return newReceipt(), nil
}

func (s *LedgerService) SendGroupMessage(ctx context.Context, auth shared.SignIn, groupID uint64, content string) (shared.Receipt, error) {
	user, err := s.authenticate(auth)
	if err != nil {
		return shared.Receipt{}, err
	}
	if content == "" {
		return shared.Receipt{}, shared.ErrEmptyMessage
	}
	err = s.TXRunner.Exec(ctx, func(ctx context.Context) error {
		if _, err := s.group(ctx, groupID); err != nil {
			return err
		}
		if err := s.requireMember(ctx, groupID, user); err != nil {
			return err
		}
		_, err := s.Messages.Append(ctx, server.MessageRecord{
			Kind:      server.MessageGroup,
			GroupID:   groupID,
			Sender:    user,
			Content:   content,
			Timestamp: s.now().Unix(),
		})
		return err
	})
	if err != nil {
		return shared.Receipt{}, err
	}
	return newReceipt(), nil
}

func toMessages(records []server.MessageRecord) []shared.Message {
	msgs := make([]shared.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, r.Message())
	}
	return msgs
}
