package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Signature is an ECDSA signature split into its scalar components.
// V is 27 or 28.
type Signature struct {
	R [32]byte
	S [32]byte
	V uint8
}

func (s Signature) Bytes() []byte {
	b := make([]byte, 0, 65)
	b = append(b, s.R[:]...)
	b = append(b, s.S[:]...)
	return append(b, s.V)
}

// SignIn is the time-bound credential authorizing ledger calls on behalf of
// User. Time is the issue timestamp in unix seconds.
type SignIn struct {
	User Identity
	Time uint32
	RSV  Signature
}

func (s SignIn) IssuedAt() time.Time {
	return time.Unix(int64(s.Time), 0)
}

type GroupCriteria struct {
	ChainID        uint64
	TokenAddress   Identity
	RequiredAmount *big.Int
}

type Group struct {
	ID       uint64
	Name     string
	Members  []Identity
	Criteria GroupCriteria
	Exists   bool
}

func (g Group) HasMember(id Identity) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}

type GroupDetails struct {
	Name    string
	Members []Identity
}

type PendingMembership struct {
	GroupID uint64
	Member  Identity
}

type Message struct {
	Sender    Identity
	Content   string
	Timestamp int64
}

func (m Message) Time() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// Receipt acknowledges an accepted write. GroupID is only set by CreateGroup.
type Receipt struct {
	TxHash  common.Hash
	GroupID uint64
}

type NewGroup struct {
	Name     string
	Criteria GroupCriteria
}

type LedgerReader interface {
	IsGroupMember(ctx context.Context, groupID uint64, user Identity) (bool, error)
	IsPendingMember(ctx context.Context, groupID uint64, user Identity) (bool, error)
	GetAllGroups(ctx context.Context) ([]Group, error)
	GetGroupDetails(ctx context.Context, groupID uint64) (GroupDetails, error)
	GetPendingMembers(ctx context.Context, groupID uint64) ([]Identity, error)
	GetAllPendingMemberships(ctx context.Context) ([]PendingMembership, error)
	GetUserGroupsByAddress(ctx context.Context, user Identity) ([]uint64, error)

	GetDirectMessageContacts(ctx context.Context, auth SignIn) ([]Identity, error)
	GetDirectMessages(ctx context.Context, auth SignIn, other Identity) ([]Message, error)
	GetGroupMessages(ctx context.Context, auth SignIn, groupID uint64) ([]Message, error)
	GetUserGroups(ctx context.Context, auth SignIn) ([]uint64, error)
}

type LedgerWriter interface {
	CreateGroup(ctx context.Context, auth SignIn, g NewGroup) (Receipt, error)
	RequestToJoinGroup(ctx context.Context, auth SignIn, groupID uint64) (Receipt, error)
	AddGroupMember(ctx context.Context, auth SignIn, groupID uint64, member Identity) (Receipt, error)
	RemoveGroupMember(ctx context.Context, auth SignIn, groupID uint64, member Identity) (Receipt, error)
	SendDirectMessage(ctx context.Context, auth SignIn, to Identity, content string) (Receipt, error)
	SendGroupMessage(ctx context.Context, auth SignIn, groupID uint64, content string) (Receipt, error)
}

// Ledger is the collaborator storing groups, memberships and messages.
type Ledger interface {
	LedgerReader
	LedgerWriter
}
