package domain

import (
	"context"
	"math/big"
	"time"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

type GroupRecord struct {
	ID             uint64
	Name           string
	ChainID        uint64
	TokenAddress   shared.Identity
	RequiredAmount *big.Int
	Creator        shared.Identity
	CreatedAt      time.Time
}

func (g GroupRecord) Criteria() shared.GroupCriteria {
	return shared.GroupCriteria{
		ChainID:        g.ChainID,
		TokenAddress:   g.TokenAddress,
		RequiredAmount: g.RequiredAmount,
	}
}

type GroupRepository interface {
	Create(ctx context.Context, g GroupRecord) (uint64, error)
	GetByID(ctx context.Context, id uint64) (GroupRecord, error)
	List(ctx context.Context) ([]GroupRecord, error)
}
