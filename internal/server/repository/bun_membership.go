package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	server "github.com/charadev96/ledgerchat/internal/server/domain"
	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/infra"
)

type BunMembershipRepository struct {
	db *bun.DB
}

func NewBunMembershipRepository(ctx context.Context, db *bun.DB) (*BunMembershipRepository, error) {
	r := &BunMembershipRepository{
		db: db,
	}
	tx := infra.ExtractTx(ctx, r.db)
	_, err := tx.NewCreateTable().
		Model((*membership)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to create repository: %w", err)
	}
	return r, nil
}

func (r *BunMembershipRepository) Get(ctx context.Context, groupID uint64, id shared.Identity) (server.Membership, error) {
	tx := infra.ExtractTx(ctx, r.db)
	row := new(membership)
	m := server.Membership{}
	err := tx.NewSelect().
		Model(row).
		Where("group_id = ?", int64(groupID)).
		Where("member = ?", shared.IdentityKey(id)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = shared.ErrNotExist
		}
		return m, fmt.Errorf("failed to get membership: %w", err)
	}
	err = copyRow(&m, row)
	return m, err
}

// Save inserts or replaces the membership of m.Member in m.GroupID.
// Replacing moves it to the end of the group's listing order.
func (r *BunMembershipRepository) Save(ctx context.Context, m server.Membership) error {
	tx := infra.ExtractTx(ctx, r.db)
	row := new(membership)
	if err := copyRow(row, &m); err != nil {
		return err
	}
	_, err := tx.NewInsert().
		Model(row).
		Replace().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save membership: %w", err)
	}
	return nil
}

func (r *BunMembershipRepository) Delete(ctx context.Context, groupID uint64, id shared.Identity) error {
	tx := infra.ExtractTx(ctx, r.db)
	_, err := tx.NewDelete().
		Model((*membership)(nil)).
		Where("group_id = ?", int64(groupID)).
		Where("member = ?", shared.IdentityKey(id)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return nil
}

func (r *BunMembershipRepository) ListByGroup(ctx context.Context, groupID uint64, state server.MembershipState) ([]shared.Identity, error) {
	tx := infra.ExtractTx(ctx, r.db)
	var rows []membership
	err := tx.NewSelect().
		Model(&rows).
		Where("group_id = ?", int64(groupID)).
		Where("state = ?", state).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list group memberships: %w", err)
	}
	ids := make([]shared.Identity, 0, len(rows))
	for _, row := range rows {
		m := server.Membership{}
		if err := copyRow(&m, &row); err != nil {
			return nil, err
		}
		ids = append(ids, m.Member)
	}
	return ids, nil
}

func (r *BunMembershipRepository) ListByMember(ctx context.Context, id shared.Identity, state server.MembershipState) ([]uint64, error) {
	tx := infra.ExtractTx(ctx, r.db)
	var rows []membership
	err := tx.NewSelect().
		Model(&rows).
		Where("member = ?", shared.IdentityKey(id)).
		Where("state = ?", state).
		Order("group_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	groups := make([]uint64, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, uint64(row.GroupID))
	}
	return groups, nil
}

func (r *BunMembershipRepository) List(ctx context.Context, state server.MembershipState) ([]server.Membership, error) {
	tx := infra.ExtractTx(ctx, r.db)
	var rows []membership
	err := tx.NewSelect().
		Model(&rows).
		Where("state = ?", state).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	ms := make([]server.Membership, 0, len(rows))
	if err := copyRow(&ms, &rows); err != nil {
		return nil, err
	}
	return ms, nil
}

type membership struct {
	bun.BaseModel `bun:"table:memberships"`

	ID      int64                  `bun:",pk,autoincrement"`
	GroupID int64                  `bun:",notnull,unique:group_member"`
	Member  string                 `bun:",notnull,unique:group_member"`
	State   server.MembershipState `bun:",notnull"`
}
