package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	server "github.com/charadev96/ledgerchat/internal/server/domain"
	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
	"github.com/charadev96/ledgerchat/internal/shared/infra"
)

type BunGroupRepository struct {
	db *bun.DB
}

func NewBunGroupRepository(ctx context.Context, db *bun.DB) (*BunGroupRepository, error) {
	r := &BunGroupRepository{
		db: db,
	}
	tx := infra.ExtractTx(ctx, r.db)
	_, err := tx.NewCreateTable().
		Model((*group)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to create repository: %w", err)
	}
	return r, nil
}

func (r *BunGroupRepository) Create(ctx context.Context, g server.GroupRecord) (uint64, error) {
	tx := infra.ExtractTx(ctx, r.db)
	row := new(group)
	if err := copyRow(row, &g); err != nil {
		return 0, err
	}
	row.ID = 0
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	_, err := tx.NewInsert().
		Model(row).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create group: %w", err)
	}
	return uint64(row.ID), nil
}

func (r *BunGroupRepository) GetByID(ctx context.Context, id uint64) (server.GroupRecord, error) {
	tx := infra.ExtractTx(ctx, r.db)
	row := new(group)
	g := server.GroupRecord{}
	err := tx.NewSelect().
		Model(row).
		Where("id = ?", int64(id)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = shared.ErrNotExist
		}
		return g, fmt.Errorf("failed to get group: %w", err)
	}
	err = copyRow(&g, row)
	return g, err
}

func (r *BunGroupRepository) List(ctx context.Context) ([]server.GroupRecord, error) {
	tx := infra.ExtractTx(ctx, r.db)
	var rows []group
	err := tx.NewSelect().
		Model(&rows).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	groups := make([]server.GroupRecord, 0, len(rows))
	if err := copyRow(&groups, &rows); err != nil {
		return nil, err
	}
	return groups, nil
}

type group struct {
	bun.BaseModel `bun:"table:groups"`

	ID             int64     `bun:",pk,autoincrement"`
	Name           string    `bun:",notnull"`
	ChainID        int64     `bun:",notnull"`
	TokenAddress   string    `bun:",notnull"`
	RequiredAmount string    `bun:",notnull"`
	Creator        string    `bun:",notnull"`
	CreatedAt      time.Time `bun:",notnull"`
}
